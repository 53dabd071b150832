package worker

import (
	"context"
	"log"

	"gcmrelay/internal/queue"
)

// Deliverer executes one delivery task. This abstracts the push service so
// workers don't depend on the gateway client or the registry directly.
type Deliverer interface {
	Deliver(ctx context.Context, task queue.DeliveryTask) error
}

// Handler processes delivery tasks from the queue.
type Handler struct {
	pusher Deliverer
}

// NewHandler creates a task handler.
func NewHandler(pusher Deliverer) *Handler {
	return &Handler{pusher: pusher}
}

// HandleTask runs one delivery task. A task with no recipients is legal on
// the wire but meaningless, so it is dropped here instead of bothering the
// gateway client's validation.
func (h *Handler) HandleTask(ctx context.Context, task queue.DeliveryTask) error {
	if len(task.RegistrationIDs) == 0 {
		log.Printf("[Handler] Task with no registration ids, dropped")
		return nil
	}
	return h.pusher.Deliver(ctx, task)
}
