package gcm

import (
	"context"
	"log"
	"time"

	"gcmrelay/internal/queue"
)

const (
	// MaxRetries bounds how often one batch is re-attempted. Try 0 is the
	// first send, tries 1..5 are retries; a task arriving with a higher
	// count is abandoned.
	MaxRetries = 5

	retryIntervalInitial = 10 * time.Second
	retryIntervalMax     = 300 * time.Second
)

// TaskQueue accepts a delivery task for execution after a delay. Satisfied
// by queue.Publisher; tests substitute a recording fake.
type TaskQueue interface {
	EnqueueDelivery(ctx context.Context, task queue.DeliveryTask, delay time.Duration) error
}

// Scheduler decides whether and when a batch gets a further attempt and
// re-submits it. It is a pure delay+requeue function: it never inspects
// registry state and never classifies outcomes, which keeps it testable
// with nothing but a fake queue.
type Scheduler struct {
	queue TaskQueue
}

func NewScheduler(q TaskQueue) *Scheduler {
	return &Scheduler{queue: q}
}

// ScheduleRetry enqueues the task after the computed backoff delay. The
// task's TryCount must already be advanced by the caller. Guard failures
// abort silently with a logged reason; a rejected batch is simply dropped,
// the caller has nothing useful to do about it.
func (s *Scheduler) ScheduleRetry(ctx context.Context, task queue.DeliveryTask, suggested *time.Duration) {
	if len(task.RegistrationIDs) == 0 {
		log.Printf("[Scheduler] Empty registration id set, nothing to enqueue")
		return
	}
	if task.TryCount > MaxRetries {
		log.Printf("[Scheduler] Exceeded max retry count (%d), abandoning batch of %d",
			MaxRetries, len(task.RegistrationIDs))
		return
	}
	if suggested != nil && *suggested < 0 {
		log.Printf("[Scheduler] Negative suggested delay %v, abandoning batch", *suggested)
		return
	}

	delay := RetryDelay(task.TryCount, suggested)
	if err := s.queue.EnqueueDelivery(ctx, task, delay); err != nil {
		log.Printf("[Scheduler] Enqueue failed (try %d, %d ids): %v",
			task.TryCount, len(task.RegistrationIDs), err)
		return
	}

	log.Printf("[Scheduler] Enqueued try %d for %d ids after %v",
		task.TryCount, len(task.RegistrationIDs), delay)
}

// RetryDelay computes the backoff before the given try. A gateway-suggested
// delay always wins: it is the gateway's explicit throttle instruction.
// Otherwise try 0 goes out immediately and try n waits 10s * 2^(n-1),
// capped at 300s.
func RetryDelay(tryCount int, suggested *time.Duration) time.Duration {
	if suggested != nil {
		return *suggested
	}
	if tryCount == 0 {
		return 0
	}
	delay := retryIntervalInitial << (tryCount - 1)
	if delay > retryIntervalMax {
		delay = retryIntervalMax
	}
	return delay
}
