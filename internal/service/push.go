package service

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"gcmrelay/internal/gcm"
	"gcmrelay/internal/queue"
)

// GatewayClient sends one batch to the GCM connection server.
type GatewayClient interface {
	Send(ctx context.Context, apiKey string, msg gcm.Message) (*gcm.Response, error)
}

// RetryScheduler re-enqueues a batch for a later attempt.
type RetryScheduler interface {
	ScheduleRetry(ctx context.Context, task queue.DeliveryTask, suggested *time.Duration)
}

// DeviceReconciler applies classified registry mutations atomically.
// Satisfied by repository.DeviceRepository.
type DeviceReconciler interface {
	ReconcileOutcomes(ctx context.Context, disabled []string, replacements []gcm.Replacement) error
}

// PushService executes one delivery task end to end: send the batch,
// classify the gateway's per-recipient outcomes, reconcile the device
// registry, and hand the recoverable subset back to the retry scheduler.
type PushService struct {
	client    GatewayClient
	scheduler RetryScheduler
	devices   DeviceReconciler

	// retryTransportErrors controls whether a batch dropped at the
	// transport layer (timeout, TLS, DNS) is re-enqueued. Default false:
	// blindly resending into an outage amplifies it.
	retryTransportErrors bool
}

func NewPushService(client GatewayClient, scheduler RetryScheduler, devices DeviceReconciler, retryTransportErrors bool) *PushService {
	return &PushService{
		client:               client,
		scheduler:            scheduler,
		devices:              devices,
		retryTransportErrors: retryTransportErrors,
	}
}

// Deliver runs one attempt of the task. Request-level failures are decided
// and terminated here: nothing propagates to an end user, the worst case is
// a logged drop. The returned error is informational for the worker's log;
// the task is finished either way.
func (s *PushService) Deliver(ctx context.Context, task queue.DeliveryTask) error {
	msg := gcm.Message{
		RegistrationIDs:       task.RegistrationIDs,
		CollapseKey:           task.CollapseKey,
		Data:                  task.Data,
		DelayWhileIdle:        task.DelayWhileIdle,
		TimeToLive:            task.TimeToLive,
		RestrictedPackageName: task.RestrictedPackageName,
		DryRun:                task.DryRun,
	}

	resp, err := s.client.Send(ctx, task.APIKey, msg)
	if err != nil {
		return s.handleSendError(ctx, task, err)
	}

	if resp.Failure == 0 && resp.CanonicalIDs == 0 {
		log.Printf("[Push] Batch fully delivered: try=%d ids=%d", task.TryCount, len(task.RegistrationIDs))
		return nil
	}

	cls := gcm.Classify(task.RegistrationIDs, resp.Results)

	for _, f := range cls.Fatal {
		log.Printf("[Push] Non-recoverable result for %s: %s", f.RegistrationID, f.Code)
	}
	for _, u := range cls.Unhandled {
		log.Printf("[Push] ERROR: gateway sent error code we do not handle for %s: %q", u.RegistrationID, u.Code)
	}

	if cls.HasMutations() {
		if err := s.devices.ReconcileOutcomes(ctx, cls.Disabled, cls.Replacements); err != nil {
			// The retry subset is still worth scheduling; the registry
			// mutations are lost for this batch and only the log knows.
			log.Printf("[Push] Registry reconciliation failed: %v", err)
		}
	}

	if len(cls.Retry) > 0 {
		retryTask := task.NextTry()
		retryTask.RegistrationIDs = cls.Retry
		s.scheduler.ScheduleRetry(ctx, retryTask, resp.RetryAfter)
	}

	log.Printf("[Push] Batch classified: try=%d delivered=%d retry=%d disabled=%d replaced=%d fatal=%d unhandled=%d",
		task.TryCount, cls.Delivered, len(cls.Retry), len(cls.Disabled), len(cls.Replacements),
		len(cls.Fatal), len(cls.Unhandled))
	return nil
}

func (s *PushService) handleSendError(ctx context.Context, task queue.DeliveryTask, err error) error {
	var (
		invalidArg  *gcm.InvalidArgumentError
		unavailable *gcm.GatewayUnavailableError
		transport   *gcm.TransportError
	)

	switch {
	case errors.As(err, &invalidArg):
		log.Printf("[Push] Invalid send request, batch dropped: %v", invalidArg)
		return nil

	case errors.Is(err, gcm.ErrBadRequest):
		log.Printf("[Push] Gateway rejected batch as malformed, dropped (try=%d ids=%d)",
			task.TryCount, len(task.RegistrationIDs))
		return nil

	case errors.Is(err, gcm.ErrAuthenticationFailed):
		// Needs an operator: the API key is wrong or GCM is disabled for
		// the project. Retrying the same credential is pointless.
		log.Printf("[Push] ALERT: gateway authentication failed, check the app's API key (try=%d ids=%d)",
			task.TryCount, len(task.RegistrationIDs))
		return nil

	case errors.As(err, &unavailable):
		// 5xx fails the whole batch; the gateway gives no partial results,
		// so the entire original recipient set goes around again.
		log.Printf("[Push] Gateway unavailable (%d), re-enqueueing full batch (try=%d ids=%d)",
			unavailable.StatusCode, task.TryCount, len(task.RegistrationIDs))
		s.scheduler.ScheduleRetry(ctx, task.NextTry(), unavailable.RetryAfter)
		return nil

	case errors.As(err, &transport):
		if s.retryTransportErrors {
			log.Printf("[Push] Transport failure, re-enqueueing full batch: %v", transport)
			s.scheduler.ScheduleRetry(ctx, task.NextTry(), nil)
			return nil
		}
		log.Printf("[Push] Transport failure, batch dropped: %v", transport)
		return nil

	default:
		return fmt.Errorf("send batch: %w", err)
	}
}
