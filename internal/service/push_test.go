package service

import (
	"context"
	"reflect"
	"testing"
	"time"

	"gcmrelay/internal/gcm"
	"gcmrelay/internal/queue"
)

// =============================================================================
// MOCKS
// =============================================================================

type mockGateway struct {
	sendFn    func(ctx context.Context, apiKey string, msg gcm.Message) (*gcm.Response, error)
	sendCalls []gcm.Message
}

func (m *mockGateway) Send(ctx context.Context, apiKey string, msg gcm.Message) (*gcm.Response, error) {
	m.sendCalls = append(m.sendCalls, msg)
	return m.sendFn(ctx, apiKey, msg)
}

type scheduledRetry struct {
	Task      queue.DeliveryTask
	Suggested *time.Duration
}

type mockScheduler struct {
	calls []scheduledRetry
}

func (m *mockScheduler) ScheduleRetry(ctx context.Context, task queue.DeliveryTask, suggested *time.Duration) {
	m.calls = append(m.calls, scheduledRetry{Task: task, Suggested: suggested})
}

type reconcileCall struct {
	Disabled     []string
	Replacements []gcm.Replacement
}

type mockReconciler struct {
	reconcileFn func(ctx context.Context, disabled []string, replacements []gcm.Replacement) error
	calls       []reconcileCall
}

func (m *mockReconciler) ReconcileOutcomes(ctx context.Context, disabled []string, replacements []gcm.Replacement) error {
	m.calls = append(m.calls, reconcileCall{Disabled: disabled, Replacements: replacements})
	if m.reconcileFn != nil {
		return m.reconcileFn(ctx, disabled, replacements)
	}
	return nil
}

func respondWith(resp *gcm.Response, err error) *mockGateway {
	return &mockGateway{
		sendFn: func(ctx context.Context, apiKey string, msg gcm.Message) (*gcm.Response, error) {
			return resp, err
		},
	}
}

func newTask(ids ...string) queue.DeliveryTask {
	return queue.DeliveryTask{
		APIKey:          "key",
		RegistrationIDs: ids,
		TryCount:        0,
	}
}

// =============================================================================
// SUCCESS PATH TESTS
// =============================================================================

func TestDeliver_FullSuccessIsTerminal(t *testing.T) {
	gateway := respondWith(&gcm.Response{
		Success: 2,
		Results: []gcm.Result{{MessageID: "m1"}, {MessageID: "m2"}},
	}, nil)
	scheduler := &mockScheduler{}
	reconciler := &mockReconciler{}
	svc := NewPushService(gateway, scheduler, reconciler, false)

	err := svc.Deliver(context.Background(), newTask("reg-1", "reg-2"))
	if err != nil {
		t.Fatalf("Deliver failed: %v", err)
	}

	if len(scheduler.calls) != 0 {
		t.Errorf("nothing should be retried, got %v", scheduler.calls)
	}
	if len(reconciler.calls) != 0 {
		t.Errorf("registry must stay untouched, got %v", reconciler.calls)
	}
}

func TestDeliver_MixedOutcomes(t *testing.T) {
	// reg-a delivered, reg-b dead, reg-c retryable.
	gateway := respondWith(&gcm.Response{
		Success: 1,
		Failure: 2,
		Results: []gcm.Result{
			{MessageID: "m-a"},
			{Error: gcm.ResultErrNotRegistered},
			{Error: gcm.ResultErrUnavailable},
		},
	}, nil)
	scheduler := &mockScheduler{}
	reconciler := &mockReconciler{}
	svc := NewPushService(gateway, scheduler, reconciler, false)

	err := svc.Deliver(context.Background(), newTask("reg-a", "reg-b", "reg-c"))
	if err != nil {
		t.Fatalf("Deliver failed: %v", err)
	}

	// reg-b disabled, nothing replaced.
	if len(reconciler.calls) != 1 {
		t.Fatalf("reconcile calls = %d, want 1", len(reconciler.calls))
	}
	if !reflect.DeepEqual(reconciler.calls[0].Disabled, []string{"reg-b"}) {
		t.Errorf("disabled = %v, want [reg-b]", reconciler.calls[0].Disabled)
	}

	// Only reg-c goes around again, with the try counter advanced.
	if len(scheduler.calls) != 1 {
		t.Fatalf("retry calls = %d, want 1", len(scheduler.calls))
	}
	retry := scheduler.calls[0].Task
	if !reflect.DeepEqual(retry.RegistrationIDs, []string{"reg-c"}) {
		t.Errorf("retry ids = %v, want [reg-c]", retry.RegistrationIDs)
	}
	if retry.TryCount != 1 {
		t.Errorf("retry try count = %d, want 1", retry.TryCount)
	}
}

func TestDeliver_CanonicalReplacement(t *testing.T) {
	gateway := respondWith(&gcm.Response{
		Success:      1,
		CanonicalIDs: 1,
		Results:      []gcm.Result{{MessageID: "m1", RegistrationID: "reg-new"}},
	}, nil)
	scheduler := &mockScheduler{}
	reconciler := &mockReconciler{}
	svc := NewPushService(gateway, scheduler, reconciler, false)

	err := svc.Deliver(context.Background(), newTask("reg-old"))
	if err != nil {
		t.Fatalf("Deliver failed: %v", err)
	}

	if len(reconciler.calls) != 1 {
		t.Fatalf("reconcile calls = %d, want 1", len(reconciler.calls))
	}
	want := []gcm.Replacement{{Old: "reg-old", New: "reg-new"}}
	if !reflect.DeepEqual(reconciler.calls[0].Replacements, want) {
		t.Errorf("replacements = %v, want %v", reconciler.calls[0].Replacements, want)
	}
	if len(scheduler.calls) != 0 {
		t.Errorf("replacements must not be retried, got %v", scheduler.calls)
	}
}

func TestDeliver_RetryCarriesGatewayDelay(t *testing.T) {
	suggested := 45 * time.Second
	gateway := respondWith(&gcm.Response{
		Failure:    1,
		Results:    []gcm.Result{{Error: gcm.ResultErrUnavailable}},
		RetryAfter: &suggested,
	}, nil)
	scheduler := &mockScheduler{}
	svc := NewPushService(gateway, scheduler, &mockReconciler{}, false)

	if err := svc.Deliver(context.Background(), newTask("reg-1")); err != nil {
		t.Fatalf("Deliver failed: %v", err)
	}

	if len(scheduler.calls) != 1 {
		t.Fatalf("retry calls = %d, want 1", len(scheduler.calls))
	}
	if scheduler.calls[0].Suggested == nil || *scheduler.calls[0].Suggested != suggested {
		t.Errorf("suggested = %v, want %v", scheduler.calls[0].Suggested, suggested)
	}
}

func TestDeliver_ReconcileFailureStillSchedulesRetry(t *testing.T) {
	gateway := respondWith(&gcm.Response{
		Failure: 2,
		Results: []gcm.Result{
			{Error: gcm.ResultErrNotRegistered},
			{Error: gcm.ResultErrUnavailable},
		},
	}, nil)
	scheduler := &mockScheduler{}
	reconciler := &mockReconciler{
		reconcileFn: func(ctx context.Context, disabled []string, replacements []gcm.Replacement) error {
			return context.DeadlineExceeded
		},
	}
	svc := NewPushService(gateway, scheduler, reconciler, false)

	if err := svc.Deliver(context.Background(), newTask("reg-dead", "reg-busy")); err != nil {
		t.Fatalf("Deliver must swallow reconcile failures, got %v", err)
	}
	if len(scheduler.calls) != 1 {
		t.Errorf("retry subset lost after reconcile failure")
	}
}

// =============================================================================
// REQUEST-LEVEL FAILURE TESTS
// =============================================================================

func TestDeliver_GatewayUnavailableRetriesWholeBatch(t *testing.T) {
	retryAfter := 30 * time.Second
	gateway := respondWith(nil, &gcm.GatewayUnavailableError{
		StatusCode: 503,
		RetryAfter: &retryAfter,
	})
	scheduler := &mockScheduler{}
	reconciler := &mockReconciler{}
	svc := NewPushService(gateway, scheduler, reconciler, false)

	task := newTask("reg-1", "reg-2", "reg-3")
	if err := svc.Deliver(context.Background(), task); err != nil {
		t.Fatalf("Deliver failed: %v", err)
	}

	if len(scheduler.calls) != 1 {
		t.Fatalf("retry calls = %d, want 1", len(scheduler.calls))
	}
	retry := scheduler.calls[0]
	if !reflect.DeepEqual(retry.Task.RegistrationIDs, task.RegistrationIDs) {
		t.Errorf("retry ids = %v, want the full batch", retry.Task.RegistrationIDs)
	}
	if retry.Task.TryCount != 1 {
		t.Errorf("retry try count = %d, want 1", retry.Task.TryCount)
	}
	if retry.Suggested == nil || *retry.Suggested != retryAfter {
		t.Errorf("suggested = %v, want %v", retry.Suggested, retryAfter)
	}
	if len(reconciler.calls) != 0 {
		t.Errorf("5xx must not touch the registry")
	}
}

func TestDeliver_TerminalSendErrorsAreDropped(t *testing.T) {
	cases := []struct {
		name string
		err  error
	}{
		{"bad request", gcm.ErrBadRequest},
		{"authentication failed", gcm.ErrAuthenticationFailed},
		{"invalid argument", &gcm.InvalidArgumentError{Field: "registration_ids", Reason: "empty"}},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			scheduler := &mockScheduler{}
			svc := NewPushService(respondWith(nil, tc.err), scheduler, &mockReconciler{}, false)

			if err := svc.Deliver(context.Background(), newTask("reg-1")); err != nil {
				t.Fatalf("terminal failures must not propagate, got %v", err)
			}
			if len(scheduler.calls) != 0 {
				t.Errorf("terminal failure was retried: %v", scheduler.calls)
			}
		})
	}
}

func TestDeliver_TransportErrorRespectsConfig(t *testing.T) {
	transportErr := &gcm.TransportError{Op: "send", Err: context.DeadlineExceeded}

	t.Run("dropped by default", func(t *testing.T) {
		scheduler := &mockScheduler{}
		svc := NewPushService(respondWith(nil, transportErr), scheduler, &mockReconciler{}, false)

		if err := svc.Deliver(context.Background(), newTask("reg-1")); err != nil {
			t.Fatalf("Deliver failed: %v", err)
		}
		if len(scheduler.calls) != 0 {
			t.Errorf("transport failure retried with retries disabled")
		}
	})

	t.Run("retried when enabled", func(t *testing.T) {
		scheduler := &mockScheduler{}
		svc := NewPushService(respondWith(nil, transportErr), scheduler, &mockReconciler{}, true)

		if err := svc.Deliver(context.Background(), newTask("reg-1")); err != nil {
			t.Fatalf("Deliver failed: %v", err)
		}
		if len(scheduler.calls) != 1 {
			t.Fatalf("retry calls = %d, want 1", len(scheduler.calls))
		}
		if scheduler.calls[0].Task.TryCount != 1 {
			t.Errorf("try count = %d, want 1", scheduler.calls[0].Task.TryCount)
		}
		if scheduler.calls[0].Suggested != nil {
			t.Errorf("transport retries have no gateway delay, got %v", *scheduler.calls[0].Suggested)
		}
	})
}
