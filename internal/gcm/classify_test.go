package gcm

import (
	"reflect"
	"testing"
)

func TestClassify_MixedBatch(t *testing.T) {
	// Three recipients: one delivered, one dead, one worth retrying.
	ids := []string{"reg-a", "reg-b", "reg-c"}
	results := []Result{
		{MessageID: "m-a"},
		{Error: ResultErrNotRegistered},
		{Error: ResultErrUnavailable},
	}

	c := Classify(ids, results)

	if c.Delivered != 1 {
		t.Errorf("delivered = %d, want 1", c.Delivered)
	}
	if !reflect.DeepEqual(c.Disabled, []string{"reg-b"}) {
		t.Errorf("disabled = %v, want [reg-b]", c.Disabled)
	}
	if !reflect.DeepEqual(c.Retry, []string{"reg-c"}) {
		t.Errorf("retry = %v, want [reg-c]", c.Retry)
	}
	if len(c.Fatal) != 0 || len(c.Unhandled) != 0 {
		t.Errorf("fatal = %v, unhandled = %v, want both empty", c.Fatal, c.Unhandled)
	}
	if !c.HasMutations() {
		t.Error("a NotRegistered result must require registry writes")
	}
}

func TestClassify_CanonicalReplacementWinsOverDelivered(t *testing.T) {
	// message_id plus registration_id is a replacement, not a plain success.
	ids := []string{"reg-old"}
	results := []Result{{MessageID: "m-1", RegistrationID: "reg-new"}}

	c := Classify(ids, results)

	if c.Delivered != 0 {
		t.Errorf("delivered = %d, want 0", c.Delivered)
	}
	want := []Replacement{{Old: "reg-old", New: "reg-new"}}
	if !reflect.DeepEqual(c.Replacements, want) {
		t.Errorf("replacements = %v, want %v", c.Replacements, want)
	}
	if !c.HasMutations() {
		t.Error("a replacement must require registry writes")
	}
}

func TestClassify_FatalCodes(t *testing.T) {
	fatal := []string{
		ResultErrMissingRegistration,
		ResultErrInvalidRegistration,
		ResultErrMismatchSenderID,
		ResultErrMessageTooBig,
		ResultErrInvalidDataKey,
		ResultErrInvalidTTL,
		ResultErrInternalServerError,
		ResultErrInvalidPackageName,
		ResultErrDeviceMessageRateExceeded,
	}

	for _, code := range fatal {
		t.Run(code, func(t *testing.T) {
			c := Classify([]string{"reg-1"}, []Result{{Error: code}})

			if len(c.Fatal) != 1 {
				t.Fatalf("fatal = %v, want exactly one entry", c.Fatal)
			}
			if c.Fatal[0].Code != code {
				t.Errorf("code = %q, want %q", c.Fatal[0].Code, code)
			}
			if len(c.Retry) != 0 || len(c.Disabled) != 0 || len(c.Unhandled) != 0 {
				t.Errorf("%s leaked into another bucket: %+v", code, c)
			}
			if c.HasMutations() {
				t.Errorf("%s must not touch the registry", code)
			}
		})
	}
}

func TestClassify_UnknownCodeIsUnhandled(t *testing.T) {
	c := Classify([]string{"reg-1"}, []Result{{Error: "SomeFutureError"}})

	if len(c.Unhandled) != 1 {
		t.Fatalf("unhandled = %v, want exactly one entry", c.Unhandled)
	}
	if c.Unhandled[0].Code != "SomeFutureError" {
		t.Errorf("code = %q, want SomeFutureError", c.Unhandled[0].Code)
	}
	if len(c.Fatal) != 0 {
		t.Errorf("unknown code landed in fatal: %v", c.Fatal)
	}
}

func TestClassify_ExtraResultsIgnored(t *testing.T) {
	// If the gateway ever sends more results than ids, the extras have no
	// recipient to attach to and are dropped.
	c := Classify([]string{"reg-1"}, []Result{
		{MessageID: "m-1"},
		{Error: ResultErrNotRegistered},
	})

	if c.Delivered != 1 {
		t.Errorf("delivered = %d, want 1", c.Delivered)
	}
	if len(c.Disabled) != 0 {
		t.Errorf("disabled = %v, want empty (extra result has no recipient)", c.Disabled)
	}
}

func TestClassify_EmptyInputs(t *testing.T) {
	c := Classify(nil, nil)
	if c.HasMutations() || c.Delivered != 0 {
		t.Errorf("empty classify produced %+v", c)
	}
}
