package gcm

// Replacement records a canonical id migration: the gateway delivered to Old
// but told us to address the device as New from now on. The registry must
// disable Old and create New carrying over Old's package/version/uuid.
type Replacement struct {
	Old string
	New string
}

// RecipientError is one recipient the gateway rejected, with the error code
// it sent.
type RecipientError struct {
	RegistrationID string
	Code           string
}

// Classification is the outcome of walking one 200 response. The buckets are
// disjoint: each submitted recipient lands in exactly one.
type Classification struct {
	// Delivered counts recipients that succeeded with no follow-up needed.
	Delivered int

	// Retry holds recipients the gateway reported Unavailable for. They get
	// another attempt; the registry is untouched.
	Retry []string

	// Disabled holds recipients reported NotRegistered: their registry rows
	// must be disabled.
	Disabled []string

	// Replacements holds canonical id migrations.
	Replacements []Replacement

	// Fatal holds recipients with a known non-recoverable error code.
	Fatal []RecipientError

	// Unhandled holds recipients with a code outside the known set. These
	// deserve error-level log lines so an operator notices new gateway
	// behavior.
	Unhandled []RecipientError
}

// Classify pairs each result with its registration id, index for index, and
// sorts every recipient into one bucket. It is pure: no I/O, no registry
// access, so it can be tested against literal response fixtures.
//
// Rules, in priority order per recipient:
//  1. message_id + registration_id  -> Replacement (canonical id issued)
//  2. message_id only               -> Delivered
//  3. error Unavailable             -> Retry
//  4. error NotRegistered           -> Disabled
//  5. error in the known fatal set  -> Fatal
//  6. anything else                 -> Unhandled
func Classify(registrationIDs []string, results []Result) Classification {
	var c Classification

	n := len(results)
	if len(registrationIDs) < n {
		// The gateway contract guarantees positional alignment; if it ever
		// sends more results than we sent ids, the extras are meaningless.
		n = len(registrationIDs)
	}

	for i := 0; i < n; i++ {
		regID := registrationIDs[i]
		res := results[i]

		switch {
		case res.MessageID != "" && res.RegistrationID != "":
			c.Replacements = append(c.Replacements, Replacement{Old: regID, New: res.RegistrationID})
		case res.MessageID != "":
			c.Delivered++
		case res.Error == ResultErrUnavailable:
			c.Retry = append(c.Retry, regID)
		case res.Error == ResultErrNotRegistered:
			c.Disabled = append(c.Disabled, regID)
		default:
			re := RecipientError{RegistrationID: regID, Code: res.Error}
			if _, known := fatalResultErrors[res.Error]; known {
				c.Fatal = append(c.Fatal, re)
			} else {
				c.Unhandled = append(c.Unhandled, re)
			}
		}
	}

	return c
}

// HasMutations reports whether applying this classification requires any
// registry writes.
func (c Classification) HasMutations() bool {
	return len(c.Disabled) > 0 || len(c.Replacements) > 0
}
