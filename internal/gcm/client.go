package gcm

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"net/http"
	"strconv"
	"time"
)

const (
	// DefaultSendURL is the GCM HTTP connection server endpoint.
	DefaultSendURL = "https://android.googleapis.com/gcm/send"

	// MaxRecipients is the gateway's limit on registration ids per request.
	MaxRecipients = 1000

	// MaxTimeToLive is the longest the gateway will hold an offline
	// message, in seconds (4 weeks).
	MaxTimeToLive = 2419200

	requestTimeout  = 30 * time.Second
	maxResponseBody = 1 << 20 // response larger than this is a transport failure
)

// Message is one batch send request: the recipient set plus the optional
// delivery fields the gateway understands. Optional booleans are pointers so
// "absent" and "false" stay distinguishable; absent fields are omitted from
// the request body entirely.
type Message struct {
	RegistrationIDs       []string
	CollapseKey           string
	Data                  map[string]string
	DelayWhileIdle        *bool
	TimeToLive            *int
	RestrictedPackageName string
	DryRun                bool
}

// sendRequest is the wire shape of the request body. Only registration_ids
// is mandatory; everything optional is omitted when unset rather than sent
// as null.
type sendRequest struct {
	RegistrationIDs       []string          `json:"registration_ids"`
	CollapseKey           string            `json:"collapse_key,omitempty"`
	Data                  map[string]string `json:"data,omitempty"`
	DelayWhileIdle        *bool             `json:"delay_while_idle,omitempty"`
	TimeToLive            *int              `json:"time_to_live,omitempty"`
	RestrictedPackageName string            `json:"restricted_package_name,omitempty"`
	DryRun                bool              `json:"dry_run,omitempty"`
}

// Result is one entry of the response results array, positionally aligned
// with the submitted registration ids. Either MessageID is set (success,
// optionally with a canonical replacement id in RegistrationID) or Error is.
type Result struct {
	MessageID      string `json:"message_id"`
	RegistrationID string `json:"registration_id"`
	Error          string `json:"error"`
}

// Response is a parsed 200 reply from the gateway.
type Response struct {
	MulticastID  int64    `json:"multicast_id"`
	Success      int      `json:"success"`
	Failure      int      `json:"failure"`
	CanonicalIDs int      `json:"canonical_ids"`
	Results      []Result `json:"results"`

	// RetryAfter is the Retry-After response header when the gateway sent
	// one; it applies to any retries scheduled out of this response.
	RetryAfter *time.Duration `json:"-"`
}

// Client talks to the GCM HTTP connection server. It owns transport and
// response parsing only; classifying per-recipient outcomes is the
// classifier's job and scheduling retries is the scheduler's.
type Client struct {
	url        string
	httpClient *http.Client
}

// NewClient creates a client for the given send endpoint (DefaultSendURL in
// production). Redirects are not followed: the gateway never redirects, so a
// 3xx means something is off and we want to see it.
func NewClient(url string) *Client {
	if url == "" {
		url = DefaultSendURL
	}
	return &Client{
		url: url,
		httpClient: &http.Client{
			Timeout: requestTimeout,
			CheckRedirect: func(req *http.Request, via []*http.Request) error {
				return http.ErrUseLastResponse
			},
		},
	}
}

func (m *Message) validate() error {
	if len(m.RegistrationIDs) < 1 || len(m.RegistrationIDs) > MaxRecipients {
		return &InvalidArgumentError{
			Field:  "registration_ids",
			Reason: fmt.Sprintf("must contain 1 to %d ids, got %d", MaxRecipients, len(m.RegistrationIDs)),
		}
	}
	if m.TimeToLive != nil && (*m.TimeToLive < 0 || *m.TimeToLive > MaxTimeToLive) {
		return &InvalidArgumentError{
			Field:  "time_to_live",
			Reason: fmt.Sprintf("must be in [0, %d], got %d", MaxTimeToLive, *m.TimeToLive),
		}
	}
	return nil
}

// Send issues exactly one request to the gateway for the given batch and
// returns the parsed per-recipient results.
//
// Failure modes map onto the error taxonomy:
//   - invalid arguments        -> *InvalidArgumentError, no request issued
//   - HTTP 400                 -> ErrBadRequest (whole batch malformed)
//   - HTTP 401                 -> ErrAuthenticationFailed
//   - HTTP 5xx                 -> *GatewayUnavailableError (batch retryable)
//   - network/TLS/timeout      -> *TransportError
func (c *Client) Send(ctx context.Context, apiKey string, msg Message) (*Response, error) {
	if err := msg.validate(); err != nil {
		return nil, err
	}

	req := sendRequest{
		RegistrationIDs:       msg.RegistrationIDs,
		CollapseKey:           msg.CollapseKey,
		DelayWhileIdle:        msg.DelayWhileIdle,
		TimeToLive:            msg.TimeToLive,
		RestrictedPackageName: msg.RestrictedPackageName,
		DryRun:                msg.DryRun,
	}
	// An empty data map means "no payload", same as absent.
	if len(msg.Data) > 0 {
		req.Data = msg.Data
	}

	body, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("marshal request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.url, bytes.NewReader(body))
	if err != nil {
		return nil, &TransportError{Op: "build request", Err: err}
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Authorization", "key="+apiKey)

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return nil, &TransportError{Op: "send", Err: err}
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBody+1))
	if err != nil {
		return nil, &TransportError{Op: "read response", Err: err}
	}
	if len(respBody) > maxResponseBody {
		return nil, &TransportError{Op: "read response", Err: fmt.Errorf("response exceeds %d bytes", maxResponseBody)}
	}

	switch {
	case resp.StatusCode == http.StatusOK:
		parsed := &Response{}
		if err := json.Unmarshal(respBody, parsed); err != nil {
			return nil, &TransportError{Op: "decode response", Err: err}
		}
		parsed.RetryAfter = parseRetryAfter(resp.Header)
		return parsed, nil

	case resp.StatusCode == http.StatusBadRequest:
		log.Printf("[GCM] Bad request: %s", respBody)
		return nil, ErrBadRequest

	case resp.StatusCode == http.StatusUnauthorized:
		return nil, ErrAuthenticationFailed

	case resp.StatusCode >= 500 && resp.StatusCode <= 599:
		return nil, &GatewayUnavailableError{
			StatusCode: resp.StatusCode,
			RetryAfter: parseRetryAfter(resp.Header),
		}

	default:
		return nil, fmt.Errorf("gcm: unexpected status code %d", resp.StatusCode)
	}
}

// parseRetryAfter reads a Retry-After header in delay-seconds form. The
// gateway does not use the HTTP-date form; an unparseable value is ignored.
func parseRetryAfter(h http.Header) *time.Duration {
	v := h.Get("Retry-After")
	if v == "" {
		return nil
	}
	secs, err := strconv.Atoi(v)
	if err != nil {
		return nil
	}
	d := time.Duration(secs) * time.Second
	return &d
}
