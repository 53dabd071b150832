package handler

import (
	"encoding/json"
	"io"
	"log"
	"net/http"
	"strings"

	"gcmrelay/internal/httputil"
	"gcmrelay/internal/model"
	"gcmrelay/internal/service"
)

// RegisterHandler exposes the device registration endpoints. Two wire
// flavors exist for compatibility with different client generations:
// v1 answers with bare HTTP status codes, v2 always answers 200 with a
// {"result": ..., "reason": ...} body. The generations also hash
// differently: v1 clients compute the X-Hash over the hex form of the inner
// timestamp digest, v2 clients over its raw bytes.
type RegisterHandler struct {
	svc *service.RegisterService
}

func NewRegisterHandler(svc *service.RegisterService) *RegisterHandler {
	return &RegisterHandler{svc: svc}
}

type registerResult struct {
	Result string `json:"result"`
	Reason string `json:"reason,omitempty"`
}

// readRegistration pulls the raw body (needed verbatim for the hash check)
// and decodes it. Returns a Reason* string when the request is unusable.
func readRegistration(r *http.Request) (*model.RegisterRequest, []byte, string) {
	if !strings.HasPrefix(r.Header.Get("Content-Type"), "application/json") {
		return nil, nil, service.ReasonBadJSONFormat
	}

	body, err := io.ReadAll(r.Body)
	if err != nil {
		return nil, nil, service.ReasonBadJSONFormat
	}

	var req model.RegisterRequest
	if err := json.Unmarshal(body, &req); err != nil {
		return nil, nil, service.ReasonBadJSONFormat
	}
	if req.UUID == "" || req.Timestamp == "" || req.RegistrationID == "" || req.Package == "" {
		return nil, nil, service.ReasonMissingKey
	}

	return &req, body, ""
}

// RegisterV1 is the status-code flavor: 400 for bad input, 404 for a failed
// integrity check or unknown app, 409 for a duplicate, 200 on success.
func (h *RegisterHandler) RegisterV1(w http.ResponseWriter, r *http.Request) {
	req, body, reason := readRegistration(r)
	if reason != "" {
		w.WriteHeader(http.StatusBadRequest)
		return
	}

	clientHash := r.Header.Get("X-Hash")
	if clientHash == "" {
		w.WriteHeader(http.StatusBadRequest)
		return
	}
	if !service.VerifyHashV1(body, req.Timestamp, clientHash) {
		w.WriteHeader(http.StatusNotFound)
		return
	}

	reason, err := h.svc.Register(r.Context(), req)
	if err != nil {
		log.Printf("[Register] v1 storage error: %v", err)
		w.WriteHeader(http.StatusInternalServerError)
		return
	}

	switch reason {
	case "":
		w.WriteHeader(http.StatusOK)
	case service.ReasonUnknownApp:
		w.WriteHeader(http.StatusNotFound)
	case service.ReasonAlreadyRegistered:
		w.WriteHeader(http.StatusConflict)
	default:
		w.WriteHeader(http.StatusBadRequest)
	}
}

// RegisterV2 is the JSON-result flavor: always 200, outcome in the body, so
// older client libraries that choke on non-200 statuses still get a parse-
// able answer.
func (h *RegisterHandler) RegisterV2(w http.ResponseWriter, r *http.Request) {
	req, body, reason := readRegistration(r)
	if reason != "" {
		httputil.WriteJSON(w, http.StatusOK, registerResult{Result: "Fail", Reason: reason})
		return
	}

	clientHash := r.Header.Get("X-Hash")
	if clientHash == "" {
		log.Printf("[Register] Client did not send hash. User-Agent: %s", r.UserAgent())
		httputil.WriteJSON(w, http.StatusOK, registerResult{Result: "Fail", Reason: service.ReasonMissingHash})
		return
	}
	if !service.VerifyHash(body, req.Timestamp, clientHash) {
		log.Printf("[Register] Hash mismatch for package %s", req.Package)
		httputil.WriteJSON(w, http.StatusOK, registerResult{Result: "Fail", Reason: service.MismatchReason()})
		return
	}

	reason, err := h.svc.Register(r.Context(), req)
	if err != nil {
		log.Printf("[Register] v2 storage error: %v", err)
		httputil.WriteInternalError(w, "registration failed")
		return
	}
	if reason != "" {
		httputil.WriteJSON(w, http.StatusOK, registerResult{Result: "Fail", Reason: reason})
		return
	}

	httputil.WriteJSON(w, http.StatusOK, registerResult{Result: "OK"})
}
