package handler

import (
	"encoding/json"
	"errors"
	"log"
	"net/http"

	"github.com/go-chi/chi/v5"

	"gcmrelay/internal/gcm"
	"gcmrelay/internal/httputil"
	"gcmrelay/internal/model"
	"gcmrelay/internal/queue"
	"gcmrelay/internal/repository"
)

// PushHandler accepts admin push requests and enqueues them for the
// delivery workers. The HTTP request never talks to the GCM gateway
// directly.
type PushHandler struct {
	apps      repository.AppRepository
	devices   repository.DeviceRepository
	publisher queue.Publisher
}

func NewPushHandler(apps repository.AppRepository, devices repository.DeviceRepository, publisher queue.Publisher) *PushHandler {
	return &PushHandler{apps: apps, devices: devices, publisher: publisher}
}

type pushRequest struct {
	RegistrationIDs       []string          `json:"registration_ids,omitempty"`
	Data                  map[string]string `json:"data,omitempty"`
	CollapseKey           string            `json:"collapse_key,omitempty"`
	DelayWhileIdle        *bool             `json:"delay_while_idle,omitempty"`
	TimeToLive            *int              `json:"time_to_live,omitempty"`
	RestrictedPackageName string            `json:"restricted_package_name,omitempty"`
	DryRun                bool              `json:"dry_run,omitempty"`
}

// Send enqueues a batch push for an app
// POST /admin/apps/{package}/push
//
// When registration_ids is absent the batch targets every enabled device of
// the app, capped at the gateway's batch limit.
func (h *PushHandler) Send(w http.ResponseWriter, r *http.Request) {
	pkg := chi.URLParam(r, "package")

	app, err := h.apps.GetByPackage(r.Context(), pkg)
	if err != nil {
		if errors.Is(err, model.ErrAppNotFound) {
			httputil.WriteNotFound(w, "App not found")
			return
		}
		httputil.WriteInternalError(w, "Failed to load app")
		return
	}

	var req pushRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		httputil.WriteBadRequest(w, "Invalid request body")
		return
	}

	recipients := req.RegistrationIDs
	if len(recipients) == 0 {
		recipients, err = h.devices.ListEnabledIDs(r.Context(), pkg, gcm.MaxRecipients)
		if err != nil {
			httputil.WriteInternalError(w, "Failed to load recipients")
			return
		}
	}
	if len(recipients) == 0 {
		httputil.WriteBadRequest(w, "No enabled devices to push to")
		return
	}
	if len(recipients) > gcm.MaxRecipients {
		httputil.WriteBadRequest(w, "Too many recipients in one batch")
		return
	}

	task := queue.DeliveryTask{
		APIKey:                app.APIKey,
		RegistrationIDs:       recipients,
		TryCount:              0,
		Data:                  req.Data,
		CollapseKey:           req.CollapseKey,
		DelayWhileIdle:        req.DelayWhileIdle,
		TimeToLive:            req.TimeToLive,
		RestrictedPackageName: req.RestrictedPackageName,
		DryRun:                req.DryRun,
	}
	if err := h.publisher.EnqueueDelivery(r.Context(), task, 0); err != nil {
		log.Printf("[Push] Failed to enqueue delivery for %s: %v", pkg, err)
		httputil.WriteInternalError(w, "Failed to enqueue push")
		return
	}

	httputil.WriteJSON(w, http.StatusAccepted, map[string]interface{}{
		"status":     "queued",
		"recipients": len(recipients),
	})
}
