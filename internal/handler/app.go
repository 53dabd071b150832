package handler

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"gcmrelay/internal/httputil"
	"gcmrelay/internal/model"
	"gcmrelay/internal/repository"
)

const (
	defaultDeviceLimit = 50
	maxDeviceLimit     = 500
)

// AppHandler exposes the admin app registry endpoints.
type AppHandler struct {
	apps    repository.AppRepository
	devices repository.DeviceRepository
}

func NewAppHandler(apps repository.AppRepository, devices repository.DeviceRepository) *AppHandler {
	return &AppHandler{apps: apps, devices: devices}
}

// Create registers a new client app
// POST /admin/apps
func (h *AppHandler) Create(w http.ResponseWriter, r *http.Request) {
	var req model.CreateAppRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		httputil.WriteBadRequest(w, "Invalid request body")
		return
	}
	if req.Package == "" || req.Key == "" {
		httputil.WriteBadRequest(w, "Package and key are required")
		return
	}

	exists, err := h.apps.Exists(r.Context(), req.Package)
	if err != nil {
		httputil.WriteInternalError(w, "Failed to check app")
		return
	}
	if exists {
		httputil.WriteConflict(w, "App already registered")
		return
	}

	app := &model.GcmApp{
		Package:     req.Package,
		DisplayName: req.Name,
		SenderID:    req.Sender,
		APIKey:      req.Key,
	}
	if err := h.apps.Create(r.Context(), app); err != nil {
		httputil.WriteInternalError(w, "Failed to create app")
		return
	}

	httputil.WriteJSON(w, http.StatusCreated, app)
}

// List returns all registered apps
// GET /admin/apps
func (h *AppHandler) List(w http.ResponseWriter, r *http.Request) {
	apps, err := h.apps.List(r.Context())
	if err != nil {
		httputil.WriteInternalError(w, "Failed to list apps")
		return
	}
	httputil.WriteJSON(w, http.StatusOK, map[string]interface{}{"apps": apps})
}

// ListDevices returns an app's devices, newest first
// GET /admin/apps/{package}/devices?limit=&offset=
func (h *AppHandler) ListDevices(w http.ResponseWriter, r *http.Request) {
	pkg := chi.URLParam(r, "package")

	if _, err := h.apps.GetByPackage(r.Context(), pkg); err != nil {
		if errors.Is(err, model.ErrAppNotFound) {
			httputil.WriteNotFound(w, "App not found")
			return
		}
		httputil.WriteInternalError(w, "Failed to load app")
		return
	}

	limit := defaultDeviceLimit
	if v := r.URL.Query().Get("limit"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 && n <= maxDeviceLimit {
			limit = n
		}
	}
	offset := 0
	if v := r.URL.Query().Get("offset"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n >= 0 {
			offset = n
		}
	}

	devices, err := h.devices.ListByPackage(r.Context(), pkg, limit, offset)
	if err != nil {
		httputil.WriteInternalError(w, "Failed to list devices")
		return
	}
	if devices == nil {
		devices = []model.Device{}
	}

	httputil.WriteJSON(w, http.StatusOK, map[string]interface{}{
		"devices": devices,
		"limit":   limit,
		"offset":  offset,
	})
}
