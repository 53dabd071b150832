package handler

import (
	"net/http"
	"strconv"

	"gcmrelay/internal/httputil"
	"gcmrelay/internal/service"
)

// StatsHandler serves the registration dashboard data.
type StatsHandler struct {
	svc *service.StatsService
}

func NewStatsHandler(svc *service.StatsService) *StatsHandler {
	return &StatsHandler{svc: svc}
}

// RegisterSeries returns per-app daily registration counts
// GET /admin/stats?days=7
func (h *StatsHandler) RegisterSeries(w http.ResponseWriter, r *http.Request) {
	days := 7
	if v := r.URL.Query().Get("days"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 && n <= 90 {
			days = n
		}
	}

	series, err := h.svc.RegisterSeries(r.Context(), days)
	if err != nil {
		httputil.WriteInternalError(w, "Failed to load stats")
		return
	}

	httputil.WriteJSON(w, http.StatusOK, map[string]interface{}{"series": series})
}
