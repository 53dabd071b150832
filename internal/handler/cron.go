package handler

import (
	"log"
	"net/http"
	"time"

	"gcmrelay/internal/httputil"
	"gcmrelay/internal/service"
)

// CronHandler hosts the scheduled maintenance endpoints, hit by an external
// scheduler once a day.
type CronHandler struct {
	stats *service.StatsService
}

func NewCronHandler(stats *service.StatsService) *CronHandler {
	return &CronHandler{stats: stats}
}

// DailyAggregate rolls the registration counters into today's per-app rows
// GET /cron/daily
func (h *CronHandler) DailyAggregate(w http.ResponseWriter, r *http.Request) {
	if err := h.stats.AggregateDaily(r.Context(), time.Now()); err != nil {
		log.Printf("[Cron] Daily aggregation failed: %v", err)
		httputil.WriteInternalError(w, "Aggregation failed")
		return
	}
	httputil.WriteJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}
