package http

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"gcmrelay/internal/handler"
	"gcmrelay/internal/httputil"
	authmw "gcmrelay/internal/transport/http/middleware"
)

// RouterConfig holds the dependencies needed to create routes
type RouterConfig struct {
	AuthHandler     *handler.AuthHandler
	RegisterHandler *handler.RegisterHandler
	AppHandler      *handler.AppHandler
	PushHandler     *handler.PushHandler
	StatsHandler    *handler.StatsHandler
	CronHandler     *handler.CronHandler
	JWTSecret       string
	CronSecret      string
}

// NewRouter creates and configures a new Chi router with all route groups
func NewRouter(cfg RouterConfig) chi.Router {
	r := chi.NewRouter()

	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.RequestID)

	// Health check endpoint (useful for deployment/monitoring)
	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		httputil.WriteJSON(w, 200, map[string]string{"status": "ok"})
	})

	// Device-facing registration, two wire generations
	r.Post("/api/v1/register", cfg.RegisterHandler.RegisterV1)
	r.Post("/api/v2/register", cfg.RegisterHandler.RegisterV2)

	// Operator surface
	r.Route("/admin", func(r chi.Router) {
		// Login is the only public admin route
		r.Post("/login", cfg.AuthHandler.Login)

		// Everything else requires authentication
		r.Group(func(r chi.Router) {
			r.Use(authmw.AuthMiddleware(cfg.JWTSecret))

			r.Post("/apps", cfg.AppHandler.Create)
			r.Get("/apps", cfg.AppHandler.List)
			r.Get("/apps/{package}/devices", cfg.AppHandler.ListDevices)
			r.Post("/apps/{package}/push", cfg.PushHandler.Send)
			r.Get("/stats", cfg.StatsHandler.RegisterSeries)
		})
	})

	// Scheduled jobs, triggered by an external scheduler carrying the
	// shared cron secret
	r.With(authmw.CronAuthMiddleware(cfg.CronSecret)).Get("/cron/daily", cfg.CronHandler.DailyAggregate)

	return r
}
