package middleware

import (
	"crypto/subtle"
	"net/http"

	"gcmrelay/internal/httputil"
)

// CronHeader carries the shared secret the external scheduler sends with
// every scheduled-job request.
const CronHeader = "X-Cron-Secret"

// CronAuthMiddleware guards the scheduled-job endpoints with a shared
// secret. An empty configured secret refuses every request rather than
// leaving the endpoints open.
func CronAuthMiddleware(secret string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if secret == "" {
				httputil.WriteUnauthorized(w, "Cron endpoints are not configured")
				return
			}
			sent := r.Header.Get(CronHeader)
			if subtle.ConstantTimeCompare([]byte(sent), []byte(secret)) != 1 {
				httputil.WriteUnauthorized(w, "Missing or invalid cron secret")
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
