package middleware

import (
	"net/http"
	"strings"

	"golang.org/x/time/rate"

	apperrors "github.com/Adithya-Monish-Kumar-K/docsearch/pkg/errors"
)

// RateLimit rejects requests beyond a process-wide token bucket. Health
// probes are never limited. A non-positive limit disables the middleware.
func RateLimit(limit float64, burst int) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		if limit <= 0 {
			return next
		}
		if burst <= 0 {
			burst = 1
		}
		limiter := rate.NewLimiter(rate.Limit(limit), burst)
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if strings.HasPrefix(r.URL.Path, "/health") {
				next.ServeHTTP(w, r)
				return
			}
			if !limiter.Allow() {
				w.Header().Set("Retry-After", "1")
				w.Header().Set("Content-Type", "application/json")
				w.WriteHeader(apperrors.HTTPStatusCode(apperrors.ErrRateLimited))
				w.Write([]byte(`{"error":"` + apperrors.ErrRateLimited.Error() + `"}`))
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
