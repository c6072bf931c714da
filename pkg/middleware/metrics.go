// Package middleware provides reusable HTTP middleware for request IDs, CORS,
// Prometheus metrics, rate limiting and request timeouts.
package middleware

import (
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/Adithya-Monish-Kumar-K/docsearch/pkg/metrics"
)

// Metrics records request count, latency and in-flight requests. The path
// label is the ServeMux pattern that served the request, so /api/v1/terms/numpy
// and /api/v1/terms/cache share one series.
func Metrics(m *metrics.Metrics) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			m.HTTPRequestsInFlight.Inc()
			defer m.HTTPRequestsInFlight.Dec()

			start := time.Now()
			sw := &statusWriter{ResponseWriter: w, status: http.StatusOK}
			next.ServeHTTP(sw, r)
			elapsed := time.Since(start)

			// ServeMux sets Pattern on the request it was given; middleware
			// that derives a new request must copy it back (see Timeout).
			route := routeLabel(r)
			m.HTTPRequestsTotal.WithLabelValues(r.Method, route, strconv.Itoa(sw.status)).Inc()
			m.HTTPRequestDuration.WithLabelValues(r.Method, route).Observe(elapsed.Seconds())
		})
	}
}

type statusWriter struct {
	http.ResponseWriter
	status  int
	written bool
}

func (sw *statusWriter) WriteHeader(code int) {
	if !sw.written {
		sw.status = code
		sw.written = true
	}
	sw.ResponseWriter.WriteHeader(code)
}

func (sw *statusWriter) Write(b []byte) (int, error) {
	sw.written = true
	return sw.ResponseWriter.Write(b)
}

// Unwrap lets http.ResponseController reach the underlying writer.
func (sw *statusWriter) Unwrap() http.ResponseWriter { return sw.ResponseWriter }

func routeLabel(r *http.Request) string {
	if r.Pattern == "" {
		return normalizePath(r.URL.Path)
	}
	if _, path, ok := strings.Cut(r.Pattern, " "); ok {
		return path
	}
	return r.Pattern
}

// unmatchedRoute labels requests no pattern served, such as 404s from
// scanners, so arbitrary paths cannot create new series.
const unmatchedRoute = "other"

// parameterised lists the prefixes whose last segment is collapsed when no
// mux pattern is available.
var parameterised = []string{
	"/api/v1/terms/",
	"/api/v1/titleterms/",
	"/api/v1/documents/",
}

func normalizePath(path string) string {
	for _, prefix := range parameterised {
		if len(path) > len(prefix) && strings.HasPrefix(path, prefix) {
			return prefix + ":param"
		}
	}
	return unmatchedRoute
}
