package middleware

import (
	"context"
	"log/slog"
	"net/http"
	"sync"
	"time"

	apperrors "github.com/Adithya-Monish-Kumar-K/docsearch/pkg/errors"
)

// Timeout bounds every request by d. A handler that has not started its
// response when d passes is abandoned and the client gets the ErrTimeout
// status; one that has started is allowed to finish.
func Timeout(d time.Duration) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		if d <= 0 {
			return next
		}
		body := []byte(`{"error":"` + apperrors.ErrTimeout.Error() + `"}`)
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx, cancel := context.WithTimeout(r.Context(), d)
			defer cancel()

			tw := &timeoutWriter{w: w, header: w.Header().Clone()}
			inner := r.WithContext(ctx)
			done := make(chan struct{})
			go func() {
				defer close(done)
				next.ServeHTTP(tw, inner)
			}()

			select {
			case <-done:
				r.Pattern = inner.Pattern
				return
			case <-ctx.Done():
			}

			tw.mu.Lock()
			if tw.started {
				tw.mu.Unlock()
				<-done
				r.Pattern = inner.Pattern
				return
			}
			tw.abandoned = true
			tw.mu.Unlock()

			slog.Warn("request timed out", "method", r.Method, "path", r.URL.Path, "timeout", d)
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(apperrors.HTTPStatusCode(apperrors.ErrTimeout))
			w.Write(body)
		})
	}
}

// timeoutWriter gives the handler its own header map and turns its writes
// into no-ops once the request has been abandoned.
type timeoutWriter struct {
	w      http.ResponseWriter
	header http.Header

	mu        sync.Mutex
	started   bool
	abandoned bool
}

func (tw *timeoutWriter) Header() http.Header { return tw.header }

func (tw *timeoutWriter) WriteHeader(code int) {
	tw.mu.Lock()
	defer tw.mu.Unlock()
	tw.start(code)
}

func (tw *timeoutWriter) Write(b []byte) (int, error) {
	tw.mu.Lock()
	defer tw.mu.Unlock()
	if tw.abandoned {
		return 0, http.ErrHandlerTimeout
	}
	tw.start(http.StatusOK)
	return tw.w.Write(b)
}

// start must be called with mu held.
func (tw *timeoutWriter) start(code int) {
	if tw.abandoned || tw.started {
		return
	}
	tw.started = true
	dst := tw.w.Header()
	for k, v := range tw.header {
		dst[k] = v
	}
	tw.w.WriteHeader(code)
}
