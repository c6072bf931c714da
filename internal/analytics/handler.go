package analytics

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	apperrors "github.com/Adithya-Monish-Kumar-K/docsearch/pkg/errors"
)

const (
	maxTop         = 100
	defaultHistory = 24 * time.Hour
)

// StatsSource is satisfied by *Aggregator.
type StatsSource interface {
	StatsTop(n int) Stats
}

// HistorySource is satisfied by *Store.
type HistorySource interface {
	History(ctx context.Context, since time.Time) ([]Summary, error)
}

type Handler struct {
	source  StatsSource
	history HistorySource
	logger  *slog.Logger
}

func NewHandler(source StatsSource) *Handler {
	return &Handler{
		source: source,
		logger: slog.Default().With("component", "analytics-handler"),
	}
}

// Stats serves GET /api/v1/analytics/stats[?top=N]. top bounds the query
// and term lists and defaults to 10.
func (h *Handler) Stats(w http.ResponseWriter, r *http.Request) {
	top := defaultTop
	if raw := r.URL.Query().Get("top"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 1 || n > maxTop {
			h.writeJSON(w, apperrors.HTTPStatusCode(apperrors.ErrInvalidInput), map[string]string{
				"error": "top must be an integer between 1 and " + strconv.Itoa(maxTop),
			})
			return
		}
		top = n
	}
	h.writeJSON(w, http.StatusOK, h.source.StatsTop(top))
}

// WithHistory enables the History route.
func (h *Handler) WithHistory(history HistorySource) *Handler {
	h.history = history
	return h
}

// History serves GET /api/v1/analytics/history[?window=24h], the saved
// snapshot summaries inside the window.
func (h *Handler) History(w http.ResponseWriter, r *http.Request) {
	if h.history == nil {
		h.writeJSON(w, http.StatusServiceUnavailable, map[string]string{"error": "stats history requires postgres"})
		return
	}
	window := defaultHistory
	if raw := r.URL.Query().Get("window"); raw != "" {
		d, err := time.ParseDuration(raw)
		if err != nil || d <= 0 {
			h.writeJSON(w, apperrors.HTTPStatusCode(apperrors.ErrInvalidInput), map[string]string{
				"error": "window must be a positive duration such as 90m or 24h",
			})
			return
		}
		window = d
	}
	rows, err := h.history.History(r.Context(), time.Now().Add(-window))
	if err != nil {
		h.logger.Error("reading stats history failed", "error", err)
		h.writeJSON(w, http.StatusInternalServerError, map[string]string{"error": apperrors.PublicMessage(err)})
		return
	}
	h.writeJSON(w, http.StatusOK, map[string]any{"window": window.String(), "snapshots": rows})
}

func (h *Handler) writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		h.logger.Error("failed to write analytics response", "error", err)
	}
}
