// Package handler serves the search API over the snapshot held in a
// live.Holder.
package handler

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/Adithya-Monish-Kumar-K/docsearch/internal/analytics"
	"github.com/Adithya-Monish-Kumar-K/docsearch/internal/searcher/cache"
	"github.com/Adithya-Monish-Kumar-K/docsearch/internal/searcher/executor"
	"github.com/Adithya-Monish-Kumar-K/docsearch/internal/searcher/live"
	"github.com/Adithya-Monish-Kumar-K/docsearch/internal/searcher/parser"
	apperrors "github.com/Adithya-Monish-Kumar-K/docsearch/pkg/errors"
	"github.com/Adithya-Monish-Kumar-K/docsearch/pkg/logger"
	"github.com/Adithya-Monish-Kumar-K/docsearch/pkg/metrics"
	"github.com/Adithya-Monish-Kumar-K/docsearch/pkg/middleware"
)

type SearchExecutor interface {
	Execute(ctx context.Context, plan *parser.QueryPlan, limit int) (*executor.SearchResult, error)
}

// Reloader swaps a fresh snapshot into the holder.
type Reloader interface {
	Reload(ctx context.Context) (*live.Loaded, error)
}

type Config struct {
	DefaultLimit int
	MaxResults   int
}

type Handler struct {
	holder   *live.Holder
	executor SearchExecutor
	cache    *cache.QueryCache
	reloader Reloader
	tracker  analytics.Tracker
	metrics  *metrics.Metrics
	cfg      Config
	logger   *slog.Logger
}

// New creates a Handler. queryCache, reloader, tracker and m may be nil;
// the matching features are then disabled.
func New(
	holder *live.Holder,
	exec SearchExecutor,
	queryCache *cache.QueryCache,
	reloader Reloader,
	tracker analytics.Tracker,
	m *metrics.Metrics,
	cfg Config,
) *Handler {
	if cfg.MaxResults <= 0 {
		cfg.MaxResults = 100
	}
	if cfg.DefaultLimit <= 0 || cfg.DefaultLimit > cfg.MaxResults {
		cfg.DefaultLimit = min(10, cfg.MaxResults)
	}
	return &Handler{
		holder:   holder,
		executor: exec,
		cache:    queryCache,
		reloader: reloader,
		tracker:  tracker,
		metrics:  m,
		cfg:      cfg,
		logger:   slog.Default().With("component", "search-handler"),
	}
}

// Register mounts every route on mux.
func (h *Handler) Register(mux *http.ServeMux) {
	mux.HandleFunc("GET /api/v1/search", h.Search)
	mux.HandleFunc("GET /api/v1/terms/{term}", h.Term)
	mux.HandleFunc("GET /api/v1/titleterms/{term}", h.TitleTerm)
	mux.HandleFunc("GET /api/v1/documents/{id}", h.Document)
	mux.HandleFunc("GET /api/v1/index/stats", h.IndexStats)
	mux.HandleFunc("POST /api/v1/index/reload", h.Reload)
	mux.HandleFunc("GET /api/v1/cache/stats", h.CacheStats)
	mux.HandleFunc("POST /api/v1/cache/invalidate", h.CacheInvalidate)
}

func (h *Handler) Search(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	ctx := r.Context()
	log := logger.FromContext(ctx)

	query := r.URL.Query().Get("q")
	if query == "" {
		h.writeError(w, apperrors.New(apperrors.ErrInvalidInput, "query parameter 'q' is required"))
		return
	}
	limit, err := h.parseLimit(r)
	if err != nil {
		h.writeError(w, err)
		return
	}

	plan := parser.Parse(query)
	if plan.Empty() {
		h.writeJSON(w, http.StatusOK, &executor.SearchResult{
			Query:     query,
			Version:   h.holder.Version(),
			Results:   []executor.Hit{},
			TermStats: map[string]int{},
		})
		return
	}

	var result *executor.SearchResult
	cacheHit := false
	if h.cache != nil {
		version := h.holder.Version()
		result, cacheHit, err = h.cache.GetOrCompute(ctx, version, plan, limit, func(ctx context.Context) (*executor.SearchResult, error) {
			return h.executor.Execute(ctx, plan, limit)
		})
	} else {
		result, err = h.executor.Execute(ctx, plan, limit)
	}
	if err != nil {
		log.Error("search execution failed", "query", query, "error", err)
		h.observeSearch("error", cacheHit, time.Since(start), 0)
		h.writeError(w, err)
		return
	}

	elapsed := time.Since(start)
	resultType := "hit"
	if result.TotalHits == 0 {
		resultType = "zero_result"
	}
	h.observeSearch(resultType, cacheHit, elapsed, len(result.Results))

	log.Info("search completed",
		"query", query,
		"version", result.Version,
		"total_hits", result.TotalHits,
		"returned", len(result.Results),
		"cache_hit", cacheHit,
		"latency_ms", elapsed.Milliseconds(),
	)
	if h.tracker != nil {
		eventType := analytics.EventSearch
		if result.TotalHits == 0 {
			eventType = analytics.EventZeroResult
		}
		h.tracker.Track(analytics.QueryEvent{
			Type:      eventType,
			Query:     query,
			Terms:     plan.Terms,
			Version:   result.Version,
			TotalHits: result.TotalHits,
			Returned:  len(result.Results),
			LatencyMs: elapsed.Milliseconds(),
			CacheHit:  cacheHit,
			Timestamp: time.Now().UTC(),
			RequestID: middleware.GetRequestID(ctx),
		})
	}

	h.writeJSON(w, http.StatusOK, result)
}

type termResponse struct {
	Term    string `json:"term"`
	Version string `json:"version"`
	IDs     []int  `json:"ids"`
}

// Term returns the raw posting list of a text term.
func (h *Handler) Term(w http.ResponseWriter, r *http.Request) {
	loaded, err := h.holder.Current()
	if err != nil {
		h.writeError(w, err)
		return
	}
	term := r.PathValue("term")
	h.writeJSON(w, http.StatusOK, termResponse{
		Term:    term,
		Version: loaded.Version,
		IDs:     loaded.Index.Lookup(term),
	})
}

// TitleTerm returns the raw posting list of a title term.
func (h *Handler) TitleTerm(w http.ResponseWriter, r *http.Request) {
	loaded, err := h.holder.Current()
	if err != nil {
		h.writeError(w, err)
		return
	}
	term := r.PathValue("term")
	h.writeJSON(w, http.StatusOK, termResponse{
		Term:    term,
		Version: loaded.Version,
		IDs:     loaded.Index.LookupTitleTerm(term),
	})
}

func (h *Handler) Document(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.Atoi(r.PathValue("id"))
	if err != nil {
		h.writeError(w, apperrors.New(apperrors.ErrInvalidInput, "document id must be an integer"))
		return
	}
	loaded, err := h.holder.Current()
	if err != nil {
		h.writeError(w, err)
		return
	}
	info, err := loaded.Index.Document(id)
	if err != nil {
		h.writeError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, info)
}

type indexStats struct {
	Version    string    `json:"version"`
	Source     string    `json:"source"`
	Checksum   string    `json:"checksum,omitempty"`
	LoadedAt   time.Time `json:"loaded_at"`
	Documents  int       `json:"documents"`
	Terms      int       `json:"terms"`
	TitleTerms int       `json:"title_terms"`
	Reloads    int64     `json:"reloads"`
}

func (h *Handler) IndexStats(w http.ResponseWriter, r *http.Request) {
	loaded, err := h.holder.Current()
	if err != nil {
		h.writeError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, indexStats{
		Version:    loaded.Version,
		Source:     loaded.Source,
		Checksum:   loaded.Checksum,
		LoadedAt:   loaded.LoadedAt,
		Documents:  loaded.Index.DocCount(),
		Terms:      loaded.Index.TermCount(),
		TitleTerms: loaded.Index.TitleTermCount(),
		Reloads:    h.holder.Swaps(),
	})
}

// Reload asks the reloader for a fresh snapshot. An unchanged snapshot is
// reported as such and is not an error.
func (h *Handler) Reload(w http.ResponseWriter, r *http.Request) {
	if h.reloader == nil {
		h.writeJSON(w, http.StatusServiceUnavailable, map[string]string{"error": "reloading is disabled"})
		return
	}
	previous := h.holder.Version()
	loaded, err := h.reloader.Reload(r.Context())
	if err != nil {
		logger.FromContext(r.Context()).Error("snapshot reload failed", "error", err)
		h.writeError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, map[string]any{
		"version":  loaded.Version,
		"previous": previous,
		"changed":  loaded.Version != previous,
		"source":   loaded.Source,
	})
}

func (h *Handler) CacheStats(w http.ResponseWriter, r *http.Request) {
	if h.cache == nil {
		h.writeJSON(w, http.StatusOK, map[string]string{"status": "disabled"})
		return
	}
	stats := h.cache.Stats()
	total := stats.Hits + stats.Misses
	var hitRate float64
	if total > 0 {
		hitRate = float64(stats.Hits) / float64(total) * 100
	}
	h.writeJSON(w, http.StatusOK, map[string]any{
		"hits":     stats.Hits,
		"misses":   stats.Misses,
		"errors":   stats.Errors,
		"total":    total,
		"hit_rate": strconv.FormatFloat(hitRate, 'f', 1, 64) + "%",
		"breaker":  stats.Breaker,
	})
}

// CacheInvalidate drops cached results. With ?version= only that
// snapshot's entries go.
func (h *Handler) CacheInvalidate(w http.ResponseWriter, r *http.Request) {
	if h.cache == nil {
		h.writeJSON(w, http.StatusServiceUnavailable, map[string]string{"error": "caching is disabled"})
		return
	}
	deleted, err := h.cache.Invalidate(r.Context(), r.URL.Query().Get("version"))
	if err != nil {
		h.logger.Error("cache invalidation failed", "error", err)
		h.writeError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, map[string]any{"status": "invalidated", "deleted": deleted})
}

func (h *Handler) parseLimit(r *http.Request) (int, error) {
	raw := r.URL.Query().Get("limit")
	if raw == "" {
		return h.cfg.DefaultLimit, nil
	}
	limit, err := strconv.Atoi(raw)
	if err != nil || limit < 1 {
		return 0, apperrors.Newf(apperrors.ErrInvalidInput, "limit must be a positive integer, got %q", raw)
	}
	return min(limit, h.cfg.MaxResults), nil
}

func (h *Handler) observeSearch(resultType string, cacheHit bool, elapsed time.Duration, returned int) {
	if h.metrics == nil {
		return
	}
	cacheStatus := "miss"
	if cacheHit {
		cacheStatus = "hit"
	}
	h.metrics.SearchQueriesTotal.WithLabelValues(resultType).Inc()
	h.metrics.SearchLatency.WithLabelValues(cacheStatus).Observe(elapsed.Seconds())
	if resultType != "error" {
		h.metrics.SearchResultsCount.Observe(float64(returned))
	}
}

func (h *Handler) writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		h.logger.Error("failed to write response", "error", err)
	}
}

func (h *Handler) writeError(w http.ResponseWriter, err error) {
	if errors.Is(err, context.DeadlineExceeded) {
		err = fmt.Errorf("%w: %v", apperrors.ErrTimeout, err)
	}
	h.writeJSON(w, apperrors.HTTPStatusCode(err), map[string]string{"error": apperrors.PublicMessage(err)})
}
