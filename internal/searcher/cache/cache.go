// Package cache stores search results in Redis, keyed by snapshot version
// and the canonical form of the query. Values are msgpack-encoded. Redis
// trouble never fails a search: a circuit breaker turns persistent errors
// into cache misses until Redis recovers.
package cache

import (
	"context"
	"crypto/sha256"
	"errors"
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/vmihailenco/msgpack/v5"
	"golang.org/x/sync/singleflight"

	"github.com/Adithya-Monish-Kumar-K/docsearch/internal/searcher/executor"
	"github.com/Adithya-Monish-Kumar-K/docsearch/internal/searcher/parser"
	"github.com/Adithya-Monish-Kumar-K/docsearch/pkg/config"
	"github.com/Adithya-Monish-Kumar-K/docsearch/pkg/metrics"
	pkgredis "github.com/Adithya-Monish-Kumar-K/docsearch/pkg/redis"
	"github.com/Adithya-Monish-Kumar-K/docsearch/pkg/resilience"
)

const (
	keyPrefix      = "search:"
	computeTimeout = 10 * time.Second
)

// Backend is the subset of pkg/redis.Client the cache uses.
type Backend interface {
	Get(ctx context.Context, key string) ([]byte, error)
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error
	FlushByPattern(ctx context.Context, pattern string) (int64, error)
}

// Stats is a point-in-time view of cache counters.
type Stats struct {
	Hits    int64  `json:"hits"`
	Misses  int64  `json:"misses"`
	Errors  int64  `json:"errors"`
	Breaker string `json:"breaker"`
}

type QueryCache struct {
	backend Backend
	ttl     time.Duration
	group   singleflight.Group
	breaker *resilience.CircuitBreaker
	metrics *metrics.Metrics
	logger  *slog.Logger
	hits    atomic.Int64
	misses  atomic.Int64
	errors  atomic.Int64
}

// New creates a QueryCache. m may be nil.
func New(backend Backend, cfg config.RedisConfig, m *metrics.Metrics) *QueryCache {
	c := &QueryCache{
		backend: backend,
		ttl:     cfg.CacheTTL,
		metrics: m,
		logger:  slog.Default().With("component", "query-cache"),
	}
	c.breaker = resilience.NewCircuitBreaker("redis-cache", resilience.CircuitBreakerConfig{
		FailureThreshold: 5,
		ResetTimeout:     10 * time.Second,
		OnStateChange: func(name string, _, to resilience.State) {
			if m != nil {
				m.CircuitBreakerState.WithLabelValues(name).Set(float64(to))
			}
		},
		// a client hanging up says nothing about Redis health
		IsFailure: func(err error) bool {
			return !errors.Is(err, context.Canceled)
		},
	})
	return c
}

// Get returns the cached result for plan under version. Any failure,
// including an open breaker, is reported as a miss.
func (c *QueryCache) Get(ctx context.Context, version string, plan *parser.QueryPlan, limit int) (*executor.SearchResult, bool) {
	key := BuildKey(version, plan, limit)
	var data []byte
	err := c.breaker.Execute(func() error {
		var err error
		data, err = c.backend.Get(ctx, key)
		if pkgredis.IsNilError(err) {
			return nil
		}
		return err
	})
	if err != nil {
		c.recordError("get", key, err)
	}
	if err != nil || data == nil {
		c.recordMiss()
		return nil, false
	}

	var result executor.SearchResult
	if err := msgpack.Unmarshal(data, &result); err != nil {
		c.logger.Error("cache decode failed", "key", key, "error", err)
		c.recordMiss()
		return nil, false
	}
	c.hits.Add(1)
	if c.metrics != nil {
		c.metrics.CacheHitsTotal.Inc()
	}
	c.logger.Debug("cache hit", "query", plan.RawQuery, "key", key)
	return &result, true
}

// Set stores result. Failures are logged and otherwise ignored.
func (c *QueryCache) Set(ctx context.Context, version string, plan *parser.QueryPlan, limit int, result *executor.SearchResult) {
	key := BuildKey(version, plan, limit)
	data, err := msgpack.Marshal(result)
	if err != nil {
		c.logger.Error("cache encode failed", "key", key, "error", err)
		return
	}
	err = c.breaker.Execute(func() error {
		return c.backend.Set(ctx, key, data, c.ttl)
	})
	if err != nil {
		c.recordError("set", key, err)
	}
}

// GetOrCompute returns the cached result or runs compute once per key,
// however many callers ask concurrently. The bool reports a cache hit.
//
// The shared computation is detached from the caller that started it and
// bounded by computeTimeout, so one client hanging up does not fail the
// others waiting on the same key. Each caller still stops waiting when its
// own ctx ends.
func (c *QueryCache) GetOrCompute(
	ctx context.Context,
	version string,
	plan *parser.QueryPlan,
	limit int,
	compute func(ctx context.Context) (*executor.SearchResult, error),
) (*executor.SearchResult, bool, error) {
	if err := ctx.Err(); err != nil {
		return nil, false, err
	}
	if result, ok := c.Get(ctx, version, plan, limit); ok {
		return result, true, nil
	}
	key := BuildKey(version, plan, limit)
	ch := c.group.DoChan(key, func() (any, error) {
		shared, cancel := context.WithTimeout(context.WithoutCancel(ctx), computeTimeout)
		defer cancel()
		result, err := compute(shared)
		if err != nil {
			return nil, err
		}
		c.Set(shared, version, plan, limit, result)
		return result, nil
	})
	select {
	case res := <-ch:
		if res.Err != nil {
			return nil, false, res.Err
		}
		return res.Val.(*executor.SearchResult), false, nil
	case <-ctx.Done():
		return nil, false, ctx.Err()
	}
}

// Invalidate deletes every cached result, or only those of version when
// version is non-empty.
func (c *QueryCache) Invalidate(ctx context.Context, version string) (int64, error) {
	pattern := keyPrefix + "*"
	if version != "" {
		pattern = keyPrefix + version + ":*"
	}
	deleted, err := c.backend.FlushByPattern(ctx, pattern)
	if err != nil {
		return deleted, fmt.Errorf("invalidating cache: %w", err)
	}
	c.logger.Info("cache invalidated", "pattern", pattern, "keys_deleted", deleted)
	return deleted, nil
}

func (c *QueryCache) Stats() Stats {
	return Stats{
		Hits:    c.hits.Load(),
		Misses:  c.misses.Load(),
		Errors:  c.errors.Load(),
		Breaker: c.breaker.GetState().String(),
	}
}

func (c *QueryCache) recordMiss() {
	c.misses.Add(1)
	if c.metrics != nil {
		c.metrics.CacheMissesTotal.Inc()
	}
}

func (c *QueryCache) recordError(op, key string, err error) {
	c.errors.Add(1)
	if errors.Is(err, resilience.ErrCircuitOpen) {
		c.logger.Debug("cache bypassed", "op", op, "key", key)
		return
	}
	c.logger.Warn("cache operation failed", "op", op, "key", key, "error", err)
}

// BuildKey derives the Redis key for a query. Equivalent queries map to
// the same key; a new snapshot version never reuses an old key.
func BuildKey(version string, plan *parser.QueryPlan, limit int) string {
	raw := fmt.Sprintf("%s:limit=%d", plan.Canonical(), limit)
	hash := sha256.Sum256([]byte(raw))
	return fmt.Sprintf("%s%s:%x", keyPrefix, version, hash[:16])
}
