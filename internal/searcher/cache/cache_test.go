package cache

import (
	"context"
	"errors"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	goredis "github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"

	"github.com/Adithya-Monish-Kumar-K/docsearch/internal/searcher/executor"
	"github.com/Adithya-Monish-Kumar-K/docsearch/internal/searcher/parser"
	"github.com/Adithya-Monish-Kumar-K/docsearch/pkg/config"
	"github.com/Adithya-Monish-Kumar-K/docsearch/pkg/metrics"
)

type memBackend struct {
	mu   sync.Mutex
	data map[string][]byte
	err  error
}

func newMemBackend() *memBackend {
	return &memBackend{data: make(map[string][]byte)}
}

func (m *memBackend) Get(_ context.Context, key string) ([]byte, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return nil, m.err
	}
	v, ok := m.data[key]
	if !ok {
		return nil, goredis.Nil
	}
	return v, nil
}

func (m *memBackend) Set(_ context.Context, key string, value []byte, _ time.Duration) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return m.err
	}
	m.data[key] = value
	return nil
}

func (m *memBackend) FlushByPattern(_ context.Context, pattern string) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	prefix := strings.TrimSuffix(pattern, "*")
	var n int64
	for k := range m.data {
		if strings.HasPrefix(k, prefix) {
			delete(m.data, k)
			n++
		}
	}
	return n, nil
}

func sampleResult() *executor.SearchResult {
	return &executor.SearchResult{
		Query:     "cache",
		Version:   "v1",
		TotalHits: 1,
		Results:   []executor.Hit{{ID: 0, Docname: "cache", Filename: "cache.md", Title: "Cache", TitleMatch: true}},
		TermStats: map[string]int{"cache": 1},
	}
}

func TestGetOrComputeCachesResult(t *testing.T) {
	m := metrics.New(prometheus.NewRegistry())
	c := New(newMemBackend(), config.RedisConfig{CacheTTL: time.Minute}, m)
	plan := parser.Parse("cache")

	var calls int
	compute := func(context.Context) (*executor.SearchResult, error) {
		calls++
		return sampleResult(), nil
	}

	first, hit, err := c.GetOrCompute(context.Background(), "v1", plan, 10, compute)
	require.NoError(t, err)
	assert.False(t, hit)

	second, hit, err := c.GetOrCompute(context.Background(), "v1", parser.Parse("CACHE"), 10, compute)
	require.NoError(t, err)
	assert.True(t, hit)
	assert.Equal(t, first, second)
	assert.Equal(t, 1, calls)

	assert.Equal(t, float64(1), testutil.ToFloat64(m.CacheHitsTotal))
	assert.Equal(t, float64(1), testutil.ToFloat64(m.CacheMissesTotal))
	assert.Equal(t, Stats{Hits: 1, Misses: 1, Breaker: "closed"}, c.Stats())
}

func TestVersionIsolatesEntries(t *testing.T) {
	c := New(newMemBackend(), config.RedisConfig{CacheTTL: time.Minute}, nil)
	plan := parser.Parse("cache")
	c.Set(context.Background(), "v1", plan, 10, sampleResult())

	_, ok := c.Get(context.Background(), "v2", plan, 10)
	assert.False(t, ok)
	_, ok = c.Get(context.Background(), "v1", plan, 10)
	assert.True(t, ok)
	_, ok = c.Get(context.Background(), "v1", plan, 5)
	assert.False(t, ok, "limit is part of the key")
}

func TestComputeErrorIsNotCached(t *testing.T) {
	backend := newMemBackend()
	c := New(backend, config.RedisConfig{}, nil)
	boom := errors.New("boom")

	_, _, err := c.GetOrCompute(context.Background(), "v1", parser.Parse("x"), 1,
		func(context.Context) (*executor.SearchResult, error) { return nil, boom })
	assert.ErrorIs(t, err, boom)
	assert.Empty(t, backend.data)
}

func TestBackendFailureFallsThrough(t *testing.T) {
	backend := newMemBackend()
	backend.err = errors.New("connection refused")
	m := metrics.New(prometheus.NewRegistry())
	c := New(backend, config.RedisConfig{}, m)

	for i := 0; i < 10; i++ {
		res, hit, err := c.GetOrCompute(context.Background(), "v1", parser.Parse("cache"), 10,
			func(context.Context) (*executor.SearchResult, error) { return sampleResult(), nil })
		require.NoError(t, err)
		assert.False(t, hit)
		assert.Equal(t, 1, res.TotalHits)
	}
	assert.Equal(t, "open", c.Stats().Breaker)
	assert.Equal(t, float64(1), testutil.ToFloat64(m.CircuitBreakerState.WithLabelValues("redis-cache")))
	assert.Positive(t, c.Stats().Errors)
}

func TestSingleflightCollapsesConcurrentMisses(t *testing.T) {
	c := New(newMemBackend(), config.RedisConfig{CacheTTL: time.Minute}, nil)
	var calls atomic.Int32
	release := make(chan struct{})

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, _, err := c.GetOrCompute(context.Background(), "v1", parser.Parse("slow"), 10,
				func(context.Context) (*executor.SearchResult, error) {
					calls.Add(1)
					<-release
					return sampleResult(), nil
				})
			assert.NoError(t, err)
		}()
	}
	time.Sleep(50 * time.Millisecond)
	close(release)
	wg.Wait()
	assert.LessOrEqual(t, calls.Load(), int32(8))
	assert.GreaterOrEqual(t, calls.Load(), int32(1))
}

func TestInvalidate(t *testing.T) {
	backend := newMemBackend()
	c := New(backend, config.RedisConfig{}, nil)
	c.Set(context.Background(), "v1", parser.Parse("a"), 1, sampleResult())
	c.Set(context.Background(), "v1", parser.Parse("b"), 1, sampleResult())
	c.Set(context.Background(), "v2", parser.Parse("a"), 1, sampleResult())

	n, err := c.Invalidate(context.Background(), "v1")
	require.NoError(t, err)
	assert.Equal(t, int64(2), n)

	n, err = c.Invalidate(context.Background(), "")
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)
	assert.Empty(t, backend.data)
}

func TestBuildKey(t *testing.T) {
	a := BuildKey("v1", parser.Parse("numpy arrays"), 20)
	b := BuildKey("v1", parser.Parse("Arrays  numpy"), 20)
	assert.Equal(t, a, b)
	assert.True(t, strings.HasPrefix(a, "search:v1:"))
	assert.NotEqual(t, a, BuildKey("v1", parser.Parse("numpy OR arrays"), 20))
}

func TestSharedComputeSurvivesLeaderCancel(t *testing.T) {
	c := New(newMemBackend(), config.RedisConfig{CacheTTL: time.Minute}, nil)
	release := make(chan struct{})
	started := make(chan struct{})
	var calls atomic.Int32
	compute := func(ctx context.Context) (*executor.SearchResult, error) {
		if calls.Add(1) == 1 {
			close(started)
		}
		select {
		case <-release:
			return sampleResult(), nil
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}

	leaderCtx, cancelLeader := context.WithCancel(context.Background())
	leaderErr := make(chan error, 1)
	go func() {
		_, _, err := c.GetOrCompute(leaderCtx, "v1", parser.Parse("shared"), 10, compute)
		leaderErr <- err
	}()
	<-started

	type outcome struct {
		res *executor.SearchResult
		err error
	}
	follower := make(chan outcome, 1)
	go func() {
		res, _, err := c.GetOrCompute(context.Background(), "v1", parser.Parse("shared"), 10, compute)
		follower <- outcome{res, err}
	}()

	cancelLeader()
	assert.ErrorIs(t, <-leaderErr, context.Canceled)
	close(release)

	got := <-follower
	require.NoError(t, got.err)
	assert.Equal(t, 1, got.res.TotalHits)
}
