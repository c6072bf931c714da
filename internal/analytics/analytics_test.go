package analytics

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Adithya-Monish-Kumar-K/docsearch/pkg/kafka"
)

type fakePublisher struct {
	mu      sync.Mutex
	batches [][]kafka.Event
	fail    bool
}

func (p *fakePublisher) Publish(ctx context.Context, event kafka.Event) error {
	return p.PublishBatch(ctx, []kafka.Event{event})
}

func (p *fakePublisher) PublishBatch(_ context.Context, events []kafka.Event) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.fail {
		return errors.New("broker down")
	}
	p.batches = append(p.batches, events)
	return nil
}

func (p *fakePublisher) published() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	n := 0
	for _, b := range p.batches {
		n += len(b)
	}
	return n
}

func event(query string, hits int, cacheHit bool, latency int64, terms ...string) QueryEvent {
	return QueryEvent{
		Type:      EventSearch,
		Query:     query,
		Terms:     terms,
		TotalHits: hits,
		LatencyMs: latency,
		CacheHit:  cacheHit,
		Timestamp: time.Now().UTC(),
	}
}

func TestBatchCollectorFlushesFullBatch(t *testing.T) {
	pub := &fakePublisher{}
	bc := NewBatchCollector(pub, 3, time.Hour)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	bc.Start(ctx)

	for i := 0; i < 3; i++ {
		bc.Track(event("numpy", 4, false, 1, "numpi"))
	}
	require.Eventually(t, func() bool { return pub.published() == 3 }, time.Second, 10*time.Millisecond)
	assert.Equal(t, 0, bc.BufferLen())
}

func TestBatchCollectorFlushesOnShutdown(t *testing.T) {
	pub := &fakePublisher{}
	bc := NewBatchCollector(pub, 100, time.Hour)
	ctx, cancel := context.WithCancel(context.Background())
	bc.Start(ctx)

	bc.Track(event("cache", 1, false, 2, "cach"))
	bc.Track(event("hpc", 0, false, 3, "hpc"))
	cancel()
	bc.Close()

	assert.Equal(t, 2, pub.published())
	pub.mu.Lock()
	defer pub.mu.Unlock()
	assert.Equal(t, "cache", pub.batches[0][0].Key)
}

func TestBatchCollectorCloseWithoutStart(t *testing.T) {
	bc := NewBatchCollector(&fakePublisher{}, 10, time.Hour)
	closed := make(chan struct{})
	go func() {
		bc.Close()
		close(closed)
	}()
	select {
	case <-closed:
	case <-time.After(time.Second):
		t.Fatal("Close blocked on a collector that was never started")
	}
}

func TestBatchCollectorStartTwice(t *testing.T) {
	pub := &fakePublisher{}
	bc := NewBatchCollector(pub, 10, time.Hour)
	ctx, cancel := context.WithCancel(context.Background())
	bc.Start(ctx)
	bc.Start(ctx)

	bc.Track(event("cache", 1, false, 2, "cach"))
	cancel()
	bc.Close()
	assert.Equal(t, 1, pub.published())
}

func TestBatchCollectorKeepsEventsWhenPublishFails(t *testing.T) {
	pub := &fakePublisher{fail: true}
	bc := NewBatchCollector(pub, 2, time.Hour)

	bc.Track(event("a", 1, false, 1, "a"))
	bc.flush(context.Background())
	assert.Equal(t, 1, bc.BufferLen())

	pub.mu.Lock()
	pub.fail = false
	pub.mu.Unlock()
	bc.flush(context.Background())
	assert.Equal(t, 0, bc.BufferLen())
	assert.Equal(t, 1, pub.published())
}

func TestBatchCollectorCapsBuffer(t *testing.T) {
	pub := &fakePublisher{fail: true}
	bc := NewBatchCollector(pub, 2, time.Hour)

	bc.mu.Lock()
	for i := 0; i < 10; i++ {
		bc.buffer = append(bc.buffer, kafka.Event{Key: "q", Value: i})
	}
	bc.mu.Unlock()
	bc.flush(context.Background())
	assert.Equal(t, 6, bc.BufferLen())
}

func TestAggregatorStats(t *testing.T) {
	agg := NewAggregator()
	agg.Track(event("numpy", 4, false, 10, "numpi"))
	agg.Track(event("numpy", 4, true, 2, "numpi"))
	agg.Track(event("numpy array", 2, false, 30, "numpi", "array"))
	agg.Track(event("fortran", 0, false, 5, "fortran"))

	stats := agg.Stats()
	assert.Equal(t, int64(4), stats.TotalSearches)
	assert.Equal(t, int64(1), stats.CacheHits)
	assert.Equal(t, int64(3), stats.CacheMisses)
	assert.Equal(t, int64(1), stats.ZeroResultCount)
	assert.InDelta(t, 11.75, stats.AvgLatencyMs, 0.001)
	assert.Equal(t, int64(10), stats.P50LatencyMs)
	assert.Equal(t, int64(30), stats.P99LatencyMs)

	require.NotEmpty(t, stats.TopQueries)
	assert.Equal(t, QueryCount{Query: "numpy", Count: 2}, stats.TopQueries[0])
	assert.Equal(t, []QueryCount{{Query: "fortran", Count: 1}}, stats.ZeroResultQueries)
	assert.Equal(t, QueryCount{Query: "numpi", Count: 3}, stats.TopTerms[0])
}

func TestAggregatorEmpty(t *testing.T) {
	stats := NewAggregator().Stats()
	assert.Zero(t, stats.TotalSearches)
	assert.Zero(t, stats.P95LatencyMs)
	assert.Empty(t, stats.TopQueries)
}

func TestTopNBreaksTiesAlphabetically(t *testing.T) {
	got := topN(map[string]int64{"b": 2, "a": 2, "c": 5, "d": 1}, 3)
	assert.Equal(t, []QueryCount{{"c", 5}, {"a", 2}, {"b", 2}}, got)
}

func TestHandleEventFeedsAggregator(t *testing.T) {
	agg := NewAggregator()
	handle := HandleEvent(agg)

	data, err := json.Marshal(event("numpy", 4, false, 1, "numpi"))
	require.NoError(t, err)
	require.NoError(t, handle(context.Background(), []byte("numpy"), data))
	require.NoError(t, handle(context.Background(), nil, []byte("not json")))

	assert.Equal(t, int64(1), agg.Stats().TotalSearches)
}

func TestFanout(t *testing.T) {
	a, b := NewAggregator(), NewAggregator()
	Fanout{a, b}.Track(event("x", 1, false, 1, "x"))
	assert.Equal(t, int64(1), a.Stats().TotalSearches)
	assert.Equal(t, int64(1), b.Stats().TotalSearches)
}

func TestStatsHandler(t *testing.T) {
	agg := NewAggregator()
	agg.Track(event("numpy", 4, false, 1, "numpi"))

	rec := httptest.NewRecorder()
	NewHandler(agg).Stats(rec, httptest.NewRequest(http.MethodGet, "/api/v1/analytics/stats", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	var stats Stats
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &stats))
	assert.Equal(t, int64(1), stats.TotalSearches)
}

func TestStatsHandlerTop(t *testing.T) {
	agg := NewAggregator()
	for _, q := range []string{"numpy", "pandas", "pandas", "cache"} {
		agg.Track(event(q, 2, false, 1, q))
	}
	h := NewHandler(agg)

	rec := httptest.NewRecorder()
	h.Stats(rec, httptest.NewRequest(http.MethodGet, "/api/v1/analytics/stats?top=1", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	var stats Stats
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &stats))
	assert.Equal(t, []QueryCount{{Query: "pandas", Count: 2}}, stats.TopQueries)
	assert.Len(t, stats.TopTerms, 1)

	for _, bad := range []string{"0", "abc", "1000"} {
		rec = httptest.NewRecorder()
		h.Stats(rec, httptest.NewRequest(http.MethodGet, "/api/v1/analytics/stats?top="+bad, nil))
		assert.Equal(t, http.StatusBadRequest, rec.Code, bad)
	}
}

type fakeHistory struct {
	since time.Time
	rows  []Summary
	err   error
}

func (f *fakeHistory) History(_ context.Context, since time.Time) ([]Summary, error) {
	f.since = since
	return f.rows, f.err
}

func TestHistoryHandler(t *testing.T) {
	h := NewHandler(NewAggregator())
	rec := httptest.NewRecorder()
	h.History(rec, httptest.NewRequest(http.MethodGet, "/api/v1/analytics/history", nil))
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)

	src := &fakeHistory{rows: []Summary{{TotalSearches: 12, ZeroResults: 1, P95LatencyMs: 8}}}
	h.WithHistory(src)
	rec = httptest.NewRecorder()
	h.History(rec, httptest.NewRequest(http.MethodGet, "/api/v1/analytics/history?window=90m", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.WithinDuration(t, time.Now().Add(-90*time.Minute), src.since, time.Minute)

	var body struct {
		Window    string    `json:"window"`
		Snapshots []Summary `json:"snapshots"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "1h30m0s", body.Window)
	assert.Equal(t, int64(12), body.Snapshots[0].TotalSearches)

	rec = httptest.NewRecorder()
	h.History(rec, httptest.NewRequest(http.MethodGet, "/api/v1/analytics/history?window=-1h", nil))
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	src.err = errors.New("pq: relation does not exist")
	rec = httptest.NewRecorder()
	h.History(rec, httptest.NewRequest(http.MethodGet, "/api/v1/analytics/history", nil))
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.NotContains(t, rec.Body.String(), "relation")
}
