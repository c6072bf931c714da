package executor

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Adithya-Monish-Kumar-K/docsearch/internal/indexer/index"
	"github.com/Adithya-Monish-Kumar-K/docsearch/internal/searcher/live"
	"github.com/Adithya-Monish-Kumar-K/docsearch/internal/searcher/parser"
	apperrors "github.com/Adithya-Monish-Kumar-K/docsearch/pkg/errors"
)

func testIndex(t *testing.T) *index.Index {
	t.Helper()
	ix, err := index.Build([]index.Document{
		{Docname: "cache", Filename: "cache.md", Title: "Cache", Text: "the cache evicts old entries"},
		{Docname: "scheduler", Filename: "scheduler.md", Title: "Scheduler", Text: "the scheduler queues tasks"},
		{Docname: "numpy", Filename: "numpy.ipynb", Title: "Numpy arrays", Text: "numpy arrays keep data in a contiguous cache friendly layout"},
		{Docname: "julia", Filename: "julia.md", Title: "Julia", Text: "julia compiles to fast code"},
	})
	require.NoError(t, err)
	return ix
}

func ids(r *SearchResult) []int {
	out := make([]int, len(r.Results))
	for i, h := range r.Results {
		out[i] = h.ID
	}
	return out
}

func TestRun(t *testing.T) {
	ix := testIndex(t)
	tests := []struct {
		query string
		want  []int
	}{
		{"the", []int{0, 1}},
		{"cache", []int{0, 2}},
		{"the cache", []int{0}},
		{"cache OR scheduler", []int{0, 1, 2}},
		{"cache -numpy", []int{0}},
		{"cache NOT evicts", []int{2}},
		{"julia", []int{3}},
		{"nonexistent", []int{}},
		{"cache nonexistent", []int{}},
		{"nonexistent OR julia", []int{3}},
		{"", []int{}},
	}
	for _, tt := range tests {
		t.Run(tt.query, func(t *testing.T) {
			res, err := Run(context.Background(), ix, parser.Parse(tt.query), 0)
			require.NoError(t, err)
			assert.Equal(t, tt.want, ids(res))
			assert.Equal(t, len(tt.want), res.TotalHits)
		})
	}
}

func TestRunHitMetadata(t *testing.T) {
	res, err := Run(context.Background(), testIndex(t), parser.Parse("cache"), 0)
	require.NoError(t, err)
	require.Len(t, res.Results, 2)

	assert.Equal(t, Hit{ID: 0, Docname: "cache", Filename: "cache.md", Title: "Cache", TitleMatch: true}, res.Results[0])
	assert.False(t, res.Results[1].TitleMatch)
	assert.Equal(t, 2, res.TermStats["cache"])
}

func TestRunTitleOnlyMatch(t *testing.T) {
	ix, err := index.Build([]index.Document{
		{Docname: "a", Title: "Welcome", Text: "body text"},
	})
	require.NoError(t, err)

	res, err := Run(context.Background(), ix, parser.Parse("welcome"), 0)
	require.NoError(t, err)
	require.Len(t, res.Results, 1)
	assert.True(t, res.Results[0].TitleMatch)
}

func TestRunLimit(t *testing.T) {
	res, err := Run(context.Background(), testIndex(t), parser.Parse("cache OR scheduler OR julia"), 2)
	require.NoError(t, err)
	assert.Equal(t, []int{0, 1}, ids(res))
	assert.Equal(t, 4, res.TotalHits)
}

func TestRunCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := Run(ctx, testIndex(t), parser.Parse("cache"), 0)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestExecutorUsesServedSnapshot(t *testing.T) {
	h := live.NewHolder()
	e := New(h)

	_, err := e.Execute(context.Background(), parser.Parse("cache"), 10)
	assert.ErrorIs(t, err, apperrors.ErrIndexNotLoaded)

	h.Swap(&live.Loaded{Index: testIndex(t), Version: "v7"})
	res, err := e.Execute(context.Background(), parser.Parse("cache"), 10)
	require.NoError(t, err)
	assert.Equal(t, "v7", res.Version)
	assert.Equal(t, []int{0, 2}, ids(res))
}

func TestSetOperations(t *testing.T) {
	assert.Equal(t, []int{2, 5}, intersect([]int{1, 2, 5, 9}, []int{2, 3, 5}))
	assert.Equal(t, []int{1, 2, 3, 5, 9}, union([]int{1, 2, 5, 9}, []int{2, 3, 5}))
	assert.Equal(t, []int{1, 9}, subtract([]int{1, 2, 5, 9}, []int{2, 3, 5}))
	assert.Equal(t, []int{4}, intersectAll([][]int{{1, 4, 7}, {4}, {0, 4, 9}}))
	assert.Equal(t, []int{}, intersectAll(nil))
}
