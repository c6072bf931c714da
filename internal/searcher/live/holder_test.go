package live

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Adithya-Monish-Kumar-K/docsearch/internal/indexer/index"
	apperrors "github.com/Adithya-Monish-Kumar-K/docsearch/pkg/errors"
)

func build(t *testing.T, texts ...string) *index.Index {
	t.Helper()
	docs := make([]index.Document, len(texts))
	for i, text := range texts {
		docs[i] = index.Document{Docname: string(rune('a' + i)), Text: text}
	}
	ix, err := index.Build(docs)
	require.NoError(t, err)
	return ix
}

func TestHolderEmpty(t *testing.T) {
	h := NewHolder()
	_, err := h.Current()
	assert.ErrorIs(t, err, apperrors.ErrIndexNotLoaded)
	assert.False(t, h.Ready())
	assert.Equal(t, "", h.Version())
}

func TestHolderSwap(t *testing.T) {
	h := NewHolder()
	first := &Loaded{Index: build(t, "one"), Version: "v1"}
	assert.Nil(t, h.Swap(first))
	assert.False(t, first.LoadedAt.IsZero())

	cur, err := h.Current()
	require.NoError(t, err)
	assert.Same(t, first, cur)

	old := h.Swap(&Loaded{Index: build(t, "two", "three"), Version: "v2"})
	assert.Same(t, first, old)
	assert.Equal(t, "v2", h.Version())
	assert.Equal(t, int64(2), h.Swaps())

	// a reader holding the old snapshot still sees it unchanged
	assert.Equal(t, []int{0}, cur.Index.Lookup("one"))
}

func TestHolderConcurrentReadersDuringSwap(t *testing.T) {
	h := NewHolder()
	h.Swap(&Loaded{Index: build(t, "shared term"), Version: "v0"})

	var wg sync.WaitGroup
	for r := 0; r < 8; r++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := 0; i < 500; i++ {
				l, err := h.Current()
				if !assert.NoError(t, err) {
					return
				}
				ids := l.Index.Lookup("shared")
				assert.NotEmpty(t, ids)
			}
		}()
	}
	for i := 0; i < 50; i++ {
		h.Swap(&Loaded{Index: build(t, "shared term", "shared again"), Version: "v"})
	}
	wg.Wait()
}
