// Package live holds the snapshot the searcher is currently serving.
// Readers take the current pointer once per request and keep using that
// snapshot even if a reload swaps in a new one halfway through.
package live

import (
	"fmt"
	"sync/atomic"
	"time"

	"github.com/Adithya-Monish-Kumar-K/docsearch/internal/indexer/index"
	apperrors "github.com/Adithya-Monish-Kumar-K/docsearch/pkg/errors"
)

// Loaded is an index together with where it came from.
type Loaded struct {
	Index    *index.Index
	Version  string
	Source   string
	Checksum string
	LoadedAt time.Time
	// BuiltAt is when the store recorded the snapshot; zero for files.
	BuiltAt  time.Time
}

type Holder struct {
	current atomic.Pointer[Loaded]
	swaps   atomic.Int64
}

func NewHolder() *Holder {
	return &Holder{}
}

// Current returns the snapshot being served, or ErrIndexNotLoaded before
// the first successful load.
func (h *Holder) Current() (*Loaded, error) {
	l := h.current.Load()
	if l == nil {
		return nil, fmt.Errorf("%w: no snapshot has been loaded", apperrors.ErrIndexNotLoaded)
	}
	return l, nil
}

// Swap installs l and returns the snapshot it replaced (nil on first load).
func (h *Holder) Swap(l *Loaded) *Loaded {
	if l.LoadedAt.IsZero() {
		l.LoadedAt = time.Now().UTC()
	}
	h.swaps.Add(1)
	return h.current.Swap(l)
}

// Version returns the served version, or "" when nothing is loaded.
func (h *Holder) Version() string {
	if l := h.current.Load(); l != nil {
		return l.Version
	}
	return ""
}

// Ready reports whether a snapshot is loaded.
func (h *Holder) Ready() bool {
	return h.current.Load() != nil
}

// Swaps counts how many snapshots have been installed.
func (h *Holder) Swaps() int64 {
	return h.swaps.Load()
}
