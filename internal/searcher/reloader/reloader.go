// Package reloader swaps new snapshots into the live holder. Snapshots
// come from the snapshot file (on demand or when the file changes) or from
// the PostgreSQL store (on demand or on an index.complete event). A
// snapshot is fully decoded and validated before the swap, so a bad
// snapshot never replaces a good one.
package reloader

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/Adithya-Monish-Kumar-K/docsearch/internal/indexer/index"
	"github.com/Adithya-Monish-Kumar-K/docsearch/internal/indexer/snapshot"
	"github.com/Adithya-Monish-Kumar-K/docsearch/internal/indexer/store"
	"github.com/Adithya-Monish-Kumar-K/docsearch/internal/searcher/live"
	apperrors "github.com/Adithya-Monish-Kumar-K/docsearch/pkg/errors"
	"github.com/Adithya-Monish-Kumar-K/docsearch/pkg/metrics"
	"github.com/Adithya-Monish-Kumar-K/docsearch/pkg/resilience"
)

const (
	SourceFile  = "file"
	SourceStore = "store"
)

// SnapshotStore is the read side of store.Store.
type SnapshotStore interface {
	Latest(ctx context.Context) (*index.Index, *store.Record, error)
	Get(ctx context.Context, version string) (*index.Index, *store.Record, error)
}

// Invalidator drops cached results of a snapshot version that is no
// longer served.
type Invalidator interface {
	Invalidate(ctx context.Context, version string) (int64, error)
}

type Reloader struct {
	holder      *live.Holder
	path        string
	store       SnapshotStore
	invalidator Invalidator
	metrics     *metrics.Metrics
	retry       resilience.RetryConfig
	timeout     time.Duration
	logger      *slog.Logger
}

// Option configures a Reloader.
type Option func(*Reloader)

// WithStore enables loading from the snapshot store.
func WithStore(s SnapshotStore) Option {
	return func(r *Reloader) { r.store = s }
}

// WithInvalidator drops cache entries of replaced versions after a swap.
func WithInvalidator(inv Invalidator) Option {
	return func(r *Reloader) { r.invalidator = inv }
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(r *Reloader) { r.metrics = m }
}

func WithRetry(cfg resilience.RetryConfig) Option {
	return func(r *Reloader) { r.retry = cfg }
}

// WithStoreTimeout bounds each store read attempt.
func WithStoreTimeout(d time.Duration) Option {
	return func(r *Reloader) { r.timeout = d }
}

// New creates a Reloader serving into holder. path is the snapshot file and
// may be empty when only the store is used.
func New(holder *live.Holder, path string, opts ...Option) *Reloader {
	r := &Reloader{
		holder: holder,
		path:   path,
		retry: resilience.RetryConfig{
			MaxAttempts:  4,
			InitialDelay: 200 * time.Millisecond,
			MaxDelay:     5 * time.Second,
		},
		timeout: 30 * time.Second,
		logger:  slog.Default().With("component", "reloader"),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Reload loads from the store when one is configured and from the file
// otherwise.
func (r *Reloader) Reload(ctx context.Context) (*live.Loaded, error) {
	if r.store != nil {
		return r.ReloadFromStore(ctx, "")
	}
	return r.ReloadFromFile(ctx)
}

// ReloadFromFile loads the snapshot file. An unchanged file (same
// checksum as the served snapshot) is not swapped again.
func (r *Reloader) ReloadFromFile(ctx context.Context) (*live.Loaded, error) {
	if r.path == "" {
		return nil, fmt.Errorf("%w: no snapshot path configured", apperrors.ErrInvalidInput)
	}
	var loaded *live.Loaded
	err := resilience.Retry(ctx, "reload-file", r.retry, func() error {
		data, err := os.ReadFile(r.path)
		if err != nil {
			if os.IsNotExist(err) {
				return resilience.Permanent(fmt.Errorf("%w: %s", apperrors.ErrSnapshotNotFound, r.path))
			}
			return fmt.Errorf("reading snapshot %s: %w", r.path, err)
		}
		sum := snapshot.Checksum(data)
		if cur, err := r.holder.Current(); err == nil && cur.Checksum == sum {
			loaded = cur
			return nil
		}
		ix, err := snapshot.Decode(data)
		if err != nil {
			return resilience.Permanent(fmt.Errorf("decoding snapshot %s: %w", r.path, err))
		}
		loaded = &live.Loaded{
			Index:    ix,
			Version:  "file-" + sum[:12],
			Source:   SourceFile,
			Checksum: sum,
		}
		return nil
	})
	if err != nil {
		r.recordLoad(SourceFile, "error")
		return nil, err
	}
	r.install(ctx, loaded)
	return loaded, nil
}

// ReloadFromStore loads version from the store, or the newest snapshot
// when version is empty. A store snapshot built before the one being
// served is not installed, so a replayed or out-of-order announcement
// cannot roll the searcher back; the current snapshot is returned instead.
func (r *Reloader) ReloadFromStore(ctx context.Context, version string) (*live.Loaded, error) {
	if r.store == nil {
		return nil, fmt.Errorf("%w: no snapshot store configured", apperrors.ErrInvalidInput)
	}
	if version != "" && version == r.holder.Version() {
		cur, _ := r.holder.Current()
		return cur, nil
	}
	var loaded *live.Loaded
	err := resilience.Retry(ctx, "reload-store", r.retry, func() error {
		got, err := resilience.WithTimeoutValue(ctx, r.timeout, "snapshot-store", func(ctx context.Context) (storeRead, error) {
			var read storeRead
			var err error
			if version == "" {
				read.ix, read.rec, err = r.store.Latest(ctx)
			} else {
				read.ix, read.rec, err = r.store.Get(ctx, version)
			}
			return read, err
		})
		if err != nil {
			if apperrors.Is(err, apperrors.ErrInvalidSnapshot) || apperrors.Is(err, apperrors.ErrSnapshotNotFound) {
				return resilience.Permanent(err)
			}
			return err
		}
		loaded = &live.Loaded{
			Index:    got.ix,
			Version:  got.rec.Version,
			Source:   SourceStore,
			Checksum: got.rec.Checksum,
			BuiltAt:  got.rec.CreatedAt,
		}
		return nil
	})
	if err != nil {
		r.recordLoad(SourceStore, "error")
		return nil, err
	}
	if cur, err := r.holder.Current(); err == nil && olderThan(loaded, cur) {
		r.recordLoad(SourceStore, "stale")
		r.logger.Warn("ignoring snapshot older than the one served",
			"version", loaded.Version,
			"built_at", loaded.BuiltAt,
			"current", cur.Version,
			"current_built_at", cur.BuiltAt,
		)
		return cur, nil
	}
	r.install(ctx, loaded)
	return loaded, nil
}

func olderThan(l, cur *live.Loaded) bool {
	if l.BuiltAt.IsZero() || cur.BuiltAt.IsZero() {
		return false
	}
	return l.BuiltAt.Before(cur.BuiltAt)
}

type storeRead struct {
	ix  *index.Index
	rec *store.Record
}

func (r *Reloader) install(ctx context.Context, l *live.Loaded) {
	cur, err := r.holder.Current()
	if err == nil && cur == l {
		r.recordLoad(l.Source, "unchanged")
		return
	}
	old := r.holder.Swap(l)
	r.recordLoad(l.Source, "success")
	if r.metrics != nil {
		r.metrics.SnapshotDocuments.Set(float64(l.Index.DocCount()))
		r.metrics.SnapshotTerms.Set(float64(l.Index.TermCount()))
	}
	r.logger.Info("snapshot swapped in",
		"version", l.Version,
		"source", l.Source,
		"documents", l.Index.DocCount(),
		"terms", l.Index.TermCount(),
	)
	if old != nil && r.invalidator != nil && old.Version != l.Version {
		if _, err := r.invalidator.Invalidate(ctx, old.Version); err != nil {
			r.logger.Warn("dropping cached results of replaced snapshot failed",
				"version", old.Version, "error", err)
		}
	}
}

func (r *Reloader) recordLoad(source, status string) {
	if r.metrics != nil {
		r.metrics.SnapshotLoadsTotal.WithLabelValues(source, status).Inc()
	}
}
