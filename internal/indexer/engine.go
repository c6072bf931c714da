// Package indexer turns a documentation source tree into a snapshot and
// hands it to the places searchers load from: the snapshot file, the
// PostgreSQL store and the index.complete topic.
package indexer

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/Adithya-Monish-Kumar-K/docsearch/internal/indexer/corpus"
	"github.com/Adithya-Monish-Kumar-K/docsearch/internal/indexer/events"
	"github.com/Adithya-Monish-Kumar-K/docsearch/internal/indexer/index"
	"github.com/Adithya-Monish-Kumar-K/docsearch/internal/indexer/snapshot"
	"github.com/Adithya-Monish-Kumar-K/docsearch/internal/indexer/store"
	"github.com/Adithya-Monish-Kumar-K/docsearch/pkg/config"
	"github.com/Adithya-Monish-Kumar-K/docsearch/pkg/kafka"
	"github.com/Adithya-Monish-Kumar-K/docsearch/pkg/metrics"
	"github.com/Adithya-Monish-Kumar-K/docsearch/pkg/tracing"
)

// EnvVersion is written into the envversion table of every snapshot.
var EnvVersion = map[string]int{"docsearch": 1}

// SnapshotSaver is the part of store.Store the engine needs.
type SnapshotSaver interface {
	Save(ctx context.Context, version string, payload []byte) (*store.Record, error)
}

// Build is one finished, encoded index.
type Build struct {
	Version  string
	Index    *index.Index
	Payload  []byte
	Checksum string
	BuiltAt  time.Time
	Elapsed  time.Duration
}

type Engine struct {
	cfg       config.IndexConfig
	store     SnapshotSaver
	publisher kafka.Publisher
	metrics   *metrics.Metrics
	logger    *slog.Logger
}

// NewEngine creates an Engine. store and publisher may be nil, in which
// case Publish skips that destination.
func NewEngine(cfg config.IndexConfig, store SnapshotSaver, publisher kafka.Publisher) *Engine {
	return &Engine{
		cfg:       cfg,
		store:     store,
		publisher: publisher,
		logger:    slog.Default().With("component", "indexer"),
	}
}

// WithMetrics records the duration of every build phase in m.
func (e *Engine) WithMetrics(m *metrics.Metrics) *Engine {
	e.metrics = m
	return e
}

// Build reads the source tree and encodes a new snapshot. Nothing is
// written until WriteFile or Publish is called.
func (e *Engine) Build(ctx context.Context) (*Build, error) {
	start := time.Now()
	ctx, span := tracing.Start(ctx, "index.build")
	defer func() {
		span.End()
		span.Log(ctx, e.logger, slog.LevelDebug)
		e.observe(span)
	}()

	_, loadSpan := tracing.Start(ctx, "corpus.load")
	docs, err := corpus.Load(ctx, e.cfg.SourceDir, corpus.Options{
		Extensions:     e.cfg.Extensions,
		MaxConcurrency: e.cfg.MaxConcurrency,
	})
	loadSpan.SetAttr("documents", len(docs))
	loadSpan.End()
	if err != nil {
		return nil, fmt.Errorf("loading corpus: %w", err)
	}

	_, indexSpan := tracing.Start(ctx, "index.invert")
	ix, err := index.Build(docs)
	indexSpan.End()
	if err != nil {
		return nil, fmt.Errorf("building index: %w", err)
	}

	_, encodeSpan := tracing.Start(ctx, "snapshot.encode")
	payload, err := snapshot.Encode(ix, EnvVersion)
	encodeSpan.SetAttr("bytes", len(payload))
	encodeSpan.End()
	if err != nil {
		return nil, err
	}

	b := &Build{
		Version:  NewVersion(start),
		Index:    ix,
		Payload:  payload,
		Checksum: snapshot.Checksum(payload),
		BuiltAt:  start.UTC(),
		Elapsed:  time.Since(start),
	}
	span.SetAttr("version", b.Version)
	e.logger.Info("index built",
		"version", b.Version,
		"documents", ix.DocCount(),
		"terms", ix.TermCount(),
		"title_terms", ix.TitleTermCount(),
		"bytes", len(payload),
		"elapsed", b.Elapsed,
	)
	return b, nil
}

func (e *Engine) observe(span *tracing.Span) {
	if e.metrics == nil {
		return
	}
	e.metrics.IndexBuildDuration.WithLabelValues("total").Observe(span.Duration.Seconds())
	for _, phase := range span.Children() {
		e.metrics.IndexBuildDuration.WithLabelValues(phase.Name).Observe(phase.Duration.Seconds())
	}
}

// WriteFile atomically writes the build to the configured snapshot path.
func (e *Engine) WriteFile(b *Build) error {
	if err := snapshot.WriteFile(e.cfg.SnapshotPath, b.Payload); err != nil {
		return err
	}
	e.logger.Info("snapshot written", "path", e.cfg.SnapshotPath, "version", b.Version)
	return nil
}

// Publish stores the build (when a store is configured) and announces it
// on index.complete (when a publisher is configured). Without a store the
// announcement points searchers at the snapshot file.
func (e *Engine) Publish(ctx context.Context, b *Build) error {
	location := e.cfg.SnapshotPath
	if e.store != nil {
		if _, err := e.store.Save(ctx, b.Version, b.Payload); err != nil {
			return fmt.Errorf("storing snapshot: %w", err)
		}
		location = events.LocationStore
	}
	if e.publisher == nil {
		return nil
	}
	return events.PublishIndexComplete(ctx, e.publisher, events.IndexCompleteEvent{
		Version:   b.Version,
		DocCount:  b.Index.DocCount(),
		TermCount: b.Index.TermCount(),
		Checksum:  b.Checksum,
		Location:  location,
		BuiltAt:   b.BuiltAt,
	})
}

// NewVersion returns a version string that sorts by build time.
func NewVersion(t time.Time) string {
	return fmt.Sprintf("%s-%s", t.UTC().Format("20060102T150405Z"), uuid.NewString()[:8])
}
