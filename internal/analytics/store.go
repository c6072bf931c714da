package analytics

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/Adithya-Monish-Kumar-K/docsearch/pkg/postgres"
)

// Schema keeps the headline numbers in columns so History can chart them
// without decoding every JSONB document.
const Schema = `
CREATE TABLE IF NOT EXISTS query_stats_snapshots (
    id              BIGSERIAL PRIMARY KEY,
    total_searches  BIGINT NOT NULL,
    zero_results    BIGINT NOT NULL,
    p95_latency_ms  BIGINT NOT NULL,
    data            JSONB NOT NULL,
    captured_at     TIMESTAMPTZ NOT NULL DEFAULT NOW()
);
CREATE INDEX IF NOT EXISTS idx_query_stats_captured_at ON query_stats_snapshots (captured_at DESC)`

// Summary is one row of History.
type Summary struct {
	CapturedAt    time.Time `json:"captured_at"`
	TotalSearches int64     `json:"total_searches"`
	ZeroResults   int64     `json:"zero_results"`
	P95LatencyMs  int64     `json:"p95_latency_ms"`
}

// Store persists Stats snapshots so they survive restarts of the
// analytics service.
type Store struct {
	db     *postgres.Client
	logger *slog.Logger
}

func NewStore(db *postgres.Client) *Store {
	return &Store{db: db, logger: slog.Default().With("component", "analytics-store")}
}

func (s *Store) EnsureSchema(ctx context.Context) error {
	if _, err := s.db.DB.ExecContext(ctx, Schema); err != nil {
		return fmt.Errorf("creating analytics schema: %w", err)
	}
	return nil
}

func (s *Store) Save(ctx context.Context, stats Stats) error {
	data, err := json.Marshal(stats)
	if err != nil {
		return fmt.Errorf("encoding stats: %w", err)
	}
	_, err = s.db.DB.ExecContext(ctx, `
		INSERT INTO query_stats_snapshots (total_searches, zero_results, p95_latency_ms, data, captured_at)
		VALUES ($1, $2, $3, $4, $5)`,
		stats.TotalSearches, stats.ZeroResultCount, stats.P95LatencyMs, data, stats.CapturedAt,
	)
	if err != nil {
		return fmt.Errorf("saving stats snapshot: %w", err)
	}
	return nil
}

// Latest returns the newest saved snapshot, or nil when none exists.
func (s *Store) Latest(ctx context.Context) (*Stats, error) {
	var data []byte
	err := s.db.DB.QueryRowContext(ctx,
		`SELECT data FROM query_stats_snapshots ORDER BY captured_at DESC LIMIT 1`,
	).Scan(&data)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("reading latest stats snapshot: %w", err)
	}
	var stats Stats
	if err := json.Unmarshal(data, &stats); err != nil {
		return nil, fmt.Errorf("decoding stats snapshot: %w", err)
	}
	return &stats, nil
}

// History returns the summaries captured at or after since, oldest first.
func (s *Store) History(ctx context.Context, since time.Time) ([]Summary, error) {
	rows, err := s.db.DB.QueryContext(ctx, `
		SELECT captured_at, total_searches, zero_results, p95_latency_ms
		FROM query_stats_snapshots
		WHERE captured_at >= $1
		ORDER BY captured_at`, since)
	if err != nil {
		return nil, fmt.Errorf("querying stats history: %w", err)
	}
	defer rows.Close()

	out := []Summary{}
	for rows.Next() {
		var sum Summary
		if err := rows.Scan(&sum.CapturedAt, &sum.TotalSearches, &sum.ZeroResults, &sum.P95LatencyMs); err != nil {
			return nil, fmt.Errorf("scanning stats history: %w", err)
		}
		out = append(out, sum)
	}
	return out, rows.Err()
}

// Prune deletes snapshots captured before cutoff.
func (s *Store) Prune(ctx context.Context, cutoff time.Time) (int64, error) {
	res, err := s.db.DB.ExecContext(ctx, `DELETE FROM query_stats_snapshots WHERE captured_at < $1`, cutoff)
	if err != nil {
		return 0, fmt.Errorf("pruning stats snapshots: %w", err)
	}
	return res.RowsAffected()
}

// StartPeriodicSave snapshots source every interval until ctx is cancelled,
// with a final snapshot on the way out. A positive retention prunes older
// snapshots after each save.
func (s *Store) StartPeriodicSave(ctx context.Context, source StatsSource, interval, retention time.Duration) {
	save := func(ctx context.Context) {
		stats := source.StatsTop(defaultTop)
		if err := s.Save(ctx, stats); err != nil {
			s.logger.Error("stats snapshot save failed", "error", err)
			return
		}
		if retention <= 0 {
			return
		}
		if n, err := s.Prune(ctx, stats.CapturedAt.Add(-retention)); err != nil {
			s.logger.Warn("stats snapshot prune failed", "error", err)
		} else if n > 0 {
			s.logger.Debug("old stats snapshots pruned", "deleted", n)
		}
	}

	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				save(ctx)
			case <-ctx.Done():
				final, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
				save(final)
				cancel()
				return
			}
		}
	}()
	s.logger.Info("periodic stats snapshots started", "interval", interval, "retention", retention)
}
