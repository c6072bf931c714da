// Package store keeps versioned searchindex.js snapshots in PostgreSQL.
// Rows are immutable: a version is written once and only ever read or
// pruned afterwards.
package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/lib/pq"

	"github.com/Adithya-Monish-Kumar-K/docsearch/internal/indexer/index"
	"github.com/Adithya-Monish-Kumar-K/docsearch/internal/indexer/snapshot"
	apperrors "github.com/Adithya-Monish-Kumar-K/docsearch/pkg/errors"
	"github.com/Adithya-Monish-Kumar-K/docsearch/pkg/postgres"
)

// Schema creates the snapshot table. EnsureSchema runs it at startup.
const Schema = `
CREATE TABLE IF NOT EXISTS search_snapshots (
    version     TEXT PRIMARY KEY,
    data        BYTEA NOT NULL,
    compressed  BOOLEAN NOT NULL,
    raw_size    INTEGER NOT NULL,
    doc_count   INTEGER NOT NULL,
    term_count  INTEGER NOT NULL,
    checksum    TEXT NOT NULL,
    created_at  TIMESTAMPTZ NOT NULL DEFAULT NOW()
)`

// Record describes a stored snapshot without its payload.
type Record struct {
	Version   string    `json:"version"`
	DocCount  int       `json:"doc_count"`
	TermCount int       `json:"term_count"`
	Checksum  string    `json:"checksum"`
	RawSize   int       `json:"raw_size"`
	CreatedAt time.Time `json:"created_at"`
}

// Store persists snapshots in the search_snapshots table.
type Store struct {
	db     *postgres.Client
	logger *slog.Logger
}

func New(db *postgres.Client) *Store {
	return &Store{
		db:     db,
		logger: slog.Default().With("component", "snapshot-store"),
	}
}

func (s *Store) EnsureSchema(ctx context.Context) error {
	if _, err := s.db.DB.ExecContext(ctx, Schema); err != nil {
		return fmt.Errorf("creating snapshot schema: %w", err)
	}
	return nil
}

// Save validates payload and stores it under version. Storing the same
// version twice fails with ErrInvalidInput.
func (s *Store) Save(ctx context.Context, version string, payload []byte) (*Record, error) {
	if version == "" {
		return nil, fmt.Errorf("%w: empty snapshot version", apperrors.ErrInvalidInput)
	}
	ix, err := snapshot.Decode(payload)
	if err != nil {
		return nil, fmt.Errorf("refusing to store snapshot %s: %w", version, err)
	}
	data, compressed, err := compress(payload)
	if err != nil {
		return nil, err
	}

	rec := &Record{
		Version:   version,
		DocCount:  ix.DocCount(),
		TermCount: ix.TermCount(),
		Checksum:  snapshot.Checksum(payload),
		RawSize:   len(payload),
	}
	err = s.db.InTx(ctx, func(tx *sql.Tx) error {
		return tx.QueryRowContext(ctx,
			`INSERT INTO search_snapshots (version, data, compressed, raw_size, doc_count, term_count, checksum)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		RETURNING created_at`,
			rec.Version, data, compressed, rec.RawSize, rec.DocCount, rec.TermCount, rec.Checksum,
		).Scan(&rec.CreatedAt)
	})
	if err != nil {
		var pqErr *pq.Error
		if errors.As(err, &pqErr) && pqErr.Code == "23505" {
			return nil, fmt.Errorf("%w: snapshot version %s already exists", apperrors.ErrInvalidInput, version)
		}
		return nil, fmt.Errorf("inserting snapshot %s: %w", version, err)
	}

	s.logger.Info("snapshot stored",
		"version", version,
		"documents", rec.DocCount,
		"terms", rec.TermCount,
		"raw_bytes", rec.RawSize,
		"stored_bytes", len(data),
	)
	return rec, nil
}

// Latest loads the most recently stored snapshot.
func (s *Store) Latest(ctx context.Context) (*index.Index, *Record, error) {
	return s.load(ctx,
		`SELECT version, data, compressed, raw_size, doc_count, term_count, checksum, created_at
		FROM search_snapshots ORDER BY created_at DESC, version DESC LIMIT 1`)
}

// Get loads the snapshot stored under version.
func (s *Store) Get(ctx context.Context, version string) (*index.Index, *Record, error) {
	return s.load(ctx,
		`SELECT version, data, compressed, raw_size, doc_count, term_count, checksum, created_at
		FROM search_snapshots WHERE version = $1`, version)
}

func (s *Store) load(ctx context.Context, query string, args ...any) (*index.Index, *Record, error) {
	var (
		rec        Record
		data       []byte
		compressed bool
	)
	err := s.db.DB.QueryRowContext(ctx, query, args...).Scan(
		&rec.Version, &data, &compressed, &rec.RawSize,
		&rec.DocCount, &rec.TermCount, &rec.Checksum, &rec.CreatedAt,
	)
	if err == sql.ErrNoRows {
		return nil, nil, fmt.Errorf("%w: %v", apperrors.ErrSnapshotNotFound, args)
	}
	if err != nil {
		return nil, nil, fmt.Errorf("querying snapshot: %w", err)
	}

	payload, err := decompress(data, compressed, rec.RawSize)
	if err != nil {
		return nil, nil, fmt.Errorf("%w: version %s: %v", apperrors.ErrInvalidSnapshot, rec.Version, err)
	}
	if sum := snapshot.Checksum(payload); sum != rec.Checksum {
		return nil, nil, fmt.Errorf("%w: version %s checksum %s, stored %s",
			apperrors.ErrInvalidSnapshot, rec.Version, sum, rec.Checksum)
	}
	ix, err := snapshot.Decode(payload)
	if err != nil {
		return nil, nil, fmt.Errorf("decoding snapshot %s: %w", rec.Version, err)
	}
	return ix, &rec, nil
}

// List returns up to limit records, newest first.
func (s *Store) List(ctx context.Context, limit int) ([]Record, error) {
	rows, err := s.db.DB.QueryContext(ctx,
		`SELECT version, raw_size, doc_count, term_count, checksum, created_at
		FROM search_snapshots ORDER BY created_at DESC, version DESC LIMIT $1`,
		limit,
	)
	if err != nil {
		return nil, fmt.Errorf("listing snapshots: %w", err)
	}
	defer rows.Close()

	var records []Record
	for rows.Next() {
		var rec Record
		if err := rows.Scan(&rec.Version, &rec.RawSize, &rec.DocCount,
			&rec.TermCount, &rec.Checksum, &rec.CreatedAt); err != nil {
			return nil, fmt.Errorf("scanning snapshot row: %w", err)
		}
		records = append(records, rec)
	}
	return records, rows.Err()
}

// Prune deletes all but the newest keep snapshots and reports how many rows
// were removed.
func (s *Store) Prune(ctx context.Context, keep int) (int64, error) {
	if keep < 1 {
		return 0, fmt.Errorf("%w: prune must keep at least one snapshot", apperrors.ErrInvalidInput)
	}
	res, err := s.db.DB.ExecContext(ctx,
		`DELETE FROM search_snapshots WHERE version NOT IN (
			SELECT version FROM search_snapshots ORDER BY created_at DESC, version DESC LIMIT $1
		)`, keep)
	if err != nil {
		return 0, fmt.Errorf("pruning snapshots: %w", err)
	}
	n, _ := res.RowsAffected()
	if n > 0 {
		s.logger.Info("snapshots pruned", "removed", n, "kept", keep)
	}
	return n, nil
}
