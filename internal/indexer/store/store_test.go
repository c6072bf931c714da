package store

import (
	"bytes"
	"context"
	"os"
	"strconv"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Adithya-Monish-Kumar-K/docsearch/internal/indexer/index"
	"github.com/Adithya-Monish-Kumar-K/docsearch/internal/indexer/snapshot"
	"github.com/Adithya-Monish-Kumar-K/docsearch/pkg/config"
	apperrors "github.com/Adithya-Monish-Kumar-K/docsearch/pkg/errors"
	"github.com/Adithya-Monish-Kumar-K/docsearch/pkg/postgres"
)

func TestCompressRoundTrip(t *testing.T) {
	payload := bytes.Repeat([]byte(`numpi:[1,4,5,8],`), 200)

	data, compressed, err := compress(payload)
	require.NoError(t, err)
	assert.True(t, compressed)
	assert.Less(t, len(data), len(payload))

	out, err := decompress(data, compressed, len(payload))
	require.NoError(t, err)
	assert.Equal(t, payload, out)
}

func TestCompressIncompressible(t *testing.T) {
	payload := []byte("x")
	data, compressed, err := compress(payload)
	require.NoError(t, err)
	assert.False(t, compressed)
	assert.Equal(t, payload, data)

	out, err := decompress(data, false, 1)
	require.NoError(t, err)
	assert.Equal(t, payload, out)
}

func TestDecompressWrongSize(t *testing.T) {
	payload := bytes.Repeat([]byte("abcd"), 100)
	data, compressed, err := compress(payload)
	require.NoError(t, err)
	require.True(t, compressed)

	_, err = decompress(data, true, len(payload)-10)
	assert.Error(t, err)
}

// skipIfNoPostgres skips the test when PostgreSQL is unavailable.
func skipIfNoPostgres(t *testing.T) *postgres.Client {
	t.Helper()
	cfg := config.Default().Postgres
	if v := os.Getenv("TEST_POSTGRES_HOST"); v != "" {
		cfg.Host = v
	}
	if v := os.Getenv("TEST_POSTGRES_PORT"); v != "" {
		if p, err := strconv.Atoi(v); err == nil {
			cfg.Port = p
		}
	}
	if v := os.Getenv("TEST_POSTGRES_DB"); v != "" {
		cfg.Database = v
	}
	cfg.ConnectAttempts = 1
	db, err := postgres.New(cfg)
	if err != nil {
		t.Skipf("skipping store test: postgres unavailable: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return db
}

func samplePayload(t *testing.T) []byte {
	t.Helper()
	ix, err := index.Build([]index.Document{
		{Docname: "a", Title: "Cache", Text: "the cache evicts old entries"},
		{Docname: "b", Title: "Scheduler", Text: "the scheduler queues tasks"},
	})
	require.NoError(t, err)
	data, err := snapshot.Encode(ix, nil)
	require.NoError(t, err)
	return data
}

func TestStoreSaveAndLoad(t *testing.T) {
	db := skipIfNoPostgres(t)
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	s := New(db)
	require.NoError(t, s.EnsureSchema(ctx))

	version := "test-" + uuid.NewString()
	t.Cleanup(func() {
		db.DB.Exec(`DELETE FROM search_snapshots WHERE version = $1`, version)
	})

	payload := samplePayload(t)
	rec, err := s.Save(ctx, version, payload)
	require.NoError(t, err)
	assert.Equal(t, 2, rec.DocCount)
	assert.Equal(t, snapshot.Checksum(payload), rec.Checksum)

	ix, got, err := s.Get(ctx, version)
	require.NoError(t, err)
	assert.Equal(t, version, got.Version)
	assert.Equal(t, []int{0, 1}, ix.Lookup("the"))

	_, err = s.Save(ctx, version, payload)
	assert.ErrorIs(t, err, apperrors.ErrInvalidInput)

	records, err := s.List(ctx, 100)
	require.NoError(t, err)
	var found bool
	for _, r := range records {
		if r.Version == version {
			found = true
		}
	}
	assert.True(t, found)
}

func TestStoreRejectsInvalidPayload(t *testing.T) {
	db := skipIfNoPostgres(t)
	s := New(db)

	_, err := s.Save(context.Background(), "bad-"+uuid.NewString(),
		[]byte(`{docnames:["a"],terms:{x:5}}`))
	assert.ErrorIs(t, err, apperrors.ErrInvalidSnapshot)
}

func TestStoreGetUnknownVersion(t *testing.T) {
	db := skipIfNoPostgres(t)
	ctx := context.Background()
	s := New(db)
	require.NoError(t, s.EnsureSchema(ctx))

	_, _, err := s.Get(ctx, "missing-"+uuid.NewString())
	assert.ErrorIs(t, err, apperrors.ErrSnapshotNotFound)
}

func TestPruneRequiresKeep(t *testing.T) {
	s := New(nil)
	_, err := s.Prune(context.Background(), 0)
	assert.ErrorIs(t, err, apperrors.ErrInvalidInput)
}
