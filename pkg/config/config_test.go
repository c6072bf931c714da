package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, 8080, cfg.Server.Port)
	assert.Equal(t, "index.complete", cfg.Kafka.Topics.IndexComplete)
	assert.Equal(t, 20, cfg.Search.DefaultLimit)
	assert.Contains(t, cfg.Index.Extensions, ".ipynb")
	assert.False(t, cfg.Redis.Enabled)
}

func TestLoadYAMLFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	content := `
server:
  port: 9999
  writeTimeout: 5s
index:
  sourceDir: book
  snapshotPath: out/searchindex.js
search:
  defaultLimit: 5
  maxResults: 50
redis:
  enabled: true
  cacheTTL: 2m
`
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, 9999, cfg.Server.Port)
	assert.Equal(t, 5*time.Second, cfg.Server.WriteTimeout)
	assert.Equal(t, "book", cfg.Index.SourceDir)
	assert.Equal(t, "out/searchindex.js", cfg.Index.SnapshotPath)
	assert.Equal(t, 5, cfg.Search.DefaultLimit)
	assert.True(t, cfg.Redis.Enabled)
	assert.Equal(t, 2*time.Minute, cfg.Redis.CacheTTL)
	// untouched sections keep their defaults
	assert.Equal(t, "docsearch", cfg.Postgres.Database)
}

func TestLoadMissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "reading config file")
}

func TestLoadRejectsMalformedYAML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bad.yaml")
	require.NoError(t, os.WriteFile(path, []byte("server: [unclosed"), 0o644))

	_, err := Load(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "parsing config file")
}

func TestEnvOverrides(t *testing.T) {
	t.Setenv("DS_SERVER_PORT", "7070")
	t.Setenv("DS_KAFKA_BROKERS", "k1:9092,k2:9092")
	t.Setenv("DS_KAFKA_ENABLED", "true")
	t.Setenv("DS_INDEX_WATCH", "yes-please")
	t.Setenv("DS_LOGGING_LEVEL", "debug")
	t.Setenv("DS_SERVER_CORS_ORIGINS", "https://docs.example.org")

	cfg, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, 7070, cfg.Server.Port)
	assert.Equal(t, []string{"k1:9092", "k2:9092"}, cfg.Kafka.Brokers)
	assert.True(t, cfg.Kafka.Enabled)
	assert.False(t, cfg.Index.Watch, "unparseable bool keeps the default")
	assert.Equal(t, "debug", cfg.Logging.Level)
	assert.Equal(t, []string{"https://docs.example.org"}, cfg.Server.CORSOrigins)
}

func TestValidate(t *testing.T) {
	cfg := Default()
	cfg.Search.MaxResults = 1
	assert.Error(t, cfg.Validate())

	cfg = Default()
	cfg.Server.Port = 0
	assert.Error(t, cfg.Validate())

	cfg = Default()
	cfg.Kafka.Enabled = true
	cfg.Kafka.Brokers = nil
	assert.Error(t, cfg.Validate())

	assert.NoError(t, Default().Validate())
}

func TestPostgresDSN(t *testing.T) {
	cfg := Default().Postgres
	assert.Equal(t,
		"host=localhost port=5432 user=docsearch password=localdev dbname=docsearch sslmode=disable",
		cfg.DSN())
}
