package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()

	assert.Equal(t, "sqlite", cfg.Database.Driver)
	assert.Equal(t, "local", cfg.ObjectStore.Driver)
	assert.Equal(t, "memory", cfg.Cache.Driver)
	assert.False(t, cfg.Events.Enabled)
	assert.Equal(t, "documents.ingested", cfg.Events.Subject)
	assert.Equal(t, "pdftocairo", cfg.Render.RendererBin)
	assert.Equal(t, "qpdf", cfg.Render.InspectorBin)
	assert.Equal(t, "pdf-spans", cfg.Layout.ToolBin)
	assert.Equal(t, 2*time.Minute, cfg.Ingestion.StageTimeout)

	assert.NoError(t, cfg.Validate())
}

func TestLoad_YAMLFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	content := `
database:
  driver: postgres
  postgres:
    dsn: postgres://localhost/assets
object_store:
  driver: minio
  minio:
    endpoint: minio.internal:9000
    bucket: docs
render:
  max_parallel: 4
ingestion:
  stage_timeout: 90s
`
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "postgres", cfg.Database.Driver)
	assert.Equal(t, "postgres://localhost/assets", cfg.DatabaseDSN())
	assert.Equal(t, "minio", cfg.ObjectStore.Driver)
	assert.Equal(t, "minio.internal:9000", cfg.ObjectStore.MinIO.Endpoint)
	assert.Equal(t, 4, cfg.Render.MaxParallel)
	assert.Equal(t, 90*time.Second, cfg.Ingestion.StageTimeout)

	// Untouched sections keep their defaults.
	assert.Equal(t, "memory", cfg.Cache.Driver)
	assert.Equal(t, "pdftocairo", cfg.Render.RendererBin)
}

func TestLoad_MissingFile(t *testing.T) {
	_, err := Load("/nonexistent/config.yaml")
	assert.Error(t, err)
}

func TestLoad_EnvOverrides(t *testing.T) {
	t.Setenv("DATABASE_URL", "postgres://db.internal/assets")
	t.Setenv("MINIO_ENDPOINT", "minio.internal:9000")
	t.Setenv("MINIO_ACCESS_KEY", "ak")
	t.Setenv("MINIO_SECRET_KEY", "sk")
	t.Setenv("REDIS_URL", "redis://redis.internal:6379")
	t.Setenv("NATS_URL", "nats://nats.internal:4222")
	t.Setenv("OCR_ENDPOINT", "http://ocr.internal:8470")
	t.Setenv("RENDER_MAX_PARALLEL", "6")
	t.Setenv("LOG_LEVEL", "debug")

	cfg, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, "postgres", cfg.Database.Driver)
	assert.Equal(t, "postgres://db.internal/assets", cfg.Database.Postgres.DSN)
	assert.Equal(t, "minio", cfg.ObjectStore.Driver)
	assert.Equal(t, "ak", cfg.ObjectStore.MinIO.AccessKey)
	assert.Equal(t, "redis", cfg.Cache.Driver)
	assert.Equal(t, "redis.internal:6379", cfg.Cache.Redis.Addr)
	assert.True(t, cfg.Events.Enabled)
	assert.Equal(t, "nats://nats.internal:4222", cfg.Events.NATSURL)
	assert.Equal(t, "http://ocr.internal:8470", cfg.OCR.Endpoint)
	assert.Equal(t, 6, cfg.Render.MaxParallel)
	assert.Equal(t, "debug", cfg.Observability.LogLevel)
}

func TestLoad_SQLiteDatabaseURL(t *testing.T) {
	t.Setenv("DATABASE_URL", "sqlite:/var/lib/asset-engine.db")

	cfg, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, "sqlite", cfg.Database.Driver)
	assert.Equal(t, "/var/lib/asset-engine.db", cfg.DatabaseDSN())
}

func TestValidate_Errors(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Database.Driver = "oracle"
	assert.Error(t, cfg.Validate())

	cfg = DefaultConfig()
	cfg.ObjectStore.Driver = "s3"
	assert.Error(t, cfg.Validate())

	cfg = DefaultConfig()
	cfg.Cache.Driver = "memcached"
	assert.Error(t, cfg.Validate())

	cfg = DefaultConfig()
	cfg.Render.MaxParallel = -1
	assert.Error(t, cfg.Validate())

	cfg = DefaultConfig()
	cfg.Ingestion.StageTimeout = 0
	assert.Error(t, cfg.Validate())
}
