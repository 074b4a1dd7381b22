// Package config provides unified configuration loading for the Asset Engine.
// Supports YAML files, environment variables, and programmatic overrides.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config holds all configuration for the Asset Engine.
type Config struct {
	Database      DatabaseConfig      `yaml:"database"`
	ObjectStore   ObjectStoreConfig   `yaml:"object_store"`
	Cache         CacheConfig         `yaml:"cache"`
	Events        EventsConfig        `yaml:"events"`
	OCR           OCRConfig           `yaml:"ocr"`
	Render        RenderConfig        `yaml:"render"`
	Layout        LayoutConfig        `yaml:"layout"`
	Ingestion     IngestionConfig     `yaml:"ingestion"`
	Observability ObservabilityConfig `yaml:"observability"`
}

// DatabaseConfig holds database connection settings.
type DatabaseConfig struct {
	Driver   string         `yaml:"driver"` // sqlite or postgres
	SQLite   SQLiteConfig   `yaml:"sqlite"`
	Postgres PostgresConfig `yaml:"postgres"`
}

// SQLiteConfig holds SQLite-specific settings.
type SQLiteConfig struct {
	Path         string `yaml:"path"`
	MaxOpenConns int    `yaml:"max_open_conns"`
}

// PostgresConfig holds Postgres-specific settings.
type PostgresConfig struct {
	DSN             string        `yaml:"dsn"`
	MaxOpenConns    int           `yaml:"max_open_conns"`
	MaxIdleConns    int           `yaml:"max_idle_conns"`
	ConnMaxLifetime time.Duration `yaml:"conn_max_lifetime"`
}

// ObjectStoreConfig holds object storage settings.
type ObjectStoreConfig struct {
	Driver string        `yaml:"driver"` // minio or local
	MinIO  MinIOConfig   `yaml:"minio"`
	Local  LocalFSConfig `yaml:"local"`
}

// MinIOConfig holds MinIO-specific settings.
type MinIOConfig struct {
	Endpoint  string `yaml:"endpoint"`
	AccessKey string `yaml:"access_key"`
	SecretKey string `yaml:"secret_key"`
	Bucket    string `yaml:"bucket"`
	UseSSL    bool   `yaml:"use_ssl"`
}

// LocalFSConfig holds local-disk object store settings.
type LocalFSConfig struct {
	Root string `yaml:"root"`
}

// CacheConfig holds dedup cache settings.
type CacheConfig struct {
	Driver string        `yaml:"driver"` // memory or redis
	TTL    time.Duration `yaml:"ttl"`
	Redis  RedisConfig   `yaml:"redis"`
}

// RedisConfig holds Redis-specific settings.
type RedisConfig struct {
	Addr     string `yaml:"addr"`
	Password string `yaml:"password"`
	DB       int    `yaml:"db"`
	PoolSize int    `yaml:"pool_size"`
}

// EventsConfig holds ingestion event publishing settings.
type EventsConfig struct {
	Enabled bool   `yaml:"enabled"`
	NATSURL string `yaml:"nats_url"`
	Subject string `yaml:"subject"`
}

// OCRConfig holds OCR service settings.
type OCRConfig struct {
	Endpoint string        `yaml:"endpoint"`
	APIToken string        `yaml:"api_token"`
	Timeout  time.Duration `yaml:"timeout"`
}

// RenderConfig holds page rendering settings.
type RenderConfig struct {
	RendererBin  string        `yaml:"renderer_bin"`
	InspectorBin string        `yaml:"inspector_bin"`
	PageTimeout  time.Duration `yaml:"page_timeout"`
	MaxParallel  int           `yaml:"max_parallel"` // 0 = derive from host
}

// LayoutConfig holds layout extraction tool settings.
type LayoutConfig struct {
	ToolBin string        `yaml:"tool_bin"`
	Timeout time.Duration `yaml:"timeout"`
}

// IngestionConfig holds ingestion pipeline settings.
type IngestionConfig struct {
	StageTimeout time.Duration `yaml:"stage_timeout"`
}

// ObservabilityConfig holds logging settings.
type ObservabilityConfig struct {
	LogLevel  string `yaml:"log_level"`
	LogFormat string `yaml:"log_format"`
}

// Load reads configuration from a YAML file and applies environment overrides.
func Load(path string) (*Config, error) {
	cfg := DefaultConfig()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read config file: %w", err)
		}

		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parse config file: %w", err)
		}
	}

	applyEnvOverrides(cfg)

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validate config: %w", err)
	}

	return cfg, nil
}

// DefaultConfig returns a configuration with sensible defaults for development.
func DefaultConfig() *Config {
	return &Config{
		Database: DatabaseConfig{
			Driver: "sqlite",
			SQLite: SQLiteConfig{
				Path:         "/tmp/asset-engine.db",
				MaxOpenConns: 1,
			},
			Postgres: PostgresConfig{
				MaxOpenConns:    25,
				MaxIdleConns:    5,
				ConnMaxLifetime: 5 * time.Minute,
			},
		},
		ObjectStore: ObjectStoreConfig{
			Driver: "local",
			MinIO: MinIOConfig{
				Endpoint: "localhost:9000",
				Bucket:   "documents",
			},
			Local: LocalFSConfig{
				Root: "/tmp/asset-engine-objects",
			},
		},
		Cache: CacheConfig{
			Driver: "memory",
			TTL:    24 * time.Hour,
			Redis: RedisConfig{
				Addr:     "localhost:6379",
				DB:       0,
				PoolSize: 10,
			},
		},
		Events: EventsConfig{
			Enabled: false,
			NATSURL: "nats://localhost:4222",
			Subject: "documents.ingested",
		},
		OCR: OCRConfig{
			Endpoint: "http://localhost:8470",
			Timeout:  60 * time.Second,
		},
		Render: RenderConfig{
			RendererBin:  "pdftocairo",
			InspectorBin: "qpdf",
			PageTimeout:  30 * time.Second,
		},
		Layout: LayoutConfig{
			ToolBin: "pdf-spans",
			Timeout: 30 * time.Second,
		},
		Ingestion: IngestionConfig{
			StageTimeout: 2 * time.Minute,
		},
		Observability: ObservabilityConfig{
			LogLevel:  "info",
			LogFormat: "json",
		},
	}
}

// Validate checks the configuration for errors.
func (c *Config) Validate() error {
	if c.Database.Driver != "sqlite" && c.Database.Driver != "postgres" {
		return fmt.Errorf("invalid database driver: %s", c.Database.Driver)
	}

	if c.ObjectStore.Driver != "minio" && c.ObjectStore.Driver != "local" {
		return fmt.Errorf("invalid object store driver: %s", c.ObjectStore.Driver)
	}

	if c.Cache.Driver != "memory" && c.Cache.Driver != "redis" {
		return fmt.Errorf("invalid cache driver: %s", c.Cache.Driver)
	}

	if c.Render.MaxParallel < 0 {
		return fmt.Errorf("render max_parallel cannot be negative")
	}

	if c.Ingestion.StageTimeout <= 0 {
		return fmt.Errorf("ingestion stage_timeout must be positive")
	}

	return nil
}

// DatabaseDSN returns the appropriate database connection string.
func (c *Config) DatabaseDSN() string {
	if c.Database.Driver == "sqlite" {
		return c.Database.SQLite.Path
	}
	return c.Database.Postgres.DSN
}

// applyEnvOverrides applies environment variable overrides to config.
func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv("DATABASE_URL"); v != "" {
		if strings.HasPrefix(v, "sqlite:") {
			cfg.Database.Driver = "sqlite"
			cfg.Database.SQLite.Path = strings.TrimPrefix(v, "sqlite:")
		} else if strings.HasPrefix(v, "postgres") {
			cfg.Database.Driver = "postgres"
			cfg.Database.Postgres.DSN = v
		}
	}

	if v := os.Getenv("MINIO_ENDPOINT"); v != "" {
		cfg.ObjectStore.Driver = "minio"
		cfg.ObjectStore.MinIO.Endpoint = v
	}

	if v := os.Getenv("MINIO_ACCESS_KEY"); v != "" {
		cfg.ObjectStore.MinIO.AccessKey = v
	}

	if v := os.Getenv("MINIO_SECRET_KEY"); v != "" {
		cfg.ObjectStore.MinIO.SecretKey = v
	}

	if v := os.Getenv("MINIO_BUCKET"); v != "" {
		cfg.ObjectStore.MinIO.Bucket = v
	}

	if v := os.Getenv("REDIS_URL"); v != "" {
		cfg.Cache.Driver = "redis"
		cfg.Cache.Redis.Addr = strings.TrimPrefix(v, "redis://")
	}

	if v := os.Getenv("NATS_URL"); v != "" {
		cfg.Events.Enabled = true
		cfg.Events.NATSURL = v
	}

	if v := os.Getenv("OCR_ENDPOINT"); v != "" {
		cfg.OCR.Endpoint = v
	}

	if v := os.Getenv("OCR_API_TOKEN"); v != "" {
		cfg.OCR.APIToken = v
	}

	if v := os.Getenv("RENDERER_BIN"); v != "" {
		cfg.Render.RendererBin = v
	}

	if v := os.Getenv("INSPECTOR_BIN"); v != "" {
		cfg.Render.InspectorBin = v
	}

	if v := os.Getenv("LAYOUT_TOOL_BIN"); v != "" {
		cfg.Layout.ToolBin = v
	}

	if v := os.Getenv("RENDER_MAX_PARALLEL"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.Render.MaxParallel = n
		}
	}

	if v := os.Getenv("LOG_LEVEL"); v != "" {
		cfg.Observability.LogLevel = v
	}

	if v := os.Getenv("LOG_FORMAT"); v != "" {
		cfg.Observability.LogFormat = v
	}
}
