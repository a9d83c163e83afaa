// Package config defines the marketsearch configuration, its defaults and
// validation.
package config

import (
	"fmt"
	"strings"
	"time"
)

// Config is the root configuration structure. Fields are populated from a TOML
// file and then optionally overridden by MARKETSEARCH_* environment variables.
type Config struct {
	Postgres  PostgresConfig  `toml:"postgres"`
	Redis     RedisConfig     `toml:"redis"`
	S3        S3Config        `toml:"s3"`
	Embedding EmbeddingConfig `toml:"embedding"`
	Search    SearchConfig    `toml:"search"`
	Ingest    IngestConfig    `toml:"ingest"`
	Server    ServerConfig    `toml:"server"`
	Metrics   MetricsConfig   `toml:"metrics"`
	Mode      string          `toml:"mode"`
	LogLevel  string          `toml:"log_level"`
}

// PostgresConfig holds connection parameters for the pgvector database.
type PostgresConfig struct {
	DSN           string   `toml:"dsn"`
	Host          string   `toml:"host"`
	Port          int      `toml:"port"`
	Database      string   `toml:"database"`
	User          string   `toml:"user"`
	Password      string   `toml:"password"`
	SSLMode       string   `toml:"ssl_mode"`
	PoolMaxConns  int      `toml:"pool_max_conns"`
	PoolMinConns  int      `toml:"pool_min_conns"`
	ConnTimeout   duration `toml:"conn_timeout"`
	RunMigrations bool     `toml:"run_migrations"`
}

// RedisConfig holds Redis connection parameters. Redis backs the embedding
// cache and the API rate limiter; both are skipped when it is disabled.
type RedisConfig struct {
	Enabled      bool     `toml:"enabled"`
	Addr         string   `toml:"addr"`
	Password     string   `toml:"password"`
	DB           int      `toml:"db"`
	PoolSize     int      `toml:"pool_size"`
	MaxRetries   int      `toml:"max_retries"`
	TLSEnabled   bool     `toml:"tls_enabled"`
	EmbeddingTTL duration `toml:"embedding_ttl"`
}

// S3Config holds object storage parameters for the raw ingest archive.
type S3Config struct {
	Enabled        bool   `toml:"enabled"`
	Endpoint       string `toml:"endpoint"`
	Region         string `toml:"region"`
	Bucket         string `toml:"bucket"`
	Prefix         string `toml:"prefix"`
	AccessKey      string `toml:"access_key"`
	SecretKey      string `toml:"secret_key"`
	UseSSL         bool   `toml:"use_ssl"`
	ForcePathStyle bool   `toml:"force_path_style"`
}

// EmbeddingConfig selects and configures the embedding provider.
type EmbeddingConfig struct {
	// Provider is "openai" or "mock".
	Provider  string `toml:"provider"`
	APIKey    string `toml:"api_key"`
	BaseURL   string `toml:"base_url"`
	Model     string `toml:"model"`
	BatchSize int    `toml:"batch_size"`
}

// SearchConfig tunes the query engine.
type SearchConfig struct {
	// Store is "postgres" or "memory".
	Store        string   `toml:"store"`
	PageSize     int      `toml:"page_size"`
	Dimensions   int      `toml:"dimensions"`
	EmbedTimeout duration `toml:"embed_timeout"`
	QueryTimeout duration `toml:"query_timeout"`
}

// IngestConfig holds the source crawl parameters.
type IngestConfig struct {
	Sources           []string `toml:"sources"`
	Interval          duration `toml:"interval"`
	BackfillSince     string   `toml:"backfill_since"`
	MaxPages          int      `toml:"max_pages"`
	PageSize          int      `toml:"page_size"`
	RequestsPerSecond float64  `toml:"requests_per_second"`
	Timeout           duration `toml:"timeout"`

	Polymarket PolymarketConfig `toml:"polymarket"`
	Kalshi     KalshiConfig     `toml:"kalshi"`
	Manifold   ManifoldConfig   `toml:"manifold"`
}

// BackfillTime parses BackfillSince. Markets that closed before it are not
// ingested.
func (c IngestConfig) BackfillTime() (time.Time, error) {
	return time.Parse(time.DateOnly, c.BackfillSince)
}

// PolymarketConfig holds the Gamma API endpoint.
type PolymarketConfig struct {
	GammaHost string `toml:"gamma_host"`
	SiteURL   string `toml:"site_url"`
}

// KalshiConfig holds the Kalshi trade API endpoint and optional credentials.
type KalshiConfig struct {
	BaseURL           string `toml:"base_url"`
	SiteURL           string `toml:"site_url"`
	APIKeyID          string `toml:"api_key_id"`
	RsaPrivateKeyPath string `toml:"rsa_private_key_path"`
}

// ManifoldConfig holds the Manifold API endpoint.
type ManifoldConfig struct {
	BaseURL string `toml:"base_url"`
}

// ServerConfig holds HTTP server parameters.
type ServerConfig struct {
	Host            string   `toml:"host"`
	Port            int      `toml:"port"`
	CORSOrigins     []string `toml:"cors_origins"`
	APIKey          string   `toml:"api_key"`
	RateLimit       int      `toml:"rate_limit"`
	RateWindow      duration `toml:"rate_window"`
	ReadTimeout     duration `toml:"read_timeout"`
	WriteTimeout    duration `toml:"write_timeout"`
	ShutdownTimeout duration `toml:"shutdown_timeout"`
}

// MetricsConfig controls the Prometheus endpoint.
type MetricsConfig struct {
	Enabled bool `toml:"enabled"`
}

// duration is a wrapper around time.Duration that supports TOML string decoding
// (e.g. "5m", "30s").
type duration struct {
	time.Duration
}

func (d *duration) UnmarshalText(text []byte) error {
	var err error
	d.Duration, err = time.ParseDuration(string(text))
	return err
}

func (d duration) MarshalText() ([]byte, error) {
	return []byte(d.Duration.String()), nil
}

// Defaults returns a Config populated with working local defaults.
func Defaults() Config {
	return Config{
		Postgres: PostgresConfig{
			Host:          "localhost",
			Port:          5432,
			Database:      "marketsearch",
			User:          "postgres",
			SSLMode:       "disable",
			PoolMaxConns:  10,
			PoolMinConns:  2,
			ConnTimeout:   duration{10 * time.Second},
			RunMigrations: true,
		},
		Redis: RedisConfig{
			Addr:         "localhost:6379",
			PoolSize:     20,
			MaxRetries:   3,
			EmbeddingTTL: duration{24 * time.Hour},
		},
		S3: S3Config{
			Endpoint:       "http://localhost:9000",
			Region:         "us-east-1",
			Bucket:         "marketsearch-raw",
			ForcePathStyle: true,
		},
		Embedding: EmbeddingConfig{
			Provider:  "openai",
			Model:     "text-embedding-3-large",
			BatchSize: 256,
		},
		Search: SearchConfig{
			Store:        "postgres",
			PageSize:     10,
			Dimensions:   1536,
			EmbedTimeout: duration{10 * time.Second},
			QueryTimeout: duration{5 * time.Second},
		},
		Ingest: IngestConfig{
			Sources:           []string{"manifold", "polymarket", "kalshi"},
			Interval:          duration{6 * time.Hour},
			BackfillSince:     "2023-01-01",
			PageSize:          500,
			RequestsPerSecond: 5,
			Timeout:           duration{30 * time.Second},
			Polymarket: PolymarketConfig{
				GammaHost: "https://gamma-api.polymarket.com",
				SiteURL:   "https://polymarket.com",
			},
			Kalshi: KalshiConfig{
				BaseURL: "https://api.elections.kalshi.com/trade-api/v2",
				SiteURL: "https://kalshi.com",
			},
			Manifold: ManifoldConfig{
				BaseURL: "https://api.manifold.markets",
			},
		},
		Server: ServerConfig{
			Port:            8000,
			CORSOrigins:     []string{"http://localhost:3000", "http://localhost:5173"},
			RateLimit:       60,
			RateWindow:      duration{time.Minute},
			ReadTimeout:     duration{15 * time.Second},
			WriteTimeout:    duration{30 * time.Second},
			ShutdownTimeout: duration{10 * time.Second},
		},
		Metrics:  MetricsConfig{Enabled: true},
		Mode:     "serve",
		LogLevel: "info",
	}
}

var validModes = map[string]bool{
	"serve":  true,
	"ingest": true,
	"full":   true,
}

var validLogLevels = map[string]bool{
	"debug": true,
	"info":  true,
	"warn":  true,
	"error": true,
}

var validSources = map[string]bool{
	"manifold":   true,
	"polymarket": true,
	"kalshi":     true,
}

// Serves reports whether the mode runs the HTTP API.
func (c *Config) Serves() bool { return c.Mode == "serve" || c.Mode == "full" }

// Ingests reports whether the mode runs the ingestion pipeline.
func (c *Config) Ingests() bool { return c.Mode == "ingest" || c.Mode == "full" }

// Validate checks Config for obviously invalid or missing values and returns a
// combined error describing every problem found.
func (c *Config) Validate() error {
	var errs []string
	add := func(format string, args ...any) { errs = append(errs, fmt.Sprintf(format, args...)) }

	c.Mode = strings.ToLower(c.Mode)
	if !validModes[c.Mode] {
		add("unknown mode %q (valid: serve, ingest, full)", c.Mode)
	}
	if !validLogLevels[strings.ToLower(c.LogLevel)] {
		add("unknown log_level %q (valid: debug, info, warn, error)", c.LogLevel)
	}

	switch c.Search.Store {
	case "postgres":
		c.validatePostgres(add)
	case "memory":
		if c.Mode == "ingest" {
			add("search: store %q cannot back a standalone ingest run", c.Search.Store)
		}
	default:
		add("search: unknown store %q (valid: postgres, memory)", c.Search.Store)
	}
	if c.Search.PageSize < 1 || c.Search.PageSize > 100 {
		add("search: page_size must be 1-100, got %d", c.Search.PageSize)
	}
	if c.Search.Dimensions < 1 {
		add("search: dimensions must be positive, got %d", c.Search.Dimensions)
	}
	if c.Search.Store == "postgres" && c.Search.Dimensions != 1536 {
		add("search: the postgres schema stores 1536 dimensions, got %d", c.Search.Dimensions)
	}

	switch c.Embedding.Provider {
	case "openai":
		if c.Embedding.APIKey == "" {
			add("embedding: api_key is required for provider openai")
		}
		if c.Embedding.BatchSize < 1 || c.Embedding.BatchSize > 2048 {
			add("embedding: batch_size must be 1-2048, got %d", c.Embedding.BatchSize)
		}
	case "mock":
	default:
		add("embedding: unknown provider %q (valid: openai, mock)", c.Embedding.Provider)
	}

	if c.Redis.Enabled {
		if c.Redis.Addr == "" {
			add("redis: addr must not be empty")
		}
		if c.Redis.PoolSize < 1 {
			add("redis: pool_size must be >= 1")
		}
	}

	if c.S3.Enabled {
		if c.S3.Bucket == "" {
			add("s3: bucket must not be empty")
		}
		if c.S3.Region == "" {
			add("s3: region must not be empty")
		}
	}

	if c.Ingests() {
		if len(c.Ingest.Sources) == 0 {
			add("ingest: sources must not be empty")
		}
		for _, s := range c.Ingest.Sources {
			if !validSources[s] {
				add("ingest: unknown source %q (valid: manifold, polymarket, kalshi)", s)
			}
		}
		if _, err := c.Ingest.BackfillTime(); err != nil {
			add("ingest: backfill_since must be YYYY-MM-DD, got %q", c.Ingest.BackfillSince)
		}
		if c.Ingest.Interval.Duration < 0 {
			add("ingest: interval must not be negative")
		}
		if c.Ingest.PageSize < 1 {
			add("ingest: page_size must be >= 1")
		}
		if c.Ingest.RequestsPerSecond <= 0 {
			add("ingest: requests_per_second must be > 0")
		}
		if (c.Ingest.Kalshi.APIKeyID == "") != (c.Ingest.Kalshi.RsaPrivateKeyPath == "") {
			add("ingest: kalshi api_key_id and rsa_private_key_path must be set together")
		}
	}

	if c.Serves() {
		if c.Server.Port <= 0 || c.Server.Port > 65535 {
			add("server: port must be 1-65535, got %d", c.Server.Port)
		}
		if c.Server.RateLimit < 0 {
			add("server: rate_limit must be >= 0")
		}
		if c.Server.RateLimit > 0 && c.Server.RateWindow.Duration <= 0 {
			add("server: rate_window must be positive when rate_limit is set")
		}
	}

	if len(errs) > 0 {
		return fmt.Errorf("config validation failed:\n  - %s", strings.Join(errs, "\n  - "))
	}
	return nil
}

func (c *Config) validatePostgres(add func(string, ...any)) {
	if strings.TrimSpace(c.Postgres.DSN) == "" {
		if c.Postgres.Host == "" {
			add("postgres: host must not be empty (or set postgres.dsn)")
		}
		if c.Postgres.Port <= 0 || c.Postgres.Port > 65535 {
			add("postgres: port must be 1-65535, got %d", c.Postgres.Port)
		}
		if c.Postgres.Database == "" {
			add("postgres: database must not be empty")
		}
	}
	if c.Postgres.PoolMaxConns < 1 {
		add("postgres: pool_max_conns must be >= 1")
	}
	if c.Postgres.PoolMinConns < 0 {
		add("postgres: pool_min_conns must be >= 0")
	}
	if c.Postgres.PoolMinConns > c.Postgres.PoolMaxConns {
		add("postgres: pool_min_conns must not exceed pool_max_conns")
	}
}
