package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/joho/godotenv"
)

// EnvPrefix prefixes every environment override.
const EnvPrefix = "MARKETSEARCH_"

// Load reads a TOML configuration file at path, merges it on top of the
// built-in defaults, applies MARKETSEARCH_* environment variable overrides,
// and returns the final Config. An empty path skips the file. The returned
// Config has NOT been validated; the caller should invoke Config.Validate()
// after Load.
func Load(path string) (*Config, error) {
	cfg := Defaults()

	if path != "" {
		md, err := toml.DecodeFile(path, &cfg)
		if err != nil {
			return nil, fmt.Errorf("config: decode %s: %w", path, err)
		}
		if undecoded := md.Undecoded(); len(undecoded) > 0 {
			keys := make([]string, len(undecoded))
			for i, k := range undecoded {
				keys[i] = k.String()
			}
			return nil, fmt.Errorf("config: unknown keys in %s: %s", path, strings.Join(keys, ", "))
		}
	}

	// A missing .env is normal outside development.
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("config: load .env: %w", err)
	}

	applyEnvOverrides(&cfg)
	return &cfg, nil
}

// applyEnvOverrides overwrites Config fields from MARKETSEARCH_* variables
// that are set and non-empty, so secrets can be injected at deploy time.
func applyEnvOverrides(cfg *Config) {
	// ── Postgres ──
	setStr(&cfg.Postgres.DSN, "POSTGRES_DSN")
	setStr(&cfg.Postgres.Host, "POSTGRES_HOST")
	setInt(&cfg.Postgres.Port, "POSTGRES_PORT")
	setStr(&cfg.Postgres.Database, "POSTGRES_DATABASE")
	setStr(&cfg.Postgres.User, "POSTGRES_USER")
	setStr(&cfg.Postgres.Password, "POSTGRES_PASSWORD")
	setStr(&cfg.Postgres.SSLMode, "POSTGRES_SSL_MODE")
	setInt(&cfg.Postgres.PoolMaxConns, "POSTGRES_POOL_MAX_CONNS")
	setInt(&cfg.Postgres.PoolMinConns, "POSTGRES_POOL_MIN_CONNS")
	setBool(&cfg.Postgres.RunMigrations, "POSTGRES_RUN_MIGRATIONS")

	// ── Redis ──
	setBool(&cfg.Redis.Enabled, "REDIS_ENABLED")
	setStr(&cfg.Redis.Addr, "REDIS_ADDR")
	setStr(&cfg.Redis.Password, "REDIS_PASSWORD")
	setInt(&cfg.Redis.DB, "REDIS_DB")
	setBool(&cfg.Redis.TLSEnabled, "REDIS_TLS_ENABLED")
	setDuration(&cfg.Redis.EmbeddingTTL, "REDIS_EMBEDDING_TTL")

	// ── S3 ──
	setBool(&cfg.S3.Enabled, "S3_ENABLED")
	setStr(&cfg.S3.Endpoint, "S3_ENDPOINT")
	setStr(&cfg.S3.Region, "S3_REGION")
	setStr(&cfg.S3.Bucket, "S3_BUCKET")
	setStr(&cfg.S3.Prefix, "S3_PREFIX")
	setStr(&cfg.S3.AccessKey, "S3_ACCESS_KEY")
	setStr(&cfg.S3.SecretKey, "S3_SECRET_KEY")
	setBool(&cfg.S3.UseSSL, "S3_USE_SSL")
	setBool(&cfg.S3.ForcePathStyle, "S3_FORCE_PATH_STYLE")

	// ── Embedding ──
	setStr(&cfg.Embedding.Provider, "EMBEDDING_PROVIDER")
	setStr(&cfg.Embedding.APIKey, "EMBEDDING_API_KEY")
	setStr(&cfg.Embedding.APIKey, "OPENAI_API_KEY") // wins when both are set
	setStr(&cfg.Embedding.BaseURL, "EMBEDDING_BASE_URL")
	setStr(&cfg.Embedding.Model, "EMBEDDING_MODEL")
	setInt(&cfg.Embedding.BatchSize, "EMBEDDING_BATCH_SIZE")

	// ── Search ──
	setStr(&cfg.Search.Store, "SEARCH_STORE")
	setInt(&cfg.Search.PageSize, "SEARCH_PAGE_SIZE")
	setDuration(&cfg.Search.EmbedTimeout, "SEARCH_EMBED_TIMEOUT")
	setDuration(&cfg.Search.QueryTimeout, "SEARCH_QUERY_TIMEOUT")

	// ── Ingest ──
	setStringSlice(&cfg.Ingest.Sources, "INGEST_SOURCES")
	setDuration(&cfg.Ingest.Interval, "INGEST_INTERVAL")
	setStr(&cfg.Ingest.BackfillSince, "INGEST_BACKFILL_SINCE")
	setInt(&cfg.Ingest.MaxPages, "INGEST_MAX_PAGES")
	setFloat64(&cfg.Ingest.RequestsPerSecond, "INGEST_REQUESTS_PER_SECOND")
	setStr(&cfg.Ingest.Kalshi.APIKeyID, "INGEST_KALSHI_API_KEY_ID")
	setStr(&cfg.Ingest.Kalshi.RsaPrivateKeyPath, "INGEST_KALSHI_RSA_PRIVATE_KEY_PATH")

	// ── Server ──
	setStr(&cfg.Server.Host, "SERVER_HOST")
	setInt(&cfg.Server.Port, "SERVER_PORT")
	setStringSlice(&cfg.Server.CORSOrigins, "SERVER_CORS_ORIGINS")
	setStr(&cfg.Server.APIKey, "SERVER_API_KEY")
	setInt(&cfg.Server.RateLimit, "SERVER_RATE_LIMIT")

	// ── Top-level ──
	setBool(&cfg.Metrics.Enabled, "METRICS_ENABLED")
	setStr(&cfg.Mode, "MODE")
	setStr(&cfg.LogLevel, "LOG_LEVEL")
}

// ---------------------------------------------------------------------------
// Typed env-var helpers. Each only mutates the target when the prefixed
// environment variable is present and parses.
// ---------------------------------------------------------------------------

func lookup(key string) (string, bool) {
	v := os.Getenv(EnvPrefix + key)
	return v, v != ""
}

func setStr(dst *string, key string) {
	if v, ok := lookup(key); ok {
		*dst = v
	}
}

func setInt(dst *int, key string) {
	if v, ok := lookup(key); ok {
		if n, err := strconv.Atoi(v); err == nil {
			*dst = n
		}
	}
}

func setFloat64(dst *float64, key string) {
	if v, ok := lookup(key); ok {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			*dst = f
		}
	}
}

func setBool(dst *bool, key string) {
	if v, ok := lookup(key); ok {
		if b, err := strconv.ParseBool(v); err == nil {
			*dst = b
		}
	}
}

func setDuration(dst *duration, key string) {
	if v, ok := lookup(key); ok {
		if d, err := time.ParseDuration(v); err == nil {
			dst.Duration = d
		}
	}
}

func setStringSlice(dst *[]string, key string) {
	v, ok := lookup(key)
	if !ok {
		return
	}
	var cleaned []string
	for _, p := range strings.Split(v, ",") {
		if p = strings.TrimSpace(p); p != "" {
			cleaned = append(cleaned, p)
		}
	}
	if len(cleaned) > 0 {
		*dst = cleaned
	}
}
