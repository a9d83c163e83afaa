package config

import "slices"

// RedactedConfig returns a copy of cfg with secrets replaced by "***", safe
// to log.
func RedactedConfig(cfg *Config) Config {
	out := *cfg

	redact(&out.Postgres.DSN)
	redact(&out.Postgres.Password)
	redact(&out.Redis.Password)
	redact(&out.S3.AccessKey)
	redact(&out.S3.SecretKey)
	redact(&out.Embedding.APIKey)
	redact(&out.Ingest.Kalshi.APIKeyID)
	redact(&out.Server.APIKey)

	out.Ingest.Sources = slices.Clone(cfg.Ingest.Sources)
	out.Server.CORSOrigins = slices.Clone(cfg.Server.CORSOrigins)
	return out
}

const redacted = "***"

func redact(s *string) {
	if *s != "" {
		*s = redacted
	}
}
