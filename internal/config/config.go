// package config provides a minimal environment-backed configuration loader
// used by the service bootstrap (cmd/triaged/main.go).
package config

import (
	"os"
	"strconv"
	"time"
)

// Config holds the runtime config values used by main.go.
type Config struct {
	DatabaseURL string // DATABASE_URL
	ListenAddr  string // LISTEN_ADDR (default :8080)

	// Admin auth. When AuthSecret is empty the auth middleware is not
	// installed (dev only).
	AuthSecret string // AUTH_SECRET

	// Recompute scheduler.
	DebounceFloor    time.Duration // DEBOUNCE_FLOOR_MS (default 2000)
	StalenessCeiling time.Duration // STALENESS_CEILING_SECONDS (default 60)

	// Audit shipping pipeline (all optional; streamer starts only when the
	// Kafka pieces are present).
	KafkaBrokers string // KAFKA_BROKERS (comma separated)
	KafkaTopic   string // KAFKA_TOPIC
	S3Bucket     string // S3_BUCKET
	S3Prefix     string // S3_PREFIX

	// Directory for the file-backed audit store when no database is
	// configured.
	AuditDir string // AUDIT_DIR (default ./audit)
}

// LoadFromEnv reads config values from environment variables and returns a
// Config pointer.
func LoadFromEnv() *Config {
	cfg := &Config{
		DatabaseURL:  os.Getenv("DATABASE_URL"),
		ListenAddr:   os.Getenv("LISTEN_ADDR"),
		AuthSecret:   os.Getenv("AUTH_SECRET"),
		KafkaBrokers: os.Getenv("KAFKA_BROKERS"),
		KafkaTopic:   os.Getenv("KAFKA_TOPIC"),
		S3Bucket:     os.Getenv("S3_BUCKET"),
		S3Prefix:     os.Getenv("S3_PREFIX"),
		AuditDir:     os.Getenv("AUDIT_DIR"),
	}

	// sensible defaults
	if cfg.ListenAddr == "" {
		cfg.ListenAddr = ":8080"
	}
	if cfg.AuditDir == "" {
		cfg.AuditDir = "./audit"
	}

	cfg.DebounceFloor = 2 * time.Second
	if v := os.Getenv("DEBOUNCE_FLOOR_MS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			cfg.DebounceFloor = time.Duration(n) * time.Millisecond
		}
	}

	cfg.StalenessCeiling = 60 * time.Second
	if v := os.Getenv("STALENESS_CEILING_SECONDS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			cfg.StalenessCeiling = time.Duration(n) * time.Second
		}
	}

	return cfg
}
