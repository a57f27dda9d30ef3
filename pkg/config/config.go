// Package config loads service configuration from environment variables.
package config

import (
	"os"
	"strconv"
	"time"
)

// Config holds the dispatch service configuration.
type Config struct {
	Port        string
	LogLevel    string
	Environment string

	// Storage. DatabaseURL switches the job store to Postgres; empty means
	// the embedded SQLite file at SQLitePath carries everything.
	SQLitePath  string
	DatabaseURL string

	// Signing.
	SigningMode  string // hmac | ed25519 | unsigned
	SigningKey   string // hex or raw secret per mode
	SigningKeyID string

	// Channels.
	EmailEndpoint string
	EmailAPIKey   string
	EmailFrom     string
	ChromeURL     string // remote devtools websocket; empty launches locally

	// Worker.
	WorkerBatchSize    int
	WorkerPollInterval time.Duration
	MaxAttempts        int

	// Pacing. RedisAddr enables cross-instance pacing.
	RedisAddr        string
	DomainMinGap     time.Duration
	GlobalFloor      float64
	CapabilityBundle string // optional YAML bundle path

	// Alerting.
	AlertWebhookURL string
	AlertWindow     time.Duration
	AlertThreshold  int

	// Artifacts.
	ArtifactBackend string // fs | s3 | gcs
	ArtifactDir     string
	S3Bucket        string
	S3Region        string
	S3Endpoint      string
	S3Prefix        string
	GCSBucket       string
	GCSPrefix       string

	// Telemetry.
	OTLPEndpoint     string
	TelemetryEnabled bool
}

// Load reads configuration from the environment, with development defaults.
func Load() *Config {
	return &Config{
		Port:        envOr("PORT", "8080"),
		LogLevel:    envOr("LOG_LEVEL", "INFO"),
		Environment: envOr("ENVIRONMENT", "development"),

		SQLitePath:  envOr("SQLITE_PATH", "data/delist.db"),
		DatabaseURL: os.Getenv("DATABASE_URL"),

		SigningMode:  envOr("SIGNING_MODE", "hmac"),
		SigningKey:   os.Getenv("SIGNING_KEY"),
		SigningKeyID: envOr("SIGNING_KEY_ID", "local-dev"),

		EmailEndpoint: os.Getenv("EMAIL_ENDPOINT"),
		EmailAPIKey:   os.Getenv("EMAIL_API_KEY"),
		EmailFrom:     envOr("EMAIL_FROM", "privacy-requests@delist.local"),
		ChromeURL:     os.Getenv("CHROME_URL"),

		WorkerBatchSize:    envInt("WORKER_BATCH_SIZE", 5),
		WorkerPollInterval: envDuration("WORKER_POLL_INTERVAL", 30*time.Second),
		MaxAttempts:        envInt("MAX_ATTEMPTS", 6),

		RedisAddr:        os.Getenv("REDIS_ADDR"),
		DomainMinGap:     envDuration("DOMAIN_MIN_GAP", 5*time.Second),
		GlobalFloor:      envFloat("GLOBAL_CONFIDENCE_FLOOR", 0.80),
		CapabilityBundle: os.Getenv("CAPABILITY_BUNDLE"),

		AlertWebhookURL: os.Getenv("ALERT_WEBHOOK_URL"),
		AlertWindow:     envDuration("ALERT_WINDOW", 15*time.Minute),
		AlertThreshold:  envInt("ALERT_THRESHOLD", 5),

		ArtifactBackend: envOr("ARTIFACT_BACKEND", "fs"),
		ArtifactDir:     envOr("ARTIFACT_DIR", "data/artifacts"),
		S3Bucket:        os.Getenv("ARTIFACT_S3_BUCKET"),
		S3Region:        envOr("ARTIFACT_S3_REGION", os.Getenv("AWS_REGION")),
		S3Endpoint:      os.Getenv("ARTIFACT_S3_ENDPOINT"),
		S3Prefix:        os.Getenv("ARTIFACT_S3_PREFIX"),
		GCSBucket:       os.Getenv("ARTIFACT_GCS_BUCKET"),
		GCSPrefix:       os.Getenv("ARTIFACT_GCS_PREFIX"),

		OTLPEndpoint:     envOr("OTLP_ENDPOINT", "localhost:4317"),
		TelemetryEnabled: os.Getenv("TELEMETRY_ENABLED") == "true",
	}
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func envInt(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return fallback
}

func envFloat(key string, fallback float64) float64 {
	if v := os.Getenv(key); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			return f
		}
	}
	return fallback
}

func envDuration(key string, fallback time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return fallback
}
