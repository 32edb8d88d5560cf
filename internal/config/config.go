// Package config loads the service configuration from environment variables.
// Every field has an env tag and usually a default; Load applies both and
// then validates the whole configuration, reporting every problem at once.
package config

import (
	"strconv"
	"time"
)

// Config holds all application configuration.
type Config struct {
	Server   ServerConfig
	Upload   UploadConfig
	Analysis AnalysisConfig
	Store    StoreConfig
	Database DatabaseConfig
	Export   ExportConfig
	Events   EventsConfig
	Rate     RateLimitConfig
	Security SecurityConfig
	Logging  LoggingConfig
	Schema   SchemaConfig
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Host string `env:"SERVER_HOST" default:"0.0.0.0"`
	Port int    `env:"SERVER_PORT" default:"8080"`

	ReadTimeout  time.Duration `env:"SERVER_READ_TIMEOUT" default:"15s"`
	WriteTimeout time.Duration `env:"SERVER_WRITE_TIMEOUT" default:"90s"`
	IdleTimeout  time.Duration `env:"SERVER_IDLE_TIMEOUT" default:"60s"`

	// ShutdownTimeout bounds graceful shutdown, including waiting for
	// in-flight submissions.
	ShutdownTimeout time.Duration `env:"SERVER_SHUTDOWN_TIMEOUT" default:"30s"`

	// RequestTimeout is applied by middleware to every request. It must
	// leave room for ANALYSIS_TIMEOUT.
	RequestTimeout time.Duration `env:"SERVER_REQUEST_TIMEOUT" default:"60s"`
}

// UploadConfig holds upload and session settings.
type UploadConfig struct {
	// MaxFileSize is the largest accepted upload in bytes (default: 100MB)
	MaxFileSize int64 `env:"UPLOAD_MAX_FILE_SIZE" default:"104857600"`

	// MaxConcurrent bounds analysis submissions across all sessions.
	MaxConcurrent int           `env:"UPLOAD_MAX_CONCURRENT" default:"5"`
	MaxWaitTime   time.Duration `env:"UPLOAD_MAX_WAIT_TIME" default:"30s"`

	// SessionTTL is how long an untouched upload session is kept.
	SessionTTL time.Duration `env:"UPLOAD_SESSION_TTL" default:"30m"`
}

// AnalysisConfig selects the analyzer. An empty BaseURL runs the local
// fallback generator instead of calling a service.
type AnalysisConfig struct {
	BaseURL string `env:"ANALYSIS_BASE_URL" envAlt:"ANALYSIS_URL"`

	// Routes overrides label routes as label=path pairs,
	// e.g. "firewall=/v2/fw,unknown=/v2/generic".
	Routes []string `env:"ANALYSIS_ROUTES"`

	Timeout         time.Duration `env:"ANALYSIS_TIMEOUT" default:"30s"`
	MaxPayloadBytes int64         `env:"ANALYSIS_MAX_PAYLOAD_BYTES" default:"67108864"`
}

// StoreConfig selects where results are kept.
type StoreConfig struct {
	// Driver is "memory" or "postgres" (default: memory)
	Driver string `env:"STORE_DRIVER" default:"memory"`
}

// DatabaseConfig holds Postgres settings, used when STORE_DRIVER=postgres.
type DatabaseConfig struct {
	// URL is the PostgreSQL connection string.
	// Supports both DATABASE_URL and DB_URL env vars for compatibility
	URL string `env:"DATABASE_URL" envAlt:"DB_URL"`

	MaxConns        int           `env:"DB_MAX_CONNS" default:"10"`
	MinConns        int           `env:"DB_MIN_CONNS" default:"1"`
	MaxConnLifetime time.Duration `env:"DB_MAX_CONN_LIFETIME" default:"1h"`
	MaxConnIdleTime time.Duration `env:"DB_MAX_CONN_IDLE_TIME" default:"30m"`
}

// ExportConfig holds report export settings.
type ExportConfig struct {
	// CacheSize is the number of rendered PDFs kept in memory.
	CacheSize int `env:"EXPORT_CACHE_SIZE" default:"128"`
}

// EventsConfig holds result event settings. Events are disabled when
// NATSURL is empty.
type EventsConfig struct {
	NATSURL string `env:"NATS_URL"`
	Subject string `env:"EVENTS_SUBJECT" default:"loglens.results"`
}

// RateLimitConfig holds per-IP rate limits.
type RateLimitConfig struct {
	Enabled bool `env:"RATE_LIMIT_ENABLED" default:"true"`

	// RequestsPerMinute applies to every route (default: 100)
	RequestsPerMinute int `env:"RATE_LIMIT_REQUESTS_PER_MINUTE" default:"100"`

	// UploadLimit applies to upload and analyze routes (default: 10)
	UploadLimit int `env:"RATE_LIMIT_UPLOAD" default:"10"`
}

// SecurityConfig holds security-related settings.
type SecurityConfig struct {
	// TrustedProxies is a comma-separated list of trusted proxy CIDRs
	TrustedProxies []string `env:"TRUSTED_PROXIES"`

	EnableCSP bool `env:"SECURITY_ENABLE_CSP" default:"true"`
}

// LoggingConfig holds logging settings.
type LoggingConfig struct {
	// Level is the minimum log level: debug, info, warn, error (default: info)
	Level string `env:"LOG_LEVEL" default:"info"`

	// Format is the log format: text or json (default: text)
	Format string `env:"LOG_FORMAT" default:"text"`
}

// SchemaConfig points at an optional YAML signature table that replaces
// the built-in one.
type SchemaConfig struct {
	SignaturesFile string `env:"SCHEMA_SIGNATURES_FILE"`
}

// Addr returns the server listen address in host:port format.
func (c *ServerConfig) Addr() string {
	return c.Host + ":" + strconv.Itoa(c.Port)
}

// UsePostgres reports whether results go to Postgres.
func (c *StoreConfig) UsePostgres() bool {
	return c.Driver == StoreDriverPostgres
}

// Store drivers.
const (
	StoreDriverMemory   = "memory"
	StoreDriverPostgres = "postgres"
)
