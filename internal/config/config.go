// Package config loads application settings from environment variables.
// Every field has a default except the database URL, and the whole
// configuration is validated on startup.
package config

import (
	"strconv"
	"time"
)

// Config holds all application configuration.
type Config struct {
	Server   ServerConfig
	Database DatabaseConfig
	Upload   UploadConfig
	Matching MatchingConfig
	PDF      PDFConfig
	Redis    RedisConfig
	Rate     RateLimitConfig
	Security SecurityConfig
	Logging  LoggingConfig
	Metrics  MetricsConfig
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Host string `env:"SERVER_HOST" default:"0.0.0.0"`
	Port int    `env:"SERVER_PORT" default:"8080"`

	ReadTimeout  time.Duration `env:"SERVER_READ_TIMEOUT" default:"15s"`
	WriteTimeout time.Duration `env:"SERVER_WRITE_TIMEOUT" default:"60s"`
	IdleTimeout  time.Duration `env:"SERVER_IDLE_TIMEOUT" default:"60s"`

	// ShutdownTimeout bounds graceful shutdown, including waiting for
	// in-flight upload validations.
	ShutdownTimeout time.Duration `env:"SERVER_SHUTDOWN_TIMEOUT" default:"30s"`

	// RequestTimeout is the middleware timeout for non-upload requests.
	RequestTimeout time.Duration `env:"SERVER_REQUEST_TIMEOUT" default:"60s"`
}

// DatabaseConfig holds PostgreSQL connection settings.
type DatabaseConfig struct {
	// URL accepts DATABASE_URL or DB_URL.
	URL string `env:"DATABASE_URL" envAlt:"DB_URL" required:"true"`

	MaxConns        int           `env:"DB_MAX_CONNS" default:"20"`
	MinConns        int           `env:"DB_MIN_CONNS" default:"4"`
	MaxConnLifetime time.Duration `env:"DB_MAX_CONN_LIFETIME" default:"1h"`
	MaxConnIdleTime time.Duration `env:"DB_MAX_CONN_IDLE_TIME" default:"30m"`

	// Migrate applies the embedded schema on startup.
	Migrate bool `env:"DB_MIGRATE" default:"true"`
}

// UploadConfig holds workbook upload settings.
type UploadConfig struct {
	MaxFileSize   int64         `env:"UPLOAD_MAX_FILE_SIZE" default:"104857600"`
	MaxConcurrent int           `env:"UPLOAD_MAX_CONCURRENT" default:"5"`
	MaxWaitTime   time.Duration `env:"UPLOAD_MAX_WAIT_TIME" default:"30s"`
	Timeout       time.Duration `env:"UPLOAD_TIMEOUT" default:"10m"`

	// ChunkSize is the read size of the stream processor (default: 64KiB).
	ChunkSize int `env:"UPLOAD_CHUNK_SIZE" default:"65536"`

	// SessionTTL is how long a validated upload can be corrected and
	// finalized.
	SessionTTL time.Duration `env:"UPLOAD_SESSION_TTL" default:"30m"`

	// AmountTolerance is the absolute tolerance of amount cross-checks.
	AmountTolerance string `env:"UPLOAD_AMOUNT_TOLERANCE" default:"0.01"`
}

// MatchingConfig tunes vendor matching and suggestions.
type MatchingConfig struct {
	SimilarityThreshold float64 `env:"MATCH_SIMILARITY_THRESHOLD" default:"0.8"`
	SuggestionLimit     int     `env:"MATCH_SUGGESTION_LIMIT" default:"5"`
	ConfidenceThreshold int     `env:"SUGGEST_CONFIDENCE_THRESHOLD" default:"60"`
}

// PDFConfig holds PDF storage locations and the scheduled cleanup cadence.
type PDFConfig struct {
	Enabled bool   `env:"PDF_ENABLED" default:"true"`
	BaseDir string `env:"PDF_BASE_DIR" default:"uploads"`

	// Overrides for single directories; empty means BaseDir/<default>.
	TempDir    string `env:"PDF_TEMP_DIR"`
	ArchiveDir string `env:"PDF_ARCHIVE_DIR"`
	OrdersDir  string `env:"PDF_ORDERS_DIR"`

	MaintenanceInterval time.Duration `env:"PDF_MAINTENANCE_INTERVAL" default:"1h"`
}

// RedisConfig enables cross-process locking. An empty URL keeps locks
// in-process.
type RedisConfig struct {
	URL     string        `env:"REDIS_URL"`
	LockTTL time.Duration `env:"REDIS_LOCK_TTL" default:"5m"`
}

// RateLimitConfig holds per-IP request limits.
type RateLimitConfig struct {
	Enabled           bool `env:"RATE_LIMIT_ENABLED" default:"true"`
	RequestsPerMinute int  `env:"RATE_LIMIT_REQUESTS_PER_MINUTE" default:"100"`
	UploadLimit       int  `env:"RATE_LIMIT_UPLOAD" default:"10"`
}

// SecurityConfig holds API authentication and proxy trust settings.
type SecurityConfig struct {
	// APIKeys is a comma-separated list accepted in the X-API-Key header.
	APIKeys       []string `env:"API_KEYS"`
	RequireAPIKey bool     `env:"REQUIRE_API_KEY" default:"false"`

	// TrustedProxies lists CIDRs whose X-Forwarded-For is honoured.
	TrustedProxies []string `env:"TRUSTED_PROXIES"`

	EnableCSP bool `env:"SECURITY_ENABLE_CSP" default:"true"`
}

// LoggingConfig holds logging settings.
type LoggingConfig struct {
	Level  string `env:"LOG_LEVEL" default:"info"`
	Format string `env:"LOG_FORMAT" default:"text"`
}

// MetricsConfig controls the Prometheus endpoint.
type MetricsConfig struct {
	Enabled bool   `env:"METRICS_ENABLED" default:"true"`
	Path    string `env:"METRICS_PATH" default:"/metrics"`
}

// Addr returns the listen address in host:port form.
func (c *ServerConfig) Addr() string {
	return c.Host + ":" + strconv.Itoa(c.Port)
}
