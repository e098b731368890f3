// Package config provides centralized configuration management for the
// mail merge server. Settings come from environment variables with defaults
// and are validated on startup.
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
	Merge    MergeConfig
	Logging  LoggingConfig
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	// Host is the interface to bind to (default: 0.0.0.0)
	Host string `env:"SERVER_HOST" default:"0.0.0.0"`

	// Port is the port to listen on (default: 5000)
	Port int `env:"PORT" envAlt:"SERVER_PORT" default:"5000"`

	// ReadTimeout is the maximum duration for reading a request (default: 60s)
	ReadTimeout time.Duration `env:"SERVER_READ_TIMEOUT" default:"60s"`

	// WriteTimeout is the maximum duration for writing a response (default: 120s)
	WriteTimeout time.Duration `env:"SERVER_WRITE_TIMEOUT" default:"120s"`

	// IdleTimeout is the keep-alive timeout (default: 60s)
	IdleTimeout time.Duration `env:"SERVER_IDLE_TIMEOUT" default:"60s"`

	// ShutdownTimeout bounds graceful shutdown, including running jobs (default: 60s)
	ShutdownTimeout time.Duration `env:"SERVER_SHUTDOWN_TIMEOUT" default:"60s"`

	// RequestTimeout is the middleware timeout for requests (default: 120s)
	RequestTimeout time.Duration `env:"SERVER_REQUEST_TIMEOUT" default:"120s"`
}

// DatabaseConfig holds the optional job store database settings. Without a
// URL jobs are kept in memory.
type DatabaseConfig struct {
	URL string `env:"DATABASE_URL" envAlt:"DB_URL"`

	// MaxConns is the maximum number of connections in the pool (default: 5)
	MaxConns int `env:"DB_MAX_CONNS" default:"5"`

	// MinConns is the minimum number of connections to keep open (default: 1)
	MinConns int `env:"DB_MIN_CONNS" default:"1"`

	// MaxConnLifetime is the maximum lifetime of a connection (default: 1h)
	MaxConnLifetime time.Duration `env:"DB_MAX_CONN_LIFETIME" default:"1h"`
}

// UploadConfig holds upload limits.
type UploadConfig struct {
	// MaxFileSize is the maximum accepted request body, e.g. 52428800 or 50MB (default: 50MB)
	MaxFileSize int64 `env:"UPLOAD_MAX_FILE_SIZE" default:"50MB" unit:"bytes"`

	// MaxTemplates is the maximum number of templates per job (default: 20)
	MaxTemplates int `env:"UPLOAD_MAX_TEMPLATES" default:"20"`
}

// MergeConfig holds merge job settings.
type MergeConfig struct {
	// MaxRows caps the records per job (default: 500)
	MaxRows int `env:"MERGE_MAX_ROWS" default:"500"`

	// HeaderRow is the spreadsheet row holding field names (default: 3)
	HeaderRow int `env:"MERGE_HEADER_ROW" default:"3"`

	// Sheet is the worksheet to read; empty means the first one
	Sheet string `env:"MERGE_SHEET"`

	// MaxConcurrentJobs caps jobs running at the same time (default: 4)
	MaxConcurrentJobs int `env:"MERGE_MAX_CONCURRENT_JOBS" default:"4"`

	// QueueTimeout is how long a job may wait for a free worker (default: 10m)
	QueueTimeout time.Duration `env:"MERGE_QUEUE_TIMEOUT" default:"10m"`

	// WorkDir is the parent directory of job workspaces (default: OS temp dir)
	WorkDir string `env:"MERGE_WORK_DIR"`

	// Timezone names the zone used for file name dates (default: UTC)
	Timezone string `env:"MERGE_TIMEZONE" default:"UTC"`

	// RegistryFile is an optional YAML placeholder registry
	RegistryFile string `env:"MERGE_REGISTRY_FILE"`

	// Separator between composed records: section or page (default: section)
	Separator string `env:"MERGE_SEPARATOR" default:"section" lower:"true"`

	// Mode is the default output mode: combined or separate (default: combined)
	Mode string `env:"MERGE_MODE" default:"combined" lower:"true"`

	// JobRetention is how long finished jobs and their files are kept (default: 1h)
	JobRetention time.Duration `env:"MERGE_JOB_RETENTION" default:"1h"`

	// JanitorInterval is how often expired jobs are removed (default: 5m)
	JanitorInterval time.Duration `env:"MERGE_JANITOR_INTERVAL" default:"5m"`
}

// LoggingConfig holds logging settings.
type LoggingConfig struct {
	// Level is the minimum log level: debug, info, warn, error (default: info)
	Level string `env:"LOG_LEVEL" default:"info" lower:"true"`

	// Format is the log format: text or json (default: text)
	Format string `env:"LOG_FORMAT" default:"text" lower:"true"`
}

// Addr returns the server listen address in host:port format.
func (c *ServerConfig) Addr() string {
	return c.Host + ":" + strconv.Itoa(c.Port)
}

// Location resolves the configured timezone.
func (c *MergeConfig) Location() (*time.Location, error) {
	return time.LoadLocation(c.Timezone)
}
