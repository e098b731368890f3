package mailmerge

import (
	"errors"
	"os"
	"strconv"
	"strings"
	"sync"
	"time"
)

// Config contains the options of the merge engine
type Config struct {
	// CacheMaxSize is the maximum number of prepared templates to cache. 0 disables caching.
	CacheMaxSize int
	// CacheTTL is the time-to-live for cached templates. 0 means no expiration.
	CacheTTL time.Duration
	// LogLevel controls the verbosity of logging (debug, info, warn, error, off)
	LogLevel string
	// Separator is inserted between composed records: "section" or "page".
	Separator string
}

var (
	globalConfig      *Config
	globalConfigMutex sync.RWMutex
	configOnce        sync.Once
)

func init() {
	configOnce.Do(func() {
		globalConfig = ConfigFromEnvironment()
	})
}

// DefaultConfig returns the default configuration
func DefaultConfig() *Config {
	return &Config{
		CacheMaxSize: 32,
		CacheTTL:     0,
		LogLevel:     "info",
		Separator:    SeparatorSection.String(),
	}
}

// ConfigFromEnvironment creates a configuration from MAILMERGE_* environment variables
func ConfigFromEnvironment() *Config {
	config := DefaultConfig()

	if val := os.Getenv("MAILMERGE_CACHE_MAX_SIZE"); val != "" {
		if size, err := strconv.Atoi(val); err == nil {
			config.CacheMaxSize = size
		}
	}

	if val := os.Getenv("MAILMERGE_CACHE_TTL"); val != "" {
		if duration, err := time.ParseDuration(val); err == nil {
			config.CacheTTL = duration
		}
	}

	if val := os.Getenv("MAILMERGE_LOG_LEVEL"); val != "" {
		config.LogLevel = strings.ToLower(strings.TrimSpace(val))
	}

	if val := os.Getenv("MAILMERGE_SEPARATOR"); val != "" {
		config.Separator = strings.ToLower(strings.TrimSpace(val))
	}

	return config
}

// NewConfigWithDefaults creates a new configuration with defaults applied to unset fields
func NewConfigWithDefaults(overrides *Config) *Config {
	defaults := DefaultConfig()
	if overrides == nil {
		return defaults
	}

	config := *overrides
	if config.LogLevel == "" {
		config.LogLevel = defaults.LogLevel
	}
	if config.Separator == "" {
		config.Separator = defaults.Separator
	}
	return &config
}

// Validate checks if the configuration is valid
func (c *Config) Validate() error {
	if c.CacheMaxSize < 0 {
		return errors.New("cache max size cannot be negative")
	}

	if c.CacheTTL < 0 {
		return errors.New("cache TTL cannot be negative")
	}

	validLogLevels := map[string]bool{
		"debug": true,
		"info":  true,
		"warn":  true,
		"error": true,
		"off":   true,
	}
	if !validLogLevels[c.LogLevel] {
		return errors.New("invalid log level: " + c.LogLevel)
	}

	if _, err := ParseSeparator(c.Separator); err != nil {
		return err
	}

	return nil
}

// GetGlobalConfig returns a copy of the global configuration
func GetGlobalConfig() *Config {
	globalConfigMutex.RLock()
	defer globalConfigMutex.RUnlock()

	if globalConfig == nil {
		return DefaultConfig()
	}

	configCopy := *globalConfig
	return &configCopy
}

// SetGlobalConfig sets the global configuration
func SetGlobalConfig(config *Config) {
	globalConfigMutex.Lock()
	globalConfig = config
	globalConfigMutex.Unlock()

	// Outside the lock: the logger reads the config back.
	UpdateLoggerFromConfig()
}
