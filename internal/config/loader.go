package config

import (
	"fmt"
	"os"
	"reflect"
	"strconv"
	"strings"
	"time"

	"github.com/benjaminschreck/go-mailmerge/pkg/mailmerge"
)

// Load reads configuration from environment variables.
// It applies defaults for unset values and validates the result.
// Returns an error if required values are missing or validation fails.
func Load() (*Config, error) {
	cfg := &Config{}

	if err := loadStruct(reflect.ValueOf(cfg).Elem()); err != nil {
		return nil, fmt.Errorf("config load: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config validation: %w", err)
	}

	return cfg, nil
}

var (
	durationType = reflect.TypeOf(time.Duration(0))
	timeType     = reflect.TypeOf(time.Time{})
)

// source describes where a field's value comes from, as read from its tags:
//
//	env       primary variable name
//	envAlt    fallback variable name
//	default   value used when neither variable is set
//	required  "true" rejects an unset variable
//	lower     "true" trims and lower-cases the value (enumerations)
//	unit      "bytes" accepts sizes such as 512KB or 50MB
type source struct {
	env, alt, def string
	required      bool
	lower         bool
	bytes         bool
}

func sourceOf(f reflect.StructField) source {
	return source{
		env:      f.Tag.Get("env"),
		alt:      f.Tag.Get("envAlt"),
		def:      f.Tag.Get("default"),
		required: f.Tag.Get("required") == "true",
		lower:    f.Tag.Get("lower") == "true",
		bytes:    f.Tag.Get("unit") == "bytes",
	}
}

// lookup returns the raw value for s and whether one was found.
func (s source) lookup() (string, bool, error) {
	value := os.Getenv(s.env)
	if value == "" && s.alt != "" {
		value = os.Getenv(s.alt)
	}
	if value == "" {
		if s.required {
			return "", false, fmt.Errorf("required environment variable %s is not set", s.env)
		}
		value = s.def
	}
	if s.lower {
		value = strings.ToLower(strings.TrimSpace(value))
	}
	return value, value != "", nil
}

// loadStruct recursively populates struct fields from environment variables.
func loadStruct(v reflect.Value) error {
	t := v.Type()

	for i := 0; i < t.NumField(); i++ {
		field := t.Field(i)
		fieldVal := v.Field(i)

		// Skip unexported fields
		if !fieldVal.CanSet() {
			continue
		}

		// Recurse into the config sections
		if field.Type.Kind() == reflect.Struct && field.Type != timeType {
			if err := loadStruct(fieldVal); err != nil {
				return err
			}
			continue
		}

		src := sourceOf(field)
		if src.env == "" {
			continue
		}

		value, ok, err := src.lookup()
		if err != nil {
			return err
		}
		if !ok {
			continue
		}

		if err := setField(fieldVal, value, src.bytes); err != nil {
			return fmt.Errorf("invalid value for %s=%q: %w", src.env, value, err)
		}
	}

	return nil
}

// setField sets a reflect.Value from a string based on its type.
func setField(field reflect.Value, value string, byteSize bool) error {
	switch field.Kind() {
	case reflect.String:
		field.SetString(value)

	case reflect.Int, reflect.Int64:
		switch {
		case field.Type() == durationType:
			d, err := time.ParseDuration(value)
			if err != nil {
				return fmt.Errorf("invalid duration: %w", err)
			}
			field.Set(reflect.ValueOf(d))
		case byteSize:
			n, err := parseByteSize(value)
			if err != nil {
				return err
			}
			field.SetInt(n)
		default:
			i, err := strconv.ParseInt(value, 10, 64)
			if err != nil {
				return fmt.Errorf("invalid integer: %w", err)
			}
			field.SetInt(i)
		}

	case reflect.Bool:
		b, err := strconv.ParseBool(value)
		if err != nil {
			return fmt.Errorf("invalid boolean: %w", err)
		}
		field.SetBool(b)

	default:
		return fmt.Errorf("unsupported field type: %s", field.Kind())
	}

	return nil
}

// byteUnits is ordered so that longer suffixes are tried first.
var byteUnits = []struct {
	suffix string
	factor int64
}{
	{"GB", 1 << 30},
	{"MB", 1 << 20},
	{"KB", 1 << 10},
	{"B", 1},
}

// parseByteSize accepts a plain byte count or a count with a KB, MB or GB
// suffix (binary multiples, case-insensitive).
func parseByteSize(value string) (int64, error) {
	s := strings.ToUpper(strings.TrimSpace(value))
	factor := int64(1)
	for _, u := range byteUnits {
		if strings.HasSuffix(s, u.suffix) {
			s = strings.TrimSpace(strings.TrimSuffix(s, u.suffix))
			factor = u.factor
			break
		}
	}
	n, err := strconv.ParseInt(s, 10, 64)
	if err != nil || n < 0 {
		return 0, fmt.Errorf("invalid size %q: want bytes or a KB, MB or GB value", value)
	}
	return n * factor, nil
}

// problems collects validation messages across config sections.
type problems []string

func (p *problems) add(format string, args ...any) {
	*p = append(*p, fmt.Sprintf(format, args...))
}

// Validate checks that the configuration is valid.
// Returns an error describing all validation failures.
func (c *Config) Validate() error {
	var p problems

	c.Server.validate(&p)
	c.Database.validate(&p)
	c.Upload.validate(&p)
	c.Merge.validate(&p)
	c.Logging.validate(&p)

	if len(p) > 0 {
		return fmt.Errorf("validation failed:\n  - %s", strings.Join(p, "\n  - "))
	}

	return nil
}

func (c *ServerConfig) validate(p *problems) {
	if c.Port <= 0 || c.Port > 65535 {
		p.add("PORT (%d) must be 1-65535", c.Port)
	}
	if c.ShutdownTimeout <= 0 {
		p.add("SERVER_SHUTDOWN_TIMEOUT must be positive")
	}
}

// validate checks pool sizes only when a database is configured; without
// one jobs are kept in memory.
func (c *DatabaseConfig) validate(p *problems) {
	if c.URL == "" {
		return
	}
	if c.MaxConns <= 0 {
		p.add("DB_MAX_CONNS must be positive")
	}
	if c.MaxConns < c.MinConns {
		p.add("DB_MAX_CONNS (%d) must be >= DB_MIN_CONNS (%d)", c.MaxConns, c.MinConns)
	}
}

func (c *UploadConfig) validate(p *problems) {
	if c.MaxFileSize <= 0 {
		p.add("UPLOAD_MAX_FILE_SIZE must be positive")
	}
	if c.MaxTemplates <= 0 {
		p.add("UPLOAD_MAX_TEMPLATES must be positive")
	}
}

func (c *MergeConfig) validate(p *problems) {
	if c.MaxRows <= 0 {
		p.add("MERGE_MAX_ROWS must be positive")
	}
	if c.HeaderRow <= 0 {
		p.add("MERGE_HEADER_ROW must be positive")
	}
	if c.MaxConcurrentJobs <= 0 {
		p.add("MERGE_MAX_CONCURRENT_JOBS must be positive")
	}
	if c.WorkDir != "" {
		if info, err := os.Stat(c.WorkDir); err != nil || !info.IsDir() {
			p.add("MERGE_WORK_DIR (%q) must be an existing directory", c.WorkDir)
		}
	}
	if _, err := c.Location(); err != nil {
		p.add("MERGE_TIMEZONE (%q) is not a known time zone", c.Timezone)
	}
	if _, err := mailmerge.ParseSeparator(c.Separator); err != nil {
		p.add("MERGE_SEPARATOR (%q) must be one of: section, page", c.Separator)
	}
	if c.Mode != "combined" && c.Mode != "separate" {
		p.add("MERGE_MODE (%q) must be one of: combined, separate", c.Mode)
	}
	if c.JobRetention <= 0 {
		p.add("MERGE_JOB_RETENTION must be positive")
	}
	if c.JanitorInterval <= 0 {
		p.add("MERGE_JANITOR_INTERVAL must be positive")
	}
}

func (c *LoggingConfig) validate(p *problems) {
	switch c.Level {
	case "debug", "info", "warn", "error":
	default:
		p.add("LOG_LEVEL (%q) must be one of: debug, info, warn, error", c.Level)
	}
	if c.Format != "text" && c.Format != "json" {
		p.add("LOG_FORMAT (%q) must be one of: text, json", c.Format)
	}
}

// String returns a safe string representation of the config for logging.
// The database URL is masked since it usually carries credentials.
func (c *Config) String() string {
	db := "memory"
	if c.Database.URL != "" {
		db = "[MASKED]"
	}

	var b strings.Builder
	b.WriteString("Config{")
	fmt.Fprintf(&b, "Server: {Host: %q, Port: %d}, ", c.Server.Host, c.Server.Port)
	fmt.Fprintf(&b, "Database: {URL: %s, MaxConns: %d}, ", db, c.Database.MaxConns)
	fmt.Fprintf(&b, "Upload: {MaxFileSize: %d, MaxTemplates: %d}, ", c.Upload.MaxFileSize, c.Upload.MaxTemplates)
	fmt.Fprintf(&b, "Merge: {MaxRows: %d, HeaderRow: %d, MaxConcurrentJobs: %d, Timezone: %q, Separator: %q, Mode: %q}, ",
		c.Merge.MaxRows, c.Merge.HeaderRow, c.Merge.MaxConcurrentJobs, c.Merge.Timezone, c.Merge.Separator, c.Merge.Mode)
	fmt.Fprintf(&b, "Logging: {Level: %q, Format: %q}", c.Logging.Level, c.Logging.Format)
	b.WriteString("}")
	return b.String()
}
