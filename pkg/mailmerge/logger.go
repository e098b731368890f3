package mailmerge

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"sync"
)

type LogLevel int

const (
	LogDebug LogLevel = iota
	LogInfo
	LogWarn
	LogError
	LogOff
)

func (l LogLevel) String() string {
	switch l {
	case LogDebug:
		return "DEBUG"
	case LogInfo:
		return "INFO"
	case LogWarn:
		return "WARN"
	case LogError:
		return "ERROR"
	case LogOff:
		return "OFF"
	default:
		return "UNKNOWN"
	}
}

func (l LogLevel) slogLevel() slog.Level {
	switch l {
	case LogDebug:
		return slog.LevelDebug
	case LogWarn:
		return slog.LevelWarn
	case LogError:
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

type Fields map[string]any

// Logger is a leveled printf-style logger. Records are emitted through a
// slog.Logger, so the engine can share the application's log handler.
type Logger struct {
	out   *slog.Logger
	level LogLevel
	mu    sync.Mutex
}

var (
	globalLogger     *Logger
	globalLoggerOnce sync.Once
	globalLoggerMu   sync.RWMutex
)

func initGlobalLogger() {
	globalLoggerOnce.Do(func() {
		config := GetGlobalConfig()
		level := parseLogLevel(config.LogLevel)
		globalLogger = NewLogger(os.Stderr, level)
	})
}

func init() {
	initGlobalLogger()
}

func parseLogLevel(levelStr string) LogLevel {
	switch levelStr {
	case "debug":
		return LogDebug
	case "info":
		return LogInfo
	case "warn":
		return LogWarn
	case "error":
		return LogError
	case "off":
		return LogOff
	default:
		return LogInfo
	}
}

// NewLogger creates a logger writing text records to w.
func NewLogger(w io.Writer, level LogLevel) *Logger {
	if w == nil {
		w = io.Discard
	}
	h := slog.NewTextHandler(w, &slog.HandlerOptions{Level: slog.LevelDebug})
	return &Logger{out: slog.New(h), level: level}
}

// NewLoggerFromSlog wraps an existing slog.Logger. Records pass both the
// level given here and the handler's own level.
func NewLoggerFromSlog(l *slog.Logger, level LogLevel) *Logger {
	if l == nil {
		l = slog.Default()
	}
	return &Logger{out: l, level: level}
}

func (l *Logger) SetLevel(level LogLevel) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.level = level
}

func (l *Logger) Level() LogLevel {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.level
}

func (l *Logger) IsDebugMode() bool {
	return l.Level() == LogDebug
}

func (l *Logger) WithField(key string, value any) *Logger {
	return &Logger{out: l.out.With(key, value), level: l.Level()}
}

func (l *Logger) WithFields(fields Fields) *Logger {
	args := make([]any, 0, len(fields)*2)
	for k, v := range fields {
		args = append(args, k, v)
	}
	return &Logger{out: l.out.With(args...), level: l.Level()}
}

// Slog returns the underlying slog.Logger.
func (l *Logger) Slog() *slog.Logger {
	return l.out
}

func (l *Logger) log(level LogLevel, format string, args ...any) {
	if level < l.Level() {
		return
	}
	message := format
	if len(args) > 0 {
		message = fmt.Sprintf(format, args...)
	}
	l.out.Log(context.Background(), level.slogLevel(), message)
}

func (l *Logger) Debug(format string, args ...any) {
	l.log(LogDebug, format, args...)
}

func (l *Logger) Info(format string, args ...any) {
	l.log(LogInfo, format, args...)
}

func (l *Logger) Warn(format string, args ...any) {
	l.log(LogWarn, format, args...)
}

func (l *Logger) Error(format string, args ...any) {
	l.log(LogError, format, args...)
}

// Global logging functions
func SetLogger(logger *Logger) {
	initGlobalLogger()
	globalLoggerMu.Lock()
	globalLogger = logger
	globalLoggerMu.Unlock()
}

func GetLogger() *Logger {
	initGlobalLogger()
	globalLoggerMu.RLock()
	defer globalLoggerMu.RUnlock()
	return globalLogger
}

// WithFields returns the global logger with fields attached.
func WithFields(fields Fields) *Logger {
	return GetLogger().WithFields(fields)
}

// UpdateLoggerFromConfig updates the global logger based on the current global configuration
func UpdateLoggerFromConfig() {
	config := GetGlobalConfig()
	GetLogger().SetLevel(parseLogLevel(config.LogLevel))
}
