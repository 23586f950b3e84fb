package logz

import (
	"fmt"
	"io"
	"os"
	"strings"

	log "github.com/sirupsen/logrus"
)

// EnvLogLevel overrides the configured level when set
const EnvLogLevel = "ACTIONLOG_LOGLEVEL"

// LogLevel represents the severity level of log messages
type LogLevel int

const (
	DEBUG LogLevel = iota
	INFO
	WARN
	ERROR
)

// String returns the string representation of the log level
func (l LogLevel) String() string {
	switch l {
	case DEBUG:
		return "DEBUG"
	case INFO:
		return "INFO"
	case WARN:
		return "WARN"
	case ERROR:
		return "ERROR"
	default:
		return "UNKNOWN"
	}
}

// Logger is a levelled logger with a component prefix, backed by logrus
type Logger struct {
	level  LogLevel
	prefix string
	entry  *log.Entry
}

func newBackend() *log.Logger {
	backend := log.New()
	backend.SetOutput(os.Stdout)
	backend.SetLevel(log.DebugLevel) // gating happens in Logger
	backend.SetFormatter(&log.TextFormatter{
		FullTimestamp:   true,
		TimestampFormat: "2006-01-02 15:04:05.000",
	})
	return backend
}

// New creates a new logger with the specified minimum level and prefix
func New(level LogLevel, prefix string) *Logger {
	entry := log.NewEntry(newBackend())
	if prefix != "" {
		entry = entry.WithField("component", prefix)
	}
	return &Logger{
		level:  level,
		prefix: prefix,
		entry:  entry,
	}
}

// Default creates a logger with INFO level and no prefix
func Default() *Logger {
	return New(INFO, "")
}

// WithPrefix creates a new logger with an additional prefix
func (l *Logger) WithPrefix(prefix string) *Logger {
	newPrefix := prefix
	if l.prefix != "" {
		newPrefix = fmt.Sprintf("%s:%s", l.prefix, prefix)
	}
	return &Logger{
		level:  l.level,
		prefix: newPrefix,
		entry:  l.entry.WithField("component", newPrefix),
	}
}

// WithField returns a logger that attaches key=value to every message
func (l *Logger) WithField(key string, value interface{}) *Logger {
	return &Logger{
		level:  l.level,
		prefix: l.prefix,
		entry:  l.entry.WithField(key, value),
	}
}

// SetLevel sets the minimum logging level
func (l *Logger) SetLevel(level LogLevel) {
	l.level = level
}

// Level returns the minimum logging level
func (l *Logger) Level() LogLevel {
	return l.level
}

// SetOutput redirects the logger and every logger derived from it
func (l *Logger) SetOutput(w io.Writer) {
	l.entry.Logger.SetOutput(w)
}

// shouldLog returns true if the message should be logged based on current level
func (l *Logger) shouldLog(level LogLevel) bool {
	return level >= l.level
}

// Debug logs a debug message
func (l *Logger) Debug(format string, args ...interface{}) {
	if l.shouldLog(DEBUG) {
		l.entry.Debugf(format, args...)
	}
}

// Info logs an info message
func (l *Logger) Info(format string, args ...interface{}) {
	if l.shouldLog(INFO) {
		l.entry.Infof(format, args...)
	}
}

// Warn logs a warning message
func (l *Logger) Warn(format string, args ...interface{}) {
	if l.shouldLog(WARN) {
		l.entry.Warnf(format, args...)
	}
}

// Error logs an error message
func (l *Logger) Error(format string, args ...interface{}) {
	if l.shouldLog(ERROR) {
		l.entry.Errorf(format, args...)
	}
}

// Fatal logs an error message and exits the program
func (l *Logger) Fatal(format string, args ...interface{}) {
	l.entry.Fatalf(format, args...)
}

// Package-level logger instance
var defaultLogger = Default()

// SetDefaultLevel sets the level for the default logger
func SetDefaultLevel(level LogLevel) {
	defaultLogger.SetLevel(level)
}

// DefaultLogger returns the package-level logger
func DefaultLogger() *Logger {
	return defaultLogger
}

// Debug logs a debug message using the default logger
func Debug(format string, args ...interface{}) {
	defaultLogger.Debug(format, args...)
}

// Info logs an info message using the default logger
func Info(format string, args ...interface{}) {
	defaultLogger.Info(format, args...)
}

// Warn logs a warning message using the default logger
func Warn(format string, args ...interface{}) {
	defaultLogger.Warn(format, args...)
}

// Error logs an error message using the default logger
func Error(format string, args ...interface{}) {
	defaultLogger.Error(format, args...)
}

// Fatal logs an error message and exits using the default logger
func Fatal(format string, args ...interface{}) {
	defaultLogger.Fatal(format, args...)
}

// ParseLevel parses a string log level
func ParseLevel(level string) (LogLevel, error) {
	switch strings.ToLower(strings.TrimSpace(level)) {
	case "debug", "trace":
		return DEBUG, nil
	case "info", "":
		return INFO, nil
	case "warn", "warning":
		return WARN, nil
	case "error", "fatal", "panic":
		return ERROR, nil
	default:
		return INFO, fmt.Errorf("unknown log level: %s", level)
	}
}

// LevelFromEnv returns the level named by EnvLogLevel, or fallback if the
// variable is unset or invalid
func LevelFromEnv(fallback LogLevel) LogLevel {
	if value, ok := os.LookupEnv(EnvLogLevel); ok {
		if level, err := ParseLevel(value); err == nil {
			return level
		}
	}
	return fallback
}
