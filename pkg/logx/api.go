package logx

import (
	"context"
	"fmt"
	"io"
)

var defaultLogger *Logger

func init() {
	defaultLogger = NewLogger(LoadFromEnv())
}

// SetDefaultLogger sets the default logger
func SetDefaultLogger(logger *Logger) {
	defaultLogger = logger
}

// GetDefaultLogger returns the default logger
func GetDefaultLogger() *Logger {
	return defaultLogger
}

// SetLevel sets the log level for the default logger
func SetLevel(level Level) {
	defaultLogger.SetLevel(level)
}

// SetOutput sets the output for the default logger
func SetOutput(w io.Writer) {
	defaultLogger.SetOutput(w)
}

// ============================================================================
// Simple Logging Functions
// ============================================================================

// Debug logs a debug level message
func Debug(msg string) {
	newEntry(defaultLogger).emit(LevelDebug, msg)
}

// Info logs an info level message
func Info(msg string) {
	newEntry(defaultLogger).emit(LevelInfo, msg)
}

// Warn logs a warning level message
func Warn(msg string) {
	newEntry(defaultLogger).emit(LevelWarn, msg)
}

// Error logs an error level message
func Error(msg string) {
	newEntry(defaultLogger).emit(LevelError, msg)
}

// Fatal logs a fatal level message and exits
func Fatal(msg string) {
	newEntry(defaultLogger).emit(LevelFatal, msg)
	defaultLogger.exit(1)
}

// ============================================================================
// Formatted Logging Functions
// ============================================================================

// Debugf logs a formatted debug message
func Debugf(format string, args ...any) {
	newEntry(defaultLogger).emit(LevelDebug, fmt.Sprintf(format, args...))
}

// Infof logs a formatted info message
func Infof(format string, args ...any) {
	newEntry(defaultLogger).emit(LevelInfo, fmt.Sprintf(format, args...))
}

// Warnf logs a formatted warning message
func Warnf(format string, args ...any) {
	newEntry(defaultLogger).emit(LevelWarn, fmt.Sprintf(format, args...))
}

// Errorf logs a formatted error message
func Errorf(format string, args ...any) {
	newEntry(defaultLogger).emit(LevelError, fmt.Sprintf(format, args...))
}

// Fatalf logs a formatted fatal message and exits
func Fatalf(format string, args ...any) {
	newEntry(defaultLogger).emit(LevelFatal, fmt.Sprintf(format, args...))
	defaultLogger.exit(1)
}

// ============================================================================
// Structured Logging
// ============================================================================

// WithFields creates a new logger entry with fields
func WithFields(fields Fields) *Entry {
	return defaultLogger.WithFields(fields)
}

// WithField creates a new logger entry with a single field
func WithField(key string, value any) *Entry {
	return defaultLogger.WithField(key, value)
}

// WithContext creates a new logger entry with context
func WithContext(ctx context.Context) *Entry {
	return defaultLogger.WithContext(ctx)
}

// WithError creates a new logger entry with an error field
func WithError(err error) *Entry {
	return defaultLogger.WithError(err)
}

// WithStruct creates a new logger entry with structured data
func WithStruct(data any) *Entry {
	return defaultLogger.WithStruct(data)
}
