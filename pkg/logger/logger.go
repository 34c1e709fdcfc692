// Package logger provides the logging capability for mcpx, both for the CLI
// process and for the daemon (which redirects its output to a log file).
//
// The package exposes a singleton *slog.Logger; use [Get] to obtain the
// underlying logger for injection into structs.
package logger

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"sync/atomic"

	"github.com/spf13/viper"
)

// singleton is the package-level logger created by Initialize.
// Accessed atomically to be safe for concurrent use across goroutines.
var singleton atomic.Pointer[slog.Logger]

func init() {
	// Set a default logger so callers that skip Initialize() don't panic.
	singleton.Store(newLogger(os.Stderr, slog.LevelInfo))
}

func newLogger(w io.Writer, level slog.Level) *slog.Logger {
	return slog.New(slog.NewTextHandler(w, &slog.HandlerOptions{Level: level}))
}

func get() *slog.Logger {
	return singleton.Load()
}

// debugEnabled reports whether debug logging was requested, either via the
// viper-bound debug flag or the MCPX_DEBUG environment variable.
func debugEnabled() bool {
	if viper.GetBool("debug") {
		return true
	}
	if v, err := strconv.ParseBool(os.Getenv("MCPX_DEBUG")); err == nil {
		return v
	}
	return false
}

// Initialize creates the singleton logger writing to stderr.
func Initialize() {
	InitializeWriter(os.Stderr)
}

// InitializeWriter creates the singleton logger writing to w. The daemon uses
// this to redirect its diagnostics to a log file after detaching.
func InitializeWriter(w io.Writer) {
	level := slog.LevelInfo
	if debugEnabled() {
		level = slog.LevelDebug
	}
	singleton.Store(newLogger(w, level))
}

// InitializeFile creates the singleton logger appending to the file at path.
func InitializeFile(path string) error {
	f, err := os.OpenFile(filepath.Clean(path), os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0600)
	if err != nil {
		return fmt.Errorf("failed to open log file: %w", err)
	}
	InitializeWriter(f)
	return nil
}

// Get returns the underlying *slog.Logger for injection into structs.
func Get() *slog.Logger {
	return get()
}

// Set replaces the singleton logger. This is intended for tests that need to
// capture log output; production code should use [Initialize] instead.
func Set(l *slog.Logger) {
	singleton.Store(l)
}

// Debug logs a message at debug level using the singleton logger.
func Debug(msg string) {
	get().Debug(msg)
}

// Debugf logs a message at debug level using the singleton logger.
func Debugf(msg string, args ...any) {
	get().Debug(fmt.Sprintf(msg, args...))
}

// Info logs a message at info level using the singleton logger.
func Info(msg string) {
	get().Info(msg)
}

// Infof logs a message at info level using the singleton logger.
func Infof(msg string, args ...any) {
	get().Info(fmt.Sprintf(msg, args...))
}

// Warn logs a message at warning level using the singleton logger.
func Warn(msg string) {
	get().Warn(msg)
}

// Warnf logs a message at warning level using the singleton logger.
func Warnf(msg string, args ...any) {
	get().Warn(fmt.Sprintf(msg, args...))
}

// Error logs a message at error level using the singleton logger.
func Error(msg string) {
	get().Error(msg)
}

// Errorf logs a message at error level using the singleton logger.
func Errorf(msg string, args ...any) {
	get().Error(fmt.Sprintf(msg, args...))
}
