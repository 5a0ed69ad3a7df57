// Package logging provides structured logging configuration using zerolog.
package logging

import (
	"io"
	"os"
	"strings"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// LogLevel represents the logging level.
type LogLevel string

const (
	// LevelDebug logs debug messages and above.
	LevelDebug LogLevel = "debug"

	// LevelInfo logs info messages and above.
	LevelInfo LogLevel = "info"

	// LevelWarn logs warning messages and above.
	LevelWarn LogLevel = "warn"

	// LevelError logs error messages only.
	LevelError LogLevel = "error"
)

// Service is attached to every log line produced by Setup.
const Service = "statscache"

// Config holds logger configuration.
type Config struct {
	// Level is the minimum log level to output.
	Level LogLevel

	// Pretty enables human-readable console output (default: false for JSON).
	Pretty bool

	// Output is the writer to output logs to (default: os.Stderr).
	Output io.Writer
}

// DefaultConfig returns a default logger configuration.
func DefaultConfig() Config {
	return Config{
		Level:  LevelInfo,
		Pretty: false,
		Output: os.Stderr,
	}
}

// Setup configures the global zerolog logger and returns it.
func Setup(cfg Config) zerolog.Logger {
	zerolog.SetGlobalLevel(ParseLevel(cfg.Level))

	out := cfg.Output
	if out == nil {
		out = os.Stderr
	}
	if cfg.Pretty {
		out = zerolog.ConsoleWriter{Out: out}
	}

	logger := zerolog.New(out).With().
		Timestamp().
		Str("service", Service).
		Logger()

	log.Logger = logger
	return logger
}

// ParseLevel converts a LogLevel to a zerolog.Level. Unknown values map to info.
func ParseLevel(level LogLevel) zerolog.Level {
	switch strings.ToLower(strings.TrimSpace(string(level))) {
	case "debug":
		return zerolog.DebugLevel
	case "info":
		return zerolog.InfoLevel
	case "warn", "warning":
		return zerolog.WarnLevel
	case "error":
		return zerolog.ErrorLevel
	default:
		return zerolog.InfoLevel
	}
}

// Valid reports whether level is one of the known levels.
func (l LogLevel) Valid() bool {
	switch strings.ToLower(strings.TrimSpace(string(l))) {
	case "debug", "info", "warn", "warning", "error":
		return true
	}
	return false
}

// NewLogger creates a new logger with the given component name.
func NewLogger(component string) zerolog.Logger {
	return log.With().Str("component", component).Logger()
}

// Log Level Guidelines:
//
// Debug: Detailed information for debugging
//   - Cache lookups (hit/miss, key, remaining TTL)
//   - Conditional requests answered with 304
//   - Entries removed by invalidation or the reaper
//
// Info: Normal operation events
//   - Server startup/shutdown
//   - Change feed subscribed
//   - Admin cache clears
//
// Warn: Warning conditions that don't prevent operation
//   - Responses that could not be cached (served uncached)
//   - Malformed change events (dropped)
//   - Change feed disconnects and reconnect attempts
//   - Chunking failures (full body served)
//
// Error: Error conditions requiring attention
//   - Upstream unavailable
//   - Stats policy lookups failing
//   - Configuration errors
//
// Context Fields:
//   - component: cache, middleware, invalidation, statswindow, upstream, server
//   - key: Cache key
//   - pattern: Invalidation pattern
//   - removed: Number of entries removed
//   - resource_type: Change event resource type
//   - status_code: HTTP status code
//   - duration: Request duration
//   - match_id, league_id, user_id: Stats window checks
//   - request_id: X-Request-ID forwarded upstream
