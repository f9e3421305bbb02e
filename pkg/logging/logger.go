// Package logging configures the process-wide zerolog logger.
package logging

import (
	"io"
	"os"
	"strings"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// LogLevel is a minimum log level as written in configuration.
type LogLevel string

const (
	LevelDebug LogLevel = "debug"
	LevelInfo  LogLevel = "info"
	LevelWarn  LogLevel = "warn"
	LevelError LogLevel = "error"
)

// Config holds logger configuration.
type Config struct {
	Level LogLevel

	// Pretty switches from JSON lines to console output.
	Pretty bool

	// Output defaults to os.Stderr.
	Output io.Writer

	// Service, when set, is attached to every line as "service".
	Service string
}

// DefaultConfig returns JSON logging at info level on stderr.
func DefaultConfig() Config {
	return Config{
		Level:   LevelInfo,
		Output:  os.Stderr,
		Service: "opsgrid",
	}
}

// ParseLevel reads a LOG_LEVEL value. Unknown values map to LevelInfo.
func ParseLevel(s string) LogLevel {
	switch l := LogLevel(strings.ToLower(strings.TrimSpace(s))); l {
	case LevelDebug, LevelWarn, LevelError:
		return l
	case "warning":
		return LevelWarn
	default:
		return LevelInfo
	}
}

// Zerolog maps l onto zerolog's levels.
func (l LogLevel) Zerolog() zerolog.Level {
	level, err := zerolog.ParseLevel(string(ParseLevel(string(l))))
	if err != nil {
		return zerolog.InfoLevel
	}
	return level
}

// Setup installs the global logger and returns it.
func Setup(cfg Config) zerolog.Logger {
	out := cfg.Output
	if out == nil {
		out = os.Stderr
	}
	if cfg.Pretty {
		out = zerolog.ConsoleWriter{Out: out, TimeFormat: "15:04:05"}
	}

	zerolog.SetGlobalLevel(cfg.Level.Zerolog())

	ctx := zerolog.New(out).With().Timestamp()
	if cfg.Service != "" {
		ctx = ctx.Str("service", cfg.Service)
	}
	log.Logger = ctx.Logger()
	return log.Logger
}

// NewLogger derives a logger tagged with component.
func NewLogger(component string) zerolog.Logger {
	return log.With().Str("component", component).Logger()
}

// Levels:
//
// Debug: backend request flow, column cache hits and misses, discarded stale
// page loads, selection pruning.
//
// Info: bulk state changes, saved column sets, export walks (start, progress
// every 10 pages, completion), page clamping and step-back, server
// startup and shutdown.
//
// Warn: failed page loads, column resolution falling back to the template,
// cache store errors, unparsable change events.
//
// Error: transport failures and configuration errors.
//
// Fields:
//   - component: emitting component (backend-client, table-controller, ...)
//   - endpoint, status_code, request_id: backend call
//   - tenant: tenant name or id
//   - page, page_size: requested page
//   - generation: load generation of a table controller
//   - duration: elapsed time
//   - error_class: auth, validation, client, server, network, partial_data
