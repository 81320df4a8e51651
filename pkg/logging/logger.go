// Package logging is the structured logger shared by the engine, the adb host
// and the MCP bridge.
package logging

import (
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/rs/zerolog"
)

// Logger is the process-wide logger.
var Logger zerolog.Logger

var persistentLogger *PersistentLogger

// Level is the configured minimum level.
type Level int

const (
	LevelDebug Level = iota
	LevelInfo
	LevelWarn
	LevelError
)

// ParseLevel maps "debug", "info", "warn" and "error" to a Level.
// Unknown strings fall back to info.
func ParseLevel(s string) Level {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "debug":
		return LevelDebug
	case "warn", "warning":
		return LevelWarn
	case "error":
		return LevelError
	default:
		return LevelInfo
	}
}

// Config controls logger outputs.
type Config struct {
	Level      Level
	Console    bool
	File       bool
	FilePath   string
	MaxSizeMB  int
	MaxAgeDays int
	MaxBackups int
	Compress   bool
	// Out is the console destination. Defaults to stderr: stdout carries the
	// MCP stdio stream.
	Out io.Writer
}

// DefaultConfig logs info and above to the console only.
func DefaultConfig() Config {
	return Config{
		Level:      LevelInfo,
		Console:    true,
		MaxSizeMB:  10,
		MaxAgeDays: 7,
		MaxBackups: 5,
		Compress:   true,
	}
}

func (l Level) zerolog() zerolog.Level {
	switch l {
	case LevelDebug:
		return zerolog.DebugLevel
	case LevelWarn:
		return zerolog.WarnLevel
	case LevelError:
		return zerolog.ErrorLevel
	default:
		return zerolog.InfoLevel
	}
}

// Init (re)configures Logger.
func Init(cfg Config) error {
	var writers []io.Writer

	out := cfg.Out
	if out == nil {
		out = os.Stderr
	}
	if cfg.Console {
		writers = append(writers, zerolog.ConsoleWriter{Out: out, TimeFormat: "15:04:05"})
	}

	if cfg.File && cfg.FilePath != "" {
		pl, err := NewPersistentLogger(cfg)
		if err != nil {
			return fmt.Errorf("open log file: %w", err)
		}
		if persistentLogger != nil {
			persistentLogger.Close()
		}
		persistentLogger = pl
		writers = append(writers, pl)
	}

	if len(writers) == 0 {
		writers = append(writers, zerolog.ConsoleWriter{Out: out, TimeFormat: "15:04:05"})
	}

	Logger = zerolog.New(zerolog.MultiLevelWriter(writers...)).
		Level(cfg.Level.zerolog()).
		With().
		Timestamp().
		Logger()
	return nil
}

// Close flushes and closes the log file, if any.
func Close() {
	if persistentLogger != nil {
		persistentLogger.Close()
		persistentLogger = nil
	}
}

// Debug starts a debug event tagged with module.
func Debug(module string) *zerolog.Event {
	return Logger.Debug().Str("module", module)
}

// Info starts an info event tagged with module.
func Info(module string) *zerolog.Event {
	return Logger.Info().Str("module", module)
}

// Warn starts a warn event tagged with module.
func Warn(module string) *zerolog.Event {
	return Logger.Warn().Str("module", module)
}

// Error starts an error event tagged with module.
func Error(module string) *zerolog.Event {
	return Logger.Error().Str("module", module)
}

// Panic records a recovered panic.
func Panic(module string, recovered interface{}, stack string) {
	Logger.Error().
		Str("module", module).
		Str("category", "panic").
		Interface("recovered", recovered).
		Str("stack", stack).
		Msg("Panic recovered")
}

// OperationTimer logs the duration of one operation.
type OperationTimer struct {
	module    string
	operation string
	startTime time.Time
	fields    map[string]string
}

// StartOperation starts timing operation.
func StartOperation(module, operation string) *OperationTimer {
	return &OperationTimer{
		module:    module,
		operation: operation,
		startTime: time.Now(),
		fields:    make(map[string]string),
	}
}

// With attaches a field to the final log line.
func (t *OperationTimer) With(key, value string) *OperationTimer {
	t.fields[key] = value
	return t
}

// End logs the elapsed time at debug level.
func (t *OperationTimer) End() {
	t.finish(Logger.Debug(), nil)
}

// EndWithError logs the elapsed time and err at warn level.
func (t *OperationTimer) EndWithError(err error) {
	t.finish(Logger.Warn(), err)
}

func (t *OperationTimer) finish(event *zerolog.Event, err error) {
	d := time.Since(t.startTime)
	event = event.
		Str("module", t.module).
		Str("category", "performance").
		Str("operation", t.operation).
		Dur("duration", d)
	for k, v := range t.fields {
		event = event.Str(k, v)
	}
	if err != nil {
		event.Err(err).Msg("Operation failed")
		return
	}
	event.Msg("Operation completed")
}

func init() {
	_ = Init(DefaultConfig())
}
