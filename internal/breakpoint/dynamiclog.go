package breakpoint

import (
	"sync/atomic"

	"github.com/rs/zerolog"
)

// DynamicLogger is the sink for log-action breakpoints. It must be
// initialized before use; statements arriving earlier are counted and
// discarded rather than racing startup.
type DynamicLogger struct {
	logger  zerolog.Logger
	ready   atomic.Bool
	skipped atomic.Uint64
}

// NewDynamicLogger creates an uninitialized sink writing to logger.
func NewDynamicLogger(logger zerolog.Logger) *DynamicLogger {
	return &DynamicLogger{
		logger: logger.With().Str("component", "dynamic_log").Logger(),
	}
}

// Initialize makes the sink accept statements.
func (l *DynamicLogger) Initialize() error {
	l.ready.Store(true)
	return nil
}

// Log emits one dynamic log statement for def.
func (l *DynamicLogger) Log(def *Definition, message string) {
	if !l.ready.Load() {
		l.skipped.Add(1)
		return
	}

	var event *zerolog.Event
	switch def.LogLevel {
	case "debug":
		event = l.logger.Debug()
	case "warn", "warning":
		event = l.logger.Warn()
	case "error":
		event = l.logger.Error()
	default:
		event = l.logger.Info()
	}
	event.
		Str("breakpoint_id", def.ID).
		Str("path", def.Location.Path).
		Int("line", def.Location.Line).
		Msg(message)
}

// Skipped reports statements discarded before initialization.
func (l *DynamicLogger) Skipped() uint64 {
	return l.skipped.Load()
}
