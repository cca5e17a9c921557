// Package observability carries structured events from chatkit subsystems
// to pluggable sinks. Session persistence, request dispatch, and cleanup
// paths all report through the Observer interface instead of logging
// directly, so hosts decide where events go.
//
// Level values are numbered on the OpenTelemetry SeverityNumber scale, so
// they pass straight through to OTel-aware backends.
package observability

import (
	"context"
	"log/slog"
	"time"
)

// Level is an event severity on the OTel SeverityNumber scale.
type Level int

const (
	LevelVerbose Level = 5  // OTel DEBUG (5-8), maps to slog.LevelDebug
	LevelInfo    Level = 9  // OTel INFO (9-12), maps to slog.LevelInfo
	LevelWarning Level = 13 // OTel WARN (13-16), maps to slog.LevelWarn
	LevelError   Level = 17 // OTel ERROR (17-20), maps to slog.LevelError
)

// String returns the OTel severity text for the level.
func (l Level) String() string {
	switch {
	case l <= 4:
		return "TRACE"
	case l <= 8:
		return "DEBUG"
	case l <= 12:
		return "INFO"
	case l <= 16:
		return "WARN"
	case l <= 20:
		return "ERROR"
	default:
		return "FATAL"
	}
}

// SlogLevel maps the level onto the slog scale for log emission.
func (l Level) SlogLevel() slog.Level {
	switch {
	case l <= 8:
		return slog.LevelDebug
	case l <= 12:
		return slog.LevelInfo
	case l <= 16:
		return slog.LevelWarn
	default:
		return slog.LevelError
	}
}

// EventType names what happened. Each package declares its own constants,
// prefixed with the package name ("session.persist", "dispatch.send.start").
type EventType string

// Event is one reported occurrence. Source identifies the emitting
// component; Data holds event-specific attributes. The fields correspond
// one to one with OTel LogRecord fields (EventName, SeverityNumber,
// Timestamp, InstrumentationScope, Attributes).
type Event struct {
	Type      EventType
	Level     Level
	Timestamp time.Time
	Source    string
	Data      map[string]any
}

// Observer is a sink for events. Implementations must be safe for
// concurrent use; emitters call OnEvent from multiple goroutines.
type Observer interface {
	OnEvent(ctx context.Context, event Event)
}
