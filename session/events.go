package session

import "github.com/ragdesk/chatkit/observability"

// Session store event types.
const (
	EventSessionStart     observability.EventType = "session.start"
	EventSessionLoad      observability.EventType = "session.load"
	EventSessionDelete    observability.EventType = "session.delete"
	EventSessionDeleteAll observability.EventType = "session.delete_all"
	EventPersist          observability.EventType = "session.persist"
	EventPersistFailed    observability.EventType = "session.persist.failed"
	EventAutoSave         observability.EventType = "session.autosave"
	EventCleanupFailed    observability.EventType = "session.cleanup.failed"
)
