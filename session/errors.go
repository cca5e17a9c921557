package session

import "errors"

// Sentinel errors for session store operations.
var (
	ErrSessionNotFound = errors.New("session not found")
	ErrCorruptHistory  = errors.New("corrupt history collection")
)
