// Package store provides the durable key-value adapter behind chat history
// persistence. Values are opaque serialized collections; keys are derived
// from the authenticated identity so that identities sharing a device never
// see each other's history.
//
// Backends: filesystem (default), in-memory, SQLite, and Redis. All
// implementations are stateless between calls and perform I/O on each call.
package store

import "context"

// Store is the persistence contract. Implementations must tolerate repeated
// Set calls for the same key (overwrite) and report missing keys from Get
// with ErrKeyNotFound.
type Store interface {
	// Get returns the value stored under key, or ErrKeyNotFound.
	Get(ctx context.Context, key string) ([]byte, error)
	// Set persists value under key, creating or overwriting as needed.
	Set(ctx context.Context, key string, value []byte) error
	// Delete removes the value stored under key. Missing keys are ignored.
	Delete(ctx context.Context, key string) error
}

const historyPrefix = "chatHistory_"

// HistoryKey derives the storage namespace key for an identity's chat
// history. Deterministic, so the same identity always maps to the same key.
func HistoryKey(identityID string) string {
	return historyPrefix + identityID
}
