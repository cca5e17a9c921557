// Package session owns conversational state for one authenticated identity:
// the single active session plus the durable collection of historical
// sessions. It enforces the timestamp-update policy and debounced auto-save
// that keep persisted history faithful without write amplification.
package session

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/ragdesk/chatkit/core/chat"
	"github.com/ragdesk/chatkit/observability"
	"github.com/ragdesk/chatkit/store"
)

// cleanupTimeout bounds the fire-and-forget backend teardown calls.
const cleanupTimeout = 10 * time.Second

// Cleaner discards server-held conversation context. Calls are best-effort:
// failures are logged and never surfaced or rolled back locally.
type Cleaner interface {
	DiscardSession(ctx context.Context, id string) error
	DiscardAllSessions(ctx context.Context) error
}

// Option configures a Store.
type Option func(*Store)

// WithCleaner sets the backend cleaner used on session deletion.
func WithCleaner(c Cleaner) Option {
	return func(s *Store) { s.cleaner = c }
}

// WithObserver sets the observability sink.
func WithObserver(o observability.Observer) Option {
	return func(s *Store) { s.observer = o }
}

// WithClock overrides the time source. Intended for tests.
func WithClock(now func() time.Time) Option {
	return func(s *Store) { s.now = now }
}

// WithAutoSaveQuiet overrides the auto-save debounce quiet period.
func WithAutoSaveQuiet(d time.Duration) Option {
	return func(s *Store) { s.quiet = d }
}

// Store is the single source of truth for the active session and the
// session history of one identity. History is held as an id-indexed map with
// a separate insertion order, so persists upsert by id instead of searching
// a slice. All methods are safe for concurrent use.
//
// An empty identity disables persistence: the store still manages in-memory
// sessions but never touches the key-value adapter.
type Store struct {
	mu       sync.Mutex
	identity string
	kv       store.Store
	cleaner  Cleaner
	observer observability.Observer
	now      func() time.Time
	quiet    time.Duration

	active  *chat.Session
	history map[string]*chat.Session
	order   []string
	saver   *autoSaver
}

// NewStore creates a Store for the given identity, loading any previously
// persisted history from kv. A fresh empty session becomes active.
func NewStore(ctx context.Context, identity string, kv store.Store, opts ...Option) (*Store, error) {
	s := &Store{
		identity: identity,
		kv:       kv,
		observer: observability.NoOpObserver{},
		now:      time.Now,
		history:  make(map[string]*chat.Session),
	}
	for _, opt := range opts {
		opt(s)
	}

	if err := s.loadHistory(ctx); err != nil {
		return nil, err
	}

	s.saver = newAutoSaver(s.quiet, s.autoSave)
	s.active = chat.NewSession()

	s.emit(ctx, EventSessionStart, observability.LevelVerbose, map[string]any{
		"session_id":   s.active.ID,
		"history_size": len(s.order),
	})

	return s, nil
}

func (s *Store) loadHistory(ctx context.Context) error {
	if s.identity == "" || s.kv == nil {
		return nil
	}

	data, err := s.kv.Get(ctx, store.HistoryKey(s.identity))
	if errors.Is(err, store.ErrKeyNotFound) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("load history: %w", err)
	}

	var sessions []*chat.Session
	if err := json.Unmarshal(data, &sessions); err != nil {
		return fmt.Errorf("%w: %v", ErrCorruptHistory, err)
	}

	// Duplicate ids are not permitted in the collection; first wins.
	for _, sess := range sessions {
		if _, exists := s.history[sess.ID]; exists {
			continue
		}
		s.history[sess.ID] = sess
		s.order = append(s.order, sess.ID)
	}

	return nil
}

// Active returns a copy of the current active session.
func (s *Store) Active() *chat.Session {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.active.Clone()
}

// ActiveID returns the id of the current active session.
func (s *Store) ActiveID() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.active.ID
}

// History returns copies of all historical sessions, most recently updated
// first. Storage order carries no ordering guarantee, so callers always get
// an UpdatedAt sort.
func (s *Store) History() []*chat.Session {
	s.mu.Lock()
	defer s.mu.Unlock()

	sessions := make([]*chat.Session, 0, len(s.order))
	for _, id := range s.order {
		sessions = append(sessions, s.history[id].Clone())
	}

	sort.SliceStable(sessions, func(i, j int) bool {
		return sessions[i].UpdatedAt.After(sessions[j].UpdatedAt)
	})

	return sessions
}

// AppendMessage appends a message to the active session. Persistence is not
// immediate: when the message count has grown past what is durably stored, a
// forced-timestamp persist is scheduled after the debounce quiet period.
func (s *Store) AppendMessage(msg chat.Message) {
	s.mu.Lock()
	s.active.Append(msg)
	s.active.UpdatedAt = s.now().UTC()

	stored := s.history[s.active.ID]
	hasNew := stored == nil || len(stored.Messages) < len(s.active.Messages)
	s.mu.Unlock()

	if hasNew {
		s.saver.Bump()
	}
}

// AppendMessageTo appends a message to the session with the given id. An id
// matching the active session behaves like AppendMessage. Any other id is
// looked up in history; the message is appended to that entry and the
// collection is written through immediately, so a turn that settles after
// the user switched away still lands in the session that started it. A
// message for an id that no longer exists is dropped: deletion wins.
func (s *Store) AppendMessageTo(sessionID string, msg chat.Message) {
	s.mu.Lock()

	if s.active.ID == sessionID {
		s.active.Append(msg)
		s.active.UpdatedAt = s.now().UTC()

		stored := s.history[s.active.ID]
		hasNew := stored == nil || len(stored.Messages) < len(s.active.Messages)
		s.mu.Unlock()

		if hasNew {
			s.saver.Bump()
		}
		return
	}

	stored, exists := s.history[sessionID]
	if !exists {
		s.mu.Unlock()
		return
	}

	stored.Append(msg)
	stored.UpdatedAt = s.now().UTC()
	// Write failures are reported through EventPersistFailed; the message
	// stays in the in-memory entry either way.
	_ = s.writeLocked(context.Background())
	s.mu.Unlock()
}

// StartNew persists the current active session if it has messages (without
// forcing a timestamp bump) and replaces it with a fresh empty session.
// Never duplicates history entries.
func (s *Store) StartNew(ctx context.Context) *chat.Session {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.saver.Cancel()
	if len(s.active.Messages) > 0 {
		s.persistLocked(ctx, false)
	}

	s.active = chat.NewSession()
	s.emit(ctx, EventSessionStart, observability.LevelVerbose, map[string]any{
		"session_id": s.active.ID,
	})

	return s.active.Clone()
}

// Load makes the history entry with the given id the active session. The
// previous active session is persisted first (non-forcing) if it has unsaved
// messages and a different id. An unknown id returns ErrSessionNotFound and
// leaves the active session untouched.
func (s *Store) Load(ctx context.Context, id string) (*chat.Session, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.active.ID == id {
		return s.active.Clone(), nil
	}

	stored, exists := s.history[id]
	if !exists {
		return nil, fmt.Errorf("%w: %s", ErrSessionNotFound, id)
	}

	s.saver.Cancel()
	if len(s.active.Messages) > 0 {
		s.persistLocked(ctx, false)
	}

	s.active = stored.Clone()
	s.emit(ctx, EventSessionLoad, observability.LevelVerbose, map[string]any{
		"session_id": id,
		"messages":   len(s.active.Messages),
	})

	return s.active.Clone(), nil
}

// Delete removes the session with the given id from history and persists the
// updated collection. Deleting the active session atomically starts a new
// one. Backend teardown is requested fire-and-forget.
func (s *Store) Delete(ctx context.Context, id string) error {
	s.mu.Lock()

	if _, exists := s.history[id]; !exists {
		s.mu.Unlock()
		return fmt.Errorf("%w: %s", ErrSessionNotFound, id)
	}

	delete(s.history, id)
	for i, orderedID := range s.order {
		if orderedID == id {
			s.order = append(s.order[:i], s.order[i+1:]...)
			break
		}
	}

	err := s.writeLocked(ctx)

	wasActive := s.active.ID == id
	if wasActive {
		s.saver.Cancel()
		s.active = chat.NewSession()
	}

	s.emit(ctx, EventSessionDelete, observability.LevelInfo, map[string]any{
		"session_id": id,
		"was_active": wasActive,
	})
	s.mu.Unlock()

	s.discardAsync(id)
	return err
}

// DeleteAll clears the whole history, persists the empty collection, and
// starts a new active session. Backend teardown for the identity is
// requested fire-and-forget.
func (s *Store) DeleteAll(ctx context.Context) error {
	s.mu.Lock()

	s.history = make(map[string]*chat.Session)
	s.order = nil
	err := s.writeLocked(ctx)

	s.saver.Cancel()
	s.active = chat.NewSession()

	s.emit(ctx, EventSessionDeleteAll, observability.LevelInfo, nil)
	s.mu.Unlock()

	s.discardAsync("")
	return err
}

// Persist writes the active session into durable history. No-op when the
// session has no messages or the store has no identity.
//
// Timestamp policy: UpdatedAt advances only when forceTimestamp is set or
// the durably stored message count differs from the in-memory one. A persist
// triggered by switching sessions therefore never bumps the timestamp.
func (s *Store) Persist(ctx context.Context, forceTimestamp bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.persistLocked(ctx, forceTimestamp)
}

func (s *Store) persistLocked(ctx context.Context, forceTimestamp bool) error {
	if s.identity == "" || s.kv == nil || len(s.active.Messages) == 0 {
		return nil
	}

	s.active.Title = chat.DeriveTitle(s.active.Messages[0].Content)

	stored := s.history[s.active.ID]
	if forceTimestamp || stored == nil || len(stored.Messages) != len(s.active.Messages) {
		s.active.UpdatedAt = s.now().UTC()
	}

	s.history[s.active.ID] = s.active.Clone()
	if stored == nil {
		s.order = append([]string{s.active.ID}, s.order...)
	}

	if err := s.writeLocked(ctx); err != nil {
		return err
	}

	s.emit(ctx, EventPersist, observability.LevelVerbose, map[string]any{
		"session_id": s.active.ID,
		"messages":   len(s.active.Messages),
		"forced":     forceTimestamp,
	})
	return nil
}

func (s *Store) writeLocked(ctx context.Context) error {
	if s.identity == "" || s.kv == nil {
		return nil
	}

	sessions := make([]*chat.Session, 0, len(s.order))
	for _, id := range s.order {
		sessions = append(sessions, s.history[id])
	}

	data, err := json.Marshal(sessions)
	if err != nil {
		return fmt.Errorf("marshal history: %w", err)
	}

	if err := s.kv.Set(ctx, store.HistoryKey(s.identity), data); err != nil {
		// Losing one persist is preferable to losing the in-memory session.
		s.emit(ctx, EventPersistFailed, observability.LevelWarning, map[string]any{
			"error": err.Error(),
		})
		return fmt.Errorf("persist history: %w", err)
	}

	return nil
}

// Flush runs any pending auto-save immediately.
func (s *Store) Flush() {
	s.saver.Flush()
}

// Close flushes any pending auto-save and stops the debounce timer.
func (s *Store) Close() error {
	s.saver.Flush()
	s.saver.Stop()
	return nil
}

func (s *Store) autoSave() {
	ctx := context.Background()
	s.emit(ctx, EventAutoSave, observability.LevelVerbose, nil)
	// Persist reads session state at fire-time, so the write always reflects
	// everything appended during the debounce window. Failures are already
	// reported through EventPersistFailed.
	_ = s.Persist(ctx, true)
}

// discardAsync requests backend teardown without blocking the caller. An
// empty id discards all sessions for the identity.
func (s *Store) discardAsync(id string) {
	if s.cleaner == nil {
		return
	}

	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), cleanupTimeout)
		defer cancel()

		var err error
		if id == "" {
			err = s.cleaner.DiscardAllSessions(ctx)
		} else {
			err = s.cleaner.DiscardSession(ctx, id)
		}
		if err != nil {
			s.emit(ctx, EventCleanupFailed, observability.LevelWarning, map[string]any{
				"session_id": id,
				"error":      err.Error(),
			})
		}
	}()
}

func (s *Store) emit(ctx context.Context, eventType observability.EventType, level observability.Level, data map[string]any) {
	s.observer.OnEvent(ctx, observability.Event{
		Type:      eventType,
		Level:     level,
		Timestamp: s.now(),
		Source:    "session.Store",
		Data:      data,
	})
}
