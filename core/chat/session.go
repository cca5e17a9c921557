package chat

import (
	"time"

	"github.com/google/uuid"
)

// DefaultTitle is the display title of a session before it has any messages.
const DefaultTitle = "New Chat"

// titleMaxLen is the number of characters kept when deriving a session title
// from its first message.
const titleMaxLen = 50

// Session is one conversation thread: an ordered, append-only message list
// plus metadata. CreatedAt is fixed at creation; UpdatedAt advances only on
// creation, new messages, or an explicit forced persist.
type Session struct {
	ID        string    `json:"id"`
	Title     string    `json:"title"`
	Messages  []Message `json:"messages"`
	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// NewSession creates an empty session with a unique UUIDv7 identifier and
// both timestamps set to now.
func NewSession() *Session {
	now := time.Now().UTC()
	return &Session{
		ID:        uuid.Must(uuid.NewV7()).String(),
		Title:     DefaultTitle,
		CreatedAt: now,
		UpdatedAt: now,
	}
}

// Append adds a message to the end of the session's history.
func (s *Session) Append(msg Message) {
	s.Messages = append(s.Messages, msg)
}

// Clone returns a deep copy of the session.
func (s *Session) Clone() *Session {
	copied := *s
	copied.Messages = CloneMessages(s.Messages)
	return &copied
}

// DeriveTitle computes a session title from its first message content:
// the first 50 characters, with a trailing ellipsis marker if the content
// was longer. Empty content yields DefaultTitle. Idempotent for a fixed
// first message.
func DeriveTitle(firstMessage string) string {
	if firstMessage == "" {
		return DefaultTitle
	}

	runes := []rune(firstMessage)
	if len(runes) <= titleMaxLen {
		return firstMessage
	}
	return string(runes[:titleMaxLen]) + "..."
}
