// Package chat defines the conversation data model shared across chatkit:
// messages, citations, and sessions, with their JSON wire shapes.
package chat

import (
	"strings"
	"time"
)

// Role identifies the author of a conversation message.
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
	RoleSystem    Role = "system"
)

// Citation types for source classification.
const (
	CitationLocal = "local"
	CitationWeb   = "web"
)

// Citation is a reference the backend used to ground an answer. At least one
// of Filename, Source, or Resource is set.
type Citation struct {
	Filename string `json:"filename,omitempty"`
	Source   string `json:"source,omitempty"`
	Resource string `json:"resource,omitempty"`
	Type     string `json:"type,omitempty"`
	Title    string `json:"title,omitempty"`
}

// Ref returns the first available identifier for the cited resource.
func (c Citation) Ref() string {
	switch {
	case c.Filename != "":
		return c.Filename
	case c.Source != "":
		return c.Source
	default:
		return c.Resource
	}
}

// IsWeb reports whether the citation points at a web resource. A Resource
// carrying a URI scheme classifies as web regardless of the Type field.
func (c Citation) IsWeb() bool {
	if c.Type == CitationWeb {
		return true
	}
	return strings.Contains(c.Resource, "://")
}

// Message is one conversation turn. Role is fixed at creation. Error marks
// the message as representing a failure rather than a normal answer.
//
// Sources and the knowledge flags are only populated on assistant messages
// built from backend responses.
type Message struct {
	Role              Role       `json:"role"`
	Content           string     `json:"content"`
	Error             bool       `json:"error,omitempty"`
	Sources           []Citation `json:"sources,omitempty"`
	SearchType        string     `json:"searchType,omitempty"`
	HasLocalKnowledge bool       `json:"hasLocalKnowledge,omitempty"`
	HasWebKnowledge   bool       `json:"hasWebKnowledge,omitempty"`
	Timestamp         time.Time  `json:"timestamp"`
}

// NewMessage creates a Message with the given role and content, stamped with
// the current UTC time.
func NewMessage(role Role, content string) Message {
	return Message{Role: role, Content: content, Timestamp: time.Now().UTC()}
}

// CloneMessages returns a deep copy of a message slice, including each
// message's citation list.
func CloneMessages(msgs []Message) []Message {
	if msgs == nil {
		return nil
	}
	copied := make([]Message, len(msgs))
	for i, msg := range msgs {
		copied[i] = msg
		if msg.Sources != nil {
			copied[i].Sources = make([]Citation, len(msg.Sources))
			copy(copied[i].Sources, msg.Sources)
		}
	}
	return copied
}
