// Package dispatch turns one user-submitted query into a durable
// conversation turn: it appends the user message, issues the backend call
// under a per-session cancellation token, and maps the settled outcome into
// exactly one terminal message.
package dispatch

import (
	"context"
	"errors"
	"strings"
	"sync"
	"time"

	"github.com/ragdesk/chatkit/core/chat"
	"github.com/ragdesk/chatkit/observability"
	"github.com/ragdesk/chatkit/rag"
)

// User-facing notices for the two in-band failure messages.
const (
	cancelledNotice    = "Request cancelled."
	genericFailureText = "Error: Could not fetch response from server."
)

// Dispatch event types.
const (
	EventSendStart observability.EventType = "dispatch.send.start"
	EventSendDone  observability.EventType = "dispatch.send.done"
	EventCancelled observability.EventType = "dispatch.cancelled"
	EventFailed    observability.EventType = "dispatch.failed"
)

// Querier issues one backend query call. *rag.Client implements it.
type Querier interface {
	Query(ctx context.Context, req rag.QueryRequest) (*rag.QueryResponse, error)
}

// Sessions is the slice of the session store the dispatcher needs.
type Sessions interface {
	Active() *chat.Session
	AppendMessage(msg chat.Message)
	AppendMessageTo(sessionID string, msg chat.Message)
}

// SendInput carries one outbound query. Model falls back to the
// dispatcher's default when empty; Filename optionally references an
// uploaded attachment.
type SendInput struct {
	Query    string
	Model    string
	Filename string
}

// Option configures a Dispatcher.
type Option func(*Dispatcher)

// WithObserver sets the observability sink.
func WithObserver(o observability.Observer) Option {
	return func(d *Dispatcher) { d.observer = o }
}

// WithDefaultModel sets the model used when SendInput leaves it empty.
func WithDefaultModel(model string) Option {
	return func(d *Dispatcher) { d.defaultModel = model }
}

// WithWebSearch sets the initial hybrid-search mode.
func WithWebSearch(enabled bool) Option {
	return func(d *Dispatcher) { d.useWebSearch = enabled }
}

// Dispatcher coordinates at-most-one-in-flight request semantics. Tokens
// are keyed by session id, so switching the active session mid-flight
// neither cancels nor orphans the previous session's request.
type Dispatcher struct {
	client   Querier
	sessions Sessions
	observer observability.Observer
	now      func() time.Time

	mu           sync.Mutex
	inflight     map[string]*token
	loading      map[string]bool
	defaultModel string
	useWebSearch bool
}

// New creates a Dispatcher sending through client and recording turns in
// sessions. Hybrid search is enabled by default.
func New(client Querier, sessions Sessions, opts ...Option) *Dispatcher {
	d := &Dispatcher{
		client:       client,
		sessions:     sessions,
		observer:     observability.NoOpObserver{},
		now:          time.Now,
		inflight:     make(map[string]*token),
		loading:      make(map[string]bool),
		useWebSearch: true,
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// SetWebSearch toggles hybrid search for subsequent sends.
func (d *Dispatcher) SetWebSearch(enabled bool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.useWebSearch = enabled
}

// WebSearch reports whether hybrid search is currently enabled.
func (d *Dispatcher) WebSearch() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.useWebSearch
}

// Loading reports whether a request is in flight for the session id.
func (d *Dispatcher) Loading(sessionID string) bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.loading[sessionID]
}

// Send submits one user query as a conversation turn against the active
// session. A query that is empty after trimming is silently ignored: no
// message, no network call.
//
// Exactly one terminal message follows the user message on every path,
// whether an assistant answer, a cancellation notice, or an in-band failure, and
// the loading flag is cleared on every exit path. Callers are expected to
// disable submission while Loading reports true; Send does not multiplex
// concurrent turns for one session.
func (d *Dispatcher) Send(ctx context.Context, in SendInput) error {
	query := strings.TrimSpace(in.Query)
	if query == "" {
		return nil
	}

	model := in.Model
	if model == "" {
		model = d.defaultModel
	}

	active := d.sessions.Active()
	sessionID := active.ID

	// The user's turn is durable before the outbound call is issued, so any
	// reader of session state mid-flight sees it.
	userMsg := chat.Message{Role: chat.RoleUser, Content: query, Timestamp: d.now().UTC()}
	d.sessions.AppendMessage(userMsg)

	sendCtx, cancel := context.WithCancel(ctx)
	tok := &token{cancel: cancel}

	d.mu.Lock()
	d.loading[sessionID] = true
	d.inflight[sessionID] = tok
	useWebSearch := d.useWebSearch
	d.mu.Unlock()

	defer func() {
		cancel()
		d.mu.Lock()
		delete(d.loading, sessionID)
		if d.inflight[sessionID] == tok {
			delete(d.inflight, sessionID)
		}
		d.mu.Unlock()
	}()

	d.emit(ctx, EventSendStart, observability.LevelVerbose, map[string]any{
		"session_id":     sessionID,
		"model":          model,
		"use_web_search": useWebSearch,
		"query_length":   len(query),
	})

	history := append(chat.CloneMessages(active.Messages), userMsg)

	resp, err := d.client.Query(sendCtx, rag.QueryRequest{
		Query:               query,
		Model:               model,
		ChatID:              sessionID,
		ConversationHistory: history,
		UseWebSearch:        useWebSearch,
		TrustedSitesOnly:    true,
		Filename:            in.Filename,
	})

	// The terminal message targets the originating session, not whichever
	// session is active at settlement time.
	terminal := d.terminalMessage(ctx, sessionID, resp, err)
	d.sessions.AppendMessageTo(sessionID, terminal)
	return nil
}

// terminalMessage maps the settled backend call into the single message
// that closes the turn.
func (d *Dispatcher) terminalMessage(ctx context.Context, sessionID string, resp *rag.QueryResponse, err error) chat.Message {
	now := d.now().UTC()

	switch {
	case err == nil:
		d.emit(ctx, EventSendDone, observability.LevelVerbose, map[string]any{
			"session_id":    sessionID,
			"answer_length": len(resp.Answer),
			"sources":       len(resp.Sources),
		})
		return chat.Message{
			Role:              chat.RoleAssistant,
			Content:           resp.Answer,
			Sources:           resp.Sources,
			SearchType:        resp.SearchType,
			HasLocalKnowledge: resp.HasLocalKnowledge,
			HasWebKnowledge:   resp.HasWebKnowledge,
			Timestamp:         now,
		}

	case errors.Is(err, context.Canceled):
		d.emit(ctx, EventCancelled, observability.LevelInfo, map[string]any{
			"session_id": sessionID,
		})
		return chat.Message{
			Role:      chat.RoleSystem,
			Content:   cancelledNotice,
			Error:     true,
			Timestamp: now,
		}

	default:
		reason := genericFailureText
		var apiErr *rag.APIError
		if errors.As(err, &apiErr) && apiErr.Detail != "" {
			reason = apiErr.Detail
		}
		d.emit(ctx, EventFailed, observability.LevelWarning, map[string]any{
			"session_id": sessionID,
			"error":      err.Error(),
		})
		return chat.Message{
			Role:      chat.RoleAssistant,
			Content:   reason,
			Error:     true,
			Timestamp: now,
		}
	}
}

// Cancel aborts the in-flight request for the active session, if any.
// Cancellation is cooperative: the backend may finish server-side, but the
// turn settles locally as cancelled. The user's already-appended message is
// untouched. No-op when nothing is in flight.
func (d *Dispatcher) Cancel() {
	d.CancelSession(d.sessions.Active().ID)
}

// CancelSession aborts the in-flight request for the given session id.
func (d *Dispatcher) CancelSession(sessionID string) {
	d.mu.Lock()
	tok, ok := d.inflight[sessionID]
	if ok {
		delete(d.inflight, sessionID)
		d.loading[sessionID] = false
	}
	d.mu.Unlock()

	if ok {
		tok.cancel()
	}
}

// token represents one live cancellation handle. At most one exists per
// session id at any time.
type token struct {
	cancel context.CancelFunc
}

func (d *Dispatcher) emit(ctx context.Context, eventType observability.EventType, level observability.Level, data map[string]any) {
	d.observer.OnEvent(ctx, observability.Event{
		Type:      eventType,
		Level:     level,
		Timestamp: d.now(),
		Source:    "dispatch.Dispatcher",
		Data:      data,
	})
}
