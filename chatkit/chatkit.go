// Package chatkit composes store, session, rag, and dispatch into a
// client-side chat manager for one authenticated identity.
//
// The client initializes from configuration via New, creating all subsystems
// internally. Functional options allow test overrides of any subsystem.
//
//	c, err := chatkit.New(ctx, &cfg)
//	err = c.Send(ctx, "What does the quarterly report say about churn?")
package chatkit

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/ragdesk/chatkit/core/chat"
	"github.com/ragdesk/chatkit/dispatch"
	"github.com/ragdesk/chatkit/observability"
	"github.com/ragdesk/chatkit/rag"
	"github.com/ragdesk/chatkit/session"
	"github.com/ragdesk/chatkit/store"
)

// Option configures a Client before config-driven initialization.
// Overrides replace the subsystem that would otherwise be built from config.
type Option func(*overrides)

type overrides struct {
	kv       store.Store
	querier  dispatch.Querier
	cleaner  session.Cleaner
	observer observability.Observer
	clock    func() time.Time
}

// WithStore overrides the config-created key-value store.
func WithStore(kv store.Store) Option {
	return func(o *overrides) { o.kv = kv }
}

// WithQuerier overrides the config-created backend query client.
func WithQuerier(q dispatch.Querier) Option {
	return func(o *overrides) { o.querier = q }
}

// WithCleaner overrides the backend cleaner used on session deletion.
func WithCleaner(c session.Cleaner) Option {
	return func(o *overrides) { o.cleaner = c }
}

// WithObserver overrides the default SlogObserver.
func WithObserver(obs observability.Observer) Option {
	return func(o *overrides) { o.observer = obs }
}

// WithClock overrides the time source. Intended for tests.
func WithClock(now func() time.Time) Option {
	return func(o *overrides) { o.clock = now }
}

// Client is the top-level chat manager. It owns the session store, the
// backend client, and the request dispatcher for a single identity.
type Client struct {
	sessions   *session.Store
	dispatcher *dispatch.Dispatcher
	kv         store.Store
	observer   observability.Observer
}

// New creates a Client from configuration. Subsystems (store, session
// store, backend client, dispatcher) are initialized from their respective
// config sections. Functional options applied before initialization can
// override any subsystem for testing.
func New(ctx context.Context, cfg *Config, opts ...Option) (*Client, error) {
	var ov overrides
	for _, opt := range opts {
		opt(&ov)
	}

	observer := ov.observer
	if observer == nil {
		observer = observability.NewSlogObserver(slog.Default())
	}

	kv := ov.kv
	if kv == nil && cfg.Identity != "" {
		var err error
		kv, err = store.New(ctx, &cfg.Store)
		if err != nil {
			return nil, fmt.Errorf("failed to create store: %w", err)
		}
	}

	backend := rag.NewClient(cfg.BaseURL)

	querier := ov.querier
	if querier == nil {
		querier = backend
	}
	cleaner := ov.cleaner
	if cleaner == nil {
		cleaner = backend
	}

	sessionOpts := []session.Option{
		session.WithCleaner(cleaner),
		session.WithObserver(observer),
	}
	if cfg.AutoSaveQuietMS > 0 {
		sessionOpts = append(sessionOpts,
			session.WithAutoSaveQuiet(time.Duration(cfg.AutoSaveQuietMS)*time.Millisecond))
	}
	if ov.clock != nil {
		sessionOpts = append(sessionOpts, session.WithClock(ov.clock))
	}

	sessions, err := session.NewStore(ctx, cfg.Identity, kv, sessionOpts...)
	if err != nil {
		return nil, fmt.Errorf("failed to load session history: %w", err)
	}

	dispatcher := dispatch.New(querier, sessions,
		dispatch.WithObserver(observer),
		dispatch.WithDefaultModel(cfg.Model),
		dispatch.WithWebSearch(!cfg.DisableWebSearch),
	)

	return &Client{
		sessions:   sessions,
		dispatcher: dispatcher,
		kv:         kv,
		observer:   observer,
	}, nil
}

// Send submits one user query as a turn against the active session and
// blocks until the turn settles.
func (c *Client) Send(ctx context.Context, query string) error {
	return c.dispatcher.Send(ctx, dispatch.SendInput{Query: query})
}

// Dispatcher returns the underlying request dispatcher, for callers that
// need per-request input (model, attachment) or per-session cancellation.
func (c *Client) Dispatcher() *dispatch.Dispatcher {
	return c.dispatcher
}

// Cancel aborts the in-flight request for the active session, if any.
func (c *Client) Cancel() {
	c.dispatcher.Cancel()
}

// Loading reports whether a request is in flight for the active session.
func (c *Client) Loading() bool {
	return c.dispatcher.Loading(c.sessions.ActiveID())
}

// SetWebSearch toggles hybrid search for subsequent sends.
func (c *Client) SetWebSearch(enabled bool) {
	c.dispatcher.SetWebSearch(enabled)
}

// WebSearch reports whether hybrid search is currently enabled.
func (c *Client) WebSearch() bool {
	return c.dispatcher.WebSearch()
}

// Active returns a copy of the active session.
func (c *Client) Active() *chat.Session {
	return c.sessions.Active()
}

// History returns copies of all saved sessions, most recently updated first.
func (c *Client) History() []*chat.Session {
	return c.sessions.History()
}

// StartNewSession saves the current session if it holds messages and makes
// a fresh empty session active.
func (c *Client) StartNewSession(ctx context.Context) *chat.Session {
	return c.sessions.StartNew(ctx)
}

// LoadSession makes the identified saved session active. The previous
// active session is saved first if it holds messages.
func (c *Client) LoadSession(ctx context.Context, id string) (*chat.Session, error) {
	return c.sessions.Load(ctx, id)
}

// DeleteSession removes the identified session locally and asks the backend
// to discard its server-side context. When the active session is deleted, a
// fresh session becomes active.
func (c *Client) DeleteSession(ctx context.Context, id string) error {
	return c.sessions.Delete(ctx, id)
}

// DeleteAllSessions clears the identity's entire history.
func (c *Client) DeleteAllSessions(ctx context.Context) error {
	return c.sessions.DeleteAll(ctx)
}

// Flush forces any pending auto-save to run now.
func (c *Client) Flush() {
	c.sessions.Flush()
}

// Close flushes pending saves and releases the store. The Client must not
// be used afterwards.
func (c *Client) Close() error {
	err := c.sessions.Close()
	if closer, ok := c.kv.(io.Closer); ok {
		if cerr := closer.Close(); err == nil {
			err = cerr
		}
	}
	return err
}
