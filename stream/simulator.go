package stream

import (
	"math/rand/v2"
	"strings"
	"sync"
	"time"
)

// Pacing defaults. Each chunk after the first waits base + perChar*len,
// plus jitter, capped at max.
const (
	defaultBaseDelay    = 300 * time.Millisecond
	defaultPerCharDelay = 10 * time.Millisecond
	defaultMaxDelay     = 1500 * time.Millisecond
	defaultMaxJitter    = 150 * time.Millisecond
)

// UpdateFunc receives the accumulated revealed text after each chunk.
// streaming is true until the final chunk has been revealed or the task is
// cancelled; the receiver replaces its displayed message in place.
type UpdateFunc func(revealed string, streaming bool)

// Option configures a Simulator.
type Option func(*Simulator)

// WithBaseDelay sets the fixed per-chunk delay component.
func WithBaseDelay(d time.Duration) Option {
	return func(s *Simulator) { s.base = d }
}

// WithPerCharDelay sets the per-character delay component.
func WithPerCharDelay(d time.Duration) Option {
	return func(s *Simulator) { s.perChar = d }
}

// WithMaxDelay caps the total per-chunk delay.
func WithMaxDelay(d time.Duration) Option {
	return func(s *Simulator) { s.max = d }
}

// WithJitter replaces the random jitter source. Pass a function returning 0
// for deterministic pacing in tests.
func WithJitter(jitter func() time.Duration) Option {
	return func(s *Simulator) { s.jitter = jitter }
}

// Simulator paces the reveal of complete answers. One Simulator can start
// many tasks; each Start returns an independently cancellable Task.
type Simulator struct {
	base    time.Duration
	perChar time.Duration
	max     time.Duration
	jitter  func() time.Duration
}

// New creates a Simulator with default pacing.
func New(opts ...Option) *Simulator {
	s := &Simulator{
		base:    defaultBaseDelay,
		perChar: defaultPerCharDelay,
		max:     defaultMaxDelay,
		jitter: func() time.Duration {
			return rand.N(defaultMaxJitter)
		},
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *Simulator) delayFor(chunk string) time.Duration {
	d := s.base + time.Duration(len(chunk))*s.perChar + s.jitter()
	if d > s.max {
		d = s.max
	}
	return d
}

// Task is one in-flight reveal. It is a scoped resource: Cancel must be
// called when the owning view unmounts or a new turn starts, so a stale
// timer can never mutate state after its turn is no longer current.
type Task struct {
	cancel    chan struct{}
	done      chan struct{}
	cancelled sync.Once
}

// Cancel stops any pending reveal timer and immediately clears the
// streaming flag through one final update. Safe to call more than once and
// after completion.
func (t *Task) Cancel() {
	t.cancelled.Do(func() { close(t.cancel) })
}

// Done is closed once the task has settled, whether revealed fully or
// cancelled.
func (t *Task) Done() <-chan struct{} {
	return t.done
}

// Start begins revealing text through update. The first chunk is delivered
// synchronously before Start returns, so callers immediately observe
// progress; later chunks arrive on the task's timer.
func (s *Simulator) Start(text string, update UpdateFunc) *Task {
	task := &Task{
		cancel: make(chan struct{}),
		done:   make(chan struct{}),
	}

	chunks := Chunks(text)
	if len(chunks) == 0 {
		update("", false)
		close(task.done)
		return task
	}

	revealed := chunks[0]
	update(revealed, len(chunks) > 1)
	if len(chunks) == 1 {
		close(task.done)
		return task
	}

	go func() {
		defer close(task.done)

		timer := time.NewTimer(0)
		if !timer.Stop() {
			<-timer.C
		}
		defer timer.Stop()

		for i, chunk := range chunks[1:] {
			timer.Reset(s.delayFor(chunk))

			select {
			case <-task.cancel:
				update(revealed, false)
				return
			case <-timer.C:
			}

			revealed = strings.TrimSpace(revealed + " " + chunk)
			last := i == len(chunks)-2
			update(revealed, !last)
		}
	}()

	return task
}
