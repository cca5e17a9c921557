package session

import (
	"sync"
	"time"
)

// defaultQuiet is how long message activity must stay quiet before an
// auto-save fires.
const defaultQuiet = time.Second

// autoSaver is a trailing-edge debouncer: every Bump restarts the quiet
// timer, and save runs once the timer elapses unseen. The save callback is
// always invoked outside the saver's lock and reads state at fire-time, so
// the eventual write reflects the latest session contents.
type autoSaver struct {
	mu      sync.Mutex
	quiet   time.Duration
	timer   *time.Timer
	pending bool
	stopped bool
	save    func()
}

func newAutoSaver(quiet time.Duration, save func()) *autoSaver {
	if quiet <= 0 {
		quiet = defaultQuiet
	}
	return &autoSaver{quiet: quiet, save: save}
}

// Bump schedules a save after the quiet period, restarting the timer if one
// is already pending.
func (a *autoSaver) Bump() {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.stopped {
		return
	}

	a.pending = true
	if a.timer != nil {
		a.timer.Stop()
	}
	a.timer = time.AfterFunc(a.quiet, a.fire)
}

func (a *autoSaver) fire() {
	a.mu.Lock()
	if a.stopped || !a.pending {
		a.mu.Unlock()
		return
	}
	a.pending = false
	a.mu.Unlock()

	a.save()
}

// Cancel drops any pending save without running it.
func (a *autoSaver) Cancel() {
	a.mu.Lock()
	defer a.mu.Unlock()

	a.pending = false
	if a.timer != nil {
		a.timer.Stop()
	}
}

// Flush runs a pending save immediately. No-op when nothing is pending.
func (a *autoSaver) Flush() {
	a.mu.Lock()
	if a.stopped || !a.pending {
		a.mu.Unlock()
		return
	}
	a.pending = false
	if a.timer != nil {
		a.timer.Stop()
	}
	a.mu.Unlock()

	a.save()
}

// Stop cancels any pending save and rejects further bumps.
func (a *autoSaver) Stop() {
	a.mu.Lock()
	defer a.mu.Unlock()

	a.stopped = true
	a.pending = false
	if a.timer != nil {
		a.timer.Stop()
	}
}
