package presence

import (
	"sync"
	"time"
)

// DefaultQuietPeriod is how long the local typing indicator survives without input.
const DefaultQuietPeriod = 3 * time.Second

// Debouncer drives the local typing indicator. Touch announces typing and arms a quiet
// timer; when it fires without another Touch the stop hook runs once.
//
// Hooks run serially and never while the state lock is held. After Stop or Cancel
// returns no earlier timer can fire a hook.
type Debouncer struct {
	quiet   time.Duration
	onStart func()
	onStop  func()

	hookMu sync.Mutex

	mu     sync.Mutex
	timer  *time.Timer
	gen    uint64
	active bool
}

// NewDebouncer creates a debouncer. A non-positive quiet period uses DefaultQuietPeriod.
// Nil hooks are allowed.
func NewDebouncer(quiet time.Duration, onStart, onStop func()) *Debouncer {
	if quiet <= 0 {
		quiet = DefaultQuietPeriod
	}
	if onStart == nil {
		onStart = func() {}
	}
	if onStop == nil {
		onStop = func() {}
	}
	return &Debouncer{quiet: quiet, onStart: onStart, onStop: onStop}
}

// Touch runs the start hook and restarts the quiet timer.
func (d *Debouncer) Touch() {
	d.hookMu.Lock()
	defer d.hookMu.Unlock()

	d.mu.Lock()
	d.gen++
	gen := d.gen
	d.disarm()
	d.active = true
	d.mu.Unlock()

	d.onStart()

	d.mu.Lock()
	if gen == d.gen {
		d.timer = time.AfterFunc(d.quiet, func() { d.expire(gen) })
	}
	d.mu.Unlock()
}

// Stop cancels the timer and runs the stop hook if typing was active.
func (d *Debouncer) Stop() {
	d.hookMu.Lock()
	defer d.hookMu.Unlock()

	d.mu.Lock()
	d.gen++
	d.disarm()
	wasActive := d.active
	d.active = false
	d.mu.Unlock()

	if wasActive {
		d.onStop()
	}
}

// Cancel cancels the timer without running any hook. Used on teardown.
func (d *Debouncer) Cancel() {
	d.mu.Lock()
	d.gen++
	d.disarm()
	d.active = false
	d.mu.Unlock()

	// Wait out a hook that had already passed the generation check.
	d.hookMu.Lock()
	d.hookMu.Unlock() //nolint:staticcheck // empty critical section is a barrier
}

// Active reports whether the local participant is currently shown as typing.
func (d *Debouncer) Active() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.active
}

func (d *Debouncer) expire(gen uint64) {
	d.hookMu.Lock()
	defer d.hookMu.Unlock()

	d.mu.Lock()
	if gen != d.gen || !d.active {
		d.mu.Unlock()
		return
	}
	d.active = false
	d.timer = nil
	d.mu.Unlock()

	d.onStop()
}

// disarm must be called with mu held.
func (d *Debouncer) disarm() {
	if d.timer != nil {
		d.timer.Stop()
		d.timer = nil
	}
}
