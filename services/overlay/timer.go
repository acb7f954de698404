package overlay

import (
	"sync"
	"time"
)

// DefaultHideDelay is how long the controls stay up after the last activity.
const DefaultHideDelay = 3000 * time.Millisecond

// Timer shows navigation controls on activity and hides them after a period
// of inactivity. Only the last Touch of a burst schedules the hide.
type Timer struct {
	mu       sync.Mutex
	delay    time.Duration
	onChange func(visible bool)
	timer    *time.Timer
	visible  bool
	gen      uint64
	stopped  bool
}

// New returns a hidden Timer. onChange, when set, is called outside the lock
// each time visibility flips.
func New(delay time.Duration, onChange func(visible bool)) *Timer {
	if delay <= 0 {
		delay = DefaultHideDelay
	}
	return &Timer{delay: delay, onChange: onChange}
}

// Touch shows the controls and restarts the countdown.
func (t *Timer) Touch() {
	t.mu.Lock()
	if t.stopped {
		t.mu.Unlock()
		return
	}
	if t.timer != nil {
		t.timer.Stop()
	}
	t.gen++
	gen := t.gen
	t.timer = time.AfterFunc(t.delay, func() { t.expire(gen) })
	changed := !t.visible
	t.visible = true
	t.mu.Unlock()

	if changed {
		t.notify(true)
	}
}

// Hide hides the controls immediately.
func (t *Timer) Hide() {
	t.mu.Lock()
	if t.timer != nil {
		t.timer.Stop()
		t.timer = nil
	}
	t.gen++
	changed := t.visible && !t.stopped
	t.visible = false
	t.mu.Unlock()

	if changed {
		t.notify(false)
	}
}

func (t *Timer) Visible() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.visible
}

// Stop cancels any pending hide and disables the timer for good.
func (t *Timer) Stop() {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.timer != nil {
		t.timer.Stop()
		t.timer = nil
	}
	t.gen++
	t.stopped = true
	t.visible = false
}

func (t *Timer) expire(gen uint64) {
	t.mu.Lock()
	if gen != t.gen || t.stopped || !t.visible {
		t.mu.Unlock()
		return
	}
	t.visible = false
	t.timer = nil
	t.mu.Unlock()

	t.notify(false)
}

func (t *Timer) notify(visible bool) {
	if t.onChange != nil {
		t.onChange(visible)
	}
}
