package quote

import (
	"sync"
	"time"
)

// Debouncer coalesces bursts of triggers (a user typing an amount) into one
// callback, and stamps each burst with a generation number. A stale
// in-flight quote can still resolve, but its generation no longer matches
// and its result is discarded instead of clobbering a newer one.
type Debouncer struct {
	mu    sync.Mutex
	timer *time.Timer
	gen   uint64
	delay time.Duration
}

// NewDebouncer builds a debouncer with the given settle delay.
func NewDebouncer(delay time.Duration) *Debouncer {
	return &Debouncer{delay: delay}
}

// Trigger schedules fn after the settle delay, cancelling any pending
// schedule. The returned generation identifies this trigger; fn receives
// the same value.
func (d *Debouncer) Trigger(fn func(gen uint64)) uint64 {
	d.mu.Lock()
	defer d.mu.Unlock()

	d.gen++
	gen := d.gen
	if d.timer != nil {
		d.timer.Stop()
	}
	d.timer = time.AfterFunc(d.delay, func() { fn(gen) })
	return gen
}

// Current reports whether gen is still the latest trigger.
func (d *Debouncer) Current(gen uint64) bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return gen == d.gen
}
