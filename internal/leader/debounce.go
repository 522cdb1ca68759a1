package leader

import (
	"sync"
	"time"
)

// scrollDebouncer coalesces rapid scroll updates into one flush per window.
// The first update opens a fixed window; updates inside it only replace the
// pending value, and the flush fires once with whatever value arrived last.
// Followers therefore observe the final value per window, never every
// intermediate one.
type scrollDebouncer struct {
	window time.Duration
	flush  func(float64, uint64)

	mu         sync.Mutex
	timer      *time.Timer
	pending    float64
	pendingGen uint64
}

func newScrollDebouncer(window time.Duration, flush func(float64, uint64)) *scrollDebouncer {
	return &scrollDebouncer{
		window: window,
		flush:  flush,
	}
}

// update records the newest value and arms the window timer if idle. The
// generation tags which document the value belongs to; the flush target
// drops values from a superseded generation.
func (d *scrollDebouncer) update(y float64, gen uint64) {
	d.mu.Lock()
	defer d.mu.Unlock()

	d.pending = y
	d.pendingGen = gen
	if d.timer != nil {
		return
	}
	d.timer = time.AfterFunc(d.window, d.fire)
}

func (d *scrollDebouncer) fire() {
	d.mu.Lock()
	if d.timer == nil {
		// Cancelled between firing and acquiring the lock.
		d.mu.Unlock()
		return
	}
	d.timer = nil
	value := d.pending
	gen := d.pendingGen
	d.mu.Unlock()

	d.flush(value, gen)
}

// cancel drops any pending value without flushing. Used on stop and on
// document switches, where a stale position would be meaningless.
func (d *scrollDebouncer) cancel() {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.timer != nil {
		d.timer.Stop()
		d.timer = nil
	}
}
