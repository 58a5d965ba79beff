package sweeps

import (
	"sync"
	"time"
)

// Debouncer coalesces rapid successive triggers into one callback after a
// settle delay. The cart store marks itself dirty through Trigger on every
// aggregate-value change; the deal eligibility pass runs on settle.
type Debouncer struct {
	mu    sync.Mutex
	timer *time.Timer
	delay time.Duration
	fn    func()
}

// NewDebouncer builds a debouncer invoking fn after delay of quiet.
func NewDebouncer(delay time.Duration, fn func()) *Debouncer {
	if delay <= 0 {
		delay = 400 * time.Millisecond
	}
	return &Debouncer{delay: delay, fn: fn}
}

// Trigger marks the state dirty and (re)starts the settle timer.
func (d *Debouncer) Trigger() {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.fn == nil {
		return
	}
	if d.timer != nil {
		d.timer.Stop()
	}
	d.timer = time.AfterFunc(d.delay, d.fn)
}

// Stop cancels any pending callback.
func (d *Debouncer) Stop() {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.timer != nil {
		d.timer.Stop()
		d.timer = nil
	}
}
