// Package debounce delays committing a rapidly changing value until input has
// been quiet for a fixed interval.
package debounce

import (
	"sync"
	"time"
)

// DefaultDelay is the quiet window used for search input.
const DefaultDelay = 300 * time.Millisecond

// Debouncer is idle until Call moves it to pending and (re)starts the timer.
// When the timer elapses without another Call, the last value is passed to
// the commit function and the debouncer returns to idle.
//
// Commits are serialized: a value from an earlier Call never reaches commit
// after one from a later Call. commit must not call Flush.
type Debouncer[T any] struct {
	delay  time.Duration
	commit func(T)

	commitMu sync.Mutex

	mu      sync.Mutex
	timer   *time.Timer
	gen     uint64
	value   T
	pending bool
	stopped bool
}

// New returns a debouncer that passes settled values to commit.
func New[T any](delay time.Duration, commit func(T)) *Debouncer[T] {
	if delay <= 0 {
		delay = DefaultDelay
	}
	return &Debouncer[T]{delay: delay, commit: commit}
}

// Call records v and restarts the quiet window. It is a no-op after Stop.
func (d *Debouncer[T]) Call(v T) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.stopped {
		return
	}
	d.gen++
	d.value = v
	d.pending = true
	if d.timer != nil {
		d.timer.Stop()
	}
	gen := d.gen
	d.timer = time.AfterFunc(d.delay, func() { d.fire(gen) })
}

// Pending reports whether a value is waiting to commit.
func (d *Debouncer[T]) Pending() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.pending
}

// Cancel drops the pending value without committing it. It reports whether
// anything was pending.
func (d *Debouncer[T]) Cancel() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.cancelLocked()
}

// Flush commits the pending value immediately. It reports whether anything
// was committed.
func (d *Debouncer[T]) Flush() bool {
	d.commitMu.Lock()
	defer d.commitMu.Unlock()

	d.mu.Lock()
	if !d.pending || d.stopped {
		d.mu.Unlock()
		return false
	}
	v := d.value
	d.cancelLocked()
	d.mu.Unlock()

	d.commit(v)
	return true
}

// Stop cancels any pending value and disables the debouncer for good.
func (d *Debouncer[T]) Stop() {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.cancelLocked()
	d.stopped = true
}

func (d *Debouncer[T]) cancelLocked() bool {
	was := d.pending
	d.gen++
	d.pending = false
	var zero T
	d.value = zero
	if d.timer != nil {
		d.timer.Stop()
		d.timer = nil
	}
	return was
}

func (d *Debouncer[T]) fire(gen uint64) {
	d.commitMu.Lock()
	defer d.commitMu.Unlock()

	d.mu.Lock()
	if d.stopped || !d.pending || gen != d.gen {
		d.mu.Unlock()
		return
	}
	v := d.value
	d.pending = false
	var zero T
	d.value = zero
	d.timer = nil
	d.mu.Unlock()

	d.commit(v)
}
