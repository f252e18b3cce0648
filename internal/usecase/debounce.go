package usecase

import (
	"sync"
	"time"
)

// Debouncer coalesces bursts into one delayed call. Every Schedule cancels
// the pending timer and starts a new one; fire receives the sequence number of
// the schedule that produced it. A timer that already fired but lost the race
// against a newer Schedule or Cancel is rejected by Claim.
type Debouncer struct {
	mu      sync.Mutex
	delay   time.Duration
	fire    func(seq uint64)
	timer   *time.Timer
	seq     uint64
	pending bool
}

func NewDebouncer(delay time.Duration, fire func(seq uint64)) *Debouncer {
	return &Debouncer{delay: delay, fire: fire}
}

// Schedule (re)arms the timer and returns its sequence number.
func (d *Debouncer) Schedule() uint64 {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.timer != nil {
		d.timer.Stop()
	}
	d.seq++
	d.pending = true
	seq := d.seq
	d.timer = time.AfterFunc(d.delay, func() { d.fire(seq) })
	return seq
}

// Cancel drops the pending call, if any.
func (d *Debouncer) Cancel() {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.timer != nil {
		d.timer.Stop()
		d.timer = nil
	}
	if d.pending {
		d.seq++
		d.pending = false
	}
}

// Claim reports whether seq is the live schedule and consumes it.
func (d *Debouncer) Claim(seq uint64) bool {
	d.mu.Lock()
	defer d.mu.Unlock()

	if !d.pending || seq != d.seq {
		return false
	}
	d.pending = false
	d.timer = nil
	return true
}

func (d *Debouncer) Pending() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.pending
}
