package timekeeper

import (
	"time"
)

// Elapsing measures wall time between reports.
type Elapsing struct {
	checkpoint time.Time
	total      time.Duration
}

func NewElapsing() *Elapsing {
	// time.Now carries the monotonic clock so deltas are safe
	return &Elapsing{checkpoint: time.Now()}
}

// Report returns the time since the previous report and moves the checkpoint.
func (e *Elapsing) Report() time.Duration {
	now := time.Now()
	d := now.Sub(e.checkpoint)
	e.checkpoint = now
	e.total += d
	return d
}

// Total is the sum of every reported duration since creation or Reset.
func (e *Elapsing) Total() time.Duration {
	return e.total
}

func (e *Elapsing) Reset() {
	e.checkpoint = time.Now()
	e.total = 0
}
