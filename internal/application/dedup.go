// Package application orchestrates the consensus engine: it wires the
// idempotency guard, the aggregate updater, the chosen-options selector,
// and the trigger handlers that drive an aggregate forward for every
// evaluation lifecycle event.
package application

import (
	"sync"
	"time"
)

// Default idempotency-guard parameters. The window bounds how long a
// redelivered event id is recognized; the threshold bounds memory by
// compacting the tracked set once it grows past the limit.
const (
	DefaultDedupWindow           = 60 * time.Second
	DefaultDedupCompactThreshold = 100
)

// Deduper recognizes replayed delivery of the same logical change event
// so trigger handlers can skip reprocessing. The delivery channel from
// storage is at-least-once, so duplicates are expected, not errors.
//
// The guard is a best-effort dampener, process-local and time-windowed.
// It is not a correctness mechanism: it does not survive restarts and
// is not shared across worker instances. True duplicate safety is
// delegated to the atomic update discipline of the aggregate updater.
type Deduper struct {
	mu sync.Mutex
	// seen maps event ids to the time they were first observed.
	seen map[string]time.Time

	window    time.Duration
	compactAt int
	now       func() time.Time
}

// NewDeduper creates an idempotency guard with the given recognition
// window and compaction threshold. A nil clock defaults to time.Now;
// injecting a clock makes the guard testable without sleeping.
// Non-positive window or threshold fall back to the defaults.
func NewDeduper(window time.Duration, compactAt int, now func() time.Time) *Deduper {
	if window <= 0 {
		window = DefaultDedupWindow
	}
	if compactAt <= 0 {
		compactAt = DefaultDedupCompactThreshold
	}
	if now == nil {
		now = time.Now
	}
	return &Deduper{
		seen:      make(map[string]time.Time),
		window:    window,
		compactAt: compactAt,
		now:       now,
	}
}

// Seen reports whether the event id was already observed within the
// window, recording it otherwise. The first call for an id returns
// false; subsequent calls within the window return true. An id whose
// window has elapsed is treated as new again.
func (d *Deduper) Seen(eventID string) bool {
	if eventID == "" {
		return false
	}

	d.mu.Lock()
	defer d.mu.Unlock()

	now := d.now()
	if at, ok := d.seen[eventID]; ok && now.Sub(at) < d.window {
		return true
	}

	d.seen[eventID] = now
	if len(d.seen) > d.compactAt {
		d.compact(now)
	}
	return false
}

// Len returns the number of currently tracked event ids.
func (d *Deduper) Len() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.seen)
}

// compact drops entries older than the window. Caller holds d.mu.
func (d *Deduper) compact(now time.Time) {
	for id, at := range d.seen {
		if now.Sub(at) >= d.window {
			delete(d.seen, id)
		}
	}
}
