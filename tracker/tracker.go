// Package tracker implements the in-process registry that mediates
// cancellation of in-flight serial numbers, per §4.F. It is constructed
// once at startup and injected into the consumer and pending-queue
// components rather than held as a process-wide singleton (§9).
package tracker

import "sync"

type entry struct {
	any       any
	cancelled bool
}

// Tracker maps a request's serial number to its opaque correlator and
// cancellation state.
type Tracker struct {
	mu      sync.Mutex
	entries map[string]*entry
}

// New returns an empty tracker.
func New() *Tracker {
	return &Tracker{entries: map[string]*entry{}}
}

// Add registers sn as in-flight, carrying the opaque correlator that will
// be echoed back to the caller verbatim.
func (t *Tracker) Add(sn string, correlator any) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.entries[sn] = &entry{any: correlator}
}

// Cancel marks sn as cancelled. It returns true iff sn was tracked and
// not already cancelled.
func (t *Tracker) Cancel(sn string) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	e, ok := t.entries[sn]
	if !ok || e.cancelled {
		return false
	}
	e.cancelled = true
	return true
}

// Cancelled reports whether sn is tracked and has been cancelled.
func (t *Tracker) Cancelled(sn string) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	e, ok := t.entries[sn]
	return ok && e.cancelled
}

// Any returns the opaque correlator registered for sn, if tracked.
func (t *Tracker) Any(sn string) (any, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	e, ok := t.entries[sn]
	if !ok {
		return nil, false
	}
	return e.any, true
}

// Remove forgets sn. Called when the RMI completes, is rejected, or is
// explicitly forgotten.
func (t *Tracker) Remove(sn string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	delete(t.entries, sn)
}
