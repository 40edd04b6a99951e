// Package window evaluates an envelope's execution window against wall
// clock time, per §4.G.
package window

import (
	"time"

	"go.bryk.io/rmi/document"
)

// State reports where `now` falls relative to a window's `[begin, end)`
// interval.
type State uint

const (
	// StateOpen means the window either has no bound or now is within it.
	StateOpen State = iota
	// StateFuture means the window has not started yet.
	StateFuture
	// StatePast means the window has already closed.
	StatePast
)

// Future reports whether the window has not started yet: true iff
// `window.begin > now`. A nil window is never future.
func Future(w *document.Window, now time.Time) bool {
	if w == nil {
		return false
	}
	return w.Begin.After(now)
}

// Past reports whether the window has already closed: true iff
// `now >= window.begin + window.duration`. A nil window is never past.
func Past(w *document.Window, now time.Time) bool {
	if w == nil {
		return false
	}
	end := w.End()
	return now.After(end) || now.Equal(end)
}

// Evaluate classifies `now` against the window, per §3.
func Evaluate(w *document.Window, now time.Time) State {
	switch {
	case Future(w, now):
		return StateFuture
	case Past(w, now):
		return StatePast
	default:
		return StateOpen
	}
}
