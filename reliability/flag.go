// Package reliability implements the retry middleware described in §4.D:
// transient broker faults become transparent reconnect-and-retry instead
// of unwinding user-visible state, grounded on the original implementation's
// `reliable`/`resend` decorators.
package reliability

import (
	"sync"
	"sync/atomic"
)

// Flag is a process-wide abort signal observed by every retry loop
// between iterations and sleeps, per §5 "Abort flag".
type Flag struct {
	v    atomic.Bool
	once sync.Once
	done chan struct{}
}

// NewFlag returns a ready-to-use, unset abort flag.
func NewFlag() *Flag {
	return &Flag{done: make(chan struct{})}
}

// Set raises the flag. Lowering it back is not supported: once a process
// is asked to abort, loops must observe it permanently.
func (f *Flag) Set() {
	f.v.Store(true)
	f.once.Do(func() { close(f.done) })
}

// Get reports whether the flag has been raised.
func (f *Flag) Get() bool { return f.v.Load() }

// Done returns a channel closed when the flag is raised, for use in
// select statements alongside sleeps and broker notifications.
func (f *Flag) Done() <-chan struct{} { return f.done }
