package pending

import (
	"context"
	"time"

	"go.bryk.io/rmi/document"
	xlog "go.bryk.io/rmi/log"
)

// getTimeout is the pending dispatcher's fixed poll timeout, per §4.I.
const getTimeout = 3 * time.Second

// Executor is the extension point that actually carries out a popped
// envelope's RMI. Successful dispatch is the Executor's responsibility to
// follow with Queue.Commit; failing to commit means the envelope will be
// re-served after a restart.
type Executor interface {
	Dispatch(env *document.Envelope) error
}

// Dispatcher is the long-lived pump that drains a Queue into an Executor,
// per §4.I.
type Dispatcher struct {
	queue    *Queue
	executor Executor
	log      xlog.Logger
}

// NewDispatcher returns a Dispatcher draining queue into executor.
func NewDispatcher(queue *Queue, executor Executor, log xlog.Logger) *Dispatcher {
	if log == nil {
		log = xlog.Discard()
	}
	return &Dispatcher{queue: queue, executor: executor, log: log}
}

// Run loops until ctx is cancelled: Get(3s), and on a non-nil result,
// Dispatch it. A Dispatch error is logged; the envelope's fate then rests
// on whether the executor eventually commits it.
func (d *Dispatcher) Run(ctx context.Context) {
	for {
		if ctx.Err() != nil {
			return
		}
		env, err := d.queue.Get(ctx, getTimeout)
		if err != nil {
			return // ctx was cancelled mid-wait
		}
		if env == nil {
			continue
		}
		if err := d.executor.Dispatch(env); err != nil {
			d.log.Errorf("pending dispatch failed for %s: %v", env.SN, err)
		}
	}
}
