// Package consumer implements the per-queue read/decode/dispatch pipeline
// described in §4.E, grounded on the original `messaging/consumer.py`'s
// `ConsumerThread` for its retry/backoff shape and on the teacher's
// `amqp/consumer.go` for the goroutine-based realisation of a long-lived
// read loop.
package consumer

import (
	"context"
	"sync"
	"time"

	"go.bryk.io/rmi/auth"
	"go.bryk.io/rmi/broker"
	"go.bryk.io/rmi/document"
	"go.bryk.io/rmi/errors"
	xlog "go.bryk.io/rmi/log"
	"go.bryk.io/rmi/metrics"
	"go.bryk.io/rmi/reliability"
	"go.bryk.io/rmi/tracker"
	"go.bryk.io/rmi/window"
)

// reopenDelay is the back-off applied after a failed Reader open or an
// unrecoverable read/dispatch failure, per §4.E.
const reopenDelay = 60 * time.Second

// readTimeout bounds a single Reader.Next call, per §4.E "loop calling
// Reader.next(10 s)".
const readTimeout = 10 * time.Second

// Executor is the extension point supplied by the surrounding agent: it
// carries out the RMI a dispatched envelope describes, and is told about
// envelopes rejected at the document-validation boundary.
type Executor interface {
	// Dispatch executes the envelope's request. An error here means the
	// message must NOT be acked (§7): the reader is closed and reopened
	// so the broker redelivers it.
	Dispatch(env *document.Envelope) error
	// Rejected reports an envelope that failed validation before
	// dispatch. The consumer acks the originating message regardless.
	Rejected(code, description string, body []byte, details error)
}

// Consumer is a single ConsumerThread: one goroutine reading from one
// queue, decoding envelopes, and routing them to an Executor. It holds no
// application state beyond the reader itself.
type Consumer struct {
	name     string
	session  broker.Session
	queue    string
	executor Executor
	log      xlog.Logger
	metrics  *metrics.Collector
	abort    *reliability.Flag

	mu    sync.RWMutex
	state State

	verifier *auth.Verifier
	tracker  *tracker.Tracker

	done chan struct{}
}

// Option configures optional Consumer behaviour beyond the structural
// envelope checks document.Validate already performs.
type Option func(*Consumer)

// WithVerifier enables envelope signature verification (§4.J): a signed
// envelope whose signature does not match v's key is rejected with
// document.CodeAuthFailed. Without this option (the default), no
// verifier is consulted and signatures are not checked.
func WithVerifier(v *auth.Verifier) Option {
	return func(c *Consumer) { c.verifier = v }
}

// WithTracker enables the window-expiry invariant (§3): an envelope
// whose window is past and whose sn is not tracked as cancelled is
// rejected with document.CodeExpired. Without a Tracker (the default),
// there is nothing to reconcile cancellation against, so expiry is not
// checked.
func WithTracker(t *tracker.Tracker) Option {
	return func(c *Consumer) { c.tracker = t }
}

// New returns a Consumer bound to queue over session. It does not start
// reading until Start is called.
func New(name string, session broker.Session, queue string, executor Executor, log xlog.Logger, mc *metrics.Collector, opts ...Option) *Consumer {
	if log == nil {
		log = xlog.Discard()
	}
	c := &Consumer{
		name:     name,
		session:  session,
		queue:    queue,
		executor: executor,
		log:      log.Sub(xlog.Fields{"consumer": name, "queue": queue}),
		metrics:  mc,
		abort:    reliability.NewFlag(),
		done:     make(chan struct{}),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// State reports the consumer's current lifecycle state.
func (c *Consumer) State() State {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.state
}

func (c *Consumer) setState(s State) {
	c.mu.Lock()
	c.state = s
	c.mu.Unlock()
}

// Start runs the consumer's read loop in a new goroutine. Stop requests a
// clean shutdown; Done is closed once the loop has fully drained.
func (c *Consumer) Start(ctx context.Context) {
	go c.run(ctx)
}

// Stop requests a clean shutdown: the in-flight Reader.Next returns on
// its next timeout (≤10s) and the consumer drains, per §5.
func (c *Consumer) Stop() {
	c.abort.Set()
}

// Done is closed once the consumer has transitioned to Stopped.
func (c *Consumer) Done() <-chan struct{} {
	return c.done
}

func (c *Consumer) run(ctx context.Context) {
	defer close(c.done)
	c.setState(Starting)

	for !c.abort.Get() && ctx.Err() == nil {
		c.setState(Opening)
		reader, err := c.session.Reader(ctx, c.queue)
		if err != nil {
			c.log.Warningf("failed to open reader: %v", err)
			if !c.backoff(ctx, reopenDelay) {
				break
			}
			continue
		}

		c.setState(Running)
		c.serve(ctx, reader)
	}

	c.setState(Stopped)
}

// backoff sleeps d, returning early (false) if the abort flag is raised
// or ctx is done first.
func (c *Consumer) backoff(ctx context.Context, d time.Duration) bool {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return true
	case <-c.abort.Done():
		return false
	case <-ctx.Done():
		return false
	}
}

// serve is the Running-state read loop. It returns when the consumer
// should transition back to Opening (reader closed on any exception
// other than a clean timeout) or when shutdown was requested.
func (c *Consumer) serve(ctx context.Context, reader broker.Reader) {
	defer func() {
		if c.abort.Get() || ctx.Err() != nil {
			c.setState(Draining)
		}
		if err := reader.Close(); err != nil {
			c.log.Warningf("failed to close reader: %v", err)
		}
	}()

	for !c.abort.Get() && ctx.Err() == nil {
		msg, env, err := reader.Next(ctx, readTimeout)
		if err != nil {
			var invalid *document.InvalidDocument
			if errors.As(err, &invalid) {
				c.reject(msg, invalid)
				continue
			}
			c.log.Errorf("read failed, reopening: %v", err)
			c.backoff(ctx, reopenDelay)
			return
		}
		if msg == nil {
			continue // Next timed out; loop and check abort/ctx again
		}

		if invalid := c.validate(env); invalid != nil {
			c.reject(msg, invalid)
			continue
		}

		if err := c.executor.Dispatch(env); err != nil {
			// §7: dispatch exceptions are logged, the message is NOT
			// acked, and the reader is closed and reopened so the
			// broker redelivers it.
			c.log.Errorf("dispatch failed for %s, reopening: %v", env.SN, err)
			c.backoff(ctx, reopenDelay)
			return
		}
		if err := msg.Ack(); err != nil {
			c.log.Warningf("ack failed for %s: %v", env.SN, err)
		}
		c.metrics.IncDispatched()
	}
}

// validate applies the envelope invariants that need context beyond the
// envelope itself and so cannot live in document.Validate: signature
// verification (§4.J, skipped if no Verifier was configured) and the
// window-expiry invariant (§3: a past window whose sn the Tracker does
// not report cancelled is rejected, skipped if no Tracker was
// configured). Returns nil when the envelope may proceed to dispatch.
func (c *Consumer) validate(env *document.Envelope) *document.InvalidDocument {
	if err := c.verifier.Verify(env); err != nil {
		var invalid *document.InvalidDocument
		if errors.As(err, &invalid) {
			return invalid
		}
		return &document.InvalidDocument{Code: document.CodeAuthFailed, Description: "signature verification failed", Details: err}
	}
	if c.tracker != nil && window.Past(env.Window, time.Now()) && !c.tracker.Cancelled(env.SN) {
		return &document.InvalidDocument{Code: document.CodeExpired, Description: "execution window has closed"}
	}
	return nil
}

func (c *Consumer) reject(msg broker.Message, invalid *document.InvalidDocument) {
	var body []byte
	if msg != nil {
		body = msg.Body()
	}
	c.executor.Rejected(invalid.Code, invalid.Description, body, invalid.Details)
	c.metrics.IncRejected(invalid.Code)
	if msg != nil {
		if err := msg.Ack(); err != nil {
			c.log.Warningf("ack failed for rejected message: %v", err)
		}
	}
}
