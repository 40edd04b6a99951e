package reliability

import (
	"context"
	"sync"
	"time"

	"go.bryk.io/rmi/broker"
	xlog "go.bryk.io/rmi/log"
	"go.bryk.io/rmi/metrics"
)

// Publisher resends a message reliably over a fixed address on any
// broker.Connection, grounded on the teacher's amqp/publisher.go Push:
// publish, and on failure keep retrying rather than surfacing a single
// transient error to the caller. Here the retry/backoff policy is the
// Reliable/Resend decorators (§4.D) rather than Push's inline loop, and
// the decorator is adapter-agnostic: it only depends on the broker
// package's interfaces, not on any specific driver.
type Publisher struct {
	conn    broker.Connection
	address string
	log     xlog.Logger
	metrics *metrics.Collector
	abort   *Flag

	mu      sync.Mutex
	session broker.Session
	sender  broker.Sender
}

// NewPublisher opens a session against conn and derives a Sender bound to
// address. The Publisher owns that session for its lifetime; a broker
// fault triggers Repair and a transparent rebind.
func NewPublisher(ctx context.Context, conn broker.Connection, address string, log xlog.Logger, mc *metrics.Collector) (*Publisher, error) {
	if log == nil {
		log = xlog.Discard()
	}
	p := &Publisher{
		conn:    conn,
		address: address,
		log:     log.Sub(xlog.Fields{"address": address}),
		metrics: mc,
		abort:   NewFlag(),
	}
	if err := p.rebind(ctx); err != nil {
		return nil, err
	}
	return p, nil
}

// rebind (re)derives a session and sender from the owning Connection,
// used both at construction and after Repair re-dials.
func (p *Publisher) rebind(ctx context.Context) error {
	session, err := p.conn.Session(ctx)
	if err != nil {
		return err
	}
	sender, err := session.Sender(ctx, p.address)
	if err != nil {
		return err
	}
	p.mu.Lock()
	p.session, p.sender = session, sender
	p.mu.Unlock()
	return nil
}

// repair re-dials the underlying Connection and rebinds a fresh
// session/sender pair.
func (p *Publisher) repair(ctx context.Context) error {
	if err := p.conn.Repair(ctx); err != nil {
		return err
	}
	return p.rebind(ctx)
}

// publisherRepairer is the per-call adapter satisfying Repairer; it
// closes over the ctx of a single Push invocation since Repairer.Repair
// takes none.
type publisherRepairer struct {
	ctx context.Context
	p   *Publisher
}

func (r *publisherRepairer) Repair() error { return r.p.repair(r.ctx) }

// Push sends body reliably, per §4.D: a connection-level fault triggers
// Repair and a retry (Reliable); a broker-released (unroutable) send
// triggers the bounded resend loop (Resend) instead of surfacing
// immediately.
func (p *Publisher) Push(ctx context.Context, body []byte, ttl time.Duration, durable bool) error {
	return Resend(p.abort, p.log, p.metrics, &publisherRepairer{ctx: ctx, p: p}, func() error {
		p.mu.Lock()
		sender := p.sender
		p.mu.Unlock()
		return sender.Send(ctx, body, ttl, durable)
	})
}

// Stop raises the abort flag, unblocking any in-flight Push loop without
// waiting out its current retry delay.
func (p *Publisher) Stop() {
	p.abort.Set()
}

// Close releases the Publisher's session.
func (p *Publisher) Close() error {
	p.mu.Lock()
	session := p.session
	p.mu.Unlock()
	if session == nil {
		return nil
	}
	return session.Close()
}
