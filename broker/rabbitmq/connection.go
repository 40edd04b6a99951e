package rabbitmq

import (
	"context"
	"crypto/tls"
	"sync"

	driver "github.com/rabbitmq/amqp091-go"
	"go.bryk.io/rmi/broker"
	"go.bryk.io/rmi/errors"
	xlog "go.bryk.io/rmi/log"
	"go.bryk.io/rmi/metrics"
)

// Connection owns a single AMQP transport, grounded on the teacher's
// session.init()/setConnection() pair but split so topology provisioning
// and session derivation are explicit calls instead of an internal event
// loop: reconnection here is driven by the reliability package's
// Reliable wrapper (§4.D) calling Repair, rather than a self-managed
// background goroutine.
type Connection struct {
	url       broker.URL
	topology  broker.Topology
	tlsConfig *tls.Config
	log       xlog.Logger
	metrics   *metrics.Collector

	mu   sync.Mutex
	conn *driver.Connection
}

// URL returns the broker endpoint this connection targets.
func (c *Connection) URL() broker.URL { return c.url }

// Open dials the broker and declares the expected topology, per the
// teacher's init(). Safe to call again after Close.
func (c *Connection) Open(_ context.Context) error {
	var (
		conn *driver.Connection
		err  error
	)
	if c.tlsConfig != nil {
		conn, err = driver.DialTLS(c.url.String(), c.tlsConfig)
	} else {
		conn, err = driver.Dial(c.url.String())
	}
	if err != nil {
		return errors.Wrap(err, "dial broker")
	}

	ch, err := conn.Channel()
	if err != nil {
		_ = conn.Close()
		return errors.Wrap(err, "open provisioning channel")
	}
	defer func() { _ = ch.Close() }()

	if err := declareTopology(ch, c.topology); err != nil {
		_ = conn.Close()
		return err
	}

	c.mu.Lock()
	c.conn = conn
	c.mu.Unlock()
	c.log.Info("connected")
	return nil
}

// Repair closes any broken transport and re-dials, re-declaring topology.
// It is the broker-specific half of the reliability package's Repairer
// contract (§4.D); reliability.Publisher adapts the ctx-less Repairer
// interface to this method.
func (c *Connection) Repair(ctx context.Context) error {
	c.mu.Lock()
	old := c.conn
	c.conn = nil
	c.mu.Unlock()
	if old != nil && !old.IsClosed() {
		_ = old.Close()
	}
	return c.Open(ctx)
}

// Session opens a new channel-backed Session bound to this connection.
func (c *Connection) Session(_ context.Context) (broker.Session, error) {
	c.mu.Lock()
	conn := c.conn
	c.mu.Unlock()
	if conn == nil || conn.IsClosed() {
		return nil, &broker.ConnectionError{Err: errors.New("rabbitmq: connection is not open")}
	}
	s, err := newSession(conn, c.log)
	if err != nil {
		return nil, &broker.ConnectionError{Err: err}
	}
	return s, nil
}

// Close tears down the underlying AMQP connection.
func (c *Connection) Close() error {
	c.mu.Lock()
	conn := c.conn
	c.conn = nil
	c.mu.Unlock()
	if conn == nil {
		return nil
	}
	return conn.Close()
}

// declareTopology provisions every exchange, queue and binding the
// connection expects to exist, grounded on session.go's
// loadTopology/addExchange/addQueue/addBinding. Declarations are
// idempotent when arguments match an existing entity, which is
// RabbitMQ's native behaviour and needs no explicit already-exists
// swallow (contrast the QMF method channel, §4.K, which must swallow
// error code 7 itself).
func declareTopology(ch *driver.Channel, t broker.Topology) error {
	for _, ex := range t.Exchanges {
		args := driver.Table(ex.Arguments)
		if err := ch.ExchangeDeclare(ex.Name, ex.Kind, ex.Durable, ex.AutoDelete, ex.Internal, false, args); err != nil {
			return errors.Wrapf(err, "declare exchange %s", ex.Name)
		}
	}
	for _, q := range t.Queues {
		args := driver.Table(q.Arguments)
		if _, err := ch.QueueDeclare(q.Name, q.Durable, q.AutoDelete, q.Exclusive, false, args); err != nil {
			return errors.Wrapf(err, "declare queue %s", q.Name)
		}
	}
	for _, b := range t.Bindings {
		args := driver.Table(b.Arguments)
		if len(b.RoutingKey) == 0 {
			if err := ch.QueueBind(b.Queue, "", b.Exchange, false, args); err != nil {
				return errors.Wrapf(err, "bind %s to %s", b.Queue, b.Exchange)
			}
			continue
		}
		for _, rk := range b.RoutingKey {
			if err := ch.QueueBind(b.Queue, rk, b.Exchange, false, args); err != nil {
				return errors.Wrapf(err, "bind %s to %s via %s", b.Queue, b.Exchange, rk)
			}
		}
	}
	return nil
}
