package rabbitmq

import (
	"context"
	"sync"

	"github.com/google/uuid"
	driver "github.com/rabbitmq/amqp091-go"
	"go.bryk.io/rmi/broker"
	"go.bryk.io/rmi/errors"
	xlog "go.bryk.io/rmi/log"
)

// Session wraps a single AMQP channel, grounded on the teacher's
// setChannel/NotifyReturn wiring but scoped to one session instead of
// the whole connection, matching the adapter-neutral broker.Session
// contract (§4.B).
type Session struct {
	ch  *driver.Channel
	log xlog.Logger

	mu      sync.Mutex
	waiters map[string]chan driver.Return
}

// newSession opens a fresh channel on conn and wires up a return
// listener used to correlate mandatory-publish rejections back to the
// Sender.Send call that produced them.
func newSession(conn *driver.Connection, log xlog.Logger) (*Session, error) {
	ch, err := conn.Channel()
	if err != nil {
		return nil, errors.Wrap(err, "open channel")
	}
	if err := ch.Confirm(false); err != nil {
		return nil, errors.Wrap(err, "enable confirms")
	}

	s := &Session{
		ch:      ch,
		log:     log,
		waiters: make(map[string]chan driver.Return),
	}
	returns := make(chan driver.Return, 16)
	ch.NotifyReturn(returns)
	go s.pumpReturns(returns)
	return s, nil
}

// pumpReturns dispatches broker-issued message returns (§4.D "released"
// sends) to whichever Sender.Send call registered a waiter for that
// message's correlation id, mirroring the teacher's
// handleMessageReturns broadcast but targeted instead of broadcast,
// since each Send cares only about its own publish.
func (s *Session) pumpReturns(returns <-chan driver.Return) {
	for ret := range returns {
		s.mu.Lock()
		w, ok := s.waiters[ret.MessageId]
		if ok {
			delete(s.waiters, ret.MessageId)
		}
		s.mu.Unlock()
		if ok {
			w <- ret
			close(w)
		}
	}
}

func (s *Session) register(id string) chan driver.Return {
	w := make(chan driver.Return, 1)
	s.mu.Lock()
	s.waiters[id] = w
	s.mu.Unlock()
	return w
}

func (s *Session) unregister(id string) {
	s.mu.Lock()
	delete(s.waiters, id)
	s.mu.Unlock()
}

// Sender returns a publisher bound to address, interpreted as
// "exchange/routing-key" (an empty exchange segment means the default
// exchange), matching the qmf.Method address convention.
func (s *Session) Sender(_ context.Context, address string) (broker.Sender, error) {
	exchange, routingKey := splitAddress(address)
	return &Sender{session: s, exchange: exchange, routingKey: routingKey}, nil
}

// Reader opens a consumer on address, treated as a plain queue name.
func (s *Session) Reader(_ context.Context, address string) (broker.Reader, error) {
	tag := "reader-" + uuid.NewString()
	deliveries, err := s.ch.Consume(address, tag, false, false, false, false, nil)
	if err != nil {
		return nil, errors.Wrapf(err, "consume from %s", address)
	}
	return &Reader{ch: s.ch, tag: tag, deliveries: deliveries}, nil
}

// Exchange returns a declare/delete/bind/unbind handle for name.
func (s *Session) Exchange(name string) broker.Exchange { return &exchangeHandle{name: name, ch: s.ch} }

// Queue returns a declare/delete handle for name.
func (s *Session) Queue(name string) broker.Queue { return &queueHandle{name: name, ch: s.ch} }

// Acknowledge is a no-op: this adapter acks/rejects each Message
// individually rather than batching, so there is nothing to flush here.
func (s *Session) Acknowledge() error { return nil }

// Close releases the channel and every pending return waiter.
func (s *Session) Close() error {
	s.mu.Lock()
	for id, w := range s.waiters {
		delete(s.waiters, id)
		close(w)
	}
	s.mu.Unlock()
	return s.ch.Close()
}

// splitAddress interprets an address of the form "exchange/routing-key"
// the way the original QMF model does ("qmf.default.direct/broker"): the
// segment before the first slash is the exchange, the rest is the
// routing key. An address with no slash routes through the default
// exchange using the whole address as the routing key (queue name).
func splitAddress(address string) (exchange, routingKey string) {
	for i := 0; i < len(address); i++ {
		if address[i] == '/' {
			return address[:i], address[i+1:]
		}
	}
	return "", address
}
