package rabbitmq

import (
	"context"
	"time"

	driver "github.com/rabbitmq/amqp091-go"
	"go.bryk.io/rmi/broker"
	"go.bryk.io/rmi/document"
	"go.bryk.io/rmi/errors"
)

// Reader consumes deliveries from a single queue, grounded on the
// teacher's Consumer.Subscribe delivery channel but adapted to the
// blocking-with-timeout broker.Reader.Next contract instead of exposing
// the raw Go channel to callers.
type Reader struct {
	ch         *driver.Channel
	tag        string
	deliveries <-chan driver.Delivery
}

// Next waits up to timeout for the next delivery. A decode failure is
// returned alongside the Message (never nil in that case) so the caller
// can still reject or inspect the raw body, per the consumer package's
// invalid-document handling (§4.E).
func (r *Reader) Next(ctx context.Context, timeout time.Duration) (broker.Message, *document.Envelope, error) {
	select {
	case d, ok := <-r.deliveries:
		if !ok {
			return nil, nil, errors.New("rabbitmq: delivery channel closed")
		}
		msg := &Message{delivery: d}
		env, err := document.Load(d.Body)
		if err != nil {
			return msg, env, err
		}
		return msg, env, nil
	case <-time.After(timeout):
		return nil, nil, nil
	case <-ctx.Done():
		return nil, nil, ctx.Err()
	}
}

// Close cancels the underlying consumer.
func (r *Reader) Close() error {
	return r.ch.Cancel(r.tag, false)
}

// Message wraps a single AMQP delivery awaiting acknowledgement.
type Message struct {
	delivery driver.Delivery
}

// Body returns the raw message payload.
func (m *Message) Body() []byte { return m.delivery.Body }

// Ack acknowledges the delivery.
func (m *Message) Ack() error { return m.delivery.Ack(false) }

// Reject negatively acknowledges the delivery without requeueing, so the
// broker does not redeliver it.
func (m *Message) Reject() error { return m.delivery.Nack(false, false) }
