package rabbitmq

import (
	"context"
	"strconv"
	"time"

	"github.com/google/uuid"
	driver "github.com/rabbitmq/amqp091-go"
	"go.bryk.io/rmi/broker"
	"go.bryk.io/rmi/errors"
)

// returnGrace bounds how long Send waits for a mandatory-publish return
// before assuming the broker routed the message successfully.
const returnGrace = 200 * time.Millisecond

// Sender publishes to a fixed exchange/routing-key pair, grounded on the
// teacher's publisher.go push path but simplified to the synchronous
// broker.Sender contract: each Send blocks for up to returnGrace waiting
// for a mandatory-publish return before reporting success.
type Sender struct {
	session    *Session
	exchange   string
	routingKey string
}

// Send publishes body. It always sets the mandatory flag so an
// unroutable message comes back as a *broker.SendError{State: Released}
// instead of silently vanishing, per §4.D's retry contract.
func (sd *Sender) Send(ctx context.Context, body []byte, ttl time.Duration, durable bool) error {
	id := uuid.NewString()
	wait := sd.session.register(id)

	mode := driver.Transient
	if durable {
		mode = driver.Persistent
	}
	pub := driver.Publishing{
		Body:         body,
		DeliveryMode: mode,
		MessageId:    id,
		Timestamp:    time.Now(),
	}
	if ttl > 0 {
		pub.Expiration = strconv.FormatInt(ttl.Milliseconds(), 10)
	}

	if err := sd.session.ch.PublishWithContext(ctx, sd.exchange, sd.routingKey, true, false, pub); err != nil {
		sd.session.unregister(id)
		if isConnFault(err) {
			return &broker.ConnectionError{Err: errors.Wrap(err, "publish")}
		}
		return errors.Wrap(err, "publish")
	}

	select {
	case ret, ok := <-wait:
		if !ok {
			return nil
		}
		return &broker.SendError{
			State: broker.Released,
			Err:   errors.Errorf("message returned by broker: %s", ret.ReplyText),
		}
	case <-time.After(returnGrace):
		sd.session.unregister(id)
		return nil
	case <-ctx.Done():
		sd.session.unregister(id)
		return ctx.Err()
	}
}

// Close is a no-op: the underlying channel is owned by the Session the
// Sender was derived from.
func (sd *Sender) Close() error { return nil }

// isConnFault reports whether err is driver.ErrClosed or any *driver.Error
// (a channel or connection exception, which closes the channel), as
// opposed to any other publish failure. A closed channel/connection needs
// Session/Sender to be rebuilt from scratch, so the reliability wrapper
// must retry it rather than treat it as terminal.
func isConnFault(err error) bool {
	if errors.Is(err, driver.ErrClosed) {
		return true
	}
	var amqpErr *driver.Error
	return errors.As(err, &amqpErr)
}
