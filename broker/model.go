package broker

import (
	"context"
	"time"

	"go.bryk.io/rmi/document"
)

// SendState describes the terminal outcome of a Sender.Send call that did
// not complete normally.
type SendState string

// Known send states. Released is the only one the reliability wrapper's
// Resend decorator treats as retryable (§4.D).
const (
	Released SendState = "released"
	Rejected SendState = "rejected"
)

// Topology describes the broker entities a Connection is expected to
// provision on open, generalized from the teacher's AMQP topology model.
type Topology struct {
	Exchanges []ExchangeSpec
	Queues    []QueueSpec
	Bindings  []BindingSpec
}

// QueueSpec declares a durable or transient message queue.
type QueueSpec struct {
	Name       string
	Durable    bool
	AutoDelete bool
	Exclusive  bool
	Arguments  map[string]any
}

// ExchangeSpec declares a routing entity messages are published to.
type ExchangeSpec struct {
	Name       string
	Kind       string
	Durable    bool
	AutoDelete bool
	Internal   bool
	Arguments  map[string]any
}

// BindingSpec connects a queue to an exchange.
type BindingSpec struct {
	Exchange   string
	Queue      string
	RoutingKey []string
	Arguments  map[string]any
}

// Connection owns a transport to a single broker endpoint. Sessions are
// borrowed from it; closing a Connection closes every Session, Sender and
// Reader derived from it (§3 "Adapter objects").
type Connection interface {
	// URL returns the broker endpoint this connection targets, used for
	// reconnection.
	URL() URL
	// Open establishes the transport.
	Open(ctx context.Context) error
	// Repair is idempotent: it closes any broken transport and
	// re-establishes the connection using the same URL and credentials.
	Repair(ctx context.Context) error
	// Session opens a new session bound to this connection.
	Session(ctx context.Context) (Session, error)
	// Close tears down the connection and every derived Session.
	Close() error
}

// Session is borrowed from a Connection and provisions Senders, Readers
// and topology declarations.
type Session interface {
	// Sender returns a Sender bound to the given address.
	Sender(ctx context.Context, address string) (Sender, error)
	// Reader returns a Reader bound to the given address (typically a
	// queue name).
	Reader(ctx context.Context, address string) (Reader, error)
	// Exchange returns a handle for declaring/deleting/binding the named
	// exchange.
	Exchange(name string) Exchange
	// Queue returns a handle for declaring/deleting the named queue.
	Queue(name string) Queue
	// Acknowledge flushes any pending acknowledgements for the session.
	Acknowledge() error
	// Close releases the session and every Sender/Reader derived from it.
	Close() error
}

// Sender publishes messages to a broker address.
type Sender interface {
	// Send publishes body to the sender's address. ttl of zero means no
	// expiration; durable requests persistence across broker restarts.
	// On broker rejection, Send returns a *SendError.
	Send(ctx context.Context, body []byte, ttl time.Duration, durable bool) error
	// Close releases the sender.
	Close() error
}

// Reader consumes messages from a broker address. It never acks
// implicitly: callers must call Message.Ack or Message.Reject.
type Reader interface {
	// Next blocks up to timeout for the next message, returning
	// (nil, nil, nil) on timeout.
	Next(ctx context.Context, timeout time.Duration) (Message, *document.Envelope, error)
	// Close releases the reader.
	Close() error
}

// Message is a single broker delivery awaiting acknowledgement.
type Message interface {
	// Body returns the raw message payload.
	Body() []byte
	// Ack acknowledges successful processing.
	Ack() error
	// Reject signals the message was not processed and should not be
	// redelivered as-is.
	Reject() error
}

// Exchange declares, deletes and binds a named exchange. Declarations are
// idempotent: redeclaring an exchange with matching properties succeeds
// (the broker's "already exists" condition is swallowed by implementations).
type Exchange interface {
	Declare(ctx context.Context, kind string, durable, autoDelete, internal bool, args map[string]any) error
	Delete(ctx context.Context) error
	Bind(ctx context.Context, queue string, routingKey string, args map[string]any) error
	Unbind(ctx context.Context, queue string, routingKey string, args map[string]any) error
}

// Queue declares and deletes a named queue, idempotently.
type Queue interface {
	Declare(ctx context.Context, durable, autoDelete, exclusive bool, args map[string]any) error
	Delete(ctx context.Context) error
}
