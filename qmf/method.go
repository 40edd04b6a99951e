// Package qmf rebuilds the Qpid Management Framework method-invocation
// channel described in §4.K: a request/reply exchange over the broker's
// well-known management address, used to declare and delete exchanges,
// queues and bindings on brokers that expose a QMF-style management
// surface. It is grounded on the original `messaging/adapter/qpid/model.py`
// but reimplemented against the `broker` adapter contract so it is not
// tied to a single vendor's client library.
package qmf

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.bryk.io/rmi/broker"
	"go.bryk.io/rmi/errors"
)

// Well-known QMF wire constants, unchanged from the original.
const (
	address       = "qmf.default.direct/broker"
	subject       = "broker"
	opCreate      = "create"
	opDelete      = "delete"
	alreadyExists = 7
	replyTimeout  = 10 * time.Second
)

var objectID = map[string]any{"_object_name": "org.apache.qpid.broker:broker:amqp-broker"}

// Method is a single QMF method invocation: a name (`create`/`delete`) and
// its broker-specific argument map.
type Method struct {
	Name      string
	Arguments map[string]any
}

type methodRequest struct {
	ObjectID   map[string]any `json:"_object_id"`
	MethodName string         `json:"_method_name"`
	Arguments  map[string]any `json:"_arguments"`
}

type methodReply struct {
	Opcode string `json:"qmf.opcode"`
	Values struct {
		ErrorCode int    `json:"error_code"`
		ErrorText string `json:"error_text"`
	} `json:"_values"`
}

// Error reports a QMF method failure that was not the broker's
// already-exists condition.
type Error struct {
	Code        int
	Description string
}

// Error implements the error interface.
func (e *Error) Error() string {
	return fmt.Sprintf("qmf: %s (code %d)", e.Description, e.Code)
}

// Invoke sends m to the broker's management address over session and
// waits for its reply. It opens a Sender and an exclusive, auto-delete
// reply Reader, and closes both in reverse order with each close's error
// suppressed, per §5 "Scoped resources". Error code 7 (already exists) is
// swallowed, matching the declare/delete idempotency contract of §4.C.
func Invoke(ctx context.Context, session broker.Session, m Method) error {
	replyTo := "qmf-reply-" + uuid.NewString()

	sender, err := session.Sender(ctx, address)
	if err != nil {
		return errors.Wrap(err, "open qmf sender")
	}
	defer func() { _ = sender.Close() }()

	reader, err := session.Reader(ctx, replyTo)
	if err != nil {
		return errors.Wrap(err, "open qmf reply reader")
	}
	defer func() { _ = reader.Close() }()

	body, err := json.Marshal(methodRequest{
		ObjectID:   objectID,
		MethodName: m.Name,
		Arguments:  m.Arguments,
	})
	if err != nil {
		return errors.Wrap(err, "encode qmf method request")
	}
	if err := sender.Send(ctx, body, 0, false); err != nil {
		return errors.Wrap(err, "send qmf method request")
	}

	// The reply body is a QMF method reply, not an RMI envelope, so the
	// decoded *document.Envelope the Reader also returns is ignored; only
	// the raw message matters here.
	msg, _, err := reader.Next(ctx, replyTimeout)
	if msg == nil {
		if err != nil {
			return errors.Wrap(err, "await qmf reply")
		}
		return errors.New("qmf: no reply received before timeout")
	}
	defer func() { _ = msg.Ack() }()

	var reply methodReply
	if err := json.Unmarshal(msg.Body(), &reply); err != nil {
		return errors.Wrap(err, "decode qmf reply")
	}
	if reply.Opcode != "_exception" {
		return nil
	}
	if reply.Values.ErrorCode == alreadyExists {
		return nil
	}
	return &Error{Code: reply.Values.ErrorCode, Description: reply.Values.ErrorText}
}

// DeclareExchange issues the QMF equivalent of an idempotent exchange
// declaration.
func DeclareExchange(ctx context.Context, session broker.Session, name, kind string, durable, autoDelete bool) error {
	return Invoke(ctx, session, Method{
		Name: opCreate,
		Arguments: map[string]any{
			"strict":        true,
			"name":          name,
			"type":          "exchange",
			"exchange-type": kind,
			"properties": map[string]any{
				"auto-delete": autoDelete,
				"durable":     durable,
			},
		},
	})
}

// DeleteExchange issues the QMF equivalent of an exchange deletion.
func DeleteExchange(ctx context.Context, session broker.Session, name string) error {
	return Invoke(ctx, session, Method{
		Name: opDelete,
		Arguments: map[string]any{
			"strict":     true,
			"name":       name,
			"type":       "exchange",
			"properties": map[string]any{},
		},
	})
}

// DeclareQueue issues the QMF equivalent of an idempotent queue
// declaration.
func DeclareQueue(ctx context.Context, session broker.Session, name string, durable, autoDelete, exclusive bool) error {
	return Invoke(ctx, session, Method{
		Name: opCreate,
		Arguments: map[string]any{
			"strict": true,
			"name":   name,
			"type":   "queue",
			"properties": map[string]any{
				"exclusive":   exclusive,
				"auto-delete": autoDelete,
				"durable":     durable,
			},
		},
	})
}

// DeleteQueue issues the QMF equivalent of a queue deletion.
func DeleteQueue(ctx context.Context, session broker.Session, name string) error {
	return Invoke(ctx, session, Method{
		Name: opDelete,
		Arguments: map[string]any{
			"strict":     true,
			"name":       name,
			"type":       "queue",
			"properties": map[string]any{},
		},
	})
}

// bindingName mirrors the original's "exchange/queue/queue" binding
// identity convention.
func bindingName(exchange, queue string) string {
	return exchange + "/" + queue + "/" + queue
}

// Bind issues the QMF equivalent of an exchange-to-queue binding.
func Bind(ctx context.Context, session broker.Session, exchange, queue string) error {
	return Invoke(ctx, session, Method{
		Name: opCreate,
		Arguments: map[string]any{
			"strict":     true,
			"name":       bindingName(exchange, queue),
			"type":       "binding",
			"properties": map[string]any{},
		},
	})
}

// Unbind issues the QMF equivalent of removing an exchange-to-queue
// binding.
func Unbind(ctx context.Context, session broker.Session, exchange, queue string) error {
	return Invoke(ctx, session, Method{
		Name: opDelete,
		Arguments: map[string]any{
			"strict":     true,
			"name":       bindingName(exchange, queue),
			"type":       "binding",
			"properties": map[string]any{},
		},
	})
}
