package broker

import "go.bryk.io/rmi/errors"

// ErrNotFound is surfaced when a link detaches with condition
// `amqp:not-found`: the resource is gone and the caller must recreate it
// and retry, per §4.D/§7.
var ErrNotFound = errors.New("broker: resource not found")

// LinkCondition enumerates the AMQP link-detach conditions the
// reliability wrapper distinguishes between.
type LinkCondition string

// NotFoundCondition is the one link-detach condition that must not be
// retried by the reliability wrapper (§4.D).
const NotFoundCondition LinkCondition = "amqp:not-found"

// SendError reports that Sender.Send failed with a specific terminal (or
// retryable) broker state.
type SendError struct {
	State SendState
	Err   error
}

// Error implements the error interface.
func (e *SendError) Error() string {
	if e.Err != nil {
		return string(e.State) + ": " + e.Err.Error()
	}
	return string(e.State)
}

// Unwrap exposes the underlying cause for errors.Is/As chains.
func (e *SendError) Unwrap() error { return e.Err }

// ConnectionError reports a connection-level fault — a dial failure, a
// transport that died under a borrowed Session/Sender/Reader — distinct
// from a terminal SendError or a resource's plain absence. It is the
// other error shape (alongside a non-not-found LinkDetachedError) the
// reliability wrapper (§4.D) treats as retryable; everything else
// propagates to the caller unchanged.
type ConnectionError struct {
	Err error
}

// Error implements the error interface.
func (e *ConnectionError) Error() string {
	return "connection fault: " + e.Err.Error()
}

// Unwrap exposes the underlying cause for errors.Is/As chains.
func (e *ConnectionError) Unwrap() error { return e.Err }

// LinkDetachedError reports that a link (session/reader/sender) detached,
// carrying the broker-reported condition so callers can distinguish a
// retryable fault from a `not-found` resource-gone condition.
type LinkDetachedError struct {
	Condition LinkCondition
	Err       error
}

// Error implements the error interface.
func (e *LinkDetachedError) Error() string {
	return "link detached (" + string(e.Condition) + "): " + e.Err.Error()
}

// Unwrap exposes the underlying cause for errors.Is/As chains.
func (e *LinkDetachedError) Unwrap() error { return e.Err }
