package reliability

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.bryk.io/rmi/broker"
	"go.bryk.io/rmi/errors"
)

type countingRepairer struct{ repairs int }

func (r *countingRepairer) Repair() error {
	r.repairs++
	return nil
}

// TestReliableRetriesUntilSuccess exercises §8 invariant 5: a function
// failing on its first N calls and succeeding on the N+1st returns the
// success value and records exactly N repair invocations.
func TestReliableRetriesUntilSuccess(t *testing.T) {
	orig := Delay
	Delay = time.Millisecond
	defer func() { Delay = orig }()

	abort := NewFlag()
	repairer := &countingRepairer{}
	calls := 0

	err := Reliable(abort, nil, nil, repairer, func() error {
		calls++
		if calls <= 2 {
			return &broker.LinkDetachedError{Condition: "amqp:link-redirect", Err: errors.New("bounced")}
		}
		return nil
	})
	require.NoError(t, err)
	require.Equal(t, 2, repairer.repairs)
	require.Equal(t, 3, calls)
}

func TestReliableSurfacesNotFoundWithoutRetry(t *testing.T) {
	abort := NewFlag()
	repairer := &countingRepairer{}

	err := Reliable(abort, nil, nil, repairer, func() error {
		return &broker.LinkDetachedError{Condition: broker.NotFoundCondition, Err: errors.New("gone")}
	})
	require.Error(t, err)
	require.ErrorIs(t, err, broker.ErrNotFound)
	require.Equal(t, 0, repairer.repairs)
}

// TestReliableRetriesConnectionError exercises the other retryable shape
// alongside a non-not-found LinkDetachedError: a *broker.ConnectionError
// is retried (with repair) instead of propagating.
func TestReliableRetriesConnectionError(t *testing.T) {
	orig := Delay
	Delay = time.Millisecond
	defer func() { Delay = orig }()

	abort := NewFlag()
	repairer := &countingRepairer{}
	calls := 0

	err := Reliable(abort, nil, nil, repairer, func() error {
		calls++
		if calls <= 2 {
			return &broker.ConnectionError{Err: errors.New("dial timeout")}
		}
		return nil
	})
	require.NoError(t, err)
	require.Equal(t, 2, repairer.repairs)
	require.Equal(t, 3, calls)
}

// TestReliablePropagatesTerminalError exercises the blocking review fix:
// an error that is neither a LinkDetachedError nor a ConnectionError (e.g.
// a terminal *broker.SendError bubbling up through Resend's inner op)
// must return immediately, without any repair or sleep.
func TestReliablePropagatesTerminalError(t *testing.T) {
	abort := NewFlag()
	repairer := &countingRepairer{}
	terminal := &broker.SendError{State: broker.Rejected, Err: errors.New("bad request")}

	err := Reliable(abort, nil, nil, repairer, func() error {
		return terminal
	})
	require.ErrorIs(t, err, terminal)
	require.Equal(t, 0, repairer.repairs)
}

func TestReliableExitsOnAbort(t *testing.T) {
	abort := NewFlag()
	repairer := &countingRepairer{}
	abort.Set()

	err := Reliable(abort, nil, nil, repairer, func() error {
		t.Fatal("op should not be called once abort is raised")
		return nil
	})
	require.NoError(t, err)
}
