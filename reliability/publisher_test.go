package reliability

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.bryk.io/rmi/broker"
	"go.bryk.io/rmi/errors"
)

type fakeSender struct {
	fail  int
	sends int
}

func (s *fakeSender) Send(_ context.Context, _ []byte, _ time.Duration, _ bool) error {
	s.sends++
	if s.sends <= s.fail {
		return &broker.SendError{State: broker.Released, Err: errors.New("returned")}
	}
	return nil
}

func (s *fakeSender) Close() error { return nil }

type fakeSession struct{ sender *fakeSender }

func (s *fakeSession) Sender(_ context.Context, _ string) (broker.Sender, error) { return s.sender, nil }
func (s *fakeSession) Reader(_ context.Context, _ string) (broker.Reader, error) { return nil, nil }
func (s *fakeSession) Exchange(_ string) broker.Exchange                        { return nil }
func (s *fakeSession) Queue(_ string) broker.Queue                              { return nil }
func (s *fakeSession) Acknowledge() error                                       { return nil }
func (s *fakeSession) Close() error                                             { return nil }

type fakeConnection struct {
	session *fakeSession
	repairs int
}

func (c *fakeConnection) URL() broker.URL                            { return broker.URL{} }
func (c *fakeConnection) Open(_ context.Context) error               { return nil }
func (c *fakeConnection) Repair(_ context.Context) error              { c.repairs++; return nil }
func (c *fakeConnection) Session(_ context.Context) (broker.Session, error) {
	return c.session, nil
}
func (c *fakeConnection) Close() error { return nil }

func TestPublisherPushSucceedsWithoutRetry(t *testing.T) {
	sender := &fakeSender{}
	conn := &fakeConnection{session: &fakeSession{sender: sender}}

	p, err := NewPublisher(context.Background(), conn, "/tasks", nil, nil)
	require.NoError(t, err)

	require.NoError(t, p.Push(context.Background(), []byte("hi"), 0, false))
	require.Equal(t, 1, sender.sends)
	require.Equal(t, 0, conn.repairs)
}

func TestPublisherPushResendsOnReleasedSend(t *testing.T) {
	orig := ResendDelay
	ResendDelay = time.Millisecond
	defer func() { ResendDelay = orig }()

	sender := &fakeSender{fail: 2}
	conn := &fakeConnection{session: &fakeSession{sender: sender}}

	p, err := NewPublisher(context.Background(), conn, "/tasks", nil, nil)
	require.NoError(t, err)

	require.NoError(t, p.Push(context.Background(), []byte("hi"), 0, false))
	require.Equal(t, 3, sender.sends)
	require.Equal(t, 0, conn.repairs, "a released send is not a connection fault")
}

func TestPublisherStopUnblocksPush(t *testing.T) {
	orig := ResendDelay
	ResendDelay = time.Hour
	defer func() { ResendDelay = orig }()

	sender := &fakeSender{fail: 100}
	conn := &fakeConnection{session: &fakeSession{sender: sender}}

	p, err := NewPublisher(context.Background(), conn, "/tasks", nil, nil)
	require.NoError(t, err)

	done := make(chan error, 1)
	go func() { done <- p.Push(context.Background(), []byte("hi"), 0, false) }()

	time.Sleep(10 * time.Millisecond)
	p.Stop()

	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(time.Second):
		t.Fatal("push did not unblock after Stop")
	}
}
