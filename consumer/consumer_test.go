package consumer

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.bryk.io/rmi/auth"
	"go.bryk.io/rmi/broker"
	"go.bryk.io/rmi/crypto/ed25519"
	"go.bryk.io/rmi/document"
	"go.bryk.io/rmi/tracker"
)

type fakeMessage struct {
	body   []byte
	acked  bool
	rejcnt int
}

func (m *fakeMessage) Body() []byte  { return m.body }
func (m *fakeMessage) Ack() error    { m.acked = true; return nil }
func (m *fakeMessage) Reject() error { m.rejcnt++; return nil }

// fakeReader replays a fixed sequence of (message, envelope, error)
// triples, then returns (nil, nil, nil) forever (simulating timeouts).
type fakeReader struct {
	mu     sync.Mutex
	deliveries []delivery
	closed bool
}

type delivery struct {
	msg *fakeMessage
	env *document.Envelope
	err error
}

func (r *fakeReader) Next(_ context.Context, _ time.Duration) (broker.Message, *document.Envelope, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if len(r.deliveries) == 0 {
		return nil, nil, nil
	}
	d := r.deliveries[0]
	r.deliveries = r.deliveries[1:]
	if d.msg == nil {
		return nil, d.env, d.err
	}
	return d.msg, d.env, d.err
}

func (r *fakeReader) Close() error {
	r.mu.Lock()
	r.closed = true
	r.mu.Unlock()
	return nil
}

type fakeSession struct {
	reader broker.Reader
}

func (s *fakeSession) Sender(context.Context, string) (broker.Sender, error) { return nil, nil }
func (s *fakeSession) Reader(context.Context, string) (broker.Reader, error) {
	return s.reader, nil
}
func (s *fakeSession) Exchange(string) broker.Exchange { return nil }
func (s *fakeSession) Queue(string) broker.Queue       { return nil }
func (s *fakeSession) Acknowledge() error              { return nil }
func (s *fakeSession) Close() error                    { return nil }

type recordingExecutor struct {
	mu        sync.Mutex
	dispatched []*document.Envelope
	rejected   []string
}

func (e *recordingExecutor) Dispatch(env *document.Envelope) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.dispatched = append(e.dispatched, env)
	return nil
}

func (e *recordingExecutor) Rejected(code, _ string, _ []byte, _ error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.rejected = append(e.rejected, code)
}

// TestConsumerInvalidDocument exercises scenario S6: a missing-sn message
// is rejected and acked, and the reader stays open.
func TestConsumerInvalidDocument(t *testing.T) {
	msg := &fakeMessage{body: []byte(`{}`)}
	reader := &fakeReader{deliveries: []delivery{
		{msg: msg, err: &document.InvalidDocument{Code: document.CodeSNMissing}},
	}}
	session := &fakeSession{reader: reader}
	exec := &recordingExecutor{}

	c := New("t1", session, "q", exec, nil, nil)
	ctx, cancel := context.WithCancel(context.Background())
	c.Start(ctx)

	require.Eventually(t, func() bool {
		exec.mu.Lock()
		defer exec.mu.Unlock()
		return len(exec.rejected) == 1
	}, time.Second, time.Millisecond)

	require.True(t, msg.acked)
	require.Equal(t, document.CodeSNMissing, exec.rejected[0])
	require.False(t, reader.closed)

	c.Stop()
	cancel()
	<-c.Done()
}

func TestConsumerDispatchesValidEnvelope(t *testing.T) {
	env, err := document.New(document.Request, document.Routing{"a", "b"})
	require.NoError(t, err)
	msg := &fakeMessage{body: []byte("{}")}
	reader := &fakeReader{deliveries: []delivery{{msg: msg, env: env}}}
	session := &fakeSession{reader: reader}
	exec := &recordingExecutor{}

	c := New("t2", session, "q", exec, nil, nil)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	c.Start(ctx)

	require.Eventually(t, func() bool {
		exec.mu.Lock()
		defer exec.mu.Unlock()
		return len(exec.dispatched) == 1
	}, time.Second, time.Millisecond)
	require.True(t, msg.acked)

	c.Stop()
	<-c.Done()
}

// TestConsumerRejectsUnverifiedSignature exercises §4.J: a configured
// Verifier rejects an envelope signed (or tampered) with a mismatching
// key as auth-failed.
func TestConsumerRejectsUnverifiedSignature(t *testing.T) {
	signer, err := ed25519.New()
	require.NoError(t, err)
	defer signer.Destroy()
	other, err := ed25519.New()
	require.NoError(t, err)
	defer other.Destroy()

	env, err := document.New(document.Request, document.Routing{"a", "b"})
	require.NoError(t, err)
	require.NoError(t, auth.Sign(signer, env))

	msg := &fakeMessage{body: []byte("{}")}
	reader := &fakeReader{deliveries: []delivery{{msg: msg, env: env}}}
	session := &fakeSession{reader: reader}
	exec := &recordingExecutor{}

	c := New("t3", session, "q", exec, nil, nil, WithVerifier(auth.VerifierFromKeyPair(other)))
	ctx, cancel := context.WithCancel(context.Background())
	c.Start(ctx)

	require.Eventually(t, func() bool {
		exec.mu.Lock()
		defer exec.mu.Unlock()
		return len(exec.rejected) == 1
	}, time.Second, time.Millisecond)
	require.Equal(t, document.CodeAuthFailed, exec.rejected[0])
	require.True(t, msg.acked)

	c.Stop()
	cancel()
	<-c.Done()
}

// TestConsumerRejectsExpiredWindow exercises §3's invariant: a past
// window whose sn is not tracked as cancelled is rejected as expired.
func TestConsumerRejectsExpiredWindow(t *testing.T) {
	env, err := document.New(document.Request, document.Routing{"a", "b"})
	require.NoError(t, err)
	env.Window = &document.Window{Begin: time.Now().Add(-time.Hour), Duration: time.Minute}

	msg := &fakeMessage{body: []byte("{}")}
	reader := &fakeReader{deliveries: []delivery{{msg: msg, env: env}}}
	session := &fakeSession{reader: reader}
	exec := &recordingExecutor{}

	c := New("t4", session, "q", exec, nil, nil, WithTracker(tracker.New()))
	ctx, cancel := context.WithCancel(context.Background())
	c.Start(ctx)

	require.Eventually(t, func() bool {
		exec.mu.Lock()
		defer exec.mu.Unlock()
		return len(exec.rejected) == 1
	}, time.Second, time.Millisecond)
	require.Equal(t, document.CodeExpired, exec.rejected[0])
	require.True(t, msg.acked)

	c.Stop()
	cancel()
	<-c.Done()
}

// TestConsumerDispatchesCancelledExpiredWindow exercises the other half
// of §3's invariant: a past window whose sn IS tracked as cancelled is
// not rejected as expired, leaving the cancellation outcome to the
// executor.
func TestConsumerDispatchesCancelledExpiredWindow(t *testing.T) {
	env, err := document.New(document.Request, document.Routing{"a", "b"})
	require.NoError(t, err)
	env.Window = &document.Window{Begin: time.Now().Add(-time.Hour), Duration: time.Minute}

	tr := tracker.New()
	tr.Add(env.SN, nil)
	tr.Cancel(env.SN)

	msg := &fakeMessage{body: []byte("{}")}
	reader := &fakeReader{deliveries: []delivery{{msg: msg, env: env}}}
	session := &fakeSession{reader: reader}
	exec := &recordingExecutor{}

	c := New("t5", session, "q", exec, nil, nil, WithTracker(tr))
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	c.Start(ctx)

	require.Eventually(t, func() bool {
		exec.mu.Lock()
		defer exec.mu.Unlock()
		return len(exec.dispatched) == 1
	}, time.Second, time.Millisecond)

	c.Stop()
	<-c.Done()
}
