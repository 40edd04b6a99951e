package pending

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.bryk.io/rmi/document"
	"go.bryk.io/rmi/tracker"
)

func newTestQueue(t *testing.T) (*Queue, *tracker.Tracker) {
	t.Helper()
	tr := tracker.New()
	q, err := New(t.TempDir(), tr, nil, nil)
	require.NoError(t, err)
	return q, tr
}

func envelope(t *testing.T) *document.Envelope {
	t.Helper()
	e, err := document.New(document.Request, document.Routing{"controller", "agent-1"})
	require.NoError(t, err)
	return e
}

// TestDeferThenReady exercises scenario S1.
func TestDeferThenReady(t *testing.T) {
	q, _ := newTestQueue(t)
	e := envelope(t)
	e.Window = &document.Window{Begin: time.Now().Add(2 * time.Second), Duration: time.Minute}
	require.NoError(t, q.Add("amqp://localhost", e))

	got, err := q.Get(context.Background(), time.Second)
	require.NoError(t, err)
	require.Nil(t, got)

	time.Sleep(3 * time.Second)
	got, err = q.Get(context.Background(), time.Second)
	require.NoError(t, err)
	require.NotNil(t, got)
	require.Equal(t, e.SN, got.SN)

	require.NoError(t, q.Commit(got.SN))
	_, statErr := os.Stat(filepath.Join(q.root, got.SN))
	require.True(t, os.IsNotExist(statErr))
}

// TestCancelJumpsWindow exercises scenario S2.
func TestCancelJumpsWindow(t *testing.T) {
	q, tr := newTestQueue(t)
	e := envelope(t)
	e.Window = &document.Window{Begin: time.Now().Add(time.Hour), Duration: time.Minute}
	require.NoError(t, q.Add("amqp://localhost", e))

	require.True(t, tr.Cancel(e.SN))

	got, err := q.Get(context.Background(), time.Second)
	require.NoError(t, err)
	require.NotNil(t, got)
	require.Equal(t, e.SN, got.SN)
}

// TestCorruptPendingSkipped exercises scenario S5.
func TestCorruptPendingSkipped(t *testing.T) {
	root := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(root, "garbage"), []byte("not json"), 0o640))

	tr := tracker.New()

	// Write a valid envelope directly so load() picks it up from disk.
	good, err := document.New(document.Request, document.Routing{"controller", "agent-1"})
	require.NoError(t, err)
	data, err := good.Dump()
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(filepath.Join(root, good.SN), data, 0o640))

	q, err := New(root, tr, nil, nil)
	require.NoError(t, err)

	_, statErr := os.Stat(filepath.Join(root, "garbage"))
	require.True(t, os.IsNotExist(statErr))

	got, err := q.Get(context.Background(), time.Second)
	require.NoError(t, err)
	require.NotNil(t, got)
	require.Equal(t, good.SN, got.SN)
}

func TestCommitUnknownSNIsSwallowable(t *testing.T) {
	q, _ := newTestQueue(t)
	err := q.Commit("never-existed")
	require.ErrorIs(t, err, ErrUnknownCommit)
}

func TestCrashRecoveryReloadsUncommitted(t *testing.T) {
	root := t.TempDir()
	tr := tracker.New()
	q, err := New(root, tr, nil, nil)
	require.NoError(t, err)

	e := envelope(t)
	require.NoError(t, q.Add("amqp://localhost", e))

	got, err := q.Get(context.Background(), time.Second)
	require.NoError(t, err)
	require.NotNil(t, got)
	// Simulate a crash: never call Commit, construct a fresh Queue over
	// the same root.

	q2, err := New(root, tracker.New(), nil, nil)
	require.NoError(t, err)
	require.Equal(t, 1, q2.Len())
}
