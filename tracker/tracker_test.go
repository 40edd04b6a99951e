package tracker

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestAddCancelCancelled(t *testing.T) {
	tr := New()
	tr.Add("sn-1", "correlator")

	require.False(t, tr.Cancelled("sn-1"))
	require.True(t, tr.Cancel("sn-1"))
	require.True(t, tr.Cancelled("sn-1"))

	// Cancelling again must report false: it was already cancelled.
	require.False(t, tr.Cancel("sn-1"))
}

func TestCancelUnknownSN(t *testing.T) {
	tr := New()
	require.False(t, tr.Cancel("missing"))
	require.False(t, tr.Cancelled("missing"))
}

func TestRemoveForgetsEntry(t *testing.T) {
	tr := New()
	tr.Add("sn-1", 42)
	tr.Remove("sn-1")
	_, ok := tr.Any("sn-1")
	require.False(t, ok)
	require.False(t, tr.Cancelled("sn-1"))
}

func TestAnyReturnsCorrelator(t *testing.T) {
	tr := New()
	tr.Add("sn-1", "hello")
	v, ok := tr.Any("sn-1")
	require.True(t, ok)
	require.Equal(t, "hello", v)
}
