package window

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.bryk.io/rmi/document"
)

func TestNilWindowAlwaysOpen(t *testing.T) {
	now := time.Now()
	require.False(t, Future(nil, now))
	require.False(t, Past(nil, now))
	require.Equal(t, StateOpen, Evaluate(nil, now))
}

func TestFutureWindow(t *testing.T) {
	now := time.Now()
	w := &document.Window{Begin: now.Add(time.Hour), Duration: time.Minute}
	require.True(t, Future(w, now))
	require.False(t, Past(w, now))
	require.Equal(t, StateFuture, Evaluate(w, now))
}

func TestPastWindow(t *testing.T) {
	now := time.Now()
	w := &document.Window{Begin: now.Add(-time.Hour), Duration: time.Minute}
	require.False(t, Future(w, now))
	require.True(t, Past(w, now))
	require.Equal(t, StatePast, Evaluate(w, now))
}

func TestOpenWindowBoundary(t *testing.T) {
	now := time.Now()
	w := &document.Window{Begin: now.Add(-30 * time.Second), Duration: time.Minute}
	require.Equal(t, StateOpen, Evaluate(w, now))

	// now == begin+duration is past, the interval is half-open.
	edge := &document.Window{Begin: now.Add(-time.Minute), Duration: time.Minute}
	require.True(t, Past(edge, now))
}
