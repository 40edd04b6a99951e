package reliability

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.bryk.io/rmi/broker"
)

// TestResendRetriesReleasedSends exercises scenario S3: a sender whose
// first two send calls fail with SendError{state=Released} succeeds on
// the third; elapsed time is at least 2*ResendDelay and the retry budget
// is decremented by 2.
func TestResendRetriesReleasedSends(t *testing.T) {
	origResend, origMax := ResendDelay, MaxResend
	ResendDelay = 5 * time.Millisecond
	MaxResend = 10
	defer func() { ResendDelay, MaxResend = origResend, origMax }()

	abort := NewFlag()
	repairer := &countingRepairer{}
	calls := 0
	start := time.Now()

	err := Resend(abort, nil, nil, repairer, func() error {
		calls++
		if calls <= 2 {
			return &broker.SendError{State: broker.Released}
		}
		return nil
	})

	require.NoError(t, err)
	require.Equal(t, 3, calls)
	require.GreaterOrEqual(t, time.Since(start), 2*ResendDelay)
	require.Equal(t, 0, repairer.repairs)
}

func TestResendPropagatesTerminalFailures(t *testing.T) {
	abort := NewFlag()
	repairer := &countingRepairer{}

	err := Resend(abort, nil, nil, repairer, func() error {
		return &broker.SendError{State: broker.Rejected}
	})
	require.Error(t, err)
}
