package reliability

import (
	"go.bryk.io/rmi/broker"
	"go.bryk.io/rmi/errors"
	xlog "go.bryk.io/rmi/log"
	"go.bryk.io/rmi/metrics"
)

// Resend wraps a send operation with the outer Reliable decorator and an
// additional bounded retry for broker-rejected ("released") sends, per
// §4.D. `op` should attempt a single send and return the resulting error,
// typically a *broker.SendError. mc may be nil.
func Resend(abort *Flag, log xlog.Logger, mc *metrics.Collector, repair Repairer, op func() error) error {
	if log == nil {
		log = xlog.Discard()
	}
	retries := MaxResend
	return Reliable(abort, log, mc, repair, func() error {
		for {
			err := op()
			if err == nil {
				return nil
			}

			var se *broker.SendError
			if !errors.As(err, &se) || se.State != broker.Released {
				return err
			}
			if retries <= 0 {
				return errors.Wrap(err, "resend retries exhausted")
			}
			retries--
			mc.IncResendRetry()
			log.Warning("send released by broker, scheduling resend")
			if !sleep(abort, ResendDelay) {
				return nil
			}
		}
	})
}
