// Package metrics instruments the reliability, pending-queue and consumer
// components with Prometheus counters and gauges, grounded loosely on the
// teacher's registry/handler pattern but without its gRPC interceptor
// machinery (this spec has no gRPC surface).
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Collector holds the Prometheus instruments shared across components. A
// nil *Collector is valid everywhere it is accepted: every method is
// nil-safe, so instrumentation remains genuinely optional ambient
// infrastructure rather than a hard dependency of the core algorithms.
type Collector struct {
	registry           *prometheus.Registry
	reconnectsTotal    prometheus.Counter
	resendRetriesTotal prometheus.Counter
	pendingDepth       prometheus.Gauge
	dispatchedTotal    prometheus.Counter
	rejectedTotal      *prometheus.CounterVec
}

// NewCollector registers and returns a new Collector against a fresh
// registry.
func NewCollector() *Collector {
	reg := prometheus.NewRegistry()
	c := &Collector{
		registry: reg,
		reconnectsTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "rmi_reconnects_total",
			Help: "Number of broker reconnect attempts performed by the reliability wrapper.",
		}),
		resendRetriesTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "rmi_resend_retries_total",
			Help: "Number of send retries triggered by a broker-released message.",
		}),
		pendingDepth: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "rmi_pending_depth",
			Help: "Current number of envelopes held in the pending queue.",
		}),
		dispatchedTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "rmi_envelopes_dispatched_total",
			Help: "Number of envelopes handed to the executor for dispatch.",
		}),
		rejectedTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "rmi_envelopes_rejected_total",
			Help: "Number of envelopes rejected at the consumer boundary, by code.",
		}, []string{"code"}),
	}
	reg.MustRegister(
		c.reconnectsTotal,
		c.resendRetriesTotal,
		c.pendingDepth,
		c.dispatchedTotal,
		c.rejectedTotal,
	)
	return c
}

// Handler returns an http.Handler suitable for Prometheus scraping.
func (c *Collector) Handler() http.Handler {
	if c == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(c.registry, promhttp.HandlerOpts{})
}

// IncReconnect records a single reconnect attempt.
func (c *Collector) IncReconnect() {
	if c == nil {
		return
	}
	c.reconnectsTotal.Inc()
}

// IncResendRetry records a single release-triggered resend retry.
func (c *Collector) IncResendRetry() {
	if c == nil {
		return
	}
	c.resendRetriesTotal.Inc()
}

// SetPendingDepth reports the current size of the pending queue.
func (c *Collector) SetPendingDepth(n int) {
	if c == nil {
		return
	}
	c.pendingDepth.Set(float64(n))
}

// IncDispatched records a single successful dispatch.
func (c *Collector) IncDispatched() {
	if c == nil {
		return
	}
	c.dispatchedTotal.Inc()
}

// IncRejected records a single rejection, tagged with its rejection code.
func (c *Collector) IncRejected(code string) {
	if c == nil {
		return
	}
	c.rejectedTotal.WithLabelValues(code).Inc()
}
