// Package metrics defines the prometheus collectors shared by the gateway
// and the sweep engine.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Metrics bundles all stagehand collectors. Construct one per process and
// pass it explicitly; there is no package-level default.
type Metrics struct {
	// GatewayRequests counts remote instrument calls by operation and outcome.
	GatewayRequests *prometheus.CounterVec

	// LeaseExpiries counts leases force-released by the expiry sweeper.
	LeaseExpiries prometheus.Counter

	// SamplesDelivered counts samples handed to acquisition sinks.
	SamplesDelivered prometheus.Counter

	// StepRetries counts retried transient failures during sweep steps.
	StepRetries prometheus.Counter
}

// New creates the collectors and registers them with reg.
func New(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		GatewayRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "stagehand",
			Subsystem: "gateway",
			Name:      "requests_total",
			Help:      "Remote instrument calls by operation and outcome.",
		}, []string{"op", "outcome"}),
		LeaseExpiries: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "stagehand",
			Subsystem: "gateway",
			Name:      "lease_expiries_total",
			Help:      "Leases force-released after their TTL elapsed.",
		}),
		SamplesDelivered: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "stagehand",
			Subsystem: "sweep",
			Name:      "samples_delivered_total",
			Help:      "Samples delivered to acquisition sinks.",
		}),
		StepRetries: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "stagehand",
			Subsystem: "sweep",
			Name:      "step_retries_total",
			Help:      "Transient sweep-step failures that were retried.",
		}),
	}
	reg.MustRegister(m.GatewayRequests, m.LeaseExpiries, m.SamplesDelivered, m.StepRetries)
	return m
}

// NewNop returns collectors registered against a throwaway registry, for
// components that do not export metrics.
func NewNop() *Metrics {
	return New(prometheus.NewRegistry())
}
