// Package metrics holds the Prometheus collectors of the billing engine.
package metrics

import (
	"strconv"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// WebhookEvents counts processed provider events by type and outcome.
	WebhookEvents = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "billing_webhook_events_total",
			Help: "Total number of billing provider webhook events by type and outcome",
		},
		[]string{"type", "outcome"},
	)

	// EntitlementDecisions counts entitlement checks by feature and result.
	EntitlementDecisions = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "billing_entitlement_decisions_total",
			Help: "Total number of entitlement decisions by feature and result",
		},
		[]string{"feature", "allowed"},
	)

	// UsageConsumed counts units added to usage counters.
	UsageConsumed = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "billing_usage_consumed_total",
			Help: "Total units consumed by feature",
		},
		[]string{"feature"},
	)
)

// ObserveDecision records one entitlement decision.
func ObserveDecision(feature string, allowed bool) {
	EntitlementDecisions.WithLabelValues(feature, strconv.FormatBool(allowed)).Inc()
}
