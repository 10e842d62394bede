package service

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	authOutcomes = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "auth_operations_total",
			Help: "Session operations by kind and outcome",
		},
		[]string{"operation", "outcome"},
	)

	tokensCleaned = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "refresh_tokens_cleaned_total",
			Help: "Refresh token ledger entries removed by cleanup sweeps",
		},
	)

	eventsFailed = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "domain_events_failed_total",
			Help: "Domain events that could not be handed to the broker",
		},
		[]string{"event"},
	)
)

// observe records the outcome of one session operation.
func observe(operation string, err error) {
	outcome := "success"
	if err != nil {
		outcome = "failure"
	}
	authOutcomes.WithLabelValues(operation, outcome).Inc()
}
