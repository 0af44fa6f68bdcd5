package client

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	requestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "ambulance_admin_client",
			Name:      "requests_total",
			Help:      "API calls by method and outcome, retries included once.",
		},
		[]string{"method", "outcome"},
	)

	requestRetriesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "ambulance_admin_client",
			Name:      "request_retries_total",
			Help:      "Attempts repeated after a recoverable failure.",
		},
		[]string{"method"},
	)
)
