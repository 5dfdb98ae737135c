package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Payment metrics exported on /metrics.
var (
	PaymentsProcessed = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "payments_processed_total",
		Help: "Payments processed, partitioned by outcome.",
	}, []string{"outcome"})

	GatewayRetries = promauto.NewCounter(prometheus.CounterOpts{
		Name: "payment_gateway_retries_total",
		Help: "Settlement attempts retried after timeout or gateway error.",
	})

	ProcessingDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "payment_processing_duration_seconds",
		Help:    "End-to-end payment processing latency.",
		Buckets: prometheus.DefBuckets,
	})

	FraudScores = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "fraud_score",
		Help:    "Distribution of computed fraud scores.",
		Buckets: prometheus.LinearBuckets(0, 0.1, 11),
	})
)

// Outcome labels for PaymentsProcessed.
const (
	OutcomeSuccess     = "success"
	OutcomeRateLimited = "rate_limited"
	OutcomeInvalid     = "invalid"
	OutcomeFraud       = "fraud"
	OutcomeConversion  = "conversion_failed"
	OutcomeTimeout     = "gateway_timeout"
	OutcomeFailed      = "failed"
)
