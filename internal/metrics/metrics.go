// Package metrics holds the Prometheus collectors exported at /metrics.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	DispatchTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "advisor_dispatch_total",
			Help: "Backend dispatches by intent and outcome",
		},
		[]string{"intent", "outcome"},
	)

	DispatchDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "advisor_dispatch_duration_seconds",
			Help:    "Wall-clock time of backend dispatches",
			Buckets: []float64{0.5, 1, 2, 5, 10, 20, 45, 90, 120, 300},
		},
		[]string{"intent"},
	)

	ExtractionTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "advisor_extraction_total",
			Help: "Final answers by the transcript tier that produced them",
		},
		[]string{"via"},
	)

	MessagesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "advisor_messages_total",
			Help: "Inbound websocket messages by outcome",
		},
		[]string{"outcome"},
	)

	ActiveConnections = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "advisor_active_connections",
			Help: "Open chat websocket connections",
		},
	)
)

// Dispatch outcomes.
const (
	OutcomeSuccess  = "success"
	OutcomeTimeout  = "timeout"
	OutcomeError    = "error"
	OutcomeCanceled = "canceled"
)
