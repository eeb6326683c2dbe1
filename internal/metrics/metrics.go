package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	TicketsProcessed = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "triage_tickets_processed_total",
			Help: "Total number of tickets pulled into triage runs",
		},
		[]string{"source"},
	)

	Classifications = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "triage_classifications_total",
			Help: "Total number of tickets classified, by method",
		},
		[]string{"method"},
	)

	ClassifierFallbacks = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "triage_classifier_fallbacks_total",
			Help: "Tickets where the model classifier failed and the rule classifier stepped in",
		},
	)

	FallbackAssignments = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "triage_fallback_assignments_total",
			Help: "Assignments routed through the least-loaded fallback",
		},
	)

	StoreFailures = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "triage_store_failures_total",
			Help: "Failed attempts to persist a ticket batch",
		},
	)

	RunDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name: "triage_run_duration_seconds",
			Help: "Duration of full pipeline runs in seconds",
		},
		[]string{"action"},
	)
)
