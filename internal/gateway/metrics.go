package gateway

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const (
	outcomeAccepted   = "accepted"
	outcomeSuggestion = "suggestion"
	outcomeRejected   = "rejected"
	outcomeFailed     = "failed"
)

type Metrics struct {
	EventsProcessed   *prometheus.CounterVec
	PostEventDuration *prometheus.HistogramVec
	PermissionDenied  *prometheus.CounterVec
	AmbiguousLookups  prometheus.Counter
	FailedEvents      prometheus.Counter
}

func NewMetrics(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)
	return &Metrics{
		EventsProcessed: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "kg_events_processed_total",
			Help: "Events handled by the gateway by type and outcome",
		}, []string{"type", "outcome"}),
		PostEventDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "kg_post_event_duration_ms",
			Help:    "Time to apply one event",
			Buckets: []float64{1, 5, 10, 25, 50, 100, 250, 500, 1000, 5000},
		}, []string{"type"}),
		PermissionDenied: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "kg_permission_denied_total",
			Help: "Requests rejected for a missing capability",
		}, []string{"capability"}),
		AmbiguousLookups: factory.NewCounter(prometheus.CounterOpts{
			Name: "kg_ambiguous_identifiers_total",
			Help: "Identifier lookups that matched more than one instance",
		}),
		FailedEvents: factory.NewCounter(prometheus.CounterOpts{
			Name: "kg_failed_events_total",
			Help: "Events captured in the journal after failing to apply",
		}),
	}
}
