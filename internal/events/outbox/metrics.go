package outbox

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics counts relay outcomes.
type Metrics struct {
	Published prometheus.Counter
	Failed    prometheus.Counter
}

// NewMetrics registers the relay metrics on reg.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)
	return &Metrics{
		Published: factory.NewCounter(prometheus.CounterOpts{
			Name: "kg_outbox_published_total",
			Help: "Outbox entries acknowledged by the broker",
		}),
		Failed: factory.NewCounter(prometheus.CounterOpts{
			Name: "kg_outbox_publish_failures_total",
			Help: "Outbox entries the broker rejected; retried on the next flush",
		}),
	}
}
