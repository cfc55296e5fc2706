package service

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

type Metrics struct {
	ReconcileDuration prometheus.Histogram
	Transitions       *prometheus.CounterVec
}

func NewMetrics(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)
	return &Metrics{
		ReconcileDuration: factory.NewHistogram(prometheus.HistogramOpts{
			Name:    "kg_reconcile_duration_ms",
			Help:    "Time spent merging the contributions of one instance",
			Buckets: []float64{0.1, 0.5, 1, 2, 5, 10, 25, 50, 100},
		}),
		Transitions: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "kg_release_transitions_total",
			Help: "Release and unrelease transitions by resulting status",
		}, []string{"status"}),
	}
}
