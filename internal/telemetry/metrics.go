// Package telemetry registers the Prometheus instruments for the posting
// pipeline and exposes them to the HTTP layer.
package telemetry

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics bundles the pipeline instruments. One instance per process,
// registered against a registry so tests can use isolated registries.
type Metrics struct {
	PostsTotal         *prometheus.CounterVec
	GenerationAttempts *prometheus.CounterVec
	GateRejects        prometheus.Counter
	HitsTotal          prometheus.Counter
	AnomaliesTotal     prometheus.Counter
	StockLevel         *prometheus.GaugeVec
	SweepDuration      prometheus.Histogram
}

// New registers the instruments on the given registerer.
func New(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)
	return &Metrics{
		PostsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "posthunter_posts_total",
			Help: "Post dispatch outcomes by account and result.",
		}, []string{"account", "result"}),
		GenerationAttempts: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "posthunter_generation_attempts_total",
			Help: "Generator calls by account.",
		}, []string{"account"}),
		GateRejects: factory.NewCounter(prometheus.CounterOpts{
			Name: "posthunter_gate_rejects_total",
			Help: "Candidates rejected by the quality gate.",
		}),
		HitsTotal: factory.NewCounter(prometheus.CounterOpts{
			Name: "posthunter_hits_total",
			Help: "Posts newly classified as hits.",
		}),
		AnomaliesTotal: factory.NewCounter(prometheus.CounterOpts{
			Name: "posthunter_hit_anomalies_total",
			Help: "Hit classifications that regressed in raw counts.",
		}),
		StockLevel: factory.NewGaugeVec(prometheus.GaugeOpts{
			Name: "posthunter_stock_level",
			Help: "Unconsumed stock items per account.",
		}, []string{"account"}),
		SweepDuration: factory.NewHistogram(prometheus.HistogramOpts{
			Name:    "posthunter_sweep_duration_seconds",
			Help:    "Engagement sweep wall time.",
			Buckets: prometheus.DefBuckets,
		}),
	}
}

// NewDefault registers on the default Prometheus registry.
func NewDefault() *Metrics {
	return New(prometheus.DefaultRegisterer)
}
