package index

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Metrics are the counters a Registry keeps about its indexes.
type Metrics struct {
	Commits       prometheus.Counter
	Rollbacks     prometheus.Counter
	Evictions     prometheus.Counter
	UsageWarnings *prometheus.CounterVec
	StatusProbes  *prometheus.CounterVec
	StoreDuration prometheus.Histogram
}

// NewMetrics creates the metric set and registers it with reg when reg is
// not nil.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		Commits: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "txindex",
			Subsystem: "index",
			Name:      "commits_total",
			Help:      "Transactions applied to an index.",
		}),
		Rollbacks: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "txindex",
			Subsystem: "index",
			Name:      "rollbacks_total",
			Help:      "Transactions discarded without being applied.",
		}),
		Evictions: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "txindex",
			Subsystem: "readers",
			Name:      "evictions_total",
			Help:      "Index readers dropped from the open reader cache.",
		}),
		UsageWarnings: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "txindex",
			Subsystem: "index",
			Name:      "usage_warnings_total",
			Help:      "Tolerated API misuse such as commit without a transaction.",
		}, []string{"kind"}),
		StatusProbes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "txindex",
			Subsystem: "index",
			Name:      "status_probes_total",
			Help:      "Status checks by outcome.",
		}, []string{"status"}),
		StoreDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: "txindex",
			Subsystem: "index",
			Name:      "store_duration_seconds",
			Help:      "Time spent in Store including lock wait and commit.",
			Buckets:   prometheus.ExponentialBuckets(0.001, 4, 8),
		}),
	}

	if reg != nil {
		reg.MustRegister(m.Commits, m.Rollbacks, m.Evictions, m.UsageWarnings, m.StatusProbes, m.StoreDuration)
	}
	return m
}
