// Package metrics holds the Prometheus collectors updated during token
// allocation.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "tokenalloc"

// Metrics is the set of allocation collectors. A nil registerer yields
// collectors that are updated but never exported.
type Metrics struct {
	NodesAllocated      prometheus.Counter
	TokensAllocated     prometheus.Counter
	RackOwnershipStdDev *prometheus.GaugeVec
	SkewWarnings        *prometheus.CounterVec
	AllocationDuration  prometheus.Histogram
}

func New(r prometheus.Registerer) *Metrics {
	rack := []string{"rack"}
	return &Metrics{
		NodesAllocated: promauto.With(r).NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "nodes_allocated_total",
			Help:      "number of nodes given tokens",
		}),
		TokensAllocated: promauto.With(r).NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "tokens_allocated_total",
			Help:      "number of tokens bound to nodes",
		}),
		RackOwnershipStdDev: promauto.With(r).NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "rack_ownership_stddev",
			Help:      "standard deviation of replicated ownership across the nodes of a rack",
		}, rack),
		SkewWarnings: promauto.With(r).NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "skew_warnings_total",
			Help:      "number of allocations that grew a rack's ownership stddev past the limit",
		}, rack),
		AllocationDuration: promauto.With(r).NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "node_allocation_duration_seconds",
			Help:      "time spent choosing the tokens of one node",
			Buckets:   prometheus.ExponentialBuckets(0.0001, 4, 10),
		}),
	}
}
