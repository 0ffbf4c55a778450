// Package metrics holds the process-wide prometheus instrumentation for
// sorted-set operations and compaction GC.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	opsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "zsetdb_ops_total",
		Help: "Sorted-set operations by name and outcome.",
	}, []string{"op", "status"})

	opDuration = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "zsetdb_op_duration_seconds",
		Help:    "Sorted-set operation latency.",
		Buckets: prometheus.ExponentialBuckets(50e-6, 2, 16),
	}, []string{"op"})

	gcDropped = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "zsetdb_gc_dropped_entries_total",
		Help: "Entries dropped by compaction-filter sweeps, by column family.",
	}, []string{"cf"})
)

func init() {
	prometheus.MustRegister(opsTotal, opDuration, gcDropped)
}

// ObserveOp records one completed operation.
func ObserveOp(op string, d time.Duration, status string) {
	opsTotal.WithLabelValues(op, status).Inc()
	opDuration.WithLabelValues(op).Observe(d.Seconds())
}

// AddGCDropped accounts entries reclaimed from one column family.
func AddGCDropped(cf string, n int64) {
	if n > 0 {
		gcDropped.WithLabelValues(cf).Add(float64(n))
	}
}

// Handler serves the prometheus scrape endpoint.
func Handler() http.Handler {
	return promhttp.Handler()
}
