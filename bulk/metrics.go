package bulk

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	actionsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "redisbulk",
		Name:      "actions_total",
		Help:      "Finished bulk actions (kind=delete/unlink/expire/persist, status=completed/aborted/failed)",
	}, []string{"kind", "status"})

	actionsRunning = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: "redisbulk",
		Name:      "actions_running",
		Help:      "Bulk actions currently running",
	})

	keysProcessed = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "redisbulk",
		Name:      "keys_processed_total",
		Help:      "Keys mutated by bulk actions (result=succeeded/failed)",
	}, []string{"kind", "result"})

	nodeFailures = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "redisbulk",
		Name:      "node_failures_total",
		Help:      "Nodes which failed during bulk action",
	})

	batchDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "redisbulk",
		Name:      "batch_duration_seconds",
		Help:      "Time to scan, introspect and mutate single batch",
		Buckets:   prometheus.ExponentialBuckets(0.001, 2, 14),
	}, []string{"kind"})
)
