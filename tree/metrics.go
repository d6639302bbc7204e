package tree

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// operationTotal counts engine operations by operation and result
	operationTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "knowledge_tree_operations_total",
		Help: "Total tree engine operations by operation and result",
	}, []string{"operation", "result"})

	// operationDuration tracks engine operation latency
	operationDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "knowledge_tree_operation_duration_seconds",
		Help:    "Tree engine operation duration in seconds",
		Buckets: prometheus.ExponentialBuckets(0.0005, 2, 14), // 0.5ms to ~4s
	}, []string{"operation"})

	// resolverLayers tracks how many child layers a descendant walk touched
	resolverLayers = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "knowledge_tree_resolver_layers",
		Help:    "Child layers visited per descendant walk",
		Buckets: []float64{0, 1, 2, 5, 10, 20, 50, 100},
	})

	// affectedNodes tracks nodes written or read per operation
	affectedNodes = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "knowledge_tree_affected_nodes",
		Help:    "Nodes affected per tree engine operation",
		Buckets: []float64{1, 10, 100, 1000, 10000},
	}, []string{"operation"})
)
