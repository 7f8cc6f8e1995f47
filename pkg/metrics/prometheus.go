package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds all prometheus metrics for the engine.
type Metrics struct {
	CommandsTotal     *prometheus.CounterVec
	RejectionsTotal   *prometheus.CounterVec
	CommittedCapacity *prometheus.GaugeVec
	PendingDeletes    prometheus.Gauge
}

// NewMetrics registers the engine metrics under the given namespace.
func NewMetrics(namespace string) *Metrics {
	return &Metrics{
		CommandsTotal: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "commands_total",
			Help:      "The total number of lifecycle commands applied",
		}, []string{"command"}),
		RejectionsTotal: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "rejections_total",
			Help:      "The total number of commands rejected, by reason",
		}, []string{"reason"}),
		CommittedCapacity: promauto.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "committed_capacity",
			Help:      "Declared quantity committed against each site's capacity pool",
		}, []string{"site"}),
		PendingDeletes: promauto.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "pending_deletes",
			Help:      "Soft-deleted work orders awaiting their grace window",
		}),
	}
}
