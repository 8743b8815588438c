package interaction

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics counts deliveries by interaction kind. A nil Registerer keeps the
// counters unregistered.
type Metrics struct {
	Delivered *prometheus.CounterVec
	Failed    *prometheus.CounterVec
}

// NewMetrics ...
func NewMetrics(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)

	return &Metrics{
		Delivered: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "swarm",
			Subsystem: "interaction",
			Name:      "delivered_total",
			Help:      "Number of interactions delivered, by kind.",
		}, []string{"kind"}),
		Failed: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "swarm",
			Subsystem: "interaction",
			Name:      "failed_total",
			Help:      "Number of interaction deliveries that failed, by kind.",
		}, []string{"kind"}),
	}
}
