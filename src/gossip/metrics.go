package gossip

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics counts gossip activity. Pass a nil Registerer to keep the counters
// unregistered, which is what tests do.
type Metrics struct {
	Rounds          prometheus.Counter
	PeersContacted  prometheus.Counter
	PeerSuccesses   prometheus.Counter
	PeerFailures    prometheus.Counter
	NodesReceived   prometheus.Counter
	HandlesReceived prometheus.Counter
}

// NewMetrics ...
func NewMetrics(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)

	return &Metrics{
		Rounds: factory.NewCounter(prometheus.CounterOpts{
			Namespace: "swarm",
			Subsystem: "gossip",
			Name:      "rounds_total",
			Help:      "Number of gossip rounds run.",
		}),
		PeersContacted: factory.NewCounter(prometheus.CounterOpts{
			Namespace: "swarm",
			Subsystem: "gossip",
			Name:      "peers_contacted_total",
			Help:      "Number of peers contacted across all rounds.",
		}),
		PeerSuccesses: factory.NewCounter(prometheus.CounterOpts{
			Namespace: "swarm",
			Subsystem: "gossip",
			Name:      "peer_successes_total",
			Help:      "Number of successful gossip exchanges.",
		}),
		PeerFailures: factory.NewCounter(prometheus.CounterOpts{
			Namespace: "swarm",
			Subsystem: "gossip",
			Name:      "peer_failures_total",
			Help:      "Number of failed gossip exchanges.",
		}),
		NodesReceived: factory.NewCounter(prometheus.CounterOpts{
			Namespace: "swarm",
			Subsystem: "gossip",
			Name:      "nodes_received_total",
			Help:      "Number of node entries received from peers.",
		}),
		HandlesReceived: factory.NewCounter(prometheus.CounterOpts{
			Namespace: "swarm",
			Subsystem: "gossip",
			Name:      "handles_received_total",
			Help:      "Number of handle entries received from peers.",
		}),
	}
}
