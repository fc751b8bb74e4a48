package relay

import (
	"github.com/prometheus/client_golang/prometheus"

	"github.com/sensemesh/sensemesh/wire"
)

var (
	deliveredTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "sensemesh_deliveries_total",
		Help: "Outbound server messages by kind.",
	}, []string{"kind"})

	droppedTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "sensemesh_dropped_deliveries_total",
		Help: "Directed deliveries dropped because the receiver was gone.",
	})

	pairQueuesLive = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "sensemesh_pair_queues",
		Help: "Live per-(sender,receiver) ordering queues.",
	})
)

func init() {
	prometheus.MustRegister(deliveredTotal, droppedTotal, pairQueuesLive)
}

func countDelivery(msg *wire.ServerMsg) {
	switch {
	case msg.Message != nil:
		deliveredTotal.WithLabelValues("message").Inc()
	case msg.Presence != nil:
		deliveredTotal.WithLabelValues("presence").Inc()
	case msg.Hazard != nil:
		deliveredTotal.WithLabelValues("hazard").Inc()
	default:
		deliveredTotal.WithLabelValues("other").Inc()
	}
}
