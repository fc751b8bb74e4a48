package ws

import (
	"github.com/prometheus/client_golang/prometheus"
)

var (
	connectedParticipants = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "sensemesh_connected_participants",
		Help: "Participants currently joined to the mesh.",
	})

	hazardAlertsTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "sensemesh_hazard_alerts_total",
		Help: "Critical hazard alerts broadcast to the mesh.",
	})
)

func init() {
	prometheus.MustRegister(connectedParticipants, hazardAlertsTotal)
}
