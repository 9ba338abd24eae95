package metrics

import (
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	Connections = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "chat_ws_connections",
			Help: "Number of open chat WebSocket connections.",
		},
	)

	Events = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "chat_events_total",
			Help: "Inbound chat events by type and outcome.",
		},
		[]string{"type", "outcome"},
	)

	Deliveries = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "chat_deliveries_total",
			Help: "Outbound fan-out deliveries to client queues.",
		},
		[]string{"result"},
	)
)

func init() {
	prometheus.MustRegister(Connections)
	prometheus.MustRegister(Events)
	prometheus.MustRegister(Deliveries)
}

// Handler отдаёт /metrics
func Handler() gin.HandlerFunc {
	return gin.WrapH(promhttp.Handler())
}
