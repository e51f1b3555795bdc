package metrics

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	once sync.Once

	GatewayConnections = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: "tradecast",
			Subsystem: "gateway",
			Name:      "connections",
			Help:      "Open websocket connections by tier",
		},
		[]string{"risk_tier"},
	)

	GatewayDisconnects = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "tradecast",
			Subsystem: "gateway",
			Name:      "disconnects_total",
			Help:      "Disconnects by reason (closed, slow, auth)",
		},
		[]string{"reason"},
	)

	GatewayDropped = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "tradecast",
			Subsystem: "gateway",
			Name:      "dropped_messages_total",
			Help:      "Messages dropped because a client send buffer was full",
		},
		[]string{"risk_tier"},
	)
)

func Register() {
	once.Do(func() {
		prometheus.MustRegister(GatewayConnections, GatewayDisconnects, GatewayDropped)
	})
}
