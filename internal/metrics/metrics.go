package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	ActiveConnections = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "ws_active_connections",
		Help: "Active websocket connections",
	})
	MessagesSent = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "messages_sent_total",
		Help: "Messages accepted by the pipeline over websocket",
	})
	AuthFailures = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "ws_auth_failures_total",
		Help: "Rejected connection attempts by failure code",
	}, []string{"code"})
)

func Init() {
	prometheus.MustRegister(ActiveConnections, MessagesSent, AuthFailures)
}

// Handler returns an http.Handler for Prometheus scraping.
func Handler() http.Handler {
	return promhttp.Handler()
}
