// Package metrics exposes Prometheus counters for gateway and score
// pipeline traffic.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	Logins = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "bancho_logins_total",
		Help: "Login attempts by outcome.",
	}, []string{"outcome"})

	PacketsHandled = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "bancho_packets_handled_total",
		Help: "Client packets dispatched to a handler, by packet id.",
	}, []string{"id"})

	ScoresSubmitted = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "bancho_scores_submitted_total",
		Help: "Score submissions by outcome.",
	}, []string{"outcome"})

	SessionsOnline = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "bancho_sessions_online",
		Help: "Currently connected polling sessions.",
	})
)

// Handler serves the Prometheus scrape endpoint.
func Handler() http.Handler {
	return promhttp.Handler()
}
