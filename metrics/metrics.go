// Package metrics exposes prometheus counters for the poll loop.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Result label values.
const (
	Success = "success"
	Failure = "failure"
)

var (
	// Fetches counts fetch cycles by source and result.
	Fetches = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "gitadapter",
			Name:      "fetches_total",
			Help:      "Total number of configuration fetches",
		},
		[]string{"source", "result"},
	)

	// Updates counts detected configuration changes by source.
	Updates = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "gitadapter",
			Name:      "config_updates_total",
			Help:      "Total number of configuration changes emitted to subscribers",
		},
		[]string{"source"},
	)

	// ConnectionChecks counts identity checks by result.
	ConnectionChecks = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "gitadapter",
			Name:      "connection_checks_total",
			Help:      "Total number of connection verifications",
		},
		[]string{"result"},
	)
)

func init() {
	prometheus.MustRegister(Fetches, Updates, ConnectionChecks)
}

// Result maps an error to a result label.
func Result(err error) string {
	if err != nil {
		return Failure
	}
	return Success
}

// Handler serves the default registry.
func Handler() http.Handler {
	return promhttp.Handler()
}
