// Package telemetry collects protocol metrics on a private prometheus
// registry, exposed over HTTP by the daemon.
package telemetry

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	Registry = prometheus.NewRegistry()

	DatagramsSent = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "swim",
			Name:      "datagrams_sent_total",
			Help:      "Datagrams sent, by message kind.",
		},
		[]string{"kind"},
	)

	DatagramsReceived = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "swim",
			Name:      "datagrams_received_total",
			Help:      "Datagrams received and decoded, by message kind.",
		},
		[]string{"kind"},
	)

	MalformedDatagrams = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: "swim",
			Name:      "malformed_datagrams_total",
			Help:      "Datagrams dropped because they did not decode.",
		},
	)

	ForeignDatagrams = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: "swim",
			Name:      "foreign_datagrams_total",
			Help:      "Datagrams dropped for carrying another cluster's key.",
		},
	)

	TransportErrors = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: "swim",
			Name:      "transport_errors_total",
			Help:      "Socket-level send/receive failures, all non-fatal.",
		},
	)

	ProbeOutcomes = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "swim",
			Name:      "probe_outcomes_total",
			Help:      "Probe resolutions: acked, acked_indirect, suspect.",
		},
		[]string{"outcome"},
	)

	MembersByState = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: "swim",
			Name:      "members",
			Help:      "Known members by state, local member included.",
		},
		[]string{"state"},
	)

	PiggybackDepth = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "swim",
			Name:      "piggyback_queue_depth",
			Help:      "Membership events awaiting retransmission.",
		},
	)

	AntiEntropyExchanges = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: "swim",
			Name:      "anti_entropy_exchanges_total",
			Help:      "Full-state sync exchanges initiated or answered.",
		},
	)
)

func init() {
	Registry.MustRegister(
		DatagramsSent,
		DatagramsReceived,
		MalformedDatagrams,
		ForeignDatagrams,
		TransportErrors,
		ProbeOutcomes,
		MembersByState,
		PiggybackDepth,
		AntiEntropyExchanges,
	)
}

// Handler exposes the registry; mount it on /metrics.
func Handler() http.Handler {
	return promhttp.HandlerFor(Registry, promhttp.HandlerOpts{})
}
