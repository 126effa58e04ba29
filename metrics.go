package imremote

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// metricsNamespace prefixes every collector.
const metricsNamespace = "imremote"

// metrics holds the Prometheus collectors of a session.
type metrics struct {
	packetsSent    *prometheus.CounterVec
	packetsDropped *prometheus.CounterVec
	payloadBytes   prometheus.Counter
	packetBytes    prometheus.Counter
	inputCommands  *prometheus.CounterVec
	handshakes     prometheus.Counter
	clientActive   prometheus.Gauge
}

// newMetrics registers the session collectors with reg. A nil reg uses a
// private registry so several sessions can coexist.
func newMetrics(reg prometheus.Registerer) *metrics {
	if reg == nil {
		reg = prometheus.NewRegistry()
	}
	factory := promauto.With(reg)

	return &metrics{
		packetsSent: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Name:      "packets_sent_total",
			Help:      "Packets queued for the client, by packet type",
		}, []string{"type"}),

		packetsDropped: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Name:      "packets_dropped_total",
			Help:      "Packets dropped before reaching the transport, by reason",
		}, []string{"reason"}),

		payloadBytes: factory.NewCounter(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Name:      "payload_bytes_total",
			Help:      "Encoded payload bytes before compression",
		}),

		packetBytes: factory.NewCounter(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Name:      "packet_bytes_total",
			Help:      "Framed packet bytes queued for the client",
		}),

		inputCommands: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Name:      "input_commands_total",
			Help:      "Input commands accepted from the client, by command",
		}, []string{"command"}),

		handshakes: factory.NewCounter(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Name:      "handshakes_total",
			Help:      "Completed client handshakes",
		}),

		clientActive: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: metricsNamespace,
			Name:      "client_active",
			Help:      "1 while a client is attached and past the handshake",
		}),
	}
}
