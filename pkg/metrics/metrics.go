// Package metrics implements the name service's Prometheus instrumentation.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Drop reasons.
const (
	DropMalformed = "malformed"
	DropOwnGUID   = "own_guid"
	DropOversize  = "oversize"
	DropBacklog   = "backlog"
	DropEvents    = "event_backlog"
)

// Metrics groups every collector the engine updates.
type Metrics struct {
	// PacketsSent counts datagrams sent by wire format (legacy|mdns) and kind.
	PacketsSent *prometheus.CounterVec
	// PacketsReceived counts decoded datagrams by wire format.
	PacketsReceived *prometheus.CounterVec
	// PacketsDropped counts datagrams discarded before or during processing.
	PacketsDropped *prometheus.CounterVec

	Retransmissions prometheus.Counter
	Bursts          prometheus.Counter
	SendErrors      *prometheus.CounterVec

	LiveInterfaces prometheus.Gauge
	CacheEntries   prometheus.Gauge
	Peers          prometheus.Gauge

	Events *prometheus.CounterVec
}

// New creates the collectors and registers them on reg. A nil reg creates
// unregistered collectors.
func New(reg prometheus.Registerer, namespace string) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		PacketsSent: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "packets_sent_total",
			Help:      "Total number of name service datagrams sent",
		}, []string{"format", "kind"}),
		PacketsReceived: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "packets_received_total",
			Help:      "Total number of name service datagrams decoded",
		}, []string{"format"}),
		PacketsDropped: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "packets_dropped_total",
			Help:      "Total number of datagrams dropped",
		}, []string{"reason"}),
		Retransmissions: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "retransmissions_total",
			Help:      "Total number of question and advertisement retransmissions",
		}),
		Bursts: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "bursts_total",
			Help:      "Total number of gratuitous answer bursts started",
		}),
		SendErrors: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "send_errors_total",
			Help:      "Total number of failed datagram sends",
		}, []string{"interface"}),
		LiveInterfaces: f.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "live_interfaces",
			Help:      "Number of interfaces with open sockets",
		}),
		CacheEntries: f.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "cache_entries",
			Help:      "Number of cached remote advertisements",
		}),
		Peers: f.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "peers",
			Help:      "Number of remote daemons with a known unicast endpoint",
		}),
		Events: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "events_total",
			Help:      "Total number of events delivered to subscribers",
		}, []string{"kind"}),
	}
}

// NewNop returns unregistered collectors.
func NewNop() *Metrics {
	return New(nil, "")
}
