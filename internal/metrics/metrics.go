// Package metrics exposes optional Prometheus instrumentation for a room's
// connection machine and CRDT/presence traffic. It exists so the room
// package can call Collector methods without needing to change its import
// graph if the host later wires a different registry — the analogue of the
// teacher agent's metrics package giving the connection manager a stable
// Collect() call while the underlying implementation was still a stub.
//
// Unlike the teacher's server, which owns its process's /metrics endpoint
// outright, this is a library: a host embedding it may already run its own
// Prometheus registry, so instrumentation is opt-in via NewCollector(reg)
// and defaults to a no-op when the host supplies none.
package metrics

import "github.com/prometheus/client_golang/prometheus"

// Collector records room lifecycle and traffic counters. A Collector from
// NewNopCollector discards everything; the zero value is not usable.
type Collector struct {
	reconnects      *prometheus.CounterVec
	opsSent         prometheus.Counter
	opsReceived     prometheus.Counter
	presenceUpdates prometheus.Counter
	connectionState *prometheus.GaugeVec
	nop             bool
}

// NewCollector registers room metrics on reg and returns a Collector
// backed by it. Pass the same *prometheus.Registry across rooms in one
// process to share metric series (rooms are distinguished by label).
func NewCollector(reg prometheus.Registerer) *Collector {
	c := &Collector{
		reconnects: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "liveblocks",
			Name:      "room_reconnects_total",
			Help:      "Number of times a room's connection machine re-entered authenticating after a disconnect.",
		}, []string{"room"}),
		opsSent: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "liveblocks",
			Name:      "storage_ops_sent_total",
			Help:      "Number of CRDT ops emitted to the relay across all rooms.",
		}),
		opsReceived: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "liveblocks",
			Name:      "storage_ops_received_total",
			Help:      "Number of CRDT ops (remote + ack) received from the relay across all rooms.",
		}),
		presenceUpdates: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "liveblocks",
			Name:      "presence_updates_total",
			Help:      "Number of presence patches flushed to the relay across all rooms.",
		}),
		connectionState: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: "liveblocks",
			Name:      "room_connection_state",
			Help:      "Current connection state per room (0=closed,1=authenticating,2=connecting,3=open,4=unavailable,5=failed).",
		}, []string{"room"}),
	}
	reg.MustRegister(c.reconnects, c.opsSent, c.opsReceived, c.presenceUpdates, c.connectionState)
	return c
}

// NewNopCollector returns a Collector that discards every observation,
// used when a host does not supply a prometheus.Registerer.
func NewNopCollector() *Collector {
	return &Collector{nop: true}
}

func (c *Collector) ReconnectAttempted(room string) {
	if c.nop {
		return
	}
	c.reconnects.WithLabelValues(room).Inc()
}

func (c *Collector) OpsSent(n int) {
	if c.nop || n == 0 {
		return
	}
	c.opsSent.Add(float64(n))
}

func (c *Collector) OpsReceived(n int) {
	if c.nop || n == 0 {
		return
	}
	c.opsReceived.Add(float64(n))
}

func (c *Collector) PresenceUpdateSent() {
	if c.nop {
		return
	}
	c.presenceUpdates.Inc()
}

func (c *Collector) SetConnectionState(room string, state int) {
	if c.nop {
		return
	}
	c.connectionState.WithLabelValues(room).Set(float64(state))
}
