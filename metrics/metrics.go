// Package metrics collects and exposes Prometheus metrics for the pairing
// relay. Components record through the Recorder interface so tests can pass
// a no-op.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Recorder is the recording surface used by the handler and coordinator.
type Recorder interface {
	SetConnectedUsers(n int)
	SetQueueDepth(role string, n int)
	RecordSessionStarted()
	RecordSessionEnded(reason string)
	RecordRelayedMessage(kind string)
	RecordUnauthorized()
	RecordDroppedFrame(cause string)
}

// Collector implements Recorder on a Prometheus registry.
type Collector struct {
	connectedUsers prometheus.Gauge
	queueDepth     *prometheus.GaugeVec
	sessionsStart  prometheus.Counter
	sessionsEnd    *prometheus.CounterVec
	relayed        *prometheus.CounterVec
	unauthorized   prometheus.Counter
	droppedFrames  *prometheus.CounterVec
}

func NewCollector(reg prometheus.Registerer) *Collector {
	c := &Collector{
		connectedUsers: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "pairrelay_connected_users",
			Help: "Number of users with a live connection.",
		}),
		queueDepth: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "pairrelay_queue_depth",
			Help: "Users waiting to be paired, by role.",
		}, []string{"role"}),
		sessionsStart: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "pairrelay_sessions_started_total",
			Help: "Sessions created by the matcher.",
		}),
		sessionsEnd: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "pairrelay_sessions_ended_total",
			Help: "Sessions ended, by reason.",
		}, []string{"reason"}),
		relayed: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "pairrelay_messages_relayed_total",
			Help: "Frames relayed between partners, by kind.",
		}, []string{"kind"}),
		unauthorized: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "pairrelay_unauthorized_total",
			Help: "Connection attempts refused for a bad credential.",
		}),
		droppedFrames: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "pairrelay_dropped_frames_total",
			Help: "Inbound frames dropped, by cause.",
		}, []string{"cause"}),
	}

	reg.MustRegister(
		c.connectedUsers,
		c.queueDepth,
		c.sessionsStart,
		c.sessionsEnd,
		c.relayed,
		c.unauthorized,
		c.droppedFrames,
	)
	return c
}

func (c *Collector) SetConnectedUsers(n int) { c.connectedUsers.Set(float64(n)) }

func (c *Collector) SetQueueDepth(role string, n int) {
	c.queueDepth.WithLabelValues(role).Set(float64(n))
}

func (c *Collector) RecordSessionStarted() { c.sessionsStart.Inc() }

func (c *Collector) RecordSessionEnded(reason string) {
	c.sessionsEnd.WithLabelValues(reason).Inc()
}

func (c *Collector) RecordRelayedMessage(kind string) { c.relayed.WithLabelValues(kind).Inc() }

func (c *Collector) RecordUnauthorized() { c.unauthorized.Inc() }

func (c *Collector) RecordDroppedFrame(cause string) { c.droppedFrames.WithLabelValues(cause).Inc() }

// Noop satisfies Recorder without recording anything.
type Noop struct{}

func (Noop) SetConnectedUsers(int)       {}
func (Noop) SetQueueDepth(string, int)   {}
func (Noop) RecordSessionStarted()       {}
func (Noop) RecordSessionEnded(string)   {}
func (Noop) RecordRelayedMessage(string) {}
func (Noop) RecordUnauthorized()         {}
func (Noop) RecordDroppedFrame(string)   {}

// Handler returns the /metrics handler for the given registry.
func Handler(reg *prometheus.Registry) http.Handler {
	return promhttp.HandlerFor(reg, promhttp.HandlerOpts{})
}
