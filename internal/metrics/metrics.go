package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Metrics groups the session collectors. A nil *Metrics records nothing.
type Metrics struct {
	connections   prometheus.Gauge
	roomsCreated  prometheus.Counter
	roomsByStatus *prometheus.GaugeVec
	movesAccepted prometheus.Counter
	rejections    *prometheus.CounterVec
	finished      *prometheus.CounterVec
	outboxDrops   prometheus.Counter
	rulesLatency  prometheus.Histogram
	reconnects    prometheus.Counter
}

func New(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		connections: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "chess", Name: "connections",
			Help: "Registered client connections.",
		}),
		roomsCreated: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "chess", Name: "rooms_created_total",
			Help: "Rooms allocated.",
		}),
		roomsByStatus: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: "chess", Name: "rooms",
			Help: "Live rooms by status.",
		}, []string{"status"}),
		movesAccepted: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "chess", Name: "moves_accepted_total",
			Help: "Moves accepted by the relay.",
		}),
		rejections: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "chess", Name: "rejections_total",
			Help: "Rejected operations by operation and reason code.",
		}, []string{"op", "code"}),
		finished: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "chess", Name: "games_finished_total",
			Help: "Finished rooms by reason.",
		}, []string{"reason"}),
		outboxDrops: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "chess", Name: "outbox_drops_total",
			Help: "Envelopes dropped because a client queue was full.",
		}),
		rulesLatency: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: "chess", Name: "rules_seconds",
			Help:    "Rules engine call latency.",
			Buckets: prometheus.ExponentialBuckets(0.0005, 2, 12),
		}),
		reconnects: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "chess", Name: "reconnects_total",
			Help: "Players reseated within the grace window.",
		}),
	}
	if reg != nil {
		reg.MustRegister(m.connections, m.roomsCreated, m.roomsByStatus, m.movesAccepted,
			m.rejections, m.finished, m.outboxDrops, m.rulesLatency, m.reconnects)
	}
	return m
}

func (m *Metrics) ConnectionOpened() {
	if m != nil {
		m.connections.Inc()
	}
}

func (m *Metrics) ConnectionClosed() {
	if m != nil {
		m.connections.Dec()
	}
}

func (m *Metrics) RoomCreated() {
	if m != nil {
		m.roomsCreated.Inc()
	}
}

// RoomStatus moves one room between status gauges. Empty from or to means
// the room is appearing or disappearing.
func (m *Metrics) RoomStatus(from, to string) {
	if m == nil || from == to {
		return
	}
	if from != "" {
		m.roomsByStatus.WithLabelValues(from).Dec()
	}
	if to != "" {
		m.roomsByStatus.WithLabelValues(to).Inc()
	}
}

func (m *Metrics) MoveAccepted() {
	if m != nil {
		m.movesAccepted.Inc()
	}
}

func (m *Metrics) Rejected(op, code string) {
	if m != nil {
		m.rejections.WithLabelValues(op, code).Inc()
	}
}

func (m *Metrics) Finished(reason string) {
	if m != nil {
		m.finished.WithLabelValues(reason).Inc()
	}
}

func (m *Metrics) OutboxDropped(n int) {
	if m != nil && n > 0 {
		m.outboxDrops.Add(float64(n))
	}
}

func (m *Metrics) ObserveRules(seconds float64) {
	if m != nil {
		m.rulesLatency.Observe(seconds)
	}
}

func (m *Metrics) Reconnected() {
	if m != nil {
		m.reconnects.Inc()
	}
}
