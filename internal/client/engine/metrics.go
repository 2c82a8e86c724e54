package engine

import "github.com/prometheus/client_golang/prometheus"

// Metrics counts what the engine does. A nil *Metrics is valid and records
// nothing.
type Metrics struct {
	drained      *prometheus.CounterVec
	failed       *prometheus.CounterVec
	conflicts    prometheus.Counter
	events       *prometheus.CounterVec
	initialSyncs *prometheus.CounterVec
}

// NewMetrics builds the counters and registers them with reg when reg is
// not nil.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		drained: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "offsync",
			Subsystem: "queue",
			Name:      "drained_total",
			Help:      "Pending changes confirmed by the server.",
		}, []string{"kind"}),
		failed: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "offsync",
			Subsystem: "queue",
			Name:      "failed_total",
			Help:      "Failed attempts to apply a pending change.",
		}, []string{"kind", "reason"}),
		conflicts: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "offsync",
			Subsystem: "sync",
			Name:      "conflicts_total",
			Help:      "Remote changes that overrode unconfirmed or deleted local state.",
		}),
		events: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "offsync",
			Subsystem: "realtime",
			Name:      "events_total",
			Help:      "Realtime events by table and outcome.",
		}, []string{"table", "outcome"}),
		initialSyncs: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "offsync",
			Subsystem: "sync",
			Name:      "initial_syncs_total",
			Help:      "Initial sync runs by result.",
		}, []string{"result"}),
	}
	if reg != nil {
		reg.MustRegister(m.drained, m.failed, m.conflicts, m.events, m.initialSyncs)
	}
	return m
}

func (m *Metrics) incDrained(kind string) {
	if m != nil {
		m.drained.WithLabelValues(kind).Inc()
	}
}

func (m *Metrics) incFailed(kind, reason string) {
	if m != nil {
		m.failed.WithLabelValues(kind, reason).Inc()
	}
}

func (m *Metrics) incConflicts() {
	if m != nil {
		m.conflicts.Inc()
	}
}

func (m *Metrics) incEvent(table, outcome string) {
	if m != nil {
		m.events.WithLabelValues(table, outcome).Inc()
	}
}

func (m *Metrics) incInitialSync(result string) {
	if m != nil {
		m.initialSyncs.WithLabelValues(result).Inc()
	}
}
