// Package realtime fans committed row changes out to websocket subscribers.
// Each owner only ever sees events for their own rows.
package realtime

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/xdeleon/offsync/internal/api"
)

const defaultBuffer = 256

type key struct {
	owner string
	table api.Table
}

// Subscription receives events on C until it is closed, either by the
// subscriber or by the hub when the subscriber falls behind.
type Subscription struct {
	C <-chan api.RowEvent

	hub  *Hub
	key  key
	ch   chan api.RowEvent
	once sync.Once
}

// Close unsubscribes. It is safe to call more than once.
func (s *Subscription) Close() {
	s.hub.remove(s)
}

// Hub is an in-process publish/subscribe point keyed by owner and table.
// Publish never blocks: a subscriber whose buffer is full is disconnected.
type Hub struct {
	mu     sync.Mutex
	subs   map[key]map[*Subscription]struct{}
	buffer int

	connected prometheus.Gauge
	dropped   prometheus.Counter
	published *prometheus.CounterVec
}

// NewHub registers its metrics with reg when reg is not nil.
func NewHub(reg prometheus.Registerer) *Hub {
	h := &Hub{
		subs:   make(map[key]map[*Subscription]struct{}),
		buffer: defaultBuffer,
		connected: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "offsync",
			Subsystem: "realtime",
			Name:      "subscribers",
			Help:      "Open realtime subscriptions.",
		}),
		dropped: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "offsync",
			Subsystem: "realtime",
			Name:      "dropped_subscribers_total",
			Help:      "Subscribers disconnected for falling behind.",
		}),
		published: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "offsync",
			Subsystem: "realtime",
			Name:      "published_total",
			Help:      "Events published by table and type.",
		}, []string{"table", "type"}),
	}
	if reg != nil {
		reg.MustRegister(h.connected, h.dropped, h.published)
	}
	return h
}

func (h *Hub) Subscribe(owner string, table api.Table) *Subscription {
	ch := make(chan api.RowEvent, h.buffer)
	s := &Subscription{C: ch, hub: h, key: key{owner, table}, ch: ch}

	h.mu.Lock()
	defer h.mu.Unlock()
	set, ok := h.subs[s.key]
	if !ok {
		set = make(map[*Subscription]struct{})
		h.subs[s.key] = set
	}
	set[s] = struct{}{}
	h.connected.Inc()
	return s
}

// Publish delivers ev to every subscriber of owner's table, in call order.
func (h *Hub) Publish(owner string, ev api.RowEvent) {
	h.published.WithLabelValues(string(ev.Table), string(ev.Type)).Inc()

	h.mu.Lock()
	defer h.mu.Unlock()
	for s := range h.subs[key{owner, ev.Table}] {
		select {
		case s.ch <- ev:
		default:
			h.dropped.Inc()
			h.removeLocked(s)
		}
	}
}

func (h *Hub) remove(s *Subscription) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.removeLocked(s)
}

func (h *Hub) removeLocked(s *Subscription) {
	s.once.Do(func() {
		set := h.subs[s.key]
		delete(set, s)
		if len(set) == 0 {
			delete(h.subs, s.key)
		}
		close(s.ch)
		h.connected.Dec()
	})
}
