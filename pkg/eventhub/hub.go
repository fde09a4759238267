package eventhub

import (
	"sync"
	"time"

	"github.com/sirupsen/logrus"
)

// subscriberBuffer bounds how many un-delivered events a subscriber can
// queue before emission logs a drop rather than blocking (§4.4:
// "Subscriber failures must not block emission to other subscribers").
const subscriberBuffer = 256

// Subscriber is a per-connection event sink. The transport (WebSocket,
// SSE, in-process channel...) is opaque to the hub; only ordered,
// non-blocking delivery is guaranteed.
type Subscriber struct {
	id     string
	events chan Event
	done   chan struct{}
	once   sync.Once
}

// Events returns the channel a subscriber's transport goroutine should
// drain, in emission order, to forward events to the client connection.
func (s *Subscriber) Events() <-chan Event {
	return s.events
}

// Close stops delivery to this subscriber; idempotent.
func (s *Subscriber) Close() {
	s.once.Do(func() { close(s.done) })
}

func (s *Subscriber) closed() bool {
	select {
	case <-s.done:
		return true
	default:
		return false
	}
}

// Hub fans out events to per-execution groups and the well-known
// visualization group (§4.4). Writes to the group map are serialized by
// a mutex so reads (Emit) and writes (Subscribe/Unsubscribe) never race.
type Hub struct {
	mu     sync.RWMutex
	groups map[string]map[string]*Subscriber
	log    *logrus.Logger
	seq    uint64
}

// New builds an empty Hub.
func New(log *logrus.Logger) *Hub {
	if log == nil {
		log = logrus.StandardLogger()
	}
	return &Hub{groups: make(map[string]map[string]*Subscriber), log: log}
}

// Subscribe registers a new Subscriber under group and returns it. The
// caller is responsible for draining Events() and calling Unsubscribe (or
// Close) when the connection ends.
func (h *Hub) Subscribe(group string) *Subscriber {
	h.mu.Lock()
	defer h.mu.Unlock()

	h.seq++
	sub := &Subscriber{
		id:     fmtID(h.seq),
		events: make(chan Event, subscriberBuffer),
		done:   make(chan struct{}),
	}
	if h.groups[group] == nil {
		h.groups[group] = make(map[string]*Subscriber)
	}
	h.groups[group][sub.id] = sub
	return sub
}

// Unsubscribe removes sub from group and closes it.
func (h *Hub) Unsubscribe(group string, sub *Subscriber) {
	h.mu.Lock()
	if g, ok := h.groups[group]; ok {
		delete(g, sub.id)
		if len(g) == 0 {
			delete(h.groups, group)
		}
	}
	h.mu.Unlock()
	sub.Close()
}

// Emit delivers event to every subscriber of executionGroup AND the
// visualization group unconditionally (§4.4: "this is a behavioral
// contract — implementations that dedupe must still honor it"). A full
// subscriber buffer is logged and skipped rather than blocking other
// subscribers.
func (h *Hub) Emit(executionID string, kind EventKind, payload any) {
	event := Event{Kind: kind, ExecutionID: executionID, Timestamp: time.Now(), Payload: payload}

	h.deliverToGroup(ExecutionGroup(executionID), event)
	h.deliverToGroup(VisualizationGroup, event)
}

func (h *Hub) deliverToGroup(group string, event Event) {
	h.mu.RLock()
	subs := make([]*Subscriber, 0, len(h.groups[group]))
	for _, s := range h.groups[group] {
		subs = append(subs, s)
	}
	h.mu.RUnlock()

	for _, sub := range subs {
		if sub.closed() {
			continue
		}
		select {
		case sub.events <- event:
		default:
			h.log.WithFields(logrus.Fields{
				"group": group,
				"kind":  event.Kind,
			}).Warn("eventhub: dropped event, subscriber buffer full")
		}
	}
}

func fmtID(n uint64) string {
	const hex = "0123456789abcdef"
	if n == 0 {
		return "0"
	}
	buf := make([]byte, 0, 16)
	for n > 0 {
		buf = append([]byte{hex[n%16]}, buf...)
		n /= 16
	}
	return string(buf)
}
