// Package feed implements the fan-out broker that republishes live
// domain events to browser subscribers. Delivery favors recency over
// completeness: each subscriber has a bounded queue and slow consumers
// lose their oldest undelivered messages rather than stalling others.
package feed

import (
	"sync"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/squadron-project/squadron/internal/events"
)

// DefaultQueueDepth is the per-subscriber queue bound.
const DefaultQueueDepth = 64

// MessageKind discriminates feed messages.
type MessageKind string

const (
	KindEvent  MessageKind = "event"  // A domain event
	KindStatus MessageKind = "status" // Session connection status, not a domain event
)

// Status is a connection-status notification, delivered to every
// subscriber on a server regardless of type filter so the UI can
// render connection state independently of data freshness.
type Status struct {
	ServerID  string    `json:"server_id"`
	State     string    `json:"state"`
	Detail    string    `json:"detail,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

// Message is a single feed delivery.
type Message struct {
	Kind   MessageKind   `json:"kind"`
	Event  *events.Event `json:"event,omitempty"`
	Status *Status       `json:"status,omitempty"`
}

// Hub is the fan-out broker. One hub serves the whole fleet;
// subscriptions are keyed by server ID.
type Hub struct {
	mu         sync.RWMutex
	subs       map[string]map[*Subscription]struct{}
	queueDepth int
	logger     zerolog.Logger
}

// Subscription is a live consumer's filter set plus delivery channel.
// It does not own events, only receives pushed copies.
type Subscription struct {
	hub      *Hub
	serverID string
	types    map[events.Type]struct{}
	ch       chan Message

	mu      sync.Mutex
	dropped uint64
	closed  bool
}

// NewHub creates a feed hub. A queueDepth of zero falls back to
// DefaultQueueDepth.
func NewHub(queueDepth int) *Hub {
	if queueDepth <= 0 {
		queueDepth = DefaultQueueDepth
	}
	return &Hub{
		subs:       make(map[string]map[*Subscription]struct{}),
		queueDepth: queueDepth,
		logger:     log.With().Str("component", "feed_hub").Logger(),
	}
}

// Subscribe registers a new subscription for the given server and
// event types. Closing the subscription unregisters it.
func (h *Hub) Subscribe(serverID string, types []events.Type) *Subscription {
	filter := make(map[events.Type]struct{}, len(types))
	for _, t := range types {
		filter[t] = struct{}{}
	}

	sub := &Subscription{
		hub:      h,
		serverID: serverID,
		types:    filter,
		ch:       make(chan Message, h.queueDepth),
	}

	h.mu.Lock()
	if h.subs[serverID] == nil {
		h.subs[serverID] = make(map[*Subscription]struct{})
	}
	h.subs[serverID][sub] = struct{}{}
	count := len(h.subs[serverID])
	h.mu.Unlock()

	h.logger.Debug().
		Str("server_id", serverID).
		Int("types", len(filter)).
		Int("subscribers", count).
		Msg("feed subscription opened")

	return sub
}

// Publish delivers ev to every live subscription on its server whose
// type filter matches. Delivery is non-blocking per subscriber.
func (h *Hub) Publish(ev *events.Event) {
	h.mu.RLock()
	defer h.mu.RUnlock()

	for sub := range h.subs[ev.ServerID] {
		if _, ok := sub.types[ev.Type]; !ok {
			continue
		}
		sub.deliver(Message{Kind: KindEvent, Event: ev})
	}
}

// PublishStatus delivers a connection-status message to every
// subscription on the server, bypassing type filters.
func (h *Hub) PublishStatus(serverID, state, detail string) {
	status := &Status{
		ServerID:  serverID,
		State:     state,
		Detail:    detail,
		Timestamp: time.Now().UTC(),
	}

	h.mu.RLock()
	defer h.mu.RUnlock()

	for sub := range h.subs[serverID] {
		sub.deliver(Message{Kind: KindStatus, Status: status})
	}
}

// SubscriberCount returns the number of live subscriptions for a server.
func (h *Hub) SubscriberCount(serverID string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.subs[serverID])
}

// unsubscribe removes sub and closes its channel. Holding the write
// lock here guarantees no Publish is concurrently sending on it.
func (h *Hub) unsubscribe(sub *Subscription) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if set, ok := h.subs[sub.serverID]; ok {
		if _, present := set[sub]; present {
			delete(set, sub)
			if len(set) == 0 {
				delete(h.subs, sub.serverID)
			}
			close(sub.ch)
		}
	}
}

// C returns the delivery channel. It is closed when the subscription
// is closed.
func (s *Subscription) C() <-chan Message {
	return s.ch
}

// Dropped returns how many messages were discarded because this
// subscriber's queue was full.
func (s *Subscription) Dropped() uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.dropped
}

// Close unregisters the subscription. Safe to call more than once.
func (s *Subscription) Close() {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	s.closed = true
	s.mu.Unlock()

	s.hub.unsubscribe(s)
}

// deliver enqueues msg without blocking. When the queue is full the
// oldest undelivered message is dropped to make room.
func (s *Subscription) deliver(msg Message) {
	select {
	case s.ch <- msg:
		return
	default:
	}

	// Queue full: drop the oldest entry, then retry once. A racing
	// reader can still win both selects; dropping the new message in
	// that case is acceptable for a recency-first feed.
	select {
	case <-s.ch:
	default:
	}
	select {
	case s.ch <- msg:
	default:
	}

	s.mu.Lock()
	s.dropped++
	s.mu.Unlock()
}
