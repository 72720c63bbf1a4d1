package changefeed

import (
	"context"
	"errors"
	"strings"
	"sync"
	"time"
)

const (
	OpCreate = "create"
	OpUpdate = "update"
	OpDelete = "delete"
)

// TopicProducts is the topic for the products collection.
const TopicProducts = "products"

// Change describes a committed write. Subscribers treat it as a signal to
// re-read the collection; the payload is informational.
type Change struct {
	Topic  string    `json:"topic"`
	Op     string    `json:"op"`
	ID     string    `json:"id"`
	At     time.Time `json:"at"`
	Origin string    `json:"origin,omitempty"`
}

// Notifier publishes committed writes.
type Notifier interface {
	Notify(ctx context.Context, change Change)
}

// Hub fans changes out to in-process subscribers. Each subscriber holds at
// most one pending change: a burst of writes collapses into one signal.
type Hub struct {
	mu      sync.RWMutex
	streams map[string]*stream
}

type stream struct {
	mu     sync.Mutex
	subs   map[uint64]chan Change
	nextID uint64
}

type Subscription struct {
	hub   *Hub
	topic string
	id    uint64
	ch    chan Change
	once  sync.Once
}

func NewHub() *Hub {
	return &Hub{
		streams: make(map[string]*stream),
	}
}

func (h *Hub) Notify(_ context.Context, change Change) {
	h.Publish(change)
}

func (h *Hub) Publish(change Change) {
	if h == nil {
		return
	}
	topic := strings.TrimSpace(change.Topic)
	if topic == "" {
		return
	}
	h.mu.RLock()
	stream := h.streams[topic]
	h.mu.RUnlock()
	if stream == nil {
		return
	}

	stream.mu.Lock()
	subs := make([]chan Change, 0, len(stream.subs))
	for _, ch := range stream.subs {
		subs = append(subs, ch)
	}
	stream.mu.Unlock()

	for _, ch := range subs {
		select {
		case ch <- change:
		default:
		}
	}
}

func (h *Hub) Subscribe(topic string) (*Subscription, error) {
	if h == nil {
		return nil, errors.New("hub_unavailable")
	}
	topic = strings.TrimSpace(topic)
	if topic == "" {
		return nil, errors.New("invalid_topic")
	}

	// h.mu is held across registration so unsubscribe cannot drop the stream
	// between lookup and insert.
	h.mu.Lock()
	st := h.streams[topic]
	if st == nil {
		st = &stream{subs: make(map[uint64]chan Change)}
		h.streams[topic] = st
	}
	st.mu.Lock()
	id := st.nextID
	st.nextID++
	ch := make(chan Change, 1)
	st.subs[id] = ch
	st.mu.Unlock()
	h.mu.Unlock()

	return &Subscription{
		hub:   h,
		topic: topic,
		id:    id,
		ch:    ch,
	}, nil
}

// Subscribers returns the number of live subscriptions on topic.
func (h *Hub) Subscribers(topic string) int {
	if h == nil {
		return 0
	}
	h.mu.RLock()
	stream := h.streams[strings.TrimSpace(topic)]
	h.mu.RUnlock()
	if stream == nil {
		return 0
	}
	stream.mu.Lock()
	defer stream.mu.Unlock()
	return len(stream.subs)
}

func (h *Hub) unsubscribe(topic string, id uint64) {
	h.mu.Lock()
	defer h.mu.Unlock()

	stream := h.streams[topic]
	if stream == nil {
		return
	}
	stream.mu.Lock()
	delete(stream.subs, id)
	empty := len(stream.subs) == 0
	stream.mu.Unlock()
	if empty {
		delete(h.streams, topic)
	}
}

func (s *Subscription) Changes() <-chan Change {
	if s == nil {
		return nil
	}
	return s.ch
}

func (s *Subscription) Close() {
	if s == nil || s.hub == nil {
		return
	}
	s.once.Do(func() {
		s.hub.unsubscribe(s.topic, s.id)
	})
}
