package hub

import (
	"errors"
	"log/slog"
	"sync"
)

// ErrClosed is returned by Subscribe after the hub has shut down.
var ErrClosed = errors.New("hub is closed")

// Sink receives messages published to a topic. Send returns an error when
// the sink can no longer accept messages (session gone, socket broken);
// the hub then unregisters that subscription and carries on. Send must be
// safe for concurrent use, since unrelated topics may deliver at once.
type Sink interface {
	Send(msg []byte) error
}

// SinkFunc adapts a function to the [Sink] interface.
type SinkFunc func(msg []byte) error

// Send calls f.
func (f SinkFunc) Send(msg []byte) error { return f(msg) }

// Subscription is the handle returned by [Hub.Subscribe]. Pass it to
// [Hub.Unsubscribe] to deregister.
type Subscription struct {
	topic string
	id    uint64
	sink  Sink
}

// Topic returns the topic this subscription is registered on.
func (s *Subscription) Topic() string { return s.topic }

// Hub is a topic-based broadcast registry. The zero value is not usable;
// construct with [New].
//
// Registry mutations serialize against publish iteration: Publish snapshots
// the topic's subscriber set under the read lock, then delivers outside it,
// so a slow sink never holds up subscribe or unsubscribe and a concurrent
// mutation never yields a partially updated set.
type Hub struct {
	mu     sync.RWMutex
	topics map[string]map[uint64]*Subscription
	nextID uint64
	closed bool

	logger *slog.Logger
}

// New returns an empty Hub. A nil logger defaults to slog.Default().
func New(logger *slog.Logger) *Hub {
	if logger == nil {
		logger = slog.Default()
	}
	return &Hub{
		topics: make(map[string]map[uint64]*Subscription),
		logger: logger,
	}
}

// Subscribe registers sink under topic and returns the subscription handle.
// Registering the same sink twice yields two subscriptions and therefore two
// deliveries per publish; the hub keys registrations by handle, not by sink
// identity. Returns [ErrClosed] after Close.
func (h *Hub) Subscribe(topic string, sink Sink) (*Subscription, error) {
	if sink == nil {
		return nil, errors.New("nil sink")
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		return nil, ErrClosed
	}

	h.nextID++
	sub := &Subscription{topic: topic, id: h.nextID, sink: sink}
	subs, ok := h.topics[topic]
	if !ok {
		subs = make(map[uint64]*Subscription)
		h.topics[topic] = subs
	}
	subs[sub.id] = sub

	h.logger.Debug("subscriber registered", "topic", topic, "subscribers", len(subs))
	return sub, nil
}

// Unsubscribe removes the subscription. Calling it twice, or with a handle
// the hub already dropped after a delivery failure, is a harmless no-op.
func (h *Hub) Unsubscribe(sub *Subscription) {
	if sub == nil {
		return
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	h.remove(sub)
}

// remove deletes sub from the registry. Callers hold the write lock.
func (h *Hub) remove(sub *Subscription) {
	subs, ok := h.topics[sub.topic]
	if !ok {
		return
	}
	if _, ok := subs[sub.id]; !ok {
		return
	}
	delete(subs, sub.id)
	if len(subs) == 0 {
		delete(h.topics, sub.topic)
	}
	h.logger.Debug("subscriber removed", "topic", sub.topic, "subscribers", len(subs))
}

// Publish delivers msg to every subscriber registered on topic at the time
// of the call and returns the number of successful deliveries. Failing
// subscribers are unregistered and do not affect the rest; nothing is
// raised to the publisher. Publishing to a topic with no subscribers, or
// after Close, delivers nowhere.
func (h *Hub) Publish(topic string, msg []byte) int {
	h.mu.RLock()
	if h.closed {
		h.mu.RUnlock()
		return 0
	}
	subs := h.topics[topic]
	snapshot := make([]*Subscription, 0, len(subs))
	for _, sub := range subs {
		snapshot = append(snapshot, sub)
	}
	h.mu.RUnlock()

	delivered := 0
	var failed []*Subscription
	for _, sub := range snapshot {
		if err := sub.sink.Send(msg); err != nil {
			h.logger.Warn("dropping subscriber after delivery failure",
				"topic", topic, "error", err)
			failed = append(failed, sub)
			continue
		}
		delivered++
	}

	if len(failed) > 0 {
		h.mu.Lock()
		for _, sub := range failed {
			h.remove(sub)
		}
		h.mu.Unlock()
	}
	return delivered
}

// PublishEnvelope encodes env and publishes it to topic.
func (h *Hub) PublishEnvelope(topic string, env Envelope) int {
	msg, err := env.Encode()
	if err != nil {
		h.logger.Error("encoding envelope", "topic", topic, "error", err)
		return 0
	}
	return h.Publish(topic, msg)
}

// Subscribers returns the number of subscriptions currently registered on
// topic.
func (h *Hub) Subscribers(topic string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.topics[topic])
}

// Close shuts the hub down: subsequent subscribes fail with [ErrClosed] and
// subsequent publishes deliver nowhere. Close is idempotent. Sinks are not
// closed; their owning sessions shut them down.
func (h *Hub) Close() {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		return
	}
	h.closed = true
	h.topics = make(map[string]map[uint64]*Subscription)
}
