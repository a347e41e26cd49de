// Package events implements the in-process notification bus for the trust
// engine. Delivery is synchronous and in publish order; for a single agent
// that order matches the call order of the operations that produced the
// events. There is no cross-agent ordering guarantee.
package events

import (
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Event is the envelope delivered to subscribers.
type Event struct {
	ID        string    `json:"id"`
	Topic     string    `json:"topic"`
	Timestamp time.Time `json:"timestamp"`
	Payload   any       `json:"payload"`
}

// Handler receives published events.
type Handler func(Event)

type subscription struct {
	id      uint64
	pattern string
	handler Handler
}

// Bus is a synchronous topic-matched publish/subscribe bus.
type Bus struct {
	mu     sync.RWMutex
	subs   []subscription
	nextID uint64
	logger *slog.Logger
	clock  func() time.Time
}

// NewBus creates an empty bus.
func NewBus() *Bus {
	return &Bus{
		logger: slog.Default().With("component", "events"),
		clock:  time.Now,
	}
}

// WithClock overrides the clock for testing.
func (b *Bus) WithClock(clock func() time.Time) *Bus {
	b.clock = clock
	return b
}

// Subscribe registers a handler for a topic. The pattern is either an exact
// topic ("trust.tier_changed") or a prefix wildcard ("trust.*", "*").
// The returned function removes the subscription.
func (b *Bus) Subscribe(pattern string, h Handler) func() {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.nextID++
	id := b.nextID
	b.subs = append(b.subs, subscription{id: id, pattern: pattern, handler: h})

	return func() {
		b.mu.Lock()
		defer b.mu.Unlock()
		for i, s := range b.subs {
			if s.id == id {
				b.subs = append(b.subs[:i], b.subs[i+1:]...)
				return
			}
		}
	}
}

// Publish delivers the payload to every matching subscriber, synchronously,
// in subscription order. A panicking handler is recovered and logged so one
// subscriber cannot poison the publisher or its peers.
func (b *Bus) Publish(topic string, payload any) {
	b.mu.RLock()
	matched := make([]Handler, 0, len(b.subs))
	for _, s := range b.subs {
		if topicMatches(s.pattern, topic) {
			matched = append(matched, s.handler)
		}
	}
	clock := b.clock
	b.mu.RUnlock()

	if len(matched) == 0 {
		return
	}

	evt := Event{
		ID:        uuid.New().String(),
		Topic:     topic,
		Timestamp: clock().UTC(),
		Payload:   payload,
	}
	for _, h := range matched {
		b.deliver(h, evt)
	}
}

func (b *Bus) deliver(h Handler, evt Event) {
	defer func() {
		if r := recover(); r != nil {
			b.logger.Error("event handler panicked", "topic", evt.Topic, "panic", r)
		}
	}()
	h(evt)
}

func topicMatches(pattern, topic string) bool {
	if pattern == "*" || pattern == topic {
		return true
	}
	if strings.HasSuffix(pattern, ".*") {
		return strings.HasPrefix(topic, strings.TrimSuffix(pattern, "*"))
	}
	return false
}
