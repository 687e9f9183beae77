// Package events provides the in-process publish/subscribe channel used
// to surface connection, install-progress, and inventory changes to the
// orchestration and UI layers. Delivery is synchronous and best-effort;
// a subscriber panic never propagates into the publisher.
package events

import (
	"sync"
	"time"

	"github.com/droiddeck/backend/internal/infrastructure/logging"
	"go.uber.org/zap"
)

// Handler receives published events for one topic.
type Handler func(event any)

// Envelope wraps an event with its topic for stream subscribers that
// listen across topics.
type Envelope struct {
	Topic     string    `json:"topic"`
	Timestamp time.Time `json:"timestamp"`
	Event     any       `json:"event"`
}

// Bus is a topic-keyed synchronous event bus.
type Bus struct {
	mu     sync.RWMutex
	nextID uint64
	subs   map[string]map[uint64]Handler
	log    *logging.Logger
}

// New creates an empty bus.
func New(log *logging.Logger) *Bus {
	if log == nil {
		log = logging.NewNop()
	}
	return &Bus{
		subs: make(map[string]map[uint64]Handler),
		log:  log.Named("events"),
	}
}

// Subscribe registers a handler for one topic and returns an unsubscribe
// function. Unsubscribing twice is harmless.
func (b *Bus) Subscribe(topic string, h Handler) func() {
	b.mu.Lock()
	defer b.mu.Unlock()

	id := b.nextID
	b.nextID++
	if b.subs[topic] == nil {
		b.subs[topic] = make(map[uint64]Handler)
	}
	b.subs[topic][id] = h

	return func() {
		b.mu.Lock()
		defer b.mu.Unlock()
		delete(b.subs[topic], id)
	}
}

// SubscribeAll registers a handler for every topic; the handler receives
// an Envelope.
func (b *Bus) SubscribeAll(h func(Envelope)) func() {
	return b.Subscribe(topicAll, func(event any) {
		if env, ok := event.(Envelope); ok {
			h(env)
		}
	})
}

const topicAll = "*"

// Publish delivers the event to every subscriber of the topic, then to
// wildcard subscribers. Delivery is synchronous; each handler runs under
// a recover so one failing subscriber cannot break the publisher or its
// peers.
func (b *Bus) Publish(topic string, event any) {
	b.mu.RLock()
	handlers := make([]Handler, 0, len(b.subs[topic])+len(b.subs[topicAll]))
	for _, h := range b.subs[topic] {
		handlers = append(handlers, h)
	}
	wildcards := make([]Handler, 0, len(b.subs[topicAll]))
	for _, h := range b.subs[topicAll] {
		wildcards = append(wildcards, h)
	}
	b.mu.RUnlock()

	for _, h := range handlers {
		b.deliver(topic, h, event)
	}
	if len(wildcards) > 0 {
		env := Envelope{Topic: topic, Timestamp: time.Now(), Event: event}
		for _, h := range wildcards {
			b.deliver(topic, h, env)
		}
	}
}

// SubscriberCount returns the number of direct subscribers for a topic.
func (b *Bus) SubscriberCount(topic string) int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.subs[topic])
}

func (b *Bus) deliver(topic string, h Handler, event any) {
	defer func() {
		if r := recover(); r != nil {
			b.log.Warn("subscriber panicked",
				zap.String("topic", topic),
				zap.Any("panic", r),
			)
		}
	}()
	h(event)
}
