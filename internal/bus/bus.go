// Package bus provides an internal event bus for component communication
package bus

import (
	"sync"
	"sync/atomic"
)

// EventType identifies different event types
type EventType string

// Event types for posteravatar
const (
	// Conversation events
	EventTypeMessageSent      EventType = "chat.message_sent"
	EventTypeRequestSucceeded EventType = "chat.request_succeeded"
	EventTypeRequestFailed    EventType = "chat.request_failed"
	EventTypeTranscript       EventType = "chat.transcript"
	EventTypeCleared          EventType = "chat.cleared"

	// Narration events
	EventTypeNarrationStarted EventType = "narration.started"
	EventTypeNarrationEnded   EventType = "narration.ended"
	EventTypeNarrationFailed  EventType = "narration.failed"

	// Avatar events
	EventTypeMoodChanged EventType = "avatar.mood_changed"

	// Viewer events
	EventTypeViewerStatus EventType = "viewer.status"
	EventTypeClipChanged  EventType = "viewer.clip_changed"
)

// Event represents a bus event. Seq is assigned by Publish and increases monotonically.
type Event struct {
	Type EventType
	Seq  uint64
	Data map[string]any
}

// Handler is a function that handles events
type Handler func(Event)

// EventBus is a simple pub/sub event bus
type EventBus struct {
	mu       sync.RWMutex
	handlers map[EventType][]Handler
	all      []Handler
	seq      atomic.Uint64
}

// NewEventBus creates a new event bus
func NewEventBus() *EventBus {
	return &EventBus{
		handlers: make(map[EventType][]Handler),
	}
}

// Subscribe adds a handler for an event type
func (b *EventBus) Subscribe(eventType EventType, handler Handler) {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.handlers[eventType] = append(b.handlers[eventType], handler)
}

// SubscribeMultiple adds a handler for multiple event types
func (b *EventBus) SubscribeMultiple(eventTypes []EventType, handler Handler) {
	for _, et := range eventTypes {
		b.Subscribe(et, handler)
	}
}

// SubscribeAll adds a handler that receives every event.
func (b *EventBus) SubscribeAll(handler Handler) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.all = append(b.all, handler)
}

func (b *EventBus) snapshot(eventType EventType) []Handler {
	b.mu.RLock()
	defer b.mu.RUnlock()

	handlers := make([]Handler, 0, len(b.handlers[eventType])+len(b.all))
	handlers = append(handlers, b.handlers[eventType]...)
	handlers = append(handlers, b.all...)
	return handlers
}

// Publish sends an event to all subscribed handlers without waiting.
func (b *EventBus) Publish(event Event) {
	event.Seq = b.seq.Add(1)
	for _, handler := range b.snapshot(event.Type) {
		go handler(event)
	}
}
