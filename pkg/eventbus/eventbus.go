package eventbus

import (
	"reflect"
	"sync"

	"go.uber.org/zap"
)

// Handler handles one published event.
type Handler func(event any)

// EventBus is an in-process pub/sub keyed by the event's concrete type.
// Domain services publish here; broker publishers subscribe.
type EventBus struct {
	mu       sync.RWMutex
	handlers map[reflect.Type][]Handler
	inflight sync.WaitGroup
	logger   *zap.Logger
}

// New creates an empty EventBus. A nil logger is replaced with a no-op logger.
func New(logger *zap.Logger) *EventBus {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &EventBus{
		handlers: make(map[reflect.Type][]Handler),
		logger:   logger,
	}
}

// Subscribe registers handler for events of the same type as eventType.
func (b *EventBus) Subscribe(eventType any, handler Handler) {
	t := reflect.TypeOf(eventType)
	b.mu.Lock()
	b.handlers[t] = append(b.handlers[t], handler)
	b.mu.Unlock()
}

// On registers a typed handler for events of type E.
func On[E any](b *EventBus, handler func(E)) {
	var zero E
	b.Subscribe(zero, func(event any) {
		if e, ok := event.(E); ok {
			handler(e)
		}
	})
}

// Publish dispatches event to every subscriber on its own goroutine.
func (b *EventBus) Publish(event any) {
	for _, h := range b.lookup(event) {
		b.inflight.Add(1)
		go func(h Handler) {
			defer b.inflight.Done()
			b.dispatch(h, event)
		}(h)
	}
}

// PublishSync dispatches event to every subscriber before returning.
func (b *EventBus) PublishSync(event any) {
	for _, h := range b.lookup(event) {
		b.dispatch(h, event)
	}
}

// Wait blocks until all asynchronously dispatched handlers have returned.
func (b *EventBus) Wait() {
	b.inflight.Wait()
}

// SubscriberCount returns the number of subscribers for an event type.
func (b *EventBus) SubscriberCount(eventType any) int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.handlers[reflect.TypeOf(eventType)])
}

func (b *EventBus) lookup(event any) []Handler {
	b.mu.RLock()
	defer b.mu.RUnlock()
	hs := b.handlers[reflect.TypeOf(event)]
	out := make([]Handler, len(hs))
	copy(out, hs)
	return out
}

func (b *EventBus) dispatch(h Handler, event any) {
	defer func() {
		if r := recover(); r != nil {
			b.logger.Error("eventbus.handler_panic",
				zap.String("event", reflect.TypeOf(event).String()),
				zap.Any("panic", r))
		}
	}()
	h(event)
}
