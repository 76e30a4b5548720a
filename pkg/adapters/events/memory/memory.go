package memory

import (
	"context"
	"sync"

	"go.uber.org/zap"

	"github.com/aescanero/varflow/pkg/ports"
)

// InMemoryEventBus implements EventBus using in-memory handlers.
// Events only reach subscribers of the same process.
type InMemoryEventBus struct {
	subscribers map[string]map[uint64]ports.EventHandler
	nextID      uint64
	mu          sync.RWMutex
	wg          sync.WaitGroup
	logger      *zap.Logger
}

// NewInMemoryEventBus creates a new in-memory event bus
func NewInMemoryEventBus(logger *zap.Logger) *InMemoryEventBus {
	return &InMemoryEventBus{
		subscribers: make(map[string]map[uint64]ports.EventHandler),
		logger:      logger,
	}
}

// Publish publishes an event to all subscribers of a topic
func (e *InMemoryEventBus) Publish(ctx context.Context, topic string, event ports.Event) error {
	e.mu.RLock()
	handlers := make([]ports.EventHandler, 0, len(e.subscribers[topic]))
	for _, h := range e.subscribers[topic] {
		handlers = append(handlers, h)
	}
	e.mu.RUnlock()

	// Call all handlers asynchronously. Delivery order is not guaranteed;
	// snapshot consumers order by sequence.
	for _, handler := range handlers {
		e.wg.Add(1)
		go func(h ports.EventHandler) {
			defer e.wg.Done()
			if err := h(ctx, event); err != nil {
				e.logger.Debug("event handler error",
					zap.String("topic", topic),
					zap.String("event_id", event.ID),
					zap.Error(err))
			}
		}(handler)
	}

	return nil
}

// Subscribe subscribes to events on a specific topic. The subscription ends
// when ctx is cancelled.
func (e *InMemoryEventBus) Subscribe(ctx context.Context, topic string, handler ports.EventHandler) error {
	e.mu.Lock()
	e.nextID++
	id := e.nextID
	if e.subscribers[topic] == nil {
		e.subscribers[topic] = make(map[uint64]ports.EventHandler)
	}
	e.subscribers[topic][id] = handler
	e.mu.Unlock()

	// Clean up subscription on context cancellation
	go func() {
		<-ctx.Done()
		e.unsubscribe(topic, id)
	}()

	return nil
}

// Unsubscribe removes all subscriptions from a topic
func (e *InMemoryEventBus) Unsubscribe(ctx context.Context, topic string) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	delete(e.subscribers, topic)
	return nil
}

// Close drops every subscriber and waits for running handlers
func (e *InMemoryEventBus) Close() error {
	e.mu.Lock()
	e.subscribers = make(map[string]map[uint64]ports.EventHandler)
	e.mu.Unlock()

	e.wg.Wait()
	return nil
}

// unsubscribe removes a single handler from a topic
func (e *InMemoryEventBus) unsubscribe(topic string, id uint64) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if handlers, ok := e.subscribers[topic]; ok {
		delete(handlers, id)
		if len(handlers) == 0 {
			delete(e.subscribers, topic)
		}
	}
}

// SubscriberCount returns the number of handlers subscribed to topic.
func (e *InMemoryEventBus) SubscriberCount(topic string) int {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return len(e.subscribers[topic])
}
