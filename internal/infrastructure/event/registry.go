package event

import (
	"context"
	"errors"
	"sync"

	"github.com/restaurant/backend/internal/domain/shared"
)

// ErrBusSealed is raised when a subscription is attempted after startup
var ErrBusSealed = errors.New("event bus is sealed")

// SubscriberFunc handles one delivered event
type SubscriberFunc func(ctx context.Context, event shared.DomainEvent) error

// subscriber is one registered entry of the dispatch table
type subscriber struct {
	name string
	fn   SubscriberFunc
}

// SubscriberRegistry is the event dispatch table: event type -> ordered subscribers,
// plus wildcard subscribers that receive every event after the typed ones.
type SubscriberRegistry struct {
	mu       sync.RWMutex
	handlers map[string][]subscriber
	wildcard []subscriber
	sealed   bool
}

// NewSubscriberRegistry creates an empty dispatch table
func NewSubscriberRegistry() *SubscriberRegistry {
	return &SubscriberRegistry{
		handlers: make(map[string][]subscriber),
	}
}

// Register appends a subscriber for an event type
func (r *SubscriberRegistry) Register(eventType string, s subscriber) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.sealed {
		return ErrBusSealed
	}
	r.handlers[eventType] = append(r.handlers[eventType], s)
	return nil
}

// RegisterWildcard appends a subscriber that receives every event
func (r *SubscriberRegistry) RegisterWildcard(s subscriber) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.sealed {
		return ErrBusSealed
	}
	r.wildcard = append(r.wildcard, s)
	return nil
}

// Seal freezes the table
func (r *SubscriberRegistry) Seal() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.sealed = true
}

// Sealed reports whether the table is frozen
func (r *SubscriberRegistry) Sealed() bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.sealed
}

// Subscribers returns the delivery sequence for an event type:
// type-specific subscribers in registration order, then wildcard ones
func (r *SubscriberRegistry) Subscribers(eventType string) []subscriber {
	r.mu.RLock()
	defer r.mu.RUnlock()

	typed := r.handlers[eventType]
	result := make([]subscriber, 0, len(typed)+len(r.wildcard))
	result = append(result, typed...)
	result = append(result, r.wildcard...)
	return result
}

// EventTypes returns every event type with at least one typed subscriber
func (r *SubscriberRegistry) EventTypes() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	types := make([]string, 0, len(r.handlers))
	for t := range r.handlers {
		types = append(types, t)
	}
	return types
}
