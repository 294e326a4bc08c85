package shared

import "context"

// EventPublisher delivers domain events to their subscribers.
// Subscriber failures are returned to the caller, not swallowed.
type EventPublisher interface {
	// Publish delivers one event to every subscriber of its type, in registration order
	Publish(ctx context.Context, event DomainEvent) error
	// PublishAll delivers events in order, each fully processed before the next starts
	PublishAll(ctx context.Context, events []DomainEvent) error
}
