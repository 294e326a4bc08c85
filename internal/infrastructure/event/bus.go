package event

import (
	"context"
	"fmt"

	"github.com/restaurant/backend/internal/domain/shared"
	"go.uber.org/zap"
)

// Bus delivers domain events in-process through an explicit dispatch table.
// Delivery is synchronous and sequential: subscribers of one event run in
// registration order, events of a batch run one after another, and the first
// failure stops delivery and is returned.
type Bus struct {
	registry *SubscriberRegistry
	logger   *zap.Logger
}

// BusOption is a functional option for configuring the bus
type BusOption func(*Bus)

// WithLogger sets the logger for the bus
func WithLogger(logger *zap.Logger) BusOption {
	return func(b *Bus) {
		if logger != nil {
			b.logger = logger
		}
	}
}

// NewBus creates an empty bus
func NewBus(opts ...BusOption) *Bus {
	b := &Bus{
		registry: NewSubscriberRegistry(),
		logger:   zap.NewNop(),
	}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

// Subscribe registers fn for events of eventType. Delivered events that are not
// an E fail delivery. Subscribing after Seal panics: subscriptions are startup configuration.
func Subscribe[E shared.DomainEvent](b *Bus, eventType, name string, fn func(ctx context.Context, event E) error) {
	typed := func(ctx context.Context, event shared.DomainEvent) error {
		e, ok := event.(E)
		if !ok {
			return fmt.Errorf("event %s has type %T, subscriber expects %T", eventType, event, *new(E))
		}
		return fn(ctx, e)
	}
	if err := b.registry.Register(eventType, subscriber{name: name, fn: typed}); err != nil {
		panic(fmt.Errorf("subscribe %q to %s: %w", name, eventType, err))
	}
	b.logger.Debug("subscriber registered",
		zap.String("event_type", eventType),
		zap.String("subscriber", name))
}

// SubscribeAll registers fn for every event. Wildcard subscribers run after the typed ones.
func (b *Bus) SubscribeAll(name string, fn SubscriberFunc) {
	if err := b.registry.RegisterWildcard(subscriber{name: name, fn: fn}); err != nil {
		panic(fmt.Errorf("subscribe %q to all events: %w", name, err))
	}
	b.logger.Debug("wildcard subscriber registered", zap.String("subscriber", name))
}

// Seal freezes the dispatch table. Call it once wiring is complete.
func (b *Bus) Seal() {
	b.registry.Seal()
	b.logger.Info("event bus sealed", zap.Strings("event_types", b.registry.EventTypes()))
}

// Publish delivers one event to its subscribers in order and returns the first failure
func (b *Bus) Publish(ctx context.Context, event shared.DomainEvent) error {
	for _, s := range b.registry.Subscribers(event.EventType()) {
		if err := ctx.Err(); err != nil {
			return err
		}
		if err := b.deliver(ctx, s, event); err != nil {
			b.logger.Error("subscriber failed to process event",
				zap.String("event_type", event.EventType()),
				zap.String("event_id", event.EventID().String()),
				zap.String("subscriber", s.name),
				zap.Error(err),
			)
			return fmt.Errorf("subscriber %q failed for event %s (%s): %w",
				s.name, event.EventType(), event.EventID(), err)
		}
		b.logger.Debug("event delivered",
			zap.String("event_type", event.EventType()),
			zap.String("subscriber", s.name))
	}
	return nil
}

// PublishAll delivers events strictly in order, each fully processed before the next
func (b *Bus) PublishAll(ctx context.Context, events []shared.DomainEvent) error {
	for _, event := range events {
		if err := b.Publish(ctx, event); err != nil {
			return err
		}
	}
	return nil
}

// deliver runs one subscriber, turning a panic into an error
func (b *Bus) deliver(ctx context.Context, s subscriber, event shared.DomainEvent) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("subscriber panicked: %v", r)
		}
	}()
	return s.fn(ctx, event)
}

var _ shared.EventPublisher = (*Bus)(nil)
