package dispatch

import (
	"context"

	"github.com/restaurant/backend/internal/domain/shared"
)

// Outcome is what a handler produces: the Result and the domain events its
// persistence step already committed.
type Outcome[T any] struct {
	Result shared.Result[T]
	Events []shared.DomainEvent

	rejected bool // set by the validation stage
}

// Succeeded builds a successful outcome
func Succeeded[T any](value T, events ...shared.DomainEvent) Outcome[T] {
	return Outcome[T]{Result: shared.Success(value), Events: events}
}

// Failed builds a business-rule failure
func Failed[T any](messages ...string) Outcome[T] {
	return Outcome[T]{Result: shared.Failure[T](messages...)}
}

// FailedWith builds a business-rule failure from a domain error
func FailedWith[T any](err error) Outcome[T] {
	return Outcome[T]{Result: shared.FailureFromError[T](err)}
}

// Handler executes one request type.
// Business failures are returned in the Outcome; a non-nil error means an
// unexpected internal failure.
type Handler[R Request, T any] interface {
	Handle(ctx context.Context, req R) (Outcome[T], error)
}

// HandlerFunc adapts a function to Handler
type HandlerFunc[R Request, T any] func(ctx context.Context, req R) (Outcome[T], error)

// Handle implements Handler
func (f HandlerFunc[R, T]) Handle(ctx context.Context, req R) (Outcome[T], error) {
	return f(ctx, req)
}
