package dispatch

import (
	"context"
	"fmt"
	"reflect"

	"github.com/restaurant/backend/internal/domain/shared"
	"go.uber.org/zap"
)

// Dispatcher routes each request to its single handler pipeline.
// It is immutable after Build and safe for concurrent use.
type Dispatcher struct {
	routes map[reflect.Type]func(context.Context, Request) any
	logger *zap.Logger
}

// Send dispatches req and returns its Result. It never panics and never returns
// an error: unexpected failures come back as an internal-error Failure.
func Send[T any](ctx context.Context, d *Dispatcher, req Request) shared.Result[T] {
	if req == nil {
		return internalFailure[T](fmt.Errorf("%w: nil request", ErrHandlerNotFound))
	}
	if rv := reflect.ValueOf(req); rv.Kind() == reflect.Pointer && rv.IsNil() {
		err := fmt.Errorf("nil %T request", req)
		requestLogger(ctx, d.logger).Error("Dispatch failed", zap.Error(err))
		return internalFailure[T](err)
	}

	run, ok := d.routes[reflect.TypeOf(req)]
	if !ok {
		err := fmt.Errorf("%w for %T", ErrHandlerNotFound, req)
		requestLogger(ctx, d.logger).Error("Dispatch failed",
			zap.String("operation", operationName(req)),
			zap.Error(err))
		return internalFailure[T](err)
	}

	raw := run(ctx, req)
	result, ok := raw.(shared.Result[T])
	if !ok {
		err := fmt.Errorf("handler for %T returns %T, caller expects %T", req, raw, result)
		requestLogger(ctx, d.logger).Error("Dispatch failed",
			zap.String("operation", operationName(req)),
			zap.Error(err))
		return internalFailure[T](err)
	}
	return result
}
