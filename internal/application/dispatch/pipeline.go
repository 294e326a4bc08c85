package dispatch

import (
	"context"
	"errors"
	"fmt"
	"reflect"
	"runtime/debug"
	"strings"
	"time"

	"github.com/restaurant/backend/internal/domain/shared"
	"github.com/restaurant/backend/internal/infrastructure/cache"
	"github.com/restaurant/backend/internal/infrastructure/logger"
	"github.com/restaurant/backend/internal/infrastructure/telemetry"
	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"
)

// InternalErrorPrefix starts the single message of every internal-failure Result
const InternalErrorPrefix = "internal error: "

// stage is one layer of the pipeline
type stage[R Request, T any] func(ctx context.Context, req R) (Outcome[T], error)

// deps are the collaborators shared by every route
type deps struct {
	logger     *zap.Logger
	profiler   telemetry.Profiler
	publisher  shared.EventPublisher
	cache      *cache.Gateway
	defaultTTL time.Duration
	absentTTL  time.Duration
}

// buildPipeline composes the layers around a handler, outermost first:
// convert -> measure -> validate -> publish/invalidate -> cache -> handler.
func buildPipeline[R Request, T any](d deps, h Handler[R, T], validators []Validator[R]) func(context.Context, R) shared.Result[T] {
	s := invokeStage(h)
	s = cacheStage(d, s)
	s = publishStage(d, s)
	s = validateStage(validators, s)
	s = measureStage(d, s)
	return convertStage(d, s)
}

// errEmptyOutcome is reported when a handler returns neither a Result nor an error
var errEmptyOutcome = errors.New("handler returned an empty outcome")

// invokeStage calls the handler, turning a panic or an unset Result into an error
func invokeStage[R Request, T any](h Handler[R, T]) stage[R, T] {
	return func(ctx context.Context, req R) (out Outcome[T], err error) {
		defer recoverInto(&err)
		out, err = h.Handle(ctx, req)
		if err == nil && out.Result.IsZero() {
			return Outcome[T]{}, errEmptyOutcome
		}
		return out, err
	}
}

// cacheStage serves Cacheable requests through the gateway. Only the Result is
// cached; handlers of cacheable requests must not emit events.
func cacheStage[R Request, T any](d deps, next stage[R, T]) stage[R, T] {
	if d.cache == nil {
		return next
	}
	return func(ctx context.Context, req R) (Outcome[T], error) {
		c, ok := any(req).(Cacheable)
		if !ok || c.CacheKey() == "" {
			return next(ctx, req)
		}

		ttl := c.CacheTTL()
		if ttl <= 0 {
			ttl = d.defaultTTL
		}

		var events []shared.DomainEvent
		result, err := cache.GetOrSetFunc(ctx, d.cache, c.CacheKey(),
			func(ctx context.Context) (shared.Result[T], error) {
				out, err := next(ctx, req)
				if err != nil {
					return shared.Result[T]{}, err
				}
				events = out.Events
				return out.Result, nil
			},
			func(r shared.Result[T]) time.Duration {
				if d.absentTTL > 0 && isAbsent(r) {
					return d.absentTTL
				}
				return ttl
			},
		)
		if err != nil {
			return Outcome[T]{}, err
		}
		return Outcome[T]{Result: result, Events: events}, nil
	}
}

// isAbsent reports whether a result represents "nothing found":
// a Failure, or a Success holding a nil pointer, slice, map or interface.
func isAbsent[T any](r shared.Result[T]) bool {
	v, ok := r.Value()
	if !ok {
		return true
	}
	rv := reflect.ValueOf(&v).Elem()
	switch rv.Kind() {
	case reflect.Pointer, reflect.Slice, reflect.Map, reflect.Interface:
		return rv.IsNil()
	}
	return false
}

// publishStage runs after a successful handler outcome: stale cache entries are
// removed, then the committed events are published. A publishing failure is an
// internal failure.
func publishStage[R Request, T any](d deps, next stage[R, T]) stage[R, T] {
	return func(ctx context.Context, req R) (Outcome[T], error) {
		out, err := next(ctx, req)
		if err != nil || out.Result.IsFailure() {
			return out, err
		}

		if inv, ok := any(req).(Invalidating); ok && d.cache != nil {
			for _, pattern := range inv.InvalidatePatterns() {
				if _, err := d.cache.RemovePattern(ctx, pattern); err != nil {
					requestLogger(ctx, d.logger).Warn("Cache invalidation failed",
						zap.String("operation", operationName(req)),
						zap.String("pattern", pattern),
						zap.Error(err))
				}
			}
		}

		if len(out.Events) > 0 && d.publisher != nil {
			if err := d.publisher.PublishAll(ctx, out.Events); err != nil {
				return out, fmt.Errorf("publish events: %w", err)
			}
		}
		return out, nil
	}
}

// validateStage short-circuits with every validation message before the handler runs
func validateStage[R Request, T any](validators []Validator[R], next stage[R, T]) stage[R, T] {
	if len(validators) == 0 {
		return next
	}
	return func(ctx context.Context, req R) (out Outcome[T], err error) {
		var messages []string
		for _, v := range validators {
			msgs, err := runValidator(ctx, v, req)
			if err != nil {
				return Outcome[T]{}, err
			}
			messages = append(messages, msgs...)
		}
		if len(messages) > 0 {
			return Outcome[T]{Result: shared.Failure[T](messages...), rejected: true}, nil
		}
		return next(ctx, req)
	}
}

func runValidator[R Request](ctx context.Context, v Validator[R], req R) (msgs []string, err error) {
	defer recoverInto(&err)
	return v.Validate(ctx, req), nil
}

// measureStage records duration and count of every dispatch tagged with its outcome
func measureStage[R Request, T any](d deps, next stage[R, T]) stage[R, T] {
	return func(ctx context.Context, req R) (out Outcome[T], err error) {
		attrs := []attribute.KeyValue{telemetry.AttrRequestKind.String(KindOf(req))}
		if a, ok := any(req).(Attributed); ok {
			attrs = append(attrs, a.MetricAttributes()...)
		}

		d.profiler.Measure(ctx, operationName(req), func(ctx context.Context) []attribute.KeyValue {
			out, err = next(ctx, req)
			return []attribute.KeyValue{telemetry.AttrOutcome.String(outcomeOf(out, err))}
		}, attrs...)
		return out, err
	}
}

func outcomeOf[T any](out Outcome[T], err error) string {
	switch {
	case err != nil:
		return telemetry.OutcomeInternalError
	case out.rejected:
		return telemetry.OutcomeValidationFailed
	case out.Result.IsFailure():
		return telemetry.OutcomeFailed
	default:
		return telemetry.OutcomeSuccess
	}
}

// convertStage is the boundary: internal failures and panics become an opaque Failure
func convertStage[R Request, T any](d deps, next stage[R, T]) func(context.Context, R) shared.Result[T] {
	return func(ctx context.Context, req R) (result shared.Result[T]) {
		op, kind := operationName(req), KindOf(req)
		defer func() {
			if r := recover(); r != nil {
				err := fmt.Errorf("panic: %v", r)
				logInternal(ctx, d.logger, op, kind, err, debug.Stack())
				result = internalFailure[T](err)
			}
		}()

		out, err := next(ctx, req)
		if err != nil {
			logInternal(ctx, d.logger, op, kind, err, nil)
			return internalFailure[T](err)
		}
		return out.Result
	}
}

func internalFailure[T any](err error) shared.Result[T] {
	return shared.Failure[T](InternalErrorPrefix + err.Error())
}

// IsInternalFailure reports whether a Failure came from an unexpected internal error
func IsInternalFailure[T any](r shared.Result[T]) bool {
	errs := r.Errors()
	return len(errs) == 1 && strings.HasPrefix(errs[0], InternalErrorPrefix)
}

func logInternal(ctx context.Context, base *zap.Logger, op, kind string, err error, stack []byte) {
	fields := []zap.Field{
		zap.String("operation", op),
		zap.String("request_kind", kind),
		zap.Error(err),
	}
	if stack != nil {
		fields = append(fields, zap.ByteString("stack", stack))
	}
	if errors.Is(err, context.Canceled) {
		requestLogger(ctx, base).Info("Request cancelled", fields...)
		return
	}
	requestLogger(ctx, base).Error("Request failed with internal error", fields...)
}

// requestLogger enriches the base logger with the caller scope and trace identifiers from ctx
func requestLogger(ctx context.Context, base *zap.Logger) *zap.Logger {
	return logger.ForRequest(ctx, base)
}

// operationName reads req.OperationName, falling back when the method panics
// (a nil pointer with a value receiver, for instance)
func operationName(req Request) (name string) {
	defer func() {
		if recover() != nil {
			name = unknownOperation
		}
	}()
	return req.OperationName()
}

const unknownOperation = "unknown"

// recoverInto converts a panic in the current call into *err
func recoverInto(err *error) {
	if r := recover(); r != nil {
		*err = fmt.Errorf("panic: %v", r)
	}
}
