package dispatch

import (
	"context"
	"errors"
	"fmt"
	"reflect"
	"time"

	"github.com/restaurant/backend/internal/domain/shared"
	"github.com/restaurant/backend/internal/infrastructure/cache"
	"github.com/restaurant/backend/internal/infrastructure/telemetry"
	"go.uber.org/zap"
)

var (
	// ErrDuplicateHandler is returned by Build when a request type has more than one handler
	ErrDuplicateHandler = errors.New("duplicate handler registration")
	// ErrMissingHandler is returned by Build when a required request type has no handler
	ErrMissingHandler = errors.New("missing handler registration")
	// ErrHandlerNotFound is reported when Send receives an unregistered request type
	ErrHandlerNotFound = errors.New("no handler registered")
	// ErrInterfaceRequest is returned by Build when a handler is registered for an interface type
	ErrInterfaceRequest = errors.New("request type must be concrete")
	// ErrUncacheableResult is returned by Build when a Cacheable request's value cannot survive the cache codec
	ErrUncacheableResult = errors.New("result type cannot be cached")
)

// route is one registered request type with its composed pipeline
type route struct {
	operation string
	build     func(d deps) func(ctx context.Context, req Request) any
}

// Registry collects handler registrations at startup.
// It is not safe for concurrent use; Build produces the concurrent-safe Dispatcher.
type Registry struct {
	routes map[reflect.Type]route
	errs   []error
}

// NewRegistry creates an empty registry
func NewRegistry() *Registry {
	return &Registry{routes: make(map[reflect.Type]route)}
}

// Register records the handler for request type R, with the validators run before it.
// Registering R twice, R being an interface, or a Cacheable R whose T does not
// survive the cache codec are configuration errors reported by Build.
func Register[R Request, T any](reg *Registry, handler Handler[R, T], validators ...Validator[R]) {
	key := typeOf[R]()
	if key.Kind() == reflect.Interface {
		reg.errs = append(reg.errs, fmt.Errorf("%w: %s", ErrInterfaceRequest, key))
		return
	}
	if key.Implements(typeOf[Cacheable]()) {
		if err := cache.CheckCodec[T](); err != nil {
			reg.errs = append(reg.errs, fmt.Errorf("%w: %s: %w", ErrUncacheableResult, key, err))
			return
		}
	}
	if _, exists := reg.routes[key]; exists {
		reg.errs = append(reg.errs, fmt.Errorf("%w: %s", ErrDuplicateHandler, key))
		return
	}

	reg.routes[key] = route{
		operation: key.String(),
		build: func(d deps) func(context.Context, Request) any {
			run := buildPipeline(d, handler, validators)
			return func(ctx context.Context, req Request) any {
				return run(ctx, req.(R))
			}
		},
	}
}

// Registered reports whether a handler exists for the type of req
func (reg *Registry) Registered(req Request) bool {
	_, ok := reg.routes[reflect.TypeOf(req)]
	return ok
}

// Options holds the collaborators shared by every pipeline
type Options struct {
	Logger    *zap.Logger
	Profiler  telemetry.Profiler
	Publisher shared.EventPublisher
	Cache     *cache.Gateway

	// DefaultCacheTTL applies to Cacheable requests whose CacheTTL is <= 0
	DefaultCacheTTL time.Duration
	// AbsentCacheTTL, when > 0, caps how long "nothing found" results stay cached
	AbsentCacheTTL time.Duration
}

// Build validates the registrations and composes every route's pipeline.
// required lists request types that must have a handler; an example value of each is enough.
// All configuration errors are reported together.
func (reg *Registry) Build(opts Options, required ...Request) (*Dispatcher, error) {
	errs := append([]error(nil), reg.errs...)
	for _, req := range required {
		if !reg.Registered(req) {
			errs = append(errs, fmt.Errorf("%w: %T", ErrMissingHandler, req))
		}
	}
	if len(errs) > 0 {
		return nil, errors.Join(errs...)
	}

	d := deps{
		logger:     opts.Logger,
		profiler:   opts.Profiler,
		publisher:  opts.Publisher,
		cache:      opts.Cache,
		defaultTTL: opts.DefaultCacheTTL,
		absentTTL:  opts.AbsentCacheTTL,
	}
	if d.logger == nil {
		d.logger = zap.NewNop()
	}
	if d.profiler == nil {
		d.profiler = telemetry.NopProfiler{}
	}

	routes := make(map[reflect.Type]func(context.Context, Request) any, len(reg.routes))
	for key, r := range reg.routes {
		routes[key] = r.build(d)
		d.logger.Debug("Handler registered",
			zap.String("request_type", r.operation))
	}

	return &Dispatcher{routes: routes, logger: d.logger}, nil
}

func typeOf[R any]() reflect.Type {
	return reflect.TypeOf((*R)(nil)).Elem()
}
