package dispatch_test

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/restaurant/backend/internal/application/dispatch"
	"github.com/restaurant/backend/internal/domain/shared"
	"github.com/restaurant/backend/internal/infrastructure/cache"
	"github.com/restaurant/backend/internal/infrastructure/event"
	"github.com/restaurant/backend/internal/infrastructure/telemetry"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/attribute"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"
	"go.uber.org/zap/zaptest"
)

type productView struct {
	ID   int    `json:"id"`
	Name string `json:"name"`
}

type getProduct struct {
	dispatch.QueryBase
	ID int `json:"id" validate:"gt=0"`
}

func (getProduct) OperationName() string { return "GetProduct" }
func (q getProduct) CacheKey() string { return cache.IDKey("product", q.ID) }
func (getProduct) CacheTTL() time.Duration { return time.Minute }

type createProduct struct {
	dispatch.CommandBase
	Name  string `json:"name" validate:"required"`
	Price int    `json:"price" validate:"gt=0"`
}

func (createProduct) OperationName() string { return "CreateProduct" }
func (createProduct) InvalidatePatterns() []string {
	return []string{cache.AllPattern("product"), cache.SearchPattern("product")}
}
func (createProduct) MetricAttributes() []attribute.KeyValue {
	return []attribute.KeyValue{telemetry.AttrEntity.String("product")}
}

type unregistered struct{}

func (unregistered) OperationName() string { return "Unregistered" }

type productCreated struct {
	shared.BaseDomainEvent
	Name string `json:"name"`
}

type testClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *testClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *testClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

type fixture struct {
	store  *cache.MemoryStore
	clock  *testClock
	bus    *event.Bus
	reader *sdkmetric.ManualReader
	opts   dispatch.Options
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	logger := zaptest.NewLogger(t)

	clock := &testClock{now: time.Date(2024, 3, 1, 9, 0, 0, 0, time.UTC)}
	store, err := cache.NewMemoryStore(
		cache.WithCleanupInterval(0),
		cache.WithMemoryClock(clock.Now),
		cache.WithMemoryLogger(logger),
	)
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })

	reader := sdkmetric.NewManualReader()
	provider := sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader))
	t.Cleanup(func() { _ = provider.Shutdown(context.Background()) })
	sink := telemetry.NewMeterSink(provider.Meter("test"))

	bus := event.NewBus(event.WithLogger(logger))

	return &fixture{
		store:  store,
		clock:  clock,
		bus:    bus,
		reader: reader,
		opts: dispatch.Options{
			Logger:          logger,
			Profiler:        telemetry.NewOperationProfiler(sink),
			Publisher:       bus,
			Cache:           cache.NewGateway(store, cache.WithGatewayLogger(logger)),
			DefaultCacheTTL: 5 * time.Minute,
		},
	}
}

// outcomes returns operation outcome -> count recorded by the profiler
func (f *fixture) outcomes(t *testing.T, operation string) map[string]int64 {
	t.Helper()
	var rm metricdata.ResourceMetrics
	require.NoError(t, f.reader.Collect(context.Background(), &rm))

	out := map[string]int64{}
	for _, sm := range rm.ScopeMetrics {
		for _, m := range sm.Metrics {
			if m.Name != telemetry.MetricOperationTotal {
				continue
			}
			sum, ok := m.Data.(metricdata.Sum[int64])
			require.True(t, ok)
			for _, dp := range sum.DataPoints {
				op, _ := dp.Attributes.Value(telemetry.AttrOperation)
				if op.AsString() != operation {
					continue
				}
				outcome, _ := dp.Attributes.Value(telemetry.AttrOutcome)
				out[outcome.AsString()] += dp.Value
			}
		}
	}
	return out
}

func build(t *testing.T, reg *dispatch.Registry, opts dispatch.Options) *dispatch.Dispatcher {
	t.Helper()
	d, err := reg.Build(opts)
	require.NoError(t, err)
	return d
}

func TestSend_Success(t *testing.T) {
	f := newFixture(t)
	reg := dispatch.NewRegistry()
	dispatch.Register(reg, dispatch.HandlerFunc[getProduct, productView](
		func(_ context.Context, q getProduct) (dispatch.Outcome[productView], error) {
			return dispatch.Succeeded(productView{ID: q.ID, Name: "Margherita"}), nil
		}))
	d := build(t, reg, f.opts)

	result := dispatch.Send[productView](context.Background(), d, getProduct{ID: 7})

	require.True(t, result.IsSuccess())
	assert.Equal(t, productView{ID: 7, Name: "Margherita"}, result.MustValue())
	assert.Equal(t, map[string]int64{telemetry.OutcomeSuccess: 1}, f.outcomes(t, "GetProduct"))
}

func TestSend_ValidationFailureSkipsHandler(t *testing.T) {
	f := newFixture(t)
	reg := dispatch.NewRegistry()
	called := false
	dispatch.Register(reg,
		dispatch.HandlerFunc[createProduct, int](func(context.Context, createProduct) (dispatch.Outcome[int], error) {
			called = true
			return dispatch.Succeeded(1), nil
		}),
		dispatch.NewStructValidator[createProduct](),
		dispatch.ValidatorFunc[createProduct](func(_ context.Context, c createProduct) []string {
			if strings.Contains(c.Name, "!") {
				return []string{"name: Must not contain punctuation"}
			}
			return nil
		}),
	)
	d := build(t, reg, f.opts)

	result := dispatch.Send[int](context.Background(), d, createProduct{Name: "", Price: 0})

	require.True(t, result.IsFailure())
	assert.False(t, called)
	assert.ElementsMatch(t, []string{
		"name: This field is required",
		"price: Must be greater than 0",
	}, result.Errors())

	result = dispatch.Send[int](context.Background(), d, createProduct{Name: "Pizza!", Price: 0})
	assert.Equal(t, []string{"price: Must be greater than 0", "name: Must not contain punctuation"}, result.Errors())
	assert.False(t, called)

	assert.Equal(t, map[string]int64{telemetry.OutcomeValidationFailed: 2}, f.outcomes(t, "CreateProduct"))
}

func TestSend_BusinessFailurePassesThrough(t *testing.T) {
	f := newFixture(t)
	reg := dispatch.NewRegistry()
	dispatch.Register(reg, dispatch.HandlerFunc[createProduct, int](
		func(context.Context, createProduct) (dispatch.Outcome[int], error) {
			return dispatch.FailedWith[int](shared.NewDomainError("DUPLICATE", "product already exists")), nil
		}))
	d := build(t, reg, f.opts)

	result := dispatch.Send[int](context.Background(), d, createProduct{Name: "Pizza", Price: 10})

	assert.Equal(t, []string{"product already exists"}, result.Errors())
	assert.False(t, dispatch.IsInternalFailure(result))
	assert.Equal(t, map[string]int64{telemetry.OutcomeFailed: 1}, f.outcomes(t, "CreateProduct"))
}

func TestSend_HandlerErrorBecomesInternalFailure(t *testing.T) {
	f := newFixture(t)
	reg := dispatch.NewRegistry()
	dispatch.Register(reg, dispatch.HandlerFunc[createProduct, int](
		func(context.Context, createProduct) (dispatch.Outcome[int], error) {
			return dispatch.Outcome[int]{}, errors.New("connection reset")
		}))
	d := build(t, reg, f.opts)

	result := dispatch.Send[int](context.Background(), d, createProduct{Name: "Pizza", Price: 10})

	require.True(t, result.IsFailure())
	assert.Equal(t, []string{"internal error: connection reset"}, result.Errors())
	assert.True(t, dispatch.IsInternalFailure(result))
	assert.Equal(t, map[string]int64{telemetry.OutcomeInternalError: 1}, f.outcomes(t, "CreateProduct"))
}

func TestSend_HandlerPanicBecomesInternalFailure(t *testing.T) {
	f := newFixture(t)
	reg := dispatch.NewRegistry()
	dispatch.Register(reg, dispatch.HandlerFunc[createProduct, int](
		func(context.Context, createProduct) (dispatch.Outcome[int], error) {
			panic("nil map write")
		}))
	d := build(t, reg, f.opts)

	var result shared.Result[int]
	require.NotPanics(t, func() {
		result = dispatch.Send[int](context.Background(), d, createProduct{Name: "Pizza", Price: 10})
	})

	require.True(t, result.IsFailure())
	assert.True(t, dispatch.IsInternalFailure(result))
	assert.Contains(t, result.Errors()[0], "nil map write")
}

func TestSend_ValidatorPanicBecomesInternalFailure(t *testing.T) {
	f := newFixture(t)
	reg := dispatch.NewRegistry()
	called := false
	dispatch.Register(reg,
		dispatch.HandlerFunc[createProduct, int](func(context.Context, createProduct) (dispatch.Outcome[int], error) {
			called = true
			return dispatch.Succeeded(1), nil
		}),
		dispatch.ValidatorFunc[createProduct](func(context.Context, createProduct) []string {
			panic("validator bug")
		}),
	)
	d := build(t, reg, f.opts)

	result := dispatch.Send[int](context.Background(), d, createProduct{Name: "Pizza", Price: 10})

	assert.True(t, dispatch.IsInternalFailure(result))
	assert.False(t, called)
}

func TestSend_CachesQueryResult(t *testing.T) {
	f := newFixture(t)
	reg := dispatch.NewRegistry()
	calls := 0
	dispatch.Register(reg, dispatch.HandlerFunc[getProduct, productView](
		func(_ context.Context, q getProduct) (dispatch.Outcome[productView], error) {
			calls++
			return dispatch.Succeeded(productView{ID: q.ID, Name: "Calzone"}), nil
		}))
	d := build(t, reg, f.opts)
	ctx := context.Background()

	first := dispatch.Send[productView](ctx, d, getProduct{ID: 3})
	second := dispatch.Send[productView](ctx, d, getProduct{ID: 3})

	assert.Equal(t, 1, calls)
	assert.Equal(t, first.MustValue(), second.MustValue())

	f.clock.Advance(61 * time.Second)
	dispatch.Send[productView](ctx, d, getProduct{ID: 3})
	assert.Equal(t, 2, calls)
}

func TestSend_CachesAbsenceForRequestTTLByDefault(t *testing.T) {
	f := newFixture(t)
	reg := dispatch.NewRegistry()
	calls := 0
	dispatch.Register(reg, dispatch.HandlerFunc[getProduct, *productView](
		func(context.Context, getProduct) (dispatch.Outcome[*productView], error) {
			calls++
			return dispatch.Succeeded[*productView](nil), nil
		}))
	d := build(t, reg, f.opts)
	ctx := context.Background()

	dispatch.Send[*productView](ctx, d, getProduct{ID: 9})
	f.clock.Advance(30 * time.Second)
	result := dispatch.Send[*productView](ctx, d, getProduct{ID: 9})

	require.True(t, result.IsSuccess())
	assert.Nil(t, result.MustValue())
	assert.Equal(t, 1, calls)
}

func TestSend_AbsentCacheTTLShortensAbsence(t *testing.T) {
	f := newFixture(t)
	f.opts.AbsentCacheTTL = 5 * time.Second
	reg := dispatch.NewRegistry()
	calls := 0
	dispatch.Register(reg, dispatch.HandlerFunc[getProduct, productView](
		func(context.Context, getProduct) (dispatch.Outcome[productView], error) {
			calls++
			return dispatch.Failed[productView]("product not found"), nil
		}))
	d := build(t, reg, f.opts)
	ctx := context.Background()

	dispatch.Send[productView](ctx, d, getProduct{ID: 9})
	dispatch.Send[productView](ctx, d, getProduct{ID: 9})
	assert.Equal(t, 1, calls)

	f.clock.Advance(6 * time.Second)
	result := dispatch.Send[productView](ctx, d, getProduct{ID: 9})
	assert.Equal(t, []string{"product not found"}, result.Errors())
	assert.Equal(t, 2, calls)
}

func TestSend_InternalFailureIsNotCached(t *testing.T) {
	f := newFixture(t)
	reg := dispatch.NewRegistry()
	calls := 0
	dispatch.Register(reg, dispatch.HandlerFunc[getProduct, productView](
		func(context.Context, getProduct) (dispatch.Outcome[productView], error) {
			calls++
			return dispatch.Outcome[productView]{}, errors.New("database unavailable")
		}))
	d := build(t, reg, f.opts)
	ctx := context.Background()

	dispatch.Send[productView](ctx, d, getProduct{ID: 1})
	dispatch.Send[productView](ctx, d, getProduct{ID: 1})

	assert.Equal(t, 2, calls)
	assert.Equal(t, 0, f.store.Len())
}

func TestSend_CommandInvalidatesAndPublishes(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	for _, key := range []string{"product:all:1", "product:search:pizza", "product:id:1"} {
		require.NoError(t, f.store.Set(ctx, key, []byte("{}"), time.Hour))
	}

	var delivered []string
	event.Subscribe(f.bus, "ProductCreated", "menu", func(_ context.Context, e productCreated) error {
		delivered = append(delivered, e.Name)
		return nil
	})
	f.bus.Seal()

	reg := dispatch.NewRegistry()
	dispatch.Register(reg, dispatch.HandlerFunc[createProduct, int](
		func(_ context.Context, c createProduct) (dispatch.Outcome[int], error) {
			e := productCreated{
				BaseDomainEvent: shared.NewBaseDomainEvent("ProductCreated", "Product", uuid.New()),
				Name:            c.Name,
			}
			return dispatch.Succeeded(42, e), nil
		}))
	d := build(t, reg, f.opts)

	result := dispatch.Send[int](ctx, d, createProduct{Name: "Pizza", Price: 10})

	require.True(t, result.IsSuccess())
	assert.Equal(t, 42, result.MustValue())
	assert.Equal(t, []string{"Pizza"}, delivered)
	assert.Equal(t, 1, f.store.Len())
	_, found, _ := f.store.Get(ctx, "product:id:1")
	assert.True(t, found)
}

func TestSend_FailureDoesNotPublishOrInvalidate(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	require.NoError(t, f.store.Set(ctx, "product:all:1", []byte("{}"), time.Hour))

	published := 0
	f.bus.SubscribeAll("audit", func(context.Context, shared.DomainEvent) error {
		published++
		return nil
	})

	reg := dispatch.NewRegistry()
	dispatch.Register(reg, dispatch.HandlerFunc[createProduct, int](
		func(context.Context, createProduct) (dispatch.Outcome[int], error) {
			out := dispatch.Failed[int]("price below cost")
			out.Events = []shared.DomainEvent{shared.NewBaseDomainEvent("ProductCreated", "Product", uuid.New())}
			return out, nil
		}))
	d := build(t, reg, f.opts)

	result := dispatch.Send[int](ctx, d, createProduct{Name: "Pizza", Price: 10})

	assert.Equal(t, []string{"price below cost"}, result.Errors())
	assert.Zero(t, published)
	assert.Equal(t, 1, f.store.Len())
}

func TestSend_PublishFailureBecomesInternalFailure(t *testing.T) {
	f := newFixture(t)
	f.bus.SubscribeAll("projection", func(context.Context, shared.DomainEvent) error {
		return errors.New("projection store down")
	})

	reg := dispatch.NewRegistry()
	dispatch.Register(reg, dispatch.HandlerFunc[createProduct, int](
		func(context.Context, createProduct) (dispatch.Outcome[int], error) {
			return dispatch.Succeeded(1, shared.DomainEvent(shared.NewBaseDomainEvent("ProductCreated", "Product", uuid.New()))), nil
		}))
	d := build(t, reg, f.opts)

	result := dispatch.Send[int](context.Background(), d, createProduct{Name: "Pizza", Price: 10})

	assert.True(t, dispatch.IsInternalFailure(result))
	assert.Contains(t, result.Errors()[0], "projection store down")
	assert.Equal(t, map[string]int64{telemetry.OutcomeInternalError: 1}, f.outcomes(t, "CreateProduct"))
}

func TestSend_UnknownRequestType(t *testing.T) {
	d := build(t, dispatch.NewRegistry(), dispatch.Options{Logger: zaptest.NewLogger(t)})

	result := dispatch.Send[int](context.Background(), d, unregistered{})

	assert.True(t, dispatch.IsInternalFailure(result))
	assert.Contains(t, result.Errors()[0], "no handler registered")
}

func TestSend_ResultTypeMismatch(t *testing.T) {
	reg := dispatch.NewRegistry()
	dispatch.Register(reg, dispatch.HandlerFunc[createProduct, int](
		func(context.Context, createProduct) (dispatch.Outcome[int], error) {
			return dispatch.Succeeded(1), nil
		}))
	d := build(t, reg, dispatch.Options{})

	result := dispatch.Send[string](context.Background(), d, createProduct{Name: "Pizza", Price: 1})

	assert.True(t, dispatch.IsInternalFailure(result))
}

func TestBuild_ReportsDuplicateAndMissingHandlers(t *testing.T) {
	reg := dispatch.NewRegistry()
	h := dispatch.HandlerFunc[createProduct, int](func(context.Context, createProduct) (dispatch.Outcome[int], error) {
		return dispatch.Succeeded(1), nil
	})
	dispatch.Register(reg, h)
	dispatch.Register(reg, h)

	d, err := reg.Build(dispatch.Options{}, createProduct{}, getProduct{})

	require.Error(t, err)
	assert.Nil(t, d)
	assert.ErrorIs(t, err, dispatch.ErrDuplicateHandler)
	assert.ErrorIs(t, err, dispatch.ErrMissingHandler)
	assert.Contains(t, err.Error(), "getProduct")
}

func TestBuild_RequiredHandlersPresent(t *testing.T) {
	reg := dispatch.NewRegistry()
	dispatch.Register(reg, dispatch.HandlerFunc[getProduct, productView](
		func(context.Context, getProduct) (dispatch.Outcome[productView], error) {
			return dispatch.Succeeded(productView{}), nil
		}))

	d, err := reg.Build(dispatch.Options{}, getProduct{})
	require.NoError(t, err)
	assert.NotNil(t, d)
	assert.True(t, reg.Registered(getProduct{}))
	assert.False(t, reg.Registered(unregistered{}))
}

func TestSend_WithoutCacheRunsHandlerEachTime(t *testing.T) {
	reg := dispatch.NewRegistry()
	calls := 0
	dispatch.Register(reg, dispatch.HandlerFunc[getProduct, productView](
		func(context.Context, getProduct) (dispatch.Outcome[productView], error) {
			calls++
			return dispatch.Succeeded(productView{}), nil
		}))
	d := build(t, reg, dispatch.Options{})

	dispatch.Send[productView](context.Background(), d, getProduct{ID: 1})
	dispatch.Send[productView](context.Background(), d, getProduct{ID: 1})
	assert.Equal(t, 2, calls)
}

func TestSend_ConcurrentDispatch(t *testing.T) {
	f := newFixture(t)
	reg := dispatch.NewRegistry()
	dispatch.Register(reg, dispatch.HandlerFunc[getProduct, productView](
		func(_ context.Context, q getProduct) (dispatch.Outcome[productView], error) {
			return dispatch.Succeeded(productView{ID: q.ID}), nil
		}))
	d := build(t, reg, f.opts)

	var wg sync.WaitGroup
	for i := 1; i <= 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			result := dispatch.Send[productView](context.Background(), d, getProduct{ID: i%5 + 1})
			assert.Equal(t, i%5+1, result.MustValue().ID)
		}()
	}
	wg.Wait()
}

func TestKindOf(t *testing.T) {
	assert.Equal(t, dispatch.KindQuery, dispatch.KindOf(getProduct{}))
	assert.Equal(t, dispatch.KindCommand, dispatch.KindOf(createProduct{}))
	assert.Equal(t, dispatch.KindRequest, dispatch.KindOf(unregistered{}))
}

type pricedItem struct {
	dispatch.QueryBase
	Price int `json:"price"`
}

func (p pricedItem) OperationName() string { return "PricedItem" }

type namelessRequest struct{}

func (namelessRequest) OperationName() string { panic("no name") }

type sealedView struct {
	token string
}

func TestSend_EmptyOutcomeBecomesInternalFailure(t *testing.T) {
	f := newFixture(t)
	reg := dispatch.NewRegistry()
	dispatch.Register(reg, dispatch.HandlerFunc[createProduct, int](
		func(context.Context, createProduct) (dispatch.Outcome[int], error) {
			return dispatch.Outcome[int]{}, nil
		}))
	d := build(t, reg, f.opts)

	result := dispatch.Send[int](context.Background(), d, createProduct{Name: "Pizza", Price: 10})

	require.True(t, result.IsFailure())
	assert.True(t, dispatch.IsInternalFailure(result))
	assert.Contains(t, result.Errors()[0], "empty outcome")
	assert.Equal(t, map[string]int64{telemetry.OutcomeInternalError: 1}, f.outcomes(t, "CreateProduct"))

	body, err := result.MarshalJSON()
	require.NoError(t, err)
	assert.Contains(t, string(body), `"errors":["internal error: handler returned an empty outcome"]`)
}

func TestSend_NilPointerRequestIsRejected(t *testing.T) {
	reg := dispatch.NewRegistry()
	called := false
	dispatch.Register(reg, dispatch.HandlerFunc[*pricedItem, int](
		func(_ context.Context, p *pricedItem) (dispatch.Outcome[int], error) {
			called = true
			return dispatch.Succeeded(p.Price), nil
		}))
	d := build(t, reg, dispatch.Options{Logger: zaptest.NewLogger(t)})

	var result shared.Result[int]
	require.NotPanics(t, func() {
		result = dispatch.Send[int](context.Background(), d, (*pricedItem)(nil))
	})

	assert.True(t, dispatch.IsInternalFailure(result))
	assert.False(t, called)

	result = dispatch.Send[int](context.Background(), d, &pricedItem{Price: 12})
	assert.Equal(t, 12, result.MustValue())
}

func TestSend_PanickingOperationNameIsContained(t *testing.T) {
	f := newFixture(t)
	reg := dispatch.NewRegistry()
	dispatch.Register(reg, dispatch.HandlerFunc[namelessRequest, int](
		func(context.Context, namelessRequest) (dispatch.Outcome[int], error) {
			return dispatch.Outcome[int]{}, errors.New("lookup failed")
		}))
	d := build(t, reg, f.opts)

	var result shared.Result[int]
	require.NotPanics(t, func() {
		result = dispatch.Send[int](context.Background(), d, namelessRequest{})
	})

	assert.True(t, dispatch.IsInternalFailure(result))
	assert.Equal(t, map[string]int64{telemetry.OutcomeInternalError: 1}, f.outcomes(t, "unknown"))
}

func TestBuild_RejectsInterfaceRequestType(t *testing.T) {
	reg := dispatch.NewRegistry()
	dispatch.Register(reg, dispatch.HandlerFunc[dispatch.Request, int](
		func(context.Context, dispatch.Request) (dispatch.Outcome[int], error) {
			return dispatch.Succeeded(1), nil
		}))

	d, err := reg.Build(dispatch.Options{})

	assert.Nil(t, d)
	assert.ErrorIs(t, err, dispatch.ErrInterfaceRequest)
}

func TestBuild_RejectsCacheableQueryWithLossyResult(t *testing.T) {
	reg := dispatch.NewRegistry()
	dispatch.Register(reg, dispatch.HandlerFunc[getProduct, sealedView](
		func(context.Context, getProduct) (dispatch.Outcome[sealedView], error) {
			return dispatch.Succeeded(sealedView{token: "t"}), nil
		}))

	d, err := reg.Build(dispatch.Options{})

	assert.Nil(t, d)
	assert.ErrorIs(t, err, dispatch.ErrUncacheableResult)
	assert.ErrorIs(t, err, cache.ErrLossyValue)
	assert.False(t, reg.Registered(getProduct{}))
}
