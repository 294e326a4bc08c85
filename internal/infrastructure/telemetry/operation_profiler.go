package telemetry

import (
	"context"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// Profiler measures named operations.
//
// fn returns the attributes describing how the operation ended (typically the outcome);
// they are recorded together with attrs on both the duration histogram and the counter.
type Profiler interface {
	Measure(ctx context.Context, operation string, fn func(context.Context) []attribute.KeyValue, attrs ...attribute.KeyValue)
}

// OperationProfiler records operation duration and count through a MetricsSink,
// wraps the operation in a span and tags it with pyroscope profiling labels.
type OperationProfiler struct {
	sink   MetricsSink
	tracer trace.Tracer
	now    func() time.Time
}

// OperationProfilerOption configures an OperationProfiler
type OperationProfilerOption func(*OperationProfiler)

// WithTracer overrides the tracer used for operation spans
func WithTracer(tracer trace.Tracer) OperationProfilerOption {
	return func(p *OperationProfiler) {
		if tracer != nil {
			p.tracer = tracer
		}
	}
}

// WithClock overrides the time source
func WithClock(now func() time.Time) OperationProfilerOption {
	return func(p *OperationProfiler) {
		if now != nil {
			p.now = now
		}
	}
}

// NewOperationProfiler creates a profiler that records through sink.
// A nil sink records nothing.
func NewOperationProfiler(sink MetricsSink, opts ...OperationProfilerOption) *OperationProfiler {
	if sink == nil {
		sink = NopSink{}
	}
	p := &OperationProfiler{
		sink:   sink,
		tracer: otel.Tracer(TracerName),
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Measure implements Profiler
func (p *OperationProfiler) Measure(ctx context.Context, operation string, fn func(context.Context) []attribute.KeyValue, attrs ...attribute.KeyValue) {
	ctx, span := p.tracer.Start(ctx, operation, trace.WithAttributes(attrs...))
	defer span.End()

	var outcome []attribute.KeyValue
	start := p.now()
	WithProfilingLabels(ctx, OperationLabels(operation, nil), func(c context.Context) {
		outcome = fn(c)
	})
	elapsed := p.now().Sub(start)

	all := make([]attribute.KeyValue, 0, len(attrs)+len(outcome)+1)
	all = append(all, AttrOperation.String(operation))
	all = append(all, attrs...)
	all = append(all, outcome...)

	span.SetAttributes(outcome...)
	if failed(outcome) {
		span.SetStatus(codes.Error, operation+" failed")
	}

	p.sink.RecordDuration(ctx, MetricOperationDuration, elapsed, all...)
	p.sink.IncCounter(ctx, MetricOperationTotal, all...)
}

func failed(attrs []attribute.KeyValue) bool {
	for _, a := range attrs {
		if a.Key == AttrOutcome && a.Value.AsString() == OutcomeInternalError {
			return true
		}
	}
	return false
}

// NopProfiler runs the operation without recording anything.
type NopProfiler struct{}

// Measure implements Profiler
func (NopProfiler) Measure(ctx context.Context, _ string, fn func(context.Context) []attribute.KeyValue, _ ...attribute.KeyValue) {
	fn(ctx)
}
