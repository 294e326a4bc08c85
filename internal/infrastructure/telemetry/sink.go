package telemetry

import (
	"context"
	"sync"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.uber.org/zap"
)

// MetricsSink accepts counters, gauges and durations by name.
// Attributes must be low cardinality.
type MetricsSink interface {
	IncCounter(ctx context.Context, name string, attrs ...attribute.KeyValue)
	RecordGauge(ctx context.Context, name string, value float64, attrs ...attribute.KeyValue)
	RecordDuration(ctx context.Context, name string, d time.Duration, attrs ...attribute.KeyValue)
}

// MeterSink is a MetricsSink backed by an OpenTelemetry meter.
// Instruments are created on first use and reused afterwards.
type MeterSink struct {
	meter  metric.Meter
	logger *zap.Logger

	mu         sync.Mutex
	counters   map[string]*Counter
	gauges     map[string]*FloatGauge
	histograms map[string]*Histogram
}

// MeterSinkOption configures a MeterSink
type MeterSinkOption func(*MeterSink)

// WithSinkLogger sets the logger used to report instrument creation failures
func WithSinkLogger(logger *zap.Logger) MeterSinkOption {
	return func(s *MeterSink) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// NewMeterSink creates a sink recording through the given meter
func NewMeterSink(meter metric.Meter, opts ...MeterSinkOption) *MeterSink {
	s := &MeterSink{
		meter:      meter,
		logger:     zap.NewNop(),
		counters:   make(map[string]*Counter),
		gauges:     make(map[string]*FloatGauge),
		histograms: make(map[string]*Histogram),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// IncCounter implements MetricsSink
func (s *MeterSink) IncCounter(ctx context.Context, name string, attrs ...attribute.KeyValue) {
	s.mu.Lock()
	c, ok := s.counters[name]
	if !ok {
		var err error
		c, err = NewCounter(s.meter, name, "", "1")
		if err != nil {
			s.mu.Unlock()
			s.logger.Warn("Failed to create counter", zap.String("metric", name), zap.Error(err))
			return
		}
		s.counters[name] = c
	}
	s.mu.Unlock()

	c.Inc(ctx, attrs...)
}

// RecordGauge implements MetricsSink
func (s *MeterSink) RecordGauge(ctx context.Context, name string, value float64, attrs ...attribute.KeyValue) {
	s.mu.Lock()
	g, ok := s.gauges[name]
	if !ok {
		var err error
		g, err = NewFloatGauge(s.meter, name, "", "1")
		if err != nil {
			s.mu.Unlock()
			s.logger.Warn("Failed to create gauge", zap.String("metric", name), zap.Error(err))
			return
		}
		s.gauges[name] = g
	}
	s.mu.Unlock()

	g.Record(ctx, value, attrs...)
}

// RecordDuration implements MetricsSink. Durations are recorded in seconds.
func (s *MeterSink) RecordDuration(ctx context.Context, name string, d time.Duration, attrs ...attribute.KeyValue) {
	s.mu.Lock()
	h, ok := s.histograms[name]
	if !ok {
		var err error
		h, err = NewHistogram(s.meter, HistogramOpts{
			Name:       name,
			Unit:       "s",
			Boundaries: OperationDurationBuckets,
		})
		if err != nil {
			s.mu.Unlock()
			s.logger.Warn("Failed to create histogram", zap.String("metric", name), zap.Error(err))
			return
		}
		s.histograms[name] = h
	}
	s.mu.Unlock()

	h.RecordDuration(ctx, d, attrs...)
}

// NopSink discards everything.
type NopSink struct{}

// IncCounter implements MetricsSink
func (NopSink) IncCounter(context.Context, string, ...attribute.KeyValue) {}

// RecordGauge implements MetricsSink
func (NopSink) RecordGauge(context.Context, string, float64, ...attribute.KeyValue) {}

// RecordDuration implements MetricsSink
func (NopSink) RecordDuration(context.Context, string, time.Duration, ...attribute.KeyValue) {}
