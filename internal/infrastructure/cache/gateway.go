package cache

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/restaurant/backend/internal/infrastructure/telemetry"
	"go.uber.org/zap"
)

// Gateway is a get-or-populate cache over a Store.
// Values are JSON encoded. A failing store never fails the caller:
// reads fall through to the factory and writes are best effort.
type Gateway struct {
	store   Store
	logger  *zap.Logger
	metrics telemetry.MetricsSink
}

// GatewayOption is a functional option for configuring the gateway
type GatewayOption func(*Gateway)

// WithGatewayLogger sets the logger for the gateway
func WithGatewayLogger(logger *zap.Logger) GatewayOption {
	return func(g *Gateway) {
		if logger != nil {
			g.logger = logger
		}
	}
}

// WithGatewayMetrics sets the sink receiving hit, miss and error counters
func WithGatewayMetrics(sink telemetry.MetricsSink) GatewayOption {
	return func(g *Gateway) {
		if sink != nil {
			g.metrics = sink
		}
	}
}

// NewGateway creates a gateway over store
func NewGateway(store Store, opts ...GatewayOption) *Gateway {
	g := &Gateway{
		store:   store,
		logger:  zap.NewNop(),
		metrics: telemetry.NopSink{},
	}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

// GetOrSet returns the live cached value for key, or calls factory, caches its
// result for ttl and returns it. Whatever factory returns is cached, including
// nil pointers and empty values. Factory errors are returned and nothing is cached.
// Concurrent misses may each call factory.
//
// Values are stored as JSON, so T must round-trip through encoding/json. When
// CheckCodec rejects T the factory result is returned but never cached.
func GetOrSet[T any](ctx context.Context, g *Gateway, key string, factory func(context.Context) (T, error), ttl time.Duration) (T, error) {
	return GetOrSetFunc(ctx, g, key, factory, func(T) time.Duration { return ttl })
}

// GetOrSetFunc is GetOrSet with a ttl chosen from the produced value.
// A ttl <= 0 returns the value without caching it.
func GetOrSetFunc[T any](ctx context.Context, g *Gateway, key string, factory func(context.Context) (T, error), ttlFor func(T) time.Duration) (T, error) {
	entity := telemetry.AttrEntity.String(entityOf(key))

	if err := CheckCodec[T](); err != nil {
		g.metrics.IncCounter(ctx, telemetry.MetricCacheErrors, entity, telemetry.AttrCacheOp.String("encode"))
		g.logger.Warn("Value type cannot be cached, calling factory directly",
			zap.String("key", key),
			zap.Error(err))
		return factory(ctx)
	}

	data, found, err := g.store.Get(ctx, key)
	switch {
	case err != nil:
		g.metrics.IncCounter(ctx, telemetry.MetricCacheErrors, entity, telemetry.AttrCacheOp.String("get"))
		g.logger.Warn("Cache read failed, calling factory directly",
			zap.String("key", key),
			zap.Error(err))
	case found:
		var value T
		decodeErr := json.Unmarshal(data, &value)
		if decodeErr == nil {
			g.metrics.IncCounter(ctx, telemetry.MetricCacheHits, entity)
			g.logger.Debug("Cache hit", zap.String("key", key))
			return value, nil
		}
		g.metrics.IncCounter(ctx, telemetry.MetricCacheErrors, entity, telemetry.AttrCacheOp.String("decode"))
		g.logger.Warn("Discarding undecodable cache entry",
			zap.String("key", key),
			zap.Error(decodeErr))
	}

	g.metrics.IncCounter(ctx, telemetry.MetricCacheMisses, entity)
	g.logger.Debug("Cache miss", zap.String("key", key))

	value, err := factory(ctx)
	if err != nil {
		return value, err
	}

	ttl := ttlFor(value)
	if ttl <= 0 {
		return value, nil
	}

	encoded, err := json.Marshal(value)
	if err != nil {
		g.metrics.IncCounter(ctx, telemetry.MetricCacheErrors, entity, telemetry.AttrCacheOp.String("encode"))
		g.logger.Warn("Cannot encode value for cache", zap.String("key", key), zap.Error(err))
		return value, nil
	}

	if err := g.store.Set(ctx, key, encoded, ttl); err != nil {
		g.metrics.IncCounter(ctx, telemetry.MetricCacheErrors, entity, telemetry.AttrCacheOp.String("set"))
		g.logger.Warn("Cache write failed", zap.String("key", key), zap.Error(err))
	}
	return value, nil
}

// RemovePattern removes every entry whose key matches a glob pattern (*, ?, [...]).
func (g *Gateway) RemovePattern(ctx context.Context, pattern string) (int, error) {
	removed, err := g.store.DeletePattern(ctx, pattern)
	if err != nil {
		g.metrics.IncCounter(ctx, telemetry.MetricCacheErrors,
			telemetry.AttrEntity.String(entityOf(pattern)),
			telemetry.AttrCacheOp.String("remove_pattern"))
		return removed, fmt.Errorf("failed to remove cache pattern %q: %w", pattern, err)
	}
	g.logger.Debug("Cache entries invalidated",
		zap.String("pattern", pattern),
		zap.Int("removed", removed))
	return removed, nil
}

// Close closes the underlying store
func (g *Gateway) Close() error {
	return g.store.Close()
}

// entityOf returns the first key segment, used as a low-cardinality metric tag
func entityOf(key string) string {
	entity, _, _ := strings.Cut(key, ":")
	if entity == "" || strings.ContainsAny(entity, "*?[") {
		return "unknown"
	}
	return entity
}
