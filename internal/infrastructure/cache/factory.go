package cache

import (
	"fmt"

	"github.com/restaurant/backend/internal/infrastructure/config"
	"go.uber.org/zap"
)

// StoreFactory creates cache stores based on configuration
type StoreFactory struct {
	redisConfig config.RedisConfig
	cacheConfig config.CacheConfig
	logger      *zap.Logger
	dialRedis   func(RedisConfig, string) (Store, error)
}

// StoreFactoryOption is a functional option for configuring the factory
type StoreFactoryOption func(*StoreFactory)

// WithLogger sets the logger for the factory and the stores it creates
func WithLogger(logger *zap.Logger) StoreFactoryOption {
	return func(f *StoreFactory) {
		if logger != nil {
			f.logger = logger
		}
	}
}

// WithRedisDialer replaces how Redis stores are opened
func WithRedisDialer(dial func(RedisConfig, string) (Store, error)) StoreFactoryOption {
	return func(f *StoreFactory) {
		f.dialRedis = dial
	}
}

// NewStoreFactory creates a new factory
func NewStoreFactory(redisCfg config.RedisConfig, cacheCfg config.CacheConfig, opts ...StoreFactoryOption) *StoreFactory {
	f := &StoreFactory{
		redisConfig: redisCfg,
		cacheConfig: cacheCfg,
		logger:      zap.NewNop(),
		dialRedis: func(cfg RedisConfig, prefix string) (Store, error) {
			return NewRedisStore(cfg, prefix)
		},
	}
	for _, opt := range opts {
		opt(f)
	}
	return f
}

// CreateRedisStore creates a Redis-backed store
func (f *StoreFactory) CreateRedisStore() (Store, error) {
	store, err := f.dialRedis(RedisConfig{
		Host:     f.redisConfig.Host,
		Port:     f.redisConfig.Port,
		Password: f.redisConfig.Password,
		DB:       f.redisConfig.DB,
	}, f.cacheConfig.KeyPrefix)
	if err != nil {
		return nil, fmt.Errorf("failed to create Redis cache store: %w", err)
	}
	return store, nil
}

// CreateMemoryStore creates an in-memory store.
// In-memory stores do not share state across instances, so invalidation on one
// instance is invisible to the others.
func (f *StoreFactory) CreateMemoryStore() (Store, error) {
	return NewMemoryStore(
		WithMemoryLogger(f.logger),
		WithCleanupInterval(f.cacheConfig.CleanupInterval),
		WithPatternCacheSize(f.cacheConfig.PatternCacheSize),
	)
}

// CreateStore creates the configured store. With the redis backend it falls back
// to memory when Redis is unreachable and fallback is allowed.
func (f *StoreFactory) CreateStore() (Store, error) {
	if f.cacheConfig.Backend == "memory" {
		f.logger.Info("using in-memory cache store")
		return f.CreateMemoryStore()
	}

	store, err := f.CreateRedisStore()
	if err == nil {
		f.logger.Info("using Redis cache store", zap.String("addr", f.redisConfig.RedisAddr()))
		return store, nil
	}

	if !f.cacheConfig.AllowMemoryFallback {
		return nil, fmt.Errorf("Redis required for cache but unavailable: %w", err)
	}

	f.logger.Warn("Redis unavailable, falling back to in-memory cache store. "+
		"Invalidations will not propagate across instances.",
		zap.Error(err),
	)
	return f.CreateMemoryStore()
}
