package cache

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"
)

const defaultCleanupInterval = 30 * time.Second

// memoryEntry is a stored value with its expiration time
type memoryEntry struct {
	value     []byte
	expiresAt time.Time
}

func (e memoryEntry) isExpired(now time.Time) bool {
	return !now.Before(e.expiresAt)
}

// MemoryStore is an in-process Store.
// It does not share state across instances; use it for single-instance deployments and tests.
type MemoryStore struct {
	mu      sync.RWMutex
	entries map[string]memoryEntry

	patterns        *patternMatcher
	logger          *zap.Logger
	now             func() time.Time
	cleanupInterval time.Duration
	patternCacheSz  int

	stopCh  chan struct{}
	stopped int32
}

// MemoryStoreOption is a functional option for configuring the store
type MemoryStoreOption func(*MemoryStore)

// WithMemoryLogger sets the logger for the store
func WithMemoryLogger(logger *zap.Logger) MemoryStoreOption {
	return func(s *MemoryStore) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// WithCleanupInterval sets how often expired entries are swept. Zero or less disables the sweeper.
func WithCleanupInterval(d time.Duration) MemoryStoreOption {
	return func(s *MemoryStore) {
		s.cleanupInterval = d
	}
}

// WithPatternCacheSize bounds the compiled pattern memo
func WithPatternCacheSize(size int) MemoryStoreOption {
	return func(s *MemoryStore) {
		s.patternCacheSz = size
	}
}

// WithMemoryClock overrides the time source
func WithMemoryClock(now func() time.Time) MemoryStoreOption {
	return func(s *MemoryStore) {
		if now != nil {
			s.now = now
		}
	}
}

// NewMemoryStore creates an in-memory store and starts its cleanup loop
func NewMemoryStore(opts ...MemoryStoreOption) (*MemoryStore, error) {
	s := &MemoryStore{
		entries:         make(map[string]memoryEntry),
		logger:          zap.NewNop(),
		now:             time.Now,
		cleanupInterval: defaultCleanupInterval,
		patternCacheSz:  defaultPatternCacheSize,
		stopCh:          make(chan struct{}),
	}
	for _, opt := range opts {
		opt(s)
	}

	patterns, err := newPatternMatcher(s.patternCacheSz)
	if err != nil {
		return nil, err
	}
	s.patterns = patterns

	if s.cleanupInterval > 0 {
		go s.cleanupExpired()
	}
	return s, nil
}

// Get implements Store. Expired entries are removed on read.
func (s *MemoryStore) Get(ctx context.Context, key string) ([]byte, bool, error) {
	if err := ctx.Err(); err != nil {
		return nil, false, err
	}

	s.mu.RLock()
	entry, ok := s.entries[key]
	s.mu.RUnlock()
	if !ok {
		return nil, false, nil
	}

	if entry.isExpired(s.now()) {
		s.mu.Lock()
		if current, still := s.entries[key]; still && current.isExpired(s.now()) {
			delete(s.entries, key)
		}
		s.mu.Unlock()
		return nil, false, nil
	}
	return entry.value, true, nil
}

// Set implements Store
func (s *MemoryStore) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if ttl <= 0 {
		return nil
	}

	stored := make([]byte, len(value))
	copy(stored, value)

	s.mu.Lock()
	s.entries[key] = memoryEntry{value: stored, expiresAt: s.now().Add(ttl)}
	s.mu.Unlock()
	return nil
}

// DeletePattern implements Store
func (s *MemoryStore) DeletePattern(ctx context.Context, pattern string) (int, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	g, err := s.patterns.compile(pattern)
	if err != nil {
		return 0, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	removed := 0
	for key := range s.entries {
		if g.Match(key) {
			delete(s.entries, key)
			removed++
		}
	}

	s.logger.Debug("Removed cache entries by pattern",
		zap.String("pattern", pattern),
		zap.Int("removed", removed))
	return removed, nil
}

// Len returns the number of stored entries, including expired ones not yet swept
func (s *MemoryStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.entries)
}

// Close stops the cleanup loop. Safe to call more than once.
func (s *MemoryStore) Close() error {
	if atomic.CompareAndSwapInt32(&s.stopped, 0, 1) {
		close(s.stopCh)
	}
	return nil
}

// cleanupExpired periodically removes expired entries
func (s *MemoryStore) cleanupExpired() {
	ticker := time.NewTicker(s.cleanupInterval)
	defer ticker.Stop()

	for {
		select {
		case <-s.stopCh:
			return
		case <-ticker.C:
			s.sweep()
		}
	}
}

func (s *MemoryStore) sweep() {
	now := s.now()
	s.mu.Lock()
	removed := 0
	for key, entry := range s.entries {
		if entry.isExpired(now) {
			delete(s.entries, key)
			removed++
		}
	}
	s.mu.Unlock()

	if removed > 0 {
		s.logger.Debug("Swept expired cache entries", zap.Int("removed", removed))
	}
}

var _ Store = (*MemoryStore)(nil)
