package middleware

import (
	"context"
	"sync"
	"time"

	"github.com/charlesng35/authcore/internal/cache"
)

// RateStore counts hits for a key within a fixed window and reports the time left in it.
type RateStore interface {
	Increment(ctx context.Context, key string, window time.Duration) (count int, ttl time.Duration, err error)
}

const (
	defaultRateWindow = time.Minute
	sweepInterval     = time.Minute
)

// MemoryRateStore keeps fixed-window counters in process memory. It suits a single
// instance; replicas each see their own counts.
type MemoryRateStore struct {
	mu      sync.Mutex
	windows map[string]rateWindow
	now     func() time.Time
}

type rateWindow struct {
	hits    int
	resetAt time.Time
}

// NewMemoryRateStore returns a MemoryRateStore whose expired windows are swept every
// minute until ctx is cancelled.
func NewMemoryRateStore(ctx context.Context) *MemoryRateStore {
	store := &MemoryRateStore{windows: make(map[string]rateWindow), now: time.Now}
	go store.sweepUntilDone(ctx)
	return store
}

func (s *MemoryRateStore) sweepUntilDone(ctx context.Context) {
	ticker := time.NewTicker(sweepInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.sweep()
		}
	}
}

// sweep drops windows that have closed and returns how many remain.
func (s *MemoryRateStore) sweep() int {
	now := s.now()
	s.mu.Lock()
	defer s.mu.Unlock()
	for key, w := range s.windows {
		if !now.Before(w.resetAt) {
			delete(s.windows, key)
		}
	}
	return len(s.windows)
}

// Increment records a hit for key.
func (s *MemoryRateStore) Increment(_ context.Context, key string, window time.Duration) (int, time.Duration, error) {
	if window <= 0 {
		window = defaultRateWindow
	}
	now := s.now()

	s.mu.Lock()
	defer s.mu.Unlock()

	w, ok := s.windows[key]
	if !ok || !now.Before(w.resetAt) {
		w = rateWindow{resetAt: now.Add(window)}
	}
	w.hits++
	s.windows[key] = w
	return w.hits, w.resetAt.Sub(now), nil
}

// cacheRateStore counts in a shared cache.Store so every replica sees the same window.
type cacheRateStore struct {
	store cache.Store
}

// NewCacheRateStore builds a RateStore on Redis or the database cache table. A nil
// store yields a nil RateStore, which disables limiting.
func NewCacheRateStore(store cache.Store) RateStore {
	if store == nil {
		return nil
	}
	return cacheRateStore{store: store}
}

func (s cacheRateStore) Increment(ctx context.Context, key string, window time.Duration) (int, time.Duration, error) {
	if window <= 0 {
		window = defaultRateWindow
	}
	hits, ttl, err := s.store.IncrementWithTTL(ctx, key, window)
	if err != nil {
		return 0, 0, err
	}
	return int(hits), ttl, nil
}
