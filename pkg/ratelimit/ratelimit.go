// Package ratelimit provides fixed-window rate limiting keyed by
// (subject, operation). An in-memory implementation serves single-process
// deployments; a Redis-backed implementation shares counters across
// processes. Both satisfy the guard's RateLimiter interface.
package ratelimit

import (
	"context"
	"sync"
	"time"

	lru "github.com/hashicorp/golang-lru/v2/expirable"
)

// Config defines fixed-window rate limit settings.
type Config struct {
	// Limit is the max invocations allowed per subject within the window.
	Limit int
	// Window is the fixed window length.
	Window time.Duration
}

// SensitiveOperationConfig returns the default limit for sensitive
// state-changing operations: at most 5 invocations per subject per minute.
func SensitiveOperationConfig() Config {
	return Config{
		Limit:  5,
		Window: time.Minute,
	}
}

// defaultMaxCounters bounds the in-memory counter map. Evicting a live
// counter under-counts for that subject, which is acceptable degradation,
// same as counters resetting on process restart.
const defaultMaxCounters = 16384

type window struct {
	start time.Time
	count int
}

// MemoryLimiter implements fixed-window counting with an in-process map.
// Counters live in an expirable LRU so stale windows evict themselves;
// exactness across restarts is not required.
type MemoryLimiter struct {
	config   Config
	mu       sync.Mutex
	counters *lru.LRU[string, *window]
}

// NewMemoryLimiter creates a new in-memory fixed-window limiter.
func NewMemoryLimiter(config Config) *MemoryLimiter {
	if config.Limit <= 0 || config.Window <= 0 {
		config = SensitiveOperationConfig()
	}
	return &MemoryLimiter{
		config:   config,
		counters: lru.NewLRU[string, *window](defaultMaxCounters, nil, 2*config.Window),
	}
}

// Allow atomically increments the (subject, operation) counter for the
// current window and compares it to the limit.
func (l *MemoryLimiter) Allow(ctx context.Context, subjectID, operationKey string) (bool, error) {
	key := operationKey + ":" + subjectID
	now := time.Now()

	l.mu.Lock()
	defer l.mu.Unlock()

	w, ok := l.counters.Get(key)
	if !ok || now.Sub(w.start) >= l.config.Window {
		w = &window{start: now}
		l.counters.Add(key, w)
	}

	w.count++
	return w.count <= l.config.Limit, nil
}

// Remaining returns how many invocations the subject has left in the
// current window.
func (l *MemoryLimiter) Remaining(subjectID, operationKey string) int {
	key := operationKey + ":" + subjectID

	l.mu.Lock()
	defer l.mu.Unlock()

	w, ok := l.counters.Get(key)
	if !ok || time.Since(w.start) >= l.config.Window {
		return l.config.Limit
	}
	remaining := l.config.Limit - w.count
	if remaining < 0 {
		remaining = 0
	}
	return remaining
}
