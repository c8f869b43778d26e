package ratelimit

import (
	"context"
	"sync"
)

// ConfigResolver supplies a per-operation limit override. Returning
// ok=false keeps the default config for that operation.
type ConfigResolver func(operationKey string) (Config, bool)

// OperationLimiter routes each operation to its own in-memory limiter so
// operations can carry different limits. The config for an operation is
// resolved on first use and kept for the limiter's lifetime.
type OperationLimiter struct {
	defaults Config
	resolve  ConfigResolver

	mu       sync.Mutex
	limiters map[string]*MemoryLimiter
}

// NewOperationLimiter creates a per-operation limiter. A nil resolver
// applies defaults everywhere.
func NewOperationLimiter(defaults Config, resolve ConfigResolver) *OperationLimiter {
	if defaults.Limit <= 0 || defaults.Window <= 0 {
		defaults = SensitiveOperationConfig()
	}
	return &OperationLimiter{
		defaults: defaults,
		resolve:  resolve,
		limiters: make(map[string]*MemoryLimiter),
	}
}

// Allow delegates to the operation's limiter, creating it on first use.
func (l *OperationLimiter) Allow(ctx context.Context, subjectID, operationKey string) (bool, error) {
	return l.limiterFor(operationKey).Allow(ctx, subjectID, operationKey)
}

// Remaining reports the subject's remaining invocations for the operation.
func (l *OperationLimiter) Remaining(subjectID, operationKey string) int {
	return l.limiterFor(operationKey).Remaining(subjectID, operationKey)
}

func (l *OperationLimiter) limiterFor(operationKey string) *MemoryLimiter {
	l.mu.Lock()
	defer l.mu.Unlock()

	if limiter, ok := l.limiters[operationKey]; ok {
		return limiter
	}

	config := l.defaults
	if l.resolve != nil {
		if override, ok := l.resolve(operationKey); ok && override.Limit > 0 && override.Window > 0 {
			config = override
		}
	}
	limiter := NewMemoryLimiter(config)
	l.limiters[operationKey] = limiter
	return limiter
}
