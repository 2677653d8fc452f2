package ratelimit

import (
	"context"
	"sync"
	"time"

	"loyalty-core/internal/pkg/clock"
)

// MemoryLimiter is a process-local sliding window used when no Redis address
// is configured, and in tests where the clock is controlled.
type MemoryLimiter struct {
	mu    sync.Mutex
	clock clock.Clock
	calls map[string][]time.Time
}

func NewMemoryLimiter(clk clock.Clock) *MemoryLimiter {
	return &MemoryLimiter{
		clock: clk,
		calls: make(map[string][]time.Time),
	}
}

func (l *MemoryLimiter) Allow(_ context.Context, key string, limit int, window time.Duration) (bool, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.clock.Now()
	cutoff := now.Add(-window)

	kept := l.calls[key][:0]
	for _, t := range l.calls[key] {
		if t.After(cutoff) {
			kept = append(kept, t)
		}
	}

	if len(kept) >= limit {
		l.calls[key] = kept
		return false, nil
	}

	l.calls[key] = append(kept, now)
	return true, nil
}
