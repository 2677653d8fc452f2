// Package ratelimit provides a sliding-window request limiter keyed by
// (user, action). The count-and-decide step is atomic, so concurrent calls
// for the same key never admit more than the configured limit per window.
package ratelimit

import (
	"context"
	"time"
)

type Limiter interface {
	// Allow reports whether one more call for key is admitted. Over any time
	// span equal to window, strictly more than limit calls never succeed.
	Allow(ctx context.Context, key string, limit int, window time.Duration) (bool, error)
}

// Key builds the canonical limiter key for a user-scoped action.
func Key(action, userID string) string {
	return "ratelimit:" + action + ":" + userID
}
