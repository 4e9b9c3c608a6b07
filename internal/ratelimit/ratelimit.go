// Package ratelimit implements per-key fixed-window rate limiting, with a
// single-process in-memory variant and a Redis-backed distributed variant.
package ratelimit

import "context"

// Limiter is the rate-limiter contract. Allow returns true when the caller
// may proceed, false when the per-minute budget for key is exhausted.
type Limiter interface {
	Allow(ctx context.Context, key string) (bool, error)
}
