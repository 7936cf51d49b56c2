package domain

import (
	"context"
	"time"
)

// MarketCache holds read snapshots of markets for API consumers.
type MarketCache interface {
	Set(ctx context.Context, view MarketView) error
	Get(ctx context.Context, id MarketID) (MarketView, error)
	Invalidate(ctx context.Context, id MarketID) error
}

// LeaderboardCache holds the most recent leaderboard build.
type LeaderboardCache interface {
	Set(ctx context.Context, board Leaderboard, ttl time.Duration) error
	Get(ctx context.Context) (Leaderboard, error)
}

// RateDecision is the outcome of one rate-limit check.
type RateDecision struct {
	Allowed bool
	// Remaining is the number of requests left in the window, or -1 when
	// unlimited.
	Remaining int
	// RetryAfter is set when the request was refused.
	RetryAfter time.Duration
}

// RateLimiter provides distributed rate limiting.
type RateLimiter interface {
	Allow(ctx context.Context, key string, limit int, window time.Duration) (RateDecision, error)
}

// NonceStore remembers request nonces so a signed request is accepted once.
type NonceStore interface {
	// Claim records nonce for signer for ttl. It reports false when the
	// pair was already claimed.
	Claim(ctx context.Context, signer, nonce string, ttl time.Duration) (bool, error)
}

// Lease is a held distributed lock.
type Lease interface {
	// Extend pushes the expiry out by ttl. It returns ErrLockLost if the
	// lease expired or was taken by someone else.
	Extend(ctx context.Context, ttl time.Duration) error
	Release()
}

// LockManager provides distributed locking.
type LockManager interface {
	Acquire(ctx context.Context, key string, ttl time.Duration) (Lease, error)
}

// EventBus carries committed events to other processes.
type EventBus interface {
	Publish(ctx context.Context, channel string, payload []byte) error
	Append(ctx context.Context, stream string, evt Event, payload []byte) error
}
