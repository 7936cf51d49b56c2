package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/alanyoungcy/arenaledger/internal/domain"
	"github.com/redis/go-redis/v9"
)

const leaderboardKey = "leaderboard:latest"

// LeaderboardCache implements domain.LeaderboardCache as a single JSON string
// with a TTL.
type LeaderboardCache struct {
	rdb *redis.Client
}

// NewLeaderboardCache creates a LeaderboardCache backed by the given Client.
func NewLeaderboardCache(c *Client) *LeaderboardCache {
	return &LeaderboardCache{rdb: c.Underlying()}
}

// Set replaces the cached leaderboard.
func (lc *LeaderboardCache) Set(ctx context.Context, board domain.Leaderboard, ttl time.Duration) error {
	data, err := json.Marshal(board)
	if err != nil {
		return fmt.Errorf("redis: marshal leaderboard: %w", err)
	}
	if err := lc.rdb.Set(ctx, leaderboardKey, data, ttl).Err(); err != nil {
		return fmt.Errorf("redis: set leaderboard: %w", err)
	}
	return nil
}

// Get returns the cached leaderboard or domain.ErrNotFound once it expired.
func (lc *LeaderboardCache) Get(ctx context.Context) (domain.Leaderboard, error) {
	data, err := lc.rdb.Get(ctx, leaderboardKey).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return domain.Leaderboard{}, domain.ErrNotFound
		}
		return domain.Leaderboard{}, fmt.Errorf("redis: get leaderboard: %w", err)
	}
	var board domain.Leaderboard
	if err := json.Unmarshal(data, &board); err != nil {
		return domain.Leaderboard{}, fmt.Errorf("redis: unmarshal leaderboard: %w", err)
	}
	return board, nil
}

// Compile-time interface check.
var _ domain.LeaderboardCache = (*LeaderboardCache)(nil)
