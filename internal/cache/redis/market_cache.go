package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/alanyoungcy/arenaledger/internal/domain"
	"github.com/redis/go-redis/v9"
)

const defaultMarketTTL = 10 * time.Minute

// MarketCache implements domain.MarketCache using Redis hashes holding the
// JSON market view.
//
// Key schema:
//
//	market:{id} - hash with field "data" (JSON view) and "phase"
type MarketCache struct {
	rdb *redis.Client
	ttl time.Duration
}

// NewMarketCache creates a MarketCache backed by the given Client. A zero ttl
// uses the default.
func NewMarketCache(c *Client, ttl time.Duration) *MarketCache {
	if ttl <= 0 {
		ttl = defaultMarketTTL
	}
	return &MarketCache{rdb: c.Underlying(), ttl: ttl}
}

func marketKey(id domain.MarketID) string {
	return "market:" + strconv.FormatUint(uint64(id), 10)
}

// Set stores a market view and refreshes its TTL.
func (mc *MarketCache) Set(ctx context.Context, view domain.MarketView) error {
	data, err := json.Marshal(view)
	if err != nil {
		return fmt.Errorf("redis: marshal market %d: %w", view.ID, err)
	}

	key := marketKey(view.ID)
	pipe := mc.rdb.TxPipeline()
	pipe.HSet(ctx, key, "data", data, "phase", string(view.Phase))
	pipe.Expire(ctx, key, mc.ttl)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("redis: set market %d: %w", view.ID, err)
	}
	return nil
}

// Get retrieves a market view. It returns domain.ErrNotFound when the key
// does not exist.
func (mc *MarketCache) Get(ctx context.Context, id domain.MarketID) (domain.MarketView, error) {
	data, err := mc.rdb.HGet(ctx, marketKey(id), "data").Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return domain.MarketView{}, domain.ErrNotFound
		}
		return domain.MarketView{}, fmt.Errorf("redis: get market %d: %w", id, err)
	}

	var view domain.MarketView
	if err := json.Unmarshal(data, &view); err != nil {
		return domain.MarketView{}, fmt.Errorf("redis: unmarshal market %d: %w", id, err)
	}
	return view, nil
}

// Invalidate removes a market view.
func (mc *MarketCache) Invalidate(ctx context.Context, id domain.MarketID) error {
	if err := mc.rdb.Del(ctx, marketKey(id)).Err(); err != nil {
		return fmt.Errorf("redis: invalidate market %d: %w", id, err)
	}
	return nil
}

// Compile-time interface check.
var _ domain.MarketCache = (*MarketCache)(nil)
