package redis

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/alanyoungcy/arenaledger/internal/domain"
)

// NonceStore implements domain.NonceStore with SET NX PX, one key per
// signer and nonce.
type NonceStore struct {
	rdb *redis.Client
}

// NewNonceStore creates a NonceStore backed by the given Client.
func NewNonceStore(c *Client) *NonceStore {
	return &NonceStore{rdb: c.Underlying()}
}

func nonceKey(signer, nonce string) string {
	return "nonce:" + strings.ToLower(signer) + ":" + strings.ToLower(nonce)
}

// Claim records nonce for signer. It returns false if the key already exists.
func (s *NonceStore) Claim(ctx context.Context, signer, nonce string, ttl time.Duration) (bool, error) {
	ok, err := s.rdb.SetNX(ctx, nonceKey(signer, nonce), 1, ttl).Result()
	if err != nil {
		return false, fmt.Errorf("redis: claim nonce: %w", err)
	}
	return ok, nil
}

var _ domain.NonceStore = (*NonceStore)(nil)
