package redis

import (
	"context"
	"fmt"

	"github.com/redis/go-redis/v9"

	"github.com/alanyoungcy/arenaledger/internal/domain"
)

// streamMaxLen caps the event stream (XADD MAXLEN ~).
const streamMaxLen int64 = 10000

// EventBus implements domain.EventBus. Live consumers subscribe to the
// pub/sub channel; consumers that reconnect catch up from the capped stream,
// whose entries carry the ledger sequence so they can resume by seq.
type EventBus struct {
	rdb *redis.Client
}

// NewEventBus creates an EventBus backed by the given Client.
func NewEventBus(c *Client) *EventBus {
	return &EventBus{rdb: c.Underlying()}
}

// Publish sends payload on a pub/sub channel.
func (b *EventBus) Publish(ctx context.Context, channel string, payload []byte) error {
	if err := b.rdb.Publish(ctx, channel, payload).Err(); err != nil {
		return fmt.Errorf("redis: publish %s: %w", channel, err)
	}
	return nil
}

// Append adds one event to stream, trimming it to roughly streamMaxLen
// entries.
func (b *EventBus) Append(ctx context.Context, stream string, evt domain.Event, payload []byte) error {
	err := b.rdb.XAdd(ctx, &redis.XAddArgs{
		Stream: stream,
		MaxLen: streamMaxLen,
		Approx: true,
		Values: streamValues(evt, payload),
	}).Err()
	if err != nil {
		return fmt.Errorf("redis: stream append %s seq %d: %w", stream, evt.Seq, err)
	}
	return nil
}

func streamValues(evt domain.Event, payload []byte) map[string]any {
	return map[string]any{
		"seq":       evt.Seq,
		"type":      string(evt.Type),
		"market_id": uint64(evt.MarketID),
		"payload":   payload,
	}
}

var _ domain.EventBus = (*EventBus)(nil)
