package service

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	"github.com/alanyoungcy/arenaledger/internal/domain"
	"github.com/alanyoungcy/arenaledger/internal/ledger"
	"github.com/alanyoungcy/arenaledger/internal/metrics"
)

// Redis names for the ledger event feed.
const (
	ChannelLedger = "ch:ledger"
	StreamLedger  = "stream:ledger"
)

// sinkTimeout bounds each best-effort side effect of one event.
const sinkTimeout = 5 * time.Second

// EventNotifier forwards events to operators.
type EventNotifier interface {
	NotifyEvent(ctx context.Context, evt domain.Event) error
}

// Broadcaster pushes events to connected live clients.
type Broadcaster interface {
	Broadcast(evt domain.Event)
}

// Fanout delivers committed ledger changes to every downstream consumer. The
// ledger enqueues from its commit hook without blocking; a single worker
// drains the queue in sequence order. Every sink is best-effort: failures are
// logged and counted, never surfaced to the operation that committed.
type Fanout struct {
	queue    chan domain.Commit
	bus      domain.EventBus
	markets  domain.MarketCache
	notifier EventNotifier
	hub      Broadcaster
	now      func() time.Time
	logger   *slog.Logger
}

// FanoutOption configures a Fanout.
type FanoutOption func(*Fanout)

func WithBus(bus domain.EventBus) FanoutOption { return func(f *Fanout) { f.bus = bus } }

func WithMarketCache(c domain.MarketCache) FanoutOption {
	return func(f *Fanout) { f.markets = c }
}

func WithNotifier(n EventNotifier) FanoutOption { return func(f *Fanout) { f.notifier = n } }

func WithBroadcaster(b Broadcaster) FanoutOption { return func(f *Fanout) { f.hub = b } }

// NewFanout creates a Fanout with a queue of the given capacity.
func NewFanout(buffer int, logger *slog.Logger, opts ...FanoutOption) *Fanout {
	if buffer < 1 {
		buffer = 1
	}
	f := &Fanout{
		queue:  make(chan domain.Commit, buffer),
		now:    time.Now,
		logger: logger.With(slog.String("component", "fanout")),
	}
	for _, opt := range opts {
		opt(f)
	}
	return f
}

// SetBroadcaster attaches the live hub once the server has created it.
// Call before Run.
func (f *Fanout) SetBroadcaster(b Broadcaster) { f.hub = b }

// Enqueue is the ledger commit hook. It never blocks; when the queue is full
// the change is dropped from the live feed (the journal still has it).
func (f *Fanout) Enqueue(c domain.Commit) {
	metrics.RecordEvent(c.Event)
	select {
	case f.queue <- c:
	default:
		metrics.RecordFanoutDrop()
		f.logger.Warn("fan-out queue full, event dropped",
			slog.Uint64("seq", c.Event.Seq),
			slog.String("type", string(c.Event.Type)),
		)
	}
}

// Run drains the queue until ctx is cancelled, then flushes what is left
// with a short deadline.
func (f *Fanout) Run(ctx context.Context) error {
	for {
		select {
		case c := <-f.queue:
			f.deliver(ctx, c)
		case <-ctx.Done():
			f.flush()
			return nil
		}
	}
}

func (f *Fanout) flush() {
	ctx, cancel := context.WithTimeout(context.Background(), sinkTimeout)
	defer cancel()
	for {
		select {
		case c := <-f.queue:
			f.deliver(ctx, c)
		default:
			return
		}
	}
}

func (f *Fanout) deliver(ctx context.Context, c domain.Commit) {
	evt := c.Event
	if f.hub != nil {
		f.hub.Broadcast(evt)
	}

	if f.bus != nil {
		payload, err := json.Marshal(evt)
		if err != nil {
			f.fail(ctx, "encode", evt, err)
		} else {
			f.withTimeout(ctx, "publish", evt, func(ctx context.Context) error {
				return f.bus.Publish(ctx, ChannelLedger, payload)
			})
			f.withTimeout(ctx, "stream", evt, func(ctx context.Context) error {
				return f.bus.Append(ctx, StreamLedger, evt, payload)
			})
		}
	}

	if f.markets != nil {
		view := domain.MarketView{
			Market: c.Market,
			Odds:   ledger.Percentages(c.Market.OutcomePools, c.Market.TotalPool),
			Phase:  c.Market.PhaseAt(f.now()),
		}
		f.withTimeout(ctx, "market_cache", evt, func(ctx context.Context) error {
			return f.markets.Set(ctx, view)
		})
	}

	if f.notifier != nil {
		f.withTimeout(ctx, "notify", evt, func(ctx context.Context) error {
			return f.notifier.NotifyEvent(ctx, evt)
		})
	}
}

func (f *Fanout) withTimeout(ctx context.Context, sink string, evt domain.Event, fn func(context.Context) error) {
	ctx, cancel := context.WithTimeout(ctx, sinkTimeout)
	defer cancel()
	if err := fn(ctx); err != nil {
		f.fail(ctx, sink, evt, err)
	}
}

func (f *Fanout) fail(ctx context.Context, sink string, evt domain.Event, err error) {
	metrics.RecordFanoutError(sink)
	f.logger.WarnContext(ctx, "fan-out sink failed",
		slog.String("sink", sink),
		slog.Uint64("seq", evt.Seq),
		slog.Uint64("market_id", uint64(evt.MarketID)),
		slog.String("error", err.Error()),
	)
}
