package leaderboard

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/alanyoungcy/arenaledger/internal/domain"
)

const pageSize = 1000

// Service builds the leaderboard from the journal and keeps the latest copy
// in the cache.
type Service struct {
	events domain.EventSource
	cache  domain.LeaderboardCache
	ttl    time.Duration
	now    func() time.Time
	logger *slog.Logger

	// mu serialises rebuilds; concurrent callers wait for the running one.
	mu sync.Mutex
}

// NewService creates a Service. cache may be nil, in which case every Get
// rebuilds.
func NewService(events domain.EventSource, cache domain.LeaderboardCache, ttl time.Duration, logger *slog.Logger) *Service {
	return &Service{
		events: events,
		cache:  cache,
		ttl:    ttl,
		now:    func() time.Time { return time.Now().UTC() },
		logger: logger.With(slog.String("component", "leaderboard")),
	}
}

// Build replays the whole event log.
func (s *Service) Build(ctx context.Context) (domain.Leaderboard, error) {
	agg := NewAggregator()
	var after uint64
	for {
		page, err := s.events.ListEventsAfter(ctx, after, pageSize)
		if err != nil {
			return domain.Leaderboard{}, fmt.Errorf("leaderboard: list events after %d: %w", after, err)
		}
		for _, evt := range page {
			if err := agg.Apply(evt); err != nil {
				return domain.Leaderboard{}, fmt.Errorf("leaderboard: apply event %d: %w", evt.Seq, err)
			}
		}
		if len(page) < pageSize {
			break
		}
		after = page[len(page)-1].Seq
	}

	return domain.Leaderboard{
		BuiltAt: s.now(),
		UpToSeq: agg.LastSeq(),
		Markets: agg.Markets(),
		Entries: agg.Entries(),
	}, nil
}

// Rebuild builds the leaderboard and replaces the cached copy.
func (s *Service) Rebuild(ctx context.Context) (domain.Leaderboard, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	start := time.Now()
	board, err := s.Build(ctx)
	if err != nil {
		return domain.Leaderboard{}, err
	}
	if s.cache != nil {
		if err := s.cache.Set(ctx, board, s.ttl); err != nil {
			s.logger.WarnContext(ctx, "leaderboard cache write failed", slog.String("error", err.Error()))
		}
	}
	s.logger.InfoContext(ctx, "leaderboard rebuilt",
		slog.Uint64("up_to_seq", board.UpToSeq),
		slog.Int("players", len(board.Entries)),
		slog.Duration("took", time.Since(start)),
	)
	return board, nil
}

// Get returns the top limit entries, rebuilding on a cache miss. A
// non-positive limit returns every entry.
func (s *Service) Get(ctx context.Context, limit int) (domain.Leaderboard, error) {
	var board domain.Leaderboard
	var err error
	if s.cache != nil {
		board, err = s.cache.Get(ctx)
	} else {
		err = domain.ErrNotFound
	}
	if err != nil {
		if !errors.Is(err, domain.ErrNotFound) {
			s.logger.WarnContext(ctx, "leaderboard cache read failed", slog.String("error", err.Error()))
		}
		board, err = s.Rebuild(ctx)
		if err != nil {
			return domain.Leaderboard{}, err
		}
	}
	if limit > 0 && len(board.Entries) > limit {
		board.Entries = board.Entries[:limit]
	}
	return board, nil
}
