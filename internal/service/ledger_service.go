// Package service is the application layer between the HTTP API and the
// ledger: it times and counts operations, logs outcomes and fans committed
// changes out to caches, the event bus and operators.
package service

import (
	"context"
	"log/slog"

	"github.com/ethereum/go-ethereum/common"

	"github.com/alanyoungcy/arenaledger/internal/domain"
	"github.com/alanyoungcy/arenaledger/internal/ledger"
	"github.com/alanyoungcy/arenaledger/internal/metrics"
)

// LeaderboardReader serves the aggregated leaderboard.
type LeaderboardReader interface {
	Get(ctx context.Context, limit int) (domain.Leaderboard, error)
	Rebuild(ctx context.Context) (domain.Leaderboard, error)
}

// LedgerService wraps the ledger's operations for the API.
type LedgerService struct {
	ledger   *ledger.Ledger
	board    LeaderboardReader
	archiver domain.EventArchiver
	logger   *slog.Logger
}

// NewLedgerService creates a LedgerService. board and archiver may be nil;
// the corresponding calls then fail with a state error.
func NewLedgerService(l *ledger.Ledger, board LeaderboardReader, archiver domain.EventArchiver, logger *slog.Logger) *LedgerService {
	return &LedgerService{
		ledger:   l,
		board:    board,
		archiver: archiver,
		logger:   logger.With(slog.String("component", "ledger_service")),
	}
}

// Ledger exposes the underlying state container.
func (s *LedgerService) Ledger() *ledger.Ledger { return s.ledger }

func (s *LedgerService) record(ctx context.Context, op string, err error, attrs ...slog.Attr) {
	metrics.RecordOp(op, err)
	if err == nil {
		s.logger.LogAttrs(ctx, slog.LevelInfo, op, attrs...)
		return
	}
	attrs = append(attrs, slog.String("error", err.Error()))
	level := slog.LevelInfo
	if domain.KindOf(err) == 0 {
		level = slog.LevelError
	}
	s.logger.LogAttrs(ctx, level, op+" rejected", attrs...)
}

// CreateMarket opens a market and returns its view.
func (s *LedgerService) CreateMarket(ctx context.Context, creator common.Address, req ledger.CreateMarketRequest) (domain.MarketView, error) {
	id, err := s.ledger.CreateMarket(ctx, creator, req)
	s.record(ctx, "create_market", err,
		slog.String("creator", creator.Hex()),
		slog.Uint64("market_id", uint64(id)),
	)
	if err != nil {
		return domain.MarketView{}, err
	}
	return s.ledger.View(id)
}

// PlaceBet stakes amount on outcome.
func (s *LedgerService) PlaceBet(ctx context.Context, bettor common.Address, id domain.MarketID, outcome int, amount domain.Amount, accessCode string) (domain.Stake, error) {
	stake, err := s.ledger.PlaceBet(ctx, bettor, id, outcome, amount, accessCode)
	s.record(ctx, "place_bet", err,
		slog.String("bettor", bettor.Hex()),
		slog.Uint64("market_id", uint64(id)),
		slog.Int("outcome", outcome),
		slog.String("amount", amount.String()),
	)
	return stake, err
}

// ResolveMarket declares the winning outcome.
func (s *LedgerService) ResolveMarket(ctx context.Context, caller common.Address, id domain.MarketID, winning int) (domain.MarketResolved, error) {
	res, err := s.ledger.ResolveMarket(ctx, caller, id, winning)
	s.record(ctx, "resolve_market", err,
		slog.String("caller", caller.Hex()),
		slog.Uint64("market_id", uint64(id)),
		slog.Int("winning_outcome", winning),
	)
	return res, err
}

// ClaimWinnings pays out a winning stake.
func (s *LedgerService) ClaimWinnings(ctx context.Context, bettor common.Address, id domain.MarketID) (domain.Amount, error) {
	payout, err := s.ledger.ClaimWinnings(ctx, bettor, id)
	s.record(ctx, "claim_winnings", err,
		slog.String("bettor", bettor.Hex()),
		slog.Uint64("market_id", uint64(id)),
		slog.String("payout", payout.String()),
	)
	return payout, err
}

// Leaderboard returns the top limit players.
func (s *LedgerService) Leaderboard(ctx context.Context, limit int) (domain.Leaderboard, error) {
	if s.board == nil {
		return domain.Leaderboard{}, domain.Statef("leaderboard", "leaderboard is disabled")
	}
	return s.board.Get(ctx, limit)
}

// RebuildLeaderboard forces a leaderboard rebuild.
func (s *LedgerService) RebuildLeaderboard(ctx context.Context) (domain.Leaderboard, error) {
	if s.board == nil {
		return domain.Leaderboard{}, domain.Statef("leaderboard", "leaderboard is disabled")
	}
	board, err := s.board.Rebuild(ctx)
	metrics.RecordOp("rebuild_leaderboard", err)
	return board, err
}

// Archive exports the next batch of events.
func (s *LedgerService) Archive(ctx context.Context) (domain.ArchiveResult, error) {
	if s.archiver == nil {
		return domain.ArchiveResult{}, domain.Statef("archive", "archive is disabled")
	}
	res, err := s.archiver.ArchiveEvents(ctx)
	metrics.RecordOp("archive", err)
	return res, err
}
