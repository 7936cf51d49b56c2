package ledger

import (
	"context"
	"log/slog"

	"github.com/alanyoungcy/arenaledger/internal/domain"
	"github.com/ethereum/go-ethereum/common"
)

// authorizeResolver checks caller against the market's resolution mode.
func (l *Ledger) authorizeResolver(op string, m *domain.Market, caller common.Address) error {
	switch m.ResolutionMode {
	case domain.ResolutionManual:
		if caller == m.Creator {
			return nil
		}
		if l.cfg.PlatformOwner != (common.Address{}) && caller == l.cfg.PlatformOwner {
			return nil
		}
		return domain.Authorizationf(op, "%s not authorized to resolve market %d", caller.Hex(), m.ID)
	case domain.ResolutionOracle:
		if l.oracles[caller] {
			return nil
		}
		if len(l.oracles) == 0 {
			return domain.Authorizationf(op, "no oracle configured for market %d", m.ID)
		}
		return domain.Authorizationf(op, "%s not authorized oracle for market %d", caller.Hex(), m.ID)
	default:
		return domain.Validationf(op, "market %d has unknown resolution mode %d", m.ID, m.ResolutionMode)
	}
}

// settle computes the fee split for a market resolving to winning. An empty
// winning pool leaves nothing to distribute, so no fee is taken.
func (l *Ledger) settle(m *domain.Market, winning int) (creatorFee, platformFee, distributable domain.Amount, err error) {
	if m.OutcomePools[winning].IsZero() {
		return domain.Amount{}, domain.Amount{}, domain.Amount{}, nil
	}
	if creatorFee, err = m.TotalPool.Bps(l.cfg.CreatorFeeBps); err != nil {
		return
	}
	if platformFee, err = m.TotalPool.Bps(l.cfg.PlatformFeeBps); err != nil {
		return
	}
	fee, err := creatorFee.Add(platformFee)
	if err != nil {
		return
	}
	distributable, err = m.TotalPool.Sub(fee)
	return
}

// ResolveMarket declares the winning outcome of a closed market. It is
// terminal: a resolved market never changes outcome.
func (l *Ledger) ResolveMarket(ctx context.Context, caller common.Address, id domain.MarketID, winning int) (domain.MarketResolved, error) {
	const op = "resolve market"

	l.mu.Lock()
	defer l.mu.Unlock()

	cur, err := l.market(op, id)
	if err != nil {
		return domain.MarketResolved{}, err
	}

	now := l.clock()
	switch cur.PhaseAt(now) {
	case domain.PhaseResolved:
		return domain.MarketResolved{}, domain.Statef(op, "market %d already resolved", id)
	case domain.PhaseScheduled, domain.PhaseActive:
		return domain.MarketResolved{}, domain.Statef(op, "market %d not ended yet", id)
	}

	if err := l.authorizeResolver(op, cur, caller); err != nil {
		return domain.MarketResolved{}, err
	}
	if winning < 0 || winning >= cur.OutcomeCount() {
		return domain.MarketResolved{}, domain.Validationf(op, "winning outcome %d out of range for %d outcomes", winning, cur.OutcomeCount())
	}

	m := cur.Clone()
	if m.CreatorFee, m.PlatformFee, m.Distributable, err = l.settle(&m, winning); err != nil {
		return domain.MarketResolved{}, err
	}
	m.Resolved = true
	m.WinningOutcome = winning
	m.ResolvedAt = &now
	m.ResolvedBy = &caller

	res := domain.MarketResolved{
		MarketID:       id,
		WinningOutcome: winning,
		WinningLabel:   m.Outcomes[winning],
		TotalPool:      m.TotalPool,
		WinningPool:    m.OutcomePools[winning],
		CreatorFee:     m.CreatorFee,
		PlatformFee:    m.PlatformFee,
		Distributable:  m.Distributable,
		ResolvedBy:     caller,
	}
	ev := domain.Event{
		Seq:      l.seq + 1,
		Type:     domain.EventMarketResolved,
		MarketID: id,
		At:       now,
		Resolved: &res,
	}
	if err := l.commit(ctx, domain.Commit{Market: m, Event: ev}); err != nil {
		return domain.MarketResolved{}, err
	}

	l.logger.InfoContext(ctx, "market resolved",
		slog.Uint64("market_id", uint64(id)),
		slog.Int("winning_outcome", winning),
		slog.String("winning_label", res.WinningLabel),
		slog.String("total_pool", res.TotalPool.String()),
		slog.String("distributable", res.Distributable.String()),
		slog.String("resolved_by", caller.Hex()),
	)
	return res, nil
}
