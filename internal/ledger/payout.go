package ledger

import (
	"context"
	"log/slog"

	"github.com/alanyoungcy/arenaledger/internal/domain"
	"github.com/ethereum/go-ethereum/common"
)

// payoutFor is floor(stake*distributable/winningPool).
func payoutFor(stake, distributable, winningPool domain.Amount) (domain.Amount, error) {
	if winningPool.IsZero() {
		return domain.Amount{}, domain.Arithmeticf("payout", "winning pool is empty")
	}
	return stake.MulDiv(distributable, winningPool)
}

// ClaimWinnings pays bettor's share of a resolved market's distributable pool.
// A stake is paid at most once; losing stakes are never payable.
func (l *Ledger) ClaimWinnings(ctx context.Context, bettor common.Address, id domain.MarketID) (domain.Amount, error) {
	const op = "claim winnings"

	l.mu.Lock()
	defer l.mu.Unlock()

	cur, err := l.market(op, id)
	if err != nil {
		return domain.Amount{}, err
	}
	if !cur.Resolved {
		return domain.Amount{}, domain.Statef(op, "market %d not resolved", id)
	}
	winningPool := cur.OutcomePools[cur.WinningOutcome]
	if winningPool.IsZero() {
		return domain.Amount{}, domain.Arithmeticf(op, "market %d has no stake on the winning outcome", id)
	}

	prev, ok := l.stakes[domain.StakeKey{MarketID: id, Bettor: bettor}]
	if !ok {
		return domain.Amount{}, domain.Statef(op, "%s has no stake on market %d", bettor.Hex(), id)
	}
	if prev.OutcomeIndex != cur.WinningOutcome {
		return domain.Amount{}, domain.Statef(op, "stake on market %d did not win", id)
	}
	if prev.Claimed {
		return domain.Amount{}, domain.Statef(op, "winnings on market %d already claimed", id)
	}

	payout, err := payoutFor(prev.Amount, cur.Distributable, winningPool)
	if err != nil {
		return domain.Amount{}, err
	}

	m := cur.Clone()
	if m.TotalClaimed, err = m.TotalClaimed.Add(payout); err != nil {
		return domain.Amount{}, err
	}
	if m.TotalClaimed.Cmp(m.Distributable) > 0 {
		return domain.Amount{}, domain.Arithmeticf(op, "market %d payouts would exceed distributable pool", id)
	}

	now := l.clock()
	next := prev.Clone()
	next.Claimed = true
	next.Payout = payout
	next.ClaimedAt = &now
	next.UpdatedAt = now

	ev := domain.Event{
		Seq:      l.seq + 1,
		Type:     domain.EventWinningsClaimed,
		MarketID: id,
		At:       now,
		Claimed: &domain.WinningsClaimed{
			MarketID: id,
			Bettor:   bettor,
			Payout:   payout,
		},
	}
	if err := l.commit(ctx, domain.Commit{Market: m, Stake: &next, Event: ev}); err != nil {
		return domain.Amount{}, err
	}

	l.logger.InfoContext(ctx, "winnings claimed",
		slog.Uint64("market_id", uint64(id)),
		slog.String("bettor", bettor.Hex()),
		slog.String("payout", payout.String()),
	)
	return payout, nil
}

// PreviewPayout returns what a new bet of amount on outcome would pay if that
// outcome won and nothing else changed: the bet is folded into both the
// outcome pool and the total pool before fees. It uses the same rounding as
// ClaimWinnings.
func (l *Ledger) PreviewPayout(id domain.MarketID, outcome int, amount domain.Amount) (domain.Amount, error) {
	const op = "preview payout"

	l.mu.RLock()
	defer l.mu.RUnlock()

	m, err := l.market(op, id)
	if err != nil {
		return domain.Amount{}, err
	}
	if amount.IsZero() {
		return domain.Amount{}, domain.Validationf(op, "bet amount must be positive")
	}
	if outcome < 0 || outcome >= m.OutcomeCount() {
		return domain.Amount{}, domain.Validationf(op, "outcome %d out of range for %d outcomes", outcome, m.OutcomeCount())
	}

	total, err := m.TotalPool.Add(amount)
	if err != nil {
		return domain.Amount{}, err
	}
	pool, err := m.OutcomePools[outcome].Add(amount)
	if err != nil {
		return domain.Amount{}, err
	}
	preview := domain.Market{OutcomePools: []domain.Amount{pool}, TotalPool: total}
	_, _, distributable, err := l.settle(&preview, 0)
	if err != nil {
		return domain.Amount{}, err
	}
	return payoutFor(amount, distributable, pool)
}
