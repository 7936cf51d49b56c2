package ledger

import (
	"context"
	"log/slog"

	"github.com/alanyoungcy/arenaledger/internal/domain"
	"github.com/ethereum/go-ethereum/common"
)

// PlaceBet adds amount to bettor's stake on outcome of market id. A bettor's
// outcome is fixed by the first bet; later bets on the same outcome
// accumulate.
func (l *Ledger) PlaceBet(ctx context.Context, bettor common.Address, id domain.MarketID, outcome int, amount domain.Amount, accessCode string) (domain.Stake, error) {
	const op = "place bet"

	l.mu.Lock()
	defer l.mu.Unlock()

	cur, err := l.market(op, id)
	if err != nil {
		return domain.Stake{}, err
	}
	if bettor == (common.Address{}) {
		return domain.Stake{}, domain.Validationf(op, "bettor address required")
	}
	if amount.IsZero() {
		return domain.Stake{}, domain.Validationf(op, "bet amount must be positive")
	}
	if outcome < 0 || outcome >= cur.OutcomeCount() {
		return domain.Stake{}, domain.Validationf(op, "outcome %d out of range for %d outcomes", outcome, cur.OutcomeCount())
	}

	now := l.clock()
	switch cur.PhaseAt(now) {
	case domain.PhaseResolved:
		return domain.Stake{}, domain.Statef(op, "market %d already resolved", id)
	case domain.PhaseScheduled:
		return domain.Stake{}, domain.Statef(op, "market %d not started yet", id)
	case domain.PhaseResolvable:
		return domain.Stake{}, domain.Statef(op, "market %d betting closed", id)
	}

	if !CheckAccess(cur, accessCode) {
		return domain.Stake{}, domain.Authorizationf(op, "invalid access code for market %d", id)
	}

	seq := l.seq + 1
	key := domain.StakeKey{MarketID: id, Bettor: bettor}
	var next domain.Stake
	prev, existing := l.stakes[key]
	if existing {
		if prev.OutcomeIndex != outcome {
			return domain.Stake{}, domain.Statef(op, "already staked on outcome %d of market %d", prev.OutcomeIndex, id)
		}
		next = prev.Clone()
		if next.Amount, err = next.Amount.Add(amount); err != nil {
			return domain.Stake{}, err
		}
	} else {
		next = domain.Stake{
			MarketID:     id,
			Bettor:       bettor,
			OutcomeIndex: outcome,
			Amount:       amount,
			FirstSeq:     seq,
			CreatedAt:    now,
		}
	}
	next.UpdatedAt = now

	m := cur.Clone()
	if m.OutcomePools[outcome], err = m.OutcomePools[outcome].Add(amount); err != nil {
		return domain.Stake{}, err
	}
	if m.TotalPool, err = m.TotalPool.Add(amount); err != nil {
		return domain.Stake{}, err
	}
	if !existing {
		m.BettorCount++
	}

	ev := domain.Event{
		Seq:      seq,
		Type:     domain.EventBetPlaced,
		MarketID: id,
		At:       now,
		Bet: &domain.BetPlaced{
			MarketID:     id,
			Bettor:       bettor,
			OutcomeIndex: outcome,
			Amount:       amount,
			StakeTotal:   next.Amount,
			TotalPool:    m.TotalPool,
		},
	}
	if err := l.commit(ctx, domain.Commit{Market: m, Stake: &next, Event: ev}); err != nil {
		return domain.Stake{}, err
	}

	l.logger.DebugContext(ctx, "bet placed",
		slog.Uint64("market_id", uint64(id)),
		slog.String("bettor", bettor.Hex()),
		slog.Int("outcome", outcome),
		slog.String("amount", amount.String()),
		slog.String("total_pool", m.TotalPool.String()),
	)
	return next, nil
}
