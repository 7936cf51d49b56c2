package ledger

import (
	"github.com/alanyoungcy/arenaledger/internal/domain"
	"github.com/ethereum/go-ethereum/common"
)

// GetMarket returns a copy of market id.
func (l *Ledger) GetMarket(id domain.MarketID) (domain.Market, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()

	m, err := l.market("get market", id)
	if err != nil {
		return domain.Market{}, err
	}
	return m.Clone(), nil
}

// View returns market id with its current odds and phase.
func (l *Ledger) View(id domain.MarketID) (domain.MarketView, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()

	m, err := l.market("view market", id)
	if err != nil {
		return domain.MarketView{}, err
	}
	return l.view(m), nil
}

func (l *Ledger) view(m *domain.Market) domain.MarketView {
	return domain.MarketView{
		Market: m.Clone(),
		Odds:   Percentages(m.OutcomePools, m.TotalPool),
		Phase:  m.PhaseAt(l.clock()),
	}
}

// GetOutcomeOdds returns the integer percentage of every outcome; they sum to
// 100.
func (l *Ledger) GetOutcomeOdds(id domain.MarketID) ([]int, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()

	m, err := l.market("get odds", id)
	if err != nil {
		return nil, err
	}
	return Percentages(m.OutcomePools, m.TotalPool), nil
}

// Percent returns the odds of a single outcome.
func (l *Ledger) Percent(id domain.MarketID, outcome int) (int, error) {
	odds, err := l.GetOutcomeOdds(id)
	if err != nil {
		return 0, err
	}
	if outcome < 0 || outcome >= len(odds) {
		return 0, domain.Validationf("get odds", "outcome %d out of range for %d outcomes", outcome, len(odds))
	}
	return odds[outcome], nil
}

// GetMarketBettors returns the distinct bettors of market id in first-bet
// order.
func (l *Ledger) GetMarketBettors(id domain.MarketID) ([]common.Address, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()

	if _, err := l.market("get bettors", id); err != nil {
		return nil, err
	}
	return append([]common.Address{}, l.bettors[id]...), nil
}

// GetUserMarkets returns the markets addr has staked on, in first-bet order.
func (l *Ledger) GetUserMarkets(addr common.Address) []domain.MarketID {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return append([]domain.MarketID{}, l.userMarkets[addr]...)
}

// MarketCount returns the number of markets ever created.
func (l *Ledger) MarketCount() uint64 {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return uint64(len(l.markets))
}

// GetStake returns bettor's stake on market id.
func (l *Ledger) GetStake(id domain.MarketID, bettor common.Address) (domain.Stake, error) {
	const op = "get stake"

	l.mu.RLock()
	defer l.mu.RUnlock()

	if _, err := l.market(op, id); err != nil {
		return domain.Stake{}, err
	}
	s, ok := l.stakes[domain.StakeKey{MarketID: id, Bettor: bettor}]
	if !ok {
		return domain.Stake{}, domain.NotFoundf(op, "%s has no stake on market %d", bettor.Hex(), id)
	}
	return s.Clone(), nil
}

// Phase returns the lifecycle phase of market id now.
func (l *Ledger) Phase(id domain.MarketID) (domain.Phase, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()

	m, err := l.market("get phase", id)
	if err != nil {
		return "", err
	}
	return m.PhaseAt(l.clock()), nil
}

// ListMarkets returns market views in id order.
func (l *Ledger) ListMarkets(opts domain.ListOpts) []domain.MarketView {
	l.mu.RLock()
	defer l.mu.RUnlock()

	start := opts.Offset
	if start < 0 {
		start = 0
	}
	if start >= len(l.markets) {
		return []domain.MarketView{}
	}
	end := len(l.markets)
	if opts.Limit > 0 && start+opts.Limit < end {
		end = start + opts.Limit
	}
	out := make([]domain.MarketView, 0, end-start)
	for _, m := range l.markets[start:end] {
		out = append(out, l.view(m))
	}
	return out
}
