// Package leaderboard rebuilds per-player statistics from the ledger event
// log. It only reads events; ledger state is never touched.
package leaderboard

import (
	"bytes"
	"sort"

	"github.com/alanyoungcy/arenaledger/internal/domain"
	"github.com/ethereum/go-ethereum/common"
	"github.com/shopspring/decimal"
)

type marketEntry struct {
	// bettors in first-stake order, with the outcome each one backed.
	bettors []common.Address
	outcome map[common.Address]int
	settled bool
}

// Aggregator folds events in sequence order. The zero value is not usable;
// call NewAggregator.
type Aggregator struct {
	players map[common.Address]*domain.PlayerStats
	markets map[domain.MarketID]*marketEntry
	lastSeq uint64
}

func NewAggregator() *Aggregator {
	return &Aggregator{
		players: make(map[common.Address]*domain.PlayerStats),
		markets: make(map[domain.MarketID]*marketEntry),
	}
}

func (a *Aggregator) player(addr common.Address) *domain.PlayerStats {
	p, ok := a.players[addr]
	if !ok {
		p = &domain.PlayerStats{Address: addr}
		a.players[addr] = p
	}
	return p
}

func (a *Aggregator) market(id domain.MarketID) *marketEntry {
	m, ok := a.markets[id]
	if !ok {
		m = &marketEntry{outcome: make(map[common.Address]int)}
		a.markets[id] = m
	}
	return m
}

// Apply folds one event. Events at or below the last applied sequence are
// ignored so overlapping pages are harmless.
func (a *Aggregator) Apply(evt domain.Event) error {
	if evt.Seq != 0 && evt.Seq <= a.lastSeq {
		return nil
	}
	switch evt.Type {
	case domain.EventMarketCreated:
		a.market(evt.MarketID)
	case domain.EventBetPlaced:
		if evt.Bet == nil {
			return domain.Validationf("leaderboard apply", "event %d has no bet payload", evt.Seq)
		}
		a.applyBet(evt.MarketID, evt.Bet)
	case domain.EventMarketResolved:
		if evt.Resolved == nil {
			return domain.Validationf("leaderboard apply", "event %d has no resolution payload", evt.Seq)
		}
		a.applyResolution(evt.MarketID, evt.Resolved.WinningOutcome)
	case domain.EventWinningsClaimed:
		if evt.Claimed == nil {
			return domain.Validationf("leaderboard apply", "event %d has no claim payload", evt.Seq)
		}
		p := a.player(evt.Claimed.Bettor)
		sum, err := p.TotalWinnings.Add(evt.Claimed.Payout)
		if err != nil {
			return err
		}
		p.TotalWinnings = sum
	}
	if evt.Seq > a.lastSeq {
		a.lastSeq = evt.Seq
	}
	return nil
}

func (a *Aggregator) applyBet(id domain.MarketID, bet *domain.BetPlaced) {
	m := a.market(id)
	p := a.player(bet.Bettor)
	if _, seen := m.outcome[bet.Bettor]; !seen {
		m.outcome[bet.Bettor] = bet.OutcomeIndex
		m.bettors = append(m.bettors, bet.Bettor)
		p.TotalBets++
	}
	// Overflow here would already have failed in the ledger.
	if sum, err := p.TotalAmountBet.Add(bet.Amount); err == nil {
		p.TotalAmountBet = sum
	}
}

func (a *Aggregator) applyResolution(id domain.MarketID, winning int) {
	m := a.market(id)
	if m.settled {
		return
	}
	m.settled = true
	for _, addr := range m.bettors {
		p := a.player(addr)
		p.GamesPlayed++
		if m.outcome[addr] == winning {
			p.TotalWins++
			p.CurrentStreak++
			if p.CurrentStreak > p.BestStreak {
				p.BestStreak = p.CurrentStreak
			}
		} else {
			p.CurrentStreak = 0
		}
	}
}

// LastSeq is the highest sequence applied.
func (a *Aggregator) LastSeq() uint64 { return a.lastSeq }

// Entries returns every player ranked by winnings, then win rate, then
// address.
func (a *Aggregator) Entries() []domain.PlayerStats {
	out := make([]domain.PlayerStats, 0, len(a.players))
	for _, p := range a.players {
		s := *p
		s.WinRate = winRate(s.TotalWins, s.GamesPlayed)
		s.PnL = decimal.NewFromBigInt(s.TotalWinnings.BigInt(), 0).
			Sub(decimal.NewFromBigInt(s.TotalAmountBet.BigInt(), 0))
		out = append(out, s)
	}
	sort.Slice(out, func(i, j int) bool {
		if c := out[i].TotalWinnings.Cmp(out[j].TotalWinnings); c != 0 {
			return c > 0
		}
		if c := out[i].WinRate.Cmp(out[j].WinRate); c != 0 {
			return c > 0
		}
		return bytes.Compare(out[i].Address[:], out[j].Address[:]) < 0
	})
	return out
}

// Markets is the number of markets seen.
func (a *Aggregator) Markets() int { return len(a.markets) }

var hundred = decimal.NewFromInt(100)

func winRate(wins, games int) decimal.Decimal {
	if games == 0 {
		return decimal.Zero
	}
	return decimal.NewFromInt(int64(wins)).Mul(hundred).
		DivRound(decimal.NewFromInt(int64(games)), 2)
}
