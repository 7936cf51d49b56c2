package domain

import (
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/shopspring/decimal"
)

// PlayerStats are per-address aggregates rebuilt from the event log.
type PlayerStats struct {
	Address        common.Address `json:"address"`
	TotalBets      int            `json:"total_bets"`
	TotalWins      int            `json:"total_wins"`
	GamesPlayed    int            `json:"games_played"`
	TotalAmountBet Amount         `json:"total_amount_bet"`
	TotalWinnings  Amount         `json:"total_winnings"`
	CurrentStreak  int            `json:"current_streak"`
	BestStreak     int            `json:"best_streak"`
	// WinRate is TotalWins/GamesPlayed as a percentage with two decimals.
	WinRate decimal.Decimal `json:"win_rate"`
	// PnL is TotalWinnings - TotalAmountBet in base units; may be negative.
	PnL decimal.Decimal `json:"pnl"`
}

// Leaderboard is one aggregation pass over the event log.
type Leaderboard struct {
	BuiltAt time.Time     `json:"built_at"`
	UpToSeq uint64        `json:"up_to_seq"`
	Markets int           `json:"markets"`
	Entries []PlayerStats `json:"entries"`
}
