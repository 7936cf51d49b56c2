package domain

import (
	"time"

	"github.com/ethereum/go-ethereum/common"
)

// Stake is one bettor's cumulative position on one market. The outcome is
// fixed by the first bet.
type Stake struct {
	MarketID     MarketID       `json:"market_id"`
	Bettor       common.Address `json:"bettor"`
	OutcomeIndex int            `json:"outcome_index"`
	Amount       Amount         `json:"amount"`
	Claimed      bool           `json:"claimed"`
	Payout       Amount         `json:"payout"`
	// FirstSeq is the event sequence of the bet that opened the stake; it
	// orders bettors within a market.
	FirstSeq  uint64     `json:"first_seq"`
	CreatedAt time.Time  `json:"created_at"`
	UpdatedAt time.Time  `json:"updated_at"`
	ClaimedAt *time.Time `json:"claimed_at,omitempty"`
}

// StakeKey identifies a stake.
type StakeKey struct {
	MarketID MarketID
	Bettor   common.Address
}

func (s *Stake) Key() StakeKey { return StakeKey{MarketID: s.MarketID, Bettor: s.Bettor} }

// Clone returns a copy that does not share the ClaimedAt pointer.
func (s Stake) Clone() Stake {
	out := s
	if s.ClaimedAt != nil {
		t := *s.ClaimedAt
		out.ClaimedAt = &t
	}
	return out
}
