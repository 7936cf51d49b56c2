package domain

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/ethereum/go-ethereum/common"
)

// EventType names an append-only ledger event.
type EventType string

const (
	EventMarketCreated   EventType = "market_created"
	EventBetPlaced       EventType = "bet_placed"
	EventMarketResolved  EventType = "market_resolved"
	EventWinningsClaimed EventType = "winnings_claimed"
)

// MarketCreated is emitted by CreateMarket.
type MarketCreated struct {
	MarketID         MarketID       `json:"market_id"`
	Question         string         `json:"question"`
	Category         Category       `json:"category"`
	OutcomeCount     int            `json:"outcome_count"`
	Outcomes         []string       `json:"outcomes"`
	StartTime        time.Time      `json:"start_time"`
	EndTime          time.Time      `json:"end_time"`
	Creator          common.Address `json:"creator"`
	IsPrivate        bool           `json:"is_private"`
	ResolutionMode   ResolutionMode `json:"resolution_mode"`
	InitialLiquidity Amount         `json:"initial_liquidity"`
}

// BetPlaced is emitted by PlaceBet.
type BetPlaced struct {
	MarketID     MarketID       `json:"market_id"`
	Bettor       common.Address `json:"bettor"`
	OutcomeIndex int            `json:"outcome_index"`
	Amount       Amount         `json:"amount"`
	StakeTotal   Amount         `json:"stake_total"`
	TotalPool    Amount         `json:"total_pool"`
}

// MarketResolved is emitted by ResolveMarket.
type MarketResolved struct {
	MarketID       MarketID       `json:"market_id"`
	WinningOutcome int            `json:"winning_outcome"`
	WinningLabel   string         `json:"winning_label"`
	TotalPool      Amount         `json:"total_pool"`
	WinningPool    Amount         `json:"winning_pool"`
	CreatorFee     Amount         `json:"creator_fee"`
	PlatformFee    Amount         `json:"platform_fee"`
	Distributable  Amount         `json:"distributable"`
	ResolvedBy     common.Address `json:"resolved_by"`
}

// WinningsClaimed is emitted by ClaimWinnings.
type WinningsClaimed struct {
	MarketID MarketID       `json:"market_id"`
	Bettor   common.Address `json:"bettor"`
	Payout   Amount         `json:"payout"`
}

// Event is one sequenced ledger record. Exactly one payload field is set,
// matching Type.
type Event struct {
	Seq      uint64
	Type     EventType
	MarketID MarketID
	At       time.Time

	Created  *MarketCreated
	Bet      *BetPlaced
	Resolved *MarketResolved
	Claimed  *WinningsClaimed
}

// Payload returns the typed payload for Type.
func (e Event) Payload() any {
	switch e.Type {
	case EventMarketCreated:
		return e.Created
	case EventBetPlaced:
		return e.Bet
	case EventMarketResolved:
		return e.Resolved
	case EventWinningsClaimed:
		return e.Claimed
	default:
		return nil
	}
}

type eventEnvelope struct {
	Seq      uint64          `json:"seq"`
	Type     EventType       `json:"type"`
	MarketID MarketID        `json:"market_id"`
	At       time.Time       `json:"at"`
	Data     json.RawMessage `json:"data"`
}

// MarshalJSON encodes the event as {seq, type, market_id, at, data}.
func (e Event) MarshalJSON() ([]byte, error) {
	payload := e.Payload()
	if payload == nil {
		return nil, fmt.Errorf("domain: marshal event %d: no payload for type %q", e.Seq, e.Type)
	}
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("domain: marshal event %d: %w", e.Seq, err)
	}
	return json.Marshal(eventEnvelope{
		Seq:      e.Seq,
		Type:     e.Type,
		MarketID: e.MarketID,
		At:       e.At,
		Data:     data,
	})
}

func (e *Event) UnmarshalJSON(b []byte) error {
	var env eventEnvelope
	if err := json.Unmarshal(b, &env); err != nil {
		return err
	}
	out := Event{Seq: env.Seq, Type: env.Type, MarketID: env.MarketID, At: env.At}
	if err := out.SetPayload(env.Data); err != nil {
		return err
	}
	*e = out
	return nil
}

// SetPayload decodes raw into the payload field selected by e.Type.
func (e *Event) SetPayload(raw []byte) error {
	var target any
	switch e.Type {
	case EventMarketCreated:
		e.Created = new(MarketCreated)
		target = e.Created
	case EventBetPlaced:
		e.Bet = new(BetPlaced)
		target = e.Bet
	case EventMarketResolved:
		e.Resolved = new(MarketResolved)
		target = e.Resolved
	case EventWinningsClaimed:
		e.Claimed = new(WinningsClaimed)
		target = e.Claimed
	default:
		return fmt.Errorf("domain: unknown event type %q", e.Type)
	}
	if err := json.Unmarshal(raw, target); err != nil {
		return fmt.Errorf("domain: decode %s payload: %w", e.Type, err)
	}
	return nil
}
