package domain

import (
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"
)

// MarketID is the sequential market identifier, starting at 0.
type MarketID uint64

// Category is the topical tag of a market.
type Category string

const (
	CategoryCrypto        Category = "crypto"
	CategorySports        Category = "sports"
	CategoryPolitics      Category = "politics"
	CategoryEntertainment Category = "entertainment"
	CategoryTechnology    Category = "technology"
	CategoryScience       Category = "science"
	CategoryGaming        Category = "gaming"
	CategoryOther         Category = "other"
)

var categories = map[Category]bool{
	CategoryCrypto:        true,
	CategorySports:        true,
	CategoryPolitics:      true,
	CategoryEntertainment: true,
	CategoryTechnology:    true,
	CategoryScience:       true,
	CategoryGaming:        true,
	CategoryOther:         true,
}

// ParseCategory normalises a category tag. An empty tag maps to "other".
func ParseCategory(s string) (Category, bool) {
	c := Category(strings.ToLower(strings.TrimSpace(s)))
	if c == "" {
		return CategoryOther, true
	}
	return c, categories[c]
}

// ResolutionMode governs who may declare a market's winning outcome.
type ResolutionMode uint8

const (
	// ResolutionManual lets the creator (or the platform owner) resolve.
	ResolutionManual ResolutionMode = iota
	// ResolutionOracle lets a configured oracle address resolve.
	ResolutionOracle
)

func (m ResolutionMode) String() string {
	switch m {
	case ResolutionManual:
		return "manual"
	case ResolutionOracle:
		return "oracle_assisted"
	default:
		return "unknown"
	}
}

// ParseResolutionMode accepts the String form or the numeric form used by
// the original contract ("0"/"1"). Empty means manual.
func ParseResolutionMode(s string) (ResolutionMode, bool) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "manual", "0":
		return ResolutionManual, true
	case "oracle_assisted", "oracle", "1":
		return ResolutionOracle, true
	default:
		return 0, false
	}
}

func (m ResolutionMode) MarshalText() ([]byte, error) { return []byte(m.String()), nil }

func (m *ResolutionMode) UnmarshalText(text []byte) error {
	parsed, ok := ParseResolutionMode(string(text))
	if !ok {
		return Validationf("resolution mode", "unknown resolution mode %q", string(text))
	}
	*m = parsed
	return nil
}

// Phase is the lifecycle state of a market at a point in time.
type Phase string

const (
	PhaseScheduled  Phase = "scheduled"  // now < start
	PhaseActive     Phase = "active"     // start <= now < end
	PhaseResolvable Phase = "resolvable" // now >= end, unresolved
	PhaseResolved   Phase = "resolved"
)

const (
	MinOutcomes = 2
	MaxOutcomes = 10

	// FallbackOutcomeLabel is the reserved catch-all label; at most one per market.
	FallbackOutcomeLabel = "Other"
)

// Market is the ledger record of one prediction market.
type Market struct {
	ID             MarketID       `json:"id"`
	Question       string         `json:"question"`
	Rules          string         `json:"rules"`
	ImageRef       string         `json:"image_ref"`
	Category       Category       `json:"category"`
	Outcomes       []string       `json:"outcomes"`
	OutcomePools   []Amount       `json:"outcome_pools"`
	TotalPool      Amount         `json:"total_pool"`
	StartTime      time.Time      `json:"start_time"`
	EndTime        time.Time      `json:"end_time"`
	Resolved       bool           `json:"resolved"`
	WinningOutcome int            `json:"winning_outcome"`
	Creator        common.Address `json:"creator"`
	CreatedAt      time.Time      `json:"created_at"`
	IsPrivate      bool           `json:"is_private"`
	AccessCommit   []byte         `json:"-"`
	ResolutionMode ResolutionMode `json:"resolution_mode"`
	BettorCount    int            `json:"bettor_count"`

	// Settlement, set at resolution.
	ResolvedAt    *time.Time      `json:"resolved_at,omitempty"`
	ResolvedBy    *common.Address `json:"resolved_by,omitempty"`
	CreatorFee    Amount          `json:"creator_fee"`
	PlatformFee   Amount          `json:"platform_fee"`
	Distributable Amount          `json:"distributable"`
	TotalClaimed  Amount          `json:"total_claimed"`
}

// OutcomeCount returns the number of outcomes.
func (m *Market) OutcomeCount() int { return len(m.Outcomes) }

// PhaseAt returns the lifecycle phase of m at now.
func (m *Market) PhaseAt(now time.Time) Phase {
	switch {
	case m.Resolved:
		return PhaseResolved
	case now.Before(m.StartTime):
		return PhaseScheduled
	case now.Before(m.EndTime):
		return PhaseActive
	default:
		return PhaseResolvable
	}
}

// WinningLabel returns the label of the winning outcome, or "" if unresolved.
func (m *Market) WinningLabel() string {
	if !m.Resolved || m.WinningOutcome < 0 || m.WinningOutcome >= len(m.Outcomes) {
		return ""
	}
	return m.Outcomes[m.WinningOutcome]
}

// Clone returns a deep copy, so a mutation can be prepared without touching
// the committed record.
func (m Market) Clone() Market {
	out := m
	out.Outcomes = append([]string(nil), m.Outcomes...)
	out.OutcomePools = append([]Amount(nil), m.OutcomePools...)
	out.AccessCommit = append([]byte(nil), m.AccessCommit...)
	if m.ResolvedAt != nil {
		t := *m.ResolvedAt
		out.ResolvedAt = &t
	}
	if m.ResolvedBy != nil {
		a := *m.ResolvedBy
		out.ResolvedBy = &a
	}
	return out
}

// CheckInvariants verifies the pool and resolution invariants of m.
func (m *Market) CheckInvariants() error {
	const op = "market invariants"
	if len(m.Outcomes) < MinOutcomes || len(m.Outcomes) > MaxOutcomes {
		return Validationf(op, "market %d has %d outcomes", m.ID, len(m.Outcomes))
	}
	if len(m.OutcomePools) != len(m.Outcomes) {
		return Validationf(op, "market %d has %d pools for %d outcomes", m.ID, len(m.OutcomePools), len(m.Outcomes))
	}
	sum, err := SumAmounts(m.OutcomePools)
	if err != nil {
		return err
	}
	if !sum.Equal(m.TotalPool) {
		return Arithmeticf(op, "market %d pools sum to %s, total pool is %s", m.ID, sum, m.TotalPool)
	}
	if m.Resolved && (m.WinningOutcome < 0 || m.WinningOutcome >= len(m.Outcomes)) {
		return Validationf(op, "market %d resolved to out-of-range outcome %d", m.ID, m.WinningOutcome)
	}
	if m.TotalClaimed.Cmp(m.Distributable) > 0 {
		return Arithmeticf(op, "market %d paid %s of %s distributable", m.ID, m.TotalClaimed, m.Distributable)
	}
	return nil
}

// MarketView is a read snapshot of a market with its current odds and phase.
type MarketView struct {
	Market
	Odds  []int `json:"odds"`
	Phase Phase `json:"phase"`
}
