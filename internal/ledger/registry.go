package ledger

import (
	"context"
	"log/slog"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/alanyoungcy/arenaledger/internal/domain"
	"github.com/ethereum/go-ethereum/common"
)

// CreateMarketRequest carries the parameters of a new market.
type CreateMarketRequest struct {
	Question  string
	Rules     string
	ImageRef  string
	Category  string
	Outcomes  []string
	StartTime time.Time
	EndTime   time.Time
	// LaunchNow opens the market immediately; StartTime is ignored.
	LaunchNow        bool
	IsPrivate        bool
	AccessCode       string
	ResolutionMode   domain.ResolutionMode
	InitialLiquidity domain.Amount
}

// CreateMarket validates req, allocates the next market id and records the
// market with its initial liquidity split evenly across outcomes.
func (l *Ledger) CreateMarket(ctx context.Context, creator common.Address, req CreateMarketRequest) (domain.MarketID, error) {
	const op = "create market"

	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.clock()
	m, err := l.buildMarket(op, now, creator, req)
	if err != nil {
		return 0, err
	}
	m.ID = domain.MarketID(len(l.markets))
	if m.IsPrivate {
		m.AccessCommit = AccessCommitment(m.ID, req.AccessCode)
	}

	seq := l.seq + 1
	ev := domain.Event{
		Seq:      seq,
		Type:     domain.EventMarketCreated,
		MarketID: m.ID,
		At:       now,
		Created: &domain.MarketCreated{
			MarketID:         m.ID,
			Question:         m.Question,
			Category:         m.Category,
			OutcomeCount:     m.OutcomeCount(),
			Outcomes:         append([]string(nil), m.Outcomes...),
			StartTime:        m.StartTime,
			EndTime:          m.EndTime,
			Creator:          creator,
			IsPrivate:        m.IsPrivate,
			ResolutionMode:   m.ResolutionMode,
			InitialLiquidity: req.InitialLiquidity,
		},
	}
	if err := l.commit(ctx, domain.Commit{Market: m, Event: ev}); err != nil {
		return 0, err
	}

	l.logger.InfoContext(ctx, "market created",
		slog.Uint64("market_id", uint64(m.ID)),
		slog.String("creator", creator.Hex()),
		slog.String("category", string(m.Category)),
		slog.Int("outcomes", m.OutcomeCount()),
		slog.Bool("private", m.IsPrivate),
		slog.String("resolution_mode", m.ResolutionMode.String()),
	)
	return m.ID, nil
}

func (l *Ledger) buildMarket(op string, now time.Time, creator common.Address, req CreateMarketRequest) (domain.Market, error) {
	if creator == (common.Address{}) {
		return domain.Market{}, domain.Validationf(op, "creator address required")
	}

	question := strings.TrimSpace(req.Question)
	if question == "" {
		return domain.Market{}, domain.Validationf(op, "question required")
	}
	if utf8.RuneCountInString(question) > l.cfg.MaxQuestionLen {
		return domain.Market{}, domain.Validationf(op, "question longer than %d characters", l.cfg.MaxQuestionLen)
	}
	if utf8.RuneCountInString(req.Rules) > l.cfg.MaxRulesLen {
		return domain.Market{}, domain.Validationf(op, "rules longer than %d characters", l.cfg.MaxRulesLen)
	}

	category, ok := domain.ParseCategory(req.Category)
	if !ok {
		return domain.Market{}, domain.Validationf(op, "unknown category %q", req.Category)
	}

	outcomes, err := l.validateOutcomes(op, req.Outcomes)
	if err != nil {
		return domain.Market{}, err
	}

	start, end := req.StartTime.UTC(), req.EndTime.UTC()
	if req.LaunchNow {
		start = now
	} else if start.Before(now) {
		return domain.Market{}, domain.Validationf(op, "start time %s is in the past", start.Format(time.RFC3339))
	}
	if !end.After(start) {
		return domain.Market{}, domain.Validationf(op, "end time must be after start time")
	}

	if req.IsPrivate && req.AccessCode == "" {
		return domain.Market{}, domain.Validationf(op, "private market requires an access code")
	}

	switch req.ResolutionMode {
	case domain.ResolutionManual, domain.ResolutionOracle:
	default:
		return domain.Market{}, domain.Validationf(op, "unknown resolution mode %d", req.ResolutionMode)
	}

	pools, err := splitLiquidity(req.InitialLiquidity, len(outcomes))
	if err != nil {
		return domain.Market{}, err
	}

	return domain.Market{
		Question:       question,
		Rules:          req.Rules,
		ImageRef:       strings.TrimSpace(req.ImageRef),
		Category:       category,
		Outcomes:       outcomes,
		OutcomePools:   pools,
		TotalPool:      req.InitialLiquidity,
		StartTime:      start,
		EndTime:        end,
		WinningOutcome: -1,
		Creator:        creator,
		CreatedAt:      now,
		IsPrivate:      req.IsPrivate,
		ResolutionMode: req.ResolutionMode,
	}, nil
}

func (l *Ledger) validateOutcomes(op string, labels []string) ([]string, error) {
	if len(labels) < domain.MinOutcomes || len(labels) > domain.MaxOutcomes {
		return nil, domain.Validationf(op, "need %d to %d outcomes, got %d", domain.MinOutcomes, domain.MaxOutcomes, len(labels))
	}
	out := make([]string, len(labels))
	seen := make(map[string]bool, len(labels))
	for i, raw := range labels {
		label := strings.TrimSpace(raw)
		if label == "" {
			return nil, domain.Validationf(op, "outcome %d label is empty", i)
		}
		if utf8.RuneCountInString(label) > l.cfg.MaxLabelLen {
			return nil, domain.Validationf(op, "outcome %d label longer than %d characters", i, l.cfg.MaxLabelLen)
		}
		// Case-insensitive uniqueness also limits the fallback label to one.
		folded := strings.ToLower(label)
		if seen[folded] {
			return nil, domain.Validationf(op, "duplicate outcome label %q", label)
		}
		seen[folded] = true
		out[i] = label
	}
	return out, nil
}

// splitLiquidity divides amount evenly across n pools; the remainder goes to
// outcome 0.
func splitLiquidity(amount domain.Amount, n int) ([]domain.Amount, error) {
	pools := make([]domain.Amount, n)
	if amount.IsZero() {
		return pools, nil
	}
	part, rem, err := amount.Split(uint64(n))
	if err != nil {
		return nil, err
	}
	for i := range pools {
		pools[i] = part
	}
	first, err := part.Add(rem)
	if err != nil {
		return nil, err
	}
	pools[0] = first
	return pools, nil
}
