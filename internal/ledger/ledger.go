// Package ledger is the settlement core: market registry, pooled stakes,
// odds, resolution and payouts. A Ledger is the single owner of market and
// stake state; every mutation runs to completion under one lock and is either
// fully committed to the Journal and memory, or not applied at all.
package ledger

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/alanyoungcy/arenaledger/internal/domain"
	"github.com/ethereum/go-ethereum/common"
)

// Config holds the settlement parameters.
type Config struct {
	CreatorFeeBps   uint64
	PlatformFeeBps  uint64
	PlatformOwner   common.Address
	OracleAddresses []common.Address
	MaxQuestionLen  int
	MaxRulesLen     int
	MaxLabelLen     int
}

// DefaultConfig returns the 1.2% creator / 0.8% platform fee split.
func DefaultConfig() Config {
	return Config{
		CreatorFeeBps:  120,
		PlatformFeeBps: 80,
		MaxQuestionLen: 500,
		MaxRulesLen:    5000,
		MaxLabelLen:    100,
	}
}

// FeeBps is the combined fee rate.
func (c Config) FeeBps() uint64 { return c.CreatorFeeBps + c.PlatformFeeBps }

func (c Config) validate() error {
	if c.FeeBps() >= domain.BasisPoints {
		return fmt.Errorf("ledger: combined fee %d bps must be below %d", c.FeeBps(), domain.BasisPoints)
	}
	if c.MaxQuestionLen <= 0 || c.MaxRulesLen <= 0 || c.MaxLabelLen <= 0 {
		return fmt.Errorf("ledger: text length limits must be positive")
	}
	return nil
}

// Option configures a Ledger.
type Option func(*Ledger)

// WithClock overrides the wall clock used for phase checks and timestamps.
func WithClock(now func() time.Time) Option {
	return func(l *Ledger) { l.now = now }
}

// WithJournal sets the durable journal. Without one, commits only update
// memory.
func WithJournal(j domain.Journal) Option {
	return func(l *Ledger) { l.journal = j }
}

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(l *Ledger) { l.logger = logger }
}

// WithCommitHook registers fn to run after every successful commit. Hooks run
// under the ledger lock, in sequence order, and must not block.
func WithCommitHook(fn func(domain.Commit)) Option {
	return func(l *Ledger) { l.hooks = append(l.hooks, fn) }
}

// Ledger is the owned settlement state container.
type Ledger struct {
	cfg     Config
	oracles map[common.Address]bool
	now     func() time.Time
	journal domain.Journal
	logger  *slog.Logger
	hooks   []func(domain.Commit)

	mu          sync.RWMutex
	markets     []*domain.Market
	stakes      map[domain.StakeKey]*domain.Stake
	bettors     map[domain.MarketID][]common.Address
	userMarkets map[common.Address][]domain.MarketID
	seq         uint64
}

// New creates an empty Ledger.
func New(cfg Config, opts ...Option) (*Ledger, error) {
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	l := &Ledger{
		cfg:         cfg,
		oracles:     make(map[common.Address]bool, len(cfg.OracleAddresses)),
		now:         time.Now,
		journal:     nopJournal{},
		logger:      slog.Default(),
		stakes:      make(map[domain.StakeKey]*domain.Stake),
		bettors:     make(map[domain.MarketID][]common.Address),
		userMarkets: make(map[common.Address][]domain.MarketID),
	}
	for _, a := range cfg.OracleAddresses {
		l.oracles[a] = true
	}
	for _, opt := range opts {
		opt(l)
	}
	l.logger = l.logger.With(slog.String("component", "ledger"))
	return l, nil
}

type nopJournal struct{}

func (nopJournal) Commit(context.Context, domain.Commit) error { return nil }

func (l *Ledger) clock() time.Time { return l.now().UTC() }

// market returns the committed market. Caller holds l.mu.
func (l *Ledger) market(op string, id domain.MarketID) (*domain.Market, error) {
	if uint64(id) >= uint64(len(l.markets)) {
		return nil, domain.NotFoundf(op, "market %d not found", id)
	}
	return l.markets[id], nil
}

// commit journals the mutation and then swaps it into memory. Caller holds
// l.mu for writing and has set c.Event.Seq to l.seq+1.
func (l *Ledger) commit(ctx context.Context, c domain.Commit) error {
	if err := l.journal.Commit(ctx, c); err != nil {
		return fmt.Errorf("ledger: commit %s for market %d: %w", c.Event.Type, c.Market.ID, err)
	}
	l.seq = c.Event.Seq

	m := c.Market.Clone()
	if int(m.ID) == len(l.markets) {
		l.markets = append(l.markets, &m)
	} else {
		l.markets[m.ID] = &m
	}

	if c.Stake != nil {
		s := c.Stake.Clone()
		key := s.Key()
		if _, seen := l.stakes[key]; !seen {
			l.bettors[s.MarketID] = append(l.bettors[s.MarketID], s.Bettor)
			l.userMarkets[s.Bettor] = append(l.userMarkets[s.Bettor], s.MarketID)
		}
		l.stakes[key] = &s
	}

	for _, hook := range l.hooks {
		hook(c)
	}
	return nil
}

// LastSeq returns the sequence number of the last committed event.
func (l *Ledger) LastSeq() uint64 {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.seq
}

// Restore loads persisted state into an empty ledger after verifying it.
func (l *Ledger) Restore(snap domain.Snapshot) error {
	const op = "restore"

	l.mu.Lock()
	defer l.mu.Unlock()

	if len(l.markets) != 0 || l.seq != 0 {
		return domain.Statef(op, "ledger already holds state")
	}

	markets := make([]*domain.Market, len(snap.Markets))
	for i := range snap.Markets {
		m := snap.Markets[i].Clone()
		if int(m.ID) != i {
			return domain.Validationf(op, "market ids not sequential: position %d holds id %d", i, m.ID)
		}
		if err := m.CheckInvariants(); err != nil {
			return err
		}
		m.BettorCount = 0
		markets[i] = &m
	}

	stakes := append([]domain.Stake(nil), snap.Stakes...)
	sort.SliceStable(stakes, func(i, j int) bool { return stakes[i].FirstSeq < stakes[j].FirstSeq })

	staked := make(map[domain.MarketID][]domain.Amount)
	byKey := make(map[domain.StakeKey]*domain.Stake, len(stakes))
	bettors := make(map[domain.MarketID][]common.Address)
	userMarkets := make(map[common.Address][]domain.MarketID)
	for i := range stakes {
		s := stakes[i].Clone()
		if uint64(s.MarketID) >= uint64(len(markets)) {
			return domain.Validationf(op, "stake of %s references unknown market %d", s.Bettor.Hex(), s.MarketID)
		}
		m := markets[s.MarketID]
		if s.Amount.IsZero() {
			return domain.Validationf(op, "stake of %s on market %d is zero", s.Bettor.Hex(), s.MarketID)
		}
		if s.OutcomeIndex < 0 || s.OutcomeIndex >= m.OutcomeCount() {
			return domain.Validationf(op, "stake of %s on market %d has outcome %d", s.Bettor.Hex(), s.MarketID, s.OutcomeIndex)
		}
		key := s.Key()
		if _, dup := byKey[key]; dup {
			return domain.Validationf(op, "duplicate stake of %s on market %d", s.Bettor.Hex(), s.MarketID)
		}
		if s.Claimed && (!m.Resolved || s.OutcomeIndex != m.WinningOutcome) {
			return domain.Validationf(op, "stake of %s on market %d claimed without winning", s.Bettor.Hex(), s.MarketID)
		}

		sums := staked[s.MarketID]
		if sums == nil {
			sums = make([]domain.Amount, m.OutcomeCount())
			staked[s.MarketID] = sums
		}
		sum, err := sums[s.OutcomeIndex].Add(s.Amount)
		if err != nil {
			return err
		}
		sums[s.OutcomeIndex] = sum

		byKey[key] = &s
		bettors[s.MarketID] = append(bettors[s.MarketID], s.Bettor)
		userMarkets[s.Bettor] = append(userMarkets[s.Bettor], s.MarketID)
		m.BettorCount++
	}

	// Pools hold stakes plus seeded liquidity, never less than the stakes.
	for id, sums := range staked {
		m := markets[id]
		for i, sum := range sums {
			if sum.Cmp(m.OutcomePools[i]) > 0 {
				return domain.Arithmeticf(op, "market %d outcome %d pool %s below staked %s", id, i, m.OutcomePools[i], sum)
			}
		}
	}

	l.markets = markets
	l.stakes = byKey
	l.bettors = bettors
	l.userMarkets = userMarkets
	l.seq = snap.LastSeq

	l.logger.Info("ledger restored",
		slog.Int("markets", len(markets)),
		slog.Int("stakes", len(byKey)),
		slog.Uint64("last_seq", snap.LastSeq),
	)
	return nil
}
