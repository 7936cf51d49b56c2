package ledger

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alanyoungcy/arenaledger/internal/domain"
)

var (
	creator = common.HexToAddress("0x00000000000000000000000000000000000000c1")
	owner   = common.HexToAddress("0x00000000000000000000000000000000000000f0")
	oracle  = common.HexToAddress("0x00000000000000000000000000000000000000a1")
	alice   = common.HexToAddress("0x000000000000000000000000000000000000a11c")
	bob     = common.HexToAddress("0x0000000000000000000000000000000000000b0b")
	carol   = common.HexToAddress("0x00000000000000000000000000000000000ca201")
)

type testClock struct {
	mu sync.Mutex
	t  time.Time
}

func newTestClock() *testClock {
	return &testClock{t: time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)}
}

func (c *testClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *testClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.t = c.t.Add(d)
}

// recordingJournal keeps every commit and can be told to fail.
type recordingJournal struct {
	commits []domain.Commit
	fail    error
}

func (j *recordingJournal) Commit(_ context.Context, c domain.Commit) error {
	if j.fail != nil {
		return j.fail
	}
	j.commits = append(j.commits, c)
	return nil
}

func native(t *testing.T, s string) domain.Amount {
	t.Helper()
	a, err := domain.ParseNative(s)
	require.NoError(t, err)
	return a
}

func newTestLedger(t *testing.T, opts ...Option) (*Ledger, *testClock, *recordingJournal) {
	t.Helper()
	clk := newTestClock()
	j := &recordingJournal{}
	cfg := DefaultConfig()
	cfg.PlatformOwner = owner
	cfg.OracleAddresses = []common.Address{oracle}
	all := append([]Option{WithClock(clk.Now), WithJournal(j)}, opts...)
	l, err := New(cfg, all...)
	require.NoError(t, err)
	return l, clk, j
}

func createOpen(t *testing.T, l *Ledger, outcomes ...string) domain.MarketID {
	t.Helper()
	id, err := l.CreateMarket(context.Background(), creator, CreateMarketRequest{
		Question:  "Will it happen?",
		Outcomes:  outcomes,
		LaunchNow: true,
		EndTime:   l.clock().Add(24 * time.Hour),
	})
	require.NoError(t, err)
	return id
}

func bet(t *testing.T, l *Ledger, who common.Address, id domain.MarketID, outcome int, amount domain.Amount) {
	t.Helper()
	_, err := l.PlaceBet(context.Background(), who, id, outcome, amount, "")
	require.NoError(t, err)
}

func checkPools(t *testing.T, l *Ledger) {
	t.Helper()
	for i := uint64(0); i < l.MarketCount(); i++ {
		m, err := l.GetMarket(domain.MarketID(i))
		require.NoError(t, err)
		require.NoError(t, m.CheckInvariants(), "market %d", i)
	}
}

func assertAmount(t *testing.T, want, got domain.Amount, msg string) {
	t.Helper()
	assert.True(t, want.Equal(got), "%s: got %s, want %s", msg, got, want)
}

func TestBinaryPayoutAfterFee(t *testing.T) {
	ctx := context.Background()
	l, clk, _ := newTestLedger(t)
	id := createOpen(t, l, "Yes", "No")

	bet(t, l, alice, id, 0, native(t, "10"))
	bet(t, l, bob, id, 1, native(t, "5"))
	checkPools(t, l)

	clk.Advance(25 * time.Hour)
	res, err := l.ResolveMarket(ctx, creator, id, 0)
	require.NoError(t, err)
	assert.Equal(t, "Yes", res.WinningLabel)
	assertAmount(t, native(t, "15"), res.TotalPool, "total pool")
	assertAmount(t, native(t, "0.18"), res.CreatorFee, "creator fee")
	assertAmount(t, native(t, "0.12"), res.PlatformFee, "platform fee")

	payout, err := l.ClaimWinnings(ctx, alice, id)
	require.NoError(t, err)
	assertAmount(t, native(t, "14.7"), payout, "payout")
	checkPools(t, l)
}

func TestZeroPoolOddsFavorFirstOutcome(t *testing.T) {
	l, _, _ := newTestLedger(t)
	id := createOpen(t, l, "A", "B", "C")

	odds, err := l.GetOutcomeOdds(id)
	require.NoError(t, err)
	assert.Equal(t, []int{34, 33, 33}, odds)

	p, err := l.Percent(id, 0)
	require.NoError(t, err)
	assert.Equal(t, 34, p)
}

func TestResolveBeforeEndRejected(t *testing.T) {
	l, _, j := newTestLedger(t)
	id := createOpen(t, l, "Yes", "No")
	before := len(j.commits)

	_, err := l.ResolveMarket(context.Background(), creator, id, 0)
	require.ErrorIs(t, err, domain.ErrState)
	assert.Len(t, j.commits, before, "rejected resolve must not commit")
}

func TestDoubleResolveRejected(t *testing.T) {
	ctx := context.Background()
	l, clk, _ := newTestLedger(t)
	id := createOpen(t, l, "Yes", "No")
	clk.Advance(48 * time.Hour)

	_, err := l.ResolveMarket(ctx, creator, id, 1)
	require.NoError(t, err)
	_, err = l.ResolveMarket(ctx, creator, id, 0)
	require.ErrorIs(t, err, domain.ErrState)

	m, err := l.GetMarket(id)
	require.NoError(t, err)
	assert.Equal(t, 1, m.WinningOutcome)
}

func TestOutcomeSwitchRejected(t *testing.T) {
	ctx := context.Background()
	l, _, _ := newTestLedger(t)
	id := createOpen(t, l, "Yes", "No")

	bet(t, l, alice, id, 0, native(t, "1"))
	_, err := l.PlaceBet(ctx, alice, id, 1, native(t, "1"), "")
	require.ErrorIs(t, err, domain.ErrState)

	m, err := l.GetMarket(id)
	require.NoError(t, err)
	assertAmount(t, native(t, "1"), m.TotalPool, "total pool after rejected bet")
}

func TestPlaceBetAccumulates(t *testing.T) {
	l, _, _ := newTestLedger(t)
	id := createOpen(t, l, "Yes", "No")

	bet(t, l, alice, id, 0, native(t, "1"))
	bet(t, l, alice, id, 0, native(t, "2.5"))

	s, err := l.GetStake(id, alice)
	require.NoError(t, err)
	assertAmount(t, native(t, "3.5"), s.Amount, "stake")
	assert.Equal(t, uint64(2), s.FirstSeq)

	m, err := l.GetMarket(id)
	require.NoError(t, err)
	assert.Equal(t, 1, m.BettorCount)
}

func TestPlaceBetPhases(t *testing.T) {
	ctx := context.Background()
	l, clk, _ := newTestLedger(t)

	id, err := l.CreateMarket(ctx, creator, CreateMarketRequest{
		Question:  "Later?",
		Outcomes:  []string{"Yes", "No"},
		StartTime: clk.Now().Add(time.Hour),
		EndTime:   clk.Now().Add(2 * time.Hour),
	})
	require.NoError(t, err)

	phase, err := l.Phase(id)
	require.NoError(t, err)
	assert.Equal(t, domain.PhaseScheduled, phase)
	_, err = l.PlaceBet(ctx, alice, id, 0, native(t, "1"), "")
	require.ErrorIs(t, err, domain.ErrState)

	clk.Advance(time.Hour)
	bet(t, l, alice, id, 0, native(t, "1"))

	clk.Advance(time.Hour)
	phase, _ = l.Phase(id)
	assert.Equal(t, domain.PhaseResolvable, phase)
	_, err = l.PlaceBet(ctx, bob, id, 1, native(t, "1"), "")
	require.ErrorIs(t, err, domain.ErrState)
}

func TestPlaceBetValidation(t *testing.T) {
	ctx := context.Background()
	l, _, _ := newTestLedger(t)
	id := createOpen(t, l, "Yes", "No")

	tests := []struct {
		name    string
		bettor  common.Address
		id      domain.MarketID
		outcome int
		amount  domain.Amount
		want    error
	}{
		{"unknown market", alice, 99, 0, domain.NewAmount(1), domain.ErrNotFound},
		{"zero bettor", common.Address{}, id, 0, domain.NewAmount(1), domain.ErrValidation},
		{"zero amount", alice, id, 0, domain.Amount{}, domain.ErrValidation},
		{"negative outcome", alice, id, -1, domain.NewAmount(1), domain.ErrValidation},
		{"outcome out of range", alice, id, 2, domain.NewAmount(1), domain.ErrValidation},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := l.PlaceBet(ctx, tt.bettor, tt.id, tt.outcome, tt.amount, "")
			require.ErrorIs(t, err, tt.want)
		})
	}
	checkPools(t, l)
}

func TestPrivateMarketAccess(t *testing.T) {
	ctx := context.Background()
	l, _, _ := newTestLedger(t)

	id, err := l.CreateMarket(ctx, creator, CreateMarketRequest{
		Question:   "Members only?",
		Outcomes:   []string{"Yes", "No"},
		LaunchNow:  true,
		EndTime:    l.clock().Add(time.Hour),
		IsPrivate:  true,
		AccessCode: "hunter2",
	})
	require.NoError(t, err)

	m, err := l.GetMarket(id)
	require.NoError(t, err)
	assert.NotContains(t, string(m.AccessCommit), "hunter2")

	for _, code := range []string{"", "hunter3"} {
		_, err := l.PlaceBet(ctx, alice, id, 0, native(t, "1"), code)
		require.ErrorIs(t, err, domain.ErrAuthorization, "code %q", code)
	}
	_, err = l.PlaceBet(ctx, alice, id, 0, native(t, "1"), "hunter2")
	require.NoError(t, err)
}

func TestResolveAuthorization(t *testing.T) {
	ctx := context.Background()

	t.Run("manual", func(t *testing.T) {
		l, clk, _ := newTestLedger(t)
		id := createOpen(t, l, "Yes", "No")
		clk.Advance(48 * time.Hour)

		_, err := l.ResolveMarket(ctx, alice, id, 0)
		require.ErrorIs(t, err, domain.ErrAuthorization)
		_, err = l.ResolveMarket(ctx, oracle, id, 0)
		require.ErrorIs(t, err, domain.ErrAuthorization)
		_, err = l.ResolveMarket(ctx, owner, id, 0)
		require.NoError(t, err)
	})

	t.Run("oracle", func(t *testing.T) {
		l, clk, _ := newTestLedger(t)
		id, err := l.CreateMarket(ctx, creator, CreateMarketRequest{
			Question:       "Oracle?",
			Outcomes:       []string{"Yes", "No"},
			LaunchNow:      true,
			EndTime:        clk.Now().Add(time.Hour),
			ResolutionMode: domain.ResolutionOracle,
		})
		require.NoError(t, err)
		clk.Advance(2 * time.Hour)

		_, err = l.ResolveMarket(ctx, creator, id, 0)
		require.ErrorIs(t, err, domain.ErrAuthorization)
		_, err = l.ResolveMarket(ctx, oracle, id, 1)
		require.NoError(t, err)
	})

	t.Run("oracle without configured oracles", func(t *testing.T) {
		clk := newTestClock()
		l, err := New(DefaultConfig(), WithClock(clk.Now))
		require.NoError(t, err)
		id, err := l.CreateMarket(ctx, creator, CreateMarketRequest{
			Question:       "Oracle?",
			Outcomes:       []string{"Yes", "No"},
			LaunchNow:      true,
			EndTime:        clk.Now().Add(time.Hour),
			ResolutionMode: domain.ResolutionOracle,
		})
		require.NoError(t, err)
		clk.Advance(2 * time.Hour)

		_, err = l.ResolveMarket(ctx, creator, id, 0)
		require.ErrorIs(t, err, domain.ErrAuthorization)
	})

	t.Run("winning outcome out of range", func(t *testing.T) {
		l, clk, _ := newTestLedger(t)
		id := createOpen(t, l, "Yes", "No")
		clk.Advance(48 * time.Hour)
		_, err := l.ResolveMarket(ctx, creator, id, 2)
		require.ErrorIs(t, err, domain.ErrValidation)
	})
}

func TestClaimRules(t *testing.T) {
	ctx := context.Background()
	l, clk, _ := newTestLedger(t)
	id := createOpen(t, l, "Yes", "No")

	bet(t, l, alice, id, 0, native(t, "3"))
	bet(t, l, bob, id, 1, native(t, "2"))

	_, err := l.ClaimWinnings(ctx, alice, id)
	require.ErrorIs(t, err, domain.ErrState, "claim before resolution")

	clk.Advance(48 * time.Hour)
	_, err = l.ResolveMarket(ctx, creator, id, 0)
	require.NoError(t, err)

	_, err = l.ClaimWinnings(ctx, bob, id)
	require.ErrorIs(t, err, domain.ErrState, "losing claim")
	_, err = l.ClaimWinnings(ctx, carol, id)
	require.ErrorIs(t, err, domain.ErrState, "claim without stake")

	first, err := l.ClaimWinnings(ctx, alice, id)
	require.NoError(t, err)
	_, err = l.ClaimWinnings(ctx, alice, id)
	require.ErrorIs(t, err, domain.ErrState, "second claim")

	m, err := l.GetMarket(id)
	require.NoError(t, err)
	assertAmount(t, first, m.TotalClaimed, "total claimed")

	s, err := l.GetStake(id, alice)
	require.NoError(t, err)
	assert.True(t, s.Claimed)
	assertAmount(t, first, s.Payout, "stake payout")
	assertAmount(t, native(t, "5"), m.TotalPool, "pools are not drained by claims")
}

func TestEmptyWinningPool(t *testing.T) {
	ctx := context.Background()
	l, clk, _ := newTestLedger(t)
	id := createOpen(t, l, "Yes", "No")

	bet(t, l, alice, id, 1, native(t, "4"))
	clk.Advance(48 * time.Hour)
	res, err := l.ResolveMarket(ctx, creator, id, 0)
	require.NoError(t, err)
	assert.True(t, res.CreatorFee.IsZero())
	assert.True(t, res.PlatformFee.IsZero())
	assert.True(t, res.Distributable.IsZero())

	for _, who := range []common.Address{alice, bob} {
		_, err := l.ClaimWinnings(ctx, who, id)
		require.ErrorIs(t, err, domain.ErrArithmetic)
	}
}

func TestPayoutConservation(t *testing.T) {
	ctx := context.Background()
	l, clk, _ := newTestLedger(t)
	id := createOpen(t, l, "A", "B", "C")

	winners := []common.Address{alice, bob, carol}
	bet(t, l, alice, id, 0, domain.NewAmount(333))
	bet(t, l, bob, id, 0, domain.NewAmount(777))
	bet(t, l, carol, id, 0, domain.NewAmount(1))
	bet(t, l, common.HexToAddress("0xd1"), id, 1, domain.NewAmount(1000))
	bet(t, l, common.HexToAddress("0xd2"), id, 2, domain.NewAmount(999))

	clk.Advance(48 * time.Hour)
	res, err := l.ResolveMarket(ctx, creator, id, 0)
	require.NoError(t, err)
	assertAmount(t, domain.NewAmount(3049), res.Distributable, "distributable")

	var paid domain.Amount
	for _, who := range winners {
		p, err := l.ClaimWinnings(ctx, who, id)
		require.NoError(t, err)
		paid, err = paid.Add(p)
		require.NoError(t, err)
	}
	require.LessOrEqual(t, paid.Cmp(res.Distributable), 0, "paid %s exceeds distributable %s", paid, res.Distributable)
	dust, err := res.Distributable.Sub(paid)
	require.NoError(t, err)
	assert.Negative(t, dust.Cmp(domain.NewAmount(uint64(len(winners)))), "dust %s", dust)
	checkPools(t, l)
}

func TestInitialLiquiditySplit(t *testing.T) {
	ctx := context.Background()
	l, clk, _ := newTestLedger(t)

	id, err := l.CreateMarket(ctx, creator, CreateMarketRequest{
		Question:         "Seeded?",
		Outcomes:         []string{"A", "B", "C"},
		LaunchNow:        true,
		EndTime:          clk.Now().Add(time.Hour),
		InitialLiquidity: domain.NewAmount(100),
	})
	require.NoError(t, err)

	m, err := l.GetMarket(id)
	require.NoError(t, err)
	for i, w := range []uint64{34, 33, 33} {
		assertAmount(t, domain.NewAmount(w), m.OutcomePools[i], "pool")
	}
	assert.Zero(t, m.BettorCount, "liquidity is not a bettor")
	checkPools(t, l)
}

func TestCreateMarketValidation(t *testing.T) {
	ctx := context.Background()
	l, clk, j := newTestLedger(t)
	now := clk.Now()

	base := func() CreateMarketRequest {
		return CreateMarketRequest{
			Question:  "Q?",
			Outcomes:  []string{"Yes", "No"},
			StartTime: now.Add(time.Minute),
			EndTime:   now.Add(time.Hour),
		}
	}
	tests := []struct {
		name   string
		mutate func(*CreateMarketRequest)
	}{
		{"empty question", func(r *CreateMarketRequest) { r.Question = "  " }},
		{"one outcome", func(r *CreateMarketRequest) { r.Outcomes = []string{"Yes"} }},
		{"eleven outcomes", func(r *CreateMarketRequest) {
			r.Outcomes = []string{"1", "2", "3", "4", "5", "6", "7", "8", "9", "10", "11"}
		}},
		{"blank label", func(r *CreateMarketRequest) { r.Outcomes = []string{"Yes", " "} }},
		{"duplicate fallback", func(r *CreateMarketRequest) { r.Outcomes = []string{"Other", "other"} }},
		{"end equals start", func(r *CreateMarketRequest) { r.EndTime = r.StartTime }},
		{"start in past", func(r *CreateMarketRequest) { r.StartTime = now.Add(-time.Minute) }},
		{"private without code", func(r *CreateMarketRequest) { r.IsPrivate = true }},
		{"unknown category", func(r *CreateMarketRequest) { r.Category = "weather" }},
		{"unknown resolution mode", func(r *CreateMarketRequest) { r.ResolutionMode = 7 }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := base()
			tt.mutate(&req)
			_, err := l.CreateMarket(ctx, creator, req)
			require.ErrorIs(t, err, domain.ErrValidation)
		})
	}
	require.Zero(t, l.MarketCount())
	require.Empty(t, j.commits)

	_, err := l.CreateMarket(ctx, common.Address{}, base())
	require.ErrorIs(t, err, domain.ErrValidation, "zero creator")

	id, err := l.CreateMarket(ctx, creator, base())
	require.NoError(t, err)
	assert.Equal(t, domain.MarketID(0), id)

	m, err := l.GetMarket(id)
	require.NoError(t, err)
	assert.Equal(t, domain.CategoryOther, m.Category)
	assert.Equal(t, -1, m.WinningOutcome)

	next, err := l.CreateMarket(ctx, creator, base())
	require.NoError(t, err)
	assert.Equal(t, domain.MarketID(1), next)
}

func TestLaunchNowSetsStart(t *testing.T) {
	l, clk, _ := newTestLedger(t)
	id, err := l.CreateMarket(context.Background(), creator, CreateMarketRequest{
		Question:  "Now?",
		Outcomes:  []string{"Yes", "No"},
		StartTime: clk.Now().Add(-time.Hour),
		LaunchNow: true,
		EndTime:   clk.Now().Add(time.Hour),
	})
	require.NoError(t, err)
	m, err := l.GetMarket(id)
	require.NoError(t, err)
	assert.True(t, m.StartTime.Equal(clk.Now()))
}

func TestFailedCommitLeavesNoTrace(t *testing.T) {
	ctx := context.Background()
	l, _, j := newTestLedger(t)
	id := createOpen(t, l, "Yes", "No")

	j.fail = errors.New("disk full")
	_, err := l.PlaceBet(ctx, alice, id, 0, native(t, "1"), "")
	require.Error(t, err)
	assert.Zero(t, domain.KindOf(err), "journal failures are not ledger rejections")
	j.fail = nil

	m, err := l.GetMarket(id)
	require.NoError(t, err)
	assert.True(t, m.TotalPool.IsZero())
	assert.Zero(t, m.BettorCount)
	_, err = l.GetStake(id, alice)
	require.ErrorIs(t, err, domain.ErrNotFound)
	assert.Equal(t, uint64(1), l.LastSeq())

	bet(t, l, alice, id, 0, native(t, "1"))
	assert.Equal(t, uint64(2), j.commits[len(j.commits)-1].Event.Seq)
}

func TestBettorsAndUserMarkets(t *testing.T) {
	l, _, _ := newTestLedger(t)
	m0 := createOpen(t, l, "Yes", "No")
	m1 := createOpen(t, l, "Yes", "No")

	bet(t, l, bob, m1, 0, domain.NewAmount(1))
	bet(t, l, alice, m0, 0, domain.NewAmount(1))
	bet(t, l, bob, m0, 0, domain.NewAmount(1))
	bet(t, l, alice, m0, 0, domain.NewAmount(1))
	bet(t, l, bob, m1, 0, domain.NewAmount(1))

	bettors, err := l.GetMarketBettors(m0)
	require.NoError(t, err)
	assert.Equal(t, []common.Address{alice, bob}, bettors)
	assert.Equal(t, []domain.MarketID{m1, m0}, l.GetUserMarkets(bob))
	assert.Empty(t, l.GetUserMarkets(carol))

	_, err = l.GetMarketBettors(42)
	require.ErrorIs(t, err, domain.ErrNotFound)
}

func TestListMarkets(t *testing.T) {
	l, _, _ := newTestLedger(t)
	for i := 0; i < 5; i++ {
		createOpen(t, l, "Yes", "No")
	}

	page := l.ListMarkets(domain.ListOpts{Offset: 1, Limit: 2})
	require.Len(t, page, 2)
	assert.Equal(t, domain.MarketID(1), page[0].ID)
	assert.Equal(t, []int{50, 50}, page[0].Odds)
	assert.Equal(t, domain.PhaseActive, page[0].Phase)

	assert.Len(t, l.ListMarkets(domain.ListOpts{}), 5)
	assert.Empty(t, l.ListMarkets(domain.ListOpts{Offset: 10}))
}

func TestCommitHookSeesEveryEvent(t *testing.T) {
	ctx := context.Background()
	var seen []domain.EventType
	var seqs []uint64
	l, clk, _ := newTestLedger(t, WithCommitHook(func(c domain.Commit) {
		seen = append(seen, c.Event.Type)
		seqs = append(seqs, c.Event.Seq)
	}))
	id := createOpen(t, l, "Yes", "No")
	bet(t, l, alice, id, 0, domain.NewAmount(10))
	clk.Advance(48 * time.Hour)
	_, err := l.ResolveMarket(ctx, creator, id, 0)
	require.NoError(t, err)
	_, err = l.ClaimWinnings(ctx, alice, id)
	require.NoError(t, err)

	assert.Equal(t, []domain.EventType{
		domain.EventMarketCreated, domain.EventBetPlaced,
		domain.EventMarketResolved, domain.EventWinningsClaimed,
	}, seen)
	assert.Equal(t, []uint64{1, 2, 3, 4}, seqs)
}

func TestPreviewPayoutMatchesClaim(t *testing.T) {
	ctx := context.Background()
	l, clk, _ := newTestLedger(t)
	id := createOpen(t, l, "Yes", "No")

	bet(t, l, bob, id, 1, native(t, "5"))
	preview, err := l.PreviewPayout(id, 0, native(t, "10"))
	require.NoError(t, err)
	assertAmount(t, native(t, "14.7"), preview, "preview")

	bet(t, l, alice, id, 0, native(t, "10"))
	clk.Advance(48 * time.Hour)
	_, err = l.ResolveMarket(ctx, creator, id, 0)
	require.NoError(t, err)
	got, err := l.ClaimWinnings(ctx, alice, id)
	require.NoError(t, err)
	assertAmount(t, preview, got, "claim vs preview")

	_, err = l.PreviewPayout(id, 0, domain.Amount{})
	require.ErrorIs(t, err, domain.ErrValidation)
}

func TestRestore(t *testing.T) {
	src, clk, j := newTestLedger(t)
	id := createOpen(t, src, "Yes", "No")
	bet(t, src, bob, id, 0, domain.NewAmount(5))
	bet(t, src, alice, id, 0, domain.NewAmount(5))

	// Build the snapshot the way the store would: last write wins per key.
	var snap domain.Snapshot
	markets := map[domain.MarketID]domain.Market{}
	stakes := map[domain.StakeKey]domain.Stake{}
	var order []domain.StakeKey
	for _, c := range j.commits {
		markets[c.Market.ID] = c.Market
		if c.Stake != nil {
			if _, ok := stakes[c.Stake.Key()]; !ok {
				order = append(order, c.Stake.Key())
			}
			stakes[c.Stake.Key()] = *c.Stake
		}
		snap.LastSeq = c.Event.Seq
	}
	snap.Markets = []domain.Market{markets[id]}
	for _, k := range order {
		snap.Stakes = append(snap.Stakes, stakes[k])
	}

	dst, err := New(DefaultConfig(), WithClock(clk.Now))
	require.NoError(t, err)
	require.NoError(t, dst.Restore(snap))
	assert.Equal(t, src.LastSeq(), dst.LastSeq())

	bettors, err := dst.GetMarketBettors(id)
	require.NoError(t, err)
	assert.Equal(t, []common.Address{bob, alice}, bettors)
	require.ErrorIs(t, dst.Restore(snap), domain.ErrState, "restore twice")

	bad := snap
	bad.Markets = []domain.Market{markets[id].Clone()}
	bad.Markets[0].TotalPool = domain.NewAmount(1)
	fresh, err := New(DefaultConfig())
	require.NoError(t, err)
	require.ErrorIs(t, fresh.Restore(bad), domain.ErrArithmetic)

	orphan := domain.Snapshot{Stakes: []domain.Stake{{MarketID: 3, Bettor: alice, Amount: domain.NewAmount(1)}}}
	fresh, err = New(DefaultConfig())
	require.NoError(t, err)
	require.ErrorIs(t, fresh.Restore(orphan), domain.ErrValidation)
}

func TestNewRejectsFeeAtOrAboveWhole(t *testing.T) {
	cfg := DefaultConfig()
	cfg.CreatorFeeBps = 9_000
	cfg.PlatformFeeBps = 1_000
	_, err := New(cfg)
	require.Error(t, err)
}
