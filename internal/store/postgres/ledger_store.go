package postgres

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/alanyoungcy/arenaledger/internal/domain"
)

// LedgerStore implements domain.LedgerStore. Each Commit writes the market
// row, the touched stake and the event in a single transaction.
type LedgerStore struct {
	pool *pgxpool.Pool
}

// NewLedgerStore creates a new LedgerStore backed by the given connection pool.
func NewLedgerStore(pool *pgxpool.Pool) *LedgerStore {
	return &LedgerStore{pool: pool}
}

const upsertMarketSQL = `
	INSERT INTO markets (
		id, question, rules, image_ref, category,
		outcome_labels, outcome_pools, total_pool,
		start_time, end_time, resolved, winning_outcome,
		creator, created_at, is_private, access_commit,
		resolution_mode, bettor_count, resolved_at, resolved_by,
		creator_fee, platform_fee, distributable, total_claimed, updated_at
	) VALUES (
		$1, $2, $3, $4, $5,
		$6, $7::text[]::numeric[], $8::text::numeric,
		$9, $10, $11, $12,
		$13, $14, $15, $16,
		$17, $18, $19, $20,
		$21::text::numeric, $22::text::numeric, $23::text::numeric, $24::text::numeric, NOW()
	)
	ON CONFLICT (id) DO UPDATE SET
		outcome_pools   = EXCLUDED.outcome_pools,
		total_pool      = EXCLUDED.total_pool,
		resolved        = EXCLUDED.resolved,
		winning_outcome = EXCLUDED.winning_outcome,
		bettor_count    = EXCLUDED.bettor_count,
		resolved_at     = EXCLUDED.resolved_at,
		resolved_by     = EXCLUDED.resolved_by,
		creator_fee     = EXCLUDED.creator_fee,
		platform_fee    = EXCLUDED.platform_fee,
		distributable   = EXCLUDED.distributable,
		total_claimed   = EXCLUDED.total_claimed,
		updated_at      = NOW()`

const upsertStakeSQL = `
	INSERT INTO stakes (
		market_id, bettor, outcome_index, amount, claimed, payout,
		first_seq, created_at, updated_at, claimed_at
	) VALUES (
		$1, $2, $3, $4::text::numeric, $5, $6::text::numeric,
		$7, $8, $9, $10
	)
	ON CONFLICT (market_id, bettor) DO UPDATE SET
		amount     = EXCLUDED.amount,
		claimed    = EXCLUDED.claimed,
		payout     = EXCLUDED.payout,
		updated_at = EXCLUDED.updated_at,
		claimed_at = EXCLUDED.claimed_at`

const insertEventSQL = `
	INSERT INTO ledger_events (seq, type, market_id, at, payload)
	VALUES ($1, $2, $3, $4, $5)`

// Commit persists one ledger mutation atomically. A duplicate event sequence
// fails the whole transaction, so two writers can never both commit seq n.
func (s *LedgerStore) Commit(ctx context.Context, c domain.Commit) error {
	payload, err := json.Marshal(c.Event.Payload())
	if err != nil {
		return fmt.Errorf("postgres: encode event %d: %w", c.Event.Seq, err)
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("postgres: begin commit %d: %w", c.Event.Seq, err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	m := c.Market
	var resolvedBy *string
	if m.ResolvedBy != nil {
		hex := m.ResolvedBy.Hex()
		resolvedBy = &hex
	}
	if _, err := tx.Exec(ctx, upsertMarketSQL,
		int64(m.ID), m.Question, m.Rules, m.ImageRef, string(m.Category),
		m.Outcomes, amountStrings(m.OutcomePools), m.TotalPool.String(),
		m.StartTime, m.EndTime, m.Resolved, m.WinningOutcome,
		m.Creator.Hex(), m.CreatedAt, m.IsPrivate, m.AccessCommit,
		int16(m.ResolutionMode), m.BettorCount, m.ResolvedAt, resolvedBy,
		m.CreatorFee.String(), m.PlatformFee.String(), m.Distributable.String(), m.TotalClaimed.String(),
	); err != nil {
		return fmt.Errorf("postgres: upsert market %d: %w", m.ID, err)
	}

	if st := c.Stake; st != nil {
		if _, err := tx.Exec(ctx, upsertStakeSQL,
			int64(st.MarketID), st.Bettor.Hex(), st.OutcomeIndex, st.Amount.String(), st.Claimed, st.Payout.String(),
			int64(st.FirstSeq), st.CreatedAt, st.UpdatedAt, st.ClaimedAt,
		); err != nil {
			return fmt.Errorf("postgres: upsert stake %d/%s: %w", st.MarketID, st.Bettor.Hex(), err)
		}
	}

	if _, err := tx.Exec(ctx, insertEventSQL,
		int64(c.Event.Seq), string(c.Event.Type), int64(c.Event.MarketID), c.Event.At, payload,
	); err != nil {
		return fmt.Errorf("postgres: insert event %d: %w", c.Event.Seq, err)
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("postgres: commit event %d: %w", c.Event.Seq, err)
	}
	return nil
}

// LoadSnapshot reads every market and stake plus the last event sequence.
func (s *LedgerStore) LoadSnapshot(ctx context.Context) (domain.Snapshot, error) {
	var snap domain.Snapshot

	tx, err := s.pool.BeginTx(ctx, pgx.TxOptions{IsoLevel: pgx.RepeatableRead, AccessMode: pgx.ReadOnly})
	if err != nil {
		return snap, fmt.Errorf("postgres: begin snapshot: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	if snap.Markets, err = loadMarkets(ctx, tx); err != nil {
		return snap, err
	}
	if snap.Stakes, err = loadStakes(ctx, tx); err != nil {
		return snap, err
	}

	var last int64
	if err := tx.QueryRow(ctx, `SELECT COALESCE(MAX(seq), 0) FROM ledger_events`).Scan(&last); err != nil {
		return snap, fmt.Errorf("postgres: last event seq: %w", err)
	}
	snap.LastSeq = uint64(last)

	return snap, tx.Commit(ctx)
}

func loadMarkets(ctx context.Context, tx pgx.Tx) ([]domain.Market, error) {
	const query = `
		SELECT id, question, rules, image_ref, category,
		       outcome_labels, outcome_pools::text[], total_pool::text,
		       start_time, end_time, resolved, winning_outcome,
		       creator, created_at, is_private, access_commit,
		       resolution_mode, bettor_count, resolved_at, resolved_by,
		       creator_fee::text, platform_fee::text, distributable::text, total_claimed::text
		FROM markets
		ORDER BY id`

	rows, err := tx.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("postgres: load markets: %w", err)
	}
	defer rows.Close()

	var markets []domain.Market
	for rows.Next() {
		var (
			m                                        domain.Market
			id                                       int64
			category, creator                        string
			pools                                    []string
			total, creatorFee, platformFee, dist, tc string
			mode                                     int16
			resolvedBy                               *string
		)
		if err := rows.Scan(
			&id, &m.Question, &m.Rules, &m.ImageRef, &category,
			&m.Outcomes, &pools, &total,
			&m.StartTime, &m.EndTime, &m.Resolved, &m.WinningOutcome,
			&creator, &m.CreatedAt, &m.IsPrivate, &m.AccessCommit,
			&mode, &m.BettorCount, &m.ResolvedAt, &resolvedBy,
			&creatorFee, &platformFee, &dist, &tc,
		); err != nil {
			return nil, fmt.Errorf("postgres: scan market: %w", err)
		}
		m.ID = domain.MarketID(id)
		m.Category = domain.Category(category)
		m.Creator = common.HexToAddress(creator)
		m.ResolutionMode = domain.ResolutionMode(mode)
		m.StartTime, m.EndTime, m.CreatedAt = m.StartTime.UTC(), m.EndTime.UTC(), m.CreatedAt.UTC()
		if resolvedBy != nil {
			addr := common.HexToAddress(*resolvedBy)
			m.ResolvedBy = &addr
		}
		if m.OutcomePools, err = parseAmounts(pools); err != nil {
			return nil, fmt.Errorf("postgres: market %d pools: %w", id, err)
		}
		for dst, src := range map[*domain.Amount]string{
			&m.TotalPool: total, &m.CreatorFee: creatorFee, &m.PlatformFee: platformFee,
			&m.Distributable: dist, &m.TotalClaimed: tc,
		} {
			if *dst, err = domain.ParseAmount(src); err != nil {
				return nil, fmt.Errorf("postgres: market %d amount: %w", id, err)
			}
		}
		markets = append(markets, m)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("postgres: iterate markets: %w", err)
	}
	return markets, nil
}

func loadStakes(ctx context.Context, tx pgx.Tx) ([]domain.Stake, error) {
	const query = `
		SELECT market_id, bettor, outcome_index, amount::text, claimed, payout::text,
		       first_seq, created_at, updated_at, claimed_at
		FROM stakes
		ORDER BY first_seq`

	rows, err := tx.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("postgres: load stakes: %w", err)
	}
	defer rows.Close()

	var stakes []domain.Stake
	for rows.Next() {
		var (
			st                     domain.Stake
			marketID, firstSeq     int64
			bettor, amount, payout string
		)
		if err := rows.Scan(
			&marketID, &bettor, &st.OutcomeIndex, &amount, &st.Claimed, &payout,
			&firstSeq, &st.CreatedAt, &st.UpdatedAt, &st.ClaimedAt,
		); err != nil {
			return nil, fmt.Errorf("postgres: scan stake: %w", err)
		}
		st.MarketID = domain.MarketID(marketID)
		st.Bettor = common.HexToAddress(bettor)
		st.FirstSeq = uint64(firstSeq)
		if st.Amount, err = domain.ParseAmount(amount); err != nil {
			return nil, fmt.Errorf("postgres: stake amount: %w", err)
		}
		if st.Payout, err = domain.ParseAmount(payout); err != nil {
			return nil, fmt.Errorf("postgres: stake payout: %w", err)
		}
		stakes = append(stakes, st)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("postgres: iterate stakes: %w", err)
	}
	return stakes, nil
}

// ListEventsAfter returns up to limit events with seq > after, in order.
func (s *LedgerStore) ListEventsAfter(ctx context.Context, after uint64, limit int) ([]domain.Event, error) {
	if limit <= 0 {
		limit = 500
	}
	const query = `
		SELECT seq, type, market_id, at, payload
		FROM ledger_events
		WHERE seq > $1
		ORDER BY seq
		LIMIT $2`

	rows, err := s.pool.Query(ctx, query, int64(after), limit)
	if err != nil {
		return nil, fmt.Errorf("postgres: list events after %d: %w", after, err)
	}
	defer rows.Close()

	var events []domain.Event
	for rows.Next() {
		var (
			seq, marketID int64
			typ           string
			at            time.Time
			payload       []byte
		)
		if err := rows.Scan(&seq, &typ, &marketID, &at, &payload); err != nil {
			return nil, fmt.Errorf("postgres: scan event: %w", err)
		}
		ev := domain.Event{
			Seq:      uint64(seq),
			Type:     domain.EventType(typ),
			MarketID: domain.MarketID(marketID),
			At:       at.UTC(),
		}
		if err := ev.SetPayload(payload); err != nil {
			return nil, fmt.Errorf("postgres: event %d: %w", seq, err)
		}
		events = append(events, ev)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("postgres: iterate events: %w", err)
	}
	return events, nil
}

func amountStrings(xs []domain.Amount) []string {
	out := make([]string, len(xs))
	for i, x := range xs {
		out[i] = x.String()
	}
	return out
}

func parseAmounts(xs []string) ([]domain.Amount, error) {
	out := make([]domain.Amount, len(xs))
	for i, x := range xs {
		a, err := domain.ParseAmount(x)
		if err != nil {
			return nil, err
		}
		out[i] = a
	}
	return out, nil
}

// Compile-time interface check.
var _ domain.LedgerStore = (*LedgerStore)(nil)
