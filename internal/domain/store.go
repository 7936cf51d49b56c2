package domain

import (
	"context"
	"time"
)

// ListOpts provides pagination for list queries.
type ListOpts struct {
	Limit  int
	Offset int
}

// Commit is everything one ledger mutation writes: the market as it stands
// after the operation, the touched stake (nil for market-only changes) and
// the event describing it.
type Commit struct {
	Market Market
	Stake  *Stake
	Event  Event
}

// Journal durably records ledger mutations. Commit must be all-or-nothing.
type Journal interface {
	Commit(ctx context.Context, c Commit) error
}

// Snapshot is the full persisted ledger state used to rebuild memory at
// startup.
type Snapshot struct {
	Markets []Market
	// Stakes are ordered by FirstSeq.
	Stakes  []Stake
	LastSeq uint64
}

// EventSource serves the event log in sequence order.
type EventSource interface {
	ListEventsAfter(ctx context.Context, seq uint64, limit int) ([]Event, error)
}

// LedgerStore is the durable backing for the ledger.
type LedgerStore interface {
	Journal
	EventSource
	LoadSnapshot(ctx context.Context) (Snapshot, error)
}

// AuditEntry records one operator action.
type AuditEntry struct {
	ID        int64          `json:"id"`
	Event     string         `json:"event"`
	Detail    map[string]any `json:"detail,omitempty"`
	CreatedAt time.Time      `json:"created_at"`
}

// AuditLog persists operator actions such as manual archives and
// leaderboard rebuilds.
type AuditLog interface {
	Log(ctx context.Context, event string, detail map[string]any) error
	List(ctx context.Context, opts ListOpts) ([]AuditEntry, error)
}
