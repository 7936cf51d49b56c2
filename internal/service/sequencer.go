package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/alanyoungcy/arenaledger/internal/domain"
)

// SequencerLockKey is the lease that makes one daemon the only writer.
const SequencerLockKey = "ledger:sequencer"

// Sequencer holds the single-writer lease for as long as the daemon runs.
type Sequencer struct {
	locks  domain.LockManager
	ttl    time.Duration
	logger *slog.Logger

	lease domain.Lease
}

// NewSequencer creates a Sequencer that renews its lease every ttl/3.
func NewSequencer(locks domain.LockManager, ttl time.Duration, logger *slog.Logger) *Sequencer {
	return &Sequencer{
		locks:  locks,
		ttl:    ttl,
		logger: logger.With(slog.String("component", "sequencer")),
	}
}

// Acquire takes the lease or fails with domain.ErrLockHeld.
func (s *Sequencer) Acquire(ctx context.Context) error {
	lease, err := s.locks.Acquire(ctx, SequencerLockKey, s.ttl)
	if err != nil {
		if errors.Is(err, domain.ErrLockHeld) {
			return fmt.Errorf("sequencer: another daemon owns the ledger: %w", err)
		}
		return fmt.Errorf("sequencer: acquire lease: %w", err)
	}
	s.lease = lease
	s.logger.Info("sequencer lease acquired", slog.Duration("ttl", s.ttl))
	return nil
}

// Run renews the lease until ctx is cancelled, then releases it. It returns
// an error as soon as the lease is lost so the daemon stops writing.
func (s *Sequencer) Run(ctx context.Context) error {
	if s.lease == nil {
		return errors.New("sequencer: Run called before Acquire")
	}
	defer s.lease.Release()

	ticker := time.NewTicker(s.ttl / 3)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			s.logger.Info("sequencer lease released")
			return nil
		case <-ticker.C:
			if err := s.lease.Extend(ctx, s.ttl); err != nil {
				if ctx.Err() != nil {
					return nil
				}
				if errors.Is(err, domain.ErrLockLost) {
					return fmt.Errorf("sequencer: %w", err)
				}
				// A transient Redis error; the next tick retries before the TTL runs out.
				s.logger.Warn("sequencer lease renewal failed", slog.String("error", err.Error()))
			}
		}
	}
}
