package pipeline

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/alanyoungcy/arenaledger/internal/domain"
)

// maxArchiveBatches bounds one archive run so a large backlog is drained
// over several ticks.
const maxArchiveBatches = 20

// ArchiveJob exports new ledger events to object storage.
type ArchiveJob struct {
	archiver domain.EventArchiver
	logger   *slog.Logger
}

// NewArchiveJob creates an ArchiveJob.
func NewArchiveJob(archiver domain.EventArchiver, logger *slog.Logger) *ArchiveJob {
	return &ArchiveJob{archiver: archiver, logger: logger}
}

func (j *ArchiveJob) Name() string { return "archive" }

// Run uploads batches until the archive is caught up.
func (j *ArchiveJob) Run(ctx context.Context) error {
	total := 0
	for range maxArchiveBatches {
		res, err := j.archiver.ArchiveEvents(ctx)
		if err != nil {
			return fmt.Errorf("archive after %d events: %w", total, err)
		}
		if res.Events == 0 {
			break
		}
		total += res.Events
	}
	j.logger.InfoContext(ctx, "archive run complete", slog.Int("events", total))
	return nil
}

// Rebuilder rebuilds and caches the leaderboard.
type Rebuilder interface {
	Rebuild(ctx context.Context) (domain.Leaderboard, error)
}

// LeaderboardJob refreshes the cached leaderboard.
type LeaderboardJob struct {
	board Rebuilder
}

// NewLeaderboardJob creates a LeaderboardJob.
func NewLeaderboardJob(board Rebuilder) *LeaderboardJob {
	return &LeaderboardJob{board: board}
}

func (j *LeaderboardJob) Name() string { return "leaderboard" }

func (j *LeaderboardJob) Run(ctx context.Context) error {
	_, err := j.board.Rebuild(ctx)
	return err
}
