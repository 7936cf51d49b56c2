package app

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"golang.org/x/sync/errgroup"

	"github.com/alanyoungcy/arenaledger/internal/config"
	"github.com/alanyoungcy/arenaledger/internal/domain"
	"github.com/alanyoungcy/arenaledger/internal/leaderboard"
	"github.com/alanyoungcy/arenaledger/internal/ledger"
	"github.com/alanyoungcy/arenaledger/internal/pipeline"
	"github.com/alanyoungcy/arenaledger/internal/server"
	"github.com/alanyoungcy/arenaledger/internal/server/handler"
	"github.com/alanyoungcy/arenaledger/internal/server/ws"
	"github.com/alanyoungcy/arenaledger/internal/service"
)

// LedgerConfig converts the file configuration into settlement parameters.
// Addresses are assumed validated by config.Validate.
func LedgerConfig(cfg config.LedgerConfig) ledger.Config {
	out := ledger.Config{
		CreatorFeeBps:  uint64(cfg.CreatorFeeBps),
		PlatformFeeBps: uint64(cfg.PlatformFeeBps),
		MaxQuestionLen: cfg.MaxQuestionLen,
		MaxRulesLen:    cfg.MaxRulesLen,
		MaxLabelLen:    cfg.MaxLabelLen,
	}
	if cfg.PlatformOwner != "" {
		out.PlatformOwner = common.HexToAddress(cfg.PlatformOwner)
	}
	for _, a := range cfg.OracleAddresses {
		out.OracleAddresses = append(out.OracleAddresses, common.HexToAddress(a))
	}
	return out
}

// newLeaderboard builds the leaderboard service, or nil when disabled.
func (a *App) newLeaderboard(deps *Dependencies) *leaderboard.Service {
	if !a.cfg.Leaderboard.Enabled {
		return nil
	}
	return leaderboard.NewService(deps.Store, deps.LeaderboardCache, a.cfg.Leaderboard.CacheTTL.Duration, a.logger)
}

// ServerMode owns the ledger: it takes the sequencer lock, restores state
// from the journal, serves the API and runs the enabled background jobs.
func (a *App) ServerMode(ctx context.Context, deps *Dependencies) error {
	a.logger.InfoContext(ctx, "starting server mode")

	// Only one process may append to the journal.
	seq := service.NewSequencer(deps.LockManager, a.cfg.Ledger.SequencerLockTTL.Duration, a.logger)
	if err := seq.Acquire(ctx); err != nil {
		return fmt.Errorf("server mode: %w", err)
	}

	notifier := service.EventNotifier(nil)
	if deps.Notifier.Enabled() {
		notifier = deps.Notifier
	}
	fanout := service.NewFanout(a.cfg.Ledger.EventBuffer, a.logger,
		service.WithBus(deps.EventBus),
		service.WithMarketCache(deps.MarketCache),
		service.WithNotifier(notifier),
	)

	l, err := ledger.New(LedgerConfig(a.cfg.Ledger),
		ledger.WithJournal(deps.Store),
		ledger.WithLogger(a.logger),
		ledger.WithCommitHook(fanout.Enqueue),
	)
	if err != nil {
		return fmt.Errorf("server mode: %w", err)
	}

	snap, err := deps.Store.LoadSnapshot(ctx)
	if err != nil {
		return fmt.Errorf("server mode: load snapshot: %w", err)
	}
	if err := l.Restore(snap); err != nil {
		return fmt.Errorf("server mode: restore: %w", err)
	}

	board := a.newLeaderboard(deps)
	var (
		boardReader service.LeaderboardReader
		jobs        []pipeline.Schedule
	)
	if board != nil {
		boardReader = board
		jobs = append(jobs, pipeline.Schedule{
			Spec:       a.cfg.Leaderboard.Cron,
			Job:        pipeline.NewLeaderboardJob(board),
			RunOnStart: true,
		})
	}
	var archiver domain.EventArchiver
	if deps.Archiver != nil {
		archiver = deps.Archiver
		jobs = append(jobs, pipeline.Schedule{
			Spec: a.cfg.Archive.Cron,
			Job:  pipeline.NewArchiveJob(deps.Archiver, a.logger),
		})
	}
	svc := service.NewLedgerService(l, boardReader, archiver, a.logger)

	hub := ws.NewHub(func() ws.Status {
		return ws.Status{LastSeq: l.LastSeq(), Markets: l.MarketCount()}
	}, a.logger)
	fanout.SetBroadcaster(hub)

	g, ctx := errgroup.WithContext(ctx)

	g.Go(func() error { return seq.Run(ctx) })
	g.Go(func() error { return fanout.Run(ctx) })
	g.Go(func() error { return hub.Run(ctx) })
	g.Go(func() error { return pipeline.NewOrchestrator(a.logger, jobs...).Run(ctx) })

	if a.cfg.Server.Enabled {
		srv := server.NewServer(server.Config{
			Port:             a.cfg.Server.Port,
			CORSOrigins:      a.cfg.Server.CORSOrigins,
			APIKey:           a.cfg.Server.APIKey,
			SignatureMaxSkew: a.cfg.Server.SignatureMaxSkew.Duration,
			RateLimit:        a.cfg.Server.RateLimit,
			RateWindow:       a.cfg.Server.RateWindow.Duration,
		}, server.Handlers{
			Health:      handler.NewHealthHandler(deps.HealthChecks(), l.LastSeq, a.logger),
			Markets:     handler.NewMarketHandler(l, a.logger),
			Actions:     handler.NewActionHandler(svc, a.logger),
			Leaderboard: handler.NewLeaderboardHandler(svc, a.cfg.Leaderboard.Limit, a.logger),
			Admin:       handler.NewAdminHandler(svc, svc, deps.Audit, a.logger),
		}, hub, deps.RateLimiter, deps.Nonces, a.logger)

		g.Go(srv.Start)
		g.Go(func() error {
			<-ctx.Done()
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
			defer cancel()
			return srv.Shutdown(shutdownCtx)
		})
	}

	a.logger.InfoContext(ctx, "ledger ready",
		slog.Uint64("last_seq", l.LastSeq()),
		slog.Uint64("markets", l.MarketCount()),
	)
	return g.Wait()
}

// ArchiveMode runs only the event export on its schedule, reading the
// journal written by a server-mode process.
func (a *App) ArchiveMode(ctx context.Context, deps *Dependencies) error {
	a.logger.InfoContext(ctx, "starting archive mode")
	if deps.Archiver == nil {
		return fmt.Errorf("archive mode: object storage is not configured")
	}
	return pipeline.NewOrchestrator(a.logger, pipeline.Schedule{
		Spec:       a.cfg.Archive.Cron,
		Job:        pipeline.NewArchiveJob(deps.Archiver, a.logger),
		RunOnStart: true,
	}).Run(ctx)
}

// LeaderboardMode runs only the leaderboard rebuild on its schedule.
func (a *App) LeaderboardMode(ctx context.Context, deps *Dependencies) error {
	a.logger.InfoContext(ctx, "starting leaderboard mode")
	board := leaderboard.NewService(deps.Store, deps.LeaderboardCache, a.cfg.Leaderboard.CacheTTL.Duration, a.logger)
	return pipeline.NewOrchestrator(a.logger, pipeline.Schedule{
		Spec:       a.cfg.Leaderboard.Cron,
		Job:        pipeline.NewLeaderboardJob(board),
		RunOnStart: true,
	}).Run(ctx)
}
