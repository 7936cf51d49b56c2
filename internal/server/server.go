// Package server is the HTTP and WebSocket front of the arena ledger.
package server

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/alanyoungcy/arenaledger/internal/domain"
	"github.com/alanyoungcy/arenaledger/internal/metrics"
	"github.com/alanyoungcy/arenaledger/internal/server/handler"
	"github.com/alanyoungcy/arenaledger/internal/server/middleware"
	"github.com/alanyoungcy/arenaledger/internal/server/ws"
)

// Config holds the HTTP server configuration.
type Config struct {
	Port        int
	CORSOrigins []string
	// APIKey guards /api/admin; empty disables those routes.
	APIKey           string
	SignatureMaxSkew time.Duration
	// RateLimit is the number of requests a caller may make per RateWindow.
	// Zero disables rate limiting.
	RateLimit  int
	RateWindow time.Duration
}

// Handlers aggregates all HTTP handlers that the server needs to register.
type Handlers struct {
	Health      *handler.HealthHandler
	Markets     *handler.MarketHandler
	Actions     *handler.ActionHandler
	Leaderboard *handler.LeaderboardHandler
	Admin       *handler.AdminHandler
}

// Server is the HTTP + WebSocket API server.
type Server struct {
	httpServer *http.Server
	logger     *slog.Logger
}

// NewServer creates a Server with all routes registered on the ServeMux.
// limiter and wsHub may be nil. A nil nonces store leaves signed requests
// guarded by the timestamp window alone.
func NewServer(cfg Config, handlers Handlers, wsHub *ws.Hub, limiter domain.RateLimiter, nonces domain.NonceStore, logger *slog.Logger) *Server {
	return &Server{
		httpServer: &http.Server{
			Addr:         fmt.Sprintf(":%d", cfg.Port),
			Handler:      NewHandler(cfg, handlers, wsHub, limiter, nonces, time.Now, logger),
			ReadTimeout:  15 * time.Second,
			WriteTimeout: 30 * time.Second,
			IdleTimeout:  60 * time.Second,
		},
		logger: logger,
	}
}

// NewHandler builds the routed and wrapped handler tree.
func NewHandler(cfg Config, handlers Handlers, wsHub *ws.Hub, limiter domain.RateLimiter, nonces domain.NonceStore, now func() time.Time, logger *slog.Logger) http.Handler {
	mux := http.NewServeMux()

	limit := middleware.RateLimit(limiter, cfg.RateLimit, cfg.RateWindow, logger)
	signature := middleware.Signature(cfg.SignatureMaxSkew, now, nonces, logger)
	admin := middleware.AdminKey(cfg.APIKey)

	public := func(h http.HandlerFunc) http.Handler { return limit(h) }
	// Signature runs first so the limiter can key on the signer.
	signed := func(h http.HandlerFunc) http.Handler { return signature(limit(h)) }

	// Health and scrape endpoints are never limited.
	mux.HandleFunc("GET /api/health", handlers.Health.HealthCheck)
	mux.Handle("GET /metrics", metrics.Handler())
	if wsHub != nil {
		mux.HandleFunc("GET /ws", wsHub.HandleWS)
	}

	// Market reads.
	mux.Handle("GET /api/markets", public(handlers.Markets.ListMarkets))
	mux.Handle("GET /api/markets/count", public(handlers.Markets.CountMarkets))
	mux.Handle("GET /api/markets/{id}", public(handlers.Markets.GetMarket))
	mux.Handle("GET /api/markets/{id}/odds", public(handlers.Markets.GetOdds))
	mux.Handle("GET /api/markets/{id}/bettors", public(handlers.Markets.GetBettors))
	mux.Handle("GET /api/markets/{id}/stakes/{address}", public(handlers.Markets.GetStake))
	mux.Handle("GET /api/markets/{id}/preview", public(handlers.Markets.PreviewPayout))
	mux.Handle("GET /api/users/{address}/markets", public(handlers.Markets.GetUserMarkets))
	mux.Handle("GET /api/leaderboard", public(handlers.Leaderboard.GetLeaderboard))

	// Signed mutations.
	mux.Handle("POST /api/markets", signed(handlers.Actions.CreateMarket))
	mux.Handle("POST /api/markets/{id}/bets", signed(handlers.Actions.PlaceBet))
	mux.Handle("POST /api/markets/{id}/resolve", signed(handlers.Actions.ResolveMarket))
	mux.Handle("POST /api/markets/{id}/claim", signed(handlers.Actions.ClaimWinnings))

	// Operator endpoints.
	mux.Handle("POST /api/admin/archive", admin(http.HandlerFunc(handlers.Admin.Archive)))
	mux.Handle("POST /api/admin/leaderboard/rebuild", admin(http.HandlerFunc(handlers.Admin.RebuildLeaderboard)))
	mux.Handle("GET /api/admin/audit", admin(http.HandlerFunc(handlers.Admin.ListAudit)))

	// Build the middleware chain.
	var h http.Handler = mux
	h = metrics.InstrumentHandler(h)
	h = middleware.Logging(logger)(h)
	h = middleware.CORS(cfg.CORSOrigins)(h)
	return h
}

// Start begins listening for HTTP requests. It blocks until the server
// encounters an error or is shut down.
func (s *Server) Start() error {
	s.logger.Info("server: starting",
		slog.String("addr", s.httpServer.Addr),
	)
	if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("server: listen: %w", err)
	}
	return nil
}

// Shutdown gracefully shuts down the server, waiting for in-flight requests
// to complete within the given context deadline.
func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info("server: shutting down")
	if err := s.httpServer.Shutdown(ctx); err != nil {
		return fmt.Errorf("server: shutdown: %w", err)
	}
	return nil
}
