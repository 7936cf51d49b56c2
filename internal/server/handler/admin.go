package handler

import (
	"context"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/alanyoungcy/arenaledger/internal/domain"
	"github.com/alanyoungcy/arenaledger/internal/server/middleware"
)

// BoardService serves and rebuilds the leaderboard.
type BoardService interface {
	Leaderboard(ctx context.Context, limit int) (domain.Leaderboard, error)
	RebuildLeaderboard(ctx context.Context) (domain.Leaderboard, error)
}

// Archiver exports the next batch of events.
type Archiver interface {
	Archive(ctx context.Context) (domain.ArchiveResult, error)
}

// LeaderboardHandler serves the public leaderboard.
type LeaderboardHandler struct {
	board        BoardService
	defaultLimit int
	logger       *slog.Logger
}

// NewLeaderboardHandler creates a LeaderboardHandler returning defaultLimit
// entries when the query does not ask for a number.
func NewLeaderboardHandler(board BoardService, defaultLimit int, logger *slog.Logger) *LeaderboardHandler {
	if defaultLimit <= 0 {
		defaultLimit = 100
	}
	return &LeaderboardHandler{board: board, defaultLimit: defaultLimit, logger: logHandler(logger, "leaderboard")}
}

// GetLeaderboard returns the top players.
// GET /api/leaderboard?limit=100
func (h *LeaderboardHandler) GetLeaderboard(w http.ResponseWriter, r *http.Request) {
	limit := h.defaultLimit
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 {
			writeDomainError(w, r, h.logger, domain.Validationf("leaderboard", "invalid limit %q", v))
			return
		}
		limit = min(n, 1000)
	}
	board, err := h.board.Leaderboard(r.Context(), limit)
	if err != nil {
		writeDomainError(w, r, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, board)
}

// AdminHandler serves the operator endpoints.
type AdminHandler struct {
	board    BoardService
	archiver Archiver
	audit    domain.AuditLog
	logger   *slog.Logger
}

// NewAdminHandler creates an AdminHandler. audit may be nil, in which case
// actions are only logged.
func NewAdminHandler(board BoardService, archiver Archiver, audit domain.AuditLog, logger *slog.Logger) *AdminHandler {
	return &AdminHandler{board: board, archiver: archiver, audit: audit, logger: logHandler(logger, "admin")}
}

// record writes an audit entry. A failed write never fails the action.
func (h *AdminHandler) record(r *http.Request, event string, detail map[string]any) {
	if h.audit == nil {
		return
	}
	if id := middleware.RequestIDFrom(r.Context()); id != "" {
		detail["request_id"] = id
	}
	if err := h.audit.Log(r.Context(), event, detail); err != nil {
		h.logger.WarnContext(r.Context(), "audit write failed",
			slog.String("event", event),
			slog.String("error", err.Error()),
		)
	}
}

// ListAudit returns recent operator actions, newest first.
// GET /api/admin/audit?limit=50&offset=0
func (h *AdminHandler) ListAudit(w http.ResponseWriter, r *http.Request) {
	if h.audit == nil {
		writeJSON(w, http.StatusOK, map[string]any{"entries": []domain.AuditEntry{}})
		return
	}
	entries, err := h.audit.List(r.Context(), parseListOpts(r))
	if err != nil {
		writeDomainError(w, r, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"entries": entries})
}

// Archive exports the next batch of events to object storage.
// POST /api/admin/archive
func (h *AdminHandler) Archive(w http.ResponseWriter, r *http.Request) {
	res, err := h.archiver.Archive(r.Context())
	if err != nil {
		writeDomainError(w, r, h.logger, err)
		return
	}
	h.logger.InfoContext(r.Context(), "manual archive",
		slog.String("path", res.Path),
		slog.Int("events", res.Events),
	)
	h.record(r, "archive", map[string]any{
		"path":     res.Path,
		"from_seq": res.FromSeq,
		"to_seq":   res.ToSeq,
		"events":   res.Events,
	})
	writeJSON(w, http.StatusOK, res)
}

// RebuildLeaderboard recomputes the leaderboard from the event log.
// POST /api/admin/leaderboard/rebuild
func (h *AdminHandler) RebuildLeaderboard(w http.ResponseWriter, r *http.Request) {
	board, err := h.board.RebuildLeaderboard(r.Context())
	if err != nil {
		writeDomainError(w, r, h.logger, err)
		return
	}
	h.record(r, "leaderboard_rebuild", map[string]any{
		"up_to_seq": board.UpToSeq,
		"players":   len(board.Entries),
	})
	writeJSON(w, http.StatusOK, map[string]any{
		"built_at":  board.BuiltAt,
		"up_to_seq": board.UpToSeq,
		"markets":   board.Markets,
		"players":   len(board.Entries),
	})
}
