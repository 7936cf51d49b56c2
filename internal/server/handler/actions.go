package handler

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/ethereum/go-ethereum/common"

	"github.com/alanyoungcy/arenaledger/internal/domain"
	"github.com/alanyoungcy/arenaledger/internal/ledger"
	"github.com/alanyoungcy/arenaledger/internal/server/middleware"
)

// LedgerWriter performs the signed mutations.
type LedgerWriter interface {
	CreateMarket(ctx context.Context, creator common.Address, req ledger.CreateMarketRequest) (domain.MarketView, error)
	PlaceBet(ctx context.Context, bettor common.Address, id domain.MarketID, outcome int, amount domain.Amount, accessCode string) (domain.Stake, error)
	ResolveMarket(ctx context.Context, caller common.Address, id domain.MarketID, winning int) (domain.MarketResolved, error)
	ClaimWinnings(ctx context.Context, bettor common.Address, id domain.MarketID) (domain.Amount, error)
}

// ActionHandler serves the signed endpoints. The caller address always comes
// from the verified request signature.
type ActionHandler struct {
	ledger LedgerWriter
	logger *slog.Logger
}

// NewActionHandler creates an ActionHandler.
func NewActionHandler(l LedgerWriter, logger *slog.Logger) *ActionHandler {
	return &ActionHandler{ledger: l, logger: logHandler(logger, "actions")}
}

// CreateMarketBody is the JSON body of POST /api/markets. Amounts are base
// units as decimal strings.
type CreateMarketBody struct {
	Question         string                `json:"question"`
	Rules            string                `json:"rules"`
	ImageRef         string                `json:"image_ref"`
	Category         string                `json:"category"`
	Outcomes         []string              `json:"outcomes"`
	StartTime        time.Time             `json:"start_time"`
	EndTime          time.Time             `json:"end_time"`
	LaunchNow        bool                  `json:"launch_now"`
	IsPrivate        bool                  `json:"is_private"`
	AccessCode       string                `json:"access_code,omitempty"`
	ResolutionMode   domain.ResolutionMode `json:"resolution_mode"`
	InitialLiquidity domain.Amount         `json:"initial_liquidity"`
}

// PlaceBetBody is the JSON body of POST /api/markets/{id}/bets.
type PlaceBetBody struct {
	Outcome    int           `json:"outcome"`
	Amount     domain.Amount `json:"amount"`
	AccessCode string        `json:"access_code,omitempty"`
}

// ResolveBody is the JSON body of POST /api/markets/{id}/resolve.
type ResolveBody struct {
	WinningOutcome int `json:"winning_outcome"`
}

func (h *ActionHandler) caller(w http.ResponseWriter, r *http.Request) (common.Address, bool) {
	addr, ok := middleware.SignerFrom(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "request is not signed")
	}
	return addr, ok
}

// CreateMarket opens a market owned by the signer.
// POST /api/markets
func (h *ActionHandler) CreateMarket(w http.ResponseWriter, r *http.Request) {
	creator, ok := h.caller(w, r)
	if !ok {
		return
	}
	var body CreateMarketBody
	if err := decodeBody(r, &body); err != nil {
		writeDomainError(w, r, h.logger, err)
		return
	}

	view, err := h.ledger.CreateMarket(r.Context(), creator, ledger.CreateMarketRequest{
		Question:         body.Question,
		Rules:            body.Rules,
		ImageRef:         body.ImageRef,
		Category:         body.Category,
		Outcomes:         body.Outcomes,
		StartTime:        body.StartTime,
		EndTime:          body.EndTime,
		LaunchNow:        body.LaunchNow,
		IsPrivate:        body.IsPrivate,
		AccessCode:       body.AccessCode,
		ResolutionMode:   body.ResolutionMode,
		InitialLiquidity: body.InitialLiquidity,
	})
	if err != nil {
		writeDomainError(w, r, h.logger, err)
		return
	}
	writeJSON(w, http.StatusCreated, view)
}

// PlaceBet stakes on an outcome for the signer.
// POST /api/markets/{id}/bets
func (h *ActionHandler) PlaceBet(w http.ResponseWriter, r *http.Request) {
	bettor, ok := h.caller(w, r)
	if !ok {
		return
	}
	id, err := marketIDParam(r)
	if err != nil {
		writeDomainError(w, r, h.logger, err)
		return
	}
	var body PlaceBetBody
	if err := decodeBody(r, &body); err != nil {
		writeDomainError(w, r, h.logger, err)
		return
	}

	stake, err := h.ledger.PlaceBet(r.Context(), bettor, id, body.Outcome, body.Amount, body.AccessCode)
	if err != nil {
		writeDomainError(w, r, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, stake)
}

// ResolveMarket declares the winner on behalf of the signer.
// POST /api/markets/{id}/resolve
func (h *ActionHandler) ResolveMarket(w http.ResponseWriter, r *http.Request) {
	caller, ok := h.caller(w, r)
	if !ok {
		return
	}
	id, err := marketIDParam(r)
	if err != nil {
		writeDomainError(w, r, h.logger, err)
		return
	}
	var body ResolveBody
	if err := decodeBody(r, &body); err != nil {
		writeDomainError(w, r, h.logger, err)
		return
	}

	res, err := h.ledger.ResolveMarket(r.Context(), caller, id, body.WinningOutcome)
	if err != nil {
		writeDomainError(w, r, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

// ClaimWinnings pays the signer's winning stake.
// POST /api/markets/{id}/claim
func (h *ActionHandler) ClaimWinnings(w http.ResponseWriter, r *http.Request) {
	bettor, ok := h.caller(w, r)
	if !ok {
		return
	}
	id, err := marketIDParam(r)
	if err != nil {
		writeDomainError(w, r, h.logger, err)
		return
	}

	payout, err := h.ledger.ClaimWinnings(r.Context(), bettor, id)
	if err != nil {
		writeDomainError(w, r, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"market_id": id,
		"bettor":    bettor,
		"payout":    payout,
	})
}
