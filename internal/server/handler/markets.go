package handler

import (
	"log/slog"
	"net/http"

	"github.com/ethereum/go-ethereum/common"

	"github.com/alanyoungcy/arenaledger/internal/domain"
)

// MarketReader is the read side of the ledger used by MarketHandler.
type MarketReader interface {
	ListMarkets(opts domain.ListOpts) []domain.MarketView
	MarketCount() uint64
	View(id domain.MarketID) (domain.MarketView, error)
	GetOutcomeOdds(id domain.MarketID) ([]int, error)
	GetMarketBettors(id domain.MarketID) ([]common.Address, error)
	GetStake(id domain.MarketID, bettor common.Address) (domain.Stake, error)
	PreviewPayout(id domain.MarketID, outcome int, amount domain.Amount) (domain.Amount, error)
	GetUserMarkets(addr common.Address) []domain.MarketID
}

// MarketHandler serves market queries.
type MarketHandler struct {
	markets MarketReader
	logger  *slog.Logger
}

// NewMarketHandler creates a MarketHandler.
func NewMarketHandler(markets MarketReader, logger *slog.Logger) *MarketHandler {
	return &MarketHandler{markets: markets, logger: logHandler(logger, "markets")}
}

// ListMarkets returns a page of markets in id order.
// GET /api/markets?offset=0&limit=50
func (h *MarketHandler) ListMarkets(w http.ResponseWriter, r *http.Request) {
	opts := parseListOpts(r)
	writeJSON(w, http.StatusOK, map[string]any{
		"markets": h.markets.ListMarkets(opts),
		"offset":  opts.Offset,
		"limit":   opts.Limit,
		"total":   h.markets.MarketCount(),
	})
}

// CountMarkets returns the number of markets ever created.
// GET /api/markets/count
func (h *MarketHandler) CountMarkets(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]uint64{"count": h.markets.MarketCount()})
}

// GetMarket returns one market with its odds and phase.
// GET /api/markets/{id}
func (h *MarketHandler) GetMarket(w http.ResponseWriter, r *http.Request) {
	id, err := marketIDParam(r)
	if err != nil {
		writeDomainError(w, r, h.logger, err)
		return
	}
	view, err := h.markets.View(id)
	if err != nil {
		writeDomainError(w, r, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, view)
}

// GetOdds returns the integer percentage of the pool held by each outcome.
// GET /api/markets/{id}/odds
func (h *MarketHandler) GetOdds(w http.ResponseWriter, r *http.Request) {
	id, err := marketIDParam(r)
	if err != nil {
		writeDomainError(w, r, h.logger, err)
		return
	}
	odds, err := h.markets.GetOutcomeOdds(id)
	if err != nil {
		writeDomainError(w, r, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"market_id": id, "odds": odds})
}

// GetBettors lists the market's bettors in first-bet order.
// GET /api/markets/{id}/bettors
func (h *MarketHandler) GetBettors(w http.ResponseWriter, r *http.Request) {
	id, err := marketIDParam(r)
	if err != nil {
		writeDomainError(w, r, h.logger, err)
		return
	}
	bettors, err := h.markets.GetMarketBettors(id)
	if err != nil {
		writeDomainError(w, r, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"market_id": id, "bettors": bettors})
}

// GetStake returns one bettor's stake.
// GET /api/markets/{id}/stakes/{address}
func (h *MarketHandler) GetStake(w http.ResponseWriter, r *http.Request) {
	id, err := marketIDParam(r)
	if err != nil {
		writeDomainError(w, r, h.logger, err)
		return
	}
	addr, err := addressParam(r, "address")
	if err != nil {
		writeDomainError(w, r, h.logger, err)
		return
	}
	stake, err := h.markets.GetStake(id, addr)
	if err != nil {
		writeDomainError(w, r, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, stake)
}

// PreviewPayout quotes what a new bet would pay if its outcome won now.
// GET /api/markets/{id}/preview?outcome=1&amount=1000000000000000000
func (h *MarketHandler) PreviewPayout(w http.ResponseWriter, r *http.Request) {
	id, err := marketIDParam(r)
	if err != nil {
		writeDomainError(w, r, h.logger, err)
		return
	}
	outcome, err := intQuery(r, "outcome")
	if err != nil {
		writeDomainError(w, r, h.logger, err)
		return
	}
	amount, err := domain.ParseAmount(r.URL.Query().Get("amount"))
	if err != nil {
		writeDomainError(w, r, h.logger, err)
		return
	}
	payout, err := h.markets.PreviewPayout(id, outcome, amount)
	if err != nil {
		writeDomainError(w, r, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"market_id": id,
		"outcome":   outcome,
		"amount":    amount,
		"payout":    payout,
	})
}

// GetUserMarkets lists the markets an address has bet on.
// GET /api/users/{address}/markets
func (h *MarketHandler) GetUserMarkets(w http.ResponseWriter, r *http.Request) {
	addr, err := addressParam(r, "address")
	if err != nil {
		writeDomainError(w, r, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"address": addr,
		"markets": h.markets.GetUserMarkets(addr),
	})
}
