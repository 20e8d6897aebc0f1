package api

import (
	"net/http"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/sidepot/sidepot/internal/engine"
	"github.com/sidepot/sidepot/internal/ledger"
	"github.com/sidepot/sidepot/internal/models"
	"github.com/sidepot/sidepot/internal/repository"
	"github.com/sidepot/sidepot/internal/service"
)

// Handlers serves the wagering JSON API.
type Handlers struct {
	markets         *service.MarketService
	wagering        *engine.WageringEngine
	settlement      *engine.SettlementEngine
	ledger          *ledger.Service
	wallet          repository.WalletRepository
	participations  repository.ParticipationRepository
	history         repository.OddsHistoryRepository
	startingBalance int64
	logger          *logrus.Logger
}

// NewHandlers creates the API handler set
func NewHandlers(
	markets *service.MarketService,
	wagering *engine.WageringEngine,
	settlement *engine.SettlementEngine,
	ledgerSvc *ledger.Service,
	repos *repository.Repositories,
	startingBalance int64,
	logger *logrus.Logger,
) *Handlers {
	return &Handlers{
		markets:         markets,
		wagering:        wagering,
		settlement:      settlement,
		ledger:          ledgerSvc,
		wallet:          repos.Wallet,
		participations:  repos.Participation,
		history:         repos.OddsHistory,
		startingBalance: startingBalance,
		logger:          logger,
	}
}

type marketResponse struct {
	Market      *models.Market     `json:"market"`
	Odds        map[string]float64 `json:"odds,omitempty"`
	DisplayOdds map[string]string  `json:"display_odds,omitempty"`
}

func toMarketResponse(v *service.MarketView) marketResponse {
	return marketResponse{Market: v.Market, Odds: v.Implied, DisplayOdds: v.DisplayOdds}
}

type createMarketBody struct {
	CommunityID uuid.UUID         `json:"community_id"`
	CreatorID   uuid.UUID         `json:"creator_id"`
	Title       string            `json:"title"`
	Options     []string          `json:"options"`
	StoredOdds  map[string]string `json:"stored_odds"`
	Deadline    time.Time         `json:"deadline"`
}

// CreateMarket opens a new market.
// POST /api/markets
func (h *Handlers) CreateMarket(w http.ResponseWriter, r *http.Request) {
	var body createMarketBody
	if err := decodeBody(r, &body); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	market, err := h.markets.Create(r.Context(), service.CreateMarketRequest{
		CommunityID: body.CommunityID,
		CreatorID:   body.CreatorID,
		Title:       body.Title,
		Options:     body.Options,
		StoredOdds:  body.StoredOdds,
		Deadline:    body.Deadline,
	})
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, market)
}

// GetMarket returns one market with its current odds.
// GET /api/markets/{id}
func (h *Handlers) GetMarket(w http.ResponseWriter, r *http.Request) {
	id, err := pathUUID(r, "id")
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid market id")
		return
	}

	view, err := h.markets.Get(r.Context(), id)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toMarketResponse(view))
}

// ListMarkets returns a community's open markets.
// GET /api/communities/{id}/markets?limit=50
func (h *Handlers) ListMarkets(w http.ResponseWriter, r *http.Request) {
	communityID, err := pathUUID(r, "id")
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid community id")
		return
	}

	limit := 50
	if v := r.URL.Query().Get("limit"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 && n <= 500 {
			limit = n
		}
	}

	views, err := h.markets.ListOpen(r.Context(), communityID, limit)
	if err != nil {
		h.logger.WithError(err).Error("Failed to list markets")
		writeError(w, http.StatusInternalServerError, "failed to list markets")
		return
	}

	out := make([]marketResponse, 0, len(views))
	for _, v := range views {
		out = append(out, toMarketResponse(v))
	}
	writeJSON(w, http.StatusOK, map[string]any{"markets": out})
}

type requesterBody struct {
	RequesterID uuid.UUID `json:"requester_id"`
}

// CancelMarket aborts an open, unstaked market. Creator only.
// POST /api/markets/{id}/cancel
func (h *Handlers) CancelMarket(w http.ResponseWriter, r *http.Request) {
	id, err := pathUUID(r, "id")
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid market id")
		return
	}
	var body requesterBody
	if err := decodeBody(r, &body); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	if err := h.markets.Cancel(r.Context(), id, body.RequesterID); err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "cancelled"})
}

// DeleteMarket removes an unstaked market. Creator only.
// DELETE /api/markets/{id}?requester_id=...
func (h *Handlers) DeleteMarket(w http.ResponseWriter, r *http.Request) {
	id, err := pathUUID(r, "id")
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid market id")
		return
	}
	requesterID, err := uuid.Parse(r.URL.Query().Get("requester_id"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid requester_id")
		return
	}

	if err := h.markets.Delete(r.Context(), id, requesterID); err != nil {
		writeDomainError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

type placeBetBody struct {
	UserID uuid.UUID `json:"user_id"`
	Option string    `json:"option"`
	Stake  int64     `json:"stake"`
}

// PlaceBet stakes points on a market option.
// POST /api/markets/{id}/bets
func (h *Handlers) PlaceBet(w http.ResponseWriter, r *http.Request) {
	id, err := pathUUID(r, "id")
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid market id")
		return
	}
	var body placeBetBody
	if err := decodeBody(r, &body); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	participation, err := h.wagering.PlaceBet(r.Context(), engine.PlaceBetRequest{
		MarketID: id,
		UserID:   body.UserID,
		Option:   body.Option,
		Stake:    body.Stake,
	})
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, participation)
}

type settleBody struct {
	WinnerOption string `json:"winner_option"`
}

// SettleMarket closes a market on the given winner, or voids it when
// one-sided.
// POST /api/markets/{id}/settle
func (h *Handlers) SettleMarket(w http.ResponseWriter, r *http.Request) {
	id, err := pathUUID(r, "id")
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid market id")
		return
	}
	var body settleBody
	if err := decodeBody(r, &body); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	result, err := h.settlement.Settle(r.Context(), id, body.WinnerOption)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"market":         result.Market,
		"participations": result.Participations,
		"voided":         result.Voided,
		"ledger_entries": result.LedgerEntries,
	})
}

// ResumeLedger re-runs the settlement->ledger handoff.
// POST /api/markets/{id}/ledger/resume
func (h *Handlers) ResumeLedger(w http.ResponseWriter, r *http.Request) {
	id, err := pathUUID(r, "id")
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid market id")
		return
	}

	entries, err := h.settlement.ResumeLedger(r.Context(), id)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"ledger_entries": entries})
}

// ListParticipations returns every stake on a market.
// GET /api/markets/{id}/participations
func (h *Handlers) ListParticipations(w http.ResponseWriter, r *http.Request) {
	id, err := pathUUID(r, "id")
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid market id")
		return
	}

	parts, err := h.participations.GetByMarket(r.Context(), id)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"participations": parts})
}

// OddsHistory returns a market's odds snapshots in a time window.
// GET /api/markets/{id}/history?start=...&end=...
func (h *Handlers) OddsHistory(w http.ResponseWriter, r *http.Request) {
	id, err := pathUUID(r, "id")
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid market id")
		return
	}

	end := time.Now()
	start := end.Add(-30 * 24 * time.Hour)
	if v := r.URL.Query().Get("start"); v != "" {
		parsed, err := time.Parse(time.RFC3339, v)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid start time")
			return
		}
		start = parsed
	}
	if v := r.URL.Query().Get("end"); v != "" {
		parsed, err := time.Parse(time.RFC3339, v)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid end time")
			return
		}
		end = parsed
	}

	entries, err := h.history.GetByMarket(r.Context(), id, start, end)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"history": entries})
}

// EnsureWallet creates the user's point account with the starting balance
// if it does not exist yet, then returns the balance.
// POST /api/users/{id}/wallet
func (h *Handlers) EnsureWallet(w http.ResponseWriter, r *http.Request) {
	id, err := pathUUID(r, "id")
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid user id")
		return
	}

	if err := h.wallet.EnsureAccount(r.Context(), id, h.startingBalance); err != nil {
		writeDomainError(w, err)
		return
	}
	balance, err := h.wallet.GetBalance(r.Context(), id)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"user_id": id, "balance": balance})
}

// Wallet returns a user's point balance.
// GET /api/users/{id}/wallet
func (h *Handlers) Wallet(w http.ResponseWriter, r *http.Request) {
	id, err := pathUUID(r, "id")
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid user id")
		return
	}

	balance, err := h.wallet.GetBalance(r.Context(), id)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"user_id": id, "balance": balance})
}

// NetPositions returns a user's net IOU position per counterparty.
// GET /api/users/{id}/balances
func (h *Handlers) NetPositions(w http.ResponseWriter, r *http.Request) {
	id, err := pathUUID(r, "id")
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid user id")
		return
	}

	positions, err := h.ledger.NetPositions(r.Context(), id)
	if err != nil {
		h.logger.WithError(err).Error("Failed to compute net positions")
		writeError(w, http.StatusInternalServerError, "failed to compute net positions")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"positions": positions})
}

// NetBetween returns the pairwise net position between two users.
// GET /api/users/{id}/balances/{counterparty}
func (h *Handlers) NetBetween(w http.ResponseWriter, r *http.Request) {
	id, err := pathUUID(r, "id")
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid user id")
		return
	}
	counterparty, err := pathUUID(r, "counterparty")
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid counterparty id")
		return
	}

	net, err := h.ledger.NetBetween(r.Context(), id, counterparty)
	if err != nil {
		h.logger.WithError(err).Error("Failed to compute net balance")
		writeError(w, http.StatusInternalServerError, "failed to compute net balance")
		return
	}
	writeJSON(w, http.StatusOK, net)
}

type resolveBody struct {
	PayerID uuid.UUID `json:"payer_id"`
	PayeeID uuid.UUID `json:"payee_id"`
}

// MarkPaid records that the payer settled up with the payee.
// POST /api/balances/mark-paid
func (h *Handlers) MarkPaid(w http.ResponseWriter, r *http.Request) {
	var body resolveBody
	if err := decodeBody(r, &body); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	n, err := h.ledger.MarkPaid(r.Context(), body.PayerID, body.PayeeID)
	if err != nil {
		h.logger.WithError(err).Error("Failed to mark balances paid")
		writeError(w, http.StatusInternalServerError, "failed to mark balances paid")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"transitioned": n})
}

// MarkReceived records that the payee confirmed receipt.
// POST /api/balances/mark-received
func (h *Handlers) MarkReceived(w http.ResponseWriter, r *http.Request) {
	var body resolveBody
	if err := decodeBody(r, &body); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	n, err := h.ledger.MarkReceived(r.Context(), body.PayerID, body.PayeeID)
	if err != nil {
		h.logger.WithError(err).Error("Failed to mark balances received")
		writeError(w, http.StatusInternalServerError, "failed to mark balances received")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"transitioned": n})
}
