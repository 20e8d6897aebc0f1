package engine

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"

	"github.com/sidepot/sidepot/internal/ledger"
	"github.com/sidepot/sidepot/internal/metrics"
	"github.com/sidepot/sidepot/internal/models"
)

// SettlementResult describes the outcome of settling or voiding a market
type SettlementResult struct {
	Market         *models.Market
	Participations []*models.Participation
	Voided         bool
	LedgerEntries  []*models.OutstandingBalance
}

// SettlementEngine closes markets and computes parimutuel payouts
type SettlementEngine struct {
	store       Store
	sink        NotificationSink
	maxAttempts int
	logger      *logrus.Logger
	now         func() time.Time
}

// NewSettlementEngine creates a new settlement engine
func NewSettlementEngine(store Store, logger *logrus.Logger) *SettlementEngine {
	return &SettlementEngine{
		store:       store,
		maxAttempts: 4,
		logger:      logger,
		now:         time.Now,
	}
}

// SetNotificationSink attaches a best-effort event sink.
func (e *SettlementEngine) SetNotificationSink(sink NotificationSink) {
	e.sink = sink
}

// Settle closes the market, exactly once. A market where stakes exist on
// at most one option is voided with every stake refunded; otherwise the
// market settles on winningOption and winners split the losing pool in
// proportion to their stakes.
//
// The open->settled/voided transition is exclusive: a concurrent PlaceBet
// or Settle that loses the race fails rather than committing against a
// closed market. Ledger entry creation runs after the settlement commit
// and is idempotent keyed by market id, so a failed handoff is safe to
// re-run via Settle or ResumeLedger.
func (e *SettlementEngine) Settle(ctx context.Context, marketID uuid.UUID, winningOption string) (*SettlementResult, error) {
	var (
		result  *SettlementResult
		lastErr error
	)

	for attempt := 1; attempt <= e.maxAttempts; attempt++ {
		result, lastErr = e.settleOnce(ctx, marketID, winningOption)
		if lastErr == nil || !errors.Is(lastErr, ErrTxConflict) {
			break
		}
		metrics.ConflictRetriesTotal.Inc()
		e.logger.WithFields(logrus.Fields{
			"market_id": marketID,
			"attempt":   attempt,
		}).Warn("Settlement conflicted, retrying")
	}
	if lastErr != nil {
		if errors.Is(lastErr, ErrTxConflict) {
			return nil, models.NewConcurrencyConflictError(e.maxAttempts, lastErr)
		}
		return nil, lastErr
	}

	if result.Voided {
		metrics.MarketsVoidedTotal.Inc()
		e.emit(EventMarketVoided, result.Market, "")
		return result, nil
	}

	entries, err := e.recordLedger(ctx, result.Market, result.Participations, winningOption)
	if err != nil {
		// The market is already settled; the caller retries the handoff.
		return nil, err
	}
	result.LedgerEntries = entries

	metrics.MarketsSettledTotal.Inc()
	e.emit(EventMarketSettled, result.Market, winningOption)

	return result, nil
}

// settleOnce performs the status transition, participation results, and
// balance credits in one transaction.
func (e *SettlementEngine) settleOnce(ctx context.Context, marketID uuid.UUID, winningOption string) (*SettlementResult, error) {
	var result *SettlementResult

	err := e.store.WithTx(ctx, func(ctx context.Context, tx Tx) error {
		market, err := tx.MarketForUpdate(ctx, marketID)
		if err != nil {
			return err
		}

		if market.Status == models.MarketStatusSettled {
			// Re-running settlement for the same winner only resumes the
			// ledger handoff; anything else is refused.
			if market.WinnerOption != nil && *market.WinnerOption == winningOption {
				parts, err := tx.ParticipationsForMarket(ctx, marketID)
				if err != nil {
					return err
				}
				result = &SettlementResult{Market: market, Participations: parts}
				return nil
			}
			return models.NewMarketClosedError(market.ID.String(), market.Status)
		}
		if !market.IsOpen() {
			return models.NewMarketClosedError(market.ID.String(), market.Status)
		}

		parts, err := tx.ParticipationsForMarket(ctx, marketID)
		if err != nil {
			return err
		}

		if countStakedOptions(parts) <= 1 {
			res, err := e.voidMarket(ctx, tx, market, parts)
			if err != nil {
				return err
			}
			result = res
			return nil
		}

		if !market.HasOption(winningOption) {
			return ErrWinnerRequired
		}
		// A winner nobody staked on would leave the whole pool uncredited;
		// payouts must always sum back to the total pool.
		if !hasStake(parts, winningOption) {
			return models.NewValidationError("winner_option",
				fmt.Sprintf("no stakes on option %q", winningOption))
		}

		res, err := e.settleMarket(ctx, tx, market, parts, winningOption)
		if err != nil {
			return err
		}
		result = res
		return nil
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}

// voidMarket refunds every stake. No ledger entries are created.
func (e *SettlementEngine) voidMarket(ctx context.Context, tx Tx, market *models.Market, parts []*models.Participation) (*SettlementResult, error) {
	ok, err := tx.TransitionMarket(ctx, market.ID, models.MarketStatusOpen, models.MarketStatusVoided, nil)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, models.NewMarketClosedError(market.ID.String(), market.Status)
	}

	settledAt := e.now()
	for _, p := range parts {
		refund := decimal.NewFromInt(p.Stake)
		if err := tx.SetParticipationResult(ctx, p.ID, refund, nil, settledAt); err != nil {
			return nil, err
		}
		if err := tx.CreditBalance(ctx, p.UserID, p.Stake); err != nil {
			return nil, err
		}
		p.FinalPayout = &refund
		p.IsWinner = nil
		p.SettledAt = &settledAt
	}

	market.Status = models.MarketStatusVoided
	market.WinnerOption = nil

	e.logger.WithFields(logrus.Fields{
		"market_id":    market.ID,
		"participants": len(parts),
	}).Info("Market voided, stakes refunded")

	return &SettlementResult{Market: market, Participations: parts, Voided: true}, nil
}

// settleMarket writes per-participation results and credits winners.
func (e *SettlementEngine) settleMarket(ctx context.Context, tx Tx, market *models.Market, parts []*models.Participation, winningOption string) (*SettlementResult, error) {
	ok, err := tx.TransitionMarket(ctx, market.ID, models.MarketStatusOpen, models.MarketStatusSettled, &winningOption)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, models.NewMarketClosedError(market.ID.String(), market.Status)
	}

	var winningPool, totalPool int64
	for _, p := range parts {
		totalPool += p.Stake
		if p.Option == winningOption {
			winningPool += p.Stake
		}
	}
	losingPool := totalPool - winningPool

	settledAt := e.now()
	for _, p := range parts {
		isWinner := p.Option == winningOption

		var payout decimal.Decimal
		if isWinner {
			payout = Payout(p.Stake, winningPool, losingPool)
			credit := payout.Round(0).IntPart()
			if err := tx.CreditBalance(ctx, p.UserID, credit); err != nil {
				return nil, err
			}
		} else {
			payout = decimal.Zero
		}

		winner := isWinner
		if err := tx.SetParticipationResult(ctx, p.ID, payout, &winner, settledAt); err != nil {
			return nil, err
		}
		p.FinalPayout = &payout
		p.IsWinner = &winner
		p.SettledAt = &settledAt
	}

	market.Status = models.MarketStatusSettled
	market.WinnerOption = &winningOption

	e.logger.WithFields(logrus.Fields{
		"market_id":    market.ID,
		"winner":       winningOption,
		"winning_pool": winningPool,
		"losing_pool":  losingPool,
		"participants": len(parts),
	}).Info("Market settled")

	return &SettlementResult{Market: market, Participations: parts}, nil
}

// recordLedger inserts the outstanding balances derived from the settled
// participations, skipping markets whose entries already exist.
func (e *SettlementEngine) recordLedger(ctx context.Context, market *models.Market, parts []*models.Participation, winningOption string) ([]*models.OutstandingBalance, error) {
	var entries []*models.OutstandingBalance

	err := e.store.WithTx(ctx, func(ctx context.Context, tx Tx) error {
		existing, err := tx.OutstandingBalancesForMarket(ctx, market.ID)
		if err != nil {
			return err
		}
		if len(existing) > 0 {
			entries = existing
			return nil
		}

		entries = ledger.BuildEntries(market.ID, parts, winningOption, e.now())
		for _, entry := range entries {
			if err := tx.InsertOutstandingBalance(ctx, entry); err != nil {
				return err
			}
		}
		metrics.LedgerEntriesTotal.Add(float64(len(entries)))
		return nil
	})
	if err != nil {
		return nil, err
	}
	return entries, nil
}

// ResumeLedger re-runs the settlement->ledger handoff for an already
// settled market. Safe to call repeatedly; entries are derived purely from
// the settled participation records.
func (e *SettlementEngine) ResumeLedger(ctx context.Context, marketID uuid.UUID) ([]*models.OutstandingBalance, error) {
	var (
		market *models.Market
		parts  []*models.Participation
	)
	err := e.store.WithTx(ctx, func(ctx context.Context, tx Tx) error {
		m, err := tx.MarketForUpdate(ctx, marketID)
		if err != nil {
			return err
		}
		if m.Status != models.MarketStatusSettled || m.WinnerOption == nil {
			return models.NewValidationError("status", "market is not settled")
		}
		p, err := tx.ParticipationsForMarket(ctx, marketID)
		if err != nil {
			return err
		}
		market, parts = m, p
		return nil
	})
	if err != nil {
		return nil, err
	}
	return e.recordLedger(ctx, market, parts, *market.WinnerOption)
}

// Cancel aborts an open market with no participants. Creator-only; the
// caller enforces identity.
func (e *SettlementEngine) Cancel(ctx context.Context, marketID uuid.UUID) error {
	return e.store.WithTx(ctx, func(ctx context.Context, tx Tx) error {
		market, err := tx.MarketForUpdate(ctx, marketID)
		if err != nil {
			return err
		}
		if !market.IsOpen() {
			return models.NewMarketClosedError(market.ID.String(), market.Status)
		}
		parts, err := tx.ParticipationsForMarket(ctx, marketID)
		if err != nil {
			return err
		}
		if len(parts) > 0 {
			return models.NewValidationError("participations", "cannot cancel a market with participants")
		}
		ok, err := tx.TransitionMarket(ctx, marketID, models.MarketStatusOpen, models.MarketStatusCancelled, nil)
		if err != nil {
			return err
		}
		if !ok {
			return models.NewMarketClosedError(market.ID.String(), market.Status)
		}
		return nil
	})
}

// Payout computes a winner's parimutuel payout: the original stake plus a
// pro-rata share of the losing pool. With no losing pool the winner merely
// gets their stake back.
func Payout(stake, winningPool, losingPool int64) decimal.Decimal {
	stakeD := decimal.NewFromInt(stake)
	if losingPool == 0 {
		return stakeD
	}
	share := stakeD.Div(decimal.NewFromInt(winningPool)).Mul(decimal.NewFromInt(losingPool))
	return stakeD.Add(share)
}

// hasStake reports whether any participation staked on option.
func hasStake(parts []*models.Participation, option string) bool {
	for _, p := range parts {
		if p.Option == option {
			return true
		}
	}
	return false
}

// countStakedOptions returns the number of distinct options that actually
// carry stakes.
func countStakedOptions(parts []*models.Participation) int {
	staked := make(map[string]struct{})
	for _, p := range parts {
		staked[p.Option] = struct{}{}
	}
	return len(staked)
}

func (e *SettlementEngine) emit(eventType string, market *models.Market, winner string) {
	if e.sink == nil {
		return
	}
	payload := map[string]interface{}{
		"market_id":  market.ID.String(),
		"total_pool": market.TotalPool,
	}
	if winner != "" {
		payload["winner_option"] = winner
	}
	e.sink.Emit(eventType, payload)
}
