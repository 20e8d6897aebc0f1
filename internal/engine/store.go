// Package engine implements wagering and settlement over a transactional
// store. Odds are locked against the pool snapshot that existed before the
// bettor's own stake, pool updates commit atomically with the stake debit,
// and the open->settled/voided transition is the serialization point
// between wagering and settlement.
package engine

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/sidepot/sidepot/internal/models"
)

// Store runs engine operations inside one atomic transaction. An
// implementation must guarantee that everything done through the Tx either
// commits as a unit or leaves no trace, and must surface conflicting
// concurrent commits as ErrTxConflict so the engine can retry.
type Store interface {
	WithTx(ctx context.Context, fn func(ctx context.Context, tx Tx) error) error
}

// Tx is the set of mutations an engine transaction may perform.
type Tx interface {
	// MarketForUpdate reads the market and takes an exclusive claim on it
	// for the remainder of the transaction.
	MarketForUpdate(ctx context.Context, marketID uuid.UUID) (*models.Market, error)

	// ApplyStake adds stake to the option's pool and the total pool.
	ApplyStake(ctx context.Context, marketID uuid.UUID, option string, stake int64) error

	// TransitionMarket moves the market from one status to another,
	// setting winnerOption when terminal. Returns false without error if
	// the market was not in the expected from status.
	TransitionMarket(ctx context.Context, marketID uuid.UUID, from, to models.MarketStatus, winnerOption *string) (bool, error)

	// InsertParticipation records a new stake.
	InsertParticipation(ctx context.Context, p *models.Participation) error

	// ParticipationsForMarket lists every stake on the market.
	ParticipationsForMarket(ctx context.Context, marketID uuid.UUID) ([]*models.Participation, error)

	// SetParticipationResult writes the settlement fields exactly once.
	SetParticipationResult(ctx context.Context, participationID uuid.UUID, payout decimal.Decimal, isWinner *bool, settledAt time.Time) error

	// DebitBalance subtracts amount from the user's balance, failing with
	// InsufficientFundsError when the balance does not cover it.
	DebitBalance(ctx context.Context, userID uuid.UUID, amount int64) error

	// CreditBalance adds amount to the user's balance.
	CreditBalance(ctx context.Context, userID uuid.UUID, amount int64) error

	// InsertOutstandingBalance records one directed debt.
	InsertOutstandingBalance(ctx context.Context, b *models.OutstandingBalance) error

	// OutstandingBalancesForMarket lists the debts already recorded for a
	// market, used to keep the settlement->ledger handoff idempotent.
	OutstandingBalancesForMarket(ctx context.Context, marketID uuid.UUID) ([]*models.OutstandingBalance, error)
}

// NotificationSink receives fire-and-forget wagering events. Failures are
// logged by the implementation and never block or roll back the engines.
type NotificationSink interface {
	Emit(eventType string, payload map[string]interface{})
}

// OddsObserver is notified after a committed pool mutation so odds history
// can be tracked outside the wagering path.
type OddsObserver interface {
	ObserveMarket(ctx context.Context, m *models.Market)
}

// Event types emitted by the engines.
const (
	EventBetPlaced     = "bet_placed"
	EventMarketSettled = "market_settled"
	EventMarketVoided  = "market_voided"
)
