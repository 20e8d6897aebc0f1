package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Participation represents one stake by one user on one market.
// LockedOdds is the implied-probability snapshot captured at placement
// time, before the bettor's own stake moved the pool. FinalPayout and
// IsWinner are written exactly once, at settlement.
type Participation struct {
	ID          uuid.UUID          `db:"id" json:"id" validate:"required,uuid4"`
	MarketID    uuid.UUID          `db:"market_id" json:"market_id" validate:"required,uuid4"`
	UserID      uuid.UUID          `db:"user_id" json:"user_id" validate:"required,uuid4"`
	Option      string             `db:"option" json:"option" validate:"required"`
	Stake       int64              `db:"stake" json:"stake" validate:"required,gt=0"`
	LockedOdds  map[string]float64 `db:"locked_odds" json:"locked_odds"`
	FinalPayout *decimal.Decimal   `db:"final_payout" json:"final_payout"`
	IsWinner    *bool              `db:"is_winner" json:"is_winner"`
	PlacedAt    time.Time          `db:"placed_at" json:"placed_at"`
	SettledAt   *time.Time         `db:"settled_at" json:"settled_at"`
}

// IsSettled reports whether settlement has written the result fields.
func (p *Participation) IsSettled() bool {
	return p.FinalPayout != nil && p.SettledAt != nil
}

// Profit returns the payout in excess of the original stake, zero before
// settlement or for losers.
func (p *Participation) Profit() decimal.Decimal {
	if p.FinalPayout == nil {
		return decimal.Zero
	}
	profit := p.FinalPayout.Sub(decimal.NewFromInt(p.Stake))
	if profit.IsNegative() {
		return decimal.Zero
	}
	return profit
}
