package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// BalanceStatus represents the resolution state of an outstanding balance
type BalanceStatus string

const (
	BalanceStatusPending  BalanceStatus = "pending"
	BalanceStatusPaid     BalanceStatus = "paid"
	BalanceStatusResolved BalanceStatus = "resolved"
)

// OutstandingBalance is a directed debt between two users arising from one
// settlement. Individual records are kept as the audit trail; pairwise
// netting is a read-time projection, never a destructive merge.
type OutstandingBalance struct {
	ID        uuid.UUID       `db:"id" json:"id" validate:"required,uuid4"`
	MarketID  uuid.UUID       `db:"market_id" json:"market_id" validate:"required,uuid4"`
	PayerID   uuid.UUID       `db:"payer_id" json:"payer_id" validate:"required,uuid4"`
	PayeeID   uuid.UUID       `db:"payee_id" json:"payee_id" validate:"required,uuid4"`
	Amount    decimal.Decimal `db:"amount" json:"amount"`
	Status    BalanceStatus   `db:"status" json:"status" validate:"required"`
	CreatedAt time.Time       `db:"created_at" json:"created_at"`
	UpdatedAt time.Time       `db:"updated_at" json:"updated_at"`
}

// IsPending reports whether the balance still awaits resolution.
func (b *OutstandingBalance) IsPending() bool {
	return b.Status == BalanceStatusPending
}

// NetBalance is the read-time projection of all balances between a pair of
// users, collapsed into one signed amount from the perspective of UserID.
// Positive means the counterparty owes UserID.
type NetBalance struct {
	UserID         uuid.UUID       `json:"user_id"`
	CounterpartyID uuid.UUID       `json:"counterparty_id"`
	Amount         decimal.Decimal `json:"amount"`
	EntryCount     int             `json:"entry_count"`
}
