package models

import (
	"time"

	"github.com/google/uuid"
)

// MarketStatus represents the lifecycle state of a market
type MarketStatus string

const (
	MarketStatusOpen      MarketStatus = "open"
	MarketStatusSettled   MarketStatus = "settled"
	MarketStatusVoided    MarketStatus = "voided"
	MarketStatusCancelled MarketStatus = "cancelled"
)

// Market represents a single proposition users can stake points on.
// OptionPools holds the running stake total per option; TotalPool must
// always equal the sum of OptionPools.
type Market struct {
	ID           uuid.UUID         `db:"id" json:"id" validate:"required,uuid4"`
	CommunityID  uuid.UUID         `db:"community_id" json:"community_id" validate:"required,uuid4"`
	CreatorID    uuid.UUID         `db:"creator_id" json:"creator_id" validate:"required,uuid4"`
	Title        string            `db:"title" json:"title" validate:"required"`
	Options      []string          `db:"options" json:"options" validate:"required,min=2,dive,required"`
	OptionPools  map[string]int64  `db:"option_pools" json:"option_pools"`
	TotalPool    int64             `db:"total_pool" json:"total_pool" validate:"gte=0"`
	StoredOdds   map[string]string `db:"stored_odds" json:"stored_odds"` // American strings, fallback before any stakes
	Status       MarketStatus      `db:"status" json:"status" validate:"required"`
	Deadline     time.Time         `db:"deadline" json:"deadline" validate:"required"`
	WinnerOption *string           `db:"winner_option" json:"winner_option"`
	CreatedAt    time.Time         `db:"created_at" json:"created_at"`
	UpdatedAt    time.Time         `db:"updated_at" json:"updated_at"`
}

// IsOpen reports whether the market still accepts stakes.
func (m *Market) IsOpen() bool {
	return m.Status == MarketStatusOpen
}

// IsTerminal reports whether the market reached a final state.
func (m *Market) IsTerminal() bool {
	switch m.Status {
	case MarketStatusSettled, MarketStatusVoided, MarketStatusCancelled:
		return true
	}
	return false
}

// HasOption reports whether option is one of the market's options.
func (m *Market) HasOption(option string) bool {
	for _, o := range m.Options {
		if o == option {
			return true
		}
	}
	return false
}

// PoolFor returns the staked total for option, zero if nothing staked yet.
func (m *Market) PoolFor(option string) int64 {
	if m.OptionPools == nil {
		return 0
	}
	return m.OptionPools[option]
}

// ValidatePools checks that OptionPools only references known options,
// that no pool is negative, and that TotalPool equals the sum of the
// per-option pools. Unknown keys are rejected rather than ignored.
func (m *Market) ValidatePools() error {
	var sum int64
	for option, pool := range m.OptionPools {
		if !m.HasOption(option) {
			return NewValidationError("option_pools", "unknown option "+option)
		}
		if pool < 0 {
			return NewValidationError("option_pools", "negative pool for option "+option)
		}
		sum += pool
	}
	if sum != m.TotalPool {
		return NewValidationError("total_pool", "total pool does not match sum of option pools")
	}
	return nil
}
