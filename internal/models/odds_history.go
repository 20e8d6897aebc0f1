package models

import (
	"time"

	"github.com/google/uuid"
)

// OddsHistoryEntry is an immutable point-in-time snapshot of a market's
// implied odds and pool state. Entries are append-only and pruned after a
// retention window.
type OddsHistoryEntry struct {
	ID          uuid.UUID          `db:"id" json:"id" validate:"required,uuid4"`
	MarketID    uuid.UUID          `db:"market_id" json:"market_id" validate:"required,uuid4"`
	Odds        map[string]float64 `db:"odds" json:"odds"`
	TotalPool   int64              `db:"total_pool" json:"total_pool"`
	OptionPools map[string]int64   `db:"option_pools" json:"option_pools"`
	RecordedAt  time.Time          `db:"recorded_at" json:"recorded_at"`
}
