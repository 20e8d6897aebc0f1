package repository

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/sidepot/sidepot/internal/models"
)

// MarketRepository defines the interface for market data access
type MarketRepository interface {
	Create(ctx context.Context, market *models.Market) error
	GetByID(ctx context.Context, id uuid.UUID) (*models.Market, error)
	ListOpen(ctx context.Context, communityID uuid.UUID, limit int) ([]*models.Market, error)
	ListOpenPastDeadline(ctx context.Context, asOf time.Time) ([]*models.Market, error)
	CountOpen(ctx context.Context) (int, error)
	Delete(ctx context.Context, id uuid.UUID) error
}

// ParticipationRepository defines the interface for participation data access
type ParticipationRepository interface {
	GetByID(ctx context.Context, id uuid.UUID) (*models.Participation, error)
	GetByMarket(ctx context.Context, marketID uuid.UUID) ([]*models.Participation, error)
	GetByUser(ctx context.Context, userID uuid.UUID, limit int) ([]*models.Participation, error)
	CountByMarket(ctx context.Context, marketID uuid.UUID) (int, error)
}

// BalanceRepository defines the interface for outstanding balance access.
// It satisfies ledger.BalanceStore.
type BalanceRepository interface {
	GetByMarket(ctx context.Context, marketID uuid.UUID) ([]*models.OutstandingBalance, error)
	GetBetween(ctx context.Context, payerID, payeeID uuid.UUID) ([]*models.OutstandingBalance, error)
	GetByUser(ctx context.Context, userID uuid.UUID) ([]*models.OutstandingBalance, error)
	UpdateStatus(ctx context.Context, id uuid.UUID, from, to models.BalanceStatus) (bool, error)
}

// OddsHistoryRepository defines the interface for odds history access.
// It satisfies tracker.HistoryStore.
type OddsHistoryRepository interface {
	Insert(ctx context.Context, entry *models.OddsHistoryEntry) error
	Latest(ctx context.Context, marketID uuid.UUID) (*models.OddsHistoryEntry, error)
	GetByMarket(ctx context.Context, marketID uuid.UUID, start, end time.Time) ([]*models.OddsHistoryEntry, error)
	DeleteOlderThan(ctx context.Context, cutoff time.Time, batchSize int) (int, error)
}

// WalletRepository defines the interface for user point balances
type WalletRepository interface {
	EnsureAccount(ctx context.Context, userID uuid.UUID, startingBalance int64) error
	GetBalance(ctx context.Context, userID uuid.UUID) (int64, error)
	Credit(ctx context.Context, userID uuid.UUID, amount int64) error
	Debit(ctx context.Context, userID uuid.UUID, amount int64) error
}

// MemberRepository defines read-only access to community membership used
// for display purposes
type MemberRepository interface {
	DisplayName(ctx context.Context, communityID, userID uuid.UUID) (string, error)
	ListMembers(ctx context.Context, communityID uuid.UUID) (map[uuid.UUID]string, error)
}
