package repository

import (
	"fmt"

	"github.com/sidepot/sidepot/internal/database"
)

// Repositories holds all repository implementations
type Repositories struct {
	Market        MarketRepository
	Participation ParticipationRepository
	Balance       BalanceRepository
	OddsHistory   OddsHistoryRepository
	Wallet        WalletRepository
	Member        MemberRepository
	Store         *PostgresStore
}

// NewRepositories creates and returns all repository implementations
func NewRepositories(db *database.DB) (*Repositories, error) {
	if db == nil {
		return nil, fmt.Errorf("database connection is required")
	}

	return &Repositories{
		Market:        NewPostgresMarketRepository(db),
		Participation: NewPostgresParticipationRepository(db),
		Balance:       NewPostgresBalanceRepository(db),
		OddsHistory:   NewPostgresOddsHistoryRepository(db),
		Wallet:        NewPostgresWalletRepository(db),
		Member:        NewPostgresMemberRepository(db),
		Store:         NewPostgresStore(db),
	}, nil
}
