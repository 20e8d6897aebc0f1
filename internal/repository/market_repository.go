package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/sidepot/sidepot/internal/database"
	"github.com/sidepot/sidepot/internal/models"
)

// PostgresMarketRepository implements MarketRepository for PostgreSQL
type PostgresMarketRepository struct {
	db *database.DB
}

// NewPostgresMarketRepository creates a new market repository
func NewPostgresMarketRepository(db *database.DB) MarketRepository {
	return &PostgresMarketRepository{db: db}
}

const marketColumns = `id, community_id, creator_id, title, options, option_pools, total_pool,
	COALESCE(stored_odds, '{}'::jsonb), status, deadline, winner_option, created_at, updated_at`

func scanMarket(row pgx.Row) (*models.Market, error) {
	m := &models.Market{}
	err := row.Scan(
		&m.ID, &m.CommunityID, &m.CreatorID, &m.Title, &m.Options, &m.OptionPools, &m.TotalPool,
		&m.StoredOdds, &m.Status, &m.Deadline, &m.WinnerOption, &m.CreatedAt, &m.UpdatedAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, models.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to scan market: %w", err)
	}
	return m, nil
}

// Create inserts a new market with empty pools
func (r *PostgresMarketRepository) Create(ctx context.Context, market *models.Market) error {
	query := `
		INSERT INTO markets (id, community_id, creator_id, title, options, option_pools, total_pool,
		                     stored_odds, status, deadline)
		VALUES ($1, $2, $3, $4, $5, '{}'::jsonb, 0, $6, $7, $8)
	`

	storedOdds := market.StoredOdds
	if storedOdds == nil {
		storedOdds = map[string]string{}
	}

	_, err := r.db.GetPool().Exec(ctx, query,
		market.ID, market.CommunityID, market.CreatorID, market.Title, market.Options,
		storedOdds, market.Status, market.Deadline,
	)
	if err != nil {
		return fmt.Errorf("failed to create market: %w", err)
	}
	return nil
}

// GetByID retrieves a market by ID
func (r *PostgresMarketRepository) GetByID(ctx context.Context, id uuid.UUID) (*models.Market, error) {
	query := `SELECT ` + marketColumns + ` FROM markets WHERE id = $1`
	return scanMarket(r.db.GetPool().QueryRow(ctx, query, id))
}

// ListOpen retrieves open markets for a community, newest first
func (r *PostgresMarketRepository) ListOpen(ctx context.Context, communityID uuid.UUID, limit int) ([]*models.Market, error) {
	query := `
		SELECT ` + marketColumns + `
		FROM markets
		WHERE community_id = $1 AND status = 'open'
		ORDER BY created_at DESC
		LIMIT $2
	`

	rows, err := r.db.GetPool().Query(ctx, query, communityID, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query open markets: %w", err)
	}
	defer rows.Close()

	var markets []*models.Market
	for rows.Next() {
		m, err := scanMarket(rows)
		if err != nil {
			return nil, err
		}
		markets = append(markets, m)
	}
	return markets, rows.Err()
}

// ListOpenPastDeadline retrieves open markets whose deadline has elapsed
func (r *PostgresMarketRepository) ListOpenPastDeadline(ctx context.Context, asOf time.Time) ([]*models.Market, error) {
	query := `
		SELECT ` + marketColumns + `
		FROM markets
		WHERE status = 'open' AND deadline <= $1
		ORDER BY deadline ASC
	`

	rows, err := r.db.GetPool().Query(ctx, query, asOf)
	if err != nil {
		return nil, fmt.Errorf("failed to query expired markets: %w", err)
	}
	defer rows.Close()

	var markets []*models.Market
	for rows.Next() {
		m, err := scanMarket(rows)
		if err != nil {
			return nil, err
		}
		markets = append(markets, m)
	}
	return markets, rows.Err()
}

// CountOpen returns the number of currently open markets
func (r *PostgresMarketRepository) CountOpen(ctx context.Context) (int, error) {
	var count int
	err := r.db.GetPool().QueryRow(ctx, `SELECT COUNT(*) FROM markets WHERE status = 'open'`).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("failed to count open markets: %w", err)
	}
	return count, nil
}

// Delete removes a market. Callers must first ensure the market has no
// participations; the foreign key enforces it as a backstop.
func (r *PostgresMarketRepository) Delete(ctx context.Context, id uuid.UUID) error {
	commandTag, err := r.db.GetPool().Exec(ctx, `DELETE FROM markets WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("failed to delete market: %w", err)
	}
	if commandTag.RowsAffected() == 0 {
		return models.ErrNotFound
	}
	return nil
}
