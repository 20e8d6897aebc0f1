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

// PostgresOddsHistoryRepository implements OddsHistoryRepository for PostgreSQL
type PostgresOddsHistoryRepository struct {
	db *database.DB
}

// NewPostgresOddsHistoryRepository creates a new odds history repository
func NewPostgresOddsHistoryRepository(db *database.DB) OddsHistoryRepository {
	return &PostgresOddsHistoryRepository{db: db}
}

const historyColumns = `id, market_id, odds, total_pool, option_pools, recorded_at`

func scanHistoryEntry(row pgx.Row) (*models.OddsHistoryEntry, error) {
	e := &models.OddsHistoryEntry{}
	err := row.Scan(&e.ID, &e.MarketID, &e.Odds, &e.TotalPool, &e.OptionPools, &e.RecordedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, models.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to scan odds history entry: %w", err)
	}
	return e, nil
}

// Insert appends a new odds history entry
func (r *PostgresOddsHistoryRepository) Insert(ctx context.Context, entry *models.OddsHistoryEntry) error {
	query := `
		INSERT INTO odds_history (id, market_id, odds, total_pool, option_pools, recorded_at)
		VALUES ($1, $2, $3, $4, $5, $6)
	`

	_, err := r.db.GetPool().Exec(ctx, query,
		entry.ID, entry.MarketID, entry.Odds, entry.TotalPool, entry.OptionPools, entry.RecordedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to insert odds history entry: %w", err)
	}
	return nil
}

// Latest retrieves the most recent entry for a market
func (r *PostgresOddsHistoryRepository) Latest(ctx context.Context, marketID uuid.UUID) (*models.OddsHistoryEntry, error) {
	query := `
		SELECT ` + historyColumns + `
		FROM odds_history
		WHERE market_id = $1
		ORDER BY recorded_at DESC
		LIMIT 1
	`
	return scanHistoryEntry(r.db.GetPool().QueryRow(ctx, query, marketID))
}

// GetByMarket retrieves entries for a market within a time range
func (r *PostgresOddsHistoryRepository) GetByMarket(ctx context.Context, marketID uuid.UUID, start, end time.Time) ([]*models.OddsHistoryEntry, error) {
	query := `
		SELECT ` + historyColumns + `
		FROM odds_history
		WHERE market_id = $1 AND recorded_at >= $2 AND recorded_at <= $3
		ORDER BY recorded_at ASC
	`

	rows, err := r.db.GetPool().Query(ctx, query, marketID, start, end)
	if err != nil {
		return nil, fmt.Errorf("failed to query odds history: %w", err)
	}
	defer rows.Close()

	var entries []*models.OddsHistoryEntry
	for rows.Next() {
		e, err := scanHistoryEntry(rows)
		if err != nil {
			return nil, err
		}
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

// DeleteOlderThan removes up to batchSize entries recorded before cutoff
func (r *PostgresOddsHistoryRepository) DeleteOlderThan(ctx context.Context, cutoff time.Time, batchSize int) (int, error) {
	query := `
		DELETE FROM odds_history
		WHERE id IN (
			SELECT id FROM odds_history WHERE recorded_at < $1 LIMIT $2
		)
	`

	commandTag, err := r.db.GetPool().Exec(ctx, query, cutoff, batchSize)
	if err != nil {
		return 0, fmt.Errorf("failed to prune odds history: %w", err)
	}
	return int(commandTag.RowsAffected()), nil
}
