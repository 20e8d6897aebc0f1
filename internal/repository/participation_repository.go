package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/shopspring/decimal"

	"github.com/sidepot/sidepot/internal/database"
	"github.com/sidepot/sidepot/internal/models"
)

// PostgresParticipationRepository implements ParticipationRepository for PostgreSQL
type PostgresParticipationRepository struct {
	db *database.DB
}

// NewPostgresParticipationRepository creates a new participation repository
func NewPostgresParticipationRepository(db *database.DB) ParticipationRepository {
	return &PostgresParticipationRepository{db: db}
}

const participationColumns = `id, market_id, user_id, option, stake, locked_odds,
	final_payout::text, is_winner, placed_at, settled_at`

func scanParticipation(row pgx.Row) (*models.Participation, error) {
	p := &models.Participation{}
	var payout *string
	err := row.Scan(
		&p.ID, &p.MarketID, &p.UserID, &p.Option, &p.Stake, &p.LockedOdds,
		&payout, &p.IsWinner, &p.PlacedAt, &p.SettledAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, models.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to scan participation: %w", err)
	}
	if payout != nil {
		d, err := decimal.NewFromString(*payout)
		if err != nil {
			return nil, fmt.Errorf("invalid payout value %q: %w", *payout, err)
		}
		p.FinalPayout = &d
	}
	return p, nil
}

// GetByID retrieves a participation by ID
func (r *PostgresParticipationRepository) GetByID(ctx context.Context, id uuid.UUID) (*models.Participation, error) {
	query := `SELECT ` + participationColumns + ` FROM participations WHERE id = $1`
	return scanParticipation(r.db.GetPool().QueryRow(ctx, query, id))
}

// GetByMarket retrieves all participations for a market, oldest first
func (r *PostgresParticipationRepository) GetByMarket(ctx context.Context, marketID uuid.UUID) ([]*models.Participation, error) {
	query := `
		SELECT ` + participationColumns + `
		FROM participations
		WHERE market_id = $1
		ORDER BY placed_at ASC
	`

	rows, err := r.db.GetPool().Query(ctx, query, marketID)
	if err != nil {
		return nil, fmt.Errorf("failed to query participations by market: %w", err)
	}
	defer rows.Close()

	var parts []*models.Participation
	for rows.Next() {
		p, err := scanParticipation(rows)
		if err != nil {
			return nil, err
		}
		parts = append(parts, p)
	}
	return parts, rows.Err()
}

// GetByUser retrieves a user's participations, newest first
func (r *PostgresParticipationRepository) GetByUser(ctx context.Context, userID uuid.UUID, limit int) ([]*models.Participation, error) {
	query := `
		SELECT ` + participationColumns + `
		FROM participations
		WHERE user_id = $1
		ORDER BY placed_at DESC
		LIMIT $2
	`

	rows, err := r.db.GetPool().Query(ctx, query, userID, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query participations by user: %w", err)
	}
	defer rows.Close()

	var parts []*models.Participation
	for rows.Next() {
		p, err := scanParticipation(rows)
		if err != nil {
			return nil, err
		}
		parts = append(parts, p)
	}
	return parts, rows.Err()
}

// CountByMarket returns the number of participations on a market
func (r *PostgresParticipationRepository) CountByMarket(ctx context.Context, marketID uuid.UUID) (int, error) {
	var count int
	err := r.db.GetPool().QueryRow(ctx, `SELECT COUNT(*) FROM participations WHERE market_id = $1`, marketID).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("failed to count participations: %w", err)
	}
	return count, nil
}
