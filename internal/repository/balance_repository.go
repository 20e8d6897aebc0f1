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

// PostgresBalanceRepository implements BalanceRepository for PostgreSQL
type PostgresBalanceRepository struct {
	db *database.DB
}

// NewPostgresBalanceRepository creates a new balance repository
func NewPostgresBalanceRepository(db *database.DB) BalanceRepository {
	return &PostgresBalanceRepository{db: db}
}

const balanceColumns = `id, market_id, payer_id, payee_id, amount::text, status, created_at, updated_at`

func scanBalance(row pgx.Row) (*models.OutstandingBalance, error) {
	b := &models.OutstandingBalance{}
	var amount string
	err := row.Scan(
		&b.ID, &b.MarketID, &b.PayerID, &b.PayeeID, &amount, &b.Status, &b.CreatedAt, &b.UpdatedAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, models.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to scan balance: %w", err)
	}
	d, err := decimal.NewFromString(amount)
	if err != nil {
		return nil, fmt.Errorf("invalid amount value %q: %w", amount, err)
	}
	b.Amount = d
	return b, nil
}

func (r *PostgresBalanceRepository) query(ctx context.Context, query string, args ...interface{}) ([]*models.OutstandingBalance, error) {
	rows, err := r.db.GetPool().Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query balances: %w", err)
	}
	defer rows.Close()

	var balances []*models.OutstandingBalance
	for rows.Next() {
		b, err := scanBalance(rows)
		if err != nil {
			return nil, err
		}
		balances = append(balances, b)
	}
	return balances, rows.Err()
}

// GetByMarket retrieves all balances created by one settlement
func (r *PostgresBalanceRepository) GetByMarket(ctx context.Context, marketID uuid.UUID) ([]*models.OutstandingBalance, error) {
	return r.query(ctx,
		`SELECT `+balanceColumns+` FROM outstanding_balances WHERE market_id = $1 ORDER BY created_at ASC`,
		marketID)
}

// GetBetween retrieves all balances owed by payer to payee
func (r *PostgresBalanceRepository) GetBetween(ctx context.Context, payerID, payeeID uuid.UUID) ([]*models.OutstandingBalance, error) {
	return r.query(ctx,
		`SELECT `+balanceColumns+` FROM outstanding_balances WHERE payer_id = $1 AND payee_id = $2 ORDER BY created_at ASC`,
		payerID, payeeID)
}

// GetByUser retrieves all balances where the user is payer or payee
func (r *PostgresBalanceRepository) GetByUser(ctx context.Context, userID uuid.UUID) ([]*models.OutstandingBalance, error) {
	return r.query(ctx,
		`SELECT `+balanceColumns+` FROM outstanding_balances WHERE payer_id = $1 OR payee_id = $1 ORDER BY created_at ASC`,
		userID)
}

// UpdateStatus transitions a balance from one status to another. Returns
// false without error when the record was not in the expected status,
// which keeps user-driven resolution idempotent.
func (r *PostgresBalanceRepository) UpdateStatus(ctx context.Context, id uuid.UUID, from, to models.BalanceStatus) (bool, error) {
	commandTag, err := r.db.GetPool().Exec(ctx,
		`UPDATE outstanding_balances SET status = $3, updated_at = NOW() WHERE id = $1 AND status = $2`,
		id, from, to)
	if err != nil {
		return false, fmt.Errorf("failed to update balance status: %w", err)
	}
	return commandTag.RowsAffected() > 0, nil
}
