package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/sidepot/sidepot/internal/database"
	"github.com/sidepot/sidepot/internal/models"
)

// PostgresWalletRepository implements WalletRepository for PostgreSQL
type PostgresWalletRepository struct {
	db *database.DB
}

// NewPostgresWalletRepository creates a new wallet repository
func NewPostgresWalletRepository(db *database.DB) WalletRepository {
	return &PostgresWalletRepository{db: db}
}

// EnsureAccount creates the user's balance row if it does not exist
func (r *PostgresWalletRepository) EnsureAccount(ctx context.Context, userID uuid.UUID, startingBalance int64) error {
	query := `
		INSERT INTO user_balances (user_id, balance)
		VALUES ($1, $2)
		ON CONFLICT (user_id) DO NOTHING
	`

	_, err := r.db.GetPool().Exec(ctx, query, userID, startingBalance)
	if err != nil {
		return fmt.Errorf("failed to ensure balance account: %w", err)
	}
	return nil
}

// GetBalance retrieves the user's current point balance
func (r *PostgresWalletRepository) GetBalance(ctx context.Context, userID uuid.UUID) (int64, error) {
	var balance int64
	err := r.db.GetPool().QueryRow(ctx,
		`SELECT balance FROM user_balances WHERE user_id = $1`, userID).Scan(&balance)
	if errors.Is(err, pgx.ErrNoRows) {
		return 0, models.ErrNotFound
	}
	if err != nil {
		return 0, fmt.Errorf("failed to get balance: %w", err)
	}
	return balance, nil
}

// Credit adds amount to the user's balance
func (r *PostgresWalletRepository) Credit(ctx context.Context, userID uuid.UUID, amount int64) error {
	query := `
		INSERT INTO user_balances (user_id, balance)
		VALUES ($1, $2)
		ON CONFLICT (user_id) DO UPDATE
		SET balance = user_balances.balance + EXCLUDED.balance, updated_at = NOW()
	`

	_, err := r.db.GetPool().Exec(ctx, query, userID, amount)
	if err != nil {
		return fmt.Errorf("failed to credit balance: %w", err)
	}
	return nil
}

// Debit subtracts amount from the user's balance. The conditional update
// makes overdrafts impossible under concurrency.
func (r *PostgresWalletRepository) Debit(ctx context.Context, userID uuid.UUID, amount int64) error {
	commandTag, err := r.db.GetPool().Exec(ctx,
		`UPDATE user_balances SET balance = balance - $2, updated_at = NOW() WHERE user_id = $1 AND balance >= $2`,
		userID, amount)
	if err != nil {
		return fmt.Errorf("failed to debit balance: %w", err)
	}
	if commandTag.RowsAffected() == 0 {
		balance, err := r.GetBalance(ctx, userID)
		if err != nil {
			return err
		}
		return models.NewInsufficientFundsError(balance, amount)
	}
	return nil
}
