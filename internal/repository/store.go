package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/shopspring/decimal"

	"github.com/sidepot/sidepot/internal/database"
	"github.com/sidepot/sidepot/internal/engine"
	"github.com/sidepot/sidepot/internal/models"
)

// PostgresStore implements engine.Store on top of pgx transactions. The
// market row lock taken by MarketForUpdate serializes wagering and
// settlement on the same market; serialization and deadlock failures are
// surfaced as engine.ErrTxConflict so the engines re-run from a fresh
// snapshot.
type PostgresStore struct {
	db *database.DB
}

// NewPostgresStore creates a new transactional engine store
func NewPostgresStore(db *database.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

// WithTx runs fn inside one transaction, committing on success and rolling
// back on any error.
func (s *PostgresStore) WithTx(ctx context.Context, fn func(ctx context.Context, tx engine.Tx) error) error {
	pgxTx, err := s.db.GetPool().BeginTx(ctx, pgx.TxOptions{IsoLevel: pgx.ReadCommitted})
	if err != nil {
		return models.NewPersistenceError("begin", err)
	}

	if err := fn(ctx, &pgTx{tx: pgxTx}); err != nil {
		if rbErr := pgxTx.Rollback(ctx); rbErr != nil && !errors.Is(rbErr, pgx.ErrTxClosed) {
			return fmt.Errorf("transaction failed: %w, rollback failed: %v", err, rbErr)
		}
		return mapConflict(err)
	}

	if err := pgxTx.Commit(ctx); err != nil {
		return mapConflict(models.NewPersistenceError("commit", err))
	}
	return nil
}

// mapConflict rewrites Postgres serialization and deadlock failures into
// the engine's retryable conflict error.
func mapConflict(err error) error {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch pgErr.Code {
		case "40001", "40P01":
			return fmt.Errorf("%w: %v", engine.ErrTxConflict, err)
		}
	}
	return err
}

// pgTx implements engine.Tx over one pgx transaction
type pgTx struct {
	tx pgx.Tx
}

func (t *pgTx) MarketForUpdate(ctx context.Context, marketID uuid.UUID) (*models.Market, error) {
	query := `SELECT ` + marketColumns + ` FROM markets WHERE id = $1 FOR UPDATE`
	return scanMarket(t.tx.QueryRow(ctx, query, marketID))
}

func (t *pgTx) ApplyStake(ctx context.Context, marketID uuid.UUID, option string, stake int64) error {
	query := `
		UPDATE markets
		SET option_pools = jsonb_set(
			option_pools,
			ARRAY[$2],
			to_jsonb(COALESCE((option_pools ->> $2)::bigint, 0) + $3)
		),
		total_pool = total_pool + $3,
		updated_at = NOW()
		WHERE id = $1
	`

	commandTag, err := t.tx.Exec(ctx, query, marketID, option, stake)
	if err != nil {
		return models.NewPersistenceError("apply stake", err)
	}
	if commandTag.RowsAffected() == 0 {
		return models.ErrNotFound
	}
	return nil
}

func (t *pgTx) TransitionMarket(ctx context.Context, marketID uuid.UUID, from, to models.MarketStatus, winnerOption *string) (bool, error) {
	query := `
		UPDATE markets
		SET status = $3, winner_option = $4, updated_at = NOW()
		WHERE id = $1 AND status = $2
	`

	commandTag, err := t.tx.Exec(ctx, query, marketID, from, to, winnerOption)
	if err != nil {
		return false, models.NewPersistenceError("transition market", err)
	}
	return commandTag.RowsAffected() > 0, nil
}

func (t *pgTx) InsertParticipation(ctx context.Context, p *models.Participation) error {
	query := `
		INSERT INTO participations (id, market_id, user_id, option, stake, locked_odds, placed_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
	`

	_, err := t.tx.Exec(ctx, query, p.ID, p.MarketID, p.UserID, p.Option, p.Stake, p.LockedOdds, p.PlacedAt)
	if err != nil {
		return models.NewPersistenceError("insert participation", err)
	}
	return nil
}

func (t *pgTx) ParticipationsForMarket(ctx context.Context, marketID uuid.UUID) ([]*models.Participation, error) {
	query := `
		SELECT ` + participationColumns + `
		FROM participations
		WHERE market_id = $1
		ORDER BY placed_at ASC
	`

	rows, err := t.tx.Query(ctx, query, marketID)
	if err != nil {
		return nil, models.NewPersistenceError("query participations", err)
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

func (t *pgTx) SetParticipationResult(ctx context.Context, participationID uuid.UUID, payout decimal.Decimal, isWinner *bool, settledAt time.Time) error {
	// final_payout IS NULL keeps the settlement fields write-once.
	query := `
		UPDATE participations
		SET final_payout = $2, is_winner = $3, settled_at = $4
		WHERE id = $1 AND final_payout IS NULL
	`

	_, err := t.tx.Exec(ctx, query, participationID, payout.String(), isWinner, settledAt)
	if err != nil {
		return models.NewPersistenceError("set participation result", err)
	}
	return nil
}

func (t *pgTx) DebitBalance(ctx context.Context, userID uuid.UUID, amount int64) error {
	commandTag, err := t.tx.Exec(ctx,
		`UPDATE user_balances SET balance = balance - $2, updated_at = NOW() WHERE user_id = $1 AND balance >= $2`,
		userID, amount)
	if err != nil {
		return models.NewPersistenceError("debit balance", err)
	}
	if commandTag.RowsAffected() == 0 {
		var balance int64
		err := t.tx.QueryRow(ctx, `SELECT balance FROM user_balances WHERE user_id = $1`, userID).Scan(&balance)
		if errors.Is(err, pgx.ErrNoRows) {
			return models.ErrNotFound
		}
		if err != nil {
			return models.NewPersistenceError("get balance", err)
		}
		return models.NewInsufficientFundsError(balance, amount)
	}
	return nil
}

func (t *pgTx) CreditBalance(ctx context.Context, userID uuid.UUID, amount int64) error {
	query := `
		INSERT INTO user_balances (user_id, balance)
		VALUES ($1, $2)
		ON CONFLICT (user_id) DO UPDATE
		SET balance = user_balances.balance + EXCLUDED.balance, updated_at = NOW()
	`

	_, err := t.tx.Exec(ctx, query, userID, amount)
	if err != nil {
		return models.NewPersistenceError("credit balance", err)
	}
	return nil
}

func (t *pgTx) InsertOutstandingBalance(ctx context.Context, b *models.OutstandingBalance) error {
	query := `
		INSERT INTO outstanding_balances (id, market_id, payer_id, payee_id, amount, status, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	`

	_, err := t.tx.Exec(ctx, query,
		b.ID, b.MarketID, b.PayerID, b.PayeeID, b.Amount.String(), b.Status, b.CreatedAt, b.UpdatedAt)
	if err != nil {
		return models.NewPersistenceError("insert outstanding balance", err)
	}
	return nil
}

func (t *pgTx) OutstandingBalancesForMarket(ctx context.Context, marketID uuid.UUID) ([]*models.OutstandingBalance, error) {
	query := `SELECT ` + balanceColumns + ` FROM outstanding_balances WHERE market_id = $1 ORDER BY created_at ASC`

	rows, err := t.tx.Query(ctx, query, marketID)
	if err != nil {
		return nil, models.NewPersistenceError("query outstanding balances", err)
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
