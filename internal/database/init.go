package database

import (
	"context"
	"fmt"
)

// schema holds the bootstrap DDL. Idempotent; production deployments run
// migrations separately.
var schema = []string{
	`CREATE TABLE IF NOT EXISTS markets (
		id UUID PRIMARY KEY,
		community_id UUID NOT NULL,
		creator_id UUID NOT NULL,
		title TEXT NOT NULL,
		options TEXT[] NOT NULL,
		option_pools JSONB NOT NULL DEFAULT '{}'::jsonb,
		total_pool BIGINT NOT NULL DEFAULT 0 CHECK (total_pool >= 0),
		stored_odds JSONB,
		status TEXT NOT NULL DEFAULT 'open',
		deadline TIMESTAMPTZ NOT NULL,
		winner_option TEXT,
		created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
		updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
	)`,
	`CREATE INDEX IF NOT EXISTS idx_markets_status ON markets (status)`,
	`CREATE INDEX IF NOT EXISTS idx_markets_community ON markets (community_id)`,
	`CREATE TABLE IF NOT EXISTS participations (
		id UUID PRIMARY KEY,
		market_id UUID NOT NULL REFERENCES markets (id),
		user_id UUID NOT NULL,
		option TEXT NOT NULL,
		stake BIGINT NOT NULL CHECK (stake > 0),
		locked_odds JSONB NOT NULL,
		final_payout NUMERIC(20, 4),
		is_winner BOOLEAN,
		placed_at TIMESTAMPTZ NOT NULL,
		settled_at TIMESTAMPTZ
	)`,
	`CREATE INDEX IF NOT EXISTS idx_participations_market ON participations (market_id)`,
	`CREATE INDEX IF NOT EXISTS idx_participations_user ON participations (user_id)`,
	`CREATE TABLE IF NOT EXISTS outstanding_balances (
		id UUID PRIMARY KEY,
		market_id UUID NOT NULL REFERENCES markets (id),
		payer_id UUID NOT NULL,
		payee_id UUID NOT NULL,
		amount NUMERIC(20, 2) NOT NULL CHECK (amount > 0),
		status TEXT NOT NULL DEFAULT 'pending',
		created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
		updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
	)`,
	`CREATE INDEX IF NOT EXISTS idx_balances_market ON outstanding_balances (market_id)`,
	`CREATE INDEX IF NOT EXISTS idx_balances_payer ON outstanding_balances (payer_id)`,
	`CREATE INDEX IF NOT EXISTS idx_balances_payee ON outstanding_balances (payee_id)`,
	`CREATE TABLE IF NOT EXISTS odds_history (
		id UUID PRIMARY KEY,
		market_id UUID NOT NULL REFERENCES markets (id),
		odds JSONB NOT NULL,
		total_pool BIGINT NOT NULL,
		option_pools JSONB NOT NULL,
		recorded_at TIMESTAMPTZ NOT NULL
	)`,
	`CREATE INDEX IF NOT EXISTS idx_odds_history_market ON odds_history (market_id, recorded_at DESC)`,
	`CREATE TABLE IF NOT EXISTS user_balances (
		user_id UUID PRIMARY KEY,
		balance BIGINT NOT NULL CHECK (balance >= 0),
		updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
	)`,
	`CREATE TABLE IF NOT EXISTS community_members (
		user_id UUID NOT NULL,
		community_id UUID NOT NULL,
		display_name TEXT NOT NULL,
		joined_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
		PRIMARY KEY (user_id, community_id)
	)`,
}

// InitSchema creates the tables and indexes the service needs.
func InitSchema(ctx context.Context, db *DB) error {
	for _, stmt := range schema {
		if _, err := db.pool.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("failed to apply schema statement: %w", err)
		}
	}
	return nil
}
