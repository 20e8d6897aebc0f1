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

// PostgresMemberRepository implements MemberRepository for PostgreSQL
type PostgresMemberRepository struct {
	db *database.DB
}

// NewPostgresMemberRepository creates a new member repository
func NewPostgresMemberRepository(db *database.DB) MemberRepository {
	return &PostgresMemberRepository{db: db}
}

// DisplayName looks up a member's display name within a community
func (r *PostgresMemberRepository) DisplayName(ctx context.Context, communityID, userID uuid.UUID) (string, error) {
	var name string
	err := r.db.GetPool().QueryRow(ctx,
		`SELECT display_name FROM community_members WHERE community_id = $1 AND user_id = $2`,
		communityID, userID).Scan(&name)
	if errors.Is(err, pgx.ErrNoRows) {
		return "", models.ErrNotFound
	}
	if err != nil {
		return "", fmt.Errorf("failed to get display name: %w", err)
	}
	return name, nil
}

// ListMembers returns all members of a community keyed by user id
func (r *PostgresMemberRepository) ListMembers(ctx context.Context, communityID uuid.UUID) (map[uuid.UUID]string, error) {
	rows, err := r.db.GetPool().Query(ctx,
		`SELECT user_id, display_name FROM community_members WHERE community_id = $1`, communityID)
	if err != nil {
		return nil, fmt.Errorf("failed to query members: %w", err)
	}
	defer rows.Close()

	members := make(map[uuid.UUID]string)
	for rows.Next() {
		var userID uuid.UUID
		var name string
		if err := rows.Scan(&userID, &name); err != nil {
			return nil, fmt.Errorf("failed to scan member: %w", err)
		}
		members[userID] = name
	}
	return members, rows.Err()
}
