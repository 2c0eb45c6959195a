// Package profile is the user/timezone/subscription collaborator: thin data
// access over the users table plus a time-bounded subscription cache for the
// weekly batch.
package profile

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"mealweek/internal/database"
	"mealweek/internal/shared"
)

// Profile is one user record.
type Profile struct {
	ID                 int64  `json:"id"`
	Timezone           string `json:"timezone"`
	SubscriptionStatus string `json:"subscription_status"`
}

// StatusActive marks a user the weekly batch processes.
const StatusActive = "active"

// Repository reads user profiles.
type Repository struct {
	db *database.DB
}

// NewRepository creates a new profile repository.
func NewRepository(d *database.DB) *Repository {
	return &Repository{db: d}
}

// Get retrieves a user profile.
func (r *Repository) Get(ctx context.Context, userID int64) (*Profile, error) {
	p := &Profile{}
	err := r.db.SQL.QueryRowContext(ctx, r.db.Rebind(
		"SELECT id, timezone, subscription_status FROM users WHERE id = ?"), userID,
	).Scan(&p.ID, &p.Timezone, &p.SubscriptionStatus)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("user %d: %w", userID, shared.ErrNotFound)
		}
		return nil, fmt.Errorf("failed to load user %d: %w", userID, err)
	}
	return p, nil
}

// ListActive returns up to limit active user ids after afterID, in id order.
// An empty result means the page walk is done.
func (r *Repository) ListActive(ctx context.Context, afterID int64, limit int) ([]int64, error) {
	if limit < 1 {
		return nil, fmt.Errorf("page limit must be at least 1: %w", shared.ErrInvalidReference)
	}
	rows, err := r.db.SQL.QueryContext(ctx, r.db.Rebind(
		"SELECT id FROM users WHERE subscription_status = ? AND id > ? ORDER BY id LIMIT ?"),
		StatusActive, afterID, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list active users: %w", err)
	}
	defer rows.Close()

	var ids []int64
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("failed to scan user id: %w", err)
		}
		ids = append(ids, id)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to read active users: %w", err)
	}
	return ids, nil
}
