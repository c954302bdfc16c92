package repository

import (
	"context"
	"errors"
	"fmt"

	"pixelsync-backend/internal/models"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// IdentityRepository handles database operations for identities
type IdentityRepository struct {
	db *pgxpool.Pool
}

// NewIdentityRepository creates a new identity repository
func NewIdentityRepository(db *pgxpool.Pool) *IdentityRepository {
	return &IdentityRepository{db: db}
}

// Create registers an identity. It reports false, leaving the stored row
// untouched, when the id is already registered.
func (r *IdentityRepository) Create(ctx context.Context, identity *models.Identity) (bool, error) {
	query := `
		INSERT INTO identities (id, push_token, created_at)
		VALUES ($1, $2, $3)
		ON CONFLICT (id) DO NOTHING
	`
	result, err := r.db.Exec(ctx, query, identity.ID, identity.PushToken, identity.CreatedAt)
	if err != nil {
		return false, fmt.Errorf("failed to create identity: %w", err)
	}
	return result.RowsAffected() == 1, nil
}

// GetByID retrieves an identity by ID
func (r *IdentityRepository) GetByID(ctx context.Context, id string) (*models.Identity, error) {
	query := `
		SELECT id, push_token, created_at
		FROM identities
		WHERE id = $1
	`
	var identity models.Identity
	err := r.db.QueryRow(ctx, query, id).Scan(&identity.ID, &identity.PushToken, &identity.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("identity %s: %w", id, ErrNotFound)
		}
		return nil, fmt.Errorf("failed to get identity: %w", err)
	}
	return &identity, nil
}

// UpdatePushToken updates the push token for an identity
func (r *IdentityRepository) UpdatePushToken(ctx context.Context, id string, pushToken *string) error {
	result, err := r.db.Exec(ctx, `UPDATE identities SET push_token = $1 WHERE id = $2`, pushToken, id)
	if err != nil {
		return fmt.Errorf("failed to update push token: %w", err)
	}
	if result.RowsAffected() == 0 {
		return fmt.Errorf("identity %s: %w", id, ErrNotFound)
	}
	return nil
}

// PushTokens returns the registered push tokens of the given identities
func (r *IdentityRepository) PushTokens(ctx context.Context, ids []string) ([]string, error) {
	if len(ids) == 0 {
		return nil, nil
	}

	query := `SELECT push_token FROM identities WHERE id = ANY($1) AND push_token IS NOT NULL`
	rows, err := r.db.Query(ctx, query, ids)
	if err != nil {
		return nil, fmt.Errorf("failed to get push tokens: %w", err)
	}
	defer rows.Close()

	var tokens []string
	for rows.Next() {
		var token string
		if err := rows.Scan(&token); err != nil {
			return nil, fmt.Errorf("failed to scan push token: %w", err)
		}
		tokens = append(tokens, token)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating push tokens: %w", err)
	}

	return tokens, nil
}
