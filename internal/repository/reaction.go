package repository

import (
	"context"
	"fmt"

	"pixelsync-backend/internal/live"
	"pixelsync-backend/internal/models"

	"github.com/jackc/pgx/v5/pgxpool"
)

var reactionColumns = map[string]string{
	"id":      "id",
	"imageId": "image_id",
	"userId":  "user_id",
	"emoji":   "emoji",
}

// ReactionRepository handles database operations for reactions
type ReactionRepository struct {
	db *pgxpool.Pool
}

// NewReactionRepository creates a new reaction repository
func NewReactionRepository(db *pgxpool.Pool) *ReactionRepository {
	return &ReactionRepository{db: db}
}

// List retrieves reactions matching filter
func (r *ReactionRepository) List(ctx context.Context, filter live.Filter) ([]models.Reaction, error) {
	where, args, err := whereClause(filter, reactionColumns)
	if err != nil {
		return nil, err
	}

	query := `SELECT id, image_id, emoji, user_id, timestamp_ms FROM reactions` + where + ` ORDER BY timestamp_ms, id`
	rows, err := r.db.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list reactions: %w", err)
	}
	defer rows.Close()

	reactions := []models.Reaction{}
	for rows.Next() {
		var reaction models.Reaction
		if err := rows.Scan(
			&reaction.ID, &reaction.ImageID, &reaction.Emoji, &reaction.UserID, &reaction.Timestamp,
		); err != nil {
			return nil, fmt.Errorf("failed to scan reaction: %w", err)
		}
		reactions = append(reactions, reaction)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating reactions: %w", err)
	}

	return reactions, nil
}

// Create inserts a reaction. An existing row with the same id or the same
// (image, user, emoji) makes this a no-op.
func (r *ReactionRepository) Create(ctx context.Context, reaction models.Reaction) error {
	query := `
		INSERT INTO reactions (id, image_id, emoji, user_id, timestamp_ms)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT DO NOTHING
	`
	_, err := r.db.Exec(ctx, query,
		reaction.ID, reaction.ImageID, reaction.Emoji, reaction.UserID, reaction.Timestamp,
	)
	if err != nil {
		return fmt.Errorf("failed to create reaction: %w", err)
	}
	return nil
}

// Delete deletes a reaction by ID
func (r *ReactionRepository) Delete(ctx context.Context, id string) error {
	if _, err := r.db.Exec(ctx, `DELETE FROM reactions WHERE id = $1`, id); err != nil {
		return fmt.Errorf("failed to delete reaction: %w", err)
	}
	return nil
}
