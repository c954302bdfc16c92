package repository

import (
	"context"
	"fmt"

	"pixelsync-backend/internal/live"
	"pixelsync-backend/internal/models"

	"github.com/jackc/pgx/v5/pgxpool"
)

var commentColumns = map[string]string{
	"id":      "id",
	"imageId": "image_id",
	"userId":  "user_id",
}

// CommentRepository handles database operations for comments
type CommentRepository struct {
	db *pgxpool.Pool
}

// NewCommentRepository creates a new comment repository
func NewCommentRepository(db *pgxpool.Pool) *CommentRepository {
	return &CommentRepository{db: db}
}

// List retrieves comments matching filter
func (r *CommentRepository) List(ctx context.Context, filter live.Filter) ([]models.Comment, error) {
	where, args, err := whereClause(filter, commentColumns)
	if err != nil {
		return nil, err
	}

	query := `
		SELECT id, image_id, text, user_id, user_name, user_avatar, timestamp_ms
		FROM comments` + where + `
		ORDER BY timestamp_ms, id
	`
	rows, err := r.db.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list comments: %w", err)
	}
	defer rows.Close()

	comments := []models.Comment{}
	for rows.Next() {
		var comment models.Comment
		err := rows.Scan(
			&comment.ID, &comment.ImageID, &comment.Text, &comment.UserID,
			&comment.UserName, &comment.UserAvatar, &comment.Timestamp,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan comment: %w", err)
		}
		comments = append(comments, comment)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating comments: %w", err)
	}

	return comments, nil
}

// Create inserts a comment; an existing id is left untouched
func (r *CommentRepository) Create(ctx context.Context, comment models.Comment) error {
	query := `
		INSERT INTO comments (id, image_id, text, user_id, user_name, user_avatar, timestamp_ms)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		ON CONFLICT (id) DO NOTHING
	`
	_, err := r.db.Exec(ctx, query,
		comment.ID, comment.ImageID, comment.Text, comment.UserID,
		comment.UserName, comment.UserAvatar, comment.Timestamp,
	)
	if err != nil {
		return fmt.Errorf("failed to create comment: %w", err)
	}
	return nil
}

// Delete deletes a comment by ID
func (r *CommentRepository) Delete(ctx context.Context, id string) error {
	if _, err := r.db.Exec(ctx, `DELETE FROM comments WHERE id = $1`, id); err != nil {
		return fmt.Errorf("failed to delete comment: %w", err)
	}
	return nil
}
