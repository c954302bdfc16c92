package repository

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"pixelsync-backend/internal/live"

	"github.com/jackc/pgx/v5/pgxpool"
)

// ErrNotFound is returned when a looked up row does not exist
var ErrNotFound = errors.New("not found")

const schema = `
CREATE TABLE IF NOT EXISTS identities (
	id         TEXT PRIMARY KEY,
	push_token TEXT,
	created_at TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE TABLE IF NOT EXISTS reactions (
	id           TEXT PRIMARY KEY,
	image_id     TEXT NOT NULL,
	emoji        TEXT NOT NULL,
	user_id      TEXT NOT NULL,
	timestamp_ms BIGINT NOT NULL
);
CREATE UNIQUE INDEX IF NOT EXISTS reactions_image_user_emoji ON reactions (image_id, user_id, emoji);

CREATE TABLE IF NOT EXISTS comments (
	id           TEXT PRIMARY KEY,
	image_id     TEXT NOT NULL,
	text         TEXT NOT NULL,
	user_id      TEXT NOT NULL,
	user_name    TEXT NOT NULL,
	user_avatar  TEXT NOT NULL,
	timestamp_ms BIGINT NOT NULL
);
CREATE INDEX IF NOT EXISTS comments_image_id ON comments (image_id);
`

// Migrate creates the tables used by the live collections
func Migrate(ctx context.Context, db *pgxpool.Pool) error {
	if _, err := db.Exec(ctx, schema); err != nil {
		return fmt.Errorf("failed to apply schema: %w", err)
	}
	return nil
}

// whereClause translates a live filter into a parameterised WHERE clause.
// Only fields present in columns may be filtered on.
func whereClause(filter live.Filter, columns map[string]string) (string, []any, error) {
	conds := filter.Conditions()
	if len(conds) == 0 {
		return "", nil, nil
	}

	parts := make([]string, 0, len(conds))
	args := make([]any, 0, len(conds))
	for i, c := range conds {
		col, ok := columns[c.Field]
		if !ok {
			return "", nil, fmt.Errorf("unsupported filter field %q", c.Field)
		}
		parts = append(parts, fmt.Sprintf("%s = $%d", col, i+1))
		args = append(args, c.Value)
	}
	return " WHERE " + strings.Join(parts, " AND "), args, nil
}
