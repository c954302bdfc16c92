package repository

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/zerolog/log"
)

const (
	liveNotifyChannel     = "pixelsync_live"
	presenceNotifyChannel = "pixelsync_presence"
)

// LiveNotifier fans live collection changes and session presence out to every
// instance sharing the database
type LiveNotifier struct {
	db *pgxpool.Pool
}

// NewLiveNotifier creates a new notifier
func NewLiveNotifier(db *pgxpool.Pool) *LiveNotifier {
	return &LiveNotifier{db: db}
}

// Publish announces a change to collection
func (n *LiveNotifier) Publish(ctx context.Context, collection string) error {
	if _, err := n.db.Exec(ctx, `SELECT pg_notify($1, $2)`, liveNotifyChannel, collection); err != nil {
		return fmt.Errorf("failed to notify %s: %w", collection, err)
	}
	return nil
}

// PublishPresence announces a presence payload to every instance
func (n *LiveNotifier) PublishPresence(ctx context.Context, payload string) error {
	if _, err := n.db.Exec(ctx, `SELECT pg_notify($1, $2)`, presenceNotifyChannel, payload); err != nil {
		return fmt.Errorf("failed to notify presence: %w", err)
	}
	return nil
}

// Listen blocks until ctx is done, calling onChange with the collection name
// of every change and onPresence with every presence payload announced by any
// instance, this one included.
func (n *LiveNotifier) Listen(ctx context.Context, onChange, onPresence func(payload string)) error {
	conn, err := n.db.Acquire(ctx)
	if err != nil {
		return fmt.Errorf("failed to acquire listen connection: %w", err)
	}
	defer conn.Release()

	for _, channel := range []string{liveNotifyChannel, presenceNotifyChannel} {
		if _, err := conn.Exec(ctx, "LISTEN "+channel); err != nil {
			return fmt.Errorf("failed to listen on %s: %w", channel, err)
		}
	}
	log.Info().Str("channel", liveNotifyChannel).Str("presence_channel", presenceNotifyChannel).Msg("Listening for live changes")

	for {
		notification, err := conn.Conn().WaitForNotification(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			return fmt.Errorf("failed to wait for notification: %w", err)
		}
		switch notification.Channel {
		case liveNotifyChannel:
			onChange(notification.Payload)
		case presenceNotifyChannel:
			onPresence(notification.Payload)
		}
	}
}
