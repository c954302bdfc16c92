package services

import (
	"context"
	"fmt"
	"unicode/utf8"

	"pixelsync-backend/internal/models"

	"github.com/rs/zerolog/log"
	"github.com/sideshow/apns2"
	"github.com/sideshow/apns2/payload"
	"github.com/sideshow/apns2/token"
)

const pushBodyRunes = 80

// PushSender delivers one alert to one device
type PushSender interface {
	Push(ctx context.Context, deviceToken, title, body string) error
}

// APNSSender sends alerts through Apple Push Notification service
type APNSSender struct {
	client *apns2.Client
	topic  string
}

// NewAPNSSender creates a token-authenticated APNs client from a .p8 key
func NewAPNSSender(keyPath, keyID, teamID, topic string, production bool) (*APNSSender, error) {
	authKey, err := token.AuthKeyFromFile(keyPath)
	if err != nil {
		return nil, fmt.Errorf("failed to load APNs auth key: %w", err)
	}

	client := apns2.NewTokenClient(&token.Token{
		AuthKey: authKey,
		KeyID:   keyID,
		TeamID:  teamID,
	})
	if production {
		client = client.Production()
	} else {
		client = client.Development()
	}

	return &APNSSender{client: client, topic: topic}, nil
}

// Push sends a single alert
func (s *APNSSender) Push(ctx context.Context, deviceToken, title, body string) error {
	notification := &apns2.Notification{
		DeviceToken: deviceToken,
		Topic:       s.topic,
		Payload:     payload.NewPayload().AlertTitle(title).AlertBody(body).Sound("default"),
	}

	res, err := s.client.PushWithContext(ctx, notification)
	if err != nil {
		return fmt.Errorf("failed to push notification: %w", err)
	}
	if !res.Sent() {
		return fmt.Errorf("apns rejected notification: %d %s", res.StatusCode, res.Reason)
	}
	return nil
}

// Presence reports whether an identity currently has a live session
type Presence interface {
	IsOnline(userID string) bool
}

// ThreadNotifier alerts earlier participants of a comment thread about a new comment
type ThreadNotifier struct {
	registry IdentityRegistry
	sender   PushSender
	presence Presence
}

// NewThreadNotifier creates a new thread notifier. Participants reported
// online by presence already see the comment live and are skipped; presence may be nil.
func NewThreadNotifier(registry IdentityRegistry, sender PushSender, presence Presence) *ThreadNotifier {
	return &ThreadNotifier{registry: registry, sender: sender, presence: presence}
}

// CommentPosted pushes to every other commenter on the image that registered a device
func (n *ThreadNotifier) CommentPosted(ctx context.Context, comment models.Comment, thread []models.Comment) {
	seen := map[string]bool{comment.UserID: true}
	var recipients []string
	for _, c := range thread {
		if seen[c.UserID] {
			continue
		}
		seen[c.UserID] = true
		if n.presence != nil && n.presence.IsOnline(c.UserID) {
			continue
		}
		recipients = append(recipients, c.UserID)
	}
	if len(recipients) == 0 {
		return
	}

	tokens, err := n.registry.PushTokens(ctx, recipients)
	if err != nil {
		log.Error().Err(err).Str("comment_id", comment.ID).Msg("Failed to load push tokens")
		return
	}

	title := comment.UserName + " commented"
	body := comment.Text
	if utf8.RuneCountInString(body) > pushBodyRunes {
		body = string([]rune(body)[:pushBodyRunes]) + "…"
	}

	for _, deviceToken := range tokens {
		if err := n.sender.Push(ctx, deviceToken, title, body); err != nil {
			log.Error().Err(err).Str("comment_id", comment.ID).Msg("Failed to send comment notification")
		}
	}
}
