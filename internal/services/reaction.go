package services

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"
	"unicode"

	"pixelsync-backend/internal/live"
	"pixelsync-backend/internal/metrics"
	"pixelsync-backend/internal/models"

	"github.com/google/uuid"
	"github.com/rivo/uniseg"
	"github.com/rs/zerolog/log"
)

const maxEmojiBytes = 32

// ToggleAction is the write a toggle resulted in
type ToggleAction string

const (
	ReactionCreated ToggleAction = "created"
	ReactionDeleted ToggleAction = "deleted"
)

var (
	ErrViewNotReady = errors.New("reactions are still loading")
	ErrInvalidEmoji = errors.New("emoji must be a single character")
	ErrMissingImage = errors.New("image id is required")
	ErrMissingUser  = errors.New("user id is required")

	reactionNamespace = uuid.MustParse("6f1c52a4-3d7e-4b8e-9a51-0c2b7d9e4f10")
)

// ReactionView exposes already materialized reactions. Subscriptions and
// snapshots both satisfy it.
type ReactionView interface {
	Latest() live.Snapshot[models.Reaction]
}

// ReactionID derives the record id for a (image, user, emoji) triple. Every
// writer computes the same id, so racing creates land on one record.
func ReactionID(imageID, userID, emoji string) string {
	return uuid.NewSHA1(reactionNamespace, []byte(imageID+"\x00"+userID+"\x00"+emoji)).String()
}

// ReactionService toggles reactions on images
type ReactionService struct {
	channel *live.Channel[models.Reaction]
	now     func() time.Time
}

// NewReactionService creates a new reaction service
func NewReactionService(channel *live.Channel[models.Reaction]) *ReactionService {
	return &ReactionService{
		channel: channel,
		now:     time.Now,
	}
}

// Toggle removes the user's emoji on the image if view shows one, otherwise adds it
func (s *ReactionService) Toggle(ctx context.Context, view ReactionView, imageID, userID, emoji string) (ToggleAction, error) {
	if imageID == "" {
		return "", ErrMissingImage
	}
	if userID == "" {
		return "", ErrMissingUser
	}
	if err := ValidateEmoji(emoji); err != nil {
		return "", err
	}

	snap := view.Latest()
	if snap.IsLoading {
		return "", ErrViewNotReady
	}
	if snap.Err != nil {
		return "", fmt.Errorf("failed to read reactions: %w", snap.Err)
	}

	for _, r := range snap.Data {
		if r.ImageID == imageID && r.UserID == userID && r.Emoji == emoji {
			if err := s.channel.Write(ctx, live.Remove(r)); err != nil {
				return "", err
			}
			metrics.ReactionToggles.WithLabelValues(string(ReactionDeleted)).Inc()
			log.Debug().Str("image_id", imageID).Str("user_id", userID).Str("emoji", emoji).Msg("Reaction removed")
			return ReactionDeleted, nil
		}
	}

	reaction := models.Reaction{
		ID:        ReactionID(imageID, userID, emoji),
		ImageID:   imageID,
		Emoji:     emoji,
		UserID:    userID,
		Timestamp: s.now().UnixMilli(),
	}
	if err := s.channel.Write(ctx, live.Create(reaction)); err != nil {
		return "", err
	}
	metrics.ReactionToggles.WithLabelValues(string(ReactionCreated)).Inc()
	log.Debug().Str("image_id", imageID).Str("user_id", userID).Str("emoji", emoji).Msg("Reaction added")
	return ReactionCreated, nil
}

// Subscribe opens a live view of the reactions on one image
func (s *ReactionService) Subscribe(ctx context.Context, imageID string) *live.Subscription[models.Reaction] {
	return s.channel.Subscribe(ctx, live.Where("imageId", imageID))
}

// Snapshot reads the reactions on one image once
func (s *ReactionService) Snapshot(ctx context.Context, imageID string) live.Snapshot[models.Reaction] {
	return s.channel.Snapshot(ctx, live.Where("imageId", imageID))
}

// ValidateEmoji accepts exactly one grapheme cluster without whitespace
func ValidateEmoji(emoji string) error {
	if emoji == "" || len(emoji) > maxEmojiBytes {
		return ErrInvalidEmoji
	}
	if strings.IndexFunc(emoji, unicode.IsSpace) >= 0 {
		return ErrInvalidEmoji
	}
	if uniseg.GraphemeClusterCount(emoji) != 1 {
		return ErrInvalidEmoji
	}
	return nil
}

type reactionKey struct {
	imageID, userID, emoji string
}

// DedupReactions keeps one reaction per (image, user, emoji), the earliest
// by timestamp then id. Input order is otherwise preserved.
func DedupReactions(reactions []models.Reaction) []models.Reaction {
	best := make(map[reactionKey]models.Reaction, len(reactions))
	for _, r := range reactions {
		k := reactionKey{r.ImageID, r.UserID, r.Emoji}
		cur, ok := best[k]
		if !ok || r.Timestamp < cur.Timestamp || (r.Timestamp == cur.Timestamp && r.ID < cur.ID) {
			best[k] = r
		}
	}

	out := make([]models.Reaction, 0, len(best))
	for _, r := range reactions {
		k := reactionKey{r.ImageID, r.UserID, r.Emoji}
		if b, ok := best[k]; ok && b.ID == r.ID {
			out = append(out, r)
			delete(best, k)
		}
	}
	return out
}

// CountReactions returns the number of distinct users per emoji
func CountReactions(reactions []models.Reaction) map[string]int {
	counts := make(map[string]int)
	for _, r := range DedupReactions(reactions) {
		counts[r.Emoji]++
	}
	return counts
}

// GroupReactions builds the displayed groups, most used first. Mine marks
// groups that include viewerID.
func GroupReactions(reactions []models.Reaction, viewerID string) []models.ReactionGroup {
	byEmoji := make(map[string]*models.ReactionGroup)
	for _, r := range DedupReactions(reactions) {
		g, ok := byEmoji[r.Emoji]
		if !ok {
			g = &models.ReactionGroup{Emoji: r.Emoji, Users: []string{}}
			byEmoji[r.Emoji] = g
		}
		g.Count++
		g.Users = append(g.Users, r.UserID)
		if r.UserID == viewerID {
			g.Mine = true
		}
	}

	groups := make([]models.ReactionGroup, 0, len(byEmoji))
	for _, g := range byEmoji {
		sort.Strings(g.Users)
		groups = append(groups, *g)
	}
	sort.Slice(groups, func(i, j int) bool {
		if groups[i].Count != groups[j].Count {
			return groups[i].Count > groups[j].Count
		}
		return groups[i].Emoji < groups[j].Emoji
	})
	return groups
}
