package services

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"sort"
	"strings"
	"time"
	"unicode/utf8"

	"pixelsync-backend/internal/live"
	"pixelsync-backend/internal/metrics"
	"pixelsync-backend/internal/models"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
)

const (
	maxCommentRunes = 500
	notifyTimeout   = 15 * time.Second
)

var (
	ErrEmptyComment    = errors.New("comment text is empty")
	ErrCommentTooLong  = fmt.Errorf("comment text exceeds %d characters", maxCommentRunes)
	ErrCommentNotFound = errors.New("comment not found")
	ErrNotCommentOwner = errors.New("comment belongs to another user")
)

// CommentNotifier is told about every posted comment along with the thread it joined
type CommentNotifier interface {
	CommentPosted(ctx context.Context, comment models.Comment, thread []models.Comment)
}

// CommentService posts and deletes comments on images
type CommentService struct {
	channel  *live.Channel[models.Comment]
	notifier CommentNotifier
	now      func() time.Time
	newID    func() string
}

// NewCommentService creates a new comment service. notifier may be nil.
func NewCommentService(channel *live.Channel[models.Comment], notifier CommentNotifier) *CommentService {
	return &CommentService{
		channel:  channel,
		notifier: notifier,
		now:      time.Now,
		newID:    func() string { return uuid.New().String() },
	}
}

// Post creates a comment. Blank text is refused without touching the store.
func (s *CommentService) Post(ctx context.Context, imageID, userID, text string) (*models.Comment, error) {
	if imageID == "" {
		return nil, ErrMissingImage
	}
	if userID == "" {
		return nil, ErrMissingUser
	}

	text = strings.TrimSpace(text)
	if text == "" {
		metrics.CommentsRejected.WithLabelValues("empty").Inc()
		return nil, ErrEmptyComment
	}
	if utf8.RuneCountInString(text) > maxCommentRunes {
		metrics.CommentsRejected.WithLabelValues("too_long").Inc()
		return nil, ErrCommentTooLong
	}

	comment := models.Comment{
		ID:         s.newID(),
		ImageID:    imageID,
		Text:       text,
		UserID:     userID,
		UserName:   DisplayName(userID),
		UserAvatar: AvatarURL(userID),
		Timestamp:  s.now().UnixMilli(),
	}
	if err := s.channel.Write(ctx, live.Create(comment)); err != nil {
		return nil, err
	}

	log.Info().
		Str("comment_id", comment.ID).
		Str("image_id", imageID).
		Str("user_id", userID).
		Msg("Comment posted")

	if s.notifier != nil {
		go s.notify(comment)
	}

	return &comment, nil
}

// Delete removes a comment if requesterID wrote it. The owner is read from
// the store, never from the caller.
func (s *CommentService) Delete(ctx context.Context, commentID, requesterID string) error {
	found, err := s.channel.Query(ctx, live.Where("id", commentID))
	if err != nil {
		return err
	}
	if len(found) == 0 {
		return ErrCommentNotFound
	}

	if found[0].UserID != requesterID {
		metrics.CommentsRejected.WithLabelValues("not_owner").Inc()
		log.Warn().
			Str("comment_id", commentID).
			Str("user_id", requesterID).
			Msg("Refused to delete comment of another user")
		return ErrNotCommentOwner
	}

	if err := s.channel.Write(ctx, live.Remove(found[0])); err != nil {
		return err
	}

	log.Info().Str("comment_id", commentID).Str("user_id", requesterID).Msg("Comment deleted")
	return nil
}

// Subscribe opens a live view of one image's comments
func (s *CommentService) Subscribe(ctx context.Context, imageID string) *live.Subscription[models.Comment] {
	return s.channel.Subscribe(ctx, live.Where("imageId", imageID))
}

// Thread reads one image's comments, oldest first
func (s *CommentService) Thread(ctx context.Context, imageID string) ([]models.Comment, error) {
	comments, err := s.channel.Query(ctx, live.Where("imageId", imageID))
	if err != nil {
		return nil, err
	}
	return SortThread(comments), nil
}

func (s *CommentService) notify(comment models.Comment) {
	ctx, cancel := context.WithTimeout(context.Background(), notifyTimeout)
	defer cancel()

	thread, err := s.Thread(ctx, comment.ImageID)
	if err != nil {
		log.Error().Err(err).Str("image_id", comment.ImageID).Msg("Failed to load thread for notification")
		return
	}
	s.notifier.CommentPosted(ctx, comment, thread)
}

// SortThread returns comments ordered oldest first, ties by id
func SortThread(comments []models.Comment) []models.Comment {
	out := make([]models.Comment, len(comments))
	copy(out, comments)
	sort.Slice(out, func(i, j int) bool {
		if out[i].Timestamp != out[j].Timestamp {
			return out[i].Timestamp < out[j].Timestamp
		}
		return out[i].ID < out[j].ID
	})
	return out
}

// DisplayName derives the public name shown for a user id
func DisplayName(userID string) string {
	short := userID
	if utf8.RuneCountInString(short) > 4 {
		short = string([]rune(short)[:4])
	}
	return "User " + short
}

// AvatarURL derives a generated avatar for a user id
func AvatarURL(userID string) string {
	return "https://api.dicebear.com/7.x/avataaars/svg?seed=" + url.QueryEscape(userID)
}
