package services

import (
	"context"
	"sort"
	"sync"

	"pixelsync-backend/internal/live"
	"pixelsync-backend/internal/models"
)

// FeedScope limits a feed to one image; the zero scope is global
type FeedScope struct {
	ImageID string
}

func (s FeedScope) filter() live.Filter {
	if s.ImageID == "" {
		return live.All()
	}
	return live.Where("imageId", s.ImageID)
}

// MergeFeed tags reactions and comments and orders them newest first. Equal
// timestamps are ordered by id, then type, so repeated merges agree.
func MergeFeed(reactions []models.Reaction, comments []models.Comment) []models.FeedItem {
	items := make([]models.FeedItem, 0, len(reactions)+len(comments))
	for i := range reactions {
		r := reactions[i]
		items = append(items, models.FeedItem{Type: models.FeedItemReaction, Reaction: &r})
	}
	for i := range comments {
		c := comments[i]
		items = append(items, models.FeedItem{Type: models.FeedItemComment, Comment: &c})
	}

	sort.SliceStable(items, func(i, j int) bool {
		a, b := items[i], items[j]
		if a.Timestamp() != b.Timestamp() {
			return a.Timestamp() > b.Timestamp()
		}
		if a.ID() != b.ID() {
			return a.ID() < b.ID()
		}
		return a.Type < b.Type
	})
	return items
}

// FeedSnapshot is the merged feed derived from the latest input snapshots
type FeedSnapshot struct {
	IsLoading bool
	Err       error
	Items     []models.FeedItem
}

// FeedService builds feeds over the reaction and comment collections
type FeedService struct {
	reactions *live.Channel[models.Reaction]
	comments  *live.Channel[models.Comment]
}

// NewFeedService creates a new feed service
func NewFeedService(reactions *live.Channel[models.Reaction], comments *live.Channel[models.Comment]) *FeedService {
	return &FeedService{reactions: reactions, comments: comments}
}

// Snapshot reads both collections once and merges them
func (s *FeedService) Snapshot(ctx context.Context, scope FeedScope) ([]models.FeedItem, error) {
	reactions, err := s.reactions.Query(ctx, scope.filter())
	if err != nil {
		return nil, err
	}
	comments, err := s.comments.Query(ctx, scope.filter())
	if err != nil {
		return nil, err
	}
	return MergeFeed(reactions, comments), nil
}

// Subscribe opens a live feed for scope
func (s *FeedService) Subscribe(ctx context.Context, scope FeedScope) *FeedAggregator {
	return NewFeedAggregator(
		s.reactions.Subscribe(ctx, scope.filter()),
		s.comments.Subscribe(ctx, scope.filter()),
	)
}

// FeedAggregator recomputes the merged feed whenever either input changes.
// It keeps no state beyond the latest input snapshots.
type FeedAggregator struct {
	reactions *live.Subscription[models.Reaction]
	comments  *live.Subscription[models.Comment]

	mu      sync.Mutex
	updates chan FeedSnapshot
	latest  FeedSnapshot
	closed  bool
	once    sync.Once
}

// NewFeedAggregator takes ownership of both subscriptions
func NewFeedAggregator(reactions *live.Subscription[models.Reaction], comments *live.Subscription[models.Comment]) *FeedAggregator {
	a := &FeedAggregator{
		reactions: reactions,
		comments:  comments,
		updates:   make(chan FeedSnapshot, 1),
		latest:    FeedSnapshot{IsLoading: true},
	}
	go a.run()
	return a
}

// Updates returns the merged snapshot stream, closed when the aggregator ends
func (a *FeedAggregator) Updates() <-chan FeedSnapshot {
	return a.updates
}

// Latest returns the most recent merged snapshot
func (a *FeedAggregator) Latest() FeedSnapshot {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.latest
}

// Close unsubscribes from both inputs
func (a *FeedAggregator) Close() {
	a.reactions.Close()
	a.comments.Close()
}

func (a *FeedAggregator) run() {
	defer a.finish()

	r := live.Snapshot[models.Reaction]{IsLoading: true}
	c := live.Snapshot[models.Comment]{IsLoading: true}
	reactions, comments := a.reactions.Updates(), a.comments.Updates()

	for {
		select {
		case snap, ok := <-reactions:
			if !ok {
				a.comments.Close()
				return
			}
			r = snap
		case snap, ok := <-comments:
			if !ok {
				a.reactions.Close()
				return
			}
			c = snap
		}
		a.publish(combine(r, c))
	}
}

func combine(r live.Snapshot[models.Reaction], c live.Snapshot[models.Comment]) FeedSnapshot {
	snap := FeedSnapshot{
		IsLoading: r.IsLoading || c.IsLoading,
		Err:       r.Err,
		Items:     MergeFeed(r.Data, c.Data),
	}
	if snap.Err == nil {
		snap.Err = c.Err
	}
	return snap
}

func (a *FeedAggregator) publish(snap FeedSnapshot) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.closed {
		return
	}
	a.latest = snap
	select {
	case <-a.updates:
	default:
	}
	a.updates <- snap
}

func (a *FeedAggregator) finish() {
	a.once.Do(func() {
		a.mu.Lock()
		a.closed = true
		close(a.updates)
		a.mu.Unlock()
	})
}
