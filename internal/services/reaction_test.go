package services

import (
	"context"
	"sync"
	"testing"

	"pixelsync-backend/internal/live"
	"pixelsync-backend/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestToggleCreatesThenRemoves(t *testing.T) {
	ch, _ := newReactionChannel(t)
	svc := NewReactionService(ch)
	ctx := context.Background()

	sub := svc.Subscribe(ctx, "img1")
	defer sub.Close()
	waitLoaded(t, sub, anyData[models.Reaction])

	action, err := svc.Toggle(ctx, sub, "img1", "A", "❤️")
	require.NoError(t, err)
	assert.Equal(t, ReactionCreated, action)

	data := waitLoaded(t, sub, func(d []models.Reaction) bool { return len(d) == 1 })
	assert.Equal(t, map[string]int{"❤️": 1}, CountReactions(data))
	assert.Equal(t, ReactionID("img1", "A", "❤️"), data[0].ID)

	action, err = svc.Toggle(ctx, sub, "img1", "A", "❤️")
	require.NoError(t, err)
	assert.Equal(t, ReactionDeleted, action)

	data = waitLoaded(t, sub, func(d []models.Reaction) bool { return len(d) == 0 })
	assert.Empty(t, CountReactions(data))
}

func TestToggleInvolutionLeavesOtherReactions(t *testing.T) {
	ch, store := newReactionChannel(t)
	svc := NewReactionService(ch)
	ctx := context.Background()

	require.NoError(t, store.Create(ctx, models.Reaction{ID: "r-b", ImageID: "img1", UserID: "B", Emoji: "🔥"}))
	require.NoError(t, store.Create(ctx, models.Reaction{ID: "r-a", ImageID: "img1", UserID: "A", Emoji: "👍"}))

	before, err := ch.Query(ctx, live.All())
	require.NoError(t, err)

	for i := 0; i < 2; i++ {
		_, err := svc.Toggle(ctx, svc.Snapshot(ctx, "img1"), "img1", "A", "🔥")
		require.NoError(t, err)
	}

	after, err := ch.Query(ctx, live.All())
	require.NoError(t, err)
	assert.Equal(t, before, after)
}

func TestConcurrentTogglesFromStaleViewsDoNotDuplicate(t *testing.T) {
	ch, store := newReactionChannel(t)
	svc := NewReactionService(ch)
	ctx := context.Background()

	// every session observed "absent" before any of them wrote
	empty := live.Snapshot[models.Reaction]{Data: []models.Reaction{}}

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := svc.Toggle(ctx, empty, "img1", "A", "❤️")
			assert.NoError(t, err)
		}()
	}
	wg.Wait()

	assert.Equal(t, 1, store.Len())
}

func TestToggleRejectsUnreadyView(t *testing.T) {
	ch, _ := newReactionChannel(t)
	svc := NewReactionService(ch)
	ctx := context.Background()

	_, err := svc.Toggle(ctx, live.Snapshot[models.Reaction]{IsLoading: true}, "img1", "A", "❤️")
	assert.ErrorIs(t, err, ErrViewNotReady)

	_, err = svc.Toggle(ctx, live.Snapshot[models.Reaction]{}, "", "A", "❤️")
	assert.ErrorIs(t, err, ErrMissingImage)

	_, err = svc.Toggle(ctx, live.Snapshot[models.Reaction]{}, "img1", "", "❤️")
	assert.ErrorIs(t, err, ErrMissingUser)
}

func TestValidateEmoji(t *testing.T) {
	for _, ok := range []string{"❤️", "👍", "👍🏽", "👨‍👩‍👧", "🇫🇷", "a"} {
		assert.NoError(t, ValidateEmoji(ok), ok)
	}
	for _, bad := range []string{"", "👍👍", "ab", " ", "❤️ "} {
		assert.ErrorIs(t, ValidateEmoji(bad), ErrInvalidEmoji, bad)
	}
}

func TestReactionIDIsDeterministic(t *testing.T) {
	assert.Equal(t, ReactionID("img1", "A", "❤️"), ReactionID("img1", "A", "❤️"))
	assert.NotEqual(t, ReactionID("img1", "A", "❤️"), ReactionID("img1", "B", "❤️"))
	assert.NotEqual(t, ReactionID("img1", "A", "❤️"), ReactionID("img1", "A", "👍"))
	// separator keeps field boundaries distinct
	assert.NotEqual(t, ReactionID("ab", "c", "x"), ReactionID("a", "bc", "x"))
}

func TestCountsDeduplicateRacedRecords(t *testing.T) {
	reactions := []models.Reaction{
		{ID: "2", ImageID: "img1", UserID: "A", Emoji: "❤️", Timestamp: 20},
		{ID: "1", ImageID: "img1", UserID: "A", Emoji: "❤️", Timestamp: 10},
		{ID: "3", ImageID: "img1", UserID: "B", Emoji: "❤️", Timestamp: 30},
		{ID: "4", ImageID: "img1", UserID: "A", Emoji: "👍", Timestamp: 40},
	}

	deduped := DedupReactions(reactions)
	require.Len(t, deduped, 3)
	assert.Equal(t, "1", deduped[0].ID)

	assert.Equal(t, map[string]int{"❤️": 2, "👍": 1}, CountReactions(reactions))

	groups := GroupReactions(reactions, "B")
	require.Len(t, groups, 2)
	assert.Equal(t, models.ReactionGroup{Emoji: "❤️", Count: 2, Users: []string{"A", "B"}, Mine: true}, groups[0])
	assert.Equal(t, models.ReactionGroup{Emoji: "👍", Count: 1, Users: []string{"A"}, Mine: false}, groups[1])
}

func TestToggleDeletesExistingRecordWithLegacyID(t *testing.T) {
	ch, store := newReactionChannel(t)
	svc := NewReactionService(ch)
	ctx := context.Background()

	require.NoError(t, store.Create(ctx, models.Reaction{ID: "random-id", ImageID: "img1", UserID: "A", Emoji: "❤️"}))

	action, err := svc.Toggle(ctx, svc.Snapshot(ctx, "img1"), "img1", "A", "❤️")
	require.NoError(t, err)
	assert.Equal(t, ReactionDeleted, action)
	assert.Equal(t, 0, store.Len())
}
