package services

import (
	"context"
	"fmt"
	"testing"
	"time"

	"pixelsync-backend/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recordingNotifier struct {
	posted chan models.Comment
	thread chan []models.Comment
}

func (n *recordingNotifier) CommentPosted(ctx context.Context, comment models.Comment, thread []models.Comment) {
	n.posted <- comment
	n.thread <- thread
}

func newTestCommentService(t *testing.T, notifier CommentNotifier) (*CommentService, *mockClock) {
	t.Helper()
	ch, _ := newCommentChannel(t)
	svc := NewCommentService(ch, notifier)
	clock := &mockClock{}
	svc.now = clock.Now
	n := 0
	svc.newID = func() string {
		n++
		return fmt.Sprintf("c%02d", n)
	}
	return svc, clock
}

type mockClock struct {
	ms int64
}

func (c *mockClock) Now() time.Time { return time.UnixMilli(c.ms) }

func TestPostDerivesDisplayIdentity(t *testing.T) {
	svc, clock := newTestCommentService(t, nil)
	clock.ms = 100

	comment, err := svc.Post(context.Background(), "img1", "abcdef12", "  nice  ")
	require.NoError(t, err)

	assert.Equal(t, models.Comment{
		ID:         "c01",
		ImageID:    "img1",
		Text:       "nice",
		UserID:     "abcdef12",
		UserName:   "User abcd",
		UserAvatar: "https://api.dicebear.com/7.x/avataaars/svg?seed=abcdef12",
		Timestamp:  100,
	}, *comment)
}

func TestPostRejectsBlankText(t *testing.T) {
	ch, store := newCommentChannel(t)
	svc := NewCommentService(ch, nil)
	ctx := context.Background()

	for _, text := range []string{"", "   ", "\n\t"} {
		_, err := svc.Post(ctx, "img1", "A", text)
		assert.ErrorIs(t, err, ErrEmptyComment)
	}
	assert.Equal(t, 0, store.Len())

	_, err := svc.Post(ctx, "img1", "A", string(make([]rune, maxCommentRunes+1)))
	assert.Error(t, err)

	long := ""
	for i := 0; i <= maxCommentRunes; i++ {
		long += "é"
	}
	_, err = svc.Post(ctx, "img1", "A", long)
	assert.ErrorIs(t, err, ErrCommentTooLong)
	assert.Equal(t, 0, store.Len())
}

func TestDeleteIsOwnerGated(t *testing.T) {
	svc, _ := newTestCommentService(t, nil)
	ctx := context.Background()

	comment, err := svc.Post(ctx, "img1", "A", "mine")
	require.NoError(t, err)

	assert.ErrorIs(t, svc.Delete(ctx, comment.ID, "B"), ErrNotCommentOwner)
	thread, err := svc.Thread(ctx, "img1")
	require.NoError(t, err)
	assert.Len(t, thread, 1)

	require.NoError(t, svc.Delete(ctx, comment.ID, "A"))
	thread, err = svc.Thread(ctx, "img1")
	require.NoError(t, err)
	assert.Empty(t, thread)

	assert.ErrorIs(t, svc.Delete(ctx, comment.ID, "A"), ErrCommentNotFound)
}

func TestThreadIsOldestFirst(t *testing.T) {
	svc, clock := newTestCommentService(t, nil)
	ctx := context.Background()

	clock.ms = 200
	_, err := svc.Post(ctx, "img1", "A", "wow")
	require.NoError(t, err)
	clock.ms = 100
	_, err = svc.Post(ctx, "img1", "B", "nice")
	require.NoError(t, err)
	clock.ms = 200
	_, err = svc.Post(ctx, "img1", "C", "same time")
	require.NoError(t, err)
	_, err = svc.Post(ctx, "img2", "C", "elsewhere")
	require.NoError(t, err)

	thread, err := svc.Thread(ctx, "img1")
	require.NoError(t, err)
	var texts []string
	for _, c := range thread {
		texts = append(texts, c.Text)
	}
	assert.Equal(t, []string{"nice", "wow", "same time"}, texts)
}

func TestSubscribersSeePostedComments(t *testing.T) {
	svc, _ := newTestCommentService(t, nil)
	ctx := context.Background()

	sub := svc.Subscribe(ctx, "img1")
	defer sub.Close()
	waitLoaded(t, sub, anyData[models.Comment])

	_, err := svc.Post(ctx, "img1", "A", "hello")
	require.NoError(t, err)

	data := waitLoaded(t, sub, func(d []models.Comment) bool { return len(d) == 1 })
	assert.Equal(t, "hello", data[0].Text)
}

func TestPostNotifiesWithThread(t *testing.T) {
	notifier := &recordingNotifier{posted: make(chan models.Comment, 2), thread: make(chan []models.Comment, 2)}
	svc, clock := newTestCommentService(t, notifier)
	ctx := context.Background()

	clock.ms = 100
	_, err := svc.Post(ctx, "img1", "B", "first")
	require.NoError(t, err)
	<-notifier.posted
	<-notifier.thread

	clock.ms = 200
	_, err = svc.Post(ctx, "img1", "A", "second")
	require.NoError(t, err)

	select {
	case posted := <-notifier.posted:
		assert.Equal(t, "second", posted.Text)
		thread := <-notifier.thread
		require.Len(t, thread, 2)
		assert.Equal(t, "first", thread[0].Text)
	case <-time.After(2 * time.Second):
		t.Fatal("notifier not called")
	}
}

func TestDisplayName(t *testing.T) {
	assert.Equal(t, "User ab", DisplayName("ab"))
	assert.Equal(t, "User 日本語の", DisplayName("日本語のテキスト"))
}
