package services

import (
	"testing"
	"time"

	"pixelsync-backend/internal/live"
	"pixelsync-backend/internal/models"

	"github.com/stretchr/testify/require"
)

func newReactionChannel(t *testing.T) (*live.Channel[models.Reaction], *live.MemoryStore[models.Reaction]) {
	t.Helper()
	store := live.NewMemoryStore[models.Reaction]()
	ch := live.NewChannel[models.Reaction]("reactions", store, live.Options{})
	t.Cleanup(ch.Close)
	return ch, store
}

func newCommentChannel(t *testing.T) (*live.Channel[models.Comment], *live.MemoryStore[models.Comment]) {
	t.Helper()
	store := live.NewMemoryStore[models.Comment]()
	ch := live.NewChannel[models.Comment]("comments", store, live.Options{})
	t.Cleanup(ch.Close)
	return ch, store
}

func waitLoaded[T live.Record](t *testing.T, sub *live.Subscription[T], pred func([]T) bool) []T {
	t.Helper()
	timeout := time.After(2 * time.Second)
	for {
		select {
		case snap, ok := <-sub.Updates():
			require.True(t, ok, "subscription closed")
			if !snap.IsLoading && snap.Err == nil && pred(snap.Data) {
				return snap.Data
			}
		case <-timeout:
			t.Fatalf("timed out, latest snapshot: %+v", sub.Latest())
		}
	}
}

func anyData[T any](_ []T) bool { return true }
