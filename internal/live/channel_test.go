package live

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type note struct {
	ID    string
	Image string
	Owner string
}

func (n note) RecordID() string { return n.ID }

func (n note) Field(name string) (string, bool) {
	switch name {
	case "id":
		return n.ID, true
	case "imageId":
		return n.Image, true
	case "userId":
		return n.Owner, true
	}
	return "", false
}

type flakyStore struct {
	*MemoryStore[note]
	failures atomic.Int32
}

func (s *flakyStore) List(ctx context.Context, filter Filter) ([]note, error) {
	if s.failures.Add(-1) >= 0 {
		return nil, errors.New("store unavailable")
	}
	return s.MemoryStore.List(ctx, filter)
}

func waitFor(t *testing.T, sub *Subscription[note], pred func(Snapshot[note]) bool) Snapshot[note] {
	t.Helper()
	timeout := time.After(2 * time.Second)
	for {
		select {
		case snap, ok := <-sub.Updates():
			require.True(t, ok, "subscription closed")
			if pred(snap) {
				return snap
			}
		case <-timeout:
			t.Fatalf("timed out waiting for snapshot, latest: %+v", sub.Latest())
		}
	}
}

func loaded(s Snapshot[note]) bool { return !s.IsLoading && s.Err == nil }

func TestSubscribeDeliversLoadingThenData(t *testing.T) {
	store := NewMemoryStore[note]()
	require.NoError(t, store.Create(context.Background(), note{ID: "n1", Image: "img1"}))

	ch := NewChannel[note]("notes", store, Options{})
	defer ch.Close()

	sub := ch.Subscribe(context.Background(), All())
	defer sub.Close()

	first := <-sub.Updates()
	assert.True(t, first.IsLoading)

	snap := waitFor(t, sub, loaded)
	require.Len(t, snap.Data, 1)
	assert.Equal(t, "n1", snap.Data[0].ID)
}

func TestWritePropagatesToMatchingSubscribers(t *testing.T) {
	ch := NewChannel[note]("notes", NewMemoryStore[note](), Options{})
	defer ch.Close()

	ctx := context.Background()
	img1 := ch.Subscribe(ctx, Where("imageId", "img1"))
	defer img1.Close()
	img2 := ch.Subscribe(ctx, Where("imageId", "img2"))
	defer img2.Close()
	global := ch.Subscribe(ctx, All())
	defer global.Close()

	waitFor(t, img1, loaded)
	waitFor(t, img2, loaded)
	waitFor(t, global, loaded)

	require.NoError(t, ch.Write(ctx, Create(note{ID: "a", Image: "img1", Owner: "A"})))

	snap := waitFor(t, img1, func(s Snapshot[note]) bool { return len(s.Data) == 1 })
	assert.Equal(t, "a", snap.Data[0].ID)
	waitFor(t, global, func(s Snapshot[note]) bool { return len(s.Data) == 1 })
	assert.Empty(t, img2.Latest().Data)

	require.NoError(t, ch.Write(ctx, Delete[note]("a")))
	waitFor(t, img1, func(s Snapshot[note]) bool { return len(s.Data) == 0 })
}

// countingStore records how often each filter is listed
type countingStore struct {
	*MemoryStore[note]
	mu    sync.Mutex
	lists map[string]int
}

func (s *countingStore) List(ctx context.Context, filter Filter) ([]note, error) {
	s.mu.Lock()
	s.lists[filter.Key()]++
	s.mu.Unlock()
	return s.MemoryStore.List(ctx, filter)
}

func (s *countingStore) count(filter Filter) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lists[filter.Key()]
}

func TestWriteRefreshesOnlyMatchingFilters(t *testing.T) {
	store := &countingStore{MemoryStore: NewMemoryStore[note](), lists: make(map[string]int)}
	ch := NewChannel[note]("notes", store, Options{})
	defer ch.Close()
	ctx := context.Background()

	onA, onB := Where("imageId", "a"), Where("imageId", "b")
	subA := ch.Subscribe(ctx, onA)
	subB := ch.Subscribe(ctx, onB)
	waitFor(t, subA, loaded)
	waitFor(t, subB, loaded)

	first := note{ID: "1", Image: "a"}
	require.NoError(t, ch.Write(ctx, Create(first)))
	waitFor(t, subA, func(s Snapshot[note]) bool { return len(s.Data) == 1 })

	require.NoError(t, ch.Write(ctx, Create(note{ID: "2", Image: "b"})))
	waitFor(t, subB, func(s Snapshot[note]) bool { return len(s.Data) == 1 })

	assert.Equal(t, 2, store.count(onA))
	assert.Equal(t, 2, store.count(onB))

	require.NoError(t, ch.Write(ctx, Remove(first)))
	waitFor(t, subA, func(s Snapshot[note]) bool { return len(s.Data) == 0 })
	assert.Equal(t, 3, store.count(onA))

	ch.Refresh()
	assert.Eventually(t, func() bool {
		return store.count(onA) == 4 && store.count(onB) == 3
	}, 2*time.Second, 10*time.Millisecond)
}

func TestCreateIsIdempotentOnID(t *testing.T) {
	store := NewMemoryStore[note]()
	ch := NewChannel[note]("notes", store, Options{})
	defer ch.Close()

	ctx := context.Background()
	require.NoError(t, ch.Write(ctx, Create(note{ID: "same", Image: "img1"})))
	require.NoError(t, ch.Write(ctx, Create(note{ID: "same", Image: "img1"})))
	assert.Equal(t, 1, store.Len())
}

func TestCloseRemovesSubscriber(t *testing.T) {
	ch := NewChannel[note]("notes", NewMemoryStore[note](), Options{})
	defer ch.Close()

	sub := ch.Subscribe(context.Background(), All())
	assert.Equal(t, 1, ch.Subscribers())

	sub.Close()
	sub.Close()
	assert.Equal(t, 0, ch.Subscribers())

	for range sub.Updates() {
	}
	_, open := <-sub.Done()
	assert.False(t, open)
}

func TestContextCancelTearsDownSubscription(t *testing.T) {
	ch := NewChannel[note]("notes", NewMemoryStore[note](), Options{})
	defer ch.Close()

	ctx, cancel := context.WithCancel(context.Background())
	sub := ch.Subscribe(ctx, All())
	cancel()

	select {
	case <-sub.Done():
	case <-time.After(2 * time.Second):
		t.Fatal("subscription not closed after cancel")
	}
	assert.Eventually(t, func() bool { return ch.Subscribers() == 0 }, time.Second, 10*time.Millisecond)
}

func TestLoadErrorIsVisibleThenRetried(t *testing.T) {
	store := &flakyStore{MemoryStore: NewMemoryStore[note]()}
	store.failures.Store(1)
	require.NoError(t, store.Create(context.Background(), note{ID: "n1"}))

	ch := NewChannel[note]("notes", store, Options{RetryAttempts: 3, RetryBase: time.Millisecond})
	defer ch.Close()

	sub := ch.Subscribe(context.Background(), All())
	defer sub.Close()

	errSnap := waitFor(t, sub, func(s Snapshot[note]) bool { return s.Err != nil })
	assert.False(t, errSnap.IsLoading)

	snap := waitFor(t, sub, loaded)
	assert.Len(t, snap.Data, 1)
}

func TestLoadErrorWithoutRetryStaysFailed(t *testing.T) {
	store := &flakyStore{MemoryStore: NewMemoryStore[note]()}
	store.failures.Store(1)

	ch := NewChannel[note]("notes", store, Options{})
	defer ch.Close()

	sub := ch.Subscribe(context.Background(), All())
	defer sub.Close()

	snap := waitFor(t, sub, func(s Snapshot[note]) bool { return s.Err != nil })
	assert.EqualError(t, snap.Err, "store unavailable")
}

func TestSnapshotsAreLastWins(t *testing.T) {
	ch := NewChannel[note]("notes", NewMemoryStore[note](), Options{})
	defer ch.Close()

	ctx := context.Background()
	sub := ch.Subscribe(ctx, All())
	defer sub.Close()
	waitFor(t, sub, loaded)

	for _, id := range []string{"a", "b", "c", "d"} {
		require.NoError(t, ch.Write(ctx, Create(note{ID: id})))
	}

	// intermediate states may be skipped but the final one always arrives
	snap := waitFor(t, sub, func(s Snapshot[note]) bool { return len(s.Data) == 4 })
	assert.Equal(t, "d", snap.Data[3].ID)
}

func TestFilter(t *testing.T) {
	f := Where("imageId", "img1").And("userId", "A")
	assert.True(t, f.Matches(note{Image: "img1", Owner: "A"}))
	assert.False(t, f.Matches(note{Image: "img1", Owner: "B"}))
	assert.False(t, Where("missing", "x").Matches(note{}))
	assert.True(t, All().Matches(note{}))

	assert.Equal(t, f.Key(), Where("userId", "A").And("imageId", "img1").Key())
	assert.Equal(t, Where("imageId", "img2").Key(), Where("imageId", "img1").And("imageId", "img2").Key())

	v, ok := f.Value("userId")
	assert.True(t, ok)
	assert.Equal(t, "A", v)
}

func TestBackoffGrows(t *testing.T) {
	base := 10 * time.Millisecond
	for attempt := 0; attempt < 4; attempt++ {
		d := backoff(base, attempt)
		assert.GreaterOrEqual(t, d, base<<attempt)
		assert.LessOrEqual(t, d, base<<attempt+(base<<attempt)/2)
	}
}
