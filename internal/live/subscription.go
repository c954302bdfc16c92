package live

import (
	"slices"
	"sync"
)

// Snapshot is the complete result of a live query at one point in time
type Snapshot[T Record] struct {
	IsLoading bool
	Err       error
	Data      []T
}

// Latest lets a fixed snapshot stand in wherever a live view is expected
func (s Snapshot[T]) Latest() Snapshot[T] {
	return s
}

// Subscription delivers snapshots for one filter until closed.
// Only the most recent undelivered snapshot is kept.
type Subscription[T Record] struct {
	id      uint64
	filter  Filter
	channel *Channel[T]

	mu      sync.Mutex
	updates chan Snapshot[T]
	latest  Snapshot[T]
	seq     uint64
	closed  bool
	done    chan struct{}
}

func newSubscription[T Record](c *Channel[T], id uint64, filter Filter) *Subscription[T] {
	return &Subscription[T]{
		id:      id,
		filter:  filter,
		channel: c,
		updates: make(chan Snapshot[T], 1),
		latest:  Snapshot[T]{IsLoading: true},
		done:    make(chan struct{}),
	}
}

// Updates returns the snapshot stream. It is closed when the subscription ends.
func (s *Subscription[T]) Updates() <-chan Snapshot[T] {
	return s.updates
}

// Done is closed when the subscription ends
func (s *Subscription[T]) Done() <-chan struct{} {
	return s.done
}

// Latest returns the most recent snapshot without waiting
func (s *Subscription[T]) Latest() Snapshot[T] {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.latest
}

// Filter returns the filter this subscription was opened with
func (s *Subscription[T]) Filter() Filter {
	return s.filter
}

// Close unsubscribes. It is safe to call more than once.
func (s *Subscription[T]) Close() {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	s.closed = true
	close(s.updates)
	close(s.done)
	s.mu.Unlock()

	s.channel.remove(s.id)
}

func (s *Subscription[T]) deliver(seq uint64, data []T) {
	s.publish(seq, Snapshot[T]{Data: slices.Clone(data)})
}

func (s *Subscription[T]) fail(seq uint64, err error) {
	s.mu.Lock()
	prev := s.latest.Data
	s.mu.Unlock()
	s.publish(seq, Snapshot[T]{Err: err, Data: prev})
}

func (s *Subscription[T]) publish(seq uint64, snap Snapshot[T]) {
	s.mu.Lock()
	defer s.mu.Unlock()

	// results of queries started before the last delivered one are stale
	if s.closed || seq < s.seq {
		return
	}
	s.seq = seq
	s.latest = snap

	select {
	case <-s.updates:
	default:
	}
	s.updates <- snap
}
