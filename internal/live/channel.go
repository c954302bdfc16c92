package live

import (
	"context"
	"fmt"
	"math/rand"
	"sync"
	"sync/atomic"
	"time"

	"pixelsync-backend/internal/metrics"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog/log"
)

const (
	refreshTimeout = 10 * time.Second
	// maxDirty bounds the records remembered between refreshes before falling back to a full pass
	maxDirty = 256
)

// OpKind identifies a write operation
type OpKind string

const (
	OpCreate OpKind = "create"
	OpDelete OpKind = "delete"
)

// Op is a single write against a collection. When the written record is
// known only the filters it matches are re-evaluated.
type Op[T Record] struct {
	Kind   OpKind
	Record T
	ID     string

	known bool
}

// Create returns an op inserting record
func Create[T Record](record T) Op[T] {
	return Op[T]{Kind: OpCreate, Record: record, ID: record.RecordID(), known: true}
}

// Remove returns an op deleting record
func Remove[T Record](record T) Op[T] {
	return Op[T]{Kind: OpDelete, Record: record, ID: record.RecordID(), known: true}
}

// Delete returns an op removing the record with id. Every filter is
// re-evaluated afterwards; prefer Remove when the record is at hand.
func Delete[T Record](id string) Op[T] {
	return Op[T]{Kind: OpDelete, ID: id}
}

// Options tunes a Channel
type Options struct {
	// RetryAttempts bounds initial-load attempts per subscription; values below 1 mean 1.
	RetryAttempts int
	RetryBase     time.Duration
	Publisher     Publisher
}

// Channel is a push-based live query over one collection. Every successful
// write re-evaluates each distinct active filter the record can match and
// pushes a complete snapshot to its subscribers.
type Channel[T Record] struct {
	name  string
	store Store[T]
	opts  Options

	mu     sync.Mutex
	nextID uint64
	subs   map[uint64]*Subscription[T]

	// pending work for the next refresh pass
	pendMu sync.Mutex
	full   bool
	dirty  []T

	seq      atomic.Uint64
	kick     chan struct{}
	stop     chan struct{}
	stopOnce sync.Once
}

// NewChannel creates a channel for the named collection and starts its refresh loop
func NewChannel[T Record](name string, store Store[T], opts Options) *Channel[T] {
	if opts.RetryAttempts < 1 {
		opts.RetryAttempts = 1
	}
	if opts.RetryBase <= 0 {
		opts.RetryBase = 200 * time.Millisecond
	}

	c := &Channel[T]{
		name:  name,
		store: store,
		opts:  opts,
		subs:  make(map[uint64]*Subscription[T]),
		kick:  make(chan struct{}, 1),
		stop:  make(chan struct{}),
	}
	go c.run()
	return c
}

// Name returns the collection name
func (c *Channel[T]) Name() string {
	return c.name
}

// Subscribe opens a live query. The first snapshot is a loading one and is
// available immediately; the initial load runs in the background. The
// subscription ends when ctx is done or Close is called.
func (c *Channel[T]) Subscribe(ctx context.Context, filter Filter) *Subscription[T] {
	c.mu.Lock()
	c.nextID++
	s := newSubscription(c, c.nextID, filter)
	c.subs[s.id] = s
	c.mu.Unlock()

	metrics.LiveSubscriptions.WithLabelValues(c.name).Inc()
	s.publish(0, Snapshot[T]{IsLoading: true})

	go c.load(ctx, s)
	go func() {
		select {
		case <-ctx.Done():
			s.Close()
		case <-s.done:
		}
	}()

	return s
}

// Query runs a one-shot read
func (c *Channel[T]) Query(ctx context.Context, filter Filter) ([]T, error) {
	data, err := c.store.List(ctx, filter)
	if err != nil {
		return nil, fmt.Errorf("failed to query %s: %w", c.name, err)
	}
	return data, nil
}

// Snapshot runs a one-shot read and wraps the result as a snapshot
func (c *Channel[T]) Snapshot(ctx context.Context, filter Filter) Snapshot[T] {
	data, err := c.Query(ctx, filter)
	return Snapshot[T]{Err: err, Data: data}
}

// Write applies op to the store. Success is observed through the next
// snapshot; the returned error only reports a rejected write.
func (c *Channel[T]) Write(ctx context.Context, op Op[T]) error {
	var err error
	switch op.Kind {
	case OpCreate:
		err = c.store.Create(ctx, op.Record)
	case OpDelete:
		err = c.store.Delete(ctx, op.ID)
	default:
		err = fmt.Errorf("unknown op %q", op.Kind)
	}
	if err != nil {
		metrics.LiveWrites.WithLabelValues(c.name, string(op.Kind), "rejected").Inc()
		return fmt.Errorf("failed to %s %s record %s: %w", op.Kind, c.name, op.ID, err)
	}
	metrics.LiveWrites.WithLabelValues(c.name, string(op.Kind), "ok").Inc()

	if op.known {
		c.markDirty(op.Record)
	} else {
		c.Refresh()
	}

	if c.opts.Publisher != nil {
		if err := c.opts.Publisher.Publish(ctx, c.name); err != nil {
			log.Warn().Err(err).Str("collection", c.name).Msg("Failed to publish live change")
		}
	}
	return nil
}

// Refresh schedules a re-evaluation of every subscription. Calls made while
// one is pending are coalesced.
func (c *Channel[T]) Refresh() {
	c.pendMu.Lock()
	c.full = true
	c.dirty = nil
	c.pendMu.Unlock()
	c.wake()
}

// markDirty schedules a re-evaluation of the filters record matches
func (c *Channel[T]) markDirty(record T) {
	c.pendMu.Lock()
	if !c.full {
		if len(c.dirty) >= maxDirty {
			c.full = true
			c.dirty = nil
		} else {
			c.dirty = append(c.dirty, record)
		}
	}
	c.pendMu.Unlock()
	c.wake()
}

func (c *Channel[T]) wake() {
	select {
	case c.kick <- struct{}{}:
	default:
	}
}

// Close stops the refresh loop and ends every subscription
func (c *Channel[T]) Close() {
	c.stopOnce.Do(func() {
		close(c.stop)
	})

	c.mu.Lock()
	subs := make([]*Subscription[T], 0, len(c.subs))
	for _, s := range c.subs {
		subs = append(subs, s)
	}
	c.mu.Unlock()

	for _, s := range subs {
		s.Close()
	}
}

// Subscribers returns the number of open subscriptions
func (c *Channel[T]) Subscribers() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.subs)
}

func (c *Channel[T]) remove(id uint64) {
	c.mu.Lock()
	_, ok := c.subs[id]
	delete(c.subs, id)
	c.mu.Unlock()

	if ok {
		metrics.LiveSubscriptions.WithLabelValues(c.name).Dec()
	}
}

func (c *Channel[T]) run() {
	for {
		select {
		case <-c.stop:
			return
		case <-c.kick:
			c.refresh()
		}
	}
}

func (c *Channel[T]) refresh() {
	c.pendMu.Lock()
	full, dirty := c.full, c.dirty
	c.full, c.dirty = false, nil
	c.pendMu.Unlock()

	if !full && len(dirty) == 0 {
		return
	}

	timer := prometheus.NewTimer(metrics.LiveRefreshDuration.WithLabelValues(c.name))
	defer timer.ObserveDuration()

	groups := make(map[string][]*Subscription[T])
	filters := make(map[string]Filter)

	c.mu.Lock()
	for _, s := range c.subs {
		key := s.filter.Key()
		groups[key] = append(groups[key], s)
		filters[key] = s.filter
	}
	c.mu.Unlock()

	ctx, cancel := context.WithTimeout(context.Background(), refreshTimeout)
	defer cancel()

	for key, subs := range groups {
		if !full && !matchesAny(filters[key], dirty) {
			continue
		}
		seq := c.seq.Add(1)
		data, err := c.store.List(ctx, filters[key])
		if err != nil {
			log.Error().Err(err).Str("collection", c.name).Msg("Failed to refresh live query")
		}
		for _, s := range subs {
			if err != nil {
				s.fail(seq, err)
			} else {
				s.deliver(seq, data)
			}
		}
	}
}

func matchesAny[T Record](filter Filter, records []T) bool {
	for _, r := range records {
		if filter.Matches(r) {
			return true
		}
	}
	return false
}

func (c *Channel[T]) load(ctx context.Context, s *Subscription[T]) {
	for attempt := 0; ; attempt++ {
		seq := c.seq.Add(1)
		data, err := c.store.List(ctx, s.filter)
		if err == nil {
			s.deliver(seq, data)
			return
		}
		if ctx.Err() != nil {
			return
		}

		s.fail(seq, err)
		log.Warn().
			Err(err).
			Str("collection", c.name).
			Int("attempt", attempt+1).
			Msg("Live query failed")

		if attempt+1 >= c.opts.RetryAttempts {
			return
		}

		select {
		case <-time.After(backoff(c.opts.RetryBase, attempt)):
		case <-ctx.Done():
			return
		case <-s.done:
			return
		}
	}
}

// backoff doubles base per attempt and adds up to 50% jitter
func backoff(base time.Duration, attempt int) time.Duration {
	d := base << attempt
	return d + time.Duration(rand.Int63n(int64(d)/2+1))
}
