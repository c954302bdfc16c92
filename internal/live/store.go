package live

import (
	"context"
	"sort"
	"sync"
)

// Store persists one collection. Create must be idempotent on the record id
// and Delete of a missing id is not an error.
type Store[T Record] interface {
	List(ctx context.Context, filter Filter) ([]T, error)
	Create(ctx context.Context, record T) error
	Delete(ctx context.Context, id string) error
}

// Publisher announces that a collection changed so other instances can refresh
type Publisher interface {
	Publish(ctx context.Context, collection string) error
}

// MemoryStore is a process-local Store
type MemoryStore[T Record] struct {
	mu      sync.RWMutex
	records map[string]T
}

// NewMemoryStore creates an empty in-memory store
func NewMemoryStore[T Record]() *MemoryStore[T] {
	return &MemoryStore[T]{records: make(map[string]T)}
}

// List returns matching records ordered by id
func (s *MemoryStore[T]) List(ctx context.Context, filter Filter) ([]T, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]T, 0, len(s.records))
	for _, r := range s.records {
		if filter.Matches(r) {
			out = append(out, r)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].RecordID() < out[j].RecordID() })
	return out, nil
}

// Create stores the record unless one with the same id already exists
func (s *MemoryStore[T]) Create(ctx context.Context, record T) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.records[record.RecordID()]; !exists {
		s.records[record.RecordID()] = record
	}
	return nil
}

// Delete removes the record with the given id
func (s *MemoryStore[T]) Delete(ctx context.Context, id string) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	delete(s.records, id)
	return nil
}

// Len returns the number of stored records
func (s *MemoryStore[T]) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.records)
}
