package services

import (
	"context"
	"fmt"
	"sync"

	"pixelsync-backend/internal/models"
	"pixelsync-backend/internal/repository"
)

// MemoryIdentityRegistry keeps identities in process memory
type MemoryIdentityRegistry struct {
	mu         sync.RWMutex
	identities map[string]models.Identity
}

// NewMemoryIdentityRegistry creates an empty registry
func NewMemoryIdentityRegistry() *MemoryIdentityRegistry {
	return &MemoryIdentityRegistry{identities: make(map[string]models.Identity)}
}

func (r *MemoryIdentityRegistry) Create(ctx context.Context, identity *models.Identity) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.identities[identity.ID]; exists {
		return false, nil
	}
	r.identities[identity.ID] = *identity
	return true, nil
}

func (r *MemoryIdentityRegistry) GetByID(ctx context.Context, id string) (*models.Identity, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	identity, ok := r.identities[id]
	if !ok {
		return nil, fmt.Errorf("identity %s: %w", id, repository.ErrNotFound)
	}
	return &identity, nil
}

func (r *MemoryIdentityRegistry) UpdatePushToken(ctx context.Context, id string, pushToken *string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	identity, ok := r.identities[id]
	if !ok {
		return fmt.Errorf("identity %s: %w", id, repository.ErrNotFound)
	}
	identity.PushToken = pushToken
	r.identities[id] = identity
	return nil
}

func (r *MemoryIdentityRegistry) PushTokens(ctx context.Context, ids []string) ([]string, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var tokens []string
	for _, id := range ids {
		if identity, ok := r.identities[id]; ok && identity.PushToken != nil {
			tokens = append(tokens, *identity.PushToken)
		}
	}
	return tokens, nil
}
