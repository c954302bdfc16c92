package services

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"time"

	"pixelsync-backend/internal/models"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
)

const (
	// IdentityKey is where the identity credential is persisted in a client profile
	IdentityKey = "pixelsync_identity"
	// LegacyIdentityKey held a raw unsigned id in earlier clients; it is migrated on first use
	LegacyIdentityKey = "pixelsync_user_id"
)

var (
	ErrInvalidCredential = errors.New("invalid identity credential")

	legacyIDPattern = regexp.MustCompile(`^[A-Za-z0-9_-]{1,64}$`)
)

// KeyStore is the persisted state of one client profile
type KeyStore interface {
	Get(key string) (string, bool)
	Set(key, value string)
	Delete(key string)
}

// IdentityRegistry records issued identities
type IdentityRegistry interface {
	// Create reports false when the id is already registered
	Create(ctx context.Context, identity *models.Identity) (bool, error)
	GetByID(ctx context.Context, id string) (*models.Identity, error)
	UpdatePushToken(ctx context.Context, id string, pushToken *string) error
	PushTokens(ctx context.Context, ids []string) ([]string, error)
}

// IdentityService issues and verifies pseudo-anonymous identities
type IdentityService struct {
	registry IdentityRegistry
	secret   []byte
	now      func() time.Time
}

// NewIdentityService creates a new identity service
func NewIdentityService(registry IdentityRegistry, secret string) *IdentityService {
	return &IdentityService{
		registry: registry,
		secret:   []byte(secret),
		now:      time.Now,
	}
}

// Lookup returns the identity persisted in store, or nil when store holds no
// credential yet. A persisted credential that does not verify is reported and
// left in place; the identity is never rotated.
func (s *IdentityService) Lookup(store KeyStore) (*models.Identity, error) {
	token, ok := store.Get(IdentityKey)
	if !ok {
		return nil, nil
	}

	id, err := s.VerifyCredential(token)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidCredential, err)
	}
	if _, ok := store.Get(LegacyIdentityKey); ok {
		store.Delete(LegacyIdentityKey)
	}
	return &models.Identity{ID: id, Token: token}, nil
}

// GetOrCreate returns the identity persisted in store, creating and
// persisting one on first use. A legacy id is adopted only if it was never
// registered; otherwise a fresh id is issued.
func (s *IdentityService) GetOrCreate(ctx context.Context, store KeyStore) (*models.Identity, error) {
	identity, err := s.Lookup(store)
	if err != nil || identity != nil {
		return identity, err
	}

	legacy, hasLegacy := store.Get(LegacyIdentityKey)
	migrated := false
	if hasLegacy && legacyIDPattern.MatchString(legacy) {
		identity, err = s.register(ctx, legacy)
		if err != nil {
			return nil, err
		}
		if identity != nil {
			migrated = true
		} else {
			log.Warn().Str("user_id", legacy).Msg("Refused legacy identity that is already registered")
		}
	}

	if identity == nil {
		identity, err = s.register(ctx, uuid.New().String())
		if err != nil {
			return nil, err
		}
		if identity == nil {
			return nil, fmt.Errorf("failed to register identity: generated id already exists")
		}
	}

	token, err := s.IssueCredential(identity.ID)
	if err != nil {
		return nil, err
	}
	identity.Token = token

	store.Set(IdentityKey, token)
	if hasLegacy {
		store.Delete(LegacyIdentityKey)
	}
	if migrated {
		log.Info().Str("user_id", identity.ID).Msg("Migrated legacy identity")
	} else {
		log.Info().Str("user_id", identity.ID).Msg("Identity created")
	}

	return identity, nil
}

// register records a new identity, returning nil if id is taken
func (s *IdentityService) register(ctx context.Context, id string) (*models.Identity, error) {
	identity := &models.Identity{
		ID:        id,
		CreatedAt: s.now(),
	}
	created, err := s.registry.Create(ctx, identity)
	if err != nil {
		return nil, fmt.Errorf("failed to register identity: %w", err)
	}
	if !created {
		return nil, nil
	}
	return identity, nil
}

// IssueCredential signs a credential proving possession of id
func (s *IdentityService) IssueCredential(id string) (string, error) {
	claims := jwt.MapClaims{
		"user_id": id,
		"iat":     s.now().Unix(),
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	tokenString, err := token.SignedString(s.secret)
	if err != nil {
		return "", fmt.Errorf("failed to sign token: %w", err)
	}

	return tokenString, nil
}

// VerifyCredential validates a credential and returns the identity id
func (s *IdentityService) VerifyCredential(tokenString string) (string, error) {
	token, err := jwt.Parse(tokenString, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return s.secret, nil
	})
	if err != nil {
		return "", fmt.Errorf("failed to parse token: %w", err)
	}

	if !token.Valid {
		return "", fmt.Errorf("invalid token")
	}

	claims, ok := token.Claims.(jwt.MapClaims)
	if !ok {
		return "", fmt.Errorf("invalid token claims")
	}

	userID, ok := claims["user_id"].(string)
	if !ok || userID == "" {
		return "", fmt.Errorf("user_id not found in token")
	}

	return userID, nil
}

// RegisterPushToken stores the device token used for comment notifications.
// An empty token unregisters.
func (s *IdentityService) RegisterPushToken(ctx context.Context, id, pushToken string) error {
	var value *string
	if pushToken != "" {
		value = &pushToken
	}
	if err := s.registry.UpdatePushToken(ctx, id, value); err != nil {
		return fmt.Errorf("failed to register push token: %w", err)
	}
	return nil
}
