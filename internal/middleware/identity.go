package middleware

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"time"

	"pixelsync-backend/internal/models"
	"pixelsync-backend/internal/services"

	"github.com/rs/zerolog/log"
)

type contextKey string

const identityKey contextKey = "identity"

const cookieMaxAge = 10 * 365 * 24 * time.Hour

// CookieOptions controls how identity cookies are written
type CookieOptions struct {
	Domain string
	Secure bool
}

// CookieStore exposes a request's cookies as the client profile. A bearer
// token, or a token query parameter on websocket upgrades, stands in for the
// identity cookie for clients without a cookie jar.
type CookieStore struct {
	r    *http.Request
	w    http.ResponseWriter
	opts CookieOptions

	set     map[string]string
	deleted map[string]bool
}

// NewCookieStore creates a key store over one request/response pair
func NewCookieStore(w http.ResponseWriter, r *http.Request, opts CookieOptions) *CookieStore {
	return &CookieStore{
		r:       r,
		w:       w,
		opts:    opts,
		set:     make(map[string]string),
		deleted: make(map[string]bool),
	}
}

// Get returns the value persisted under key
func (s *CookieStore) Get(key string) (string, bool) {
	if v, ok := s.set[key]; ok {
		return v, true
	}
	if s.deleted[key] {
		return "", false
	}

	if key == services.IdentityKey {
		if token := bearerToken(s.r); token != "" {
			return token, true
		}
	}

	c, err := s.r.Cookie(key)
	if err != nil || c.Value == "" {
		return "", false
	}
	return c.Value, true
}

// Set persists value under key as a long-lived cookie
func (s *CookieStore) Set(key, value string) {
	s.set[key] = value
	delete(s.deleted, key)
	http.SetCookie(s.w, s.cookie(key, value, int(cookieMaxAge.Seconds())))
}

// Delete expires the cookie for key
func (s *CookieStore) Delete(key string) {
	delete(s.set, key)
	s.deleted[key] = true
	http.SetCookie(s.w, s.cookie(key, "", -1))
}

func (s *CookieStore) cookie(name, value string, maxAge int) *http.Cookie {
	return &http.Cookie{
		Name:     name,
		Value:    value,
		Path:     "/",
		Domain:   s.opts.Domain,
		MaxAge:   maxAge,
		Secure:   s.opts.Secure,
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
	}
}

func bearerToken(r *http.Request) string {
	if authHeader := r.Header.Get("Authorization"); authHeader != "" {
		parts := strings.Split(authHeader, " ")
		if len(parts) == 2 && parts[0] == "Bearer" {
			return parts[1]
		}
		return ""
	}
	return r.URL.Query().Get("token")
}

// IdentityMiddleware resolves the caller's identity, creating one on first
// contact, and stores it in the request context
func IdentityMiddleware(identityService *services.IdentityService, opts CookieOptions) func(http.Handler) http.Handler {
	return identityMiddleware(opts, func(r *http.Request, store *CookieStore) (*models.Identity, error) {
		return identityService.GetOrCreate(r.Context(), store)
	})
}

// OptionalIdentity resolves an existing identity but never creates one, so
// anonymous reads leave no trace in the registry
func OptionalIdentity(identityService *services.IdentityService, opts CookieOptions) func(http.Handler) http.Handler {
	return identityMiddleware(opts, func(r *http.Request, store *CookieStore) (*models.Identity, error) {
		return identityService.Lookup(store)
	})
}

func identityMiddleware(opts CookieOptions, resolve func(*http.Request, *CookieStore) (*models.Identity, error)) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			store := NewCookieStore(w, r, opts)

			identity, err := resolve(r, store)
			if err != nil {
				if errors.Is(err, services.ErrInvalidCredential) {
					log.Warn().Err(err).Str("path", r.URL.Path).Msg("Rejected identity credential")
					respondError(w, "Invalid identity credential", http.StatusUnauthorized)
					return
				}
				log.Error().Err(err).Msg("Failed to resolve identity")
				respondError(w, "Failed to resolve identity", http.StatusInternalServerError)
				return
			}

			if identity != nil {
				r = r.WithContext(WithIdentity(r.Context(), identity))
			}
			next.ServeHTTP(w, r)
		})
	}
}

// GetIdentity extracts the identity from context
func GetIdentity(ctx context.Context) *models.Identity {
	identity, ok := ctx.Value(identityKey).(*models.Identity)
	if !ok {
		return nil
	}
	return identity
}

// GetUserID extracts the identity id from context
func GetUserID(ctx context.Context) string {
	if identity := GetIdentity(ctx); identity != nil {
		return identity.ID
	}
	return ""
}

// WithIdentity returns a context carrying identity
func WithIdentity(ctx context.Context, identity *models.Identity) context.Context {
	return context.WithValue(ctx, identityKey, identity)
}

// respondError sends an error response
func respondError(w http.ResponseWriter, message string, statusCode int) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	w.Write([]byte(`{"error":"` + message + `"}`))
}
