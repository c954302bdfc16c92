package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"pixelsync-backend/internal/services"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newIdentityHandler(svc *services.IdentityService) (http.Handler, *string) {
	var seen string
	h := IdentityMiddleware(svc, CookieOptions{})(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen = GetUserID(r.Context())
		w.WriteHeader(http.StatusNoContent)
	}))
	return h, &seen
}

func findCookie(cookies []*http.Cookie, name string) *http.Cookie {
	for _, c := range cookies {
		if c.Name == name {
			return c
		}
	}
	return nil
}

func TestIdentityMiddlewareIssuesAndReusesCookie(t *testing.T) {
	svc := services.NewIdentityService(services.NewMemoryIdentityRegistry(), "secret")
	h, seen := newIdentityHandler(svc)

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
	require.Equal(t, http.StatusNoContent, rec.Code)
	first := *seen
	require.NotEmpty(t, first)

	cookie := findCookie(rec.Result().Cookies(), services.IdentityKey)
	require.NotNil(t, cookie)
	assert.True(t, cookie.HttpOnly)
	assert.Greater(t, cookie.MaxAge, 0)

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.AddCookie(&http.Cookie{Name: services.IdentityKey, Value: cookie.Value})
	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	assert.Equal(t, first, *seen)
	assert.Nil(t, findCookie(rec.Result().Cookies(), services.IdentityKey))
}

func TestIdentityMiddlewareAcceptsBearerAndQueryToken(t *testing.T) {
	svc := services.NewIdentityService(services.NewMemoryIdentityRegistry(), "secret")
	token, err := svc.IssueCredential("device-user")
	require.NoError(t, err)
	h, seen := newIdentityHandler(svc)

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	h.ServeHTTP(httptest.NewRecorder(), req)
	assert.Equal(t, "device-user", *seen)

	*seen = ""
	h.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/ws?token="+token, nil))
	assert.Equal(t, "device-user", *seen)
}

func TestIdentityMiddlewareRejectsForgedCredential(t *testing.T) {
	svc := services.NewIdentityService(services.NewMemoryIdentityRegistry(), "secret")
	forged, err := services.NewIdentityService(services.NewMemoryIdentityRegistry(), "other").IssueCredential("victim")
	require.NoError(t, err)
	h, seen := newIdentityHandler(svc)

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.AddCookie(&http.Cookie{Name: services.IdentityKey, Value: forged})
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Empty(t, *seen)
	assert.Empty(t, rec.Result().Cookies())
}

func TestIdentityMiddlewareMigratesLegacyCookie(t *testing.T) {
	svc := services.NewIdentityService(services.NewMemoryIdentityRegistry(), "secret")
	h, seen := newIdentityHandler(svc)

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.AddCookie(&http.Cookie{Name: services.LegacyIdentityKey, Value: "old_user"})
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	assert.Equal(t, "old_user", *seen)
	cookies := rec.Result().Cookies()
	require.NotNil(t, findCookie(cookies, services.IdentityKey))
	legacy := findCookie(cookies, services.LegacyIdentityKey)
	require.NotNil(t, legacy)
	assert.Less(t, legacy.MaxAge, 0)
}

func TestIdentityMiddlewareRefusesLegacyCookieOfRegisteredUser(t *testing.T) {
	svc := services.NewIdentityService(services.NewMemoryIdentityRegistry(), "secret")
	h, seen := newIdentityHandler(svc)

	h.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/", nil))
	victim := *seen
	require.NotEmpty(t, victim)

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.AddCookie(&http.Cookie{Name: services.LegacyIdentityKey, Value: victim})
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	assert.NotEqual(t, victim, *seen)
	legacy := findCookie(rec.Result().Cookies(), services.LegacyIdentityKey)
	require.NotNil(t, legacy)
	assert.Less(t, legacy.MaxAge, 0)
}

func TestOptionalIdentityNeverCreates(t *testing.T) {
	svc := services.NewIdentityService(services.NewMemoryIdentityRegistry(), "secret")
	seen := "unset"
	h := OptionalIdentity(svc, CookieOptions{})(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen = GetUserID(r.Context())
	}))

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
	assert.Empty(t, seen)
	assert.Empty(t, rec.Result().Cookies())

	token, err := svc.IssueCredential("reader")
	require.NoError(t, err)
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.AddCookie(&http.Cookie{Name: services.IdentityKey, Value: token})
	h.ServeHTTP(httptest.NewRecorder(), req)
	assert.Equal(t, "reader", seen)
}

func TestWriteLimiter(t *testing.T) {
	l := NewWriteLimiter(1, 2)
	now := time.Unix(1000, 0)
	l.now = func() time.Time { return now }

	assert.True(t, l.Allow("a"))
	assert.True(t, l.Allow("a"))
	assert.False(t, l.Allow("a"))
	assert.True(t, l.Allow("b"))

	now = now.Add(time.Second)
	assert.True(t, l.Allow("a"))

	now = now.Add(limiterIdle + time.Second)
	l.Cleanup()
	assert.Empty(t, l.visitors)
}

func TestWriteLimiterMiddlewareOnlyThrottlesWrites(t *testing.T) {
	l := NewWriteLimiter(0.001, 1)
	h := l.Middleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))

	for i := 0; i < 3; i++ {
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
		assert.Equal(t, http.StatusOK, rec.Code)
	}

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/", nil))
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/", nil))
	assert.Equal(t, http.StatusTooManyRequests, rec.Code)
}
