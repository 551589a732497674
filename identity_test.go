package main

import (
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestApp(t *testing.T) *App {
	t.Helper()
	return newApp(newTestStore(t))
}

func TestIdentityKey(t *testing.T) {
	tests := []struct {
		name     string
		identity Identity
		want     string
	}{
		{"authenticated", Identity{UserID: 42}, "user_42"},
		{"anonymous", Identity{Token: "deadbeef"}, "deadbeef"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.identity.Key())
		})
	}
}

func TestIdentityKey_StablePerAccount(t *testing.T) {
	a := Identity{UserID: 7}
	b := Identity{UserID: 7}
	c := Identity{UserID: 8}
	assert.Equal(t, a.Key(), b.Key())
	assert.NotEqual(t, a.Key(), c.Key())
}

func TestResolveIdentity_AnonymousMintsTokenOnce(t *testing.T) {
	app := newTestApp(t)

	// First contact: a token is generated and set as a cookie.
	w := httptest.NewRecorder()
	r := httptest.NewRequest(http.MethodGet, "/feedback", nil)
	first := app.resolveIdentity(w, r)

	assert.False(t, first.Authenticated())
	require.NotEmpty(t, first.Token)
	// 16 random bytes hex-encoded.
	assert.Len(t, first.Token, 32)

	cookies := w.Result().Cookies()
	require.Len(t, cookies, 1)
	assert.Equal(t, visitorCookie, cookies[0].Name)
	assert.Equal(t, first.Token, cookies[0].Value)

	// Later requests present the cookie and get the same token back, with no
	// new cookie issued.
	w2 := httptest.NewRecorder()
	r2 := httptest.NewRequest(http.MethodGet, "/feedback", nil)
	r2.AddCookie(cookies[0])
	second := app.resolveIdentity(w2, r2)

	assert.Equal(t, first.Token, second.Token)
	assert.Empty(t, w2.Result().Cookies())
}

func TestResolveIdentity_SessionWins(t *testing.T) {
	app := newTestApp(t)

	userID, err := app.store.CreateUser("mira", "secret-pass")
	require.NoError(t, err)
	require.NoError(t, app.store.CreateSession("sess-tok", userID))

	w := httptest.NewRecorder()
	r := httptest.NewRequest(http.MethodGet, "/jokers", nil)
	r.AddCookie(&http.Cookie{Name: sessionCookie, Value: "sess-tok"})
	// A stale visitor cookie must not shadow the login.
	r.AddCookie(&http.Cookie{Name: visitorCookie, Value: "old-anon-token"})

	identity := app.resolveIdentity(w, r)
	assert.True(t, identity.Authenticated())
	assert.Equal(t, userID, identity.UserID)
	assert.Equal(t, fmt.Sprintf("user_%d", userID), identity.Key())
}

func TestResolveIdentity_InvalidSessionFallsBack(t *testing.T) {
	app := newTestApp(t)

	w := httptest.NewRecorder()
	r := httptest.NewRequest(http.MethodGet, "/jokers", nil)
	r.AddCookie(&http.Cookie{Name: sessionCookie, Value: "no-such-session"})

	identity := app.resolveIdentity(w, r)
	assert.False(t, identity.Authenticated())
	assert.NotEmpty(t, identity.Token)
}
