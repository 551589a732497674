package main

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"net/http"
)

const (
	sessionCookie = "session"
	visitorCookie = "visitor_id"
)

func randomHex(n int) string {
	b := make([]byte, n)
	rand.Read(b)
	return hex.EncodeToString(b)
}

// Identity is the caller of a request: either an authenticated account or an
// anonymous browser token. Exactly one of the two fields is meaningful.
type Identity struct {
	UserID int    // account id when authenticated, 0 otherwise
	Token  string // anonymous token when not authenticated
}

func (id Identity) Authenticated() bool {
	return id.UserID > 0
}

// Key returns the value used to join the caller against the unlock ledger.
// Authenticated identities derive a stable key from the account id, so the
// same account maps to the same ledger rows from any browser; anonymous
// identities use their token directly.
func (id Identity) Key() string {
	if id.Authenticated() {
		return fmt.Sprintf("user_%d", id.UserID)
	}
	return id.Token
}

// resolveIdentity maps the request to an Identity. A valid session cookie
// wins; otherwise the visitor cookie is reused, or minted once (128 random
// bits) and persisted so unlock state sticks for the rest of the session.
func (a *App) resolveIdentity(w http.ResponseWriter, r *http.Request) Identity {
	if cookie, err := r.Cookie(sessionCookie); err == nil {
		if userID, err := a.store.GetSession(cookie.Value); err == nil {
			return Identity{UserID: userID}
		}
	}

	if cookie, err := r.Cookie(visitorCookie); err == nil && cookie.Value != "" {
		return Identity{Token: cookie.Value}
	}

	token := randomHex(16)
	http.SetCookie(w, &http.Cookie{
		Name:     visitorCookie,
		Value:    token,
		Path:     "/",
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
	})
	return Identity{Token: token}
}
