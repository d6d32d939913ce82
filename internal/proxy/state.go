package proxy

import (
	"crypto/rand"
	"encoding/base64"
	"net/http"
	"time"
)

const (
	stateCookieName = "__oauth_state"
	stateTTL        = 5 * time.Minute
)

// newStateCookie generates a CSRF state value and stores it in a short-lived
// cookie so the exchange step can verify the round trip.
func newStateCookie(w http.ResponseWriter, secure bool) string {
	b := make([]byte, 32)
	_, _ = rand.Read(b)

	state := base64.RawURLEncoding.EncodeToString(b)

	http.SetCookie(w, &http.Cookie{
		Name:     stateCookieName,
		Value:    state,
		Path:     "/",
		HttpOnly: true,
		Secure:   secure,
		SameSite: http.SameSiteLaxMode,
		MaxAge:   int(stateTTL.Seconds()),
	})

	return state
}

// stateMatches verifies an exchange-time state parameter against the login
// state cookie. An empty parameter passes: single-page apps that track state
// themselves do not send it to the proxy.
func stateMatches(r *http.Request, state string) bool {
	if state == "" {
		return true
	}

	cookie, err := r.Cookie(stateCookieName)
	if err != nil {
		return false
	}

	return cookie.Value == state
}
