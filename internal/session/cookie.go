package session

import (
	"net/http"
	"time"
)

// CookieName is the cookie carrying the opaque session id. The browser
// never sees the refresh token, only this handle.
const CookieName = "een_session"

// CookieOptions defines how session cookies are issued.
type CookieOptions struct {
	Path     string
	HttpOnly bool
	Secure   bool
	SameSite http.SameSite
	Domain   string
}

// normalize applies safe defaults without breaking callers.
func (o CookieOptions) normalize() CookieOptions {
	if o.Path == "" {
		o.Path = "/"
	}
	if !o.HttpOnly {
		o.HttpOnly = true // the id must stay out of script reach
	}
	if o.SameSite == 0 {
		o.SameSite = http.SameSiteLaxMode
	}
	return o
}

// SetCookie issues the session cookie to the client.
func SetCookie(
	w http.ResponseWriter,
	sessionID string,
	expiresAt time.Time,
	opts CookieOptions,
) {
	opts = opts.normalize()

	http.SetCookie(w, &http.Cookie{
		Name:     CookieName,
		Value:    sessionID,
		Path:     opts.Path,
		Domain:   opts.Domain,
		Expires:  expiresAt,
		HttpOnly: opts.HttpOnly,
		Secure:   opts.Secure,
		SameSite: opts.SameSite,
	})
}

// ClearCookie removes the session cookie from the client.
func ClearCookie(
	w http.ResponseWriter,
	opts CookieOptions,
) {
	opts = opts.normalize()

	http.SetCookie(w, &http.Cookie{
		Name:     CookieName,
		Value:    "",
		Path:     opts.Path,
		Domain:   opts.Domain,
		MaxAge:   -1,
		HttpOnly: opts.HttpOnly,
		Secure:   opts.Secure,
		SameSite: opts.SameSite,
	})
}
