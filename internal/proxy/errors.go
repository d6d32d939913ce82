package proxy

import "errors"

// Request-validation failures. All map to HTTP 400.
var (
	ErrMissingCode         = errors.New("proxy: code parameter is required")
	ErrMissingRedirectURI  = errors.New("proxy: redirect_uri parameter is required")
	ErrRedirectURIMismatch = errors.New("proxy: redirect_uri does not match the registered value")
	ErrMissingSession      = errors.New("proxy: sessionId is required")
	ErrStateMismatch       = errors.New("proxy: state does not match the login state cookie")
)

// ErrSessionInvalid means the session id is unknown or past its expiry. The
// client must restart the interactive login flow.
var ErrSessionInvalid = errors.New("proxy: session is invalid or expired")

func isInvalidRequest(err error) bool {
	return errors.Is(err, ErrMissingCode) ||
		errors.Is(err, ErrMissingRedirectURI) ||
		errors.Is(err, ErrRedirectURIMismatch) ||
		errors.Is(err, ErrMissingSession) ||
		errors.Is(err, ErrStateMismatch)
}
