package upstream

import (
	"errors"
	"fmt"
)

// ErrMalformedResponse means the provider answered 2xx but the token payload
// was missing a required field. Treated as a hard failure.
var ErrMalformedResponse = errors.New("upstream: malformed token response")

// ErrTimeout means the round trip to the provider exceeded the configured
// deadline.
var ErrTimeout = errors.New("upstream: request timed out")

// AuthError is a non-success answer from the provider's token endpoint. The
// status code is kept so the proxy can propagate it; Detail is a short
// diagnostic and never the raw response body.
type AuthError struct {
	StatusCode int
	Detail     string
}

func (e *AuthError) Error() string {
	return fmt.Sprintf("upstream: provider returned status %d: %s", e.StatusCode, e.Detail)
}
