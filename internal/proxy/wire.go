package proxy

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/klaushofrichter/een-token-proxy/internal/upstream"
)

// Wire shapes shared by both transport adapters.

type exchangeResponse struct {
	AccessToken  string            `json:"accessToken"`
	ExpiresIn    int64             `json:"expiresIn"`
	HTTPSBaseURL *upstream.BaseURL `json:"httpsBaseUrl,omitempty"`
	SessionID    string            `json:"sessionId"`
}

type refreshResponse struct {
	AccessToken string `json:"accessToken"`
	ExpiresIn   int64  `json:"expiresIn"`
}

type statusResponse struct {
	Status string `json:"status"`
}

// errorResponse is the stable error shape. Details never contain raw
// provider bodies.
type errorResponse struct {
	Error   string `json:"error"`
	Details string `json:"details,omitempty"`
}

// mapError translates a service failure into an HTTP status and body.
func mapError(err error) (int, errorResponse) {
	if isInvalidRequest(err) {
		return http.StatusBadRequest, errorResponse{
			Error:   "invalid_request",
			Details: err.Error(),
		}
	}

	if errors.Is(err, ErrSessionInvalid) {
		return http.StatusBadRequest, errorResponse{
			Error:   "session_invalid",
			Details: "session is unknown or expired; log in again",
		}
	}

	var authErr *upstream.AuthError
	if errors.As(err, &authErr) {
		status := http.StatusBadGateway
		if authErr.StatusCode >= 400 && authErr.StatusCode < 600 {
			status = authErr.StatusCode
		}
		return status, errorResponse{
			Error:   "upstream_auth_error",
			Details: fmt.Sprintf("provider returned status %d", authErr.StatusCode),
		}
	}

	if errors.Is(err, upstream.ErrTimeout) {
		return http.StatusGatewayTimeout, errorResponse{
			Error: "upstream_timeout",
		}
	}

	if errors.Is(err, upstream.ErrMalformedResponse) {
		return http.StatusInternalServerError, errorResponse{
			Error: "malformed_upstream_response",
		}
	}

	return http.StatusInternalServerError, errorResponse{
		Error: "internal_error",
	}
}
