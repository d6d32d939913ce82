package upstream

import (
	"encoding/json"
	"fmt"
	"net/http"
)

// BaseURL designates the host and port the browser must use for resource
// API calls after login. Passed through from the provider verbatim.
type BaseURL struct {
	Hostname string `json:"hostname"`
	Port     int    `json:"port"`
}

// Tokens is a successful answer from the provider's token endpoint.
type Tokens struct {
	AccessToken  string
	RefreshToken string
	ExpiresIn    int64 // seconds
	HTTPSBaseURL *BaseURL
}

type tokenResponse struct {
	AccessToken  string   `json:"access_token"`
	RefreshToken string   `json:"refresh_token"`
	ExpiresIn    int64    `json:"expires_in"`
	HTTPSBaseURL *BaseURL `json:"httpsBaseUrl"`
}

// parseTokenResponse validates a token-endpoint answer. Non-2xx statuses
// become an AuthError; a 2xx body missing any of access_token,
// refresh_token or expires_in is ErrMalformedResponse.
func parseTokenResponse(body []byte, statusCode int) (*Tokens, error) {
	if statusCode < http.StatusOK || statusCode >= http.StatusMultipleChoices {
		return nil, &AuthError{
			StatusCode: statusCode,
			Detail:     "token request rejected",
		}
	}

	var resp tokenResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedResponse, err)
	}

	if resp.AccessToken == "" || resp.RefreshToken == "" || resp.ExpiresIn <= 0 {
		return nil, fmt.Errorf("%w: missing access_token, refresh_token or expires_in", ErrMalformedResponse)
	}

	return &Tokens{
		AccessToken:  resp.AccessToken,
		RefreshToken: resp.RefreshToken,
		ExpiresIn:    resp.ExpiresIn,
		HTTPSBaseURL: resp.HTTPSBaseURL,
	}, nil
}
