// Package upstream talks to the identity provider's OAuth2 endpoints. EEN
// is a plain OAuth2 provider (no OIDC discovery, no id_token), so requests
// are built explicitly: HTTP Basic client auth and a form-encoded body.
package upstream

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"golang.org/x/oauth2"

	"github.com/klaushofrichter/een-token-proxy/internal/logger"
)

// maxResponseSize caps how much of a provider response is read.
const maxResponseSize = 1 << 20

// Config carries the confidential-client settings for the provider. All
// fields except RevokeURL are required.
type Config struct {
	ClientID     string
	ClientSecret string
	RedirectURI  string
	AuthURL      string
	TokenURL     string
	RevokeURL    string
	Scope        string
	Timeout      time.Duration
}

func (c *Config) validate() error {
	switch {
	case c.ClientID == "":
		return errors.New("upstream: client id is required")
	case c.ClientSecret == "":
		return errors.New("upstream: client secret is required")
	case c.RedirectURI == "":
		return errors.New("upstream: redirect uri is required")
	case c.AuthURL == "":
		return errors.New("upstream: authorization endpoint is required")
	case c.TokenURL == "":
		return errors.New("upstream: token endpoint is required")
	case c.Scope == "":
		return errors.New("upstream: scope is required")
	case c.Timeout <= 0:
		return errors.New("upstream: timeout must be positive")
	}
	return nil
}

// Provider implements the code-exchange and refresh flows against the
// provider's token endpoint.
type Provider struct {
	config     Config
	oauthCfg   *oauth2.Config
	httpClient *http.Client
}

// ProviderOption configures a Provider.
type ProviderOption func(*Provider)

// WithHTTPClient sets a custom HTTP client.
func WithHTTPClient(client *http.Client) ProviderOption {
	return func(p *Provider) {
		p.httpClient = client
	}
}

// New creates a provider client. Config problems surface here, at
// construction time.
func New(cfg Config, opts ...ProviderOption) (*Provider, error) {
	if err := cfg.validate(); err != nil {
		return nil, err
	}

	p := &Provider{
		config: cfg,
		oauthCfg: &oauth2.Config{
			ClientID:     cfg.ClientID,
			ClientSecret: cfg.ClientSecret,
			RedirectURL:  cfg.RedirectURI,
			Endpoint: oauth2.Endpoint{
				AuthURL:  cfg.AuthURL,
				TokenURL: cfg.TokenURL,
			},
			Scopes: []string{cfg.Scope},
		},
		httpClient: http.DefaultClient,
	}
	for _, opt := range opts {
		opt(p)
	}

	return p, nil
}

// AuthorizationURL builds the URL the browser is redirected to for
// interactive login.
func (p *Provider) AuthorizationURL(state string) string {
	return p.oauthCfg.AuthCodeURL(state)
}

// ExchangeCode exchanges an authorization code for a token pair. Codes are
// single-use, so a failure is surfaced, never retried.
func (p *Provider) ExchangeCode(ctx context.Context, code string) (*Tokens, error) {
	if code == "" {
		return nil, errors.New("upstream: authorization code is required")
	}

	params := url.Values{
		"grant_type":   {"authorization_code"},
		"code":         {code},
		"redirect_uri": {p.config.RedirectURI},
		"scope":        {p.config.Scope},
	}

	tokens, err := p.tokenRequest(ctx, params)
	if err != nil {
		return nil, err
	}

	logger.Info("authorization code exchange successful", map[string]any{
		"expires_in":        tokens.ExpiresIn,
		"has_https_baseurl": tokens.HTTPSBaseURL != nil,
	})

	return tokens, nil
}

// Refresh exchanges a refresh token for a new token pair. The provider
// single-uses refresh tokens, so the caller must rotate on success.
func (p *Provider) Refresh(ctx context.Context, refreshToken string) (*Tokens, error) {
	if refreshToken == "" {
		return nil, errors.New("upstream: refresh token is required")
	}

	params := url.Values{
		"grant_type":    {"refresh_token"},
		"refresh_token": {refreshToken},
		"scope":         {p.config.Scope},
	}

	tokens, err := p.tokenRequest(ctx, params)
	if err != nil {
		return nil, err
	}

	logger.Info("token refresh successful", map[string]any{
		"expires_in": tokens.ExpiresIn,
	})

	return tokens, nil
}

// Revoke invalidates a refresh token at the provider, when a revocation
// endpoint is configured. Callers treat failures as warnings.
func (p *Provider) Revoke(ctx context.Context, refreshToken string) error {
	if p.config.RevokeURL == "" || refreshToken == "" {
		return nil
	}

	params := url.Values{
		"token":           {refreshToken},
		"token_type_hint": {"refresh_token"},
	}

	ctx, cancel := context.WithTimeout(ctx, p.config.Timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(
		ctx,
		http.MethodPost,
		p.config.RevokeURL,
		strings.NewReader(params.Encode()),
	)
	if err != nil {
		return fmt.Errorf("upstream: failed to create revoke request: %w", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.SetBasicAuth(p.config.ClientID, p.config.ClientSecret)

	resp, err := p.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("upstream: revoke request failed: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, maxResponseSize))

	if resp.StatusCode < http.StatusOK || resp.StatusCode >= http.StatusMultipleChoices {
		return &AuthError{StatusCode: resp.StatusCode, Detail: "revocation rejected"}
	}
	return nil
}

// tokenRequest performs one round trip to the token endpoint.
func (p *Provider) tokenRequest(ctx context.Context, params url.Values) (*Tokens, error) {
	ctx, cancel := context.WithTimeout(ctx, p.config.Timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(
		ctx,
		http.MethodPost,
		p.config.TokenURL,
		strings.NewReader(params.Encode()),
	)
	if err != nil {
		return nil, fmt.Errorf("upstream: failed to create token request: %w", err)
	}

	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.Header.Set("Accept", "application/json")
	req.SetBasicAuth(p.config.ClientID, p.config.ClientSecret)

	resp, err := p.httpClient.Do(req)
	if err != nil {
		if isTimeout(err) {
			return nil, fmt.Errorf("%w: %v", ErrTimeout, err)
		}
		return nil, fmt.Errorf("upstream: token request failed: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseSize))
	if err != nil {
		return nil, fmt.Errorf("upstream: failed to read token response: %w", err)
	}

	tokens, err := parseTokenResponse(body, resp.StatusCode)
	if err != nil {
		var authErr *AuthError
		if errors.As(err, &authErr) {
			// Full detail stays in the server log; the caller gets a short
			// stable message.
			logger.Error("token endpoint rejected request", map[string]any{
				"status": authErr.StatusCode,
				"body":   truncate(string(body), 256),
			})
		}
		return nil, err
	}

	return tokens, nil
}

func isTimeout(err error) bool {
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var uerr *url.Error
	return errors.As(err, &uerr) && uerr.Timeout()
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}
