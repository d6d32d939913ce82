// Package client drives the token-proxy endpoints on behalf of an
// application: it exchanges the authorization code after the login
// redirect, keeps the access token fresh ahead of expiry, and runs the
// cancellable logout countdown. It holds only the access token and the
// opaque session id, mirroring what a browser would keep in local storage.
package client

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"sync"
	"time"

	"github.com/klaushofrichter/een-token-proxy/internal/logger"
	"github.com/klaushofrichter/een-token-proxy/internal/session"
)

const (
	defaultRefreshThreshold = 5 * time.Minute
	defaultCheckInterval    = time.Minute
	defaultRequestTimeout   = 15 * time.Second
)

// ErrNotAuthenticated is returned when an operation needs a live session
// and none is held.
var ErrNotAuthenticated = errors.New("client: not authenticated")

// Client talks to the token proxy and owns the client-side auth lifecycle.
type Client struct {
	proxyURL   string
	httpClient *http.Client
	storage    Storage

	refreshThreshold time.Duration
	checkInterval    time.Duration

	mu     sync.Mutex
	state  *State
	holder *State // captured state during a logout countdown
	logout *time.Timer
	now    func() time.Time
}

// Option configures a Client.
type Option func(*Client)

// WithHTTPClient sets a custom HTTP client.
func WithHTTPClient(c *http.Client) Option {
	return func(cl *Client) {
		cl.httpClient = c
	}
}

// WithRefreshThreshold sets how much remaining lifetime triggers a
// proactive refresh.
func WithRefreshThreshold(d time.Duration) Option {
	return func(cl *Client) {
		cl.refreshThreshold = d
	}
}

// WithCheckInterval sets how often the auto-refresh loop wakes up.
func WithCheckInterval(d time.Duration) Option {
	return func(cl *Client) {
		cl.checkInterval = d
	}
}

// WithClock overrides the time source. Intended for tests.
func WithClock(now func() time.Time) Option {
	return func(cl *Client) {
		cl.now = now
	}
}

// New creates a client against the given proxy base URL and restores any
// persisted state, so a restart does not force re-login.
func New(proxyURL string, storage Storage, opts ...Option) (*Client, error) {
	if proxyURL == "" {
		return nil, errors.New("client: proxy url is required")
	}
	if storage == nil {
		return nil, errors.New("client: storage is required")
	}

	c := &Client{
		proxyURL:         proxyURL,
		httpClient:       &http.Client{Timeout: defaultRequestTimeout},
		storage:          storage,
		refreshThreshold: defaultRefreshThreshold,
		checkInterval:    defaultCheckInterval,
		now:              time.Now,
	}
	for _, opt := range opts {
		opt(c)
	}

	state, err := storage.Load()
	if err != nil {
		return nil, err
	}
	c.state = state

	return c, nil
}

// IsAuthenticated reports whether an access token is held. It does not
// verify the token with the provider.
func (c *Client) IsAuthenticated() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state != nil && c.state.AccessToken != ""
}

// AccessToken returns the current access token, or empty when logged out.
func (c *Client) AccessToken() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.state == nil {
		return ""
	}
	return c.state.AccessToken
}

// State returns a copy of the current auth state, or nil when logged out.
func (c *Client) State() *State {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.state == nil {
		return nil
	}
	copied := *c.state
	return &copied
}

type exchangeBody struct {
	AccessToken  string `json:"accessToken"`
	ExpiresIn    int64  `json:"expiresIn"`
	HTTPSBaseURL *struct {
		Hostname string `json:"hostname"`
		Port     int    `json:"port"`
	} `json:"httpsBaseUrl"`
	SessionID string `json:"sessionId"`
}

type refreshBody struct {
	AccessToken string `json:"accessToken"`
	ExpiresIn   int64  `json:"expiresIn"`
}

// Exchange trades the authorization code received on the login redirect for
// an access token and persists the resulting state.
func (c *Client) Exchange(ctx context.Context, code, redirectURI string) error {
	params := url.Values{
		"code":         {code},
		"redirect_uri": {redirectURI},
	}

	var body exchangeBody
	if err := c.post(ctx, "/proxy/getAccessToken", params, "", &body); err != nil {
		return err
	}

	state := &State{
		AccessToken:     body.AccessToken,
		TokenExpiration: c.now().Add(time.Duration(body.ExpiresIn) * time.Second).UnixMilli(),
		SessionID:       body.SessionID,
	}
	if body.HTTPSBaseURL != nil {
		state.Hostname = body.HTTPSBaseURL.Hostname
		state.Port = body.HTTPSBaseURL.Port
	}

	c.mu.Lock()
	c.state = state
	c.mu.Unlock()

	return c.storage.Save(state)
}

// Refresh obtains a new access token for the held session. Any failure
// means the session is over: state is cleared and the caller must log in
// interactively.
func (c *Client) Refresh(ctx context.Context) error {
	c.mu.Lock()
	if c.state == nil || c.state.SessionID == "" {
		c.mu.Unlock()
		return ErrNotAuthenticated
	}
	sessionID := c.state.SessionID
	c.mu.Unlock()

	params := url.Values{"sessionId": {sessionID}}

	var body refreshBody
	if err := c.post(ctx, "/proxy/refreshAccessToken", params, sessionID, &body); err != nil {
		c.clearState()
		return err
	}

	c.mu.Lock()
	if c.state == nil {
		// Logged out while the refresh was in flight; do not resurrect.
		c.mu.Unlock()
		return ErrNotAuthenticated
	}
	c.state.AccessToken = body.AccessToken
	c.state.TokenExpiration = c.now().Add(time.Duration(body.ExpiresIn) * time.Second).UnixMilli()
	updated := *c.state
	c.mu.Unlock()

	return c.storage.Save(&updated)
}

// StartAutoRefresh launches the periodic check that refreshes the token
// when its remaining lifetime drops below the threshold. It returns a stop
// function; the loop also ends when ctx is done. Refresh failures are not
// retried: the loop stops because the session is gone.
func (c *Client) StartAutoRefresh(ctx context.Context) (stop func()) {
	ctx, cancel := context.WithCancel(ctx)

	go func() {
		ticker := time.NewTicker(c.checkInterval)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				if !c.needsRefresh() {
					continue
				}
				if err := c.Refresh(ctx); err != nil {
					logger.Warn("proactive refresh failed, session ended", map[string]any{
						"error": err.Error(),
					})
					return
				}
			}
		}
	}()

	return cancel
}

func (c *Client) needsRefresh() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.state == nil || c.state.AccessToken == "" {
		return false
	}
	expiry := time.UnixMilli(c.state.TokenExpiration)
	return expiry.Sub(c.now()) < c.refreshThreshold
}

// Logout captures the current state (so the logout can still be cancelled),
// clears all persisted state immediately, and schedules revocation after
// the grace period. With grace zero, revocation happens before Logout
// returns.
func (c *Client) Logout(ctx context.Context, grace time.Duration) error {
	c.mu.Lock()
	if c.state == nil {
		c.mu.Unlock()
		return nil
	}
	holder := *c.state
	c.holder = &holder
	c.state = nil
	c.mu.Unlock()

	if err := c.storage.Clear(); err != nil {
		return err
	}

	if grace <= 0 {
		c.finishLogout(ctx)
		return nil
	}

	c.mu.Lock()
	c.logout = time.AfterFunc(grace, func() {
		// Detached from ctx: once the countdown elapses, revocation is
		// irreversible even if the caller moved on.
		revokeCtx, cancel := context.WithTimeout(context.Background(), defaultRequestTimeout)
		defer cancel()
		c.finishLogout(revokeCtx)
	})
	c.mu.Unlock()

	return nil
}

// CancelLogout aborts a pending logout countdown and restores the captured
// state. It reports whether the cancellation won the race: false means
// revocation already happened (or no logout was pending) and the session
// stays ended.
func (c *Client) CancelLogout() bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.logout == nil || c.holder == nil {
		return false
	}
	if !c.logout.Stop() {
		return false
	}

	c.state = c.holder
	c.holder = nil
	c.logout = nil

	restored := *c.state
	if err := c.storage.Save(&restored); err != nil {
		logger.Error("failed to restore state after cancelled logout", map[string]any{
			"error": err.Error(),
		})
	}

	logger.Info("logout cancelled, session restored", map[string]any{
		"session_id": restored.SessionID,
	})
	return true
}

func (c *Client) finishLogout(ctx context.Context) {
	c.mu.Lock()
	holder := c.holder
	c.holder = nil
	c.logout = nil
	c.mu.Unlock()

	if holder == nil || holder.SessionID == "" {
		return
	}

	if err := c.post(ctx, "/proxy/revoke", nil, holder.SessionID, nil); err != nil {
		// The local state is already gone; revocation is best-effort.
		logger.Warn("revocation request failed", map[string]any{
			"error": err.Error(),
		})
	}
}

func (c *Client) clearState() {
	c.mu.Lock()
	c.state = nil
	c.mu.Unlock()

	if err := c.storage.Clear(); err != nil {
		logger.Error("failed to clear persisted state", map[string]any{
			"error": err.Error(),
		})
	}
}

// post performs a proxy call. The session id, when given, rides along as
// the session cookie the way a browser would send it.
func (c *Client) post(ctx context.Context, path string, params url.Values, sessionID string, out any) error {
	u := c.proxyURL + path
	if len(params) > 0 {
		u += "?" + params.Encode()
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, u, nil)
	if err != nil {
		return fmt.Errorf("client: failed to create request: %w", err)
	}
	if sessionID != "" {
		req.AddCookie(&http.Cookie{Name: session.CookieName, Value: sessionID})
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("client: request failed: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return fmt.Errorf("client: failed to read response: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		var proxyErr struct {
			Error string `json:"error"`
		}
		_ = json.Unmarshal(body, &proxyErr)
		if proxyErr.Error == "" {
			proxyErr.Error = "unexpected status"
		}
		return fmt.Errorf("client: proxy returned %d: %s", resp.StatusCode, proxyErr.Error)
	}

	if out == nil {
		return nil
	}
	if err := json.Unmarshal(body, out); err != nil {
		return fmt.Errorf("client: failed to parse response: %w", err)
	}
	return nil
}
