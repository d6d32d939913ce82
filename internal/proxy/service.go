// Package proxy implements the token-exchange/refresh service: it swaps
// authorization codes for tokens, keeps refresh tokens server-side keyed by
// an opaque session id, and hands the browser only the access token.
//
// The service itself is transport-agnostic; Handler (gin) and EdgeHandler
// (plain net/http) are thin adapters over it, so the two deployment targets
// cannot drift apart behaviorally.
package proxy

import (
	"context"
	"errors"
	"time"

	"github.com/klaushofrichter/een-token-proxy/internal/logger"
	"github.com/klaushofrichter/een-token-proxy/internal/session"
	"github.com/klaushofrichter/een-token-proxy/internal/upstream"
)

// TokenProvider is the slice of the upstream client the service needs.
type TokenProvider interface {
	ExchangeCode(ctx context.Context, code string) (*upstream.Tokens, error)
	Refresh(ctx context.Context, refreshToken string) (*upstream.Tokens, error)
	Revoke(ctx context.Context, refreshToken string) error
}

// Service owns the session lifecycle. One instance is shared by all
// transport adapters.
type Service struct {
	store       session.Store
	provider    TokenProvider
	redirectURI string
	maxTTL      time.Duration
	locks       *sessionLocks
	now         func() time.Time
}

// ServiceOption configures a Service.
type ServiceOption func(*Service)

// WithMaxSessionTTL caps session lifetime regardless of the provider's
// expires_in. Zero means provider-driven only.
func WithMaxSessionTTL(d time.Duration) ServiceOption {
	return func(s *Service) {
		s.maxTTL = d
	}
}

// WithClock overrides the time source. Intended for tests.
func WithClock(now func() time.Time) ServiceOption {
	return func(s *Service) {
		s.now = now
	}
}

// NewService wires the session store and upstream provider together.
// redirectURI is the value registered with the provider; exchange requests
// must carry exactly this value.
func NewService(
	store session.Store,
	provider TokenProvider,
	redirectURI string,
	opts ...ServiceOption,
) *Service {
	s := &Service{
		store:       store,
		provider:    provider,
		redirectURI: redirectURI,
		locks:       newSessionLocks(),
		now:         time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// ExchangeResult is the outcome of a successful code exchange.
type ExchangeResult struct {
	AccessToken  string
	ExpiresIn    int64
	HTTPSBaseURL *upstream.BaseURL
	SessionID    string
	ExpiresAt    time.Time
}

// RefreshResult is the outcome of a successful refresh.
type RefreshResult struct {
	AccessToken string
	ExpiresIn   int64
	ExpiresAt   time.Time
}

// Exchange swaps an authorization code for tokens and creates a session
// holding the refresh token. Codes are single-use, so failures surface
// without retry and never create a session.
func (s *Service) Exchange(ctx context.Context, code, redirectURI string) (*ExchangeResult, error) {
	if code == "" {
		return nil, ErrMissingCode
	}
	if redirectURI == "" {
		return nil, ErrMissingRedirectURI
	}
	if redirectURI != s.redirectURI {
		return nil, ErrRedirectURIMismatch
	}

	tokens, err := s.provider.ExchangeCode(ctx, code)
	if err != nil {
		return nil, err
	}

	sessionID := session.GenerateID()
	expiresAt := s.expiry(tokens.ExpiresIn)

	if err := s.store.Create(ctx, session.Session{
		SessionID:    sessionID,
		RefreshToken: tokens.RefreshToken,
		ExpiresAt:    expiresAt,
	}); err != nil {
		return nil, err
	}

	logger.Info("session created", map[string]any{
		"session_id": sessionID,
		"expires_at": expiresAt,
	})

	return &ExchangeResult{
		AccessToken:  tokens.AccessToken,
		ExpiresIn:    tokens.ExpiresIn,
		HTTPSBaseURL: tokens.HTTPSBaseURL,
		SessionID:    sessionID,
		ExpiresAt:    expiresAt,
	}, nil
}

// Refresh exchanges the stored refresh token for a new access token and
// rotates the stored value in place. Refreshes for the same session are
// serialized; a provider rejection invalidates the session so the client
// must log in again.
func (s *Service) Refresh(ctx context.Context, sessionID string) (*RefreshResult, error) {
	if sessionID == "" {
		return nil, ErrMissingSession
	}

	release := s.locks.acquire(sessionID)
	defer release()

	sess, err := s.store.Get(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	if sess == nil || sess.Expired(s.now()) {
		// The expiry boundary is authoritative: never trust a stale refresh
		// token with the provider.
		_ = s.store.Delete(ctx, sessionID)
		return nil, ErrSessionInvalid
	}

	tokens, err := s.provider.Refresh(ctx, sess.RefreshToken)
	if err != nil {
		var authErr *upstream.AuthError
		if errors.As(err, &authErr) || errors.Is(err, upstream.ErrMalformedResponse) {
			// The provider single-uses refresh tokens; once it rejects one
			// the session cannot recover.
			_ = s.store.Delete(ctx, sessionID)
			logger.Warn("session invalidated after failed refresh", map[string]any{
				"session_id": sessionID,
			})
		}
		return nil, err
	}

	expiresAt := s.expiry(tokens.ExpiresIn)

	if err := s.store.Update(ctx, session.Session{
		SessionID:    sessionID,
		RefreshToken: tokens.RefreshToken,
		ExpiresAt:    expiresAt,
	}); err != nil {
		return nil, err
	}

	return &RefreshResult{
		AccessToken: tokens.AccessToken,
		ExpiresIn:   tokens.ExpiresIn,
		ExpiresAt:   expiresAt,
	}, nil
}

// Revoke deletes the session unconditionally. Revoking an unknown or
// already-revoked session succeeds; the upstream revocation call, when
// configured, is best-effort.
func (s *Service) Revoke(ctx context.Context, sessionID string) error {
	if sessionID == "" {
		return nil
	}

	sess, err := s.store.Get(ctx, sessionID)
	if err != nil {
		logger.Warn("revoke: session lookup failed", map[string]any{
			"error": err.Error(),
		})
	}

	if err := s.store.Delete(ctx, sessionID); err != nil {
		logger.Warn("revoke: session delete failed", map[string]any{
			"error": err.Error(),
		})
	}

	if sess != nil {
		if err := s.provider.Revoke(ctx, sess.RefreshToken); err != nil {
			// The local session is already gone; upstream failures are
			// warnings, not errors.
			logger.Warn("revoke: upstream revocation failed", map[string]any{
				"error": err.Error(),
			})
		}
	}

	logger.Info("session revoked", map[string]any{"session_id": sessionID})
	return nil
}

func (s *Service) expiry(expiresIn int64) time.Time {
	ttl := time.Duration(expiresIn) * time.Second
	if s.maxTTL > 0 && ttl > s.maxTTL {
		ttl = s.maxTTL
	}
	return s.now().Add(ttl)
}
