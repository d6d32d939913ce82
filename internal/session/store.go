package session

import (
	"context"
	"time"
)

// Session maps an opaque session id to the refresh token held on behalf of
// the browser. The refresh token never leaves the server.
type Session struct {
	SessionID    string    `json:"session_id"`
	RefreshToken string    `json:"refresh_token"`
	ExpiresAt    time.Time `json:"expires_at"` // absolute validity boundary
}

// Expired reports whether the session is past its validity boundary.
func (s *Session) Expired(now time.Time) bool {
	return now.After(s.ExpiresAt)
}

// Store defines how sessions are stored and retrieved. Implementations must
// be safe for concurrent use; Get returns (nil, nil) for unknown or expired
// ids so callers can treat both uniformly.
type Store interface {
	Create(ctx context.Context, s Session) error
	Get(ctx context.Context, sessionID string) (*Session, error)
	Update(ctx context.Context, s Session) error
	Delete(ctx context.Context, sessionID string) error
}
