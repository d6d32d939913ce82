package client

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/klaushofrichter/een-token-proxy/internal/session"
)

// stubProxy fakes the token-proxy HTTP surface.
type stubProxy struct {
	mu          sync.Mutex
	refreshErr  int // non-zero: refresh answers this status
	revoked     []string
	refreshed   int
	accessToken string
}

func (s *stubProxy) handler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		s.mu.Lock()
		defer s.mu.Unlock()

		w.Header().Set("Content-Type", "application/json")

		switch r.URL.Path {
		case "/proxy/getAccessToken":
			if r.URL.Query().Get("code") == "" {
				w.WriteHeader(http.StatusBadRequest)
				_, _ = w.Write([]byte(`{"error":"invalid_request"}`))
				return
			}
			_ = json.NewEncoder(w).Encode(map[string]any{
				"accessToken":  "A1",
				"expiresIn":    3600,
				"httpsBaseUrl": map[string]any{"hostname": "h", "port": 443},
				"sessionId":    "11111111-2222-3333-4444-555555555555",
			})

		case "/proxy/refreshAccessToken":
			if s.refreshErr != 0 {
				w.WriteHeader(s.refreshErr)
				_, _ = w.Write([]byte(`{"error":"session_invalid"}`))
				return
			}
			s.refreshed++
			token := s.accessToken
			if token == "" {
				token = "A2"
			}
			_ = json.NewEncoder(w).Encode(map[string]any{
				"accessToken": token,
				"expiresIn":   3600,
			})

		case "/proxy/revoke":
			if cookie, err := r.Cookie(session.CookieName); err == nil {
				s.revoked = append(s.revoked, cookie.Value)
			}
			_ = json.NewEncoder(w).Encode(map[string]any{"status": "revoked"})

		default:
			w.WriteHeader(http.StatusNotFound)
		}
	}
}

func newFixture(t *testing.T) (*Client, *stubProxy, *MemoryStorage) {
	t.Helper()

	proxy := &stubProxy{}
	srv := httptest.NewServer(proxy.handler())
	t.Cleanup(srv.Close)

	storage := NewMemoryStorage()
	c, err := New(srv.URL, storage)
	require.NoError(t, err)

	return c, proxy, storage
}

func TestExchangePersistsState(t *testing.T) {
	c, _, storage := newFixture(t)

	require.False(t, c.IsAuthenticated())
	require.NoError(t, c.Exchange(context.Background(), "abc", "https://app/cb"))

	assert.True(t, c.IsAuthenticated())
	assert.Equal(t, "A1", c.AccessToken())

	state, err := storage.Load()
	require.NoError(t, err)
	require.NotNil(t, state)
	assert.Equal(t, "11111111-2222-3333-4444-555555555555", state.SessionID)
	assert.Equal(t, "h", state.Hostname)
	assert.Equal(t, 443, state.Port)

	wantExpiry := time.Now().Add(time.Hour).UnixMilli()
	assert.InDelta(t, wantExpiry, state.TokenExpiration, float64(5*time.Second.Milliseconds()))
}

func TestExchangeFailureLeavesLoggedOut(t *testing.T) {
	c, _, storage := newFixture(t)

	err := c.Exchange(context.Background(), "", "https://app/cb")
	require.Error(t, err)

	assert.False(t, c.IsAuthenticated())
	state, err := storage.Load()
	require.NoError(t, err)
	assert.Nil(t, state)
}

func TestStateSurvivesRestart(t *testing.T) {
	proxy := &stubProxy{}
	srv := httptest.NewServer(proxy.handler())
	t.Cleanup(srv.Close)

	path := filepath.Join(t.TempDir(), "auth.json")
	storage := NewFileStorage(path)

	c, err := New(srv.URL, storage)
	require.NoError(t, err)
	require.NoError(t, c.Exchange(context.Background(), "abc", "https://app/cb"))

	// A fresh client against the same file picks up the session.
	reborn, err := New(srv.URL, NewFileStorage(path))
	require.NoError(t, err)
	assert.True(t, reborn.IsAuthenticated())
	assert.Equal(t, "A1", reborn.AccessToken())
}

func TestRefreshUpdatesToken(t *testing.T) {
	c, proxy, storage := newFixture(t)
	require.NoError(t, c.Exchange(context.Background(), "abc", "https://app/cb"))

	require.NoError(t, c.Refresh(context.Background()))

	assert.Equal(t, "A2", c.AccessToken())
	assert.Equal(t, 1, proxy.refreshed)

	state, err := storage.Load()
	require.NoError(t, err)
	require.NotNil(t, state)
	assert.Equal(t, "A2", state.AccessToken)
	assert.Equal(t, "11111111-2222-3333-4444-555555555555", state.SessionID,
		"the session id is stable across refreshes")
}

func TestRefreshFailureLogsOut(t *testing.T) {
	c, proxy, storage := newFixture(t)
	require.NoError(t, c.Exchange(context.Background(), "abc", "https://app/cb"))

	proxy.mu.Lock()
	proxy.refreshErr = http.StatusBadRequest
	proxy.mu.Unlock()

	err := c.Refresh(context.Background())
	require.Error(t, err)

	assert.False(t, c.IsAuthenticated(), "a failed refresh ends the session")
	state, err := storage.Load()
	require.NoError(t, err)
	assert.Nil(t, state, "persisted state is cleared")
}

func TestRefreshWithoutSession(t *testing.T) {
	c, _, _ := newFixture(t)
	assert.ErrorIs(t, c.Refresh(context.Background()), ErrNotAuthenticated)
}

func TestAutoRefreshTriggersNearExpiry(t *testing.T) {
	proxy := &stubProxy{}
	srv := httptest.NewServer(proxy.handler())
	t.Cleanup(srv.Close)

	c, err := New(srv.URL, NewMemoryStorage(),
		WithCheckInterval(10*time.Millisecond),
		WithRefreshThreshold(2*time.Hour), // always under threshold
	)
	require.NoError(t, err)

	require.NoError(t, c.Exchange(context.Background(), "abc", "https://app/cb"))

	stop := c.StartAutoRefresh(context.Background())
	defer stop()

	assert.Eventually(t, func() bool {
		proxy.mu.Lock()
		defer proxy.mu.Unlock()
		return proxy.refreshed >= 1
	}, time.Second, 10*time.Millisecond)
}

func TestAutoRefreshIdleWhenTokenFresh(t *testing.T) {
	proxy := &stubProxy{}
	srv := httptest.NewServer(proxy.handler())
	t.Cleanup(srv.Close)

	c, err := New(srv.URL, NewMemoryStorage(),
		WithCheckInterval(10*time.Millisecond),
		WithRefreshThreshold(time.Minute), // 1h token stays above threshold
	)
	require.NoError(t, err)

	require.NoError(t, c.Exchange(context.Background(), "abc", "https://app/cb"))

	stop := c.StartAutoRefresh(context.Background())
	defer stop()

	time.Sleep(100 * time.Millisecond)

	proxy.mu.Lock()
	defer proxy.mu.Unlock()
	assert.Zero(t, proxy.refreshed, "a fresh token must not be refreshed")
}

func TestLogoutImmediateRevokes(t *testing.T) {
	c, proxy, storage := newFixture(t)
	require.NoError(t, c.Exchange(context.Background(), "abc", "https://app/cb"))

	require.NoError(t, c.Logout(context.Background(), 0))

	assert.False(t, c.IsAuthenticated())
	state, err := storage.Load()
	require.NoError(t, err)
	assert.Nil(t, state)

	proxy.mu.Lock()
	defer proxy.mu.Unlock()
	require.Len(t, proxy.revoked, 1)
	assert.Equal(t, "11111111-2222-3333-4444-555555555555", proxy.revoked[0])
}

func TestLogoutGraceThenRevoke(t *testing.T) {
	c, proxy, _ := newFixture(t)
	require.NoError(t, c.Exchange(context.Background(), "abc", "https://app/cb"))

	require.NoError(t, c.Logout(context.Background(), 20*time.Millisecond))

	// State is cleared immediately, before the countdown elapses.
	assert.False(t, c.IsAuthenticated())
	proxy.mu.Lock()
	assert.Empty(t, proxy.revoked, "revocation waits for the grace period")
	proxy.mu.Unlock()

	assert.Eventually(t, func() bool {
		proxy.mu.Lock()
		defer proxy.mu.Unlock()
		return len(proxy.revoked) == 1
	}, time.Second, 10*time.Millisecond)
}

func TestCancelLogoutRestoresState(t *testing.T) {
	c, proxy, storage := newFixture(t)
	require.NoError(t, c.Exchange(context.Background(), "abc", "https://app/cb"))

	require.NoError(t, c.Logout(context.Background(), time.Hour))
	require.False(t, c.IsAuthenticated())

	require.True(t, c.CancelLogout())

	assert.True(t, c.IsAuthenticated(), "cancelled logout restores the session")
	assert.Equal(t, "A1", c.AccessToken())

	state, err := storage.Load()
	require.NoError(t, err)
	require.NotNil(t, state, "restored state is persisted again")
	assert.Equal(t, "11111111-2222-3333-4444-555555555555", state.SessionID)

	time.Sleep(50 * time.Millisecond)
	proxy.mu.Lock()
	defer proxy.mu.Unlock()
	assert.Empty(t, proxy.revoked, "cancelled logout must not revoke")
}

func TestCancelLogoutAfterRevocationFails(t *testing.T) {
	c, proxy, _ := newFixture(t)
	require.NoError(t, c.Exchange(context.Background(), "abc", "https://app/cb"))

	require.NoError(t, c.Logout(context.Background(), 10*time.Millisecond))

	require.Eventually(t, func() bool {
		proxy.mu.Lock()
		defer proxy.mu.Unlock()
		return len(proxy.revoked) == 1
	}, time.Second, 5*time.Millisecond)

	assert.False(t, c.CancelLogout(), "revocation already happened; nothing to restore")
	assert.False(t, c.IsAuthenticated(), "a revoked session must not be resurrected")
}

func TestCancelLogoutWithoutPending(t *testing.T) {
	c, _, _ := newFixture(t)
	assert.False(t, c.CancelLogout())
}

func TestFileStorageRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "auth.json")
	fs := NewFileStorage(path)

	state, err := fs.Load()
	require.NoError(t, err)
	assert.Nil(t, state, "empty storage loads as nil")

	want := &State{
		AccessToken:     "A1",
		TokenExpiration: time.Now().Add(time.Hour).UnixMilli(),
		SessionID:       "sid",
		Hostname:        "h",
		Port:            443,
	}
	require.NoError(t, fs.Save(want))

	got, err := fs.Load()
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, want, got)

	require.NoError(t, fs.Clear())
	require.NoError(t, fs.Clear(), "clearing twice is fine")

	got, err = fs.Load()
	require.NoError(t, err)
	assert.Nil(t, got)
}
