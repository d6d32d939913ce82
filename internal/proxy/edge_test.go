package proxy

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/klaushofrichter/een-token-proxy/internal/session"
	"github.com/klaushofrichter/een-token-proxy/internal/upstream"
)

// The edge adapter must behave exactly like the gin adapter: both are thin
// shells over the same Service.

func newEdgeFixture(t *testing.T, provider TokenProvider) (*http.ServeMux, *session.MemoryStore) {
	t.Helper()

	store := session.NewMemoryStore(session.WithSweepInterval(time.Hour))
	t.Cleanup(store.Close)

	svc := NewService(store, provider, registeredRedirect)
	edge := NewEdgeHandler(svc, session.CookieOptions{Secure: true})

	return edge.Mux(), store
}

func TestEdgeExchangeAndRefresh(t *testing.T) {
	provider := &stubTokenProvider{
		exchangeFn: func(code string) (*upstream.Tokens, error) {
			assert.Equal(t, "abc", code)
			return okTokens("A1", "R1"), nil
		},
		refreshFn: func(rt string) (*upstream.Tokens, error) {
			assert.Equal(t, "R1", rt)
			return &upstream.Tokens{AccessToken: "A2", RefreshToken: "R2", ExpiresIn: 3600}, nil
		},
	}
	mux, _ := newEdgeFixture(t, provider)

	req := httptest.NewRequest(http.MethodPost,
		"/proxy/getAccessToken?code=abc&redirect_uri=https://app/cb", nil)
	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	var exch struct {
		AccessToken string `json:"accessToken"`
		SessionID   string `json:"sessionId"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &exch))
	assert.Equal(t, "A1", exch.AccessToken)
	assert.Len(t, exch.SessionID, 36)

	req = httptest.NewRequest(http.MethodPost,
		"/proxy/refreshAccessToken?sessionId="+exch.SessionID, nil)
	rec = httptest.NewRecorder()
	mux.ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	var refr struct {
		AccessToken string `json:"accessToken"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &refr))
	assert.Equal(t, "A2", refr.AccessToken)
}

func TestEdgeMissingCode(t *testing.T) {
	mux, store := newEdgeFixture(t, &stubTokenProvider{})

	req := httptest.NewRequest(http.MethodPost, "/proxy/getAccessToken", nil)
	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, 0, store.Len())

	var body map[string]string
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "invalid_request", body["error"])
}

func TestEdgeRevokeIdempotent(t *testing.T) {
	mux, _ := newEdgeFixture(t, &stubTokenProvider{})

	req := httptest.NewRequest(http.MethodPost, "/proxy/revoke", nil)
	req.AddCookie(&http.Cookie{Name: session.CookieName, Value: "gone"})
	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestEdgeTimeoutMapsTo504(t *testing.T) {
	provider := &stubTokenProvider{
		exchangeFn: func(string) (*upstream.Tokens, error) {
			return nil, upstream.ErrTimeout
		},
	}
	mux, _ := newEdgeFixture(t, provider)

	req := httptest.NewRequest(http.MethodPost,
		"/proxy/getAccessToken?code=abc&redirect_uri=https://app/cb", nil)
	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusGatewayTimeout, rec.Code)

	var body map[string]string
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "upstream_timeout", body["error"])
}

// Guard: the edge fixture's provider stub must satisfy the same interface
// the service consumes, or the adapters could diverge silently.
var _ TokenProvider = (*stubTokenProvider)(nil)

func TestEdgeMalformedUpstreamMapsTo500(t *testing.T) {
	provider := &stubTokenProvider{
		exchangeFn: func(string) (*upstream.Tokens, error) {
			return nil, upstream.ErrMalformedResponse
		},
	}
	mux, store := newEdgeFixture(t, provider)

	req := httptest.NewRequest(http.MethodPost,
		"/proxy/getAccessToken?code=abc&redirect_uri=https://app/cb", nil)
	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.Equal(t, 0, store.Len())
}
