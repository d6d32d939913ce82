package proxy

import (
	"encoding/json"
	"net/http"

	"github.com/klaushofrichter/een-token-proxy/internal/logger"
	"github.com/klaushofrichter/een-token-proxy/internal/session"
)

// EdgeHandler is the plain net/http transport adapter for serverless-style
// hosting, where the platform routes one function per path and a full
// framework is unwanted. It delegates to the same Service as the gin
// adapter, so both deployments share one contract.
type EdgeHandler struct {
	svc     *Service
	cookies session.CookieOptions
}

// NewEdgeHandler creates the plain-http adapter.
func NewEdgeHandler(svc *Service, cookies session.CookieOptions) *EdgeHandler {
	return &EdgeHandler{
		svc:     svc,
		cookies: cookies,
	}
}

// Mux returns a ServeMux with the three proxy endpoints mounted.
func (h *EdgeHandler) Mux() *http.ServeMux {
	mux := http.NewServeMux()
	mux.HandleFunc("POST /proxy/getAccessToken", h.GetAccessToken)
	mux.HandleFunc("POST /proxy/refreshAccessToken", h.RefreshAccessToken)
	mux.HandleFunc("POST /proxy/revoke", h.Revoke)
	return mux
}

// GetAccessToken handles the authorization-code exchange.
func (h *EdgeHandler) GetAccessToken(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()

	if !stateMatches(r, q.Get("state")) {
		writeError(w, ErrStateMismatch)
		return
	}

	res, err := h.svc.Exchange(r.Context(), q.Get("code"), q.Get("redirect_uri"))
	if err != nil {
		logger.Warn("token exchange failed", map[string]any{"error": err.Error()})
		writeError(w, err)
		return
	}

	session.SetCookie(w, res.SessionID, res.ExpiresAt, h.cookies)

	writeJSON(w, http.StatusOK, exchangeResponse{
		AccessToken:  res.AccessToken,
		ExpiresIn:    res.ExpiresIn,
		HTTPSBaseURL: res.HTTPSBaseURL,
		SessionID:    res.SessionID,
	})
}

// RefreshAccessToken handles the refresh-token exchange.
func (h *EdgeHandler) RefreshAccessToken(w http.ResponseWriter, r *http.Request) {
	sessionID := r.URL.Query().Get("sessionId")
	if sessionID == "" {
		if cookie, err := r.Cookie(session.CookieName); err == nil {
			sessionID = cookie.Value
		}
	}

	res, err := h.svc.Refresh(r.Context(), sessionID)
	if err != nil {
		logger.Warn("token refresh failed", map[string]any{
			"session_id": sessionID,
			"error":      err.Error(),
		})
		writeError(w, err)
		return
	}

	session.SetCookie(w, sessionID, res.ExpiresAt, h.cookies)

	writeJSON(w, http.StatusOK, refreshResponse{
		AccessToken: res.AccessToken,
		ExpiresIn:   res.ExpiresIn,
	})
}

// Revoke handles logout. Always succeeds.
func (h *EdgeHandler) Revoke(w http.ResponseWriter, r *http.Request) {
	var sessionID string
	if cookie, err := r.Cookie(session.CookieName); err == nil {
		sessionID = cookie.Value
	}

	_ = h.svc.Revoke(r.Context(), sessionID)

	session.ClearCookie(w, h.cookies)
	writeJSON(w, http.StatusOK, statusResponse{Status: "revoked"})
}

func writeError(w http.ResponseWriter, err error) {
	status, body := mapError(err)
	writeJSON(w, status, body)
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		logger.Error("failed to encode response", map[string]any{"error": err.Error()})
	}
}
