package proxy

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/klaushofrichter/een-token-proxy/internal/logger"
	"github.com/klaushofrichter/een-token-proxy/internal/session"
)

// AuthURLFunc builds the provider authorization URL for a state value.
type AuthURLFunc func(state string) string

// Handler is the gin transport adapter used by the development server.
type Handler struct {
	svc     *Service
	authURL AuthURLFunc
	cookies session.CookieOptions
}

// NewHandler creates the gin adapter. authURL may be nil when the hosting
// environment does not expose the login redirect.
func NewHandler(svc *Service, authURL AuthURLFunc, cookies session.CookieOptions) *Handler {
	return &Handler{
		svc:     svc,
		authURL: authURL,
		cookies: cookies,
	}
}

// RegisterRoutes attaches the proxy endpoints to the router.
func (h *Handler) RegisterRoutes(r *gin.Engine) {
	if h.authURL != nil {
		r.GET("/proxy/login", h.login)
	}
	r.POST("/proxy/getAccessToken", h.getAccessToken)
	r.POST("/proxy/refreshAccessToken", h.refreshAccessToken)
	r.POST("/proxy/revoke", h.revoke)
}

func (h *Handler) login(c *gin.Context) {
	state := newStateCookie(c.Writer, h.cookies.Secure)
	c.Redirect(http.StatusFound, h.authURL(state))
}

func (h *Handler) getAccessToken(c *gin.Context) {
	if !stateMatches(c.Request, c.Query("state")) {
		status, body := mapError(ErrStateMismatch)
		c.JSON(status, body)
		return
	}

	res, err := h.svc.Exchange(
		c.Request.Context(),
		c.Query("code"),
		c.Query("redirect_uri"),
	)
	if err != nil {
		status, body := mapError(err)
		logger.Warn("token exchange failed", map[string]any{
			"status": status,
			"error":  err.Error(),
		})
		c.JSON(status, body)
		return
	}

	session.SetCookie(c.Writer, res.SessionID, res.ExpiresAt, h.cookies)

	c.JSON(http.StatusOK, exchangeResponse{
		AccessToken:  res.AccessToken,
		ExpiresIn:    res.ExpiresIn,
		HTTPSBaseURL: res.HTTPSBaseURL,
		SessionID:    res.SessionID,
	})
}

func (h *Handler) refreshAccessToken(c *gin.Context) {
	sessionID := c.Query("sessionId")
	if sessionID == "" {
		if cookie, err := c.Request.Cookie(session.CookieName); err == nil {
			sessionID = cookie.Value
		}
	}

	res, err := h.svc.Refresh(c.Request.Context(), sessionID)
	if err != nil {
		status, body := mapError(err)
		logger.Warn("token refresh failed", map[string]any{
			"status":     status,
			"session_id": sessionID,
			"error":      err.Error(),
		})
		c.JSON(status, body)
		return
	}

	session.SetCookie(c.Writer, sessionID, res.ExpiresAt, h.cookies)

	c.JSON(http.StatusOK, refreshResponse{
		AccessToken: res.AccessToken,
		ExpiresIn:   res.ExpiresIn,
	})
}

func (h *Handler) revoke(c *gin.Context) {
	// Cookie only: the id must not end up in access logs via the query
	// string.
	var sessionID string
	if cookie, err := c.Request.Cookie(session.CookieName); err == nil {
		sessionID = cookie.Value
	}

	_ = h.svc.Revoke(c.Request.Context(), sessionID)

	session.ClearCookie(c.Writer, h.cookies)
	c.JSON(http.StatusOK, statusResponse{Status: "revoked"})
}
