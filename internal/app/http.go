package app

import (
	"github.com/gin-gonic/gin"

	"github.com/klaushofrichter/een-token-proxy/internal/config"
	"github.com/klaushofrichter/een-token-proxy/internal/proxy"
	"github.com/klaushofrichter/een-token-proxy/internal/upstream"
)

func setupHTTP(cfg *config.Config) (*gin.Engine, func() error, error) {
	store, cleanup, err := setupStore(cfg)
	if err != nil {
		return nil, nil, err
	}

	provider, err := upstream.New(upstream.Config{
		ClientID:     cfg.ClientID,
		ClientSecret: cfg.ClientSecret,
		RedirectURI:  cfg.RedirectURI,
		AuthURL:      cfg.AuthURL,
		TokenURL:     cfg.TokenURL,
		RevokeURL:    cfg.RevokeURL,
		Scope:        cfg.Scope,
		Timeout:      cfg.UpstreamTimeout,
	})
	if err != nil {
		_ = cleanup()
		return nil, nil, err
	}

	svc := proxy.NewService(
		store,
		provider,
		cfg.RedirectURI,
		proxy.WithMaxSessionTTL(cfg.MaxSessionTTL),
	)

	handler := proxy.NewHandler(svc, provider.AuthorizationURL, cookieOptions(cfg))

	router := gin.New()
	router.Use(gin.Recovery())

	handler.RegisterRoutes(router)

	router.GET("/health", func(c *gin.Context) {
		c.JSON(200, gin.H{"status": "ok"})
	})

	return router, cleanup, nil
}
