package app

import (
	"net/http"

	"github.com/klaushofrichter/een-token-proxy/internal/config"
	"github.com/klaushofrichter/een-token-proxy/internal/logger"
	"github.com/klaushofrichter/een-token-proxy/internal/redis"
	"github.com/klaushofrichter/een-token-proxy/internal/session"
)

// setupStore picks the session store: Redis when configured, otherwise the
// in-memory store (development only). The returned cleanup releases
// whichever backend was chosen.
func setupStore(cfg *config.Config) (session.Store, func() error, error) {
	if cfg.RedisAddr == "" {
		logger.Warn("using in-memory session store; sessions will not survive a restart", nil)

		store := session.NewMemoryStore()
		return store, func() error {
			store.Close()
			return nil
		}, nil
	}

	client, err := redis.New(cfg.RedisAddr, cfg.RedisPassword)
	if err != nil {
		return nil, nil, err
	}

	logger.Info("redis session store ready", map[string]any{"addr": cfg.RedisAddr})

	return session.NewRedisStore(client.Client), client.Close, nil
}

func cookieOptions(cfg *config.Config) session.CookieOptions {
	return session.CookieOptions{
		Path:     "/",
		HttpOnly: true,
		Secure:   !cfg.InsecureCookies,
		SameSite: http.SameSiteLaxMode,
	}
}
