// Package app wires configuration, the session store, the upstream provider
// and the HTTP transport into a runnable server.
package app

import (
	"context"
	"net/http"

	"github.com/klaushofrichter/een-token-proxy/internal/config"
)

type App struct {
	httpServer *http.Server
	cleanup    func() error
}

func New(cfg *config.Config) (*App, error) {
	router, cleanup, err := setupHTTP(cfg)
	if err != nil {
		return nil, err
	}

	server := &http.Server{
		Addr:    ":" + cfg.AppPort,
		Handler: router,
	}

	return &App{
		httpServer: server,
		cleanup:    cleanup,
	}, nil
}

func (a *App) Run() error {
	return a.httpServer.ListenAndServe()
}

func (a *App) Shutdown(ctx context.Context) error {
	if err := a.httpServer.Shutdown(ctx); err != nil {
		return err
	}
	if a.cleanup != nil {
		return a.cleanup()
	}
	return nil
}
