// Package config loads and validates app config from env and an optional
// .env file using Viper. The OAuth client settings are required at startup;
// a missing value is a construction error, never a per-request one.
package config

import (
	"errors"
	"fmt"
	"time"

	"github.com/spf13/viper"
)

// Config holds application configuration loaded from the environment.
type Config struct {
	// AppPort is the port the HTTP server listens on.
	AppPort string `mapstructure:"APP_PORT"`

	// ClientID is the confidential OAuth client id registered with EEN.
	ClientID string `mapstructure:"EEN_CLIENT_ID"`
	// ClientSecret is the confidential OAuth client secret.
	ClientSecret string `mapstructure:"EEN_CLIENT_SECRET"`
	// RedirectURI must exactly match the redirect URI registered with EEN.
	RedirectURI string `mapstructure:"EEN_REDIRECT_URI"`
	// AuthURL is the provider's authorization endpoint.
	AuthURL string `mapstructure:"EEN_AUTH_URL"`
	// TokenURL is the provider's token endpoint.
	TokenURL string `mapstructure:"EEN_TOKEN_URL"`
	// RevokeURL is the provider's revocation endpoint. Optional; when empty
	// logout only deletes the local session.
	RevokeURL string `mapstructure:"EEN_REVOKE_URL"`
	// Scope is the scope string requested on every token exchange.
	Scope string `mapstructure:"EEN_SCOPE"`

	// UpstreamTimeout bounds every round trip to the provider.
	UpstreamTimeout time.Duration `mapstructure:"UPSTREAM_TIMEOUT"`
	// MaxSessionTTL caps session lifetime regardless of the provider's
	// expires_in. Zero means provider-driven only.
	MaxSessionTTL time.Duration `mapstructure:"MAX_SESSION_TTL"`

	// RedisAddr selects the Redis session store when set; empty selects the
	// in-memory store (development only, sessions die with the process).
	RedisAddr     string `mapstructure:"REDIS_ADDR"`
	RedisPassword string `mapstructure:"REDIS_PASSWORD"`

	// InsecureCookies disables the Secure cookie attribute for plain-http
	// local development.
	InsecureCookies bool `mapstructure:"INSECURE_COOKIES"`
}

// Load reads .env (if present), then builds and validates Config from the
// environment. Env vars override .env. Missing .env is ignored.
func Load() (*Config, error) {
	v := viper.New()

	v.SetConfigFile(".env")
	v.SetConfigType("env")
	_ = v.ReadInConfig() // ignore ErrConfigFileNotFound

	v.AutomaticEnv()

	// Every key needs a default (or explicit bind) for AutomaticEnv to
	// reach Unmarshal.
	v.SetDefault("APP_PORT", "3333")
	v.SetDefault("EEN_CLIENT_ID", "")
	v.SetDefault("EEN_CLIENT_SECRET", "")
	v.SetDefault("EEN_REDIRECT_URI", "")
	v.SetDefault("EEN_REVOKE_URL", "")
	v.SetDefault("REDIS_PASSWORD", "")
	v.SetDefault("EEN_AUTH_URL", "https://auth.eagleeyenetworks.com/oauth2/authorize")
	v.SetDefault("EEN_TOKEN_URL", "https://auth.eagleeyenetworks.com/oauth2/token")
	v.SetDefault("EEN_SCOPE", "vms.all")
	v.SetDefault("UPSTREAM_TIMEOUT", "15s")
	v.SetDefault("MAX_SESSION_TTL", "0")
	v.SetDefault("REDIS_ADDR", "")
	v.SetDefault("INSECURE_COOKIES", false)

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("config: unmarshal: %w", err)
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

func (c *Config) validate() error {
	required := map[string]string{
		"EEN_CLIENT_ID":     c.ClientID,
		"EEN_CLIENT_SECRET": c.ClientSecret,
		"EEN_REDIRECT_URI":  c.RedirectURI,
		"EEN_AUTH_URL":      c.AuthURL,
		"EEN_TOKEN_URL":     c.TokenURL,
		"EEN_SCOPE":         c.Scope,
	}
	for name, val := range required {
		if val == "" {
			return fmt.Errorf("config: %s must be set", name)
		}
	}

	if c.UpstreamTimeout <= 0 {
		return errors.New("config: UPSTREAM_TIMEOUT must be positive")
	}
	if c.MaxSessionTTL < 0 {
		return errors.New("config: MAX_SESSION_TTL must not be negative")
	}

	return nil
}
