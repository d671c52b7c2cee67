package config

import (
	"fmt"

	"github.com/caarlos0/env/v11"
)

type Config interface {
	EnvConfig
	CorsConfig
	TokenConfig
	OAuthConfig
	StoreConfig
	MailConfig
}

type mainConfig struct {
	EnvVars
	Cors
	Token
	OAuth
	Store
	Mail
}

// New reads the configuration from the process environment.
func New() (Config, error) {
	var cfg mainConfig
	if err := env.Parse(&cfg); err != nil {
		return nil, fmt.Errorf("parse env: %w", err)
	}
	return finish(cfg)
}

// FromMap reads the configuration from environ instead of the process
// environment.
func FromMap(environ map[string]string) (Config, error) {
	var cfg mainConfig
	if err := env.ParseWithOptions(&cfg, env.Options{Environment: environ}); err != nil {
		return nil, fmt.Errorf("parse env: %w", err)
	}
	return finish(cfg)
}

func finish(cfg mainConfig) (Config, error) {
	for _, validate := range []func() error{
		cfg.Store.validate,
		cfg.Mail.validate,
		cfg.OAuth.validate,
	} {
		if err := validate(); err != nil {
			return nil, fmt.Errorf("invalid config: %w", err)
		}
	}
	return cfg, nil
}
