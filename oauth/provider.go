// Package oauth implements the authorization code flow against external
// identity providers.
package oauth

import (
	"context"

	"golang.org/x/oauth2"
)

// UserInfo is the provider-agnostic identity returned after a code exchange.
type UserInfo struct {
	ID            string // Provider's unique user identifier
	Email         string
	Name          string
	Picture       string
	VerifiedEmail bool
}

// Provider abstracts provider-specific OAuth operations. Adding a provider
// means adding an implementation and registering it.
type Provider interface {
	// Name returns the provider identifier (e.g. "google", "facebook").
	Name() string

	// AuthCodeURL generates the authorization URL for the given state and redirect.
	AuthCodeURL(state, redirectURI string) string

	// Exchange trades an authorization code for tokens.
	Exchange(ctx context.Context, code, redirectURI string) (*oauth2.Token, error)

	// FetchUserInfo retrieves the user's identity using the access token.
	FetchUserInfo(ctx context.Context, token *oauth2.Token) (*UserInfo, error)
}

// Config holds the client credentials for one provider.
type Config struct {
	ClientID     string
	ClientSecret string
	Scopes       []string
}

func (c Config) validate() error {
	if c.ClientID == "" {
		return ErrMissingClientID
	}
	if c.ClientSecret == "" {
		return ErrMissingClientSecret
	}
	return nil
}

func oauthConfig(cfg Config, endpoint oauth2.Endpoint, redirectURI string) *oauth2.Config {
	return &oauth2.Config{
		ClientID:     cfg.ClientID,
		ClientSecret: cfg.ClientSecret,
		RedirectURL:  redirectURI,
		Scopes:       cfg.Scopes,
		Endpoint:     endpoint,
	}
}
