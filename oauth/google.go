package oauth

import (
	"context"
	"errors"
	"fmt"

	"github.com/coreos/go-oidc/v3/oidc"
	"golang.org/x/oauth2"
	googleOAuth "golang.org/x/oauth2/google"
)

const (
	// GoogleProviderName is the identifier for Google OAuth provider.
	GoogleProviderName = "google"

	googleIssuer      = "https://accounts.google.com"
	googleUserInfoURL = "https://openidconnect.googleapis.com/v1/userinfo"
	googleJWKSURL     = "https://www.googleapis.com/oauth2/v3/certs"
)

// GoogleDefaultScopes returns the default scopes for Google OAuth.
func GoogleDefaultScopes() []string {
	return []string{
		"https://www.googleapis.com/auth/userinfo.profile",
		"https://www.googleapis.com/auth/userinfo.email",
	}
}

// GoogleProvider implements Provider for Google. User info is read from the
// OpenID Connect userinfo endpoint.
type GoogleProvider struct {
	cfg      Config
	endpoint oauth2.Endpoint
	oidc     *oidc.Provider
	opts     options
}

// NewGoogleProvider creates a new Google OAuth provider.
// Returns an error if ClientID or ClientSecret is empty.
func NewGoogleProvider(ctx context.Context, cfg Config, opts ...Option) (*GoogleProvider, error) {
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	if len(cfg.Scopes) == 0 {
		cfg.Scopes = GoogleDefaultScopes()
	}

	o := buildOptions(opts)
	endpoint := googleOAuth.Endpoint
	if o.endpoint != nil {
		endpoint = *o.endpoint
	}
	userInfoURL := googleUserInfoURL
	if o.userInfoURL != "" {
		userInfoURL = o.userInfoURL
	}

	// Static discovery: no network round trip at startup.
	provider := (&oidc.ProviderConfig{
		IssuerURL:   googleIssuer,
		AuthURL:     endpoint.AuthURL,
		TokenURL:    endpoint.TokenURL,
		UserInfoURL: userInfoURL,
		JWKSURL:     googleJWKSURL,
		Algorithms:  []string{oidc.RS256},
	}).NewProvider(ctx)

	return &GoogleProvider{cfg: cfg, endpoint: endpoint, oidc: provider, opts: o}, nil
}

// Name returns the provider identifier.
func (p *GoogleProvider) Name() string {
	return GoogleProviderName
}

func (p *GoogleProvider) AuthCodeURL(state, redirectURI string) string {
	return oauthConfig(p.cfg, p.endpoint, redirectURI).AuthCodeURL(state, oauth2.AccessTypeOnline)
}

func (p *GoogleProvider) Exchange(ctx context.Context, code, redirectURI string) (*oauth2.Token, error) {
	ctx = p.opts.contextWithHTTPClient(ctx)
	return oauthConfig(p.cfg, p.endpoint, redirectURI).Exchange(ctx, code)
}

// FetchUserInfo retrieves user information from Google.
func (p *GoogleProvider) FetchUserInfo(ctx context.Context, token *oauth2.Token) (*UserInfo, error) {
	ctx = p.opts.contextWithHTTPClient(ctx)

	info, err := p.oidc.UserInfo(ctx, oauth2.StaticTokenSource(token))
	if err != nil {
		return nil, errors.Join(ErrFetchFailed, fmt.Errorf("fetch userinfo: %w", err))
	}

	var profile struct {
		Name    string `json:"name"`
		Picture string `json:"picture"`
	}
	if err := info.Claims(&profile); err != nil {
		return nil, errors.Join(ErrDecodeFailed, fmt.Errorf("decode userinfo: %w", err))
	}
	if info.Email == "" {
		return nil, ErrMissingEmail
	}

	return &UserInfo{
		ID:            info.Subject,
		Email:         info.Email,
		Name:          profile.Name,
		Picture:       profile.Picture,
		VerifiedEmail: info.EmailVerified,
	}, nil
}
