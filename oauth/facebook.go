package oauth

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"

	"golang.org/x/oauth2"
)

const (
	// FacebookProviderName is the identifier for Facebook OAuth provider.
	FacebookProviderName = "facebook"

	facebookAuthURL     = "https://www.facebook.com/dialog/oauth"
	facebookTokenURL    = "https://graph.facebook.com/v14.0/oauth/access_token"
	facebookUserInfoURL = "https://graph.facebook.com/v14.0/me?fields=id,name,email,picture"
)

// FacebookDefaultScopes returns the default scopes for Facebook OAuth.
func FacebookDefaultScopes() []string {
	return []string{"public_profile", "email"}
}

// FacebookProvider implements Provider for Facebook Login.
type FacebookProvider struct {
	cfg         Config
	endpoint    oauth2.Endpoint
	userInfoURL string
	opts        options
}

func NewFacebookProvider(cfg Config, opts ...Option) (*FacebookProvider, error) {
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	if len(cfg.Scopes) == 0 {
		cfg.Scopes = FacebookDefaultScopes()
	}

	o := buildOptions(opts)
	endpoint := oauth2.Endpoint{
		AuthURL:   facebookAuthURL,
		TokenURL:  facebookTokenURL,
		AuthStyle: oauth2.AuthStyleInParams,
	}
	if o.endpoint != nil {
		endpoint = *o.endpoint
	}
	userInfoURL := facebookUserInfoURL
	if o.userInfoURL != "" {
		userInfoURL = o.userInfoURL
	}

	return &FacebookProvider{cfg: cfg, endpoint: endpoint, userInfoURL: userInfoURL, opts: o}, nil
}

func (p *FacebookProvider) Name() string {
	return FacebookProviderName
}

func (p *FacebookProvider) AuthCodeURL(state, redirectURI string) string {
	return oauthConfig(p.cfg, p.endpoint, facebookRedirect(redirectURI)).AuthCodeURL(state)
}

func (p *FacebookProvider) Exchange(ctx context.Context, code, redirectURI string) (*oauth2.Token, error) {
	ctx = p.opts.contextWithHTTPClient(ctx)
	return oauthConfig(p.cfg, p.endpoint, facebookRedirect(redirectURI)).Exchange(ctx, code)
}

// FetchUserInfo reads the profile from the Graph API. Facebook only discloses
// confirmed addresses, so the e-mail is reported as verified.
func (p *FacebookProvider) FetchUserInfo(ctx context.Context, token *oauth2.Token) (*UserInfo, error) {
	ctx = p.opts.contextWithHTTPClient(ctx)
	client := oauthConfig(p.cfg, p.endpoint, "").Client(ctx, token)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, p.userInfoURL, nil)
	if err != nil {
		return nil, errors.Join(ErrFetchFailed, err)
	}
	resp, err := client.Do(req)
	if err != nil {
		return nil, errors.Join(ErrFetchFailed, fmt.Errorf("fetch profile: %w", err))
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return nil, errors.Join(ErrRequestFailed, fmt.Errorf("profile request failed: status=%d body=%s", resp.StatusCode, body))
	}

	var fbUser facebookUserInfo
	if err := json.NewDecoder(resp.Body).Decode(&fbUser); err != nil {
		return nil, errors.Join(ErrDecodeFailed, fmt.Errorf("decode profile: %w", err))
	}
	if fbUser.Email == "" {
		return nil, ErrMissingEmail
	}

	return &UserInfo{
		ID:            fbUser.ID,
		Email:         fbUser.Email,
		Name:          fbUser.Name,
		Picture:       fbUser.Picture.Data.URL,
		VerifiedEmail: true,
	}, nil
}

// Facebook rejects redirect URIs that do not end in a slash.
func facebookRedirect(uri string) string {
	if uri == "" || strings.HasSuffix(uri, "/") {
		return uri
	}
	return uri + "/"
}

type facebookUserInfo struct {
	ID      string `json:"id"`
	Name    string `json:"name"`
	Email   string `json:"email"`
	Picture struct {
		Data struct {
			URL string `json:"url"`
		} `json:"data"`
	} `json:"picture"`
}
