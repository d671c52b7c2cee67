package config

import (
	"fmt"
	"time"
)

const (
	AccountPolicyLinkOrCreate = "link_or_create"
	AccountPolicyLinkOnly     = "link_only"
)

type OAuthConfig interface {
	GetGoogleClient() (id, secret string)
	GetFacebookClient() (id, secret string)
	GetOAuthStateTTL() time.Duration
	GetProviderTimeout() time.Duration
	GetOAuthAccountPolicy() string
}

// OAuth holds the provider credentials. A provider without a client id is
// not registered.
type OAuth struct {
	GoogleClientID       string        `env:"GOOGLE_OAUTH_CLIENT_ID"`
	GoogleClientSecret   string        `env:"GOOGLE_OAUTH_CLIENT_SECRET"`
	FacebookClientID     string        `env:"FACEBOOK_OAUTH_CLIENT_ID"`
	FacebookClientSecret string        `env:"FACEBOOK_OAUTH_CLIENT_SECRET"`
	StateTTL             time.Duration `env:"OAUTH_STATE_TTL" envDefault:"10m"`
	ProviderTimeout      time.Duration `env:"OAUTH_PROVIDER_TIMEOUT" envDefault:"10s"`
	AccountPolicy        string        `env:"OAUTH_ACCOUNT_POLICY" envDefault:"link_or_create"`
}

var _ OAuthConfig = OAuth{}

func (o OAuth) GetGoogleClient() (string, string) {
	return o.GoogleClientID, o.GoogleClientSecret
}

func (o OAuth) GetFacebookClient() (string, string) {
	return o.FacebookClientID, o.FacebookClientSecret
}

func (o OAuth) GetOAuthStateTTL() time.Duration {
	return o.StateTTL
}

func (o OAuth) GetProviderTimeout() time.Duration {
	return o.ProviderTimeout
}

func (o OAuth) GetOAuthAccountPolicy() string {
	return o.AccountPolicy
}

func (o OAuth) validate() error {
	switch o.AccountPolicy {
	case AccountPolicyLinkOrCreate, AccountPolicyLinkOnly:
	default:
		return fmt.Errorf("unknown OAUTH_ACCOUNT_POLICY %q", o.AccountPolicy)
	}
	if o.StateTTL <= 0 || o.ProviderTimeout <= 0 {
		return fmt.Errorf("oauth durations must be positive")
	}
	return nil
}
