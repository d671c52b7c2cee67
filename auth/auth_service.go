// Package auth implements the authentication flows: password login, signup,
// e-mail verification, and OAuth2 login through external providers.
package auth

import (
	"context"
	"time"

	"github.com/Lipoic/Lipoic-Server/auth/flowstore"
	"github.com/Lipoic/Lipoic-Server/oauth"
	"github.com/Lipoic/Lipoic-Server/token"
	"github.com/Lipoic/Lipoic-Server/users"
	"github.com/pkg/errors"
)

const (
	defaultStateTTL        = 10 * time.Minute
	defaultCodeTTL         = 10 * time.Minute
	defaultProviderTimeout = 10 * time.Second
)

// OAuthAccountPolicy decides what happens when a provider reports an e-mail
// with no local account.
type OAuthAccountPolicy int

const (
	// LinkOrCreate creates the account on first OAuth login.
	LinkOrCreate OAuthAccountPolicy = iota
	// LinkOnly only signs in accounts that already exist.
	LinkOnly
)

// VerificationSender delivers e-mail verification codes.
type VerificationSender interface {
	SendVerification(ctx context.Context, to, code string) error
}

// Repos holds all repository dependencies for the Service
type Repos struct {
	Users  users.Repo          // Durable account store
	States flowstore.StateRepo // OAuth anti-forgery state
	Once   flowstore.OnceRepo  // Single-use markers for authorization and verification codes
}

// AuthURL is returned when starting an OAuth login.
type AuthURL struct {
	URL   string `json:"url"`
	State string `json:"state"`
}

// Token wraps an issued session token.
type Token struct {
	Token string `json:"token"`
}

// UserInfo is the read-only projection of the signed-in account.
type UserInfo struct {
	Username           string          `json:"username"`
	Email              string          `json:"email"`
	Verified           bool            `json:"verified"`
	Modes              []users.Mode    `json:"modes"`
	ConnectedProviders []string        `json:"connected_providers"`
	Connects           []users.Connect `json:"connects"`
}

// Service runs the authentication flows.
type Service struct {
	repos           Repos
	tokens          *token.Manager
	providers       *oauth.Registry
	verification    VerificationSender
	accountPolicy   OAuthAccountPolicy
	stateTTL        time.Duration
	codeTTL         time.Duration
	providerTimeout time.Duration
	nowTime         func() time.Time
}

// ServiceOption defines a function type to modify the Service instance.
type ServiceOption func(*Service)

// WithNowTime sets the now time function (primarily for testing)
func WithNowTime(nowFunc func() time.Time) ServiceOption {
	return func(s *Service) {
		s.nowTime = nowFunc
	}
}

func WithVerificationSender(sender VerificationSender) ServiceOption {
	return func(s *Service) {
		s.verification = sender
	}
}

func WithOAuthAccountPolicy(policy OAuthAccountPolicy) ServiceOption {
	return func(s *Service) {
		s.accountPolicy = policy
	}
}

// WithProviderTimeout bounds each code exchange and user info request.
func WithProviderTimeout(d time.Duration) ServiceOption {
	return func(s *Service) {
		s.providerTimeout = d
	}
}

func WithStateTTL(d time.Duration) ServiceOption {
	return func(s *Service) {
		s.stateTTL = d
	}
}

// NewService initializes a new Service with required dependencies.
func NewService(repos Repos, tokens *token.Manager, providers *oauth.Registry, options ...ServiceOption) (*Service, error) {
	if repos.Users == nil {
		return nil, errors.New("[NewService] Users repo is required")
	}
	if repos.States == nil {
		return nil, errors.New("[NewService] States repo is required")
	}
	if repos.Once == nil {
		return nil, errors.New("[NewService] Once repo is required")
	}
	if tokens == nil {
		return nil, errors.New("[NewService] token manager is required")
	}
	if providers == nil {
		providers = oauth.NewRegistry()
	}

	s := &Service{
		repos:           repos,
		tokens:          tokens,
		providers:       providers,
		accountPolicy:   LinkOrCreate,
		stateTTL:        defaultStateTTL,
		codeTTL:         defaultCodeTTL,
		providerTimeout: defaultProviderTimeout,
		nowTime:         time.Now,
	}
	for _, opt := range options {
		opt(s)
	}
	return s, nil
}

// Providers lists the OAuth providers that can be used.
func (s *Service) Providers() []string {
	return s.providers.Names()
}

func (s *Service) issue(user *users.User) (*Token, error) {
	raw, err := s.tokens.Issue(user)
	if err != nil {
		return nil, serverError(errors.Wrap(err, "[Service.issue]"))
	}
	return &Token{Token: raw}, nil
}
