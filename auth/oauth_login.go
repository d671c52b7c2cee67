package auth

import (
	"context"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"strings"

	"github.com/Lipoic/Lipoic-Server/auth/flowstore"
	"github.com/Lipoic/Lipoic-Server/oauth"
	"github.com/Lipoic/Lipoic-Server/response"
	"github.com/Lipoic/Lipoic-Server/users"
	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"
)

const (
	stateLength    = 32
	codeOncePrefix = "oauth-code:"
)

// OAuthLoginParams is the provider callback as received from the client.
type OAuthLoginParams struct {
	Provider    string
	Code        string
	State       string
	RedirectURI string // Empty means the redirect the state was issued for
	ClientIP    string
}

// AuthorizationURL starts an OAuth login. The returned state is bound to the
// provider and redirect URI and must be echoed back to OAuthLogin.
func (s *Service) AuthorizationURL(ctx context.Context, providerName, redirectURI string) (*AuthURL, error) {
	provider, err := s.providers.Get(providerName)
	if err != nil {
		return nil, fail(response.NotFound, err)
	}
	if strings.TrimSpace(redirectURI) == "" {
		return nil, fail(response.InvalidRequest, errors.New("redirect uri is required"))
	}

	state, err := generateState()
	if err != nil {
		return nil, serverError(errors.Wrap(err, "[Service.AuthorizationURL] generateState"))
	}
	flow := &flowstore.FlowState{
		Provider:    provider.Name(),
		RedirectURI: redirectURI,
		CreatedAt:   s.nowTime().UTC(),
	}
	if err := s.repos.States.Put(ctx, state, flow, s.stateTTL); err != nil {
		return nil, serverError(errors.Wrap(err, "[Service.AuthorizationURL] Put"))
	}

	return &AuthURL{URL: provider.AuthCodeURL(state, redirectURI), State: state}, nil
}

// OAuthLogin completes an OAuth login: it redeems the state and code, fetches
// the provider identity, resolves the local account and issues a session token.
func (s *Service) OAuthLogin(ctx context.Context, params OAuthLoginParams) (*Token, error) {
	provider, err := s.providers.Get(params.Provider)
	if err != nil {
		return nil, fail(response.NotFound, err)
	}
	logger := log.With().Str("provider", provider.Name()).Str("client_ip", params.ClientIP).Logger()

	redirectURI, err := s.redeemState(ctx, provider.Name(), params)
	if err != nil {
		logger.Info().Err(err).Msg("oauth login rejected: state")
		return nil, err
	}
	if err := s.claimCode(ctx, provider.Name(), params.Code); err != nil {
		logger.Info().Err(err).Msg("oauth login rejected: code")
		return nil, err
	}

	info, err := s.fetchIdentity(ctx, provider, params.Code, redirectURI)
	if err != nil {
		logger.Info().Err(err).Msg("oauth login rejected: provider")
		return nil, err
	}

	user, err := s.resolveAccount(ctx, provider.Name(), info, params.ClientIP)
	if err != nil {
		return nil, err
	}
	logger.Info().Str("user_id", user.ID).Msg("oauth login")
	return s.issue(user)
}

// redeemState consumes the state and checks it was issued for this provider
// and redirect. It returns the redirect URI to exchange the code with.
func (s *Service) redeemState(ctx context.Context, provider string, params OAuthLoginParams) (string, error) {
	if params.State == "" {
		return "", fail(response.OAuthCodeError, ErrStateMismatch)
	}
	flow, err := s.repos.States.Take(ctx, params.State)
	if errors.Is(err, flowstore.ErrNotFound) {
		return "", fail(response.OAuthCodeError, ErrStateMismatch)
	}
	if err != nil {
		return "", serverError(errors.Wrap(err, "[Service.redeemState] Take"))
	}
	if flow.Provider != provider {
		return "", fail(response.OAuthCodeError, ErrStateMismatch)
	}
	if params.RedirectURI != "" && params.RedirectURI != flow.RedirectURI {
		return "", fail(response.OAuthCodeError, ErrStateMismatch)
	}
	return flow.RedirectURI, nil
}

func (s *Service) claimCode(ctx context.Context, provider, code string) error {
	if code == "" {
		return fail(response.OAuthCodeError, errors.New("authorization code is required"))
	}
	sum := sha256.Sum256([]byte(provider + "\x00" + code))
	first, err := s.repos.Once.Claim(ctx, codeOncePrefix+hex.EncodeToString(sum[:]), s.codeTTL)
	if err != nil {
		return serverError(errors.Wrap(err, "[Service.claimCode] Claim"))
	}
	if !first {
		return fail(response.OAuthCodeError, ErrCodeReused)
	}
	return nil
}

func (s *Service) fetchIdentity(ctx context.Context, provider oauth.Provider, code, redirectURI string) (*oauth.UserInfo, error) {
	exchangeCtx, cancel := context.WithTimeout(ctx, s.providerTimeout)
	defer cancel()
	tok, err := provider.Exchange(exchangeCtx, code, redirectURI)
	if err != nil {
		return nil, fail(response.OAuthCodeError, err)
	}

	infoCtx, cancelInfo := context.WithTimeout(ctx, s.providerTimeout)
	defer cancelInfo()
	info, err := provider.FetchUserInfo(infoCtx, tok)
	if err != nil {
		return nil, fail(response.OAuthGetUserInfoError, err)
	}
	if strings.TrimSpace(info.Email) == "" {
		return nil, fail(response.OAuthGetUserInfoError, oauth.ErrMissingEmail)
	}
	return info, nil
}

// resolveAccount finds the account owning the provider e-mail, creating it
// when the policy allows, and records the link and client ip.
func (s *Service) resolveAccount(ctx context.Context, provider string, info *oauth.UserInfo, clientIP string) (*users.User, error) {
	email := users.NormalizeEmail(info.Email)
	connect := users.Connect{Provider: provider, Name: info.Name, Email: email}

	user, err := s.repos.Users.GetByEmail(ctx, email)
	if errors.Is(err, users.ErrNotFound) {
		if s.accountPolicy == LinkOnly {
			return nil, fail(response.LoginUserNotFoundError, err)
		}
		user, err = s.createOAuthAccount(ctx, email, info, connect, clientIP)
		if !errors.Is(err, users.ErrDuplicateEmail) {
			return user, err
		}
		// Lost a race with a concurrent first login; link to the winner.
		user, err = s.repos.Users.GetByEmail(ctx, email)
	}
	if err != nil {
		return nil, serverError(errors.Wrap(err, "[Service.resolveAccount] GetByEmail"))
	}

	// An unconfirmed provider address must not take over an existing account.
	if !info.VerifiedEmail {
		return nil, fail(response.OAuthGetUserInfoError, ErrEmailNotVerified)
	}
	if err := s.repos.Users.LinkProvider(ctx, user.ID, connect); err != nil {
		return nil, serverError(errors.Wrap(err, "[Service.resolveAccount] LinkProvider"))
	}
	// The provider proved ownership of the address; a password chosen by
	// whoever registered it unverified is not trusted.
	if !user.VerifiedEmail {
		if err := s.repos.Users.ConfirmEmail(ctx, user.ID); err != nil {
			return nil, serverError(errors.Wrap(err, "[Service.resolveAccount] ConfirmEmail"))
		}
		if user.HasPassword() {
			log.Warn().Str("user_id", user.ID).Str("provider", provider).
				Msg("dropped password of unverified account on provider login")
		}
		user.VerifiedEmail = true
		user.PasswordHash = ""
	}
	if err := s.repos.Users.RecordLogin(ctx, user.ID, clientIP); err != nil {
		log.Warn().Err(err).Str("user_id", user.ID).Msg("failed to record login ip")
	}
	return user, nil
}

func (s *Service) createOAuthAccount(ctx context.Context, email string, info *oauth.UserInfo, connect users.Connect, clientIP string) (*users.User, error) {
	username := strings.TrimSpace(info.Name)
	if username == "" {
		username, _, _ = strings.Cut(email, "@")
	}
	user := &users.User{
		Username:      username,
		Email:         email,
		VerifiedEmail: info.VerifiedEmail,
		Connects:      []users.Connect{connect},
		CreatedAt:     s.nowTime().UTC(),
	}
	if clientIP != "" {
		user.LoginIPs = []string{clientIP}
	}

	err := s.repos.Users.Create(ctx, user)
	if errors.Is(err, users.ErrDuplicateEmail) {
		return nil, err
	}
	if err != nil {
		return nil, serverError(errors.Wrap(err, "[Service.createOAuthAccount] Create"))
	}
	log.Info().Str("user_id", user.ID).Str("provider", connect.Provider).Str("client_ip", clientIP).Msg("account created from oauth login")
	if !user.VerifiedEmail {
		if err := s.sendVerification(ctx, email); err != nil {
			log.Warn().Err(err).Str("email", email).Msg("verification e-mail not sent")
		}
	}
	return user, nil
}

func generateState() (string, error) {
	b := make([]byte, stateLength)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return base64.RawURLEncoding.EncodeToString(b), nil
}
