package auth

import (
	"context"
	"strings"
	"sync"

	"github.com/Lipoic/Lipoic-Server/response"
	"github.com/Lipoic/Lipoic-Server/users"
	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"
)

// dummyHash is compared against when no stored hash exists so that unknown
// accounts cost the same bcrypt work as known ones.
var dummyHash = sync.OnceValue(func() string {
	h, err := users.HashPassword("lipoic-timing-equaliser")
	if err != nil {
		panic(err)
	}
	return h
})

// SignUpParams are the fields collected by the signup form.
type SignUpParams struct {
	Email    string
	Password string
	Username string
	Modes    []users.Mode
	ClientIP string
}

// Login checks an e-mail and password. Unknown accounts and wrong passwords
// report distinct codes but cost one bcrypt comparison either way.
func (s *Service) Login(ctx context.Context, email, password, clientIP string) (*Token, error) {
	email = users.NormalizeEmail(email)
	logger := log.With().Str("email", email).Str("client_ip", clientIP).Logger()

	user, err := s.repos.Users.GetByEmail(ctx, email)
	if errors.Is(err, users.ErrNotFound) {
		users.CheckPasswordHash(password, dummyHash())
		logger.Info().Msg("login rejected: unknown account")
		return nil, fail(response.LoginUserNotFoundError, err)
	}
	if err != nil {
		return nil, serverError(errors.Wrap(err, "[Service.Login] GetByEmail"))
	}

	if !user.HasPassword() {
		users.CheckPasswordHash(password, dummyHash())
		logger.Info().Msg("login rejected: account has no password")
		return nil, fail(response.LoginPasswordError, ErrNoPassword)
	}
	if !users.CheckPasswordHash(password, user.PasswordHash) {
		logger.Info().Msg("login rejected: wrong password")
		return nil, fail(response.LoginPasswordError, ErrPasswordMismatch)
	}

	if err := s.repos.Users.RecordLogin(ctx, user.ID, clientIP); err != nil {
		logger.Warn().Err(err).Msg("failed to record login ip")
	}
	logger.Info().Str("user_id", user.ID).Msg("password login")
	return s.issue(user)
}

// SignUp creates an unverified account and mails a verification link. The
// store's unique e-mail constraint decides duplicates.
func (s *Service) SignUp(ctx context.Context, params SignUpParams) (*Token, error) {
	email := users.NormalizeEmail(params.Email)
	username := strings.TrimSpace(params.Username)
	if email == "" || params.Password == "" || username == "" {
		return nil, fail(response.InvalidRequest, errors.New("email, password and username are required"))
	}
	if len(params.Password) > users.MaxPasswordBytes {
		return nil, fail(response.InvalidRequest, errors.Errorf("password longer than %d bytes", users.MaxPasswordBytes))
	}

	hash, err := users.HashPassword(params.Password)
	if err != nil {
		return nil, serverError(errors.Wrap(err, "[Service.SignUp] HashPassword"))
	}

	user := &users.User{
		Username:     username,
		Email:        email,
		PasswordHash: hash,
		Modes:        params.Modes,
		CreatedAt:    s.nowTime().UTC(),
	}
	if params.ClientIP != "" {
		user.LoginIPs = []string{params.ClientIP}
	}

	err = s.repos.Users.Create(ctx, user)
	if errors.Is(err, users.ErrDuplicateEmail) {
		log.Info().Str("email", email).Str("client_ip", params.ClientIP).Msg("signup rejected: email registered")
		return nil, fail(response.SignUpEmailAlreadyRegistered, err)
	}
	if err != nil {
		return nil, serverError(errors.Wrap(err, "[Service.SignUp] Create"))
	}
	log.Info().Str("user_id", user.ID).Str("email", email).Str("client_ip", params.ClientIP).Msg("signup")

	if err := s.sendVerification(ctx, user.Email); err != nil {
		log.Warn().Err(err).Str("email", email).Msg("verification e-mail not sent")
	}
	return s.issue(user)
}
