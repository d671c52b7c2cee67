package auth

import (
	"context"

	"github.com/Lipoic/Lipoic-Server/response"
	"github.com/Lipoic/Lipoic-Server/users"
	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"
)

const verifyOncePrefix = "verify:"

// VerifyEmail redeems a verification code. Each code works once.
func (s *Service) VerifyEmail(ctx context.Context, code string) error {
	claims, err := s.tokens.VerifyEmailVerification(code)
	if err != nil {
		return err
	}

	remaining := claims.ExpiresAt.Sub(s.nowTime())
	if remaining <= 0 {
		return fail(response.VerifyEmailError, errors.New("verification code expired"))
	}
	first, err := s.repos.Once.Claim(ctx, verifyOncePrefix+claims.ID, remaining)
	if err != nil {
		return serverError(errors.Wrap(err, "[Service.VerifyEmail] Claim"))
	}
	if !first {
		return fail(response.VerifyEmailError, ErrCodeAlreadyUsed)
	}

	err = s.repos.Users.SetVerified(ctx, claims.Email, true)
	if errors.Is(err, users.ErrNotFound) {
		return fail(response.VerifyEmailError, err)
	}
	if err != nil {
		return serverError(errors.Wrap(err, "[Service.VerifyEmail] SetVerified"))
	}
	log.Info().Str("email", claims.Email).Msg("email verified")
	return nil
}

// ResendVerification mails a fresh code to the signed-in, unverified user.
func (s *Service) ResendVerification(ctx context.Context, rawToken string) error {
	user, err := s.currentUser(ctx, rawToken)
	if err != nil {
		return err
	}
	if user.VerifiedEmail {
		return fail(response.VerifyEmailError, ErrAlreadyVerified)
	}
	if err := s.sendVerification(ctx, user.Email); err != nil {
		return serverError(errors.Wrap(err, "[Service.ResendVerification]"))
	}
	return nil
}

func (s *Service) sendVerification(ctx context.Context, email string) error {
	code, err := s.tokens.IssueEmailVerification(email)
	if err != nil {
		return errors.Wrap(err, "[Service.sendVerification] issue code")
	}
	if s.verification == nil {
		log.Warn().Str("email", email).Msg("no verification sender configured")
		return nil
	}
	return s.verification.SendVerification(ctx, email, code)
}
