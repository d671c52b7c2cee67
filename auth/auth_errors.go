package auth

import (
	"github.com/Lipoic/Lipoic-Server/response"
	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"
)

var (
	ErrStateMismatch    = errors.New("oauth state does not match the authorization request")
	ErrCodeReused       = errors.New("authorization code already used")
	ErrEmailNotVerified = errors.New("provider e-mail is not verified")
	ErrPasswordMismatch = errors.New("password does not match")
	ErrNoPassword       = errors.New("account has no password")
	ErrAlreadyVerified  = errors.New("e-mail already verified")
	ErrCodeAlreadyUsed  = errors.New("verification code already used")
)

func fail(code response.Code, cause error) error {
	return response.NewError(code, cause)
}

// serverError logs cause and reports a generic failure.
func serverError(cause error) error {
	log.Err(cause).Msg("auth request failed")
	return response.NewError(response.ServerError, cause)
}
