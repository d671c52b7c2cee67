package response

import (
	"errors"
	"fmt"
)

// Response is the envelope wrapping every endpoint output. Data is only
// serialized for successful responses.
type Response[T any] struct {
	Code Code `json:"code"`
	Data *T   `json:"data,omitempty"`
}

// OK builds a successful response carrying data.
func OK[T any](data T) Response[T] {
	return Response[T]{Code: Ok, Data: &data}
}

// Fail builds an error response. It never carries a payload.
func Fail(code Code) Response[struct{}] {
	return Response[struct{}]{Code: code}
}

// Error is the typed failure returned by the authentication flows. The cause is
// kept for logging only.
type Error struct {
	Code  Code
	Cause error
}

// TokenInvalid is returned for every session token verification failure.
var TokenInvalid = &Error{Code: AuthError}

// NewError returns an Error for code wrapping cause.
func NewError(code Code, cause error) *Error {
	return &Error{Code: code, Cause: cause}
}

func (e *Error) Error() string {
	if e.Cause == nil {
		return fmt.Sprintf("%s (code %d)", e.Code.Message(), int(e.Code))
	}
	return fmt.Sprintf("%s (code %d): %v", e.Code.Message(), int(e.Code), e.Cause)
}

func (e *Error) Unwrap() error {
	return e.Cause
}

// Is matches any *Error with the same code.
func (e *Error) Is(target error) bool {
	var t *Error
	if !errors.As(target, &t) {
		return false
	}
	return t.Code == e.Code
}

// Wrap returns a copy of e carrying cause.
func (e *Error) Wrap(cause error) *Error {
	return &Error{Code: e.Code, Cause: cause}
}

// CodeOf returns the code of the first *Error in err's chain. Untyped errors are
// reported as ServerError.
func CodeOf(err error) Code {
	if err == nil {
		return Ok
	}
	var e *Error
	if errors.As(err, &e) {
		return e.Code
	}
	return ServerError
}
