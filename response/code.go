package response

import (
	"encoding/json"
	"net/http"
)

// Code is the discriminant returned with every response. Values are part of the
// wire contract and must never be renumbered.
type Code int

const (
	Ok                           Code = 1
	NotFound                     Code = 2
	OAuthCodeError               Code = 3
	OAuthGetUserInfoError        Code = 4
	LoginUserNotFoundError       Code = 5
	LoginPasswordError           Code = 6
	SignUpEmailAlreadyRegistered Code = 7
	VerifyEmailError             Code = 8
	AuthError                    Code = 9
	InvalidRequest               Code = 10
	ServerError                  Code = 11
)

var messages = map[Code]string{
	Ok:                           "ok",
	NotFound:                     "resource not found",
	OAuthCodeError:               "oauth authorization code rejected",
	OAuthGetUserInfoError:        "oauth user info could not be retrieved",
	LoginUserNotFoundError:       "user not found",
	LoginPasswordError:           "password does not match",
	SignUpEmailAlreadyRegistered: "email already registered",
	VerifyEmailError:             "email verification code rejected",
	AuthError:                    "token is invalid",
	InvalidRequest:               "request is invalid",
	ServerError:                  "internal server error",
}

var statuses = map[Code]int{
	Ok:                           http.StatusOK,
	NotFound:                     http.StatusNotFound,
	OAuthCodeError:               http.StatusBadRequest,
	OAuthGetUserInfoError:        http.StatusBadRequest,
	LoginUserNotFoundError:       http.StatusUnauthorized,
	LoginPasswordError:           http.StatusUnauthorized,
	SignUpEmailAlreadyRegistered: http.StatusConflict,
	VerifyEmailError:             http.StatusUnauthorized,
	AuthError:                    http.StatusUnauthorized,
	InvalidRequest:               http.StatusBadRequest,
	ServerError:                  http.StatusInternalServerError,
}

// Message returns the diagnostic message for the code. It is meant for logs
// and is never serialized.
func (c Code) Message() string {
	if msg, ok := messages[c]; ok {
		return msg
	}
	return "unknown code"
}

func (c Code) String() string {
	return c.Message()
}

// Valid reports whether c is a known code.
func (c Code) Valid() bool {
	_, ok := messages[c]
	return ok
}

// HTTPStatus maps a code to the HTTP status used on the wire.
func HTTPStatus(c Code) int {
	if status, ok := statuses[c]; ok {
		return status
	}
	return http.StatusInternalServerError
}

// MarshalJSON keeps the numeric value on the wire even though Code has a String method.
func (c Code) MarshalJSON() ([]byte, error) {
	return json.Marshal(int(c))
}
