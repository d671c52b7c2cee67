package errors

import "errors"

// Storage level errors shared by the user and flow stores
var (
	ErrNotFound  = errors.New("not found")
	ErrDuplicate = errors.New("duplicate")
)
