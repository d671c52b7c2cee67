package users

import (
	"context"

	apperrors "github.com/Lipoic/Lipoic-Server/internal/errors"
)

var (
	// ErrNotFound is returned when no account matches the lookup.
	ErrNotFound = apperrors.ErrNotFound
	// ErrDuplicateEmail is returned by Create when the unique email constraint fires.
	ErrDuplicateEmail = apperrors.ErrDuplicate
)

// Repo is the durable account store. Create must be atomic with respect to the
// email uniqueness constraint; callers rely on ErrDuplicateEmail rather than a
// prior lookup.
type Repo interface {
	GetByEmail(ctx context.Context, email string) (*User, error)
	GetByID(ctx context.Context, id string) (*User, error)
	Create(ctx context.Context, user *User) error
	SetVerified(ctx context.Context, email string, verified bool) error
	// ConfirmEmail marks the account verified and drops any password hash set
	// before the address was proven, in one update.
	ConfirmEmail(ctx context.Context, userID string) error
	UpdateProfile(ctx context.Context, userID, username string, modes []Mode) error
	LinkProvider(ctx context.Context, userID string, connect Connect) error
	RecordLogin(ctx context.Context, userID, ip string) error
}
