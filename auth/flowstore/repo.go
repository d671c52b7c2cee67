// Package flowstore holds the short lived state of in-flight authentication
// flows: OAuth anti-forgery state and single-use markers.
package flowstore

import (
	"context"
	"time"

	apperrors "github.com/Lipoic/Lipoic-Server/internal/errors"
)

// ErrNotFound is returned by Take for a missing or expired state.
var ErrNotFound = apperrors.ErrNotFound

// FlowState is what an authorization request was bound to.
type FlowState struct {
	Provider    string    `json:"provider"`
	RedirectURI string    `json:"redirect_uri"`
	CreatedAt   time.Time `json:"created_at"`
}

// StateRepo stores anti-forgery state. Take is an atomic get-and-delete, so a
// state can be redeemed at most once.
type StateRepo interface {
	Put(ctx context.Context, state string, flow *FlowState, ttl time.Duration) error
	Take(ctx context.Context, state string) (*FlowState, error)
}

// OnceRepo marks keys as used. Claim reports true only for the first caller
// within ttl.
type OnceRepo interface {
	Claim(ctx context.Context, key string, ttl time.Duration) (bool, error)
}
