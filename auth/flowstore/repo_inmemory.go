package flowstore

import (
	"context"
	"errors"
	"sync"
	"time"
)

var (
	_ StateRepo = (*InMemoryRepo)(nil)
	_ OnceRepo  = (*InMemoryRepo)(nil)
)

type stateEntry struct {
	flow      FlowState
	expiresAt time.Time
}

// InMemoryRepo is a thread-safe in-process implementation of StateRepo and
// OnceRepo. It is only correct for a single replica.
type InMemoryRepo struct {
	mu      sync.Mutex
	states  map[string]stateEntry
	claimed map[string]time.Time
	nowFunc func() time.Time
}

type InMemoryOption func(*InMemoryRepo)

func WithNowFunc(now func() time.Time) InMemoryOption {
	return func(r *InMemoryRepo) {
		r.nowFunc = now
	}
}

// NewInMemoryRepo creates a new in-memory flow store
func NewInMemoryRepo(options ...InMemoryOption) *InMemoryRepo {
	r := &InMemoryRepo{
		states:  make(map[string]stateEntry),
		claimed: make(map[string]time.Time),
		nowFunc: time.Now,
	}
	for _, opt := range options {
		opt(r)
	}
	return r
}

func (r *InMemoryRepo) Put(_ context.Context, state string, flow *FlowState, ttl time.Duration) error {
	if state == "" {
		return errors.New("state cannot be empty")
	}
	if flow == nil {
		return errors.New("flow cannot be nil")
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	now := r.nowFunc()
	r.sweep(now)
	r.states[state] = stateEntry{flow: *flow, expiresAt: now.Add(ttl)}
	return nil
}

func (r *InMemoryRepo) Take(_ context.Context, state string) (*FlowState, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	entry, ok := r.states[state]
	if !ok {
		return nil, ErrNotFound
	}
	delete(r.states, state)
	if !r.nowFunc().Before(entry.expiresAt) {
		return nil, ErrNotFound
	}
	flow := entry.flow
	return &flow, nil
}

func (r *InMemoryRepo) Claim(_ context.Context, key string, ttl time.Duration) (bool, error) {
	if key == "" {
		return false, errors.New("key cannot be empty")
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	now := r.nowFunc()
	if expiresAt, ok := r.claimed[key]; ok && now.Before(expiresAt) {
		return false, nil
	}
	r.claimed[key] = now.Add(ttl)
	return true, nil
}

// sweep drops expired entries. Called with mu held.
func (r *InMemoryRepo) sweep(now time.Time) {
	for k, e := range r.states {
		if !now.Before(e.expiresAt) {
			delete(r.states, k)
		}
	}
	for k, exp := range r.claimed {
		if !now.Before(exp) {
			delete(r.claimed, k)
		}
	}
}
