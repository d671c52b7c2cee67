package fakeuserrepo

import (
	"context"
	"sync"
	"time"

	"github.com/Lipoic/Lipoic-Server/users"
	"github.com/google/uuid"
)

var _ users.Repo = (*FakeUserRepo)(nil)

// FakeUserRepo is an in-memory users.Repo. Email uniqueness is enforced under
// the write lock, mirroring a unique index.
type FakeUserRepo struct {
	users    map[string]*users.User
	emailIds map[string]string // email to user id
	lock     sync.RWMutex
}

func NewFakeUserRepo() *FakeUserRepo {
	return &FakeUserRepo{
		users:    make(map[string]*users.User),
		emailIds: make(map[string]string),
	}
}

func (ur *FakeUserRepo) Create(_ context.Context, user *users.User) error {
	ur.lock.Lock()
	defer ur.lock.Unlock()

	email := users.NormalizeEmail(user.Email)
	if _, ok := ur.emailIds[email]; ok {
		return users.ErrDuplicateEmail
	}
	if user.ID == "" {
		user.ID = uuid.New().String()
	}
	if user.CreatedAt.IsZero() {
		user.CreatedAt = time.Now().UTC()
	}
	user.Email = email

	ur.users[user.ID] = user.Clone()
	ur.emailIds[email] = user.ID
	return nil
}

func (ur *FakeUserRepo) GetByEmail(_ context.Context, email string) (*users.User, error) {
	ur.lock.RLock()
	defer ur.lock.RUnlock()

	id, ok := ur.emailIds[users.NormalizeEmail(email)]
	if !ok {
		return nil, users.ErrNotFound
	}
	return ur.users[id].Clone(), nil
}

func (ur *FakeUserRepo) GetByID(_ context.Context, id string) (*users.User, error) {
	ur.lock.RLock()
	defer ur.lock.RUnlock()

	u, ok := ur.users[id]
	if !ok {
		return nil, users.ErrNotFound
	}
	return u.Clone(), nil
}

func (ur *FakeUserRepo) SetVerified(_ context.Context, email string, verified bool) error {
	ur.lock.Lock()
	defer ur.lock.Unlock()

	id, ok := ur.emailIds[users.NormalizeEmail(email)]
	if !ok {
		return users.ErrNotFound
	}
	ur.users[id].VerifiedEmail = verified
	return nil
}

func (ur *FakeUserRepo) ConfirmEmail(_ context.Context, userID string) error {
	ur.lock.Lock()
	defer ur.lock.Unlock()

	u, ok := ur.users[userID]
	if !ok {
		return users.ErrNotFound
	}
	u.VerifiedEmail = true
	u.PasswordHash = ""
	return nil
}

func (ur *FakeUserRepo) UpdateProfile(_ context.Context, userID, username string, modes []users.Mode) error {
	ur.lock.Lock()
	defer ur.lock.Unlock()

	u, ok := ur.users[userID]
	if !ok {
		return users.ErrNotFound
	}
	u.Username = username
	u.Modes = append([]users.Mode(nil), modes...)
	return nil
}

func (ur *FakeUserRepo) LinkProvider(_ context.Context, userID string, connect users.Connect) error {
	ur.lock.Lock()
	defer ur.lock.Unlock()

	u, ok := ur.users[userID]
	if !ok {
		return users.ErrNotFound
	}
	for i := range u.Connects {
		if u.Connects[i].Provider == connect.Provider {
			u.Connects[i] = connect
			return nil
		}
	}
	u.Connects = append(u.Connects, connect)
	return nil
}

func (ur *FakeUserRepo) RecordLogin(_ context.Context, userID, ip string) error {
	ur.lock.Lock()
	defer ur.lock.Unlock()

	u, ok := ur.users[userID]
	if !ok {
		return users.ErrNotFound
	}
	if ip == "" {
		return nil
	}
	for _, existing := range u.LoginIPs {
		if existing == ip {
			return nil
		}
	}
	u.LoginIPs = append(u.LoginIPs, ip)
	return nil
}

// Count returns the number of stored accounts.
func (ur *FakeUserRepo) Count() int {
	ur.lock.RLock()
	defer ur.lock.RUnlock()
	return len(ur.users)
}
