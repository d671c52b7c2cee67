// Package userstest holds the behaviour every users.Repo implementation must share.
package userstest

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/Lipoic/Lipoic-Server/users"
	"github.com/stretchr/testify/require"
)

// RunRepoContract exercises repo against the users.Repo contract. newRepo must
// return an empty store.
func RunRepoContract(t *testing.T, newRepo func(t *testing.T) users.Repo) {
	t.Helper()
	ctx := context.Background()

	t.Run("create and lookup", func(t *testing.T) {
		repo := newRepo(t)
		u := &users.User{
			Username:     "alice",
			Email:        " Alice@Example.com ",
			PasswordHash: "hash",
			Modes:        []users.Mode{users.ModeStudent, users.ModeTeacher},
		}
		require.NoError(t, repo.Create(ctx, u))
		require.NotEmpty(t, u.ID)
		require.Equal(t, "alice@example.com", u.Email)

		byEmail, err := repo.GetByEmail(ctx, "ALICE@example.com")
		require.NoError(t, err)
		require.Equal(t, u.ID, byEmail.ID)
		require.Equal(t, "alice", byEmail.Username)
		require.Equal(t, "hash", byEmail.PasswordHash)
		require.False(t, byEmail.VerifiedEmail)
		require.Equal(t, []users.Mode{users.ModeStudent, users.ModeTeacher}, byEmail.Modes)

		byID, err := repo.GetByID(ctx, u.ID)
		require.NoError(t, err)
		require.Equal(t, byEmail.Email, byID.Email)
	})

	t.Run("missing user", func(t *testing.T) {
		repo := newRepo(t)
		_, err := repo.GetByEmail(ctx, "nobody@example.com")
		require.ErrorIs(t, err, users.ErrNotFound)
		_, err = repo.GetByID(ctx, "nope")
		require.ErrorIs(t, err, users.ErrNotFound)
		require.ErrorIs(t, repo.SetVerified(ctx, "nobody@example.com", true), users.ErrNotFound)
		require.ErrorIs(t, repo.ConfirmEmail(ctx, "nope"), users.ErrNotFound)
		require.ErrorIs(t, repo.UpdateProfile(ctx, "nope", "x", nil), users.ErrNotFound)
		require.ErrorIs(t, repo.LinkProvider(ctx, "nope", users.Connect{Provider: "google"}), users.ErrNotFound)
		require.ErrorIs(t, repo.RecordLogin(ctx, "nope", "127.0.0.1"), users.ErrNotFound)
	})

	t.Run("duplicate email is case insensitive", func(t *testing.T) {
		repo := newRepo(t)
		require.NoError(t, repo.Create(ctx, &users.User{Username: "a", Email: "a@x.com"}))
		err := repo.Create(ctx, &users.User{Username: "b", Email: "A@X.COM"})
		require.ErrorIs(t, err, users.ErrDuplicateEmail)

		u, err := repo.GetByEmail(ctx, "a@x.com")
		require.NoError(t, err)
		require.Equal(t, "a", u.Username)
	})

	t.Run("concurrent signups create exactly one account", func(t *testing.T) {
		repo := newRepo(t)
		var (
			wg        sync.WaitGroup
			created   atomic.Int32
			duplicate atomic.Int32
		)
		for i := 0; i < 8; i++ {
			wg.Add(1)
			go func(i int) {
				defer wg.Done()
				err := repo.Create(ctx, &users.User{Username: fmt.Sprintf("user-%d", i), Email: "race@x.com"})
				switch {
				case err == nil:
					created.Add(1)
				case err == users.ErrDuplicateEmail:
					duplicate.Add(1)
				}
			}(i)
		}
		wg.Wait()
		require.Equal(t, int32(1), created.Load())
		require.Equal(t, int32(7), duplicate.Load())
	})

	t.Run("set verified", func(t *testing.T) {
		repo := newRepo(t)
		u := &users.User{Username: "v", Email: "v@x.com"}
		require.NoError(t, repo.Create(ctx, u))
		require.NoError(t, repo.SetVerified(ctx, "V@x.com", true))

		got, err := repo.GetByID(ctx, u.ID)
		require.NoError(t, err)
		require.True(t, got.VerifiedEmail)
	})

	t.Run("confirm email drops the password", func(t *testing.T) {
		repo := newRepo(t)
		u := &users.User{Username: "p", Email: "p@x.com", PasswordHash: "hash"}
		require.NoError(t, repo.Create(ctx, u))
		require.NoError(t, repo.ConfirmEmail(ctx, u.ID))

		got, err := repo.GetByID(ctx, u.ID)
		require.NoError(t, err)
		require.True(t, got.VerifiedEmail)
		require.False(t, got.HasPassword())
		require.Equal(t, "p@x.com", got.Email)
	})

	t.Run("update profile", func(t *testing.T) {
		repo := newRepo(t)
		u := &users.User{Username: "before", Email: "up@x.com", PasswordHash: "hash", Modes: []users.Mode{users.ModeStudent}}
		require.NoError(t, repo.Create(ctx, u))
		require.NoError(t, repo.UpdateProfile(ctx, u.ID, "after", []users.Mode{users.ModeTeacher, users.ModeParents}))

		got, err := repo.GetByID(ctx, u.ID)
		require.NoError(t, err)
		require.Equal(t, "after", got.Username)
		require.Equal(t, []users.Mode{users.ModeTeacher, users.ModeParents}, got.Modes)
		require.Equal(t, "hash", got.PasswordHash)

		require.NoError(t, repo.UpdateProfile(ctx, u.ID, "after", nil))
		got, err = repo.GetByID(ctx, u.ID)
		require.NoError(t, err)
		require.Empty(t, got.Modes)
	})

	t.Run("link provider upserts per provider", func(t *testing.T) {
		repo := newRepo(t)
		u := &users.User{Username: "l", Email: "l@x.com"}
		require.NoError(t, repo.Create(ctx, u))

		require.NoError(t, repo.LinkProvider(ctx, u.ID, users.Connect{Provider: "google", Name: "L", Email: "l@x.com"}))
		require.NoError(t, repo.LinkProvider(ctx, u.ID, users.Connect{Provider: "facebook", Name: "L fb", Email: "l@x.com"}))
		require.NoError(t, repo.LinkProvider(ctx, u.ID, users.Connect{Provider: "google", Name: "L renamed", Email: "l@x.com"}))

		got, err := repo.GetByID(ctx, u.ID)
		require.NoError(t, err)
		require.Len(t, got.Connects, 2)
		require.Equal(t, []string{"facebook", "google"}, got.ConnectedProviders())
		for _, c := range got.Connects {
			if c.Provider == "google" {
				require.Equal(t, "L renamed", c.Name)
			}
		}
	})

	t.Run("record login keeps a set of ips", func(t *testing.T) {
		repo := newRepo(t)
		u := &users.User{Username: "ip", Email: "ip@x.com"}
		require.NoError(t, repo.Create(ctx, u))

		require.NoError(t, repo.RecordLogin(ctx, u.ID, "10.0.0.1"))
		require.NoError(t, repo.RecordLogin(ctx, u.ID, "10.0.0.1"))
		require.NoError(t, repo.RecordLogin(ctx, u.ID, "10.0.0.2"))
		require.NoError(t, repo.RecordLogin(ctx, u.ID, ""))

		got, err := repo.GetByID(ctx, u.ID)
		require.NoError(t, err)
		require.ElementsMatch(t, []string{"10.0.0.1", "10.0.0.2"}, got.LoginIPs)
	})

	t.Run("returned users are copies", func(t *testing.T) {
		repo := newRepo(t)
		u := &users.User{Username: "c", Email: "c@x.com"}
		require.NoError(t, repo.Create(ctx, u))

		got, err := repo.GetByID(ctx, u.ID)
		require.NoError(t, err)
		got.Username = "mutated"

		again, err := repo.GetByID(ctx, u.ID)
		require.NoError(t, err)
		require.Equal(t, "c", again.Username)
	})
}
