package auth_test

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/Lipoic/Lipoic-Server/auth"
	"github.com/Lipoic/Lipoic-Server/response"
	"github.com/Lipoic/Lipoic-Server/users"
	"github.com/stretchr/testify/require"
)

func TestSignUp(t *testing.T) {
	ctx := context.Background()

	t.Run("creates unverified account and returns token", func(t *testing.T) {
		f := setupTestFixture(t)
		raw := f.signUp(t, "a@x.com", "pw1", "alice")

		claims, err := f.tokens.Verify(raw)
		require.NoError(t, err)
		require.False(t, claims.VerifiedEmail)
		require.Equal(t, "a@x.com", claims.Email)

		u, err := f.userRepo.GetByEmail(ctx, "a@x.com")
		require.NoError(t, err)
		require.Equal(t, claims.Subject, u.ID)
		require.Equal(t, "alice", u.Username)
		require.False(t, u.VerifiedEmail)
		require.NotEqual(t, "pw1", u.PasswordHash)
		require.Equal(t, []string{testClientIP}, u.LoginIPs)
		require.NotEmpty(t, f.mail.lastCode(t, "a@x.com"))
	})

	t.Run("second signup with same email is rejected", func(t *testing.T) {
		f := setupTestFixture(t)
		f.signUp(t, "a@x.com", "pw1", "alice")

		_, err := f.service.SignUp(ctx, auth.SignUpParams{Email: "a@x.com", Password: "pw2", Username: "alice2", ClientIP: testClientIP})
		requireCode(t, response.SignUpEmailAlreadyRegistered, err)
		require.Equal(t, 1, f.userRepo.Count())

		_, err = f.service.SignUp(ctx, auth.SignUpParams{Email: " A@X.COM ", Password: "pw3", Username: "alice3"})
		requireCode(t, response.SignUpEmailAlreadyRegistered, err)
		require.Equal(t, 1, f.userRepo.Count())
	})

	t.Run("concurrent signups create one account", func(t *testing.T) {
		f := setupTestFixture(t)
		var (
			wg        sync.WaitGroup
			ok        atomic.Int32
			duplicate atomic.Int32
		)
		for i := range 6 {
			wg.Add(1)
			go func() {
				defer wg.Done()
				_, err := f.service.SignUp(ctx, auth.SignUpParams{Email: "race@x.com", Password: "pw", Username: fmt.Sprint("u", i)})
				switch response.CodeOf(err) {
				case response.Ok:
					ok.Add(1)
				case response.SignUpEmailAlreadyRegistered:
					duplicate.Add(1)
				}
			}()
		}
		wg.Wait()
		require.Equal(t, int32(1), ok.Load())
		require.Equal(t, int32(5), duplicate.Load())
		require.Equal(t, 1, f.userRepo.Count())
	})

	t.Run("mail failure does not fail signup", func(t *testing.T) {
		f := setupTestFixture(t)
		f.mail.err = errors.New("smtp down")
		f.signUp(t, "a@x.com", "pw1", "alice")
		require.Equal(t, 1, f.userRepo.Count())
	})

	t.Run("missing fields", func(t *testing.T) {
		f := setupTestFixture(t)
		for _, p := range []auth.SignUpParams{
			{Password: "pw", Username: "u"},
			{Email: "a@x.com", Username: "u"},
			{Email: "a@x.com", Password: "pw", Username: "  "},
		} {
			_, err := f.service.SignUp(ctx, p)
			requireCode(t, response.InvalidRequest, err)
		}
		require.Equal(t, 0, f.userRepo.Count())
	})

	t.Run("password limit counts bytes", func(t *testing.T) {
		f := setupTestFixture(t)
		// 40 runes, 80 bytes.
		long := strings.Repeat("é", 40)
		_, err := f.service.SignUp(ctx, auth.SignUpParams{Email: "a@x.com", Password: long, Username: "u"})
		requireCode(t, response.InvalidRequest, err)
		require.Equal(t, 0, f.userRepo.Count())

		f.signUp(t, "b@x.com", strings.Repeat("é", 36), "b")
		_, err = f.service.Login(ctx, "b@x.com", strings.Repeat("é", 36), testClientIP)
		require.NoError(t, err)
	})
}

func TestLogin(t *testing.T) {
	ctx := context.Background()

	t.Run("scenarios", func(t *testing.T) {
		f := setupTestFixture(t)
		f.signUp(t, "a@x.com", "pw1", "alice")

		_, err := f.service.Login(ctx, "missing@x.com", "anything", testClientIP)
		requireCode(t, response.LoginUserNotFoundError, err)

		_, err = f.service.Login(ctx, "a@x.com", "wrongpw", testClientIP)
		requireCode(t, response.LoginPasswordError, err)

		tok, err := f.service.Login(ctx, "a@x.com", "pw1", testClientIP)
		require.NoError(t, err)

		claims, err := f.tokens.Verify(tok.Token)
		require.NoError(t, err)
		u, err := f.userRepo.GetByEmail(ctx, "a@x.com")
		require.NoError(t, err)
		require.Equal(t, u.ID, claims.Subject)
	})

	t.Run("email is case insensitive", func(t *testing.T) {
		f := setupTestFixture(t)
		f.signUp(t, "a@x.com", "pw1", "alice")
		_, err := f.service.Login(ctx, "  A@X.com", "pw1", testClientIP)
		require.NoError(t, err)
	})

	t.Run("records login ip", func(t *testing.T) {
		f := setupTestFixture(t)
		f.signUp(t, "a@x.com", "pw1", "alice")
		_, err := f.service.Login(ctx, "a@x.com", "pw1", "198.51.100.1")
		require.NoError(t, err)

		u, err := f.userRepo.GetByEmail(ctx, "a@x.com")
		require.NoError(t, err)
		require.ElementsMatch(t, []string{testClientIP, "198.51.100.1"}, u.LoginIPs)
	})

	t.Run("oauth-only account has no password", func(t *testing.T) {
		f := setupTestFixture(t)
		require.NoError(t, f.userRepo.Create(ctx, &users.User{Username: "o", Email: "o@x.com", VerifiedEmail: true}))

		_, err := f.service.Login(ctx, "o@x.com", "", testClientIP)
		requireCode(t, response.LoginPasswordError, err)
		require.ErrorIs(t, err, auth.ErrNoPassword)
	})
}

func TestUserInfo(t *testing.T) {
	ctx := context.Background()

	t.Run("projection of the account", func(t *testing.T) {
		f := setupTestFixture(t)
		raw := f.signUp(t, "a@x.com", "pw1", "alice")
		u, err := f.userRepo.GetByEmail(ctx, "a@x.com")
		require.NoError(t, err)
		require.NoError(t, f.userRepo.LinkProvider(ctx, u.ID, users.Connect{Provider: "google", Name: "Alice", Email: "a@x.com"}))

		info, err := f.service.UserInfo(ctx, raw)
		require.NoError(t, err)
		require.Equal(t, "alice", info.Username)
		require.Equal(t, "a@x.com", info.Email)
		require.False(t, info.Verified)
		require.Equal(t, []users.Mode{users.ModeStudent}, info.Modes)
		require.Equal(t, []string{"google"}, info.ConnectedProviders)
		require.Len(t, info.Connects, 1)
	})

	t.Run("invalid token", func(t *testing.T) {
		f := setupTestFixture(t)
		_, err := f.service.UserInfo(ctx, "garbage")
		requireCode(t, response.AuthError, err)
		require.ErrorIs(t, err, response.TokenInvalid)
	})

	t.Run("account removed after issue", func(t *testing.T) {
		f := setupTestFixture(t)
		raw, err := f.tokens.Issue(&users.User{ID: "ghost", Email: "g@x.com"})
		require.NoError(t, err)

		_, err = f.service.UserInfo(ctx, raw)
		requireCode(t, response.LoginUserNotFoundError, err)
	})
}

func TestEditUserInfo(t *testing.T) {
	ctx := context.Background()
	ptr := func(v bool) *bool { return &v }

	t.Run("updates username and toggles modes", func(t *testing.T) {
		f := setupTestFixture(t)
		raw := f.signUp(t, "a@x.com", "pw1", "alice")
		name := "  Alice B  "

		info, err := f.service.EditUserInfo(ctx, raw, auth.EditUserInfoParams{
			Username: &name,
			Student:  ptr(false),
			Teacher:  ptr(true),
			Parents:  ptr(true),
		})
		require.NoError(t, err)
		require.Equal(t, "Alice B", info.Username)
		require.Equal(t, []users.Mode{users.ModeTeacher, users.ModeParents}, info.Modes)

		u, err := f.userRepo.GetByEmail(ctx, "a@x.com")
		require.NoError(t, err)
		require.Equal(t, "Alice B", u.Username)
		require.Equal(t, []users.Mode{users.ModeTeacher, users.ModeParents}, u.Modes)
		require.True(t, u.HasPassword())
	})

	t.Run("absent fields are left alone", func(t *testing.T) {
		f := setupTestFixture(t)
		raw := f.signUp(t, "a@x.com", "pw1", "alice")

		info, err := f.service.EditUserInfo(ctx, raw, auth.EditUserInfoParams{Student: ptr(true)})
		require.NoError(t, err)
		require.Equal(t, "alice", info.Username)
		require.Equal(t, []users.Mode{users.ModeStudent}, info.Modes)

		info, err = f.service.EditUserInfo(ctx, raw, auth.EditUserInfoParams{Student: ptr(false)})
		require.NoError(t, err)
		require.Equal(t, []users.Mode{}, info.Modes)
	})

	t.Run("blank username", func(t *testing.T) {
		f := setupTestFixture(t)
		raw := f.signUp(t, "a@x.com", "pw1", "alice")
		blank := "   "

		_, err := f.service.EditUserInfo(ctx, raw, auth.EditUserInfoParams{Username: &blank})
		requireCode(t, response.InvalidRequest, err)

		u, err := f.userRepo.GetByEmail(ctx, "a@x.com")
		require.NoError(t, err)
		require.Equal(t, "alice", u.Username)
	})

	t.Run("invalid token", func(t *testing.T) {
		f := setupTestFixture(t)
		_, err := f.service.EditUserInfo(ctx, "garbage", auth.EditUserInfoParams{})
		requireCode(t, response.AuthError, err)
	})
}
