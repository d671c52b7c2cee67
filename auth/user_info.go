package auth

import (
	"context"
	"slices"
	"strings"

	"github.com/Lipoic/Lipoic-Server/response"
	"github.com/Lipoic/Lipoic-Server/users"
	"github.com/pkg/errors"
)

// EditUserInfoParams carries a partial profile update. Nil fields are left
// unchanged; a mode flag adds the mode when true and removes it when false.
type EditUserInfoParams struct {
	Username *string
	Student  *bool
	Teacher  *bool
	Parents  *bool
}

// UserInfo returns the account behind a session token.
func (s *Service) UserInfo(ctx context.Context, rawToken string) (*UserInfo, error) {
	user, err := s.currentUser(ctx, rawToken)
	if err != nil {
		return nil, err
	}
	return projectUser(user), nil
}

// EditUserInfo updates the username and modes of the account behind a
// session token and returns the updated projection.
func (s *Service) EditUserInfo(ctx context.Context, rawToken string, params EditUserInfoParams) (*UserInfo, error) {
	user, err := s.currentUser(ctx, rawToken)
	if err != nil {
		return nil, err
	}

	username := user.Username
	if params.Username != nil {
		username = strings.TrimSpace(*params.Username)
		if username == "" {
			return nil, fail(response.InvalidRequest, errors.New("username must not be empty"))
		}
	}

	modes := slices.Clone(user.Modes)
	modes = toggleMode(modes, users.ModeStudent, params.Student)
	modes = toggleMode(modes, users.ModeTeacher, params.Teacher)
	modes = toggleMode(modes, users.ModeParents, params.Parents)

	err = s.repos.Users.UpdateProfile(ctx, user.ID, username, modes)
	if errors.Is(err, users.ErrNotFound) {
		return nil, fail(response.LoginUserNotFoundError, err)
	}
	if err != nil {
		return nil, serverError(errors.Wrap(err, "[Service.EditUserInfo] UpdateProfile"))
	}

	user.Username = username
	user.Modes = modes
	return projectUser(user), nil
}

func toggleMode(modes []users.Mode, mode users.Mode, on *bool) []users.Mode {
	if on == nil {
		return modes
	}
	has := slices.Contains(modes, mode)
	switch {
	case *on && !has:
		return append(modes, mode)
	case !*on && has:
		return slices.DeleteFunc(modes, func(m users.Mode) bool { return m == mode })
	}
	return modes
}

func projectUser(user *users.User) *UserInfo {
	info := &UserInfo{
		Username:           user.Username,
		Email:              user.Email,
		Verified:           user.VerifiedEmail,
		Modes:              user.Modes,
		ConnectedProviders: user.ConnectedProviders(),
		Connects:           user.Connects,
	}
	if info.Modes == nil {
		info.Modes = []users.Mode{}
	}
	if info.Connects == nil {
		info.Connects = []users.Connect{}
	}
	return info
}

func (s *Service) currentUser(ctx context.Context, rawToken string) (*users.User, error) {
	claims, err := s.tokens.Verify(rawToken)
	if err != nil {
		return nil, err
	}
	user, err := s.repos.Users.GetByID(ctx, claims.Subject)
	if errors.Is(err, users.ErrNotFound) {
		return nil, fail(response.LoginUserNotFoundError, err)
	}
	if err != nil {
		return nil, serverError(errors.Wrap(err, "[Service.currentUser] GetByID"))
	}
	return user, nil
}
