package server

import (
	"encoding/json"
	"mime"
	"net"
	"net/http"
	"strconv"
	"strings"

	"github.com/Lipoic/Lipoic-Server/auth"
	"github.com/Lipoic/Lipoic-Server/response"
	"github.com/Lipoic/Lipoic-Server/users"
	"github.com/go-playground/validator/v10"
	"github.com/pkg/errors"
)

var ErrMissingBearer = errors.New("missing bearer token")

type loginRequest struct {
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required"`
}

type signUpRequest struct {
	Email    string   `json:"email" validate:"required,email"`
	Password string   `json:"password" validate:"required,maxbytes=72"`
	Username string   `json:"username" validate:"required,max=64"`
	Modes    []string `json:"modes" validate:"dive,oneof=Student Teacher Parents"`
}

type authURLRequest struct {
	Provider    string `validate:"required"`
	RedirectURI string `validate:"required,url"`
}

type oauthLoginRequest struct {
	Provider         string `validate:"required"`
	Code             string
	State            string
	OAuthRedirectURI string `validate:"omitempty,url"`
}

type editUserInfoRequest struct {
	Username  *string `json:"username" validate:"omitempty,max=64"`
	IsStudent *bool   `json:"is_student"`
	IsTeacher *bool   `json:"is_teacher"`
	IsParents *bool   `json:"is_parents"`
}

func (r editUserInfoRequest) params() auth.EditUserInfoParams {
	return auth.EditUserInfoParams{
		Username: r.Username,
		Student:  r.IsStudent,
		Teacher:  r.IsTeacher,
		Parents:  r.IsParents,
	}
}

// newValidator adds maxbytes, a length limit counted in bytes rather than
// runes, to the stock validator.
func newValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	err := v.RegisterValidation("maxbytes", func(fl validator.FieldLevel) bool {
		limit, err := strconv.Atoi(fl.Param())
		return err == nil && len(fl.Field().String()) <= limit
	})
	if err != nil {
		panic(err)
	}
	return v
}

func (r signUpRequest) modes() []users.Mode {
	modes := make([]users.Mode, 0, len(r.Modes))
	for _, m := range r.Modes {
		if mode, err := users.ParseMode(m); err == nil {
			modes = append(modes, mode)
		}
	}
	return modes
}

// decodeBody fills dst from a JSON body or from form fields keyed by the
// json tag names.
func decodeBody(r *http.Request, dst any, fromForm func(get func(string) string, all func(string) []string)) error {
	mediaType, _, _ := mime.ParseMediaType(r.Header.Get("Content-Type"))
	if mediaType == contentTypeJSON {
		dec := json.NewDecoder(r.Body)
		if err := dec.Decode(dst); err != nil {
			return errors.Wrap(err, "decode json body")
		}
		return nil
	}
	if err := r.ParseMultipartForm(maxBodyBytes); err != nil && !errors.Is(err, http.ErrNotMultipart) {
		return errors.Wrap(err, "parse form")
	}
	fromForm(r.FormValue, func(key string) []string { return r.Form[key] })
	return nil
}

func decodeLogin(r *http.Request) (loginRequest, error) {
	var req loginRequest
	err := decodeBody(r, &req, func(get func(string) string, _ func(string) []string) {
		req.Email = get("email")
		req.Password = get("password")
	})
	return req, err
}

func decodeSignUp(r *http.Request) (signUpRequest, error) {
	var req signUpRequest
	err := decodeBody(r, &req, func(get func(string) string, all func(string) []string) {
		req.Email = get("email")
		req.Password = get("password")
		req.Username = get("username")
		req.Modes = formModes(all("modes"))
	})
	return req, err
}

func decodeEditUserInfo(r *http.Request) (editUserInfoRequest, error) {
	var (
		req     editUserInfoRequest
		formErr error
	)
	err := decodeBody(r, &req, func(get func(string) string, all func(string) []string) {
		if v := all("username"); len(v) > 0 {
			req.Username = &v[0]
		}
		for key, dst := range map[string]**bool{
			"is_student": &req.IsStudent,
			"is_teacher": &req.IsTeacher,
			"is_parents": &req.IsParents,
		} {
			v := all(key)
			if len(v) == 0 {
				continue
			}
			b, err := strconv.ParseBool(v[0])
			if err != nil {
				formErr = errors.Wrapf(err, "parse %s", key)
				continue
			}
			*dst = &b
		}
	})
	if err != nil {
		return req, err
	}
	return req, formErr
}

// formModes accepts repeated modes fields as well as a single JSON array
// such as modes=["Student"].
func formModes(values []string) []string {
	if len(values) == 1 && strings.HasPrefix(strings.TrimSpace(values[0]), "[") {
		var modes []string
		if err := json.Unmarshal([]byte(values[0]), &modes); err == nil {
			return modes
		}
	}
	return values
}

// check validates req and converts failures to InvalidRequest.
func (s *Server) check(req any) error {
	if err := s.validate.Struct(req); err != nil {
		return response.NewError(response.InvalidRequest, err)
	}
	return nil
}

// clientIP returns the first X-Forwarded-For hop when the proxy is trusted,
// else the connection's remote address.
func (s *Server) clientIP(r *http.Request) string {
	if s.config.GetTrustProxy() {
		if fwd := r.Header.Get("X-Forwarded-For"); fwd != "" {
			first, _, _ := strings.Cut(fwd, ",")
			if ip := strings.TrimSpace(first); ip != "" {
				return ip
			}
		}
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}

func bearerToken(r *http.Request) (string, error) {
	scheme, tok, ok := strings.Cut(r.Header.Get("Authorization"), " ")
	if !ok || !strings.EqualFold(scheme, "bearer") || strings.TrimSpace(tok) == "" {
		return "", response.TokenInvalid.Wrap(ErrMissingBearer)
	}
	return strings.TrimSpace(tok), nil
}
