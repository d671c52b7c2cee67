package server_test

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"net/url"
	"regexp"
	"strings"
	"testing"

	"github.com/Lipoic/Lipoic-Server/auth"
	"github.com/Lipoic/Lipoic-Server/auth/flowstore"
	"github.com/Lipoic/Lipoic-Server/internal/config"
	"github.com/Lipoic/Lipoic-Server/mailer"
	"github.com/Lipoic/Lipoic-Server/mailer/senderfake"
	"github.com/Lipoic/Lipoic-Server/oauth"
	"github.com/Lipoic/Lipoic-Server/oauth/providerfake"
	"github.com/Lipoic/Lipoic-Server/response"
	"github.com/Lipoic/Lipoic-Server/server"
	"github.com/Lipoic/Lipoic-Server/token"
	"github.com/Lipoic/Lipoic-Server/users"
	fakeuserrepo "github.com/Lipoic/Lipoic-Server/users/repofake"
	"github.com/stretchr/testify/require"
)

const (
	secretStr      = "0123456789abcdef0123456789abcdef"
	allowedOrigin  = "https://app.lipoic.test"
	redirectURI    = "https://app.lipoic.test/callback"
	forwardedIP    = "198.51.100.23"
	verifyLinkBase = "http://lipoic.test"
)

var linkPattern = regexp.MustCompile(`\((http[^)]+)\)`)

type envelope struct {
	Code response.Code   `json:"code"`
	Data json.RawMessage `json:"data"`
}

type testFixture struct {
	userRepo *fakeuserrepo.FakeUserRepo
	google   *providerfake.Provider
	mail     *senderfake.Sender
	tokens   *token.Manager
	handler  http.Handler
}

func setupTestFixture(t *testing.T, options ...server.ServerOption) *testFixture {
	t.Helper()
	return setupWithSigner(t, nil, options...)
}

func setupWithSigner(t *testing.T, signer token.Signer, options ...server.ServerOption) *testFixture {
	t.Helper()

	cfg, err := config.FromMap(map[string]string{
		"ENV":                  "TEST",
		"TRUST_PROXY":          "true",
		"CORS_ALLOWED_ORIGINS": allowedOrigin,
		"BASE_URL":             verifyLinkBase,
	})
	require.NoError(t, err)

	if signer == nil {
		signer, err = token.NewHMACSigner(secretStr)
		require.NoError(t, err)
	}
	f := &testFixture{
		userRepo: fakeuserrepo.NewFakeUserRepo(),
		google:   providerfake.New(oauth.GoogleProviderName),
		mail:     &senderfake.Sender{},
	}
	f.tokens, err = token.New(signer)
	require.NoError(t, err)

	verification, err := mailer.NewVerificationMailer(f.mail, cfg.GetBaseURL(), "10 minutes")
	require.NoError(t, err)

	flows := flowstore.NewInMemoryRepo()
	service, err := auth.NewService(
		auth.Repos{Users: f.userRepo, States: flows, Once: flows},
		f.tokens,
		oauth.NewRegistry(f.google),
		auth.WithVerificationSender(verification),
	)
	require.NoError(t, err)

	f.handler, err = server.New(cfg, service, f.tokens, options...)
	require.NoError(t, err)
	return f
}

func (f *testFixture) do(t *testing.T, req *http.Request) (*httptest.ResponseRecorder, envelope) {
	t.Helper()
	rec := httptest.NewRecorder()
	f.handler.ServeHTTP(rec, req)

	var env envelope
	if strings.HasPrefix(rec.Header().Get("Content-Type"), "application/json") {
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &env), rec.Body.String())
	}
	return rec, env
}

func postForm(path string, form url.Values) *http.Request {
	req := httptest.NewRequest(http.MethodPost, path, strings.NewReader(form.Encode()))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.Header.Set("X-Forwarded-For", forwardedIP+", 10.0.0.1")
	return req
}

func postJSON(path, body string) *http.Request {
	req := httptest.NewRequest(http.MethodPost, path, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	return req
}

func withBearer(req *http.Request, tok string) *http.Request {
	req.Header.Set("Authorization", "Bearer "+tok)
	return req
}

func decodeData[T any](t *testing.T, env envelope) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(env.Data, &v))
	return v
}

func (f *testFixture) signUp(t *testing.T, email string) string {
	t.Helper()
	rec, env := f.do(t, postForm(server.RouteUserSignUp, url.Values{
		"email":    {email},
		"password": {"pw1"},
		"username": {"alice"},
		"modes":    {`["Student"]`},
	}))
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	require.Equal(t, response.Ok, env.Code)
	return decodeData[auth.Token](t, env).Token
}

// verifyLink returns the path and query of the last verification link mailed.
func (f *testFixture) verifyLink(t *testing.T) string {
	t.Helper()
	sent := f.mail.Sent()
	require.NotEmpty(t, sent)
	m := linkPattern.FindStringSubmatch(sent[len(sent)-1].Text)
	require.Len(t, m, 2)
	u, err := url.Parse(m[1])
	require.NoError(t, err)
	return u.RequestURI()
}

func TestNew(t *testing.T) {
	_, err := server.New(nil, nil, nil)
	require.Error(t, err)
}

func TestSignUpAndLogin(t *testing.T) {
	f := setupTestFixture(t)
	tok := f.signUp(t, "Alice@Example.com")
	require.NotEmpty(t, tok)

	u, err := f.userRepo.GetByEmail(t.Context(), "alice@example.com")
	require.NoError(t, err)
	require.Equal(t, []string{forwardedIP}, u.LoginIPs)
	require.Len(t, u.Modes, 1)

	t.Run("duplicate", func(t *testing.T) {
		rec, env := f.do(t, postForm(server.RouteUserSignUp, url.Values{
			"email": {"alice@example.com"}, "password": {"x"}, "username": {"other"},
		}))
		require.Equal(t, http.StatusConflict, rec.Code)
		require.Equal(t, response.SignUpEmailAlreadyRegistered, env.Code)
		require.Nil(t, env.Data)
	})

	t.Run("invalid fields", func(t *testing.T) {
		rec, env := f.do(t, postJSON(server.RouteUserSignUp, `{"email":"not-an-email","password":"x","username":"u"}`))
		require.Equal(t, http.StatusBadRequest, rec.Code)
		require.Equal(t, response.InvalidRequest, env.Code)

		_, env = f.do(t, postJSON(server.RouteUserSignUp, `{"email":"b@example.com","password":"x","username":"u","modes":["Wizard"]}`))
		require.Equal(t, response.InvalidRequest, env.Code)

		_, env = f.do(t, postJSON(server.RouteUserSignUp, `{"email":`))
		require.Equal(t, response.InvalidRequest, env.Code)
	})

	t.Run("password limit counts bytes", func(t *testing.T) {
		rec, env := f.do(t, postForm(server.RouteUserSignUp, url.Values{
			"email": {"long@example.com"}, "password": {strings.Repeat("é", 40)}, "username": {"long"},
		}))
		require.Equal(t, http.StatusBadRequest, rec.Code)
		require.Equal(t, response.InvalidRequest, env.Code)
		_, err := f.userRepo.GetByEmail(t.Context(), "long@example.com")
		require.Error(t, err)
	})

	t.Run("login with form", func(t *testing.T) {
		rec, env := f.do(t, postForm(server.RouteUserLogin, url.Values{"email": {"alice@example.com"}, "password": {"pw1"}}))
		require.Equal(t, http.StatusOK, rec.Code)
		claims, err := f.tokens.Verify(decodeData[auth.Token](t, env).Token)
		require.NoError(t, err)
		require.Equal(t, "alice", claims.Username)
	})

	t.Run("login with json", func(t *testing.T) {
		_, env := f.do(t, postJSON(server.RouteUserLogin, `{"email":"alice@example.com","password":"pw1"}`))
		require.Equal(t, response.Ok, env.Code)
	})

	t.Run("wrong password", func(t *testing.T) {
		rec, env := f.do(t, postForm(server.RouteUserLogin, url.Values{"email": {"alice@example.com"}, "password": {"nope"}}))
		require.Equal(t, http.StatusUnauthorized, rec.Code)
		require.Equal(t, response.LoginPasswordError, env.Code)
	})

	t.Run("unknown account", func(t *testing.T) {
		rec, env := f.do(t, postForm(server.RouteUserLogin, url.Values{"email": {"nobody@example.com"}, "password": {"pw1"}}))
		require.Equal(t, http.StatusUnauthorized, rec.Code)
		require.Equal(t, response.LoginUserNotFoundError, env.Code)
	})
}

func TestUserInfo(t *testing.T) {
	f := setupTestFixture(t)
	tok := f.signUp(t, "alice@example.com")

	rec, env := f.do(t, withBearer(httptest.NewRequest(http.MethodGet, server.RouteUserInfo, nil), tok))
	require.Equal(t, http.StatusOK, rec.Code)
	info := decodeData[auth.UserInfo](t, env)
	require.Equal(t, "alice", info.Username)
	require.Equal(t, "alice@example.com", info.Email)
	require.False(t, info.Verified)
	require.Empty(t, info.ConnectedProviders)

	for name, header := range map[string]string{
		"missing":  "",
		"scheme":   "Basic " + tok,
		"tampered": "Bearer " + tok + "x",
	} {
		t.Run(name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, server.RouteUserInfo, nil)
			if header != "" {
				req.Header.Set("Authorization", header)
			}
			rec, env := f.do(t, req)
			require.Equal(t, http.StatusUnauthorized, rec.Code)
			require.Equal(t, response.AuthError, env.Code)
		})
	}
}

func TestEditUserInfo(t *testing.T) {
	f := setupTestFixture(t)
	tok := f.signUp(t, "alice@example.com")

	patch := func(body url.Values) *http.Request {
		req := httptest.NewRequest(http.MethodPatch, server.RouteUserInfo, strings.NewReader(body.Encode()))
		req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
		return req
	}

	rec, env := f.do(t, withBearer(patch(url.Values{
		"username":   {"alice b"},
		"is_student": {"false"},
		"is_teacher": {"true"},
	}), tok))
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	info := decodeData[auth.UserInfo](t, env)
	require.Equal(t, "alice b", info.Username)
	require.Equal(t, []users.Mode{users.ModeTeacher}, info.Modes)

	t.Run("json body", func(t *testing.T) {
		req := withBearer(postJSON(server.RouteUserInfo, `{"is_parents":true}`), tok)
		req.Method = http.MethodPatch
		_, env := f.do(t, req)
		require.Equal(t, response.Ok, env.Code)
		info := decodeData[auth.UserInfo](t, env)
		require.Equal(t, "alice b", info.Username)
		require.Equal(t, []users.Mode{users.ModeTeacher, users.ModeParents}, info.Modes)
	})

	t.Run("invalid flag", func(t *testing.T) {
		rec, env := f.do(t, withBearer(patch(url.Values{"is_teacher": {"maybe"}}), tok))
		require.Equal(t, http.StatusBadRequest, rec.Code)
		require.Equal(t, response.InvalidRequest, env.Code)
	})

	t.Run("blank username", func(t *testing.T) {
		_, env := f.do(t, withBearer(patch(url.Values{"username": {" "}}), tok))
		require.Equal(t, response.InvalidRequest, env.Code)
	})

	t.Run("requires a token", func(t *testing.T) {
		rec, env := f.do(t, patch(url.Values{"username": {"x"}}))
		require.Equal(t, http.StatusUnauthorized, rec.Code)
		require.Equal(t, response.AuthError, env.Code)
	})
}

func TestVerifyEmail(t *testing.T) {
	f := setupTestFixture(t)
	tok := f.signUp(t, "alice@example.com")
	link := f.verifyLink(t)
	require.True(t, strings.HasPrefix(link, server.RouteVerifyEmail+"?code="))

	rec, _ := f.do(t, httptest.NewRequest(http.MethodGet, link, nil))
	require.Equal(t, http.StatusOK, rec.Code)
	require.Equal(t, "email verified", rec.Body.String())

	u, err := f.userRepo.GetByEmail(t.Context(), "alice@example.com")
	require.NoError(t, err)
	require.True(t, u.VerifiedEmail)

	t.Run("replay", func(t *testing.T) {
		rec, env := f.do(t, httptest.NewRequest(http.MethodGet, link, nil))
		require.Equal(t, http.StatusUnauthorized, rec.Code)
		require.Equal(t, response.VerifyEmailError, env.Code)
	})

	t.Run("garbage", func(t *testing.T) {
		_, env := f.do(t, httptest.NewRequest(http.MethodGet, server.RouteVerifyEmail+"?code=abc", nil))
		require.Equal(t, response.VerifyEmailError, env.Code)
		_, env = f.do(t, httptest.NewRequest(http.MethodGet, server.RouteVerifyEmail, nil))
		require.Equal(t, response.VerifyEmailError, env.Code)
	})

	t.Run("resend after verification", func(t *testing.T) {
		rec, env := f.do(t, withBearer(httptest.NewRequest(http.MethodPost, server.RouteResendVerification, nil), tok))
		require.Equal(t, http.StatusUnauthorized, rec.Code)
		require.Equal(t, response.VerifyEmailError, env.Code)
	})
}

func TestResendVerification(t *testing.T) {
	f := setupTestFixture(t)
	tok := f.signUp(t, "alice@example.com")
	require.Len(t, f.mail.Sent(), 1)

	rec, env := f.do(t, withBearer(httptest.NewRequest(http.MethodPost, server.RouteResendVerification, nil), tok))
	require.Equal(t, http.StatusOK, rec.Code)
	require.Equal(t, response.Ok, env.Code)
	require.Nil(t, env.Data)
	require.Len(t, f.mail.Sent(), 2)

	rec, _ = f.do(t, httptest.NewRequest(http.MethodGet, f.verifyLink(t), nil))
	require.Equal(t, http.StatusOK, rec.Code)
}

func TestOAuthLogin(t *testing.T) {
	f := setupTestFixture(t)
	f.google.AddCode("code-1", oauth.UserInfo{ID: "g-1", Email: "bob@example.com", Name: "Bob", VerifiedEmail: true})

	rec, env := f.do(t, httptest.NewRequest(http.MethodGet,
		"/authentication/google/url?redirect_uri="+url.QueryEscape(redirectURI), nil))
	require.Equal(t, http.StatusOK, rec.Code)
	authURL := decodeData[auth.AuthURL](t, env)
	require.NotEmpty(t, authURL.State)
	require.Contains(t, authURL.URL, url.QueryEscape(authURL.State))

	callback := "/authentication/google?" + url.Values{
		"code":               {"code-1"},
		"state":              {authURL.State},
		"oauth_redirect_uri": {redirectURI},
	}.Encode()
	req := httptest.NewRequest(http.MethodGet, callback, nil)
	req.Header.Set("X-Forwarded-For", forwardedIP)
	rec, env = f.do(t, req)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	claims, err := f.tokens.Verify(decodeData[auth.Token](t, env).Token)
	require.NoError(t, err)
	require.True(t, claims.VerifiedEmail)

	u, err := f.userRepo.GetByEmail(t.Context(), "bob@example.com")
	require.NoError(t, err)
	require.Equal(t, []string{forwardedIP}, u.LoginIPs)

	t.Run("replayed callback", func(t *testing.T) {
		rec, env := f.do(t, httptest.NewRequest(http.MethodGet, callback, nil))
		require.Equal(t, http.StatusBadRequest, rec.Code)
		require.Equal(t, response.OAuthCodeError, env.Code)
	})

	t.Run("missing state or code", func(t *testing.T) {
		rec, env := f.do(t, httptest.NewRequest(http.MethodGet, "/authentication/google?code=code-1", nil))
		require.Equal(t, http.StatusBadRequest, rec.Code)
		require.Equal(t, response.OAuthCodeError, env.Code)

		rec, env = f.do(t, httptest.NewRequest(http.MethodGet, "/authentication/google?state=abc", nil))
		require.Equal(t, http.StatusBadRequest, rec.Code)
		require.Equal(t, response.OAuthCodeError, env.Code)
	})

	t.Run("unknown provider", func(t *testing.T) {
		rec, env := f.do(t, httptest.NewRequest(http.MethodGet,
			"/authentication/myspace/url?redirect_uri="+url.QueryEscape(redirectURI), nil))
		require.Equal(t, http.StatusNotFound, rec.Code)
		require.Equal(t, response.NotFound, env.Code)
	})

	t.Run("redirect required", func(t *testing.T) {
		_, env := f.do(t, httptest.NewRequest(http.MethodGet, "/authentication/google/url", nil))
		require.Equal(t, response.InvalidRequest, env.Code)
	})
}

func TestJWKS(t *testing.T) {
	t.Run("hmac has no key set", func(t *testing.T) {
		f := setupTestFixture(t)
		rec, env := f.do(t, httptest.NewRequest(http.MethodGet, server.RouteWellKnownJWKS, nil))
		require.Equal(t, http.StatusNotFound, rec.Code)
		require.Equal(t, response.NotFound, env.Code)
	})

	t.Run("rsa publishes the public key", func(t *testing.T) {
		kp, err := token.GenerateRSAKeyPair(2048)
		require.NoError(t, err)
		signer, err := token.NewKeyPairSigner(kp)
		require.NoError(t, err)
		f := setupWithSigner(t, signer)

		rec := httptest.NewRecorder()
		f.handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, server.RouteWellKnownJWKS, nil))
		require.Equal(t, http.StatusOK, rec.Code)

		var jwks token.JWKS
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &jwks))
		require.Len(t, jwks.Keys, 1)
		require.Equal(t, kp.KeyID, jwks.Keys[0].Kid)
	})
}

func TestHealth(t *testing.T) {
	t.Run("healthy", func(t *testing.T) {
		f := setupTestFixture(t, server.WithHealthCheck("store", func(*http.Request) error { return nil }))
		rec, env := f.do(t, httptest.NewRequest(http.MethodGet, server.RouteHealth, nil))
		require.Equal(t, http.StatusOK, rec.Code)
		require.Equal(t, response.Ok, env.Code)
		require.Contains(t, string(env.Data), "google")
	})

	t.Run("dependency down", func(t *testing.T) {
		f := setupTestFixture(t, server.WithHealthCheck("redis", func(*http.Request) error { return errors.New("dial tcp: refused") }))
		rec, env := f.do(t, httptest.NewRequest(http.MethodGet, server.RouteHealth, nil))
		require.Equal(t, http.StatusServiceUnavailable, rec.Code)
		require.Equal(t, response.ServerError, env.Code)
	})
}

func TestNotFound(t *testing.T) {
	f := setupTestFixture(t)
	for _, req := range []*http.Request{
		httptest.NewRequest(http.MethodGet, "/nope", nil),
		httptest.NewRequest(http.MethodGet, server.RouteUserLogin, nil),
	} {
		rec, env := f.do(t, req)
		require.Equal(t, http.StatusNotFound, rec.Code)
		require.Equal(t, response.NotFound, env.Code)
		require.Equal(t, "{\"code\":2}\n", rec.Body.String())
	}
}

func TestCors(t *testing.T) {
	f := setupTestFixture(t)

	t.Run("preflight from allowed origin", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodOptions, server.RouteUserLogin, nil)
		req.Header.Set("Origin", allowedOrigin)
		rec := httptest.NewRecorder()
		f.handler.ServeHTTP(rec, req)
		require.Equal(t, http.StatusNoContent, rec.Code)
		require.Equal(t, allowedOrigin, rec.Header().Get("Access-Control-Allow-Origin"))
		require.NotEmpty(t, rec.Header().Get("Access-Control-Allow-Methods"))
	})

	t.Run("other origin", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, server.RouteHealth, nil)
		req.Header.Set("Origin", "https://evil.test")
		rec := httptest.NewRecorder()
		f.handler.ServeHTTP(rec, req)
		require.Equal(t, http.StatusOK, rec.Code)
		require.Empty(t, rec.Header().Get("Access-Control-Allow-Origin"))
	})
}

func TestBodyLimit(t *testing.T) {
	f := setupTestFixture(t)
	big := `{"email":"a@example.com","password":"` + strings.Repeat("x", 2<<20) + `"}`
	rec, env := f.do(t, postJSON(server.RouteUserLogin, big))
	require.Equal(t, http.StatusBadRequest, rec.Code)
	require.Equal(t, response.InvalidRequest, env.Code)
}

func TestRecover(t *testing.T) {
	f := setupTestFixture(t, server.WithHealthCheck("panics", func(*http.Request) error { panic("boom") }))
	rec := httptest.NewRecorder()
	f.handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, server.RouteHealth, nil))
	require.Equal(t, http.StatusInternalServerError, rec.Code)

	body, err := io.ReadAll(rec.Body)
	require.NoError(t, err)
	require.JSONEq(t, `{"code":11}`, string(body))
}
