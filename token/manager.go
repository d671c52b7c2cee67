package token

import (
	"strings"
	"time"

	"github.com/Lipoic/Lipoic-Server/response"
	"github.com/Lipoic/Lipoic-Server/users"
	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/pkg/errors"
)

const (
	DefaultSessionExpiry      = 7 * 24 * time.Hour
	DefaultVerificationExpiry = 10 * time.Minute

	purposeSession     = "session"
	purposeVerifyEmail = "verify_email"
)

// Claims is the payload of a session token.
type Claims struct {
	Email         string       `json:"email"`
	Username      string       `json:"username"`
	VerifiedEmail bool         `json:"verified_email"`
	Modes         []users.Mode `json:"modes,omitempty"`
	Purpose       string       `json:"purpose"`
	jwt.RegisteredClaims
}

// VerificationClaims is the payload of an e-mail verification code.
type VerificationClaims struct {
	Email   string `json:"email"`
	Purpose string `json:"purpose"`
	jwt.RegisteredClaims
}

type Manager struct {
	signer             Signer
	issuer             string
	sessionExpiry      time.Duration
	verificationExpiry time.Duration
	nowFunc            func() time.Time
}

type ManagerOption func(*Manager)

func WithNowFunc(now func() time.Time) ManagerOption {
	return func(m *Manager) {
		m.nowFunc = now
	}
}

func WithIssuer(issuer string) ManagerOption {
	return func(m *Manager) {
		m.issuer = issuer
	}
}

func WithSessionExpiry(expiry time.Duration) ManagerOption {
	return func(m *Manager) {
		m.sessionExpiry = expiry
	}
}

func WithVerificationExpiry(expiry time.Duration) ManagerOption {
	return func(m *Manager) {
		m.verificationExpiry = expiry
	}
}

func New(signer Signer, options ...ManagerOption) (*Manager, error) {
	if signer == nil {
		return nil, errors.New("[token.New] signer is required")
	}
	m := &Manager{signer: signer}
	for _, opt := range options {
		opt(m)
	}

	if m.sessionExpiry <= 0 {
		m.sessionExpiry = DefaultSessionExpiry
	}
	if m.verificationExpiry <= 0 {
		m.verificationExpiry = DefaultVerificationExpiry
	}
	if m.nowFunc == nil {
		m.nowFunc = time.Now
	}
	return m, nil
}

// Issue signs a session token for user, valid for the session window.
func (m *Manager) Issue(user *users.User) (string, error) {
	if user == nil || user.ID == "" {
		return "", errors.New("[Manager.Issue] user id is required")
	}
	now := m.nowFunc()
	claims := &Claims{
		Email:            user.Email,
		Username:         user.Username,
		VerifiedEmail:    user.VerifiedEmail,
		Modes:            user.Modes,
		Purpose:          purposeSession,
		RegisteredClaims: m.registered(user.ID, now, m.sessionExpiry),
	}
	signed, err := m.signer.Sign(claims)
	if err != nil {
		return "", errors.Wrap(err, "[Manager.Issue] sign")
	}
	return signed, nil
}

// Verify checks the signature and expiry of a session token. Every failure is
// reported as response.TokenInvalid; the cause is kept for logging.
func (m *Manager) Verify(raw string) (*Claims, error) {
	claims := &Claims{}
	if err := m.parse(raw, claims); err != nil {
		return nil, response.TokenInvalid.Wrap(err)
	}
	if claims.Purpose != purposeSession || claims.Subject == "" {
		return nil, response.TokenInvalid.Wrap(errors.New("not a session token"))
	}
	return claims, nil
}

// IssueEmailVerification signs a short lived code proving ownership of email.
func (m *Manager) IssueEmailVerification(email string) (string, error) {
	email = users.NormalizeEmail(email)
	if email == "" {
		return "", errors.New("[Manager.IssueEmailVerification] email is required")
	}
	claims := &VerificationClaims{
		Email:            email,
		Purpose:          purposeVerifyEmail,
		RegisteredClaims: m.registered("", m.nowFunc(), m.verificationExpiry),
	}
	signed, err := m.signer.Sign(claims)
	if err != nil {
		return "", errors.Wrap(err, "[Manager.IssueEmailVerification] sign")
	}
	return signed, nil
}

// VerifyEmailVerification checks a verification code. Failures are reported
// as response.VerifyEmailError.
func (m *Manager) VerifyEmailVerification(raw string) (*VerificationClaims, error) {
	claims := &VerificationClaims{}
	if err := m.parse(raw, claims); err != nil {
		return nil, response.NewError(response.VerifyEmailError, err)
	}
	if claims.Purpose != purposeVerifyEmail || claims.Email == "" || claims.ID == "" {
		return nil, response.NewError(response.VerifyEmailError, errors.New("not a verification code"))
	}
	return claims, nil
}

// JWKS returns the public key set, or false when tokens are signed with a shared secret.
func (m *Manager) JWKS() (*JWKS, bool) {
	kp, ok := m.signer.(*KeyPairSigner)
	if !ok {
		return nil, false
	}
	return kp.JWKS(), true
}

func (m *Manager) registered(subject string, now time.Time, ttl time.Duration) jwt.RegisteredClaims {
	return jwt.RegisteredClaims{
		Issuer:    m.issuer,
		Subject:   subject,
		IssuedAt:  jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		ID:        uuid.New().String(),
	}
}

func (m *Manager) parse(raw string, claims jwt.Claims) error {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return errors.New("empty token")
	}
	opts := []jwt.ParserOption{
		jwt.WithValidMethods([]string{m.signer.SigningMethod().Alg()}),
		jwt.WithExpirationRequired(),
		jwt.WithIssuedAt(),
		jwt.WithTimeFunc(m.nowFunc),
	}
	if m.issuer != "" {
		opts = append(opts, jwt.WithIssuer(m.issuer))
	}
	token, err := jwt.ParseWithClaims(raw, claims, m.signer.VerificationKey, opts...)
	if err != nil {
		return err
	}
	if !token.Valid {
		return errors.New("token is not valid")
	}
	return nil
}
