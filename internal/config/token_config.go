package config

import "time"

type TokenConfig interface {
	GetTokenSecret() string
	GetTokenPrivateKeyFile() string
	GetTokenIssuer() string
	GetSessionTokenExpiry() time.Duration
	GetVerificationCodeExpiry() time.Duration
}

// Token selects the session token signer. A private key file takes precedence
// over an HMAC secret; with neither, an ephemeral RSA key is generated.
type Token struct {
	Secret             string        `env:"TOKEN_SECRET"`
	PrivateKeyFile     string        `env:"TOKEN_PRIVATE_KEY_FILE"`
	Issuer             string        `env:"TOKEN_ISSUER" envDefault:"lipoic"`
	SessionExpiry      time.Duration `env:"SESSION_TOKEN_EXPIRY" envDefault:"168h"`
	VerificationExpiry time.Duration `env:"VERIFY_EMAIL_EXPIRY" envDefault:"10m"`
}

var _ TokenConfig = Token{}

func (t Token) GetTokenSecret() string {
	return t.Secret
}

func (t Token) GetTokenPrivateKeyFile() string {
	return t.PrivateKeyFile
}

func (t Token) GetTokenIssuer() string {
	return t.Issuer
}

func (t Token) GetSessionTokenExpiry() time.Duration {
	return t.SessionExpiry
}

func (t Token) GetVerificationCodeExpiry() time.Duration {
	return t.VerificationExpiry
}
