package main

import (
	"context"
	"net/http"
	"os"
	"path/filepath"
	"time"

	"github.com/Lipoic/Lipoic-Server/auth"
	"github.com/Lipoic/Lipoic-Server/auth/flowstore"
	"github.com/Lipoic/Lipoic-Server/internal/config"
	"github.com/Lipoic/Lipoic-Server/mailer"
	"github.com/Lipoic/Lipoic-Server/mailer/resend"
	"github.com/Lipoic/Lipoic-Server/oauth"
	"github.com/Lipoic/Lipoic-Server/server"
	"github.com/Lipoic/Lipoic-Server/token"
	"github.com/Lipoic/Lipoic-Server/users"
	"github.com/Lipoic/Lipoic-Server/users/postgres"
	fakeuserrepo "github.com/Lipoic/Lipoic-Server/users/repofake"
	"github.com/Lipoic/Lipoic-Server/users/sqlite"
	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"
)

const (
	connectAttempts = 5
	connectInterval = 2 * time.Second
)

// application is the wired server plus the resources to release on exit.
type application struct {
	handler http.Handler
	closers []func()
}

func (a *application) close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		a.closers[i]()
	}
}

func wire(ctx context.Context, c config.Config) (*application, error) {
	app := &application{}
	var checks []server.ServerOption

	userRepo, err := openUserStore(ctx, c, app, &checks)
	if err != nil {
		return nil, err
	}
	flows, err := openFlowStore(ctx, c, app, &checks)
	if err != nil {
		app.close()
		return nil, err
	}

	signer, err := newSigner(c)
	if err != nil {
		app.close()
		return nil, err
	}
	tokens, err := token.New(signer,
		token.WithIssuer(c.GetTokenIssuer()),
		token.WithSessionExpiry(c.GetSessionTokenExpiry()),
		token.WithVerificationExpiry(c.GetVerificationCodeExpiry()),
	)
	if err != nil {
		app.close()
		return nil, err
	}

	providers, err := newProviders(ctx, c)
	if err != nil {
		app.close()
		return nil, err
	}

	sender, err := newMailSender(c)
	if err != nil {
		app.close()
		return nil, err
	}
	verification, err := mailer.NewVerificationMailer(sender, c.GetBaseURL(), c.GetVerificationCodeExpiry().String())
	if err != nil {
		app.close()
		return nil, err
	}

	policy := auth.LinkOrCreate
	if c.GetOAuthAccountPolicy() == config.AccountPolicyLinkOnly {
		policy = auth.LinkOnly
	}
	service, err := auth.NewService(
		auth.Repos{Users: userRepo, States: flows, Once: flows},
		tokens,
		providers,
		auth.WithVerificationSender(verification),
		auth.WithOAuthAccountPolicy(policy),
		auth.WithStateTTL(c.GetOAuthStateTTL()),
		auth.WithProviderTimeout(c.GetProviderTimeout()),
	)
	if err != nil {
		app.close()
		return nil, err
	}

	app.handler, err = server.New(c, service, tokens, checks...)
	if err != nil {
		app.close()
		return nil, err
	}
	return app, nil
}

type flowRepo interface {
	flowstore.StateRepo
	flowstore.OnceRepo
}

func openUserStore(ctx context.Context, c config.StoreConfig, app *application, checks *[]server.ServerOption) (users.Repo, error) {
	switch c.GetUserStore() {
	case config.StoreSQLite:
		if err := os.MkdirAll(filepath.Dir(c.GetSQLitePath()), 0o750); err != nil {
			return nil, errors.Wrap(err, "create data folder")
		}
		store, err := sqlite.Open(ctx, c.GetSQLitePath())
		if err != nil {
			return nil, err
		}
		app.closers = append(app.closers, func() { _ = store.Close() })
		*checks = append(*checks, server.WithHealthCheck("users", func(r *http.Request) error { return store.Ping(r.Context()) }))
		log.Info().Str("path", c.GetSQLitePath()).Msg("using sqlite user store")
		return store, nil
	case config.StorePostgres:
		store, err := postgres.Connect(ctx, postgres.Config{
			ConnectionString: c.GetDatabaseURL(),
			RetryAttempts:    connectAttempts,
			RetryInterval:    connectInterval,
		})
		if err != nil {
			return nil, err
		}
		app.closers = append(app.closers, store.Close)
		*checks = append(*checks, server.WithHealthCheck("users", func(r *http.Request) error { return store.Ping(r.Context()) }))
		log.Info().Msg("using postgres user store")
		return store, nil
	default:
		log.Warn().Msg("using in-memory user store, accounts are lost on restart")
		return fakeuserrepo.NewFakeUserRepo(), nil
	}
}

func openFlowStore(ctx context.Context, c config.StoreConfig, app *application, checks *[]server.ServerOption) (flowRepo, error) {
	if c.GetFlowStore() != config.StoreRedis {
		return flowstore.NewInMemoryRepo(), nil
	}
	client, err := flowstore.OpenRedis(ctx, c.GetRedisURL(), connectAttempts, connectInterval)
	if err != nil {
		return nil, err
	}
	repo := flowstore.NewRedisRepo(client)
	app.closers = append(app.closers, func() { _ = client.Close() })
	*checks = append(*checks, server.WithHealthCheck("flows", func(r *http.Request) error { return repo.Ping(r.Context()) }))
	log.Info().Msg("using redis flow store")
	return repo, nil
}

func newSigner(c config.TokenConfig) (token.Signer, error) {
	if path := c.GetTokenPrivateKeyFile(); path != "" {
		kp, err := token.LoadKeyPairFromFile(path)
		if err != nil {
			return nil, err
		}
		log.Info().Str("kid", kp.KeyID).Msg("signing tokens with RS256 key from file")
		return token.NewKeyPairSigner(kp)
	}
	if secret := c.GetTokenSecret(); secret != "" {
		return token.NewHMACSigner(secret)
	}
	kp, err := token.GenerateRSAKeyPair(2048)
	if err != nil {
		return nil, err
	}
	log.Warn().Str("kid", kp.KeyID).Msg("no signing key configured, generated an ephemeral RSA key; tokens will not survive a restart")
	return token.NewKeyPairSigner(kp)
}

func newProviders(ctx context.Context, c config.OAuthConfig) (*oauth.Registry, error) {
	registry := oauth.NewRegistry()
	if id, secret := c.GetGoogleClient(); id != "" {
		google, err := oauth.NewGoogleProvider(ctx, oauth.Config{ClientID: id, ClientSecret: secret, Scopes: oauth.GoogleDefaultScopes()})
		if err != nil {
			return nil, err
		}
		registry.Register(google)
	}
	if id, secret := c.GetFacebookClient(); id != "" {
		facebook, err := oauth.NewFacebookProvider(oauth.Config{ClientID: id, ClientSecret: secret, Scopes: oauth.FacebookDefaultScopes()})
		if err != nil {
			return nil, err
		}
		registry.Register(facebook)
	}
	if len(registry.Names()) == 0 {
		log.Warn().Msg("no oauth providers configured")
	}
	return registry, nil
}

func newMailSender(c config.MailConfig) (mailer.Sender, error) {
	if c.GetMailSender() != config.MailSenderResend {
		return mailer.LogSender{}, nil
	}
	email, name := c.GetMailFrom()
	return resend.New(resend.Config{APIKey: c.GetResendAPIKey(), SenderEmail: email, SenderName: name})
}
