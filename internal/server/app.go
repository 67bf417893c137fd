// Package server initializes and runs the authentication server. It builds
// the crypto envelope and SQL store from configuration, wires the
// authentication features on top and serves them over gRPC until the
// process is signalled.
package server

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/dmitrijs2005/gophauth/internal/account"
	"github.com/dmitrijs2005/gophauth/internal/account/username"
	"github.com/dmitrijs2005/gophauth/internal/authn"
	"github.com/dmitrijs2005/gophauth/internal/authn/accesstoken"
	"github.com/dmitrijs2005/gophauth/internal/authn/password"
	"github.com/dmitrijs2005/gophauth/internal/authn/recoverycodes"
	"github.com/dmitrijs2005/gophauth/internal/authn/totp"
	"github.com/dmitrijs2005/gophauth/internal/authn/webauthn"
	"github.com/dmitrijs2005/gophauth/internal/cryptox"
	"github.com/dmitrijs2005/gophauth/internal/logging"
	"github.com/dmitrijs2005/gophauth/internal/messenger"
	"github.com/dmitrijs2005/gophauth/internal/messenger/email"
	"github.com/dmitrijs2005/gophauth/internal/messenger/phone"
	"github.com/dmitrijs2005/gophauth/internal/notify"
	"github.com/dmitrijs2005/gophauth/internal/server/config"
	"github.com/dmitrijs2005/gophauth/internal/session"
	"github.com/dmitrijs2005/gophauth/internal/store"
	"github.com/dmitrijs2005/gophauth/internal/store/sqlstore"

	gs "github.com/dmitrijs2005/gophauth/internal/server/grpc"
)

// Features are the services built by the app, including those that have
// no gRPC method yet. Passkeys is nil unless a relying party is configured.
type Features struct {
	gs.Services
	Phones        *messenger.Service
	RecoveryCodes *recoverycodes.Service
	Passkeys      *webauthn.Service
}

type App struct {
	config   *config.Config
	logger   logging.Logger
	db       *sql.DB
	features Features
}

func NewApp(ctx context.Context, c *config.Config) (*App, error) {

	logger := logging.NewJSON(os.Stdout, slog.LevelInfo)

	crypto, err := cryptox.New(c.CryptoOptions(), logger)
	if err != nil {
		return nil, fmt.Errorf("crypto init error: %w", err)
	}

	st, db, err := sqlstore.Open(ctx, c.DatabaseDriver, c.DatabaseDSN, logger)
	if err != nil {
		return nil, fmt.Errorf("db init error: %w", err)
	}

	var n notify.Notifier = notify.NewLog(logger)
	if c.NotifyWebhookURL != "" {
		n = notify.NewWebhook(c.NotifyWebhookURL, &http.Client{Timeout: 10 * time.Second})
	}

	f, err := Build(ctx, c, st, crypto, n, logger)
	if err != nil {
		db.Close()
		return nil, err
	}

	return &App{config: c, logger: logger, db: db, features: f}, nil
}

// Build wires every feature on top of st. It does no I/O besides the
// optional breach corpus client.
func Build(ctx context.Context, c *config.Config, st store.Store, crypto *cryptox.Envelope, n notify.Notifier, logger logging.Logger) (Features, error) {
	var f Features

	a := authn.New(authn.Options{
		Store:                  st,
		Notify:                 n,
		Crypto:                 crypto,
		Logger:                 logger,
		AuthenticationDuration: c.AuthenticationDuration,
	})

	f.Accounts = account.New(account.Options{Store: st, Crypto: crypto, Notify: n, Logger: logger})
	f.Usernames = username.New(f.Accounts, nil, logger)
	f.Emails = messenger.New(a, email.Policy{}, messenger.Options{}, logger)
	f.Phones = messenger.New(a, phone.Policy{}, messenger.Options{}, logger)
	f.AccessTokens = accesstoken.New(a, accesstoken.Options{}, logger)

	// resolvers are tried in this order
	a.AddResolver(f.Usernames.Exists)
	a.AddResolver(f.Emails.Exists)
	a.AddResolver(f.Phones.Exists)
	a.AddResolver(f.AccessTokens.Exists)

	policy := password.Policy{MinScore: c.PasswordMinScore}
	if o, ok := c.BreachOptions(); ok {
		corpus, err := password.NewS3BreachCorpus(ctx, o)
		if err != nil {
			return f, fmt.Errorf("breach corpus init error: %w", err)
		}
		policy.Breach = corpus
	}
	f.Passwords = password.New(a, password.Options{Policy: policy}, logger)
	f.TOTP = totp.New(a, totp.Options{Issuer: c.TOTPIssuer}, logger)
	f.RecoveryCodes = recoverycodes.New(a, recoverycodes.Options{}, logger)

	if c.WebAuthnRPID != "" {
		passkeys, err := webauthn.New(a, webauthn.Options{
			RPID:          c.WebAuthnRPID,
			RPDisplayName: c.WebAuthnRPName,
			RPOrigins:     c.WebAuthnRPOrigins,
		}, logger)
		if err != nil {
			return f, fmt.Errorf("webauthn init error: %w", err)
		}
		f.Passkeys = passkeys
	}

	sessions, err := session.New(session.Options{
		Store:       st,
		Crypto:      crypto,
		Logger:      logger,
		TTL:         c.SessionValidityDuration,
		CacheSize:   c.SessionCacheSize,
		TokenSecret: []byte(c.SessionSecret),
		TokenTTL:    c.AccessTokenValidityDuration,
	})
	if err != nil {
		return f, fmt.Errorf("session init error: %w", err)
	}
	f.Sessions = sessions

	return f, nil
}

func (app *App) Features() Features { return app.features }

func (app *App) initSignalHandler(cancelFunc context.CancelFunc) {
	// Channel to catch OS signals.
	sigs := make(chan os.Signal, 1)
	signal.Notify(sigs, syscall.SIGINT, syscall.SIGTERM, syscall.SIGQUIT)

	go func() {
		<-sigs
		cancelFunc()
	}()
}

func (app *App) startGRPCServer(ctx context.Context, cancelFunc context.CancelFunc) {

	s := gs.NewGRPCServer(app.config.EndpointAddrGRPC, app.logger, app.features.Services)

	if err := s.Run(ctx); err != nil {
		app.logger.Error(ctx, err.Error())
		cancelFunc()
	}
}

func (app *App) Run(ctx context.Context) {

	ctx, cancelFunc := context.WithCancel(ctx)
	defer cancelFunc()

	app.logger.Info(ctx, "Starting app...")

	app.initSignalHandler(cancelFunc)

	var wg sync.WaitGroup

	wg.Add(1)
	go func() {
		defer wg.Done()
		app.startGRPCServer(ctx, cancelFunc)
	}()

	wg.Wait()

	if err := app.db.Close(); err != nil {
		app.logger.Error(ctx, "db close", "error", err)
	}
	app.logger.Info(ctx, "Stopped")
}
