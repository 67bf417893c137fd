// Package authn is the generic credential lifecycle every credential type
// is built on: create, update, verify, authenticate and expire, with
// at-rest encryption per row, one-time-use consumption and a minimum
// duration for every authentication attempt.
package authn

import (
	"context"
	"time"

	"github.com/dmitrijs2005/gophauth/internal/cryptox"
	"github.com/dmitrijs2005/gophauth/internal/logging"
	"github.com/dmitrijs2005/gophauth/internal/notify"
	"github.com/dmitrijs2005/gophauth/internal/store"
)

const (
	DefaultTable                  = "authentications"
	DefaultAuthenticationDuration = 500 * time.Millisecond
)

// Resolver maps a login identifier to a subject. It returns "" when the
// identifier is not its kind or is unknown.
type Resolver func(ctx context.Context, username string) (string, error)

type Options struct {
	Store  store.Store
	Notify notify.Notifier
	Crypto *cryptox.Envelope
	Logger logging.Logger
	// Table defaults to DefaultTable.
	Table             string
	UsernameResolvers []Resolver
	// AuthenticationDuration is the floor for Authenticate, Verify and
	// Guard. Zero means DefaultAuthenticationDuration.
	AuthenticationDuration time.Duration
	Clock                  func() time.Time
}

type Authenticator struct {
	store     store.Store
	notifier  notify.Notifier
	crypto    *cryptox.Envelope
	logger    logging.Logger
	table     string
	resolvers []Resolver
	duration  time.Duration
	clock     func() time.Time
}

func New(opts Options) *Authenticator {
	a := &Authenticator{
		store:     opts.Store,
		notifier:  opts.Notify,
		crypto:    opts.Crypto,
		logger:    opts.Logger,
		table:     opts.Table,
		resolvers: opts.UsernameResolvers,
		duration:  opts.AuthenticationDuration,
		clock:     opts.Clock,
	}
	if a.notifier == nil {
		a.notifier = notify.Nop{}
	}
	if a.logger == nil {
		a.logger = logging.Nop()
	}
	a.logger = a.logger.With("module", "authn")
	if a.table == "" {
		a.table = DefaultTable
	}
	if a.duration == 0 {
		a.duration = DefaultAuthenticationDuration
	}
	if a.clock == nil {
		a.clock = time.Now
	}
	return a
}

// AddResolver appends a username resolver. Call it during wiring only.
func (a *Authenticator) AddResolver(r Resolver) {
	a.resolvers = append(a.resolvers, r)
}

func (a *Authenticator) Store() store.Store        { return a.store }
func (a *Authenticator) Crypto() *cryptox.Envelope { return a.crypto }
func (a *Authenticator) Table() string             { return a.table }
func (a *Authenticator) Duration() time.Duration   { return a.duration }

// Now is the current time in epoch seconds.
func (a *Authenticator) Now() int64 {
	return a.clock().Unix()
}

// Notify triggers a notification. Transport failures are logged and
// otherwise ignored.
func (a *Authenticator) Notify(ctx context.Context, id, sub string, data map[string]any, opts notify.Options) {
	if err := a.notifier.Trigger(ctx, id, sub, data, opts); err != nil {
		a.logger.Warn(ctx, "notify failed", "id", id, "sub", sub, "error", err)
	}
}
