// Package accesstoken issues personal access tokens. A token is its own
// username: the seasoned digest stored beside the hash lets Exists map a
// presented token back to its subject without decrypting anything.
package accesstoken

import (
	"context"
	"strings"
	"time"

	"github.com/dmitrijs2005/gophauth/internal/authn"
	"github.com/dmitrijs2005/gophauth/internal/common"
	"github.com/dmitrijs2005/gophauth/internal/logging"
	"github.com/dmitrijs2005/gophauth/internal/notify"
	"github.com/dmitrijs2005/gophauth/internal/store"
)

const (
	ID     = "access-token"
	Prefix = "pat-"

	NotifyCreate = "authn-access-token-create"
)

type Options struct {
	// OTP makes every token single use.
	OTP bool
	// TTL is the token lifetime; zero keeps tokens until expired.
	TTL time.Duration
}

type secret struct {
	authn.SecretHashBase
}

func (s secret) Create(context.Context) (string, error) {
	return s.Crypto.RandomID(Prefix)
}

// Token is a freshly issued token. Value is only available here.
type Token struct {
	ID    string
	Value string
}

type Service struct {
	authn  *authn.Authenticator
	plugin authn.Plugin
	logger logging.Logger
}

func New(a *authn.Authenticator, opts Options, logger logging.Logger) *Service {
	if logger == nil {
		logger = logging.Nop()
	}
	return &Service{
		authn:  a,
		logger: logger.With("module", "accesstoken"),
		plugin: authn.Plugin{
			ID: ID,
			Secret: secret{SecretHashBase: authn.SecretHashBase{Base: authn.Base{
				Crypto:   a.Crypto(),
				TypeName: string(authn.KindSecret),
				OneTime:  opts.OTP,
				TTL:      opts.TTL,
			}}},
		},
	}
}

func (s *Service) Plugin() authn.Plugin { return s.plugin }

// Create issues a named token for sub.
func (s *Service) Create(ctx context.Context, sub, name string) (*Token, error) {
	value, err := s.plugin.Secret.Create(ctx)
	if err != nil {
		return nil, err
	}
	digest, err := s.authn.Crypto().CreateSeasonedDigest(value)
	if err != nil {
		return nil, err
	}
	id, err := s.authn.Create(ctx, s.plugin, authn.KindSecret, authn.Values{
		Sub:   sub,
		Value: value,
		Name:  name,
		Extra: store.Row{"digest": digest},
	})
	if err != nil {
		return nil, err
	}
	s.authn.Notify(ctx, NotifyCreate, sub, map[string]any{"name": name}, notify.Options{})
	return &Token{ID: id, Value: value}, nil
}

// Exists resolves a token to the subject holding it. It has the Resolver
// shape so tokens can be used wherever a username is accepted. Values
// without the token prefix resolve to "".
func (s *Service) Exists(ctx context.Context, value string) (string, error) {
	if !strings.HasPrefix(value, Prefix) {
		return "", nil
	}
	digest, err := s.authn.Crypto().CreateSeasonedDigest(value)
	if err != nil {
		return "", err
	}
	rows, err := s.authn.Store().SelectList(ctx, s.authn.Table(),
		store.Filters{"type": s.plugin.Type(authn.KindSecret), "digest": digest}, "sub", "expire")
	if err != nil {
		return "", err
	}
	now := s.authn.Now()
	for _, r := range rows {
		if exp := r.Int64("expire"); exp > 0 && exp <= now {
			continue
		}
		return r.String("sub"), nil
	}
	return "", nil
}

// Authenticate checks a presented token. Unknown, expired and consumed
// tokens all fail with ErrorUnauthorized.
func (s *Service) Authenticate(ctx context.Context, value string) (*authn.Credential, error) {
	return s.authn.Guard(ctx, func(ctx context.Context) (*authn.Credential, error) {
		sub, err := s.Exists(ctx, value)
		if err != nil {
			return nil, err
		}
		if sub == "" {
			return nil, common.ErrorUnauthorized
		}
		return s.authn.Match(ctx, s.plugin, authn.KindSecret, sub, value)
	})
}

func (s *Service) List(ctx context.Context, sub string) ([]*authn.Credential, error) {
	return s.authn.List(ctx, s.plugin, authn.KindSecret, sub)
}

func (s *Service) Expire(ctx context.Context, sub, id string) error {
	return s.authn.Expire(ctx, s.plugin, authn.KindSecret, sub, id)
}
