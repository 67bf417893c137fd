// Package password is the password credential: an argon2 hashed secret per
// subject, sealed in the envelope, plus one-time reset tokens.
package password

import (
	"context"
	"fmt"
	"time"

	"github.com/dmitrijs2005/gophauth/internal/authn"
	"github.com/dmitrijs2005/gophauth/internal/common"
	"github.com/dmitrijs2005/gophauth/internal/cryptox"
	"github.com/dmitrijs2005/gophauth/internal/logging"
	"github.com/dmitrijs2005/gophauth/internal/notify"
	"github.com/dmitrijs2005/gophauth/internal/store"
)

const (
	ID = "password"

	NotifyCreate     = "authn-password-create"
	NotifyChange     = "authn-password-change"
	NotifyResetToken = "authn-password-reset-token"

	DefaultTokenTTL = 15 * time.Minute
)

type Options struct {
	Policy   Policy
	TokenTTL time.Duration
}

type Service struct {
	authn  *authn.Authenticator
	crypto *cryptox.Envelope
	policy Policy
	plugin authn.Plugin
	logger logging.Logger
}

type secret struct {
	authn.SecretHashBase
	length int
}

// Create generates a random password, used when an operator provisions an
// account without one.
func (s secret) Create(context.Context) (string, error) {
	return s.Crypto.RandomCharacters(s.length, cryptox.CharsetAlphaNumeric)
}

type token struct {
	authn.Base
}

func (t token) Create(context.Context) (string, error) {
	return t.Crypto.RandomCharacters(cryptox.EntropyToCharacterLength(cryptox.IDEntropyBits, len(cryptox.CharsetAlphaNumeric)), cryptox.CharsetAlphaNumeric)
}

func (t token) Verify(_ context.Context, input, stored string, _ store.Row) (authn.Result, error) {
	return authn.Result{Matched: cryptox.SafeEqualString(input, stored)}, nil
}

func New(a *authn.Authenticator, opts Options, logger logging.Logger) *Service {
	if logger == nil {
		logger = logging.Nop()
	}
	policy := opts.Policy.withDefaults()
	ttl := opts.TokenTTL
	if ttl == 0 {
		ttl = DefaultTokenTTL
	}
	c := a.Crypto()
	return &Service{
		authn:  a,
		crypto: c,
		policy: policy,
		logger: logger.With("module", "password"),
		plugin: authn.Plugin{
			ID: ID,
			Secret: secret{
				SecretHashBase: authn.SecretHashBase{Base: authn.Base{Crypto: c, TypeName: string(authn.KindSecret)}},
				length:         max(policy.MinLength, 24),
			},
			Token: token{Base: authn.Base{Crypto: c, TypeName: string(authn.KindToken), OneTime: true, TTL: ttl}},
		},
	}
}

func (s *Service) Plugin() authn.Plugin { return s.plugin }
func (s *Service) Policy() Policy       { return s.policy }

func (s *Service) Count(ctx context.Context, sub string) (int, error) {
	return s.authn.Count(ctx, s.plugin, authn.KindSecret, sub)
}

func (s *Service) Exists(ctx context.Context, sub string) (bool, error) {
	n, err := s.Count(ctx, sub)
	return n > 0, err
}

// Create stores the first password of sub. A subject holds at most one.
func (s *Service) Create(ctx context.Context, sub, password string, userInputs ...string) (string, error) {
	exists, err := s.Exists(ctx, sub)
	if err != nil {
		return "", err
	}
	if exists {
		return "", fmt.Errorf("%w: password already set", common.ErrorConflict)
	}
	if err := s.policy.Validate(ctx, password, userInputs...); err != nil {
		return "", err
	}
	id, err := s.authn.Create(ctx, s.plugin, authn.KindSecret, authn.Values{Sub: sub, Value: password})
	if err != nil {
		return "", err
	}
	s.authn.Notify(ctx, NotifyCreate, sub, nil, notify.Options{})
	return id, nil
}

// Update replaces the password of sub under the existing row key.
func (s *Service) Update(ctx context.Context, sub, password string, userInputs ...string) error {
	if err := s.policy.Validate(ctx, password, userInputs...); err != nil {
		return err
	}
	list, err := s.authn.List(ctx, s.plugin, authn.KindSecret, sub)
	if err != nil {
		return err
	}
	if len(list) == 0 {
		return common.ErrorNotFound
	}
	cur := list[0]
	err = s.authn.Update(ctx, s.plugin, authn.KindSecret, authn.Patch{
		ID:            cur.ID,
		Sub:           sub,
		EncryptionKey: cur.EncryptionKey,
		Value:         password,
	})
	if err != nil {
		return err
	}
	s.authn.Notify(ctx, NotifyChange, sub, nil, notify.Options{})
	return nil
}

// Authenticate checks password for whichever subject username resolves to.
func (s *Service) Authenticate(ctx context.Context, username, password string) (*authn.Credential, error) {
	return s.authn.Authenticate(ctx, s.plugin, username, password)
}

// CreateToken issues a reset token and delivers it through the notifier.
// Earlier unused tokens are revoked.
func (s *Service) CreateToken(ctx context.Context, sub string) (string, error) {
	if _, err := s.authn.ExpireAll(ctx, s.plugin, authn.KindToken, sub); err != nil {
		return "", err
	}
	value, err := s.plugin.Token.Create(ctx)
	if err != nil {
		return "", err
	}
	id, err := s.authn.Create(ctx, s.plugin, authn.KindToken, authn.Values{Sub: sub, Value: value})
	if err != nil {
		return "", err
	}
	s.authn.Notify(ctx, NotifyResetToken, sub, map[string]any{"token": value}, notify.Options{})
	return id, nil
}

// VerifyToken consumes a reset token and sets password as the new password.
// The password is validated first so a rejected password leaves the token
// usable.
func (s *Service) VerifyToken(ctx context.Context, sub, tok, password string, userInputs ...string) error {
	if err := s.policy.Validate(ctx, password, userInputs...); err != nil {
		return err
	}
	if _, err := s.authn.Verify(ctx, s.plugin, authn.KindToken, sub, tok); err != nil {
		return err
	}
	exists, err := s.Exists(ctx, sub)
	if err != nil {
		return err
	}
	if !exists {
		_, err = s.Create(ctx, sub, password, userInputs...)
		return err
	}
	return s.Update(ctx, sub, password, userInputs...)
}

// Remove deletes the password and any pending reset tokens of sub.
func (s *Service) Remove(ctx context.Context, sub string) error {
	if _, err := s.authn.ExpireAll(ctx, s.plugin, authn.KindToken, sub); err != nil {
		return err
	}
	_, err := s.authn.ExpireAll(ctx, s.plugin, authn.KindSecret, sub)
	return err
}
