// Package totp is the time-based one-time password credential. The shared
// secret is stored as its otpauth URI, and codes are validated with the
// algorithm, digits and period bound into that URI rather than the
// current defaults, so changing the defaults never breaks issued secrets.
// The URI also records the last accepted time step; a code for that step
// or an earlier one is refused.
package totp

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strconv"
	"time"

	"github.com/dmitrijs2005/gophauth/internal/authn"
	"github.com/dmitrijs2005/gophauth/internal/common"
	"github.com/dmitrijs2005/gophauth/internal/logging"
	"github.com/dmitrijs2005/gophauth/internal/notify"
	"github.com/dmitrijs2005/gophauth/internal/store"
	"github.com/pquerna/otp"
	"github.com/pquerna/otp/totp"
)

const (
	ID = "totp"

	NotifyCreate = "authn-totp-create"

	DefaultIssuer   = "gophauth"
	DefaultTokenTTL = 10 * time.Minute
)

type Options struct {
	Issuer    string
	Period    uint
	Digits    otp.Digits
	Algorithm otp.Algorithm
	// Skew is the number of periods accepted on either side of now.
	Skew uint
	// TokenTTL bounds how long a registration may stay unconfirmed.
	TokenTTL time.Duration
}

type descriptor struct {
	authn.Base
	skew uint
	now  func() time.Time
}

func (d descriptor) Create(context.Context) (string, error) {
	return "", fmt.Errorf("%w: totp secrets are created by the service", common.ErrorInvalidInput)
}

// lastStepParam is the otpauth query parameter holding the last accepted
// time step.
const lastStepParam = "last"

func lastStep(key *otp.Key) uint64 {
	u, err := url.Parse(key.URL())
	if err != nil {
		return 0
	}
	n, _ := strconv.ParseUint(u.Query().Get(lastStepParam), 10, 64)
	return n
}

func withLastStep(key *otp.Key, step uint64) (string, error) {
	u, err := url.Parse(key.URL())
	if err != nil {
		return "", err
	}
	q := u.Query()
	q.Set(lastStepParam, strconv.FormatUint(step, 10))
	u.RawQuery = q.Encode()
	return u.String(), nil
}

// Verify validates code against the key encoded in the stored URI. Steps
// inside the skew window are tried oldest first, and a match reports the
// URI with the accepted step as the update.
func (d descriptor) Verify(_ context.Context, code, stored string, _ store.Row) (authn.Result, error) {
	key, err := otp.NewKeyFromURL(stored)
	if err != nil {
		return authn.Result{}, err
	}
	period := key.Period()
	if period == 0 {
		period = 30
	}
	opts := totp.ValidateOpts{
		Period:    uint(period),
		Digits:    key.Digits(),
		Algorithm: key.Algorithm(),
	}
	last := lastStep(key)
	now := d.now()
	for i := -int(d.skew); i <= int(d.skew); i++ {
		at := now.Add(time.Duration(i) * time.Duration(period) * time.Second)
		if at.Unix() < 0 {
			continue
		}
		step := uint64(at.Unix()) / period
		if step <= last {
			continue
		}
		ok, err := totp.ValidateCustom(code, key.Secret(), at, opts)
		if errors.Is(err, otp.ErrValidateInputInvalidLength) {
			return authn.Result{}, nil
		}
		if err != nil {
			return authn.Result{}, err
		}
		if ok {
			update, err := withLastStep(key, step)
			if err != nil {
				return authn.Result{}, err
			}
			return authn.Result{Matched: true, Update: update}, nil
		}
	}
	return authn.Result{}, nil
}

type Service struct {
	authn  *authn.Authenticator
	opts   Options
	plugin authn.Plugin
	logger logging.Logger
}

func New(a *authn.Authenticator, opts Options, logger logging.Logger) *Service {
	if logger == nil {
		logger = logging.Nop()
	}
	if opts.Issuer == "" {
		opts.Issuer = DefaultIssuer
	}
	if opts.Period == 0 {
		opts.Period = 30
	}
	if opts.Digits == 0 {
		opts.Digits = otp.DigitsSix
	}
	if opts.TokenTTL == 0 {
		opts.TokenTTL = DefaultTokenTTL
	}
	if opts.Skew == 0 {
		opts.Skew = 1
	}
	now := func() time.Time { return time.Unix(a.Now(), 0) }
	c := a.Crypto()
	return &Service{
		authn:  a,
		opts:   opts,
		logger: logger.With("module", "totp"),
		plugin: authn.Plugin{
			ID:     ID,
			Secret: descriptor{Base: authn.Base{Crypto: c, TypeName: string(authn.KindSecret)}, skew: opts.Skew, now: now},
			Token:  descriptor{Base: authn.Base{Crypto: c, TypeName: string(authn.KindToken), OneTime: true, TTL: opts.TokenTTL}, skew: opts.Skew, now: now},
		},
	}
}

func (s *Service) Plugin() authn.Plugin { return s.plugin }

// Create starts a registration and returns the otpauth URI to show to the
// user. The registration becomes a credential once Verify confirms a code.
func (s *Service) Create(ctx context.Context, sub, accountName string) (string, error) {
	if accountName == "" {
		accountName = sub
	}
	key, err := totp.Generate(totp.GenerateOpts{
		Issuer:      s.opts.Issuer,
		AccountName: accountName,
		Period:      s.opts.Period,
		Digits:      s.opts.Digits,
		Algorithm:   s.opts.Algorithm,
	})
	if err != nil {
		return "", fmt.Errorf("totp generate: %w", err)
	}
	if _, err := s.authn.ExpireAll(ctx, s.plugin, authn.KindToken, sub); err != nil {
		return "", err
	}
	if _, err := s.authn.Create(ctx, s.plugin, authn.KindToken, authn.Values{Sub: sub, Value: key.String()}); err != nil {
		return "", err
	}
	return key.String(), nil
}

// Verify confirms a pending registration with a code and promotes it to a
// long-lived secret. It returns the new credential id.
func (s *Service) Verify(ctx context.Context, sub, code, name string) (string, error) {
	pending, err := s.authn.Verify(ctx, s.plugin, authn.KindToken, sub, code)
	if err != nil {
		return "", err
	}
	id, err := s.authn.Create(ctx, s.plugin, authn.KindSecret, authn.Values{Sub: sub, Value: pending.Value, Name: name})
	if err != nil {
		return "", err
	}
	if err := s.authn.VerifySecret(ctx, s.plugin, authn.KindSecret, sub, id); err != nil {
		return "", err
	}
	s.authn.Notify(ctx, NotifyCreate, sub, nil, notify.Options{})
	return id, nil
}

func (s *Service) Authenticate(ctx context.Context, username, code string) (*authn.Credential, error) {
	return s.authn.Authenticate(ctx, s.plugin, username, code)
}

func (s *Service) Count(ctx context.Context, sub string) (int, error) {
	return s.authn.Count(ctx, s.plugin, authn.KindSecret, sub)
}

func (s *Service) List(ctx context.Context, sub string) ([]*authn.Credential, error) {
	return s.authn.List(ctx, s.plugin, authn.KindSecret, sub)
}

func (s *Service) Remove(ctx context.Context, sub, id string) error {
	return s.authn.Expire(ctx, s.plugin, authn.KindSecret, sub, id)
}
