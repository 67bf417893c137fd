// Package recoverycodes issues a batch of one-time codes that stand in for
// a lost second factor. Codes are stored as argon2 hashes and each one is
// deleted on use.
package recoverycodes

import (
	"context"
	"fmt"
	"strings"

	"github.com/dmitrijs2005/gophauth/internal/authn"
	"github.com/dmitrijs2005/gophauth/internal/common"
	"github.com/dmitrijs2005/gophauth/internal/cryptox"
	"github.com/dmitrijs2005/gophauth/internal/logging"
	"github.com/dmitrijs2005/gophauth/internal/notify"
	"github.com/dmitrijs2005/gophauth/internal/store"
)

const (
	ID = "recovery-codes"

	NotifyCreate = "authn-recovery-codes-create"
	NotifyLow    = "authn-recovery-codes-low"

	DefaultCount     = 10
	DefaultLength    = 10
	DefaultThreshold = 2
)

type Options struct {
	// Count is the number of codes in a batch.
	Count  int
	Length int
	// Threshold is the number of remaining codes at or below which the
	// subject is told to regenerate. Negative disables the notice.
	Threshold int
}

type code struct {
	authn.SecretHashBase
	length int
}

func (c code) Create(context.Context) (string, error) {
	return c.Crypto.RandomCharacters(c.length, cryptox.CharsetReadable)
}

func (c code) Verify(ctx context.Context, input, stored string, row store.Row) (authn.Result, error) {
	return c.SecretHashBase.Verify(ctx, Normalize(input), stored, row)
}

// Normalize strips separators and case so a code typed as "abcde-fghij"
// matches the stored "ABCDEFGHIJ".
func Normalize(s string) string {
	return strings.Map(func(r rune) rune {
		switch r {
		case '-', ' ', '\t':
			return -1
		}
		return r
	}, strings.ToUpper(s))
}

// Format groups a code in halves for display.
func Format(c string) string {
	if len(c) < 8 {
		return c
	}
	half := len(c) / 2
	return c[:half] + "-" + c[half:]
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
	if opts.Count <= 0 {
		opts.Count = DefaultCount
	}
	if opts.Length <= 0 {
		opts.Length = DefaultLength
	}
	if opts.Threshold == 0 {
		opts.Threshold = DefaultThreshold
	}
	return &Service{
		authn:  a,
		opts:   opts,
		logger: logger.With("module", "recoverycodes"),
		plugin: authn.Plugin{
			ID: ID,
			Secret: code{
				SecretHashBase: authn.SecretHashBase{Base: authn.Base{Crypto: a.Crypto(), TypeName: string(authn.KindSecret), OneTime: true}},
				length:         opts.Length,
			},
		},
	}
}

func (s *Service) Plugin() authn.Plugin { return s.plugin }

func (s *Service) Count(ctx context.Context, sub string) (int, error) {
	return s.authn.Count(ctx, s.plugin, authn.KindSecret, sub)
}

// Create issues the first batch for sub and returns the codes formatted
// for display. They cannot be read back later.
func (s *Service) Create(ctx context.Context, sub string) ([]string, error) {
	n, err := s.Count(ctx, sub)
	if err != nil {
		return nil, err
	}
	if n > 0 {
		return nil, fmt.Errorf("%w: recovery codes already issued", common.ErrorConflict)
	}
	return s.issue(ctx, sub)
}

// Update replaces every remaining code of sub with a new batch.
func (s *Service) Update(ctx context.Context, sub string) ([]string, error) {
	if _, err := s.authn.ExpireAll(ctx, s.plugin, authn.KindSecret, sub); err != nil {
		return nil, err
	}
	return s.issue(ctx, sub)
}

func (s *Service) issue(ctx context.Context, sub string) ([]string, error) {
	codes := make([]string, s.opts.Count)
	values := make([]authn.Values, s.opts.Count)
	for i := range codes {
		c, err := s.plugin.Secret.Create(ctx)
		if err != nil {
			return nil, err
		}
		codes[i] = Format(c)
		values[i] = authn.Values{Sub: sub, Value: c}
	}
	if _, err := s.authn.CreateList(ctx, s.plugin, authn.KindSecret, values); err != nil {
		return nil, err
	}
	s.authn.Notify(ctx, NotifyCreate, sub, map[string]any{"count": len(codes)}, notify.Options{})
	return codes, nil
}

// Authenticate consumes one code. When the remaining count drops to the
// threshold the subject is notified.
func (s *Service) Authenticate(ctx context.Context, username, c string) (*authn.Credential, error) {
	cred, err := s.authn.Authenticate(ctx, s.plugin, username, Normalize(c))
	if err != nil {
		return nil, err
	}
	left, err := s.Count(ctx, cred.Sub)
	if err != nil {
		s.logger.Warn(ctx, "recovery code count failed", "sub", cred.Sub, "error", err)
		return cred, nil
	}
	if left <= s.opts.Threshold {
		s.authn.Notify(ctx, NotifyLow, cred.Sub, map[string]any{"remaining": left}, notify.Options{})
	}
	return cred, nil
}

func (s *Service) Remove(ctx context.Context, sub string) error {
	_, err := s.authn.ExpireAll(ctx, s.plugin, authn.KindSecret, sub)
	return err
}
