// Package messenger manages contact identifiers such as e-mail addresses
// and phone numbers. Values are stored encrypted and found through a
// seasoned digest, so existence checks never decrypt. Ownership is proven
// with a one-time token delivered to the identifier itself.
package messenger

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/dmitrijs2005/gophauth/internal/authn"
	"github.com/dmitrijs2005/gophauth/internal/common"
	"github.com/dmitrijs2005/gophauth/internal/cryptox"
	"github.com/dmitrijs2005/gophauth/internal/logging"
	"github.com/dmitrijs2005/gophauth/internal/notify"
	"github.com/dmitrijs2005/gophauth/internal/store"
)

const (
	DefaultTable    = "messengers"
	DefaultTokenTTL = 24 * time.Hour
)

// Policy canonicalizes and validates one kind of identifier.
type Policy interface {
	Type() string
	// Sanitize returns the canonical form. It does not fail; invalid
	// input is reported by Validate.
	Sanitize(value string) string
	Validate(value string) error
}

// TokenShaper is implemented by policies that want verification tokens
// other than the default, e.g. short numeric codes for SMS.
type TokenShaper interface {
	TokenShape() (length int, charset string)
}

type Messenger struct {
	ID     string
	Sub    string
	Type   string
	Value  string
	Create int64
	Update int64
	Verify int64
}

func (m *Messenger) Verified() bool { return m.Verify != 0 }

type Options struct {
	Table    string
	TokenTTL time.Duration
}

// token is stored with the messenger id as its name. The matcher input is
// "<id>:<token>" so a token only confirms the messenger it was sent to.
type token struct {
	authn.Base
	length  int
	charset string
}

func (t token) Create(context.Context) (string, error) {
	return t.Crypto.RandomCharacters(t.length, t.charset)
}

func (t token) Verify(_ context.Context, input, stored string, row store.Row) (authn.Result, error) {
	id, tok, ok := strings.Cut(input, ":")
	if !ok || id != row.String("name") {
		return authn.Result{}, nil
	}
	return authn.Result{Matched: cryptox.SafeEqualString(tok, stored)}, nil
}

type Service struct {
	authn  *authn.Authenticator
	policy Policy
	table  string
	plugin authn.Plugin
	logger logging.Logger
}

func New(a *authn.Authenticator, policy Policy, opts Options, logger logging.Logger) *Service {
	if logger == nil {
		logger = logging.Nop()
	}
	if opts.Table == "" {
		opts.Table = DefaultTable
	}
	if opts.TokenTTL == 0 {
		opts.TokenTTL = DefaultTokenTTL
	}
	length, charset := cryptox.EntropyToCharacterLength(cryptox.IDEntropyBits, len(cryptox.CharsetAlphaNumeric)), cryptox.CharsetAlphaNumeric
	if ts, ok := policy.(TokenShaper); ok {
		length, charset = ts.TokenShape()
	}
	return &Service{
		authn:  a,
		policy: policy,
		table:  opts.Table,
		logger: logger.With("module", "messenger", "type", policy.Type()),
		plugin: authn.Plugin{
			ID: "messenger-" + policy.Type(),
			Token: token{
				Base:    authn.Base{Crypto: a.Crypto(), TypeName: string(authn.KindToken), OneTime: true, TTL: opts.TokenTTL},
				length:  length,
				charset: charset,
			},
		},
	}
}

func (s *Service) Type() string              { return s.policy.Type() }
func (s *Service) Plugin() authn.Plugin      { return s.plugin }
func (s *Service) notifyID(ev string) string { return "messenger-" + s.policy.Type() + "-" + ev }

func (s *Service) canonical(value string) (string, error) {
	v := s.policy.Sanitize(value)
	if err := s.policy.Validate(v); err != nil {
		return "", err
	}
	return v, nil
}

func (s *Service) digest(value string) (string, error) {
	return s.authn.Crypto().CreateSeasonedDigest(value)
}

func (s *Service) decode(row store.Row) (*Messenger, error) {
	sub := row.String("sub")
	value, err := s.authn.Crypto().SymmetricDecrypt(row.String("value"), cryptox.KeyOptions{
		EncryptedKey: row.String(cryptox.EncryptionKeyField),
		Sub:          sub,
	})
	if err != nil {
		return nil, fmt.Errorf("messenger %s: %w", row.String("id"), err)
	}
	return &Messenger{
		ID:     row.String("id"),
		Sub:    sub,
		Type:   row.String("type"),
		Value:  value,
		Create: row.Int64("create"),
		Update: row.Int64("update"),
		Verify: row.Int64("verify"),
	}, nil
}

// List returns the messengers of sub with their values decrypted.
func (s *Service) List(ctx context.Context, sub string) ([]*Messenger, error) {
	if sub == "" {
		return nil, fmt.Errorf("%w: sub is required", common.ErrorInvalidInput)
	}
	rows, err := s.authn.Store().SelectList(ctx, s.table, store.Filters{"sub": sub, "type": s.policy.Type()})
	if err != nil {
		return nil, err
	}
	out := make([]*Messenger, 0, len(rows))
	for _, r := range rows {
		m, err := s.decode(r)
		if err != nil {
			return nil, err
		}
		out = append(out, m)
	}
	return out, nil
}

func (s *Service) Count(ctx context.Context, sub string) (int, error) {
	if sub == "" {
		return 0, fmt.Errorf("%w: sub is required", common.ErrorInvalidInput)
	}
	rows, err := s.authn.Store().SelectList(ctx, s.table, store.Filters{"sub": sub, "type": s.policy.Type()}, "id")
	return len(rows), err
}

func (s *Service) Lookup(ctx context.Context, sub, id string) (*Messenger, error) {
	if sub == "" || id == "" {
		return nil, fmt.Errorf("%w: sub and id are required", common.ErrorInvalidInput)
	}
	row, err := s.authn.Store().Select(ctx, s.table, store.Filters{"sub": sub, "id": id, "type": s.policy.Type()})
	if err != nil {
		return nil, err
	}
	if row == nil {
		return nil, common.ErrorNotFound
	}
	return s.decode(row)
}

// Exists returns the subject that verified value, or "". Unverified
// claims never resolve. It has the username resolver shape.
func (s *Service) Exists(ctx context.Context, value string) (string, error) {
	v := s.policy.Sanitize(value)
	if s.policy.Validate(v) != nil {
		return "", nil
	}
	digest, err := s.digest(v)
	if err != nil {
		return "", err
	}
	owner, _, err := s.claims(ctx, digest)
	return owner, err
}

// claims returns the subject holding the verified claim on digest and
// every row carrying it.
func (s *Service) claims(ctx context.Context, digest string) (string, []store.Row, error) {
	rows, err := s.authn.Store().SelectList(ctx, s.table, store.Filters{"type": s.policy.Type(), "digest": digest}, "id", "sub", "verify")
	if err != nil {
		return "", nil, err
	}
	for _, r := range rows {
		if r.Int64("verify") != 0 {
			return r.String("sub"), rows, nil
		}
	}
	return "", rows, nil
}

// Create adds value to sub unverified and returns its id. If another
// subject has already verified the value, that owner is notified and the
// call fails with ErrorConflict. Unverified claims by others are ignored.
func (s *Service) Create(ctx context.Context, sub, value string) (string, error) {
	if sub == "" {
		return "", fmt.Errorf("%w: sub is required", common.ErrorInvalidInput)
	}
	v, err := s.canonical(value)
	if err != nil {
		return "", err
	}
	digest, err := s.digest(v)
	if err != nil {
		return "", err
	}
	owner, rows, err := s.claims(ctx, digest)
	if err != nil {
		return "", err
	}
	for _, r := range rows {
		if r.String("sub") == sub {
			return "", fmt.Errorf("%w: %s already added", common.ErrorConflict, s.policy.Type())
		}
	}
	if owner != "" {
		s.authn.Notify(ctx, s.notifyID("exists"), owner, nil, notify.Options{Types: []string{s.policy.Type()}})
		return "", fmt.Errorf("%w: %s in use", common.ErrorConflict, s.policy.Type())
	}

	c := s.authn.Crypto()
	id, err := c.RandomID("")
	if err != nil {
		return "", err
	}
	key, wrapped, err := c.SymmetricGenerateEncryptionKey(sub)
	if err != nil {
		return "", err
	}
	defer common.WipeByteArray(key)
	encrypted, err := c.SymmetricEncrypt(v, cryptox.KeyOptions{EncryptionKey: key, Sub: sub})
	if err != nil {
		return "", err
	}

	now := s.authn.Now()
	row := store.Row{
		"id":     id,
		"sub":    sub,
		"type":   s.policy.Type(),
		"digest": digest,
		"value":  encrypted,
		"create": now,
		"update": now,
	}
	if wrapped != "" {
		row[cryptox.EncryptionKeyField] = wrapped
	}
	if _, err := s.authn.Store().Insert(ctx, s.table, row); err != nil {
		return "", err
	}
	return id, nil
}

// CreateToken sends a verification token to messenger id of sub. Earlier
// tokens for the same messenger are revoked.
func (s *Service) CreateToken(ctx context.Context, sub, id string) error {
	m, err := s.Lookup(ctx, sub, id)
	if err != nil {
		return err
	}
	if m.Verified() {
		return fmt.Errorf("%w: %s already verified", common.ErrorConflict, s.policy.Type())
	}
	if err := s.revokeTokens(ctx, sub, id); err != nil {
		return err
	}
	value, err := s.plugin.Token.Create(ctx)
	if err != nil {
		return err
	}
	if _, err := s.authn.Create(ctx, s.plugin, authn.KindToken, authn.Values{Sub: sub, Value: value, Name: id}); err != nil {
		return err
	}
	s.authn.Notify(ctx, s.notifyID("verify"), sub, map[string]any{"token": value}, notify.Options{
		Messengers: []notify.Messenger{{ID: m.ID, Type: m.Type, Value: m.Value}},
	})
	return nil
}

func (s *Service) revokeTokens(ctx context.Context, sub, id string) error {
	_, err := s.authn.Store().Remove(ctx, s.authn.Table(), store.Filters{
		"sub":  sub,
		"type": s.plugin.Type(authn.KindToken),
		"name": id,
	})
	return err
}

// VerifyToken consumes a token and marks messenger id verified. If another
// subject verified the same value in the meantime it fails with
// ErrorConflict.
func (s *Service) VerifyToken(ctx context.Context, sub, id, tok string) error {
	if _, err := s.authn.Verify(ctx, s.plugin, authn.KindToken, sub, id+":"+tok); err != nil {
		return err
	}
	row, err := s.authn.Store().Select(ctx, s.table, store.Filters{"sub": sub, "id": id, "type": s.policy.Type()})
	if err != nil {
		return err
	}
	if row == nil {
		return common.ErrorNotFound
	}
	owner, _, err := s.claims(ctx, row.String("digest"))
	if err != nil {
		return err
	}
	if owner != "" && owner != sub {
		return fmt.Errorf("%w: %s in use", common.ErrorConflict, s.policy.Type())
	}
	now := s.authn.Now()
	return s.authn.Store().Update(ctx, s.table, store.Filters{"sub": sub, "id": id}, store.Row{"verify": now, "update": now})
}

// Remove deletes messenger id of sub and its pending tokens.
func (s *Service) Remove(ctx context.Context, sub, id string) error {
	if sub == "" || id == "" {
		return fmt.Errorf("%w: sub and id are required", common.ErrorInvalidInput)
	}
	n, err := s.authn.Store().Remove(ctx, s.table, store.Filters{"sub": sub, "id": id, "type": s.policy.Type()})
	if err != nil {
		return err
	}
	if n == 0 {
		return common.ErrorNotFound
	}
	return s.revokeTokens(ctx, sub, id)
}
