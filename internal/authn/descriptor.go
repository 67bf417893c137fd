package authn

import (
	"context"
	"fmt"
	"time"

	"github.com/dmitrijs2005/gophauth/internal/common"
	"github.com/dmitrijs2005/gophauth/internal/cryptox"
	"github.com/dmitrijs2005/gophauth/internal/store"
)

// Kind selects which descriptor of a plugin a call uses.
type Kind string

const (
	// KindSecret is the long-lived credential a subject logs in with.
	KindSecret Kind = "secret"
	// KindToken is a short-lived confirmation or challenge value.
	KindToken Kind = "token"
)

// Result is what a descriptor reports for one candidate. A non-empty
// Update replaces the stored value, e.g. a WebAuthn credential with a
// new sign counter.
type Result struct {
	Matched bool
	Update  string
}

// Descriptor is the capability set a credential type supplies for one kind.
type Descriptor interface {
	// Type is appended to the plugin id to build the stored type column.
	Type() string
	// OTP marks credentials that are deleted on their first successful use.
	OTP() bool
	// Expire is the lifetime of a new credential; zero means no deadline.
	Expire() time.Duration
	// Create produces a fresh raw value.
	Create(ctx context.Context) (string, error)
	Encode(ctx context.Context, value string, key cryptox.KeyOptions) (string, error)
	Decode(ctx context.Context, encoded string, key cryptox.KeyOptions) (string, error)
	// Verify compares the caller input with the decoded stored value. An
	// error is treated as a non-matching candidate.
	Verify(ctx context.Context, input, stored string, row store.Row) (Result, error)
}

// Plugin is one credential feature: its id and the descriptors it offers.
type Plugin struct {
	ID     string
	Secret Descriptor
	Token  Descriptor
}

func (p Plugin) Descriptor(kind Kind) (Descriptor, error) {
	var d Descriptor
	switch kind {
	case KindSecret:
		d = p.Secret
	case KindToken:
		d = p.Token
	}
	if d == nil {
		return nil, fmt.Errorf("%w: plugin %s has no %s descriptor", common.ErrorInvalidInput, p.ID, kind)
	}
	return d, nil
}

// Type is the stored type column for kind, e.g. "password-secret".
func (p Plugin) Type(kind Kind) string {
	d, err := p.Descriptor(kind)
	if err != nil {
		return p.ID + "-" + string(kind)
	}
	return p.ID + "-" + d.Type()
}

// Base implements the envelope-backed parts of a Descriptor. Plugins embed
// it and add Create and Verify.
type Base struct {
	Crypto   *cryptox.Envelope
	TypeName string
	OneTime  bool
	TTL      time.Duration
}

func (b Base) Type() string          { return b.TypeName }
func (b Base) OTP() bool             { return b.OneTime }
func (b Base) Expire() time.Duration { return b.TTL }

func (b Base) Encode(_ context.Context, value string, key cryptox.KeyOptions) (string, error) {
	return b.Crypto.SymmetricEncrypt(value, key)
}

func (b Base) Decode(_ context.Context, encoded string, key cryptox.KeyOptions) (string, error) {
	return b.Crypto.SymmetricDecrypt(encoded, key)
}

// SecretHashBase stores an argon2 hash of the value instead of the value.
// Used for credentials that only ever need to be compared.
type SecretHashBase struct {
	Base
}

func (b SecretHashBase) Encode(ctx context.Context, value string, key cryptox.KeyOptions) (string, error) {
	h, err := b.Crypto.CreateSecretHash(value)
	if err != nil {
		return "", err
	}
	return b.Base.Encode(ctx, h, key)
}

// Verify recomputes the hash of input against the stored hash.
func (b SecretHashBase) Verify(_ context.Context, input, stored string, _ store.Row) (Result, error) {
	ok, err := b.Crypto.VerifySecretHash(stored, input)
	if err != nil {
		return Result{}, err
	}
	return Result{Matched: ok}, nil
}
