// Package authntest builds authenticators over in-memory collaborators for
// tests of the credential plugins and record services.
package authntest

import (
	"encoding/base64"
	"strings"
	"testing"
	"time"

	"github.com/dmitrijs2005/gophauth/internal/authn"
	"github.com/dmitrijs2005/gophauth/internal/cryptox"
	"github.com/dmitrijs2005/gophauth/internal/notify"
	"github.com/dmitrijs2005/gophauth/internal/store"
)

// Envelope returns an envelope with every secret set and cheap argon2
// parameters.
func Envelope(t testing.TB) *cryptox.Envelope {
	t.Helper()
	e, err := cryptox.New(cryptox.Options{
		SymmetricEncryptionKey:   base64.StdEncoding.EncodeToString([]byte(strings.Repeat("t", cryptox.SymmetricKeySize))),
		SymmetricSignatureSecret: base64.StdEncoding.EncodeToString([]byte("test-signature")),
		DigestChecksumSalt:       "test-salt",
		DigestChecksumPepper:     "test-pepper",
		SecretHash:               cryptox.SecretHashOptions{TimeCost: 1, MemoryCost: 64, Parallelism: 1},
	}, nil)
	if err != nil {
		t.Fatalf("cryptox.New: %v", err)
	}
	return e
}

// Fixture bundles an authenticator with the collaborators it was built on.
type Fixture struct {
	Authn  *authn.Authenticator
	Store  *store.Memory
	Notify *notify.Memory
	Crypto *cryptox.Envelope
	now    time.Time
}

// New returns a fixture with a 5ms authentication floor and a clock that
// only moves through Advance.
func New(t testing.TB, resolvers ...authn.Resolver) *Fixture {
	t.Helper()
	f := &Fixture{
		Store:  store.NewMemory(),
		Notify: notify.NewMemory(),
		Crypto: Envelope(t),
		now:    time.Unix(1_700_000_000, 0),
	}
	f.Authn = authn.New(authn.Options{
		Store:                  f.Store,
		Notify:                 f.Notify,
		Crypto:                 f.Crypto,
		UsernameResolvers:      resolvers,
		AuthenticationDuration: 5 * time.Millisecond,
		Clock:                  f.Now,
	})
	return f
}

func (f *Fixture) Now() time.Time { return f.now }

// Advance moves the fixture clock. Not safe for concurrent use.
func (f *Fixture) Advance(d time.Duration) { f.now = f.now.Add(d) }
