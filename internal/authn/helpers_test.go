package authn

import (
	"context"
	"encoding/base64"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/dmitrijs2005/gophauth/internal/cryptox"
	"github.com/dmitrijs2005/gophauth/internal/store"
	"github.com/stretchr/testify/require"
)

func newEnvelope(t *testing.T) *cryptox.Envelope {
	t.Helper()
	e, err := cryptox.New(cryptox.Options{
		SymmetricEncryptionKey:   base64.StdEncoding.EncodeToString([]byte(strings.Repeat("k", 32))),
		SymmetricSignatureSecret: base64.StdEncoding.EncodeToString([]byte("sig")),
		DigestChecksumSalt:       "salt",
		DigestChecksumPepper:     "pepper",
		SecretHash:               cryptox.SecretHashOptions{TimeCost: 1, MemoryCost: 64, Parallelism: 1},
	}, nil)
	require.NoError(t, err)
	return e
}

// plain compares the stored value with the input directly.
type plain struct {
	Base
	verifyDelay time.Duration
	update      string
}

func (p plain) Create(context.Context) (string, error) { return "generated", nil }

func (p plain) Verify(_ context.Context, input, stored string, _ store.Row) (Result, error) {
	if p.verifyDelay > 0 {
		time.Sleep(p.verifyDelay)
	}
	if !cryptox.SafeEqualString(input, stored) {
		return Result{}, nil
	}
	return Result{Matched: true, Update: p.update}, nil
}

type hashed struct {
	SecretHashBase
}

func (hashed) Create(context.Context) (string, error) { return "", nil }

type clock struct {
	now atomic.Int64
}

func newClock(start int64) *clock {
	c := &clock{}
	c.now.Store(start)
	return c
}

func (c *clock) Now() time.Time    { return time.Unix(c.now.Load(), 0) }
func (c *clock) Advance(sec int64) { c.now.Add(sec) }

type fixture struct {
	auth   *Authenticator
	store  *store.Memory
	crypto *cryptox.Envelope
	clock  *clock
}

func newFixture(t *testing.T, resolvers ...Resolver) *fixture {
	t.Helper()
	f := &fixture{store: store.NewMemory(), crypto: newEnvelope(t), clock: newClock(1_700_000_000)}
	f.auth = New(Options{
		Store:                  f.store,
		Crypto:                 f.crypto,
		UsernameResolvers:      resolvers,
		AuthenticationDuration: 20 * time.Millisecond,
		Clock:                  f.clock.Now,
	})
	return f
}

func (f *fixture) plugin(otp bool, ttl time.Duration) Plugin {
	return Plugin{
		ID:     "test",
		Secret: plain{Base: Base{Crypto: f.crypto, TypeName: "secret", OneTime: otp, TTL: ttl}},
		Token:  plain{Base: Base{Crypto: f.crypto, TypeName: "token", OneTime: true, TTL: time.Hour}},
	}
}

func static(m map[string]string) Resolver {
	return func(_ context.Context, username string) (string, error) {
		return m[username], nil
	}
}
