package account

import (
	"context"
	"encoding/base64"
	"strings"
	"testing"
	"time"

	"github.com/dmitrijs2005/gophauth/internal/authn/authntest"
	"github.com/dmitrijs2005/gophauth/internal/common"
	"github.com/dmitrijs2005/gophauth/internal/cryptox"
	"github.com/dmitrijs2005/gophauth/internal/notify"
	"github.com/dmitrijs2005/gophauth/internal/store"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fixture struct {
	svc    *Service
	store  *store.Memory
	notify *notify.Memory
	now    time.Time
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	f := &fixture{store: store.NewMemory(), notify: notify.NewMemory(), now: time.Unix(1_700_000_000, 0)}
	f.svc = New(Options{
		Store:  f.store,
		Crypto: authntest.Envelope(t),
		Notify: f.notify,
		Clock:  func() time.Time { return f.now },
	})
	return f
}

func TestCreate_SealsAllowlistedFields(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	sub, err := f.svc.Create(ctx, store.Row{"name": "Alice", "locale": "en"})
	require.NoError(t, err)
	_, err = uuid.Parse(sub)
	require.NoError(t, err)
	assert.Equal(t, 1, f.notify.Count(NotifyCreate))

	raw, err := f.store.Select(ctx, DefaultTable, store.Filters{"sub": sub})
	require.NoError(t, err)
	assert.NotEqual(t, "Alice", raw.String("name"))
	assert.Equal(t, "en", raw.String("locale"))
	assert.NotEmpty(t, raw.String(cryptox.EncryptionKeyField))
	assert.True(t, strings.HasPrefix(raw.String("publicKey"), "-----BEGIN PUBLIC KEY-----"))
	assert.NotContains(t, raw.String("privateKey"), "PRIVATE KEY")

	got, err := f.svc.Lookup(ctx, sub)
	require.NoError(t, err)
	assert.Equal(t, "Alice", got.String("name"))
	assert.False(t, got.Has("privateKey"))
	assert.False(t, got.Has(cryptox.EncryptionKeyField))
}

func TestCreate_RejectsReservedColumns(t *testing.T) {
	f := newFixture(t)
	_, err := f.svc.Create(context.Background(), store.Row{"sub": "mine"})
	require.ErrorIs(t, err, common.ErrorInvalidInput)
}

func TestUpdate(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	sub, err := f.svc.Create(ctx, store.Row{"name": "Alice"})
	require.NoError(t, err)

	require.NoError(t, f.svc.Update(ctx, sub, store.Row{"name": "Alicia", "locale": "lv"}))
	got, err := f.svc.Lookup(ctx, sub)
	require.NoError(t, err)
	assert.Equal(t, "Alicia", got.String("name"))
	assert.Equal(t, "lv", got.String("locale"))

	require.ErrorIs(t, f.svc.Update(ctx, sub, store.Row{"publicKey": "x"}), common.ErrorInvalidInput)
	require.ErrorIs(t, f.svc.Update(ctx, "missing", store.Row{"name": "x"}), common.ErrorNotFound)
}

func TestExistsAndExpire(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	sub, err := f.svc.Create(ctx, nil)
	require.NoError(t, err)

	ok, err := f.svc.Exists(ctx, sub)
	require.NoError(t, err)
	assert.True(t, ok)

	require.NoError(t, f.svc.Expire(ctx, sub))
	assert.Equal(t, 1, f.notify.Count(NotifyExpire))

	ok, err = f.svc.Exists(ctx, sub)
	require.NoError(t, err)
	assert.False(t, ok)
	_, err = f.svc.Lookup(ctx, sub)
	require.ErrorIs(t, err, common.ErrorNotFound)

	require.NoError(t, f.svc.Remove(ctx, sub))
	require.ErrorIs(t, f.svc.Remove(ctx, sub), common.ErrorNotFound)
}

func TestFindBy(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	sub, err := f.svc.Create(ctx, store.Row{"username": "alice"})
	require.NoError(t, err)

	got, err := f.svc.FindBy(ctx, "username", "alice")
	require.NoError(t, err)
	assert.Equal(t, sub, got)

	got, err = f.svc.FindBy(ctx, "username", "bob")
	require.NoError(t, err)
	assert.Empty(t, got)

	_, err = f.svc.FindBy(ctx, "name", "Alice")
	require.ErrorIs(t, err, common.ErrorInvalidInput)
}

func TestSignAndVerify(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	sub, err := f.svc.Create(ctx, nil)
	require.NoError(t, err)

	sig, err := f.svc.Sign(ctx, sub, "payload")
	require.NoError(t, err)
	ok, err := f.svc.VerifySignature(ctx, sub, "payload", sig)
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = f.svc.VerifySignature(ctx, sub, "tampered", sig)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestRotateKeys(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	sub, err := f.svc.Create(ctx, store.Row{"name": "Alice"})
	require.NoError(t, err)
	before, err := f.store.Select(ctx, DefaultTable, store.Filters{"sub": sub})
	require.NoError(t, err)

	require.NoError(t, f.svc.RotateKeys(ctx, sub, nil))

	after, err := f.store.Select(ctx, DefaultTable, store.Filters{"sub": sub})
	require.NoError(t, err)
	assert.NotEqual(t, before.String(cryptox.EncryptionKeyField), after.String(cryptox.EncryptionKeyField))
	assert.NotEqual(t, before.String("name"), after.String("name"))

	got, err := f.svc.Lookup(ctx, sub)
	require.NoError(t, err)
	assert.Equal(t, "Alice", got.String("name"))

	sig, err := f.svc.Sign(ctx, sub, "still works")
	require.NoError(t, err)
	ok, err := f.svc.VerifySignature(ctx, sub, "still works", sig)
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestRotateKeys_FromPreviousProcessKey(t *testing.T) {
	ctx := context.Background()
	mem := store.NewMemory()
	old := authntest.Envelope(t)
	sub, err := New(Options{Store: mem, Crypto: old}).Create(ctx, store.Row{"name": "Alice"})
	require.NoError(t, err)

	next, err := cryptox.New(cryptox.Options{
		SymmetricEncryptionKey:   base64.StdEncoding.EncodeToString([]byte(strings.Repeat("n", cryptox.SymmetricKeySize))),
		SymmetricSignatureSecret: base64.StdEncoding.EncodeToString([]byte("test-signature")),
	}, nil)
	require.NoError(t, err)
	svc := New(Options{Store: mem, Crypto: next})

	_, err = svc.Lookup(ctx, sub)
	require.Error(t, err, "the new process key cannot unwrap the old account key")

	require.NoError(t, svc.RotateKeys(ctx, sub, old))
	got, err := svc.Lookup(ctx, sub)
	require.NoError(t, err)
	assert.Equal(t, "Alice", got.String("name"))
}
