package authn

import (
	"bytes"
	"context"
	"log/slog"
	"testing"
	"time"

	"github.com/dmitrijs2005/gophauth/internal/common"
	"github.com/dmitrijs2005/gophauth/internal/cryptox"
	"github.com/dmitrijs2005/gophauth/internal/logging"
	"github.com/dmitrijs2005/gophauth/internal/store"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCreate_RowShape(t *testing.T) {
	f := newFixture(t)
	p := f.plugin(false, time.Hour)
	ctx := context.Background()

	id, err := f.auth.Create(ctx, p, KindSecret, Values{Sub: "s1", Value: "hunter2", Name: "laptop", Extra: store.Row{"digest": "d", "type": "ignored"}})
	require.NoError(t, err)
	assert.Len(t, id, 22)

	row, err := f.store.Select(ctx, DefaultTable, store.Filters{"id": id})
	require.NoError(t, err)
	assert.Equal(t, "s1", row.String("sub"))
	assert.Equal(t, "test-secret", row.String("type"))
	assert.Equal(t, "laptop", row.String("name"))
	assert.Equal(t, "d", row.String("digest"))
	assert.False(t, row.Bool("otp"))
	assert.NotEmpty(t, row.String("encryptionKey"))
	assert.NotEqual(t, "hunter2", row.String("value"))
	assert.Equal(t, int64(1_700_000_000), row.Int64("create"))
	assert.Equal(t, int64(1_700_000_000+3600), row.Int64("expire"))
}

func TestCreate_RequiresSubAndValue(t *testing.T) {
	f := newFixture(t)
	p := f.plugin(false, 0)
	_, err := f.auth.Create(context.Background(), p, KindSecret, Values{Value: "v"})
	require.ErrorIs(t, err, common.ErrorInvalidInput)
	_, err = f.auth.Create(context.Background(), p, KindSecret, Values{Sub: "s"})
	require.ErrorIs(t, err, common.ErrorInvalidInput)
	_, err = f.auth.Create(context.Background(), Plugin{ID: "none"}, KindSecret, Values{Sub: "s", Value: "v"})
	require.ErrorIs(t, err, common.ErrorInvalidInput)
}

func TestCreate_PerRowKeysBoundToSubject(t *testing.T) {
	f := newFixture(t)
	p := f.plugin(false, 0)
	ctx := context.Background()

	a, err := f.auth.Create(ctx, p, KindSecret, Values{Sub: "alice", Value: "same"})
	require.NoError(t, err)
	b, err := f.auth.Create(ctx, p, KindSecret, Values{Sub: "bob", Value: "same"})
	require.NoError(t, err)

	ra, _ := f.store.Select(ctx, DefaultTable, store.Filters{"id": a})
	rb, _ := f.store.Select(ctx, DefaultTable, store.Filters{"id": b})
	assert.NotEqual(t, ra.String("encryptionKey"), rb.String("encryptionKey"))
	assert.NotEqual(t, ra.String("value"), rb.String("value"))

	_, err = f.crypto.SymmetricDecrypt(ra.String("value"), cryptox.KeyOptions{EncryptedKey: rb.String("encryptionKey"), Sub: "bob"})
	require.Error(t, err)
}

func TestCreateList(t *testing.T) {
	f := newFixture(t)
	p := f.plugin(true, 0)
	ids, err := f.auth.CreateList(context.Background(), p, KindSecret, []Values{
		{Sub: "s1", Value: "a"}, {Sub: "s1", Value: "b"}, {Sub: "s1", Value: "c"},
	})
	require.NoError(t, err)
	assert.Len(t, ids, 3)

	n, err := f.auth.Count(context.Background(), p, KindSecret, "s1")
	require.NoError(t, err)
	assert.Equal(t, 3, n)
}

func TestUpdate_KeepsRowKey(t *testing.T) {
	f := newFixture(t)
	p := f.plugin(false, 0)
	ctx := context.Background()

	id, err := f.auth.Create(ctx, p, KindSecret, Values{Sub: "s1", Value: "old"})
	require.NoError(t, err)
	before, _ := f.store.Select(ctx, DefaultTable, store.Filters{"id": id})

	f.clock.Advance(10)
	require.NoError(t, f.auth.Update(ctx, p, KindSecret, Patch{ID: id, Sub: "s1", Value: "new"}))

	after, _ := f.store.Select(ctx, DefaultTable, store.Filters{"id": id})
	assert.Equal(t, before.String("encryptionKey"), after.String("encryptionKey"))
	assert.Equal(t, before.Int64("create")+10, after.Int64("update"))

	cands, err := f.auth.Candidates(ctx, p, KindSecret, "s1")
	require.NoError(t, err)
	require.Len(t, cands, 1)
	assert.Equal(t, "new", cands[0].Value)

	err = f.auth.Update(ctx, p, KindSecret, Patch{ID: id, Sub: "other", Value: "x"})
	require.ErrorIs(t, err, common.ErrorNotFound)
}

func TestVerifySecret(t *testing.T) {
	f := newFixture(t)
	p := f.plugin(false, 0)
	ctx := context.Background()
	id, err := f.auth.Create(ctx, p, KindSecret, Values{Sub: "s1", Value: "v"})
	require.NoError(t, err)

	require.NoError(t, f.auth.VerifySecret(ctx, p, KindSecret, "s1", id))
	list, err := f.auth.List(ctx, p, KindSecret, "s1")
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, int64(1_700_000_000), list[0].Verify)
	assert.Empty(t, list[0].Value)

	require.ErrorIs(t, f.auth.VerifySecret(ctx, p, KindSecret, "s2", id), common.ErrorNotFound)
}

func TestExpire_ScopedBySubject(t *testing.T) {
	f := newFixture(t)
	p := f.plugin(false, 0)
	ctx := context.Background()
	id, err := f.auth.Create(ctx, p, KindSecret, Values{Sub: "s1", Value: "v"})
	require.NoError(t, err)

	require.ErrorIs(t, f.auth.Expire(ctx, p, KindSecret, "s2", id), common.ErrorNotFound)
	assert.Equal(t, 1, f.store.Len(DefaultTable))

	require.NoError(t, f.auth.Expire(ctx, p, KindSecret, "s1", id))
	assert.Equal(t, 0, f.store.Len(DefaultTable))

	require.ErrorIs(t, f.auth.Expire(ctx, p, KindSecret, "", id), common.ErrorInvalidInput)
}

func TestExpireAll(t *testing.T) {
	f := newFixture(t)
	p := f.plugin(false, 0)
	ctx := context.Background()
	for _, v := range []string{"a", "b"} {
		_, err := f.auth.Create(ctx, p, KindSecret, Values{Sub: "s1", Value: v})
		require.NoError(t, err)
	}
	_, err := f.auth.Create(ctx, p, KindToken, Values{Sub: "s1", Value: "t"})
	require.NoError(t, err)

	n, err := f.auth.ExpireAll(ctx, p, KindSecret, "s1")
	require.NoError(t, err)
	assert.Equal(t, int64(2), n)
	assert.Equal(t, 1, f.store.Len(DefaultTable))
}

func TestList_PurgesExpired(t *testing.T) {
	f := newFixture(t)
	p := f.plugin(false, time.Minute)
	ctx := context.Background()
	_, err := f.auth.Create(ctx, p, KindSecret, Values{Sub: "s1", Value: "v"})
	require.NoError(t, err)

	f.clock.Advance(61)
	n, err := f.auth.Count(ctx, p, KindSecret, "s1")
	require.NoError(t, err)
	assert.Zero(t, n)
	assert.Equal(t, 0, f.store.Len(DefaultTable))
}

func TestCandidates_SkipsUndecodable(t *testing.T) {
	f := newFixture(t)
	p := f.plugin(false, 0)
	ctx := context.Background()
	id, err := f.auth.Create(ctx, p, KindSecret, Values{Sub: "s1", Value: "v"})
	require.NoError(t, err)
	_, err = f.auth.Create(ctx, p, KindSecret, Values{Sub: "s1", Value: "w"})
	require.NoError(t, err)

	require.NoError(t, f.store.Update(ctx, DefaultTable, store.Filters{"id": id}, store.Row{"value": "tampered"}))

	cands, err := f.auth.Candidates(ctx, p, KindSecret, "s1")
	require.NoError(t, err)
	require.Len(t, cands, 1)
	assert.Equal(t, "w", cands[0].Value)
}

func TestCandidates_TamperedRowLoggedAtWarn(t *testing.T) {
	f := newFixture(t)
	var buf bytes.Buffer
	f.auth = New(Options{
		Store:                  f.store,
		Crypto:                 f.crypto,
		Logger:                 logging.NewJSON(&buf, slog.LevelWarn),
		AuthenticationDuration: time.Millisecond,
		Clock:                  f.clock.Now,
	})
	p := f.plugin(false, 0)
	ctx := context.Background()
	id, err := f.auth.Create(ctx, p, KindSecret, Values{Sub: "s1", Value: "v"})
	require.NoError(t, err)
	require.NoError(t, f.store.Update(ctx, DefaultTable, store.Filters{"id": id}, store.Row{"value": "tampered"}))

	cands, err := f.auth.Candidates(ctx, p, KindSecret, "s1")
	require.NoError(t, err)
	assert.Empty(t, cands)
	assert.Contains(t, buf.String(), `"level":"WARN"`)
	assert.Contains(t, buf.String(), "candidate signature invalid")
	assert.Contains(t, buf.String(), id)

	buf.Reset()
	_, err = f.auth.Match(ctx, p, KindSecret, "s1", "v")
	require.ErrorIs(t, err, common.ErrorUnauthorized)
	assert.Contains(t, buf.String(), "candidate signature invalid")
}

func TestPlugin_Type(t *testing.T) {
	f := newFixture(t)
	p := f.plugin(false, 0)
	assert.Equal(t, "test-secret", p.Type(KindSecret))
	assert.Equal(t, "test-token", p.Type(KindToken))
	assert.Equal(t, "none-token", Plugin{ID: "none"}.Type(KindToken))
}
