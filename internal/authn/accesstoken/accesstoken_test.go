package accesstoken

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/dmitrijs2005/gophauth/internal/authn"
	"github.com/dmitrijs2005/gophauth/internal/authn/authntest"
	"github.com/dmitrijs2005/gophauth/internal/common"
	"github.com/dmitrijs2005/gophauth/internal/store"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCreate_StoresDigestNotValue(t *testing.T) {
	f := authntest.New(t)
	s := New(f.Authn, Options{}, nil)
	ctx := context.Background()

	tok, err := s.Create(ctx, "S1", "ci")
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(tok.Value, Prefix))
	assert.Equal(t, 1, f.Notify.Count(NotifyCreate))

	row, err := f.Store.Select(ctx, authn.DefaultTable, store.Filters{"id": tok.ID})
	require.NoError(t, err)
	require.NotNil(t, row)
	assert.Equal(t, "access-token-secret", row.String("type"))
	assert.NotEmpty(t, row.String("digest"))
	assert.NotContains(t, row.String("value"), tok.Value)
	assert.NotContains(t, row.String("digest"), tok.Value)
}

func TestExists(t *testing.T) {
	f := authntest.New(t)
	s := New(f.Authn, Options{}, nil)
	ctx := context.Background()

	tok, err := s.Create(ctx, "S1", "ci")
	require.NoError(t, err)

	sub, err := s.Exists(ctx, tok.Value)
	require.NoError(t, err)
	assert.Equal(t, "S1", sub)

	sub, err = s.Exists(ctx, Prefix+"unknown")
	require.NoError(t, err)
	assert.Empty(t, sub)

	sub, err = s.Exists(ctx, "alice")
	require.NoError(t, err)
	assert.Empty(t, sub)
}

func TestAuthenticate_Reusable(t *testing.T) {
	f := authntest.New(t)
	s := New(f.Authn, Options{}, nil)
	ctx := context.Background()

	tok, err := s.Create(ctx, "S1", "ci")
	require.NoError(t, err)

	for range 2 {
		cred, err := s.Authenticate(ctx, tok.Value)
		require.NoError(t, err)
		assert.Equal(t, "S1", cred.Sub)
		assert.Equal(t, tok.ID, cred.ID)
	}

	_, err = s.Authenticate(ctx, tok.Value+"x")
	require.ErrorIs(t, err, common.ErrorUnauthorized)
}

func TestAuthenticate_OneTime(t *testing.T) {
	f := authntest.New(t)
	s := New(f.Authn, Options{OTP: true}, nil)
	ctx := context.Background()

	tok, err := s.Create(ctx, "S1", "deploy")
	require.NoError(t, err)

	_, err = s.Authenticate(ctx, tok.Value)
	require.NoError(t, err)
	_, err = s.Authenticate(ctx, tok.Value)
	require.ErrorIs(t, err, common.ErrorUnauthorized)
}

func TestAuthenticate_ThroughResolver(t *testing.T) {
	f := authntest.New(t)
	s := New(f.Authn, Options{}, nil)
	f.Authn.AddResolver(s.Exists)
	ctx := context.Background()

	tok, err := s.Create(ctx, "S1", "ci")
	require.NoError(t, err)

	cred, err := f.Authn.Authenticate(ctx, s.Plugin(), tok.Value, tok.Value)
	require.NoError(t, err)
	assert.Equal(t, "S1", cred.Sub)
}

func TestExpiry(t *testing.T) {
	f := authntest.New(t)
	s := New(f.Authn, Options{TTL: time.Hour}, nil)
	ctx := context.Background()

	tok, err := s.Create(ctx, "S1", "ci")
	require.NoError(t, err)
	f.Advance(2 * time.Hour)

	sub, err := s.Exists(ctx, tok.Value)
	require.NoError(t, err)
	assert.Empty(t, sub)
	_, err = s.Authenticate(ctx, tok.Value)
	require.ErrorIs(t, err, common.ErrorUnauthorized)
}

func TestListAndExpire(t *testing.T) {
	f := authntest.New(t)
	s := New(f.Authn, Options{}, nil)
	ctx := context.Background()

	a, err := s.Create(ctx, "S1", "a")
	require.NoError(t, err)
	_, err = s.Create(ctx, "S1", "b")
	require.NoError(t, err)

	list, err := s.List(ctx, "S1")
	require.NoError(t, err)
	require.Len(t, list, 2)
	assert.Equal(t, "a", list[0].Name)

	require.ErrorIs(t, s.Expire(ctx, "S2", a.ID), common.ErrorNotFound)
	require.NoError(t, s.Expire(ctx, "S1", a.ID))

	_, err = s.Authenticate(ctx, a.Value)
	require.ErrorIs(t, err, common.ErrorUnauthorized)
}
