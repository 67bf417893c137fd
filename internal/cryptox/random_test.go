package cryptox

import (
	"strings"
	"testing"

	"github.com/dmitrijs2005/gophauth/internal/common"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEntropyToCharacterLength(t *testing.T) {
	tests := []struct {
		bits, pool, want int
	}{
		{64, 62, 11},
		{128, 62, 22},
		{20, 10, 7},
		{0, 62, 0},
		{64, 1, 0},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, EntropyToCharacterLength(tt.bits, tt.pool), "bits=%d pool=%d", tt.bits, tt.pool)
	}
}

func TestCharacterPoolSize(t *testing.T) {
	assert.Equal(t, 62, CharacterPoolSize(CharsetAlphaNumeric))
	assert.Equal(t, 3, CharacterPoolSize("äöü"))
}

func TestRandomCharacters_UsesOnlyAlphabet(t *testing.T) {
	e := newTestEnvelope(t)
	s, err := e.RandomCharacters(500, "ab€")
	require.NoError(t, err)
	assert.Equal(t, 500, len([]rune(s)))
	for _, r := range s {
		assert.Contains(t, "ab€", string(r))
	}
}

func TestRandomCharacters_CoversAlphabet(t *testing.T) {
	e := newTestEnvelope(t)
	s, err := e.RandomCharacters(2000, CharsetNumeric)
	require.NoError(t, err)
	for _, c := range CharsetNumeric {
		assert.True(t, strings.ContainsRune(s, c), "missing %q", c)
	}
}

func TestRandomCharacters_RejectsBadAlphabet(t *testing.T) {
	e := newTestEnvelope(t)
	_, err := e.RandomCharacters(4, "a")
	require.ErrorIs(t, err, common.ErrorInvalidInput)
	_, err = e.RandomCharacters(-1, "ab")
	require.ErrorIs(t, err, common.ErrorInvalidInput)
}

func TestRandomID(t *testing.T) {
	e := newTestEnvelope(t)
	a, err := e.RandomID("pat-")
	require.NoError(t, err)
	b, err := e.RandomID("pat-")
	require.NoError(t, err)

	assert.True(t, strings.HasPrefix(a, "pat-"))
	assert.Len(t, a, len("pat-")+22)
	assert.NotEqual(t, a, b)
}

func TestRandomBytes(t *testing.T) {
	e := newTestEnvelope(t)
	b, err := e.RandomBytes(32)
	require.NoError(t, err)
	assert.Len(t, b, 32)
	_, err = e.RandomBytes(-1)
	require.ErrorIs(t, err, common.ErrorInvalidInput)
}
