package config

import (
	"os"
	"testing"
	"time"

	"github.com/dmitrijs2005/gophauth/internal/cryptox"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	var c Config
	c.LoadDefaults()

	assert.Equal(t, ":50051", c.EndpointAddrGRPC)
	assert.Equal(t, "sqlite", c.DatabaseDriver)
	assert.Equal(t, 15*time.Minute, c.AccessTokenValidityDuration)
	assert.Equal(t, 500*time.Millisecond, c.AuthenticationDuration)
	assert.Empty(t, c.SessionSecret, "secrets are never defaulted")
	assert.Empty(t, c.SymmetricEncryptionKey)
	assert.Empty(t, c.S3Bucket)
}

func TestLoadConfig_UsesDefaultsBeforeParsing(t *testing.T) {
	origArgs := os.Args
	t.Cleanup(func() { os.Args = origArgs })
	os.Args = []string{"testbin"}

	c := LoadConfig()
	require.NotNil(t, c, "LoadConfig must not return nil")

	var want Config
	want.LoadDefaults()
	assert.Equal(t, &want, c)
}

func TestCryptoOptions(t *testing.T) {
	var c Config
	c.LoadDefaults()
	c.SymmetricEncryptionKey = "a2V5"
	c.Argon2Time = 7

	o := c.CryptoOptions()
	assert.Equal(t, "a2V5", o.SymmetricEncryptionKey)
	assert.Equal(t, cryptox.AlgorithmChaCha20Poly1305, o.SymmetricEncryptionAlgorithm)
	assert.EqualValues(t, 7, o.SecretHash.TimeCost)
	assert.Equal(t, cryptox.DefaultSecretHashOptions().KeyLength, o.SecretHash.KeyLength)

	_, err := cryptox.New(o, nil)
	assert.Error(t, err, "a three byte key is rejected by the envelope")
}

func TestBreachOptions(t *testing.T) {
	var c Config
	c.LoadDefaults()

	_, ok := c.BreachOptions()
	assert.False(t, ok)

	c.S3Bucket = "corpus"
	o, ok := c.BreachOptions()
	require.True(t, ok)
	assert.Equal(t, "corpus", o.Bucket)
	assert.Equal(t, "range/", o.Prefix)
}
