package cryptox

import (
	"strings"
	"testing"

	"github.com/dmitrijs2005/gophauth/internal/common"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSymmetric_RoundTripAllAlgorithms(t *testing.T) {
	for _, alg := range []string{AlgorithmChaCha20Poly1305, AlgorithmXChaCha20Poly1305, AlgorithmAES256GCM} {
		t.Run(alg, func(t *testing.T) {
			e := newTestEnvelope(t, func(o *Options) { o.SymmetricEncryptionAlgorithm = alg })
			ct, err := e.SymmetricEncrypt("top secret", KeyOptions{Sub: "sub-1"})
			require.NoError(t, err)
			assert.NotContains(t, ct, "top secret")

			pt, err := e.SymmetricDecrypt(ct, KeyOptions{Sub: "sub-1"})
			require.NoError(t, err)
			assert.Equal(t, "top secret", pt)
		})
	}
}

func TestSymmetric_RandomIVPerCall(t *testing.T) {
	e := newTestEnvelope(t)
	a, err := e.SymmetricEncrypt("same", KeyOptions{})
	require.NoError(t, err)
	b, err := e.SymmetricEncrypt("same", KeyOptions{})
	require.NoError(t, err)
	assert.NotEqual(t, a, b)
}

func TestSymmetric_FixedIV(t *testing.T) {
	e := newTestEnvelope(t)
	iv := make([]byte, 12)
	a, err := e.SymmetricEncrypt("same", KeyOptions{IV: iv})
	require.NoError(t, err)
	b, err := e.SymmetricEncrypt("same", KeyOptions{IV: iv})
	require.NoError(t, err)
	assert.Equal(t, a, b)

	_, err = e.SymmetricEncrypt("same", KeyOptions{IV: []byte{1}})
	require.ErrorIs(t, err, common.ErrorInvalidInput)
}

func TestSymmetric_EmptyValues(t *testing.T) {
	e := newTestEnvelope(t)
	ct, err := e.SymmetricEncrypt("", KeyOptions{})
	require.NoError(t, err)
	assert.Equal(t, "", ct)

	_, err = e.SymmetricDecrypt("", KeyOptions{})
	require.ErrorIs(t, err, common.ErrorEmptyCiphertext)
}

func TestSymmetric_SubIsBound(t *testing.T) {
	e := newTestEnvelope(t)
	ct, err := e.SymmetricEncrypt("value", KeyOptions{Sub: "alice"})
	require.NoError(t, err)

	_, err = e.SymmetricDecrypt(ct, KeyOptions{Sub: "bob"})
	require.ErrorIs(t, err, common.ErrorDecryption)
}

func TestSymmetric_KeyIsolation(t *testing.T) {
	e := newTestEnvelope(t)
	k1, _, err := e.SymmetricGenerateEncryptionKey("sub")
	require.NoError(t, err)
	k2, _, err := e.SymmetricGenerateEncryptionKey("sub")
	require.NoError(t, err)

	ct, err := e.SymmetricEncrypt("value", KeyOptions{EncryptionKey: k1, Sub: "sub"})
	require.NoError(t, err)
	_, err = e.SymmetricDecrypt(ct, KeyOptions{EncryptionKey: k2, Sub: "sub"})
	require.ErrorIs(t, err, common.ErrorDecryption)
}

func TestSymmetric_WrappedKey(t *testing.T) {
	e := newTestEnvelope(t)
	raw, wrapped, err := e.SymmetricGenerateEncryptionKey("sub")
	require.NoError(t, err)
	assert.Len(t, raw, SymmetricKeySize)

	ct, err := e.SymmetricEncrypt("value", KeyOptions{EncryptionKey: raw, Sub: "sub"})
	require.NoError(t, err)
	pt, err := e.SymmetricDecrypt(ct, KeyOptions{EncryptedKey: wrapped, Sub: "sub"})
	require.NoError(t, err)
	assert.Equal(t, "value", pt)

	_, err = e.SymmetricDecrypt(ct, KeyOptions{EncryptedKey: wrapped, Sub: "other"})
	require.Error(t, err)
}

func TestSymmetric_AnyByteFlipBreaksSignature(t *testing.T) {
	e := newTestEnvelope(t)
	ct, err := e.SymmetricEncrypt("value", KeyOptions{})
	require.NoError(t, err)

	for i := range ct {
		b := []byte(ct)
		b[i] ^= 0x01
		_, err := e.SymmetricDecrypt(string(b), KeyOptions{})
		require.ErrorIs(t, err, common.ErrorSignatureInvalid, "byte %d", i)
	}
}

func TestSymmetric_UnsignedTamperFailsDecryption(t *testing.T) {
	e := newTestEnvelope(t, func(o *Options) { o.SymmetricSignatureSecret = "" })
	ct, err := e.SymmetricEncrypt("value", KeyOptions{})
	require.NoError(t, err)
	assert.NotContains(t, ct, ".")

	b := []byte(ct)
	b[len(b)-3] ^= 0x01
	_, err = e.SymmetricDecrypt(string(b), KeyOptions{})
	require.Error(t, err)

	_, err = e.SymmetricDecrypt("AAAA", KeyOptions{})
	require.ErrorIs(t, err, common.ErrorMalformedCiphertext)
}

func TestSymmetric_Passthrough(t *testing.T) {
	e := newTestEnvelope(t, func(o *Options) { o.SymmetricEncryptionKey = "" })
	assert.False(t, e.Enabled())

	ct, err := e.SymmetricEncrypt("value", KeyOptions{Sub: "s"})
	require.NoError(t, err)
	assert.Equal(t, "value", ct)
	pt, err := e.SymmetricDecrypt("value", KeyOptions{Sub: "s"})
	require.NoError(t, err)
	assert.Equal(t, "value", pt)

	k, wrapped, err := e.SymmetricGenerateEncryptionKey("s")
	require.NoError(t, err)
	assert.Nil(t, k)
	assert.Empty(t, wrapped)
}

func TestSignature_PreviousSecretsVerify(t *testing.T) {
	old := newTestEnvelope(t, func(o *Options) { o.SymmetricSignatureSecret = b64("old") })
	signed := old.SymmetricSignatureSign("payload")

	rotated := newTestEnvelope(t, func(o *Options) {
		o.SymmetricSignatureSecret = b64("new")
		o.SymmetricSignatureSecretPrevious = []string{b64("old")}
	})
	got, err := rotated.SymmetricSignatureVerify(signed)
	require.NoError(t, err)
	assert.Equal(t, "payload", got)

	assert.NotEqual(t, signed, rotated.SymmetricSignatureSign("payload"))

	dropped := newTestEnvelope(t, func(o *Options) { o.SymmetricSignatureSecret = b64("new") })
	_, err = dropped.SymmetricSignatureVerify(signed)
	require.ErrorIs(t, err, common.ErrorSignatureInvalid)
}

func TestSignature_MissingOrUnexpected(t *testing.T) {
	e := newTestEnvelope(t)
	_, err := e.SymmetricSignatureVerify("payload")
	require.ErrorIs(t, err, common.ErrorSignatureInvalid)

	unsigned := newTestEnvelope(t, func(o *Options) { o.SymmetricSignatureSecret = "" })
	_, err = unsigned.SymmetricSignatureVerify(e.SymmetricSignatureSign("payload"))
	require.ErrorIs(t, err, common.ErrorSignatureInvalid)
}

func TestSymmetricFields(t *testing.T) {
	e := newTestEnvelope(t)
	row := map[string]any{"value": "secret", "note": "", "count": 3, "plain": "visible"}

	enc, err := e.SymmetricEncryptFields(row, KeyOptions{Sub: "s"}, []string{"value", "note", "count", "missing"})
	require.NoError(t, err)
	assert.NotEqual(t, "secret", enc["value"])
	assert.Equal(t, "", enc["note"])
	assert.Equal(t, 3, enc["count"])
	assert.Equal(t, "visible", enc["plain"])
	assert.Equal(t, "secret", row["value"], "input row must not change")

	dec, err := e.SymmetricDecryptFields(enc, KeyOptions{Sub: "s"}, []string{"value", "note"})
	require.NoError(t, err)
	assert.Equal(t, row, dec)
}

func TestSymmetricRotation(t *testing.T) {
	e := newTestEnvelope(t)
	key, wrapped, err := e.SymmetricGenerateEncryptionKey("s")
	require.NoError(t, err)
	row, err := e.SymmetricEncryptFields(map[string]any{"value": "v1", "id": "a"}, KeyOptions{EncryptionKey: key, Sub: "s"}, []string{"value"})
	require.NoError(t, err)
	row[EncryptionKeyField] = wrapped

	out, err := e.SymmetricRotation(
		RotationSide{Row: row, Sub: "s", Fields: []string{"value"}},
		RotationSide{Row: map[string]any{"note": "added"}, Sub: "s"},
	)
	require.NoError(t, err)
	assert.NotEqual(t, wrapped, out[EncryptionKeyField])
	assert.Equal(t, "added", out["note"])
	assert.Equal(t, "a", out["id"])

	dec, err := e.SymmetricDecryptFields(out, KeyOptions{EncryptedKey: out[EncryptionKeyField].(string), Sub: "s"}, []string{"value"})
	require.NoError(t, err)
	assert.Equal(t, "v1", dec["value"])

	_, err = e.SymmetricDecryptFields(out, KeyOptions{EncryptedKey: wrapped, Sub: "s"}, []string{"value"})
	require.Error(t, err)
}

func TestSymmetricRotation_SubMismatch(t *testing.T) {
	e := newTestEnvelope(t)
	_, err := e.SymmetricRotation(RotationSide{Sub: "a"}, RotationSide{Sub: "b"})
	require.ErrorIs(t, err, common.ErrorForbidden)
}

func TestSymmetricRewrapKey(t *testing.T) {
	prev := newTestEnvelope(t)
	next := newTestEnvelope(t, func(o *Options) {
		o.SymmetricEncryptionKey = b64(strings.Repeat("n", SymmetricKeySize))
	})

	raw, wrapped, err := prev.SymmetricGenerateEncryptionKey("s")
	require.NoError(t, err)
	ct, err := prev.SymmetricEncrypt("value", KeyOptions{EncryptionKey: raw, Sub: "s"})
	require.NoError(t, err)

	rewrapped, err := next.SymmetricRewrapKey(wrapped, "s", prev)
	require.NoError(t, err)

	pt, err := next.SymmetricDecrypt(ct, KeyOptions{EncryptedKey: rewrapped, Sub: "s"})
	require.NoError(t, err)
	assert.Equal(t, "value", pt)

	_, err = next.SymmetricDecrypt(ct, KeyOptions{EncryptedKey: wrapped, Sub: "s"})
	require.Error(t, err)

	disabled := newTestEnvelope(t, func(o *Options) { o.SymmetricEncryptionKey = "" })
	_, err = next.SymmetricRewrapKey(wrapped, "s", disabled)
	require.ErrorIs(t, err, common.ErrorInvalidInput)
}
