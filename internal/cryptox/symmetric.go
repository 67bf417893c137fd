package cryptox

import (
	"encoding/base64"
	"fmt"

	"github.com/dmitrijs2005/gophauth/internal/common"
)

// EncryptionKeyField is the row column holding a wrapped row key.
const EncryptionKeyField = "encryptionKey"

// KeyOptions selects the key for one encrypt or decrypt call. A raw
// EncryptionKey wins over a wrapped EncryptedKey; with neither, the
// process key is used. Sub is bound to the ciphertext as associated data.
type KeyOptions struct {
	EncryptionKey []byte
	EncryptedKey  string
	Sub           string
	IV            []byte
}

// SymmetricGenerateEncryptionKey creates a fresh row key and returns it
// together with its form wrapped under the process key for sub. With
// encryption disabled both results are empty.
func (e *Envelope) SymmetricGenerateEncryptionKey(sub string) ([]byte, string, error) {
	if !e.Enabled() {
		return nil, "", nil
	}
	key, err := e.RandomBytes(SymmetricKeySize)
	if err != nil {
		return nil, "", err
	}
	wrapped, err := e.seal(key, e.symmetricKey, sub, nil)
	if err != nil {
		return nil, "", err
	}
	return key, wrapped, nil
}

// SymmetricEncrypt seals data and returns base64(iv || tag || ciphertext),
// signed when a signature secret is configured. Empty input stays empty.
func (e *Envelope) SymmetricEncrypt(data string, opts KeyOptions) (string, error) {
	if !e.Enabled() || data == "" {
		return data, nil
	}
	key, wipe, err := e.resolveKey(opts)
	if err != nil {
		return "", err
	}
	defer wipe()
	return e.seal([]byte(data), key, opts.Sub, opts.IV)
}

// SymmetricDecrypt reverses SymmetricEncrypt. The signature is checked
// before any decryption is attempted.
func (e *Envelope) SymmetricDecrypt(packet string, opts KeyOptions) (string, error) {
	if !e.Enabled() {
		return packet, nil
	}
	if packet == "" {
		return "", common.ErrorEmptyCiphertext
	}
	key, wipe, err := e.resolveKey(opts)
	if err != nil {
		return "", err
	}
	defer wipe()
	plain, err := e.open(packet, key, opts.Sub)
	if err != nil {
		return "", err
	}
	return string(plain), nil
}

// SymmetricEncryptFields returns a copy of row with the named string fields
// encrypted. Missing and empty fields are left alone.
func (e *Envelope) SymmetricEncryptFields(row map[string]any, opts KeyOptions, fields []string) (map[string]any, error) {
	return e.mapFields(row, fields, func(v string) (string, error) {
		return e.SymmetricEncrypt(v, opts)
	})
}

// SymmetricDecryptFields is the inverse of SymmetricEncryptFields.
func (e *Envelope) SymmetricDecryptFields(row map[string]any, opts KeyOptions, fields []string) (map[string]any, error) {
	return e.mapFields(row, fields, func(v string) (string, error) {
		return e.SymmetricDecrypt(v, opts)
	})
}

// RotationSide describes one side of a key rotation. EncryptedKey defaults
// to the row's encryptionKey column.
type RotationSide struct {
	Row          map[string]any
	Sub          string
	EncryptedKey string
	Fields       []string
}

// SymmetricRotation decrypts old.Fields of old.Row, merges next.Row over
// the result and re-encrypts under a freshly generated row key. The
// returned row carries the new wrapped key in its encryptionKey column.
// Rotation never moves a row to another subject.
func (e *Envelope) SymmetricRotation(old, next RotationSide) (map[string]any, error) {
	if old.Sub != next.Sub {
		return nil, fmt.Errorf("%w: rotation cannot change subject", common.ErrorForbidden)
	}
	oldKey := old.EncryptedKey
	if oldKey == "" {
		oldKey, _ = old.Row[EncryptionKeyField].(string)
	}
	plain, err := e.SymmetricDecryptFields(old.Row, KeyOptions{EncryptedKey: oldKey, Sub: old.Sub}, old.Fields)
	if err != nil {
		return nil, err
	}
	for k, v := range next.Row {
		plain[k] = v
	}

	fields := next.Fields
	if fields == nil {
		fields = old.Fields
	}
	key, wrapped, err := e.SymmetricGenerateEncryptionKey(next.Sub)
	if err != nil {
		return nil, err
	}
	defer common.WipeByteArray(key)

	out, err := e.SymmetricEncryptFields(plain, KeyOptions{EncryptionKey: key, Sub: next.Sub}, fields)
	if err != nil {
		return nil, err
	}
	if e.Enabled() {
		out[EncryptionKeyField] = wrapped
	}
	return out, nil
}

// SymmetricRewrapKey moves a wrapped row key from previous to e without
// touching the data it protects. It is the process key rotation step.
func (e *Envelope) SymmetricRewrapKey(encryptedKey, sub string, previous *Envelope) (string, error) {
	if !e.Enabled() || !previous.Enabled() {
		return "", fmt.Errorf("%w: rewrap needs encryption on both sides", common.ErrorInvalidInput)
	}
	raw, err := previous.open(encryptedKey, previous.symmetricKey, sub)
	if err != nil {
		return "", err
	}
	defer common.WipeByteArray(raw)
	return e.seal(raw, e.symmetricKey, sub, nil)
}

func (e *Envelope) resolveKey(opts KeyOptions) ([]byte, func(), error) {
	switch {
	case len(opts.EncryptionKey) > 0:
		return opts.EncryptionKey, func() {}, nil
	case opts.EncryptedKey != "":
		raw, err := e.open(opts.EncryptedKey, e.symmetricKey, opts.Sub)
		if err != nil {
			return nil, nil, fmt.Errorf("unwrap key: %w", err)
		}
		return raw, func() { common.WipeByteArray(raw) }, nil
	}
	return e.symmetricKey, func() {}, nil
}

func (e *Envelope) seal(plain, key []byte, sub string, iv []byte) (string, error) {
	aead, err := e.aead.new(key)
	if err != nil {
		return "", fmt.Errorf("%w: %v", common.ErrorInvalidInput, err)
	}
	if iv == nil {
		if iv, err = e.RandomBytes(aead.NonceSize()); err != nil {
			return "", err
		}
	} else if len(iv) != aead.NonceSize() {
		return "", fmt.Errorf("%w: iv must be %d bytes", common.ErrorInvalidInput, aead.NonceSize())
	}

	sealed := aead.Seal(nil, iv, plain, []byte(sub))
	tagAt := len(sealed) - aead.Overhead()

	packet := make([]byte, 0, len(iv)+len(sealed))
	packet = append(packet, iv...)
	packet = append(packet, sealed[tagAt:]...)
	packet = append(packet, sealed[:tagAt]...)
	return e.SymmetricSignatureSign(base64.StdEncoding.EncodeToString(packet)), nil
}

func (e *Envelope) open(signed string, key []byte, sub string) ([]byte, error) {
	payload, err := e.SymmetricSignatureVerify(signed)
	if err != nil {
		return nil, err
	}
	packet, err := base64.StdEncoding.DecodeString(payload)
	if err != nil {
		return nil, common.ErrorMalformedCiphertext
	}
	aead, err := e.aead.new(key)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", common.ErrorInvalidInput, err)
	}
	ns, ts := aead.NonceSize(), aead.Overhead()
	if len(packet) < ns+ts {
		return nil, common.ErrorMalformedCiphertext
	}
	iv, tag, ct := packet[:ns], packet[ns:ns+ts], packet[ns+ts:]

	sealed := make([]byte, 0, len(ct)+len(tag))
	sealed = append(sealed, ct...)
	sealed = append(sealed, tag...)
	plain, err := aead.Open(nil, iv, sealed, []byte(sub))
	if err != nil {
		return nil, common.ErrorDecryption
	}
	return plain, nil
}

func (e *Envelope) mapFields(row map[string]any, fields []string, fn func(string) (string, error)) (map[string]any, error) {
	out := make(map[string]any, len(row))
	for k, v := range row {
		out[k] = v
	}
	for _, f := range fields {
		s, ok := out[f].(string)
		if !ok || s == "" {
			continue
		}
		v, err := fn(s)
		if err != nil {
			return nil, fmt.Errorf("field %s: %w", f, err)
		}
		out[f] = v
	}
	return out, nil
}
