package cryptox

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/elliptic"
	"crypto/sha256"
	"crypto/sha512"
	"encoding/base64"
	"encoding/hex"
	"fmt"
	"hash"

	"github.com/dmitrijs2005/gophauth/internal/common"
	"golang.org/x/crypto/chacha20poly1305"
	"golang.org/x/crypto/sha3"
)

type aeadSpec struct {
	name      string
	nonceSize int
	new       func(key []byte) (cipher.AEAD, error)
}

func newAESGCM(key []byte) (cipher.AEAD, error) {
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, err
	}
	return cipher.NewGCM(block)
}

var aeads = map[string]aeadSpec{
	AlgorithmChaCha20Poly1305: {
		name:      AlgorithmChaCha20Poly1305,
		nonceSize: chacha20poly1305.NonceSize,
		new:       chacha20poly1305.New,
	},
	AlgorithmXChaCha20Poly1305: {
		name:      AlgorithmXChaCha20Poly1305,
		nonceSize: chacha20poly1305.NonceSizeX,
		new:       chacha20poly1305.NewX,
	},
	AlgorithmAES256GCM: {
		name:      AlgorithmAES256GCM,
		nonceSize: 12,
		new:       newAESGCM,
	},
}

func lookupAEAD(name string) (aeadSpec, error) {
	s, ok := aeads[name]
	if !ok {
		return aeadSpec{}, fmt.Errorf("%w: unknown encryption algorithm %q", common.ErrorInvalidInput, name)
	}
	return s, nil
}

var hashes = map[string]func() hash.Hash{
	"sha256":   sha256.New,
	"sha384":   sha512.New384,
	"sha512":   sha512.New,
	"sha3-256": sha3.New256,
	"sha3-384": sha3.New384,
	"sha3-512": sha3.New512,
}

func lookupHash(name string) (func() hash.Hash, error) {
	h, ok := hashes[name]
	if !ok {
		return nil, fmt.Errorf("%w: unknown hash algorithm %q", common.ErrorInvalidInput, name)
	}
	return h, nil
}

func lookupCurve(name string) (elliptic.Curve, error) {
	switch name {
	case "P-256":
		return elliptic.P256(), nil
	case "P-384":
		return elliptic.P384(), nil
	case "P-521":
		return elliptic.P521(), nil
	}
	return nil, fmt.Errorf("%w: unknown curve %q", common.ErrorInvalidInput, name)
}

func encode(b []byte, encoding string) string {
	if encoding == EncodingHex {
		return hex.EncodeToString(b)
	}
	return base64.StdEncoding.EncodeToString(b)
}

func decode(s, encoding string) ([]byte, error) {
	if encoding == EncodingHex {
		return hex.DecodeString(s)
	}
	return base64.StdEncoding.DecodeString(s)
}
