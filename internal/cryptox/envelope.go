// Package cryptox is the cryptographic envelope shared by every credential,
// account, messenger and session record: random generation, seasoned
// digests, memory-hard secret hashing, authenticated symmetric encryption
// with per-row key wrapping, HMAC signing with rotation, and EC signatures.
//
// An Envelope is built once from Options and is read-only afterwards. It
// never persists anything itself.
//
// Absent secrets degrade the matching capability instead of failing: with no
// symmetric key, encryption and decryption pass data through unchanged; with
// no signature secret, packets are not signed. This keeps local development
// and staged rollouts working, and New logs a warning for every such gap.
// Production deployments must supply all secrets.
package cryptox

import (
	"context"
	"crypto/elliptic"
	"crypto/rand"
	"encoding/base64"
	"fmt"
	"io"

	"github.com/dmitrijs2005/gophauth/internal/common"
	"github.com/dmitrijs2005/gophauth/internal/logging"
)

const (
	AlgorithmChaCha20Poly1305  = "chacha20-poly1305"
	AlgorithmXChaCha20Poly1305 = "xchacha20-poly1305"
	AlgorithmAES256GCM         = "aes-256-gcm"

	EncodingBase64 = "base64"
	EncodingHex    = "hex"

	// SymmetricKeySize is the size of every symmetric key, process or row.
	SymmetricKeySize = 32
)

// SecretHashOptions tunes argon2id. Parameters are embedded in every hash,
// so changing them only affects new hashes.
type SecretHashOptions struct {
	TimeCost    uint32
	MemoryCost  uint32 // KiB
	Parallelism uint8
	SaltLength  uint32
	KeyLength   uint32
}

// Options is the process-wide envelope configuration. Key material is
// base64 (standard alphabet); salt and pepper are used as given.
type Options struct {
	SymmetricEncryptionKey           string
	SymmetricEncryptionAlgorithm     string
	SymmetricSignatureSecret         string
	SymmetricSignatureSecretPrevious []string
	SymmetricSignatureHashAlgorithm  string
	DigestChecksumSalt               string
	DigestChecksumPepper             string
	DefaultHashAlgorithm             string
	DefaultEncoding                  string
	SecretHash                       SecretHashOptions
	AsymmetricCurve                  string
	AsymmetricSignatureHashAlgorithm string
}

// DefaultSecretHashOptions mirrors the argon2id parameters used for key
// derivation elsewhere in the codebase.
func DefaultSecretHashOptions() SecretHashOptions {
	return SecretHashOptions{
		TimeCost:    3,
		MemoryCost:  64 * 1024,
		Parallelism: 4,
		SaltLength:  16,
		KeyLength:   32,
	}
}

// Envelope implements the cryptographic primitives for one configuration.
type Envelope struct {
	symmetricKey     []byte
	aead             aeadSpec
	signatureSecrets [][]byte
	signatureHash    string
	digestAlgorithm  string
	encoding         string
	salt             string
	pepper           string
	secretHash       SecretHashOptions
	curve            elliptic.Curve
	asymmetricHash   string
	random           io.Reader
	logger           logging.Logger
}

// New validates opts and builds an Envelope. Unknown algorithm names and
// undecodable keys are configuration errors; missing secrets are not.
func New(opts Options, logger logging.Logger) (*Envelope, error) {
	if logger == nil {
		logger = logging.Nop()
	}
	e := &Envelope{
		random: rand.Reader,
		logger: logger.With("module", "cryptox"),
	}
	ctx := context.Background()

	spec, err := lookupAEAD(valueOr(opts.SymmetricEncryptionAlgorithm, AlgorithmChaCha20Poly1305))
	if err != nil {
		return nil, err
	}
	e.aead = spec

	if opts.SymmetricEncryptionKey == "" {
		e.logger.Warn(ctx, "symmetric encryption key not set, encryption disabled")
	} else {
		key, err := base64.StdEncoding.DecodeString(opts.SymmetricEncryptionKey)
		if err != nil {
			return nil, fmt.Errorf("%w: symmetric encryption key is not base64", common.ErrorInvalidInput)
		}
		if len(key) != SymmetricKeySize {
			return nil, fmt.Errorf("%w: symmetric encryption key must be %d bytes", common.ErrorInvalidInput, SymmetricKeySize)
		}
		e.symmetricKey = key
	}

	if opts.SymmetricSignatureSecret == "" {
		e.logger.Warn(ctx, "symmetric signature secret not set, packet signing disabled")
	} else {
		secrets := append([]string{opts.SymmetricSignatureSecret}, opts.SymmetricSignatureSecretPrevious...)
		for _, s := range secrets {
			b, err := base64.StdEncoding.DecodeString(s)
			if err != nil || len(b) == 0 {
				return nil, fmt.Errorf("%w: signature secret is not base64", common.ErrorInvalidInput)
			}
			e.signatureSecrets = append(e.signatureSecrets, b)
		}
	}

	e.signatureHash = valueOr(opts.SymmetricSignatureHashAlgorithm, "sha256")
	e.digestAlgorithm = valueOr(opts.DefaultHashAlgorithm, "sha256")
	e.asymmetricHash = valueOr(opts.AsymmetricSignatureHashAlgorithm, "sha384")
	for _, name := range []string{e.signatureHash, e.digestAlgorithm, e.asymmetricHash} {
		if _, err := lookupHash(name); err != nil {
			return nil, err
		}
	}

	e.encoding = valueOr(opts.DefaultEncoding, EncodingBase64)
	if e.encoding != EncodingBase64 && e.encoding != EncodingHex {
		return nil, fmt.Errorf("%w: unknown encoding %q", common.ErrorInvalidInput, e.encoding)
	}

	e.salt = opts.DigestChecksumSalt
	if e.salt == "" {
		e.logger.Warn(ctx, "digest checksum salt not set")
	}
	e.pepper = opts.DigestChecksumPepper
	if e.pepper == "" {
		e.logger.Warn(ctx, "digest checksum pepper not set")
	}

	e.secretHash = mergeSecretHash(opts.SecretHash)

	curve, err := lookupCurve(valueOr(opts.AsymmetricCurve, "P-384"))
	if err != nil {
		return nil, err
	}
	e.curve = curve

	return e, nil
}

// Enabled reports whether a symmetric process key is configured.
func (e *Envelope) Enabled() bool {
	return len(e.symmetricKey) > 0
}

// Signing reports whether packets are HMAC-signed.
func (e *Envelope) Signing() bool {
	return len(e.signatureSecrets) > 0
}

func mergeSecretHash(o SecretHashOptions) SecretHashOptions {
	d := DefaultSecretHashOptions()
	if o.TimeCost != 0 {
		d.TimeCost = o.TimeCost
	}
	if o.MemoryCost != 0 {
		d.MemoryCost = o.MemoryCost
	}
	if o.Parallelism != 0 {
		d.Parallelism = o.Parallelism
	}
	if o.SaltLength != 0 {
		d.SaltLength = o.SaltLength
	}
	if o.KeyLength != 0 {
		d.KeyLength = o.KeyLength
	}
	return d
}

func valueOr(v, def string) string {
	if v == "" {
		return def
	}
	return v
}
