package cryptox

import (
	"crypto/sha256"
	"fmt"
	"strings"

	"github.com/dmitrijs2005/gophauth/internal/common"
)

type digestConfig struct {
	algorithm string
	encoding  string
}

// DigestOption overrides the envelope defaults for a single digest.
type DigestOption func(*digestConfig)

func WithAlgorithm(name string) DigestOption {
	return func(c *digestConfig) { c.algorithm = name }
}

func WithEncoding(name string) DigestOption {
	return func(c *digestConfig) { c.encoding = name }
}

// CreateDigest hashes value and returns "<algorithm>:<encoded hash>".
func (e *Envelope) CreateDigest(value string, opts ...DigestOption) (string, error) {
	return e.digest([]byte(value), opts...)
}

// CreateSeasonedDigest hashes value with the process salt appended and,
// when a pepper is configured, sealed under a pepper-derived key first.
// The result is deterministic for a given configuration, which lets it be
// used as a lookup column.
func (e *Envelope) CreateSeasonedDigest(value string, opts ...DigestOption) (string, error) {
	plain := []byte(value + e.salt)
	if e.pepper != "" {
		sealed, err := e.pepperSeal(plain)
		if err != nil {
			return "", err
		}
		plain = sealed
	}
	return e.digest(plain, opts...)
}

// DigestAlgorithm returns the algorithm prefix of a digest string.
func DigestAlgorithm(digest string) string {
	alg, _, ok := strings.Cut(digest, ":")
	if !ok {
		return ""
	}
	return alg
}

func (e *Envelope) digest(b []byte, opts ...DigestOption) (string, error) {
	c := digestConfig{algorithm: e.digestAlgorithm, encoding: e.encoding}
	for _, o := range opts {
		o(&c)
	}
	newHash, err := lookupHash(c.algorithm)
	if err != nil {
		return "", err
	}
	if c.encoding != EncodingBase64 && c.encoding != EncodingHex {
		return "", fmt.Errorf("%w: unknown encoding %q", common.ErrorInvalidInput, c.encoding)
	}
	h := newHash()
	h.Write(b)
	return c.algorithm + ":" + encode(h.Sum(nil), c.encoding), nil
}

// pepperSeal encrypts b under SHA-256(pepper) with a nonce derived from
// the pepper, so equal inputs seal to equal outputs.
func (e *Envelope) pepperSeal(b []byte) ([]byte, error) {
	key := sha256.Sum256([]byte(e.pepper))
	nonce := sha256.Sum256([]byte("nonce:" + e.pepper))
	aead, err := e.aead.new(key[:])
	if err != nil {
		return nil, fmt.Errorf("pepper: %w", err)
	}
	return aead.Seal(nil, nonce[:e.aead.nonceSize], b, nil), nil
}
