package cryptox

import (
	"encoding/base64"
	"fmt"
	"strings"

	"github.com/dmitrijs2005/gophauth/internal/common"
	"golang.org/x/crypto/argon2"
)

// CreateSecretHash hashes a user secret with argon2id using the envelope's
// parameters and returns a self-describing PHC string.
func (e *Envelope) CreateSecretHash(secret string) (string, error) {
	return e.CreateSecretHashWith(secret, e.secretHash)
}

// CreateSecretHashWith is CreateSecretHash with explicit parameters.
func (e *Envelope) CreateSecretHashWith(secret string, p SecretHashOptions) (string, error) {
	p = mergeSecretHash(p)
	salt, err := e.RandomBytes(int(p.SaltLength))
	if err != nil {
		return "", err
	}
	key := argon2.IDKey([]byte(secret), salt, p.TimeCost, p.MemoryCost, p.Parallelism, p.KeyLength)
	defer common.WipeByteArray(key)

	enc := base64.RawStdEncoding
	return fmt.Sprintf("$argon2id$v=%d$m=%d,t=%d,p=%d$%s$%s",
		argon2.Version, p.MemoryCost, p.TimeCost, p.Parallelism,
		enc.EncodeToString(salt), enc.EncodeToString(key)), nil
}

// VerifySecretHash recomputes the hash of secret with the parameters
// embedded in encoded and compares in constant time.
func (e *Envelope) VerifySecretHash(encoded, secret string) (bool, error) {
	p, salt, want, err := parseSecretHash(encoded)
	if err != nil {
		return false, err
	}
	got := argon2.IDKey([]byte(secret), salt, p.TimeCost, p.MemoryCost, p.Parallelism, uint32(len(want)))
	defer common.WipeByteArray(got)
	return SafeEqual(got, want), nil
}

func parseSecretHash(encoded string) (SecretHashOptions, []byte, []byte, error) {
	var p SecretHashOptions
	bad := fmt.Errorf("%w: malformed secret hash", common.ErrorInvalidInput)

	parts := strings.Split(encoded, "$")
	if len(parts) != 6 || parts[0] != "" || parts[1] != "argon2id" {
		return p, nil, nil, bad
	}
	var version int
	if _, err := fmt.Sscanf(parts[2], "v=%d", &version); err != nil || version != argon2.Version {
		return p, nil, nil, bad
	}
	if _, err := fmt.Sscanf(parts[3], "m=%d,t=%d,p=%d", &p.MemoryCost, &p.TimeCost, &p.Parallelism); err != nil {
		return p, nil, nil, bad
	}
	if p.TimeCost == 0 || p.Parallelism == 0 {
		return p, nil, nil, bad
	}
	salt, err := base64.RawStdEncoding.DecodeString(parts[4])
	if err != nil {
		return p, nil, nil, bad
	}
	hash, err := base64.RawStdEncoding.DecodeString(parts[5])
	if err != nil || len(hash) == 0 {
		return p, nil, nil, bad
	}
	return p, salt, hash, nil
}
