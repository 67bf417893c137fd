// Package config handles configuration for the authentication server,
// including defaults, JSON overlay, and command-line flags.
package config

import (
	"time"

	"github.com/dmitrijs2005/gophauth/internal/authn/password"
	"github.com/dmitrijs2005/gophauth/internal/cryptox"
)

// Config holds runtime settings for the gophauth server.
//
// Fields:
//   - EndpointAddrGRPC: bind address for the public gRPC endpoint.
//   - DatabaseDriver / DatabaseDSN: "pgx" or "sqlite" and its DSN.
//   - SessionSecret: HMAC secret for signing access tokens (HS256).
//   - SessionValidityDuration / AccessTokenValidityDuration: session and token lifetimes.
//   - AuthenticationDuration: floor for every authentication attempt.
//   - Symmetric*, Digest*, Argon2*: key material and tuning for the crypto envelope.
//   - WebAuthn*: relying party settings; an empty WebAuthnRPID disables passkeys.
//   - S3*: breach corpus location; an empty S3Bucket disables the breach check.
//   - NotifyWebhookURL: delivery service endpoint; empty logs notifications instead.
type Config struct {
	EndpointAddrGRPC string
	DatabaseDriver   string
	DatabaseDSN      string

	SessionSecret               string
	SessionValidityDuration     time.Duration
	AccessTokenValidityDuration time.Duration
	SessionCacheSize            int
	AuthenticationDuration      time.Duration

	SymmetricEncryptionKey           string
	SymmetricEncryptionAlgorithm     string
	SymmetricSignatureSecret         string
	SymmetricSignatureSecretPrevious []string
	SymmetricSignatureHashAlgorithm  string
	DigestChecksumSalt               string
	DigestChecksumPepper             string
	DefaultHashAlgorithm             string
	DefaultEncoding                  string
	Argon2Time                       uint32
	Argon2Memory                     uint32
	Argon2Parallelism                uint8

	PasswordMinScore int

	WebAuthnRPID      string
	WebAuthnRPName    string
	WebAuthnRPOrigins []string
	TOTPIssuer        string

	S3RootUser     string
	S3RootPassword string
	S3Bucket       string
	S3Prefix       string
	S3Region       string
	S3BaseEndpoint string

	NotifyWebhookURL string
}

// LoadDefaults populates Config with development defaults.
// NOTE: no secrets are set, so encryption and signing start disabled.
func (c *Config) LoadDefaults() {
	hash := cryptox.DefaultSecretHashOptions()

	c.EndpointAddrGRPC = ":50051"
	c.DatabaseDriver = "sqlite"
	c.DatabaseDSN = "file:gophauth.db?_pragma=foreign_keys(1)"
	c.SessionValidityDuration = 30 * 24 * time.Hour
	c.AccessTokenValidityDuration = 15 * time.Minute
	c.SessionCacheSize = 1024
	c.AuthenticationDuration = 500 * time.Millisecond
	c.SymmetricEncryptionAlgorithm = cryptox.AlgorithmChaCha20Poly1305
	c.SymmetricSignatureHashAlgorithm = "sha256"
	c.DefaultHashAlgorithm = "sha3-256"
	c.DefaultEncoding = cryptox.EncodingBase64
	c.Argon2Time = hash.TimeCost
	c.Argon2Memory = hash.MemoryCost
	c.Argon2Parallelism = hash.Parallelism
	c.PasswordMinScore = password.DefaultMinScore
	c.WebAuthnRPName = "gophauth"
	c.TOTPIssuer = "gophauth"
	c.S3Region = "us-east-1"
	c.S3Prefix = "range/"
}

// CryptoOptions returns the envelope options described by c.
func (c *Config) CryptoOptions() cryptox.Options {
	hash := cryptox.DefaultSecretHashOptions()
	hash.TimeCost = c.Argon2Time
	hash.MemoryCost = c.Argon2Memory
	hash.Parallelism = c.Argon2Parallelism

	return cryptox.Options{
		SymmetricEncryptionKey:           c.SymmetricEncryptionKey,
		SymmetricEncryptionAlgorithm:     c.SymmetricEncryptionAlgorithm,
		SymmetricSignatureSecret:         c.SymmetricSignatureSecret,
		SymmetricSignatureSecretPrevious: c.SymmetricSignatureSecretPrevious,
		SymmetricSignatureHashAlgorithm:  c.SymmetricSignatureHashAlgorithm,
		DigestChecksumSalt:               c.DigestChecksumSalt,
		DigestChecksumPepper:             c.DigestChecksumPepper,
		DefaultHashAlgorithm:             c.DefaultHashAlgorithm,
		DefaultEncoding:                  c.DefaultEncoding,
		SecretHash:                       hash,
	}
}

// BreachOptions returns the S3 corpus settings, or false when no bucket is
// configured.
func (c *Config) BreachOptions() (password.S3Options, bool) {
	if c.S3Bucket == "" {
		return password.S3Options{}, false
	}
	return password.S3Options{
		Bucket:   c.S3Bucket,
		Prefix:   c.S3Prefix,
		Region:   c.S3Region,
		Endpoint: c.S3BaseEndpoint,
		User:     c.S3RootUser,
		Password: c.S3RootPassword,
	}, true
}

// LoadConfig builds a Config by applying defaults, then overlaying values
// from an optional JSON file and finally from command-line flags.
func LoadConfig() *Config {
	cfg := &Config{}
	cfg.LoadDefaults()
	parseJson(cfg)
	parseFlags(cfg)
	return cfg
}
