package config

import (
	"encoding/json"
	"os"

	"github.com/dmitrijs2005/gophauth/internal/flagx"
	"github.com/dmitrijs2005/gophauth/internal/timex"
)

// JsonConfig defines a configuration structure tailored for JSON unmarshalling.
// Durations use timex.Duration, which accepts both strings such as "15m"
// and integer nanoseconds.
//
// It is an intermediate DTO: parseJson seeds it from the current Config, so
// keys missing from the file keep their earlier value.
type JsonConfig struct {
	EndpointAddrGRPC string `json:"endpoint_addr_grpc"`
	DatabaseDriver   string `json:"database_driver"`
	DatabaseDSN      string `json:"database_dsn"`

	SessionSecret               string         `json:"session_secret"`
	SessionValidityDuration     timex.Duration `json:"session_validity_duration"`
	AccessTokenValidityDuration timex.Duration `json:"access_token_validity_duration"`
	SessionCacheSize            int            `json:"session_cache_size"`
	AuthenticationDuration      timex.Duration `json:"authentication_duration"`

	SymmetricEncryptionKey           string   `json:"symmetric_encryption_key"`
	SymmetricEncryptionAlgorithm     string   `json:"symmetric_encryption_algorithm"`
	SymmetricSignatureSecret         string   `json:"symmetric_signature_secret"`
	SymmetricSignatureSecretPrevious []string `json:"symmetric_signature_secret_previous"`
	SymmetricSignatureHashAlgorithm  string   `json:"symmetric_signature_hash_algorithm"`
	DigestChecksumSalt               string   `json:"digest_checksum_salt"`
	DigestChecksumPepper             string   `json:"digest_checksum_pepper"`
	DefaultHashAlgorithm             string   `json:"default_hash_algorithm"`
	DefaultEncoding                  string   `json:"default_encoding"`
	Argon2Time                       uint32   `json:"argon2_time"`
	Argon2Memory                     uint32   `json:"argon2_memory"`
	Argon2Parallelism                uint8    `json:"argon2_parallelism"`

	PasswordMinScore int `json:"password_min_score"`

	WebAuthnRPID      string   `json:"webauthn_rp_id"`
	WebAuthnRPName    string   `json:"webauthn_rp_name"`
	WebAuthnRPOrigins []string `json:"webauthn_rp_origins"`
	TOTPIssuer        string   `json:"totp_issuer"`

	S3RootUser     string `json:"s3_root_user"`
	S3RootPassword string `json:"s3_root_password"`
	S3Bucket       string `json:"s3_bucket"`
	S3Prefix       string `json:"s3_prefix"`
	S3Region       string `json:"s3_region"`
	S3BaseEndpoint string `json:"s3_base_endpoint"`

	NotifyWebhookURL string `json:"notify_webhook_url"`
}

func toJson(c *Config) *JsonConfig {
	return &JsonConfig{
		EndpointAddrGRPC:                 c.EndpointAddrGRPC,
		DatabaseDriver:                   c.DatabaseDriver,
		DatabaseDSN:                      c.DatabaseDSN,
		SessionSecret:                    c.SessionSecret,
		SessionValidityDuration:          timex.Duration{Duration: c.SessionValidityDuration},
		AccessTokenValidityDuration:      timex.Duration{Duration: c.AccessTokenValidityDuration},
		SessionCacheSize:                 c.SessionCacheSize,
		AuthenticationDuration:           timex.Duration{Duration: c.AuthenticationDuration},
		SymmetricEncryptionKey:           c.SymmetricEncryptionKey,
		SymmetricEncryptionAlgorithm:     c.SymmetricEncryptionAlgorithm,
		SymmetricSignatureSecret:         c.SymmetricSignatureSecret,
		SymmetricSignatureSecretPrevious: c.SymmetricSignatureSecretPrevious,
		SymmetricSignatureHashAlgorithm:  c.SymmetricSignatureHashAlgorithm,
		DigestChecksumSalt:               c.DigestChecksumSalt,
		DigestChecksumPepper:             c.DigestChecksumPepper,
		DefaultHashAlgorithm:             c.DefaultHashAlgorithm,
		DefaultEncoding:                  c.DefaultEncoding,
		Argon2Time:                       c.Argon2Time,
		Argon2Memory:                     c.Argon2Memory,
		Argon2Parallelism:                c.Argon2Parallelism,
		PasswordMinScore:                 c.PasswordMinScore,
		WebAuthnRPID:                     c.WebAuthnRPID,
		WebAuthnRPName:                   c.WebAuthnRPName,
		WebAuthnRPOrigins:                c.WebAuthnRPOrigins,
		TOTPIssuer:                       c.TOTPIssuer,
		S3RootUser:                       c.S3RootUser,
		S3RootPassword:                   c.S3RootPassword,
		S3Bucket:                         c.S3Bucket,
		S3Prefix:                         c.S3Prefix,
		S3Region:                         c.S3Region,
		S3BaseEndpoint:                   c.S3BaseEndpoint,
		NotifyWebhookURL:                 c.NotifyWebhookURL,
	}
}

// parseJson loads configuration values from a JSON file into the provided
// Config instance.
//
// The file path comes from the -c or -config command-line flags. If
// neither is set, no JSON file is loaded. If the file cannot be read or
// contains invalid JSON, the function panics.
func parseJson(config *Config) {

	// try flags
	jsonConfigFile := flagx.ConfigFile(os.Args[1:])

	// nothing to load
	if jsonConfigFile == "" {
		return
	}

	file, err := os.ReadFile(jsonConfigFile)
	if err != nil {
		panic(err)
	}

	c := toJson(config)
	if err := json.Unmarshal(file, c); err != nil {
		panic(err)
	}

	config.EndpointAddrGRPC = c.EndpointAddrGRPC
	config.DatabaseDriver = c.DatabaseDriver
	config.DatabaseDSN = c.DatabaseDSN
	config.SessionSecret = c.SessionSecret
	config.SessionValidityDuration = c.SessionValidityDuration.Duration
	config.AccessTokenValidityDuration = c.AccessTokenValidityDuration.Duration
	config.SessionCacheSize = c.SessionCacheSize
	config.AuthenticationDuration = c.AuthenticationDuration.Duration
	config.SymmetricEncryptionKey = c.SymmetricEncryptionKey
	config.SymmetricEncryptionAlgorithm = c.SymmetricEncryptionAlgorithm
	config.SymmetricSignatureSecret = c.SymmetricSignatureSecret
	config.SymmetricSignatureSecretPrevious = c.SymmetricSignatureSecretPrevious
	config.SymmetricSignatureHashAlgorithm = c.SymmetricSignatureHashAlgorithm
	config.DigestChecksumSalt = c.DigestChecksumSalt
	config.DigestChecksumPepper = c.DigestChecksumPepper
	config.DefaultHashAlgorithm = c.DefaultHashAlgorithm
	config.DefaultEncoding = c.DefaultEncoding
	config.Argon2Time = c.Argon2Time
	config.Argon2Memory = c.Argon2Memory
	config.Argon2Parallelism = c.Argon2Parallelism
	config.PasswordMinScore = c.PasswordMinScore
	config.WebAuthnRPID = c.WebAuthnRPID
	config.WebAuthnRPName = c.WebAuthnRPName
	config.WebAuthnRPOrigins = c.WebAuthnRPOrigins
	config.TOTPIssuer = c.TOTPIssuer
	config.S3RootUser = c.S3RootUser
	config.S3RootPassword = c.S3RootPassword
	config.S3Bucket = c.S3Bucket
	config.S3Prefix = c.S3Prefix
	config.S3Region = c.S3Region
	config.S3BaseEndpoint = c.S3BaseEndpoint
	config.NotifyWebhookURL = c.NotifyWebhookURL
}
