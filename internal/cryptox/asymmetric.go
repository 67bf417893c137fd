package cryptox

import (
	"crypto/ecdsa"
	"crypto/x509"
	"encoding/pem"
	"fmt"

	"github.com/dmitrijs2005/gophauth/internal/common"
)

// MakeAsymmetricKeys generates an ECDSA key pair on the configured curve
// and returns both halves PEM encoded (PKIX public, PKCS#8 private).
func (e *Envelope) MakeAsymmetricKeys() (publicPEM, privatePEM string, err error) {
	priv, err := ecdsa.GenerateKey(e.curve, e.random)
	if err != nil {
		return "", "", fmt.Errorf("generate key: %w", err)
	}
	pub, err := x509.MarshalPKIXPublicKey(&priv.PublicKey)
	if err != nil {
		return "", "", err
	}
	der, err := x509.MarshalPKCS8PrivateKey(priv)
	if err != nil {
		return "", "", err
	}
	publicPEM = string(pem.EncodeToMemory(&pem.Block{Type: "PUBLIC KEY", Bytes: pub}))
	privatePEM = string(pem.EncodeToMemory(&pem.Block{Type: "PRIVATE KEY", Bytes: der}))
	return publicPEM, privatePEM, nil
}

// AsymmetricSign signs the digest of data and returns the encoded ASN.1
// signature.
func (e *Envelope) AsymmetricSign(data, privatePEM string) (string, error) {
	block, _ := pem.Decode([]byte(privatePEM))
	if block == nil {
		return "", fmt.Errorf("%w: private key is not PEM", common.ErrorInvalidInput)
	}
	k, err := x509.ParsePKCS8PrivateKey(block.Bytes)
	if err != nil {
		return "", fmt.Errorf("%w: %v", common.ErrorInvalidInput, err)
	}
	priv, ok := k.(*ecdsa.PrivateKey)
	if !ok {
		return "", fmt.Errorf("%w: private key is not ECDSA", common.ErrorInvalidInput)
	}
	sig, err := ecdsa.SignASN1(e.random, priv, e.asymmetricDigest(data))
	if err != nil {
		return "", fmt.Errorf("sign: %w", err)
	}
	return encode(sig, e.encoding), nil
}

// AsymmetricVerify reports whether signature is valid for data under
// publicPEM. Malformed keys are errors; malformed signatures are not.
func (e *Envelope) AsymmetricVerify(data, publicPEM, signature string) (bool, error) {
	block, _ := pem.Decode([]byte(publicPEM))
	if block == nil {
		return false, fmt.Errorf("%w: public key is not PEM", common.ErrorInvalidInput)
	}
	k, err := x509.ParsePKIXPublicKey(block.Bytes)
	if err != nil {
		return false, fmt.Errorf("%w: %v", common.ErrorInvalidInput, err)
	}
	pub, ok := k.(*ecdsa.PublicKey)
	if !ok {
		return false, fmt.Errorf("%w: public key is not ECDSA", common.ErrorInvalidInput)
	}
	sig, err := decode(signature, e.encoding)
	if err != nil {
		return false, nil
	}
	return ecdsa.VerifyASN1(pub, e.asymmetricDigest(data), sig), nil
}

func (e *Envelope) asymmetricDigest(data string) []byte {
	newHash, _ := lookupHash(e.asymmetricHash)
	h := newHash()
	h.Write([]byte(data))
	return h.Sum(nil)
}
