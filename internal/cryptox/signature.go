package cryptox

import (
	"crypto/hmac"
	"encoding/base64"
	"fmt"
	"strings"

	"github.com/dmitrijs2005/gophauth/internal/common"
)

const signatureSeparator = "."

// SymmetricSignatureSign appends "." and the HMAC of data under the current secret.
// Without a configured secret data is returned as is.
func (e *Envelope) SymmetricSignatureSign(data string) string {
	if !e.Signing() {
		return data
	}
	return data + signatureSeparator + base64.StdEncoding.EncodeToString(e.mac(e.signatureSecrets[0], data))
}

// SymmetricSignatureVerify checks a signed packet against the current secret and
// every previous one, and returns the payload without its signature.
func (e *Envelope) SymmetricSignatureVerify(packet string) (string, error) {
	idx := strings.LastIndex(packet, signatureSeparator)
	if !e.Signing() {
		if idx >= 0 {
			return "", fmt.Errorf("%w: packet is signed but no secret is configured", common.ErrorSignatureInvalid)
		}
		return packet, nil
	}
	if idx < 0 {
		return "", fmt.Errorf("%w: packet is not signed", common.ErrorSignatureInvalid)
	}
	payload, sig := packet[:idx], packet[idx+1:]
	got, err := base64.StdEncoding.Strict().DecodeString(sig)
	if err != nil {
		return "", fmt.Errorf("%w: signature is not base64", common.ErrorSignatureInvalid)
	}
	matched := false
	for _, secret := range e.signatureSecrets {
		if SafeEqual(e.mac(secret, payload), got) {
			matched = true
		}
	}
	if !matched {
		return "", common.ErrorSignatureInvalid
	}
	return payload, nil
}

func (e *Envelope) mac(secret []byte, data string) []byte {
	newHash, _ := lookupHash(e.signatureHash)
	m := hmac.New(newHash, secret)
	m.Write([]byte(data))
	return m.Sum(nil)
}
