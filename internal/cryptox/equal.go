package cryptox

import "crypto/subtle"

// SafeEqual compares a and b in time that depends only on their lengths.
func SafeEqual(a, b []byte) bool {
	return subtle.ConstantTimeCompare(a, b) == 1
}

func SafeEqualString(a, b string) bool {
	return SafeEqual([]byte(a), []byte(b))
}
