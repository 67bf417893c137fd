// Package common defines shared constants and sentinel errors used across
// the authentication layers. Callers should use errors.Is (or KindOf) to
// match these values; messages are not part of the contract.
package common

import (
	"errors"
	"net/http"
)

var (
	// Caller-facing errors.
	ErrorInvalidInput = errors.New("invalid input")
	ErrorUnauthorized = errors.New("unauthorized")
	ErrorForbidden    = errors.New("forbidden")
	ErrorConflict     = errors.New("conflict")
	ErrorNotFound     = errors.New("not found")

	// Envelope errors. A signature failure is reported separately from an
	// AEAD failure.
	ErrorSignatureInvalid    = errors.New("signature invalid")
	ErrorEmptyCiphertext     = errors.New("empty ciphertext")
	ErrorMalformedCiphertext = errors.New("malformed ciphertext")
	ErrorDecryption          = errors.New("decryption failed")

	ErrorInternal = errors.New("internal error")
)

// Kind classifies an error for transport mapping.
type Kind int

const (
	KindUnknown Kind = iota
	KindInvalidInput
	KindUnauthorized
	KindForbidden
	KindConflict
	KindNotFound
	KindSignatureInvalid
	KindInternal
)

func (k Kind) String() string {
	switch k {
	case KindInvalidInput:
		return "invalid_input"
	case KindUnauthorized:
		return "unauthorized"
	case KindForbidden:
		return "forbidden"
	case KindConflict:
		return "conflict"
	case KindNotFound:
		return "not_found"
	case KindSignatureInvalid:
		return "signature_invalid"
	case KindInternal:
		return "internal"
	}
	return "unknown"
}

// HTTPStatus maps the kind to the status code a transport should answer with.
func (k Kind) HTTPStatus() int {
	switch k {
	case KindInvalidInput:
		return http.StatusBadRequest
	case KindUnauthorized:
		return http.StatusUnauthorized
	case KindForbidden:
		return http.StatusForbidden
	case KindConflict:
		return http.StatusConflict
	case KindNotFound:
		return http.StatusNotFound
	}
	return http.StatusInternalServerError
}

// KindOf reports the kind of err. Wrapped sentinels are recognised.
func KindOf(err error) Kind {
	switch {
	case err == nil:
		return KindUnknown
	case errors.Is(err, ErrorInvalidInput):
		return KindInvalidInput
	case errors.Is(err, ErrorUnauthorized):
		return KindUnauthorized
	case errors.Is(err, ErrorForbidden):
		return KindForbidden
	case errors.Is(err, ErrorConflict):
		return KindConflict
	case errors.Is(err, ErrorNotFound):
		return KindNotFound
	case errors.Is(err, ErrorSignatureInvalid):
		return KindSignatureInvalid
	case errors.Is(err, ErrorInternal),
		errors.Is(err, ErrorEmptyCiphertext),
		errors.Is(err, ErrorMalformedCiphertext),
		errors.Is(err, ErrorDecryption):
		return KindInternal
	}
	return KindUnknown
}
