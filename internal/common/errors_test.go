package common

import (
	"errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestKindOf(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want Kind
	}{
		{"nil", nil, KindUnknown},
		{"plain", errors.New("boom"), KindUnknown},
		{"invalid input", ErrorInvalidInput, KindInvalidInput},
		{"wrapped unauthorized", fmt.Errorf("login: %w", ErrorUnauthorized), KindUnauthorized},
		{"detail wrapped conflict", fmt.Errorf("%w: username taken", ErrorConflict), KindConflict},
		{"forbidden", ErrorForbidden, KindForbidden},
		{"not found", ErrorNotFound, KindNotFound},
		{"signature", fmt.Errorf("decrypt: %w", ErrorSignatureInvalid), KindSignatureInvalid},
		{"aead failure", ErrorDecryption, KindInternal},
		{"empty ciphertext", ErrorEmptyCiphertext, KindInternal},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, KindOf(tt.err))
		})
	}
}

func TestKind_HTTPStatus(t *testing.T) {
	assert.Equal(t, http.StatusBadRequest, KindInvalidInput.HTTPStatus())
	assert.Equal(t, http.StatusUnauthorized, KindUnauthorized.HTTPStatus())
	assert.Equal(t, http.StatusForbidden, KindForbidden.HTTPStatus())
	assert.Equal(t, http.StatusConflict, KindConflict.HTTPStatus())
	assert.Equal(t, http.StatusNotFound, KindNotFound.HTTPStatus())
	assert.Equal(t, http.StatusInternalServerError, KindSignatureInvalid.HTTPStatus())
	assert.Equal(t, http.StatusInternalServerError, KindUnknown.HTTPStatus())
}

func TestKind_String(t *testing.T) {
	assert.Equal(t, "unauthorized", KindUnauthorized.String())
	assert.Equal(t, "unknown", Kind(99).String())
}
