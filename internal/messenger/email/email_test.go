package email

import (
	"testing"

	"github.com/dmitrijs2005/gophauth/internal/common"
	"github.com/stretchr/testify/assert"
)

func TestSanitize(t *testing.T) {
	p := Policy{}
	assert.Equal(t, "alice@example.com", p.Sanitize("  Alice@Example.COM "))
	assert.Equal(t, "user@xn--bcher-kva.de", p.Sanitize("user@bücher.de"))
	assert.Equal(t, "no-at-sign", p.Sanitize("No-At-Sign"))
}

func TestValidate(t *testing.T) {
	p := Policy{}
	valid := []string{"alice@example.com", "a.b+tag@sub.example.org", "user@xn--bcher-kva.de"}
	for _, v := range valid {
		assert.NoError(t, p.Validate(v), v)
	}
	invalid := []string{"", "not-an-email", "alice@localhost", "Alice <alice@example.com>", "alice@example.com."}
	for _, v := range invalid {
		assert.ErrorIs(t, p.Validate(v), common.ErrorInvalidInput, v)
	}
}
