// Package email is the messenger policy for e-mail addresses.
package email

import (
	"fmt"
	"net/mail"
	"strings"

	"github.com/dmitrijs2005/gophauth/internal/common"
	"golang.org/x/net/idna"
)

const (
	Type = "email"

	maxLength = 254
)

type Policy struct{}

func (Policy) Type() string { return Type }

// Sanitize lower-cases the address and converts an internationalized
// domain to its ASCII form.
func (Policy) Sanitize(value string) string {
	v := strings.ToLower(strings.TrimSpace(value))
	at := strings.LastIndexByte(v, '@')
	if at < 1 {
		return v
	}
	domain, err := idna.Lookup.ToASCII(v[at+1:])
	if err != nil {
		return v
	}
	return v[:at+1] + domain
}

// Validate accepts a bare addr-spec with a dotted domain.
func (Policy) Validate(value string) error {
	if value == "" || len(value) > maxLength {
		return fmt.Errorf("%w: invalid email", common.ErrorInvalidInput)
	}
	addr, err := mail.ParseAddress(value)
	if err != nil || addr.Address != value || addr.Name != "" {
		return fmt.Errorf("%w: invalid email", common.ErrorInvalidInput)
	}
	domain := value[strings.LastIndexByte(value, '@')+1:]
	if !strings.Contains(domain, ".") || strings.HasSuffix(domain, ".") {
		return fmt.Errorf("%w: invalid email domain", common.ErrorInvalidInput)
	}
	if _, err := idna.Lookup.ToASCII(domain); err != nil {
		return fmt.Errorf("%w: invalid email domain", common.ErrorInvalidInput)
	}
	return nil
}
