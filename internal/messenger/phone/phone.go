// Package phone is the messenger policy for phone numbers, kept in E.164.
package phone

import (
	"fmt"
	"strings"

	"github.com/dmitrijs2005/gophauth/internal/common"
	"github.com/dmitrijs2005/gophauth/internal/cryptox"
	"github.com/nyaruka/phonenumbers"
)

const (
	Type = "phone"

	DefaultRegion = "US"
	CodeLength    = 6
)

// Policy parses national numbers relative to Region.
type Policy struct {
	Region string
}

func (p Policy) region() string {
	if p.Region == "" {
		return DefaultRegion
	}
	return strings.ToUpper(p.Region)
}

func (Policy) Type() string { return Type }

// Sanitize formats value as E.164 when it parses.
func (p Policy) Sanitize(value string) string {
	v := strings.TrimSpace(value)
	num, err := phonenumbers.Parse(v, p.region())
	if err != nil {
		return v
	}
	return phonenumbers.Format(num, phonenumbers.E164)
}

func (p Policy) Validate(value string) error {
	num, err := phonenumbers.Parse(value, p.region())
	if err != nil || !phonenumbers.IsValidNumber(num) {
		return fmt.Errorf("%w: invalid phone number", common.ErrorInvalidInput)
	}
	if phonenumbers.Format(num, phonenumbers.E164) != value {
		return fmt.Errorf("%w: phone number must be in E.164 form", common.ErrorInvalidInput)
	}
	return nil
}

// TokenShape makes verification tokens short numeric codes fit for SMS.
func (Policy) TokenShape() (int, string) { return CodeLength, cryptox.CharsetNumeric }
