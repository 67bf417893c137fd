package password

import (
	"context"
	"fmt"
	"unicode/utf8"

	"github.com/dmitrijs2005/gophauth/internal/common"
	"github.com/dmitrijs2005/gophauth/internal/cryptox"
	"github.com/nbutton23/zxcvbn-go"
)

const (
	// MinEntropyBits sizes the default minimum length against the
	// printable ASCII pool.
	MinEntropyBits   = 64
	printablePool    = 94
	DefaultMinScore  = 3
	DefaultMaxLength = 256
)

// BreachChecker reports whether a password appears in a known breach corpus.
type BreachChecker interface {
	Breached(ctx context.Context, password string) (bool, error)
}

// Policy is applied to every new password. Zero values take defaults.
type Policy struct {
	MinLength int
	MaxLength int
	// MinScore is the lowest accepted zxcvbn score, 0 to 4. Unlike the
	// other fields zero is a valid setting; configuration defaults it to
	// DefaultMinScore.
	MinScore int
	Breach   BreachChecker
}

func (p Policy) withDefaults() Policy {
	if p.MinLength == 0 {
		p.MinLength = cryptox.EntropyToCharacterLength(MinEntropyBits, printablePool)
	}
	if p.MaxLength == 0 {
		p.MaxLength = DefaultMaxLength
	}
	return p
}

// Validate checks length, strength and the breach corpus. userInputs are
// terms such as the username that must not make a password stronger.
func (p Policy) Validate(ctx context.Context, password string, userInputs ...string) error {
	n := utf8.RuneCountInString(password)
	if n < p.MinLength {
		return fmt.Errorf("%w: password must be at least %d characters", common.ErrorInvalidInput, p.MinLength)
	}
	if n > p.MaxLength {
		return fmt.Errorf("%w: password must be at most %d characters", common.ErrorInvalidInput, p.MaxLength)
	}
	if score := zxcvbn.PasswordStrength(password, userInputs).Score; score < p.MinScore {
		return fmt.Errorf("%w: password is too weak", common.ErrorInvalidInput)
	}
	if p.Breach != nil {
		breached, err := p.Breach.Breached(ctx, password)
		if err != nil {
			return fmt.Errorf("breach check: %w", err)
		}
		if breached {
			return fmt.Errorf("%w: password appears in a known breach", common.ErrorInvalidInput)
		}
	}
	return nil
}
