// Package username manages the plaintext username column of accounts and
// exposes it as a username resolver for authentication.
package username

import (
	"context"
	"fmt"
	"regexp"
	"slices"
	"strings"

	"github.com/dmitrijs2005/gophauth/internal/account"
	"github.com/dmitrijs2005/gophauth/internal/common"
	"github.com/dmitrijs2005/gophauth/internal/logging"
	"github.com/dmitrijs2005/gophauth/internal/store"
)

const Column = "username"

var pattern = regexp.MustCompile(`^[a-z0-9][a-z0-9._-]{2,31}$`)

// DefaultReserved are names no account may claim.
var DefaultReserved = []string{
	"admin", "administrator", "root", "system", "support", "security",
	"api", "www", "mail", "help", "info", "null", "undefined", "me",
}

type Service struct {
	accounts *account.Service
	reserved []string
	logger   logging.Logger
}

// New returns a service over accounts. A nil reserved list uses
// DefaultReserved.
func New(accounts *account.Service, reserved []string, logger logging.Logger) *Service {
	if logger == nil {
		logger = logging.Nop()
	}
	if reserved == nil {
		reserved = DefaultReserved
	}
	return &Service{accounts: accounts, reserved: reserved, logger: logger.With("module", "username")}
}

func Sanitize(s string) string {
	return strings.ToLower(strings.TrimSpace(s))
}

// Validate checks an already sanitized username.
func (s *Service) Validate(name string) error {
	if !pattern.MatchString(name) {
		return fmt.Errorf("%w: username must be 3-32 characters of a-z, 0-9, '.', '_' or '-'", common.ErrorInvalidInput)
	}
	if slices.Contains(s.reserved, name) {
		return fmt.Errorf("%w: username is reserved", common.ErrorInvalidInput)
	}
	return nil
}

// Exists returns the subject holding name, or "". It is a username
// resolver; invalid names resolve to "" rather than failing.
func (s *Service) Exists(ctx context.Context, name string) (string, error) {
	name = Sanitize(name)
	if !pattern.MatchString(name) {
		return "", nil
	}
	return s.accounts.FindBy(ctx, Column, name)
}

// Lookup returns the username of sub, or "" when none is set.
func (s *Service) Lookup(ctx context.Context, sub string) (string, error) {
	row, err := s.accounts.Lookup(ctx, sub)
	if err != nil {
		return "", err
	}
	return row.String(Column), nil
}

// Create sets the first username of sub.
func (s *Service) Create(ctx context.Context, sub, name string) (string, error) {
	cur, err := s.Lookup(ctx, sub)
	if err != nil {
		return "", err
	}
	if cur != "" {
		return "", fmt.Errorf("%w: username already set", common.ErrorConflict)
	}
	return s.set(ctx, sub, name)
}

// Update changes the username of sub. Setting the current name again is
// a no-op.
func (s *Service) Update(ctx context.Context, sub, name string) (string, error) {
	return s.set(ctx, sub, name)
}

func (s *Service) set(ctx context.Context, sub, name string) (string, error) {
	name = Sanitize(name)
	if err := s.Validate(name); err != nil {
		return "", err
	}
	owner, err := s.accounts.FindBy(ctx, Column, name)
	if err != nil {
		return "", err
	}
	switch owner {
	case sub:
		return name, nil
	case "":
	default:
		return "", fmt.Errorf("%w: username taken", common.ErrorConflict)
	}
	if err := s.accounts.Update(ctx, sub, store.Row{Column: name}); err != nil {
		return "", err
	}
	s.logger.Debug(ctx, "username set", "sub", sub)
	return name, nil
}
