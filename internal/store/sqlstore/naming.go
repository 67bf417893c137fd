package sqlstore

import (
	"fmt"
	"regexp"
	"strings"
	"unicode"

	"github.com/dmitrijs2005/gophauth/internal/common"
)

var identifierRe = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*$`)

// column converts a camelCase row key to a quoted snake_case column.
func column(key string) (string, error) {
	if !identifierRe.MatchString(key) {
		return "", fmt.Errorf("%w: invalid column %q", common.ErrorInvalidInput, key)
	}
	return quote(toSnake(key)), nil
}

func table(name string) (string, error) {
	if !identifierRe.MatchString(name) {
		return "", fmt.Errorf("%w: invalid table %q", common.ErrorInvalidInput, name)
	}
	return quote(name), nil
}

func quote(ident string) string {
	return `"` + ident + `"`
}

func toSnake(s string) string {
	var b strings.Builder
	for i, r := range s {
		if unicode.IsUpper(r) {
			if i > 0 {
				b.WriteByte('_')
			}
			b.WriteRune(unicode.ToLower(r))
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}

func toCamel(s string) string {
	var b strings.Builder
	upper := false
	for _, r := range s {
		if r == '_' {
			upper = true
			continue
		}
		if upper {
			b.WriteRune(unicode.ToUpper(r))
			upper = false
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}
