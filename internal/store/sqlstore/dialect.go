package sqlstore

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/dmitrijs2005/gophauth/internal/common"
)

// Dialect captures what differs between the supported databases.
type Dialect struct {
	Name  string
	Goose string
	// Driver is the database/sql driver name.
	Driver string
	// MaxOpenConns caps the pool; zero leaves the default.
	MaxOpenConns int
	placeholder  func(n int) string
}

var (
	Postgres = Dialect{
		Name:        "postgres",
		Goose:       "pgx",
		Driver:      "pgx",
		placeholder: func(n int) string { return "$" + strconv.Itoa(n) },
	}
	SQLite = Dialect{
		Name:         "sqlite",
		Goose:        "sqlite3",
		Driver:       "sqlite",
		MaxOpenConns: 1,
		placeholder:  func(int) string { return "?" },
	}
)

// DialectFor maps a configured driver name to its dialect.
func DialectFor(driver string) (Dialect, error) {
	switch driver {
	case "pgx", "postgres":
		return Postgres, nil
	case "sqlite", "sqlite3":
		return SQLite, nil
	}
	return Dialect{}, fmt.Errorf("%w: unsupported database driver %q", common.ErrorInvalidInput, driver)
}

func (d Dialect) Placeholder(n int) string {
	return d.placeholder(n)
}

// sqliteFile returns the database file behind a SQLite DSN, or "" for
// other dialects and in-memory databases.
func sqliteFile(d Dialect, dsn string) string {
	if d.Name != SQLite.Name {
		return ""
	}
	path, query, _ := strings.Cut(strings.TrimPrefix(dsn, "file:"), "?")
	if path == "" || path == ":memory:" || strings.Contains(query, "mode=memory") {
		return ""
	}
	return path
}
