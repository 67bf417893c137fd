// Package sqlstore implements store.Store over database/sql for PostgreSQL
// (pgx) and SQLite (modernc).
//
// Row keys are camelCase and map to snake_case columns. Every identifier
// is validated and double-quoted, and every value is bound as a parameter.
package sqlstore

import (
	"context"
	"database/sql"
	"fmt"
	"sort"
	"strings"

	"github.com/dmitrijs2005/gophauth/internal/common"
	"github.com/dmitrijs2005/gophauth/internal/dbx"
	"github.com/dmitrijs2005/gophauth/internal/filex"
	"github.com/dmitrijs2005/gophauth/internal/logging"
	"github.com/dmitrijs2005/gophauth/internal/store"
	_ "github.com/jackc/pgx/v5/stdlib"
)

type Store struct {
	db      dbx.DBTX
	dialect Dialect
	logger  logging.Logger
}

var _ store.Store = (*Store)(nil)

func New(db dbx.DBTX, d Dialect, logger logging.Logger) *Store {
	if logger == nil {
		logger = logging.Nop()
	}
	return &Store{db: db, dialect: d, logger: logger.With("module", "sqlstore", "dialect", d.Name)}
}

// Open connects to dsn with the driver's dialect, runs migrations and
// returns the store together with the pool so the caller can close it.
func Open(ctx context.Context, driver, dsn string, logger logging.Logger) (*Store, *sql.DB, error) {
	d, err := DialectFor(driver)
	if err != nil {
		return nil, nil, err
	}
	if path := sqliteFile(d, dsn); path != "" {
		if _, err := filex.EnsureParentDir(path); err != nil {
			return nil, nil, err
		}
	}
	db, err := sql.Open(d.Driver, dsn)
	if err != nil {
		return nil, nil, fmt.Errorf("db open: %w", err)
	}
	if d.MaxOpenConns > 0 {
		db.SetMaxOpenConns(d.MaxOpenConns)
	}
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, nil, fmt.Errorf("db ping: %w", err)
	}
	if err := RunMigrations(ctx, db, d); err != nil {
		db.Close()
		return nil, nil, err
	}
	return New(db, d, logger), db, nil
}

// WithTx runs fn against a store bound to a single transaction. A store
// that is already inside a transaction passes itself through.
func (s *Store) WithTx(ctx context.Context, fn func(*Store) error) error {
	b, ok := s.db.(dbx.Beginner)
	if !ok {
		return fn(s)
	}
	return dbx.WithTx(ctx, b, nil, func(ctx context.Context, tx dbx.DBTX) error {
		return fn(&Store{db: tx, dialect: s.dialect, logger: s.logger})
	})
}

func (s *Store) Exists(ctx context.Context, tbl string, filters store.Filters) (string, error) {
	row, err := s.Select(ctx, tbl, filters, "sub")
	if err != nil || row == nil {
		return "", err
	}
	return row.String("sub"), nil
}

func (s *Store) Select(ctx context.Context, tbl string, filters store.Filters, fields ...string) (store.Row, error) {
	rows, err := s.query(ctx, tbl, filters, fields, 1)
	if err != nil || len(rows) == 0 {
		return nil, err
	}
	return rows[0], nil
}

func (s *Store) SelectList(ctx context.Context, tbl string, filters store.Filters, fields ...string) ([]store.Row, error) {
	return s.query(ctx, tbl, filters, fields, 0)
}

func (s *Store) Insert(ctx context.Context, tbl string, row store.Row) (string, error) {
	t, err := table(tbl)
	if err != nil {
		return "", err
	}
	keys := sortedKeys(row)
	if len(keys) == 0 {
		return "", fmt.Errorf("%w: empty row", common.ErrorInvalidInput)
	}
	cols := make([]string, len(keys))
	marks := make([]string, len(keys))
	args := make([]any, len(keys))
	for i, k := range keys {
		if cols[i], err = column(k); err != nil {
			return "", err
		}
		marks[i] = s.dialect.Placeholder(i + 1)
		args[i] = row[k]
	}
	query := fmt.Sprintf("INSERT INTO %s (%s) VALUES (%s)", t, strings.Join(cols, ", "), strings.Join(marks, ", "))
	if _, err := s.db.ExecContext(ctx, query, args...); err != nil {
		return "", dbError(err)
	}
	return store.RowID(row), nil
}

// InsertList inserts all rows in one transaction.
func (s *Store) InsertList(ctx context.Context, tbl string, rows []store.Row) ([]string, error) {
	ids := make([]string, 0, len(rows))
	err := s.WithTx(ctx, func(tx *Store) error {
		for _, r := range rows {
			id, err := tx.Insert(ctx, tbl, r)
			if err != nil {
				return err
			}
			ids = append(ids, id)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return ids, nil
}

func (s *Store) Update(ctx context.Context, tbl string, filters store.Filters, patch store.Row) error {
	if len(filters) == 0 {
		return fmt.Errorf("%w: update without filters", common.ErrorInvalidInput)
	}
	if len(patch) == 0 {
		return nil
	}
	t, err := table(tbl)
	if err != nil {
		return err
	}
	keys := sortedKeys(patch)
	sets := make([]string, len(keys))
	args := make([]any, 0, len(keys)+len(filters))
	for i, k := range keys {
		c, err := column(k)
		if err != nil {
			return err
		}
		args = append(args, patch[k])
		sets[i] = c + " = " + s.dialect.Placeholder(len(args))
	}
	where, args, err := s.where(filters, args)
	if err != nil {
		return err
	}
	query := fmt.Sprintf("UPDATE %s SET %s%s", t, strings.Join(sets, ", "), where)
	if _, err := s.db.ExecContext(ctx, query, args...); err != nil {
		return dbError(err)
	}
	return nil
}

func (s *Store) Remove(ctx context.Context, tbl string, filters store.Filters) (int64, error) {
	if len(filters) == 0 {
		return 0, fmt.Errorf("%w: remove without filters", common.ErrorInvalidInput)
	}
	t, err := table(tbl)
	if err != nil {
		return 0, err
	}
	where, args, err := s.where(filters, nil)
	if err != nil {
		return 0, err
	}
	res, err := s.db.ExecContext(ctx, "DELETE FROM "+t+where, args...)
	if err != nil {
		return 0, fmt.Errorf("db error: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("db error: %w", err)
	}
	return n, nil
}

func (s *Store) query(ctx context.Context, tbl string, filters store.Filters, fields []string, limit int) ([]store.Row, error) {
	t, err := table(tbl)
	if err != nil {
		return nil, err
	}
	cols := "*"
	if len(fields) > 0 {
		quoted := make([]string, len(fields))
		for i, f := range fields {
			if quoted[i], err = column(f); err != nil {
				return nil, err
			}
		}
		cols = strings.Join(quoted, ", ")
	}
	where, args, err := s.where(filters, nil)
	if err != nil {
		return nil, err
	}
	query := fmt.Sprintf("SELECT %s FROM %s%s", cols, t, where)
	if limit > 0 {
		query += fmt.Sprintf(" LIMIT %d", limit)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("db error: %w", err)
	}
	defer rows.Close()

	names, err := rows.Columns()
	if err != nil {
		return nil, fmt.Errorf("db error: %w", err)
	}
	var out []store.Row
	for rows.Next() {
		values := make([]any, len(names))
		ptrs := make([]any, len(names))
		for i := range values {
			ptrs[i] = &values[i]
		}
		if err := rows.Scan(ptrs...); err != nil {
			return nil, fmt.Errorf("db error: %w", err)
		}
		r := make(store.Row, len(names))
		for i, n := range names {
			if values[i] == nil {
				continue
			}
			r[toCamel(n)] = store.Normalize(values[i])
		}
		out = append(out, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("db error: %w", err)
	}
	return out, nil
}

// where renders filters as a WHERE clause, numbering placeholders after
// the args already bound.
func (s *Store) where(filters store.Filters, args []any) (string, []any, error) {
	if len(filters) == 0 {
		return "", args, nil
	}
	conds := make([]string, 0, len(filters))
	for _, k := range filters.Keys() {
		c, err := column(k)
		if err != nil {
			return "", nil, err
		}
		v := filters[k]
		if v == nil {
			conds = append(conds, c+" IS NULL")
			continue
		}
		if list, ok := store.Values(v); ok {
			if len(list) == 0 {
				conds = append(conds, "1 = 0")
				continue
			}
			marks := make([]string, len(list))
			for i, item := range list {
				args = append(args, item)
				marks[i] = s.dialect.Placeholder(len(args))
			}
			conds = append(conds, c+" IN ("+strings.Join(marks, ", ")+")")
			continue
		}
		args = append(args, v)
		conds = append(conds, c+" = "+s.dialect.Placeholder(len(args)))
	}
	return " WHERE " + strings.Join(conds, " AND "), args, nil
}

func sortedKeys(r store.Row) []string {
	keys := make([]string, 0, len(r))
	for k := range r {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
