// Package store persists the shop's rows through the sqlx datasource layer. Every query is
// written with `?` placeholders and rebound for the datasource's dialect.
package store

import (
	"context"
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/pioneerstudio/patternshop/sqlx"
)

var (
	ErrNotFound   = errors.New("not found")
	ErrDuplicate  = errors.New("already exists")
	ErrReferenced = errors.New("still referenced")
	ErrConflict   = errors.New("concurrent update")
)

//go:embed schema/*.sql
var schemas embed.FS

// Store is a handle over a datasource or over one of its open transactions.
type Store struct {
	conn sqlx.Conn
	db   sqlx.DB
}

// New returns a Store backed by db.
func New(db sqlx.DB) *Store {
	return &Store{conn: db, db: db}
}

// Dialect is the SQL dialect of the underlying datasource.
func (s *Store) Dialect() sqlx.Dialect {
	return s.conn.Dialect()
}

// Ping checks the datasource is reachable.
func (s *Store) Ping(ctx context.Context) error {
	if s.db == nil {
		return nil
	}
	return s.db.PingContext(ctx)
}

// InTx runs fn against a transaction bound Store. Nested calls reuse the open transaction.
func (s *Store) InTx(ctx context.Context, fn func(tx *Store) error) (err error) {
	if s.db == nil {
		return fn(s)
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}
	defer func() {
		if p := recover(); p != nil {
			_ = tx.Rollback()
			panic(p)
		}
		if err != nil {
			_ = tx.Rollback()
		}
	}()
	if err = fn(&Store{conn: tx}); err != nil {
		return err
	}
	return tx.Commit()
}

// Migrate applies the embedded schema for the datasource's dialect. It is idempotent.
func (s *Store) Migrate(ctx context.Context) error {
	script, err := schemas.ReadFile("schema/" + s.Dialect().String() + ".sql")
	if err != nil {
		return fmt.Errorf("no schema for %s: %w", s.Dialect(), err)
	}
	for _, stmt := range strings.Split(string(script), ";") {
		if strings.TrimSpace(stmt) == "" {
			continue
		}
		if _, err := s.conn.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("migrate: %w", err)
		}
	}
	return nil
}

func (s *Store) exec(ctx context.Context, query string, args ...any) (int64, error) {
	res, err := sqlx.Exec(ctx, s.conn, query, args...)
	if err != nil {
		return 0, translate(err)
	}
	return res.RowsAffected()
}

func (s *Store) query(ctx context.Context, query string, args ...any) (*sql.Rows, error) {
	rows, err := sqlx.Query(ctx, s.conn, query, args...)
	return rows, translate(err)
}

func (s *Store) row(ctx context.Context, query string, args ...any) *sql.Row {
	return sqlx.QueryRow(ctx, s.conn, query, args...)
}

// translate maps driver errors onto the package's sentinel errors.
func translate(err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, sql.ErrNoRows):
		return ErrNotFound
	case sqlx.IsUniqueViolation(err):
		return fmt.Errorf("%w: %v", ErrDuplicate, err)
	case sqlx.IsForeignKeyViolation(err):
		return fmt.Errorf("%w: %v", ErrReferenced, err)
	}
	return err
}

// scanner is satisfied by *sql.Row and *sql.Rows.
type scanner interface {
	Scan(dest ...any) error
}

func collect[T any](rows *sql.Rows, scan func(scanner) (T, error)) ([]T, error) {
	defer rows.Close()
	var out []T
	for rows.Next() {
		v, err := scan(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, v)
	}
	return out, rows.Err()
}

func one[T any](r *sql.Row, scan func(scanner) (T, error)) (T, error) {
	v, err := scan(r)
	return v, translate(err)
}

func newID() string {
	return uuid.NewString()
}

func now() time.Time {
	return time.Now().UTC()
}

// stamp fills a missing id and creation time.
func stamp(id *string, created *time.Time) {
	if *id == "" {
		*id = newID()
	}
	if created.IsZero() {
		*created = now()
	}
}

func utc(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	u := t.UTC()
	return &u
}

// columns prefixes every entry of a comma separated column list, e.g. for table aliases.
func columns(list, prefix string) string {
	parts := strings.Split(list, ",")
	for i, p := range parts {
		parts[i] = prefix + strings.TrimSpace(p)
	}
	return strings.Join(parts, ", ")
}
