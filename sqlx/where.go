package sqlx

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"github.com/pioneerstudio/patternshop/entity"
)

// Where is a query condition bound to entity T.
type Where[T entity.Entity] interface {
	// Build returns the SQL clause and its arguments, using `?` placeholders.
	Build() (string, []any)
	// bound ties the condition to T so that Where[T] arguments infer T.
	bound(T)
}

type whereFunc[T entity.Entity] func() (string, []any)

func (f whereFunc[T]) Build() (string, []any) { return f() }

func (whereFunc[T]) bound(T) {}

// And combines conditions with AND, skipping nil and empty ones.
func And[T entity.Entity](wheres ...Where[T]) Where[T] {
	return join[T](" AND ", wheres...)
}

// Or combines conditions with OR, skipping nil and empty ones.
func Or[T entity.Entity](wheres ...Where[T]) Where[T] {
	return join[T](" OR ", wheres...)
}

func join[T entity.Entity](sep string, wheres ...Where[T]) Where[T] {
	return whereFunc[T](func() (string, []any) {
		clauses := make([]string, 0, len(wheres))
		var allArgs []any
		for _, w := range wheres {
			if w == nil {
				continue
			}
			clause, args := w.Build()
			if clause == "" {
				continue
			}
			clauses = append(clauses, clause)
			allArgs = append(allArgs, args...)
		}
		if len(clauses) == 0 {
			return "", nil
		}
		return fmt.Sprintf("(%s)", strings.Join(clauses, sep)), allArgs
	})
}

func Eq[E entity.Entity](col entity.Column[E], value any) Where[E] {
	return op[E](col, "=", value)
}
func Ne[E entity.Entity](col entity.Column[E], value any) Where[E] {
	return op[E](col, "!=", value)
}
func Gt[E entity.Entity](col entity.Column[E], value any) Where[E] {
	return op[E](col, ">", value)
}
func Gte[E entity.Entity](col entity.Column[E], value any) Where[E] {
	return op[E](col, ">=", value)
}
func Lt[E entity.Entity](col entity.Column[E], value any) Where[E] {
	return op[E](col, "<", value)
}
func Lte[E entity.Entity](col entity.Column[E], value any) Where[E] {
	return op[E](col, "<=", value)
}
func Like[E entity.Entity](col entity.Column[E], value string) Where[E] {
	return op[E](col, "LIKE", value)
}

func IsNull[E entity.Entity](col entity.Column[E]) Where[E] {
	return whereFunc[E](func() (string, []any) { return col.Name() + " IS NULL", nil })
}

// In creates an "IN (...)" condition. An empty value list yields an always-false condition.
func In[E entity.Entity](col entity.Column[E], values ...any) Where[E] {
	if len(values) == 0 {
		return whereFunc[E](func() (string, []any) { return "1=0", nil })
	}
	clause := fmt.Sprintf("%s IN (%s)", col.Name(), placeholders(len(values)))
	return whereFunc[E](func() (string, []any) { return clause, values })
}

func op[E entity.Entity](col entity.Column[E], operator string, value any) Where[E] {
	return whereFunc[E](func() (string, []any) {
		return fmt.Sprintf("%s %s ?", col.Name(), operator), []any{value}
	})
}

func placeholders(n int) string {
	if n <= 0 {
		return ""
	}
	return strings.TrimSuffix(strings.Repeat("?,", n), ",")
}

// whereClause renders " WHERE ..." or an empty string.
func whereClause[T entity.Entity](where Where[T]) (string, []any) {
	if where == nil {
		return "", nil
	}
	clause, args := where.Build()
	if clause == "" {
		return "", nil
	}
	return " WHERE " + clause, args
}

// Exec runs query on c after rebinding its placeholders.
func Exec(ctx context.Context, c Conn, query string, args ...any) (sql.Result, error) {
	return c.ExecContext(ctx, c.Dialect().Rebind(query), args...)
}

// Query runs query on c after rebinding its placeholders.
func Query(ctx context.Context, c Conn, query string, args ...any) (*sql.Rows, error) {
	return c.QueryContext(ctx, c.Dialect().Rebind(query), args...)
}

// QueryRow runs query on c after rebinding its placeholders.
func QueryRow(ctx context.Context, c Conn, query string, args ...any) *sql.Row {
	return c.QueryRowContext(ctx, c.Dialect().Rebind(query), args...)
}

// Select renders "SELECT cols FROM table WHERE ... suffix" for entity T.
func Select[T entity.Entity](cols string, where Where[T], suffix string) (string, []any) {
	var e T
	clause, args := whereClause(where)
	q := fmt.Sprintf("SELECT %s FROM %s%s", cols, e.Table(), clause)
	if suffix != "" {
		q += " " + suffix
	}
	return q, args
}

// Count returns the number of T rows matching where.
func Count[T entity.Entity](ctx context.Context, c Conn, where Where[T]) (int64, error) {
	q, args := Select[T]("COUNT(*)", where, "")
	var n int64
	if err := QueryRow(ctx, c, q, args...).Scan(&n); err != nil {
		return 0, err
	}
	return n, nil
}

// Exists reports whether any T row matches where.
func Exists[T entity.Entity](ctx context.Context, c Conn, where Where[T]) (bool, error) {
	n, err := Count[T](ctx, c, where)
	return n > 0, err
}

// Delete removes the T rows matching where and returns the affected row count.
// A nil or empty condition is rejected rather than truncating the table.
func Delete[T entity.Entity](ctx context.Context, c Conn, where Where[T]) (int64, error) {
	var e T
	clause, args := whereClause(where)
	if clause == "" {
		return 0, fmt.Errorf("delete from %s requires a condition", e.Table())
	}
	res, err := Exec(ctx, c, "DELETE FROM "+e.Table()+clause, args...)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

// Insert renders and runs "INSERT INTO table (cols) VALUES (...)" for entity T.
func Insert[T entity.Entity](ctx context.Context, c Conn, cols []string, args ...any) error {
	var e T
	if len(cols) != len(args) {
		return fmt.Errorf("insert into %s: %d columns for %d values", e.Table(), len(cols), len(args))
	}
	q := fmt.Sprintf("INSERT INTO %s (%s) VALUES (%s)", e.Table(), strings.Join(cols, ", "), placeholders(len(cols)))
	_, err := Exec(ctx, c, q, args...)
	return err
}
