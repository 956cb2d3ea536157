package sqlx

import (
	"fmt"
	"strconv"
	"strings"

	// database/sql drivers selectable through `datasource.<name>.driver`
	_ "github.com/go-sql-driver/mysql"
	_ "github.com/jackc/pgx/v5/stdlib"
	_ "github.com/lib/pq"
	_ "github.com/mattn/go-sqlite3"
)

type Dialect int

const (
	Postgres Dialect = iota + 1
	SQLite
	MySQL
)

func (d Dialect) String() string {
	switch d {
	case Postgres:
		return "postgres"
	case SQLite:
		return "sqlite"
	case MySQL:
		return "mysql"
	default:
		return "unknown"
	}
}

// DialectOf maps a database/sql driver name to its dialect.
func DialectOf(driver string) (Dialect, error) {
	switch driver {
	case "pgx", "postgres":
		return Postgres, nil
	case "sqlite3":
		return SQLite, nil
	case "mysql":
		return MySQL, nil
	}
	return 0, fmt.Errorf("unsupported driver %q", driver)
}

// Rebind rewrites `?` placeholders into the dialect's bind syntax. Placeholders inside
// single quoted literals are left untouched.
func (d Dialect) Rebind(query string) string {
	if d != Postgres || !strings.Contains(query, "?") {
		return query
	}
	var b strings.Builder
	b.Grow(len(query) + 8)
	n := 0
	quoted := false
	for _, r := range query {
		switch {
		case r == '\'':
			quoted = !quoted
			b.WriteRune(r)
		case r == '?' && !quoted:
			n++
			b.WriteByte('$')
			b.WriteString(strconv.Itoa(n))
		default:
			b.WriteRune(r)
		}
	}
	return b.String()
}

// ForUpdate returns the row locking suffix for SELECT statements run inside a transaction.
// SQLite locks the whole database on write, so it needs none.
func (d Dialect) ForUpdate() string {
	if d == SQLite {
		return ""
	}
	return " FOR UPDATE"
}
