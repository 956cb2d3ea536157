// Package storetest opens throwaway migrated stores for tests.
package storetest

import (
	"context"
	"testing"

	"github.com/google/uuid"
	"github.com/pioneerstudio/patternshop/sqlx"
	"github.com/pioneerstudio/patternshop/store"
	"github.com/stretchr/testify/require"
)

// Open returns a Store over a private in-memory SQLite database with the schema applied.
func Open(t testing.TB) *store.Store {
	t.Helper()
	s, _ := OpenDB(t)
	return s
}

// OpenDB is Open that also hands back the datasource, for tests that reach below the Store.
func OpenDB(t testing.TB) (*store.Store, sqlx.DB) {
	t.Helper()
	ctx := context.Background()
	db, err := sqlx.Open(ctx, sqlx.DataSource{
		Driver: "sqlite3",
		URL:    "file:" + uuid.NewString() + "?mode=memory&cache=shared&_foreign_keys=on",
	})
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	s := store.New(db)
	require.NoError(t, s.Migrate(ctx))
	return s, db
}
