// Package testutil provides test utilities for database setup, shared
// by internal/repo, internal/orchestrator, and internal/api tests.
package testutil

import (
	"context"
	"database/sql"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/ntpoppe/textops/internal/repo"
)

// NewTestDB opens an in-memory Sqlite database with every migration
// applied, and registers cleanup to close it.
func NewTestDB(t *testing.T) (*sql.DB, repo.Dialect) {
	t.Helper()

	db, dialect, err := repo.Open(context.Background(), repo.ProviderSqlite, ":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	require.NoError(t, repo.Migrate(db, repo.ProviderSqlite))
	return db, dialect
}
