// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package sqlite

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestOpen_EnablesWAL(t *testing.T) {
	db, err := Open(filepath.Join(t.TempDir(), "wal.sqlite"), DefaultConfig())
	require.NoError(t, err)
	defer db.Close()

	var mode string
	require.NoError(t, db.QueryRow("PRAGMA journal_mode;").Scan(&mode))
	assert.Equal(t, "wal", mode)

	var fk int
	require.NoError(t, db.QueryRow("PRAGMA foreign_keys;").Scan(&fk))
	assert.Equal(t, 1, fk)
}

func TestMigrate_IdempotentAndAtomic(t *testing.T) {
	db, err := Open(filepath.Join(t.TempDir(), "migrate.sqlite"), DefaultConfig())
	require.NoError(t, err)
	defer db.Close()

	ctx := context.Background()
	stmt := "CREATE TABLE IF NOT EXISTS t (id INTEGER PRIMARY KEY)"
	require.NoError(t, Migrate(ctx, db, stmt))
	require.NoError(t, Migrate(ctx, db, stmt))

	err = Migrate(ctx, db, "CREATE TABLE IF NOT EXISTS u (id INTEGER)", "NOT SQL")
	require.Error(t, err)

	var n int
	require.NoError(t, db.QueryRow("SELECT count(*) FROM sqlite_master WHERE name = 'u'").Scan(&n))
	assert.Equal(t, 0, n, "failed migration must roll back earlier steps")
}

func TestVerifyIntegrity_Healthy(t *testing.T) {
	path := filepath.Join(t.TempDir(), "healthy.sqlite")
	db, err := Open(path, DefaultConfig())
	require.NoError(t, err)
	_, err = db.Exec("CREATE TABLE t (id INTEGER PRIMARY KEY, data TEXT)")
	require.NoError(t, err)
	require.NoError(t, db.Close())

	issues, err := VerifyIntegrity(path, "quick")
	require.NoError(t, err)
	assert.Nil(t, issues)

	issues, err = VerifyIntegrity(path, "full")
	require.NoError(t, err)
	assert.Nil(t, issues)
}

func TestVerifyIntegrity_NotADatabase(t *testing.T) {
	path := filepath.Join(t.TempDir(), "garbage.sqlite")
	garbage := make([]byte, 8192)
	for i := range garbage {
		garbage[i] = byte(i * 7)
	}
	require.NoError(t, os.WriteFile(path, garbage, 0o600))

	issues, err := VerifyIntegrity(path, "full")
	assert.True(t, err != nil || len(issues) > 0, "garbage file must not verify as healthy")
}
