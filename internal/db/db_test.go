package db

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewSqliteDBMemory(t *testing.T) {
	conn, err := NewSqliteDB()
	require.NoError(t, err)
	defer conn.Close()

	_, err = conn.Exec("CREATE TABLE t (id INTEGER PRIMARY KEY, v TEXT)")
	require.NoError(t, err)
}

func TestNewSqliteDBFileCreatesParent(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "nested", "state.db")

	conn, err := NewSqliteDB(WithPath(dbPath))
	require.NoError(t, err)
	defer conn.Close()

	assert.DirExists(t, filepath.Dir(dbPath))
	assert.FileExists(t, dbPath)
}

func TestNewSqliteDBFileUsesWAL(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "state.db")

	conn, err := NewSqliteDB(WithPath(dbPath), WithMaxOpenConns(1))
	require.NoError(t, err)
	defer conn.Close()

	var mode string
	require.NoError(t, conn.Get(&mode, "PRAGMA journal_mode"))
	assert.Equal(t, "wal", mode)
}

func TestNewSqliteDBCustomPragmas(t *testing.T) {
	conn, err := NewSqliteDB(WithPragmas("PRAGMA busy_timeout=1000;"))
	require.NoError(t, err)
	defer conn.Close()

	_, err = conn.Exec("CREATE TABLE t2 (id INTEGER PRIMARY KEY)")
	assert.NoError(t, err)
}
