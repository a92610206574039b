package db

import (
	"context"
	"errors"
	"path/filepath"
	"testing"

	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestPool(t *testing.T) *Pool {
	t.Helper()
	path := filepath.Join(t.TempDir(), "test.db")
	writerConn, err := OpenSQLite(path)
	require.NoError(t, err)
	readerConn, err := OpenSQLiteReader(path)
	require.NoError(t, err)

	pool := NewPool(sqlx.NewDb(writerConn, "sqlite3"), sqlx.NewDb(readerConn, "sqlite3"))
	t.Cleanup(func() { _ = pool.Close() })

	_, err = pool.Writer().Exec(`CREATE TABLE items (id TEXT PRIMARY KEY, name TEXT NOT NULL UNIQUE)`)
	require.NoError(t, err)
	return pool
}

func countItems(t *testing.T, pool *Pool) int {
	t.Helper()
	var n int
	require.NoError(t, pool.Reader().Get(&n, `SELECT COUNT(*) FROM items`))
	return n
}

func TestPool_WithTxCommits(t *testing.T) {
	pool := newTestPool(t)

	err := pool.WithTx(context.Background(), func(tx *sqlx.Tx) error {
		_, err := tx.Exec(`INSERT INTO items (id, name) VALUES ('1', 'a'), ('2', 'b')`)
		return err
	})
	require.NoError(t, err)
	assert.Equal(t, 2, countItems(t, pool))
}

func TestPool_WithTxRollsBackOnError(t *testing.T) {
	pool := newTestPool(t)
	boom := errors.New("boom")

	err := pool.WithTx(context.Background(), func(tx *sqlx.Tx) error {
		if _, err := tx.Exec(`INSERT INTO items (id, name) VALUES ('1', 'a')`); err != nil {
			return err
		}
		return boom
	})
	require.ErrorIs(t, err, boom)
	assert.Equal(t, 0, countItems(t, pool))
}

func TestIsUniqueViolation(t *testing.T) {
	pool := newTestPool(t)

	_, err := pool.Writer().Exec(`INSERT INTO items (id, name) VALUES ('1', 'a')`)
	require.NoError(t, err)
	_, err = pool.Writer().Exec(`INSERT INTO items (id, name) VALUES ('2', 'a')`)
	require.Error(t, err)

	assert.True(t, IsUniqueViolation(err))
	assert.False(t, IsUniqueViolation(errors.New("other")))
	assert.False(t, IsUniqueViolation(nil))
	assert.Equal(t, "sqlite3", pool.Driver())
	assert.NoError(t, pool.Ping(context.Background()))
}
