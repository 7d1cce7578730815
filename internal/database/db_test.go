package database

import (
	"context"
	"database/sql"
	"errors"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func openLedger(t *testing.T) *DB {
	t.Helper()
	db, err := New(Config{Path: filepath.Join(t.TempDir(), "ledger.db"), Profile: ProfileLedger, Name: "ledger"})
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	require.NoError(t, db.Migrate())
	return db
}

func TestMigrate_Idempotent(t *testing.T) {
	db := openLedger(t)
	require.NoError(t, db.Migrate())

	var count int
	err := db.Conn().QueryRow(`SELECT COUNT(*) FROM sqlite_master WHERE type = 'table' AND name IN ('accounts', 'positions', 'trades')`).Scan(&count)
	require.NoError(t, err)
	assert.Equal(t, 3, count)
}

func TestWithTransaction_RollsBack(t *testing.T) {
	db := openLedger(t)

	err := WithTransaction(db.Conn(), func(tx *sql.Tx) error {
		_, err := tx.Exec(`INSERT INTO accounts (id, balance, version, created_at, updated_at) VALUES ('a', '1', 0, 'x', 'x')`)
		require.NoError(t, err)
		return errors.New("boom")
	})
	require.Error(t, err)

	var count int
	require.NoError(t, db.Conn().QueryRow(`SELECT COUNT(*) FROM accounts`).Scan(&count))
	assert.Equal(t, 0, count)
}

func TestWithTransaction_RecoversPanic(t *testing.T) {
	db := openLedger(t)
	err := WithTransaction(db.Conn(), func(tx *sql.Tx) error {
		panic("bad")
	})
	assert.ErrorContains(t, err, "panic in transaction")
}

func TestSnapshotTo(t *testing.T) {
	db := openLedger(t)
	_, err := db.Conn().Exec(`INSERT INTO accounts (id, balance, version, created_at, updated_at) VALUES ('a', '10000', 0, 'x', 'x')`)
	require.NoError(t, err)

	dst := filepath.Join(t.TempDir(), "copy.db")
	require.NoError(t, db.SnapshotTo(context.Background(), dst))

	copyDB, err := New(Config{Path: dst, Name: "copy"})
	require.NoError(t, err)
	defer copyDB.Close()

	var balance string
	require.NoError(t, copyDB.Conn().QueryRow(`SELECT balance FROM accounts WHERE id = 'a'`).Scan(&balance))
	assert.Equal(t, "10000", balance)
	assert.NoError(t, copyDB.HealthCheck(context.Background()))
}
