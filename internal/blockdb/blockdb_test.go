package blockdb

import (
	"encoding/binary"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/erigontech/brc20-prog/internal/storage"
)

const testTable = "TestBlocks"

type testValue uint64

func (v testValue) Encode() ([]byte, error) {
	b := make([]byte, 8)
	binary.BigEndian.PutUint64(b, uint64(v))
	return b, nil
}

func decodeTestValue(b []byte) (testValue, error) {
	return testValue(binary.BigEndian.Uint64(b)), nil
}

func openTestEnv(t *testing.T) *storage.Env {
	t.Helper()
	env, err := storage.OpenWithTables(t.TempDir(), nil, []string{testTable})
	require.NoError(t, err)
	t.Cleanup(func() { _ = env.Close() })
	return env
}

func TestSetThenCommitThenGet(t *testing.T) {
	env := openTestEnv(t)
	db := New[testValue](testTable, decodeTestValue)

	db.Set(1, 10)
	db.Set(2, 20)
	db.Set(3, 30)

	require.NoError(t, env.Update(func(tx *storage.Tx) error {
		return db.Commit(tx)
	}))
	db.ClearCache()

	require.NoError(t, env.View(func(tx *storage.Tx) error {
		v, ok, err := db.Get(tx, 2)
		require.NoError(t, err)
		require.True(t, ok)
		require.EqualValues(t, 20, v)

		last, ok, err := db.LastKey(tx)
		require.NoError(t, err)
		require.True(t, ok)
		require.EqualValues(t, 3, last)
		return nil
	}))
}

func TestReorgRemovesAboveTarget(t *testing.T) {
	env := openTestEnv(t)
	db := New[testValue](testTable, decodeTestValue)

	db.Set(1, 10)
	db.Set(2, 20)
	db.Set(3, 30)
	require.NoError(t, env.Update(func(tx *storage.Tx) error { return db.Commit(tx) }))
	db.ClearCache()

	require.NoError(t, env.Update(func(tx *storage.Tx) error {
		return db.Reorg(tx, 2)
	}))

	require.NoError(t, env.View(func(tx *storage.Tx) error {
		_, ok, err := db.Get(tx, 3)
		require.NoError(t, err)
		require.False(t, ok)

		last, ok, err := db.LastKey(tx)
		require.NoError(t, err)
		require.True(t, ok)
		require.EqualValues(t, 2, last)
		return nil
	}))
}
