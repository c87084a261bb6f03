package blockcacheddb

import (
	"encoding/binary"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/erigontech/brc20-prog/internal/storage"
)

const (
	testTip     = "TestTip"
	testHistory = "TestHistory"
)

func uint64Codec() Codec[uint64] {
	return Codec[uint64]{
		Encode: func(v uint64) ([]byte, error) {
			b := make([]byte, 8)
			binary.BigEndian.PutUint64(b, v)
			return b, nil
		},
		Decode: func(b []byte) (uint64, error) {
			return binary.BigEndian.Uint64(b), nil
		},
	}
}

func openTestEnv(t *testing.T) *storage.Env {
	t.Helper()
	// The production table set is opened by internal/statestore; this
	// test exercises blockcacheddb directly against its own pair of
	// ad-hoc tables, so it opens a bare env rather than going through
	// storage.Open (which pre-creates the production schema).
	env, err := storage.OpenWithTables(t.TempDir(), nil, []string{testTip, testHistory})
	require.NoError(t, err)
	t.Cleanup(func() { _ = env.Close() })
	return env
}

func keyBytes(k uint64) []byte {
	b := make([]byte, 8)
	binary.BigEndian.PutUint64(b, k)
	return b
}

func TestCacheOnlySetThenLatest(t *testing.T) {
	env := openTestEnv(t)
	db := New[uint64, uint64](testTip, testHistory, keyBytes, uint64Codec())

	require.NoError(t, env.Update(func(tx *storage.Tx) error {
		return db.Set(tx, 1, 42, 100)
	}))

	require.NoError(t, env.View(func(tx *storage.Tx) error {
		v, ok, err := db.Latest(tx, 42)
		require.NoError(t, err)
		require.True(t, ok)
		require.EqualValues(t, 100, v)
		return nil
	}))
}

func TestCommitPersistsAcrossCacheClear(t *testing.T) {
	env := openTestEnv(t)
	db := New[uint64, uint64](testTip, testHistory, keyBytes, uint64Codec())

	require.NoError(t, env.Update(func(tx *storage.Tx) error {
		if err := db.Set(tx, 1, 42, 100); err != nil {
			return err
		}
		return db.Commit(tx)
	}))
	db.ClearCache()

	require.NoError(t, env.View(func(tx *storage.Tx) error {
		v, ok, err := db.Latest(tx, 42)
		require.NoError(t, err)
		require.True(t, ok)
		require.EqualValues(t, 100, v)
		return nil
	}))
}

func TestReorgRollsBackToPriorValue(t *testing.T) {
	env := openTestEnv(t)
	db := New[uint64, uint64](testTip, testHistory, keyBytes, uint64Codec())

	for height, value := range map[uint64]uint64{1: 100, 2: 200, 3: 300} {
		h, v := height, value
		require.NoError(t, env.Update(func(tx *storage.Tx) error {
			if err := db.Set(tx, h, 42, v); err != nil {
				return err
			}
			return db.Commit(tx)
		}))
		db.ClearCache()
	}

	require.NoError(t, env.Update(func(tx *storage.Tx) error {
		return db.Reorg(tx, 1, scanAllKeys)
	}))
	db.ClearCache()

	require.NoError(t, env.View(func(tx *storage.Tx) error {
		v, ok, err := db.Latest(tx, 42)
		require.NoError(t, err)
		require.True(t, ok)
		require.EqualValues(t, 100, v)
		return nil
	}))
}

func scanAllKeys(tx *storage.Tx, table string) ([]uint64, error) {
	var keys []uint64
	err := tx.ForEach(table, func(key, _ []byte) error {
		keys = append(keys, binary.BigEndian.Uint64(key))
		return nil
	})
	return keys, err
}
