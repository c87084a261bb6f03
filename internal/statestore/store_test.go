package statestore

import (
	"testing"

	"github.com/holiman/uint256"
	"github.com/stretchr/testify/require"

	"github.com/erigontech/brc20-prog/internal/evmtypes"
	"github.com/erigontech/brc20-prog/internal/kvschema"
	"github.com/erigontech/brc20-prog/internal/storage"
)

func openTestEnv(t *testing.T) *storage.Env {
	t.Helper()
	env, err := storage.OpenWithTables(t.TempDir(), nil, kvschema.AllTables())
	require.NoError(t, err)
	t.Cleanup(func() { _ = env.Close() })
	return env
}

func addr(b byte) evmtypes.Address {
	var a evmtypes.Address
	a[19] = b
	return a
}

func hash(b byte) evmtypes.Hash {
	var h evmtypes.Hash
	h[31] = b
	return h
}

func TestAccountSetCommitGet(t *testing.T) {
	env := openTestEnv(t)
	s := New()

	a := addr(1)
	acct := Account{Nonce: 3, Balance: *uint256.NewInt(1000), CodeHash: hash(9)}

	require.NoError(t, env.Update(func(tx *storage.Tx) error {
		require.NoError(t, s.SetAccount(tx, 1, a, acct))
		return s.CommitToDB(tx)
	}))
	s.ClearCaches()

	require.NoError(t, env.View(func(tx *storage.Tx) error {
		got, ok, err := s.Basic(tx, a)
		require.NoError(t, err)
		require.True(t, ok)
		require.Equal(t, acct, got)

		codeHash, ok, err := s.contractCode.Latest(tx, a)
		require.NoError(t, err)
		require.True(t, ok)
		require.Equal(t, hash(9), codeHash)
		return nil
	}))
}

func TestStorageSetCommitGet(t *testing.T) {
	env := openTestEnv(t)
	s := New()

	a := addr(2)
	slot := hash(1)
	value := hash(42)

	require.NoError(t, env.Update(func(tx *storage.Tx) error {
		require.NoError(t, s.SetStorage(tx, 1, a, slot, value))
		return s.CommitToDB(tx)
	}))
	s.ClearCaches()

	require.NoError(t, env.View(func(tx *storage.Tx) error {
		got, ok, err := s.Storage(tx, a, slot)
		require.NoError(t, err)
		require.True(t, ok)
		require.Equal(t, value, got)
		return nil
	}))
}

func TestCodeContentAddressed(t *testing.T) {
	env := openTestEnv(t)
	s := New()
	code := []byte{0x60, 0x00, 0x60, 0x00}

	var h evmtypes.Hash
	require.NoError(t, env.Update(func(tx *storage.Tx) error {
		var err error
		h, err = s.SetCode(tx, code)
		return err
	}))

	require.NoError(t, env.View(func(tx *storage.Tx) error {
		got, ok, err := s.CodeByHash(tx, h)
		require.NoError(t, err)
		require.True(t, ok)
		require.Equal(t, code, got)
		return nil
	}))
}

func TestGenerateBlockAndRetrieve(t *testing.T) {
	env := openTestEnv(t)
	s := New()

	txs := BlockTxList{
		{
			Tx:      Tx{Hash: hash(1), From: addr(1), Nonce: 0, GasLimit: 21000},
			Receipt: Receipt{Status: 1, GasUsed: 21000, Logs: []Log{{Address: addr(1), Topics: []evmtypes.Hash{hash(5)}}}},
		},
	}

	var block Block
	require.NoError(t, env.Update(func(tx *storage.Tx) error {
		var err error
		block, err = s.GenerateBlock(tx, 1, evmtypes.Hash{}, 1700000000, 1234, 30_000_000, txs)
		if err != nil {
			return err
		}
		return s.CommitToDB(tx)
	}))
	s.ClearCaches()

	require.NoError(t, env.View(func(tx *storage.Tx) error {
		got, ok, err := s.GetBlockByNumber(tx, 1)
		require.NoError(t, err)
		require.True(t, ok)
		require.Equal(t, block.Hash, got.Hash)
		require.Equal(t, uint64(21000), got.GasUsed)

		bh, ok, err := s.BlockHash(tx, 1)
		require.NoError(t, err)
		require.True(t, ok)
		require.Equal(t, block.Hash, bh)

		recs, ok, err := s.GetTransactions(tx, 1)
		require.NoError(t, err)
		require.True(t, ok)
		require.Len(t, recs, 1)
		return nil
	}))
}

func TestGetLogsRangeCapped(t *testing.T) {
	env := openTestEnv(t)
	s := New()

	require.NoError(t, env.View(func(tx *storage.Tx) error {
		_, err := s.GetLogs(tx, 1, 10, nil, nil)
		require.Error(t, err)
		return nil
	}))
}

func TestGetLogsFindsMatchingAddress(t *testing.T) {
	env := openTestEnv(t)
	s := New()

	target := addr(7)
	txs := BlockTxList{
		{
			Tx:      Tx{Hash: hash(2), From: addr(1)},
			Receipt: Receipt{Status: 1, Logs: []Log{{Address: target, Topics: []evmtypes.Hash{hash(9)}}}},
		},
	}

	require.NoError(t, env.Update(func(tx *storage.Tx) error {
		if _, err := s.GenerateBlock(tx, 1, evmtypes.Hash{}, 1, 1, 1, txs); err != nil {
			return err
		}
		return s.CommitToDB(tx)
	}))
	s.ClearCaches()

	require.NoError(t, env.View(func(tx *storage.Tx) error {
		logs, err := s.GetLogs(tx, 1, 1, &target, nil)
		require.NoError(t, err)
		require.Len(t, logs, 1)

		other := addr(8)
		logs, err = s.GetLogs(tx, 1, 1, &other, nil)
		require.NoError(t, err)
		require.Empty(t, logs)
		return nil
	}))
}

func TestGenerateBlockRejectsHashReassignedToAnotherHeight(t *testing.T) {
	env := openTestEnv(t)
	s := New()

	var block Block
	require.NoError(t, env.Update(func(tx *storage.Tx) error {
		var err error
		block, err = s.GenerateBlock(tx, 1, evmtypes.Hash{}, 1700000000, 1234, 30_000_000, nil)
		if err != nil {
			return err
		}
		return s.CommitToDB(tx)
	}))
	s.ClearCaches()

	// Simulate the hash having already been claimed by a different height
	// (invariant 3: a block hash and a block number are injective).
	require.NoError(t, env.Update(func(tx *storage.Tx) error {
		return tx.Put(kvschema.BlockNumberByHash, block.Hash[:], uint64ToBytes(42))
	}))

	err := env.Update(func(tx *storage.Tx) error {
		_, err := s.GenerateBlock(tx, 1, evmtypes.Hash{}, 1700000000, 1234, 30_000_000, nil)
		return err
	})
	require.Error(t, err)
}

func TestReorgRollsBackAccounts(t *testing.T) {
	env := openTestEnv(t)
	s := New()

	a := addr(3)
	require.NoError(t, env.Update(func(tx *storage.Tx) error {
		if err := s.SetAccount(tx, 1, a, Account{Nonce: 1}); err != nil {
			return err
		}
		return s.CommitToDB(tx)
	}))
	s.ClearCaches()

	require.NoError(t, env.Update(func(tx *storage.Tx) error {
		if err := s.SetAccount(tx, 2, a, Account{Nonce: 2}); err != nil {
			return err
		}
		return s.CommitToDB(tx)
	}))
	s.ClearCaches()

	require.NoError(t, env.Update(func(tx *storage.Tx) error {
		return s.Reorg(tx, 1)
	}))
	s.ClearCaches()

	require.NoError(t, env.View(func(tx *storage.Tx) error {
		got, ok, err := s.Basic(tx, a)
		require.NoError(t, err)
		require.True(t, ok)
		require.EqualValues(t, 1, got.Nonce)
		return nil
	}))
}
