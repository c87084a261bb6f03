package statestore

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/erigontech/brc20-prog/internal/evmtypes"
	"github.com/erigontech/brc20-prog/internal/storage"
)

func TestReaderReturnsZeroValueForUnknownAccount(t *testing.T) {
	env := openTestEnv(t)
	s := New()

	require.NoError(t, env.View(func(tx *storage.Tx) error {
		r := NewReader(s, tx, false, nil)
		acct, err := r.Basic(addr(42))
		require.NoError(t, err)
		require.Equal(t, Account{}, acct)

		code, err := r.CodeByHash(evmtypes.Hash{})
		require.NoError(t, err)
		require.Nil(t, code)

		bh, err := r.BlockHash(999)
		require.NoError(t, err)
		require.Equal(t, evmtypes.Hash{}, bh)
		return nil
	}))
}

func TestReaderSeesCommittedWrites(t *testing.T) {
	env := openTestEnv(t)
	s := New()

	a := addr(5)
	require.NoError(t, env.Update(func(tx *storage.Tx) error {
		if err := s.SetAccount(tx, 1, a, Account{Nonce: 7}); err != nil {
			return err
		}
		return s.CommitToDB(tx)
	}))
	s.ClearCaches()

	require.NoError(t, env.View(func(tx *storage.Tx) error {
		r := NewReader(s, tx, true, nil)
		acct, err := r.Basic(a)
		require.NoError(t, err)
		require.EqualValues(t, 7, acct.Nonce)
		return nil
	}))
}
