package evmadapter

import (
	"testing"

	"github.com/holiman/uint256"
	"github.com/stretchr/testify/require"

	"github.com/erigontech/brc20-prog/internal/evmtypes"
	"github.com/erigontech/brc20-prog/internal/kvschema"
	"github.com/erigontech/brc20-prog/internal/precompiles"
	"github.com/erigontech/brc20-prog/internal/statestore"
	"github.com/erigontech/brc20-prog/internal/storage"
	"github.com/erigontech/brc20-prog/internal/vm"
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

// push1Return is a tiny init-code program: PUSH1 0x2a, PUSH1 0, MSTORE,
// PUSH1 32, PUSH1 0, RETURN — stores 42 in memory and returns it, so a
// CREATE that runs it deploys a contract whose runtime code is the 32-byte
// word 0x2a.
var push1Return = []byte{
	0x60, 0x2a,
	0x60, 0x00,
	0x52,
	0x60, 0x20,
	0x60, 0x00,
	0xf3,
}

func TestCreateDeploysRuntimeCode(t *testing.T) {
	env := openTestEnv(t)
	store := statestore.New()

	var deployed evmtypes.Address
	require.NoError(t, env.Update(func(tx *storage.Tx) error {
		a := New(store, tx, vm.BlockContext{Number: 1}, vm.TxContext{}, nil, true)
		res := a.Execute(addr(1), nil, uint256.NewInt(0), push1Return, 1_000_000)
		require.NoError(t, res.Err)
		require.NotNil(t, a.CreatedContract())
		deployed = *a.CreatedContract()
		return nil
	}))

	require.NoError(t, env.View(func(tx *storage.Tx) error {
		acct, ok, err := store.Basic(tx, deployed)
		require.NoError(t, err)
		require.True(t, ok)
		code, ok, err := store.CodeByHash(tx, acct.CodeHash)
		require.NoError(t, err)
		require.True(t, ok)
		require.Len(t, code, 32)
		require.EqualValues(t, 0x2a, code[31])
		return nil
	}))
}

func TestDryRunDoesNotPersistStorage(t *testing.T) {
	env := openTestEnv(t)
	store := statestore.New()

	// PUSH1 9, PUSH1 0, SSTORE
	code := []byte{0x60, 0x09, 0x60, 0x00, 0x55}
	target := addr(2)

	require.NoError(t, env.Update(func(tx *storage.Tx) error {
		require.NoError(t, store.SetAccount(tx, 1, target, statestore.Account{}))
		return store.CommitToDB(tx)
	}))
	store.ClearCaches()

	require.NoError(t, env.Update(func(tx *storage.Tx) error {
		a := New(store, tx, vm.BlockContext{Number: 2}, vm.TxContext{}, nil, false)
		to := target
		res := a.Execute(addr(1), &to, uint256.NewInt(0), code, 1_000_000)
		require.NoError(t, res.Err)

		got, err := a.GetStorage(target, evmtypes.Hash{})
		require.NoError(t, err)
		require.EqualValues(t, 9, new(uint256.Int).SetBytes(got[:]).Uint64())
		return nil
	}))

	require.NoError(t, env.View(func(tx *storage.Tx) error {
		got, ok, err := store.Storage(tx, target, evmtypes.Hash{})
		require.NoError(t, err)
		require.False(t, ok)
		require.Equal(t, evmtypes.Hash{}, got)
		return nil
	}))
}

func TestCommitPersistsStorage(t *testing.T) {
	env := openTestEnv(t)
	store := statestore.New()

	code := []byte{0x60, 0x09, 0x60, 0x00, 0x55}
	target := addr(3)

	require.NoError(t, env.Update(func(tx *storage.Tx) error {
		require.NoError(t, store.SetAccount(tx, 1, target, statestore.Account{}))
		a := New(store, tx, vm.BlockContext{Number: 1}, vm.TxContext{}, nil, true)
		to := target
		res := a.Execute(addr(1), &to, uint256.NewInt(0), code, 1_000_000)
		require.NoError(t, res.Err)
		return store.CommitToDB(tx)
	}))
	store.ClearCaches()

	require.NoError(t, env.View(func(tx *storage.Tx) error {
		got, ok, err := store.Storage(tx, target, evmtypes.Hash{})
		require.NoError(t, err)
		require.True(t, ok)
		require.EqualValues(t, 9, new(uint256.Int).SetBytes(got[:]).Uint64())
		return nil
	}))
}

func TestCallDispatchesPrecompile(t *testing.T) {
	env := openTestEnv(t)
	store := statestore.New()

	require.NoError(t, env.Update(func(tx *storage.Tx) error {
		reg := precompiles.Registry(precompiles.Config{})
		a := New(store, tx, vm.BlockContext{Number: 5}, vm.TxContext{}, reg, true)
		a.SetCurrentTx(evmtypes.Hash{1, 2, 3}, 4)

		out, leftOver, err := a.Call(vm.CallKindCall, addr(1), precompiles.AddressCurrentTxID, nil, 100000, uint256.NewInt(0), false)
		require.NoError(t, err)
		require.Less(t, leftOver, uint64(100000))
		require.NotEmpty(t, out)
		return nil
	}))
}

func TestTraceRecordsTopLevelCreate(t *testing.T) {
	env := openTestEnv(t)
	store := statestore.New()

	require.NoError(t, env.Update(func(tx *storage.Tx) error {
		a := New(store, tx, vm.BlockContext{Number: 1}, vm.TxContext{}, nil, true)
		a.EnableTrace()
		res := a.Execute(addr(1), nil, uint256.NewInt(0), push1Return, 1_000_000)
		require.NoError(t, res.Err)

		trace := a.Trace()
		require.NotNil(t, trace)
		require.Equal(t, "CREATE", trace.Type)
		require.Equal(t, addr(1), trace.From)
		require.Equal(t, *a.CreatedContract(), trace.To)
		require.Greater(t, trace.GasUsed, uint64(0))
		require.Empty(t, trace.Calls)
		return nil
	}))
}

func TestTraceRecordsNestedCall(t *testing.T) {
	env := openTestEnv(t)
	store := statestore.New()
	callee := addr(9)

	require.NoError(t, env.Update(func(tx *storage.Tx) error {
		codeHash, err := store.SetCode(tx, []byte{0x00}) // STOP
		require.NoError(t, err)
		require.NoError(t, store.SetAccount(tx, 1, callee, statestore.Account{CodeHash: codeHash}))

		// PUSH1 0,0,0,0,0 (retSize,retOff,argSize,argOff,value) PUSH20 <callee> PUSH2 gas CALL
		code := []byte{
			0x60, 0x00, 0x60, 0x00, 0x60, 0x00, 0x60, 0x00, 0x60, 0x00,
			0x73,
		}
		code = append(code, callee[:]...)
		code = append(code, 0x61, 0x27, 0x10, 0xf1) // PUSH2 10000, CALL

		callerCodeHash, err := store.SetCode(tx, code)
		require.NoError(t, err)
		to := addr(8)
		require.NoError(t, store.SetAccount(tx, 1, to, statestore.Account{CodeHash: callerCodeHash}))

		a := New(store, tx, vm.BlockContext{Number: 1}, vm.TxContext{}, nil, true)
		a.EnableTrace()
		res := a.Execute(addr(1), &to, uint256.NewInt(0), nil, 1_000_000)
		require.NoError(t, res.Err)

		trace := a.Trace()
		require.NotNil(t, trace)
		require.Equal(t, "CALL", trace.Type)
		require.Len(t, trace.Calls, 1)
		require.Equal(t, "CALL", trace.Calls[0].Type)
		require.Equal(t, callee, trace.Calls[0].To)
		return nil
	}))
}

func TestCreateAddressDeterministic(t *testing.T) {
	a1 := createAddress(addr(7), 0)
	a2 := createAddress(addr(7), 0)
	require.Equal(t, a1, a2)

	a3 := createAddress(addr(7), 1)
	require.NotEqual(t, a1, a3)
}

func TestCreate2AddressDeterministic(t *testing.T) {
	salt := uint256.NewInt(42)
	a1 := create2Address(addr(7), salt, []byte{0x60, 0x00})
	a2 := create2Address(addr(7), salt, []byte{0x60, 0x00})
	require.Equal(t, a1, a2)

	a3 := create2Address(addr(7), uint256.NewInt(43), []byte{0x60, 0x00})
	require.NotEqual(t, a1, a3)
}
