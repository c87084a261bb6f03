package engine

import (
	"testing"

	"github.com/holiman/uint256"
	"github.com/stretchr/testify/require"

	"github.com/erigontech/brc20-prog/internal/evmtypes"
	"github.com/erigontech/brc20-prog/internal/kvschema"
	"github.com/erigontech/brc20-prog/internal/precompiles"
	"github.com/erigontech/brc20-prog/internal/storage"
)

func openTestEngine(t *testing.T) *BRC20ProgEngine {
	t.Helper()
	env, err := storage.OpenWithTables(t.TempDir(), nil, kvschema.AllTables())
	require.NoError(t, err)
	t.Cleanup(func() { _ = env.Close() })
	return New(env, Config{ChainID: 331337, MaxReorgHistorySize: 10, GasPerByte: 1}, precompiles.Config{})
}

func addr(b byte) evmtypes.Address {
	var a evmtypes.Address
	a[19] = b
	return a
}

// deployCode is a tiny init-code program: PUSH1 0x2a, PUSH1 0, MSTORE,
// PUSH1 32, PUSH1 0, RETURN — deploys a contract whose runtime code is the
// 32-byte word 0x2a, the same fixture used in evmadapter's own tests.
var deployCode = []byte{
	0x60, 0x2a,
	0x60, 0x00,
	0x52,
	0x60, 0x20,
	0x60, 0x00,
	0xf3,
}

func TestDeployAndFinaliseBlock(t *testing.T) {
	e := openTestEngine(t)

	next, err := e.GetNextBlockHeight()
	require.NoError(t, err)
	require.EqualValues(t, 1, next)

	require.NoError(t, e.Initialise(next, evmtypes.Hash{}, 42, 30_000_000))

	receipt, err := e.AddTxToBlock(addr(1), nil, uint256.NewInt(0), deployCode, 42, evmtypes.Hash{}, 1_000_000, "")
	require.NoError(t, err)
	require.EqualValues(t, 1, receipt.Status)
	require.NotNil(t, receipt.ContractAddress)

	require.NoError(t, e.FinaliseBlock(1000, 1))

	height, err := e.GetLatestBlockHeight()
	require.NoError(t, err)
	require.EqualValues(t, 1, height)

	block, txs, ok, err := e.GetBlockByNumber(1, true)
	require.NoError(t, err)
	require.True(t, ok)
	require.Len(t, txs, 1)
	require.EqualValues(t, 1, block.Number)
}

func TestReadContractDoesNotMutateState(t *testing.T) {
	e := openTestEngine(t)
	next, err := e.GetNextBlockHeight()
	require.NoError(t, err)
	require.NoError(t, e.Initialise(next, evmtypes.Hash{}, 42, 30_000_000))

	receipt, err := e.AddTxToBlock(addr(1), nil, uint256.NewInt(0), deployCode, 42, evmtypes.Hash{}, 1_000_000, "")
	require.NoError(t, err)
	contract := *receipt.ContractAddress

	result, err := e.ReadContract(addr(2), &contract, uint256.NewInt(0), nil, 100000)
	require.NoError(t, err)
	require.NoError(t, result.Err)

	nonceBefore, err := e.accountNonce(addr(2))
	require.NoError(t, err)
	require.EqualValues(t, 0, nonceBefore)
}

func TestPendingPoolStartsEmpty(t *testing.T) {
	e := openTestEngine(t)
	next, err := e.GetNextBlockHeight()
	require.NoError(t, err)
	require.NoError(t, e.Initialise(next, evmtypes.Hash{}, 42, 30_000_000))

	content := e.PendingPoolContent()
	require.Empty(t, content)
}

func TestSubstituteBlockHashIsDeterministicAndHeightDependent(t *testing.T) {
	h1 := substituteBlockHash(evmtypes.Hash{}, 5)
	h2 := substituteBlockHash(evmtypes.Hash{}, 5)
	require.Equal(t, h1, h2)

	h3 := substituteBlockHash(evmtypes.Hash{}, 6)
	require.NotEqual(t, h1, h3)

	real := evmtypes.Hash{1, 2, 3}
	require.Equal(t, real, substituteBlockHash(real, 5))
}

func TestDecodeRawTxBatchPreservesOrderAndRejectsBadInput(t *testing.T) {
	e := openTestEngine(t)

	_, err := e.DecodeRawTxBatch([][]byte{{0x01}, {0x02}})
	require.Error(t, err)

	decoded, err := e.DecodeRawTxBatch(nil)
	require.NoError(t, err)
	require.Empty(t, decoded)
}

func TestParseInscriptionID(t *testing.T) {
	id, ok := parseInscriptionID("00000000000000000000000000000000000000000000000000000000000000aai0")
	require.True(t, ok)
	require.EqualValues(t, 0, id.Index)

	_, ok = parseInscriptionID("not-an-inscription-id")
	require.False(t, ok)
}

func TestReadMethodsAfterDeploy(t *testing.T) {
	e := openTestEngine(t)
	next, err := e.GetNextBlockHeight()
	require.NoError(t, err)
	require.NoError(t, e.Initialise(next, evmtypes.Hash{}, 42, 30_000_000))

	inscriptionID := "00000000000000000000000000000000000000000000000000000000000000aai0"
	receipt, err := e.AddTxToBlock(addr(1), nil, uint256.NewInt(0), deployCode, 42, evmtypes.Hash{}, 1_000_000, inscriptionID)
	require.NoError(t, err)
	contract := *receipt.ContractAddress
	require.NoError(t, e.FinaliseBlock(1000, 1))

	code, err := e.GetCode(contract)
	require.NoError(t, err)
	require.Len(t, code, 32)

	nonce, err := e.GetTransactionCount(addr(1))
	require.NoError(t, err)
	require.EqualValues(t, 1, nonce)

	balance, err := e.GetBalance(addr(2))
	require.NoError(t, err)
	require.True(t, balance.IsZero())

	block, _, ok, err := e.GetBlockByNumber(1, false)
	require.NoError(t, err)
	require.True(t, ok)

	byHash, txs, ok, err := e.GetBlockByHash(block.Hash, true)
	require.NoError(t, err)
	require.True(t, ok)
	require.EqualValues(t, 1, byHash.Number)
	require.Len(t, txs, 1)

	txHash := txs[0].Tx.Hash
	gotTx, blockNum, ok, err := e.GetTransactionByHash(txHash)
	require.NoError(t, err)
	require.True(t, ok)
	require.EqualValues(t, 1, blockNum)
	require.Equal(t, addr(1), gotTx.From)

	gotReceipt, blockNum, ok, err := e.GetTransactionReceipt(txHash)
	require.NoError(t, err)
	require.True(t, ok)
	require.EqualValues(t, 1, blockNum)
	require.EqualValues(t, 1, gotReceipt.Status)

	byID, _, ok, err := e.GetTransactionReceiptById(inscriptionID)
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, gotReceipt, byID)

	logs, err := e.GetLogs(0, 1, nil, nil)
	require.NoError(t, err)
	require.Empty(t, logs)

	gotID, ok, err := e.GetInscriptionIDByTxHash(txHash)
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, inscriptionID, gotID)

	gotID, ok, err = e.GetInscriptionIDByContractAddress(contract)
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, inscriptionID, gotID)

	_, ok, err = e.GetInscriptionIDByTxHash(evmtypes.Hash{9})
	require.NoError(t, err)
	require.False(t, ok)
}

func TestGetBRC20BalanceRequiresConfiguredIndexer(t *testing.T) {
	e := openTestEngine(t)
	_, err := e.GetBRC20Balance("76a914...", "ordi")
	require.Error(t, err)
}

type fakeBalanceIndexer struct{ balance *uint256.Int }

func (f fakeBalanceIndexer) GetBalance(pkscript, ticker string) (*uint256.Int, error) {
	return f.balance, nil
}

func TestGetBRC20BalancePassesThroughIndexer(t *testing.T) {
	env, err := storage.OpenWithTables(t.TempDir(), nil, kvschema.AllTables())
	require.NoError(t, err)
	t.Cleanup(func() { _ = env.Close() })
	e := New(env, Config{ChainID: 331337, MaxReorgHistorySize: 10, GasPerByte: 1},
		precompiles.Config{BalanceIndexer: fakeBalanceIndexer{balance: uint256.NewInt(1234)}})

	balance, err := e.GetBRC20Balance("76a914...", "ordi")
	require.NoError(t, err)
	require.Equal(t, uint256.NewInt(1234), balance)
}

func TestInitialiseRejectsAlreadyFinalisedHeight(t *testing.T) {
	e := openTestEngine(t)
	require.NoError(t, e.Initialise(1, evmtypes.Hash{}, 42, 30_000_000))
	require.NoError(t, e.FinaliseBlock(1000, 0))

	err := e.Initialise(1, evmtypes.Hash{}, 42, 30_000_000)
	require.ErrorIs(t, err, ErrBlockExists)
}

func TestReorgRejectsTooDeepTarget(t *testing.T) {
	e := openTestEngine(t)
	for i := 0; i < 3; i++ {
		require.NoError(t, e.MineBlocks(1, 42, 30_000_000))
	}
	height, err := e.GetLatestBlockHeight()
	require.NoError(t, err)
	require.EqualValues(t, 3, height)

	err = e.Reorg(0)
	require.NoError(t, err)

	for i := 0; i < 12; i++ {
		require.NoError(t, e.MineBlocks(1, 42, 30_000_000))
	}
	height, err = e.GetLatestBlockHeight()
	require.NoError(t, err)
	require.EqualValues(t, 12, height)

	err = e.Reorg(0)
	require.ErrorIs(t, err, ErrReorgTooDeep)
}

func TestFinaliseBlockRejectsMismatchedTxCount(t *testing.T) {
	e := openTestEngine(t)
	require.NoError(t, e.Initialise(1, evmtypes.Hash{}, 42, 30_000_000))

	_, err := e.AddTxToBlock(addr(1), nil, uint256.NewInt(0), deployCode, 42, evmtypes.Hash{}, 1_000_000, "")
	require.NoError(t, err)

	err = e.FinaliseBlock(1000, 0)
	require.Error(t, err)

	require.NoError(t, e.FinaliseBlock(1000, 1))
}
