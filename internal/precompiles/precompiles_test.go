package precompiles

import (
	"testing"

	"github.com/holiman/uint256"
	"github.com/stretchr/testify/require"

	"github.com/erigontech/brc20-prog/internal/evmtypes"
)

func TestCurrentTxIDRoundTrip(t *testing.T) {
	txid := evmtypes.Hash{1, 2, 3}
	p := currentTxIDPrecompile{}
	res := p.Run(Call{GasLimit: 10000, TxID: txid, TxVoutIndex: 7})
	require.NoError(t, res.Err)

	gotTxid, err := readBytes32(res.Output, 0)
	require.NoError(t, err)
	require.Equal(t, [32]byte(txid), gotTxid)

	vout, err := readUint256(res.Output, 32)
	require.NoError(t, err)
	require.EqualValues(t, 7, vout.Uint64())
}

func TestCurrentTxIDOutOfGas(t *testing.T) {
	p := currentTxIDPrecompile{}
	res := p.Run(Call{GasLimit: 1})
	require.Error(t, res.Err)
}

func TestGetLockedPkscriptParamRoundTrip(t *testing.T) {
	var buf []byte
	buf = appendUint256(buf, 64)
	buf = appendUint256(buf, 6)
	buf = appendDynamicBytes(buf, []byte("tb1qexampleaddress"))

	pkscript, count, err := decodeGetLockedPkscriptParams(buf)
	require.NoError(t, err)
	require.Equal(t, "tb1qexampleaddress", pkscript)
	require.EqualValues(t, 6, count)
}

func TestGetLastSatLocationReturnRoundTrip(t *testing.T) {
	var txid [32]byte
	txid[0] = 0xaa
	out := encodeGetLastSatLocationReturn(txid, 19, 100, []byte{0x51, 0x20}, []byte{0x00, 0x14})

	gotTxid, err := readBytes32(out, 0)
	require.NoError(t, err)
	require.Equal(t, txid, gotTxid)

	vout, err := readUint256(out, 32)
	require.NoError(t, err)
	require.EqualValues(t, 19, vout.Uint64())

	sat, err := readUint256(out, 64)
	require.NoError(t, err)
	require.EqualValues(t, 100, sat.Uint64())

	old, err := readDynamicBytes(out, 96)
	require.NoError(t, err)
	require.Equal(t, []byte{0x51, 0x20}, old)

	newer, err := readDynamicBytes(out, 128)
	require.NoError(t, err)
	require.Equal(t, []byte{0x00, 0x14}, newer)
}

type fakeBitcoinRPC struct {
	txs     map[string]*RawTransaction
	heights map[string]int
}

func (f *fakeBitcoinRPC) GetRawTransaction(txid string) (*RawTransaction, error) {
	tx, ok := f.txs[txid]
	if !ok {
		return nil, errOutOfGas // any error sentinel is fine for this stub
	}
	return tx, nil
}

func (f *fakeBitcoinRPC) GetBlockHeight(blockHash string) (int, error) {
	return f.heights[blockHash], nil
}

func TestLastSatLocationSimpleCase(t *testing.T) {
	rpc := &fakeBitcoinRPC{
		txs: map[string]*RawTransaction{
			"00000000000000000000000000000000000000000000000000000000000000aa": {
				Confirmed: true,
				BlockHash: "block1",
				Vin: []RawVin{
					{Txid: "00000000000000000000000000000000000000000000000000000000000000bb", Vout: 0},
				},
				Vout: []RawVout{
					{ValueSats: 1000, ScriptPubKey: []byte{0x00, 0x14}},
				},
			},
			"00000000000000000000000000000000000000000000000000000000000000bb": {
				Confirmed: true,
				BlockHash: "block0",
				Vin:       []RawVin{{Txid: "parent"}},
				Vout: []RawVout{
					{ValueSats: 2000, ScriptPubKey: []byte{0x51, 0x20}},
				},
			},
		},
		heights: map[string]int{"block1": 5, "block0": 4},
	}

	var txidParam [32]byte
	txidParam[0] = 0xaa // reverse of the "...aa" txid above

	var input []byte
	input = appendWord(input, txidParam)
	input = appendUint256(input, 0)
	input = appendUint256(input, 100)

	p := lastSatLocationPrecompile{rpc: rpc, gasPerCall: 100}
	res := p.Run(Call{Input: input, GasLimit: 10000, BlockHeight: 10})
	require.NoError(t, res.Err)
	require.Equal(t, uint64(200), res.GasUsed)
}

func TestBrc20BalancePrecompile(t *testing.T) {
	client := fakeBalanceIndexer{balance: uint256.NewInt(42)}
	p := brc20BalancePrecompile{client: client}

	var input []byte
	input = appendUint256(input, 64)
	input = appendUint256(input, 128)
	input = appendDynamicBytes(input, []byte("bc1qpk"))
	input = appendDynamicBytes(input, []byte("ORDI"))

	res := p.Run(Call{Input: input, GasLimit: 100000})
	require.NoError(t, res.Err)

	got, err := readUint256(res.Output, 0)
	require.NoError(t, err)
	require.EqualValues(t, 42, got.Uint64())
}

type fakeBalanceIndexer struct{ balance *uint256.Int }

func (f fakeBalanceIndexer) GetBalance(pkscript, ticker string) (*uint256.Int, error) {
	return f.balance, nil
}
