package precompiles

// gasCurrentTxID is a flat, argument-independent charge like the other
// non-RPC precompiles in original_source/src/evm/precompiles.
const gasCurrentTxID = 100

// currentTxIDPrecompile exposes the Bitcoin txid/vout of the inscription
// that triggered the currently executing call. Not present in the older
// src/evm/precompiles/precompiles.rs five-entry table, added per
// SPEC_FULL's "sixth precompile" resolution (see DESIGN.md open question
// #3); the engine passes the triggering inscription id's txid to
// evmadapter.SetCurrentTx (with vout 0), and evmadapter populates
// Call.TxID/TxVoutIndex from it before dispatch, so this precompile itself
// does no decoding.
type currentTxIDPrecompile struct{}

func (currentTxIDPrecompile) Run(call Call) Result {
	if call.GasLimit < gasCurrentTxID {
		return Result{GasUsed: call.GasLimit, Err: errOutOfGas}
	}
	return Result{
		Output:  encodeCurrentTxIDReturn(call.TxID, call.TxVoutIndex),
		GasUsed: gasCurrentTxID,
	}
}
