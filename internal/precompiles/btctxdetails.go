package precompiles

import (
	"encoding/hex"
	"errors"
)

// btcTxDetailsPrecompile reads a confirmed Bitcoin transaction's full
// vin/vout detail, grounded on
// original_source/src/engine/precompiles/btc_tx_details_precompile.rs.
type btcTxDetailsPrecompile struct {
	rpc        BitcoinRPC
	gasPerCall uint64
}

func (p btcTxDetailsPrecompile) Run(call Call) Result {
	gasUsed := uint64(0)
	charge := func(n uint64) bool {
		if gasUsed+n > call.GasLimit {
			gasUsed = call.GasLimit
			return false
		}
		gasUsed += n
		return true
	}

	if p.rpc == nil {
		return Result{GasUsed: gasUsed, Err: errors.New("precompiles: no Bitcoin RPC client configured")}
	}

	if !charge(p.gasPerCall) {
		return Result{GasUsed: gasUsed, Err: errOutOfGas}
	}

	txidBytes, err := decodeGetTxDetailsParams(call.Input)
	if err != nil {
		return Result{GasUsed: gasUsed, Err: err}
	}

	tx, err := p.rpc.GetRawTransaction(hex.EncodeToString(reverse32(txidBytes)))
	if err != nil {
		return Result{GasUsed: gasUsed, Err: err}
	}

	if !charge(uint64(len(tx.Vin)) * p.gasPerCall) {
		return Result{GasUsed: gasUsed, Err: errOutOfGas}
	}

	if !tx.Confirmed {
		return Result{GasUsed: gasUsed, Err: errors.New("precompiles: transaction is not confirmed")}
	}
	height, err := p.rpc.GetBlockHeight(tx.BlockHash)
	if err != nil {
		return Result{GasUsed: gasUsed, Err: err}
	}
	if uint64(height) > call.BlockHeight {
		return Result{GasUsed: gasUsed, Err: errors.New("precompiles: transaction is in the future")}
	}

	var r txDetailsReturn
	r.BlockHeight = uint64(height)

	for _, vin := range tx.Vin {
		if vin.Txid == "" {
			return Result{GasUsed: gasUsed, Err: errors.New("precompiles: failed to get vin txid")}
		}
		vinTx, err := p.rpc.GetRawTransaction(vin.Txid)
		if err != nil {
			return Result{GasUsed: gasUsed, Err: err}
		}
		if int(vin.Vout) >= len(vinTx.Vout) {
			return Result{GasUsed: gasUsed, Err: errors.New("precompiles: vin vout out of bounds")}
		}
		spent := vinTx.Vout[vin.Vout]

		var txidWord [32]byte
		if raw, err := hex.DecodeString(vin.Txid); err == nil {
			copy(txidWord[:], reverse(raw))
		}
		r.VinTxids = append(r.VinTxids, txidWord)
		r.VinVouts = append(r.VinVouts, uint64(vin.Vout))
		r.VinScriptPubKeys = append(r.VinScriptPubKeys, spent.ScriptPubKey)
		r.VinValues = append(r.VinValues, uint64(spent.ValueSats))
	}

	for _, vout := range tx.Vout {
		r.VoutScriptPubKeys = append(r.VoutScriptPubKeys, vout.ScriptPubKey)
		r.VoutValues = append(r.VoutValues, uint64(vout.ValueSats))
	}

	return Result{Output: encodeGetTxDetailsReturn(r), GasUsed: gasUsed}
}
