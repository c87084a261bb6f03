package precompiles

import (
	"encoding/hex"
	"errors"
)

// lastSatLocationPrecompile walks a Bitcoin transaction's vin chain to find
// where a given satoshi, identified by (txid, vout, offset-into-vout), was
// last moved from — grounded on
// original_source/src/engine/precompiles/btc_last_sat_loc_precompile.rs.
type lastSatLocationPrecompile struct {
	rpc        BitcoinRPC
	gasPerCall uint64
}

func (p lastSatLocationPrecompile) Run(call Call) Result {
	gasUsed := uint64(0)
	charge := func(n uint64) bool {
		if gasUsed+n > call.GasLimit {
			gasUsed = call.GasLimit
			return false
		}
		gasUsed += n
		return true
	}

	txid, vout, sat, err := decodeGetLastSatLocationParams(call.Input)
	if err != nil {
		return Result{GasUsed: gasUsed, Err: err}
	}

	if p.rpc == nil {
		return Result{GasUsed: gasUsed, Err: errors.New("precompiles: no Bitcoin RPC client configured")}
	}

	if !charge(p.gasPerCall) {
		return Result{GasUsed: gasUsed, Err: errOutOfGas}
	}

	tx, err := p.rpc.GetRawTransaction(hex.EncodeToString(reverse32(txid)))
	if err != nil {
		return Result{GasUsed: gasUsed, Err: err}
	}
	if !tx.Confirmed {
		return Result{GasUsed: gasUsed, Err: errors.New("precompiles: failed to get block height")}
	}
	height, err := p.rpc.GetBlockHeight(tx.BlockHash)
	if err != nil {
		return Result{GasUsed: gasUsed, Err: err}
	}
	if uint64(height) > call.BlockHeight {
		return Result{GasUsed: gasUsed, Err: errors.New("precompiles: transaction is in the future")}
	}
	if tx.IsCoinbase() {
		return Result{GasUsed: gasUsed, Err: errors.New("precompiles: coinbase transactions are not supported")}
	}
	if len(tx.Vin) == 0 {
		return Result{GasUsed: gasUsed, Err: errors.New("precompiles: no vin found")}
	}
	if int(vout) >= len(tx.Vout) {
		return Result{GasUsed: gasUsed, Err: errors.New("precompiles: vout index out of bounds")}
	}
	target := tx.Vout[vout]
	if uint64(target.ValueSats) < sat {
		return Result{GasUsed: gasUsed, Err: errors.New("precompiles: sat value out of bounds")}
	}
	newPkscript := target.ScriptPubKey

	var totalOut uint64
	for i := 0; i < int(vout); i++ {
		totalOut += uint64(tx.Vout[i].ValueSats)
	}
	totalOut += sat

	var totalIn uint64
	var resultTxid string
	var resultVout uint32
	var oldPkscript []byte
	var currentInValue uint64

	for i, vin := range tx.Vin {
		if vin.Txid == "" {
			return Result{GasUsed: gasUsed, Err: errors.New("precompiles: failed to get vin txid")}
		}
		if !charge(p.gasPerCall) {
			return Result{GasUsed: gasUsed, Err: errOutOfGas}
		}
		vinTx, err := p.rpc.GetRawTransaction(vin.Txid)
		if err != nil {
			return Result{GasUsed: gasUsed, Err: err}
		}
		if int(vin.Vout) >= len(vinTx.Vout) {
			return Result{GasUsed: gasUsed, Err: errors.New("precompiles: failed to get vin vout")}
		}
		spentOutput := vinTx.Vout[vin.Vout]
		currentInValue = uint64(spentOutput.ValueSats)
		oldPkscript = spentOutput.ScriptPubKey
		resultTxid = vin.Txid
		resultVout = vin.Vout

		totalIn += currentInValue
		if totalIn >= totalOut || i == len(tx.Vin)-1 {
			break
		}
	}

	if totalIn < totalOut {
		return Result{GasUsed: gasUsed, Err: errors.New("precompiles: insufficient satoshis in vin")}
	}

	var resultTxidBytes [32]byte
	if raw, err := hex.DecodeString(resultTxid); err == nil {
		copy(resultTxidBytes[:], reverse(raw))
	}

	return Result{
		Output: encodeGetLastSatLocationReturn(
			resultTxidBytes, uint64(resultVout), totalOut-(totalIn-currentInValue),
			oldPkscript, newPkscript,
		),
		GasUsed: gasUsed,
	}
}

func reverse32(b [32]byte) []byte {
	out := make([]byte, 32)
	for i := range b {
		out[31-i] = b[i]
	}
	return out
}

func reverse(b []byte) []byte {
	out := make([]byte, len(b))
	for i, v := range b {
		out[len(b)-1-i] = v
	}
	return out
}
