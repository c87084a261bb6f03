package precompiles

import (
	"errors"

	"github.com/btcsuite/btcd/btcec/v2"
	"github.com/btcsuite/btcd/btcutil"
	"github.com/btcsuite/btcd/txscript"
)

const gasLockedPkscript = 20000

// unspendableInternalKey matches original_source's hard-coded NUMS point,
// used as the Taproot internal key so the script path is the only way to
// spend the locked output.
var unspendableInternalKey = mustParsePubKey(
	"50929b74c1a04954b78b4b6035e97a5e078a5a0f28ec96d547bfee9ace803ac0",
)

func mustParsePubKey(hexKey string) *btcec.PublicKey {
	// NUMS points are 32-byte x-only coordinates; prefixing 0x02 selects
	// the even-y representative, same as rust-bitcoin's UntweakedPublicKey.
	raw, err := decodeHexStrict(hexKey)
	if err != nil {
		panic(err)
	}
	pub, err := btcec.ParsePubKey(append([]byte{0x02}, raw...))
	if err != nil {
		panic(err)
	}
	return pub
}

// lockedPkscriptPrecompile builds a Taproot address that can only be spent
// by pkscript's owner, after lockBlockCount confirmations
// (OP_CHECKSEQUENCEVERIFY), grounded on
// original_source/src/evm/precompiles/get_locked_pkscript_precompile.rs.
type lockedPkscriptPrecompile struct {
	network BitcoinNetwork
}

func (p lockedPkscriptPrecompile) Run(call Call) Result {
	if call.GasLimit < gasLockedPkscript {
		return Result{GasUsed: call.GasLimit, Err: errOutOfGas}
	}

	pkscript, lockBlockCount, err := decodeGetLockedPkscriptParams(call.Input)
	if err != nil {
		return Result{GasUsed: gasLockedPkscript, Err: err}
	}
	if lockBlockCount == 0 || lockBlockCount > 65535 {
		return Result{GasUsed: gasLockedPkscript, Err: errors.New("precompiles: invalid lock block count")}
	}

	addr, err := p.lockedTaprootAddress(pkscript, lockBlockCount)
	if err != nil {
		return Result{GasUsed: gasLockedPkscript, Err: err}
	}

	return Result{Output: encodeGetLockedPkscriptReturn(addr), GasUsed: gasLockedPkscript}
}

func (p lockedPkscriptPrecompile) lockedTaprootAddress(pkscript string, lockBlockCount uint32) (string, error) {
	params := p.network.Params()
	spenderAddr, err := btcutil.DecodeAddress(pkscript, params)
	if err != nil {
		return "", errors.New("precompiles: invalid pkscript address")
	}
	spenderScript, err := txscript.PayToAddrScript(spenderAddr)
	if err != nil {
		return "", err
	}

	leafScript, err := buildLockScript(spenderScript, lockBlockCount)
	if err != nil {
		return "", err
	}

	leaf := txscript.NewBaseTapLeaf(leafScript)
	tree := txscript.AssembleTaprootScriptTree(leaf)
	rootHash := tree.RootNode.TapHash()
	outputKey := txscript.ComputeTaprootOutputKey(unspendableInternalKey, rootHash[:])

	taprootAddr, err := btcutil.NewAddressTaproot(
		schnorrSerialize(outputKey), params,
	)
	if err != nil {
		return "", err
	}
	return taprootAddr.EncodeAddress(), nil
}

// buildLockScript reproduces build_lock_script's minimal-push CSV encoding:
// <lock_block_count> OP_CSV OP_DROP <32-byte-x-only-pubkey> OP_CHECKSIG.
func buildLockScript(spenderScript []byte, lockBlockCount uint32) ([]byte, error) {
	// spenderScript is a P2TR/P2WPKH-style script; the last 32 bytes of a
	// witness program carry the key this locked output ultimately checks
	// against, matching the Rust helper's `pubkey.to_bytes()[2..]` slice.
	if len(spenderScript) < 32 {
		return nil, errors.New("precompiles: pkscript too short for a witness pubkey")
	}
	pubkeyBytes := spenderScript[len(spenderScript)-32:]

	builder := txscript.NewScriptBuilder()
	builder.AddInt64(int64(lockBlockCount))
	builder.AddOp(txscript.OP_CHECKSEQUENCEVERIFY)
	builder.AddOp(txscript.OP_DROP)
	builder.AddData(pubkeyBytes)
	builder.AddOp(txscript.OP_CHECKSIG)
	return builder.Script()
}

// schnorrSerialize returns the 32-byte x-only serialization Taproot output
// keys use.
func schnorrSerialize(pub *btcec.PublicKey) []byte {
	return btcec.NewPublicKey(pub.X(), pub.Y()).SerializeCompressed()[1:]
}

var errOutOfGas = errors.New("precompiles: out of gas")

func decodeHexStrict(s string) ([]byte, error) {
	return hexDecode(s)
}
