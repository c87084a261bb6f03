// Package engine drives one BRC20ProgEngine: the single write path that
// every inscription-triggered call, mined block, and reorg passes through.
// Grounded on original_source/src/engine/engine.rs's Engine struct and its
// SharedData<DB>/SharedData<InProgressBlock> split — here represented as
// two independently lockable fields on the same struct, since Go doesn't
// need a generic wrapper type to get the same "read lock for point lookups,
// write lock for the call that's currently running" behavior.
package engine

import (
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"sync"

	"github.com/holiman/uint256"
	"golang.org/x/sync/errgroup"

	"github.com/erigontech/brc20-prog/internal/bnum"
	"github.com/erigontech/brc20-prog/internal/evmadapter"
	"github.com/erigontech/brc20-prog/internal/evmtypes"
	"github.com/erigontech/brc20-prog/internal/pendingpool"
	"github.com/erigontech/brc20-prog/internal/precompiles"
	"github.com/erigontech/brc20-prog/internal/statestore"
	"github.com/erigontech/brc20-prog/internal/storage"
	"github.com/erigontech/brc20-prog/internal/vm"
)

// Sentinel errors the RPC layer maps onto specific JSON-RPC error codes
// (SPEC_FULL §7), rather than a bare generic-server-error for everything.
var (
	// ErrBlockExists is returned by Initialise when a block has already
	// been finalised at the requested height.
	ErrBlockExists = errors.New("engine: block already exists at this height")
	// ErrOutOfOrderTx is returned when a transaction's nonce is behind the
	// account's current nonce (a stale resubmission, not an ahead-of-order
	// one, which is instead held in the pending pool).
	ErrOutOfOrderTx = errors.New("engine: transaction nonce is behind the account's current nonce")
	// ErrReorgTooDeep is returned when a requested reorg target is more
	// than Config.MaxReorgHistorySize blocks behind the current tip.
	ErrReorgTooDeep = errors.New("engine: reorg target exceeds max reorg history size")
)

// Config carries the subset of internal/config.Config the engine itself
// consults; kept narrow so this package never needs to import the CLI/env
// flag layer.
type Config struct {
	ChainID              uint64
	MaxReorgHistorySize  uint64
	GasPerByte           uint64
	GasPerBitcoinRPCCall uint64
	MaxBlockSize         uint64
	EVMRecordTraces      bool
}

// inProgressBlock accumulates the transactions and running totals for the
// block currently being built, mirroring engine.rs's InProgressBlock.
type inProgressBlock struct {
	number     uint64
	parentHash evmtypes.Hash
	timestamp  uint64
	gasLimit   uint64
	txs        statestore.BlockTxList
	gasUsed    uint64
}

// BRC20ProgEngine is the top-level orchestrator: one statestore, one
// pending-pool, one in-progress block, one set of precompiles, all guarded
// by a pair of RWMutexes so read-only JSON-RPC methods never block on a
// write that is mid-flight.
type BRC20ProgEngine struct {
	cfg Config
	env *storage.Env

	storeMu sync.RWMutex
	store   *statestore.StateStore

	blockMu sync.RWMutex
	block   *inProgressBlock

	pool        *pendingpool.Pool
	precompiles map[precompiles.Address]precompiles.Precompile

	// balanceIndexer backs the brc20_balance RPC passthrough; nil if the
	// deployment never configured one (the BRC20Balance precompile then
	// fails its own calls the same way).
	balanceIndexer precompiles.BalanceIndexerClient
}

// New builds an engine over env with no in-progress block; call Initialise
// or AddTxToBlock to start one.
func New(env *storage.Env, cfg Config, precompileCfg precompiles.Config) *BRC20ProgEngine {
	return &BRC20ProgEngine{
		cfg:            cfg,
		env:            env,
		store:          statestore.New(),
		pool:           pendingpool.New(cfg.MaxReorgHistorySize),
		precompiles:    precompiles.Registry(precompileCfg),
		balanceIndexer: precompileCfg.BalanceIndexer,
	}
}

// substituteBlockHash replaces an all-zero Bitcoin block hash (an indexer
// that hasn't assigned one yet, or doesn't track them) with a
// deterministic placeholder carrying the block height plus one, big-endian,
// in its low bytes, so every block (block 0 included) still gets a distinct,
// non-zero chain-link hash. Supplements the distilled spec: the rule is only
// visible in original_source's handling of callers that never pass a
// genuine Bitcoin block hash.
func substituteBlockHash(h evmtypes.Hash, height uint64) evmtypes.Hash {
	if h != (evmtypes.Hash{}) {
		return h
	}
	var out evmtypes.Hash
	v := height + 1
	for i := 0; i < 8; i++ {
		out[31-i] = byte(v >> (8 * i))
	}
	return out
}

// Config returns the configuration this engine was built with, for callers
// (e.g. internal/rpc's eth_chainId handler) that need a field of it without
// reaching into the engine's internals.
func (e *BRC20ProgEngine) Config() Config {
	return e.cfg
}

// GetLatestBlockHeight returns the highest finalised block number, or 0 if
// none has been finalised yet.
func (e *BRC20ProgEngine) GetLatestBlockHeight() (uint64, error) {
	e.storeMu.RLock()
	defer e.storeMu.RUnlock()
	var number uint64
	err := e.env.View(func(tx *storage.Tx) error {
		n, ok, err := e.store.LatestBlockNumber(tx)
		if err != nil {
			return err
		}
		if ok {
			number = n
		}
		return nil
	})
	return number, err
}

// GetNextBlockHeight returns the block number a newly admitted transaction
// would be included in.
func (e *BRC20ProgEngine) GetNextBlockHeight() (uint64, error) {
	e.blockMu.RLock()
	if e.block != nil {
		defer e.blockMu.RUnlock()
		return e.block.number, nil
	}
	e.blockMu.RUnlock()

	latest, err := e.GetLatestBlockHeight()
	if err != nil {
		return 0, err
	}
	return latest + 1, nil
}

// Initialise resets the in-progress block accumulator to begin block
// number height, with the given (possibly zero-substituted) Bitcoin block
// hash and mine timestamp. Called once before the first block is built, or
// by MineBlocks between synthesized empty blocks. Returns ErrBlockExists if
// height has already been finalised.
func (e *BRC20ProgEngine) Initialise(height uint64, blockHash evmtypes.Hash, timestamp uint64, gasLimit uint64) error {
	e.storeMu.RLock()
	var exists bool
	err := e.env.View(func(tx *storage.Tx) error {
		_, ok, err := e.store.GetBlockByNumber(tx, height)
		exists = ok
		return err
	})
	e.storeMu.RUnlock()
	if err != nil {
		return err
	}
	if exists {
		return ErrBlockExists
	}

	e.blockMu.Lock()
	defer e.blockMu.Unlock()
	e.block = &inProgressBlock{
		number:     height,
		parentHash: substituteBlockHash(blockHash, height),
		timestamp:  timestamp,
		gasLimit:   gasLimit,
	}
	return nil
}

// MineBlocks synthesizes count empty blocks starting at the next height,
// each with no transactions, advancing the chain without any EVM
// execution — used by indexers replaying Bitcoin blocks that carried no
// BRC20 inscriptions.
func (e *BRC20ProgEngine) MineBlocks(count uint64, timestamp uint64, gasLimit uint64) error {
	for i := uint64(0); i < count; i++ {
		next, err := e.GetNextBlockHeight()
		if err != nil {
			return err
		}
		if err := e.Initialise(next, evmtypes.Hash{}, timestamp, gasLimit); err != nil {
			return err
		}
		if err := e.FinaliseBlock(timestamp, 0); err != nil {
			return err
		}
	}
	return nil
}

// ensureBlock lazily starts block 1 (or the next height) if nothing has
// called Initialise yet, matching engine.rs's auto-initialise-on-first-tx
// behavior.
func (e *BRC20ProgEngine) ensureBlock(timestamp uint64, blockHash evmtypes.Hash, gasLimit uint64) error {
	e.blockMu.RLock()
	started := e.block != nil
	e.blockMu.RUnlock()
	if started {
		return nil
	}
	next, err := e.GetNextBlockHeight()
	if err != nil {
		return err
	}
	return e.Initialise(next, blockHash, timestamp, gasLimit)
}

// AddRawTxToBlock decodes raw as a legacy transaction, recovers its sender,
// and admits it: stale (nonce behind) is rejected, ahead-of-current is
// held in the pending pool, and exactly-current triggers execution
// followed by draining any now-contiguous successors out of the pool into
// the same block, per SPEC_FULL §4.8/§4.9.
func (e *BRC20ProgEngine) AddRawTxToBlock(raw []byte, timestamp uint64, blockHash evmtypes.Hash, txIndex uint32, inscriptionID string, inscriptionByteLen uint64) ([]statestore.Receipt, error) {
	if err := e.ensureBlock(timestamp, blockHash, 0); err != nil {
		return nil, err
	}

	decoded, err := pendingpool.DecodeLegacyTx(raw, e.cfg.ChainID)
	if err != nil {
		return nil, err
	}

	currentNonce, err := e.accountNonce(decoded.From)
	if err != nil {
		return nil, err
	}

	if decoded.Nonce < currentNonce {
		return nil, fmt.Errorf("%w: nonce %d for %s, current is %d", ErrOutOfOrderTx, decoded.Nonce, decoded.From, currentNonce)
	}
	if decoded.Nonce > currentNonce {
		e.pool.Put(decoded, e.currentBlockNumber())
		return nil, nil
	}

	gasLimit, err := gasLimitForInscription(inscriptionByteLen, e.cfg.GasPerByte)
	if err != nil {
		return nil, err
	}

	var receipts []statestore.Receipt
	rc, err := e.executeAndRecord(decoded, gasLimit, inscriptionID)
	if err != nil {
		return nil, err
	}
	receipts = append(receipts, rc)

	nextNonce := decoded.Nonce + 1
	for _, held := range e.pool.DrainContiguous(decoded.From, nextNonce) {
		heldGasLimit, err := gasLimitForInscription(uint64(len(held.Raw)), e.cfg.GasPerByte)
		if err != nil {
			return receipts, err
		}
		rc, err := e.executeAndRecord(held, heldGasLimit, "")
		if err != nil {
			return receipts, err
		}
		receipts = append(receipts, rc)
	}

	return receipts, nil
}

// AddTxToBlock executes a single call directly, bypassing the pending pool
// and RLP decode path — used for synthetic/bridge transactions the indexer
// already knows the sender, nonce, and calldata of (e.g. brc20_call).
func (e *BRC20ProgEngine) AddTxToBlock(from evmtypes.Address, to *evmtypes.Address, value *uint256.Int, data []byte, timestamp uint64, blockHash evmtypes.Hash, gasLimit uint64, inscriptionID string) (statestore.Receipt, error) {
	if err := e.ensureBlock(timestamp, blockHash, gasLimit); err != nil {
		return statestore.Receipt{}, err
	}
	tx := &pendingpool.Tx{From: from, To: to, Value: value, GasLimit: gasLimit, Data: data}
	return e.executeAndRecord(tx, gasLimit, inscriptionID)
}

// DecodeRawTxBatch RLP-decodes and recovers the sender of every raw
// transaction in raws concurrently, one goroutine per tx. A Bitcoin block
// can carry many inscriptions at once, and ECDSA recovery is the expensive
// part of decoding a legacy transaction; fanning that out mirrors how
// go-ethereum's block processor parallelizes per-transaction work ahead of
// the necessarily-sequential execution step. The result slice preserves
// raws' order so callers can feed it straight into AddRawTxToBlock in
// sequence. Returns the first decode error encountered, if any.
func (e *BRC20ProgEngine) DecodeRawTxBatch(raws [][]byte) ([]*pendingpool.Tx, error) {
	decoded := make([]*pendingpool.Tx, len(raws))
	var eg errgroup.Group
	for i, raw := range raws {
		i, raw := i, raw
		eg.Go(func() error {
			tx, err := pendingpool.DecodeLegacyTx(raw, e.cfg.ChainID)
			if err != nil {
				return fmt.Errorf("tx %d: %w", i, err)
			}
			decoded[i] = tx
			return nil
		})
	}
	if err := eg.Wait(); err != nil {
		return nil, err
	}
	return decoded, nil
}

// gasLimitForInscription multiplies an inscription's byte length by the
// configured per-byte gas cost, rejecting the rare but attacker-reachable
// case where that product overflows a uint64 rather than silently
// wrapping around to a tiny gas limit.
func gasLimitForInscription(byteLen uint64, gasPerByte uint64) (uint64, error) {
	limit, overflow := bnum.SafeMul(byteLen, gasPerByte)
	if overflow {
		return 0, fmt.Errorf("engine: gas limit for %d bytes at %d gas/byte overflows uint64", byteLen, gasPerByte)
	}
	return limit, nil
}

func (e *BRC20ProgEngine) accountNonce(addr evmtypes.Address) (uint64, error) {
	e.storeMu.RLock()
	defer e.storeMu.RUnlock()
	var nonce uint64
	err := e.env.View(func(tx *storage.Tx) error {
		acct, _, err := e.store.Basic(tx, addr)
		if err != nil {
			return err
		}
		nonce = acct.Nonce
		return nil
	})
	return nonce, err
}

func (e *BRC20ProgEngine) currentBlockNumber() uint64 {
	e.blockMu.RLock()
	defer e.blockMu.RUnlock()
	if e.block == nil {
		return 0
	}
	return e.block.number
}

// executeAndRecord runs one transaction to completion against the engine's
// store (committing state as it goes, the execute-and-commit call shape
// from SPEC_FULL §4.7.1), appends it to the in-progress block, and returns
// its receipt.
func (e *BRC20ProgEngine) executeAndRecord(t *pendingpool.Tx, gasLimit uint64, inscriptionID string) (statestore.Receipt, error) {
	e.storeMu.Lock()
	defer e.storeMu.Unlock()
	e.blockMu.Lock()
	defer e.blockMu.Unlock()

	if e.block == nil {
		return statestore.Receipt{}, fmt.Errorf("engine: no in-progress block")
	}

	var receipt statestore.Receipt
	err := e.env.Update(func(tx *storage.Tx) error {
		acct, _, err := e.store.Basic(tx, t.From)
		if err != nil {
			return err
		}

		block := vm.BlockContext{
			Coinbase:  evmtypes.Address{},
			Number:    e.block.number,
			Timestamp: e.block.timestamp,
			GasLimit:  e.block.gasLimit,
			ChainID:   e.cfg.ChainID,
			BaseFee:   uint256.NewInt(0),
		}
		txCtx := vm.TxContext{Origin: t.From, GasPrice: uint256.NewInt(0)}

		adapter := evmadapter.New(e.store, tx, block, txCtx, e.precompiles, true)
		if id, ok := parseInscriptionID(inscriptionID); ok {
			adapter.SetCurrentTx(id.TxID, 0)
		}
		if e.cfg.EVMRecordTraces {
			adapter.EnableTrace()
		}

		value := t.Value
		if value == nil {
			value = uint256.NewInt(0)
		}
		result := adapter.Execute(t.From, t.To, value, t.Data, gasLimit)

		var traceJSON []byte
		if e.cfg.EVMRecordTraces {
			if encoded, err := json.Marshal(adapter.Trace()); err == nil {
				traceJSON = encoded
			}
		}

		acct.Nonce++
		if err := e.store.SetAccount(tx, e.block.number, t.From, acct); err != nil {
			return err
		}

		status := uint8(1)
		if result.Err != nil {
			status = 0
		}

		var contractAddr *evmtypes.Address
		if t.To == nil && result.Err == nil {
			contractAddr = adapter.CreatedContract()
			if contractAddr != nil && inscriptionID != "" {
				if id, ok := parseInscriptionID(inscriptionID); ok {
					if err := e.store.LinkInscription(tx, e.block.number, id, *contractAddr); err != nil {
						return err
					}
				}
			}
		}

		receipt = statestore.Receipt{
			Status:          status,
			GasUsed:         result.GasUsed,
			ContractAddress: contractAddr,
			Logs:            adapter.Logs(),
		}
		receipt.CumulativeGasUsed = e.block.gasUsed + result.GasUsed
		e.block.gasUsed += result.GasUsed

		rec := statestore.TxRecord{
			Tx: statestore.Tx{
				Hash:     t.Hash,
				From:     t.From,
				To:       t.To,
				Nonce:    t.Nonce,
				GasLimit: gasLimit,
				Value:    *value,
				Data:     t.Data,
			},
			Receipt:       receipt,
			Trace:         traceJSON,
			InscriptionID: inscriptionID,
		}
		e.block.txs = append(e.block.txs, rec)

		return e.store.CommitToDB(tx)
	})
	return receipt, err
}

// parseInscriptionID splits "<64-hex-txid>i<index>" into its components.
func parseInscriptionID(s string) (statestore.InscriptionID, bool) {
	if len(s) < 66 || s[64] != 'i' {
		return statestore.InscriptionID{}, false
	}
	txidBytes, err := hex.DecodeString(s[:64])
	if err != nil || len(txidBytes) != 32 {
		return statestore.InscriptionID{}, false
	}
	index, err := strconv.ParseUint(s[65:], 10, 32)
	if err != nil {
		return statestore.InscriptionID{}, false
	}
	return statestore.InscriptionID{TxID: evmtypes.BytesToHash(txidBytes), Index: uint32(index)}, true
}

// formatInscriptionID is parseInscriptionID's inverse: "<64-hex-txid>i<index>".
func formatInscriptionID(id statestore.InscriptionID) string {
	return hex.EncodeToString(id.TxID[:]) + "i" + strconv.FormatUint(uint64(id.Index), 10)
}

// FinaliseBlock writes the in-progress block's header and resets the
// accumulator, then evicts any pending-pool entries that have aged past
// MaxReorgHistorySize blocks. blockTxCount must equal the number of
// transactions accumulated into the in-progress block (waiting_tx_count);
// a mismatch means the caller's view of the block disagrees with the
// engine's and the finalise is rejected rather than silently truncating
// or padding the block.
func (e *BRC20ProgEngine) FinaliseBlock(mineTimestampNanos uint64, blockTxCount uint64) error {
	e.storeMu.Lock()
	defer e.storeMu.Unlock()
	e.blockMu.Lock()
	defer e.blockMu.Unlock()

	if e.block == nil {
		return fmt.Errorf("engine: no in-progress block to finalise")
	}
	b := e.block

	if uint64(len(b.txs)) != blockTxCount {
		return fmt.Errorf("engine: finalise block tx count %d does not match the %d transactions accumulated for block %d", blockTxCount, len(b.txs), b.number)
	}

	err := e.env.Update(func(tx *storage.Tx) error {
		if _, err := e.store.GenerateBlock(tx, b.number, b.parentHash, b.timestamp, mineTimestampNanos, b.gasLimit, b.txs); err != nil {
			return err
		}
		return e.store.CommitToDB(tx)
	})
	if err != nil {
		return err
	}

	e.pool.EvictStale(b.number)
	e.block = nil
	return nil
}

// ReadContract runs a dry-run call (SPEC_FULL §4.7.3): state writes never
// reach the store.
func (e *BRC20ProgEngine) ReadContract(from evmtypes.Address, to *evmtypes.Address, value *uint256.Int, data []byte, gasLimit uint64) (evmadapter.ExecutionResult, error) {
	e.storeMu.RLock()
	defer e.storeMu.RUnlock()
	e.blockMu.RLock()
	number := uint64(0)
	timestamp := uint64(0)
	if e.block != nil {
		number = e.block.number
		timestamp = e.block.timestamp
	}
	e.blockMu.RUnlock()

	var result evmadapter.ExecutionResult
	err := e.env.View(func(tx *storage.Tx) error {
		block := vm.BlockContext{Number: number, Timestamp: timestamp, ChainID: e.cfg.ChainID, BaseFee: uint256.NewInt(0)}
		txCtx := vm.TxContext{Origin: from, GasPrice: uint256.NewInt(0)}
		adapter := evmadapter.New(e.store, tx, block, txCtx, e.precompiles, false)
		if value == nil {
			value = uint256.NewInt(0)
		}
		result = adapter.Execute(from, to, value, data, gasLimit)
		return nil
	})
	return result, err
}

// GetStorageAt returns contract addr's slot, or the zero value if never
// written.
func (e *BRC20ProgEngine) GetStorageAt(addr evmtypes.Address, slot evmtypes.Hash) (evmtypes.Hash, error) {
	e.storeMu.RLock()
	defer e.storeMu.RUnlock()
	var out evmtypes.Hash
	err := e.env.View(func(tx *storage.Tx) error {
		v, _, err := e.store.Storage(tx, addr, slot)
		out = v
		return err
	})
	return out, err
}

// GetBalance returns addr's current balance, or zero if the account has
// never been touched.
func (e *BRC20ProgEngine) GetBalance(addr evmtypes.Address) (uint256.Int, error) {
	e.storeMu.RLock()
	defer e.storeMu.RUnlock()
	var out uint256.Int
	err := e.env.View(func(tx *storage.Tx) error {
		acct, _, err := e.store.Basic(tx, addr)
		out = acct.Balance
		return err
	})
	return out, err
}

// AdjustBalance credits (or, when credit is false, debits) addr's native
// balance by amount directly, bypassing EVM execution entirely. This is the
// engine-side half of the brc20_deposit/brc20_withdraw bridge: those calls
// invoke a pinned mint/burn on the indexer's BRC-20 controller, which this
// engine represents as a direct balance adjustment rather than a modeled
// token contract, since nothing else in this engine's scope needs a
// ledger-level view of BRC-20 token balances themselves.
func (e *BRC20ProgEngine) AdjustBalance(addr evmtypes.Address, amount *uint256.Int, credit bool) error {
	e.storeMu.Lock()
	defer e.storeMu.Unlock()
	number := e.currentBlockNumber()

	return e.env.Update(func(tx *storage.Tx) error {
		acct, _, err := e.store.Basic(tx, addr)
		if err != nil {
			return err
		}
		if credit {
			acct.Balance.Add(&acct.Balance, amount)
		} else {
			if acct.Balance.Lt(amount) {
				return fmt.Errorf("engine: insufficient balance for withdrawal from %s", addr)
			}
			acct.Balance.Sub(&acct.Balance, amount)
		}
		if err := e.store.SetAccount(tx, number, addr, acct); err != nil {
			return err
		}
		return e.store.CommitToDB(tx)
	})
}

// GetTransactionCount returns addr's current nonce, for eth_getTransactionCount.
func (e *BRC20ProgEngine) GetTransactionCount(addr evmtypes.Address) (uint64, error) {
	return e.accountNonce(addr)
}

// GetCode returns the runtime code deployed at addr, or nil if addr has no
// code (an EOA, or an account that was never touched).
func (e *BRC20ProgEngine) GetCode(addr evmtypes.Address) ([]byte, error) {
	e.storeMu.RLock()
	defer e.storeMu.RUnlock()
	var out []byte
	err := e.env.View(func(tx *storage.Tx) error {
		acct, ok, err := e.store.Basic(tx, addr)
		if err != nil || !ok {
			return err
		}
		code, _, err := e.store.CodeByHash(tx, acct.CodeHash)
		out = code
		return err
	})
	return out, err
}

// GetLogs returns every log emitted by a transaction within [from, to]
// whose address and topics (when non-empty) match, for eth_getLogs.
func (e *BRC20ProgEngine) GetLogs(from, to uint64, address *evmtypes.Address, topics []evmtypes.Hash) ([]statestore.Log, error) {
	e.storeMu.RLock()
	defer e.storeMu.RUnlock()
	var out []statestore.Log
	err := e.env.View(func(tx *storage.Tx) error {
		var err error
		out, err = e.store.GetLogs(tx, from, to, address, topics)
		return err
	})
	return out, err
}

// GetBlockByNumber returns the header and (optionally) full transaction
// list for number.
func (e *BRC20ProgEngine) GetBlockByNumber(number uint64, fullTx bool) (statestore.Block, statestore.BlockTxList, bool, error) {
	e.storeMu.RLock()
	defer e.storeMu.RUnlock()
	var (
		block statestore.Block
		txs   statestore.BlockTxList
		ok    bool
	)
	err := e.env.View(func(tx *storage.Tx) error {
		var err error
		block, ok, err = e.store.GetBlockByNumber(tx, number)
		if err != nil || !ok || !fullTx {
			return err
		}
		txs, _, err = e.store.GetTransactions(tx, number)
		return err
	})
	return block, txs, ok, err
}

// GetBlockByHash returns the header and (optionally) full transaction list
// for the block carrying hash. It scans backward from the chain tip one
// block at a time; the store's block-number-by-hash mapping is not
// consulted.
func (e *BRC20ProgEngine) GetBlockByHash(hash evmtypes.Hash, fullTx bool) (statestore.Block, statestore.BlockTxList, bool, error) {
	e.storeMu.RLock()
	defer e.storeMu.RUnlock()

	var (
		block statestore.Block
		txs   statestore.BlockTxList
		found bool
	)
	err := e.env.View(func(tx *storage.Tx) error {
		latest, ok, err := e.store.LatestBlockNumber(tx)
		if err != nil || !ok {
			return err
		}
		for number := latest; ; number-- {
			b, ok, err := e.store.GetBlockByNumber(tx, number)
			if err != nil {
				return err
			}
			if ok && b.Hash == hash {
				block = b
				found = true
				if fullTx {
					txs, _, err = e.store.GetTransactions(tx, number)
					if err != nil {
						return err
					}
				}
				return nil
			}
			if number == 0 {
				return nil
			}
		}
	})
	return block, txs, found, err
}

// findTxRecord scans blocks backward from the chain tip for the first
// TxRecord satisfying match, returning its containing block number too.
func (e *BRC20ProgEngine) findTxRecord(match func(statestore.TxRecord) bool) (statestore.TxRecord, uint64, bool, error) {
	var (
		rec      statestore.TxRecord
		blockNum uint64
		found    bool
	)
	err := e.env.View(func(tx *storage.Tx) error {
		latest, ok, err := e.store.LatestBlockNumber(tx)
		if err != nil || !ok {
			return err
		}
		for number := latest; ; number-- {
			txs, ok, err := e.store.GetTransactions(tx, number)
			if err != nil {
				return err
			}
			if ok {
				for _, r := range txs {
					if match(r) {
						rec = r
						blockNum = number
						found = true
						return nil
					}
				}
			}
			if number == 0 {
				return nil
			}
		}
	})
	return rec, blockNum, found, err
}

// GetTransactionByHash returns the transaction body and the number of the
// block it was included in.
func (e *BRC20ProgEngine) GetTransactionByHash(hash evmtypes.Hash) (statestore.Tx, uint64, bool, error) {
	e.storeMu.RLock()
	defer e.storeMu.RUnlock()
	rec, number, found, err := e.findTxRecord(func(r statestore.TxRecord) bool { return r.Tx.Hash == hash })
	return rec.Tx, number, found, err
}

// GetTransactionReceipt returns the receipt for the transaction hashed hash
// and the number of the block it was included in.
func (e *BRC20ProgEngine) GetTransactionReceipt(hash evmtypes.Hash) (statestore.Receipt, uint64, bool, error) {
	e.storeMu.RLock()
	defer e.storeMu.RUnlock()
	rec, number, found, err := e.findTxRecord(func(r statestore.TxRecord) bool { return r.Tx.Hash == hash })
	return rec.Receipt, number, found, err
}

// GetTransactionReceiptById returns the receipt for the transaction
// originally submitted under the given "<txid>i<index>" inscription id.
func (e *BRC20ProgEngine) GetTransactionReceiptById(inscriptionID string) (statestore.Receipt, uint64, bool, error) {
	e.storeMu.RLock()
	defer e.storeMu.RUnlock()
	rec, number, found, err := e.findTxRecord(func(r statestore.TxRecord) bool { return r.InscriptionID == inscriptionID })
	return rec.Receipt, number, found, err
}

// GetTxRecordByInscriptionID returns the full transaction/receipt record for
// the given inscription id, for the brc20_getTransactionReceiptById RPC
// method's response shape, which reports the transaction hash alongside the
// receipt fields.
func (e *BRC20ProgEngine) GetTxRecordByInscriptionID(inscriptionID string) (statestore.TxRecord, uint64, bool, error) {
	e.storeMu.RLock()
	defer e.storeMu.RUnlock()
	return e.findTxRecord(func(r statestore.TxRecord) bool { return r.InscriptionID == inscriptionID })
}

// GetInscriptionIDByTxHash returns the inscription id that submitted the
// transaction hashed hash, if it was inscription-originated (empty for
// synthetic/bridge calls).
func (e *BRC20ProgEngine) GetInscriptionIDByTxHash(hash evmtypes.Hash) (string, bool, error) {
	e.storeMu.RLock()
	defer e.storeMu.RUnlock()
	rec, _, found, err := e.findTxRecord(func(r statestore.TxRecord) bool { return r.Tx.Hash == hash })
	if err != nil || !found {
		return "", found, err
	}
	return rec.InscriptionID, true, nil
}

// GetInscriptionIDByContractAddress returns the inscription id that deployed
// the contract at addr, if any.
func (e *BRC20ProgEngine) GetInscriptionIDByContractAddress(addr evmtypes.Address) (string, bool, error) {
	e.storeMu.RLock()
	defer e.storeMu.RUnlock()
	var id string
	var found bool
	err := e.env.View(func(tx *storage.Tx) error {
		inscriptionID, ok, err := e.store.InscriptionForContract(tx, addr)
		if err != nil || !ok {
			return err
		}
		id = formatInscriptionID(inscriptionID)
		found = true
		return nil
	})
	return id, found, err
}

// GetBRC20Balance reads a BRC-20 ticker balance for a Bitcoin pkscript
// straight from the configured balance oracle, bypassing EVM gas accounting
// (SPEC_FULL §6.1: brc20_balance is a read-only, non-gated passthrough).
// Returns an error if no balance indexer was configured.
func (e *BRC20ProgEngine) GetBRC20Balance(pkscript, ticker string) (*uint256.Int, error) {
	if e.balanceIndexer == nil {
		return nil, fmt.Errorf("engine: no BRC-20 balance indexer configured")
	}
	return e.balanceIndexer.GetBalance(pkscript, ticker)
}

// Reorg rolls every table back to latestValidBlockNumber and resets any
// in-progress block, since it would have been built on now-invalid state.
func (e *BRC20ProgEngine) Reorg(latestValidBlockNumber uint64) error {
	e.storeMu.Lock()
	defer e.storeMu.Unlock()
	e.blockMu.Lock()
	defer e.blockMu.Unlock()

	var tip uint64
	err := e.env.View(func(tx *storage.Tx) error {
		n, ok, err := e.store.LatestBlockNumber(tx)
		if err != nil || !ok {
			return err
		}
		tip = n
		return nil
	})
	if err != nil {
		return err
	}
	if tip > latestValidBlockNumber && tip-latestValidBlockNumber > e.cfg.MaxReorgHistorySize {
		return ErrReorgTooDeep
	}

	err = e.env.Update(func(tx *storage.Tx) error {
		if err := e.store.Reorg(tx, latestValidBlockNumber); err != nil {
			return err
		}
		return e.store.CommitToDB(tx)
	})
	if err != nil {
		return err
	}
	e.block = nil
	return nil
}

// CommitToDB flushes the store's write buffers without finalising a block
// (used by the brc20_commitToDatabase RPC method, e.g. before a graceful
// shutdown).
func (e *BRC20ProgEngine) CommitToDB() error {
	e.storeMu.Lock()
	defer e.storeMu.Unlock()
	return e.env.Update(func(tx *storage.Tx) error {
		return e.store.CommitToDB(tx)
	})
}

// ClearCaches discards every in-memory write buffer without persisting it.
func (e *BRC20ProgEngine) ClearCaches() {
	e.storeMu.Lock()
	defer e.storeMu.Unlock()
	e.store.ClearCaches()
}

// PendingPoolContent returns a snapshot of every held transaction, for the
// txpool_content RPC method.
func (e *BRC20ProgEngine) PendingPoolContent() map[evmtypes.Address]map[uint64]*pendingpool.Tx {
	return e.pool.Content()
}
