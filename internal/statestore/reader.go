package statestore

import (
	"github.com/erigontech/erigon-lib/log/v3"

	"github.com/erigontech/brc20-prog/internal/evmtypes"
	"github.com/erigontech/brc20-prog/internal/storage"
)

// Reader is the narrow read-only view the EVM interpreter actually needs:
// four methods, no write path, no knowledge of block-versioning or mdbx.
// Adapted from core/state/history_reader_v3.go's HistoryReaderV3, which
// exposes the same four-method shape (ReadAccountData/ReadAccountCode/
// ReadAccountStorage/GetBlockHash) over Erigon's own temporal store; here
// the underlying store is StateStore instead of a "get as of" history
// index, and trace gates the extra logging history_reader_v3.go does on
// its own verbose path rather than a tracing subsystem.
type Reader struct {
	store *StateStore
	tx    *storage.Tx
	trace bool
	log   log.Logger
}

// NewReader wraps store for read-only access within tx. When trace is true,
// every read is logged at debug level, mirroring history_reader_v3.go's
// verbose path used by replay/trace RPC calls.
func NewReader(store *StateStore, tx *storage.Tx, trace bool, logger log.Logger) *Reader {
	if logger == nil {
		logger = log.Root()
	}
	return &Reader{store: store, tx: tx, trace: trace, log: logger}
}

// Basic returns addr's account record, or the zero Account if it has never
// been touched.
func (r *Reader) Basic(addr evmtypes.Address) (Account, error) {
	acct, ok, err := r.store.Basic(r.tx, addr)
	if r.trace {
		r.log.Debug("statestore: read account", "addr", addr, "found", ok, "err", err)
	}
	if err != nil || !ok {
		return Account{}, err
	}
	return acct, nil
}

// CodeByHash returns the bytecode stored under hash.
func (r *Reader) CodeByHash(hash evmtypes.Hash) ([]byte, error) {
	code, ok, err := r.store.CodeByHash(r.tx, hash)
	if r.trace {
		r.log.Debug("statestore: read code", "hash", hash, "found", ok, "len", len(code), "err", err)
	}
	if err != nil || !ok {
		return nil, err
	}
	return code, nil
}

// Storage returns the value stored at slot within addr's storage, or the
// zero Hash if never written.
func (r *Reader) Storage(addr evmtypes.Address, slot evmtypes.Hash) (evmtypes.Hash, error) {
	v, ok, err := r.store.Storage(r.tx, addr, slot)
	if r.trace {
		r.log.Debug("statestore: read storage", "addr", addr, "slot", slot, "found", ok, "err", err)
	}
	if err != nil || !ok {
		return evmtypes.Hash{}, err
	}
	return v, nil
}

// BlockHash returns the hash of the block at number, used by the EVM's
// BLOCKHASH opcode. Returns the zero Hash if number has not been finalised.
func (r *Reader) BlockHash(number uint64) (evmtypes.Hash, error) {
	h, ok, err := r.store.BlockHash(r.tx, number)
	if r.trace {
		r.log.Debug("statestore: read block hash", "number", number, "found", ok, "err", err)
	}
	if err != nil || !ok {
		return evmtypes.Hash{}, err
	}
	return h, nil
}
