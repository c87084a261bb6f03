// Package kvschema names every mdbx table this engine opens and documents
// the physical key/value layout of each, the same way erigon-lib/kv/tables.go
// and AmazeChain's internal/kv/tables.go document Erigon's own schema. The
// table set here is this engine's own (accounts/storage/code/blocks/tx
// index), not Erigon's Ethereum-client schema, but the naming and
// doc-comment conventions are carried over directly.
package kvschema

// Versioned entity tables: each of these has a "tip" table (always holds
// the latest value for a key) and a paired "history" table (holds an
// encoded blockhistory.Cache keyed by the same key), per
// internal/blockcacheddb.

const (
	// Accounts: key = 20-byte address, value = codec-encoded Account
	// (nonce, balance, code hash).
	Accounts        = "Accounts"
	AccountsHistory = "AccountsHistory"

	// Storage: key = 20-byte address + 32-byte slot, value = 32-byte
	// big-endian uint256.
	Storage        = "Storage"
	StorageHistory = "StorageHistory"

	// ContractCode: key = 20-byte address, value = 32-byte code hash.
	// Indirection lets many accounts share one CodeByHash entry.
	ContractCode        = "ContractCode"
	ContractCodeHistory = "ContractCodeHistory"

	// InscriptionContract: key = inscription id string, value = 20-byte
	// contract address created by that inscription, if any.
	InscriptionContract        = "InscriptionContract"
	InscriptionContractHistory = "InscriptionContractHistory"

	// ContractInscription: the reverse of InscriptionContract, key =
	// 20-byte address, value = inscription id string.
	ContractInscription        = "ContractInscription"
	ContractInscriptionHistory = "ContractInscriptionHistory"
)

// VersionedTables lists every tip/history table pair opened by
// internal/statestore, in (tip, history) order.
var VersionedTables = [][2]string{
	{Accounts, AccountsHistory},
	{Storage, StorageHistory},
	{ContractCode, ContractCodeHistory},
	{InscriptionContract, InscriptionContractHistory},
	{ContractInscription, ContractInscriptionHistory},
}

// Single-history-series tables: one blockdb.DB[V] per table, key = block
// number, reorg truncates by deleting entries above the target height.

const (
	// Blocks: block_number -> codec-encoded Block (header + tx hash list
	// + merkle root + logs bloom). Filled in by StateStore.GenerateBlock.
	Blocks = "Blocks"

	// BlockHashes: block_number -> 32-byte block hash.
	BlockHashes = "BlockHashes"

	// BlockTimestamps: block_number -> 8-byte big-endian unix seconds.
	BlockTimestamps = "BlockTimestamps"

	// BlockGasUsed: block_number -> 8-byte big-endian cumulative gas used.
	BlockGasUsed = "BlockGasUsed"

	// BlockMineTimestamps: block_number -> 8-byte big-endian nanoseconds
	// spent executing the block's transactions.
	BlockMineTimestamps = "BlockMineTimestamps"

	// BlockTransactions: block_number -> codec-encoded []TxRecord, one
	// entry per transaction executed in that block (tx + receipt + trace).
	BlockTransactions = "BlockTransactions"
)

// SingleHistoryTables lists every blockdb.DB[V] table name.
var SingleHistoryTables = []string{
	Blocks,
	BlockHashes,
	BlockTimestamps,
	BlockGasUsed,
	BlockMineTimestamps,
	BlockTransactions,
}

// Plain (unversioned, content-addressed or unique-reverse) tables: no
// reorg history is kept because the key space itself makes old entries
// either immutable (CodeByHash is keyed by the content's own hash) or
// trivially re-derivable from a versioned table.

const (
	// CodeByHash: 32-byte code hash -> contract bytecode. Content
	// addressed, so entries are immutable and never need a history.
	CodeByHash = "CodeByHash"

	// BlockNumberByHash: 32-byte block hash -> 8-byte big-endian block
	// number, the reverse of BlockHashes.
	BlockNumberByHash = "BlockNumberByHash"

	// TxLocationByHash: 32-byte tx hash -> 8-byte block number + 4-byte
	// tx index within the block.
	TxLocationByHash = "TxLocationByHash"
)

// PlainTables lists every unversioned table name.
var PlainTables = []string{
	CodeByHash,
	BlockNumberByHash,
	TxLocationByHash,
}

// AllTables returns every table name this engine opens, for use building
// the mdbx.TableCfg at environment-open time.
func AllTables() []string {
	out := make([]string, 0, len(VersionedTables)*2+len(SingleHistoryTables)+len(PlainTables))
	for _, pair := range VersionedTables {
		out = append(out, pair[0], pair[1])
	}
	out = append(out, SingleHistoryTables...)
	out = append(out, PlainTables...)
	return out
}
