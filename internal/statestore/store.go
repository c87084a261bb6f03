package statestore

import (
	"bytes"
	"fmt"

	"github.com/RoaringBitmap/roaring/v2"
	"github.com/holiman/bloomfilter/v2"
	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/erigontech/brc20-prog/internal/blockcacheddb"
	"github.com/erigontech/brc20-prog/internal/blockdb"
	"github.com/erigontech/brc20-prog/internal/bnum"
	"github.com/erigontech/brc20-prog/internal/evmtypes"
	"github.com/erigontech/brc20-prog/internal/kvschema"
	"github.com/erigontech/brc20-prog/internal/storage"
)

// maxLogsRange bounds how many blocks a single GetLogs call may scan, to
// keep a single JSON-RPC request from walking the whole chain.
const maxLogsRange = 5

// StateStore is the aggregate persistence layer for account state, contract
// storage and code, inscription<->contract linkage, and per-block header
// and transaction records. One StateStore is owned exclusively by
// internal/engine.BRC20ProgEngine; its in-memory write buffers are only safe to
// touch from inside the caller's own lock.
type StateStore struct {
	accounts     *blockcacheddb.DB[evmtypes.Address, Account]
	contractCode *blockcacheddb.DB[evmtypes.Address, evmtypes.Hash]
	storageSlots *blockcacheddb.DB[StorageKey, StorageValue]

	inscriptionContract *blockcacheddb.DB[InscriptionID, evmtypes.Address]
	contractInscription *blockcacheddb.DB[evmtypes.Address, InscriptionID]

	blocks             *blockdb.DB[Block]
	blockHashes        *blockdb.DB[blockHash]
	blockTimestamps    *blockdb.DB[u64]
	blockGasUsed       *blockdb.DB[u64]
	blockMineTimestamp *blockdb.DB[u64]
	blockTxs           *blockdb.DB[BlockTxList]

	// logsIndexCache holds, per recently-queried topic, a roaring bitmap of
	// the block numbers already confirmed (by a full log scan, not just a
	// bloom hit) to contain that topic, so a repeated eth_getLogs call over
	// a topic it has already resolved skips straight past the bloom check.
	logsIndexCache *lru.Cache[evmtypes.Hash, *roaring.Bitmap]
}

// New constructs a StateStore wired to the standard table schema in
// internal/kvschema. Call Open with kvschema.AllTables() (directly or via
// storage.Open) before using it.
func New() *StateStore {
	logsCache, err := lru.New[evmtypes.Hash, *roaring.Bitmap](1024)
	if err != nil {
		panic(fmt.Sprintf("statestore: sizing logs index cache: %v", err))
	}

	addrKey := func(a evmtypes.Address) []byte { return append([]byte(nil), a[:]...) }

	return &StateStore{
		accounts: blockcacheddb.New[evmtypes.Address, Account](
			kvschema.Accounts, kvschema.AccountsHistory, addrKey,
			blockcacheddb.Codec[Account]{Encode: Account.Encode, Decode: DecodeAccount},
		),
		contractCode: blockcacheddb.New[evmtypes.Address, evmtypes.Hash](
			kvschema.ContractCode, kvschema.ContractCodeHistory, addrKey,
			blockcacheddb.Codec[evmtypes.Hash]{
				Encode: func(h evmtypes.Hash) ([]byte, error) { return h[:], nil },
				Decode: func(b []byte) (evmtypes.Hash, error) { return evmtypes.BytesToHash(b), nil },
			},
		),
		storageSlots: blockcacheddb.New[StorageKey, StorageValue](
			kvschema.Storage, kvschema.StorageHistory, StorageKey.Bytes,
			blockcacheddb.Codec[StorageValue]{Encode: StorageValue.Encode, Decode: DecodeStorageValue},
		),
		inscriptionContract: blockcacheddb.New[InscriptionID, evmtypes.Address](
			kvschema.InscriptionContract, kvschema.InscriptionContractHistory,
			func(id InscriptionID) []byte { b, _ := id.Encode(); return b },
			blockcacheddb.Codec[evmtypes.Address]{
				Encode: func(a evmtypes.Address) ([]byte, error) { return a[:], nil },
				Decode: func(b []byte) (evmtypes.Address, error) { return evmtypes.BytesToAddress(b), nil },
			},
		),
		contractInscription: blockcacheddb.New[evmtypes.Address, InscriptionID](
			kvschema.ContractInscription, kvschema.ContractInscriptionHistory, addrKey,
			blockcacheddb.Codec[InscriptionID]{Encode: InscriptionID.Encode, Decode: DecodeInscriptionID},
		),
		blocks:             blockdb.New[Block](kvschema.Blocks, DecodeBlock),
		blockHashes:        blockdb.New[blockHash](kvschema.BlockHashes, decodeBlockHash),
		blockTimestamps:    blockdb.New[u64](kvschema.BlockTimestamps, decodeU64),
		blockGasUsed:       blockdb.New[u64](kvschema.BlockGasUsed, decodeU64),
		blockMineTimestamp: blockdb.New[u64](kvschema.BlockMineTimestamps, decodeU64),
		blockTxs:           blockdb.New[BlockTxList](kvschema.BlockTransactions, DecodeBlockTxList),
		logsIndexCache:     logsCache,
	}
}

// Basic returns addr's current account record.
func (s *StateStore) Basic(tx *storage.Tx, addr evmtypes.Address) (Account, bool, error) {
	return s.accounts.Latest(tx, addr)
}

// CodeByHash returns the bytecode stored under hash, the content-addressed
// CodeByHash table shared by every account whose code hashes the same.
func (s *StateStore) CodeByHash(tx *storage.Tx, hash evmtypes.Hash) ([]byte, bool, error) {
	if hash == (evmtypes.Hash{}) {
		return nil, false, nil
	}
	return tx.Get(kvschema.CodeByHash, hash[:])
}

// SetCode stores code under its own Keccak256 hash (a no-op if already
// present, since the table is content addressed) and returns the hash.
func (s *StateStore) SetCode(tx *storage.Tx, code []byte) (evmtypes.Hash, error) {
	hash := evmtypes.Keccak256(code)
	existing, ok, err := tx.Get(kvschema.CodeByHash, hash[:])
	if err != nil {
		return evmtypes.Hash{}, err
	}
	if ok && bytes.Equal(existing, code) {
		return hash, nil
	}
	return hash, tx.Put(kvschema.CodeByHash, hash[:], code)
}

// Storage returns the value stored at slot within addr's storage.
func (s *StateStore) Storage(tx *storage.Tx, addr evmtypes.Address, slot evmtypes.Hash) (evmtypes.Hash, bool, error) {
	v, ok, err := s.storageSlots.Latest(tx, StorageKey{Address: addr, Slot: slot})
	return evmtypes.Hash(v), ok, err
}

// BlockHash returns the hash of the block at number, the fast path behind
// the EVM's BLOCKHASH opcode.
func (s *StateStore) BlockHash(tx *storage.Tx, number uint64) (evmtypes.Hash, bool, error) {
	h, ok, err := s.blockHashes.Get(tx, number)
	return evmtypes.Hash(h), ok, err
}

// SetAccount buffers addr's account record at blockNumber, keeping the
// ContractCode fast-path index in sync.
func (s *StateStore) SetAccount(tx *storage.Tx, blockNumber uint64, addr evmtypes.Address, acct Account) error {
	if err := s.accounts.Set(tx, blockNumber, addr, acct); err != nil {
		return err
	}
	return s.contractCode.Set(tx, blockNumber, addr, acct.CodeHash)
}

// DeleteAccount buffers addr's removal (e.g. SELFDESTRUCT) at blockNumber.
func (s *StateStore) DeleteAccount(tx *storage.Tx, blockNumber uint64, addr evmtypes.Address) error {
	if err := s.accounts.Delete(tx, blockNumber, addr); err != nil {
		return err
	}
	return s.contractCode.Delete(tx, blockNumber, addr)
}

// SetStorage buffers a single slot write at blockNumber.
func (s *StateStore) SetStorage(tx *storage.Tx, blockNumber uint64, addr evmtypes.Address, slot, value evmtypes.Hash) error {
	return s.storageSlots.Set(tx, blockNumber, StorageKey{Address: addr, Slot: slot}, StorageValue(value))
}

// LinkInscription records that inscriptionID deployed contract addr, and
// indexes the reverse lookup.
func (s *StateStore) LinkInscription(tx *storage.Tx, blockNumber uint64, inscriptionID InscriptionID, addr evmtypes.Address) error {
	if err := s.inscriptionContract.Set(tx, blockNumber, inscriptionID, addr); err != nil {
		return err
	}
	return s.contractInscription.Set(tx, blockNumber, addr, inscriptionID)
}

// ContractForInscription returns the contract address deployed by
// inscriptionID, if any.
func (s *StateStore) ContractForInscription(tx *storage.Tx, inscriptionID InscriptionID) (evmtypes.Address, bool, error) {
	return s.inscriptionContract.Latest(tx, inscriptionID)
}

// InscriptionForContract returns the inscription that deployed addr, if any.
func (s *StateStore) InscriptionForContract(tx *storage.Tx, addr evmtypes.Address) (InscriptionID, bool, error) {
	return s.contractInscription.Latest(tx, addr)
}

// GetBlockByNumber returns the full header for number.
func (s *StateStore) GetBlockByNumber(tx *storage.Tx, number uint64) (Block, bool, error) {
	return s.blocks.Get(tx, number)
}

// GetTransactions returns every transaction/receipt recorded for number.
func (s *StateStore) GetTransactions(tx *storage.Tx, number uint64) (BlockTxList, bool, error) {
	return s.blockTxs.Get(tx, number)
}

// LatestBlockNumber returns the highest finalised block number, if any.
func (s *StateStore) LatestBlockNumber(tx *storage.Tx) (uint64, bool, error) {
	return s.blocks.LastKey(tx)
}

// GenerateBlock computes a block's merkle root and cumulative bloom filter
// from its transaction list and buffers the resulting header and tx list at
// blockNumber, along with every fast-path block index. Grounded on
// original_source/src/evm/brc20_controller.rs and
// original_source/src/evm/mod.rs's end-of-block bookkeeping (it rolls a
// bloom filter and a simple hash chain across the block's receipts rather
// than a full Ethereum Merkle-Patricia trie, since no such trie library
// appears anywhere in the retrieval pack).
func (s *StateStore) GenerateBlock(tx *storage.Tx, number uint64, parentHash evmtypes.Hash, timestamp uint64, mineTimestampNanos uint64, gasLimit uint64, txs BlockTxList) (Block, error) {
	bloom, err := newLogsBloom()
	if err != nil {
		return Block{}, fmt.Errorf("statestore: building block bloom filter: %w", err)
	}

	var gasUsed uint64
	txHashes := make([]evmtypes.Hash, 0, len(txs))
	leaves := make([][]byte, 0, len(txs))
	for _, rec := range txs {
		var overflow bool
		gasUsed, overflow = bnum.SafeAdd(gasUsed, rec.Receipt.GasUsed)
		if overflow {
			return Block{}, fmt.Errorf("statestore: cumulative gas used for block %d overflows uint64", number)
		}
		txHashes = append(txHashes, rec.Tx.Hash)
		leaves = append(leaves, append(append([]byte(nil), rec.Tx.Hash[:]...), rec.Receipt.LogsBloom...))
		for _, lg := range rec.Receipt.Logs {
			bloom.Add(bloomHashable(lg.Address[:]))
			for _, t := range lg.Topics {
				bloom.Add(bloomHashable(t[:]))
			}
		}
	}

	txRoot := merkleRoot(leaves)

	blockBloom, err := bloom.MarshalBinary()
	if err != nil {
		return Block{}, fmt.Errorf("statestore: marshaling block bloom filter: %w", err)
	}

	hashInput := append(append([]byte(nil), parentHash[:]...), txRoot[:]...)
	hashInput = append(hashInput, uint64ToBytes(number)...)
	blockHashValue := evmtypes.Keccak256(hashInput)

	if existing, ok, err := tx.Get(kvschema.BlockNumberByHash, blockHashValue[:]); err != nil {
		return Block{}, err
	} else if ok && bytesToUint64(existing) != number {
		return Block{}, fmt.Errorf("statestore: block hash %s already assigned to height %d, cannot also assign it to %d", blockHashValue, bytesToUint64(existing), number)
	}

	block := Block{
		Number:             number,
		Hash:               blockHashValue,
		ParentHash:         parentHash,
		Timestamp:          timestamp,
		MineTimestampNanos: mineTimestampNanos,
		GasUsed:            gasUsed,
		GasLimit:           gasLimit,
		TransactionsRoot:   txRoot,
		LogsBloom:          blockBloom,
		TxHashes:           txHashes,
	}

	s.blocks.Set(number, block)
	s.blockHashes.Set(number, blockHash(blockHashValue))
	s.blockTimestamps.Set(number, u64(timestamp))
	s.blockGasUsed.Set(number, u64(gasUsed))
	s.blockMineTimestamp.Set(number, u64(mineTimestampNanos))
	s.blockTxs.Set(number, txs)
	for i, rec := range txs {
		loc := append(uint64ToBytes(number), uint32ToBytes(uint32(i))...)
		if err := tx.Put(kvschema.TxLocationByHash, rec.Tx.Hash[:], loc); err != nil {
			return Block{}, err
		}
	}
	if err := tx.Put(kvschema.BlockNumberByHash, blockHashValue[:], uint64ToBytes(number)); err != nil {
		return Block{}, err
	}

	s.logsIndexCache.Purge()
	return block, nil
}

// GetLogs scans blocks [from,to] (inclusive, capped to maxLogsRange blocks)
// for logs matching address (if non-nil) and topics (if non-empty, a log
// matches when it carries any one of them, in any position; topic
// positions are not distinguished).
func (s *StateStore) GetLogs(tx *storage.Tx, from, to uint64, address *evmtypes.Address, topics []evmtypes.Hash) ([]Log, error) {
	if to < from {
		return nil, fmt.Errorf("statestore: GetLogs: to block %d is before from block %d", to, from)
	}
	if to-from+1 > maxLogsRange {
		return nil, fmt.Errorf("statestore: GetLogs: range of %d blocks exceeds the %d-block limit", to-from+1, maxLogsRange)
	}

	var bitmaps []*roaring.Bitmap
	for _, t := range topics {
		bm, ok := s.logsIndexCache.Get(t)
		if !ok {
			bm = roaring.New()
			s.logsIndexCache.Add(t, bm)
		}
		bitmaps = append(bitmaps, bm)
	}

	var out []Log
	for n := from; n <= to; n++ {
		block, ok, err := s.blocks.Get(tx, n)
		if err != nil {
			return nil, err
		}
		if !ok {
			continue
		}
		if !blockMightMatch(block, address, topics) {
			continue
		}
		records, ok, err := s.blockTxs.Get(tx, n)
		if err != nil {
			return nil, err
		}
		if !ok {
			continue
		}
		for _, rec := range records {
			for _, lg := range rec.Receipt.Logs {
				if !logMatches(lg, address, topics) {
					continue
				}
				out = append(out, lg)
				for i, t := range topics {
					if logHasTopic(lg, t) {
						bitmaps[i].Add(uint32(n))
					}
				}
			}
		}
	}
	return out, nil
}

// KnownLogBlocks returns the set of block numbers this StateStore has
// already confirmed, via a prior GetLogs scan, to contain at least one log
// with the given topic.
func (s *StateStore) KnownLogBlocks(topic evmtypes.Hash) *roaring.Bitmap {
	if bm, ok := s.logsIndexCache.Get(topic); ok {
		return bm
	}
	return roaring.New()
}

func logHasTopic(lg Log, topic evmtypes.Hash) bool {
	for _, got := range lg.Topics {
		if got == topic {
			return true
		}
	}
	return false
}

func blockMightMatch(b Block, address *evmtypes.Address, topics []evmtypes.Hash) bool {
	if address == nil && len(topics) == 0 {
		return true
	}
	bf := &bloomfilter.Filter{}
	if err := bf.UnmarshalBinary(b.LogsBloom); err != nil {
		// A block finalised before blooms were wired in, or a corrupt
		// blob: fall back to a full scan rather than skipping the block.
		return true
	}
	if address != nil && !bf.Contains(bloomHashable(address[:])) {
		return false
	}
	for _, t := range topics {
		if bf.Contains(bloomHashable(t[:])) {
			return true
		}
	}
	return len(topics) == 0
}

func logMatches(lg Log, address *evmtypes.Address, topics []evmtypes.Hash) bool {
	if address != nil && lg.Address != *address {
		return false
	}
	if len(topics) == 0 {
		return true
	}
	for _, want := range topics {
		for _, got := range lg.Topics {
			if got == want {
				return true
			}
		}
	}
	return false
}

// ClearCaches discards every sub-table's in-memory write buffer without
// persisting it.
func (s *StateStore) ClearCaches() {
	s.accounts.ClearCache()
	s.contractCode.ClearCache()
	s.storageSlots.ClearCache()
	s.inscriptionContract.ClearCache()
	s.contractInscription.ClearCache()
	s.blocks.ClearCache()
	s.blockHashes.ClearCache()
	s.blockTimestamps.ClearCache()
	s.blockGasUsed.ClearCache()
	s.blockMineTimestamp.ClearCache()
	s.blockTxs.ClearCache()
	s.logsIndexCache.Purge()
}

// CommitToDB flushes every sub-table's write buffer to tx.
func (s *StateStore) CommitToDB(tx *storage.Tx) error {
	if err := s.accounts.Commit(tx); err != nil {
		return err
	}
	if err := s.contractCode.Commit(tx); err != nil {
		return err
	}
	if err := s.storageSlots.Commit(tx); err != nil {
		return err
	}
	if err := s.inscriptionContract.Commit(tx); err != nil {
		return err
	}
	if err := s.contractInscription.Commit(tx); err != nil {
		return err
	}
	if err := s.blocks.Commit(tx); err != nil {
		return err
	}
	if err := s.blockHashes.Commit(tx); err != nil {
		return err
	}
	if err := s.blockTimestamps.Commit(tx); err != nil {
		return err
	}
	if err := s.blockGasUsed.Commit(tx); err != nil {
		return err
	}
	if err := s.blockMineTimestamp.Commit(tx); err != nil {
		return err
	}
	if err := s.blockTxs.Commit(tx); err != nil {
		return err
	}
	return nil
}

// Reorg rolls every versioned table back to its state as of
// latestValidBlockNumber and truncates every block-number-keyed table above
// it.
func (s *StateStore) Reorg(tx *storage.Tx, latestValidBlockNumber uint64) error {
	if err := s.accounts.Reorg(tx, latestValidBlockNumber, scanFixedWidthKeys[evmtypes.Address](20, bytesToAddressKey)); err != nil {
		return err
	}
	if err := s.contractCode.Reorg(tx, latestValidBlockNumber, scanFixedWidthKeys[evmtypes.Address](20, bytesToAddressKey)); err != nil {
		return err
	}
	if err := s.storageSlots.Reorg(tx, latestValidBlockNumber, scanFixedWidthKeys[StorageKey](52, bytesToStorageKey)); err != nil {
		return err
	}
	if err := s.inscriptionContract.Reorg(tx, latestValidBlockNumber, scanFixedWidthKeys[InscriptionID](36, bytesToInscriptionID)); err != nil {
		return err
	}
	if err := s.contractInscription.Reorg(tx, latestValidBlockNumber, scanFixedWidthKeys[evmtypes.Address](20, bytesToAddressKey)); err != nil {
		return err
	}
	if err := s.blocks.Reorg(tx, latestValidBlockNumber); err != nil {
		return err
	}
	if err := s.blockTxs.Reorg(tx, latestValidBlockNumber); err != nil {
		return err
	}
	if err := s.blockHashes.Reorg(tx, latestValidBlockNumber); err != nil {
		return err
	}
	if err := s.blockTimestamps.Reorg(tx, latestValidBlockNumber); err != nil {
		return err
	}
	if err := s.blockGasUsed.Reorg(tx, latestValidBlockNumber); err != nil {
		return err
	}
	if err := s.blockMineTimestamp.Reorg(tx, latestValidBlockNumber); err != nil {
		return err
	}
	s.logsIndexCache.Purge()
	return nil
}

func bytesToAddressKey(b []byte) evmtypes.Address { return evmtypes.BytesToAddress(b) }

func bytesToStorageKey(b []byte) StorageKey {
	return StorageKey{Address: evmtypes.BytesToAddress(b[:20]), Slot: evmtypes.BytesToHash(b[20:])}
}

func bytesToInscriptionID(b []byte) InscriptionID {
	id, _ := DecodeInscriptionID(b)
	return id
}

// scanFixedWidthKeys returns a Reorg key-enumeration callback for a table
// whose keys are all exactly width bytes, decoding each with parse.
func scanFixedWidthKeys[K comparable](width int, parse func([]byte) K) func(tx *storage.Tx, table string) ([]K, error) {
	return func(tx *storage.Tx, table string) ([]K, error) {
		var keys []K
		err := tx.ForEach(table, func(key, _ []byte) error {
			if len(key) != width {
				return fmt.Errorf("statestore: table %s key length %d, want %d", table, len(key), width)
			}
			keys = append(keys, parse(key))
			return nil
		})
		return keys, err
	}
}

func uint64ToBytes(v uint64) []byte {
	b := make([]byte, 8)
	for i := 7; i >= 0; i-- {
		b[i] = byte(v)
		v >>= 8
	}
	return b
}

func uint32ToBytes(v uint32) []byte {
	b := make([]byte, 4)
	for i := 3; i >= 0; i-- {
		b[i] = byte(v)
		v >>= 8
	}
	return b
}

// merkleRoot hashes leaves pairwise up to a single root, duplicating the
// last leaf at odd levels (standard Bitcoin-style merkleization, grounded
// on original_source/src/server/types.rs's use of a merkle root over the
// block's transaction hashes).
func merkleRoot(leaves [][]byte) evmtypes.Hash {
	if len(leaves) == 0 {
		return evmtypes.Hash{}
	}
	level := leaves
	for len(level) > 1 {
		next := make([][]byte, 0, (len(level)+1)/2)
		for i := 0; i < len(level); i += 2 {
			left := level[i]
			right := left
			if i+1 < len(level) {
				right = level[i+1]
			}
			h := evmtypes.Keccak256(left, right)
			next = append(next, h[:])
		}
		level = next
	}
	return evmtypes.BytesToHash(level[0])
}

// newLogsBloom returns an empty holiman/bloomfilter/v2 filter sized for one
// block's worth of log addresses and topics.
func newLogsBloom() (*bloomfilter.Filter, error) {
	return bloomfilter.New(2048*8, 4)
}

func bloomHashable(b []byte) bloomHashableItem { return bloomHashableItem(evmtypes.Keccak256(b)) }

// bloomHashableItem adapts a Keccak256 hash to holiman/bloomfilter/v2's
// Hashable interface.
type bloomHashableItem evmtypes.Hash

func (h bloomHashableItem) Sum64() uint64 {
	return bytesToUint64(h[:8])
}

func bytesToUint64(b []byte) uint64 {
	var v uint64
	for _, c := range b {
		v = v<<8 | uint64(c)
	}
	return v
}

