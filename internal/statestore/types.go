// Package statestore is the block-versioned persistence layer for account
// state, contract storage and code, and per-block transaction/receipt/trace
// records. It generalizes the read shape of core/state/history_reader_v3.go
// (Basic/CodeByHash/Storage/BlockHash, a composite-key byte buffer reused
// across lookups, a trace flag gating expensive verbose paths) to the
// domain this engine actually executes: Bitcoin-inscription-triggered EVM
// calls instead of Ethereum blocks, grounded on
// original_source/src/db/db.rs's DB struct and its per-entity accessors.
package statestore

import (
	"github.com/holiman/uint256"

	"github.com/erigontech/brc20-prog/internal/codec"
	"github.com/erigontech/brc20-prog/internal/evmtypes"
)

// Account is the EVM account record kept in the Accounts/AccountsHistory
// tables. It is a plain comparable struct (no pointer fields) so that
// blockhistory.Cache's dedup-on-unchanged-write rule applies to it directly.
type Account struct {
	Nonce    uint64
	Balance  uint256.Int
	CodeHash evmtypes.Hash
}

// Encode implements codec.Encoder.
func (a Account) Encode() ([]byte, error) {
	w := codec.NewWriter()
	w.WriteUint64(a.Nonce)
	w.WriteUint256(&a.Balance)
	w.WriteFixedBytes(a.CodeHash[:])
	return w.Bytes(), nil
}

// DecodeAccount reconstructs an Account from bytes produced by Encode.
func DecodeAccount(b []byte) (Account, error) {
	r := codec.NewReader(b)
	nonce, err := r.ReadUint64()
	if err != nil {
		return Account{}, err
	}
	balance, err := r.ReadUint256()
	if err != nil {
		return Account{}, err
	}
	codeHashBytes, err := r.ReadFixedBytes(32)
	if err != nil {
		return Account{}, err
	}
	return Account{
		Nonce:    nonce,
		Balance:  *balance,
		CodeHash: evmtypes.BytesToHash(codeHashBytes),
	}, nil
}

// StorageKey addresses one 32-byte EVM storage slot within one contract.
type StorageKey struct {
	Address evmtypes.Address
	Slot    evmtypes.Hash
}

// Bytes returns the address||slot composite key used to index the
// Storage/StorageHistory tables.
func (k StorageKey) Bytes() []byte {
	b := make([]byte, 0, 20+32)
	b = append(b, k.Address[:]...)
	b = append(b, k.Slot[:]...)
	return b
}

// StorageValue is a single EVM storage word. It is defined as its own type
// rather than a bare evmtypes.Hash so its Encode/DecodeStorageValue pair
// can live next to the other storable value types in this package.
type StorageValue evmtypes.Hash

// Encode implements codec.Encoder.
func (v StorageValue) Encode() ([]byte, error) {
	w := codec.NewWriter()
	w.WriteFixedBytes(v[:])
	return w.Bytes(), nil
}

// DecodeStorageValue reconstructs a StorageValue from bytes produced by Encode.
func DecodeStorageValue(b []byte) (StorageValue, error) {
	r := codec.NewReader(b)
	raw, err := r.ReadFixedBytes(32)
	if err != nil {
		return StorageValue{}, err
	}
	return StorageValue(evmtypes.BytesToHash(raw)), nil
}

// InscriptionID identifies the Bitcoin inscription that deployed or invoked
// a contract: <reveal txid>i<index>, stored as fixed fields rather than the
// formatted string to keep the type comparable and cheap to encode.
type InscriptionID struct {
	TxID  evmtypes.Hash
	Index uint32
}

// Encode implements codec.Encoder.
func (id InscriptionID) Encode() ([]byte, error) {
	w := codec.NewWriter()
	w.WriteFixedBytes(id.TxID[:])
	w.WriteUint32(id.Index)
	return w.Bytes(), nil
}

// DecodeInscriptionID reconstructs an InscriptionID from bytes produced by Encode.
func DecodeInscriptionID(b []byte) (InscriptionID, error) {
	r := codec.NewReader(b)
	txid, err := r.ReadFixedBytes(32)
	if err != nil {
		return InscriptionID{}, err
	}
	idx, err := r.ReadUint32()
	if err != nil {
		return InscriptionID{}, err
	}
	return InscriptionID{TxID: evmtypes.BytesToHash(txid), Index: idx}, nil
}

// Log is one EVM event emitted during a transaction's execution.
type Log struct {
	Address evmtypes.Address
	Topics  []evmtypes.Hash
	Data    []byte
}

func encodeLog(w *codec.Writer, l Log) {
	w.WriteFixedBytes(l.Address[:])
	codec.WriteSeq(w, l.Topics, func(w *codec.Writer, t evmtypes.Hash) { w.WriteFixedBytes(t[:]) })
	w.WriteBytes(l.Data)
}

func decodeLog(r *codec.Reader) (Log, error) {
	addrBytes, err := r.ReadFixedBytes(20)
	if err != nil {
		return Log{}, err
	}
	topics, err := codec.ReadSeq(r, func(r *codec.Reader) (evmtypes.Hash, error) {
		b, err := r.ReadFixedBytes(32)
		if err != nil {
			return evmtypes.Hash{}, err
		}
		return evmtypes.BytesToHash(b), nil
	})
	if err != nil {
		return Log{}, err
	}
	data, err := r.ReadBytes()
	if err != nil {
		return Log{}, err
	}
	return Log{Address: evmtypes.BytesToAddress(addrBytes), Topics: topics, Data: data}, nil
}

// Tx is a decoded transaction, whether it arrived as a raw signed Ethereum
// transaction or was synthesized from a BRC-20 "bridge" inscription.
type Tx struct {
	Hash     evmtypes.Hash
	From     evmtypes.Address
	To       *evmtypes.Address // nil for contract creation
	Nonce    uint64
	GasLimit uint64
	Value    uint256.Int
	Data     []byte
}

func encodeTx(w *codec.Writer, t Tx) {
	w.WriteFixedBytes(t.Hash[:])
	w.WriteFixedBytes(t.From[:])
	codec.WriteOption(w, t.To, func(w *codec.Writer, a evmtypes.Address) { w.WriteFixedBytes(a[:]) })
	w.WriteUint64(t.Nonce)
	w.WriteUint64(t.GasLimit)
	w.WriteUint256(&t.Value)
	w.WriteBytes(t.Data)
}

func decodeTx(r *codec.Reader) (Tx, error) {
	hashBytes, err := r.ReadFixedBytes(32)
	if err != nil {
		return Tx{}, err
	}
	fromBytes, err := r.ReadFixedBytes(20)
	if err != nil {
		return Tx{}, err
	}
	to, err := codec.ReadOption(r, func(r *codec.Reader) (evmtypes.Address, error) {
		b, err := r.ReadFixedBytes(20)
		if err != nil {
			return evmtypes.Address{}, err
		}
		return evmtypes.BytesToAddress(b), nil
	})
	if err != nil {
		return Tx{}, err
	}
	nonce, err := r.ReadUint64()
	if err != nil {
		return Tx{}, err
	}
	gasLimit, err := r.ReadUint64()
	if err != nil {
		return Tx{}, err
	}
	value, err := r.ReadUint256()
	if err != nil {
		return Tx{}, err
	}
	data, err := r.ReadBytes()
	if err != nil {
		return Tx{}, err
	}
	return Tx{
		Hash:     evmtypes.BytesToHash(hashBytes),
		From:     evmtypes.BytesToAddress(fromBytes),
		To:       to,
		Nonce:    nonce,
		GasLimit: gasLimit,
		Value:    *value,
		Data:     data,
	}, nil
}

// Receipt is the execution outcome of one Tx.
type Receipt struct {
	Status            uint8 // 1 success, 0 failure
	GasUsed           uint64
	CumulativeGasUsed uint64
	ContractAddress   *evmtypes.Address // set only on a successful contract creation
	Logs              []Log
	LogsBloom         []byte // marshaled holiman/bloomfilter/v2 filter over this tx's log addresses/topics
}

func encodeReceipt(w *codec.Writer, rc Receipt) {
	w.WriteUint8(rc.Status)
	w.WriteUint64(rc.GasUsed)
	w.WriteUint64(rc.CumulativeGasUsed)
	codec.WriteOption(w, rc.ContractAddress, func(w *codec.Writer, a evmtypes.Address) { w.WriteFixedBytes(a[:]) })
	codec.WriteSeq(w, rc.Logs, encodeLog)
	w.WriteBytes(rc.LogsBloom)
}

func decodeReceipt(r *codec.Reader) (Receipt, error) {
	status, err := r.ReadUint8()
	if err != nil {
		return Receipt{}, err
	}
	gasUsed, err := r.ReadUint64()
	if err != nil {
		return Receipt{}, err
	}
	cumGasUsed, err := r.ReadUint64()
	if err != nil {
		return Receipt{}, err
	}
	contractAddr, err := codec.ReadOption(r, func(r *codec.Reader) (evmtypes.Address, error) {
		b, err := r.ReadFixedBytes(20)
		if err != nil {
			return evmtypes.Address{}, err
		}
		return evmtypes.BytesToAddress(b), nil
	})
	if err != nil {
		return Receipt{}, err
	}
	logs, err := codec.ReadSeq(r, decodeLog)
	if err != nil {
		return Receipt{}, err
	}
	bloom, err := r.ReadBytes()
	if err != nil {
		return Receipt{}, err
	}
	return Receipt{
		Status:            status,
		GasUsed:           gasUsed,
		CumulativeGasUsed: cumGasUsed,
		ContractAddress:   contractAddr,
		Logs:              logs,
		LogsBloom:         bloom,
	}, nil
}

// TxRecord bundles one transaction, its execution receipt, and (when trace
// recording is enabled) its geth-style call trace, as stored per-index in
// one block's BlockTransactions entry.
type TxRecord struct {
	Tx            Tx
	Receipt       Receipt
	Trace         []byte // JSON-encoded call trace, nil unless config.EVMRecordTraces
	InscriptionID string // "<reveal txid>i<index>", empty for synthetic/bridge calls
}

// BlockTxList is the value type stored in the BlockTransactions table: every
// transaction included in one block, in execution order.
type BlockTxList []TxRecord

// Encode implements codec.Encoder.
func (l BlockTxList) Encode() ([]byte, error) {
	w := codec.NewWriter()
	codec.WriteSeq(w, []TxRecord(l), func(w *codec.Writer, rec TxRecord) {
		encodeTx(w, rec.Tx)
		encodeReceipt(w, rec.Receipt)
		w.WriteBytes(rec.Trace)
		w.WriteString(rec.InscriptionID)
	})
	return w.Bytes(), nil
}

// DecodeBlockTxList reconstructs a BlockTxList from bytes produced by Encode.
func DecodeBlockTxList(b []byte) (BlockTxList, error) {
	r := codec.NewReader(b)
	recs, err := codec.ReadSeq(r, func(r *codec.Reader) (TxRecord, error) {
		tx, err := decodeTx(r)
		if err != nil {
			return TxRecord{}, err
		}
		rc, err := decodeReceipt(r)
		if err != nil {
			return TxRecord{}, err
		}
		trace, err := r.ReadBytes()
		if err != nil {
			return TxRecord{}, err
		}
		inscriptionID, err := r.ReadString()
		if err != nil {
			return TxRecord{}, err
		}
		return TxRecord{Tx: tx, Receipt: rc, Trace: trace, InscriptionID: inscriptionID}, nil
	})
	if err != nil {
		return nil, err
	}
	return BlockTxList(recs), nil
}

// Block is one finalised block's header. Transaction bodies live separately
// in the BlockTransactions table, keyed by the same block number, so a
// caller that only needs header fields (e.g. the BLOCKHASH/TIMESTAMP
// opcodes) never pays for decoding the transaction list.
type Block struct {
	Number             uint64
	Hash               evmtypes.Hash
	ParentHash         evmtypes.Hash
	Timestamp          uint64 // Bitcoin block mine time, seconds
	MineTimestampNanos uint64 // wall-clock time FinaliseBlock ran, for latency reporting
	GasUsed            uint64
	GasLimit           uint64
	TransactionsRoot   evmtypes.Hash
	LogsBloom          []byte // marshaled holiman/bloomfilter/v2 filter over the block's log addresses/topics
	TxHashes           []evmtypes.Hash
}

// Encode implements codec.Encoder.
func (b Block) Encode() ([]byte, error) {
	w := codec.NewWriter()
	w.WriteUint64(b.Number)
	w.WriteFixedBytes(b.Hash[:])
	w.WriteFixedBytes(b.ParentHash[:])
	w.WriteUint64(b.Timestamp)
	w.WriteUint64(b.MineTimestampNanos)
	w.WriteUint64(b.GasUsed)
	w.WriteUint64(b.GasLimit)
	w.WriteFixedBytes(b.TransactionsRoot[:])
	w.WriteBytes(b.LogsBloom)
	codec.WriteSeq(w, b.TxHashes, func(w *codec.Writer, h evmtypes.Hash) { w.WriteFixedBytes(h[:]) })
	return w.Bytes(), nil
}

// DecodeBlock reconstructs a Block from bytes produced by Encode.
func DecodeBlock(raw []byte) (Block, error) {
	r := codec.NewReader(raw)
	number, err := r.ReadUint64()
	if err != nil {
		return Block{}, err
	}
	hashBytes, err := r.ReadFixedBytes(32)
	if err != nil {
		return Block{}, err
	}
	parentBytes, err := r.ReadFixedBytes(32)
	if err != nil {
		return Block{}, err
	}
	timestamp, err := r.ReadUint64()
	if err != nil {
		return Block{}, err
	}
	mineTS, err := r.ReadUint64()
	if err != nil {
		return Block{}, err
	}
	gasUsed, err := r.ReadUint64()
	if err != nil {
		return Block{}, err
	}
	gasLimit, err := r.ReadUint64()
	if err != nil {
		return Block{}, err
	}
	txRootBytes, err := r.ReadFixedBytes(32)
	if err != nil {
		return Block{}, err
	}
	bloom, err := r.ReadBytes()
	if err != nil {
		return Block{}, err
	}
	txHashes, err := codec.ReadSeq(r, func(r *codec.Reader) (evmtypes.Hash, error) {
		b, err := r.ReadFixedBytes(32)
		if err != nil {
			return evmtypes.Hash{}, err
		}
		return evmtypes.BytesToHash(b), nil
	})
	if err != nil {
		return Block{}, err
	}
	return Block{
		Number:             number,
		Hash:               evmtypes.BytesToHash(hashBytes),
		ParentHash:         evmtypes.BytesToHash(parentBytes),
		Timestamp:          timestamp,
		MineTimestampNanos: mineTS,
		GasUsed:            gasUsed,
		GasLimit:           gasLimit,
		TransactionsRoot:   evmtypes.BytesToHash(txRootBytes),
		LogsBloom:          bloom,
		TxHashes:           txHashes,
	}, nil
}

// blockHash is the value type behind the BlockHashes fast-path index.
type blockHash evmtypes.Hash

func (h blockHash) Encode() ([]byte, error) {
	w := codec.NewWriter()
	w.WriteFixedBytes(h[:])
	return w.Bytes(), nil
}

func decodeBlockHash(b []byte) (blockHash, error) {
	r := codec.NewReader(b)
	raw, err := r.ReadFixedBytes(32)
	if err != nil {
		return blockHash{}, err
	}
	return blockHash(evmtypes.BytesToHash(raw)), nil
}

// u64 is the value type behind the BlockTimestamps/BlockGasUsed/
// BlockMineTimestamps fast-path indexes.
type u64 uint64

func (v u64) Encode() ([]byte, error) {
	w := codec.NewWriter()
	w.WriteUint64(uint64(v))
	return w.Bytes(), nil
}

func decodeU64(b []byte) (u64, error) {
	r := codec.NewReader(b)
	v, err := r.ReadUint64()
	if err != nil {
		return 0, err
	}
	return u64(v), nil
}
