// Package blockdb implements a single generic table of values keyed by
// block number, with an in-memory write buffer flushed on Commit and a
// reorg operation that truncates everything above a target height.
//
// Grounded on original_source/db/src/cached_database/block_database.rs:
// the Rust BlockDatabase<V> keeps a rocksdb handle plus a BTreeMap<u64,V>
// write buffer and the same Get/Set/Commit/ClearCache/LastKey/Reorg shape;
// this is that shape over the engine's shared mdbx environment instead of
// a dedicated rocksdb handle per table.
package blockdb

import (
	"encoding/binary"
	"fmt"
	"sort"

	"github.com/erigontech/brc20-prog/internal/codec"
	"github.com/erigontech/brc20-prog/internal/storage"
)

// Codec is implemented by every value type storable in a DB.
type Codec interface {
	codec.Encoder
}

// Decode constructs a zero value and decodes b into it.
type Decode[V any] func(b []byte) (V, error)

// DB is a block-number-keyed table with an in-memory write buffer. V must
// be safe to store by value (copy) in the buffer map.
type DB[V Codec] struct {
	table  string
	decode Decode[V]
	cache  map[uint64]V
}

// New returns a DB reading/writing rows in the given mdbx table.
func New[V Codec](table string, decode Decode[V]) *DB[V] {
	return &DB[V]{table: table, decode: decode, cache: make(map[uint64]V)}
}

func key(blockNumber uint64) []byte {
	var b [8]byte
	binary.BigEndian.PutUint64(b[:], blockNumber)
	return b[:]
}

// Get returns the value at blockNumber, checking the write buffer before
// the underlying table, and (zero, false, nil) if it has never been set.
func (d *DB[V]) Get(tx *storage.Tx, blockNumber uint64) (V, bool, error) {
	var zero V
	if v, ok := d.cache[blockNumber]; ok {
		return v, true, nil
	}
	raw, ok, err := tx.Get(d.table, key(blockNumber))
	if err != nil {
		return zero, false, err
	}
	if !ok {
		return zero, false, nil
	}
	v, err := d.decode(raw)
	if err != nil {
		return zero, false, fmt.Errorf("blockdb: decoding %s[%d]: %w", d.table, blockNumber, err)
	}
	return v, true, nil
}

// Set stores value for blockNumber in the in-memory write buffer only;
// it is not durable until Commit.
func (d *DB[V]) Set(blockNumber uint64, value V) {
	d.cache[blockNumber] = value
}

// ClearCache discards the in-memory write buffer without persisting it.
func (d *DB[V]) ClearCache() {
	d.cache = make(map[uint64]V)
}

// Commit writes every buffered entry to the underlying table and clears
// the buffer.
func (d *DB[V]) Commit(tx *storage.Tx) error {
	for blockNumber, v := range d.cache {
		raw, err := v.Encode()
		if err != nil {
			return fmt.Errorf("blockdb: encoding %s[%d]: %w", d.table, blockNumber, err)
		}
		if err := tx.Put(d.table, key(blockNumber), raw); err != nil {
			return err
		}
	}
	d.ClearCache()
	return nil
}

// LastKey returns the greatest block number with a stored value, checking
// both the underlying table and the in-memory write buffer.
func (d *DB[V]) LastKey(tx *storage.Tx) (uint64, bool, error) {
	diskKey, diskOK, err := tx.LastKey(d.table)
	if err != nil {
		return 0, false, err
	}
	var diskLast uint64
	if diskOK {
		diskLast = binary.BigEndian.Uint64(diskKey)
	}

	var cacheLast uint64
	cacheOK := false
	for bn := range d.cache {
		if !cacheOK || bn > cacheLast {
			cacheLast = bn
			cacheOK = true
		}
	}

	switch {
	case !diskOK && !cacheOK:
		return 0, false, nil
	case cacheOK && cacheLast > diskLast:
		return cacheLast, true, nil
	default:
		return diskLast, true, nil
	}
}

// Reorg deletes every stored and buffered entry whose block number is
// greater than latestValidBlockNumber.
func (d *DB[V]) Reorg(tx *storage.Tx, latestValidBlockNumber uint64) error {
	last, ok, err := d.LastKey(tx)
	if err != nil {
		return err
	}
	if !ok || last <= latestValidBlockNumber {
		return nil
	}

	toDelete := make([]uint64, 0, last-latestValidBlockNumber)
	for bn := latestValidBlockNumber + 1; bn <= last; bn++ {
		toDelete = append(toDelete, bn)
	}
	sort.Slice(toDelete, func(i, j int) bool { return toDelete[i] < toDelete[j] })

	for _, bn := range toDelete {
		delete(d.cache, bn)
		if err := tx.Delete(d.table, key(bn)); err != nil {
			return err
		}
	}
	return nil
}
