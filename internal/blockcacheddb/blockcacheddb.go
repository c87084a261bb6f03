// Package blockcacheddb implements a key/value table whose values are
// versioned per block height and reorg-safe within the last
// blockhistory.MaxHistorySize blocks: a "tip" table holding each key's
// latest value, a "history" table holding each key's encoded
// blockhistory.Cache, and an in-memory write buffer of touched keys'
// histories, materialized lazily from the tip table on first touch.
//
// Grounded on
// original_source/db/src/cached_database/block_cached_database.rs: same
// lazy-materialize-from-tip-on-first-write design (there called
// load_cache_if_needed), same latest/set/commit/reorg shape, adapted from
// heed/LMDB to this engine's shared mdbx environment.
package blockcacheddb

import (
	"fmt"

	"github.com/erigontech/brc20-prog/internal/blockhistory"
	"github.com/erigontech/brc20-prog/internal/storage"
)

// Codec converts a value to and from its wire encoding.
type Codec[V comparable] struct {
	Encode func(V) ([]byte, error)
	Decode func([]byte) (V, error)
}

// DB is a block-versioned key/value table.
type DB[K comparable, V comparable] struct {
	tipTable     string
	historyTable string
	keyBytes     func(K) []byte
	codec        Codec[V]
	cache        map[K]*blockhistory.Cache[V]
}

// New returns a DB backed by the given tip and history mdbx tables.
func New[K comparable, V comparable](tipTable, historyTable string, keyBytes func(K) []byte, codec Codec[V]) *DB[K, V] {
	return &DB[K, V]{
		tipTable:     tipTable,
		historyTable: historyTable,
		keyBytes:     keyBytes,
		codec:        codec,
		cache:        make(map[K]*blockhistory.Cache[V]),
	}
}

// Latest returns key's current value, checking the in-memory write buffer
// before the tip table.
func (d *DB[K, V]) Latest(tx *storage.Tx, key K) (V, bool, error) {
	var zero V
	if c, ok := d.cache[key]; ok {
		if v := c.Latest(); v != nil {
			return *v, true, nil
		}
		return zero, false, nil
	}
	raw, ok, err := tx.Get(d.tipTable, d.keyBytes(key))
	if err != nil {
		return zero, false, err
	}
	if !ok {
		return zero, false, nil
	}
	v, err := d.codec.Decode(raw)
	if err != nil {
		return zero, false, fmt.Errorf("blockcacheddb: decoding %s tip value: %w", d.tipTable, err)
	}
	return v, true, nil
}

// Set records value for key at blockNumber in the in-memory write buffer.
func (d *DB[K, V]) Set(tx *storage.Tx, blockNumber uint64, key K, value V) error {
	c, err := d.loadCacheIfNeeded(tx, key)
	if err != nil {
		return err
	}
	c.Set(blockNumber, value)
	return nil
}

// Delete records that key was removed (e.g. a self-destructed account) at
// blockNumber.
func (d *DB[K, V]) Delete(tx *storage.Tx, blockNumber uint64, key K) error {
	c, err := d.loadCacheIfNeeded(tx, key)
	if err != nil {
		return err
	}
	c.SetAbsent(blockNumber)
	return nil
}

func (d *DB[K, V]) loadCacheIfNeeded(tx *storage.Tx, key K) (*blockhistory.Cache[V], error) {
	if c, ok := d.cache[key]; ok {
		return c, nil
	}

	raw, ok, err := tx.Get(d.historyTable, d.keyBytes(key))
	if err != nil {
		return nil, err
	}
	if ok {
		c, err := blockhistory.Decode(raw, d.codec.Decode)
		if err != nil {
			return nil, fmt.Errorf("blockcacheddb: decoding %s history: %w", d.historyTable, err)
		}
		d.cache[key] = c
		return c, nil
	}

	// No history recorded yet: seed a fresh Cache from whatever the tip
	// table currently holds, so the key has a correct "previous" version
	// to roll back to even though this is its first touch this block.
	tipRaw, tipOK, err := tx.Get(d.tipTable, d.keyBytes(key))
	if err != nil {
		return nil, err
	}
	var initial *V
	if tipOK {
		v, err := d.codec.Decode(tipRaw)
		if err != nil {
			return nil, fmt.Errorf("blockcacheddb: decoding %s tip seed value: %w", d.tipTable, err)
		}
		initial = &v
	}
	c := blockhistory.New(initial)
	d.cache[key] = c
	return c, nil
}

// ClearCache discards the in-memory write buffer without persisting it.
func (d *DB[K, V]) ClearCache() {
	d.cache = make(map[K]*blockhistory.Cache[V])
}

// isTrivial reports whether c carries no information worth persisting: a
// fresh Cache whose only recorded height is the absent genesis baseline.
func isTrivial[V comparable](c *blockhistory.Cache[V]) bool {
	return c.Latest() == nil && c.Len() <= 1
}

// Commit flushes every buffered key's history and tip value to the
// underlying tables and clears the buffer.
func (d *DB[K, V]) Commit(tx *storage.Tx) error {
	for key, c := range d.cache {
		kb := d.keyBytes(key)

		if isTrivial(c) {
			if err := tx.Delete(d.historyTable, kb); err != nil {
				return err
			}
		} else {
			raw, err := c.Encode(d.codec.Encode)
			if err != nil {
				return fmt.Errorf("blockcacheddb: encoding %s history: %w", d.historyTable, err)
			}
			if err := tx.Put(d.historyTable, kb, raw); err != nil {
				return err
			}
		}

		if latest := c.Latest(); latest != nil {
			raw, err := d.codec.Encode(*latest)
			if err != nil {
				return fmt.Errorf("blockcacheddb: encoding %s tip value: %w", d.tipTable, err)
			}
			if err := tx.Put(d.tipTable, kb, raw); err != nil {
				return err
			}
		} else {
			if err := tx.Delete(d.tipTable, kb); err != nil {
				return err
			}
		}
	}
	d.ClearCache()
	return nil
}

// Reorg rolls every key touched either on disk or in the write buffer back
// to its value as of latestValidBlockNumber, then commits the result.
// keysFromHistoryTable enumerates every key ever recorded to the history
// table, since mdbx has no way to list keys by value; callers supply it by
// scanning the history table themselves (see statestore, which already
// iterates every versioned table for its own bookkeeping).
func (d *DB[K, V]) Reorg(tx *storage.Tx, latestValidBlockNumber uint64, keysFromHistoryTable func(tx *storage.Tx, table string) ([]K, error)) error {
	onDisk, err := keysFromHistoryTable(tx, d.historyTable)
	if err != nil {
		return err
	}

	seen := make(map[K]struct{}, len(onDisk)+len(d.cache))
	touched := make([]K, 0, len(onDisk)+len(d.cache))
	for _, k := range onDisk {
		if _, ok := seen[k]; !ok {
			seen[k] = struct{}{}
			touched = append(touched, k)
		}
	}
	for k := range d.cache {
		if _, ok := seen[k]; !ok {
			seen[k] = struct{}{}
			touched = append(touched, k)
		}
	}

	for _, k := range touched {
		c, err := d.loadCacheIfNeeded(tx, k)
		if err != nil {
			return err
		}
		c.Reorg(latestValidBlockNumber)
	}

	return d.Commit(tx)
}
