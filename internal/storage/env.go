// Package storage opens and owns the single mdbx environment this engine
// persists all block-versioned state into. Grounded on
// original_source/src/db/db.rs::DB::new (raising the process's open-file
// limit before opening the store, one environment for every table) and on
// erigon-lib/kv/tables.go's table-count-driven MaxDB sizing.
package storage

import (
	"fmt"
	"os"
	"path/filepath"
	"syscall"

	"github.com/erigontech/erigon-lib/log/v3"
	"github.com/erigontech/mdbx-go/mdbx"
	"github.com/gofrs/flock"

	"github.com/erigontech/brc20-prog/internal/kvschema"
)

// minOpenFiles mirrors the reference implementation's rlimit raise
// (it sets RLIMIT_NOFILE to at least 4096, falling back to 8192 on some
// platforms); mdbx keeps one file descriptor per open table plus the
// environment's data and lock files.
const minOpenFiles = 4096

// Env owns the mdbx environment and the datadir lock file.
type Env struct {
	mdbx *mdbx.Env
	lock *flock.Flock
	log  log.Logger
}

// Open creates dataDir if needed, takes an exclusive lock on it, raises the
// process's open file limit, and opens (creating on first use) every table
// in kvschema.AllTables.
func Open(dataDir string, logger log.Logger) (*Env, error) {
	return OpenWithTables(dataDir, logger, kvschema.AllTables())
}

// OpenWithTables is like Open but opens exactly the given table names
// instead of the production schema in kvschema.AllTables. Exercised
// directly by internal/blockcacheddb and internal/blockdb's tests, which
// only need a couple of ad-hoc tables rather than the full engine schema.
func OpenWithTables(dataDir string, logger log.Logger, tables []string) (*Env, error) {
	if logger == nil {
		logger = log.Root()
	}
	if err := os.MkdirAll(dataDir, 0o755); err != nil {
		return nil, fmt.Errorf("storage: creating datadir: %w", err)
	}

	raiseOpenFileLimit(logger)

	lock := flock.New(filepath.Join(dataDir, "LOCK"))
	locked, err := lock.TryLock()
	if err != nil {
		return nil, fmt.Errorf("storage: locking datadir: %w", err)
	}
	if !locked {
		return nil, fmt.Errorf("storage: datadir %s is already in use by another process", dataDir)
	}

	env, err := mdbx.NewEnv()
	if err != nil {
		_ = lock.Unlock()
		return nil, fmt.Errorf("storage: creating mdbx env: %w", err)
	}

	if err := env.SetOption(mdbx.OptMaxDB, uint64(len(tables)+8)); err != nil {
		_ = lock.Unlock()
		return nil, fmt.Errorf("storage: setting max tables: %w", err)
	}

	const openFlags = mdbx.NoReadahead
	if err := env.Open(dataDir, openFlags, 0o644); err != nil {
		_ = lock.Unlock()
		return nil, fmt.Errorf("storage: opening mdbx env at %s: %w", dataDir, err)
	}

	e := &Env{mdbx: env, lock: lock, log: logger}
	if err := e.createTables(tables); err != nil {
		_ = env.Close()
		_ = lock.Unlock()
		return nil, err
	}
	logger.Info("storage: opened", "datadir", dataDir, "tables", len(tables))
	return e, nil
}

func (e *Env) createTables(tables []string) error {
	return e.mdbx.Update(func(txn *mdbx.Txn) error {
		for _, name := range tables {
			if _, err := txn.OpenDBISimple(name, mdbx.Create); err != nil {
				return fmt.Errorf("storage: creating table %s: %w", name, err)
			}
		}
		return nil
	})
}

// Close flushes and closes the mdbx environment and releases the datadir lock.
func (e *Env) Close() error {
	e.mdbx.Close()
	return e.lock.Unlock()
}

// Update runs fn inside a read-write mdbx transaction. fn's changes commit
// if it returns nil, and roll back otherwise.
func (e *Env) Update(fn func(tx *Tx) error) error {
	return e.mdbx.Update(func(txn *mdbx.Txn) error {
		return fn(&Tx{txn: txn})
	})
}

// View runs fn inside a read-only mdbx transaction.
func (e *Env) View(fn func(tx *Tx) error) error {
	return e.mdbx.View(func(txn *mdbx.Txn) error {
		return fn(&Tx{txn: txn})
	})
}

// Tx is a thin wrapper around an mdbx transaction scoped to this engine's
// table set; it resolves table names to DBI handles lazily and caches them
// for the lifetime of the transaction.
type Tx struct {
	txn  *mdbx.Txn
	dbis map[string]mdbx.DBI
}

func (t *Tx) dbi(table string) (mdbx.DBI, error) {
	if t.dbis == nil {
		t.dbis = make(map[string]mdbx.DBI, 8)
	}
	if dbi, ok := t.dbis[table]; ok {
		return dbi, nil
	}
	dbi, err := t.txn.OpenDBISimple(table, 0)
	if err != nil {
		return 0, fmt.Errorf("storage: opening table %s: %w", table, err)
	}
	t.dbis[table] = dbi
	return dbi, nil
}

// Get returns the value stored for key in table, or (nil, false) if absent.
func (t *Tx) Get(table string, key []byte) ([]byte, bool, error) {
	dbi, err := t.dbi(table)
	if err != nil {
		return nil, false, err
	}
	v, err := t.txn.Get(dbi, key)
	if mdbx.IsNotFound(err) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("storage: get %s: %w", table, err)
	}
	out := make([]byte, len(v))
	copy(out, v)
	return out, true, nil
}

// Put writes key -> value in table, overwriting any existing value.
func (t *Tx) Put(table string, key, value []byte) error {
	dbi, err := t.dbi(table)
	if err != nil {
		return err
	}
	if err := t.txn.Put(dbi, key, value, 0); err != nil {
		return fmt.Errorf("storage: put %s: %w", table, err)
	}
	return nil
}

// Delete removes key from table, if present.
func (t *Tx) Delete(table string, key []byte) error {
	dbi, err := t.dbi(table)
	if err != nil {
		return err
	}
	if err := t.txn.Del(dbi, key, nil); err != nil && !mdbx.IsNotFound(err) {
		return fmt.Errorf("storage: delete %s: %w", table, err)
	}
	return nil
}

// ForEach iterates every key/value pair in table in key order, calling fn
// for each. Iteration stops at the first error fn returns.
func (t *Tx) ForEach(table string, fn func(key, value []byte) error) error {
	dbi, err := t.dbi(table)
	if err != nil {
		return err
	}
	cur, err := t.txn.OpenCursor(dbi)
	if err != nil {
		return fmt.Errorf("storage: opening cursor on %s: %w", table, err)
	}
	defer cur.Close()

	k, v, err := cur.Get(nil, nil, mdbx.First)
	for err == nil {
		if ferr := fn(k, v); ferr != nil {
			return ferr
		}
		k, v, err = cur.Get(nil, nil, mdbx.Next)
	}
	if mdbx.IsNotFound(err) {
		return nil
	}
	return err
}

// LastKey returns the greatest key stored in table, and whether the table
// has any entries at all.
func (t *Tx) LastKey(table string) ([]byte, bool, error) {
	dbi, err := t.dbi(table)
	if err != nil {
		return nil, false, err
	}
	cur, err := t.txn.OpenCursor(dbi)
	if err != nil {
		return nil, false, fmt.Errorf("storage: opening cursor on %s: %w", table, err)
	}
	defer cur.Close()

	k, _, err := cur.Get(nil, nil, mdbx.Last)
	if mdbx.IsNotFound(err) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	out := make([]byte, len(k))
	copy(out, k)
	return out, true, nil
}

func raiseOpenFileLimit(logger log.Logger) {
	var limit syscall.Rlimit
	if err := syscall.Getrlimit(syscall.RLIMIT_NOFILE, &limit); err != nil {
		logger.Warn("storage: could not read RLIMIT_NOFILE", "err", err)
		return
	}
	if limit.Cur >= minOpenFiles {
		return
	}
	want := limit.Max
	if want > minOpenFiles || want == 0 {
		want = minOpenFiles
	}
	limit.Cur = want
	if err := syscall.Setrlimit(syscall.RLIMIT_NOFILE, &limit); err != nil {
		logger.Warn("storage: could not raise RLIMIT_NOFILE", "want", want, "err", err)
	}
}
