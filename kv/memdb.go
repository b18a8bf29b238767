package kv

import (
	"fmt"
	"sync"

	"github.com/eth2030/eth2030/core/rawdb"
)

// primaryKeyLen gives the byte length of the primary (outer) key for each
// dup-sort table; the remainder of a stored compound key is the secondary
// (sort) key. Chosen to match the real MDBX layouts these tables are
// modeled on: HashedStorage and StoragesTrie are keyed by a 32-byte hashed
// account address, the two changesets by an 8-byte block number.
var primaryKeyLen = map[Table]int{
	HashedStorage:    32,
	StoragesTrie:     32,
	AccountChangeSet: 8,
	StorageChangeSet: 8,
}

// MemDB is an in-memory DB implementation. Each table is backed by its own
// rawdb.MemoryKVStore; dup-sort tables store compound keys (primary ||
// secondary) with the payload as the value, which the dup cursor splits back
// apart on iteration.
//
// MemDB does not provide MVCC snapshot isolation: since the blockchain tree
// and trie loader both operate under the single-writer model described in
// the repository's concurrency design, transactions are a bookkeeping
// convenience (batched writes, explicit commit/rollback) rather than a
// concurrency primitive.
type MemDB struct {
	mu     sync.Mutex
	tables map[Table]*rawdb.MemoryKVStore
}

// NewMemDB creates an empty MemDB with all known tables initialized.
func NewMemDB() *MemDB {
	db := &MemDB{tables: make(map[Table]*rawdb.MemoryKVStore)}
	for _, t := range []Table{
		CanonicalHeaders, HashedAccount, HashedStorage, AccountsTrie,
		StoragesTrie, AccountChangeSet, StorageChangeSet, SyncStageProgress,
	} {
		db.tables[t] = rawdb.NewMemoryKVStore()
	}
	return db
}

func (db *MemDB) store(t Table) *rawdb.MemoryKVStore {
	db.mu.Lock()
	defer db.mu.Unlock()
	s, ok := db.tables[t]
	if !ok {
		s = rawdb.NewMemoryKVStore()
		db.tables[t] = s
	}
	return s
}

// BeginRo opens a read-only transaction.
func (db *MemDB) BeginRo() (Tx, error) {
	return &memTx{db: db}, nil
}

// BeginRw opens a read-write transaction. Writes are buffered in
// per-table rawdb.WriteBatch values and only become visible on Commit.
func (db *MemDB) BeginRw() (RwTx, error) {
	return &memTx{db: db, batches: make(map[Table]*rawdb.WriteBatch)}, nil
}

type memTx struct {
	db      *MemDB
	batches map[Table]*rawdb.WriteBatch // nil for read-only transactions
	done    bool
}

func (tx *memTx) batch(t Table) *rawdb.WriteBatch {
	b, ok := tx.batches[t]
	if !ok {
		b = tx.db.store(t).NewBatch()
		tx.batches[t] = b
	}
	return b
}

func (tx *memTx) GetOne(t Table, key []byte) ([]byte, error) {
	if tx.done {
		return nil, ErrTxDone
	}
	if IsDupSort(t) {
		c, err := tx.CursorDupSort(t)
		if err != nil {
			return nil, err
		}
		defer c.Close()
		k, v, err := c.Seek(key)
		if err != nil || v == nil || string(k) != string(key) {
			return nil, err
		}
		return v, nil
	}
	val, err := tx.db.store(t).Get(key)
	if err == rawdb.ErrKVNotFound {
		return nil, nil
	}
	return val, err
}

func (tx *memTx) Cursor(t Table) (Cursor, error) {
	if tx.done {
		return nil, ErrTxDone
	}
	return &cursor{store: tx.db.store(t)}, nil
}

func (tx *memTx) CursorDupSort(t Table) (CursorDupSort, error) {
	if tx.done {
		return nil, ErrTxDone
	}
	plen, ok := primaryKeyLen[t]
	if !ok {
		return nil, fmt.Errorf("kv: table %q is not registered as dup-sort", t)
	}
	return &dupCursor{cursor: cursor{store: tx.db.store(t)}, primaryLen: plen}, nil
}

func (tx *memTx) Put(t Table, key, value []byte) error {
	if tx.batches == nil {
		return fmt.Errorf("kv: Put on read-only transaction")
	}
	if tx.done {
		return ErrTxDone
	}
	tx.batch(t).Put(key, value)
	return nil
}

func (tx *memTx) Delete(t Table, key []byte) error {
	if tx.batches == nil {
		return fmt.Errorf("kv: Delete on read-only transaction")
	}
	if tx.done {
		return ErrTxDone
	}
	tx.batch(t).Delete(key)
	return nil
}

func (tx *memTx) Commit() error {
	if tx.done {
		return ErrTxDone
	}
	tx.done = true
	for _, b := range tx.batches {
		if err := b.Write(); err != nil {
			return err
		}
	}
	return nil
}

func (tx *memTx) Rollback() {
	tx.done = true
}
