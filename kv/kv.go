package kv

import "errors"

// ErrTxDone is returned by operations attempted on a transaction that has
// already been committed or rolled back.
var ErrTxDone = errors.New("kv: transaction already committed or rolled back")

// Tx is a read-only view over all tables in a DB.
type Tx interface {
	// GetOne returns the value stored at key in table, or nil if absent.
	// For dup-sort tables it returns the first value for key.
	GetOne(table Table, key []byte) ([]byte, error)

	// Cursor opens a unique-key cursor over table.
	Cursor(table Table) (Cursor, error)

	// CursorDupSort opens a dup-sort cursor over table. Table must be
	// registered as dup-sort (see IsDupSort); otherwise returns an error.
	CursorDupSort(table Table) (CursorDupSort, error)

	// Rollback discards the transaction. Safe to call after Commit.
	Rollback()
}

// RwTx additionally allows mutation, applied atomically at Commit.
type RwTx interface {
	Tx

	Put(table Table, key, value []byte) error
	Delete(table Table, key []byte) error

	// Commit applies all buffered writes to the underlying store.
	Commit() error
}

// Cursor walks a unique-key table in ascending key order.
type Cursor interface {
	First() (k, v []byte, err error)
	Seek(key []byte) (k, v []byte, err error)
	Next() (k, v []byte, err error)
	Close()
}

// CursorDupSort additionally walks the values of a single key in ascending
// order, matching MDBX's dup-sort cursor operations.
type CursorDupSort interface {
	Cursor

	// SeekBothRange positions at the first value for key whose sort key is
	// >= subKey, returning the matched value, or nil if key has no such
	// value. Leaves the cursor positioned for a following NextDup.
	SeekBothRange(key, subKey []byte) (v []byte, err error)

	// NextDup advances within the current key's duplicates. Returns
	// (nil, nil, nil) once the duplicates for the current key are exhausted.
	NextDup() (k, v []byte, err error)

	// DeleteCurrentDuplicates removes every value stored under the key the
	// cursor is currently positioned on.
	DeleteCurrentDuplicates() error
}

// DB opens transactions over a fixed set of tables.
type DB interface {
	BeginRo() (Tx, error)
	BeginRw() (RwTx, error)
}
