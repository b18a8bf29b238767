// Package kv provides a table-oriented key-value abstraction modeled on
// Erigon's MDBX schema: named tables, unique-key cursors, and dup-sorted
// cursors for tables that hold multiple values per logical key. The backing
// store is the repository's in-memory rawdb.MemoryKVStore; this package adds
// the table/cursor layer on top of it.
package kv

// Table names. Names match the physical Erigon/MDBX table names they are
// modeled on, so logs and dumps read the same way a node operator expects.
const (
	CanonicalHeaders  Table = "CanonicalHeader"
	HashedAccount     Table = "HashedAccount"
	HashedStorage     Table = "HashedStorage"
	AccountsTrie      Table = "TrieAccount"
	StoragesTrie      Table = "TrieStorage"
	AccountChangeSet  Table = "AccountChangeSet"
	StorageChangeSet  Table = "StorageChangeSet"
	SyncStageProgress Table = "SyncStage"
)

// Table identifies one logical table within a DB.
type Table string

// dupSortTables lists the tables that store multiple values per primary key
// (HashedStorage is keyed by account hash with one value per storage slot;
// the two changesets are keyed by block/transition number with one value per
// account or storage slot touched in that block).
var dupSortTables = map[Table]bool{
	HashedStorage:    true,
	StoragesTrie:     true,
	AccountChangeSet: true,
	StorageChangeSet: true,
}

// IsDupSort reports whether t stores multiple values per primary key.
func IsDupSort(t Table) bool {
	return dupSortTables[t]
}
