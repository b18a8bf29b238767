package trie

import (
	"github.com/eth2030/eth2030/core/types"
	"github.com/eth2030/eth2030/kv"
)

// accountTrieReader resolves account-trie nodes from the AccountsTrie table.
type accountTrieReader struct {
	tx kv.Tx
}

func (r *accountTrieReader) Node(hash types.Hash) ([]byte, error) {
	data, err := r.tx.GetOne(kv.AccountsTrie, hash.Bytes())
	if err != nil {
		return nil, err
	}
	if data == nil {
		return nil, ErrNodeNotFound
	}
	return data, nil
}

// accountTrieWriter persists account-trie nodes to the AccountsTrie table.
type accountTrieWriter struct {
	tx kv.RwTx
}

func (w *accountTrieWriter) Put(hash types.Hash, data []byte) error {
	return w.tx.Put(kv.AccountsTrie, hash.Bytes(), data)
}

// storageTrieReader resolves storage-trie nodes for a single account from
// the dup-sorted StoragesTrie table, keyed by the account's hashed address.
type storageTrieReader struct {
	tx            kv.Tx
	hashedAccount types.Hash
}

func (r *storageTrieReader) Node(hash types.Hash) ([]byte, error) {
	c, err := r.tx.CursorDupSort(kv.StoragesTrie)
	if err != nil {
		return nil, err
	}
	defer c.Close()
	v, err := c.SeekBothRange(r.hashedAccount.Bytes(), hash.Bytes())
	if err != nil {
		return nil, err
	}
	if v == nil {
		return nil, ErrNodeNotFound
	}
	return v, nil
}

// storageTrieWriter persists storage-trie nodes for a single account.
type storageTrieWriter struct {
	tx            kv.RwTx
	hashedAccount types.Hash
}

func (w *storageTrieWriter) Put(hash types.Hash, data []byte) error {
	return kv.PutDup(w.tx, kv.StoragesTrie, w.hashedAccount.Bytes(), hash.Bytes(), data)
}

// NewAccountTrieDatabase returns a NodeDatabase that reads and, through
// Commit, writes account-trie nodes against the given transaction.
func NewAccountTrieDatabase(tx kv.Tx) *NodeDatabase {
	return NewNodeDatabase(&accountTrieReader{tx: tx})
}

// NewStorageTrieDatabase returns a NodeDatabase scoped to a single account's
// storage trie, identified by its hashed address.
func NewStorageTrieDatabase(tx kv.Tx, hashedAccount types.Hash) *NodeDatabase {
	return NewNodeDatabase(&storageTrieReader{tx: tx, hashedAccount: hashedAccount})
}
