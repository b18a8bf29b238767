package trie

import (
	"bytes"

	"github.com/eth2030/eth2030/core/types"
	"github.com/eth2030/eth2030/crypto"
	"github.com/eth2030/eth2030/kv"
)

// DBTrieLoader computes and incrementally maintains the state trie root
// from the hashed-state tables (HashedAccount, HashedStorage), persisting
// intermediate trie nodes into AccountsTrie/StoragesTrie and checkpointing
// its progress so a full rebuild can resume after a restart.
type DBTrieLoader struct {
	tx              kv.RwTx
	commitThreshold uint64
}

// NewDBTrieLoader creates a loader bound to tx. commitThreshold bounds how
// many accounts (each one put into or removed from the account trie) a
// CalculateRoot or UpdateRoot call processes before it checkpoints and
// flushes pending nodes to disk. Storage slot writes are not counted.
// A threshold of 0 is treated as 1.
func NewDBTrieLoader(tx kv.RwTx, commitThreshold uint64) *DBTrieLoader {
	if commitThreshold == 0 {
		commitThreshold = 1
	}
	return &DBTrieLoader{tx: tx, commitThreshold: commitThreshold}
}

// CalculateStorageRoot rebuilds the storage trie for hashedAccount from its
// HashedStorage entries and persists the resulting nodes to StoragesTrie.
// Returns types.EmptyRootHash if the account has no storage.
func (l *DBTrieLoader) CalculateStorageRoot(hashedAccount types.Hash) (types.Hash, error) {
	c, err := l.tx.Cursor(kv.HashedStorage)
	if err != nil {
		return types.Hash{}, err
	}
	defer c.Close()

	prefix := hashedAccount.Bytes()
	st := New()
	empty := true
	k, v, err := c.Seek(prefix)
	for err == nil && k != nil && bytes.HasPrefix(k, prefix) {
		slot := append([]byte{}, k[len(prefix):]...)
		if perr := st.Put(slot, v); perr != nil {
			return types.Hash{}, perr
		}
		empty = false
		k, v, err = c.Next()
	}
	if err != nil {
		return types.Hash{}, err
	}
	if empty {
		return types.EmptyRootHash, nil
	}

	db := NewStorageTrieDatabase(l.tx, hashedAccount)
	root, err := CommitTrie(st, db)
	if err != nil {
		return types.Hash{}, err
	}
	if err := db.Commit(&storageTrieWriter{tx: l.tx, hashedAccount: hashedAccount}); err != nil {
		return types.Hash{}, err
	}
	return root, nil
}

// commitAndFlush hashes rt's dirty nodes, as ResolvableTrie.Commit does, and
// additionally flushes them to writer so they survive past this call.
// ResolvableTrie.Commit alone only moves nodes into the in-memory dirty
// cache of its NodeDatabase; callers that need the nodes durable must flush
// separately, the same two-step Commit/db.Commit sequence CalculateStorageRoot
// uses.
func commitAndFlush(rt *ResolvableTrie, writer NodeWriter) (types.Hash, error) {
	root, err := rt.Commit()
	if err != nil {
		return types.Hash{}, err
	}
	if err := rt.db.Commit(writer); err != nil {
		return types.Hash{}, err
	}
	return root, nil
}

func (l *DBTrieLoader) hasStorage(hashedAccount types.Hash) (bool, error) {
	c, err := l.tx.Cursor(kv.HashedStorage)
	if err != nil {
		return false, err
	}
	defer c.Close()
	prefix := hashedAccount.Bytes()
	k, _, err := c.Seek(prefix)
	if err != nil {
		return false, err
	}
	return k != nil && bytes.HasPrefix(k, prefix), nil
}

// getHashedStorageValue looks up the exact HashedStorage entry for
// hashedAccount/hashedSlot, or nil if absent. HashedStorage is dup-sorted,
// but CursorDupSort.SeekBothRange only reports whether a value exists at or
// after the requested sort key, not whether it lands on it exactly; an
// exact lookup instead seeks the raw compound key and checks the result for
// equality, the same way hasStorage checks for a prefix match.
func (l *DBTrieLoader) getHashedStorageValue(hashedAccount, hashedSlot types.Hash) ([]byte, error) {
	c, err := l.tx.Cursor(kv.HashedStorage)
	if err != nil {
		return nil, err
	}
	defer c.Close()
	key := kv.EncodeDupKey(hashedAccount.Bytes(), hashedSlot.Bytes())
	k, v, err := c.Seek(key)
	if err != nil {
		return nil, err
	}
	if k == nil || !bytes.Equal(k, key) {
		return nil, nil
	}
	return v, nil
}

// RootResult is the outcome of a CalculateRoot or UpdateRoot call. When
// Complete is false, Root is a partial root that has been checkpointed and
// persisted but does not yet reflect every account; the caller must call
// the same operation again (with the same arguments, for UpdateRoot) to
// make further progress.
type RootResult struct {
	Complete bool
	Root     types.Hash
}

// replaceAccountRoot deletes the AccountsTrie node for previousRoot once
// newRoot has superseded it, so the old root's node doesn't linger forever.
// A zero previousRoot means nothing was persisted yet, so there is nothing
// to delete.
func replaceAccountRoot(tx kv.RwTx, previousRoot, newRoot types.Hash) error {
	if previousRoot == newRoot || previousRoot == (types.Hash{}) {
		return nil
	}
	return tx.Delete(kv.AccountsTrie, previousRoot.Bytes())
}

// replaceStorageRoot deletes the StoragesTrie node for hashedAccount's
// previousRoot once newRoot has superseded it. EMPTY_ROOT is never actually
// persisted as a node, so it is skipped like a zero previousRoot.
func replaceStorageRoot(tx kv.RwTx, hashedAccount, previousRoot, newRoot types.Hash) error {
	if previousRoot == newRoot || previousRoot == (types.Hash{}) || previousRoot == types.EmptyRootHash {
		return nil
	}
	return tx.Delete(kv.StoragesTrie, kv.EncodeDupKey(hashedAccount.Bytes(), previousRoot.Bytes()))
}

// commitAccountTrie commits rt's dirty nodes, flushes them, and garbage
// collects the node previousRoot pointed at now that it has been
// superseded.
func (l *DBTrieLoader) commitAccountTrie(rt *ResolvableTrie, previousRoot types.Hash) (types.Hash, error) {
	newRoot, err := commitAndFlush(rt, &accountTrieWriter{tx: l.tx})
	if err != nil {
		return types.Hash{}, err
	}
	if err := replaceAccountRoot(l.tx, previousRoot, newRoot); err != nil {
		return types.Hash{}, err
	}
	return newRoot, nil
}

// updateStorageRoot resumes hashedAccount's storage trie from previousRoot
// and applies only the touched slots, reading each one's current value
// from HashedStorage: present entries are inserted or updated, absent ones
// are removed. Unlike CalculateStorageRoot it never touches slots outside
// touchedSlots.
func (l *DBTrieLoader) updateStorageRoot(hashedAccount, previousRoot types.Hash, touchedSlots []types.Hash) (types.Hash, error) {
	rt, err := NewResolvableTrie(previousRoot, NewStorageTrieDatabase(l.tx, hashedAccount))
	if err != nil {
		return types.Hash{}, err
	}
	for _, hashedSlot := range touchedSlots {
		v, gerr := l.getHashedStorageValue(hashedAccount, hashedSlot)
		if gerr != nil {
			return types.Hash{}, gerr
		}
		if v == nil {
			if err := rt.Delete(hashedSlot.Bytes()); err != nil {
				return types.Hash{}, err
			}
			continue
		}
		if err := rt.Put(hashedSlot.Bytes(), v); err != nil {
			return types.Hash{}, err
		}
	}
	newRoot, err := commitAndFlush(rt, &storageTrieWriter{tx: l.tx, hashedAccount: hashedAccount})
	if err != nil {
		return types.Hash{}, err
	}
	if err := replaceStorageRoot(l.tx, hashedAccount, previousRoot, newRoot); err != nil {
		return types.Hash{}, err
	}
	return newRoot, nil
}

// CalculateRoot performs a full rebuild of the account trie from the
// HashedAccount/HashedStorage tables, resuming from any persisted
// checkpoint. Once commitThreshold account insertions have accumulated, it
// persists a checkpoint and returns an incomplete RootResult so the caller
// can decide whether to keep going; it never does so after the very last
// account, instead clearing the checkpoint and returning Complete with the
// final state root.
func (l *DBTrieLoader) CalculateRoot() (RootResult, error) {
	cp, err := LoadCheckpoint(l.tx)
	if err != nil {
		return RootResult{}, err
	}

	accountDB := NewAccountTrieDatabase(l.tx)
	rt, err := NewResolvableTrie(cp.PartialRoot, accountDB)
	if err != nil {
		return RootResult{}, err
	}

	c, err := l.tx.Cursor(kv.HashedAccount)
	if err != nil {
		return RootResult{}, err
	}
	defer c.Close()

	var k, v []byte
	if cp.Inserted > 0 || cp.LastHashedAccount != (types.Hash{}) {
		k, v, err = c.Seek(cp.LastHashedAccount.Bytes())
		if err == nil && k != nil && bytes.Equal(k, cp.LastHashedAccount.Bytes()) {
			k, v, err = c.Next()
		}
	} else {
		k, v, err = c.First()
	}
	if err != nil {
		return RootResult{}, err
	}

	var inserted uint64
	for k != nil {
		hashedAddr := types.BytesToHash(k)
		acc, derr := decodeAccount(v)
		if derr != nil {
			return RootResult{}, derr
		}

		hasStore, herr := l.hasStorage(hashedAddr)
		if herr != nil {
			return RootResult{}, herr
		}
		if hasStore {
			storageRoot, serr := l.CalculateStorageRoot(hashedAddr)
			if serr != nil {
				return RootResult{}, serr
			}
			acc.Root = storageRoot
		} else {
			acc.Root = types.EmptyRootHash
		}

		encoded, eerr := EncodeAccount(acc)
		if eerr != nil {
			return RootResult{}, eerr
		}
		if perr := rt.Put(hashedAddr.Bytes(), encoded); perr != nil {
			return RootResult{}, perr
		}
		inserted++

		nk, nv, nerr := c.Next()
		if nerr != nil {
			return RootResult{}, nerr
		}

		if inserted >= l.commitThreshold && nk != nil {
			partialRoot, cerr := l.commitAccountTrie(rt, cp.PartialRoot)
			if cerr != nil {
				return RootResult{}, cerr
			}
			cp.Inserted += inserted
			cp.LastHashedAccount = hashedAddr
			cp.PartialRoot = partialRoot
			if serr := SaveCheckpoint(l.tx, cp); serr != nil {
				return RootResult{}, serr
			}
			return RootResult{Complete: false, Root: partialRoot}, nil
		}

		k, v = nk, nv
	}

	finalRoot, err := l.commitAccountTrie(rt, cp.PartialRoot)
	if err != nil {
		return RootResult{}, err
	}
	if err := ClearCheckpoint(l.tx); err != nil {
		return RootResult{}, err
	}
	return RootResult{Complete: true, Root: finalRoot}, nil
}

// UpdateRoot incrementally brings the account trie rooted at previousRoot
// up to date with every account and storage slot touched during rng,
// gathered from AccountChangeSet/StorageChangeSet, resuming from any
// persisted checkpoint. Accounts absent from HashedAccount are removed;
// accounts already present in the trie have only their touched storage
// keys updated via updateStorageRoot, while accounts new to the trie get a
// full CalculateStorageRoot rebuild. Like CalculateRoot, it checkpoints and
// returns an incomplete RootResult at commitThreshold, never after the
// last changed account. Resuming calls must pass the same previousRoot and
// rng as the original call; the checkpoint tracks how far the scan got.
func (l *DBTrieLoader) UpdateRoot(previousRoot types.Hash, rng TransitionRange) (RootResult, error) {
	changed, err := gatherChangedAccounts(l.tx, rng)
	if err != nil {
		return RootResult{}, err
	}

	cp, err := LoadCheckpoint(l.tx)
	if err != nil {
		return RootResult{}, err
	}

	resuming := cp.Inserted > 0 || cp.LastHashedAccount != (types.Hash{})
	trieRoot := previousRoot
	if resuming {
		trieRoot = cp.PartialRoot
	}
	rt, err := NewResolvableTrie(trieRoot, NewAccountTrieDatabase(l.tx))
	if err != nil {
		return RootResult{}, err
	}

	start := 0
	if resuming {
		for start < len(changed) && bytes.Compare(changed[start].hashedAddress.Bytes(), cp.LastHashedAccount.Bytes()) <= 0 {
			start++
		}
	}

	var inserted uint64
	for i := start; i < len(changed); i++ {
		ca := changed[i]

		hv, herr := l.tx.GetOne(kv.HashedAccount, ca.hashedAddress.Bytes())
		if herr != nil {
			return RootResult{}, herr
		}
		if hv == nil {
			if derr := rt.Delete(ca.hashedAddress.Bytes()); derr != nil {
				return RootResult{}, derr
			}
		} else {
			acc, derr := decodeAccount(hv)
			if derr != nil {
				return RootResult{}, derr
			}

			var newStorageRoot types.Hash
			existing, gerr := rt.Get(ca.hashedAddress.Bytes())
			switch {
			case gerr == nil:
				prevAcc, perr := decodeAccount(existing)
				if perr != nil {
					return RootResult{}, perr
				}
				newStorageRoot, err = l.updateStorageRoot(ca.hashedAddress, prevAcc.Root, ca.storageKeys)
			case gerr == ErrNotFound:
				newStorageRoot, err = l.CalculateStorageRoot(ca.hashedAddress)
			default:
				return RootResult{}, gerr
			}
			if err != nil {
				return RootResult{}, err
			}

			acc.Root = newStorageRoot
			encoded, eerr := EncodeAccount(acc)
			if eerr != nil {
				return RootResult{}, eerr
			}
			if perr := rt.Put(ca.hashedAddress.Bytes(), encoded); perr != nil {
				return RootResult{}, perr
			}
		}
		inserted++

		if inserted >= l.commitThreshold && i+1 < len(changed) {
			partialRoot, cerr := l.commitAccountTrie(rt, trieRoot)
			if cerr != nil {
				return RootResult{}, cerr
			}
			cp.Inserted += inserted
			cp.LastHashedAccount = ca.hashedAddress
			cp.PartialRoot = partialRoot
			if serr := SaveCheckpoint(l.tx, cp); serr != nil {
				return RootResult{}, serr
			}
			return RootResult{Complete: false, Root: partialRoot}, nil
		}
	}

	finalRoot, err := l.commitAccountTrie(rt, trieRoot)
	if err != nil {
		return RootResult{}, err
	}
	if err := ClearCheckpoint(l.tx); err != nil {
		return RootResult{}, err
	}
	return RootResult{Complete: true, Root: finalRoot}, nil
}

// ReplaceAccountRoot updates or deletes a single account in the account
// trie rooted at currentRoot and returns the new root, garbage collecting
// currentRoot's superseded node.
func (l *DBTrieLoader) ReplaceAccountRoot(currentRoot types.Hash, hashedAccount types.Hash, account *types.Account) (types.Hash, error) {
	rt, err := NewResolvableTrie(currentRoot, NewAccountTrieDatabase(l.tx))
	if err != nil {
		return types.Hash{}, err
	}
	if account == nil {
		if err := rt.Delete(hashedAccount.Bytes()); err != nil {
			return types.Hash{}, err
		}
	} else {
		encoded, err := EncodeAccount(account)
		if err != nil {
			return types.Hash{}, err
		}
		if err := rt.Put(hashedAccount.Bytes(), encoded); err != nil {
			return types.Hash{}, err
		}
	}
	return l.commitAccountTrie(rt, currentRoot)
}

// ReplaceStorageRoot updates or deletes a single storage slot in the
// storage trie for hashedAccount rooted at currentRoot and returns the new
// storage root, garbage collecting currentRoot's superseded node. A zero
// value deletes the slot.
func (l *DBTrieLoader) ReplaceStorageRoot(currentRoot types.Hash, hashedAccount, hashedSlot types.Hash, value [32]byte) (types.Hash, error) {
	rt, err := NewResolvableTrie(currentRoot, NewStorageTrieDatabase(l.tx, hashedAccount))
	if err != nil {
		return types.Hash{}, err
	}
	writer := &storageTrieWriter{tx: l.tx, hashedAccount: hashedAccount}
	if value == ([32]byte{}) {
		if err := rt.Delete(hashedSlot.Bytes()); err != nil {
			return types.Hash{}, err
		}
	} else {
		encoded, err := EncodeStorageValue(value)
		if err != nil {
			return types.Hash{}, err
		}
		if err := rt.Put(hashedSlot.Bytes(), encoded); err != nil {
			return types.Hash{}, err
		}
	}
	newRoot, err := commitAndFlush(rt, writer)
	if err != nil {
		return types.Hash{}, err
	}
	if err := replaceStorageRoot(l.tx, hashedAccount, currentRoot, newRoot); err != nil {
		return types.Hash{}, err
	}
	return newRoot, nil
}

// GenerateAccountProof returns a Merkle proof for address against the
// account trie rooted at root.
func (l *DBTrieLoader) GenerateAccountProof(root types.Hash, address types.Address) (*AccountProofData, error) {
	rt, err := NewResolvableTrie(root, NewAccountTrieDatabase(l.tx))
	if err != nil {
		return nil, err
	}
	hashedAddr := crypto.Keccak256Hash(address.Bytes())

	proof, perr := rt.Prove(hashedAddr.Bytes())
	if perr != nil && perr != ErrNotFound {
		return nil, perr
	}

	data := &AccountProofData{Address: address, Proof: proof}
	if perr == nil {
		raw, gerr := rt.Get(hashedAddr.Bytes())
		if gerr == nil {
			if acc, derr := decodeAccount(raw); derr == nil {
				data.AccountRLP = raw
				data.Nonce = acc.Nonce
				data.Balance = acc.Balance
				data.StorageHash = acc.Root
				data.CodeHash = types.BytesToHash(acc.CodeHash)
			}
		}
	}
	return data, nil
}

// GenerateStorageProofs returns Merkle proofs for each requested storage
// slot against the storage trie for hashedAccount rooted at storageRoot.
func (l *DBTrieLoader) GenerateStorageProofs(storageRoot types.Hash, hashedAccount types.Hash, slots []types.Hash) ([]StorageProofData, error) {
	rt, err := NewResolvableTrie(storageRoot, NewStorageTrieDatabase(l.tx, hashedAccount))
	if err != nil {
		return nil, err
	}

	out := make([]StorageProofData, 0, len(slots))
	for _, slot := range slots {
		hashedSlot := crypto.Keccak256Hash(slot.Bytes())
		proof, perr := rt.Prove(hashedSlot.Bytes())
		sp := StorageProofData{Key: slot, Proof: proof}
		if perr == nil {
			if raw, gerr := rt.Get(hashedSlot.Bytes()); gerr == nil {
				if val, derr := DecodeStorageValue(raw); derr == nil {
					sp.Value = types.BytesToHash(val[:])
				}
			}
		} else if perr != ErrNotFound {
			return nil, perr
		}
		out = append(out, sp)
	}
	return out, nil
}
