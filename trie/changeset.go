package trie

import (
	"bytes"
	"encoding/binary"
	"sort"

	"github.com/eth2030/eth2030/core/types"
	"github.com/eth2030/eth2030/crypto"
	"github.com/eth2030/eth2030/kv"
)

// TransitionRange identifies a half-open [From, To) span of transition ids
// to scan for changes when computing an incremental root with UpdateRoot.
// Transition ids are the same monotonically increasing counter
// AccountChangeSet and StorageChangeSet are keyed by.
type TransitionRange struct {
	From uint64
	To   uint64
}

// transitionIDBytes encodes a transition id as the 8-byte big-endian
// primary key AccountChangeSet and StorageChangeSet are keyed by.
func transitionIDBytes(id uint64) []byte {
	var buf [8]byte
	binary.BigEndian.PutUint64(buf[:], id)
	return buf[:]
}

// RecordAccountChange marks addr as touched during transitionID, appending
// an entry to AccountChangeSet. Callers record one entry per account whose
// balance, nonce, code hash, or storage changed while applying that
// transition, so a later UpdateRoot call can find it without rescanning
// every account.
func RecordAccountChange(tx kv.RwTx, transitionID uint64, addr types.Address) error {
	return kv.PutDup(tx, kv.AccountChangeSet, transitionIDBytes(transitionID), addr.Bytes(), []byte{})
}

// RecordStorageChange marks the storage slot slot of addr as touched during
// transitionID, appending an entry to StorageChangeSet.
func RecordStorageChange(tx kv.RwTx, transitionID uint64, addr types.Address, slot types.Hash) error {
	secondary := make([]byte, 0, types.AddressLength+types.HashLength)
	secondary = append(secondary, addr.Bytes()...)
	secondary = append(secondary, slot.Bytes()...)
	return kv.PutDup(tx, kv.StorageChangeSet, transitionIDBytes(transitionID), secondary, []byte{})
}

// changedAccount is one entry of the changed_accounts map UpdateRoot's
// changeset scan produces: a hashed address together with the hashed
// storage keys touched under it, sorted and deduplicated.
type changedAccount struct {
	hashedAddress types.Hash
	storageKeys   []types.Hash
}

// gatherChangedAccounts scans AccountChangeSet and StorageChangeSet over rng
// and returns every touched account, sorted by hashed address, each
// carrying its touched storage keys hashed and sorted the same way.
func gatherChangedAccounts(tx kv.Tx, rng TransitionRange) ([]changedAccount, error) {
	touched := make(map[types.Hash]map[types.Hash]struct{})
	touch := func(hashedAddr types.Hash) map[types.Hash]struct{} {
		m, ok := touched[hashedAddr]
		if !ok {
			m = make(map[types.Hash]struct{})
			touched[hashedAddr] = m
		}
		return m
	}

	fromKey := transitionIDBytes(rng.From)
	toKey := transitionIDBytes(rng.To)

	ac, err := tx.Cursor(kv.AccountChangeSet)
	if err != nil {
		return nil, err
	}
	defer ac.Close()
	k, _, err := ac.Seek(fromKey)
	for err == nil && k != nil && bytes.Compare(k[:8], toKey) < 0 {
		addr := types.BytesToAddress(k[8:])
		touch(crypto.Keccak256Hash(addr.Bytes()))
		k, _, err = ac.Next()
	}
	if err != nil {
		return nil, err
	}

	sc, err := tx.Cursor(kv.StorageChangeSet)
	if err != nil {
		return nil, err
	}
	defer sc.Close()
	k, _, err = sc.Seek(fromKey)
	for err == nil && k != nil && bytes.Compare(k[:8], toKey) < 0 {
		addr := types.BytesToAddress(k[8 : 8+types.AddressLength])
		slot := types.BytesToHash(k[8+types.AddressLength:])
		hashedAddr := crypto.Keccak256Hash(addr.Bytes())
		hashedSlot := crypto.Keccak256Hash(slot.Bytes())
		touch(hashedAddr)[hashedSlot] = struct{}{}
		k, _, err = sc.Next()
	}
	if err != nil {
		return nil, err
	}

	out := make([]changedAccount, 0, len(touched))
	for hashedAddr, slots := range touched {
		ca := changedAccount{hashedAddress: hashedAddr}
		for hashedSlot := range slots {
			ca.storageKeys = append(ca.storageKeys, hashedSlot)
		}
		sort.Slice(ca.storageKeys, func(i, j int) bool {
			return bytes.Compare(ca.storageKeys[i].Bytes(), ca.storageKeys[j].Bytes()) < 0
		})
		out = append(out, ca)
	}
	sort.Slice(out, func(i, j int) bool {
		return bytes.Compare(out[i].hashedAddress.Bytes(), out[j].hashedAddress.Bytes()) < 0
	})
	return out, nil
}
