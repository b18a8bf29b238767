package kv

import (
	"bytes"

	"github.com/eth2030/eth2030/core/rawdb"
)

// EncodeDupKey builds the physical compound key used for a dup-sort table
// entry: the primary key followed by the secondary (sort) key.
func EncodeDupKey(primary, secondary []byte) []byte {
	k := make([]byte, len(primary)+len(secondary))
	copy(k, primary)
	copy(k[len(primary):], secondary)
	return k
}

// PutDup writes one duplicate value under primary/secondary in a dup-sort
// table. Use instead of tx.Put directly so callers never have to reason
// about the physical key layout.
func PutDup(tx RwTx, t Table, primary, secondary, value []byte) error {
	return tx.Put(t, EncodeDupKey(primary, secondary), value)
}

// cursor is a unique-key Cursor backed by a rawdb.MemoryKVStore.
type cursor struct {
	store *rawdb.MemoryKVStore
	it    rawdb.KVIterator
}

func (c *cursor) First() ([]byte, []byte, error) {
	return c.Seek(nil)
}

func (c *cursor) Seek(key []byte) ([]byte, []byte, error) {
	if c.it != nil {
		c.it.Release()
	}
	c.it = c.store.NewKVIterator(nil, key)
	return c.Next()
}

func (c *cursor) Next() ([]byte, []byte, error) {
	if c.it == nil {
		c.it = c.store.NewKVIterator(nil, nil)
	}
	if !c.it.Next() {
		return nil, nil, nil
	}
	return c.it.Key(), c.it.Value(), nil
}

func (c *cursor) Close() {
	if c.it != nil {
		c.it.Release()
		c.it = nil
	}
}

// dupCursor is a CursorDupSort implementation layered over cursor. Physical
// keys are primary||secondary; dupCursor reconstructs the logical (primary,
// secondary, value) triple on every step and stops NextDup at a primary-key
// boundary.
type dupCursor struct {
	cursor
	primaryLen int
	curPrimary []byte
}

func (c *dupCursor) split(physKey []byte) (primary, secondary []byte) {
	if len(physKey) < c.primaryLen {
		return physKey, nil
	}
	return physKey[:c.primaryLen], physKey[c.primaryLen:]
}

// Seek positions at the first entry whose primary key is >= key, returning
// the logical primary key and its first duplicate value.
func (c *dupCursor) Seek(key []byte) ([]byte, []byte, error) {
	physKey, v, err := c.cursor.Seek(key)
	if err != nil || physKey == nil {
		c.curPrimary = nil
		return nil, v, err
	}
	primary, _ := c.split(physKey)
	c.curPrimary = append([]byte{}, primary...)
	return primary, v, nil
}

// SeekBothRange positions at the first duplicate of key whose secondary
// sort key is >= subKey.
func (c *dupCursor) SeekBothRange(key, subKey []byte) ([]byte, error) {
	start := EncodeDupKey(key, subKey)
	physKey, v, err := c.cursor.Seek(start)
	if err != nil || physKey == nil {
		c.curPrimary = nil
		return nil, err
	}
	primary, _ := c.split(physKey)
	if !bytes.Equal(primary, key) {
		c.curPrimary = nil
		return nil, nil
	}
	c.curPrimary = append([]byte{}, primary...)
	return v, nil
}

// NextDup advances within the duplicates of the current primary key.
func (c *dupCursor) NextDup() ([]byte, []byte, error) {
	if c.curPrimary == nil {
		return nil, nil, nil
	}
	physKey, v, err := c.cursor.Next()
	if err != nil || physKey == nil {
		c.curPrimary = nil
		return nil, nil, err
	}
	primary, secondary := c.split(physKey)
	if !bytes.Equal(primary, c.curPrimary) {
		c.curPrimary = nil
		return nil, nil, nil
	}
	return secondary, v, nil
}

// DeleteCurrentDuplicates removes every duplicate stored under the current
// primary key. Requires a read-write store; callers obtain dupCursor only
// from a transaction, so this reaches back into the backing store directly.
func (c *dupCursor) DeleteCurrentDuplicates() error {
	if c.curPrimary == nil {
		return nil
	}
	it := c.store.NewKVIterator(c.curPrimary, c.curPrimary)
	var keys [][]byte
	for it.Next() {
		keys = append(keys, append([]byte{}, it.Key()...))
	}
	it.Release()
	for _, k := range keys {
		if err := c.store.Delete(k); err != nil {
			return err
		}
	}
	return nil
}
