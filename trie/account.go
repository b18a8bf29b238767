package trie

import (
	"errors"

	"github.com/eth2030/eth2030/rlp"
)

// ErrStorageValueTooLarge is returned when a decoded storage value would not
// fit in 32 bytes.
var ErrStorageValueTooLarge = errors.New("trie: storage value exceeds 32 bytes")

// EncodeStorageValue RLP-encodes a 32-byte storage slot value with leading
// zero bytes trimmed, matching how go-ethereum-style state tries store
// storage values.
func EncodeStorageValue(val [32]byte) ([]byte, error) {
	return rlp.EncodeToBytes(trimLeadingZeros(val[:]))
}

// DecodeStorageValue decodes an RLP-encoded storage value, right-aligning
// the result into a 32-byte array.
func DecodeStorageValue(data []byte) ([32]byte, error) {
	s := rlp.NewStreamFromBytes(data)
	b, err := s.Bytes()
	if err != nil {
		return [32]byte{}, err
	}
	if len(b) > 32 {
		return [32]byte{}, ErrStorageValueTooLarge
	}
	var result [32]byte
	copy(result[32-len(b):], b)
	return result, nil
}

func trimLeadingZeros(b []byte) []byte {
	for i, v := range b {
		if v != 0 {
			return b[i:]
		}
	}
	return []byte{}
}
