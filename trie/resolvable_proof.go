package trie

// Prove generates a Merkle proof for key against a database-backed trie,
// resolving hashNode references as needed instead of requiring every node
// already be in memory (as Trie.Prove does).
func (t *ResolvableTrie) Prove(key []byte) ([][]byte, error) {
	if t.root == nil {
		return nil, ErrNotFound
	}
	hexKey := keybytesToHex(key)
	var proof [][]byte
	found, err := t.resolveProve(t.root, hexKey, 0, &proof)
	if err != nil {
		return nil, err
	}
	if !found {
		return nil, ErrNotFound
	}
	return proof, nil
}

func (t *ResolvableTrie) resolveProve(n node, key []byte, pos int, proof *[][]byte) (bool, error) {
	switch n := n.(type) {
	case nil:
		return false, nil

	case hashNode:
		resolved, err := t.resolveHash(n)
		if err != nil {
			return false, err
		}
		return t.resolveProve(resolved, key, pos, proof)

	case *shortNode:
		collapsed := n.copy()
		collapsed.Key = hexToCompact(n.Key)
		collapsed.Val = collapseForProof(n.Val)
		enc, err := encodeShortNode(collapsed)
		if err != nil {
			return false, err
		}
		*proof = append(*proof, enc)

		if len(key)-pos < len(n.Key) || !keysEqual(n.Key, key[pos:pos+len(n.Key)]) {
			return false, nil
		}
		return t.resolveProve(n.Val, key, pos+len(n.Key), proof)

	case *fullNode:
		collapsed := collapseFullNodeForProof(n)
		enc, err := encodeFullNode(collapsed)
		if err != nil {
			return false, err
		}
		*proof = append(*proof, enc)

		if pos >= len(key) {
			return n.Children[16] != nil, nil
		}
		return t.resolveProve(n.Children[key[pos]], key, pos+1, proof)

	case valueNode:
		return true, nil

	default:
		return false, nil
	}
}
