package trie

// Delete removes key from a database-backed trie, resolving hashNode
// references along the deletion path as needed (Trie.Delete refuses to
// cross a hashNode since it has no database to resolve against).
func (t *ResolvableTrie) Delete(key []byte) error {
	k := keybytesToHex(key)
	n, err := t.resolveDelete(t.root, nil, k)
	if err != nil {
		return err
	}
	t.root = n
	return nil
}

func (t *ResolvableTrie) resolveDelete(n node, prefix, key []byte) (node, error) {
	if hn, ok := n.(hashNode); ok {
		resolved, err := t.resolveHash(hn)
		if err != nil {
			return nil, err
		}
		return t.resolveDelete(resolved, prefix, key)
	}
	return t.Trie.delete(n, prefix, key)
}
