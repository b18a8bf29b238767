package blockchaintree

import (
	"sync"

	"github.com/eth2030/eth2030/core/types"
)

// BlockIndices maps every pending block hash to its chain, tracks fork
// points via reverse adjacency, and keeps a bounded window of canonical
// hashes (and their headers, for consensus validation of new forks).
type BlockIndices struct {
	mu sync.RWMutex

	blocksToChain map[types.Hash]ChainID
	forkToChild   map[types.Hash]map[types.Hash]struct{}

	canonicalChain   map[uint64]types.Hash
	canonicalHeaders map[types.Hash]*types.Header

	lastFinalizedBlock uint64
	windowSize         uint64
}

// NewBlockIndices creates indices rooted at genesis, retaining windowSize
// canonical hashes in memory (finalization_window + num_additional).
func NewBlockIndices(genesis *types.Block, windowSize uint64) *BlockIndices {
	bi := &BlockIndices{
		blocksToChain:      make(map[types.Hash]ChainID),
		forkToChild:        make(map[types.Hash]map[types.Hash]struct{}),
		canonicalChain:     make(map[uint64]types.Hash),
		canonicalHeaders:   make(map[types.Hash]*types.Header),
		lastFinalizedBlock: genesis.NumberU64(),
		windowSize:         windowSize,
	}
	bi.canonicalChain[genesis.NumberU64()] = genesis.Hash()
	bi.canonicalHeaders[genesis.Hash()] = genesis.Header()
	return bi
}

// IndexBlock records a single block hash as belonging to chain id, without
// touching fork adjacency (used when a block extends a chain in place).
func (bi *BlockIndices) IndexBlock(id ChainID, hash types.Hash) {
	bi.mu.Lock()
	defer bi.mu.Unlock()
	bi.blocksToChain[hash] = id
}

// InsertChain indexes every block of chain under id and registers its fork
// adjacency.
func (bi *BlockIndices) InsertChain(id ChainID, chain *Chain) {
	bi.mu.Lock()
	defer bi.mu.Unlock()
	for _, b := range chain.blocks {
		bi.blocksToChain[b.Hash()] = id
	}
	fork := chain.forkBlock.Hash
	children, ok := bi.forkToChild[fork]
	if !ok {
		children = make(map[types.Hash]struct{})
		bi.forkToChild[fork] = children
	}
	children[chain.First().Hash()] = struct{}{}
}

// RemoveChain removes chain's blocks from the indices and returns the first
// block hash of any chains forked directly off one of chain's blocks (now
// orphaned; the tree must cascade-remove them).
func (bi *BlockIndices) RemoveChain(chain *Chain) []types.Hash {
	bi.mu.Lock()
	defer bi.mu.Unlock()

	var orphaned []types.Hash
	for _, b := range chain.blocks {
		h := b.Hash()
		delete(bi.blocksToChain, h)
		if children, ok := bi.forkToChild[h]; ok {
			for child := range children {
				orphaned = append(orphaned, child)
			}
			delete(bi.forkToChild, h)
		}
	}
	if children, ok := bi.forkToChild[chain.forkBlock.Hash]; ok {
		delete(children, chain.First().Hash())
		if len(children) == 0 {
			delete(bi.forkToChild, chain.forkBlock.Hash)
		}
	}
	return orphaned
}

// GetBlocksChainID returns the chain owning hash, if any.
func (bi *BlockIndices) GetBlocksChainID(hash types.Hash) (ChainID, bool) {
	bi.mu.RLock()
	defer bi.mu.RUnlock()
	id, ok := bi.blocksToChain[hash]
	return id, ok
}

// CanonicalHash returns the canonical hash at number, if it is still within
// the in-memory window.
func (bi *BlockIndices) CanonicalHash(number uint64) (types.Hash, bool) {
	bi.mu.RLock()
	defer bi.mu.RUnlock()
	h, ok := bi.canonicalChain[number]
	return h, ok
}

// CanonicalHeader returns the header of the canonical block with the given
// hash, if it is still within the in-memory window.
func (bi *BlockIndices) CanonicalHeader(hash types.Hash) (*types.Header, bool) {
	bi.mu.RLock()
	defer bi.mu.RUnlock()
	h, ok := bi.canonicalHeaders[hash]
	return h, ok
}

// CanonicalTip returns the highest known canonical (number, hash).
func (bi *BlockIndices) CanonicalTip() ForkBlock {
	bi.mu.RLock()
	defer bi.mu.RUnlock()
	return bi.tipLocked()
}

func (bi *BlockIndices) tipLocked() ForkBlock {
	var (
		tip   ForkBlock
		first = true
	)
	for n, h := range bi.canonicalChain {
		if first || n > tip.Number {
			tip = ForkBlock{Number: n, Hash: h}
			first = false
		}
	}
	return tip
}

// IsBlockHashCanonical reports whether hash is a canonical hash currently
// within the in-memory window.
func (bi *BlockIndices) IsBlockHashCanonical(hash types.Hash) bool {
	bi.mu.RLock()
	defer bi.mu.RUnlock()
	for _, h := range bi.canonicalChain {
		if h == hash {
			return true
		}
	}
	return false
}

// InsertCanonical records block as canonical and trims the window.
func (bi *BlockIndices) InsertCanonical(block *types.Block) {
	bi.mu.Lock()
	defer bi.mu.Unlock()
	h := block.Hash()
	bi.canonicalChain[block.NumberU64()] = h
	bi.canonicalHeaders[h] = block.Header()
	bi.trimWindowLocked()
}

// RemoveCanonical drops the canonical entry at number, e.g. after
// revert_canonical pulls it back into an in-memory side chain.
func (bi *BlockIndices) RemoveCanonical(number uint64) {
	bi.mu.Lock()
	defer bi.mu.Unlock()
	if h, ok := bi.canonicalChain[number]; ok {
		delete(bi.canonicalHeaders, h)
		delete(bi.canonicalChain, number)
	}
}

func (bi *BlockIndices) trimWindowLocked() {
	tip := bi.tipLocked()
	if tip.Number < bi.windowSize {
		return
	}
	floor := tip.Number - bi.windowSize
	for n, h := range bi.canonicalChain {
		if n <= floor {
			delete(bi.canonicalHeaders, h)
			delete(bi.canonicalChain, n)
		}
	}
}

// LastFinalizedBlock returns the most recently finalized block number.
func (bi *BlockIndices) LastFinalizedBlock() uint64 {
	bi.mu.RLock()
	defer bi.mu.RUnlock()
	return bi.lastFinalizedBlock
}

// FinalizeCanonicalBlocks drops canonical entries at or below finalized and
// returns their hashes, so the tree can remove any chain forked off one of
// them.
func (bi *BlockIndices) FinalizeCanonicalBlocks(finalized uint64) []types.Hash {
	bi.mu.Lock()
	defer bi.mu.Unlock()
	bi.lastFinalizedBlock = finalized

	var dropped []types.Hash
	for n, h := range bi.canonicalChain {
		if n <= finalized {
			dropped = append(dropped, h)
			delete(bi.canonicalHeaders, h)
			delete(bi.canonicalChain, n)
		}
	}
	return dropped
}

// UpdateBlockHashes replaces the canonical window wholesale (e.g. after
// external fast-sync catch-up) and returns the hashes that fell out of the
// new window, so the tree can cascade-remove chains anchored on them.
func (bi *BlockIndices) UpdateBlockHashes(window []*types.Block) []types.Hash {
	bi.mu.Lock()
	defer bi.mu.Unlock()

	old := bi.canonicalChain
	bi.canonicalChain = make(map[uint64]types.Hash, len(window))
	bi.canonicalHeaders = make(map[types.Hash]*types.Header, len(window))
	newHashes := make(map[types.Hash]bool, len(window))
	for _, b := range window {
		bi.canonicalChain[b.NumberU64()] = b.Hash()
		bi.canonicalHeaders[b.Hash()] = b.Header()
		newHashes[b.Hash()] = true
	}

	var dropped []types.Hash
	for _, h := range old {
		if !newHashes[h] {
			dropped = append(dropped, h)
		}
	}
	return dropped
}

// ChainsInMemory returns the number of distinct live chains referenced by
// the block index.
func (bi *BlockIndices) ChainsInMemory() int {
	bi.mu.RLock()
	defer bi.mu.RUnlock()
	seen := make(map[ChainID]struct{})
	for _, id := range bi.blocksToChain {
		seen[id] = struct{}{}
	}
	return len(seen)
}
