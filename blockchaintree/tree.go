package blockchaintree

import (
	"fmt"
	"sync"

	"github.com/eth2030/eth2030/core/types"
	"github.com/eth2030/eth2030/log"
	"github.com/eth2030/eth2030/metrics"
)

// BlockchainTree owns every live chain plus the indices over them, and
// implements insertion, canonicalization, and finalization.
//
// A BlockchainTree is synchronous and single-writer: its public methods
// take an exclusive lock and are not meant to be called concurrently by
// multiple goroutines against the same instance (matching the concurrency
// model of the system it implements).
type BlockchainTree struct {
	mu sync.Mutex

	cfg             Config
	stateProvider   StateProvider
	consensus       Consensus
	executorFactory ExecutorFactory
	persistence     ChainPersistence

	indices     *BlockIndices
	chains      map[ChainID]*Chain
	nextChainID ChainID

	log     *log.Logger
	metrics *treeMetrics
}

// New constructs a BlockchainTree rooted at genesis. cfg.FinalizationWindow
// must be <= cfg.NumOfSideChainMaxSize.
func New(cfg Config, genesis *types.Block, sp StateProvider, consensus Consensus, ef ExecutorFactory, persistence ChainPersistence) (*BlockchainTree, error) {
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return &BlockchainTree{
		cfg:             cfg,
		stateProvider:   sp,
		consensus:       consensus,
		executorFactory: ef,
		persistence:     persistence,
		indices:         NewBlockIndices(genesis, cfg.canonicalWindowSize()),
		chains:          make(map[ChainID]*Chain),
		log:             log.Default().Module("blockchaintree"),
		metrics:         newTreeMetrics(metrics.DefaultRegistry),
	}, nil
}

func (t *BlockchainTree) allocChainID() ChainID {
	t.nextChainID++
	return t.nextChainID
}

// CanonicalTip returns the current canonical (number, hash).
func (t *BlockchainTree) CanonicalTip() ForkBlock {
	return t.indices.CanonicalTip()
}

// PendingBlocks returns the total number of blocks held across all live
// (non-canonical) chains.
func (t *BlockchainTree) PendingBlocks() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	n := 0
	for _, c := range t.chains {
		n += c.Len()
	}
	return n
}

// ChainCount returns the number of live chains.
func (t *BlockchainTree) ChainCount() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.chains)
}

// InsertBlock is the tree's main entry point. It returns (true, nil) when
// the block was accepted (including the idempotent case where it was
// already known), (false, nil) when the parent is unknown (a hint to
// trigger P2P backfill), and (false, err) for any admission or execution
// failure.
func (t *BlockchainTree) InsertBlock(block *types.Block) (bool, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	number := block.NumberU64()
	lastFinalized := t.indices.LastFinalizedBlock()

	if number <= lastFinalized {
		return false, fmt.Errorf("%w: block %d <= finalized %d", ErrPendingBlockIsFinalized, number, lastFinalized)
	}
	if number > lastFinalized+t.cfg.NumOfSideChainMaxSize {
		return false, fmt.Errorf("%w: block %d exceeds window bound %d", ErrPendingBlockIsInFuture, number, lastFinalized+t.cfg.NumOfSideChainMaxSize)
	}

	hash := block.Hash()
	if _, ok := t.indices.GetBlocksChainID(hash); ok {
		return true, nil
	}
	if t.indices.IsBlockHashCanonical(hash) {
		return true, nil
	}

	parentHash := block.ParentHash()

	if parentChainID, ok := t.indices.GetBlocksChainID(parentHash); ok {
		if err := t.forkSideChain(block, parentChainID); err != nil {
			return false, err
		}
		t.metrics.inserted.Inc()
		t.metrics.chainCount.Set(int64(len(t.chains)))
		return true, nil
	}

	if canonHash, ok := t.indices.CanonicalHash(number - 1); ok && canonHash == parentHash {
		if err := t.forkCanonicalChain(block); err != nil {
			return false, err
		}
		t.metrics.inserted.Inc()
		t.metrics.chainCount.Set(int64(len(t.chains)))
		return true, nil
	}

	return false, nil
}

func (t *BlockchainTree) forkSideChain(block *types.Block, parentChainID ChainID) error {
	parentChain, ok := t.chains[parentChainID]
	if !ok {
		return fmt.Errorf("%w: chain %d not found", ErrChainIdConsistency, parentChainID)
	}

	canonicalFork, err := t.resolveCanonicalFork(parentChain)
	if err != nil {
		return err
	}
	state, err := t.stateForFork(canonicalFork)
	if err != nil {
		return err
	}

	if block.ParentHash() == parentChain.Tip().Hash() {
		if err := parentChain.AppendBlock(block, state, t.consensus, t.executorFactory); err != nil {
			return err
		}
		t.indices.IndexBlock(parentChainID, block.Hash())
		return nil
	}

	newChain, err := parentChain.NewChainFork(block.ParentHash(), block, state, t.consensus, t.executorFactory)
	if err != nil {
		return err
	}
	id := t.allocChainID()
	t.chains[id] = newChain
	t.indices.InsertChain(id, newChain)
	return nil
}

func (t *BlockchainTree) forkCanonicalChain(block *types.Block) error {
	parentNumber := block.NumberU64() - 1
	parentHash, ok := t.indices.CanonicalHash(parentNumber)
	if !ok {
		return fmt.Errorf("%w: canonical hash missing at %d", ErrCanonicalChainMissingHash, parentNumber)
	}
	parentHeader, ok := t.indices.CanonicalHeader(parentHash)
	if !ok {
		return fmt.Errorf("%w: canonical header missing for %s", ErrCanonicalChainMissingHash, parentHash)
	}
	fork := ForkBlock{Number: parentNumber, Hash: parentHash}

	state, err := t.stateForFork(fork)
	if err != nil {
		return err
	}
	chain, err := NewCanonicalFork(fork, parentHeader, block, state, t.consensus, t.executorFactory)
	if err != nil {
		return err
	}
	id := t.allocChainID()
	t.chains[id] = chain
	t.indices.InsertChain(id, chain)
	return nil
}

// resolveCanonicalFork walks fork_block -> chain hops from chain until the
// fork anchor lands on a canonical hash.
func (t *BlockchainTree) resolveCanonicalFork(chain *Chain) (ForkBlock, error) {
	current := chain
	for i := 0; i <= len(t.chains); i++ {
		fb := current.ForkBlock()
		if t.indices.IsBlockHashCanonical(fb.Hash) {
			return fb, nil
		}
		parentID, ok := t.indices.GetBlocksChainID(fb.Hash)
		if !ok {
			return ForkBlock{}, fmt.Errorf("%w: fork anchor %s unresolved", ErrChainIdConsistency, fb.Hash)
		}
		parentChain, ok := t.chains[parentID]
		if !ok {
			return ForkBlock{}, fmt.Errorf("%w: chain %d missing", ErrChainIdConsistency, parentID)
		}
		current = parentChain
	}
	return ForkBlock{}, fmt.Errorf("%w: fork resolution did not terminate", ErrChainIdConsistency)
}

func (t *BlockchainTree) stateForFork(fork ForkBlock) (StateSnapshot, error) {
	if fork == t.indices.CanonicalTip() {
		return t.stateProvider.Latest()
	}
	return t.stateProvider.HistoryByBlockNumber(fork.Number)
}

func (t *BlockchainTree) removeChain(id ChainID) *Chain {
	chain, ok := t.chains[id]
	if !ok {
		return nil
	}
	t.indices.RemoveChain(chain)
	delete(t.chains, id)
	return chain
}

// MakeCanonical promotes the chain containing hash to canonical status,
// reorging the existing canonical chain if necessary. It is idempotent
// when hash is already canonical.
func (t *BlockchainTree) MakeCanonical(hash types.Hash) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.indices.IsBlockHashCanonical(hash) {
		return nil
	}

	chainID, ok := t.indices.GetBlocksChainID(hash)
	if !ok {
		return fmt.Errorf("%w: %s", ErrBlockHashNotFoundInChain, hash)
	}
	chain := t.removeChain(chainID)

	lower, upper, found := chain.SplitAtBlockHash(hash)
	if !found {
		return fmt.Errorf("%w: %s", ErrChainIdConsistency, hash)
	}
	if upper != nil {
		upperID := t.allocChainID()
		t.chains[upperID] = upper
		t.indices.InsertChain(upperID, upper)
	}

	collected := []*Chain{lower}
	cursor := lower
	for !t.indices.IsBlockHashCanonical(cursor.ForkBlock().Hash) {
		parentID, ok := t.indices.GetBlocksChainID(cursor.ForkBlock().Hash)
		if !ok {
			return fmt.Errorf("%w: fork anchor %s unresolved during make_canonical", ErrChainIdConsistency, cursor.ForkBlock().Hash)
		}
		parentChain := t.removeChain(parentID)
		if parentChain == nil {
			return fmt.Errorf("%w: chain %d missing during make_canonical", ErrChainIdConsistency, parentID)
		}
		pLower, pUpper, ok := parentChain.SplitAtNumber(cursor.ForkBlock().Number)
		if !ok {
			return fmt.Errorf("%w: parent chain split failed at %d", ErrChainIdConsistency, cursor.ForkBlock().Number)
		}
		if pUpper != nil {
			pUpperID := t.allocChainID()
			t.chains[pUpperID] = pUpper
			t.indices.InsertChain(pUpperID, pUpper)
		}
		collected = append(collected, pLower)
		cursor = pLower
	}

	newCanon := collected[len(collected)-1]
	for i := len(collected) - 2; i >= 0; i-- {
		if err := newCanon.AppendChain(collected[i]); err != nil {
			return err
		}
	}

	oldTip := t.indices.CanonicalTip()

	if newCanon.ForkBlock().Hash == oldTip.Hash {
		if err := t.commitCanonical(newCanon); err != nil {
			return err
		}
		t.metrics.chainCount.Set(int64(len(t.chains)))
		return nil
	}

	t.metrics.reorgs.Inc()
	t.metrics.reorgDepth.Observe(float64(oldTip.Number - newCanon.ForkBlockNumber()))

	reverted, err := t.revertCanonical(newCanon.ForkBlockNumber())
	if err != nil {
		return err
	}
	if err := t.commitCanonical(newCanon); err != nil {
		return err
	}
	if reverted != nil {
		id := t.allocChainID()
		t.chains[id] = reverted
		t.indices.InsertChain(id, reverted)
	}
	t.metrics.chainCount.Set(int64(len(t.chains)))
	return nil
}

// commitCanonical persists every (block, result) pair of chain and advances
// the canonical window to include it. Partial writes are not observable:
// on the first persistence failure the canonical window is left untouched.
func (t *BlockchainTree) commitCanonical(chain *Chain) error {
	for i, b := range chain.blocks {
		if err := t.persistence.InsertBlock(b, chain.results[i]); err != nil {
			// Nothing above the fork anchor was persisted before this call,
			// so this drops exactly the blocks written so far.
			t.persistence.RemoveBlocksAbove(chain.forkBlock.Number)
			return fmt.Errorf("commit_canonical: insert block %d: %w", b.NumberU64(), err)
		}
	}
	for _, b := range chain.blocks {
		t.indices.InsertCanonical(b)
	}
	t.log.Info("canonicalized chain", "from", chain.First().NumberU64(), "to", chain.Tip().NumberU64())
	return nil
}

// revertCanonical pulls canonical blocks above until back into an
// in-memory Chain, removing them from durable storage and from the
// canonical window.
func (t *BlockchainTree) revertCanonical(until uint64) (*Chain, error) {
	blocks, results, err := t.persistence.RemoveBlocksAbove(until)
	if err != nil {
		return nil, fmt.Errorf("revert_canonical: %w", err)
	}
	if len(blocks) == 0 {
		return nil, nil
	}
	forkHash, ok := t.indices.CanonicalHash(until)
	if !ok {
		return nil, fmt.Errorf("%w: missing canonical hash at %d", ErrCanonicalChainMissingHash, until)
	}
	for _, b := range blocks {
		t.indices.RemoveCanonical(b.NumberU64())
	}
	t.log.Warn("reverted canonical chain", "until", until, "reverted_blocks", len(blocks))
	return &Chain{forkBlock: ForkBlock{Number: until, Hash: forkHash}, blocks: blocks, results: results}, nil
}

// FinalizeBlock drops canonical entries at or below n from the in-memory
// window and recursively removes any chain that lost its fork anchor.
func (t *BlockchainTree) FinalizeBlock(n uint64) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	dropped := t.indices.FinalizeCanonicalBlocks(n)
	t.cascadeRemoveByForkAnchors(dropped)
	t.metrics.finalized.Add(1)
	t.metrics.chainCount.Set(int64(len(t.chains)))
	return nil
}

// UpdateCanonicalHashes finalizes up to lastFinalized, then rebuilds the
// canonical window from the given blocks (read from the database by the
// caller), cascade-removing any chain whose fork anchor disappeared.
func (t *BlockchainTree) UpdateCanonicalHashes(lastFinalized uint64, window []*types.Block) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	dropped := t.indices.FinalizeCanonicalBlocks(lastFinalized)
	t.cascadeRemoveByForkAnchors(dropped)

	droppedWindow := t.indices.UpdateBlockHashes(window)
	t.cascadeRemoveByForkAnchors(droppedWindow)

	t.metrics.chainCount.Set(int64(len(t.chains)))
	return nil
}

func (t *BlockchainTree) cascadeRemoveByForkAnchors(anchors []types.Hash) {
	if len(anchors) == 0 {
		return
	}
	anchorSet := make(map[types.Hash]bool, len(anchors))
	for _, a := range anchors {
		anchorSet[a] = true
	}
	for {
		removedAny := false
		for id, chain := range t.chains {
			if anchorSet[chain.forkBlock.Hash] {
				t.removeChain(id)
				for _, b := range chain.blocks {
					anchorSet[b.Hash()] = true
				}
				removedAny = true
			}
		}
		if !removedAny {
			return
		}
	}
}
