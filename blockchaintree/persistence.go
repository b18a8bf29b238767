package blockchaintree

import (
	"sort"
	"sync"

	"github.com/eth2030/eth2030/core/types"
)

// MemoryPersistence is an in-memory ChainPersistence suitable for tests and
// for standalone use without a backing database. It is the analogue of the
// rawdb-backed commit boundary commit_canonical/revert_canonical open:
// inserts and removals take effect immediately and atomically with respect
// to callers of this type, matching the single-writer model the tree
// assumes.
type MemoryPersistence struct {
	mu      sync.Mutex
	blocks  map[uint64]*types.Block
	results map[uint64]*ExecutionResult
}

// NewMemoryPersistence creates an empty persistence store.
func NewMemoryPersistence() *MemoryPersistence {
	return &MemoryPersistence{
		blocks:  make(map[uint64]*types.Block),
		results: make(map[uint64]*ExecutionResult),
	}
}

// InsertBlock implements ChainPersistence.
func (p *MemoryPersistence) InsertBlock(block *types.Block, result *ExecutionResult) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.blocks[block.NumberU64()] = block
	p.results[block.NumberU64()] = result
	return nil
}

// RemoveBlocksAbove implements ChainPersistence.
func (p *MemoryPersistence) RemoveBlocksAbove(number uint64) ([]*types.Block, []*ExecutionResult, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	var numbers []uint64
	for n := range p.blocks {
		if n > number {
			numbers = append(numbers, n)
		}
	}
	sort.Slice(numbers, func(i, j int) bool { return numbers[i] < numbers[j] })

	blocks := make([]*types.Block, len(numbers))
	results := make([]*ExecutionResult, len(numbers))
	for i, n := range numbers {
		blocks[i] = p.blocks[n]
		results[i] = p.results[n]
		delete(p.blocks, n)
		delete(p.results, n)
	}
	return blocks, results, nil
}
