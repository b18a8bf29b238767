package blockchaintree

import (
	"fmt"

	"github.com/eth2030/eth2030/core/types"
)

// Chain is a contiguous, strictly increasing run of executed pending
// blocks anchored at fork_block, with one ExecutionResult per block.
type Chain struct {
	forkBlock ForkBlock
	blocks    []*types.Block
	results   []*ExecutionResult
}

func newChain(fork ForkBlock, block *types.Block, result *ExecutionResult) *Chain {
	return &Chain{
		forkBlock: fork,
		blocks:    []*types.Block{block},
		results:   []*ExecutionResult{result},
	}
}

// ForkBlock returns the (number, hash) this chain's lowest block attaches to.
func (c *Chain) ForkBlock() ForkBlock { return c.forkBlock }

// First returns the chain's lowest block.
func (c *Chain) First() *types.Block { return c.blocks[0] }

// Tip returns the chain's highest block.
func (c *Chain) Tip() *types.Block { return c.blocks[len(c.blocks)-1] }

// Len returns the number of blocks in the chain.
func (c *Chain) Len() int { return len(c.blocks) }

// TipNumber returns the block number of the chain's tip.
func (c *Chain) TipNumber() uint64 { return c.Tip().NumberU64() }

// ForkBlockNumber returns the block number fork_block attaches to.
func (c *Chain) ForkBlockNumber() uint64 { return c.forkBlock.Number }

// BlockNumbers returns every block number held by the chain, ascending.
func (c *Chain) BlockNumbers() []uint64 {
	nums := make([]uint64, len(c.blocks))
	for i, b := range c.blocks {
		nums[i] = b.NumberU64()
	}
	return nums
}

// HasBlockHash reports whether hash belongs to one of this chain's blocks.
func (c *Chain) HasBlockHash(hash types.Hash) bool {
	_, _, ok := c.blockByHash(hash)
	return ok
}

func (c *Chain) blockByHash(hash types.Hash) (*types.Block, int, bool) {
	for i, b := range c.blocks {
		if b.Hash() == hash {
			return b, i, true
		}
	}
	return nil, -1, false
}

func (c *Chain) indexByNumber(number uint64) (int, bool) {
	first := c.blocks[0].NumberU64()
	if number < first || number > c.Tip().NumberU64() {
		return -1, false
	}
	return int(number - first), true
}

// AppendBlock validates block against the chain's current tip via
// consensus, executes it against state, and appends it on success. On any
// failure the chain is left unmutated.
func (c *Chain) AppendBlock(block *types.Block, state StateSnapshot, consensus Consensus, ef ExecutorFactory) error {
	parent := c.Tip()
	if block.ParentHash() != parent.Hash() || block.NumberU64() != parent.NumberU64()+1 {
		return fmt.Errorf("%w: block %d does not extend tip %d", ErrInvalidChain, block.NumberU64(), parent.NumberU64())
	}
	if err := consensus.PreValidate(block.Header(), parent.Header()); err != nil {
		return fmt.Errorf("%w: %v", ErrConsensusFailure, err)
	}
	result, err := ef.ExecuteAndVerify(block, state)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrExecutionFailure, err)
	}
	c.blocks = append(c.blocks, block)
	c.results = append(c.results, result)
	return nil
}

// NewChainFork forks off the block identified by atHash, which must belong
// to this chain, returning a new Chain whose fork_block points at it and
// whose sole entry is block (after consensus validation and execution).
func (c *Chain) NewChainFork(atHash types.Hash, block *types.Block, state StateSnapshot, consensus Consensus, ef ExecutorFactory) (*Chain, error) {
	parent, _, ok := c.blockByHash(atHash)
	if !ok {
		return nil, fmt.Errorf("%w: fork anchor %s not in chain", ErrChainIdConsistency, atHash)
	}
	if block.ParentHash() != parent.Hash() || block.NumberU64() != parent.NumberU64()+1 {
		return nil, fmt.Errorf("%w: block does not extend fork anchor", ErrInvalidChain)
	}
	if err := consensus.PreValidate(block.Header(), parent.Header()); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrConsensusFailure, err)
	}
	result, err := ef.ExecuteAndVerify(block, state)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrExecutionFailure, err)
	}
	fork := ForkBlock{Number: parent.NumberU64(), Hash: parent.Hash()}
	return newChain(fork, block, result), nil
}

// NewCanonicalFork creates a new chain anchored at a canonical block
// (identified by fork, with parentHeader its header for consensus
// validation), with block as its sole entry.
func NewCanonicalFork(fork ForkBlock, parentHeader *types.Header, block *types.Block, state StateSnapshot, consensus Consensus, ef ExecutorFactory) (*Chain, error) {
	if block.ParentHash() != fork.Hash || block.NumberU64() != fork.Number+1 {
		return nil, fmt.Errorf("%w: block does not extend canonical fork %d", ErrInvalidChain, fork.Number)
	}
	if err := consensus.PreValidate(block.Header(), parentHeader); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrConsensusFailure, err)
	}
	result, err := ef.ExecuteAndVerify(block, state)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrExecutionFailure, err)
	}
	return newChain(fork, block, result), nil
}

// SplitAtBlockHash partitions the chain at hash, inclusive-lower /
// exclusive-upper. found is false if hash is not in the chain, in which
// case lower is nil and upper is the chain unchanged. If hash is the tip,
// upper is nil.
func (c *Chain) SplitAtBlockHash(hash types.Hash) (lower, upper *Chain, found bool) {
	_, idx, ok := c.blockByHash(hash)
	if !ok {
		return nil, c, false
	}
	lower, upper := c.splitAtIndex(idx)
	return lower, upper, true
}

// SplitAtNumber behaves like SplitAtBlockHash but locates the split point
// by block number.
func (c *Chain) SplitAtNumber(number uint64) (lower, upper *Chain, found bool) {
	idx, ok := c.indexByNumber(number)
	if !ok {
		return nil, c, false
	}
	lower, upper = c.splitAtIndex(idx)
	return lower, upper, true
}

// splitAtIndex performs the inclusive-lower/exclusive-upper split at idx,
// returning both halves. upper is nil when idx is the chain's last index.
func (c *Chain) splitAtIndex(idx int) (lower, upper *Chain) {
	lowerBlocks := append([]*types.Block{}, c.blocks[:idx+1]...)
	lowerResults := append([]*ExecutionResult{}, c.results[:idx+1]...)
	lower = &Chain{forkBlock: c.forkBlock, blocks: lowerBlocks, results: lowerResults}

	if idx == len(c.blocks)-1 {
		return lower, nil
	}

	upperBlocks := append([]*types.Block{}, c.blocks[idx+1:]...)
	upperResults := append([]*ExecutionResult{}, c.results[idx+1:]...)
	splitBlock := c.blocks[idx]
	upper = &Chain{
		forkBlock: ForkBlock{Number: splitBlock.NumberU64(), Hash: splitBlock.Hash()},
		blocks:    upperBlocks,
		results:   upperResults,
	}
	return lower, upper
}

// AppendChain concatenates other onto the chain's tip. other.fork_block
// must equal this chain's current tip.
func (c *Chain) AppendChain(other *Chain) error {
	if other.forkBlock.Hash != c.Tip().Hash() {
		return fmt.Errorf("%w: chain fork anchor does not match tip", ErrChainIdConsistency)
	}
	c.blocks = append(c.blocks, other.blocks...)
	c.results = append(c.results, other.results...)
	return nil
}
