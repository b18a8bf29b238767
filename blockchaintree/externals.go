package blockchaintree

import "github.com/eth2030/eth2030/core/types"

// StateSnapshot supplies post-state reads at a fixed historical block. It is
// the minimal capability a block executor needs from a state provider.
type StateSnapshot interface {
	GetAccount(addr types.Address) (*types.Account, error)
	GetStorage(addr types.Address, key types.Hash) (types.Hash, error)
	GetCode(codeHash types.Hash) ([]byte, error)
}

// StateProvider supplies post-state reads at an arbitrary historical block.
type StateProvider interface {
	// Latest returns the state as of the current canonical tip.
	Latest() (StateSnapshot, error)

	// HistoryByBlockNumber returns the state as of the given canonical
	// block number.
	HistoryByBlockNumber(number uint64) (StateSnapshot, error)
}

// Consensus validates a header against its parent before execution.
type Consensus interface {
	PreValidate(header, parent *types.Header) error
}

// ExecutorFactory executes a block against a state snapshot and verifies
// its receipts, producing the state delta to be committed on canonicalization.
type ExecutorFactory interface {
	ExecuteAndVerify(block *types.Block, state StateSnapshot) (*ExecutionResult, error)
}

// ChainPersistence is the transactional boundary the tree uses to make a
// promoted chain durable (commit_canonical) and to pull a previously
// canonical suffix back into memory during a reorg (revert_canonical).
type ChainPersistence interface {
	// InsertBlock persists one canonical block and its execution result.
	InsertBlock(block *types.Block, result *ExecutionResult) error

	// RemoveBlocksAbove removes and returns, in ascending order, every
	// block persisted above (exclusive of) number.
	RemoveBlocksAbove(number uint64) ([]*types.Block, []*ExecutionResult, error)
}
