// Package blockchaintree implements the in-memory pending/side-chain DAG
// rooted at the last finalized block: fork detection, chain splitting and
// merging, canonicalization (including reorgs), and finalization.
package blockchaintree

import (
	"github.com/eth2030/eth2030/core/types"
)

// ChainID identifies a live chain within a BlockchainTree. Assigned
// monotonically by the tree and never reused within a process lifetime.
type ChainID uint64

// ForkBlock identifies where a non-canonical chain attaches to its parent.
type ForkBlock struct {
	Number uint64
	Hash   types.Hash
}

// StateDiff is the account/storage delta produced by executing one block.
type StateDiff struct {
	Accounts map[types.Address]*types.Account
	Storage  map[types.Address]map[types.Hash]types.Hash
}

// ExecutionResult is the post-execution state delta and receipts for one
// block. Opaque to the tree: only moved and persisted, never inspected.
type ExecutionResult struct {
	Diff     *StateDiff
	Receipts []types.Log
}
