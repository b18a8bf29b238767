package blockchaintree

import "errors"

// Block admission errors.
var (
	ErrPendingBlockIsFinalized  = errors.New("blockchaintree: pending block is at or below the last finalized block")
	ErrPendingBlockIsInFuture   = errors.New("blockchaintree: pending block is beyond the side-chain window")
	ErrBlockHashNotFoundInChain = errors.New("blockchaintree: block hash not found in any live chain")
)

// Consistency errors. Per the tree's invariants these are unreachable by
// construction; seeing one indicates corrupted indices or a caller that
// bypassed the tree's public API.
var (
	ErrChainIdConsistency        = errors.New("blockchaintree: fork anchor does not resolve consistently")
	ErrCanonicalChainMissingHash = errors.New("blockchaintree: canonical chain missing expected hash")
	ErrInvalidChain              = errors.New("blockchaintree: blocks not contiguous")
)

// Execution errors, propagated verbatim from the external collaborators;
// the chain is not mutated when these occur.
var (
	ErrConsensusFailure = errors.New("blockchaintree: consensus validation failed")
	ErrExecutionFailure = errors.New("blockchaintree: block execution failed")
)

// ErrConfigWindowOrder is returned at construction time when
// num_of_side_chain_max_size < finalization_window.
var ErrConfigWindowOrder = errors.New("blockchaintree: num_of_side_chain_max_size must be >= finalization_window")
