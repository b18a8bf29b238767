package blockchaintree

import (
	"math/big"
	"testing"

	"github.com/eth2030/eth2030/core/types"
)

type stubConsensus struct{}

func (stubConsensus) PreValidate(header, parent *types.Header) error { return nil }

type stubExecutor struct{}

func (stubExecutor) ExecuteAndVerify(block *types.Block, state StateSnapshot) (*ExecutionResult, error) {
	return &ExecutionResult{}, nil
}

type stubState struct{}

func (stubState) GetAccount(types.Address) (*types.Account, error)        { return nil, nil }
func (stubState) GetStorage(types.Address, types.Hash) (types.Hash, error) { return types.Hash{}, nil }
func (stubState) GetCode(types.Hash) ([]byte, error)                      { return nil, nil }

type stubStateProvider struct{}

func (stubStateProvider) Latest() (StateSnapshot, error) { return stubState{}, nil }
func (stubStateProvider) HistoryByBlockNumber(uint64) (StateSnapshot, error) {
	return stubState{}, nil
}

func makeBlock(number uint64, parent types.Hash, salt byte) *types.Block {
	h := &types.Header{
		ParentHash: parent,
		Number:     new(big.Int).SetUint64(number),
		Difficulty: new(big.Int),
		Extra:      []byte{salt},
		UncleHash:  types.EmptyUncleHash,
	}
	return types.NewBlock(h, nil)
}

func newTestTree(t *testing.T, genesisNumber uint64) (*BlockchainTree, *types.Block) {
	t.Helper()
	genesis := makeBlock(genesisNumber, types.Hash{}, 0)
	cfg := Config{FinalizationWindow: 1, NumOfSideChainMaxSize: 2, NumOfAdditionalCanonicalBlockHashes: 3}
	tr, err := New(cfg, genesis, stubStateProvider{}, stubConsensus{}, stubExecutor{}, NewMemoryPersistence())
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return tr, genesis
}

// S1: insert two blocks extending genesis, make both canonical in order.
func TestInsertBlockSanity(t *testing.T) {
	tr, genesis := newTestTree(t, 10)

	b1 := makeBlock(11, genesis.Hash(), 1)
	b2 := makeBlock(12, b1.Hash(), 1)

	ok, err := tr.InsertBlock(b1)
	if err != nil || !ok {
		t.Fatalf("insert b1: ok=%v err=%v", ok, err)
	}
	ok, err = tr.InsertBlock(b2)
	if err != nil || !ok {
		t.Fatalf("insert b2: ok=%v err=%v", ok, err)
	}

	if err := tr.MakeCanonical(b1.Hash()); err != nil {
		t.Fatalf("make_canonical b1: %v", err)
	}
	if err := tr.MakeCanonical(b2.Hash()); err != nil {
		t.Fatalf("make_canonical b2: %v", err)
	}
	if n := tr.ChainCount(); n != 0 {
		t.Fatalf("expected no live chains after canonicalizing both blocks, got %d", n)
	}
}

// S2: a block beyond the side-chain window is rejected as in-future.
func TestInsertBlockInFutureRejected(t *testing.T) {
	tr, _ := newTestTree(t, 10)

	far := makeBlock(13, types.HexToHash("0xabc"), 1)

	_, err := tr.InsertBlock(far)
	if err == nil {
		t.Fatalf("expected in-future rejection, got nil error")
	}
}

// S3: a block whose parent is unknown is reported as an orphan, not an error.
func TestInsertBlockOrphan(t *testing.T) {
	tr, _ := newTestTree(t, 10)

	orphanParent := types.HexToHash("0xdeadbeef")
	orphan := makeBlock(11, orphanParent, 1)

	ok, err := tr.InsertBlock(orphan)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if ok {
		t.Fatalf("expected orphan block to be reported unaccepted")
	}
}

// S4: making a competing fork of the same length canonical triggers a
// reorg; the old canonical blocks survive as a side chain.
func TestMakeCanonicalReorg(t *testing.T) {
	tr, genesis := newTestTree(t, 10)

	b1 := makeBlock(11, genesis.Hash(), 1)
	b2 := makeBlock(12, b1.Hash(), 1)
	for _, b := range []*types.Block{b1, b2} {
		if ok, err := tr.InsertBlock(b); err != nil || !ok {
			t.Fatalf("insert %d: ok=%v err=%v", b.NumberU64(), ok, err)
		}
	}
	if err := tr.MakeCanonical(b1.Hash()); err != nil {
		t.Fatalf("make_canonical b1: %v", err)
	}
	if err := tr.MakeCanonical(b2.Hash()); err != nil {
		t.Fatalf("make_canonical b2: %v", err)
	}

	b1a := makeBlock(11, genesis.Hash(), 2)
	b2a := makeBlock(12, b1a.Hash(), 2)
	if ok, err := tr.InsertBlock(b1a); err != nil || !ok {
		t.Fatalf("insert b1a: ok=%v err=%v", ok, err)
	}
	if ok, err := tr.InsertBlock(b2a); err != nil || !ok {
		t.Fatalf("insert b2a: ok=%v err=%v", ok, err)
	}
	// b1/b2 were canonicalized and dropped from the live chain set, so only
	// the new b1a+b2a side chain remains pending.
	if n := tr.ChainCount(); n != 1 {
		t.Fatalf("expected 1 live chain before reorg (b1a+b2a), got %d", n)
	}

	if err := tr.MakeCanonical(b2a.Hash()); err != nil {
		t.Fatalf("make_canonical b2a (reorg): %v", err)
	}

	tip := tr.CanonicalTip()
	if tip.Hash != b2a.Hash() {
		t.Fatalf("expected new canonical tip to be b2a, got %s", tip.Hash)
	}

	// The old canonical chain [b1, b2] should now be a reachable side chain.
	if _, ok := tr.indices.GetBlocksChainID(b2.Hash()); !ok {
		t.Fatalf("expected old canonical block b2 to survive as a side chain block")
	}
}
