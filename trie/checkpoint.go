package trie

import (
	"github.com/eth2030/eth2030/core/types"
	"github.com/eth2030/eth2030/kv"
	"github.com/eth2030/eth2030/rlp"
)

// checkpointStage is the SyncStageProgress key the trie loader persists its
// resume position under.
const checkpointStage = "TrieLoader"

// ProofCheckpoint records how far an incremental root calculation has
// progressed, so a crashed or paused run can resume instead of restarting
// from the first hashed account. Inserted counts the accounts put into or
// removed from the account trie since the run began, the same unit
// commitThreshold is measured in; storage slot writes are not counted.
type ProofCheckpoint struct {
	LastHashedAccount types.Hash
	PartialRoot       types.Hash
	Inserted          uint64
}

type rlpCheckpoint struct {
	LastHashedAccount types.Hash
	PartialRoot       types.Hash
	Inserted          uint64
}

// LoadCheckpoint reads the persisted checkpoint, if any. A missing
// checkpoint is not an error: it returns the zero-value ProofCheckpoint,
// meaning "start from the beginning".
func LoadCheckpoint(tx kv.Tx) (ProofCheckpoint, error) {
	data, err := tx.GetOne(kv.SyncStageProgress, []byte(checkpointStage))
	if err != nil {
		return ProofCheckpoint{}, err
	}
	if data == nil {
		return ProofCheckpoint{}, nil
	}
	var raw rlpCheckpoint
	if err := rlp.DecodeBytes(data, &raw); err != nil {
		return ProofCheckpoint{}, err
	}
	return ProofCheckpoint(raw), nil
}

// SaveCheckpoint persists cp so a subsequent CalculateRoot call can resume.
func SaveCheckpoint(tx kv.RwTx, cp ProofCheckpoint) error {
	data, err := rlp.EncodeToBytes(rlpCheckpoint(cp))
	if err != nil {
		return err
	}
	return tx.Put(kv.SyncStageProgress, []byte(checkpointStage), data)
}

// ClearCheckpoint removes any persisted checkpoint, e.g. after a
// CalculateRoot run completes.
func ClearCheckpoint(tx kv.RwTx) error {
	return tx.Delete(kv.SyncStageProgress, []byte(checkpointStage))
}
