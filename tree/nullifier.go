package tree

import (
	"encoding/binary"
	"fmt"

	"github.com/opalchain/opal/common"
	"github.com/opalchain/opal/opalerrors"
)

// NullifierTreeDepth covers the full 256-bit nullifier space.
const NullifierTreeDepth = 256

// NullifierTree records spent nullifiers. Each leaf is written at most
// once and stores the number of the block that spent it.
type NullifierTree struct {
	smt *SparseTree
}

// NewNullifierTree creates an empty nullifier tree.
func NewNullifierTree() *NullifierTree {
	smt, err := NewSparseTree(NullifierTreeDepth)
	if err != nil {
		panic(err) // depth is a compile-time constant
	}
	return &NullifierTree{smt: smt}
}

// spendValue encodes the spending block number as a leaf value. Block 0 is
// the genesis block and never spends, so the zero Hash stays reserved for
// "unspent".
func spendValue(blockNum uint32) common.Hash {
	var h common.Hash
	binary.LittleEndian.PutUint32(h[:4], blockNum)
	return h
}

// Root returns the nullifier tree root commitment.
func (n *NullifierTree) Root() common.Hash { return n.smt.Root() }

// NumSpent returns the number of spent nullifiers.
func (n *NullifierTree) NumSpent() int { return n.smt.NumLeaves() }

// SpentAt reports whether the nullifier is spent and, if so, in which
// block.
func (n *NullifierTree) SpentAt(nullifier common.Word) (uint32, bool, error) {
	v, err := n.smt.Get(nullifier)
	if err != nil {
		return 0, false, err
	}
	if common.IsNilHash(v) {
		return 0, false, nil
	}
	return binary.LittleEndian.Uint32(v[:4]), true, nil
}

// Spend marks a single nullifier as spent in blockNum. Spending an
// already-spent nullifier is a double spend and is rejected without
// changing the tree.
func (n *NullifierTree) Spend(nullifier common.Word, blockNum uint32) error {
	if blockNum == 0 {
		return opalerrors.ErrNSpendAtGenesis
	}
	prev, spent, err := n.SpentAt(nullifier)
	if err != nil {
		return err
	}
	if spent {
		return fmt.Errorf("%w: %s spent in block %d", opalerrors.ErrNNullifierAlreadySpent, nullifier.Hex(), prev)
	}
	_, err = n.smt.Insert(nullifier, spendValue(blockNum))
	return err
}

// ApplySpends marks every nullifier in the list as spent in blockNum and
// returns the recorded mutation set. The whole list is validated before
// anything is written: a duplicate within the list, or a nullifier already
// spent in an earlier block, rejects the entire batch and the root is
// unchanged.
func (n *NullifierTree) ApplySpends(nullifiers []common.Word, blockNum uint32) (*MutationSet, error) {
	if blockNum == 0 {
		return nil, opalerrors.ErrNSpendAtGenesis
	}
	seen := make(map[[common.WordLength]byte]struct{}, len(nullifiers))
	kvs := make([]KeyValue, len(nullifiers))
	for i, nf := range nullifiers {
		kb := nf.Bytes()
		if _, dup := seen[kb]; dup {
			return nil, fmt.Errorf("%w: %s", opalerrors.ErrNDuplicateNullifierInBlock, nf.Hex())
		}
		seen[kb] = struct{}{}
		prev, spent, err := n.SpentAt(nf)
		if err != nil {
			return nil, err
		}
		if spent {
			return nil, fmt.Errorf("%w: %s spent in block %d", opalerrors.ErrNNullifierAlreadySpent, nf.Hex(), prev)
		}
		kvs[i] = KeyValue{Key: nf, Value: spendValue(blockNum)}
	}
	return n.smt.ApplyMutations(kvs)
}

// ComputeNullifierRoot returns the root that would result from spending the
// nullifiers, without touching the canonical tree.
func (n *NullifierTree) ComputeNullifierRoot(nullifiers []common.Word, blockNum uint32) (common.Hash, *MutationSet, error) {
	scratch := n.Clone()
	ms, err := scratch.ApplySpends(nullifiers, blockNum)
	if err != nil {
		return common.Hash{}, nil, err
	}
	return scratch.Root(), ms, nil
}

// Open produces a witness for the nullifier. An absence witness proves the
// nullifier is still unspent.
func (n *NullifierTree) Open(nullifier common.Word) (*Witness, error) {
	return n.smt.Open(nullifier)
}

// VerifyWitness checks a caller-supplied nullifier witness against the
// current root.
func (n *NullifierTree) VerifyWitness(w *Witness) error {
	if err := w.VerifyAgainst(n.smt); err != nil {
		return fmt.Errorf("%w: %v", opalerrors.ErrWWitnessMismatch, err)
	}
	return nil
}

// Clone returns an independent copy for scratch block assembly.
func (n *NullifierTree) Clone() *NullifierTree {
	return &NullifierTree{smt: n.smt.Clone()}
}

// ApplyMutationSet replays a recorded nullifier mutation set (used on
// commit and rollback).
func (n *NullifierTree) ApplyMutationSet(ms *MutationSet) error {
	return n.smt.ApplyMutationSet(ms)
}
