package tree

import (
	"fmt"

	"github.com/opalchain/opal/codec"
	"github.com/opalchain/opal/common"
	"github.com/opalchain/opal/opalerrors"
)

// Mutation records one leaf transition of a batched update.
type Mutation struct {
	Key common.Word
	Old common.Hash
	New common.Hash
}

// MutationSet is the recorded diff of a batched tree update: the ordered
// (key, old, new) triples plus the roots they connect. Applying the set to a
// tree at OldRoot reproduces NewRoot exactly, so state transitions can be
// replayed or audited without transmitting the whole tree.
type MutationSet struct {
	Depth     uint16
	OldRoot   common.Hash
	NewRoot   common.Hash
	Mutations []Mutation
}

// Commitment returns the content hash of the serialized mutation set.
func (ms *MutationSet) Commitment() common.Hash {
	return common.Blake2Hash(codec.MustMarshal(ms))
}

// Reverted returns the inverse set: applying it to a tree at NewRoot rolls
// the tree back to OldRoot. Used when a signed block turns out unprovable.
func (ms *MutationSet) Reverted() *MutationSet {
	rev := &MutationSet{
		Depth:     ms.Depth,
		OldRoot:   ms.NewRoot,
		NewRoot:   ms.OldRoot,
		Mutations: make([]Mutation, len(ms.Mutations)),
	}
	for i, m := range ms.Mutations {
		rev.Mutations[i] = Mutation{Key: m.Key, Old: m.New, New: m.Old}
	}
	return rev
}

// ApplyMutationSet replays a recorded set onto the tree. Every Old value
// must match the tree's current leaf; a mismatch means the set was recorded
// against different pre-state and nothing is applied.
func (t *SparseTree) ApplyMutationSet(ms *MutationSet) error {
	if int(ms.Depth) != t.depth {
		return fmt.Errorf("%w: set depth %d, tree depth %d", opalerrors.ErrSDepthOutOfRange, ms.Depth, t.depth)
	}
	if ms.OldRoot != t.root {
		return fmt.Errorf("%w: set pre-root %s, tree root %s", opalerrors.ErrWStaleMutationSet, ms.OldRoot.String_short(), t.root.String_short())
	}
	for _, m := range ms.Mutations {
		have, err := t.Get(m.Key)
		if err != nil {
			return err
		}
		if have != m.Old {
			return fmt.Errorf("%w: key %s", opalerrors.ErrWStaleMutationSet, m.Key.Hex())
		}
	}
	for _, m := range ms.Mutations {
		if _, err := t.Insert(m.Key, m.New); err != nil {
			return err
		}
	}
	if t.root != ms.NewRoot {
		return fmt.Errorf("%w: replay produced %s, set claims %s", opalerrors.ErrWStaleMutationSet, t.root.String_short(), ms.NewRoot.String_short())
	}
	return nil
}
