package tree

import (
	"fmt"

	"github.com/opalchain/opal/common"
	"github.com/opalchain/opal/opalerrors"
)

// Witness proves that a leaf (or its absence) belongs to a tree with a
// specific root. Path holds the sibling hashes ordered from the leaf level
// upward; a zero Leaf is a proof of absence.
type Witness struct {
	Key  common.Word
	Leaf common.Hash
	Path []common.Hash
}

// Root recomputes the tree root implied by the witness.
func (w *Witness) Root() common.Hash {
	kb := w.Key.Bytes()
	depth := len(w.Path)

	var current common.Hash
	if common.IsNilHash(w.Leaf) {
		current = emptyHashes[0]
	} else {
		current = common.HashLeaf(kb[:], w.Leaf[:])
	}

	for h := 0; h < depth; h++ {
		if bitAt(kb, depth-1-h) == 0 {
			current = common.HashNode(current, w.Path[h])
		} else {
			current = common.HashNode(w.Path[h], current)
		}
	}
	return current
}

// Verify checks the witness against a claimed root.
func (w *Witness) Verify(root common.Hash) error {
	if len(w.Path) < 1 || len(w.Path) > MaxDepth {
		return fmt.Errorf("%w: %d", opalerrors.ErrWPathLength, len(w.Path))
	}
	if w.Root() != root {
		return fmt.Errorf("%w: key %s", opalerrors.ErrWWitnessMismatch, w.Key.Hex())
	}
	return nil
}

// VerifyAgainst checks the witness against a tree, enforcing that the path
// length matches the tree depth.
func (w *Witness) VerifyAgainst(t *SparseTree) error {
	if len(w.Path) != t.depth {
		return fmt.Errorf("%w: have %d, tree depth %d", opalerrors.ErrWPathLength, len(w.Path), t.depth)
	}
	return w.Verify(t.root)
}
