package tree

import (
	"fmt"

	"github.com/opalchain/opal/common"
	"github.com/opalchain/opal/opalerrors"
)

// NoteTreeDepth is 6 batch-index bits followed by 10 note-index bits.
const (
	NoteTreeDepth = 16

	MaxBatchesPerBlock = 1 << 6  // 64
	MaxNotesPerBatch   = 1 << 10 // 1024
)

// BlockNoteIndex addresses one note slot within a block: the batch that
// emitted it and its position inside that batch.
type BlockNoteIndex struct {
	BatchIdx uint8
	NoteIdx  uint16
}

// NewBlockNoteIndex validates the index ranges.
func NewBlockNoteIndex(batchIdx uint8, noteIdx uint16) (BlockNoteIndex, error) {
	idx := BlockNoteIndex{BatchIdx: batchIdx, NoteIdx: noteIdx}
	if err := idx.Check(); err != nil {
		return BlockNoteIndex{}, err
	}
	return idx, nil
}

// Check reports whether the index is within the block's note space.
func (i BlockNoteIndex) Check() error {
	if i.BatchIdx >= MaxBatchesPerBlock {
		return fmt.Errorf("%w: batch %d", opalerrors.ErrOBatchIndexOutOfRange, i.BatchIdx)
	}
	if i.NoteIdx >= MaxNotesPerBatch {
		return fmt.Errorf("%w: note %d", opalerrors.ErrONoteIndexOutOfRange, i.NoteIdx)
	}
	return nil
}

// bits returns the index packed into the tree's 16 key bits.
func (i BlockNoteIndex) bits() uint16 {
	return uint16(i.BatchIdx)<<10 | i.NoteIdx
}

// Key maps the index onto a tree key: the packed bits occupy the top of
// element 0, everything below the tree depth is zero.
func (i BlockNoteIndex) Key() common.Word {
	return common.NewWordFromUint64s(uint64(i.bits())<<48, 0, 0, 0)
}

func (i BlockNoteIndex) String() string {
	return fmt.Sprintf("note(%d,%d)", i.BatchIdx, i.NoteIdx)
}

// IndexedNote is one note commitment at its slot in the block note tree.
type IndexedNote struct {
	Index      BlockNoteIndex
	Commitment common.Hash
}

// BlockNoteTree is the per-block tree of note commitments. Empty slots
// hash as absent, so a block's note root is independent of how many
// trailing empty slots each batch leaves: padding a batch with zero
// commitments yields the same root as omitting them.
type BlockNoteTree struct {
	smt *SparseTree
}

// NewBlockNoteTree creates an empty note tree for one block.
func NewBlockNoteTree() *BlockNoteTree {
	smt, err := NewSparseTree(NoteTreeDepth)
	if err != nil {
		panic(err) // depth is a compile-time constant
	}
	return &BlockNoteTree{smt: smt}
}

// Root returns the block note tree root commitment.
func (b *BlockNoteTree) Root() common.Hash { return b.smt.Root() }

// Get returns the note commitment at the slot, or the zero Hash if empty.
func (b *BlockNoteTree) Get(idx BlockNoteIndex) (common.Hash, error) {
	if err := idx.Check(); err != nil {
		return common.Hash{}, err
	}
	return b.smt.Get(idx.Key())
}

// Insert places a note commitment at its slot. A zero commitment is an
// empty slot and is dropped.
func (b *BlockNoteTree) Insert(idx BlockNoteIndex, commitment common.Hash) error {
	if err := idx.Check(); err != nil {
		return err
	}
	_, err := b.smt.Insert(idx.Key(), commitment)
	return err
}

// BuildNoteRoot fills a fresh tree with a block's notes and returns its
// root. Two notes at the same slot are a malformed block and reject the
// whole list; zero commitments are skipped.
func BuildNoteRoot(notes []IndexedNote) (common.Hash, *BlockNoteTree, error) {
	tree := NewBlockNoteTree()
	seen := make(map[uint16]struct{}, len(notes))
	for _, n := range notes {
		if err := n.Index.Check(); err != nil {
			return common.Hash{}, nil, err
		}
		if _, dup := seen[n.Index.bits()]; dup {
			return common.Hash{}, nil, fmt.Errorf("%w: %s", opalerrors.ErrODuplicateNoteIndex, n.Index)
		}
		seen[n.Index.bits()] = struct{}{}
		if common.IsNilHash(n.Commitment) {
			continue
		}
		if err := tree.Insert(n.Index, n.Commitment); err != nil {
			return common.Hash{}, nil, err
		}
	}
	return tree.Root(), tree, nil
}

// Open produces an inclusion (or absence) witness for the slot, checkable
// against the block's note root.
func (b *BlockNoteTree) Open(idx BlockNoteIndex) (*Witness, error) {
	if err := idx.Check(); err != nil {
		return nil, err
	}
	return b.smt.Open(idx.Key())
}
