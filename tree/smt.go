// Package tree implements the authenticated sparse Merkle structures of the
// chain: the generic fixed-depth sparse Merkle engine plus the account,
// nullifier and block note trees built on top of it.
//
// A sparse tree has a fixed depth D and maps 256-bit Word keys to 32-byte
// leaf values. Only occupied subtrees are materialized; every empty subtree
// has a precomputed canonical hash, so memory cost is proportional to live
// leaves. A tree with no entries has a well-known empty root.
package tree

import (
	"fmt"
	"sort"

	"github.com/opalchain/opal/common"
	"github.com/opalchain/opal/opalerrors"
)

// MaxDepth is the deepest supported tree: one level per key bit.
const MaxDepth = 256

// emptyHashes[h] is the hash of an empty subtree of height h above the leaf
// level. emptyHashes[0] is the canonical empty leaf.
var emptyHashes [MaxDepth + 1]common.Hash

func init() {
	emptyHashes[0] = common.DomainHash(common.DomainLeaf)
	for h := 1; h <= MaxDepth; h++ {
		emptyHashes[h] = common.HashNode(emptyHashes[h-1], emptyHashes[h-1])
	}
}

// EmptyRoot returns the root of an empty tree of the given depth.
func EmptyRoot(depth int) common.Hash {
	return emptyHashes[depth]
}

// nodeKey identifies an internal node by its depth (0 = root) and the key
// bits leading to it, with bits at or below the node's depth zeroed.
type nodeKey struct {
	depth int
	path  [common.WordLength]byte
}

// KeyValue is one (key, leaf) pair of a batched update.
type KeyValue struct {
	Key   common.Word
	Value common.Hash
}

// SparseTree is a fixed-depth authenticated map. The zero Hash is the
// canonical empty leaf value and is never materialized in the tree; writing
// it removes the key.
//
// SparseTree is not safe for concurrent mutation. Each block assembly works
// on its own Clone and either discards it or promotes it to the new
// canonical state.
type SparseTree struct {
	depth  int
	leaves map[[common.WordLength]byte]common.Hash
	nodes  map[nodeKey]common.Hash
	root   common.Hash
}

// NewSparseTree creates an empty tree of the given depth (1..256).
func NewSparseTree(depth int) (*SparseTree, error) {
	if depth < 1 || depth > MaxDepth {
		return nil, fmt.Errorf("%w: %d", opalerrors.ErrSDepthOutOfRange, depth)
	}
	return &SparseTree{
		depth:  depth,
		leaves: make(map[[common.WordLength]byte]common.Hash),
		nodes:  make(map[nodeKey]common.Hash),
		root:   emptyHashes[depth],
	}, nil
}

// Depth returns the fixed depth of the tree.
func (t *SparseTree) Depth() int { return t.depth }

// Root returns the current root commitment.
func (t *SparseTree) Root() common.Hash { return t.root }

// NumLeaves returns the number of occupied leaves.
func (t *SparseTree) NumLeaves() int { return len(t.leaves) }

// checkKey rejects keys whose set bits extend beyond the tree depth. The
// first depth bits of the key form the leaf index; anything below must be
// zero or two distinct keys would share a leaf.
func (t *SparseTree) checkKey(key common.Word) ([common.WordLength]byte, error) {
	kb := key.Bytes()
	for i := t.depth; i < MaxDepth; i++ {
		if kb[i/8]&(1<<(7-i%8)) != 0 {
			return kb, fmt.Errorf("%w: key %s exceeds depth %d", opalerrors.ErrSKeyOutOfRange, key.Hex(), t.depth)
		}
	}
	return kb, nil
}

// Get returns the leaf value for key, or the zero Hash if the key is empty.
func (t *SparseTree) Get(key common.Word) (common.Hash, error) {
	kb, err := t.checkKey(key)
	if err != nil {
		return common.Hash{}, err
	}
	return t.leaves[kb], nil
}

// Insert writes value at key and returns the previous leaf value. Writing
// the zero Hash deletes the key. The root is updated in place.
func (t *SparseTree) Insert(key common.Word, value common.Hash) (common.Hash, error) {
	kb, err := t.checkKey(key)
	if err != nil {
		return common.Hash{}, err
	}
	old := t.leaves[kb]
	if old == value {
		return old, nil
	}

	var leafHash common.Hash
	if common.IsNilHash(value) {
		delete(t.leaves, kb)
		leafHash = emptyHashes[0]
	} else {
		t.leaves[kb] = value
		leafHash = common.HashLeaf(kb[:], value[:])
	}
	t.updatePath(kb, leafHash)
	return old, nil
}

// updatePath rehashes the path from the leaf at kb to the root.
func (t *SparseTree) updatePath(kb [common.WordLength]byte, leafHash common.Hash) {
	current := leafHash
	for d := t.depth; d > 0; d-- {
		t.setNode(nodeKey{d, prefixPath(kb, d)}, current, t.depth-d)

		bit := bitAt(kb, d-1)
		sibling := t.lookup(nodeKey{d, siblingPath(kb, d)}, t.depth-d)
		if bit == 0 {
			current = common.HashNode(current, sibling)
		} else {
			current = common.HashNode(sibling, current)
		}
	}
	t.setNode(nodeKey{0, [common.WordLength]byte{}}, current, t.depth)
	t.root = current
}

// lookup returns the stored hash for an occupied subtree, or the canonical
// empty hash for its height.
func (t *SparseTree) lookup(nk nodeKey, height int) common.Hash {
	if h, ok := t.nodes[nk]; ok {
		return h
	}
	return emptyHashes[height]
}

// setNode stores a subtree hash, removing the entry when the subtree
// becomes empty again.
func (t *SparseTree) setNode(nk nodeKey, h common.Hash, height int) {
	if h == emptyHashes[height] {
		delete(t.nodes, nk)
		return
	}
	t.nodes[nk] = h
}

// Open produces a witness for key: its leaf value (or the zero Hash as
// proof of absence) plus the sibling hashes from leaf to root. Opening a key
// never mutates the tree.
func (t *SparseTree) Open(key common.Word) (*Witness, error) {
	kb, err := t.checkKey(key)
	if err != nil {
		return nil, err
	}
	path := make([]common.Hash, t.depth)
	for d := t.depth; d > 0; d-- {
		path[t.depth-d] = t.lookup(nodeKey{d, siblingPath(kb, d)}, t.depth-d)
	}
	return &Witness{Key: key, Leaf: t.leaves[kb], Path: path}, nil
}

// ApplyMutations folds a batch of (key, value) updates into the tree and
// returns the recorded MutationSet. The batch is canonicalized before
// folding: distinct keys are applied in ascending key order, so any
// permutation of the same logical set yields the identical final root.
// Repeated writes to one key keep the last value in input order.
func (t *SparseTree) ApplyMutations(kvs []KeyValue) (*MutationSet, error) {
	oldRoot := t.root

	// Fold duplicates first: last write per key wins.
	final := make(map[[common.WordLength]byte]KeyValue, len(kvs))
	order := make([][common.WordLength]byte, 0, len(kvs))
	for _, kv := range kvs {
		kb, err := t.checkKey(kv.Key)
		if err != nil {
			return nil, err
		}
		if _, seen := final[kb]; !seen {
			order = append(order, kb)
		}
		final[kb] = kv
	}
	sort.Slice(order, func(i, j int) bool {
		return compareKeyBytes(order[i], order[j]) < 0
	})

	ms := &MutationSet{
		Depth:     uint16(t.depth),
		OldRoot:   oldRoot,
		Mutations: make([]Mutation, 0, len(order)),
	}
	for _, kb := range order {
		kv := final[kb]
		old, err := t.Insert(kv.Key, kv.Value)
		if err != nil {
			return nil, err
		}
		ms.Mutations = append(ms.Mutations, Mutation{Key: kv.Key, Old: old, New: kv.Value})
	}
	ms.NewRoot = t.root
	return ms, nil
}

// Clone returns a deep copy sharing no state with the receiver. Block
// assembly mutates the clone and discards it on failure, leaving the
// canonical pre-block tree untouched.
func (t *SparseTree) Clone() *SparseTree {
	c := &SparseTree{
		depth:  t.depth,
		leaves: make(map[[common.WordLength]byte]common.Hash, len(t.leaves)),
		nodes:  make(map[nodeKey]common.Hash, len(t.nodes)),
		root:   t.root,
	}
	for k, v := range t.leaves {
		c.leaves[k] = v
	}
	for k, v := range t.nodes {
		c.nodes[k] = v
	}
	return c
}

// bitAt returns bit i (0 = MSB) of the key bytes.
func bitAt(kb [common.WordLength]byte, i int) int {
	return int((kb[i/8] >> (7 - i%8)) & 1)
}

// prefixPath zeroes every key bit at or below depth d.
func prefixPath(kb [common.WordLength]byte, d int) [common.WordLength]byte {
	var out [common.WordLength]byte
	full := d / 8
	copy(out[:full], kb[:full])
	if rem := d % 8; rem != 0 {
		out[full] = kb[full] & (byte(0xFF) << (8 - rem))
	}
	return out
}

// siblingPath is prefixPath with the bit selecting the node itself flipped.
func siblingPath(kb [common.WordLength]byte, d int) [common.WordLength]byte {
	out := prefixPath(kb, d)
	out[(d-1)/8] ^= 1 << (7 - (d-1)%8)
	return out
}

func compareKeyBytes(a, b [common.WordLength]byte) int {
	for i := 0; i < common.WordLength; i++ {
		if a[i] != b[i] {
			if a[i] < b[i] {
				return -1
			}
			return 1
		}
	}
	return 0
}
