package tree

import (
	"fmt"

	"github.com/consensys/gnark-crypto/field/goldilocks"

	"github.com/opalchain/opal/common"
	"github.com/opalchain/opal/opalerrors"
)

// AccountTreeDepth is the depth of the account tree: one level per bit of
// the account-id prefix.
const AccountTreeDepth = 64

// Account id prefix layout, low byte:
//
//	bits 0..1  storage mode
//	bits 2..3  account type
//	bits 4..7  version, must be zero
const (
	prefixVersionMask = uint64(0xF0)
)

// AccountIdPrefix is the high-order 64 bits of an account id, used as the
// account tree key. Exactly one live account occupies a prefix.
type AccountIdPrefix uint64

// NewAccountIdPrefix validates the version bits and field canonicality of a
// raw prefix.
func NewAccountIdPrefix(v uint64) (AccountIdPrefix, error) {
	if v&prefixVersionMask != 0 {
		return 0, fmt.Errorf("%w: version bits 0x%x", opalerrors.ErrAMalformedPrefix, (v&prefixVersionMask)>>4)
	}
	if v >= goldilocks.Modulus().Uint64() {
		return 0, fmt.Errorf("%w: prefix 0x%016x is not a canonical field element", opalerrors.ErrAMalformedPrefix, v)
	}
	return AccountIdPrefix(v), nil
}

// Key maps the prefix onto a tree key: element 0 carries the prefix, the
// remaining elements are zero so the key stays within the tree depth.
func (p AccountIdPrefix) Key() common.Word {
	return common.NewWordFromUint64s(uint64(p), 0, 0, 0)
}

// AccountUpdate replaces the state commitment of the account at Prefix.
type AccountUpdate struct {
	Prefix        AccountIdPrefix
	NewCommitment common.Hash
}

// AccountTree tracks the state commitment of every account, keyed by
// account-id prefix.
type AccountTree struct {
	smt *SparseTree
}

// NewAccountTree creates an empty account tree.
func NewAccountTree() *AccountTree {
	smt, err := NewSparseTree(AccountTreeDepth)
	if err != nil {
		panic(err) // depth is a compile-time constant
	}
	return &AccountTree{smt: smt}
}

// Root returns the account tree root commitment.
func (a *AccountTree) Root() common.Hash { return a.smt.Root() }

// NumAccounts returns the number of live accounts.
func (a *AccountTree) NumAccounts() int { return a.smt.NumLeaves() }

// Get returns the state commitment of the account at prefix, or the zero
// Hash if no account occupies it.
func (a *AccountTree) Get(prefix AccountIdPrefix) (common.Hash, error) {
	return a.smt.Get(prefix.Key())
}

// Register inserts a brand-new account. Registering a prefix that is
// already occupied is an error: two distinct accounts can never share one.
func (a *AccountTree) Register(prefix AccountIdPrefix, commitment common.Hash) error {
	old, err := a.smt.Get(prefix.Key())
	if err != nil {
		return err
	}
	if !common.IsNilHash(old) {
		return fmt.Errorf("%w: prefix 0x%016x", opalerrors.ErrAPrefixOccupied, uint64(prefix))
	}
	_, err = a.smt.Insert(prefix.Key(), commitment)
	return err
}

// ApplyUpdates folds a block's account updates into the tree and returns
// the recorded mutation set. Updates must be supplied in transaction order:
// an account touched by several transactions in one block is overwritten
// each time and only its final commitment is committed.
func (a *AccountTree) ApplyUpdates(updates []AccountUpdate) (*MutationSet, error) {
	kvs := make([]KeyValue, len(updates))
	for i, u := range updates {
		if _, err := NewAccountIdPrefix(uint64(u.Prefix)); err != nil {
			return nil, err
		}
		kvs[i] = KeyValue{Key: u.Prefix.Key(), Value: u.NewCommitment}
	}
	return a.smt.ApplyMutations(kvs)
}

// ComputeAccountRoot returns the root that would result from applying the
// updates, without touching the canonical tree.
func (a *AccountTree) ComputeAccountRoot(updates []AccountUpdate) (common.Hash, *MutationSet, error) {
	scratch := a.Clone()
	ms, err := scratch.ApplyUpdates(updates)
	if err != nil {
		return common.Hash{}, nil, err
	}
	return scratch.Root(), ms, nil
}

// Open produces a membership (or absence) witness for the account at
// prefix.
func (a *AccountTree) Open(prefix AccountIdPrefix) (*Witness, error) {
	return a.smt.Open(prefix.Key())
}

// VerifyWitness checks a caller-supplied account witness against the
// current root. A failure means the witness is stale or corrupted.
func (a *AccountTree) VerifyWitness(w *Witness) error {
	if err := w.VerifyAgainst(a.smt); err != nil {
		return fmt.Errorf("%w: %v", opalerrors.ErrAWitnessMismatch, err)
	}
	return nil
}

// Clone returns an independent copy for scratch block assembly.
func (a *AccountTree) Clone() *AccountTree {
	return &AccountTree{smt: a.smt.Clone()}
}

// ApplyMutationSet replays a recorded account mutation set (used on commit
// and rollback).
func (a *AccountTree) ApplyMutationSet(ms *MutationSet) error {
	return a.smt.ApplyMutationSet(ms)
}
