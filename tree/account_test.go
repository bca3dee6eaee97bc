package tree

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/opalchain/opal/common"
	"github.com/opalchain/opal/opalerrors"
)

func TestAccountIdPrefixValidation(t *testing.T) {
	_, err := NewAccountIdPrefix(0x12345600) // version nibble zero
	require.NoError(t, err)

	_, err = NewAccountIdPrefix(0x10) // version nibble set
	require.ErrorIs(t, err, opalerrors.ErrAMalformedPrefix)

	// 2^64 - 2^32 + 1 is the Goldilocks modulus, not a canonical element.
	_, err = NewAccountIdPrefix(0xFFFFFFFF00000001)
	require.ErrorIs(t, err, opalerrors.ErrAMalformedPrefix)

	_, err = NewAccountIdPrefix(0xFFFFFFFF00000000)
	require.NoError(t, err)
}

func TestAccountRegister(t *testing.T) {
	at := NewAccountTree()
	empty := at.Root()

	p, err := NewAccountIdPrefix(0x0100)
	require.NoError(t, err)
	require.NoError(t, at.Register(p, testValue(1)))
	require.Equal(t, 1, at.NumAccounts())
	require.NotEqual(t, empty, at.Root())

	// A prefix can only ever be claimed once.
	err = at.Register(p, testValue(2))
	require.ErrorIs(t, err, opalerrors.ErrAPrefixOccupied)

	got, err := at.Get(p)
	require.NoError(t, err)
	require.Equal(t, testValue(1), got)
}

func TestAccountApplyUpdatesLastWins(t *testing.T) {
	at := NewAccountTree()
	p1, _ := NewAccountIdPrefix(0x0100)
	p2, _ := NewAccountIdPrefix(0x0200)
	require.NoError(t, at.Register(p1, testValue(1)))

	// p1 is touched twice in one block; its final commitment wins.
	ms, err := at.ApplyUpdates([]AccountUpdate{
		{Prefix: p1, NewCommitment: testValue(10)},
		{Prefix: p2, NewCommitment: testValue(2)},
		{Prefix: p1, NewCommitment: testValue(11)},
	})
	require.NoError(t, err)
	require.Len(t, ms.Mutations, 2)

	got, err := at.Get(p1)
	require.NoError(t, err)
	require.Equal(t, testValue(11), got)
	require.Equal(t, 2, at.NumAccounts())
}

func TestAccountApplyUpdatesRejectsMalformedPrefix(t *testing.T) {
	at := NewAccountTree()
	before := at.Root()
	_, err := at.ApplyUpdates([]AccountUpdate{
		{Prefix: AccountIdPrefix(0x10), NewCommitment: testValue(1)},
	})
	require.ErrorIs(t, err, opalerrors.ErrAMalformedPrefix)
	require.Equal(t, before, at.Root())
}

func TestAccountComputeRootLeavesCanonicalUntouched(t *testing.T) {
	at := NewAccountTree()
	p, _ := NewAccountIdPrefix(0x0100)
	require.NoError(t, at.Register(p, testValue(1)))
	before := at.Root()

	root, ms, err := at.ComputeAccountRoot([]AccountUpdate{
		{Prefix: p, NewCommitment: testValue(2)},
	})
	require.NoError(t, err)
	require.NotEqual(t, before, root)
	require.Equal(t, before, at.Root())

	// Committing the recorded set moves the canonical tree to the
	// computed root.
	require.NoError(t, at.ApplyMutationSet(ms))
	require.Equal(t, root, at.Root())
}

func TestAccountWitness(t *testing.T) {
	at := NewAccountTree()
	p1, _ := NewAccountIdPrefix(0x0100)
	p2, _ := NewAccountIdPrefix(0x0200)
	require.NoError(t, at.Register(p1, testValue(1)))

	w, err := at.Open(p1)
	require.NoError(t, err)
	require.NoError(t, at.VerifyWitness(w))
	require.Len(t, w.Path, AccountTreeDepth)

	// Absence of an unregistered account is provable too.
	w2, err := at.Open(p2)
	require.NoError(t, err)
	require.True(t, common.IsNilHash(w2.Leaf))
	require.NoError(t, at.VerifyWitness(w2))

	require.NoError(t, at.Register(p2, testValue(2)))
	err = at.VerifyWitness(w)
	require.ErrorIs(t, err, opalerrors.ErrAWitnessMismatch)
}
