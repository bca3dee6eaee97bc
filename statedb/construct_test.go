package statedb

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/opalchain/opal/common"
	"github.com/opalchain/opal/opalerrors"
	"github.com/opalchain/opal/storage"
	"github.com/opalchain/opal/tree"
	"github.com/opalchain/opal/types"
)

func testStateDB(t *testing.T) *StateDB {
	t.Helper()
	store, err := storage.NewBlockStore("")
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })
	s, err := NewStateDB(store, GenesisFeeParams())
	require.NoError(t, err)
	return s
}

func testPrefix(t *testing.T, v uint64) tree.AccountIdPrefix {
	t.Helper()
	p, err := tree.NewAccountIdPrefix(v)
	require.NoError(t, err)
	return p
}

// proposalOn builds a one-batch proposal on top of head with a single
// account update and a single nullifier spend.
func proposalOn(t *testing.T, head *types.BlockHeader, salt uint64) *types.ProposedBlock {
	t.Helper()
	prefix := testPrefix(t, 0xAA00+salt%0x10)
	return &types.ProposedBlock{
		PrevHeader: *head,
		BlockNum:   head.BlockNum + 1,
		Timestamp:  head.Timestamp + 12,
		FeeParams:  head.FeeParams,
		Batches: []types.TransactionBatch{{
			AccountUpdates: []types.AccountUpdateWitness{{
				Update: tree.AccountUpdate{Prefix: prefix, NewCommitment: common.Blake2Hash(common.Uint64ToBytes(salt))},
			}},
			CreatedNullifiers: []types.NullifierWitness{{
				Nullifier: common.HashToWord(common.Uint64ToBytes(salt)),
			}},
			OutputNotes: []types.OutputNote{
				{NoteIdx: 0, Commitment: common.Blake2Hash(common.Uint64ToBytes(salt + 1000))},
			},
			Transactions: []types.TransactionHeader{
				{TxID: common.Blake2Hash(common.Uint64ToBytes(salt + 2000)), Account: prefix},
			},
		}},
	}
}

func TestConstructBlockRoots(t *testing.T) {
	s := testStateDB(t)
	proposed := proposalOn(t, s.Head(), 1)

	blk, accountMut, nullifierMut, err := ConstructBlock(context.Background(), s.accounts, s.nullifiers, proposed)
	require.NoError(t, err)

	// The header's roots equal applying the same updates to standalone
	// trees seeded with the pre-block state.
	at := tree.NewAccountTree()
	_, err = at.ApplyUpdates(proposed.AccountUpdates())
	require.NoError(t, err)
	require.Equal(t, at.Root(), blk.Header.AccountRoot)

	nt := tree.NewNullifierTree()
	_, err = nt.ApplySpends(proposed.Nullifiers(), proposed.BlockNum)
	require.NoError(t, err)
	require.Equal(t, nt.Root(), blk.Header.NullifierRoot)

	require.Equal(t, proposed.PrevHeader.NextChainCommitment(), blk.Header.ChainCommitment)

	// Construction is pure: the canonical trees are untouched and the
	// mutation sets still apply cleanly to them.
	require.Equal(t, tree.EmptyRoot(tree.AccountTreeDepth), s.AccountRoot())
	require.Equal(t, accountMut.OldRoot, s.AccountRoot())
	require.Equal(t, nullifierMut.OldRoot, s.NullifierRoot())
}

func TestConstructBlockDeterministic(t *testing.T) {
	s := testStateDB(t)
	proposed := proposalOn(t, s.Head(), 1)

	a, _, _, err := ConstructBlock(context.Background(), s.accounts, s.nullifiers, proposed)
	require.NoError(t, err)
	b, _, _, err := ConstructBlock(context.Background(), s.accounts, s.nullifiers, proposed)
	require.NoError(t, err)

	encA, err := a.Header.Bytes()
	require.NoError(t, err)
	encB, err := b.Header.Bytes()
	require.NoError(t, err)
	require.Equal(t, encA, encB)
}

func TestConstructBlockSequencingErrors(t *testing.T) {
	s := testStateDB(t)
	head := s.Head()
	ctx := context.Background()

	p := proposalOn(t, head, 1)
	p.BlockNum = head.BlockNum + 2
	_, _, _, err := ConstructBlock(ctx, s.accounts, s.nullifiers, p)
	require.ErrorIs(t, err, opalerrors.ErrBNonMonotonicBlockNumber)

	p = proposalOn(t, head, 1)
	p.PrevHeader.Timestamp = p.Timestamp + 100
	_, _, _, err = ConstructBlock(ctx, s.accounts, s.nullifiers, p)
	require.ErrorIs(t, err, opalerrors.ErrBTimestampRegression)

	p = proposalOn(t, head, 1)
	p.Batches = nil
	_, _, _, err = ConstructBlock(ctx, s.accounts, s.nullifiers, p)
	require.ErrorIs(t, err, opalerrors.ErrBEmptyBlock)

	p = proposalOn(t, head, 1)
	p.Batches = make([]types.TransactionBatch, tree.MaxBatchesPerBlock+1)
	for i := range p.Batches {
		p.Batches[i] = proposalOn(t, head, uint64(i)).Batches[0]
	}
	_, _, _, err = ConstructBlock(ctx, s.accounts, s.nullifiers, p)
	require.ErrorIs(t, err, opalerrors.ErrBTooManyBatches)
}

func TestConstructBlockCancelledContext(t *testing.T) {
	s := testStateDB(t)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, _, _, err := ConstructBlock(ctx, s.accounts, s.nullifiers, proposalOn(t, s.Head(), 1))
	require.ErrorIs(t, err, context.Canceled)
}

func TestConstructBlockRejectsDoubleSpend(t *testing.T) {
	s := testStateDB(t)
	ctx := context.Background()

	// Spend a nullifier in block 1.
	p1 := proposalOn(t, s.Head(), 1)
	_, err := s.MakeBlock(ctx, p1)
	require.NoError(t, err)
	rootAfter1 := s.NullifierRoot()

	// Block 2 tries to spend it again.
	p2 := proposalOn(t, s.Head(), 2)
	p2.Batches[0].CreatedNullifiers = p1.Batches[0].CreatedNullifiers
	_, err = s.MakeBlock(ctx, p2)
	require.ErrorIs(t, err, opalerrors.ErrNNullifierAlreadySpent)
	require.Equal(t, rootAfter1, s.NullifierRoot())
	require.Equal(t, uint32(1), s.Head().BlockNum)

	// Two batches in one block spending the same nullifier.
	p3 := proposalOn(t, s.Head(), 3)
	p3.Batches = append(p3.Batches, p3.Batches[0])
	_, err = s.MakeBlock(ctx, p3)
	require.ErrorIs(t, err, opalerrors.ErrNDuplicateNullifierInBlock)
	require.Equal(t, rootAfter1, s.NullifierRoot())
}

func TestMakeBlockAdvancesHead(t *testing.T) {
	s := testStateDB(t)
	ctx := context.Background()

	genesis := s.Head()
	blk1, err := s.MakeBlock(ctx, proposalOn(t, genesis, 1))
	require.NoError(t, err)
	require.Equal(t, uint32(1), s.Head().BlockNum)
	require.Equal(t, genesis.Hash(), blk1.Header.PrevHash)
	require.Equal(t, blk1.Header.AccountRoot, s.AccountRoot())

	blk2, err := s.MakeBlock(ctx, proposalOn(t, s.Head(), 2))
	require.NoError(t, err)
	require.Equal(t, blk1.Header.Hash(), blk2.Header.PrevHash)
	require.Equal(t, blk1.Header.NextChainCommitment(), blk2.Header.ChainCommitment)

	// A proposal built on a stale head is refused.
	_, err = s.MakeBlock(ctx, proposalOn(t, genesis, 3))
	require.ErrorIs(t, err, opalerrors.ErrCUnknownBlock)
}
