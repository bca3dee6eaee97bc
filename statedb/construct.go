package statedb

import (
	"context"
	"fmt"

	"golang.org/x/sync/errgroup"

	"github.com/opalchain/opal/common"
	"github.com/opalchain/opal/log"
	"github.com/opalchain/opal/opalerrors"
	"github.com/opalchain/opal/tree"
	"github.com/opalchain/opal/types"
)

// ConstructBlock deterministically folds a proposed block into a header
// and body. It works on clones of the supplied trees, so a failure at any
// step leaves them untouched and no partial block escapes. The three tree
// roots touch disjoint state and are computed concurrently; everything
// after the join is sequential.
//
// The returned mutation sets are recorded against the trees' current
// roots and are what CommitBlock later folds into the canonical state.
func ConstructBlock(ctx context.Context, accounts *tree.AccountTree, nullifiers *tree.NullifierTree, proposed *types.ProposedBlock) (*types.Block, *tree.MutationSet, *tree.MutationSet, error) {
	prev := &proposed.PrevHeader
	if proposed.BlockNum != prev.BlockNum+1 {
		return nil, nil, nil, fmt.Errorf("%w: got %d after %d", opalerrors.ErrBNonMonotonicBlockNumber, proposed.BlockNum, prev.BlockNum)
	}
	if proposed.Timestamp < prev.Timestamp {
		return nil, nil, nil, fmt.Errorf("%w: %d after %d", opalerrors.ErrBTimestampRegression, proposed.Timestamp, prev.Timestamp)
	}
	if len(proposed.Batches) == 0 {
		return nil, nil, nil, opalerrors.ErrBEmptyBlock
	}
	if len(proposed.Batches) > tree.MaxBatchesPerBlock {
		return nil, nil, nil, fmt.Errorf("%w: %d batches", opalerrors.ErrBTooManyBatches, len(proposed.Batches))
	}

	// Double-spend is checked before any tree work: a duplicate anywhere
	// in the block, or a nullifier already spent, rejects the proposal.
	nullifierList := proposed.Nullifiers()
	seen := make(map[[common.WordLength]byte]struct{}, len(nullifierList))
	for _, nf := range nullifierList {
		kb := nf.Bytes()
		if _, dup := seen[kb]; dup {
			return nil, nil, nil, fmt.Errorf("%w: %s", opalerrors.ErrNDuplicateNullifierInBlock, nf.Hex())
		}
		seen[kb] = struct{}{}
		spentIn, spent, err := nullifiers.SpentAt(nf)
		if err != nil {
			return nil, nil, nil, err
		}
		if spent {
			return nil, nil, nil, fmt.Errorf("%w: %s spent in block %d", opalerrors.ErrNNullifierAlreadySpent, nf.Hex(), spentIn)
		}
	}

	body, err := buildBody(proposed)
	if err != nil {
		return nil, nil, nil, err
	}
	indexedNotes, err := body.IndexedNotes()
	if err != nil {
		return nil, nil, nil, err
	}

	var (
		accountRoot, nullifierRoot, noteRoot common.Hash
		accountMut, nullifierMut             *tree.MutationSet
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		if err := gctx.Err(); err != nil {
			return err
		}
		var err error
		accountRoot, accountMut, err = accounts.ComputeAccountRoot(proposed.AccountUpdates())
		return err
	})
	g.Go(func() error {
		if err := gctx.Err(); err != nil {
			return err
		}
		var err error
		nullifierRoot, nullifierMut, err = nullifiers.ComputeNullifierRoot(nullifierList, proposed.BlockNum)
		return err
	})
	g.Go(func() error {
		if err := gctx.Err(); err != nil {
			return err
		}
		var err error
		noteRoot, _, err = tree.BuildNoteRoot(indexedNotes)
		return err
	})
	if err := g.Wait(); err != nil {
		return nil, nil, nil, err
	}

	txCommitment, err := types.TxCommitment(body.Transactions)
	if err != nil {
		return nil, nil, nil, err
	}

	header := types.BlockHeader{
		PrevHash:        prev.Hash(),
		BlockNum:        proposed.BlockNum,
		Timestamp:       proposed.Timestamp,
		TxCommitment:    txCommitment,
		ChainCommitment: prev.NextChainCommitment(),
		AccountRoot:     accountRoot,
		NullifierRoot:   nullifierRoot,
		NoteRoot:        noteRoot,
		FeeParams:       proposed.FeeParams,
	}
	log.Debug(log.BlockMonitoring, "constructed block",
		"num", header.BlockNum,
		"txs", len(body.Transactions),
		"nullifiers", len(body.CreatedNullifiers))
	return &types.Block{Header: header, Body: *body}, accountMut, nullifierMut, nil
}

// buildBody flattens the proposal's batches into the block body.
func buildBody(proposed *types.ProposedBlock) (*types.BlockBody, error) {
	body := &types.BlockBody{
		CreatedNullifiers: proposed.Nullifiers(),
	}
	for _, batch := range proposed.Batches {
		body.AccountWitnesses = append(body.AccountWitnesses, batch.AccountUpdates...)
		body.NoteBatches = append(body.NoteBatches, types.NoteBatch{Notes: batch.OutputNotes})
		body.Transactions = append(body.Transactions, batch.Transactions...)
	}
	return body, nil
}

// MakeBlock constructs the next block on top of the current head from the
// canonical trees and commits it in one step. All-or-nothing: any failure
// leaves the head and the canonical trees exactly where they were.
func (s *StateDB) MakeBlock(ctx context.Context, proposed *types.ProposedBlock) (*types.Block, error) {
	// Clone while holding the read lock: a concurrent commit mutates the
	// canonical tree maps, so ConstructBlock must never see them live.
	s.mu.RLock()
	head := s.head
	accounts := s.accounts.Clone()
	nullifiers := s.nullifiers.Clone()
	s.mu.RUnlock()

	if !proposed.PrevHeader.Equal(head) {
		return nil, fmt.Errorf("%w: proposal built on %s, head is %s",
			opalerrors.ErrCUnknownBlock, proposed.PrevHeader.Hash().String_short(), head.Hash().String_short())
	}
	blk, accountMut, nullifierMut, err := ConstructBlock(ctx, accounts, nullifiers, proposed)
	if err != nil {
		return nil, err
	}
	if err := s.CommitBlock(blk, accountMut, nullifierMut); err != nil {
		return nil, err
	}
	return blk, nil
}
