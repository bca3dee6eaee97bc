package statedb

import (
	"fmt"
	"sync"

	"github.com/holiman/uint256"

	"github.com/opalchain/opal/common"
	"github.com/opalchain/opal/log"
	"github.com/opalchain/opal/opalerrors"
	"github.com/opalchain/opal/storage"
	"github.com/opalchain/opal/tree"
	"github.com/opalchain/opal/types"
)

// StateDB holds the canonical chain state: the committed account and
// nullifier trees, the current head header, and the persistent block
// store behind them. Block assembly never mutates the canonical trees
// directly; it works on clones and folds the recorded mutation sets back
// in on commit.
type StateDB struct {
	mu sync.RWMutex

	store      *storage.BlockStore
	accounts   *tree.AccountTree
	nullifiers *tree.NullifierTree
	head       *types.BlockHeader
}

// GenesisFeeParams is the fee schedule blocks start under until governance
// changes it.
func GenesisFeeParams() types.FeeParameters {
	asset, err := tree.NewAccountIdPrefix(0x0100)
	if err != nil {
		panic(err)
	}
	return types.FeeParameters{
		NativeAsset:         asset,
		VerificationBaseFee: uint256.NewInt(500),
	}
}

// NewStateDB creates a chain at its genesis block: empty trees, zero chain
// commitment, block number 0. The genesis block is persisted so the chain
// index is never empty.
func NewStateDB(store *storage.BlockStore, feeParams types.FeeParameters) (*StateDB, error) {
	s := &StateDB{
		store:      store,
		accounts:   tree.NewAccountTree(),
		nullifiers: tree.NewNullifierTree(),
	}
	genesis := &types.BlockHeader{
		BlockNum:      0,
		AccountRoot:   s.accounts.Root(),
		NullifierRoot: s.nullifiers.Root(),
		NoteRoot:      tree.EmptyRoot(tree.NoteTreeDepth),
		FeeParams:     feeParams,
	}
	emptyAM := &tree.MutationSet{Depth: tree.AccountTreeDepth, OldRoot: s.accounts.Root(), NewRoot: s.accounts.Root()}
	emptyNM := &tree.MutationSet{Depth: tree.NullifierTreeDepth, OldRoot: s.nullifiers.Root(), NewRoot: s.nullifiers.Root()}
	if err := store.WriteBlock(&types.Block{Header: *genesis}, emptyAM, emptyNM); err != nil {
		return nil, fmt.Errorf("genesis: %w", err)
	}
	s.head = genesis
	log.Info(log.StateDBMonitoring, "initialized chain", "genesis", genesis.Hash().String_short())
	return s, nil
}

// LoadStateDB reopens an existing chain from its block store, replaying
// every committed block's mutation sets to rebuild the canonical trees. A
// store without a genesis block is initialized fresh.
func LoadStateDB(store *storage.BlockStore, feeParams types.FeeParameters) (*StateDB, error) {
	head, err := store.ReadHeaderByNumber(0)
	if opalerrors.Is(err, opalerrors.ErrCUnknownBlock) {
		return NewStateDB(store, feeParams)
	}
	if err != nil {
		return nil, err
	}

	s := &StateDB{
		store:      store,
		accounts:   tree.NewAccountTree(),
		nullifiers: tree.NewNullifierTree(),
	}
	for num := uint32(1); ; num++ {
		hdr, err := store.ReadHeaderByNumber(num)
		if opalerrors.Is(err, opalerrors.ErrCUnknownBlock) {
			break
		}
		if err != nil {
			return nil, err
		}
		accountMut, nullifierMut, err := store.ReadMutationSets(num)
		if err != nil {
			return nil, err
		}
		if err := s.accounts.ApplyMutationSet(accountMut); err != nil {
			return nil, fmt.Errorf("replay block %d: %w", num, err)
		}
		if err := s.nullifiers.ApplyMutationSet(nullifierMut); err != nil {
			return nil, fmt.Errorf("replay block %d: %w", num, err)
		}
		if hdr.AccountRoot != s.accounts.Root() || hdr.NullifierRoot != s.nullifiers.Root() {
			return nil, fmt.Errorf("replay block %d: roots diverge from stored header", num)
		}
		head = hdr
	}
	s.head = head
	log.Info(log.StateDBMonitoring, "reloaded chain", "head", head.BlockNum)
	return s, nil
}

// Head returns the current head header.
func (s *StateDB) Head() *types.BlockHeader {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.head
}

// AccountRoot returns the committed account tree root.
func (s *StateDB) AccountRoot() common.Hash {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.accounts.Root()
}

// NullifierRoot returns the committed nullifier tree root.
func (s *StateDB) NullifierRoot() common.Hash {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.nullifiers.Root()
}

// RegisterAccount adds a brand-new account to the canonical account tree
// outside block flow (bootstrap and testing only).
func (s *StateDB) RegisterAccount(prefix tree.AccountIdPrefix, commitment common.Hash) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.accounts.Register(prefix, commitment)
}

// OpenAccount produces a witness for the account against the committed
// root.
func (s *StateDB) OpenAccount(prefix tree.AccountIdPrefix) (*tree.Witness, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.accounts.Open(prefix)
}

// OpenNullifier produces a witness for the nullifier against the committed
// root. An absence witness proves it is unspent.
func (s *StateDB) OpenNullifier(nullifier common.Word) (*tree.Witness, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.nullifiers.Open(nullifier)
}

// CommitBlock folds a constructed block's mutation sets into the canonical
// trees, persists the block, and advances the head. The mutation sets must
// have been recorded against the current committed roots.
func (s *StateDB) CommitBlock(blk *types.Block, accountMut, nullifierMut *tree.MutationSet) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if blk.Header.BlockNum != s.head.BlockNum+1 {
		return fmt.Errorf("%w: got %d, head is %d", opalerrors.ErrBNonMonotonicBlockNumber, blk.Header.BlockNum, s.head.BlockNum)
	}
	if err := s.accounts.ApplyMutationSet(accountMut); err != nil {
		return fmt.Errorf("commit block %d: %w", blk.Header.BlockNum, err)
	}
	if err := s.nullifiers.ApplyMutationSet(nullifierMut); err != nil {
		// Undo the account fold so canonical state stays at the old block.
		if rerr := s.accounts.ApplyMutationSet(accountMut.Reverted()); rerr != nil {
			log.Crit(log.StateDBMonitoring, "canonical account tree corrupt after failed commit", "err", rerr)
		}
		return fmt.Errorf("commit block %d: %w", blk.Header.BlockNum, err)
	}
	if err := s.store.WriteBlock(blk, accountMut, nullifierMut); err != nil {
		return fmt.Errorf("commit block %d: %w", blk.Header.BlockNum, err)
	}
	hdr := blk.Header
	s.head = &hdr
	log.Info(log.StateDBMonitoring, "committed block",
		"num", hdr.BlockNum,
		"account_root", hdr.AccountRoot.String_short(),
		"nullifier_root", hdr.NullifierRoot.String_short())
	return nil
}

// MarkSigned records the authority signature for the head block.
func (s *StateDB) MarkSigned(sb *types.SignedBlock) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !sb.Verify() {
		return opalerrors.ErrCBadSignature
	}
	return s.store.WriteSignature(sb.Block.Header.BlockNum, sb.PublicKey, sb.Signature)
}

// MarkProven records the validity proof that finalizes block num.
func (s *StateDB) MarkProven(num uint32, proof types.BlockProof) (*types.ProvenBlock, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	hdr, err := s.store.ReadHeaderByNumber(num)
	if err != nil {
		return nil, err
	}
	if _, _, err := s.store.ReadSignature(num); err != nil {
		return nil, err
	}
	if err := s.store.WriteProof(num, proof); err != nil {
		return nil, err
	}
	log.Info(log.StateDBMonitoring, "proven block", "num", num)
	return &types.ProvenBlock{Header: *hdr, Proof: proof}, nil
}

// RollbackToProven unwinds signed-but-unproven blocks until the head is
// the last proven block (or genesis). Each unwound block's mutation sets
// are applied in reverse, newest first, so the canonical trees land
// exactly on the proven roots. This is the reorg path for a signed block
// whose proof permanently failed.
func (s *StateDB) RollbackToProven() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	target, found, err := s.store.ProvenTip()
	if err != nil {
		return err
	}
	if !found {
		target = 0
	}
	if s.head.BlockNum <= target {
		return fmt.Errorf("%w: head %d, proven tip %d", opalerrors.ErrCNothingToRollback, s.head.BlockNum, target)
	}

	for s.head.BlockNum > target {
		num := s.head.BlockNum
		accountMut, nullifierMut, err := s.store.ReadMutationSets(num)
		if err != nil {
			return err
		}
		if err := s.nullifiers.ApplyMutationSet(nullifierMut.Reverted()); err != nil {
			return fmt.Errorf("rollback block %d: %w", num, err)
		}
		if err := s.accounts.ApplyMutationSet(accountMut.Reverted()); err != nil {
			return fmt.Errorf("rollback block %d: %w", num, err)
		}
		prev, err := s.store.ReadHeader(s.head.PrevHash)
		if err != nil {
			return err
		}
		if err := s.store.DropBlock(num); err != nil {
			return err
		}
		log.Warn(log.StateDBMonitoring, "rolled back block", "num", num)
		s.head = prev
	}
	return nil
}
