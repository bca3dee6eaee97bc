package opalerrors

import (
	"errors"
)

// Tree-structural (S) errors. These indicate a programming or
// upstream-validation bug and are never retried.
var (
	ErrSKeyOutOfRange   = errors.New("S1|KeyOutOfRange: Key has set bits beyond the tree depth.")
	ErrSMalformedKey    = errors.New("S2|MalformedKey: Key limb is not a canonical field element.")
	ErrSDepthOutOfRange = errors.New("S3|DepthOutOfRange: Tree depth must be between 1 and 256.")
)

// Account tree (A) errors.
var (
	ErrAMalformedPrefix = errors.New("A1|MalformedPrefix: Account id prefix has bad version or type bits.")
	ErrAPrefixOccupied  = errors.New("A2|PrefixOccupied: A different live account already occupies this prefix.")
	ErrAWitnessMismatch = errors.New("A3|WitnessMismatch: Supplied account witness does not verify against the tree root.")
)

// Nullifier (N) errors. Double-spend is fatal to the block proposal.
var (
	ErrNNullifierAlreadySpent     = errors.New("N1|NullifierAlreadySpent: Nullifier has a non-empty leaf in the nullifier tree.")
	ErrNDuplicateNullifierInBlock = errors.New("N2|DuplicateNullifierInBlock: Two transactions in the block spend the same nullifier.")
	ErrNSpendAtGenesis            = errors.New("N3|SpendAtGenesis: Nullifiers cannot be spent at block number zero.")
)

// Block note tree (O) errors.
var (
	ErrOBatchIndexOutOfRange = errors.New("O1|BatchIndexOutOfRange: Batch index exceeds the per-block batch limit.")
	ErrONoteIndexOutOfRange  = errors.New("O2|NoteIndexOutOfRange: Note index exceeds the per-batch note limit.")
	ErrODuplicateNoteIndex   = errors.New("O3|DuplicateNoteIndex: Two output notes share the same (batch, note) index.")
)

// Sequencing (B) errors. Fatal to the proposal; the block is discarded.
var (
	ErrBNonMonotonicBlockNumber = errors.New("B1|NonMonotonicBlockNumber: Block number is not previous block number plus one.")
	ErrBTimestampRegression     = errors.New("B2|TimestampRegression: Block timestamp does not advance past the previous header.")
	ErrBEmptyBlock              = errors.New("B3|EmptyBlock: Proposed block carries no transaction batches.")
	ErrBTooManyBatches          = errors.New("B4|TooManyBatches: Proposed block exceeds the per-block batch limit.")
)

// Witness and mutation (W) errors.
var (
	ErrWWitnessMismatch  = errors.New("W1|WitnessMismatch: Authenticated path does not hash to the claimed root.")
	ErrWStaleMutationSet = errors.New("W2|StaleMutationSet: Old leaf value in the mutation set does not match the tree.")
	ErrWPathLength       = errors.New("W3|PathLength: Witness path length does not match the tree depth.")
)

// Chain state (C) errors.
var (
	ErrCUnknownBlock      = errors.New("C1|UnknownBlock: No block with this number or hash is stored.")
	ErrCNotSigned         = errors.New("C2|NotSigned: Block must be signed before it can be proven.")
	ErrCNothingToRollback = errors.New("C3|NothingToRollback: Chain tip is already at the last proven block.")
	ErrCBadSignature      = errors.New("C4|BadSignature: Header signature does not verify against the authority key.")
)

// Is reports whether err matches target, unwrapping as needed.
func Is(err, target error) bool {
	return errors.Is(err, target)
}
