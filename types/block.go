package types

import (
	"encoding/json"
	"fmt"

	"github.com/opalchain/opal/codec"
	"github.com/opalchain/opal/common"
	"github.com/opalchain/opal/tree"
)

// TransactionHeader identifies one proven transaction inside a block: its
// id and the account that executed it.
type TransactionHeader struct {
	TxID    common.Hash          `json:"tx_id"`
	Account tree.AccountIdPrefix `json:"account"`
}

// AccountUpdateWitness pairs an account update with the executor's
// membership proof against the pre-block account root.
type AccountUpdateWitness struct {
	Update  tree.AccountUpdate `json:"update"`
	Witness tree.Witness       `json:"witness"`
}

// NullifierWitness pairs a nullifier with the executor's absence proof
// against the pre-block nullifier root.
type NullifierWitness struct {
	Nullifier common.Word  `json:"nullifier"`
	Witness   tree.Witness `json:"witness"`
}

// OutputNote is one note commitment a batch emitted, at its index within
// the batch. Indices may be non-contiguous: notes consumed inside the same
// block are erased without shifting their neighbours.
type OutputNote struct {
	NoteIdx    uint16      `json:"note_idx"`
	Commitment common.Hash `json:"commitment"`
}

// TransactionBatch is one proven batch of a proposed block. Account
// updates and transaction headers are in execution order.
type TransactionBatch struct {
	AccountUpdates    []AccountUpdateWitness `json:"account_updates"`
	CreatedNullifiers []NullifierWitness     `json:"created_nullifiers"`
	OutputNotes       []OutputNote           `json:"output_notes"`
	Transactions      []TransactionHeader    `json:"transactions"`
}

// ProposedBlock is the assembler's input: the previous header and the
// ordered batches to fold into the next block. Witnesses inside the
// batches were already validated by the executor against the pre-block
// roots.
type ProposedBlock struct {
	PrevHeader BlockHeader        `json:"prev_header"`
	BlockNum   uint32             `json:"block_num"`
	Timestamp  uint64             `json:"timestamp"`
	FeeParams  FeeParameters      `json:"fee_params"`
	Batches    []TransactionBatch `json:"batches"`
}

// NoteBatch is one batch's surviving output notes, at their original
// indices.
type NoteBatch struct {
	Notes []OutputNote `json:"notes"`
}

// BlockBody is the data the header's commitments summarize.
type BlockBody struct {
	AccountWitnesses  []AccountUpdateWitness `json:"account_witnesses"`
	CreatedNullifiers []common.Word          `json:"created_nullifiers"`
	NoteBatches       []NoteBatch            `json:"note_batches"`
	Transactions      []TransactionHeader    `json:"transactions"`
}

// Block is a fully assembled header plus its body.
type Block struct {
	Header BlockHeader `json:"header"`
	Body   BlockBody   `json:"body"`
}

// SignedBlock is a block plus the authority's detached signature over the
// header commitment. The network treats a signed block as its working tip
// even before a validity proof exists.
type SignedBlock struct {
	Block     Block            `json:"block"`
	PublicKey Ed25519Key       `json:"public_key"`
	Signature Ed25519Signature `json:"signature"`
}

// Verify checks the authority signature against the header commitment.
func (s *SignedBlock) Verify() bool {
	commitment := s.Block.Header.Commitment()
	return Ed25519Verify(s.PublicKey, commitment.Bytes(), s.Signature)
}

// BlockProof is the succinct validity proof, opaque to this layer.
type BlockProof []byte

// ProvenBlock carries the same header as its signed ancestor plus the
// proof that finalizes it.
type ProvenBlock struct {
	Header BlockHeader `json:"header"`
	Proof  BlockProof  `json:"proof"`
}

// TxCommitment is the domain-separated content hash of a block's ordered
// transaction headers.
func TxCommitment(txs []TransactionHeader) (common.Hash, error) {
	enc, err := codec.Encode(txs)
	if err != nil {
		return common.Hash{}, fmt.Errorf("tx commitment: %w", err)
	}
	return common.DomainHash(common.DomainTx, enc), nil
}

// IndexedNotes flattens the body's note batches into (batch, note) slots
// for the block note tree.
func (b *BlockBody) IndexedNotes() ([]tree.IndexedNote, error) {
	var out []tree.IndexedNote
	for batchIdx, nb := range b.NoteBatches {
		if batchIdx >= tree.MaxBatchesPerBlock {
			return nil, fmt.Errorf("batch %d: too many batches", batchIdx)
		}
		for _, n := range nb.Notes {
			idx, err := tree.NewBlockNoteIndex(uint8(batchIdx), n.NoteIdx)
			if err != nil {
				return nil, err
			}
			out = append(out, tree.IndexedNote{Index: idx, Commitment: n.Commitment})
		}
	}
	return out, nil
}

// Nullifiers collects every nullifier the proposed block spends, in batch
// order.
func (p *ProposedBlock) Nullifiers() []common.Word {
	var out []common.Word
	for _, b := range p.Batches {
		for _, nw := range b.CreatedNullifiers {
			out = append(out, nw.Nullifier)
		}
	}
	return out
}

// AccountUpdates collects every account update in execution order across
// the block's batches.
func (p *ProposedBlock) AccountUpdates() []tree.AccountUpdate {
	var out []tree.AccountUpdate
	for _, b := range p.Batches {
		for _, aw := range b.AccountUpdates {
			out = append(out, aw.Update)
		}
	}
	return out
}

// Bytes returns the canonical encoding of the block.
func (b *Block) Bytes() ([]byte, error) {
	return codec.Encode(b)
}

// DecodeBlock parses a canonical block encoding.
func DecodeBlock(data []byte) (*Block, error) {
	var blk Block
	if err := codec.Decode(data, &blk); err != nil {
		return nil, fmt.Errorf("block: %w", err)
	}
	return &blk, nil
}

func (b *Block) String() string {
	jsonByte, _ := json.Marshal(b)
	return string(jsonByte)
}

func (s *SignedBlock) String() string {
	jsonByte, _ := json.Marshal(s)
	return string(jsonByte)
}
