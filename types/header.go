package types

import (
	"bytes"
	"encoding/json"
	"fmt"

	"github.com/opalchain/opal/codec"
	"github.com/opalchain/opal/common"
)

// BlockHeader commits to everything a verifier needs about one block. It is
// assembled once by ConstructBlock and never modified afterwards. Field
// declaration order is the wire order.
type BlockHeader struct {
	// Hash of the previous block's header.
	PrevHash common.Hash `json:"prev_hash"`
	// Sequential block number, previous + 1.
	BlockNum uint32 `json:"block_num"`
	// Proposer wall-clock, seconds. Never behind the previous header.
	Timestamp uint64 `json:"timestamp"`
	// Content hash of the block's ordered transaction headers.
	TxCommitment common.Hash `json:"tx_commitment"`
	// Rolling hash folding in every prior header.
	ChainCommitment common.Hash `json:"chain_commitment"`
	// Account tree root after this block's updates.
	AccountRoot common.Hash `json:"account_root"`
	// Nullifier tree root after this block's spends.
	NullifierRoot common.Hash `json:"nullifier_root"`
	// Root of this block's note tree.
	NoteRoot common.Hash `json:"note_root"`
	// Fee schedule in force for this block.
	FeeParams FeeParameters `json:"fee_params"`
}

// Bytes returns the canonical header encoding.
func (h *BlockHeader) Bytes() ([]byte, error) {
	return codec.Encode(h)
}

// Hash returns the hash of the canonical header encoding.
func (h *BlockHeader) Hash() common.Hash {
	data, err := h.Bytes()
	if err != nil {
		return common.Hash{}
	}
	return common.Blake2Hash(data)
}

// Commitment is the domain-separated content hash of the header. This is
// the value the block authority signs.
func (h *BlockHeader) Commitment() common.Hash {
	data, err := h.Bytes()
	if err != nil {
		return common.Hash{}
	}
	return common.DomainHash(common.DomainHeader, data)
}

// NextChainCommitment folds this header into the rolling chain commitment
// carried by its successor.
func (h *BlockHeader) NextChainCommitment() common.Hash {
	hh := h.Hash()
	return common.DomainHash(common.DomainChain, h.ChainCommitment.Bytes(), hh.Bytes())
}

// DecodeBlockHeader parses a canonical header encoding, rejecting truncated
// or oversized input.
func DecodeBlockHeader(data []byte) (*BlockHeader, error) {
	var h BlockHeader
	if err := codec.Decode(data, &h); err != nil {
		return nil, fmt.Errorf("block header: %w", err)
	}
	return &h, nil
}

// Equal reports byte-exact header equality.
func (h *BlockHeader) Equal(other *BlockHeader) bool {
	a, errA := h.Bytes()
	b, errB := other.Bytes()
	if errA != nil || errB != nil {
		return false
	}
	return bytes.Equal(a, b)
}

func (h *BlockHeader) String() string {
	jsonByte, _ := json.Marshal(h)
	return string(jsonByte)
}
