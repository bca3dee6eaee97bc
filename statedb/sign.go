package statedb

import (
	"context"

	"github.com/opalchain/opal/log"
	"github.com/opalchain/opal/types"
)

// SignBlock wraps a constructed block with the authority's detached
// signature. Only the header commitment is signed; the body is bound
// through the header's tx and root commitments.
func SignBlock(blk *types.Block, priv types.Ed25519Priv) *types.SignedBlock {
	commitment := blk.Header.Commitment()
	return &types.SignedBlock{
		Block:     *blk,
		PublicKey: priv.PublicKey(),
		Signature: types.Ed25519Sign(priv, commitment.Bytes()),
	}
}

// MakeSignedBlock constructs the next block, commits it, signs the header
// commitment and records the signature. A signed block is the network's
// working tip until a proof arrives.
func (s *StateDB) MakeSignedBlock(ctx context.Context, proposed *types.ProposedBlock, priv types.Ed25519Priv) (*types.SignedBlock, error) {
	blk, err := s.MakeBlock(ctx, proposed)
	if err != nil {
		return nil, err
	}
	sb := SignBlock(blk, priv)
	if err := s.MarkSigned(sb); err != nil {
		return nil, err
	}
	log.Info(log.SignerMonitoring, "signed block",
		"num", sb.Block.Header.BlockNum,
		"authority", sb.PublicKey.String())
	return sb, nil
}
