package types

import (
	"bytes"
	"testing"

	"github.com/holiman/uint256"
	"github.com/stretchr/testify/require"

	"github.com/opalchain/opal/common"
	"github.com/opalchain/opal/tree"
)

func testFeeParams(t *testing.T) FeeParameters {
	t.Helper()
	asset, err := tree.NewAccountIdPrefix(0x0100)
	require.NoError(t, err)
	return FeeParameters{
		NativeAsset:         asset,
		VerificationBaseFee: uint256.NewInt(500),
	}
}

func testHeader(t *testing.T) *BlockHeader {
	t.Helper()
	return &BlockHeader{
		PrevHash:        common.Blake2Hash([]byte("prev")),
		BlockNum:        5,
		Timestamp:       1700000000,
		TxCommitment:    common.Blake2Hash([]byte("txs")),
		ChainCommitment: common.Blake2Hash([]byte("chain")),
		AccountRoot:     tree.EmptyRoot(tree.AccountTreeDepth),
		NullifierRoot:   tree.EmptyRoot(tree.NullifierTreeDepth),
		NoteRoot:        tree.EmptyRoot(tree.NoteTreeDepth),
		FeeParams:       testFeeParams(t),
	}
}

func TestHeaderRoundTrip(t *testing.T) {
	h := testHeader(t)
	enc, err := h.Bytes()
	require.NoError(t, err)

	dec, err := DecodeBlockHeader(enc)
	require.NoError(t, err)
	require.True(t, h.Equal(dec))
	require.Equal(t, h.Commitment(), dec.Commitment())
}

func TestHeaderDecodeRejectsTruncatedAndTrailing(t *testing.T) {
	h := testHeader(t)
	enc, err := h.Bytes()
	require.NoError(t, err)

	_, err = DecodeBlockHeader(enc[:len(enc)-1])
	require.Error(t, err)

	_, err = DecodeBlockHeader(append(enc, 0x00))
	require.Error(t, err)
}

func TestHeaderCommitmentSensitivity(t *testing.T) {
	a := testHeader(t)
	b := testHeader(t)
	require.Equal(t, a.Commitment(), b.Commitment())

	b.BlockNum++
	require.NotEqual(t, a.Commitment(), b.Commitment())

	// The commitment and the plain header hash live in distinct domains.
	require.NotEqual(t, a.Commitment(), a.Hash())
}

func TestChainCommitmentFold(t *testing.T) {
	h := testHeader(t)
	next := h.NextChainCommitment()
	require.NotEqual(t, h.ChainCommitment, next)

	// Folding is position-sensitive: a different predecessor commitment
	// produces a different successor commitment.
	h2 := testHeader(t)
	h2.ChainCommitment = common.Blake2Hash([]byte("other"))
	require.NotEqual(t, next, h2.NextChainCommitment())
}

func TestFeeParametersRoundTrip(t *testing.T) {
	f := testFeeParams(t)
	enc, err := f.MarshalOpal()
	require.NoError(t, err)
	require.Len(t, enc, feeParametersLength)

	var dec FeeParameters
	require.NoError(t, dec.UnmarshalOpal(bytes.NewReader(enc)))
	require.True(t, f.Equal(dec))
}

func TestTxCommitmentDependsOnOrder(t *testing.T) {
	asset, _ := tree.NewAccountIdPrefix(0x0100)
	t1 := TransactionHeader{TxID: common.Blake2Hash([]byte("t1")), Account: asset}
	t2 := TransactionHeader{TxID: common.Blake2Hash([]byte("t2")), Account: asset}

	a, err := TxCommitment([]TransactionHeader{t1, t2})
	require.NoError(t, err)
	b, err := TxCommitment([]TransactionHeader{t2, t1})
	require.NoError(t, err)
	require.NotEqual(t, a, b)

	again, err := TxCommitment([]TransactionHeader{t1, t2})
	require.NoError(t, err)
	require.Equal(t, a, again)
}
