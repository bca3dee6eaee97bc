package storage

import (
	"testing"

	"github.com/holiman/uint256"
	"github.com/stretchr/testify/require"

	"github.com/opalchain/opal/common"
	"github.com/opalchain/opal/opalerrors"
	"github.com/opalchain/opal/tree"
	"github.com/opalchain/opal/types"
)

func testStore(t *testing.T) *BlockStore {
	t.Helper()
	bs, err := NewBlockStore("")
	require.NoError(t, err)
	t.Cleanup(func() { bs.Close() })
	return bs
}

func testBlock(t *testing.T, num uint32) (*types.Block, *tree.MutationSet, *tree.MutationSet) {
	t.Helper()
	asset, err := tree.NewAccountIdPrefix(0x0100)
	require.NoError(t, err)

	at := tree.NewAccountTree()
	am, err := at.ApplyUpdates([]tree.AccountUpdate{
		{Prefix: asset, NewCommitment: common.Blake2Hash(common.Uint32ToBytes(num))},
	})
	require.NoError(t, err)

	nt := tree.NewNullifierTree()
	nm, err := nt.ApplySpends([]common.Word{common.HashToWord(common.Uint32ToBytes(num))}, num)
	require.NoError(t, err)

	blk := &types.Block{
		Header: types.BlockHeader{
			PrevHash:      common.Blake2Hash([]byte("prev")),
			BlockNum:      num,
			Timestamp:     1700000000 + uint64(num),
			AccountRoot:   at.Root(),
			NullifierRoot: nt.Root(),
			NoteRoot:      tree.EmptyRoot(tree.NoteTreeDepth),
			FeeParams: types.FeeParameters{
				NativeAsset:         asset,
				VerificationBaseFee: uint256.NewInt(100),
			},
		},
	}
	return blk, am, nm
}

func TestBlockStoreRoundTrip(t *testing.T) {
	bs := testStore(t)
	blk, am, nm := testBlock(t, 3)

	require.NoError(t, bs.WriteBlock(blk, am, nm))

	got, err := bs.ReadBlock(3)
	require.NoError(t, err)
	require.True(t, blk.Header.Equal(&got.Header))

	hdr, err := bs.ReadHeader(blk.Header.Hash())
	require.NoError(t, err)
	require.True(t, blk.Header.Equal(hdr))

	hdr2, err := bs.ReadHeaderByNumber(3)
	require.NoError(t, err)
	require.True(t, blk.Header.Equal(hdr2))

	gotAM, gotNM, err := bs.ReadMutationSets(3)
	require.NoError(t, err)
	require.Equal(t, am.Commitment(), gotAM.Commitment())
	require.Equal(t, nm.Commitment(), gotNM.Commitment())
}

func TestBlockStoreUnknownBlock(t *testing.T) {
	bs := testStore(t)
	_, err := bs.ReadBlock(9)
	require.ErrorIs(t, err, opalerrors.ErrCUnknownBlock)
	_, err = bs.ReadHeaderByNumber(9)
	require.ErrorIs(t, err, opalerrors.ErrCUnknownBlock)
	_, _, err = bs.ReadMutationSets(9)
	require.ErrorIs(t, err, opalerrors.ErrCUnknownBlock)
}

func TestBlockStoreTips(t *testing.T) {
	bs := testStore(t)
	_, found, err := bs.SignedTip()
	require.NoError(t, err)
	require.False(t, found)

	blk, am, nm := testBlock(t, 1)
	require.NoError(t, bs.WriteBlock(blk, am, nm))

	seed := make([]byte, 32)
	pub, priv, err := types.InitEd25519Key(seed)
	require.NoError(t, err)
	commitment := blk.Header.Commitment()
	sig := types.Ed25519Sign(priv, commitment.Bytes())

	require.NoError(t, bs.WriteSignature(1, pub, sig))
	tip, found, err := bs.SignedTip()
	require.NoError(t, err)
	require.True(t, found)
	require.Equal(t, uint32(1), tip)

	gotPub, gotSig, err := bs.ReadSignature(1)
	require.NoError(t, err)
	require.Equal(t, pub, gotPub)
	require.Equal(t, sig, gotSig)
	require.True(t, types.Ed25519Verify(gotPub, commitment.Bytes(), gotSig))

	_, _, err = bs.ReadSignature(2)
	require.ErrorIs(t, err, opalerrors.ErrCNotSigned)

	require.NoError(t, bs.WriteProof(1, types.BlockProof{0xAA}))
	ptip, found, err := bs.ProvenTip()
	require.NoError(t, err)
	require.True(t, found)
	require.Equal(t, uint32(1), ptip)

	proof, found, err := bs.ReadProof(1)
	require.NoError(t, err)
	require.True(t, found)
	require.Equal(t, types.BlockProof{0xAA}, proof)
}

func TestBlockStoreDropBlock(t *testing.T) {
	bs := testStore(t)
	blk, am, nm := testBlock(t, 2)
	require.NoError(t, bs.WriteBlock(blk, am, nm))
	require.NoError(t, bs.DropBlock(2))

	_, err := bs.ReadBlock(2)
	require.ErrorIs(t, err, opalerrors.ErrCUnknownBlock)

	// The header remains addressable by hash.
	_, err = bs.ReadHeader(blk.Header.Hash())
	require.NoError(t, err)
}

func TestDropBlockRewindsTips(t *testing.T) {
	bs := testStore(t)

	seed := make([]byte, 32)
	pub, priv, err := types.InitEd25519Key(seed)
	require.NoError(t, err)

	for num := uint32(1); num <= 3; num++ {
		blk, am, nm := testBlock(t, num)
		require.NoError(t, bs.WriteBlock(blk, am, nm))
		commitment := blk.Header.Commitment()
		require.NoError(t, bs.WriteSignature(num, pub, types.Ed25519Sign(priv, commitment.Bytes())))
	}
	require.NoError(t, bs.WriteProof(1, types.BlockProof{0x01}))

	// Dropping the signed tip rewinds it to the highest surviving
	// signature; blocks below the tip leave it alone.
	require.NoError(t, bs.DropBlock(3))
	tip, found, err := bs.SignedTip()
	require.NoError(t, err)
	require.True(t, found)
	require.Equal(t, uint32(2), tip)

	require.NoError(t, bs.DropBlock(2))
	tip, found, err = bs.SignedTip()
	require.NoError(t, err)
	require.True(t, found)
	require.Equal(t, uint32(1), tip)

	ptip, found, err := bs.ProvenTip()
	require.NoError(t, err)
	require.True(t, found)
	require.Equal(t, uint32(1), ptip)

	// Dropping the last signed and proven block clears both markers.
	require.NoError(t, bs.DropBlock(1))
	_, found, err = bs.SignedTip()
	require.NoError(t, err)
	require.False(t, found)
	_, found, err = bs.ProvenTip()
	require.NoError(t, err)
	require.False(t, found)
}
