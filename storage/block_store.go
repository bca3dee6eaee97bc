package storage

import (
	"fmt"

	"github.com/opalchain/opal/codec"
	"github.com/opalchain/opal/common"
	"github.com/opalchain/opal/log"
	"github.com/opalchain/opal/opalerrors"
	"github.com/opalchain/opal/tree"
	"github.com/opalchain/opal/types"
)

// Key schema. Numeric suffixes are little-endian block numbers so the
// chain index iterates in insertion order.
var (
	keyHeader     = []byte("h")  // + header hash -> header bytes
	keyBlock      = []byte("b")  // + block num   -> block bytes
	keyChainIndex = []byte("c")  // + block num   -> header hash
	keyAccountMut = []byte("ma") // + block num   -> account mutation set
	keyNullMut    = []byte("mn") // + block num   -> nullifier mutation set
	keySignature  = []byte("s")  // + block num   -> pubkey || signature
	keyProof      = []byte("p")  // + block num   -> proof bytes
	keySignedTip  = []byte("t/signed")
	keyProvenTip  = []byte("t/proven")
)

// BlockStore persists the header chain, block bodies, per-block tree
// mutation sets, and the signed/proven tip markers.
type BlockStore struct {
	ps *PersistenceStore
}

// NewBlockStore opens a block store at path (empty path = in-memory).
func NewBlockStore(path string) (*BlockStore, error) {
	ps, err := NewPersistenceStore(path)
	if err != nil {
		return nil, err
	}
	return &BlockStore{ps: ps}, nil
}

func (bs *BlockStore) Close() error { return bs.ps.Close() }

func numKey(prefix []byte, num uint32) []byte {
	return append(append([]byte{}, prefix...), common.Uint32ToBytes(num)...)
}

// WriteBlock stores a block with its per-tree mutation sets under its
// block number and indexes the header by hash. The write is atomic.
func (bs *BlockStore) WriteBlock(blk *types.Block, accountMut, nullifierMut *tree.MutationSet) error {
	num := blk.Header.BlockNum
	headerHash := blk.Header.Hash()

	blockBytes, err := blk.Bytes()
	if err != nil {
		return fmt.Errorf("write block %d: %w", num, err)
	}
	headerBytes, err := blk.Header.Bytes()
	if err != nil {
		return fmt.Errorf("write block %d: %w", num, err)
	}
	amBytes, err := codec.Encode(accountMut)
	if err != nil {
		return fmt.Errorf("write block %d: %w", num, err)
	}
	nmBytes, err := codec.Encode(nullifierMut)
	if err != nil {
		return fmt.Errorf("write block %d: %w", num, err)
	}

	pairs := [][2][]byte{
		{append(append([]byte{}, keyHeader...), headerHash.Bytes()...), headerBytes},
		{numKey(keyBlock, num), blockBytes},
		{numKey(keyChainIndex, num), headerHash.Bytes()},
		{numKey(keyAccountMut, num), amBytes},
		{numKey(keyNullMut, num), nmBytes},
	}
	if err := bs.ps.WriteBatch(pairs); err != nil {
		return fmt.Errorf("write block %d: %w", num, err)
	}
	log.Debug(log.StoreMonitoring, "stored block", "num", num, "hash", headerHash.String_short())
	return nil
}

// ReadBlock loads the block stored at num.
func (bs *BlockStore) ReadBlock(num uint32) (*types.Block, error) {
	data, found, err := bs.ps.Get(numKey(keyBlock, num))
	if err != nil {
		return nil, err
	}
	if !found {
		return nil, fmt.Errorf("%w: block %d", opalerrors.ErrCUnknownBlock, num)
	}
	return types.DecodeBlock(data)
}

// ReadHeader loads a header by its hash.
func (bs *BlockStore) ReadHeader(hash common.Hash) (*types.BlockHeader, error) {
	data, found, err := bs.ps.Get(append(append([]byte{}, keyHeader...), hash.Bytes()...))
	if err != nil {
		return nil, err
	}
	if !found {
		return nil, fmt.Errorf("%w: header %s", opalerrors.ErrCUnknownBlock, hash.String_short())
	}
	return types.DecodeBlockHeader(data)
}

// ReadHeaderByNumber resolves the canonical header at num.
func (bs *BlockStore) ReadHeaderByNumber(num uint32) (*types.BlockHeader, error) {
	hashBytes, found, err := bs.ps.Get(numKey(keyChainIndex, num))
	if err != nil {
		return nil, err
	}
	if !found {
		return nil, fmt.Errorf("%w: block %d", opalerrors.ErrCUnknownBlock, num)
	}
	return bs.ReadHeader(common.BytesToHash(hashBytes))
}

// ReadMutationSets loads the account and nullifier mutation sets recorded
// for block num, needed to roll the block back.
func (bs *BlockStore) ReadMutationSets(num uint32) (accountMut, nullifierMut *tree.MutationSet, err error) {
	amBytes, found, err := bs.ps.Get(numKey(keyAccountMut, num))
	if err != nil {
		return nil, nil, err
	}
	if !found {
		return nil, nil, fmt.Errorf("%w: mutations for block %d", opalerrors.ErrCUnknownBlock, num)
	}
	nmBytes, found, err := bs.ps.Get(numKey(keyNullMut, num))
	if err != nil {
		return nil, nil, err
	}
	if !found {
		return nil, nil, fmt.Errorf("%w: mutations for block %d", opalerrors.ErrCUnknownBlock, num)
	}
	var am, nm tree.MutationSet
	if err := codec.Decode(amBytes, &am); err != nil {
		return nil, nil, err
	}
	if err := codec.Decode(nmBytes, &nm); err != nil {
		return nil, nil, err
	}
	return &am, &nm, nil
}

// WriteSignature records the authority signature for block num and
// advances the signed tip.
func (bs *BlockStore) WriteSignature(num uint32, pub types.Ed25519Key, sig types.Ed25519Signature) error {
	val := append(pub.Bytes(), sig.Bytes()...)
	if err := bs.ps.Put(numKey(keySignature, num), val); err != nil {
		return err
	}
	return bs.ps.Put(keySignedTip, common.Uint32ToBytes(num))
}

// ReadSignature loads the recorded authority signature for block num.
func (bs *BlockStore) ReadSignature(num uint32) (types.Ed25519Key, types.Ed25519Signature, error) {
	data, found, err := bs.ps.Get(numKey(keySignature, num))
	if err != nil {
		return types.Ed25519Key{}, types.Ed25519Signature{}, err
	}
	if !found {
		return types.Ed25519Key{}, types.Ed25519Signature{}, fmt.Errorf("%w: block %d", opalerrors.ErrCNotSigned, num)
	}
	if len(data) != types.Ed25519PubkeySize+types.Ed25519SignatureSize {
		return types.Ed25519Key{}, types.Ed25519Signature{}, fmt.Errorf("corrupt signature record for block %d", num)
	}
	pub, err := types.BytesToEd25519Key(data[:types.Ed25519PubkeySize])
	if err != nil {
		return types.Ed25519Key{}, types.Ed25519Signature{}, err
	}
	sig, err := types.BytesToEd25519Signature(data[types.Ed25519PubkeySize:])
	if err != nil {
		return types.Ed25519Key{}, types.Ed25519Signature{}, err
	}
	return pub, sig, nil
}

// WriteProof records the validity proof for block num and advances the
// proven tip.
func (bs *BlockStore) WriteProof(num uint32, proof types.BlockProof) error {
	if err := bs.ps.Put(numKey(keyProof, num), proof); err != nil {
		return err
	}
	return bs.ps.Put(keyProvenTip, common.Uint32ToBytes(num))
}

// ReadProof loads the proof recorded for block num, if any.
func (bs *BlockStore) ReadProof(num uint32) (types.BlockProof, bool, error) {
	data, found, err := bs.ps.Get(numKey(keyProof, num))
	if err != nil || !found {
		return nil, found, err
	}
	return types.BlockProof(data), true, nil
}

// SignedTip returns the highest signed block number.
func (bs *BlockStore) SignedTip() (uint32, bool, error) {
	return bs.readTip(keySignedTip)
}

// ProvenTip returns the highest proven block number.
func (bs *BlockStore) ProvenTip() (uint32, bool, error) {
	return bs.readTip(keyProvenTip)
}

func (bs *BlockStore) readTip(key []byte) (uint32, bool, error) {
	data, found, err := bs.ps.Get(key)
	if err != nil || !found {
		return 0, found, err
	}
	return common.BytesToUint32(data), true, nil
}

// DropBlock removes a rolled-back block from the canonical index and
// rewinds the signed/proven tips past it. The header stays addressable by
// hash for audit.
func (bs *BlockStore) DropBlock(num uint32) error {
	for _, key := range [][]byte{
		numKey(keyBlock, num),
		numKey(keyChainIndex, num),
		numKey(keyAccountMut, num),
		numKey(keyNullMut, num),
		numKey(keySignature, num),
		numKey(keyProof, num),
	} {
		if err := bs.ps.Delete(key); err != nil {
			return err
		}
	}
	if err := bs.rewindTip(keySignedTip, keySignature, num); err != nil {
		return err
	}
	if err := bs.rewindTip(keyProvenTip, keyProof, num); err != nil {
		return err
	}
	log.Debug(log.StoreMonitoring, "dropped block", "num", num)
	return nil
}

// rewindTip moves a tip marker off a dropped block, down to the highest
// lower block that still has a record, or clears it when none does.
func (bs *BlockStore) rewindTip(tipKey, recordPrefix []byte, dropped uint32) error {
	data, found, err := bs.ps.Get(tipKey)
	if err != nil || !found {
		return err
	}
	if common.BytesToUint32(data) != dropped {
		return nil
	}
	for n := dropped; n > 0; n-- {
		_, found, err := bs.ps.Get(numKey(recordPrefix, n-1))
		if err != nil {
			return err
		}
		if found {
			return bs.ps.Put(tipKey, common.Uint32ToBytes(n-1))
		}
	}
	return bs.ps.Delete(tipKey)
}
