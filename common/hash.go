package common

import (
	"encoding/binary"

	"golang.org/x/crypto/blake2b"
)

// Domain separators for every hash computed in the commitment pipeline.
// Leaf and node tags prevent second-preimage attacks on the tree structure;
// the remaining tags keep the header, transaction and chain commitments in
// disjoint hash domains.
var (
	DomainLeaf   = []byte{0x00}
	DomainNode   = []byte{0x01}
	DomainHeader = []byte{0x02}
	DomainTx     = []byte{0x03}
	DomainChain  = []byte{0x04}
)

// ComputeHash computes the BLAKE2b-256 hash of the given data.
func ComputeHash(data []byte) []byte {
	hash := blake2b.Sum256(data)
	return hash[:]
}

// Blake2Hash hashes data into a Hash.
func Blake2Hash(data []byte) Hash {
	return BytesToHash(ComputeHash(data))
}

// DomainHash hashes the concatenation of a domain tag and the given chunks.
func DomainHash(domain []byte, chunks ...[]byte) Hash {
	h, _ := blake2b.New256(nil)
	h.Write(domain)
	for _, c := range chunks {
		h.Write(c)
	}
	return Hash(h.Sum(nil))
}

// HashLeaf hashes a (key, value) leaf with leaf domain separation.
func HashLeaf(key, value []byte) Hash {
	return DomainHash(DomainLeaf, key, value)
}

// HashNode combines two child hashes with node domain separation.
func HashNode(left, right Hash) Hash {
	return DomainHash(DomainNode, left[:], right[:])
}

func Uint64ToBytes(val uint64) []byte {
	bytes := make([]byte, 8)
	binary.LittleEndian.PutUint64(bytes, val)
	return bytes
}

func Uint32ToBytes(val uint32) []byte {
	bytes := make([]byte, 4)
	binary.LittleEndian.PutUint32(bytes, val)
	return bytes
}

func BytesToUint64(data []byte) uint64 {
	if len(data) < 8 {
		panic("BytesToUint64: byte slice too short")
	}
	return binary.LittleEndian.Uint64(data)
}

func BytesToUint32(data []byte) uint32 {
	if len(data) < 4 {
		panic("BytesToUint32: byte slice too short")
	}
	return binary.LittleEndian.Uint32(data)
}

func IsNilHash(h Hash) bool {
	return h == Hash{}
}
