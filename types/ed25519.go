package types

import (
	"crypto/ed25519"
	"encoding/json"
	"fmt"

	"github.com/hdevalence/ed25519consensus"

	"github.com/opalchain/opal/common"
)

const (
	Ed25519PubkeySize     = 32
	Ed25519PrivateKeySize = 64 // 32 byte seed + 32 byte pub concatenated
	Ed25519SignatureSize  = 64 // 32 byte R + 32 byte S
	xEd25519Secret        = "opal_authority_key_ed25519"
)

type Ed25519Key common.Hash
type Ed25519Priv ed25519.PrivateKey
type Ed25519Signature [Ed25519SignatureSize]byte

func (k Ed25519Key) MarshalJSON() ([]byte, error) {
	return json.Marshal(common.Hash(k).Hex())
}

func (k *Ed25519Key) UnmarshalJSON(data []byte) error {
	var hexStr string
	if err := json.Unmarshal(data, &hexStr); err != nil {
		return err
	}
	*k = Ed25519Key(common.HexToHash(hexStr))
	return nil
}

func (s Ed25519Signature) MarshalJSON() ([]byte, error) {
	return json.Marshal(common.Bytes2Hex(s[:]))
}

func (s *Ed25519Signature) UnmarshalJSON(data []byte) error {
	var hexStr string
	if err := json.Unmarshal(data, &hexStr); err != nil {
		return err
	}
	sig, err := BytesToEd25519Signature(common.FromHex(hexStr))
	if err != nil {
		return err
	}
	*s = sig
	return nil
}

func (k Ed25519Key) String() string {
	return common.Hash(k).Hex()
}

func (k Ed25519Key) Bytes() []byte {
	return k[:]
}

func (k Ed25519Key) PublicKey() ed25519.PublicKey {
	return ed25519.PublicKey(k[:])
}

func (priv Ed25519Priv) PublicKey() Ed25519Key {
	return Ed25519Key(ed25519.PrivateKey(priv).Public().(ed25519.PublicKey))
}

func (s Ed25519Signature) Bytes() []byte {
	return s[:]
}

// InitEd25519Key derives an authority keypair from a 32-byte seed.
func InitEd25519Key(seed []byte) (Ed25519Key, Ed25519Priv, error) {
	if len(seed) != ed25519.SeedSize {
		return Ed25519Key{}, nil, fmt.Errorf("seed length must be %d bytes", ed25519.SeedSize)
	}
	secret := common.ComputeHash(append([]byte(xEd25519Secret), seed...))
	priv := ed25519.NewKeyFromSeed(secret)
	pub := priv.Public().(ed25519.PublicKey)
	return Ed25519Key(pub), Ed25519Priv(priv), nil
}

func BytesToEd25519Priv(b []byte) (Ed25519Priv, error) {
	if len(b) != Ed25519PrivateKeySize {
		return nil, fmt.Errorf("invalid private key size: expected %d bytes, got %d", Ed25519PrivateKeySize, len(b))
	}
	priv := make(Ed25519Priv, Ed25519PrivateKeySize)
	copy(priv, b)
	return priv, nil
}

func BytesToEd25519Key(b []byte) (Ed25519Key, error) {
	if len(b) != Ed25519PubkeySize {
		return Ed25519Key{}, fmt.Errorf("invalid public key size: expected %d bytes, got %d", Ed25519PubkeySize, len(b))
	}
	var key Ed25519Key
	copy(key[:], b)
	return key, nil
}

func BytesToEd25519Signature(b []byte) (Ed25519Signature, error) {
	if len(b) != Ed25519SignatureSize {
		return Ed25519Signature{}, fmt.Errorf("invalid signature size: expected %d bytes, got %d", Ed25519SignatureSize, len(b))
	}
	var sig Ed25519Signature
	copy(sig[:], b)
	return sig, nil
}

func Ed25519Sign(priv Ed25519Priv, msg []byte) Ed25519Signature {
	signature := ed25519.Sign(ed25519.PrivateKey(priv), msg)
	var sig Ed25519Signature
	copy(sig[:], signature)
	return sig
}

// Ed25519Verify checks a signature under ZIP-215 rules so every replica
// accepts exactly the same signature set.
func Ed25519Verify(pub Ed25519Key, msg []byte, sig Ed25519Signature) bool {
	return ed25519consensus.Verify(pub.PublicKey(), msg, sig[:])
}
