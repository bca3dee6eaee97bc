package types

import (
	"fmt"
	"io"

	"github.com/holiman/uint256"

	"github.com/opalchain/opal/common"
	"github.com/opalchain/opal/tree"
)

// FeeParameters is the fee schedule a block was assembled under. Fees are
// denominated in the native asset, issued by the account at NativeAsset.
type FeeParameters struct {
	NativeAsset         tree.AccountIdPrefix `json:"native_asset"`
	VerificationBaseFee *uint256.Int         `json:"verification_base_fee"`
}

const feeParametersLength = 8 + 32

// MarshalOpal encodes the schedule as the asset prefix followed by the
// base fee as a 32-byte big-endian integer.
func (f FeeParameters) MarshalOpal() ([]byte, error) {
	out := make([]byte, feeParametersLength)
	copy(out[:8], common.Uint64ToBytes(uint64(f.NativeAsset)))
	fee := f.VerificationBaseFee
	if fee == nil {
		fee = uint256.NewInt(0)
	}
	b32 := fee.Bytes32()
	copy(out[8:], b32[:])
	return out, nil
}

func (f *FeeParameters) UnmarshalOpal(r io.Reader) error {
	var buf [feeParametersLength]byte
	if _, err := io.ReadFull(r, buf[:]); err != nil {
		return fmt.Errorf("fee parameters: %w", err)
	}
	prefix, err := tree.NewAccountIdPrefix(common.BytesToUint64(buf[:8]))
	if err != nil {
		return err
	}
	f.NativeAsset = prefix
	f.VerificationBaseFee = new(uint256.Int).SetBytes(buf[8:])
	return nil
}

// Equal reports whether two schedules match.
func (f FeeParameters) Equal(other FeeParameters) bool {
	a, _ := f.MarshalOpal()
	b, _ := other.MarshalOpal()
	return string(a) == string(b)
}
