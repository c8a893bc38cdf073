package userop

import (
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
)

const MaxUint48 = uint64(1)<<48 - 1

// SigValidationFailed is the aggregator value marking a failed signature check.
var SigValidationFailed = common.HexToAddress("0x0000000000000000000000000000000000000001")

// ValidationData is the decoded result of validateUserOp or
// validatePaymasterUserOp.
type ValidationData struct {
	Aggregator common.Address
	ValidAfter uint64
	ValidUntil uint64
}

// ParseValidationData decodes the packed word. Byte offsets count from the
// most significant byte: validAfter is [0:6], validUntil [6:12] with 0
// meaning no expiry, aggregator [12:32].
func ParseValidationData(v *big.Int) (ValidationData, error) {
	word, overflow := uint256.FromBig(orZero(v))
	if overflow || orZero(v).Sign() < 0 {
		return ValidationData{}, fmt.Errorf("validation data %s out of uint256 range", v)
	}
	b := word.Bytes32()

	validUntil := new(big.Int).SetBytes(b[6:12]).Uint64()
	if validUntil == 0 {
		validUntil = MaxUint48
	}
	return ValidationData{
		Aggregator: common.BytesToAddress(b[12:32]),
		ValidAfter: new(big.Int).SetBytes(b[0:6]).Uint64(),
		ValidUntil: validUntil,
	}, nil
}

// Pack encodes the data back into its word form.
func (d ValidationData) Pack() *big.Int {
	var b [32]byte
	until := d.ValidUntil
	if until == MaxUint48 {
		until = 0
	}
	putUint48(b[0:6], d.ValidAfter)
	putUint48(b[6:12], until)
	copy(b[12:32], d.Aggregator.Bytes())
	return new(big.Int).SetBytes(b[:])
}

// MergeValidationData intersects the account and paymaster time ranges. A
// non-zero paymaster aggregator marks the result as failed.
func MergeValidationData(account, paymaster ValidationData) ValidationData {
	aggregator := account.Aggregator
	if paymaster.Aggregator != (common.Address{}) {
		aggregator = SigValidationFailed
	}
	return ValidationData{
		Aggregator: aggregator,
		ValidAfter: max(account.ValidAfter, paymaster.ValidAfter),
		ValidUntil: min(account.ValidUntil, paymaster.ValidUntil),
	}
}

func MergeValidationDataValues(account, paymaster *big.Int) (ValidationData, error) {
	a, err := ParseValidationData(account)
	if err != nil {
		return ValidationData{}, fmt.Errorf("account: %w", err)
	}
	p, err := ParseValidationData(paymaster)
	if err != nil {
		return ValidationData{}, fmt.Errorf("paymaster: %w", err)
	}
	return MergeValidationData(a, p), nil
}

func putUint48(dst []byte, v uint64) {
	for i := 5; i >= 0; i-- {
		dst[i] = byte(v)
		v >>= 8
	}
}
