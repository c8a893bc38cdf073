// Package gas computes the off-chain gas fields of a user operation.
package gas

import (
	"bytes"
	"math/big"

	"github.com/shopspring/decimal"

	"github.com/AvaProtocol/aa-sdk/pkg/erc4337/userop"
)

// Overheads are the constants of the calldata cost model.
type Overheads struct {
	// Fixed is the per-bundle transaction overhead, shared by BundleSize ops.
	Fixed int64
	// PerUserOp is charged once per operation.
	PerUserOp int64
	// PerUserOpWord is charged for each 32 byte word of the encoded operation.
	PerUserOpWord int64
	ZeroByte      int64
	NonZeroByte   int64
	BundleSize    int64
	// SigSize is the placeholder signature length used while unsigned.
	SigSize int
}

var DefaultOverheads = Overheads{
	Fixed:         21000,
	PerUserOp:     18300,
	PerUserOpWord: 4,
	ZeroByte:      4,
	NonZeroByte:   16,
	BundleSize:    1,
	SigSize:       65,
}

// CalcPreVerificationGas returns the gas the bundler charges for putting op
// on chain. An unset preVerificationGas is estimated at 21000 and a missing
// signature is replaced by SigSize non-zero bytes before encoding.
func CalcPreVerificationGas(op *userop.UserOperation, ov Overheads) (*big.Int, error) {
	if ov.BundleSize <= 0 {
		ov.BundleSize = 1
	}
	p := op.Clone()
	if p.PreVerificationGas == nil {
		p.PreVerificationGas = big.NewInt(21000)
	}
	if len(p.Signature) == 0 {
		p.Signature = bytes.Repeat([]byte{0x01}, ov.SigSize)
	}

	packed, err := userop.Pack(p)
	if err != nil {
		return nil, err
	}
	encoded, err := userop.EncodeForCalldata(packed)
	if err != nil {
		return nil, err
	}

	var callDataCost int64
	for _, b := range encoded {
		if b == 0 {
			callDataCost += ov.ZeroByte
		} else {
			callDataCost += ov.NonZeroByte
		}
	}

	// word count stays fractional until the final rounding
	lengthInWord := decimal.NewFromInt(int64(len(encoded) + 31)).Div(decimal.NewFromInt(32))
	total := decimal.NewFromInt(callDataCost).
		Add(decimal.NewFromInt(ov.Fixed).Div(decimal.NewFromInt(ov.BundleSize))).
		Add(decimal.NewFromInt(ov.PerUserOp)).
		Add(decimal.NewFromInt(ov.PerUserOpWord).Mul(lengthInWord))

	return total.Round(0).BigInt(), nil
}

// MaxCost is the most the operation can be charged:
// (preVerificationGas + verificationGasLimit + callGasLimit +
// paymasterVerificationGasLimit + paymasterPostOpGasLimit) * maxFeePerGas.
func MaxCost(op *userop.UserOperation) *big.Int {
	total := new(big.Int)
	for _, v := range []*big.Int{
		op.PreVerificationGas,
		op.VerificationGasLimit,
		op.CallGasLimit,
		op.PaymasterVerificationGasLimit,
		op.PaymasterPostOpGasLimit,
	} {
		if v != nil {
			total.Add(total, v)
		}
	}
	if op.MaxFeePerGas == nil {
		return new(big.Int)
	}
	return total.Mul(total, op.MaxFeePerGas)
}

// FormatEther renders a wei amount as ETH with 18 decimals trimmed.
func FormatEther(wei *big.Int) string {
	if wei == nil {
		return "0"
	}
	return decimal.NewFromBigInt(wei, -18).String()
}
