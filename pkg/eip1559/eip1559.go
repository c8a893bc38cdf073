package eip1559

import (
	"context"
	"math/big"

	"github.com/ethereum/go-ethereum/core/types"
)

// FeeReader is the node API needed to price a transaction.
type FeeReader interface {
	SuggestGasTipCap(ctx context.Context) (*big.Int, error)
	HeaderByNumber(ctx context.Context, number *big.Int) (*types.Header, error)
}

// FeeData is the fee pair of a user operation plus the base fee it was
// derived from. BaseFee is nil on legacy chains.
type FeeData struct {
	MaxFeePerGas         *big.Int
	MaxPriorityFeePerGas *big.Int
	BaseFee              *big.Int
}

// Params tune the suggestion. Zero minimums disable the floor.
type Params struct {
	// TipBufferPercent is added on top of the node's tip suggestion.
	TipBufferPercent int64
	MinTip           *big.Int
	MinMaxFee        *big.Int
}

var DefaultParams = Params{
	TipBufferPercent: 13,
	// bundlers drop ops below this tip
	MinTip: big.NewInt(2_000_000_000),
	// high base fee chains like Base
	MinMaxFee: big.NewInt(20_000_000_000),
}

func SuggestFee(ctx context.Context, client FeeReader) (*FeeData, error) {
	return SuggestFeeWithParams(ctx, client, DefaultParams)
}

func SuggestFeeWithParams(ctx context.Context, client FeeReader, p Params) (*FeeData, error) {
	tipCap, err := client.SuggestGasTipCap(ctx)
	if err != nil {
		return nil, err
	}

	header, err := client.HeaderByNumber(ctx, nil)
	if err != nil {
		return nil, err
	}

	buffer := new(big.Int).Div(tipCap, big.NewInt(100))
	buffer.Mul(buffer, big.NewInt(p.TipBufferPercent))
	maxPriorityFeePerGas := new(big.Int).Add(tipCap, buffer)
	if p.MinTip != nil && maxPriorityFeePerGas.Cmp(p.MinTip) < 0 {
		maxPriorityFeePerGas = new(big.Int).Set(p.MinTip)
	}

	fee := &FeeData{MaxPriorityFeePerGas: maxPriorityFeePerGas}

	if header.BaseFee == nil {
		// pre EIP-1559 chain: the whole price is the tip
		fee.MaxFeePerGas = new(big.Int).Set(maxPriorityFeePerGas)
		return fee, nil
	}

	// 2x base fee absorbs a full block of base fee growth before inclusion
	fee.BaseFee = new(big.Int).Set(header.BaseFee)
	fee.MaxFeePerGas = new(big.Int).Add(new(big.Int).Mul(header.BaseFee, big.NewInt(2)), maxPriorityFeePerGas)
	if p.MinMaxFee != nil && fee.MaxFeePerGas.Cmp(p.MinMaxFee) < 0 {
		fee.MaxFeePerGas = new(big.Int).Set(p.MinMaxFee)
	}
	return fee, nil
}
