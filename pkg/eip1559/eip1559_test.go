package eip1559

import (
	"context"
	"errors"
	"math/big"
	"testing"

	"github.com/ethereum/go-ethereum/core/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type staticFees struct {
	tip     *big.Int
	baseFee *big.Int
	err     error
}

func (s staticFees) SuggestGasTipCap(ctx context.Context) (*big.Int, error) {
	return s.tip, s.err
}

func (s staticFees) HeaderByNumber(ctx context.Context, number *big.Int) (*types.Header, error) {
	return &types.Header{BaseFee: s.baseFee}, nil
}

func gwei(n int64) *big.Int {
	return new(big.Int).Mul(big.NewInt(n), big.NewInt(1_000_000_000))
}

func TestSuggestFeeAppliesBufferAndHeadroom(t *testing.T) {
	fee, err := SuggestFee(context.Background(), staticFees{tip: gwei(10), baseFee: gwei(30)})
	require.NoError(t, err)

	assert.Equal(t, gwei(10).Int64()+gwei(10).Int64()*13/100, fee.MaxPriorityFeePerGas.Int64())
	assert.Equal(t, gwei(60).Int64()+fee.MaxPriorityFeePerGas.Int64(), fee.MaxFeePerGas.Int64())
	assert.Equal(t, gwei(30).Int64(), fee.BaseFee.Int64())
}

func TestSuggestFeeFloors(t *testing.T) {
	fee, err := SuggestFee(context.Background(), staticFees{tip: big.NewInt(1), baseFee: big.NewInt(1)})
	require.NoError(t, err)
	assert.Equal(t, gwei(2).Int64(), fee.MaxPriorityFeePerGas.Int64())
	assert.Equal(t, gwei(20).Int64(), fee.MaxFeePerGas.Int64())

	fee, err = SuggestFeeWithParams(context.Background(), staticFees{tip: big.NewInt(100), baseFee: big.NewInt(10)}, Params{})
	require.NoError(t, err)
	assert.Equal(t, int64(100), fee.MaxPriorityFeePerGas.Int64())
	assert.Equal(t, int64(120), fee.MaxFeePerGas.Int64())
}

func TestSuggestFeeLegacyChain(t *testing.T) {
	fee, err := SuggestFee(context.Background(), staticFees{tip: gwei(5)})
	require.NoError(t, err)
	assert.Nil(t, fee.BaseFee)
	assert.Equal(t, fee.MaxPriorityFeePerGas, fee.MaxFeePerGas)
}

func TestSuggestFeeError(t *testing.T) {
	_, err := SuggestFee(context.Background(), staticFees{err: errors.New("node down")})
	assert.Error(t, err)
}
