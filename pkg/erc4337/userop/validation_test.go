package userop

import (
	"math/big"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseValidationDataOffsets(t *testing.T) {
	agg := common.HexToAddress("0x1111111111111111111111111111111111111111")
	// validAfter=0x000000000064, validUntil=0x0000000000c8, aggregator
	word := common.FromHex("0x000000000064" + "0000000000c8" + "1111111111111111111111111111111111111111")
	vd, err := ParseValidationData(new(big.Int).SetBytes(word))
	require.NoError(t, err)
	assert.Equal(t, agg, vd.Aggregator)
	assert.Equal(t, uint64(100), vd.ValidAfter)
	assert.Equal(t, uint64(200), vd.ValidUntil)

	assert.Equal(t, 0, new(big.Int).SetBytes(word).Cmp(vd.Pack()))
}

func TestParseValidationDataZeroUntilMeansMax(t *testing.T) {
	vd, err := ParseValidationData(big.NewInt(0))
	require.NoError(t, err)
	assert.Equal(t, MaxUint48, vd.ValidUntil)
	assert.Equal(t, uint64(0), vd.ValidAfter)
	assert.Equal(t, common.Address{}, vd.Aggregator)
	assert.Equal(t, int64(0), vd.Pack().Int64())
}

func TestMergeValidationData(t *testing.T) {
	account := ValidationData{ValidAfter: 100}.Pack()
	paymaster := ValidationData{ValidAfter: 50, ValidUntil: 200}.Pack()

	merged, err := MergeValidationDataValues(account, paymaster)
	require.NoError(t, err)
	assert.Equal(t, uint64(100), merged.ValidAfter)
	assert.Equal(t, uint64(200), merged.ValidUntil)
	assert.Equal(t, common.Address{}, merged.Aggregator)
}

func TestMergeValidationDataPaymasterAggregatorFails(t *testing.T) {
	account := ValidationData{Aggregator: common.HexToAddress("0x2222222222222222222222222222222222222222"), ValidUntil: MaxUint48}
	paymaster := ValidationData{Aggregator: common.HexToAddress("0x3333333333333333333333333333333333333333"), ValidUntil: 10}

	merged := MergeValidationData(account, paymaster)
	assert.Equal(t, SigValidationFailed, merged.Aggregator)
	assert.Equal(t, uint64(10), merged.ValidUntil)

	paymaster.Aggregator = common.Address{}
	merged = MergeValidationData(account, paymaster)
	assert.Equal(t, account.Aggregator, merged.Aggregator, "account aggregator kept when paymaster has none")
}

func TestParseValidationDataRejectsOutOfRange(t *testing.T) {
	_, err := ParseValidationData(new(big.Int).Lsh(big.NewInt(1), 256))
	assert.Error(t, err)
	_, err = ParseValidationData(big.NewInt(-1))
	assert.Error(t, err)
}
