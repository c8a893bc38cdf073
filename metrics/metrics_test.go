package metrics

import (
	"context"
	"errors"
	"math/big"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/AvaProtocol/aa-sdk/pkg/logger"
)

func TestAAMetricsCounters(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewAAAndEigenMetrics(nil, reg)

	m.IncRpcCall("eth_sendUserOperation", "ok")
	m.IncRpcCall("eth_sendUserOperation", "ok")
	m.IncBuildStage("Signed", Status(errors.New("boom")))
	m.IncUserOpSubmitted("ok")
	m.AddSponsoredGas(100000)

	assert.Equal(t, float64(2), testutil.ToFloat64(m.numRpcCalls.WithLabelValues("eth_sendUserOperation", "ok")))
	assert.Equal(t, float64(1), testutil.ToFloat64(m.numBuildStages.WithLabelValues("Signed", "error")))
	assert.Equal(t, float64(100000), testutil.ToFloat64(m.sponsoredGasTotal))
}

func TestEnsureRecorder(t *testing.T) {
	assert.Equal(t, NoopRecorder{}, EnsureRecorder(nil))
	assert.NotPanics(t, func() { EnsureRecorder(nil).IncRpcCall("m", "ok") })
}

type deposits map[common.Address]*big.Int

func (d deposits) BalanceOf(ctx context.Context, account common.Address) (*big.Int, error) {
	if v, ok := d[account]; ok {
		return v, nil
	}
	return nil, errors.New("unknown account")
}

func TestDepositCollector(t *testing.T) {
	pm := common.HexToAddress("0x00000000000000000000000000000000000000aa")
	missing := common.HexToAddress("0x00000000000000000000000000000000000000bb")
	oneAndHalfEther, _ := new(big.Int).SetString("1500000000000000000", 10)

	c := NewDepositCollector(deposits{pm: oneAndHalfEther}, logger.NewNoOpLogger(), map[string]common.Address{
		"paymaster": pm,
		"missing":   missing,
	})
	reg := prometheus.NewRegistry()
	require.NoError(t, reg.Register(c))

	assert.Equal(t, 1, testutil.CollectAndCount(c))
	assert.Equal(t, 1.5, testutil.ToFloat64(c.(*DepositCollector).deposit.WithLabelValues("paymaster", pm.Hex())))
}
