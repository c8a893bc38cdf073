package metrics

import (
	"context"
	"fmt"
	"math/big"
	"time"

	"github.com/Layr-Labs/eigensdk-go/logging"
	"github.com/ethereum/go-ethereum/common"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/shopspring/decimal"
)

type MetricsOnlyLogger struct {
	logging.Logger
}

func (l *MetricsOnlyLogger) Error(msg string, keysAndValues ...interface{}) {
	l.Logger.Error(fmt.Sprintf("[METRICS ONLY] %s", msg), keysAndValues...)
}

func (l *MetricsOnlyLogger) Errorf(format string, args ...interface{}) {
	l.Logger.Errorf("[METRICS ONLY] "+format, args...)
}

// DepositReader returns the EntryPoint deposit of an account.
type DepositReader interface {
	BalanceOf(ctx context.Context, account common.Address) (*big.Int, error)
}

// DepositCollector reports EntryPoint deposits of watched addresses
// (accounts and paymasters) in ether at scrape time.
type DepositCollector struct {
	reader  DepositReader
	logger  logging.Logger
	watched map[string]common.Address
	timeout time.Duration

	deposit *prometheus.GaugeVec
}

func NewDepositCollector(reader DepositReader, logger logging.Logger, watched map[string]common.Address) prometheus.Collector {
	return &DepositCollector{
		reader:  reader,
		logger:  &MetricsOnlyLogger{Logger: logger},
		watched: watched,
		timeout: 5 * time.Second,
		deposit: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: aaNamespace,
				Subsystem: "entrypoint",
				Name:      "deposit_ether",
				Help:      "EntryPoint deposit of a watched account or paymaster",
			},
			[]string{"name", "address"},
		),
	}
}

func (c *DepositCollector) Describe(ch chan<- *prometheus.Desc) {
	c.deposit.Describe(ch)
}

func (c *DepositCollector) Collect(ch chan<- prometheus.Metric) {
	ctx, cancel := context.WithTimeout(context.Background(), c.timeout)
	defer cancel()

	for name, addr := range c.watched {
		balance, err := c.reader.BalanceOf(ctx, addr)
		if err != nil {
			// keep the last value rather than reporting a false zero
			c.logger.Error("cannot read EntryPoint deposit", "name", name, "address", addr.Hex(), "err", err)
			continue
		}
		ether, _ := decimal.NewFromBigInt(balance, -18).Float64()
		c.deposit.WithLabelValues(name, addr.Hex()).Set(ether)
	}

	c.deposit.Collect(ch)
}
