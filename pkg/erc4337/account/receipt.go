package account

import (
	"context"
	"fmt"
	"math/big"
	"time"

	ethereum "github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"

	"github.com/AvaProtocol/aa-sdk/core/chainio/aa"
	"github.com/AvaProtocol/aa-sdk/pkg/erc4337/aaerr"
	"github.com/AvaProtocol/aa-sdk/pkg/timekeeper"
)

var DefaultReceiptPolicy = timekeeper.Policy{Timeout: 30 * time.Second, Interval: 5 * time.Second}

// FindUserOperationEvent scans recent EntryPoint logs once.
func (b *base) FindUserOperationEvent(ctx context.Context, userOpHash common.Hash) (*aa.UserOperationEvent, error) {
	query := ethereum.FilterQuery{
		Addresses: []common.Address{b.cfg.EntryPoint},
		Topics:    [][]common.Hash{{aa.UserOperationEventTopic}, {userOpHash}},
	}

	head, err := b.cfg.Chain.HeaderByNumber(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("get head block: %w", err)
	}
	if head.Number != nil && head.Number.Uint64() > b.cfg.ReceiptLookback {
		query.FromBlock = new(big.Int).SetUint64(head.Number.Uint64() - b.cfg.ReceiptLookback)
	}

	logs, err := b.cfg.Chain.FilterLogs(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("filter UserOperationEvent: %w", err)
	}
	if len(logs) == 0 {
		return nil, nil
	}
	return aa.ParseUserOperationEvent(logs[0])
}

// UserOpReceipt polls the EntryPoint for the operation's event and returns
// the transaction hash that included it, or nil when the policy runs out.
func (b *base) UserOpReceipt(ctx context.Context, userOpHash common.Hash, policy timekeeper.Policy) (*common.Hash, error) {
	if policy.Timeout <= 0 {
		policy = DefaultReceiptPolicy
	}
	ev, err := timekeeper.Poll(ctx, policy, "userOpReceipt", func(ctx context.Context) (*aa.UserOperationEvent, bool, error) {
		ev, err := b.FindUserOperationEvent(ctx, userOpHash)
		if err != nil {
			return nil, false, err
		}
		return ev, ev != nil, nil
	})
	if aaerr.IsTimeout(err) {
		b.log.Info("user operation event not found", "userOpHash", userOpHash.Hex(), "timeout", policy.Timeout)
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	txHash := ev.TxHash
	return &txHash, nil
}
