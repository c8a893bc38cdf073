package bundler

import (
	"context"
	"time"

	"github.com/ethereum/go-ethereum/common"

	"github.com/AvaProtocol/aa-sdk/pkg/timekeeper"
)

// DefaultWaitPolicy matches the usual bundler inclusion latency: one query
// every 5s for up to a minute.
var DefaultWaitPolicy = timekeeper.Policy{Timeout: 60 * time.Second, Interval: 5 * time.Second}

// WaitForUserOperation polls eth_getUserOperationByHash until the bundler
// knows the operation. RPC errors end the wait immediately; running out of
// time yields an *aaerr.TimeoutError.
func (bc *BundlerClient) WaitForUserOperation(ctx context.Context, hash common.Hash, policy timekeeper.Policy) (*UserOperationByHash, error) {
	if policy.Timeout <= 0 {
		policy = DefaultWaitPolicy
	}
	return timekeeper.Poll(ctx, policy, "eth_getUserOperationByHash", func(ctx context.Context) (*UserOperationByHash, bool, error) {
		op, err := bc.GetUserOperationByHash(ctx, hash)
		return op, op != nil, err
	})
}

// WaitForUserOperationReceipt polls eth_getUserOperationReceipt with the
// same rules as WaitForUserOperation.
func (bc *BundlerClient) WaitForUserOperationReceipt(ctx context.Context, hash common.Hash, policy timekeeper.Policy) (*UserOperationReceipt, error) {
	if policy.Timeout <= 0 {
		policy = DefaultWaitPolicy
	}
	return timekeeper.Poll(ctx, policy, "eth_getUserOperationReceipt", func(ctx context.Context) (*UserOperationReceipt, bool, error) {
		receipt, err := bc.GetUserOperationReceipt(ctx, hash)
		return receipt, receipt != nil, err
	})
}
