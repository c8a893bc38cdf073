package preset

import (
	"context"
	"strings"

	"github.com/ethereum/go-ethereum/common"

	"github.com/AvaProtocol/aa-sdk/metrics"
	"github.com/AvaProtocol/aa-sdk/pkg/erc4337/aaerr"
	"github.com/AvaProtocol/aa-sdk/pkg/erc4337/bundler"
	"github.com/AvaProtocol/aa-sdk/pkg/erc4337/gas"
	"github.com/AvaProtocol/aa-sdk/pkg/erc4337/userop"
	"github.com/AvaProtocol/aa-sdk/pkg/logger"
	"github.com/AvaProtocol/aa-sdk/pkg/timekeeper"
)

// maxNonceRetries bounds rebuilds after the bundler rejected a cached nonce.
const maxNonceRetries = 2

// Client builds, submits and tracks user operations for one account.
type Client struct {
	Builder *Builder
	Bundler *bundler.BundlerClient
	// WaitPolicy bounds SendAndWait. Zero means bundler.DefaultWaitPolicy.
	WaitPolicy timekeeper.Policy
}

// Result is a submitted operation.
type Result struct {
	UserOp     *userop.UserOperation
	UserOpHash common.Hash
}

func (c *Client) log() logger.Logger {
	return logger.EnsureLogger(c.Builder.Logger).With("component", "preset_client")
}

// Send builds intent and submits it to the bundler. When the builder has a
// NonceManager and the bundler rejects the nonce (AA25), the sender's cache
// is reset and the operation rebuilt.
func (c *Client) Send(ctx context.Context, intent *TransactionDetails) (*Result, error) {
	rec := metrics.EnsureRecorder(c.Builder.Metrics)
	nm := c.Builder.NonceManager

	for attempt := 0; ; attempt++ {
		op, err := c.Builder.Build(ctx, intent)
		if err != nil {
			return nil, err
		}

		hash, err := c.Bundler.SendUserOperation(ctx, op, c.Builder.Account.EntryPoint())
		rec.IncUserOpSubmitted(metrics.Status(err))
		if err == nil {
			if nm != nil {
				nm.Increment(op.Sender, op.Nonce)
			}
			c.log().Info("userop submitted",
				"userOpHash", hash.Hex(),
				"sender", op.Sender.Hex(),
				"nonce", op.Nonce.String(),
				"maxCost", gas.FormatEther(gas.MaxCost(op)))
			return &Result{UserOp: op, UserOpHash: hash}, nil
		}

		if nm == nil || intent.Nonce != nil || !isNonceConflict(err) || attempt >= maxNonceRetries {
			return nil, err
		}
		c.log().Warn("bundler rejected nonce, rebuilding", "sender", op.Sender.Hex(), "nonce", op.Nonce.String(), "attempt", attempt+1)
		nm.Reset(op.Sender)
	}
}

// SendAndWait submits intent and blocks until the bundler returns a receipt.
func (c *Client) SendAndWait(ctx context.Context, intent *TransactionDetails) (*Result, *bundler.UserOperationReceipt, error) {
	res, err := c.Send(ctx, intent)
	if err != nil {
		return nil, nil, err
	}
	receipt, err := c.Bundler.WaitForUserOperationReceipt(ctx, res.UserOpHash, c.WaitPolicy)
	if err != nil {
		return res, nil, err
	}
	if !receipt.Success {
		c.log().Warn("userop reverted", "userOpHash", res.UserOpHash.Hex(), "reason", receipt.Reason)
	}
	return res, receipt, nil
}

func isNonceConflict(err error) bool {
	if !aaerr.IsRpc(err) {
		return false
	}
	return strings.Contains(err.Error(), "AA25")
}
