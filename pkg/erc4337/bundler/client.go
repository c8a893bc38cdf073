// Provide primitive to work with a bundler RPC
// Bundler RPC is stateless
package bundler

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/go-resty/resty/v2"
	"github.com/oklog/ulid/v2"

	"github.com/AvaProtocol/aa-sdk/metrics"
	"github.com/AvaProtocol/aa-sdk/pkg/erc4337/aaerr"
	"github.com/AvaProtocol/aa-sdk/pkg/erc4337/userop"
	"github.com/AvaProtocol/aa-sdk/pkg/logger"
)

const (
	DefaultRequestTimeout = 30 * time.Second
)

type Config struct {
	URL string
	// APIKey is sent as a Bearer token when set.
	APIKey  string
	Timeout time.Duration
	Logger  logger.Logger
	Metrics metrics.Recorder
}

// BundlerClient talks JSON-RPC 2.0 over HTTP POST to an ERC-4337 bundler.
type BundlerClient struct {
	http    *resty.Client
	url     string
	log     logger.Logger
	metrics metrics.Recorder
}

type rpcRequest struct {
	JSONRPC string        `json:"jsonrpc"`
	ID      string        `json:"id"`
	Method  string        `json:"method"`
	Params  []interface{} `json:"params"`
}

type rpcErrorBody struct {
	Code    int             `json:"code"`
	Message string          `json:"message"`
	Data    json.RawMessage `json:"data,omitempty"`
}

type rpcResponse struct {
	JSONRPC string          `json:"jsonrpc"`
	ID      json.RawMessage `json:"id"`
	Result  json.RawMessage `json:"result"`
	Error   *rpcErrorBody   `json:"error"`
}

func NewBundlerClient(cfg Config) (*BundlerClient, error) {
	if cfg.URL == "" {
		return nil, aaerr.NewConfigurationError("bundler URL is required")
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultRequestTimeout
	}

	httpClient := resty.New().
		SetTimeout(cfg.Timeout).
		SetHeader("Content-Type", "application/json").
		SetHeader("Accept", "application/json")
	if cfg.APIKey != "" {
		httpClient.SetAuthToken(cfg.APIKey)
	}

	return &BundlerClient{
		http:    httpClient,
		url:     cfg.URL,
		log:     logger.EnsureLogger(cfg.Logger).With("component", "bundler"),
		metrics: metrics.EnsureRecorder(cfg.Metrics),
	}, nil
}

// call issues one JSON-RPC request. found is false when the result is null,
// in which case out is left untouched.
func (bc *BundlerClient) call(ctx context.Context, method string, out interface{}, params ...interface{}) (found bool, err error) {
	defer func() {
		bc.metrics.IncRpcCall(method, metrics.Status(err))
	}()

	if params == nil {
		params = []interface{}{}
	}
	req := rpcRequest{
		JSONRPC: "2.0",
		ID:      ulid.Make().String(),
		Method:  method,
		Params:  params,
	}

	var body rpcResponse
	resp, err := bc.http.R().
		SetContext(ctx).
		SetBody(req).
		SetResult(&body).
		SetError(&body).
		Post(bc.url)
	if err != nil {
		return false, fmt.Errorf("%s: %w", method, err)
	}

	bc.log.Debug("bundler rpc", "method", method, "id", req.ID, "status", resp.StatusCode())

	if body.Error != nil {
		return false, aaerr.NewRpcError(body.Error.Code, body.Error.Message, body.Error.Data)
	}
	if resp.StatusCode() != http.StatusOK {
		return false, fmt.Errorf("%s: %d %s: %s", method, resp.StatusCode(), http.StatusText(resp.StatusCode()), strings.TrimSpace(resp.String()))
	}

	if len(body.Result) == 0 || string(body.Result) == "null" {
		return false, nil
	}
	if out != nil {
		if err := json.Unmarshal(body.Result, out); err != nil {
			return false, fmt.Errorf("%s: decode result: %w", method, err)
		}
	}
	return true, nil
}

// SendUserOperation submits op and returns the userOpHash the bundler
// computed for it.
func (bc *BundlerClient) SendUserOperation(ctx context.Context, op *userop.UserOperation, entryPoint common.Address) (common.Hash, error) {
	fields, err := op.RPCFields()
	if err != nil {
		return common.Hash{}, err
	}

	var hash common.Hash
	found, err := bc.call(ctx, "eth_sendUserOperation", &hash, DeepHexlify(fields), entryPoint.Hex())
	if err != nil {
		return common.Hash{}, err
	}
	if !found {
		return common.Hash{}, fmt.Errorf("eth_sendUserOperation: empty result")
	}
	bc.log.Info("user operation sent", "userOpHash", hash.Hex(), "sender", op.Sender.Hex())
	return hash, nil
}

// EstimateUserOperationGas asks the bundler for gas limits. The signature
// is not checked but must have a realistic length.
// https://eips.ethereum.org/EIPS/eip-4337#rpc-methods-eth-namespace
func (bc *BundlerClient) EstimateUserOperationGas(ctx context.Context, op *userop.UserOperation, entryPoint common.Address, stateOverride map[string]interface{}) (*GasEstimation, error) {
	fields, err := op.RPCFields()
	if err != nil {
		return nil, err
	}
	params := []interface{}{DeepHexlify(fields), entryPoint.Hex()}
	if len(stateOverride) > 0 {
		params = append(params, DeepHexlify(stateOverride))
	}

	var est GasEstimation
	found, err := bc.call(ctx, "eth_estimateUserOperationGas", &est, params...)
	if err != nil {
		return nil, err
	}
	if !found {
		return nil, fmt.Errorf("eth_estimateUserOperationGas: empty result")
	}
	return &est, nil
}

// GetUserOperationByHash returns nil without error while the bundler does
// not know the operation.
func (bc *BundlerClient) GetUserOperationByHash(ctx context.Context, hash common.Hash) (*UserOperationByHash, error) {
	var out UserOperationByHash
	found, err := bc.call(ctx, "eth_getUserOperationByHash", &out, hash.Hex())
	if err != nil || !found {
		return nil, err
	}
	return &out, nil
}

// GetUserOperationReceipt returns nil without error until the operation
// is included.
func (bc *BundlerClient) GetUserOperationReceipt(ctx context.Context, hash common.Hash) (*UserOperationReceipt, error) {
	var out UserOperationReceipt
	found, err := bc.call(ctx, "eth_getUserOperationReceipt", &out, hash.Hex())
	if err != nil || !found {
		return nil, err
	}
	return &out, nil
}

func (bc *BundlerClient) SupportedEntryPoints(ctx context.Context) ([]common.Address, error) {
	var out []common.Address
	if _, err := bc.call(ctx, "eth_supportedEntryPoints", &out); err != nil {
		return nil, err
	}
	return out, nil
}
