package bundler

import (
	"context"
	"encoding/json"
	"math/big"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/AvaProtocol/aa-sdk/pkg/erc4337/aaerr"
	"github.com/AvaProtocol/aa-sdk/pkg/erc4337/userop"
	"github.com/AvaProtocol/aa-sdk/pkg/timekeeper"
)

var entryPoint = common.HexToAddress("0x0000000071727De22E5E9d8BAf0edAc6f37da032")

type recordedCall struct {
	Method string
	Params []json.RawMessage
	ID     string
	Auth   string
}

// fakeBundler answers each method with the handler registered for it.
type fakeBundler struct {
	mu       sync.Mutex
	calls    []recordedCall
	handlers map[string]func(n int) (result interface{}, rpcErr *rpcErrorBody)
}

func newFakeBundler(t *testing.T) (*fakeBundler, *httptest.Server) {
	fb := &fakeBundler{handlers: map[string]func(int) (interface{}, *rpcErrorBody){}}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req struct {
			ID     string            `json:"id"`
			Method string            `json:"method"`
			Params []json.RawMessage `json:"params"`
		}
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))

		fb.mu.Lock()
		fb.calls = append(fb.calls, recordedCall{Method: req.Method, Params: req.Params, ID: req.ID, Auth: r.Header.Get("Authorization")})
		n := 0
		for _, c := range fb.calls {
			if c.Method == req.Method {
				n++
			}
		}
		handler := fb.handlers[req.Method]
		fb.mu.Unlock()

		resp := map[string]interface{}{"jsonrpc": "2.0", "id": req.ID}
		if handler == nil {
			resp["error"] = rpcErrorBody{Code: -32601, Message: "method not found"}
		} else if result, rpcErr := handler(n); rpcErr != nil {
			resp["error"] = rpcErr
		} else {
			resp["result"] = result
		}
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(resp)
	}))
	t.Cleanup(srv.Close)
	return fb, srv
}

func (fb *fakeBundler) on(method string, h func(n int) (interface{}, *rpcErrorBody)) {
	fb.mu.Lock()
	defer fb.mu.Unlock()
	fb.handlers[method] = h
}

func (fb *fakeBundler) callsTo(method string) []recordedCall {
	fb.mu.Lock()
	defer fb.mu.Unlock()
	var out []recordedCall
	for _, c := range fb.calls {
		if c.Method == method {
			out = append(out, c)
		}
	}
	return out
}

func newClient(t *testing.T, url string) *BundlerClient {
	t.Helper()
	c, err := NewBundlerClient(Config{URL: url, APIKey: "secret"})
	require.NoError(t, err)
	return c
}

func sampleOp() *userop.UserOperation {
	return &userop.UserOperation{
		Sender:               common.HexToAddress("0x00000000000000000000000000000000000000a1"),
		Nonce:                big.NewInt(1),
		CallData:             []byte{0xb6, 0x1d, 0x27, 0xf6},
		CallGasLimit:         big.NewInt(50000),
		VerificationGasLimit: big.NewInt(100000),
		PreVerificationGas:   big.NewInt(60000),
		MaxFeePerGas:         big.NewInt(30_000_000_000),
		MaxPriorityFeePerGas: big.NewInt(2_000_000_000),
		Signature:            make([]byte, 65),
	}
}

func TestNewBundlerClientRequiresURL(t *testing.T) {
	_, err := NewBundlerClient(Config{})
	assert.True(t, aaerr.IsConfiguration(err))
}

func TestSendUserOperation(t *testing.T) {
	fb, srv := newFakeBundler(t)
	want := common.HexToHash("0xabc1")
	fb.on("eth_sendUserOperation", func(int) (interface{}, *rpcErrorBody) { return want.Hex(), nil })

	got, err := newClient(t, srv.URL).SendUserOperation(context.Background(), sampleOp(), entryPoint)
	require.NoError(t, err)
	assert.Equal(t, want, got)

	calls := fb.callsTo("eth_sendUserOperation")
	require.Len(t, calls, 1)
	assert.Equal(t, "Bearer secret", calls[0].Auth)
	assert.NotEmpty(t, calls[0].ID)
	require.Len(t, calls[0].Params, 2)

	var op map[string]interface{}
	require.NoError(t, json.Unmarshal(calls[0].Params[0], &op))
	assert.Equal(t, "0x1", op["nonce"])
	assert.Equal(t, "0xc350", op["callGasLimit"])
	assert.Equal(t, "0xb61d27f6", op["callData"])
	assert.Equal(t, sampleOp().Sender.Hex(), op["sender"])
	assert.NotContains(t, op, "paymaster")
	assert.NotContains(t, op, "factory")

	var ep string
	require.NoError(t, json.Unmarshal(calls[0].Params[1], &ep))
	assert.Equal(t, entryPoint.Hex(), ep)
}

func TestRequestIDsAreUnique(t *testing.T) {
	fb, srv := newFakeBundler(t)
	fb.on("eth_supportedEntryPoints", func(int) (interface{}, *rpcErrorBody) {
		return []string{entryPoint.Hex()}, nil
	})
	c := newClient(t, srv.URL)

	for i := 0; i < 3; i++ {
		eps, err := c.SupportedEntryPoints(context.Background())
		require.NoError(t, err)
		assert.Equal(t, []common.Address{entryPoint}, eps)
	}
	calls := fb.callsTo("eth_supportedEntryPoints")
	seen := map[string]bool{}
	for _, c := range calls {
		seen[c.ID] = true
	}
	assert.Len(t, seen, 3)
}

func TestRpcErrorPropagates(t *testing.T) {
	fb, srv := newFakeBundler(t)
	fb.on("eth_sendUserOperation", func(int) (interface{}, *rpcErrorBody) {
		return nil, &rpcErrorBody{Code: aaerr.CodeInvalidSignature, Message: "Invalid UserOp signature", Data: json.RawMessage(`{"reason":"AA24"}`)}
	})

	_, err := newClient(t, srv.URL).SendUserOperation(context.Background(), sampleOp(), entryPoint)
	require.Error(t, err)
	code, ok := aaerr.RpcCode(err)
	require.True(t, ok)
	assert.Equal(t, aaerr.CodeInvalidSignature, code)

	var rpcErr *aaerr.RpcError
	require.ErrorAs(t, err, &rpcErr)
	assert.JSONEq(t, `{"reason":"AA24"}`, string(rpcErr.Data))
}

func TestHTTPFailure(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "bad gateway", http.StatusBadGateway)
	}))
	defer srv.Close()

	_, err := newClient(t, srv.URL).GetUserOperationReceipt(context.Background(), common.Hash{1})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "502")
}

func TestEstimateUserOperationGas(t *testing.T) {
	fb, srv := newFakeBundler(t)
	fb.on("eth_estimateUserOperationGas", func(int) (interface{}, *rpcErrorBody) {
		return map[string]string{
			"preVerificationGas":   "0xea60",
			"verificationGasLimit": "0x186a0",
			"callGasLimit":         "0xc350",
		}, nil
	})

	est, err := newClient(t, srv.URL).EstimateUserOperationGas(context.Background(), sampleOp(), entryPoint, nil)
	require.NoError(t, err)
	assert.Equal(t, int64(60000), est.PreVerification().Int64())
	assert.Equal(t, int64(100000), est.Verification().Int64())
	assert.Equal(t, int64(50000), est.Call().Int64())
	assert.Nil(t, est.PaymasterVerificationGasLimit)

	require.Len(t, fb.callsTo("eth_estimateUserOperationGas")[0].Params, 2)
}

func TestGetUserOperationReceiptNull(t *testing.T) {
	fb, srv := newFakeBundler(t)
	fb.on("eth_getUserOperationReceipt", func(int) (interface{}, *rpcErrorBody) { return nil, nil })

	receipt, err := newClient(t, srv.URL).GetUserOperationReceipt(context.Background(), common.Hash{1})
	require.NoError(t, err)
	assert.Nil(t, receipt)
}

func receiptJSON(hash common.Hash) map[string]interface{} {
	return map[string]interface{}{
		"userOpHash":    hash.Hex(),
		"entryPoint":    entryPoint.Hex(),
		"sender":        "0x00000000000000000000000000000000000000a1",
		"nonce":         "0x1",
		"actualGasCost": "0x5af3107a4000",
		"actualGasUsed": "0x2710",
		"success":       true,
		"logs":          []interface{}{},
		"receipt": map[string]interface{}{
			"transactionHash": common.HexToHash("0x7788").Hex(),
			"blockHash":       common.HexToHash("0x99").Hex(),
			"blockNumber":     "0x10",
			"gasUsed":         "0x2710",
			"status":          "0x1",
		},
	}
}

func TestWaitForUserOperationReceipt(t *testing.T) {
	fb, srv := newFakeBundler(t)
	hash := common.HexToHash("0xabc1")
	fb.on("eth_getUserOperationReceipt", func(n int) (interface{}, *rpcErrorBody) {
		if n < 3 {
			return nil, nil
		}
		return receiptJSON(hash), nil
	})

	receipt, err := newClient(t, srv.URL).WaitForUserOperationReceipt(context.Background(), hash,
		timekeeper.Policy{Timeout: 2 * time.Second, Interval: 10 * time.Millisecond})
	require.NoError(t, err)
	require.NotNil(t, receipt)
	assert.True(t, receipt.Success)
	assert.Equal(t, hash, receipt.UserOpHash)
	assert.Equal(t, common.HexToHash("0x7788"), receipt.Receipt.TransactionHash)
	assert.Equal(t, uint64(1), uint64(receipt.Receipt.Status))
	assert.Len(t, fb.callsTo("eth_getUserOperationReceipt"), 3)
}

func TestWaitForUserOperationTimesOut(t *testing.T) {
	fb, srv := newFakeBundler(t)
	fb.on("eth_getUserOperationByHash", func(int) (interface{}, *rpcErrorBody) { return nil, nil })

	start := time.Now()
	_, err := newClient(t, srv.URL).WaitForUserOperation(context.Background(), common.Hash{1},
		timekeeper.Policy{Timeout: 200 * time.Millisecond, Interval: 50 * time.Millisecond})
	require.Error(t, err)
	assert.True(t, aaerr.IsTimeout(err))
	assert.Less(t, time.Since(start), time.Second)

	n := len(fb.callsTo("eth_getUserOperationByHash"))
	assert.GreaterOrEqual(t, n, 4)
	assert.LessOrEqual(t, n, 5)
}

func TestWaitStopsOnRpcError(t *testing.T) {
	fb, srv := newFakeBundler(t)
	fb.on("eth_getUserOperationByHash", func(int) (interface{}, *rpcErrorBody) {
		return nil, &rpcErrorBody{Code: aaerr.CodeInternalError, Message: "boom"}
	})

	_, err := newClient(t, srv.URL).WaitForUserOperation(context.Background(), common.Hash{1},
		timekeeper.Policy{Timeout: time.Second, Interval: 10 * time.Millisecond})
	assert.True(t, aaerr.IsRpc(err))
	assert.Len(t, fb.callsTo("eth_getUserOperationByHash"), 1)
}

func TestWaitForUserOperation(t *testing.T) {
	fb, srv := newFakeBundler(t)
	hash := common.HexToHash("0xabc1")
	op := sampleOp()
	fb.on("eth_getUserOperationByHash", func(n int) (interface{}, *rpcErrorBody) {
		if n == 1 {
			return nil, nil
		}
		return map[string]interface{}{
			"userOperation":   op,
			"entryPoint":      entryPoint.Hex(),
			"transactionHash": common.HexToHash("0x7788").Hex(),
			"blockNumber":     "0x10",
		}, nil
	})

	got, err := newClient(t, srv.URL).WaitForUserOperation(context.Background(), hash,
		timekeeper.Policy{Timeout: time.Second, Interval: 10 * time.Millisecond})
	require.NoError(t, err)
	assert.True(t, got.Included())
	assert.Equal(t, op.Sender, got.UserOperation.Sender)
	assert.Equal(t, int64(50000), got.UserOperation.CallGasLimit.Int64())
}
