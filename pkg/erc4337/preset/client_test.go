package preset

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
	"github.com/AvaProtocol/aa-sdk/pkg/erc4337/bundler"
	"github.com/AvaProtocol/aa-sdk/pkg/timekeeper"
)

var opHash = common.HexToHash("0x1111111111111111111111111111111111111111111111111111111111111111")

type sentOp struct {
	Nonce string `json:"nonce"`
}

// rpcStub replies to eth_sendUserOperation with the queued errors first,
// then with opHash.
type rpcStub struct {
	mu         sync.Mutex
	sendErrors []map[string]interface{}
	sent       []sentOp
	receipt    map[string]interface{}
}

func (s *rpcStub) server(t *testing.T) *httptest.Server {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req struct {
			ID     string            `json:"id"`
			Method string            `json:"method"`
			Params []json.RawMessage `json:"params"`
		}
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		resp := map[string]interface{}{"jsonrpc": "2.0", "id": req.ID}

		s.mu.Lock()
		switch req.Method {
		case "eth_sendUserOperation":
			var op sentOp
			require.NoError(t, json.Unmarshal(req.Params[0], &op))
			s.sent = append(s.sent, op)
			if len(s.sendErrors) > 0 {
				resp["error"] = s.sendErrors[0]
				s.sendErrors = s.sendErrors[1:]
			} else {
				resp["result"] = opHash.Hex()
			}
		case "eth_getUserOperationReceipt":
			resp["result"] = s.receipt
		default:
			resp["error"] = map[string]interface{}{"code": -32601, "message": "method not found"}
		}
		s.mu.Unlock()

		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(resp)
	}))
	t.Cleanup(srv.Close)
	return srv
}

func newTestClient(t *testing.T, stub *rpcStub, nm *bundler.NonceManager) (*Client, *stageRecorder) {
	t.Helper()
	bc, err := bundler.NewBundlerClient(bundler.Config{URL: stub.server(t).URL})
	require.NoError(t, err)
	rec := &stageRecorder{}
	return &Client{
		Builder: &Builder{Account: newMockAccount(t), Chain: &fakeChain{}, NonceManager: nm, Metrics: rec},
		Bundler: bc,
		WaitPolicy: timekeeper.Policy{
			Timeout:  500 * time.Millisecond,
			Interval: 20 * time.Millisecond,
		},
	}, rec
}

func TestClientSend(t *testing.T) {
	stub := &rpcStub{}
	nm := bundler.NewNonceManager(nil)
	c, rec := newTestClient(t, stub, nm)

	res, err := c.Send(context.Background(), transferIntent())
	require.NoError(t, err)
	assert.Equal(t, opHash, res.UserOpHash)
	assert.Equal(t, int64(7), res.UserOp.Nonce.Int64())
	assert.Equal(t, []string{"ok"}, rec.submitted)

	next, ok := nm.Cached(sender)
	require.True(t, ok)
	assert.Equal(t, int64(8), next.Int64())

	res, err = c.Send(context.Background(), transferIntent())
	require.NoError(t, err)
	assert.Equal(t, int64(8), res.UserOp.Nonce.Int64())
	assert.Equal(t, []sentOp{{Nonce: "0x7"}, {Nonce: "0x8"}}, stub.sent)
}

func TestClientSendRebuildsOnNonceConflict(t *testing.T) {
	stub := &rpcStub{sendErrors: []map[string]interface{}{
		{"code": -32500, "message": "AA25 invalid account nonce"},
	}}
	nm := bundler.NewNonceManager(nil)
	nm.Set(sender, big.NewInt(12))
	c, rec := newTestClient(t, stub, nm)

	res, err := c.Send(context.Background(), transferIntent())
	require.NoError(t, err)
	assert.Equal(t, int64(7), res.UserOp.Nonce.Int64())
	assert.Equal(t, []sentOp{{Nonce: "0xc"}, {Nonce: "0x7"}}, stub.sent)
	assert.Equal(t, []string{"error", "ok"}, rec.submitted)
}

func TestClientSendPropagatesRpcError(t *testing.T) {
	stub := &rpcStub{sendErrors: []map[string]interface{}{
		{"code": aaerr.CodeInvalidSignature, "message": "AA24 signature error"},
	}}
	c, _ := newTestClient(t, stub, bundler.NewNonceManager(nil))

	res, err := c.Send(context.Background(), transferIntent())
	assert.Nil(t, res)
	code, ok := aaerr.RpcCode(err)
	require.True(t, ok)
	assert.Equal(t, aaerr.CodeInvalidSignature, code)
	assert.Len(t, stub.sent, 1)
}

func TestClientSendAndWait(t *testing.T) {
	stub := &rpcStub{receipt: map[string]interface{}{
		"userOpHash": opHash.Hex(),
		"sender":     sender.Hex(),
		"success":    true,
		"receipt": map[string]interface{}{
			"transactionHash": "0x2222222222222222222222222222222222222222222222222222222222222222",
		},
	}}
	c, _ := newTestClient(t, stub, nil)

	res, receipt, err := c.SendAndWait(context.Background(), transferIntent())
	require.NoError(t, err)
	assert.Equal(t, opHash, res.UserOpHash)
	assert.True(t, receipt.Success)
	assert.Equal(t, common.HexToHash("0x2222222222222222222222222222222222222222222222222222222222222222"), receipt.Receipt.TransactionHash)
}

func TestClientSendAndWaitTimeout(t *testing.T) {
	c, _ := newTestClient(t, &rpcStub{}, nil)

	res, receipt, err := c.SendAndWait(context.Background(), transferIntent())
	require.Error(t, err)
	assert.True(t, aaerr.IsTimeout(err))
	assert.NotNil(t, res, "the operation was submitted even though no receipt arrived")
	assert.Nil(t, receipt)
}
