package preset

import (
	"bytes"
	"context"
	"errors"
	"math/big"
	"sync"
	"testing"

	ethereum "github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/AvaProtocol/aa-sdk/core/chainio/aa"
	"github.com/AvaProtocol/aa-sdk/core/chainio/aa/simpleaccount"
	"github.com/AvaProtocol/aa-sdk/core/chainio/signer"
	"github.com/AvaProtocol/aa-sdk/pkg/erc4337/aaerr"
	"github.com/AvaProtocol/aa-sdk/pkg/erc4337/account"
	"github.com/AvaProtocol/aa-sdk/pkg/erc4337/bundler"
	"github.com/AvaProtocol/aa-sdk/pkg/erc4337/paymaster"
	"github.com/AvaProtocol/aa-sdk/pkg/erc4337/userop"
)

const ownerKey = "ac0974bec39a17e36ba4a6b4d238ff944bacb478cbed5efcaf784d7bf4f2ff80"

var (
	target  = common.HexToAddress("0xAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAA")
	sender  = common.HexToAddress("0xBBBBBBBBBBBBBBBBBBBBBBBBBBBBBBBBBBBBBBBB")
	pmAddr  = common.HexToAddress("0x00000000000000000000000000000000000000aa")
	chainID = big.NewInt(11155111)
	gwei    = big.NewInt(1_000_000_000)
)

type mockAccount struct {
	mu sync.Mutex

	owner       *signer.PrivateKeySigner
	nonce       *big.Int
	nonceErr    error
	factory     *account.FactoryParams
	creationGas int64
	signCalls   int
}

func newMockAccount(t *testing.T) *mockAccount {
	t.Helper()
	owner, err := signer.FromPrivateKeyHex(ownerKey)
	require.NoError(t, err)
	return &mockAccount{owner: owner, nonce: big.NewInt(7)}
}

func (m *mockAccount) Kind() account.Kind { return account.KindSimple }

func (m *mockAccount) EntryPoint() common.Address { return aa.EntrypointAddress }

func (m *mockAccount) VerificationGasLimit() *big.Int {
	return big.NewInt(account.DefaultVerificationGasLimit)
}

func (m *mockAccount) Address(ctx context.Context) (common.Address, error) {
	return sender, nil
}

func (m *mockAccount) Nonce(ctx context.Context) (*big.Int, error) {
	if m.nonceErr != nil {
		return nil, m.nonceErr
	}
	return new(big.Int).Set(m.nonce), nil
}

func (m *mockAccount) FactoryData(ctx context.Context) (*account.FactoryParams, error) {
	return m.factory, nil
}

func (m *mockAccount) RequiredFactoryData(ctx context.Context) (*account.FactoryParams, error) {
	return m.factory, nil
}

func (m *mockAccount) EstimateCreationGas(ctx context.Context, fp *account.FactoryParams) (*big.Int, error) {
	if fp == nil {
		return new(big.Int), nil
	}
	return big.NewInt(m.creationGas), nil
}

func (m *mockAccount) EncodeExecute(to common.Address, value *big.Int, data []byte) ([]byte, error) {
	return simpleaccount.PackExecute(to, value, data)
}

func (m *mockAccount) SignUserOpHash(ctx context.Context, hash common.Hash) ([]byte, error) {
	m.mu.Lock()
	m.signCalls++
	m.mu.Unlock()
	return m.owner.SignMessage(hash.Bytes())
}

type fakeChain struct {
	mu        sync.Mutex
	estimates []ethereum.CallMsg
	tipCalls  int
}

func (f *fakeChain) CodeAt(ctx context.Context, contract common.Address, blockNumber *big.Int) ([]byte, error) {
	return []byte{0x60, 0x80}, nil
}

func (f *fakeChain) CallContract(ctx context.Context, call ethereum.CallMsg, blockNumber *big.Int) ([]byte, error) {
	return nil, errors.New("unexpected call")
}

func (f *fakeChain) EstimateGas(ctx context.Context, msg ethereum.CallMsg) (uint64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.estimates = append(f.estimates, msg)
	return 50000, nil
}

func (f *fakeChain) FilterLogs(ctx context.Context, q ethereum.FilterQuery) ([]types.Log, error) {
	return nil, nil
}

func (f *fakeChain) HeaderByNumber(ctx context.Context, number *big.Int) (*types.Header, error) {
	return &types.Header{Number: big.NewInt(100), BaseFee: new(big.Int).Mul(big.NewInt(10), gwei)}, nil
}

func (f *fakeChain) SuggestGasTipCap(ctx context.Context) (*big.Int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.tipCalls++
	return new(big.Int).Set(gwei), nil
}

func (f *fakeChain) ChainID(ctx context.Context) (*big.Int, error) {
	return new(big.Int).Set(chainID), nil
}

type fakePaymaster struct {
	temporary  *paymaster.Fields
	final      *paymaster.Fields
	finalErr   error
	finalInput *userop.UserOperation
}

func (p *fakePaymaster) TemporaryPaymasterData(ctx context.Context, op *userop.UserOperation) (*paymaster.Fields, error) {
	return p.temporary, nil
}

func (p *fakePaymaster) PaymasterData(ctx context.Context, op *userop.UserOperation) (*paymaster.Fields, error) {
	p.finalInput = op.Clone()
	return p.final, p.finalErr
}

type stageRecorder struct {
	mu        sync.Mutex
	stages    []string
	statuses  []string
	submitted []string
	sponsored float64
}

func (r *stageRecorder) IncRpcCall(method, status string) {}

func (r *stageRecorder) IncBuildStage(stage, status string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.stages = append(r.stages, stage)
	r.statuses = append(r.statuses, status)
}

func (r *stageRecorder) IncUserOpSubmitted(status string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.submitted = append(r.submitted, status)
}

func (r *stageRecorder) AddSponsoredGas(gas float64) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.sponsored += gas
}

func sponsorFields(fill byte) *paymaster.Fields {
	return &paymaster.Fields{
		Paymaster:                     pmAddr,
		PaymasterData:                 bytes.Repeat([]byte{fill}, 129),
		PaymasterVerificationGasLimit: big.NewInt(paymaster.DefaultVerificationGasLimit),
		PaymasterPostOpGasLimit:       big.NewInt(paymaster.DefaultPostOpGasLimit),
	}
}

func transferIntent() *TransactionDetails {
	to := target
	return &TransactionDetails{Target: &to, Value: big.NewInt(0), Data: common.FromHex("0x12345678")}
}

func assertSignedBy(t *testing.T, op *userop.UserOperation, owner common.Address) {
	t.Helper()
	hash, err := userop.Hash(op, aa.EntrypointAddress, chainID)
	require.NoError(t, err)
	recovered, err := signer.RecoverMessageSigner(hash.Bytes(), op.Signature)
	require.NoError(t, err)
	assert.Equal(t, owner, recovered)
}

func TestBuildEndToEnd(t *testing.T) {
	acct := newMockAccount(t)
	chain := &fakeChain{}
	b := &Builder{Account: acct, Chain: chain}

	op, err := b.Build(context.Background(), transferIntent())
	require.NoError(t, err)

	expectedCallData, err := simpleaccount.PackExecute(target, big.NewInt(0), common.FromHex("0x12345678"))
	require.NoError(t, err)

	assert.Equal(t, sender, op.Sender)
	assert.Equal(t, int64(7), op.Nonce.Int64())
	assert.Equal(t, expectedCallData, op.CallData)
	assert.Nil(t, op.Factory)
	assert.Empty(t, op.FactoryData)
	assert.Nil(t, op.Paymaster)
	assert.Len(t, op.Signature, 65)
	assertSignedBy(t, op, acct.owner.Address())

	assert.Equal(t, int64(50000), op.CallGasLimit.Int64())
	assert.Equal(t, int64(account.DefaultVerificationGasLimit), op.VerificationGasLimit.Int64())
	assert.Equal(t, DefaultPreVerificationGas, op.PreVerificationGas)
	// tip 1 gwei +13% is below the 2 gwei floor; max fee is 2*base + tip
	assert.Equal(t, new(big.Int).Mul(big.NewInt(2), gwei), op.MaxPriorityFeePerGas)
	assert.Equal(t, new(big.Int).Mul(big.NewInt(22), gwei), op.MaxFeePerGas)

	require.Len(t, chain.estimates, 1)
	assert.Equal(t, aa.EntrypointAddress, chain.estimates[0].From)
	assert.Equal(t, sender, *chain.estimates[0].To)
	assert.Equal(t, expectedCallData, chain.estimates[0].Data)

	again, err := b.Build(context.Background(), transferIntent())
	require.NoError(t, err)
	assert.Equal(t, op, again)
}

func TestBuildValidation(t *testing.T) {
	b := &Builder{Account: newMockAccount(t), Chain: &fakeChain{}}
	ctx := context.Background()

	_, err := b.Build(ctx, &TransactionDetails{Data: []byte{1}})
	require.Error(t, err)
	assert.True(t, aaerr.IsValidation(err))
	stage, ok := FailedStage(err)
	require.True(t, ok)
	assert.Equal(t, StageIntent, stage)

	to := target
	op, err := b.Build(ctx, &TransactionDetails{Target: &to})
	assert.Nil(t, op)
	require.Error(t, err)
	assert.True(t, aaerr.IsValidation(err))
	assert.Contains(t, err.Error(), "no-op operation")

	op, err = b.Build(ctx, &TransactionDetails{Target: &to, Value: big.NewInt(0)})
	require.NoError(t, err, "explicit zero value is not a no-op")
	assert.NotEmpty(t, op.Signature)

	_, err = b.Build(ctx, &TransactionDetails{Target: &to, Value: big.NewInt(-1)})
	assert.True(t, aaerr.IsValidation(err))
	assert.Contains(t, err.Error(), "must not be negative")

	op, err = b.Build(ctx, &TransactionDetails{Target: &to, Value: big.NewInt(1)})
	require.NoError(t, err)
	assert.NotEmpty(t, op.Signature)

	_, err = b.Build(ctx, nil)
	assert.True(t, aaerr.IsValidation(err))

	_, err = (&Builder{Chain: &fakeChain{}}).Build(ctx, transferIntent())
	assert.True(t, aaerr.IsConfiguration(err))
}

func TestBuildKeepsCallerValues(t *testing.T) {
	chain := &fakeChain{}
	b := &Builder{Account: newMockAccount(t), Chain: chain}

	intent := transferIntent()
	intent.CallGasLimit = big.NewInt(123456)
	intent.VerificationGasLimit = big.NewInt(654321)
	intent.PreVerificationGas = big.NewInt(42000)
	intent.MaxFeePerGas = big.NewInt(30)
	intent.MaxPriorityFeePerGas = big.NewInt(3)
	intent.Nonce = big.NewInt(99)

	op, err := b.Build(context.Background(), intent)
	require.NoError(t, err)

	assert.Equal(t, int64(123456), op.CallGasLimit.Int64())
	assert.Equal(t, int64(654321), op.VerificationGasLimit.Int64())
	assert.Equal(t, int64(42000), op.PreVerificationGas.Int64())
	assert.Equal(t, int64(30), op.MaxFeePerGas.Int64())
	assert.Equal(t, int64(3), op.MaxPriorityFeePerGas.Int64())
	assert.Equal(t, int64(99), op.Nonce.Int64())
	assert.Empty(t, chain.estimates)
	assert.Zero(t, chain.tipCalls, "fee data is not queried when both fees are given")

	// the caller's values are copied, not aliased
	intent.CallGasLimit.SetInt64(1)
	assert.Equal(t, int64(123456), op.CallGasLimit.Int64())
}

func TestBuildMergesPartialFees(t *testing.T) {
	b := &Builder{Account: newMockAccount(t), Chain: &fakeChain{}}
	intent := transferIntent()
	intent.MaxFeePerGas = big.NewInt(500)

	op, err := b.Build(context.Background(), intent)
	require.NoError(t, err)
	assert.Equal(t, int64(500), op.MaxFeePerGas.Int64())
	assert.Equal(t, new(big.Int).Mul(big.NewInt(2), gwei), op.MaxPriorityFeePerGas)
}

func TestBuildPhantomAccount(t *testing.T) {
	acct := newMockAccount(t)
	acct.nonce = big.NewInt(0)
	acct.creationGas = 300000
	acct.factory = &account.FactoryParams{
		Factory:     aa.SimpleAccountFactoryAddress,
		FactoryData: common.FromHex("0x5fbfb9cf"),
	}
	chain := &fakeChain{}
	b := &Builder{Account: acct, Chain: chain}

	op, err := b.Build(context.Background(), transferIntent())
	require.NoError(t, err)

	require.NotNil(t, op.Factory)
	assert.Equal(t, aa.SimpleAccountFactoryAddress, *op.Factory)
	assert.Equal(t, common.FromHex("0x5fbfb9cf"), op.FactoryData)
	assert.Equal(t, int64(400000), op.VerificationGasLimit.Int64())
	assert.Equal(t, DefaultPhantomCallGasLimit, op.CallGasLimit)
	assert.Empty(t, chain.estimates)
	assertSignedBy(t, op, acct.owner.Address())
}

func TestBuildComputedPreVerificationGas(t *testing.T) {
	b := &Builder{Account: newMockAccount(t), Chain: &fakeChain{}, ComputePreVerificationGas: true}

	op, err := b.Build(context.Background(), transferIntent())
	require.NoError(t, err)
	assert.NotEqual(t, DefaultPreVerificationGas, op.PreVerificationGas)
	assert.Greater(t, op.PreVerificationGas.Int64(), int64(21000))
}

func TestBuildResignsAfterFinalSponsorship(t *testing.T) {
	acct := newMockAccount(t)
	pm := &fakePaymaster{temporary: sponsorFields(0xff), final: sponsorFields(0x11)}
	rec := &stageRecorder{}
	b := &Builder{Account: acct, Chain: &fakeChain{}, Paymaster: pm, Metrics: rec}

	op, err := b.Build(context.Background(), transferIntent())
	require.NoError(t, err)

	require.NotNil(t, op.Paymaster)
	assert.Equal(t, pmAddr, *op.Paymaster)
	assert.Equal(t, bytes.Repeat([]byte{0x11}, 129), op.PaymasterData)
	assert.Equal(t, 2, acct.signCalls)
	assertSignedBy(t, op, acct.owner.Address())

	// the paymaster saw the estimated operation with the placeholder fields
	require.NotNil(t, pm.finalInput)
	assert.Equal(t, bytes.Repeat([]byte{0xff}, 129), pm.finalInput.PaymasterData)
	assert.Equal(t, op.PreVerificationGas, pm.finalInput.PreVerificationGas)

	assert.Equal(t, []string{
		"Intent", "Populated", "FactoryResolved", "GasEstimated",
		"TemporarilySponsored", "Hashed", "Signed", "FinallySponsored",
	}, rec.stages)
	assert.Greater(t, rec.sponsored, float64(0))
}

func TestBuildSkipsResignWhenSponsorshipUnchanged(t *testing.T) {
	acct := newMockAccount(t)
	pm := &fakePaymaster{temporary: sponsorFields(0x22), final: sponsorFields(0x22)}
	b := &Builder{Account: acct, Chain: &fakeChain{}, Paymaster: pm}

	op, err := b.Build(context.Background(), transferIntent())
	require.NoError(t, err)
	assert.Equal(t, 1, acct.signCalls)
	assertSignedBy(t, op, acct.owner.Address())
}

func TestBuildAbortsWithoutPartialResult(t *testing.T) {
	boom := errors.New("rpc unavailable")

	t.Run("nonce", func(t *testing.T) {
		acct := newMockAccount(t)
		acct.nonceErr = boom
		rec := &stageRecorder{}
		op, err := (&Builder{Account: acct, Chain: &fakeChain{}, Metrics: rec}).Build(context.Background(), transferIntent())
		assert.Nil(t, op)
		assert.ErrorIs(t, err, boom)
		stage, _ := FailedStage(err)
		assert.Equal(t, StagePopulated, stage)
		assert.Equal(t, []string{"ok", "error"}, rec.statuses)
	})

	t.Run("paymaster", func(t *testing.T) {
		acct := newMockAccount(t)
		pm := &fakePaymaster{temporary: sponsorFields(0xff), finalErr: boom}
		op, err := (&Builder{Account: acct, Chain: &fakeChain{}, Paymaster: pm}).Build(context.Background(), transferIntent())
		assert.Nil(t, op)
		assert.ErrorIs(t, err, boom)
		stage, _ := FailedStage(err)
		assert.Equal(t, StageFinallySponsored, stage)
	})
}

func TestBuildRejectsPaymasterWithoutGasLimits(t *testing.T) {
	incomplete := &paymaster.Fields{Paymaster: pmAddr, PaymasterData: []byte{1}}

	t.Run("temporary", func(t *testing.T) {
		pm := &fakePaymaster{temporary: incomplete, final: sponsorFields(0x11)}
		op, err := (&Builder{Account: newMockAccount(t), Chain: &fakeChain{}, Paymaster: pm}).Build(context.Background(), transferIntent())
		assert.Nil(t, op)
		require.Error(t, err)
		assert.True(t, aaerr.IsConfiguration(err))
		stage, _ := FailedStage(err)
		assert.Equal(t, StageTemporarilySponsored, stage)
	})

	t.Run("final", func(t *testing.T) {
		pm := &fakePaymaster{temporary: sponsorFields(0xff), final: incomplete}
		op, err := (&Builder{Account: newMockAccount(t), Chain: &fakeChain{}, Paymaster: pm}).Build(context.Background(), transferIntent())
		assert.Nil(t, op)
		require.Error(t, err)
		assert.True(t, aaerr.IsConfiguration(err))
		stage, _ := FailedStage(err)
		assert.Equal(t, StageFinallySponsored, stage)
	})
}

func TestBuildUsesNonceManager(t *testing.T) {
	acct := newMockAccount(t)
	nm := bundler.NewNonceManager(nil)
	nm.Increment(sender, big.NewInt(7))
	b := &Builder{Account: acct, Chain: &fakeChain{}, NonceManager: nm}

	op, err := b.Build(context.Background(), transferIntent())
	require.NoError(t, err)
	assert.Equal(t, int64(8), op.Nonce.Int64())
}

func TestStageString(t *testing.T) {
	assert.Equal(t, "TemporarilySponsored", StageTemporarilySponsored.String())
	assert.Equal(t, "Stage(42)", Stage(42).String())
}
