package account

import (
	"context"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/AvaProtocol/aa-sdk/core/chainio/signer"
	"github.com/AvaProtocol/aa-sdk/pkg/erc4337/aaerr"
)

func TestNewPermissionRequestDefaults(t *testing.T) {
	now := time.Unix(1_700_000_000, 0)
	target := common.HexToAddress("0x00000000000000000000000000000000000000b0")
	dapp := common.HexToAddress("0x00000000000000000000000000000000000000d0")

	req, err := NewPermissionRequest(PermissionOptions{
		TargetSigner:    target,
		ApprovedTargets: []common.Address{dapp, dapp},
	}, now)
	require.NoError(t, err)

	assert.Equal(t, target, req.Signer)
	assert.Equal(t, RoleSigner, req.IsAdmin)
	assert.Equal(t, []common.Address{dapp}, req.ApprovedTargets)
	assert.Equal(t, int64(1_700_000_000), req.PermissionStartTimestamp.Int64())
	assert.Equal(t, int64(0), req.PermissionEndTimestamp.Int64())
	assert.Equal(t, int64(0), req.ReqValidityStartTimestamp.Int64())
	assert.Equal(t, int64(1_700_003_600), req.ReqValidityEndTimestamp.Int64())

	uid, err := PermissionRequestUID(req)
	require.NoError(t, err)
	assert.Equal(t, uid, req.Uid)
}

func TestPermissionRequestUIDChangesWithFields(t *testing.T) {
	now := time.Unix(1_700_000_000, 0)
	a, err := NewPermissionRequest(PermissionOptions{TargetSigner: common.Address{1}}, now)
	require.NoError(t, err)
	b, err := NewPermissionRequest(PermissionOptions{TargetSigner: common.Address{1}, Role: RoleAdmin}, now)
	require.NoError(t, err)
	assert.NotEqual(t, a.Uid, b.Uid)
}

func TestNewPermissionRequestRequiresSigner(t *testing.T) {
	_, err := NewPermissionRequest(PermissionOptions{}, time.Now())
	assert.True(t, aaerr.IsValidation(err))
}

func TestSignPermissionRequest(t *testing.T) {
	chain := newFakeChain()
	g, err := NewGAccount(Config{Chain: chain, Factory: gFactoryAddr, Owner: testOwner(t)}, "", "w")
	require.NoError(t, err)

	req, err := NewPermissionRequest(PermissionOptions{TargetSigner: common.Address{9}}, time.Unix(1_700_000_000, 0))
	require.NoError(t, err)

	sig, err := g.SignPermissionRequest(context.Background(), req, nil)
	require.NoError(t, err)

	chainID, _ := chain.ChainID(context.Background())
	who, err := signer.RecoverTypedDataSigner(PermissionTypedData(req, chainID, counterfactual), sig)
	require.NoError(t, err)
	assert.Equal(t, testOwner(t).Address(), who)
}

func TestAddSigner(t *testing.T) {
	chain := newFakeChain()
	g, err := NewGAccount(Config{Chain: chain, Factory: gFactoryAddr, Owner: testOwner(t)}, "", "w")
	require.NoError(t, err)

	update, err := g.AddSigner(context.Background(), common.Address{9}, []common.Address{{7}}, nil)
	require.NoError(t, err)

	assert.Equal(t, counterfactual, update.Target)
	assert.Len(t, update.Signature, 65)
	selector := crypto.Keccak256([]byte("setPermissionsForSigner((address,uint8,address[],uint128,uint128,uint128,uint128,bytes32),bytes)"))[:4]
	assert.Equal(t, selector, update.Data[:4])
}
