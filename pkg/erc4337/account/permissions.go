package account

import (
	"context"
	"fmt"
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/common/math"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/signer/core/apitypes"
	"github.com/samber/lo"

	"github.com/AvaProtocol/aa-sdk/core/chainio/aa"
	"github.com/AvaProtocol/aa-sdk/core/chainio/signer"
	"github.com/AvaProtocol/aa-sdk/pkg/erc4337/aaerr"
	"github.com/AvaProtocol/aa-sdk/pkg/erc4337/abischema"
)

const (
	// Values of SignerPermissionRequest.IsAdmin.
	RoleSigner      uint8 = 0
	RoleAdmin       uint8 = 1
	RoleRemoveAdmin uint8 = 2

	DefaultRequestValidity = time.Hour
)

var permissionUIDSchema = abischema.MustParse("address signer, uint8 isAdmin, address[] approvedTargets, " +
	"uint128 permissionStartTimestamp, uint128 permissionEndTimestamp, " +
	"uint128 reqValidityStartTimestamp, uint128 reqValidityEndTimestamp")

var permissionRequestType = []apitypes.Type{
	{Name: "signer", Type: "address"},
	{Name: "isAdmin", Type: "uint8"},
	{Name: "approvedTargets", Type: "address[]"},
	{Name: "permissionStartTimestamp", Type: "uint128"},
	{Name: "permissionEndTimestamp", Type: "uint128"},
	{Name: "reqValidityStartTimestamp", Type: "uint128"},
	{Name: "reqValidityEndTimestamp", Type: "uint128"},
	{Name: "uid", Type: "bytes32"},
}

// PermissionOptions describe a permission change. Zero timestamps take the
// defaults: permissions start now and never end, the request is valid from
// epoch 0 until now+RequestValidity.
type PermissionOptions struct {
	TargetSigner    common.Address
	Role            uint8
	ApprovedTargets []common.Address
	PermissionStart uint64
	PermissionEnd   uint64
	RequestValidity time.Duration
}

// NewPermissionRequest fills defaults relative to now and derives the uid.
func NewPermissionRequest(opts PermissionOptions, now time.Time) (aa.SignerPermissionRequest, error) {
	if opts.TargetSigner == (common.Address{}) {
		return aa.SignerPermissionRequest{}, aaerr.NewValidationError("targetSigner", "required")
	}
	ts := uint64(now.Unix())
	validity := opts.RequestValidity
	if validity <= 0 {
		validity = DefaultRequestValidity
	}

	req := aa.SignerPermissionRequest{
		Signer:                    opts.TargetSigner,
		IsAdmin:                   opts.Role,
		ApprovedTargets:           lo.Uniq(append([]common.Address{}, opts.ApprovedTargets...)),
		PermissionStartTimestamp:  new(big.Int).SetUint64(lo.Ternary(opts.PermissionStart == 0, ts, opts.PermissionStart)),
		PermissionEndTimestamp:    new(big.Int).SetUint64(opts.PermissionEnd),
		ReqValidityStartTimestamp: new(big.Int),
		ReqValidityEndTimestamp:   new(big.Int).SetUint64(ts + uint64(validity/time.Second)),
	}
	uid, err := PermissionRequestUID(req)
	if err != nil {
		return aa.SignerPermissionRequest{}, err
	}
	req.Uid = uid
	return req, nil
}

// PermissionRequestUID is keccak256 of the abi encoded request without uid.
func PermissionRequestUID(req aa.SignerPermissionRequest) ([32]byte, error) {
	encoded, err := permissionUIDSchema.Encode(
		req.Signer,
		req.IsAdmin,
		req.ApprovedTargets,
		req.PermissionStartTimestamp,
		req.PermissionEndTimestamp,
		req.ReqValidityStartTimestamp,
		req.ReqValidityEndTimestamp,
	)
	if err != nil {
		return [32]byte{}, fmt.Errorf("encode permission request: %w", err)
	}
	return crypto.Keccak256Hash(encoded), nil
}

// PermissionTypedData is the EIP-712 payload the account contract verifies,
// under domain {name: "Account", version: "1"}.
func PermissionTypedData(req aa.SignerPermissionRequest, chainID *big.Int, account common.Address) apitypes.TypedData {
	targets := lo.Map(req.ApprovedTargets, func(a common.Address, _ int) interface{} {
		return a.Hex()
	})

	return apitypes.TypedData{
		Types: apitypes.Types{
			"EIP712Domain": {
				{Name: "name", Type: "string"},
				{Name: "version", Type: "string"},
				{Name: "chainId", Type: "uint256"},
				{Name: "verifyingContract", Type: "address"},
			},
			"SignerPermissionRequest": permissionRequestType,
		},
		PrimaryType: "SignerPermissionRequest",
		Domain: apitypes.TypedDataDomain{
			Name:              "Account",
			Version:           "1",
			ChainId:           (*math.HexOrDecimal256)(new(big.Int).Set(chainID)),
			VerifyingContract: account.Hex(),
		},
		Message: apitypes.TypedDataMessage{
			"signer":                    req.Signer.Hex(),
			"isAdmin":                   new(big.Int).SetUint64(uint64(req.IsAdmin)),
			"approvedTargets":           targets,
			"permissionStartTimestamp":  orZeroBig(req.PermissionStartTimestamp),
			"permissionEndTimestamp":    orZeroBig(req.PermissionEndTimestamp),
			"reqValidityStartTimestamp": orZeroBig(req.ReqValidityStartTimestamp),
			"reqValidityEndTimestamp":   orZeroBig(req.ReqValidityEndTimestamp),
			"uid":                       hexutil.Encode(req.Uid[:]),
		},
	}
}

// SignPermissionRequest signs req for this account. admin defaults to the
// account owner.
func (g *GAccount) SignPermissionRequest(ctx context.Context, req aa.SignerPermissionRequest, admin signer.Signer) ([]byte, error) {
	if admin == nil {
		admin = g.cfg.Owner
	}
	chainID, err := g.cfg.Chain.ChainID(ctx)
	if err != nil {
		return nil, fmt.Errorf("get chain id: %w", err)
	}
	addr, err := g.Address(ctx)
	if err != nil {
		return nil, err
	}
	return signer.SignTypedData(admin, PermissionTypedData(req, chainID, addr))
}

// PermissionUpdate is a signed setPermissionsForSigner call. The account
// executes it on itself, so Target is the account address.
type PermissionUpdate struct {
	Request   aa.SignerPermissionRequest
	Signature []byte
	Target    common.Address
	Data      []byte
}

// SetPermissions builds and signs a permission change ready to be sent as a
// user operation intent.
func (g *GAccount) SetPermissions(ctx context.Context, opts PermissionOptions, admin signer.Signer) (*PermissionUpdate, error) {
	req, err := NewPermissionRequest(opts, time.Now())
	if err != nil {
		return nil, err
	}
	sig, err := g.SignPermissionRequest(ctx, req, admin)
	if err != nil {
		return nil, err
	}
	data, err := aa.PackSetPermissionsForSigner(req, sig)
	if err != nil {
		return nil, fmt.Errorf("encode setPermissionsForSigner: %w", err)
	}
	addr, err := g.Address(ctx)
	if err != nil {
		return nil, err
	}
	return &PermissionUpdate{Request: req, Signature: sig, Target: addr, Data: data}, nil
}

// AddSigner grants a regular signer access to targets.
func (g *GAccount) AddSigner(ctx context.Context, who common.Address, targets []common.Address, admin signer.Signer) (*PermissionUpdate, error) {
	return g.SetPermissions(ctx, PermissionOptions{TargetSigner: who, Role: RoleSigner, ApprovedTargets: targets}, admin)
}

func orZeroBig(v *big.Int) *big.Int {
	if v == nil {
		return new(big.Int)
	}
	return v
}
