package aa

import (
	"context"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/accounts/abi/bind"
	"github.com/ethereum/go-ethereum/common"
)

const signerPermissionRequestTuple = `{"components":[
	{"name":"signer","type":"address"},
	{"name":"isAdmin","type":"uint8"},
	{"name":"approvedTargets","type":"address[]"},
	{"name":"permissionStartTimestamp","type":"uint128"},
	{"name":"permissionEndTimestamp","type":"uint128"},
	{"name":"reqValidityStartTimestamp","type":"uint128"},
	{"name":"reqValidityEndTimestamp","type":"uint128"},
	{"name":"uid","type":"bytes32"}
],"name":"req","type":"tuple"}`

const signerPermissionsComponents = `"components":[
	{"name":"signer","type":"address"},
	{"name":"approvedTargets","type":"address[]"},
	{"name":"startTimestamp","type":"uint128"},
	{"name":"endTimestamp","type":"uint128"}
]`

const AccountPermissionsABI = `[
{"inputs":[` + signerPermissionRequestTuple + `,{"name":"_signature","type":"bytes"}],"name":"setPermissionsForSigner","outputs":[],"stateMutability":"nonpayable","type":"function"},
{"inputs":[{"name":"_account","type":"address"}],"name":"isAdmin","outputs":[{"name":"","type":"bool"}],"stateMutability":"view","type":"function"},
{"inputs":[{"name":"signer","type":"address"}],"name":"isActiveSigner","outputs":[{"name":"","type":"bool"}],"stateMutability":"view","type":"function"},
{"inputs":[{"name":"signer","type":"address"}],"name":"getPermissionsForSigner","outputs":[{` + signerPermissionsComponents + `,"name":"","type":"tuple"}],"stateMutability":"view","type":"function"},
{"inputs":[],"name":"getAllSigners","outputs":[{` + signerPermissionsComponents + `,"name":"","type":"tuple[]"}],"stateMutability":"view","type":"function"},
{"inputs":[],"name":"getAllActiveSigners","outputs":[{` + signerPermissionsComponents + `,"name":"","type":"tuple[]"}],"stateMutability":"view","type":"function"},
{"inputs":[],"name":"getAllAdmins","outputs":[{"name":"","type":"address[]"}],"stateMutability":"view","type":"function"},
{"inputs":[` + signerPermissionRequestTuple + `,{"name":"signature","type":"bytes"}],"name":"verifySignerPermissionRequest","outputs":[{"name":"success","type":"bool"},{"name":"signer","type":"address"}],"stateMutability":"view","type":"function"}
]`

var accountPermissionsABI = mustParseABI("AccountPermissions", AccountPermissionsABI)

// SignerPermissionRequest matches the contract struct of the same name.
type SignerPermissionRequest struct {
	Signer                    common.Address
	IsAdmin                   uint8
	ApprovedTargets           []common.Address
	PermissionStartTimestamp  *big.Int
	PermissionEndTimestamp    *big.Int
	ReqValidityStartTimestamp *big.Int
	ReqValidityEndTimestamp   *big.Int
	Uid                       [32]byte
}

// SignerPermissions is a signer's stored permission record.
type SignerPermissions struct {
	Signer          common.Address
	ApprovedTargets []common.Address
	StartTimestamp  *big.Int
	EndTimestamp    *big.Int
}

// AccountPermissions reads the permission registry embedded in a GAccount.
type AccountPermissions struct {
	address  common.Address
	contract *bind.BoundContract
}

func NewAccountPermissions(address common.Address, caller bind.ContractCaller) *AccountPermissions {
	return &AccountPermissions{
		address:  address,
		contract: bind.NewBoundContract(address, accountPermissionsABI, caller, nil, nil),
	}
}

func (p *AccountPermissions) Address() common.Address {
	return p.address
}

// PackSetPermissionsForSigner encodes the admin-signed permission update.
// The account executes it on itself, usually through a user operation.
func PackSetPermissionsForSigner(req SignerPermissionRequest, signature []byte) ([]byte, error) {
	return accountPermissionsABI.Pack("setPermissionsForSigner", req, signature)
}

func (p *AccountPermissions) IsAdmin(ctx context.Context, account common.Address) (bool, error) {
	var out []interface{}
	if err := p.contract.Call(callOpts(ctx), &out, "isAdmin", account); err != nil {
		return false, fmt.Errorf("isAdmin: %w", err)
	}
	return *abi.ConvertType(out[0], new(bool)).(*bool), nil
}

func (p *AccountPermissions) IsActiveSigner(ctx context.Context, signer common.Address) (bool, error) {
	var out []interface{}
	if err := p.contract.Call(callOpts(ctx), &out, "isActiveSigner", signer); err != nil {
		return false, fmt.Errorf("isActiveSigner: %w", err)
	}
	return *abi.ConvertType(out[0], new(bool)).(*bool), nil
}

func (p *AccountPermissions) GetPermissionsForSigner(ctx context.Context, signer common.Address) (SignerPermissions, error) {
	var out []interface{}
	if err := p.contract.Call(callOpts(ctx), &out, "getPermissionsForSigner", signer); err != nil {
		return SignerPermissions{}, fmt.Errorf("getPermissionsForSigner: %w", err)
	}
	return *abi.ConvertType(out[0], new(SignerPermissions)).(*SignerPermissions), nil
}

func (p *AccountPermissions) GetAllSigners(ctx context.Context) ([]SignerPermissions, error) {
	return p.signerList(ctx, "getAllSigners")
}

func (p *AccountPermissions) GetAllActiveSigners(ctx context.Context) ([]SignerPermissions, error) {
	return p.signerList(ctx, "getAllActiveSigners")
}

func (p *AccountPermissions) GetAllAdmins(ctx context.Context) ([]common.Address, error) {
	var out []interface{}
	if err := p.contract.Call(callOpts(ctx), &out, "getAllAdmins"); err != nil {
		return nil, fmt.Errorf("getAllAdmins: %w", err)
	}
	return *abi.ConvertType(out[0], new([]common.Address)).(*[]common.Address), nil
}

// VerifySignerPermissionRequest returns whether signature is valid for req
// and the address recovered by the contract.
func (p *AccountPermissions) VerifySignerPermissionRequest(ctx context.Context, req SignerPermissionRequest, signature []byte) (bool, common.Address, error) {
	var out []interface{}
	if err := p.contract.Call(callOpts(ctx), &out, "verifySignerPermissionRequest", req, signature); err != nil {
		return false, common.Address{}, fmt.Errorf("verifySignerPermissionRequest: %w", err)
	}
	ok := *abi.ConvertType(out[0], new(bool)).(*bool)
	signer := *abi.ConvertType(out[1], new(common.Address)).(*common.Address)
	return ok, signer, nil
}

func (p *AccountPermissions) signerList(ctx context.Context, method string) ([]SignerPermissions, error) {
	var out []interface{}
	if err := p.contract.Call(callOpts(ctx), &out, method); err != nil {
		return nil, fmt.Errorf("%s: %w", method, err)
	}
	return *abi.ConvertType(out[0], new([]SignerPermissions)).(*[]SignerPermissions), nil
}
