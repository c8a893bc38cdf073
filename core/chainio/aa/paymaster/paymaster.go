// Package paymaster binds the v0.7 VerifyingPaymaster.
package paymaster

import (
	"context"
	"fmt"
	"math/big"
	"strings"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/accounts/abi/bind"
	"github.com/ethereum/go-ethereum/common"

	"github.com/AvaProtocol/aa-sdk/pkg/erc4337/userop"
)

const VerifyingPaymasterABI = `[
{"inputs":[{"components":[
	{"name":"sender","type":"address"},
	{"name":"nonce","type":"uint256"},
	{"name":"initCode","type":"bytes"},
	{"name":"callData","type":"bytes"},
	{"name":"accountGasLimits","type":"bytes32"},
	{"name":"preVerificationGas","type":"uint256"},
	{"name":"gasFees","type":"bytes32"},
	{"name":"paymasterAndData","type":"bytes"},
	{"name":"signature","type":"bytes"}
],"name":"userOp","type":"tuple"},{"name":"validUntil","type":"uint48"},{"name":"validAfter","type":"uint48"}],
"name":"getHash","outputs":[{"name":"","type":"bytes32"}],"stateMutability":"view","type":"function"},
{"inputs":[],"name":"verifyingSigner","outputs":[{"name":"","type":"address"}],"stateMutability":"view","type":"function"},
{"inputs":[],"name":"getDeposit","outputs":[{"name":"","type":"uint256"}],"stateMutability":"view","type":"function"}
]`

var paymasterABI abi.ABI

func init() {
	var err error
	paymasterABI, err = abi.JSON(strings.NewReader(VerifyingPaymasterABI))
	if err != nil {
		panic(fmt.Errorf("invalid paymaster ABI: %w", err))
	}
}

type VerifyingPaymaster struct {
	address  common.Address
	contract *bind.BoundContract
}

func NewVerifyingPaymaster(address common.Address, caller bind.ContractCaller) *VerifyingPaymaster {
	return &VerifyingPaymaster{
		address:  address,
		contract: bind.NewBoundContract(address, paymasterABI, caller, nil, nil),
	}
}

func (p *VerifyingPaymaster) Address() common.Address {
	return p.address
}

// GetHash returns the digest the off-chain signer must sign for op.
func (p *VerifyingPaymaster) GetHash(ctx context.Context, op userop.PackedUserOperation, validUntil, validAfter uint64) (common.Hash, error) {
	var out []interface{}
	err := p.contract.Call(&bind.CallOpts{Context: ctx}, &out, "getHash", op,
		new(big.Int).SetUint64(validUntil), new(big.Int).SetUint64(validAfter))
	if err != nil {
		return common.Hash{}, fmt.Errorf("paymaster getHash: %w", err)
	}
	return common.Hash(*abi.ConvertType(out[0], new([32]byte)).(*[32]byte)), nil
}

// VerifyingSigner returns the address the contract expects signatures from.
func (p *VerifyingPaymaster) VerifyingSigner(ctx context.Context) (common.Address, error) {
	var out []interface{}
	if err := p.contract.Call(&bind.CallOpts{Context: ctx}, &out, "verifyingSigner"); err != nil {
		return common.Address{}, fmt.Errorf("paymaster verifyingSigner: %w", err)
	}
	return *abi.ConvertType(out[0], new(common.Address)).(*common.Address), nil
}

func (p *VerifyingPaymaster) GetDeposit(ctx context.Context) (*big.Int, error) {
	var out []interface{}
	if err := p.contract.Call(&bind.CallOpts{Context: ctx}, &out, "getDeposit"); err != nil {
		return nil, fmt.Errorf("paymaster getDeposit: %w", err)
	}
	return *abi.ConvertType(out[0], new(*big.Int)).(**big.Int), nil
}
