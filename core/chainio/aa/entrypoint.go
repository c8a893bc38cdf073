package aa

import (
	"context"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/accounts/abi/bind"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"

	"github.com/AvaProtocol/aa-sdk/pkg/erc4337/userop"
)

const packedUserOpTuple = `{"components":[
	{"name":"sender","type":"address"},
	{"name":"nonce","type":"uint256"},
	{"name":"initCode","type":"bytes"},
	{"name":"callData","type":"bytes"},
	{"name":"accountGasLimits","type":"bytes32"},
	{"name":"preVerificationGas","type":"uint256"},
	{"name":"gasFees","type":"bytes32"},
	{"name":"paymasterAndData","type":"bytes"},
	{"name":"signature","type":"bytes"}
],"internalType":"struct PackedUserOperation","name":"userOp","type":"tuple"}`

// EntryPointABI is the subset of the v0.7 EntryPoint used by the SDK.
const EntryPointABI = `[
{"inputs":[{"name":"sender","type":"address"},{"name":"key","type":"uint192"}],"name":"getNonce","outputs":[{"name":"nonce","type":"uint256"}],"stateMutability":"view","type":"function"},
{"inputs":[` + packedUserOpTuple + `],"name":"getUserOpHash","outputs":[{"name":"","type":"bytes32"}],"stateMutability":"view","type":"function"},
{"inputs":[{"name":"account","type":"address"}],"name":"balanceOf","outputs":[{"name":"","type":"uint256"}],"stateMutability":"view","type":"function"},
{"anonymous":false,"inputs":[
	{"indexed":true,"name":"userOpHash","type":"bytes32"},
	{"indexed":true,"name":"sender","type":"address"},
	{"indexed":true,"name":"paymaster","type":"address"},
	{"indexed":false,"name":"nonce","type":"uint256"},
	{"indexed":false,"name":"success","type":"bool"},
	{"indexed":false,"name":"actualGasCost","type":"uint256"},
	{"indexed":false,"name":"actualGasUsed","type":"uint256"}
],"name":"UserOperationEvent","type":"event"}
]`

var entryPointABI = mustParseABI("EntryPoint", EntryPointABI)

// UserOperationEventTopic is topic0 of UserOperationEvent.
var UserOperationEventTopic = entryPointABI.Events["UserOperationEvent"].ID

// EntryPoint is a read-only handle on the EntryPoint contract.
type EntryPoint struct {
	address  common.Address
	contract *bind.BoundContract
}

func NewEntryPoint(address common.Address, caller bind.ContractCaller) *EntryPoint {
	return &EntryPoint{
		address:  address,
		contract: bind.NewBoundContract(address, entryPointABI, caller, nil, nil),
	}
}

func (e *EntryPoint) Address() common.Address {
	return e.address
}

// GetNonce returns key<<64 | sequence for the sender's nonce queue.
func (e *EntryPoint) GetNonce(ctx context.Context, sender common.Address, key *big.Int) (*big.Int, error) {
	if key == nil {
		key = new(big.Int)
	}
	var out []interface{}
	if err := e.contract.Call(callOpts(ctx), &out, "getNonce", sender, key); err != nil {
		return nil, fmt.Errorf("entrypoint getNonce: %w", err)
	}
	return *abi.ConvertType(out[0], new(*big.Int)).(**big.Int), nil
}

// GetUserOpHash asks the contract for the hash; useful to cross-check the
// off-chain computation.
func (e *EntryPoint) GetUserOpHash(ctx context.Context, op userop.PackedUserOperation) (common.Hash, error) {
	var out []interface{}
	if err := e.contract.Call(callOpts(ctx), &out, "getUserOpHash", op); err != nil {
		return common.Hash{}, fmt.Errorf("entrypoint getUserOpHash: %w", err)
	}
	return common.Hash(*abi.ConvertType(out[0], new([32]byte)).(*[32]byte)), nil
}

// BalanceOf returns the deposit held by account.
func (e *EntryPoint) BalanceOf(ctx context.Context, account common.Address) (*big.Int, error) {
	var out []interface{}
	if err := e.contract.Call(callOpts(ctx), &out, "balanceOf", account); err != nil {
		return nil, fmt.Errorf("entrypoint balanceOf: %w", err)
	}
	return *abi.ConvertType(out[0], new(*big.Int)).(**big.Int), nil
}

// UserOperationEvent is a decoded EntryPoint UserOperationEvent log.
type UserOperationEvent struct {
	UserOpHash    common.Hash
	Sender        common.Address
	Paymaster     common.Address
	Nonce         *big.Int
	Success       bool
	ActualGasCost *big.Int
	ActualGasUsed *big.Int

	TxHash      common.Hash
	BlockNumber uint64
}

func ParseUserOperationEvent(log types.Log) (*UserOperationEvent, error) {
	if len(log.Topics) != 4 || log.Topics[0] != UserOperationEventTopic {
		return nil, fmt.Errorf("log %s is not a UserOperationEvent", log.TxHash.Hex())
	}
	values, err := entryPointABI.Events["UserOperationEvent"].Inputs.NonIndexed().Unpack(log.Data)
	if err != nil {
		return nil, fmt.Errorf("decode UserOperationEvent: %w", err)
	}
	if len(values) != 4 {
		return nil, fmt.Errorf("decode UserOperationEvent: expected 4 values, got %d", len(values))
	}

	return &UserOperationEvent{
		UserOpHash:    log.Topics[1],
		Sender:        common.BytesToAddress(log.Topics[2].Bytes()),
		Paymaster:     common.BytesToAddress(log.Topics[3].Bytes()),
		Nonce:         values[0].(*big.Int),
		Success:       values[1].(bool),
		ActualGasCost: values[2].(*big.Int),
		ActualGasUsed: values[3].(*big.Int),
		TxHash:        log.TxHash,
		BlockNumber:   log.BlockNumber,
	}, nil
}
