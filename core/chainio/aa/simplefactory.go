package aa

import (
	"context"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/accounts/abi/bind"
	"github.com/ethereum/go-ethereum/common"
)

const SimpleAccountFactoryABI = `[
{"inputs":[{"name":"owner","type":"address"},{"name":"salt","type":"uint256"}],"name":"createAccount","outputs":[{"name":"ret","type":"address"}],"stateMutability":"nonpayable","type":"function"},
{"inputs":[{"name":"owner","type":"address"},{"name":"salt","type":"uint256"}],"name":"getAddress","outputs":[{"name":"","type":"address"}],"stateMutability":"view","type":"function"}
]`

var simpleFactoryABI = mustParseABI("SimpleAccountFactory", SimpleAccountFactoryABI)

// SimpleAccountFactory deploys SimpleAccount proxies at CREATE2 addresses
// derived from (owner, salt).
type SimpleAccountFactory struct {
	address  common.Address
	contract *bind.BoundContract
}

func NewSimpleAccountFactory(address common.Address, caller bind.ContractCaller) *SimpleAccountFactory {
	return &SimpleAccountFactory{
		address:  address,
		contract: bind.NewBoundContract(address, simpleFactoryABI, caller, nil, nil),
	}
}

func (f *SimpleAccountFactory) Address() common.Address {
	return f.address
}

// CreateAccountCallData is the factoryData placed in a user operation.
func (f *SimpleAccountFactory) CreateAccountCallData(owner common.Address, salt *big.Int) ([]byte, error) {
	if salt == nil {
		salt = defaultSalt
	}
	return simpleFactoryABI.Pack("createAccount", owner, salt)
}

func (f *SimpleAccountFactory) GetAddress(ctx context.Context, owner common.Address, salt *big.Int) (common.Address, error) {
	if salt == nil {
		salt = defaultSalt
	}
	var out []interface{}
	if err := f.contract.Call(callOpts(ctx), &out, "getAddress", owner, salt); err != nil {
		return common.Address{}, fmt.Errorf("factory getAddress: %w", err)
	}
	return *abi.ConvertType(out[0], new(common.Address)).(*common.Address), nil
}
