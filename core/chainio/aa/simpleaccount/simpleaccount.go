// Package simpleaccount binds the execute/getNonce surface shared by
// SimpleAccount and GAccount contracts.
package simpleaccount

import (
	"context"
	"fmt"
	"math/big"
	"strings"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/accounts/abi/bind"
	"github.com/ethereum/go-ethereum/common"
)

const SimpleAccountABI = `[
{"inputs":[{"name":"dest","type":"address"},{"name":"value","type":"uint256"},{"name":"func","type":"bytes"}],"name":"execute","outputs":[],"stateMutability":"nonpayable","type":"function"},
{"inputs":[{"name":"dest","type":"address[]"},{"name":"value","type":"uint256[]"},{"name":"func","type":"bytes[]"}],"name":"executeBatch","outputs":[],"stateMutability":"nonpayable","type":"function"},
{"inputs":[],"name":"getNonce","outputs":[{"name":"","type":"uint256"}],"stateMutability":"view","type":"function"},
{"inputs":[],"name":"entryPoint","outputs":[{"name":"","type":"address"}],"stateMutability":"view","type":"function"}
]`

var accountABI abi.ABI

func init() {
	var err error
	accountABI, err = abi.JSON(strings.NewReader(SimpleAccountABI))
	if err != nil {
		panic(fmt.Errorf("invalid account ABI: %w", err))
	}
}

// PackExecute encodes execute(dest, value, func).
func PackExecute(target common.Address, value *big.Int, calldata []byte) ([]byte, error) {
	if value == nil {
		value = new(big.Int)
	}
	if calldata == nil {
		calldata = []byte{}
	}
	return accountABI.Pack("execute", target, value, calldata)
}

// PackExecuteBatch encodes executeBatch(dest[], value[], func[]).
func PackExecuteBatch(targets []common.Address, values []*big.Int, calldata [][]byte) ([]byte, error) {
	if len(targets) != len(calldata) || (len(values) != 0 && len(values) != len(targets)) {
		return nil, fmt.Errorf("executeBatch: %d targets, %d values, %d calls", len(targets), len(values), len(calldata))
	}
	if values == nil {
		values = []*big.Int{}
	}
	return accountABI.Pack("executeBatch", targets, values, calldata)
}

// Account is a read-only handle on a deployed account contract.
type Account struct {
	address  common.Address
	contract *bind.BoundContract
}

func New(address common.Address, caller bind.ContractCaller) *Account {
	return &Account{
		address:  address,
		contract: bind.NewBoundContract(address, accountABI, caller, nil, nil),
	}
}

func (a *Account) GetNonce(ctx context.Context) (*big.Int, error) {
	var out []interface{}
	if err := a.contract.Call(&bind.CallOpts{Context: ctx}, &out, "getNonce"); err != nil {
		return nil, fmt.Errorf("account getNonce: %w", err)
	}
	return *abi.ConvertType(out[0], new(*big.Int)).(**big.Int), nil
}

func (a *Account) EntryPoint(ctx context.Context) (common.Address, error) {
	var out []interface{}
	if err := a.contract.Call(&bind.CallOpts{Context: ctx}, &out, "entryPoint"); err != nil {
		return common.Address{}, fmt.Errorf("account entryPoint: %w", err)
	}
	return *abi.ConvertType(out[0], new(common.Address)).(*common.Address), nil
}
