package aa

import (
	"context"
	"fmt"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/accounts/abi/bind"
	"github.com/ethereum/go-ethereum/common"

	"github.com/AvaProtocol/aa-sdk/pkg/erc4337/abischema"
)

const GAccountFactoryABI = `[
{"inputs":[{"name":"_admin","type":"address"},{"name":"_data","type":"bytes"}],"name":"createAccount","outputs":[{"name":"","type":"address"}],"stateMutability":"nonpayable","type":"function"},
{"inputs":[{"name":"_adminSigner","type":"address"},{"name":"_data","type":"bytes"}],"name":"getAddress","outputs":[{"name":"","type":"address"}],"stateMutability":"view","type":"function"}
]`

var (
	gAccountFactoryABI = mustParseABI("GAccountFactory", GAccountFactoryABI)

	gAccountInitSchema = abischema.MustParse("address factory, address projectApiKey, string walletId")
)

// GAccountFactory deploys permissioned multi-signer accounts.
type GAccountFactory struct {
	address  common.Address
	contract *bind.BoundContract
}

func NewGAccountFactory(address common.Address, caller bind.ContractCaller) *GAccountFactory {
	return &GAccountFactory{
		address:  address,
		contract: bind.NewBoundContract(address, gAccountFactoryABI, caller, nil, nil),
	}
}

func (f *GAccountFactory) Address() common.Address {
	return f.address
}

// InitData is the account specific blob passed to createAccount:
// abi.encode(factory, projectApiKey, walletId).
func (f *GAccountFactory) InitData(projectAPIKey common.Address, walletID string) ([]byte, error) {
	return gAccountInitSchema.Encode(f.address, projectAPIKey, walletID)
}

func (f *GAccountFactory) CreateAccountCallData(admin common.Address, initData []byte) ([]byte, error) {
	return gAccountFactoryABI.Pack("createAccount", admin, initData)
}

func (f *GAccountFactory) GetAddress(ctx context.Context, admin common.Address, initData []byte) (common.Address, error) {
	var out []interface{}
	if err := f.contract.Call(callOpts(ctx), &out, "getAddress", admin, initData); err != nil {
		return common.Address{}, fmt.Errorf("gaccount factory getAddress: %w", err)
	}
	return *abi.ConvertType(out[0], new(common.Address)).(*common.Address), nil
}
