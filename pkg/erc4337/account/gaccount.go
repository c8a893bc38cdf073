package account

import (
	"context"
	"fmt"
	"math/big"
	"strings"

	"github.com/ethereum/go-ethereum/common"

	"github.com/AvaProtocol/aa-sdk/core/chainio/aa"
	"github.com/AvaProtocol/aa-sdk/core/chainio/aa/simpleaccount"
	"github.com/AvaProtocol/aa-sdk/pkg/erc4337/aaerr"
)

// GAccount is the permissioned account deployed by GAccountFactory. Its
// address is derived from the admin, the project API key and the wallet id.
type GAccount struct {
	*base

	factory       *aa.GAccountFactory
	projectAPIKey common.Address
	walletID      string
}

// NewGAccount requires an explicit factory. projectAPIKey may omit the 0x
// prefix.
func NewGAccount(cfg Config, projectAPIKey, walletID string) (*GAccount, error) {
	if cfg.Factory == (common.Address{}) && cfg.AccountAddress == nil {
		return nil, aaerr.NewConfigurationError("no factory to get initCode")
	}
	b, err := newBase(cfg, KindGAccount)
	if err != nil {
		return nil, err
	}

	key := projectAPIKey
	if key != "" && !strings.HasPrefix(key, "0x") {
		key = "0x" + key
	}
	if key != "" && !common.IsHexAddress(key) {
		return nil, aaerr.NewConfigurationError("project API key %q is not a 20 byte hex value", projectAPIKey)
	}

	g := &GAccount{
		base:          b,
		factory:       aa.NewGAccountFactory(cfg.Factory, cfg.Chain),
		projectAPIKey: common.HexToAddress(key),
		walletID:      walletID,
	}
	b.factoryData = g.FactoryData
	return g, nil
}

func (g *GAccount) Kind() Kind {
	return KindGAccount
}

func (g *GAccount) FactoryData(ctx context.Context) (*FactoryParams, error) {
	if g.factory.Address() == (common.Address{}) {
		return nil, aaerr.NewConfigurationError("no factory to get initCode")
	}
	initData, err := g.factory.InitData(g.projectAPIKey, g.walletID)
	if err != nil {
		return nil, fmt.Errorf("encode account init data: %w", err)
	}
	data, err := g.factory.CreateAccountCallData(g.cfg.Owner.Address(), initData)
	if err != nil {
		return nil, fmt.Errorf("encode createAccount: %w", err)
	}
	return &FactoryParams{Factory: g.factory.Address(), FactoryData: data}, nil
}

// Nonce is read from the account contract itself; a phantom account is at 0.
func (g *GAccount) Nonce(ctx context.Context) (*big.Int, error) {
	if g.CheckAccountPhantom(ctx) {
		return new(big.Int), nil
	}
	addr, err := g.Address(ctx)
	if err != nil {
		return nil, err
	}
	return simpleaccount.New(addr, g.cfg.Chain).GetNonce(ctx)
}

func (g *GAccount) EncodeExecute(target common.Address, value *big.Int, data []byte) ([]byte, error) {
	return simpleaccount.PackExecute(target, value, data)
}

func (g *GAccount) SignUserOpHash(ctx context.Context, hash common.Hash) ([]byte, error) {
	return g.signEIP191(hash)
}

// Permissions binds the permission registry of this account.
func (g *GAccount) Permissions(ctx context.Context) (*aa.AccountPermissions, error) {
	addr, err := g.Address(ctx)
	if err != nil {
		return nil, err
	}
	return aa.NewAccountPermissions(addr, g.cfg.Chain), nil
}
