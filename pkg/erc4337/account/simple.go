package account

import (
	"context"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"

	"github.com/AvaProtocol/aa-sdk/core/chainio/aa"
	"github.com/AvaProtocol/aa-sdk/core/chainio/aa/simpleaccount"
	"github.com/AvaProtocol/aa-sdk/pkg/erc4337/aaerr"
	"github.com/AvaProtocol/aa-sdk/pkg/erc4337/userop"
)

// SimpleAccount is the single owner reference account deployed by
// SimpleAccountFactory.createAccount(owner, salt).
type SimpleAccount struct {
	*base

	factory  *aa.SimpleAccountFactory
	salt     *big.Int
	nonceKey *big.Int
}

type SimpleOption func(*SimpleAccount)

func WithSalt(salt *big.Int) SimpleOption {
	return func(a *SimpleAccount) { a.salt = salt }
}

// WithNonceKey selects an EntryPoint nonce queue other than 0.
func WithNonceKey(key *big.Int) SimpleOption {
	return func(a *SimpleAccount) { a.nonceKey = key }
}

func NewSimpleAccount(cfg Config, opts ...SimpleOption) (*SimpleAccount, error) {
	if cfg.Factory == (common.Address{}) {
		cfg.Factory = aa.SimpleAccountFactoryAddress
	}
	b, err := newBase(cfg, KindSimple)
	if err != nil {
		return nil, err
	}

	a := &SimpleAccount{
		base:     b,
		factory:  aa.NewSimpleAccountFactory(cfg.Factory, cfg.Chain),
		salt:     new(big.Int),
		nonceKey: new(big.Int),
	}
	for _, opt := range opts {
		opt(a)
	}
	if a.salt == nil || a.salt.Sign() < 0 {
		return nil, aaerr.NewConfigurationError("salt must be a non-negative integer")
	}
	if _, err := userop.PackNonce(new(big.Int), a.nonceKey); err != nil {
		return nil, aaerr.NewConfigurationError("invalid nonce key: %v", err)
	}
	b.factoryData = a.FactoryData
	return a, nil
}

func (a *SimpleAccount) Kind() Kind {
	return KindSimple
}

func (a *SimpleAccount) FactoryData(ctx context.Context) (*FactoryParams, error) {
	data, err := a.factory.CreateAccountCallData(a.cfg.Owner.Address(), a.salt)
	if err != nil {
		return nil, fmt.Errorf("encode createAccount: %w", err)
	}
	return &FactoryParams{Factory: a.factory.Address(), FactoryData: data}, nil
}

// Nonce reads the EntryPoint queue selected by the nonce key. A phantom
// account starts at sequence 0 without a chain read.
func (a *SimpleAccount) Nonce(ctx context.Context) (*big.Int, error) {
	if a.CheckAccountPhantom(ctx) {
		return userop.PackNonce(new(big.Int), a.nonceKey)
	}
	addr, err := a.Address(ctx)
	if err != nil {
		return nil, err
	}
	return a.entryPoint.GetNonce(ctx, addr, a.nonceKey)
}

func (a *SimpleAccount) EncodeExecute(target common.Address, value *big.Int, data []byte) ([]byte, error) {
	return simpleaccount.PackExecute(target, value, data)
}

func (a *SimpleAccount) EncodeExecuteBatch(targets []common.Address, values []*big.Int, data [][]byte) ([]byte, error) {
	return simpleaccount.PackExecuteBatch(targets, values, data)
}

func (a *SimpleAccount) SignUserOpHash(ctx context.Context, hash common.Hash) ([]byte, error) {
	return a.signEIP191(hash)
}
