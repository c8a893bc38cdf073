// Package account resolves smart account state (address, nonce, deployment
// data) and encodes and signs on the account's behalf.
//
// Each account variant is a value implementing Account. Variants share the
// chain facing logic in base and differ in factory data, nonce source, call
// encoding and signature scheme.
package account

import (
	"context"
	"fmt"
	"math/big"
	"sync"

	ethereum "github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"

	"github.com/AvaProtocol/aa-sdk/core/chainio/aa"
	"github.com/AvaProtocol/aa-sdk/core/chainio/signer"
	"github.com/AvaProtocol/aa-sdk/pkg/erc4337/aaerr"
	"github.com/AvaProtocol/aa-sdk/pkg/erc4337/abischema"
	"github.com/AvaProtocol/aa-sdk/pkg/logger"
)

type Kind int

const (
	KindSimple Kind = iota + 1
	KindGAccount
)

func (k Kind) String() string {
	switch k {
	case KindSimple:
		return "simple"
	case KindGAccount:
		return "gaccount"
	}
	return fmt.Sprintf("kind(%d)", int(k))
}

// DefaultVerificationGasLimit is the validation budget of a deployed account.
const DefaultVerificationGasLimit = 100000

// FactoryParams is the deployment instruction for a phantom account.
type FactoryParams struct {
	Factory     common.Address
	FactoryData []byte
}

// Account is the capability set the builder needs from a smart account.
type Account interface {
	Kind() Kind
	EntryPoint() common.Address
	Address(ctx context.Context) (common.Address, error)
	Nonce(ctx context.Context) (*big.Int, error)
	// FactoryData returns deployment data regardless of deployment status.
	FactoryData(ctx context.Context) (*FactoryParams, error)
	// RequiredFactoryData returns nil once the account has code.
	RequiredFactoryData(ctx context.Context) (*FactoryParams, error)
	EstimateCreationGas(ctx context.Context, fp *FactoryParams) (*big.Int, error)
	EncodeExecute(target common.Address, value *big.Int, data []byte) ([]byte, error)
	SignUserOpHash(ctx context.Context, hash common.Hash) ([]byte, error)
	VerificationGasLimit() *big.Int
}

// Config wires an account to the chain.
type Config struct {
	Chain      aa.ChainClient
	EntryPoint common.Address
	// Factory is required unless AccountAddress is set and already deployed.
	Factory common.Address
	// AccountAddress skips counterfactual resolution.
	AccountAddress *common.Address
	Owner          signer.Signer
	Logger         logger.Logger
	// VerificationGas overrides DefaultVerificationGasLimit.
	VerificationGas *big.Int
	// ReceiptLookback bounds the block range scanned for UserOperationEvent.
	ReceiptLookback uint64
	// AddressCache shares resolved counterfactual addresses between adapters.
	AddressCache *AddressCache
}

// cacheRecord holds lazily resolved values. A nil field is "not resolved".
type cacheRecord struct {
	mu      sync.Mutex
	address *common.Address
	phantom *bool
}

func (c *cacheRecord) getAddress() (common.Address, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.address == nil {
		return common.Address{}, false
	}
	return *c.address, true
}

func (c *cacheRecord) setAddress(a common.Address) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.address = &a
}

func (c *cacheRecord) setPhantom(p bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.phantom = &p
}

// Phantom returns the last observed phantom status, if any.
func (c *cacheRecord) Phantom() (bool, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.phantom == nil {
		return false, false
	}
	return *c.phantom, true
}

var addressSchema = abischema.MustParse("address")

type base struct {
	cfg        Config
	entryPoint *aa.EntryPoint
	log        logger.Logger
	cache      cacheRecord

	factoryData func(ctx context.Context) (*FactoryParams, error)
}

func newBase(cfg Config, kind Kind) (*base, error) {
	if cfg.Chain == nil {
		return nil, aaerr.NewConfigurationError("chain client is required")
	}
	if cfg.Owner == nil {
		return nil, aaerr.NewConfigurationError("owner signer is required")
	}
	if cfg.EntryPoint == (common.Address{}) {
		cfg.EntryPoint = aa.EntrypointAddress
	}
	if cfg.ReceiptLookback == 0 {
		cfg.ReceiptLookback = 1000
	}
	return &base{
		cfg:        cfg,
		entryPoint: aa.NewEntryPoint(cfg.EntryPoint, cfg.Chain),
		log:        logger.EnsureLogger(cfg.Logger).With("component", "account", "kind", kind.String()),
	}, nil
}

func (b *base) EntryPoint() common.Address {
	return b.cfg.EntryPoint
}

// Owner is the key that signs for the account.
func (b *base) Owner() signer.Signer {
	return b.cfg.Owner
}

// Init verifies the EntryPoint is deployed and resolves the address.
func (b *base) Init(ctx context.Context) error {
	code, err := b.cfg.Chain.CodeAt(ctx, b.cfg.EntryPoint, nil)
	if err != nil {
		return fmt.Errorf("get entrypoint code: %w", err)
	}
	if !aa.IsDeployed(code) {
		return aaerr.NewConfigurationError("entryPoint not deployed at %s", b.cfg.EntryPoint.Hex())
	}
	_, err = b.Address(ctx)
	return err
}

// Address returns the configured address or the counterfactual one,
// resolving at most once per adapter.
func (b *base) Address(ctx context.Context) (common.Address, error) {
	if addr, ok := b.cache.getAddress(); ok {
		return addr, nil
	}
	if b.cfg.AccountAddress != nil {
		b.cache.setAddress(*b.cfg.AccountAddress)
		return *b.cfg.AccountAddress, nil
	}

	addr, err := b.CounterfactualAddress(ctx)
	if err != nil {
		return common.Address{}, err
	}
	b.cache.setAddress(addr)
	return addr, nil
}

// CounterfactualAddress simulates the factory call and decodes the returned
// address.
func (b *base) CounterfactualAddress(ctx context.Context) (common.Address, error) {
	fp, err := b.factoryData(ctx)
	if err != nil {
		return common.Address{}, err
	}
	if fp == nil {
		return common.Address{}, aaerr.NewConfigurationError("no counterfactual address without a factory")
	}

	if b.cfg.AddressCache != nil {
		if addr, ok := b.cfg.AddressCache.Get(fp); ok {
			return addr, nil
		}
	}

	factory := fp.Factory
	ret, err := b.cfg.Chain.CallContract(ctx, ethereum.CallMsg{To: &factory, Data: fp.FactoryData}, nil)
	if err != nil {
		return common.Address{}, fmt.Errorf("simulate factory call: %w", err)
	}
	values, err := addressSchema.Decode(ret)
	if err != nil {
		return common.Address{}, fmt.Errorf("decode factory result: %w", err)
	}
	addr := values[0].(common.Address)

	if b.cfg.AddressCache != nil {
		b.cfg.AddressCache.Set(fp, addr)
	}
	b.log.Debug("resolved counterfactual address", "address", addr.Hex(), "factory", factory.Hex())
	return addr, nil
}

// CheckAccountPhantom reports whether the account has no code. Any failure
// is logged and reported as phantom so deployment is attempted. Once the
// account has been seen deployed the chain is not asked again.
func (b *base) CheckAccountPhantom(ctx context.Context) bool {
	if phantom, known := b.cache.Phantom(); known && !phantom {
		return false
	}
	addr, err := b.Address(ctx)
	if err != nil {
		b.log.Warn("cannot resolve account address, assuming phantom", "err", err)
		return true
	}
	code, err := b.cfg.Chain.CodeAt(ctx, addr, nil)
	if err != nil {
		b.log.Warn("cannot fetch account code, assuming phantom", "address", addr.Hex(), "err", err)
		return true
	}
	phantom := !aa.IsDeployed(code)
	b.cache.setPhantom(phantom)
	return phantom
}

// RequiredFactoryData returns deployment data only for a phantom account,
// re-reading the code once more before trusting the phantom status.
func (b *base) RequiredFactoryData(ctx context.Context) (*FactoryParams, error) {
	if !b.CheckAccountPhantom(ctx) {
		return nil, nil
	}

	addr, err := b.Address(ctx)
	if err != nil {
		return nil, err
	}
	code, err := b.cfg.Chain.CodeAt(ctx, addr, nil)
	if err != nil {
		return nil, fmt.Errorf("recheck account code: %w", err)
	}
	if aa.IsDeployed(code) {
		b.cache.setPhantom(false)
		return nil, nil
	}
	return b.factoryData(ctx)
}

// EstimateCreationGas estimates the factory deployment, or zero when fp is nil.
func (b *base) EstimateCreationGas(ctx context.Context, fp *FactoryParams) (*big.Int, error) {
	if fp == nil {
		return new(big.Int), nil
	}
	factory := fp.Factory
	gas, err := b.cfg.Chain.EstimateGas(ctx, ethereum.CallMsg{To: &factory, Data: fp.FactoryData})
	if err != nil {
		return nil, fmt.Errorf("estimate creation gas: %w", err)
	}
	return new(big.Int).SetUint64(gas), nil
}

func (b *base) VerificationGasLimit() *big.Int {
	if b.cfg.VerificationGas != nil {
		return new(big.Int).Set(b.cfg.VerificationGas)
	}
	return big.NewInt(DefaultVerificationGasLimit)
}

// signEIP191 is the signature scheme shared by the bundled variants: an
// EIP-191 personal signature over the 32 hash bytes.
func (b *base) signEIP191(hash common.Hash) ([]byte, error) {
	if b.cfg.Owner == nil {
		return nil, aaerr.NewConfigurationError("no signer available")
	}
	return b.cfg.Owner.SignMessage(hash.Bytes())
}
