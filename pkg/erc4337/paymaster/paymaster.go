// Package paymaster negotiates gas sponsorship for user operations.
//
// Sponsorship is supplied in two phases. TemporaryPaymasterData returns
// fields with the final byte length so gas can be estimated; PaymasterData
// returns the signed fields once every other gas field is fixed.
package paymaster

import (
	"bytes"
	"context"
	"fmt"
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum/accounts/abi/bind"
	"github.com/ethereum/go-ethereum/common"

	pmbinding "github.com/AvaProtocol/aa-sdk/core/chainio/aa/paymaster"
	"github.com/AvaProtocol/aa-sdk/core/chainio/signer"
	"github.com/AvaProtocol/aa-sdk/pkg/erc4337/aaerr"
	"github.com/AvaProtocol/aa-sdk/pkg/erc4337/abischema"
	"github.com/AvaProtocol/aa-sdk/pkg/erc4337/userop"
	"github.com/AvaProtocol/aa-sdk/pkg/logger"
)

// Fields are the sponsorship fields of a user operation.
type Fields struct {
	Paymaster                     common.Address
	PaymasterData                 []byte
	PaymasterVerificationGasLimit *big.Int
	PaymasterPostOpGasLimit       *big.Int
}

// Validate requires both paymaster gas limits.
func (f *Fields) Validate() error {
	if f.PaymasterVerificationGasLimit == nil || f.PaymasterPostOpGasLimit == nil {
		return aaerr.NewConfigurationError("paymaster %s set without both paymaster gas limits", f.Paymaster.Hex())
	}
	if f.PaymasterVerificationGasLimit.Sign() < 0 || f.PaymasterPostOpGasLimit.Sign() < 0 {
		return aaerr.NewConfigurationError("paymaster %s has a negative gas limit", f.Paymaster.Hex())
	}
	return nil
}

// Apply writes the fields into op. op is left untouched when the fields
// are incomplete.
func (f *Fields) Apply(op *userop.UserOperation) error {
	if err := f.Validate(); err != nil {
		return err
	}
	pm := f.Paymaster
	op.Paymaster = &pm
	op.PaymasterData = append([]byte(nil), f.PaymasterData...)
	op.PaymasterVerificationGasLimit = new(big.Int).Set(f.PaymasterVerificationGasLimit)
	op.PaymasterPostOpGasLimit = new(big.Int).Set(f.PaymasterPostOpGasLimit)
	return nil
}

// Equal reports whether applying other would leave the packed operation
// unchanged.
func (f *Fields) Equal(other *Fields) bool {
	if f == nil || other == nil {
		return f == other
	}
	return f.Paymaster == other.Paymaster &&
		bytes.Equal(f.PaymasterData, other.PaymasterData) &&
		bigEqual(f.PaymasterVerificationGasLimit, other.PaymasterVerificationGasLimit) &&
		bigEqual(f.PaymasterPostOpGasLimit, other.PaymasterPostOpGasLimit)
}

func bigEqual(a, b *big.Int) bool {
	if a == nil || b == nil {
		return a == b
	}
	return a.Cmp(b) == 0
}

// Negotiator supplies sponsorship fields. A nil result from either phase
// leaves the operation unsponsored.
type Negotiator interface {
	TemporaryPaymasterData(ctx context.Context, op *userop.UserOperation) (*Fields, error)
	PaymasterData(ctx context.Context, op *userop.UserOperation) (*Fields, error)
}

const (
	DefaultVerificationGasLimit = 100000
	DefaultPostOpGasLimit       = 0
	DefaultValidFor             = 15 * time.Minute

	// validAfter is backdated to absorb clock skew between us and the chain.
	clockSkew = 2 * time.Minute
)

var windowSchema = abischema.MustParse("uint48 validUntil, uint48 validAfter")

// VerifyingConfig wires a VerifyingPaymaster whose verifyingSigner is Signer.
type VerifyingConfig struct {
	Address common.Address
	Signer  signer.Signer
	Chain   bind.ContractCaller
	Logger  logger.Logger

	ValidFor             time.Duration
	VerificationGasLimit *big.Int
	PostOpGasLimit       *big.Int

	// Now is the clock; defaults to time.Now.
	Now func() time.Time
}

// Verifying co-signs operations for a VerifyingPaymaster: the signer signs
// getHash(packedOp, validUntil, validAfter) with the EIP-191 prefix and the
// data is abi.encode(validUntil, validAfter) ‖ signature.
type Verifying struct {
	cfg      VerifyingConfig
	contract *pmbinding.VerifyingPaymaster
	log      logger.Logger
}

func NewVerifying(cfg VerifyingConfig) (*Verifying, error) {
	if cfg.Address == (common.Address{}) {
		return nil, aaerr.NewConfigurationError("no paymaster to get hash")
	}
	if cfg.Signer == nil {
		return nil, aaerr.NewConfigurationError("paymaster %s has no signer", cfg.Address.Hex())
	}
	if cfg.Chain == nil {
		return nil, aaerr.NewConfigurationError("paymaster %s has no chain client", cfg.Address.Hex())
	}
	if cfg.ValidFor <= 0 {
		cfg.ValidFor = DefaultValidFor
	}
	if cfg.VerificationGasLimit == nil {
		cfg.VerificationGasLimit = big.NewInt(DefaultVerificationGasLimit)
	}
	if cfg.PostOpGasLimit == nil {
		cfg.PostOpGasLimit = big.NewInt(DefaultPostOpGasLimit)
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}

	return &Verifying{
		cfg:      cfg,
		contract: pmbinding.NewVerifyingPaymaster(cfg.Address, cfg.Chain),
		log:      logger.EnsureLogger(cfg.Logger).With("component", "paymaster", "paymaster", cfg.Address.Hex()),
	}, nil
}

func (v *Verifying) Address() common.Address {
	return v.cfg.Address
}

// CheckSigner fails when the contract's verifyingSigner is not the
// configured signer, in which case every sponsored operation would be
// rejected with AA34.
func (v *Verifying) CheckSigner(ctx context.Context) error {
	onchain, err := v.contract.VerifyingSigner(ctx)
	if err != nil {
		return err
	}
	if onchain != v.cfg.Signer.Address() {
		return aaerr.NewConfigurationError("paymaster %s expects signer %s, configured %s",
			v.cfg.Address.Hex(), onchain.Hex(), v.cfg.Signer.Address().Hex())
	}
	return nil
}

// Deposit is the paymaster's balance at the EntryPoint.
func (v *Verifying) Deposit(ctx context.Context) (*big.Int, error) {
	return v.contract.GetDeposit(ctx)
}

// Window returns validUntil and validAfter as unix seconds.
func (v *Verifying) Window() (validUntil, validAfter uint64) {
	now := v.cfg.Now()
	return uint64(now.Add(v.cfg.ValidFor).Unix()), uint64(now.Add(-clockSkew).Unix())
}

func (v *Verifying) TemporaryPaymasterData(ctx context.Context, op *userop.UserOperation) (*Fields, error) {
	validUntil, validAfter := v.Window()
	data, err := EncodePaymasterData(validUntil, validAfter, userop.DummySignature())
	if err != nil {
		return nil, err
	}
	return v.fields(data), nil
}

func (v *Verifying) PaymasterData(ctx context.Context, op *userop.UserOperation) (*Fields, error) {
	validUntil, validAfter := v.Window()

	// getHash covers the paymaster gas limits but not the data, so hash with
	// the placeholder in place.
	draft := op.Clone()
	placeholder, err := EncodePaymasterData(validUntil, validAfter, userop.DummySignature())
	if err != nil {
		return nil, err
	}
	if err := v.fields(placeholder).Apply(draft); err != nil {
		return nil, err
	}
	packed, err := userop.Pack(draft)
	if err != nil {
		return nil, err
	}

	hash, err := v.contract.GetHash(ctx, *packed, validUntil, validAfter)
	if err != nil {
		return nil, err
	}
	sig, err := v.cfg.Signer.SignMessage(hash.Bytes())
	if err != nil {
		return nil, fmt.Errorf("sign paymaster hash: %w", err)
	}
	data, err := EncodePaymasterData(validUntil, validAfter, sig)
	if err != nil {
		return nil, err
	}

	v.log.Debug("sponsored user operation", "sender", op.Sender.Hex(), "validUntil", validUntil, "validAfter", validAfter)
	return v.fields(data), nil
}

func (v *Verifying) fields(data []byte) *Fields {
	return &Fields{
		Paymaster:                     v.cfg.Address,
		PaymasterData:                 data,
		PaymasterVerificationGasLimit: new(big.Int).Set(v.cfg.VerificationGasLimit),
		PaymasterPostOpGasLimit:       new(big.Int).Set(v.cfg.PostOpGasLimit),
	}
}

// EncodePaymasterData returns abi.encode(uint48 validUntil, uint48 validAfter) ‖ signature.
func EncodePaymasterData(validUntil, validAfter uint64, signature []byte) ([]byte, error) {
	if validUntil > userop.MaxUint48 || validAfter > userop.MaxUint48 {
		return nil, aaerr.NewValidationError("paymasterData", "validity window exceeds uint48")
	}
	window, err := windowSchema.Encode(new(big.Int).SetUint64(validUntil), new(big.Int).SetUint64(validAfter))
	if err != nil {
		return nil, err
	}
	return append(window, signature...), nil
}

// DecodePaymasterData splits data produced by EncodePaymasterData.
func DecodePaymasterData(data []byte) (validUntil, validAfter uint64, signature []byte, err error) {
	if len(data) < 64 {
		return 0, 0, nil, aaerr.NewValidationError("paymasterData", fmt.Sprintf("want at least 64 bytes, got %d", len(data)))
	}
	values, err := windowSchema.Decode(data[:64])
	if err != nil {
		return 0, 0, nil, err
	}
	return values[0].(*big.Int).Uint64(), values[1].(*big.Int).Uint64(), common.CopyBytes(data[64:]), nil
}
