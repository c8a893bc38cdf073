package preset

import (
	"context"
	"errors"
	"fmt"
	"math/big"

	ethereum "github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/go-playground/validator/v10"

	"github.com/AvaProtocol/aa-sdk/core/chainio/aa"
	"github.com/AvaProtocol/aa-sdk/metrics"
	"github.com/AvaProtocol/aa-sdk/pkg/eip1559"
	"github.com/AvaProtocol/aa-sdk/pkg/erc4337/aaerr"
	"github.com/AvaProtocol/aa-sdk/pkg/erc4337/account"
	"github.com/AvaProtocol/aa-sdk/pkg/erc4337/bundler"
	"github.com/AvaProtocol/aa-sdk/pkg/erc4337/gas"
	"github.com/AvaProtocol/aa-sdk/pkg/erc4337/paymaster"
	"github.com/AvaProtocol/aa-sdk/pkg/erc4337/userop"
	"github.com/AvaProtocol/aa-sdk/pkg/logger"
)

var (
	// DefaultPreVerificationGas covers bundler overhead for a single
	// operation bundle.
	DefaultPreVerificationGas = big.NewInt(60000)

	// DefaultPhantomCallGasLimit is used for accounts that are not deployed
	// yet: execute cannot be simulated against an address without code.
	DefaultPhantomCallGasLimit = big.NewInt(200000)
)

type Stage int

const (
	StageIntent Stage = iota
	StagePopulated
	StageFactoryResolved
	StageGasEstimated
	StageTemporarilySponsored
	StageHashed
	StageSigned
	StageFinallySponsored
)

var stageNames = [...]string{
	StageIntent:               "Intent",
	StagePopulated:            "Populated",
	StageFactoryResolved:      "FactoryResolved",
	StageGasEstimated:         "GasEstimated",
	StageTemporarilySponsored: "TemporarilySponsored",
	StageHashed:               "Hashed",
	StageSigned:               "Signed",
	StageFinallySponsored:     "FinallySponsored",
}

func (s Stage) String() string {
	if s < 0 || int(s) >= len(stageNames) {
		return fmt.Sprintf("Stage(%d)", int(s))
	}
	return stageNames[s]
}

// StageError aborts a build. The underlying error kind is kept so callers
// can still match it with errors.As.
type StageError struct {
	Stage Stage
	Err   error
}

func (e *StageError) Error() string {
	return fmt.Sprintf("build userop: stage %s: %v", e.Stage, e.Err)
}

func (e *StageError) Unwrap() error {
	return e.Err
}

// FailedStage returns the stage a build aborted in.
func FailedStage(err error) (Stage, bool) {
	var se *StageError
	if errors.As(err, &se) {
		return se.Stage, true
	}
	return 0, false
}

// TransactionDetails is the caller intent: one call from the account to
// Target. Nil gas and fee fields are filled by the builder.
type TransactionDetails struct {
	Target *common.Address `validate:"required"`
	Value  *big.Int
	Data   []byte

	CallGasLimit         *big.Int
	VerificationGasLimit *big.Int
	PreVerificationGas   *big.Int
	MaxFeePerGas         *big.Int
	MaxPriorityFeePerGas *big.Int

	// Nonce skips nonce resolution when set.
	Nonce *big.Int
}

// Builder turns TransactionDetails into a signed UserOperation.
type Builder struct {
	Account account.Account
	Chain   aa.ChainClient
	// Paymaster is optional. When nil the operation is not sponsored.
	Paymaster paymaster.Negotiator
	// NonceManager is optional and lets a caller queue several operations
	// for one sender before the first one is mined.
	NonceManager *bundler.NonceManager
	FeeParams    *eip1559.Params
	Metrics      metrics.Recorder
	Logger       logger.Logger

	// ComputePreVerificationGas replaces DefaultPreVerificationGas with the
	// calldata cost of the operation.
	ComputePreVerificationGas bool
	Overheads                 *gas.Overheads
}

var validate = validator.New(validator.WithRequiredStructEnabled())

// build carries the operation through the stages. It never escapes Build
// unless every stage succeeded.
type build struct {
	op         *userop.UserOperation
	entryPoint common.Address
	factory    *account.FactoryParams
	temporary  *paymaster.Fields
	hash       common.Hash
	chainID    *big.Int
}

func (b *Builder) log() logger.Logger {
	return logger.EnsureLogger(b.Logger)
}

func (b *Builder) check() error {
	if b.Account == nil {
		return aaerr.NewConfigurationError("builder needs an account")
	}
	if b.Chain == nil {
		return aaerr.NewConfigurationError("builder needs a chain client")
	}
	return nil
}

func (b *Builder) run(ctx context.Context, stage Stage, fn func(ctx context.Context) error) error {
	err := fn(ctx)
	metrics.EnsureRecorder(b.Metrics).IncBuildStage(stage.String(), metrics.Status(err))
	if err != nil {
		b.log().Error("userop build aborted", "stage", stage.String(), "err", err)
		return &StageError{Stage: stage, Err: err}
	}
	b.log().Debug("userop build stage done", "stage", stage.String())
	return nil
}

// Build resolves every missing field of intent and returns a signed
// operation. On error no operation is returned.
func (b *Builder) Build(ctx context.Context, intent *TransactionDetails) (*userop.UserOperation, error) {
	if err := b.check(); err != nil {
		return nil, &StageError{Stage: StageIntent, Err: err}
	}

	st := &build{op: &userop.UserOperation{}, entryPoint: b.Account.EntryPoint()}
	stages := []struct {
		stage Stage
		fn    func(ctx context.Context) error
	}{
		{StageIntent, func(ctx context.Context) error { return validateIntent(intent) }},
		{StagePopulated, func(ctx context.Context) error { return b.populate(ctx, st, intent) }},
		{StageFactoryResolved, func(ctx context.Context) error { return b.resolveFactory(ctx, st, intent) }},
		{StageGasEstimated, func(ctx context.Context) error { return b.estimateCallGas(ctx, st, intent) }},
		{StageTemporarilySponsored, func(ctx context.Context) error { return b.sponsorTemporarily(ctx, st, intent) }},
		{StageHashed, func(ctx context.Context) error { return b.hash(ctx, st) }},
		{StageSigned, func(ctx context.Context) error { return b.sign(ctx, st) }},
		{StageFinallySponsored, func(ctx context.Context) error { return b.sponsorFinally(ctx, st) }},
	}
	for _, s := range stages {
		if err := b.run(ctx, s.stage, s.fn); err != nil {
			return nil, err
		}
	}

	b.log().Info("userop built",
		"sender", st.op.Sender.Hex(),
		"nonce", st.op.Nonce.String(),
		"userOpHash", st.hash.Hex(),
		"sponsored", st.op.Paymaster != nil,
		"maxCost", gas.FormatEther(gas.MaxCost(st.op)))
	return st.op, nil
}

func validateIntent(intent *TransactionDetails) error {
	if intent == nil {
		return aaerr.NewValidationError("intent", "missing transaction details")
	}
	if err := validate.Struct(intent); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) && len(verrs) > 0 {
			return aaerr.NewValidationError(verrs[0].Field(), "is "+verrs[0].Tag())
		}
		return aaerr.NewValidationError("intent", err.Error())
	}
	// An explicit zero value counts as an intent.
	if len(intent.Data) == 0 && intent.Value == nil {
		return aaerr.NewValidationError("data", "no-op operation")
	}
	if intent.Value != nil && intent.Value.Sign() < 0 {
		return aaerr.NewValidationError("value", "must not be negative")
	}
	return nil
}

// populate resolves sender, nonce, fees and call data.
func (b *Builder) populate(ctx context.Context, st *build, intent *TransactionDetails) error {
	sender, err := b.Account.Address(ctx)
	if err != nil {
		return fmt.Errorf("resolve sender: %w", err)
	}
	st.op.Sender = sender

	switch {
	case intent.Nonce != nil:
		st.op.Nonce = new(big.Int).Set(intent.Nonce)
	case b.NonceManager != nil:
		st.op.Nonce, err = b.NonceManager.Next(ctx, sender, b.Account.Nonce)
	default:
		st.op.Nonce, err = b.Account.Nonce(ctx)
	}
	if err != nil {
		return fmt.Errorf("resolve nonce: %w", err)
	}

	st.op.MaxFeePerGas = cloneOrNil(intent.MaxFeePerGas)
	st.op.MaxPriorityFeePerGas = cloneOrNil(intent.MaxPriorityFeePerGas)
	if st.op.MaxFeePerGas == nil || st.op.MaxPriorityFeePerGas == nil {
		params := eip1559.DefaultParams
		if b.FeeParams != nil {
			params = *b.FeeParams
		}
		fee, err := eip1559.SuggestFeeWithParams(ctx, b.Chain, params)
		if err != nil {
			return fmt.Errorf("fee data: %w", err)
		}
		if st.op.MaxFeePerGas == nil {
			st.op.MaxFeePerGas = fee.MaxFeePerGas
		}
		if st.op.MaxPriorityFeePerGas == nil {
			st.op.MaxPriorityFeePerGas = fee.MaxPriorityFeePerGas
		}
	}

	value := intent.Value
	if value == nil {
		value = new(big.Int)
	}
	st.op.CallData, err = b.Account.EncodeExecute(*intent.Target, value, intent.Data)
	if err != nil {
		return fmt.Errorf("encode execute: %w", err)
	}
	return nil
}

// resolveFactory attaches deployment data for a phantom account and adds
// the deployment cost to the verification budget.
func (b *Builder) resolveFactory(ctx context.Context, st *build, intent *TransactionDetails) error {
	fp, err := b.Account.RequiredFactoryData(ctx)
	if err != nil {
		return err
	}
	st.factory = fp

	if intent.VerificationGasLimit != nil {
		st.op.VerificationGasLimit = new(big.Int).Set(intent.VerificationGasLimit)
	} else {
		creation, err := b.Account.EstimateCreationGas(ctx, fp)
		if err != nil {
			return err
		}
		st.op.VerificationGasLimit = new(big.Int).Add(b.Account.VerificationGasLimit(), creation)
	}

	if fp != nil {
		factory := fp.Factory
		st.op.Factory = &factory
		st.op.FactoryData = common.CopyBytes(fp.FactoryData)
	}
	return nil
}

func (b *Builder) estimateCallGas(ctx context.Context, st *build, intent *TransactionDetails) error {
	switch {
	case intent.CallGasLimit != nil:
		st.op.CallGasLimit = new(big.Int).Set(intent.CallGasLimit)
	case st.factory != nil:
		st.op.CallGasLimit = new(big.Int).Set(DefaultPhantomCallGasLimit)
	default:
		sender := st.op.Sender
		limit, err := b.Chain.EstimateGas(ctx, ethereum.CallMsg{
			From: st.entryPoint,
			To:   &sender,
			Data: st.op.CallData,
		})
		if err != nil {
			return fmt.Errorf("estimate call gas: %w", err)
		}
		st.op.CallGasLimit = new(big.Int).SetUint64(limit)
	}
	return nil
}

// sponsorTemporarily applies same-size placeholder sponsorship and a dummy
// signature, then fills preVerificationGas which depends on their sizes.
func (b *Builder) sponsorTemporarily(ctx context.Context, st *build, intent *TransactionDetails) error {
	if b.Paymaster != nil {
		fields, err := b.Paymaster.TemporaryPaymasterData(ctx, st.op)
		if err != nil {
			return fmt.Errorf("temporary paymaster data: %w", err)
		}
		if fields != nil {
			if err := fields.Apply(st.op); err != nil {
				return err
			}
			st.temporary = fields
		}
	}
	st.op.Signature = userop.DummySignature()

	switch {
	case intent.PreVerificationGas != nil:
		st.op.PreVerificationGas = new(big.Int).Set(intent.PreVerificationGas)
	case b.ComputePreVerificationGas:
		ov := gas.DefaultOverheads
		if b.Overheads != nil {
			ov = *b.Overheads
		}
		pvg, err := gas.CalcPreVerificationGas(st.op, ov)
		if err != nil {
			return err
		}
		st.op.PreVerificationGas = pvg
	default:
		st.op.PreVerificationGas = new(big.Int).Set(DefaultPreVerificationGas)
	}
	return nil
}

func (b *Builder) hash(ctx context.Context, st *build) error {
	if st.chainID == nil {
		chainID, err := b.Chain.ChainID(ctx)
		if err != nil {
			return fmt.Errorf("chain id: %w", err)
		}
		st.chainID = chainID
	}
	h, err := userop.Hash(st.op, st.entryPoint, st.chainID)
	if err != nil {
		return err
	}
	st.hash = h
	return nil
}

func (b *Builder) sign(ctx context.Context, st *build) error {
	sig, err := b.Account.SignUserOpHash(ctx, st.hash)
	if err != nil {
		return fmt.Errorf("sign userop hash: %w", err)
	}
	st.op.Signature = sig
	return nil
}

// sponsorFinally swaps in the signed paymaster fields. The account signature
// covers paymasterAndData, so the operation is re-hashed and re-signed when
// they differ from the placeholder.
func (b *Builder) sponsorFinally(ctx context.Context, st *build) error {
	if b.Paymaster == nil {
		return nil
	}
	fields, err := b.Paymaster.PaymasterData(ctx, st.op)
	if err != nil {
		return fmt.Errorf("paymaster data: %w", err)
	}
	if fields == nil {
		return nil
	}
	if !fields.Equal(st.temporary) {
		if err := fields.Apply(st.op); err != nil {
			return err
		}
		if err := b.hash(ctx, st); err != nil {
			return err
		}
		if err := b.sign(ctx, st); err != nil {
			return err
		}
	}

	sponsored, _ := new(big.Float).SetInt(totalGas(st.op)).Float64()
	metrics.EnsureRecorder(b.Metrics).AddSponsoredGas(sponsored)
	return nil
}

// totalGas is the gas budget a sponsor commits to, MaxCost without the price.
func totalGas(op *userop.UserOperation) *big.Int {
	priced := *op
	priced.MaxFeePerGas = big.NewInt(1)
	return gas.MaxCost(&priced)
}

func cloneOrNil(v *big.Int) *big.Int {
	if v == nil {
		return nil
	}
	return new(big.Int).Set(v)
}
