package cmd

import (
	"context"
	"fmt"
	"math/big"

	"github.com/Layr-Labs/eigensdk-go/chainio/clients/eth"
	sdkmetrics "github.com/Layr-Labs/eigensdk-go/metrics"
	rpccalls "github.com/Layr-Labs/eigensdk-go/metrics/collectors/rpc_calls"
	"github.com/ethereum/go-ethereum/common"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/AvaProtocol/aa-sdk/core/chainio/aa"
	"github.com/AvaProtocol/aa-sdk/core/config"
	"github.com/AvaProtocol/aa-sdk/metrics"
	"github.com/AvaProtocol/aa-sdk/pkg/erc4337/account"
	"github.com/AvaProtocol/aa-sdk/pkg/erc4337/bundler"
	"github.com/AvaProtocol/aa-sdk/pkg/erc4337/gas"
	"github.com/AvaProtocol/aa-sdk/pkg/erc4337/paymaster"
	"github.com/AvaProtocol/aa-sdk/pkg/erc4337/preset"
	"github.com/AvaProtocol/aa-sdk/pkg/timekeeper"
	"github.com/AvaProtocol/aa-sdk/storage"
	"github.com/AvaProtocol/aa-sdk/storage/schema"
)

const appName = "aa-sdk"

// smartAccount is what the CLI needs beyond account.Account. Both bundled
// variants provide it.
type smartAccount interface {
	account.Account
	Init(ctx context.Context) error
	CheckAccountPhantom(ctx context.Context) bool
	FindUserOperationEvent(ctx context.Context, userOpHash common.Hash) (*aa.UserOperationEvent, error)
	UserOpReceipt(ctx context.Context, userOpHash common.Hash, policy timekeeper.Policy) (*common.Hash, error)
}

// runtime is everything a subcommand may need, wired from the config file.
type runtime struct {
	cfg     *config.Config
	chain   eth.Client
	chainID *big.Int
	account smartAccount
	bundler *bundler.BundlerClient
	client  *preset.Client
	// paymaster is nil unless one is configured.
	paymaster *paymaster.Verifying
	// journal is nil unless journal_path is configured.
	journal *storage.Journal
	db      *storage.BadgerStorage
	addrs   *account.AddressCache

	reg          *prometheus.Registry
	eigenMetrics *sdkmetrics.EigenMetrics
	metrics      *metrics.AAAndEigenMetrics
}

func loadConfig() (*config.Config, error) {
	return config.Load(configPath)
}

func newRuntime(ctx context.Context) (*runtime, error) {
	cfg, err := loadConfig()
	if err != nil {
		return nil, err
	}
	rt := &runtime{cfg: cfg, reg: prometheus.NewRegistry()}
	log := cfg.Logger

	if cfg.MetricsAddress != "" {
		rt.eigenMetrics = sdkmetrics.NewEigenMetrics(appName, cfg.MetricsAddress, rt.reg, log)
		rt.metrics = metrics.NewAAAndEigenMetrics(rt.eigenMetrics, rt.reg)
		rt.chain, err = eth.NewInstrumentedClient(cfg.EthRpcUrl, rpccalls.NewCollector(appName, rt.reg))
	} else {
		rt.chain, err = eth.NewClient(cfg.EthRpcUrl)
	}
	if err != nil {
		log.Error("Cannot create http ethclient", "err", err)
		return nil, err
	}

	rt.chainID = cfg.ChainID
	if rt.chainID == nil {
		if rt.chainID, err = rt.chain.ChainID(ctx); err != nil {
			return nil, fmt.Errorf("cannot get chain id: %w", err)
		}
	}

	acctCfg, err := rt.accountConfig(ctx)
	if err != nil {
		return nil, err
	}
	switch cfg.AccountKind {
	case config.AccountKindGAccount:
		rt.account, err = account.NewGAccount(acctCfg, cfg.ProjectAPIKey, cfg.WalletID)
	default:
		var opts []account.SimpleOption
		if cfg.Salt != nil {
			opts = append(opts, account.WithSalt(cfg.Salt))
		}
		if cfg.NonceKey != nil {
			opts = append(opts, account.WithNonceKey(cfg.NonceKey))
		}
		rt.account, err = account.NewSimpleAccount(acctCfg, opts...)
	}
	if err != nil {
		return nil, err
	}
	if err := rt.account.Init(ctx); err != nil {
		return nil, err
	}

	var recorder metrics.Recorder
	if rt.metrics != nil {
		recorder = rt.metrics
	}
	rt.bundler, err = bundler.NewBundlerClient(bundler.Config{
		URL:     cfg.BundlerURL,
		APIKey:  cfg.BundlerAPIKey,
		Logger:  log,
		Metrics: recorder,
	})
	if err != nil {
		return nil, err
	}

	builder := &preset.Builder{
		Account:                   rt.account,
		Chain:                     rt.chain,
		NonceManager:              bundler.NewNonceManager(log),
		Metrics:                   recorder,
		Logger:                    log,
		ComputePreVerificationGas: cfg.ComputePreVerificationGas,
	}
	if cfg.Paymaster != nil {
		pm, err := paymaster.NewVerifying(paymaster.VerifyingConfig{
			Address:              cfg.Paymaster.Address,
			Signer:               cfg.Paymaster.Signer,
			Chain:                rt.chain,
			Logger:               log,
			ValidFor:             cfg.Paymaster.ValidFor,
			VerificationGasLimit: cfg.Paymaster.VerificationGasLimit,
			PostOpGasLimit:       cfg.Paymaster.PostOpGasLimit,
		})
		if err != nil {
			return nil, err
		}
		if err := pm.CheckSigner(ctx); err != nil {
			log.Warn("paymaster signer check failed, sponsored operations may be rejected", "err", err)
		}
		builder.Paymaster = pm
		rt.paymaster = pm
	}
	rt.client = &preset.Client{Builder: builder, Bundler: rt.bundler, WaitPolicy: cfg.Poll}

	if cfg.JournalPath != "" {
		if rt.db, err = storage.NewWithPath(cfg.JournalPath); err != nil {
			return nil, fmt.Errorf("cannot open journal at %s: %w", cfg.JournalPath, err)
		}
		rt.journal = storage.NewJournal(rt.db)
	}
	return rt, nil
}

// accountConfig builds the adapter config around a fresh address cache owned
// by the runtime.
func (rt *runtime) accountConfig(ctx context.Context) (account.Config, error) {
	addrs, err := account.NewAddressCache(ctx, 0)
	if err != nil {
		return account.Config{}, fmt.Errorf("cannot create address cache: %w", err)
	}
	rt.addrs = addrs
	return account.Config{
		Chain:          rt.chain,
		EntryPoint:     rt.cfg.EntrypointAddress,
		Factory:        rt.cfg.FactoryAddress,
		AccountAddress: rt.cfg.AccountAddress,
		Owner:          rt.cfg.Owner,
		Logger:         rt.cfg.Logger,
		AddressCache:   addrs,
	}, nil
}

func (rt *runtime) Close() {
	if rt.addrs != nil {
		_ = rt.addrs.Close()
	}
	if rt.db != nil {
		if err := rt.db.Close(); err != nil {
			rt.cfg.Logger.Warn("cannot close journal", "err", err)
		}
	}
}

// recordSubmitted journals a submitted operation. Journal failures are
// logged only since the operation is already with the bundler.
func (rt *runtime) recordSubmitted(intent *preset.TransactionDetails, res *preset.Result) {
	if rt.journal == nil {
		return
	}
	rec := &schema.UserOpRecord{
		UserOpHash: res.UserOpHash.Hex(),
		Sender:     res.UserOp.Sender.Hex(),
		Nonce:      res.UserOp.Nonce.String(),
		ChainID:    rt.chainID.String(),
		EntryPoint: rt.account.EntryPoint().Hex(),
		Sponsored:  res.UserOp.Paymaster != nil,
		MaxCostWei: gas.MaxCost(res.UserOp).String(),
	}
	if intent.Target != nil {
		rec.Target = intent.Target.Hex()
	}
	if err := rt.journal.Record(rec); err != nil {
		rt.cfg.Logger.Warn("cannot journal userop", "userOpHash", rec.UserOpHash, "err", err)
	}
}

func (rt *runtime) recordIncluded(userOpHash, txHash common.Hash, success bool, gasUsed *big.Int) {
	if rt.journal == nil {
		return
	}
	used := ""
	if gasUsed != nil {
		used = gasUsed.String()
	}
	if err := rt.journal.MarkIncluded(userOpHash, txHash, success, used); err != nil {
		rt.cfg.Logger.Warn("cannot update journal", "userOpHash", userOpHash.Hex(), "err", err)
	}
}

// defaultTransactionDetails applies config level overrides to an intent.
func (rt *runtime) defaultTransactionDetails(intent *preset.TransactionDetails) *preset.TransactionDetails {
	if intent.PreVerificationGas == nil && rt.cfg.PreVerificationGas != nil {
		intent.PreVerificationGas = new(big.Int).Set(rt.cfg.PreVerificationGas)
	}
	return intent
}
