package config

import (
	"errors"
	"fmt"
	"math/big"
	"os"
	"strings"
	"time"

	sdklogging "github.com/Layr-Labs/eigensdk-go/logging"
	"github.com/ethereum/go-ethereum/common"
	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v2"

	"github.com/AvaProtocol/aa-sdk/core/chainio/aa"
	"github.com/AvaProtocol/aa-sdk/core/chainio/signer"
	"github.com/AvaProtocol/aa-sdk/pkg/erc4337/aaerr"
	"github.com/AvaProtocol/aa-sdk/pkg/timekeeper"
)

const (
	AccountKindSimple   = "simple"
	AccountKindGAccount = "gaccount"

	DefaultPollTimeout  = 60 * time.Second
	DefaultPollInterval = 5 * time.Second
)

// Config is the resolved SDK configuration. Keys are parsed, addresses are
// checksummed and defaults are applied.
type Config struct {
	Environment sdklogging.LogLevel
	Logger      sdklogging.Logger

	EthRpcUrl     string
	BundlerURL    string
	BundlerAPIKey string
	// ChainID is nil when the node should be asked.
	ChainID *big.Int

	EntrypointAddress common.Address
	FactoryAddress    common.Address

	AccountKind    string
	AccountAddress *common.Address
	Owner          *signer.PrivateKeySigner `json:"-"`
	Salt           *big.Int
	NonceKey       *big.Int
	ProjectAPIKey  string
	WalletID       string

	Paymaster *PaymasterConfig

	Poll                      timekeeper.Policy
	PreVerificationGas        *big.Int
	ComputePreVerificationGas bool

	// JournalPath is the directory of the local user operation journal.
	// Empty disables it.
	JournalPath string

	MetricsAddress string
	// WatchDeposits are EntryPoint depositors reported by the deposit
	// collector, keyed by label.
	WatchDeposits map[string]common.Address
}

type PaymasterConfig struct {
	Address              common.Address
	Signer               *signer.PrivateKeySigner `json:"-"`
	ValidFor             time.Duration
	VerificationGasLimit *big.Int
	PostOpGasLimit       *big.Int
}

// These are read from the config file after ${VAR} expansion.
type ConfigRaw struct {
	Environment   sdklogging.LogLevel `yaml:"environment" validate:"omitempty,oneof=development production"`
	EthRpcUrl     string              `yaml:"eth_rpc_url" validate:"required,url"`
	BundlerURL    string              `yaml:"bundler_url" validate:"required,url"`
	BundlerAPIKey string              `yaml:"bundler_api_key"`
	ChainID       int64               `yaml:"chain_id" validate:"gte=0"`

	EntrypointAddress string `yaml:"entrypoint_address" validate:"omitempty,eth_addr"`
	FactoryAddress    string `yaml:"factory_address" validate:"omitempty,eth_addr"`

	AccountKind     string `yaml:"account_kind" validate:"omitempty,oneof=simple gaccount"`
	AccountAddress  string `yaml:"account_address" validate:"omitempty,eth_addr"`
	OwnerPrivateKey string `yaml:"owner_private_key" validate:"required"`
	Salt            string `yaml:"salt"`
	NonceKey        string `yaml:"nonce_key"`
	ProjectAPIKey   string `yaml:"project_api_key"`
	WalletID        string `yaml:"wallet_id"`

	Paymaster *PaymasterRaw `yaml:"paymaster"`

	Poll struct {
		Timeout  time.Duration `yaml:"timeout" validate:"gte=0"`
		Interval time.Duration `yaml:"interval" validate:"gte=0"`
	} `yaml:"poll"`
	PreVerificationGas        uint64 `yaml:"pre_verification_gas"`
	ComputePreVerificationGas bool   `yaml:"compute_pre_verification_gas"`

	JournalPath    string            `yaml:"journal_path"`
	MetricsAddress string            `yaml:"metrics_address" validate:"omitempty,hostname_port"`
	WatchDeposits  map[string]string `yaml:"watch_deposits" validate:"dive,eth_addr"`
}

type PaymasterRaw struct {
	Address              string        `yaml:"address" validate:"required,eth_addr"`
	SignerPrivateKey     string        `yaml:"signer_private_key" validate:"required"`
	ValidFor             time.Duration `yaml:"valid_for" validate:"gte=0"`
	VerificationGasLimit uint64        `yaml:"verification_gas_limit"`
	PostOpGasLimit       uint64        `yaml:"post_op_gas_limit"`
}

var validate = validator.New(validator.WithRequiredStructEnabled())

// Load reads, expands and validates the YAML config at path.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}
	return Parse(data)
}

// Parse builds a Config from YAML. ${VAR} references are expanded from the
// environment so keys can stay out of the file.
func Parse(data []byte) (*Config, error) {
	var raw ConfigRaw
	if err := yaml.Unmarshal([]byte(os.ExpandEnv(string(data))), &raw); err != nil {
		return nil, aaerr.NewConfigurationError("failed to parse config YAML: %v", err)
	}
	return NewConfig(&raw)
}

// NewConfig validates raw and resolves it.
func NewConfig(raw *ConfigRaw) (*Config, error) {
	if err := validate.Struct(raw); err != nil {
		return nil, validationError(err)
	}

	environment := raw.Environment
	if environment == "" {
		environment = sdklogging.Development
	}
	logger, err := sdklogging.NewZapLogger(environment)
	if err != nil {
		return nil, err
	}

	owner, err := signer.FromPrivateKeyHex(raw.OwnerPrivateKey)
	if err != nil {
		return nil, aaerr.NewConfigurationError("cannot parse owner_private_key: %v", err)
	}

	cfg := &Config{
		Environment:               environment,
		Logger:                    logger,
		EthRpcUrl:                 raw.EthRpcUrl,
		BundlerURL:                raw.BundlerURL,
		BundlerAPIKey:             raw.BundlerAPIKey,
		EntrypointAddress:         addressOr(raw.EntrypointAddress, aa.EntrypointAddress),
		FactoryAddress:            addressOr(raw.FactoryAddress, aa.SimpleAccountFactoryAddress),
		AccountKind:               raw.AccountKind,
		AccountAddress:            optionalAddress(raw.AccountAddress),
		Owner:                     owner,
		ProjectAPIKey:             raw.ProjectAPIKey,
		WalletID:                  raw.WalletID,
		Poll:                      timekeeper.Policy{Timeout: raw.Poll.Timeout, Interval: raw.Poll.Interval},
		ComputePreVerificationGas: raw.ComputePreVerificationGas,
		JournalPath:               raw.JournalPath,
		MetricsAddress:            raw.MetricsAddress,
		WatchDeposits:             convertToAddressMap(raw.WatchDeposits),
	}
	if cfg.AccountKind == "" {
		cfg.AccountKind = AccountKindSimple
	}
	if cfg.Poll.Timeout == 0 {
		cfg.Poll.Timeout = DefaultPollTimeout
	}
	if cfg.Poll.Interval == 0 {
		cfg.Poll.Interval = DefaultPollInterval
	}
	if raw.ChainID > 0 {
		cfg.ChainID = big.NewInt(raw.ChainID)
	}
	if raw.PreVerificationGas > 0 {
		cfg.PreVerificationGas = new(big.Int).SetUint64(raw.PreVerificationGas)
	}
	if cfg.Salt, err = parseBig("salt", raw.Salt); err != nil {
		return nil, err
	}
	if cfg.NonceKey, err = parseBig("nonce_key", raw.NonceKey); err != nil {
		return nil, err
	}

	if raw.Paymaster != nil {
		pmSigner, err := signer.FromPrivateKeyHex(raw.Paymaster.SignerPrivateKey)
		if err != nil {
			return nil, aaerr.NewConfigurationError("cannot parse paymaster.signer_private_key: %v", err)
		}
		cfg.Paymaster = &PaymasterConfig{
			Address:  common.HexToAddress(raw.Paymaster.Address),
			Signer:   pmSigner,
			ValidFor: raw.Paymaster.ValidFor,
		}
		if raw.Paymaster.VerificationGasLimit > 0 {
			cfg.Paymaster.VerificationGasLimit = new(big.Int).SetUint64(raw.Paymaster.VerificationGasLimit)
		}
		if raw.Paymaster.PostOpGasLimit > 0 {
			cfg.Paymaster.PostOpGasLimit = new(big.Int).SetUint64(raw.Paymaster.PostOpGasLimit)
		}
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// validate checks rules that span several fields.
func (c *Config) validate() error {
	if c.AccountKind == AccountKindGAccount && c.AccountAddress == nil {
		if c.ProjectAPIKey == "" || c.WalletID == "" {
			return aaerr.NewConfigurationError("gaccount needs project_api_key and wallet_id unless account_address is set")
		}
	}
	if c.Poll.Interval > c.Poll.Timeout {
		return aaerr.NewConfigurationError("poll.interval %s exceeds poll.timeout %s", c.Poll.Interval, c.Poll.Timeout)
	}
	return nil
}

func validationError(err error) error {
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return aaerr.NewConfigurationError("invalid config: %v", err)
	}
	msgs := make([]string, 0, len(verrs))
	for _, fe := range verrs {
		msgs = append(msgs, fmt.Sprintf("%s failed %q", fe.Namespace(), fe.Tag()))
	}
	return aaerr.NewConfigurationError("invalid config: %s", strings.Join(msgs, ", "))
}

func parseBig(field, s string) (*big.Int, error) {
	if s == "" {
		return nil, nil
	}
	v, ok := new(big.Int).SetString(s, 0)
	if !ok || v.Sign() < 0 {
		return nil, aaerr.NewConfigurationError("%s: %q is not an unsigned integer", field, s)
	}
	return v, nil
}
