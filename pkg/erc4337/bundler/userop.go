package bundler

import (
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/core/types"

	"github.com/AvaProtocol/aa-sdk/pkg/erc4337/userop"
)

// UserOperationByHash is the eth_getUserOperationByHash result. Block and
// transaction fields stay empty while the operation is in the mempool.
type UserOperationByHash struct {
	UserOperation   userop.UserOperation `json:"userOperation"`
	EntryPoint      common.Address       `json:"entryPoint"`
	BlockNumber     *hexutil.Big         `json:"blockNumber"`
	BlockHash       *common.Hash         `json:"blockHash"`
	TransactionHash *common.Hash         `json:"transactionHash"`
}

// Included reports whether the operation has been mined.
func (u *UserOperationByHash) Included() bool {
	return u.TransactionHash != nil && *u.TransactionHash != (common.Hash{})
}

// UserOperationReceipt is the eth_getUserOperationReceipt result.
type UserOperationReceipt struct {
	UserOpHash    common.Hash     `json:"userOpHash"`
	EntryPoint    common.Address  `json:"entryPoint"`
	Sender        common.Address  `json:"sender"`
	Nonce         *hexutil.Big    `json:"nonce"`
	Paymaster     *common.Address `json:"paymaster,omitempty"`
	ActualGasCost *hexutil.Big    `json:"actualGasCost"`
	ActualGasUsed *hexutil.Big    `json:"actualGasUsed"`
	Success       bool            `json:"success"`
	Reason        string          `json:"reason,omitempty"`
	Logs          []types.Log     `json:"logs"`
	Receipt       TxReceipt       `json:"receipt"`
}

// TxReceipt is the bundle transaction receipt embedded in a user operation
// receipt. Only the fields bundlers agree on are decoded.
type TxReceipt struct {
	TransactionHash   common.Hash    `json:"transactionHash"`
	BlockHash         common.Hash    `json:"blockHash"`
	BlockNumber       *hexutil.Big   `json:"blockNumber"`
	From              common.Address `json:"from"`
	GasUsed           *hexutil.Big   `json:"gasUsed"`
	EffectiveGasPrice *hexutil.Big   `json:"effectiveGasPrice"`
	Status            hexutil.Uint64 `json:"status"`
}
