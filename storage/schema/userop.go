package schema

import (
	"fmt"
	"strings"

	"github.com/ethereum/go-ethereum/common"
)

// UserOpRecord is a journal entry for a user operation handed to a bundler.
type UserOpRecord struct {
	UserOpHash  string `json:"userOpHash"`
	Sender      string `json:"sender"`
	Nonce       string `json:"nonce"`
	ChainID     string `json:"chainId"`
	EntryPoint  string `json:"entryPoint"`
	Target      string `json:"target,omitempty"`
	Sponsored   bool   `json:"sponsored"`
	MaxCostWei  string `json:"maxCostWei"`
	SubmittedAt int64  `json:"submittedAt"`

	// Set once a receipt is seen.
	TxHash     string `json:"txHash,omitempty"`
	Success    *bool  `json:"success,omitempty"`
	ActualGas  string `json:"actualGasUsed,omitempty"`
	IncludedAt int64  `json:"includedAt,omitempty"`
}

// u:<sender>:<userOpHash>
func UserOpStorageKey(sender common.Address, userOpHash common.Hash) []byte {
	return []byte(fmt.Sprintf("u:%s:%s", strings.ToLower(sender.Hex()), userOpHash.Hex()))
}

func UserOpBySenderStoragePrefix(sender common.Address) []byte {
	return []byte(fmt.Sprintf("u:%s:", strings.ToLower(sender.Hex())))
}

// h:<userOpHash> points at the u: key so a record can be found by hash alone.
func UserOpHashIndexKey(userOpHash common.Hash) []byte {
	return []byte(fmt.Sprintf("h:%s", userOpHash.Hex()))
}
