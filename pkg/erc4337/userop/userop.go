// Package userop models ERC-4337 v0.7 user operations and the packing and
// hashing rules shared with the on-chain EntryPoint.
package userop

import (
	"encoding/json"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
)

// UserOperation is the unpacked, caller-facing form of an operation.
// Optional fields are nil when absent.
type UserOperation struct {
	Sender common.Address
	// Nonce is the full on-chain nonce, or the sequence part when NonceKey
	// is set to a non-zero value.
	Nonce    *big.Int
	NonceKey *big.Int

	Factory     *common.Address
	FactoryData []byte

	CallData             []byte
	CallGasLimit         *big.Int
	VerificationGasLimit *big.Int
	PreVerificationGas   *big.Int
	MaxFeePerGas         *big.Int
	MaxPriorityFeePerGas *big.Int

	Paymaster                     *common.Address
	PaymasterVerificationGasLimit *big.Int
	PaymasterPostOpGasLimit       *big.Int
	PaymasterData                 []byte

	Signature []byte

	AuthorizationList []Authorization
}

// Authorization is an EIP-7702 delegation entry.
type Authorization struct {
	ChainID *big.Int       `json:"chainId"`
	Address common.Address `json:"address"`
	Nonce   *big.Int       `json:"nonce"`
	YParity uint8          `json:"yParity"`
	R       *big.Int       `json:"r"`
	S       *big.Int       `json:"s"`
}

var dummySignature = common.FromHex("0xfffffffffffffffffffffffffffffff0000000000000000000000000000000007aaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaa1c")

// DummySignature is a 65 byte ECDSA signature that recovers to a throwaway
// address instead of reverting, so validation can be simulated against it.
func DummySignature() []byte {
	return common.CopyBytes(dummySignature)
}

// PackedUserOperation mirrors the EntryPoint v0.7 PackedUserOperation struct.
// Field names match the ABI tuple so the value can be passed to bound
// contract calls directly.
type PackedUserOperation struct {
	Sender             common.Address
	Nonce              *big.Int
	InitCode           []byte
	CallData           []byte
	AccountGasLimits   [32]byte
	PreVerificationGas *big.Int
	GasFees            [32]byte
	PaymasterAndData   []byte
	Signature          []byte
}

// Clone returns a deep copy so stages can build on an operation without
// mutating the caller's value.
func (op *UserOperation) Clone() *UserOperation {
	if op == nil {
		return nil
	}
	c := &UserOperation{
		Sender:                        op.Sender,
		Nonce:                         cloneBig(op.Nonce),
		NonceKey:                      cloneBig(op.NonceKey),
		Factory:                       cloneAddr(op.Factory),
		FactoryData:                   common.CopyBytes(op.FactoryData),
		CallData:                      common.CopyBytes(op.CallData),
		CallGasLimit:                  cloneBig(op.CallGasLimit),
		VerificationGasLimit:          cloneBig(op.VerificationGasLimit),
		PreVerificationGas:            cloneBig(op.PreVerificationGas),
		MaxFeePerGas:                  cloneBig(op.MaxFeePerGas),
		MaxPriorityFeePerGas:          cloneBig(op.MaxPriorityFeePerGas),
		Paymaster:                     cloneAddr(op.Paymaster),
		PaymasterVerificationGasLimit: cloneBig(op.PaymasterVerificationGasLimit),
		PaymasterPostOpGasLimit:       cloneBig(op.PaymasterPostOpGasLimit),
		PaymasterData:                 common.CopyBytes(op.PaymasterData),
		Signature:                     common.CopyBytes(op.Signature),
	}
	for _, a := range op.AuthorizationList {
		c.AuthorizationList = append(c.AuthorizationList, Authorization{
			ChainID: cloneBig(a.ChainID),
			Address: a.Address,
			Nonce:   cloneBig(a.Nonce),
			YParity: a.YParity,
			R:       cloneBig(a.R),
			S:       cloneBig(a.S),
		})
	}
	return c
}

// RPCFields returns the operation as the field map bundlers accept for
// EntryPoint v0.7. Values keep their native types; absent optional fields
// are omitted. The nonce is emitted in its packed on-chain form.
func (op *UserOperation) RPCFields() (map[string]interface{}, error) {
	nonce, err := PackNonce(op.Nonce, op.NonceKey)
	if err != nil {
		return nil, err
	}
	if err := op.checkPaymasterFields(); err != nil {
		return nil, err
	}

	fields := map[string]interface{}{
		"sender":               op.Sender,
		"nonce":                nonce,
		"callData":             bytesOrEmpty(op.CallData),
		"callGasLimit":         orZero(op.CallGasLimit),
		"verificationGasLimit": orZero(op.VerificationGasLimit),
		"preVerificationGas":   orZero(op.PreVerificationGas),
		"maxFeePerGas":         orZero(op.MaxFeePerGas),
		"maxPriorityFeePerGas": orZero(op.MaxPriorityFeePerGas),
		"signature":            bytesOrEmpty(op.Signature),
	}
	if op.Factory != nil {
		fields["factory"] = *op.Factory
		fields["factoryData"] = bytesOrEmpty(op.FactoryData)
	}
	if op.Paymaster != nil {
		fields["paymaster"] = *op.Paymaster
		fields["paymasterVerificationGasLimit"] = op.PaymasterVerificationGasLimit
		fields["paymasterPostOpGasLimit"] = op.PaymasterPostOpGasLimit
		fields["paymasterData"] = bytesOrEmpty(op.PaymasterData)
	}
	if len(op.AuthorizationList) > 0 {
		list := make([]interface{}, len(op.AuthorizationList))
		for i, a := range op.AuthorizationList {
			list[i] = map[string]interface{}{
				"chainId": orZero(a.ChainID),
				"address": a.Address,
				"nonce":   orZero(a.Nonce),
				"yParity": big.NewInt(int64(a.YParity)),
				"r":       orZero(a.R),
				"s":       orZero(a.S),
			}
		}
		fields["authorizationList"] = list
	}
	return fields, nil
}

type userOperationJSON struct {
	Sender                        common.Address      `json:"sender"`
	Nonce                         *hexutil.Big        `json:"nonce"`
	Factory                       *common.Address     `json:"factory,omitempty"`
	FactoryData                   hexutil.Bytes       `json:"factoryData,omitempty"`
	CallData                      hexutil.Bytes       `json:"callData"`
	CallGasLimit                  *hexutil.Big        `json:"callGasLimit"`
	VerificationGasLimit          *hexutil.Big        `json:"verificationGasLimit"`
	PreVerificationGas            *hexutil.Big        `json:"preVerificationGas"`
	MaxFeePerGas                  *hexutil.Big        `json:"maxFeePerGas"`
	MaxPriorityFeePerGas          *hexutil.Big        `json:"maxPriorityFeePerGas"`
	Paymaster                     *common.Address     `json:"paymaster,omitempty"`
	PaymasterVerificationGasLimit *hexutil.Big        `json:"paymasterVerificationGasLimit,omitempty"`
	PaymasterPostOpGasLimit       *hexutil.Big        `json:"paymasterPostOpGasLimit,omitempty"`
	PaymasterData                 hexutil.Bytes       `json:"paymasterData,omitempty"`
	Signature                     hexutil.Bytes       `json:"signature"`
	AuthorizationList             []authorizationJSON `json:"authorizationList,omitempty"`
}

type authorizationJSON struct {
	ChainID *hexutil.Big   `json:"chainId"`
	Address common.Address `json:"address"`
	Nonce   *hexutil.Big   `json:"nonce"`
	YParity hexutil.Uint64 `json:"yParity"`
	R       *hexutil.Big   `json:"r"`
	S       *hexutil.Big   `json:"s"`
}

func authorizationsToJSON(list []Authorization) []authorizationJSON {
	if len(list) == 0 {
		return nil
	}
	out := make([]authorizationJSON, len(list))
	for i, a := range list {
		out[i] = authorizationJSON{
			ChainID: (*hexutil.Big)(orZero(a.ChainID)),
			Address: a.Address,
			Nonce:   (*hexutil.Big)(orZero(a.Nonce)),
			YParity: hexutil.Uint64(a.YParity),
			R:       (*hexutil.Big)(orZero(a.R)),
			S:       (*hexutil.Big)(orZero(a.S)),
		}
	}
	return out
}

func authorizationsFromJSON(list []authorizationJSON) ([]Authorization, error) {
	if len(list) == 0 {
		return nil, nil
	}
	out := make([]Authorization, len(list))
	for i, a := range list {
		if a.YParity > 1 {
			return nil, fmt.Errorf("authorizationList[%d]: yParity %d out of range", i, a.YParity)
		}
		out[i] = Authorization{
			ChainID: (*big.Int)(a.ChainID),
			Address: a.Address,
			Nonce:   (*big.Int)(a.Nonce),
			YParity: uint8(a.YParity),
			R:       (*big.Int)(a.R),
			S:       (*big.Int)(a.S),
		}
	}
	return out, nil
}

// MarshalJSON emits the hex encoded v0.7 RPC form.
func (op *UserOperation) MarshalJSON() ([]byte, error) {
	nonce, err := PackNonce(op.Nonce, op.NonceKey)
	if err != nil {
		return nil, err
	}
	return json.Marshal(userOperationJSON{
		Sender:                        op.Sender,
		Nonce:                         (*hexutil.Big)(nonce),
		Factory:                       op.Factory,
		FactoryData:                   op.FactoryData,
		CallData:                      bytesOrEmpty(op.CallData),
		CallGasLimit:                  (*hexutil.Big)(orZero(op.CallGasLimit)),
		VerificationGasLimit:          (*hexutil.Big)(orZero(op.VerificationGasLimit)),
		PreVerificationGas:            (*hexutil.Big)(orZero(op.PreVerificationGas)),
		MaxFeePerGas:                  (*hexutil.Big)(orZero(op.MaxFeePerGas)),
		MaxPriorityFeePerGas:          (*hexutil.Big)(orZero(op.MaxPriorityFeePerGas)),
		Paymaster:                     op.Paymaster,
		PaymasterVerificationGasLimit: (*hexutil.Big)(op.PaymasterVerificationGasLimit),
		PaymasterPostOpGasLimit:       (*hexutil.Big)(op.PaymasterPostOpGasLimit),
		PaymasterData:                 op.PaymasterData,
		Signature:                     bytesOrEmpty(op.Signature),
		AuthorizationList:             authorizationsToJSON(op.AuthorizationList),
	})
}

func (op *UserOperation) UnmarshalJSON(data []byte) error {
	var raw userOperationJSON
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	auths, err := authorizationsFromJSON(raw.AuthorizationList)
	if err != nil {
		return err
	}
	*op = UserOperation{
		Sender:                        raw.Sender,
		Nonce:                         (*big.Int)(raw.Nonce),
		Factory:                       raw.Factory,
		FactoryData:                   raw.FactoryData,
		CallData:                      raw.CallData,
		CallGasLimit:                  (*big.Int)(raw.CallGasLimit),
		VerificationGasLimit:          (*big.Int)(raw.VerificationGasLimit),
		PreVerificationGas:            (*big.Int)(raw.PreVerificationGas),
		MaxFeePerGas:                  (*big.Int)(raw.MaxFeePerGas),
		MaxPriorityFeePerGas:          (*big.Int)(raw.MaxPriorityFeePerGas),
		Paymaster:                     raw.Paymaster,
		PaymasterVerificationGasLimit: (*big.Int)(raw.PaymasterVerificationGasLimit),
		PaymasterPostOpGasLimit:       (*big.Int)(raw.PaymasterPostOpGasLimit),
		PaymasterData:                 raw.PaymasterData,
		Signature:                     raw.Signature,
		AuthorizationList:             auths,
	}
	return nil
}

func cloneBig(v *big.Int) *big.Int {
	if v == nil {
		return nil
	}
	return new(big.Int).Set(v)
}

func cloneAddr(a *common.Address) *common.Address {
	if a == nil {
		return nil
	}
	c := *a
	return &c
}

func orZero(v *big.Int) *big.Int {
	if v == nil {
		return new(big.Int)
	}
	return v
}

func bytesOrEmpty(b []byte) []byte {
	if b == nil {
		return []byte{}
	}
	return b
}
