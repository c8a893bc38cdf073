package bundler

import (
	"math/big"

	"github.com/ethereum/go-ethereum/common/hexutil"
)

// GasEstimation is the eth_estimateUserOperationGas result. Paymaster
// limits are only returned for sponsored operations.
type GasEstimation struct {
	PreVerificationGas            *hexutil.Big `json:"preVerificationGas"`
	VerificationGasLimit          *hexutil.Big `json:"verificationGasLimit"`
	CallGasLimit                  *hexutil.Big `json:"callGasLimit"`
	PaymasterVerificationGasLimit *hexutil.Big `json:"paymasterVerificationGasLimit,omitempty"`
	PaymasterPostOpGasLimit       *hexutil.Big `json:"paymasterPostOpGasLimit,omitempty"`
}

func (g *GasEstimation) PreVerification() *big.Int {
	return toBig(g.PreVerificationGas)
}

func (g *GasEstimation) Verification() *big.Int {
	return toBig(g.VerificationGasLimit)
}

func (g *GasEstimation) Call() *big.Int {
	return toBig(g.CallGasLimit)
}

func toBig(v *hexutil.Big) *big.Int {
	if v == nil {
		return nil
	}
	return new(big.Int).Set(v.ToInt())
}
