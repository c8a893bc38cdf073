package aa

import (
	"math/big"

	"github.com/ethereum/go-ethereum/common"
)

var (
	// EntrypointAddress is the canonical EntryPoint v0.7 deployment.
	EntrypointAddress = common.HexToAddress("0x0000000071727De22E5E9d8BAf0edAc6f37da032")
	// SimpleAccountFactoryAddress is the eth-infinitism v0.7 factory.
	SimpleAccountFactoryAddress = common.HexToAddress("0x91E60e0613810449d098b0b5Ec8b51A0FE8c8985")

	defaultSalt = big.NewInt(0)
)
