package userop

import (
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"

	"github.com/AvaProtocol/aa-sdk/pkg/erc4337/abischema"
)

var (
	signatureSchema = abischema.MustParse(
		"address sender, uint256 nonce, bytes32 initCodeHash, bytes32 callDataHash, " +
			"bytes32 accountGasLimits, uint256 preVerificationGas, bytes32 gasFees, bytes32 paymasterAndDataHash")

	calldataSchema = abischema.MustParse(
		"address sender, uint256 nonce, bytes initCode, bytes callData, " +
			"bytes32 accountGasLimits, uint256 preVerificationGas, bytes32 gasFees, bytes paymasterAndData, bytes signature")

	hashSchema = abischema.MustParse("bytes32 userOpHash, address entryPoint, uint256 chainId")
)

// EncodeForSignature ABI-encodes the packed operation with its variable
// length fields replaced by their keccak256. The signature is excluded.
func EncodeForSignature(p *PackedUserOperation) ([]byte, error) {
	return signatureSchema.Encode(
		p.Sender,
		orZero(p.Nonce),
		crypto.Keccak256Hash(p.InitCode),
		crypto.Keccak256Hash(p.CallData),
		p.AccountGasLimits,
		orZero(p.PreVerificationGas),
		p.GasFees,
		crypto.Keccak256Hash(p.PaymasterAndData),
	)
}

// EncodeForCalldata ABI-encodes the whole packed operation, signature
// included, as it would appear in handleOps calldata.
func EncodeForCalldata(p *PackedUserOperation) ([]byte, error) {
	return calldataSchema.Encode(
		p.Sender,
		orZero(p.Nonce),
		bytesOrEmpty(p.InitCode),
		bytesOrEmpty(p.CallData),
		p.AccountGasLimits,
		orZero(p.PreVerificationGas),
		p.GasFees,
		bytesOrEmpty(p.PaymasterAndData),
		bytesOrEmpty(p.Signature),
	)
}

// HashPacked computes keccak256(abi.encode(keccak256(encoded op), entryPoint, chainId)).
func HashPacked(p *PackedUserOperation, entryPoint common.Address, chainID *big.Int) (common.Hash, error) {
	encoded, err := EncodeForSignature(p)
	if err != nil {
		return common.Hash{}, err
	}
	enc, err := hashSchema.Encode(crypto.Keccak256Hash(encoded), entryPoint, orZero(chainID))
	if err != nil {
		return common.Hash{}, err
	}
	return crypto.Keccak256Hash(enc), nil
}

// Hash returns the userOpHash the EntryPoint emits and accounts sign.
func Hash(op *UserOperation, entryPoint common.Address, chainID *big.Int) (common.Hash, error) {
	p, err := Pack(op)
	if err != nil {
		return common.Hash{}, err
	}
	return HashPacked(p, entryPoint, chainID)
}
