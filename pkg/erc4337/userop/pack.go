package userop

import (
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"

	"github.com/AvaProtocol/aa-sdk/pkg/erc4337/aaerr"
)

const (
	// paymaster address + two 16 byte gas limits
	PaymasterDataOffset = common.AddressLength + 32
	uint128Bits         = 128
	nonceKeyBits        = 192
	nonceSeqBits        = 64
)

// PackUint packs two 128-bit values into one word as high<<128 | low.
// nil counts as zero. Values wider than 128 bits are rejected.
func PackUint(high, low *big.Int) ([32]byte, error) {
	var word [32]byte
	h, err := toUint128(high)
	if err != nil {
		return word, fmt.Errorf("high word: %w", err)
	}
	l, err := toUint128(low)
	if err != nil {
		return word, fmt.Errorf("low word: %w", err)
	}
	v := new(uint256.Int).Lsh(h, uint128Bits)
	v.Or(v, l)
	return v.Bytes32(), nil
}

// UnpackUint reverses PackUint.
func UnpackUint(word [32]byte) (high, low *big.Int) {
	return new(big.Int).SetBytes(word[:16]), new(big.Int).SetBytes(word[16:])
}

// PackNonce composes the on-chain nonce. A nil or zero key leaves the
// sequence untouched; otherwise the result is uint192 key ‖ uint64 sequence.
func PackNonce(sequence, key *big.Int) (*big.Int, error) {
	if key == nil || key.Sign() == 0 {
		if sequence == nil {
			return new(big.Int), nil
		}
		if sequence.Sign() < 0 || sequence.BitLen() > 256 {
			return nil, aaerr.NewValidationError("nonce", "out of uint256 range")
		}
		return new(big.Int).Set(sequence), nil
	}

	k, overflow := uint256.FromBig(key)
	if overflow || key.Sign() < 0 || k.BitLen() > nonceKeyBits {
		return nil, aaerr.NewValidationError("nonceKey", "exceeds 192 bits")
	}
	s := new(uint256.Int)
	if sequence != nil {
		var seqOverflow bool
		s, seqOverflow = uint256.FromBig(sequence)
		if seqOverflow || sequence.Sign() < 0 || s.BitLen() > nonceSeqBits {
			return nil, aaerr.NewValidationError("nonce", "sequence exceeds 64 bits when a nonce key is set")
		}
	}
	packed := new(uint256.Int).Lsh(k, nonceSeqBits)
	packed.Or(packed, s)
	return packed.ToBig(), nil
}

// SplitNonce returns the key and sequence of an on-chain nonce.
func SplitNonce(nonce *big.Int) (key, sequence *big.Int) {
	if nonce == nil {
		return new(big.Int), new(big.Int)
	}
	key = new(big.Int).Rsh(nonce, nonceSeqBits)
	mask := new(big.Int).Sub(new(big.Int).Lsh(big.NewInt(1), nonceSeqBits), big.NewInt(1))
	sequence = new(big.Int).And(nonce, mask)
	return key, sequence
}

// InitCode returns factory ‖ factoryData, or empty bytes with no factory.
func InitCode(op *UserOperation) []byte {
	if op.Factory == nil {
		return []byte{}
	}
	out := make([]byte, 0, common.AddressLength+len(op.FactoryData))
	out = append(out, op.Factory.Bytes()...)
	return append(out, op.FactoryData...)
}

// PaymasterAndData returns paymaster ‖ pack(verificationGas, postOpGas) ‖ data.
func PaymasterAndData(op *UserOperation) ([]byte, error) {
	if err := op.checkPaymasterFields(); err != nil {
		return nil, err
	}
	if op.Paymaster == nil {
		return []byte{}, nil
	}
	gas, err := PackUint(op.PaymasterVerificationGasLimit, op.PaymasterPostOpGasLimit)
	if err != nil {
		return nil, aaerr.NewValidationError("paymasterGasLimits", err.Error())
	}
	out := make([]byte, 0, PaymasterDataOffset+len(op.PaymasterData))
	out = append(out, op.Paymaster.Bytes()...)
	out = append(out, gas[:]...)
	return append(out, op.PaymasterData...), nil
}

func (op *UserOperation) checkPaymasterFields() error {
	if op.Paymaster != nil {
		if op.PaymasterVerificationGasLimit == nil || op.PaymasterPostOpGasLimit == nil {
			return aaerr.NewConfigurationError("paymaster %s set without both paymaster gas limits", op.Paymaster.Hex())
		}
		return nil
	}
	if op.PaymasterVerificationGasLimit != nil || op.PaymasterPostOpGasLimit != nil || len(op.PaymasterData) > 0 {
		return aaerr.NewValidationError("paymaster", "paymaster gas limits or data set without a paymaster")
	}
	return nil
}

// Pack converts op to the EntryPoint's packed form.
func Pack(op *UserOperation) (*PackedUserOperation, error) {
	nonce, err := PackNonce(op.Nonce, op.NonceKey)
	if err != nil {
		return nil, err
	}
	accountGasLimits, err := PackUint(op.VerificationGasLimit, op.CallGasLimit)
	if err != nil {
		return nil, aaerr.NewValidationError("accountGasLimits", err.Error())
	}
	gasFees, err := PackUint(op.MaxPriorityFeePerGas, op.MaxFeePerGas)
	if err != nil {
		return nil, aaerr.NewValidationError("gasFees", err.Error())
	}
	pmd, err := PaymasterAndData(op)
	if err != nil {
		return nil, err
	}
	pvg := orZero(op.PreVerificationGas)
	if pvg.Sign() < 0 || pvg.BitLen() > 256 {
		return nil, aaerr.NewValidationError("preVerificationGas", "out of uint256 range")
	}

	return &PackedUserOperation{
		Sender:             op.Sender,
		Nonce:              nonce,
		InitCode:           InitCode(op),
		CallData:           bytesOrEmpty(common.CopyBytes(op.CallData)),
		AccountGasLimits:   accountGasLimits,
		PreVerificationGas: new(big.Int).Set(pvg),
		GasFees:            gasFees,
		PaymasterAndData:   pmd,
		Signature:          bytesOrEmpty(common.CopyBytes(op.Signature)),
	}, nil
}

// Unpack converts a packed operation back to its friendly form. The nonce
// is returned whole with no NonceKey.
func Unpack(p *PackedUserOperation) (*UserOperation, error) {
	op := &UserOperation{
		Sender:             p.Sender,
		Nonce:              cloneBig(orZero(p.Nonce)),
		CallData:           common.CopyBytes(p.CallData),
		PreVerificationGas: cloneBig(orZero(p.PreVerificationGas)),
		Signature:          common.CopyBytes(p.Signature),
	}
	op.VerificationGasLimit, op.CallGasLimit = UnpackUint(p.AccountGasLimits)
	op.MaxPriorityFeePerGas, op.MaxFeePerGas = UnpackUint(p.GasFees)

	switch {
	case len(p.InitCode) == 0:
	case len(p.InitCode) < common.AddressLength:
		return nil, aaerr.NewValidationError("initCode", "shorter than an address")
	default:
		factory := common.BytesToAddress(p.InitCode[:common.AddressLength])
		op.Factory = &factory
		op.FactoryData = common.CopyBytes(p.InitCode[common.AddressLength:])
	}

	switch {
	case len(p.PaymasterAndData) == 0:
	case len(p.PaymasterAndData) < PaymasterDataOffset:
		return nil, aaerr.NewValidationError("paymasterAndData", "shorter than paymaster address and gas limits")
	default:
		pm := common.BytesToAddress(p.PaymasterAndData[:common.AddressLength])
		var gas [32]byte
		copy(gas[:], p.PaymasterAndData[common.AddressLength:PaymasterDataOffset])
		op.Paymaster = &pm
		op.PaymasterVerificationGasLimit, op.PaymasterPostOpGasLimit = UnpackUint(gas)
		op.PaymasterData = common.CopyBytes(p.PaymasterAndData[PaymasterDataOffset:])
	}
	return op, nil
}

func toUint128(v *big.Int) (*uint256.Int, error) {
	if v == nil {
		return new(uint256.Int), nil
	}
	if v.Sign() < 0 {
		return nil, fmt.Errorf("negative value %s", v)
	}
	if v.BitLen() > uint128Bits {
		return nil, fmt.Errorf("value %s exceeds 128 bits", v)
	}
	u, _ := uint256.FromBig(v)
	return u, nil
}
