package preset

import (
	"fmt"
	"math/big"
	"reflect"
	"strconv"
	"strings"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"

	"github.com/AvaProtocol/aa-sdk/pkg/erc4337/aaerr"
)

// ContractCall encodes method(args...) from the JSON ABI and wraps it in a
// TransactionDetails for target. value may be nil.
func ContractCall(target common.Address, contractABI string, method string, value *big.Int, args ...interface{}) (*TransactionDetails, error) {
	parsed, err := abi.JSON(strings.NewReader(contractABI))
	if err != nil {
		return nil, aaerr.NewValidationError("abi", err.Error())
	}
	if _, ok := parsed.Methods[method]; !ok {
		return nil, aaerr.NewValidationError("method", fmt.Sprintf("%q not found in abi", method))
	}
	data, err := parsed.Pack(method, args...)
	if err != nil {
		return nil, aaerr.NewValidationError("args", err.Error())
	}

	return &TransactionDetails{
		Target: &target,
		Value:  value,
		Data:   data,
	}, nil
}

// ContractCallFromStrings is ContractCall for textual arguments, as typed on
// a command line. Each argument is converted to its ABI input type.
func ContractCallFromStrings(target common.Address, contractABI string, method string, value *big.Int, args []string) (*TransactionDetails, error) {
	parsed, err := abi.JSON(strings.NewReader(contractABI))
	if err != nil {
		return nil, aaerr.NewValidationError("abi", err.Error())
	}
	m, ok := parsed.Methods[method]
	if !ok {
		return nil, aaerr.NewValidationError("method", fmt.Sprintf("%q not found in abi", method))
	}
	if len(args) != len(m.Inputs) {
		return nil, aaerr.NewValidationError("args", fmt.Sprintf("%s takes %d arguments, got %d", method, len(m.Inputs), len(args)))
	}

	typed := make([]interface{}, len(args))
	for i, in := range m.Inputs {
		v, err := coerceArg(in.Type, args[i])
		if err != nil {
			return nil, aaerr.NewValidationError("args", fmt.Sprintf("argument %d (%s %s): %v", i, in.Type.String(), in.Name, err))
		}
		typed[i] = v
	}
	return ContractCall(target, contractABI, method, value, typed...)
}

var bigIntType = reflect.TypeOf(&big.Int{})

func coerceArg(t abi.Type, s string) (interface{}, error) {
	switch t.T {
	case abi.AddressTy:
		if !common.IsHexAddress(s) {
			return nil, fmt.Errorf("%q is not an address", s)
		}
		return common.HexToAddress(s), nil
	case abi.UintTy, abi.IntTy:
		v, ok := new(big.Int).SetString(s, 0)
		if !ok {
			return nil, fmt.Errorf("%q is not an integer", s)
		}
		if !inRange(t, v) {
			return nil, fmt.Errorf("%s out of range for %s", s, t.String())
		}
		rt := t.GetType()
		if rt == bigIntType {
			return v, nil
		}
		if t.T == abi.UintTy {
			return reflect.ValueOf(v.Uint64()).Convert(rt).Interface(), nil
		}
		return reflect.ValueOf(v.Int64()).Convert(rt).Interface(), nil
	case abi.BoolTy:
		return strconv.ParseBool(s)
	case abi.StringTy:
		return s, nil
	case abi.BytesTy:
		return hexutil.Decode(s)
	case abi.FixedBytesTy:
		b, err := hexutil.Decode(s)
		if err != nil {
			return nil, err
		}
		if len(b) != t.Size {
			return nil, fmt.Errorf("want %d bytes, got %d", t.Size, len(b))
		}
		arr := reflect.New(t.GetType()).Elem()
		reflect.Copy(arr, reflect.ValueOf(b))
		return arr.Interface(), nil
	}
	return nil, fmt.Errorf("unsupported type %s", t.String())
}

// inRange reports whether v fits uintN ([0, 2^N-1]) or intN
// ([-2^(N-1), 2^(N-1)-1]).
func inRange(t abi.Type, v *big.Int) bool {
	if t.T == abi.UintTy {
		return v.Sign() >= 0 && v.BitLen() <= t.Size
	}
	limit := new(big.Int).Lsh(big.NewInt(1), uint(t.Size-1))
	if v.Sign() < 0 {
		return v.Cmp(new(big.Int).Neg(limit)) >= 0
	}
	return v.Cmp(limit) < 0
}
