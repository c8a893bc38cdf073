package bundler

import (
	"fmt"
	"math/big"
	"reflect"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
)

var (
	bigIntType = reflect.TypeOf(big.Int{})
	hexBigType = reflect.TypeOf(hexutil.Big{})
	addrType   = reflect.TypeOf(common.Address{})
	hashType   = reflect.TypeOf(common.Hash{})
)

// DeepHexlify normalizes a payload for the wire: integers become minimal
// 0x hex, byte slices and arrays become full 0x hex, addresses and hashes
// use their canonical hex form. Strings, bools and nil pass through.
// Functions and channels are dropped. Slices, maps and structs are walked
// recursively; structs become maps keyed by their json names.
func DeepHexlify(v interface{}) interface{} {
	out, _ := hexlify(reflect.ValueOf(v))
	return out
}

func hexlify(v reflect.Value) (interface{}, bool) {
	if !v.IsValid() {
		return nil, true
	}

	switch v.Type() {
	case bigIntType:
		b := v.Interface().(big.Int)
		return hexutil.EncodeBig(&b), true
	case hexBigType:
		b := v.Interface().(hexutil.Big)
		return hexutil.EncodeBig(b.ToInt()), true
	case addrType:
		return v.Interface().(common.Address).Hex(), true
	case hashType:
		return v.Interface().(common.Hash).Hex(), true
	}

	switch v.Kind() {
	case reflect.Func, reflect.Chan, reflect.UnsafePointer:
		return nil, false
	case reflect.Pointer, reflect.Interface:
		if v.IsNil() {
			return nil, true
		}
		return hexlify(v.Elem())
	case reflect.String:
		return v.String(), true
	case reflect.Bool:
		return v.Bool(), true
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		return hexutil.EncodeBig(big.NewInt(v.Int())), true
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64, reflect.Uintptr:
		return hexutil.EncodeUint64(v.Uint()), true
	case reflect.Float32, reflect.Float64:
		return v.Float(), true
	case reflect.Slice:
		if v.IsNil() {
			return nil, true
		}
		if v.Type().Elem().Kind() == reflect.Uint8 {
			return hexutil.Encode(v.Bytes()), true
		}
		return hexlifyList(v), true
	case reflect.Array:
		if v.Type().Elem().Kind() == reflect.Uint8 {
			buf := make([]byte, v.Len())
			reflect.Copy(reflect.ValueOf(buf), v)
			return hexutil.Encode(buf), true
		}
		return hexlifyList(v), true
	case reflect.Map:
		if v.IsNil() {
			return nil, true
		}
		out := make(map[string]interface{}, v.Len())
		iter := v.MapRange()
		for iter.Next() {
			if val, keep := hexlify(iter.Value()); keep {
				out[mapKey(iter.Key())] = val
			}
		}
		return out, true
	case reflect.Struct:
		return hexlifyStruct(v), true
	}
	return v.Interface(), true
}

func hexlifyList(v reflect.Value) []interface{} {
	out := make([]interface{}, 0, v.Len())
	for i := 0; i < v.Len(); i++ {
		if val, keep := hexlify(v.Index(i)); keep {
			out = append(out, val)
		}
	}
	return out
}

func hexlifyStruct(v reflect.Value) map[string]interface{} {
	t := v.Type()
	out := make(map[string]interface{}, t.NumField())
	for i := 0; i < t.NumField(); i++ {
		f := t.Field(i)
		if !f.IsExported() {
			continue
		}
		name := f.Name
		if tag := f.Tag.Get("json"); tag != "" {
			tagName := strings.Split(tag, ",")[0]
			if tagName == "-" {
				continue
			}
			if tagName != "" {
				name = tagName
			}
		}
		if val, keep := hexlify(v.Field(i)); keep {
			out[name] = val
		}
	}
	return out
}

func mapKey(k reflect.Value) string {
	if k.Kind() == reflect.String {
		return k.String()
	}
	if s, ok := k.Interface().(fmt.Stringer); ok {
		return s.String()
	}
	return fmt.Sprint(k.Interface())
}
