package contract

import (
	"encoding/json"
	"fmt"
	"math/big"
	"reflect"
	"strings"

	xerrors "WalletBridge/internal/errors"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
)

// ConvertArgs turns JSON encoded arguments into the Go values the ABI
// packer expects for method. Integers may be JSON numbers, decimal strings
// or 0x-prefixed hex strings; bytes are 0x-prefixed hex.
func ConvertArgs(method abi.Method, raw []json.RawMessage) ([]any, error) {
	if len(raw) != len(method.Inputs) {
		return nil, xerrors.New(xerrors.CodeInvalidArgument,
			fmt.Sprintf("method %s expects %d arguments, got %d", method.Name, len(method.Inputs), len(raw)))
	}
	out := make([]any, len(raw))
	for i, input := range method.Inputs {
		v, err := convertValue(input.Type, raw[i])
		if err != nil {
			return nil, xerrors.Wrapf(xerrors.CodeInvalidArgument, err, "argument %d (%s)", i, input.Type.String())
		}
		out[i] = v.Interface()
	}
	return out, nil
}

func convertValue(t abi.Type, raw json.RawMessage) (reflect.Value, error) {
	switch t.T {
	case abi.IntTy, abi.UintTy:
		n, err := parseInteger(raw)
		if err != nil {
			return reflect.Value{}, err
		}
		return integerValue(t, n)
	case abi.BoolTy:
		var b bool
		if err := json.Unmarshal(raw, &b); err != nil {
			return reflect.Value{}, err
		}
		return reflect.ValueOf(b), nil
	case abi.StringTy:
		var s string
		if err := json.Unmarshal(raw, &s); err != nil {
			return reflect.Value{}, err
		}
		return reflect.ValueOf(s), nil
	case abi.AddressTy:
		var s string
		if err := json.Unmarshal(raw, &s); err != nil {
			return reflect.Value{}, err
		}
		if !common.IsHexAddress(s) {
			return reflect.Value{}, fmt.Errorf("invalid address %q", s)
		}
		return reflect.ValueOf(common.HexToAddress(s)), nil
	case abi.BytesTy:
		b, err := decodeHex(raw)
		if err != nil {
			return reflect.Value{}, err
		}
		return reflect.ValueOf(b), nil
	case abi.FixedBytesTy:
		b, err := decodeHex(raw)
		if err != nil {
			return reflect.Value{}, err
		}
		if len(b) != t.Size {
			return reflect.Value{}, fmt.Errorf("expected %d bytes, got %d", t.Size, len(b))
		}
		arr := reflect.New(t.GetType()).Elem()
		reflect.Copy(arr, reflect.ValueOf(b))
		return arr, nil
	case abi.SliceTy, abi.ArrayTy:
		var items []json.RawMessage
		if err := json.Unmarshal(raw, &items); err != nil {
			return reflect.Value{}, err
		}
		var container reflect.Value
		if t.T == abi.ArrayTy {
			if len(items) != t.Size {
				return reflect.Value{}, fmt.Errorf("expected %d elements, got %d", t.Size, len(items))
			}
			container = reflect.New(t.GetType()).Elem()
		} else {
			container = reflect.MakeSlice(t.GetType(), len(items), len(items))
		}
		for i, item := range items {
			v, err := convertValue(*t.Elem, item)
			if err != nil {
				return reflect.Value{}, fmt.Errorf("element %d: %w", i, err)
			}
			container.Index(i).Set(v)
		}
		return container, nil
	default:
		return reflect.Value{}, fmt.Errorf("unsupported argument type %s", t.String())
	}
}

func parseInteger(raw json.RawMessage) (*big.Int, error) {
	var s string
	if err := json.Unmarshal(raw, &s); err != nil {
		var num json.Number
		if err := json.Unmarshal(raw, &num); err != nil {
			return nil, fmt.Errorf("expected integer, got %s", string(raw))
		}
		s = num.String()
	}
	s = strings.TrimSpace(s)
	n, ok := new(big.Int).SetString(s, 0)
	if !ok {
		return nil, fmt.Errorf("invalid integer %q", s)
	}
	return n, nil
}

func integerValue(t abi.Type, n *big.Int) (reflect.Value, error) {
	if t.T == abi.UintTy && n.Sign() < 0 {
		return reflect.Value{}, fmt.Errorf("negative value for %s", t.String())
	}
	limit, magnitude := t.Size, n
	if t.T == abi.IntTy {
		limit--
		// Signed types reach one further below zero: int8 spans -128..127.
		if n.Sign() < 0 {
			magnitude = new(big.Int).Add(n, big.NewInt(1))
		}
	}
	if magnitude.BitLen() > limit {
		return reflect.Value{}, fmt.Errorf("value overflows %s", t.String())
	}

	typ := t.GetType()
	if typ == reflect.TypeOf(&big.Int{}) {
		return reflect.ValueOf(new(big.Int).Set(n)), nil
	}
	v := reflect.New(typ).Elem()
	if t.T == abi.UintTy {
		v.SetUint(n.Uint64())
	} else {
		v.SetInt(n.Int64())
	}
	return v, nil
}

func decodeHex(raw json.RawMessage) ([]byte, error) {
	var s string
	if err := json.Unmarshal(raw, &s); err != nil {
		return nil, err
	}
	return hexutil.Decode(s)
}

// FormatOutputs renders unpacked values in a JSON friendly way: integers
// as decimal strings, byte values as hex, addresses as checksummed hex.
func FormatOutputs(values []any) []any {
	out := make([]any, len(values))
	for i, v := range values {
		out[i] = formatValue(reflect.ValueOf(v))
	}
	return out
}

func formatValue(v reflect.Value) any {
	if !v.IsValid() {
		return nil
	}
	switch x := v.Interface().(type) {
	case *big.Int:
		if x == nil {
			return "0"
		}
		return x.String()
	case common.Address:
		return x.Hex()
	case common.Hash:
		return x.Hex()
	case []byte:
		return hexutil.Encode(x)
	}

	switch v.Kind() {
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		return fmt.Sprintf("%d", v.Int())
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		return fmt.Sprintf("%d", v.Uint())
	case reflect.Array:
		if v.Type().Elem().Kind() == reflect.Uint8 {
			b := make([]byte, v.Len())
			for i := range b {
				b[i] = byte(v.Index(i).Uint())
			}
			return hexutil.Encode(b)
		}
		fallthrough
	case reflect.Slice:
		items := make([]any, v.Len())
		for i := range items {
			items[i] = formatValue(v.Index(i))
		}
		return items
	}
	return v.Interface()
}
