package starbind

import (
	"fmt"
	"strconv"
	"strings"

	"go.starlark.net/starlark"

	"github.com/sdb-debugger/sdb/pkg/proc"
)

// registerValueToStarlark converts a register value to a starlark value.
// Vector registers become a list of byte values.
func registerValueToStarlark(v proc.RegisterValue) starlark.Value {
	switch v := v.(type) {
	case proc.U8:
		return starlark.MakeUint64(uint64(v))
	case proc.U16:
		return starlark.MakeUint64(uint64(v))
	case proc.U32:
		return starlark.MakeUint64(uint64(v))
	case proc.U64:
		return starlark.MakeUint64(uint64(v))
	case proc.I8:
		return starlark.MakeInt64(int64(v))
	case proc.I16:
		return starlark.MakeInt64(int64(v))
	case proc.I32:
		return starlark.MakeInt64(int64(v))
	case proc.I64:
		return starlark.MakeInt64(int64(v))
	case proc.F32:
		return starlark.Float(float64(v))
	case proc.F64:
		return starlark.Float(float64(v))
	case proc.F80:
		return starlark.Float(v.Float64())
	}
	return bytesToStarlark(v.Bytes())
}

func bytesToStarlark(data []byte) *starlark.List {
	elems := make([]starlark.Value, len(data))
	for i, b := range data {
		elems[i] = starlark.MakeInt(int(b))
	}
	return starlark.NewList(elems)
}

// starlarkToLiteral formats v with the syntax accepted by
// proc.ParseRegisterValue.
func starlarkToLiteral(v starlark.Value) (string, error) {
	switch v := v.(type) {
	case starlark.String:
		return string(v), nil
	case starlark.Int:
		return v.String(), nil
	case starlark.Float:
		return strconv.FormatFloat(float64(v), 'g', -1, 64), nil
	case starlark.Indexable:
		data, err := toBytes(v)
		if err != nil {
			return "", err
		}
		elems := make([]string, len(data))
		for i, b := range data {
			elems[i] = fmt.Sprintf("%#02x", b)
		}
		return "[" + strings.Join(elems, ",") + "]", nil
	}
	return "", fmt.Errorf("can not use a value of type %s as a register value", v.Type())
}

func toUint64(v starlark.Value, what string) (uint64, error) {
	i, ok := v.(starlark.Int)
	if !ok {
		return 0, fmt.Errorf("%s must be an integer, got %s", what, v.Type())
	}
	n, ok := i.Uint64()
	if !ok {
		return 0, fmt.Errorf("%s %s out of range", what, i)
	}
	return n, nil
}

func toBytes(v starlark.Value) ([]byte, error) {
	seq, ok := v.(starlark.Indexable)
	if !ok {
		return nil, fmt.Errorf("expected a list of bytes, got %s", v.Type())
	}
	r := make([]byte, seq.Len())
	for i := range r {
		n, err := toUint64(seq.Index(i), "element "+strconv.Itoa(i))
		if err != nil {
			return nil, err
		}
		if n > 0xff {
			return nil, fmt.Errorf("element %d (%d) does not fit in a byte", i, n)
		}
		r[i] = byte(n)
	}
	return r, nil
}
