package proc

import (
	"encoding/binary"
	"fmt"
	"math"
	"strings"

	"github.com/sdb-debugger/sdb/pkg/proc/amd64util"
)

// RegisterValue is the value of a register. The set of implementations is
// closed: U8, U16, U32, U64, I8, I16, I32, I64, F32, F64, F80, Byte64 and
// Byte128.
type RegisterValue interface {
	// Size is the natural size of the value in bytes.
	Size() int
	// Bytes returns the little endian in-memory representation of the value.
	Bytes() []byte
	String() string

	registerValue()
}

type (
	U8  uint8
	U16 uint16
	U32 uint32
	U64 uint64
	I8  int8
	I16 int16
	I32 int32
	I64 int64
	F32 float32
	F64 float64

	// F80 is an x87 double extended precision value.
	F80 [amd64util.F80Size]byte

	Byte64  [8]byte
	Byte128 [16]byte
)

func (U8) registerValue()      {}
func (U16) registerValue()     {}
func (U32) registerValue()     {}
func (U64) registerValue()     {}
func (I8) registerValue()      {}
func (I16) registerValue()     {}
func (I32) registerValue()     {}
func (I64) registerValue()     {}
func (F32) registerValue()     {}
func (F64) registerValue()     {}
func (F80) registerValue()     {}
func (Byte64) registerValue()  {}
func (Byte128) registerValue() {}

func (U8) Size() int  { return 1 }
func (U16) Size() int { return 2 }
func (U32) Size() int { return 4 }
func (U64) Size() int { return 8 }
func (I8) Size() int  { return 1 }
func (I16) Size() int { return 2 }
func (I32) Size() int { return 4 }
func (I64) Size() int { return 8 }
func (F32) Size() int { return 4 }
func (F64) Size() int { return 8 }

// Size returns 16, the storage size of a long double on x86-64.
func (F80) Size() int     { return 16 }
func (Byte64) Size() int  { return 8 }
func (Byte128) Size() int { return 16 }

func (v U8) Bytes() []byte { return []byte{byte(v)} }
func (v U16) Bytes() []byte {
	return binary.LittleEndian.AppendUint16(nil, uint16(v))
}
func (v U32) Bytes() []byte {
	return binary.LittleEndian.AppendUint32(nil, uint32(v))
}
func (v U64) Bytes() []byte {
	return binary.LittleEndian.AppendUint64(nil, uint64(v))
}
func (v I8) Bytes() []byte  { return U8(v).Bytes() }
func (v I16) Bytes() []byte { return U16(v).Bytes() }
func (v I32) Bytes() []byte { return U32(v).Bytes() }
func (v I64) Bytes() []byte { return U64(v).Bytes() }
func (v F32) Bytes() []byte {
	return binary.LittleEndian.AppendUint32(nil, math.Float32bits(float32(v)))
}
func (v F64) Bytes() []byte {
	return binary.LittleEndian.AppendUint64(nil, math.Float64bits(float64(v)))
}
func (v F80) Bytes() []byte {
	b := make([]byte, 16)
	copy(b, v[:])
	return b
}
func (v Byte64) Bytes() []byte  { return append([]byte(nil), v[:]...) }
func (v Byte128) Bytes() []byte { return append([]byte(nil), v[:]...) }

func (v U8) String() string  { return fmt.Sprintf("%#02x", uint8(v)) }
func (v U16) String() string { return fmt.Sprintf("%#04x", uint16(v)) }
func (v U32) String() string { return fmt.Sprintf("%#08x", uint32(v)) }
func (v U64) String() string { return fmt.Sprintf("%#016x", uint64(v)) }
func (v I8) String() string  { return fmt.Sprintf("%d", int8(v)) }
func (v I16) String() string { return fmt.Sprintf("%d", int16(v)) }
func (v I32) String() string { return fmt.Sprintf("%d", int32(v)) }
func (v I64) String() string { return fmt.Sprintf("%d", int64(v)) }
func (v F32) String() string { return fmt.Sprintf("%g", float32(v)) }
func (v F64) String() string { return fmt.Sprintf("%g", float64(v)) }
func (v F80) String() string { return fmt.Sprintf("%g", v.Float64()) }
func (v Byte64) String() string {
	return formatByteVector(v[:])
}
func (v Byte128) String() string {
	return formatByteVector(v[:])
}

// NewF80 converts f to extended precision.
func NewF80(f float64) F80 {
	return F80(amd64util.Float64ToF80(f))
}

// Float64 returns v rounded to the nearest float64.
func (v F80) Float64() float64 {
	return amd64util.F80ToFloat64(v[:])
}

func formatByteVector(b []byte) string {
	var buf strings.Builder
	buf.WriteByte('[')
	for i := range b {
		if i > 0 {
			buf.WriteByte(',')
		}
		fmt.Fprintf(&buf, "%#02x", b[i])
	}
	buf.WriteByte(']')
	return buf.String()
}

// ValueFromBytes interprets the register image b according to the size and
// format described by info. b must hold at least info.Size bytes.
func ValueFromBytes(info RegisterInfo, b []byte) (RegisterValue, error) {
	switch info.Format {
	case RegisterFormatUInt:
		switch info.Size {
		case 1:
			return U8(b[0]), nil
		case 2:
			return U16(binary.LittleEndian.Uint16(b)), nil
		case 4:
			return U32(binary.LittleEndian.Uint32(b)), nil
		case 8:
			return U64(binary.LittleEndian.Uint64(b)), nil
		}
	case RegisterFormatDoubleFloat:
		if info.Size == 8 {
			return F64(math.Float64frombits(binary.LittleEndian.Uint64(b))), nil
		}
	case RegisterFormatLongDouble:
		if info.Size == 10 || info.Size == 16 {
			var v F80
			copy(v[:], b)
			return v, nil
		}
	case RegisterFormatVector:
		switch info.Size {
		case 8:
			var v Byte64
			copy(v[:], b)
			return v, nil
		case 16:
			var v Byte128
			copy(v[:], b)
			return v, nil
		}
	}
	return nil, UnsupportedRegisterError{Register: info.Name}
}

// WidenValue converts v to the representation stored in the register
// described by info and returns it as a 16 byte image. Only the first
// info.Size bytes are meaningful.
//
// Floating point values are converted to the float encoding of the
// register (extended values are stored as is in long double registers), signed integers are sign extended to the register size,
// unsigned integers and byte vectors are copied unchanged.
func WidenValue(info RegisterInfo, v RegisterValue) ([16]byte, error) {
	var out [16]byte
	if v.Size() > info.Size {
		return out, ValueTooLargeError{Register: info.Name, Size: v.Size(), RegisterSize: info.Size}
	}

	switch v := v.(type) {
	case F32:
		widenFloat(&out, info, float64(v), v)
	case F64:
		widenFloat(&out, info, float64(v), v)
	case F80:
		if info.Format == RegisterFormatLongDouble {
			copy(out[:], v[:])
			break
		}
		widenFloat(&out, info, v.Float64(), v)
	case I8:
		signExtend(&out, info, int64(v))
	case I16:
		signExtend(&out, info, int64(v))
	case I32:
		signExtend(&out, info, int64(v))
	case I64:
		signExtend(&out, info, int64(v))
	case U8, U16, U32, U64, Byte64, Byte128:
		copy(out[:], v.Bytes())
	default:
		return out, fmt.Errorf("unknown register value type %T", v)
	}
	return out, nil
}

func widenFloat(out *[16]byte, info RegisterInfo, f float64, v RegisterValue) {
	switch info.Format {
	case RegisterFormatDoubleFloat:
		binary.LittleEndian.PutUint64(out[:], math.Float64bits(f))
	case RegisterFormatLongDouble:
		x := amd64util.Float64ToF80(f)
		copy(out[:], x[:])
	default:
		copy(out[:], v.Bytes())
	}
}

func signExtend(out *[16]byte, info RegisterInfo, n int64) {
	binary.LittleEndian.PutUint64(out[:8], uint64(n))
	if n < 0 {
		for i := 8; i < info.Size && i < len(out); i++ {
			out[i] = 0xff
		}
	}
}
