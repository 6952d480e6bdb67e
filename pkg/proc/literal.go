package proc

import (
	"strconv"
	"strings"
	"unsafe"

	"golang.org/x/exp/constraints"
)

// ParseInteger parses a decimal or 0x prefixed hexadecimal literal into an
// integer of type I. Values that do not fit I are rejected.
func ParseInteger[I constraints.Integer](s string) (I, error) {
	base := 10
	digits := s
	if strings.HasPrefix(s, "0x") {
		base = 16
		digits = s[2:]
	}
	bitSize := int(unsafe.Sizeof(I(0))) * 8

	if I(0)-1 < 0 {
		n, err := strconv.ParseInt(digits, base, bitSize)
		if err != nil || digits == "" {
			return 0, ParseError{Input: s}
		}
		return I(n), nil
	}
	n, err := strconv.ParseUint(digits, base, bitSize)
	if err != nil || digits == "" {
		return 0, ParseError{Input: s}
	}
	return I(n), nil
}

// ParseAddress parses a hexadecimal address. The 0x prefix is optional.
func ParseAddress(s string) (VirtualAddress, error) {
	digits := strings.TrimPrefix(s, "0x")
	n, err := strconv.ParseUint(digits, 16, 64)
	if err != nil {
		return 0, ParseError{Input: s, Msg: "expected a hexadecimal address"}
	}
	return VirtualAddress(n), nil
}

// ParseByteList parses a list of bytes written as [0xNN,0xNN,...]. Every
// element must be exactly four characters long.
func ParseByteList(s string) ([]byte, error) {
	if len(s) < 2 || s[0] != '[' || s[len(s)-1] != ']' {
		return nil, ParseError{Input: s, Msg: "expected [0xNN,...]"}
	}
	body := s[1 : len(s)-1]
	if body == "" {
		return []byte{}, nil
	}
	elems := strings.Split(body, ",")
	r := make([]byte, 0, len(elems))
	for _, e := range elems {
		if len(e) != 4 || !strings.HasPrefix(e, "0x") {
			return nil, ParseError{Input: s, Msg: "bad element " + strconv.Quote(e)}
		}
		b, err := strconv.ParseUint(e[2:], 16, 8)
		if err != nil {
			return nil, ParseError{Input: s, Msg: "bad element " + strconv.Quote(e)}
		}
		r = append(r, byte(b))
	}
	return r, nil
}

// ParseByteVector parses a byte list that must contain exactly n elements.
func ParseByteVector(s string, n int) ([]byte, error) {
	b, err := ParseByteList(s)
	if err != nil {
		return nil, err
	}
	if len(b) != n {
		return nil, ParseError{Input: s, Msg: "expected " + strconv.Itoa(n) + " bytes"}
	}
	return b, nil
}

// ParseRegisterValue parses s as a value for the register described by
// info. Integer registers take decimal or 0x prefixed hexadecimal
// literals sized to the register, float registers take floating point
// literals, vector registers take byte lists of exactly the register size.
func ParseRegisterValue(info RegisterInfo, s string) (RegisterValue, error) {
	switch info.Format {
	case RegisterFormatUInt:
		switch info.Size {
		case 1:
			n, err := ParseInteger[uint8](s)
			if err != nil {
				return nil, err
			}
			return U8(n), nil
		case 2:
			n, err := ParseInteger[uint16](s)
			if err != nil {
				return nil, err
			}
			return U16(n), nil
		case 4:
			n, err := ParseInteger[uint32](s)
			if err != nil {
				return nil, err
			}
			return U32(n), nil
		case 8:
			n, err := ParseInteger[uint64](s)
			if err != nil {
				return nil, err
			}
			return U64(n), nil
		}
	case RegisterFormatDoubleFloat:
		f, err := strconv.ParseFloat(s, 64)
		if err != nil {
			return nil, ParseError{Input: s}
		}
		return F64(f), nil
	case RegisterFormatLongDouble:
		f, err := strconv.ParseFloat(s, 64)
		if err != nil {
			return nil, ParseError{Input: s}
		}
		return NewF80(f), nil
	case RegisterFormatVector:
		switch info.Size {
		case 8:
			b, err := ParseByteVector(s, 8)
			if err != nil {
				return nil, err
			}
			return Byte64(b), nil
		case 16:
			b, err := ParseByteVector(s, 16)
			if err != nil {
				return nil, err
			}
			return Byte128(b), nil
		}
	}
	return nil, UnsupportedRegisterError{Register: info.Name}
}
