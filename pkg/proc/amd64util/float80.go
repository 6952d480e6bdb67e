package amd64util

import (
	"encoding/binary"
	"math"
	"math/bits"
)

// x87 double extended precision format: 64 bit mantissa with an explicit
// integer bit, 15 bit exponent, sign bit.
const (
	f80SignBit    = 1 << 15
	f80ExpBias    = (1 << 14) - 1 // 2^(n-1) - 1 = 16383
	f80SpecialExp = (1 << 15) - 1 // all bits set
	f80HighBit    = 1 << 63

	f64ExpBias = 1023
)

// F80Size is the number of significant bytes of an extended precision
// value. The x86-64 ABI stores them in 16 byte slots.
const F80Size = 10

// Float64ToF80 converts f to the x87 extended precision format. Every
// float64 is exactly representable so no rounding happens.
func Float64ToF80(f float64) [F80Size]byte {
	fbits := math.Float64bits(f)
	sign := uint16(fbits>>63) << 15
	exp := int((fbits >> 52) & 0x7ff)
	frac := fbits & (1<<52 - 1)

	var mantissa uint64
	var exponent uint16

	switch {
	case exp == 0 && frac == 0:
		// signed zero
	case exp == 0x7ff:
		exponent = f80SpecialExp
		mantissa = f80HighBit | frac<<11
	case exp == 0:
		// float64 denormals are normal numbers in extended precision
		lz := bits.LeadingZeros64(frac)
		mantissa = frac << uint(lz)
		exponent = uint16(63 - 1074 - lz + f80ExpBias)
	default:
		mantissa = f80HighBit | frac<<11
		exponent = uint16(exp - f64ExpBias + f80ExpBias)
	}

	var out [F80Size]byte
	binary.LittleEndian.PutUint64(out[:8], mantissa)
	binary.LittleEndian.PutUint16(out[8:], exponent|sign)
	return out
}

// F80ToFloat64 converts an x87 extended precision value to the nearest
// float64. b must contain at least F80Size bytes.
func F80ToFloat64(b []byte) float64 {
	mantissa := binary.LittleEndian.Uint64(b[:8])
	exponent := binary.LittleEndian.Uint16(b[8:])

	sign := 1.0
	if exponent&f80SignBit != 0 {
		sign = -1.0
	}
	exponent &^= f80SignBit

	switch exponent {
	case 0:
		if mantissa == 0 {
			return math.Copysign(0, sign)
		}
		significand := float64(mantissa) / (1 << 63)
		return sign * math.Ldexp(significand, 1-f80ExpBias)
	case f80SpecialExp:
		if mantissa<<1 == 0 {
			return math.Inf(int(sign))
		}
		return math.NaN()
	}
	if mantissa&f80HighBit == 0 {
		// unnormal
		return math.NaN()
	}
	significand := float64(mantissa) / (1 << 63)
	return sign * math.Ldexp(significand, int(exponent)-f80ExpBias)
}
