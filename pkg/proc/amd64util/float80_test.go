package amd64util

import (
	"encoding/binary"
	"math"
	"testing"
)

func TestFloat64ToF80(t *testing.T) {
	tests := []struct {
		in       float64
		mantissa uint64
		exponent uint16
	}{
		{0, 0, 0},
		{1, 0x8000000000000000, 0x3fff},
		{-2, 0x8000000000000000, 0xc000},
		{64.125, 0x8040000000000000, 0x4005},
		{math.Inf(1), 0x8000000000000000, 0x7fff},
	}
	for _, tc := range tests {
		b := Float64ToF80(tc.in)
		mantissa := binary.LittleEndian.Uint64(b[:8])
		exponent := binary.LittleEndian.Uint16(b[8:])
		if mantissa != tc.mantissa || exponent != tc.exponent {
			t.Errorf("%g: got %#x %#x, expected %#x %#x", tc.in, exponent, mantissa, tc.exponent, tc.mantissa)
		}
	}
}

func TestF80RoundTrip(t *testing.T) {
	for _, f := range []float64{0, 1, -1, 42.24, 64.125, 1e300, -1e-300, math.SmallestNonzeroFloat64, math.MaxFloat64, math.Inf(-1)} {
		b := Float64ToF80(f)
		if got := F80ToFloat64(b[:]); got != f {
			t.Errorf("round trip of %g returned %g", f, got)
		}
	}
	b := Float64ToF80(math.NaN())
	if got := F80ToFloat64(b[:]); !math.IsNaN(got) {
		t.Errorf("round trip of NaN returned %g", got)
	}
}
