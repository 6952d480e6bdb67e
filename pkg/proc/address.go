package proc

import (
	"fmt"

	"golang.org/x/exp/constraints"
)

// A VirtualAddress is a location in the inferior's address space.
type VirtualAddress uint64

// Add adds n to address a.
func (a VirtualAddress) Add(n int64) VirtualAddress {
	return a + VirtualAddress(n)
}

// Sub subtracts n from address a.
func (a VirtualAddress) Sub(n int64) VirtualAddress {
	return a - VirtualAddress(n)
}

// Distance returns a - b.
func (a VirtualAddress) Distance(b VirtualAddress) int64 {
	return int64(a - b)
}

// Align rounds a up to a multiple of x, which must be a power of 2.
func (a VirtualAddress) Align(x uint64) VirtualAddress {
	return VirtualAddress(Align(uint64(a), x))
}

// AlignDown rounds a down to a multiple of x, which must be a power of 2.
func (a VirtualAddress) AlignDown(x uint64) VirtualAddress {
	return VirtualAddress(AlignDown(uint64(a), x))
}

func (a VirtualAddress) String() string {
	return fmt.Sprintf("0x%016x", uint64(a))
}

// Align rounds a up to a multiple of b. b must be a power of 2.
func Align[I constraints.Integer](a, b I) I {
	return (a + b - 1) &^ (b - 1)
}

// AlignDown rounds a down to a multiple of b. b must be a power of 2.
func AlignDown[I constraints.Integer](a, b I) I {
	return a &^ (b - 1)
}
