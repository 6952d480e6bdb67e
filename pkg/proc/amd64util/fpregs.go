package amd64util

// AMD64PtraceFpRegs tracks user_fpregs_struct in /usr/include/x86_64-linux-gnu/sys/user.h
// This is the FXSAVE image the kernel exchanges through PTRACE_GETFPREGS and
// PTRACE_SETFPREGS.
type AMD64PtraceFpRegs struct {
	Cwd      uint16
	Swd      uint16
	Ftw      uint16
	Fop      uint16
	Rip      uint64
	Rdp      uint64
	Mxcsr    uint32
	MxcrMask uint32
	StSpace  [32]uint32
	XmmSpace [256]byte
	Padding  [24]uint32
}

const (
	// AMD64FpRegsSize is the size of AMD64PtraceFpRegs.
	AMD64FpRegsSize = 512

	// StRegStride is the distance between two consecutive st (and mm)
	// registers inside StSpace.
	StRegStride = 16
	// XmmRegStride is the distance between two consecutive xmm registers
	// inside XmmSpace.
	XmmRegStride = 16
)
