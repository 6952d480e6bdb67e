package proc

import (
	"fmt"
	"unsafe"

	"github.com/sdb-debugger/sdb/pkg/proc/amd64util"
	"github.com/sdb-debugger/sdb/pkg/proc/linutil"
)

// RegisterID identifies one of the x86-64 registers known to the debugger.
type RegisterID int

const (
	RegRAX RegisterID = iota
	RegRDX
	RegRCX
	RegRBX
	RegRSI
	RegRDI
	RegRBP
	RegRSP
	RegR8
	RegR9
	RegR10
	RegR11
	RegR12
	RegR13
	RegR14
	RegR15
	RegRIP
	RegEFLAGS
	RegCS
	RegFS
	RegGS
	RegSS
	RegDS
	RegES
	RegOrigRAX
	RegEAX
	RegEDX
	RegECX
	RegEBX
	RegESI
	RegEDI
	RegEBP
	RegESP
	RegR8D
	RegR9D
	RegR10D
	RegR11D
	RegR12D
	RegR13D
	RegR14D
	RegR15D
	RegAX
	RegDX
	RegCX
	RegBX
	RegSI
	RegDI
	RegBP
	RegSP
	RegR8W
	RegR9W
	RegR10W
	RegR11W
	RegR12W
	RegR13W
	RegR14W
	RegR15W
	RegAH
	RegDH
	RegCH
	RegBH
	RegAL
	RegDL
	RegCL
	RegBL
	RegSIL
	RegDIL
	RegBPL
	RegSPL
	RegR8B
	RegR9B
	RegR10B
	RegR11B
	RegR12B
	RegR13B
	RegR14B
	RegR15B
	RegFCW
	RegFSW
	RegFTW
	RegFOP
	RegFRIP
	RegFRDP
	RegMXCSR
	RegMXCSRMask
	RegST0
	RegST1
	RegST2
	RegST3
	RegST4
	RegST5
	RegST6
	RegST7
	RegMM0
	RegMM1
	RegMM2
	RegMM3
	RegMM4
	RegMM5
	RegMM6
	RegMM7
	RegXMM0
	RegXMM1
	RegXMM2
	RegXMM3
	RegXMM4
	RegXMM5
	RegXMM6
	RegXMM7
	RegXMM8
	RegXMM9
	RegXMM10
	RegXMM11
	RegXMM12
	RegXMM13
	RegXMM14
	RegXMM15
	RegDR0
	RegDR1
	RegDR2
	RegDR3
	RegDR4
	RegDR5
	RegDR6
	RegDR7
)

// userArea is only used to compute field offsets.
var userArea linutil.AMD64User

func gprOffset(off uintptr) int {
	return int(unsafe.Offsetof(userArea.Regs) + off)
}

func fprOffset(off uintptr) int {
	return int(unsafe.Offsetof(userArea.I387) + off)
}

func gpr64(id RegisterID, name string, dwarfID int, off uintptr) RegisterInfo {
	return RegisterInfo{ID: id, Name: name, DwarfID: dwarfID, Size: 8, Offset: gprOffset(off), Class: RegisterClassGPR, Format: RegisterFormatUInt}
}

func subGPR(id RegisterID, name string, size int, super uintptr) RegisterInfo {
	return RegisterInfo{ID: id, Name: name, DwarfID: -1, Size: size, Offset: gprOffset(super), Class: RegisterClassSubGPR, Format: RegisterFormatUInt}
}

// subGPR8H describes ah, bh, ch and dh, which live in the second byte of
// their parent register.
func subGPR8H(id RegisterID, name string, super uintptr) RegisterInfo {
	return RegisterInfo{ID: id, Name: name, DwarfID: -1, Size: 1, Offset: gprOffset(super) + 1, Class: RegisterClassSubGPR, Format: RegisterFormatUInt}
}

func fpr(id RegisterID, name string, dwarfID, size int, off uintptr) RegisterInfo {
	return RegisterInfo{ID: id, Name: name, DwarfID: dwarfID, Size: size, Offset: fprOffset(off), Class: RegisterClassFPR, Format: RegisterFormatUInt}
}

func fpST(n int) RegisterInfo {
	return RegisterInfo{
		ID:      RegST0 + RegisterID(n),
		Name:    fmt.Sprintf("st%d", n),
		DwarfID: 33 + n,
		Size:    16,
		Offset:  fprOffset(unsafe.Offsetof(userArea.I387.StSpace)) + n*amd64util.StRegStride,
		Class:   RegisterClassFPR,
		Format:  RegisterFormatLongDouble,
	}
}

func fpMM(n int) RegisterInfo {
	return RegisterInfo{
		ID:      RegMM0 + RegisterID(n),
		Name:    fmt.Sprintf("mm%d", n),
		DwarfID: 41 + n,
		Size:    8,
		Offset:  fprOffset(unsafe.Offsetof(userArea.I387.StSpace)) + n*amd64util.StRegStride,
		Class:   RegisterClassFPR,
		Format:  RegisterFormatVector,
	}
}

func fpXMM(n int) RegisterInfo {
	return RegisterInfo{
		ID:      RegXMM0 + RegisterID(n),
		Name:    fmt.Sprintf("xmm%d", n),
		DwarfID: 17 + n,
		Size:    16,
		Offset:  fprOffset(unsafe.Offsetof(userArea.I387.XmmSpace)) + n*amd64util.XmmRegStride,
		Class:   RegisterClassFPR,
		Format:  RegisterFormatVector,
	}
}

func dr(n int) RegisterInfo {
	return RegisterInfo{
		ID:      RegDR0 + RegisterID(n),
		Name:    fmt.Sprintf("dr%d", n),
		DwarfID: -1,
		Size:    8,
		Offset:  int(unsafe.Offsetof(userArea.UDebugreg)) + n*8,
		Class:   RegisterClassDR,
		Format:  RegisterFormatUInt,
	}
}

// RegisterInfos describes every register, indexed by RegisterID.
var RegisterInfos = []RegisterInfo{
	// general purpose registers
	gpr64(RegRAX, "rax", 0, unsafe.Offsetof(userArea.Regs.Rax)),
	gpr64(RegRDX, "rdx", 1, unsafe.Offsetof(userArea.Regs.Rdx)),
	gpr64(RegRCX, "rcx", 2, unsafe.Offsetof(userArea.Regs.Rcx)),
	gpr64(RegRBX, "rbx", 3, unsafe.Offsetof(userArea.Regs.Rbx)),
	gpr64(RegRSI, "rsi", 4, unsafe.Offsetof(userArea.Regs.Rsi)),
	gpr64(RegRDI, "rdi", 5, unsafe.Offsetof(userArea.Regs.Rdi)),
	gpr64(RegRBP, "rbp", 6, unsafe.Offsetof(userArea.Regs.Rbp)),
	gpr64(RegRSP, "rsp", 7, unsafe.Offsetof(userArea.Regs.Rsp)),
	gpr64(RegR8, "r8", 8, unsafe.Offsetof(userArea.Regs.R8)),
	gpr64(RegR9, "r9", 9, unsafe.Offsetof(userArea.Regs.R9)),
	gpr64(RegR10, "r10", 10, unsafe.Offsetof(userArea.Regs.R10)),
	gpr64(RegR11, "r11", 11, unsafe.Offsetof(userArea.Regs.R11)),
	gpr64(RegR12, "r12", 12, unsafe.Offsetof(userArea.Regs.R12)),
	gpr64(RegR13, "r13", 13, unsafe.Offsetof(userArea.Regs.R13)),
	gpr64(RegR14, "r14", 14, unsafe.Offsetof(userArea.Regs.R14)),
	gpr64(RegR15, "r15", 15, unsafe.Offsetof(userArea.Regs.R15)),
	gpr64(RegRIP, "rip", 16, unsafe.Offsetof(userArea.Regs.Rip)),
	gpr64(RegEFLAGS, "eflags", 49, unsafe.Offsetof(userArea.Regs.Eflags)),
	gpr64(RegCS, "cs", 51, unsafe.Offsetof(userArea.Regs.Cs)),
	gpr64(RegFS, "fs", 54, unsafe.Offsetof(userArea.Regs.Fs)),
	gpr64(RegGS, "gs", 55, unsafe.Offsetof(userArea.Regs.Gs)),
	gpr64(RegSS, "ss", 52, unsafe.Offsetof(userArea.Regs.Ss)),
	gpr64(RegDS, "ds", 53, unsafe.Offsetof(userArea.Regs.Ds)),
	gpr64(RegES, "es", 50, unsafe.Offsetof(userArea.Regs.Es)),
	gpr64(RegOrigRAX, "orig_rax", -1, unsafe.Offsetof(userArea.Regs.Orig_rax)),

	// lower 32 bits
	subGPR(RegEAX, "eax", 4, unsafe.Offsetof(userArea.Regs.Rax)),
	subGPR(RegEDX, "edx", 4, unsafe.Offsetof(userArea.Regs.Rdx)),
	subGPR(RegECX, "ecx", 4, unsafe.Offsetof(userArea.Regs.Rcx)),
	subGPR(RegEBX, "ebx", 4, unsafe.Offsetof(userArea.Regs.Rbx)),
	subGPR(RegESI, "esi", 4, unsafe.Offsetof(userArea.Regs.Rsi)),
	subGPR(RegEDI, "edi", 4, unsafe.Offsetof(userArea.Regs.Rdi)),
	subGPR(RegEBP, "ebp", 4, unsafe.Offsetof(userArea.Regs.Rbp)),
	subGPR(RegESP, "esp", 4, unsafe.Offsetof(userArea.Regs.Rsp)),
	subGPR(RegR8D, "r8d", 4, unsafe.Offsetof(userArea.Regs.R8)),
	subGPR(RegR9D, "r9d", 4, unsafe.Offsetof(userArea.Regs.R9)),
	subGPR(RegR10D, "r10d", 4, unsafe.Offsetof(userArea.Regs.R10)),
	subGPR(RegR11D, "r11d", 4, unsafe.Offsetof(userArea.Regs.R11)),
	subGPR(RegR12D, "r12d", 4, unsafe.Offsetof(userArea.Regs.R12)),
	subGPR(RegR13D, "r13d", 4, unsafe.Offsetof(userArea.Regs.R13)),
	subGPR(RegR14D, "r14d", 4, unsafe.Offsetof(userArea.Regs.R14)),
	subGPR(RegR15D, "r15d", 4, unsafe.Offsetof(userArea.Regs.R15)),

	// lower 16 bits
	subGPR(RegAX, "ax", 2, unsafe.Offsetof(userArea.Regs.Rax)),
	subGPR(RegDX, "dx", 2, unsafe.Offsetof(userArea.Regs.Rdx)),
	subGPR(RegCX, "cx", 2, unsafe.Offsetof(userArea.Regs.Rcx)),
	subGPR(RegBX, "bx", 2, unsafe.Offsetof(userArea.Regs.Rbx)),
	subGPR(RegSI, "si", 2, unsafe.Offsetof(userArea.Regs.Rsi)),
	subGPR(RegDI, "di", 2, unsafe.Offsetof(userArea.Regs.Rdi)),
	subGPR(RegBP, "bp", 2, unsafe.Offsetof(userArea.Regs.Rbp)),
	subGPR(RegSP, "sp", 2, unsafe.Offsetof(userArea.Regs.Rsp)),
	subGPR(RegR8W, "r8w", 2, unsafe.Offsetof(userArea.Regs.R8)),
	subGPR(RegR9W, "r9w", 2, unsafe.Offsetof(userArea.Regs.R9)),
	subGPR(RegR10W, "r10w", 2, unsafe.Offsetof(userArea.Regs.R10)),
	subGPR(RegR11W, "r11w", 2, unsafe.Offsetof(userArea.Regs.R11)),
	subGPR(RegR12W, "r12w", 2, unsafe.Offsetof(userArea.Regs.R12)),
	subGPR(RegR13W, "r13w", 2, unsafe.Offsetof(userArea.Regs.R13)),
	subGPR(RegR14W, "r14w", 2, unsafe.Offsetof(userArea.Regs.R14)),
	subGPR(RegR15W, "r15w", 2, unsafe.Offsetof(userArea.Regs.R15)),

	// high 8 bits of the legacy registers
	subGPR8H(RegAH, "ah", unsafe.Offsetof(userArea.Regs.Rax)),
	subGPR8H(RegDH, "dh", unsafe.Offsetof(userArea.Regs.Rdx)),
	subGPR8H(RegCH, "ch", unsafe.Offsetof(userArea.Regs.Rcx)),
	subGPR8H(RegBH, "bh", unsafe.Offsetof(userArea.Regs.Rbx)),

	// low 8 bits
	subGPR(RegAL, "al", 1, unsafe.Offsetof(userArea.Regs.Rax)),
	subGPR(RegDL, "dl", 1, unsafe.Offsetof(userArea.Regs.Rdx)),
	subGPR(RegCL, "cl", 1, unsafe.Offsetof(userArea.Regs.Rcx)),
	subGPR(RegBL, "bl", 1, unsafe.Offsetof(userArea.Regs.Rbx)),
	subGPR(RegSIL, "sil", 1, unsafe.Offsetof(userArea.Regs.Rsi)),
	subGPR(RegDIL, "dil", 1, unsafe.Offsetof(userArea.Regs.Rdi)),
	subGPR(RegBPL, "bpl", 1, unsafe.Offsetof(userArea.Regs.Rbp)),
	subGPR(RegSPL, "spl", 1, unsafe.Offsetof(userArea.Regs.Rsp)),
	subGPR(RegR8B, "r8b", 1, unsafe.Offsetof(userArea.Regs.R8)),
	subGPR(RegR9B, "r9b", 1, unsafe.Offsetof(userArea.Regs.R9)),
	subGPR(RegR10B, "r10b", 1, unsafe.Offsetof(userArea.Regs.R10)),
	subGPR(RegR11B, "r11b", 1, unsafe.Offsetof(userArea.Regs.R11)),
	subGPR(RegR12B, "r12b", 1, unsafe.Offsetof(userArea.Regs.R12)),
	subGPR(RegR13B, "r13b", 1, unsafe.Offsetof(userArea.Regs.R13)),
	subGPR(RegR14B, "r14b", 1, unsafe.Offsetof(userArea.Regs.R14)),
	subGPR(RegR15B, "r15b", 1, unsafe.Offsetof(userArea.Regs.R15)),

	// x87 and SSE control registers
	fpr(RegFCW, "fcw", 65, 2, unsafe.Offsetof(userArea.I387.Cwd)),
	fpr(RegFSW, "fsw", 66, 2, unsafe.Offsetof(userArea.I387.Swd)),
	fpr(RegFTW, "ftw", -1, 2, unsafe.Offsetof(userArea.I387.Ftw)),
	fpr(RegFOP, "fop", -1, 2, unsafe.Offsetof(userArea.I387.Fop)),
	fpr(RegFRIP, "frip", -1, 8, unsafe.Offsetof(userArea.I387.Rip)),
	fpr(RegFRDP, "frdp", -1, 8, unsafe.Offsetof(userArea.I387.Rdp)),
	fpr(RegMXCSR, "mxcsr", 64, 4, unsafe.Offsetof(userArea.I387.Mxcsr)),
	fpr(RegMXCSRMask, "mxcsrmask", -1, 4, unsafe.Offsetof(userArea.I387.MxcrMask)),

	// x87 stack, aliased by the MMX registers
	fpST(0),
	fpST(1),
	fpST(2),
	fpST(3),
	fpST(4),
	fpST(5),
	fpST(6),
	fpST(7),
	fpMM(0),
	fpMM(1),
	fpMM(2),
	fpMM(3),
	fpMM(4),
	fpMM(5),
	fpMM(6),
	fpMM(7),

	fpXMM(0),
	fpXMM(1),
	fpXMM(2),
	fpXMM(3),
	fpXMM(4),
	fpXMM(5),
	fpXMM(6),
	fpXMM(7),
	fpXMM(8),
	fpXMM(9),
	fpXMM(10),
	fpXMM(11),
	fpXMM(12),
	fpXMM(13),
	fpXMM(14),
	fpXMM(15),

	dr(0),
	dr(1),
	dr(2),
	dr(3),
	dr(4),
	dr(5),
	dr(6),
	dr(7),
}
