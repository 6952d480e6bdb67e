package linutil

import (
	"github.com/sdb-debugger/sdb/pkg/proc/amd64util"
)

// AMD64PtraceRegs is the struct used by the linux kernel to return the
// general purpose registers for AMD64 CPUs.
type AMD64PtraceRegs struct {
	R15      uint64
	R14      uint64
	R13      uint64
	R12      uint64
	Rbp      uint64
	Rbx      uint64
	R11      uint64
	R10      uint64
	R9       uint64
	R8       uint64
	Rax      uint64
	Rcx      uint64
	Rdx      uint64
	Rsi      uint64
	Rdi      uint64
	Orig_rax uint64
	Rip      uint64
	Cs       uint64
	Eflags   uint64
	Rsp      uint64
	Ss       uint64
	Fs_base  uint64
	Gs_base  uint64
	Ds       uint64
	Es       uint64
	Fs       uint64
	Gs       uint64
}

// AMD64User mirrors struct user in /usr/include/x86_64-linux-gnu/sys/user.h,
// the layout addressed by PTRACE_PEEKUSER and PTRACE_POKEUSER offsets.
type AMD64User struct {
	Regs       AMD64PtraceRegs
	UFpvalid   int32
	_          int32
	I387       amd64util.AMD64PtraceFpRegs
	UTsize     uint64
	UDsize     uint64
	USsize     uint64
	StartCode  uint64
	StartStack uint64
	Signal     int64
	Reserved   int32
	_          int32
	UAr0       uint64
	UFpstate   uint64
	Magic      uint64
	UComm      [32]byte
	UDebugreg  [8]uint64
}

// AMD64UserSize is sizeof(struct user) on linux/amd64.
const AMD64UserSize = 912
