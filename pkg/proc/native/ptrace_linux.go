package native

import (
	"syscall"
	"unsafe"

	sys "golang.org/x/sys/unix"

	"github.com/sdb-debugger/sdb/pkg/logflags"
	"github.com/sdb-debugger/sdb/pkg/proc/amd64util"
	"github.com/sdb-debugger/sdb/pkg/proc/linutil"
)

func logPtrace(format string, args ...interface{}) {
	if logflags.Ptrace() {
		logflags.PtraceLogger().Debugf(format, args...)
	}
}

// ptraceAttach executes the sys.PtraceAttach call.
func ptraceAttach(pid int) error {
	logPtrace("PTRACE_ATTACH pid=%d", pid)
	return sys.PtraceAttach(pid)
}

// ptraceDetach calls ptrace(PTRACE_DETACH).
func ptraceDetach(tid, sig int) error {
	logPtrace("PTRACE_DETACH pid=%d sig=%d", tid, sig)
	_, _, err := sys.Syscall6(sys.SYS_PTRACE, sys.PTRACE_DETACH, uintptr(tid), 1, uintptr(sig), 0, 0)
	if err != syscall.Errno(0) {
		return err
	}
	return nil
}

// ptraceCont executes ptrace PTRACE_CONT
func ptraceCont(tid, sig int) error {
	logPtrace("PTRACE_CONT pid=%d sig=%d", tid, sig)
	return sys.PtraceCont(tid, sig)
}

// ptraceSingleStep executes ptrace PTRACE_SINGLESTEP
func ptraceSingleStep(pid, sig int) error {
	logPtrace("PTRACE_SINGLESTEP pid=%d sig=%d", pid, sig)
	_, _, e1 := sys.Syscall6(sys.SYS_PTRACE, uintptr(sys.PTRACE_SINGLESTEP), uintptr(pid), uintptr(0), uintptr(sig), 0, 0)
	if e1 != 0 {
		return e1
	}
	return nil
}

// ptracePeek reads one word with PTRACE_PEEKDATA or PTRACE_PEEKUSR. The
// raw system call stores the word at the address passed as data.
func ptracePeek(req int, pid int, addr uintptr) (uint64, error) {
	var word uint64
	_, _, e1 := sys.Syscall6(sys.SYS_PTRACE, uintptr(req), uintptr(pid), addr, uintptr(unsafe.Pointer(&word)), 0, 0)
	if e1 != 0 {
		return 0, e1
	}
	logPtrace("peek(%d) pid=%d addr=%#x -> %#016x", req, pid, addr, word)
	return word, nil
}

// ptracePoke writes one word with PTRACE_POKEDATA or PTRACE_POKEUSR.
func ptracePoke(req int, pid int, addr uintptr, word uint64) error {
	logPtrace("poke(%d) pid=%d addr=%#x word=%#016x", req, pid, addr, word)
	_, _, e1 := sys.Syscall6(sys.SYS_PTRACE, uintptr(req), uintptr(pid), addr, uintptr(word), 0, 0)
	if e1 != 0 {
		return e1
	}
	return nil
}

func ptraceGetRegs(pid int, regs *linutil.AMD64PtraceRegs) error {
	return sys.PtraceGetRegs(pid, (*sys.PtraceRegs)(unsafe.Pointer(regs)))
}

func ptraceGetFpRegs(pid int, fpregs *amd64util.AMD64PtraceFpRegs) error {
	_, _, e1 := sys.Syscall6(sys.SYS_PTRACE, sys.PTRACE_GETFPREGS, uintptr(pid), uintptr(0), uintptr(unsafe.Pointer(fpregs)), 0, 0)
	if e1 != 0 {
		return e1
	}
	return nil
}

func ptraceSetFpRegs(pid int, fpregs *amd64util.AMD64PtraceFpRegs) error {
	_, _, e1 := sys.Syscall6(sys.SYS_PTRACE, sys.PTRACE_SETFPREGS, uintptr(pid), uintptr(0), uintptr(unsafe.Pointer(fpregs)), 0, 0)
	if e1 != 0 {
		return e1
	}
	return nil
}
