package native

import (
	"encoding/binary"
	"fmt"

	sys "golang.org/x/sys/unix"

	"github.com/sdb-debugger/sdb/pkg/proc"
)

// readMemory reads n bytes at addr from the address space of pid with a
// single process_vm_readv call. The remote side is split into one iovec
// per page touched, so that a fault in one page is reported instead of
// silently truncating the whole read.
func readMemory(pid int, addr proc.VirtualAddress, n int) ([]byte, error) {
	if n < 0 {
		return nil, fmt.Errorf("invalid memory read size %d", n)
	}
	data := make([]byte, n)
	if n == 0 {
		return data, nil
	}

	pageSize := uint64(sys.Getpagesize())
	local := []sys.Iovec{{Base: &data[0]}}
	local[0].SetLen(n)

	var remote []sys.RemoteIovec
	for cur, remaining := addr, n; remaining > 0; {
		chunk := int(pageSize - uint64(cur)%pageSize)
		if chunk > remaining {
			chunk = remaining
		}
		remote = append(remote, sys.RemoteIovec{Base: uintptr(cur), Len: chunk})
		cur = cur.Add(int64(chunk))
		remaining -= chunk
	}

	read, err := sys.ProcessVMReadv(pid, local, remote, 0)
	if err != nil {
		return nil, proc.SyscallError{Op: "could not read process memory", Err: err}
	}
	if read != n {
		return nil, proc.SyscallError{Op: "could not read process memory", Err: sys.EFAULT}
	}
	return data, nil
}

// writeMemory writes data at addr one word at a time with
// PTRACE_POKEDATA. A trailing partial word is merged with the current
// contents of the target. Must be called from the ptrace goroutine.
func writeMemory(pid int, addr proc.VirtualAddress, data []byte) error {
	for written := 0; written < len(data); written += 8 {
		cur := uintptr(addr) + uintptr(written)
		remaining := data[written:]

		var word uint64
		if len(remaining) >= 8 {
			word = binary.LittleEndian.Uint64(remaining)
		} else {
			existing, err := ptracePeek(sys.PTRACE_PEEKDATA, pid, cur)
			if err != nil {
				return proc.SyscallError{Op: "could not read process memory", Err: err}
			}
			var buf [8]byte
			binary.LittleEndian.PutUint64(buf[:], existing)
			copy(buf[:], remaining)
			word = binary.LittleEndian.Uint64(buf[:])
		}

		if err := ptracePoke(sys.PTRACE_POKEDATA, pid, cur, word); err != nil {
			return proc.SyscallError{Op: "failed to write memory", Err: err}
		}
	}
	return nil
}
