package linutil

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"os"
)

const (
	_AT_NULL  = 0
	_AT_ENTRY = 9
)

// EntryPointFromAuxv searches the elf auxiliary vector for the entry point
// address.
// For a description of the auxiliary vector (auxv) format see:
// System V Application Binary Interface, AMD64 Architecture Processor
// Supplement, section 3.4.3.
func EntryPointFromAuxv(auxv []byte) uint64 {
	rd := bytes.NewReader(auxv)

	for {
		var tag, val uint64
		if err := binary.Read(rd, binary.LittleEndian, &tag); err != nil {
			return 0
		}
		if err := binary.Read(rd, binary.LittleEndian, &val); err != nil {
			return 0
		}

		switch tag {
		case _AT_NULL:
			return 0
		case _AT_ENTRY:
			return val
		}
	}
}

// ProcessEntryPoint returns the load address of the entry point of process
// pid, as recorded by the kernel in /proc/<pid>/auxv.
func ProcessEntryPoint(pid int) (uint64, error) {
	auxv, err := os.ReadFile(fmt.Sprintf("/proc/%d/auxv", pid))
	if err != nil {
		return 0, err
	}
	entry := EntryPointFromAuxv(auxv)
	if entry == 0 {
		return 0, fmt.Errorf("no AT_ENTRY in auxiliary vector of process %d", pid)
	}
	return entry, nil
}
