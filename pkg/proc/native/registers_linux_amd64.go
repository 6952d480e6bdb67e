package native

import (
	"encoding/binary"
	"unsafe"

	"github.com/sdb-debugger/sdb/pkg/proc"
	"github.com/sdb-debugger/sdb/pkg/proc/amd64util"
	"github.com/sdb-debugger/sdb/pkg/proc/linutil"
)

// registerWriter pushes register changes back to the tracee.
type registerWriter interface {
	writeUserArea(offset int, word uint64) error
	writeFpRegs(fpregs *amd64util.AMD64PtraceFpRegs) error
}

// Registers is the register state of the traced thread, as of the last
// stop. It holds an image of the kernel's struct user; reads and writes
// address it through the offsets in proc.RegisterInfos.
type Registers struct {
	user linutil.AMD64User
	w    registerWriter
}

func newRegisters(w registerWriter) *Registers {
	return &Registers{w: w}
}

// data returns the user area as a byte slice aliasing r.user.
func (r *Registers) data() []byte {
	return unsafe.Slice((*byte)(unsafe.Pointer(&r.user)), linutil.AMD64UserSize)
}

// Read returns the value of the register described by info.
func (r *Registers) Read(info proc.RegisterInfo) (proc.RegisterValue, error) {
	return proc.ValueFromBytes(info, r.data()[info.Offset:info.Offset+info.Size])
}

// ReadByID returns the value of register id.
func (r *Registers) ReadByID(id proc.RegisterID) (proc.RegisterValue, error) {
	info, err := proc.RegisterInfoByID(id)
	if err != nil {
		return nil, err
	}
	return r.Read(info)
}

// Write stores v into the register described by info and writes the
// change through to the tracee. Floating point registers are written back
// as a whole with PTRACE_SETFPREGS, everything else as the 8 byte word of
// the user area containing the register.
func (r *Registers) Write(info proc.RegisterInfo, v proc.RegisterValue) error {
	wide, err := proc.WidenValue(info, v)
	if err != nil {
		return err
	}
	data := r.data()
	copy(data[info.Offset:info.Offset+info.Size], wide[:info.Size])

	if info.Class == proc.RegisterClassFPR {
		return r.w.writeFpRegs(&r.user.I387)
	}

	// ah, bh, ch and dh are not word aligned
	aligned := info.Offset &^ 7
	return r.w.writeUserArea(aligned, binary.LittleEndian.Uint64(data[aligned:aligned+8]))
}

// WriteByID is like Write for register id.
func (r *Registers) WriteByID(id proc.RegisterID, v proc.RegisterValue) error {
	info, err := proc.RegisterInfoByID(id)
	if err != nil {
		return err
	}
	return r.Write(info, v)
}
