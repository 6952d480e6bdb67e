package native

import (
	sys "golang.org/x/sys/unix"

	"github.com/sdb-debugger/sdb/pkg/proc"
)

// BreakpointSiteID identifies a breakpoint site within a Process. Ids start
// at 1 and are never reused.
type BreakpointSiteID uint32

// int3
const trapInstruction = 0xcc

// BreakpointSite is a software breakpoint: a location in the text of the
// target that can be patched with a trap instruction.
type BreakpointSite struct {
	dbp       *Process
	id        BreakpointSiteID
	addr      proc.VirtualAddress
	enabled   bool
	savedData byte
}

func (bp *BreakpointSite) ID() BreakpointSiteID          { return bp.id }
func (bp *BreakpointSite) Address() proc.VirtualAddress { return bp.addr }
func (bp *BreakpointSite) IsEnabled() bool              { return bp.enabled }

// SavedData returns the original byte replaced by the trap instruction.
// Only meaningful while the site is enabled.
func (bp *BreakpointSite) SavedData() byte { return bp.savedData }

// InRange reports whether the site is located in [low, high).
func (bp *BreakpointSite) InRange(low, high proc.VirtualAddress) bool {
	return low <= bp.addr && bp.addr < high
}

// Enable patches the target with a trap instruction at the address of the
// site. Enabling an enabled site does nothing.
func (bp *BreakpointSite) Enable() error {
	if bp.enabled {
		return nil
	}

	var err error
	bp.dbp.execPtraceFunc(func() {
		var word uint64
		word, err = ptracePeek(sys.PTRACE_PEEKDATA, bp.dbp.pid, uintptr(bp.addr))
		if err != nil {
			err = proc.SyscallError{Op: "enabling breakpoint site failed", Err: err}
			return
		}
		bp.savedData = byte(word)
		word = word&^0xff | trapInstruction
		if err = ptracePoke(sys.PTRACE_POKEDATA, bp.dbp.pid, uintptr(bp.addr), word); err != nil {
			err = proc.SyscallError{Op: "enabling breakpoint site failed", Err: err}
		}
	})
	if err != nil {
		return err
	}
	bp.enabled = true
	bp.dbp.log.Debugf("enabled breakpoint site %d at %s", bp.id, bp.addr)
	return nil
}

// Disable restores the original contents of the target at the address of
// the site. Disabling a disabled site is an error.
func (bp *BreakpointSite) Disable() error {
	if !bp.enabled {
		return proc.BreakpointDisabledError{ID: uint32(bp.id)}
	}

	var err error
	bp.dbp.execPtraceFunc(func() {
		var word uint64
		word, err = ptracePeek(sys.PTRACE_PEEKDATA, bp.dbp.pid, uintptr(bp.addr))
		if err != nil {
			err = proc.SyscallError{Op: "disabling breakpoint site failed", Err: err}
			return
		}
		word = word&^0xff | uint64(bp.savedData)
		if err = ptracePoke(sys.PTRACE_POKEDATA, bp.dbp.pid, uintptr(bp.addr), word); err != nil {
			err = proc.SyscallError{Op: "disabling breakpoint site failed", Err: err}
		}
	})
	if err != nil {
		return err
	}
	bp.enabled = false
	bp.savedData = 0
	bp.dbp.log.Debugf("disabled breakpoint site %d at %s", bp.id, bp.addr)
	return nil
}

// Deallocate is called when the site is removed from its collection, it
// restores the target if the site is still enabled.
func (bp *BreakpointSite) Deallocate() error {
	if bp.enabled {
		return bp.Disable()
	}
	return nil
}
