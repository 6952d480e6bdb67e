package native

import (
	"fmt"
	"runtime"

	"go.uber.org/atomic"
	sys "golang.org/x/sys/unix"

	"github.com/sdb-debugger/sdb/pkg/logflags"
	"github.com/sdb-debugger/sdb/pkg/proc"
)

// ProcessState is the last observed run state of the target.
type ProcessState uint8

const (
	Stopped ProcessState = iota
	Running
	Exited
	Terminated
)

func (s ProcessState) String() string {
	switch s {
	case Stopped:
		return "stopped"
	case Running:
		return "running"
	case Exited:
		return "exited"
	case Terminated:
		return "terminated"
	}
	return fmt.Sprintf("ProcessState(%d)", uint8(s))
}

// ProcessOrigin records how the debugger got hold of the target.
type ProcessOrigin uint8

const (
	// Launched processes were started by sdb without tracing.
	Launched ProcessOrigin = iota
	// LaunchedAndAttached processes were started by sdb and traced from
	// their first instruction.
	LaunchedAndAttached
	// Attached processes already existed and were attached to.
	Attached
)

func (o ProcessOrigin) launched() bool {
	return o == Launched || o == LaunchedAndAttached
}

// StopReason describes the outcome of a wait on the target.
// Info is the exit status for Exited and the signal number otherwise.
type StopReason struct {
	State ProcessState
	Info  uint8
}

func newStopReason(ws sys.WaitStatus) StopReason {
	switch {
	case ws.Exited():
		return StopReason{State: Exited, Info: uint8(ws.ExitStatus())}
	case ws.Signaled():
		return StopReason{State: Terminated, Info: uint8(ws.Signal())}
	case ws.Stopped():
		return StopReason{State: Stopped, Info: uint8(ws.StopSignal())}
	}
	return StopReason{State: Stopped}
}

func (sr StopReason) String() string {
	switch sr.State {
	case Exited:
		return fmt.Sprintf("exited with status %d", sr.Info)
	case Terminated:
		return fmt.Sprintf("terminated with signal %s", sys.SignalName(sys.Signal(sr.Info)))
	default:
		return fmt.Sprintf("stopped with signal %s", sys.SignalName(sys.Signal(sr.Info)))
	}
}

// BreakpointSites is the collection of breakpoint sites of a Process.
type BreakpointSites = proc.StoppointCollection[BreakpointSiteID, *BreakpointSite]

// Process represents all of the information the debugger
// is holding onto regarding the process we are debugging.
type Process struct {
	pid      int
	origin   ProcessOrigin
	state    ProcessState
	attached bool
	exited   bool

	regs       *Registers
	sites      BreakpointSites
	nextSiteID atomic.Uint32

	ptraceChan     chan func()
	ptraceDoneChan chan interface{}

	log logflags.Logger
}

// newProcess returns an initialized Process struct. Before returning,
// it will also launch a goroutine in order to handle ptrace(2)
// functions. For more information, see the documentation on
// `handlePtraceFuncs`.
func newProcess(pid int, origin ProcessOrigin, attached bool) *Process {
	dbp := &Process{
		pid:            pid,
		origin:         origin,
		state:          Stopped,
		attached:       attached,
		ptraceChan:     make(chan func()),
		ptraceDoneChan: make(chan interface{}),
		log:            logflags.DebuggerLogger(),
	}
	dbp.regs = newRegisters(dbp)
	go dbp.handlePtraceFuncs()
	return dbp
}

func (dbp *Process) handlePtraceFuncs() {
	// We must ensure here that we are running on the same thread during
	// while invoking the ptrace(2) syscall. This is due to the fact that ptrace(2) expects
	// all commands after PTRACE_ATTACH to come from the same thread.
	runtime.LockOSThread()

	for fn := range dbp.ptraceChan {
		fn()
		dbp.ptraceDoneChan <- nil
	}
	runtime.UnlockOSThread()
}

func (dbp *Process) execPtraceFunc(fn func()) {
	dbp.ptraceChan <- fn
	<-dbp.ptraceDoneChan
}

// Pid returns the process ID.
func (dbp *Process) Pid() int {
	return dbp.pid
}

// State returns the last observed state of the process.
func (dbp *Process) State() ProcessState {
	return dbp.state
}

// Origin returns how the process was obtained.
func (dbp *Process) Origin() ProcessOrigin {
	return dbp.origin
}

// Registers returns the register state as of the last stop.
func (dbp *Process) Registers() *Registers {
	return dbp.regs
}

// BreakpointSites returns the breakpoint sites of the process.
func (dbp *Process) BreakpointSites() *BreakpointSites {
	return &dbp.sites
}

// PC returns the program counter as of the last stop.
func (dbp *Process) PC() proc.VirtualAddress {
	v, err := dbp.regs.ReadByID(proc.RegRIP)
	if err != nil {
		return 0
	}
	return proc.VirtualAddress(v.(proc.U64))
}

// SetPC changes the program counter of the stopped process.
func (dbp *Process) SetPC(pc proc.VirtualAddress) error {
	return dbp.regs.WriteByID(proc.RegRIP, proc.U64(pc))
}

// CreateBreakpointSite creates a disabled breakpoint site at addr. There
// can only be one site per address.
func (dbp *Process) CreateBreakpointSite(addr proc.VirtualAddress) (*BreakpointSite, error) {
	if dbp.sites.ContainsAddress(addr) {
		return nil, proc.BreakpointExistsError{Addr: addr}
	}
	bp := &BreakpointSite{
		dbp:  dbp,
		id:   BreakpointSiteID(dbp.nextSiteID.Inc()),
		addr: addr,
	}
	dbp.log.Debugf("created breakpoint site %d at %s", bp.id, addr)
	return dbp.sites.Push(bp), nil
}

// ReadMemory reads n bytes of target memory at addr.
func (dbp *Process) ReadMemory(addr proc.VirtualAddress, n int) ([]byte, error) {
	return readMemory(dbp.pid, addr, n)
}

// ReadMemoryWithoutTraps is like ReadMemory but the trap instructions of
// enabled breakpoint sites are replaced by the bytes they hide.
func (dbp *Process) ReadMemoryWithoutTraps(addr proc.VirtualAddress, n int) ([]byte, error) {
	mem, err := dbp.ReadMemory(addr, n)
	if err != nil {
		return nil, err
	}
	end := addr.Add(int64(n))
	dbp.sites.ForEach(func(bp *BreakpointSite) {
		if bp.IsEnabled() && bp.InRange(addr, end) {
			mem[bp.Address().Distance(addr)] = bp.SavedData()
		}
	})
	return mem, nil
}

// WriteMemory writes data to target memory at addr.
func (dbp *Process) WriteMemory(addr proc.VirtualAddress, data []byte) error {
	var err error
	dbp.execPtraceFunc(func() { err = writeMemory(dbp.pid, addr, data) })
	return err
}

func (dbp *Process) writeUserArea(offset int, word uint64) error {
	var err error
	dbp.execPtraceFunc(func() { err = ptracePoke(sys.PTRACE_POKEUSR, dbp.pid, uintptr(offset), word) })
	if err != nil {
		return proc.SyscallError{Op: "could not write to user area", Err: err}
	}
	return nil
}
