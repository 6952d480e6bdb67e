package native

import (
	"os"
	"os/exec"
	"syscall"

	sys "golang.org/x/sys/unix"

	"github.com/sdb-debugger/sdb/pkg/proc"
	"github.com/sdb-debugger/sdb/pkg/proc/amd64util"
)

// Launch starts the program at path. If debug is set the child is traced
// from its first instruction and Launch returns once it has stopped after
// exec. If stdout is not nil it replaces the standard output of the child.
//
// Failures in the child between fork and exec are reported back by the Go
// runtime and returned as a proc.LaunchError.
func Launch(path string, debug bool, stdout *os.File) (*Process, error) {
	var (
		process *exec.Cmd
		err     error
	)

	origin := Launched
	if debug {
		origin = LaunchedAndAttached
	}
	dbp := newProcess(0, origin, debug)

	dbp.execPtraceFunc(func() {
		process = exec.Command(path)
		process.Stdin = os.Stdin
		process.Stdout = os.Stdout
		process.Stderr = os.Stderr
		if stdout != nil {
			process.Stdout = stdout
		}
		process.SysProcAttr = &syscall.SysProcAttr{
			Ptrace:  debug,
			Setpgid: debug,
		}
		err = process.Start()
	})
	if err != nil {
		dbp.close()
		return nil, proc.LaunchError{Step: "exec", Err: err}
	}
	dbp.pid = process.Process.Pid
	// wait4 is called directly on the pid, os.Process must not reap it.
	process.Process.Release()
	dbp.log.Debugf("launched %s as pid %d (debug %v)", path, dbp.pid, debug)

	if debug {
		if _, err := dbp.WaitOnSignal(); err != nil {
			dbp.Close()
			return nil, err
		}
	} else {
		dbp.state = Running
	}
	return dbp, nil
}

// Attach attaches to the process with the given pid and waits for it to
// stop.
func Attach(pid int) (*Process, error) {
	if pid <= 0 {
		return nil, proc.InvalidPidError{Pid: pid}
	}

	dbp := newProcess(pid, Attached, true)
	var err error
	dbp.execPtraceFunc(func() { err = ptraceAttach(pid) })
	if err != nil {
		dbp.close()
		return nil, proc.SyscallError{Op: "attach failed", Err: err}
	}
	dbp.log.Debugf("attached to pid %d", pid)

	if _, err := dbp.WaitOnSignal(); err != nil {
		dbp.Close()
		return nil, err
	}
	return dbp, nil
}

// WaitOnSignal blocks until the process changes state. When the process
// stops the register snapshot is refreshed and, if it stopped on the trap
// of an enabled breakpoint site, the program counter is moved back to the
// address of the site.
func (dbp *Process) WaitOnSignal() (StopReason, error) {
	return dbp.wait(true)
}

func (dbp *Process) wait(rewind bool) (StopReason, error) {
	var ws sys.WaitStatus
	if _, err := sys.Wait4(dbp.pid, &ws, sys.WALL, nil); err != nil {
		return StopReason{}, proc.SyscallError{Op: "waitpid failed", Err: err}
	}

	reason := newStopReason(ws)
	dbp.state = reason.State
	dbp.log.Debugf("pid %d %s", dbp.pid, reason)

	switch dbp.state {
	case Exited, Terminated:
		dbp.exited = true
		return reason, nil
	}

	if !dbp.attached {
		return reason, nil
	}
	if err := dbp.readAllRegisters(); err != nil {
		return reason, err
	}
	if rewind && sys.Signal(reason.Info) == sys.SIGTRAP {
		pc := dbp.PC()
		if dbp.sites.EnabledStoppointAtAddress(pc.Sub(1)) {
			if err := dbp.SetPC(pc.Sub(1)); err != nil {
				return reason, err
			}
		}
	}
	return reason, nil
}

func (dbp *Process) readAllRegisters() error {
	var err error
	user := &dbp.regs.user
	dbp.execPtraceFunc(func() {
		if err = ptraceGetRegs(dbp.pid, &user.Regs); err != nil {
			err = proc.SyscallError{Op: "could not read general purpose registers", Err: err}
			return
		}
		if err = ptraceGetFpRegs(dbp.pid, &user.I387); err != nil {
			err = proc.SyscallError{Op: "could not read floating point registers", Err: err}
			return
		}
		for i := range user.UDebugreg {
			info, _ := proc.RegisterInfoByID(proc.RegDR0 + proc.RegisterID(i))
			user.UDebugreg[i], err = ptracePeek(sys.PTRACE_PEEKUSR, dbp.pid, uintptr(info.Offset))
			if err != nil {
				err = proc.SyscallError{Op: "could not read debug register " + info.Name, Err: err}
				return
			}
		}
	})
	return err
}

func (dbp *Process) writeFpRegs(fpregs *amd64util.AMD64PtraceFpRegs) error {
	var err error
	dbp.execPtraceFunc(func() { err = ptraceSetFpRegs(dbp.pid, fpregs) })
	if err != nil {
		return proc.SyscallError{Op: "could not write floating point registers", Err: err}
	}
	return nil
}

// Resume continues the execution of the process. If the process is stopped
// on an enabled breakpoint site the instruction under it is executed
// first, so the site does not trigger again immediately.
func (dbp *Process) Resume() error {
	if dbp.attached && dbp.sites.EnabledStoppointAtAddress(dbp.PC()) {
		reason, err := dbp.StepInstruction()
		if err != nil {
			return err
		}
		if reason.State != Stopped {
			return proc.ErrProcessExited{Pid: dbp.pid, Status: int(reason.Info)}
		}
	}

	var err error
	dbp.execPtraceFunc(func() { err = ptraceCont(dbp.pid, 0) })
	if err != nil {
		return proc.SyscallError{Op: "resume failed", Err: err}
	}
	dbp.state = Running
	dbp.log.Debugf("resumed pid %d", dbp.pid)
	return nil
}

// StepInstruction executes a single instruction and waits for the process
// to stop again. An enabled breakpoint site at the program counter is
// lifted for the duration of the step.
func (dbp *Process) StepInstruction() (StopReason, error) {
	var bp *BreakpointSite
	if pc := dbp.PC(); dbp.sites.EnabledStoppointAtAddress(pc) {
		bp, _ = dbp.sites.GetByAddress(pc)
		if err := bp.Disable(); err != nil {
			return StopReason{}, err
		}
	}

	var err error
	dbp.execPtraceFunc(func() { err = ptraceSingleStep(dbp.pid, 0) })
	if err != nil {
		return StopReason{}, proc.SyscallError{Op: "could not single step", Err: err}
	}
	dbp.state = Running

	reason, err := dbp.wait(false)
	if err != nil {
		return reason, err
	}
	if bp != nil && reason.State == Stopped {
		if err := bp.Enable(); err != nil {
			return reason, err
		}
	}
	return reason, nil
}

// Close releases the process. A process that was stopped by a signal
// from us is detached; processes we launched are killed, processes we
// attached to are left running. Errors are logged and otherwise ignored.
func (dbp *Process) Close() {
	if dbp.pid == 0 {
		dbp.close()
		return
	}
	log := dbp.log.WithField("pid", dbp.pid)

	if !dbp.exited {
		if dbp.state == Running {
			if err := sys.Kill(dbp.pid, sys.SIGSTOP); err != nil {
				log.Debugf("could not stop process: %v", err)
			} else if dbp.attached {
				var ws sys.WaitStatus
				sys.Wait4(dbp.pid, &ws, sys.WALL, nil)
			}
		}

		if dbp.attached {
			if dbp.origin == Attached {
				// do not leave traps behind in a process that keeps running
				if err := dbp.sites.Deallocate(); err != nil {
					log.Debugf("could not remove breakpoint sites: %v", err)
				}
			}
			var err error
			dbp.execPtraceFunc(func() { err = ptraceDetach(dbp.pid, 0) })
			if err != nil {
				log.Debugf("detach failed: %v", err)
			}
		}

		sig := sys.SIGCONT
		if dbp.origin.launched() {
			sig = sys.SIGKILL
		}
		if err := sys.Kill(dbp.pid, sig); err != nil {
			log.Debugf("could not send %s: %v", sys.SignalName(sig), err)
		}
		if dbp.origin.launched() {
			var ws sys.WaitStatus
			sys.Wait4(dbp.pid, &ws, sys.WALL, nil)
		}
	}

	dbp.close()
	log.Debugf("released")
	dbp.pid = 0
}

// close stops the ptrace goroutine.
func (dbp *Process) close() {
	if dbp.ptraceChan != nil {
		close(dbp.ptraceChan)
		dbp.ptraceChan = nil
	}
}
