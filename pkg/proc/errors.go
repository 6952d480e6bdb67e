package proc

import (
	"fmt"
)

// SyscallError is returned when a system call issued on behalf of the
// debugger fails. Err is usually a syscall.Errno.
type SyscallError struct {
	Op  string
	Err error
}

func (se SyscallError) Error() string {
	return fmt.Sprintf("%s: %v", se.Op, se.Err)
}

func (se SyscallError) Unwrap() error {
	return se.Err
}

// LaunchError is returned when the child could not be started. Step names
// the launch stage that failed.
type LaunchError struct {
	Step string
	Err  error
}

func (le LaunchError) Error() string {
	return fmt.Sprintf("%s failed: %v", le.Step, le.Err)
}

func (le LaunchError) Unwrap() error {
	return le.Err
}

// InvalidPidError is returned when attaching to a pid that can not name a
// process.
type InvalidPidError struct {
	Pid int
}

func (ipe InvalidPidError) Error() string {
	return fmt.Sprintf("invalid pid %d", ipe.Pid)
}

// ErrProcessExited indicates that the process has exited and contains both
// process id and exit status.
type ErrProcessExited struct {
	Pid    int
	Status int
}

func (pe ErrProcessExited) Error() string {
	return fmt.Sprintf("process %d has exited with status %d", pe.Pid, pe.Status)
}

// BreakpointExistsError is returned when trying to create a breakpoint
// site at an address that already has one.
type BreakpointExistsError struct {
	Addr VirtualAddress
}

func (bpe BreakpointExistsError) Error() string {
	return fmt.Sprintf("breakpoint site already created at address %s", bpe.Addr)
}

// BreakpointDisabledError is returned when disabling a breakpoint site
// that is not enabled.
type BreakpointDisabledError struct {
	ID uint32
}

func (bde BreakpointDisabledError) Error() string {
	return fmt.Sprintf("breakpoint site %d is already disabled", bde.ID)
}

// StoppointNotFoundError is returned by a stoppoint collection lookup that
// finds nothing. Key is either the id or the VirtualAddress searched for.
type StoppointNotFoundError struct {
	Key interface{}
}

func (snf StoppointNotFoundError) Error() string {
	switch k := snf.Key.(type) {
	case VirtualAddress:
		return fmt.Sprintf("stoppoint with address %s not found", k)
	default:
		return fmt.Sprintf("invalid stoppoint id %v", k)
	}
}

// RegisterNotFoundError is returned when a register lookup fails. Key is
// the RegisterID, name or DWARF number searched for.
type RegisterNotFoundError struct {
	Key interface{}
}

func (rnf RegisterNotFoundError) Error() string {
	switch k := rnf.Key.(type) {
	case string:
		return fmt.Sprintf("no such register %q", k)
	case int:
		return fmt.Sprintf("no register with dwarf id %d", k)
	default:
		return fmt.Sprintf("no such register %v", k)
	}
}

// ValueTooLargeError is returned when writing a value wider than the
// destination register.
type ValueTooLargeError struct {
	Register     string
	Size         int
	RegisterSize int
}

func (vtl ValueTooLargeError) Error() string {
	return fmt.Sprintf("value too large for register %s (%d bytes > %d)", vtl.Register, vtl.Size, vtl.RegisterSize)
}

// UnsupportedRegisterError is returned when a register's format and size
// do not map to any RegisterValue variant.
type UnsupportedRegisterError struct {
	Register string
}

func (ure UnsupportedRegisterError) Error() string {
	return fmt.Sprintf("unexpected register size or format for %s", ure.Register)
}

// ParseError is returned when a textual value literal can not be parsed.
type ParseError struct {
	Input string
	Msg   string
}

func (pe ParseError) Error() string {
	if pe.Msg == "" {
		return fmt.Sprintf("invalid format %q", pe.Input)
	}
	return fmt.Sprintf("invalid format %q: %s", pe.Input, pe.Msg)
}
