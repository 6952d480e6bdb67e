package terminal

import (
	"github.com/sdb-debugger/sdb/pkg/proc"
	"github.com/sdb-debugger/sdb/pkg/terminal/starbind"
)

type starlarkContext struct {
	term *Term
}

var _ starbind.Context = starlarkContext{}

func (ctx starlarkContext) RegisterCommand(name, helpMsg string, fn func(args string) error) {
	cmdfn := func(t *Term, args string) error {
		return fn(args)
	}
	ctx.term.cmds.Register(name, cmdfn, helpMsg)
}

func (ctx starlarkContext) CallCommand(cmdstr string) error {
	return ctx.term.cmds.Call(cmdstr, ctx.term)
}

func (ctx starlarkContext) ReadRegister(name string) (proc.RegisterValue, error) {
	return ctx.term.readRegister(name)
}

func (ctx starlarkContext) WriteRegister(name, value string) error {
	return ctx.term.writeRegister(name, value)
}

func (ctx starlarkContext) ReadMemory(addr proc.VirtualAddress, n int) ([]byte, error) {
	if err := ctx.term.checkAlive(); err != nil {
		return nil, err
	}
	return ctx.term.target.ReadMemory(addr, n)
}

func (ctx starlarkContext) WriteMemory(addr proc.VirtualAddress, data []byte) error {
	if err := ctx.term.checkAlive(); err != nil {
		return err
	}
	return ctx.term.target.WriteMemory(addr, data)
}

func (ctx starlarkContext) PC() proc.VirtualAddress {
	return ctx.term.target.PC()
}

func (ctx starlarkContext) CreateBreakpoint(addr proc.VirtualAddress) (int, error) {
	bp, err := ctx.term.setBreakpoint(addr)
	if err != nil {
		return 0, err
	}
	return int(bp.ID()), nil
}
