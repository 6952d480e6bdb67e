package starbind

import (
	"context"
	"fmt"
	"io"
	"os"
	"runtime"
	"sort"
	"strings"
	"sync"

	startime "go.starlark.net/lib/time"
	"go.starlark.net/resolve"
	"go.starlark.net/starlark"

	"github.com/sdb-debugger/sdb/pkg/proc"
)

const (
	sdbCommandBuiltinName    = "sdb_command"
	readFileBuiltinName      = "read_file"
	writeFileBuiltinName     = "write_file"
	readRegisterBuiltinName  = "read_register"
	writeRegisterBuiltinName = "write_register"
	readMemoryBuiltinName    = "read_memory"
	writeMemoryBuiltinName   = "write_memory"
	pcBuiltinName            = "pc"
	breakpointBuiltinName    = "create_breakpoint"
	helpBuiltinName          = "help"
	commandPrefix            = "command_"
	sdbContextName           = "sdb_context"
)

func init() {
	resolve.AllowSet = true
	resolve.AllowRecursion = true
	resolve.AllowGlobalReassign = true
}

// Context is the context in which starlark scripts are evaluated.
// It gives scripts access to the terminal commands and to the stopped
// process.
type Context interface {
	RegisterCommand(name, helpMsg string, cmdfn func(args string) error)
	CallCommand(cmdstr string) error
	ReadRegister(name string) (proc.RegisterValue, error)
	WriteRegister(name, value string) error
	ReadMemory(addr proc.VirtualAddress, n int) ([]byte, error)
	WriteMemory(addr proc.VirtualAddress, data []byte) error
	PC() proc.VirtualAddress
	CreateBreakpoint(addr proc.VirtualAddress) (int, error)
}

// Env is the environment used to evaluate starlark scripts.
type Env struct {
	env       starlark.StringDict
	doc       map[string]string
	contextMu sync.Mutex
	thread    *starlark.Thread
	cancelfn  context.CancelFunc

	ctx Context
	out io.Writer
}

type builtinFn func(thread *starlark.Thread, fn *starlark.Builtin, args starlark.Tuple, kwargs []starlark.Tuple) (starlark.Value, error)

// New creates a new starlark binding environment.
func New(ctx Context, out io.Writer) *Env {
	env := &Env{
		env: starlark.StringDict{},
		doc: map[string]string{},
		ctx: ctx,
		out: out,
	}

	// Make the "time" module available to Starlark scripts.
	starlark.Universe["time"] = startime.Module

	env.builtin(sdbCommandBuiltinName, "(Command)", "executes a terminal command, e.g. sdb_command(\"continue\").", func(thread *starlark.Thread, _ *starlark.Builtin, args starlark.Tuple, kwargs []starlark.Tuple) (starlark.Value, error) {
		if err := isCancelled(thread); err != nil {
			return starlark.None, err
		}
		argstrs := make([]string, len(args))
		for i := range args {
			a, ok := args[i].(starlark.String)
			if !ok {
				return nil, decorateError(thread, fmt.Errorf("argument of %s is not a string", sdbCommandBuiltinName))
			}
			argstrs[i] = string(a)
		}
		return starlark.None, decorateError(thread, env.ctx.CallCommand(strings.Join(argstrs, " ")))
	})

	env.builtin(readFileBuiltinName, "(Path)", "reads a file.", func(thread *starlark.Thread, b *starlark.Builtin, args starlark.Tuple, kwargs []starlark.Tuple) (starlark.Value, error) {
		var path string
		if err := starlark.UnpackPositionalArgs(b.Name(), args, kwargs, 1, &path); err != nil {
			return nil, decorateError(thread, err)
		}
		buf, err := os.ReadFile(path)
		if err != nil {
			return nil, decorateError(thread, err)
		}
		return starlark.String(string(buf)), nil
	})

	env.builtin(writeFileBuiltinName, "(Path, Text)", "writes text to the specified file.", func(thread *starlark.Thread, b *starlark.Builtin, args starlark.Tuple, kwargs []starlark.Tuple) (starlark.Value, error) {
		var (
			path string
			text starlark.Value
		)
		if err := starlark.UnpackPositionalArgs(b.Name(), args, kwargs, 2, &path, &text); err != nil {
			return nil, decorateError(thread, err)
		}
		s, ok := starlark.AsString(text)
		if !ok {
			s = text.String()
		}
		return starlark.None, decorateError(thread, os.WriteFile(path, []byte(s), 0640))
	})

	env.builtin(readRegisterBuiltinName, "(Name)", "returns the value of a register. Integers and floats are returned as numbers, vector registers as a list of bytes.", func(thread *starlark.Thread, b *starlark.Builtin, args starlark.Tuple, kwargs []starlark.Tuple) (starlark.Value, error) {
		var name string
		if err := starlark.UnpackPositionalArgs(b.Name(), args, kwargs, 1, &name); err != nil {
			return nil, decorateError(thread, err)
		}
		v, err := env.ctx.ReadRegister(name)
		if err != nil {
			return nil, decorateError(thread, err)
		}
		return registerValueToStarlark(v), nil
	})

	env.builtin(writeRegisterBuiltinName, "(Name, Value)", "writes Value to a register. Value can be a number, a list of bytes or a string using the syntax of 'register write'.", func(thread *starlark.Thread, b *starlark.Builtin, args starlark.Tuple, kwargs []starlark.Tuple) (starlark.Value, error) {
		var (
			name string
			val  starlark.Value
		)
		if err := starlark.UnpackPositionalArgs(b.Name(), args, kwargs, 2, &name, &val); err != nil {
			return nil, decorateError(thread, err)
		}
		lit, err := starlarkToLiteral(val)
		if err != nil {
			return nil, decorateError(thread, err)
		}
		return starlark.None, decorateError(thread, env.ctx.WriteRegister(name, lit))
	})

	env.builtin(readMemoryBuiltinName, "(Address, Count)", "reads Count bytes of memory at Address and returns them as a list.", func(thread *starlark.Thread, b *starlark.Builtin, args starlark.Tuple, kwargs []starlark.Tuple) (starlark.Value, error) {
		var (
			addrv starlark.Value
			count int
		)
		if err := starlark.UnpackPositionalArgs(b.Name(), args, kwargs, 2, &addrv, &count); err != nil {
			return nil, decorateError(thread, err)
		}
		addr, err := toUint64(addrv, "address")
		if err != nil {
			return nil, decorateError(thread, err)
		}
		if count < 0 {
			return nil, decorateError(thread, fmt.Errorf("negative count %d", count))
		}
		data, err := env.ctx.ReadMemory(proc.VirtualAddress(addr), count)
		if err != nil {
			return nil, decorateError(thread, err)
		}
		return bytesToStarlark(data), nil
	})

	env.builtin(writeMemoryBuiltinName, "(Address, Bytes)", "writes a list of bytes to memory at Address.", func(thread *starlark.Thread, b *starlark.Builtin, args starlark.Tuple, kwargs []starlark.Tuple) (starlark.Value, error) {
		var addrv, datav starlark.Value
		if err := starlark.UnpackPositionalArgs(b.Name(), args, kwargs, 2, &addrv, &datav); err != nil {
			return nil, decorateError(thread, err)
		}
		addr, err := toUint64(addrv, "address")
		if err != nil {
			return nil, decorateError(thread, err)
		}
		data, err := toBytes(datav)
		if err != nil {
			return nil, decorateError(thread, err)
		}
		return starlark.None, decorateError(thread, env.ctx.WriteMemory(proc.VirtualAddress(addr), data))
	})

	env.builtin(pcBuiltinName, "()", "returns the program counter of the stopped process.", func(thread *starlark.Thread, b *starlark.Builtin, args starlark.Tuple, kwargs []starlark.Tuple) (starlark.Value, error) {
		if err := starlark.UnpackPositionalArgs(b.Name(), args, kwargs, 0); err != nil {
			return nil, decorateError(thread, err)
		}
		return starlark.MakeUint64(uint64(env.ctx.PC())), nil
	})

	env.builtin(breakpointBuiltinName, "(Address)", "creates and enables a breakpoint site at Address, returns its id.", func(thread *starlark.Thread, b *starlark.Builtin, args starlark.Tuple, kwargs []starlark.Tuple) (starlark.Value, error) {
		var addrv starlark.Value
		if err := starlark.UnpackPositionalArgs(b.Name(), args, kwargs, 1, &addrv); err != nil {
			return nil, decorateError(thread, err)
		}
		addr, err := toUint64(addrv, "address")
		if err != nil {
			return nil, decorateError(thread, err)
		}
		id, err := env.ctx.CreateBreakpoint(proc.VirtualAddress(addr))
		if err != nil {
			return nil, decorateError(thread, err)
		}
		return starlark.MakeInt(id), nil
	})

	env.builtin(helpBuiltinName, "(Object)", "prints help for Object.", env.help)

	return env
}

func (env *Env) builtin(name, args, descr string, fn builtinFn) {
	env.env[name] = starlark.NewBuiltin(name, fn)
	env.doc[name] = name + args + "\n\n" + name + " " + descr
}

func (env *Env) help(_ *starlark.Thread, _ *starlark.Builtin, args starlark.Tuple, kwargs []starlark.Tuple) (starlark.Value, error) {
	switch len(args) {
	case 0:
		fmt.Fprintln(env.out, "Available builtins:")
		bins := make([]string, 0, len(env.env))
		for name, value := range env.env {
			if _, ok := value.(*starlark.Builtin); ok {
				bins = append(bins, name)
			}
		}
		sort.Strings(bins)
		for _, bin := range bins {
			fmt.Fprintf(env.out, "\t%s\n", bin)
		}
	case 1:
		switch x := args[0].(type) {
		case *starlark.Builtin:
			if env.doc[x.Name()] != "" {
				fmt.Fprintf(env.out, "%s\n", env.doc[x.Name()])
			} else {
				fmt.Fprintf(env.out, "no help for builtin %s\n", x.Name())
			}
		case *starlark.Function:
			fmt.Fprintf(env.out, "user defined function %s\n", x.Name())
			if doc := x.Doc(); doc != "" {
				fmt.Fprintln(env.out, doc)
			}
		default:
			fmt.Fprintf(env.out, "no help for object of type %T\n", args[0])
		}
	default:
		fmt.Fprintln(env.out, "wrong number of arguments ", len(args))
	}
	return starlark.None, nil
}

// Redirect redirects starlark output to out.
func (env *Env) Redirect(out io.Writer) {
	env.out = out
	if env.thread != nil {
		env.thread.Print = env.printFunc()
	}
}

func (env *Env) printFunc() func(_ *starlark.Thread, msg string) {
	return func(_ *starlark.Thread, msg string) { fmt.Fprintln(env.out, msg) }
}

// Execute executes a script. Path is the name of the file to execute and
// source is the source code to execute.
// Source can be either a []byte, a string or a io.Reader. If source is nil
// Execute will execute the file specified by 'path'.
// After the file is executed if a function named mainFnName exists it will be called, passing args to it.
func (env *Env) Execute(path string, source interface{}, mainFnName string, args []starlark.Value) (_ starlark.Value, _err error) {
	defer func() {
		err := recover()
		if err == nil {
			return
		}
		_err = fmt.Errorf("panic executing starlark script: %v", err)
		fmt.Fprintf(env.out, "panic executing starlark script: %v\n", err)
		for i := 0; ; i++ {
			pc, file, line, ok := runtime.Caller(i)
			if !ok {
				break
			}
			fname := "<unknown>"
			fn := runtime.FuncForPC(pc)
			if fn != nil {
				fname = fn.Name()
			}
			fmt.Fprintf(env.out, "%s\n\tin %s:%d\n", fname, file, line)
		}
	}()

	thread := env.newThread()
	globals, err := starlark.ExecFile(thread, path, source, env.env)
	if err != nil {
		return starlark.None, err
	}

	err = env.exportGlobals(globals)
	if err != nil {
		return starlark.None, err
	}

	return env.callMain(thread, globals, mainFnName, args)
}

// exportGlobals saves globals with a name starting with a capital letter
// into the environment and creates commands from globals with a name
// starting with "command_"
func (env *Env) exportGlobals(globals starlark.StringDict) error {
	for name, val := range globals {
		switch {
		case strings.HasPrefix(name, commandPrefix):
			err := env.createCommand(name, val)
			if err != nil {
				return err
			}
		case name[0] >= 'A' && name[0] <= 'Z':
			env.env[name] = val
		}
	}
	return nil
}

// Cancel cancels the execution of a currently running script or function.
func (env *Env) Cancel() {
	if env == nil {
		return
	}
	env.contextMu.Lock()
	if env.cancelfn != nil {
		env.cancelfn()
		env.cancelfn = nil
	}
	if env.thread != nil {
		env.thread.Cancel("user interrupt")
	}
	env.contextMu.Unlock()
}

func (env *Env) newThread() *starlark.Thread {
	thread := &starlark.Thread{
		Print: env.printFunc(),
	}
	env.contextMu.Lock()
	var ctx context.Context
	ctx, env.cancelfn = context.WithCancel(context.Background())
	env.thread = thread
	env.contextMu.Unlock()
	thread.SetLocal(sdbContextName, ctx)
	return thread
}

func (env *Env) createCommand(name string, val starlark.Value) error {
	fnval, ok := val.(*starlark.Function)
	if !ok {
		return nil
	}

	name = name[len(commandPrefix):]
	if name == "" {
		return fmt.Errorf("%s does not name a command", commandPrefix)
	}

	helpMsg := fnval.Doc()
	if helpMsg == "" {
		helpMsg = "user defined"
	}

	if fnval.NumParams() == 1 {
		if p0, _ := fnval.Param(0); p0 == "args" {
			env.ctx.RegisterCommand(name, helpMsg, func(args string) error {
				_, err := starlark.Call(env.newThread(), fnval, starlark.Tuple{starlark.String(args)}, nil)
				return err
			})
			return nil
		}
	}

	env.ctx.RegisterCommand(name, helpMsg, func(args string) error {
		thread := env.newThread()
		argtuple := starlark.Tuple{}
		if strings.TrimSpace(args) != "" {
			argval, err := starlark.Eval(thread, "<input>", "("+args+")", env.env)
			if err != nil {
				return err
			}
			var ok bool
			argtuple, ok = argval.(starlark.Tuple)
			if !ok {
				argtuple = starlark.Tuple{argval}
			}
		}
		_, err := starlark.Call(thread, fnval, argtuple, nil)
		return err
	})
	return nil
}

// callMain calls the main function in globals, if one was defined.
func (env *Env) callMain(thread *starlark.Thread, globals starlark.StringDict, mainFnName string, args []starlark.Value) (starlark.Value, error) {
	if mainFnName == "" {
		return starlark.None, nil
	}
	mainval := globals[mainFnName]
	if mainval == nil {
		return starlark.None, nil
	}
	mainfn, ok := mainval.(*starlark.Function)
	if !ok {
		return starlark.None, fmt.Errorf("%s is not a function", mainFnName)
	}
	if mainfn.NumParams() != len(args) {
		return starlark.None, fmt.Errorf("wrong number of arguments for %s", mainFnName)
	}
	return starlark.Call(thread, mainfn, starlark.Tuple(args), nil)
}

func isCancelled(thread *starlark.Thread) error {
	if ctx, ok := thread.Local(sdbContextName).(context.Context); ok {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}
	}
	return nil
}

func decorateError(thread *starlark.Thread, err error) error {
	if err == nil {
		return nil
	}
	pos := thread.CallFrame(1).Pos
	if pos.Col > 0 {
		return fmt.Errorf("%s:%d:%d: %w", pos.Filename(), pos.Line, pos.Col, err)
	}
	return fmt.Errorf("%s:%d: %w", pos.Filename(), pos.Line, err)
}
