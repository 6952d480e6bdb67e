package starbind

import (
	"bytes"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"go.starlark.net/starlark"

	"github.com/sdb-debugger/sdb/pkg/proc"
)

type fakeContext struct {
	cmds      map[string]func(string) error
	called    []string
	regs      map[string]proc.RegisterValue
	written   map[string]string
	mem       map[proc.VirtualAddress]byte
	pc        proc.VirtualAddress
	bps       []proc.VirtualAddress
	commandFn func(string) error
}

func newFakeContext() *fakeContext {
	return &fakeContext{
		cmds:    map[string]func(string) error{},
		regs:    map[string]proc.RegisterValue{},
		written: map[string]string{},
		mem:     map[proc.VirtualAddress]byte{},
	}
}

func (ctx *fakeContext) RegisterCommand(name, helpMsg string, cmdfn func(args string) error) {
	ctx.cmds[name] = cmdfn
}

func (ctx *fakeContext) CallCommand(cmdstr string) error {
	ctx.called = append(ctx.called, cmdstr)
	if ctx.commandFn != nil {
		return ctx.commandFn(cmdstr)
	}
	return nil
}

func (ctx *fakeContext) ReadRegister(name string) (proc.RegisterValue, error) {
	v, ok := ctx.regs[name]
	if !ok {
		return nil, proc.RegisterNotFoundError{Key: name}
	}
	return v, nil
}

func (ctx *fakeContext) WriteRegister(name, value string) error {
	ctx.written[name] = value
	return nil
}

func (ctx *fakeContext) ReadMemory(addr proc.VirtualAddress, n int) ([]byte, error) {
	r := make([]byte, n)
	for i := range r {
		r[i] = ctx.mem[addr.Add(int64(i))]
	}
	return r, nil
}

func (ctx *fakeContext) WriteMemory(addr proc.VirtualAddress, data []byte) error {
	for i, b := range data {
		ctx.mem[addr.Add(int64(i))] = b
	}
	return nil
}

func (ctx *fakeContext) PC() proc.VirtualAddress { return ctx.pc }

func (ctx *fakeContext) CreateBreakpoint(addr proc.VirtualAddress) (int, error) {
	ctx.bps = append(ctx.bps, addr)
	return len(ctx.bps), nil
}

func mustExecute(t *testing.T, env *Env, script string) starlark.Value {
	t.Helper()
	v, err := env.Execute("<test>", script, "main", nil)
	if err != nil {
		t.Fatalf("executing %q: %v", script, err)
	}
	return v
}

func TestCommandBuiltin(t *testing.T) {
	ctx := newFakeContext()
	env := New(ctx, &bytes.Buffer{})
	mustExecute(t, env, `
def main():
    sdb_command("breakpoint", "set", "0x401000")
    sdb_command("continue")
`)
	if len(ctx.called) != 2 || ctx.called[0] != "breakpoint set 0x401000" || ctx.called[1] != "continue" {
		t.Fatalf("unexpected commands %q", ctx.called)
	}

	ctx.commandFn = func(string) error { return errors.New("boom") }
	_, err := env.Execute("<test>", "def main():\n    sdb_command(\"step\")\n", "main", nil)
	if err == nil || !strings.Contains(err.Error(), "boom") {
		t.Fatalf("expected command error, got %v", err)
	}
}

func TestRegisterBuiltins(t *testing.T) {
	ctx := newFakeContext()
	ctx.regs["rax"] = proc.U64(0xcafecafe)
	ctx.regs["xmm0"] = proc.F64(64.125)
	ctx.regs["mm0"] = proc.Byte64{1, 2, 3, 4, 5, 6, 7, 8}
	env := New(ctx, &bytes.Buffer{})

	v := mustExecute(t, env, `
def main():
    return (read_register("rax"), read_register("xmm0"), read_register("mm0"))
`)
	tup := v.(starlark.Tuple)
	if n, _ := tup[0].(starlark.Int).Uint64(); n != 0xcafecafe {
		t.Errorf("rax = %s", tup[0])
	}
	if f := tup[1].(starlark.Float); f != 64.125 {
		t.Errorf("xmm0 = %s", tup[1])
	}
	if s := tup[2].String(); s != "[1, 2, 3, 4, 5, 6, 7, 8]" {
		t.Errorf("mm0 = %s", s)
	}

	mustExecute(t, env, `
def main():
    write_register("rsi", 0xcafecafe)
    write_register("xmm1", 67.21)
    write_register("mm1", [0xab, 0xcd])
    write_register("rdi", "0x10")
`)
	want := map[string]string{
		"rsi":  "3405695742",
		"xmm1": "67.21",
		"mm1":  "[0xab,0xcd]",
		"rdi":  "0x10",
	}
	for name, lit := range want {
		if ctx.written[name] != lit {
			t.Errorf("%s written as %q, expected %q", name, ctx.written[name], lit)
		}
	}

	_, err := env.Execute("<test>", "def main():\n    read_register(\"nope\")\n", "main", nil)
	if err == nil || !strings.Contains(err.Error(), "nope") {
		t.Fatalf("expected an error about register nope, got %v", err)
	}
}

func TestMemoryBuiltins(t *testing.T) {
	ctx := newFakeContext()
	ctx.pc = 0x401000
	env := New(ctx, &bytes.Buffer{})

	v := mustExecute(t, env, `
def main():
    write_memory(pc(), [0x48, 0x89, 0xe5])
    return read_memory(pc() + 1, 2)
`)
	if s := v.String(); s != "[137, 229]" {
		t.Fatalf("read_memory returned %s", s)
	}

	_, err := env.Execute("<test>", "def main():\n    write_memory(0x1000, [256])\n", "main", nil)
	if err == nil {
		t.Fatal("expected error writing a value that does not fit in a byte")
	}
}

func TestCreateBreakpointBuiltin(t *testing.T) {
	ctx := newFakeContext()
	env := New(ctx, &bytes.Buffer{})
	v := mustExecute(t, env, "def main():\n    return create_breakpoint(0x401000)\n")
	if v.String() != "1" || len(ctx.bps) != 1 || ctx.bps[0] != 0x401000 {
		t.Fatalf("unexpected result %s, breakpoints %v", v, ctx.bps)
	}
}

func TestScriptCommands(t *testing.T) {
	ctx := newFakeContext()
	out := &bytes.Buffer{}
	env := New(ctx, out)

	mustExecute(t, env, `
def command_echo(args):
    "echoes its arguments"
    print("echo:", args)

def command_add(a, b):
    print(a + b)

Greeting = "hello"
lowercase = 1
`)
	if _, ok := ctx.cmds["echo"]; !ok {
		t.Fatal("command echo not registered")
	}
	if err := ctx.cmds["echo"]("a b c"); err != nil {
		t.Fatal(err)
	}
	if err := ctx.cmds["add"]("1, 2"); err != nil {
		t.Fatal(err)
	}
	if got := out.String(); got != "echo: a b c\n3\n" {
		t.Fatalf("unexpected output %q", got)
	}

	if _, ok := env.env["Greeting"]; !ok {
		t.Error("capitalized global was not exported")
	}
	if _, ok := env.env["lowercase"]; ok {
		t.Error("lowercase global was exported")
	}
	v := mustExecute(t, env, "def main():\n    return Greeting\n")
	if v != starlark.String("hello") {
		t.Errorf("exported global has value %s", v)
	}
}

func TestFileBuiltins(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "out.txt")
	env := New(newFakeContext(), &bytes.Buffer{})
	v, err := env.Execute("<test>", `
def main(path):
    write_file(path, "some text")
    return read_file(path)
`, "main", []starlark.Value{starlark.String(path)})
	if err != nil {
		t.Fatal(err)
	}
	if v != starlark.String("some text") {
		t.Fatalf("read_file returned %s", v)
	}
	buf, err := os.ReadFile(path)
	if err != nil || string(buf) != "some text" {
		t.Fatalf("file contains %q (%v)", buf, err)
	}
}

func TestHelpBuiltin(t *testing.T) {
	out := &bytes.Buffer{}
	env := New(newFakeContext(), out)
	mustExecute(t, env, "def main():\n    help(read_register)\n")
	if !strings.HasPrefix(out.String(), "read_register(Name)") {
		t.Fatalf("unexpected help output %q", out.String())
	}
	out.Reset()
	mustExecute(t, env, "def main():\n    help()\n")
	if !strings.Contains(out.String(), "\tsdb_command\n") {
		t.Fatalf("builtin list does not mention sdb_command: %q", out.String())
	}
}

func TestExecuteParseError(t *testing.T) {
	env := New(newFakeContext(), &bytes.Buffer{})
	if _, err := env.Execute("<test>", "def main(:\n", "main", nil); err == nil {
		t.Fatal("expected a syntax error")
	}
}
