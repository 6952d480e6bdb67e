package native

import (
	"bytes"
	"encoding/binary"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"os/exec"
	"strings"
	"testing"

	sys "golang.org/x/sys/unix"

	"github.com/sdb-debugger/sdb/pkg/logflags"
	"github.com/sdb-debugger/sdb/pkg/proc"
	"github.com/sdb-debugger/sdb/pkg/proc/linutil"
	protest "github.com/sdb-debugger/sdb/pkg/proc/test"
)

func TestMain(m *testing.M) {
	var logConf string
	flag.StringVar(&logConf, "log", "", "configures logging")
	flag.Parse()
	logflags.Setup(logConf != "", logConf, "")
	// the fixtures only trace their main thread, preemption signals would
	// show up as unexpected stops
	os.Setenv("GODEBUG", "asyncpreemptoff=1")
	os.Exit(protest.RunTestsWithFixtures(m))
}

func assertNoError(err error, t testing.TB, s string) {
	t.Helper()
	if err != nil {
		t.Fatalf("failed assertion %s: %s\n", s, err)
	}
}

func withTestProcess(name string, t *testing.T, stdout *os.File, fn func(p *Process, fixture protest.Fixture)) {
	t.Helper()
	fixture := protest.BuildFixture(name)
	p, err := Launch(fixture.Path, true, stdout)
	if err != nil {
		t.Fatal("Launch():", err)
	}
	defer p.Close()
	fn(p, fixture)
}

// processStatus returns the state letter of pid from /proc/pid/stat.
func processStatus(t *testing.T, pid int) byte {
	t.Helper()
	buf, err := os.ReadFile(fmt.Sprintf("/proc/%d/stat", pid))
	assertNoError(err, t, "reading stat")
	i := bytes.LastIndexByte(buf, ')')
	if i < 0 || i+2 >= len(buf) {
		t.Fatalf("malformed stat %q", buf)
	}
	return buf[i+2]
}

func processExists(pid int) bool {
	return sys.Kill(pid, 0) == nil
}

func expectStop(t *testing.T, p *Process, sig sys.Signal) {
	t.Helper()
	reason, err := p.WaitOnSignal()
	assertNoError(err, t, "WaitOnSignal()")
	if reason.State != Stopped || sys.Signal(reason.Info) != sig {
		t.Fatalf("expected stop with %s, got %s", sys.SignalName(sig), reason)
	}
}

func resumeToTrap(t *testing.T, p *Process) {
	t.Helper()
	assertNoError(p.Resume(), t, "Resume()")
	expectStop(t, p, sys.SIGTRAP)
}

func TestLaunch(t *testing.T) {
	withTestProcess("hellosdb", t, nil, func(p *Process, fixture protest.Fixture) {
		if p.Pid() <= 0 || !processExists(p.Pid()) {
			t.Fatalf("process %d does not exist", p.Pid())
		}
		if p.State() != Stopped {
			t.Fatalf("launched process is %s", p.State())
		}
		if p.Origin() != LaunchedAndAttached {
			t.Fatalf("wrong origin %d", p.Origin())
		}

		// a static executable stops right at its entry point after exec
		entry, err := linutil.ProcessEntryPoint(p.Pid())
		assertNoError(err, t, "ProcessEntryPoint")
		if p.PC() != proc.VirtualAddress(entry) {
			t.Fatalf("pc %s, entry point %#x", p.PC(), entry)
		}
	})
}

func TestLaunchNoSuchProgram(t *testing.T) {
	_, err := Launch("you_do_not_have_this_program", true, nil)
	if err == nil {
		t.Fatal("launching a program that does not exist succeeded")
	}
	var le proc.LaunchError
	if !errors.As(err, &le) {
		t.Fatalf("expected LaunchError, got %T: %v", err, err)
	}
	if !strings.Contains(err.Error(), "exec failed") {
		t.Fatalf("unexpected error message %q", err)
	}
}

func TestLaunchWithoutDebugging(t *testing.T) {
	fixture := protest.BuildFixture("runforever")
	p, err := Launch(fixture.Path, false, nil)
	assertNoError(err, t, "Launch()")
	pid := p.Pid()
	if p.State() != Running {
		t.Fatalf("untraced process is %s", p.State())
	}
	p.Close()
	if processExists(pid) {
		t.Fatalf("process %d still exists after Close", pid)
	}
}

func TestAttachInvalidPid(t *testing.T) {
	_, err := Attach(0)
	var ipe proc.InvalidPidError
	if !errors.As(err, &ipe) {
		t.Fatalf("expected InvalidPidError, got %v", err)
	}
}

func startRunforever(t *testing.T) *exec.Cmd {
	t.Helper()
	fixture := protest.BuildFixture("runforever")
	cmd := exec.Command(fixture.Path)
	assertNoError(cmd.Start(), t, "starting runforever")
	return cmd
}

func TestAttach(t *testing.T) {
	cmd := startRunforever(t)
	defer func() {
		cmd.Process.Kill()
		cmd.Wait()
	}()
	pid := cmd.Process.Pid

	p, err := Attach(pid)
	assertNoError(err, t, "Attach()")
	if p.Origin() != Attached {
		t.Fatalf("wrong origin %d", p.Origin())
	}
	if s := processStatus(t, pid); s != 't' {
		t.Fatalf("attached process has status %c", s)
	}

	p.Close()
	// processes we attached to keep running
	if !processExists(pid) {
		t.Fatal("process was killed by Close")
	}
	if s := processStatus(t, pid); s == 't' {
		t.Fatal("process is still traced after Close")
	}
}

func TestCloseRestoresAttachedProcess(t *testing.T) {
	cmd := startRunforever(t)
	defer func() {
		cmd.Process.Kill()
		cmd.Wait()
	}()
	pid := cmd.Process.Pid
	fixture := protest.BuildFixture("runforever")
	addr := protest.FunctionAddress(t, fixture, "main.main")

	p, err := Attach(pid)
	assertNoError(err, t, "Attach()")
	orig, err := p.ReadMemory(addr, 1)
	assertNoError(err, t, "ReadMemory()")
	bp, err := p.CreateBreakpointSite(addr)
	assertNoError(err, t, "CreateBreakpointSite()")
	assertNoError(bp.Enable(), t, "Enable()")
	p.Close()

	after, err := readMemory(pid, addr, 1)
	assertNoError(err, t, "readMemory()")
	if after[0] != orig[0] {
		t.Fatalf("memory at %s is %#x after Close, was %#x", addr, after[0], orig[0])
	}
}

func TestResume(t *testing.T) {
	withTestProcess("runforever", t, nil, func(p *Process, fixture protest.Fixture) {
		assertNoError(p.Resume(), t, "Resume()")
		if p.State() != Running {
			t.Fatalf("resumed process is %s", p.State())
		}
		if s := processStatus(t, p.Pid()); s != 'R' && s != 'S' {
			t.Fatalf("resumed process has status %c", s)
		}
	})
}

func TestResumeExitedProcess(t *testing.T) {
	withTestProcess("hellosdb", t, nil, func(p *Process, fixture protest.Fixture) {
		assertNoError(p.Resume(), t, "Resume()")
		reason, err := p.WaitOnSignal()
		assertNoError(err, t, "WaitOnSignal()")
		if reason.State != Exited || reason.Info != 0 {
			t.Fatalf("unexpected stop %s", reason)
		}
		if err := p.Resume(); err == nil {
			t.Fatal("resuming an exited process succeeded")
		}
	})
}

func TestCreateBreakpointSite(t *testing.T) {
	withTestProcess("hellosdb", t, nil, func(p *Process, fixture protest.Fixture) {
		bp, err := p.CreateBreakpointSite(42)
		assertNoError(err, t, "CreateBreakpointSite()")
		if bp.Address() != 42 || bp.IsEnabled() {
			t.Fatalf("unexpected site %d at %s (enabled %v)", bp.ID(), bp.Address(), bp.IsEnabled())
		}

		_, err = p.CreateBreakpointSite(42)
		var bee proc.BreakpointExistsError
		if !errors.As(err, &bee) {
			t.Fatalf("expected BreakpointExistsError, got %v", err)
		}
		if p.BreakpointSites().Len() != 1 {
			t.Fatalf("duplicate site was added")
		}

		_, err = p.CreateBreakpointSite(43)
		assertNoError(err, t, "CreateBreakpointSite()")
		if p.BreakpointSites().Len() != 2 {
			t.Fatalf("wrong number of sites %d", p.BreakpointSites().Len())
		}
	})
}

func TestBreakpointSiteIDs(t *testing.T) {
	withTestProcess("hellosdb", t, nil, func(p *Process, fixture protest.Fixture) {
		var last BreakpointSiteID
		for i, addr := range []proc.VirtualAddress{42, 43, 44, 45} {
			bp, err := p.CreateBreakpointSite(addr)
			assertNoError(err, t, "CreateBreakpointSite()")
			if i == 0 && bp.ID() != 1 {
				t.Fatalf("first id is %d", bp.ID())
			}
			if bp.ID() <= last {
				t.Fatalf("id %d issued after %d", bp.ID(), last)
			}
			last = bp.ID()
		}

		sites := p.BreakpointSites()
		assertNoError(sites.RemoveByID(last), t, "RemoveByID()")
		assertNoError(sites.RemoveByAddress(42), t, "RemoveByAddress()")
		bp, err := p.CreateBreakpointSite(42)
		assertNoError(err, t, "CreateBreakpointSite()")
		if bp.ID() <= last {
			t.Fatalf("id %d reused", bp.ID())
		}

		var nf proc.StoppointNotFoundError
		if _, err := sites.GetByID(last); !errors.As(err, &nf) {
			t.Fatalf("expected StoppointNotFoundError, got %v", err)
		}
		if err := sites.RemoveByAddress(45); !errors.As(err, &nf) {
			t.Fatalf("expected StoppointNotFoundError, got %v", err)
		}
	})
}

func TestBreakpointSiteEnableDisable(t *testing.T) {
	withTestProcess("hellosdb", t, nil, func(p *Process, fixture protest.Fixture) {
		addr := protest.FunctionAddress(t, fixture, "main.main")
		before, err := p.ReadMemory(addr, 16)
		assertNoError(err, t, "ReadMemory()")

		bp, err := p.CreateBreakpointSite(addr)
		assertNoError(err, t, "CreateBreakpointSite()")

		var bde proc.BreakpointDisabledError
		if err := bp.Disable(); !errors.As(err, &bde) {
			t.Fatalf("disabling a disabled site: %v", err)
		}

		assertNoError(bp.Enable(), t, "Enable()")
		assertNoError(bp.Enable(), t, "second Enable()")
		if !bp.IsEnabled() || !p.BreakpointSites().EnabledStoppointAtAddress(addr) {
			t.Fatal("site not enabled")
		}
		patched, err := p.ReadMemory(addr, 16)
		assertNoError(err, t, "ReadMemory()")
		if patched[0] != 0xcc || !bytes.Equal(patched[1:], before[1:]) {
			t.Fatalf("unexpected memory after Enable % x", patched)
		}
		masked, err := p.ReadMemoryWithoutTraps(addr.Sub(4), 20)
		assertNoError(err, t, "ReadMemoryWithoutTraps()")
		if !bytes.Equal(masked[4:], before) {
			t.Fatalf("trap not masked % x", masked)
		}

		assertNoError(bp.Disable(), t, "Disable()")
		after, err := p.ReadMemory(addr, 16)
		assertNoError(err, t, "ReadMemory()")
		if !bytes.Equal(before, after) {
			t.Fatalf("memory changed:\n% x\n% x", before, after)
		}

		if err := bp.Disable(); !errors.As(err, &bde) {
			t.Fatalf("disabling twice: %v", err)
		}
		after, _ = p.ReadMemory(addr, 16)
		if !bytes.Equal(before, after) {
			t.Fatal("failed Disable changed memory")
		}
	})
}

func TestRemoveEnabledBreakpointSite(t *testing.T) {
	withTestProcess("hellosdb", t, nil, func(p *Process, fixture protest.Fixture) {
		addr := protest.FunctionAddress(t, fixture, "main.main")
		before, err := p.ReadMemory(addr, 1)
		assertNoError(err, t, "ReadMemory()")

		bp, err := p.CreateBreakpointSite(addr)
		assertNoError(err, t, "CreateBreakpointSite()")
		assertNoError(bp.Enable(), t, "Enable()")
		assertNoError(p.BreakpointSites().RemoveByID(bp.ID()), t, "RemoveByID()")

		after, err := p.ReadMemory(addr, 1)
		assertNoError(err, t, "ReadMemory()")
		if after[0] != before[0] {
			t.Fatalf("removed site left %#x in memory", after[0])
		}
	})
}

func TestBreakpointSiteHit(t *testing.T) {
	r, w, err := os.Pipe()
	assertNoError(err, t, "os.Pipe()")
	defer r.Close()

	withTestProcess("hellosdb", t, w, func(p *Process, fixture protest.Fixture) {
		w.Close()
		addr := protest.FunctionAddress(t, fixture, "main.main")

		bp, err := p.CreateBreakpointSite(addr)
		assertNoError(err, t, "CreateBreakpointSite()")
		assertNoError(bp.Enable(), t, "Enable()")

		resumeToTrap(t, p)
		if p.PC() != addr {
			t.Fatalf("stopped at %s, expected %s", p.PC(), addr)
		}

		assertNoError(p.Resume(), t, "Resume()")
		reason, err := p.WaitOnSignal()
		assertNoError(err, t, "WaitOnSignal()")
		if reason.State != Exited || reason.Info != 0 {
			t.Fatalf("unexpected stop %s", reason)
		}

		out, err := io.ReadAll(r)
		assertNoError(err, t, "reading output")
		if string(out) != "Hello, sdb!\n" {
			t.Fatalf("unexpected output %q", out)
		}
	})
}

func TestStepInstruction(t *testing.T) {
	withTestProcess("hellosdb", t, nil, func(p *Process, fixture protest.Fixture) {
		addr := protest.FunctionAddress(t, fixture, "main.main")
		bp, err := p.CreateBreakpointSite(addr)
		assertNoError(err, t, "CreateBreakpointSite()")
		assertNoError(bp.Enable(), t, "Enable()")
		resumeToTrap(t, p)

		reason, err := p.StepInstruction()
		assertNoError(err, t, "StepInstruction()")
		if reason.State != Stopped || sys.Signal(reason.Info) != sys.SIGTRAP {
			t.Fatalf("unexpected stop %s", reason)
		}
		if p.PC() <= addr {
			t.Fatalf("pc %s did not advance past %s", p.PC(), addr)
		}
		if !bp.IsEnabled() {
			t.Fatal("site was not enabled again after the step")
		}
		mem, err := p.ReadMemory(addr, 1)
		assertNoError(err, t, "ReadMemory()")
		if mem[0] != 0xcc {
			t.Fatalf("trap not restored, found %#x", mem[0])
		}
	})
}

func TestDisassembleAtBreakpoint(t *testing.T) {
	withTestProcess("hellosdb", t, nil, func(p *Process, fixture protest.Fixture) {
		addr := protest.FunctionAddress(t, fixture, "main.main")
		bp, err := p.CreateBreakpointSite(addr)
		assertNoError(err, t, "CreateBreakpointSite()")
		assertNoError(bp.Enable(), t, "Enable()")
		resumeToTrap(t, p)

		d := proc.NewDisassembler(p, proc.IntelFlavour)
		insts, err := d.Disassemble(5)
		assertNoError(err, t, "Disassemble()")
		if len(insts) != 5 {
			t.Fatalf("got %d instructions", len(insts))
		}
		if insts[0].Address != addr {
			t.Fatalf("first instruction at %s", insts[0].Address)
		}
		if strings.HasPrefix(insts[0].Text, "int3") {
			t.Fatal("trap instruction was not masked")
		}
		for i := 1; i < len(insts); i++ {
			if insts[i].Address != insts[i-1].Address.Add(int64(len(insts[i-1].Bytes))) {
				t.Fatalf("instruction %d at %s does not follow %s", i, insts[i].Address, insts[i-1].Address)
			}
		}
	})
}

func readAddress(t *testing.T, r io.Reader) proc.VirtualAddress {
	t.Helper()
	var buf [8]byte
	_, err := io.ReadFull(r, buf[:])
	assertNoError(err, t, "reading address")
	return proc.VirtualAddress(binary.LittleEndian.Uint64(buf[:]))
}

func TestMemory(t *testing.T) {
	r, w, err := os.Pipe()
	assertNoError(err, t, "os.Pipe()")
	defer r.Close()

	withTestProcess("memory", t, w, func(p *Process, fixture protest.Fixture) {
		w.Close()

		resumeToTrap(t, p)
		addr := readAddress(t, r)
		data, err := p.ReadMemory(addr, 8)
		assertNoError(err, t, "ReadMemory()")
		if v := binary.LittleEndian.Uint64(data); v != 0xcafecafe {
			t.Fatalf("read %#x", v)
		}

		resumeToTrap(t, p)
		addr = readAddress(t, r)
		assertNoError(p.WriteMemory(addr, []byte("Hello, sdb!")), t, "WriteMemory()")

		assertNoError(p.Resume(), t, "Resume()")
		_, err = p.WaitOnSignal()
		assertNoError(err, t, "WaitOnSignal()")
		out, err := io.ReadAll(r)
		assertNoError(err, t, "reading output")
		if string(out) != "Hello, sdb!" {
			t.Fatalf("unexpected output %q", out)
		}
	})
}

func TestReadMemoryAcrossPages(t *testing.T) {
	withTestProcess("hellosdb", t, nil, func(p *Process, fixture protest.Fixture) {
		addr := protest.FunctionAddress(t, fixture, "main.main")
		page := proc.VirtualAddress(sys.Getpagesize())
		start := addr.AlignDown(uint64(page)).Sub(8)

		whole, err := p.ReadMemory(start, 16)
		assertNoError(err, t, "ReadMemory()")
		lo, err := p.ReadMemory(start, 8)
		assertNoError(err, t, "ReadMemory()")
		hi, err := p.ReadMemory(start.Add(8), 8)
		assertNoError(err, t, "ReadMemory()")
		if !bytes.Equal(whole, append(lo, hi...)) {
			t.Fatal("read across page boundary does not match")
		}

		if _, err := p.ReadMemory(0, 8); err == nil {
			t.Fatal("reading address 0 succeeded")
		}
		if _, err := p.ReadMemory(start, -1); err == nil || !strings.Contains(err.Error(), "invalid memory read size -1") {
			t.Fatalf("negative read size: %v", err)
		}
		if data, err := p.ReadMemory(start, 0); err != nil || len(data) != 0 {
			t.Fatalf("empty read returned %x, %v", data, err)
		}
	})
}

func TestReadRegisters(t *testing.T) {
	withTestProcess("regread/", t, nil, func(p *Process, fixture protest.Fixture) {
		regs := p.Registers()

		resumeToTrap(t, p)
		v, err := regs.ReadByID(proc.RegR13)
		assertNoError(err, t, "read r13")
		if v != proc.U64(0xcafecafe) {
			t.Fatalf("r13 = %v", v)
		}

		resumeToTrap(t, p)
		v, err = regs.ReadByID(proc.RegR13B)
		assertNoError(err, t, "read r13b")
		if v != proc.U8(42) {
			t.Fatalf("r13b = %v", v)
		}

		resumeToTrap(t, p)
		v, err = regs.ReadByID(proc.RegMM0)
		assertNoError(err, t, "read mm0")
		var mm0 proc.Byte64
		binary.LittleEndian.PutUint64(mm0[:], 0xba5eba11)
		if v != mm0 {
			t.Fatalf("mm0 = %v", v)
		}

		resumeToTrap(t, p)
		v, err = regs.ReadByID(proc.RegXMM0)
		assertNoError(err, t, "read xmm0")
		var xmm0 proc.Byte128
		copy(xmm0[:], proc.F64(64.125).Bytes())
		if v != xmm0 {
			t.Fatalf("xmm0 = %v", v)
		}

		resumeToTrap(t, p)
		v, err = regs.ReadByID(proc.RegST0)
		assertNoError(err, t, "read st0")
		if f := v.(proc.F80).Float64(); f != 64.125 {
			t.Fatalf("st0 = %g", f)
		}
	})
}

func TestWriteRegisters(t *testing.T) {
	r, w, err := os.Pipe()
	assertNoError(err, t, "os.Pipe()")
	defer r.Close()

	withTestProcess("regwrite/", t, w, func(p *Process, fixture protest.Fixture) {
		w.Close()
		regs := p.Registers()

		expectOutput := func(expected string) {
			t.Helper()
			buf := make([]byte, len(expected))
			_, err := io.ReadFull(r, buf)
			assertNoError(err, t, "reading output")
			if string(buf) != expected {
				t.Fatalf("expected %q, got %q", expected, buf)
			}
		}

		resumeToTrap(t, p)
		assertNoError(regs.WriteByID(proc.RegRSI, proc.U64(0xcafecafe)), t, "write rsi")
		v, err := regs.ReadByID(proc.RegRSI)
		assertNoError(err, t, "read rsi")
		if v != proc.U64(0xcafecafe) {
			t.Fatalf("rsi = %v", v)
		}

		resumeToTrap(t, p)
		expectOutput("0xcafecafe")
		assertNoError(regs.WriteByID(proc.RegMM0, proc.U64(0xabcdef)), t, "write mm0")

		resumeToTrap(t, p)
		expectOutput("0xabcdef")
		assertNoError(regs.WriteByID(proc.RegXMM0, proc.F64(67.21)), t, "write xmm0")

		resumeToTrap(t, p)
		expectOutput("67.21")
		assertNoError(regs.WriteByID(proc.RegST0, proc.NewF80(67.21)), t, "write st0")
		// one value on the x87 stack: top is 7 and only that slot is valid
		assertNoError(regs.WriteByID(proc.RegFSW, proc.U16(0x3800)), t, "write fsw")
		assertNoError(regs.WriteByID(proc.RegFTW, proc.U16(0x0080)), t, "write ftw")

		assertNoError(p.Resume(), t, "Resume()")
		reason, err := p.WaitOnSignal()
		assertNoError(err, t, "WaitOnSignal()")
		if reason.State != Exited {
			t.Fatalf("unexpected stop %s", reason)
		}
		expectOutput("67.21")
	})
}

func TestDebugRegisters(t *testing.T) {
	withTestProcess("hellosdb", t, nil, func(p *Process, fixture protest.Fixture) {
		regs := p.Registers()
		for _, id := range []proc.RegisterID{proc.RegDR0, proc.RegDR4, proc.RegDR5, proc.RegDR7} {
			_, err := regs.ReadByID(id)
			assertNoError(err, t, "read "+id.String())
		}

		assertNoError(regs.WriteByID(proc.RegDR0, proc.U64(0x1000)), t, "write dr0")
		v, err := regs.ReadByID(proc.RegDR0)
		assertNoError(err, t, "read dr0")
		if v != proc.U64(0x1000) {
			t.Fatalf("dr0 = %v", v)
		}
	})
}
