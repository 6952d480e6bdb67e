package terminal

import (
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/go-delve/liner"
	"github.com/mattn/go-colorable"
	"github.com/mattn/go-isatty"
	"go.uber.org/atomic"

	"github.com/sdb-debugger/sdb/pkg/config"
	"github.com/sdb-debugger/sdb/pkg/logflags"
	"github.com/sdb-debugger/sdb/pkg/proc"
	"github.com/sdb-debugger/sdb/pkg/proc/native"
	"github.com/sdb-debugger/sdb/pkg/terminal/starbind"
)

const (
	historyFile                 string = ".sdb_history"
	terminalHighlightEscapeCode string = "\033[%2dm"
	terminalResetEscapeCode     string = "\033[0m"

	ansiBlue = 34
)

// Term represents the terminal running sdb.
type Term struct {
	target      *native.Process
	conf        *config.Config
	prompt      string
	line        *liner.State
	cmds        *Commands
	dumb        bool
	stdout      *pagingWriter
	disasm      *proc.Disassembler
	starlarkEnv *starbind.Env
	log         logflags.Logger

	// InitFile is sourced before the first prompt.
	InitFile string

	lastCmd  string
	lastStop native.StopReason
	running  atomic.Bool
}

// New returns a new Term controlling target.
func New(target *native.Process, conf *config.Config) *Term {
	cmds := DebugCommands()
	if conf != nil && conf.Aliases != nil {
		cmds.Merge(conf.Aliases)
	}

	if conf == nil {
		conf = &config.Config{}
	}

	var w io.Writer

	dumb := strings.ToLower(os.Getenv("TERM")) == "dumb" || !isatty.IsTerminal(os.Stdout.Fd())
	if dumb {
		w = os.Stdout
	} else {
		w = colorable.NewColorableStdout()
	}

	flavour, err := proc.ParseAssemblyFlavour(conf.DisassembleFlavor)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Warning: %v, using gnu syntax\n", err)
	}

	t := &Term{
		target: target,
		conf:   conf,
		prompt: "sdb> ",
		line:   liner.NewLiner(),
		cmds:   cmds,
		dumb:   dumb,
		stdout: &pagingWriter{w: w},
		disasm: proc.NewDisassembler(target, flavour),
		log:    logflags.TerminalLogger(),
	}
	t.starlarkEnv = starbind.New(starlarkContext{t}, t.stdout)
	return t
}

// Close returns the terminal to its previous mode.
func (t *Term) Close() {
	t.line.Close()
}

func (t *Term) sigintGuard(ch <-chan os.Signal) {
	for range ch {
		t.starlarkEnv.Cancel()
		if !t.running.Load() {
			continue
		}
		fmt.Fprintf(os.Stderr, "received SIGINT, stopping process (will not forward signal)\n")
		if err := syscall.Kill(t.target.Pid(), syscall.SIGSTOP); err != nil {
			fmt.Fprintf(os.Stderr, "%v\n", err)
		}
	}
}

// Run begins running sdb in the terminal.
func (t *Term) Run() (int, error) {
	defer t.Close()

	// Stop the target on SIGINT
	ch := make(chan os.Signal, 1)
	signal.Notify(ch, syscall.SIGINT)
	defer signal.Stop(ch)
	go t.sigintGuard(ch)

	t.line.SetCompleter(t.cmds.complete)
	t.loadHistory()

	fmt.Println("Type 'help' for list of commands.")

	if t.InitFile != "" {
		err := t.cmds.executeFile(t, t.InitFile)
		if err != nil {
			if _, ok := err.(ExitRequestError); ok {
				return t.handleExit()
			}
			fmt.Fprintf(os.Stderr, "Error executing init file: %s\n", err)
		}
	}

	for {
		cmdstr, err := t.promptForInput()
		if err != nil {
			if err == io.EOF {
				fmt.Println("exit")
				return t.handleExit()
			}
			return 1, fmt.Errorf("Prompt for input failed.\n")
		}

		// An empty line repeats the last command.
		if strings.TrimSpace(cmdstr) == "" {
			cmdstr = t.lastCmd
		} else {
			t.lastCmd = cmdstr
		}
		if logflags.Terminal() {
			t.log.Debugf("command %q", cmdstr)
		}

		err = t.cmds.Call(cmdstr, t)
		t.stdout.Reset()
		if err != nil {
			if _, ok := err.(ExitRequestError); ok {
				return t.handleExit()
			}
			fmt.Fprintf(os.Stderr, "Command failed: %s\n", err)
		}
	}
}

// Println prints a line to the terminal, highlighting prefix.
func (t *Term) Println(prefix, str string) {
	if !t.dumb {
		terminalColorEscapeCode := fmt.Sprintf(terminalHighlightEscapeCode, ansiBlue)
		prefix = fmt.Sprintf("%s%s%s", terminalColorEscapeCode, prefix, terminalResetEscapeCode)
	}
	fmt.Fprintf(t.stdout, "%s%s\n", prefix, str)
}

func (t *Term) promptForInput() (string, error) {
	l, err := t.line.Prompt(t.prompt)
	if err != nil {
		return "", err
	}

	l = strings.TrimSuffix(l, "\n")
	if l != "" {
		t.line.AppendHistory(l)
	}

	return l, nil
}

func (t *Term) loadHistory() {
	fullHistoryFile, err := config.GetConfigFilePath(historyFile)
	if err != nil {
		fmt.Printf("Unable to load history file: %v.\n", err)
		return
	}
	buf, err := os.ReadFile(fullHistoryFile)
	if err != nil {
		if !os.IsNotExist(err) {
			fmt.Printf("Unable to open history file: %v.\n", err)
		}
		return
	}
	lines := strings.Split(strings.TrimRight(string(buf), "\n"), "\n")
	if n := t.conf.GetHistorySize(); len(lines) > n {
		lines = lines[len(lines)-n:]
	}
	t.line.ReadHistory(strings.NewReader(strings.Join(lines, "\n") + "\n"))
}

func (t *Term) handleExit() (int, error) {
	fullHistoryFile, err := config.GetConfigFilePath(historyFile)
	if err != nil {
		fmt.Println("Error saving history file:", err)
		return 0, nil
	}
	f, err := os.Create(fullHistoryFile)
	if err != nil {
		fmt.Println("Error saving history file:", err)
		return 0, nil
	}
	if _, err := t.line.WriteHistory(f); err != nil {
		fmt.Println("readline history error:", err)
	}
	f.Close()
	return 0, nil
}

// checkAlive returns an error if the target can no longer be inspected.
func (t *Term) checkAlive() error {
	switch t.target.State() {
	case native.Exited, native.Terminated:
		return fmt.Errorf("process %d %s", t.target.Pid(), t.lastStop)
	}
	return nil
}

// printStop reports why the target stopped. If it is still alive the
// instructions at the program counter are printed too.
func (t *Term) printStop(reason native.StopReason) error {
	t.lastStop = reason
	if reason.State != native.Stopped {
		fmt.Fprintf(t.stdout, "Process %d %s\n", t.target.Pid(), reason)
		return nil
	}
	pc := t.target.PC()
	fmt.Fprintf(t.stdout, "Process %d %s at %s\n", t.target.Pid(), reason, pc)
	return t.printDisassembly(pc, t.conf.GetDisassembleCount())
}

func (t *Term) printDisassembly(addr proc.VirtualAddress, n int) error {
	insts, err := t.disasm.DisassembleAt(addr, n)
	if err != nil {
		return err
	}
	for _, inst := range insts {
		t.Println(inst.Address.String()+":", " "+inst.Text)
	}
	return nil
}

func (t *Term) readRegister(name string) (proc.RegisterValue, error) {
	if err := t.checkAlive(); err != nil {
		return nil, err
	}
	info, err := proc.RegisterInfoByName(name)
	if err != nil {
		return nil, err
	}
	return t.target.Registers().Read(info)
}

func (t *Term) writeRegister(name, value string) error {
	info, err := proc.RegisterInfoByName(name)
	if err != nil {
		return err
	}
	v, err := proc.ParseRegisterValue(info, value)
	if err != nil {
		return err
	}
	if err := t.checkAlive(); err != nil {
		return err
	}
	return t.target.Registers().Write(info, v)
}

// setBreakpoint creates an enabled breakpoint site at addr.
func (t *Term) setBreakpoint(addr proc.VirtualAddress) (*native.BreakpointSite, error) {
	if err := t.checkAlive(); err != nil {
		return nil, err
	}
	bp, err := t.target.CreateBreakpointSite(addr)
	if err != nil {
		return nil, err
	}
	if err := bp.Enable(); err != nil {
		t.target.BreakpointSites().RemoveByID(bp.ID())
		return nil, err
	}
	return bp, nil
}

func (t *Term) breakpointByID(arg string) (*native.BreakpointSite, error) {
	if arg == "" {
		return nil, fmt.Errorf("expected a breakpoint id")
	}
	id, err := proc.ParseInteger[uint32](arg)
	if err != nil {
		return nil, err
	}
	return t.target.BreakpointSites().GetByID(native.BreakpointSiteID(id))
}
