// Package terminal implements functions for responding to user
// input and dispatching to appropriate backend commands.
package terminal

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"text/tabwriter"

	"github.com/cosiner/argv"
	"github.com/spf13/pflag"

	"github.com/sdb-debugger/sdb/pkg/proc"
	"github.com/sdb-debugger/sdb/pkg/proc/native"
)

type cmdfunc func(t *Term, args string) error

type commandGroup uint8

const (
	otherCmds commandGroup = iota
	runCmds
	breakCmds
	dataCmds
)

// commandGroupDescriptions lists the groups in the order help prints them.
var commandGroupDescriptions = []struct {
	group       commandGroup
	description string
}{
	{runCmds, "Running the program"},
	{breakCmds, "Manipulating breakpoints"},
	{dataCmds, "Viewing and changing registers and memory"},
	{otherCmds, "Other commands"},
}

type command struct {
	aliases        []string
	builtinAliases []string
	group          commandGroup
	helpMsg        string
	cmdFn          cmdfunc
	subcmds        *subcommands
}

// Commands represents the commands for the sdb terminal.
type Commands struct {
	cmds  []command
	index *prefixIndex
}

// byFirstAlias will sort by the first
// alias of a command.
type byFirstAlias []command

func (a byFirstAlias) Len() int           { return len(a) }
func (a byFirstAlias) Swap(i, j int)      { a[i], a[j] = a[j], a[i] }
func (a byFirstAlias) Less(i, j int) bool { return a[i].aliases[0] < a[j].aliases[0] }

// DebugCommands returns a Commands struct with default commands defined.
func DebugCommands() *Commands {
	c := &Commands{}

	c.cmds = []command{
		{aliases: []string{"help", "h"}, cmdFn: c.help, helpMsg: `Prints the help message.

	help [command]

Type "help" followed by the name of a command for more information about it.`},
		{aliases: []string{"continue", "c"}, group: runCmds, cmdFn: cont, helpMsg: `Run until a breakpoint is hit or the program terminates.

The instructions at the new program counter are printed when the process stops.`},
		{aliases: []string{"step", "s", "si"}, group: runCmds, cmdFn: step, helpMsg: "Single step a single cpu instruction."},
		{aliases: []string{"breakpoint", "b"}, group: breakCmds, cmdFn: breakpointSubcommands.call, subcmds: breakpointSubcommands, helpMsg: `Manipulates breakpoint sites.

	breakpoint list
	breakpoint set <address>
	breakpoint enable <id>
	breakpoint disable <id>
	breakpoint delete <id>

Addresses are hexadecimal, the 0x prefix is optional. Breakpoints are enabled when they are set.`},
		{aliases: []string{"register", "reg"}, group: dataCmds, cmdFn: registerSubcommands.call, subcmds: registerSubcommands, helpMsg: `Reads and writes registers.

	register read [<name>|all]
	register write <name> <value>

Without an argument "register read" prints the general purpose registers, "all" prints every register.

Integer registers take decimal or 0x prefixed hexadecimal values, floating point registers take floating
point values and vector registers take a list with one element per byte of the register:

	register write xmm0 [0x00,0x00,0x00,0x00,0x00,0x00,0xf0,0x3f,0x00,0x00,0x00,0x00,0x00,0x00,0x00,0x00]`},
		{aliases: []string{"memory", "mem"}, group: dataCmds, cmdFn: memorySubcommands.call, subcmds: memorySubcommands, helpMsg: `Reads and writes memory.

	memory read <address> [<count>]
	memory write <address> [0xNN,0xNN,...]

Count defaults to the memory-read-bytes configuration parameter.`},
		{aliases: []string{"disassemble", "disass"}, group: dataCmds, cmdFn: disassCommand, helpMsg: `Disassembler.

	disassemble [-a <address>] [-c <count>]

Disassembles count instructions starting at address, or at the current program counter if -a is not given.
Count defaults to the disassemble-count configuration parameter.`},
		{aliases: []string{"source"}, cmdFn: c.sourceCommand, helpMsg: `Executes a file containing a list of sdb commands.

	source <path>

If path ends with the .star extension it will be interpreted as a starlark script.

If path is a single '-' character an interactive starlark interpreter will start instead. Type 'exit' in order to exit.`},
		{aliases: []string{"config"}, cmdFn: configureCmd, helpMsg: `Changes configuration parameters.

	config -list

Show all configuration parameters.

	config -save

Saves the configuration file to disk, overwriting the current configuration file.

	config <parameter> <value>

Changes the value of a configuration parameter.

	config alias <command> <alias>
	config alias <alias>

Defines <alias> as an alias to <command> or removes an alias.`},
		{aliases: []string{"exit", "quit", "q"}, cmdFn: exitCommand, helpMsg: `Exit the debugger.

Processes launched by sdb are killed, processes sdb attached to are detached and left running.`},
	}

	sort.Sort(byFirstAlias(c.cmds))
	c.reindex()
	return c
}

func (c *Commands) reindex() {
	c.index = newPrefixIndex()
	for i := range c.cmds {
		for _, alias := range c.cmds[i].aliases {
			c.index.add(alias, i)
		}
	}
}

// Register custom commands. Expects cf to be a func of type cmdfunc,
// returning only an error.
func (c *Commands) Register(cmdstr string, cf cmdfunc, helpMsg string) {
	if n, ok := c.index.names.Find(cmdstr); ok {
		cmd := &c.cmds[n.Meta().(int)]
		cmd.cmdFn = cf
		cmd.helpMsg = helpMsg
		cmd.subcmds = nil
		return
	}

	c.cmds = append(c.cmds, command{aliases: []string{cmdstr}, cmdFn: cf, helpMsg: helpMsg})
	c.reindex()
}

// Find will look up the command function for the given command input.
// Any prefix of a command name or alias that is not shared with another
// command selects it.
// If it cannot find the command it will default to noCmdAvailable().
// If the command is an empty string it will default to nullCommand().
func (c *Commands) Find(cmdstr string) cmdfunc {
	if cmdstr == "" {
		return nullCommand
	}
	i, err := c.index.lookup(cmdstr)
	switch {
	case err == errNoMatch:
		return noCmdAvailable
	case err != nil:
		return func(*Term, string) error { return err }
	}
	return c.cmds[i].cmdFn
}

// Call takes a command to execute.
func (c *Commands) Call(cmdstr string, t *Term) error {
	cmdname, args := splitCommand(cmdstr)
	return c.Find(cmdname)(t, args)
}

// Merge takes aliases defined in the config struct and merges them with the default aliases.
func (c *Commands) Merge(allAliases map[string][]string) {
	for i := range c.cmds {
		if c.cmds[i].builtinAliases != nil {
			c.cmds[i].aliases = append(c.cmds[i].aliases[:0], c.cmds[i].builtinAliases...)
		}
	}
	for i := range c.cmds {
		if aliases, ok := allAliases[c.cmds[i].aliases[0]]; ok {
			if c.cmds[i].builtinAliases == nil {
				c.cmds[i].builtinAliases = make([]string, len(c.cmds[i].aliases))
				copy(c.cmds[i].builtinAliases, c.cmds[i].aliases)
			}
			c.cmds[i].aliases = append(c.cmds[i].aliases, aliases...)
		}
	}
	c.reindex()
}

// complete returns the commands, and subcommands, that line could be
// completed to.
func (c *Commands) complete(line string) []string {
	cmdname, args := splitCommand(strings.ToLower(line))
	if !strings.Contains(line, " ") {
		return c.index.complete(cmdname)
	}
	i, err := c.index.lookup(cmdname)
	if err != nil || c.cmds[i].subcmds == nil || strings.Contains(args, " ") {
		return nil
	}
	var r []string
	for _, name := range c.cmds[i].subcmds.index.complete(args) {
		r = append(r, cmdname+" "+name)
	}
	return r
}

var noCmdError = errors.New("command not available")

func noCmdAvailable(t *Term, args string) error {
	return noCmdError
}

func nullCommand(t *Term, args string) error {
	return nil
}

func (c *Commands) help(t *Term, args string) error {
	if args != "" {
		i, err := c.index.lookup(args)
		if err == errNoMatch {
			return noCmdError
		}
		if err != nil {
			return err
		}
		fmt.Fprintln(t.stdout, c.cmds[i].helpMsg)
		return nil
	}

	fmt.Fprintln(t.stdout, "The following commands are available:")

	for _, cgd := range commandGroupDescriptions {
		fmt.Fprintf(t.stdout, "\n%s:\n", cgd.description)
		w := new(tabwriter.Writer)
		w.Init(t.stdout, 0, 8, 0, '-', 0)
		for _, cmd := range c.cmds {
			if cmd.group != cgd.group {
				continue
			}
			h := cmd.helpMsg
			if idx := strings.Index(h, "\n"); idx >= 0 {
				h = h[:idx]
			}
			if len(cmd.aliases) > 1 {
				fmt.Fprintf(w, "    %s (alias: %s) \t %s\n", cmd.aliases[0], strings.Join(cmd.aliases[1:], " | "), h)
			} else {
				fmt.Fprintf(w, "    %s \t %s\n", cmd.aliases[0], h)
			}
		}
		if err := w.Flush(); err != nil {
			return err
		}
	}

	fmt.Fprintln(t.stdout)
	fmt.Fprintln(t.stdout, "Commands and subcommands can be abbreviated to any unambiguous prefix.")
	fmt.Fprintln(t.stdout, "Type help followed by a command for full documentation.")
	return nil
}

type subcommand struct {
	name string
	fn   cmdfunc
}

// subcommands dispatches the first word of the arguments of a command.
type subcommands struct {
	parent string
	cmds   []subcommand
	index  *prefixIndex
}

func newSubcommands(parent string, cmds ...subcommand) *subcommands {
	s := &subcommands{parent: parent, cmds: cmds, index: newPrefixIndex()}
	for i := range cmds {
		s.index.add(cmds[i].name, i)
	}
	return s
}

func (s *subcommands) names() string {
	r := make([]string, len(s.cmds))
	for i := range s.cmds {
		r[i] = s.cmds[i].name
	}
	return strings.Join(r, ", ")
}

func (s *subcommands) call(t *Term, args string) error {
	name, rest := splitCommand(args)
	if name == "" {
		return fmt.Errorf("%s: expected one of %s", s.parent, s.names())
	}
	i, err := s.index.lookup(name)
	switch {
	case err == errNoMatch:
		return fmt.Errorf("%s: unknown subcommand %q, expected one of %s", s.parent, name, s.names())
	case err != nil:
		return fmt.Errorf("%s: %w", s.parent, err)
	}
	return s.cmds[i].fn(t, rest)
}

var (
	breakpointSubcommands = newSubcommands("breakpoint",
		subcommand{"list", breakpointList},
		subcommand{"set", breakpointSet},
		subcommand{"enable", breakpointEnable},
		subcommand{"disable", breakpointDisable},
		subcommand{"delete", breakpointDelete})

	registerSubcommands = newSubcommands("register",
		subcommand{"read", registerRead},
		subcommand{"write", registerWrite})

	memorySubcommands = newSubcommands("memory",
		subcommand{"read", memoryRead},
		subcommand{"write", memoryWrite})
)

func splitCommand(s string) (name, args string) {
	vals := strings.SplitN(strings.TrimSpace(s), " ", 2)
	name = vals[0]
	if len(vals) > 1 {
		args = strings.TrimSpace(vals[1])
	}
	return name, args
}

// splitArgs splits args into words with the quoting rules of a shell.
func splitArgs(args string) ([]string, error) {
	if strings.TrimSpace(args) == "" {
		return nil, nil
	}
	v, err := argv.Argv(args,
		func(s string) (string, error) {
			return "", fmt.Errorf("Backtick not supported in '%s'", s)
		},
		nil)
	if err != nil {
		return nil, err
	}
	if len(v) != 1 {
		return nil, fmt.Errorf("illegal command line '%s'", args)
	}
	return v[0], nil
}

func cont(t *Term, args string) error {
	if err := t.checkAlive(); err != nil {
		return err
	}
	t.running.Store(true)
	err := t.target.Resume()
	var reason native.StopReason
	if err == nil {
		reason, err = t.target.WaitOnSignal()
	}
	t.running.Store(false)
	if err != nil {
		return err
	}
	return t.printStop(reason)
}

func step(t *Term, args string) error {
	if err := t.checkAlive(); err != nil {
		return err
	}
	reason, err := t.target.StepInstruction()
	if err != nil {
		return err
	}
	return t.printStop(reason)
}

func breakpointList(t *Term, args string) error {
	sites := t.target.BreakpointSites()
	if sites.Empty() {
		fmt.Fprintln(t.stdout, "No breakpoints set")
		return nil
	}
	fmt.Fprintln(t.stdout, "Current breakpoints:")
	sites.ForEach(func(bp *native.BreakpointSite) {
		state := "disabled"
		if bp.IsEnabled() {
			state = "enabled"
		}
		fmt.Fprintf(t.stdout, "%d: address = %#x, %s\n", bp.ID(), uint64(bp.Address()), state)
	})
	return nil
}

func breakpointSet(t *Term, args string) error {
	if args == "" {
		return errors.New("wrong number of arguments: breakpoint set <address>")
	}
	addr, err := proc.ParseAddress(args)
	if err != nil {
		return err
	}
	bp, err := t.setBreakpoint(addr)
	if err != nil {
		return err
	}
	fmt.Fprintf(t.stdout, "Breakpoint %d set at %s\n", bp.ID(), bp.Address())
	return nil
}

func breakpointEnable(t *Term, args string) error {
	bp, err := t.breakpointByID(args)
	if err != nil {
		return err
	}
	return bp.Enable()
}

func breakpointDisable(t *Term, args string) error {
	bp, err := t.breakpointByID(args)
	if err != nil {
		return err
	}
	return bp.Disable()
}

func breakpointDelete(t *Term, args string) error {
	bp, err := t.breakpointByID(args)
	if err != nil {
		return err
	}
	return t.target.BreakpointSites().RemoveByID(bp.ID())
}

func registerRead(t *Term, args string) error {
	var names []string
	switch args {
	case "":
		for _, name := range proc.RegisterNames(proc.RegisterClassGPR) {
			if name != "orig_rax" {
				names = append(names, name)
			}
		}
	case "all":
		for _, class := range []proc.RegisterClass{proc.RegisterClassGPR, proc.RegisterClassSubGPR, proc.RegisterClassFPR, proc.RegisterClassDR} {
			names = append(names, proc.RegisterNames(class)...)
		}
		t.stdout.PageMaybe()
	default:
		names = []string{args}
	}

	w := new(tabwriter.Writer)
	w.Init(t.stdout, 0, 8, 1, ' ', 0)
	for _, name := range names {
		v, err := t.readRegister(name)
		if err != nil {
			return err
		}
		fmt.Fprintf(w, "%s:\t%s\n", name, v)
	}
	return w.Flush()
}

func registerWrite(t *Term, args string) error {
	v, err := splitArgs(args)
	if err != nil {
		return err
	}
	if len(v) != 2 {
		return errors.New("wrong number of arguments: register write <name> <value>")
	}
	return t.writeRegister(v[0], v[1])
}

const memoryBytesPerLine = 16

func memoryRead(t *Term, args string) error {
	v, err := splitArgs(args)
	if err != nil {
		return err
	}
	if len(v) < 1 || len(v) > 2 {
		return errors.New("wrong number of arguments: memory read <address> [<count>]")
	}
	addr, err := proc.ParseAddress(v[0])
	if err != nil {
		return err
	}
	count := t.conf.GetMemoryReadBytes()
	if len(v) == 2 {
		count, err = proc.ParseInteger[int](v[1])
		if err != nil {
			return err
		}
		if count <= 0 {
			return fmt.Errorf("count must be a positive number, not %d", count)
		}
	}
	if err := t.checkAlive(); err != nil {
		return err
	}

	data, err := t.target.ReadMemory(addr, count)
	if err != nil {
		return err
	}
	if len(data) > 16*memoryBytesPerLine {
		t.stdout.PageMaybe()
	}
	for i := 0; i < len(data); i += memoryBytesPerLine {
		end := min(i+memoryBytesPerLine, len(data))
		fmt.Fprintf(t.stdout, "%#016x: % x\n", uint64(addr.Add(int64(i))), data[i:end])
	}
	return nil
}

func memoryWrite(t *Term, args string) error {
	v, err := splitArgs(args)
	if err != nil {
		return err
	}
	if len(v) != 2 {
		return errors.New("wrong number of arguments: memory write <address> [0xNN,0xNN,...]")
	}
	addr, err := proc.ParseAddress(v[0])
	if err != nil {
		return err
	}
	data, err := proc.ParseByteList(v[1])
	if err != nil {
		return err
	}
	if err := t.checkAlive(); err != nil {
		return err
	}
	return t.target.WriteMemory(addr, data)
}

var disasmUsageError = errors.New("wrong arguments: disassemble [-a <address>] [-c <count>]")

func disassCommand(t *Term, args string) error {
	v, err := splitArgs(args)
	if err != nil {
		return err
	}
	flags := pflag.NewFlagSet("disassemble", pflag.ContinueOnError)
	flags.SetOutput(io.Discard)
	addrFlag := flags.StringP("address", "a", "", "start address")
	count := flags.IntP("count", "c", t.conf.GetDisassembleCount(), "number of instructions")
	if err := flags.Parse(v); err != nil {
		return fmt.Errorf("%v, %w", err, disasmUsageError)
	}
	if flags.NArg() != 0 || *count <= 0 {
		return disasmUsageError
	}
	if err := t.checkAlive(); err != nil {
		return err
	}

	addr := t.target.PC()
	if *addrFlag != "" {
		addr, err = proc.ParseAddress(*addrFlag)
		if err != nil {
			return err
		}
	}
	return t.printDisassembly(addr, *count)
}

func (c *Commands) sourceCommand(t *Term, args string) error {
	if len(args) == 0 {
		return fmt.Errorf("wrong number of arguments: source <filename>")
	}

	if filepath.Ext(args) == ".star" {
		_, err := t.starlarkEnv.Execute(args, nil, "main", nil)
		return err
	}

	if args == "-" {
		return t.starlarkEnv.REPL()
	}

	return c.executeFile(t, args)
}

// ExitRequestError is returned by the exit command.
type ExitRequestError struct{}

func (ere ExitRequestError) Error() string {
	return ""
}

func exitCommand(t *Term, args string) error {
	return ExitRequestError{}
}

func (c *Commands) executeFile(t *Term, name string) error {
	fh, err := os.Open(name)
	if err != nil {
		return err
	}
	defer fh.Close()

	scanner := bufio.NewScanner(fh)
	lineno := 0
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		lineno++

		if line == "" || line[0] == '#' {
			continue
		}

		if err := c.Call(line, t); err != nil {
			if _, isExitRequest := err.(ExitRequestError); isExitRequest {
				return err
			}
			fmt.Fprintf(t.stdout, "%s:%d: %v\n", name, lineno, err)
		}
	}

	return scanner.Err()
}
