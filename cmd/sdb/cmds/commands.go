package cmds

import (
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/creack/pty"
	"github.com/spf13/cobra"

	"github.com/sdb-debugger/sdb/pkg/config"
	"github.com/sdb-debugger/sdb/pkg/logflags"
	"github.com/sdb-debugger/sdb/pkg/proc/native"
	"github.com/sdb-debugger/sdb/pkg/terminal"
	"github.com/sdb-debugger/sdb/pkg/version"
)

var (
	// log is whether to log debug statements.
	log bool
	// logOutput is a comma separated list of components that should produce debug output.
	logOutput string
	// logDest is the file path or file descriptor where logs should go.
	logDest string
	// attachPid is the pid of the process to attach to.
	attachPid int
	// initFile is the path to initialization file.
	initFile string
	// usePty runs the launched program on a new pseudo-terminal.
	usePty bool
	// verbose prints build details in the version command.
	verbose bool

	// rootCommand is the root of the command tree.
	rootCommand *cobra.Command
)

const sdbCommandLongDesc = `sdb is a native debugger for linux/amd64 programs.

sdb launches a program, or attaches to a process that is already running, and
lets you set breakpoints, step through instructions, read and write registers
and memory and disassemble the code around the program counter.

	sdb ./hello
	sdb -p 1234

Type 'help' at the sdb prompt for the list of commands.`

// New returns an initialized command tree.
func New() *cobra.Command {
	rootCommand = &cobra.Command{
		Use:          "sdb [flags] <program>",
		Short:        "sdb is a native debugger for linux/amd64.",
		Long:         sdbCommandLongDesc,
		Args:         validateArgs,
		SilenceUsage: true,
		Run: func(cmd *cobra.Command, args []string) {
			os.Exit(execute(args))
		},
	}

	rootCommand.Flags().IntVarP(&attachPid, "pid", "p", 0, "Attach to the process with the given pid instead of launching a program.")
	rootCommand.Flags().StringVar(&initFile, "init", "", "Init file, executed before the first prompt.")
	rootCommand.Flags().BoolVar(&usePty, "tty", false, "Run the launched program on a new pseudo-terminal and copy its output to standard output.")

	rootCommand.PersistentFlags().BoolVarP(&log, "log", "", false, "Enable debugger logging.")
	rootCommand.PersistentFlags().StringVarP(&logOutput, "log-output", "", "", `Comma separated list of components that should produce debug output (see 'sdb help log')`)
	rootCommand.PersistentFlags().StringVarP(&logDest, "log-dest", "", "", "Writes logs to the specified file or file descriptor (see 'sdb help log').")

	// 'version' subcommand.
	versionCommand := &cobra.Command{
		Use:   "version",
		Short: "Prints version.",
		Args:  cobra.NoArgs,
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Fprintf(cmd.OutOrStdout(), "sdb debugger\n%s\n", version.SdbVersion)
			if verbose {
				fmt.Fprintf(cmd.OutOrStdout(), "Build Details: %s\n", version.BuildInfo())
			}
		},
	}
	versionCommand.Flags().BoolVarP(&verbose, "verbose", "v", false, "print verbose version info")
	rootCommand.AddCommand(versionCommand)

	rootCommand.AddCommand(&cobra.Command{
		Use:   "log",
		Short: "Help about logging flags.",
		Long: `Logging can be enabled by specifying the --log flag and using the
--log-output flag to select which components should produce logs.

The argument of --log-output must be a comma separated list of component
names selected from this list:


	debugger	Log process launch, attach, stops and teardown
	ptrace		Log every ptrace request
	terminal	Log the commands executed by the terminal

Additionally --log-dest can be used to specify where the logs should be
written.
If the argument is a number it will be interpreted as a file descriptor,
otherwise as a file path.
`,
	})

	rootCommand.DisableAutoGenTag = true

	return rootCommand
}

func validateArgs(cmd *cobra.Command, args []string) error {
	switch {
	case attachPid != 0 && len(args) != 0:
		return errors.New("can not launch a program and attach to a process at the same time")
	case attachPid == 0 && len(args) == 0:
		return errors.New("you must provide a program to launch or a pid to attach to")
	case len(args) > 1:
		return errors.New("arguments for the launched program are not supported")
	case attachPid != 0 && usePty:
		return errors.New("--tty can only be used when launching a program")
	}
	return nil
}

func execute(args []string) int {
	if err := logflags.Setup(log, logOutput, logDest); err != nil {
		fmt.Fprintf(os.Stderr, "%v\n", err)
		return 1
	}
	defer logflags.Close()

	conf, err := config.LoadConfig()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Warning: %v\n", err)
	}

	target, closeTTY, err := startTarget(args)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		return 1
	}
	defer closeTTY()
	defer target.Close()

	if attachPid != 0 {
		fmt.Printf("Attached to process %d\n", target.Pid())
	} else {
		fmt.Printf("Launched process with PID %d\n", target.Pid())
	}

	term := terminal.New(target, conf)
	term.InitFile = initFile
	status, err := term.Run()
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
	}
	return status
}

// startTarget launches args[0] or attaches to attachPid. The returned
// function releases the pseudo-terminal created by --tty, if any.
func startTarget(args []string) (*native.Process, func(), error) {
	if attachPid != 0 {
		p, err := native.Attach(attachPid)
		return p, func() {}, err
	}

	var stdout *os.File
	closeTTY := func() {}
	if usePty {
		ptmx, tty, err := pty.Open()
		if err != nil {
			return nil, nil, fmt.Errorf("could not open pseudo-terminal: %v", err)
		}
		go io.Copy(os.Stdout, ptmx)
		stdout = tty
		closeTTY = func() {
			tty.Close()
			ptmx.Close()
		}
	}

	p, err := native.Launch(args[0], true, stdout)
	if err != nil {
		closeTTY()
		return nil, nil, err
	}
	return p, closeTTY, nil
}
