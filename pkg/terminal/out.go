package terminal

import (
	"io"
	"os"
	"os/exec"
	"strings"

	"github.com/mattn/go-isatty"
	sys "golang.org/x/sys/unix"
)

// pagingWriter writes to w. Once PageMaybe has been called, output longer
// than the terminal window is piped to a pager until Reset.
type pagingWriter struct {
	w     io.Writer
	mode  pagingMode
	pager string

	// held back output, while deciding whether to page
	buf    []byte
	lastnl bool

	cmd   *exec.Cmd
	stdin io.WriteCloser

	rows, cols int
}

type pagingMode uint8

const (
	pagingOff pagingMode = iota
	pagingUndecided
	pagingOn
)

func (w *pagingWriter) Write(p []byte) (int, error) {
	switch w.mode {
	case pagingUndecided:
		w.buf = append(w.buf, p...)
		if w.fitsWindow() {
			if len(p) > 0 {
				w.lastnl = p[len(p)-1] == '\n'
			}
			return w.w.Write(p)
		}
		if !w.startPager() {
			w.mode = pagingOff
			return w.w.Write(p)
		}
		return len(p), nil
	case pagingOn:
		n, err := w.stdin.Write(p)
		if err != nil {
			// the pager was closed by the user, drop the rest
			return len(p), nil
		}
		return n, nil
	}
	return w.w.Write(p)
}

func (w *pagingWriter) startPager() bool {
	cmd := exec.Command(w.pager)
	cmd.Stdout = os.Stdout
	cmd.Stderr = os.Stderr
	stdin, err := cmd.StdinPipe()
	if err != nil {
		return false
	}
	if err := cmd.Start(); err != nil {
		return false
	}
	if !w.lastnl {
		io.WriteString(w.w, "\n")
	}
	io.WriteString(w.w, "Sending output to pager...\n")
	w.cmd, w.stdin = cmd, stdin
	w.stdin.Write(w.buf)
	w.buf = nil
	w.mode = pagingOn
	return true
}

// Reset waits for the pager, if one was started, and goes back to writing
// to w directly.
func (w *pagingWriter) Reset() {
	w.mode = pagingOff
	w.buf = nil
	if w.cmd != nil {
		w.stdin.Close()
		w.cmd.Wait()
		w.cmd, w.stdin = nil, nil
	}
}

// PageMaybe starts holding back output so that it can be sent to a pager
// if it does not fit the terminal. The pager is $SDB_PAGER if set,
// otherwise $PAGER or more, and only when w is a terminal.
func (w *pagingWriter) PageMaybe() {
	if w.mode != pagingOff {
		return
	}
	w.pager = os.Getenv("SDB_PAGER")
	if w.pager == "" {
		f, _ := w.w.(*os.File)
		if f == nil || !isatty.IsTerminal(f.Fd()) || strings.ToLower(os.Getenv("TERM")) == "dumb" {
			return
		}
		if w.pager = os.Getenv("PAGER"); w.pager == "" {
			w.pager = "more"
		}
	}
	ws, err := sys.IoctlGetWinsize(int(os.Stdout.Fd()), sys.TIOCGWINSZ)
	if err != nil {
		return
	}
	w.rows, w.cols = int(ws.Row), int(ws.Col)
	w.mode = pagingUndecided
	w.lastnl = true
}

// fitsWindow reports whether the held back output, with long lines
// wrapped, fits in the terminal window.
func (w *pagingWriter) fitsWindow() bool {
	lines, col := 0, 0
	for _, c := range w.buf {
		col++
		if c == '\n' || col > w.cols {
			lines++
			col = 0
			if lines > w.rows {
				return false
			}
		}
	}
	return true
}
