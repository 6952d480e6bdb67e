package main

import (
	"fmt"
	"os"
	"runtime"
	"strconv"
)

// Each of these stops on a trap and then returns the contents of one
// register.
func trapRSI() uint64
func trapMM0() uint64
func trapXMM0() float64
func trapST0() float64

func init() {
	runtime.LockOSThread()
}

func main() {
	fmt.Fprintf(os.Stdout, "%#x", trapRSI())
	fmt.Fprintf(os.Stdout, "%#x", trapMM0())
	os.Stdout.WriteString(strconv.FormatFloat(trapXMM0(), 'g', -1, 64))
	os.Stdout.WriteString(strconv.FormatFloat(trapST0(), 'g', -1, 64))
}
