package main

import (
	"os"
	"runtime"
)

func init() {
	runtime.LockOSThread()
}

func main() {
	os.Stdout.WriteString("Hello, sdb!\n")
}
