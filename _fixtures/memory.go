package main

import (
	"bytes"
	"encoding/binary"
	"os"
	"runtime"
	"unsafe"
)

var value uint64 = 0xcafecafe

var toWrite [12]byte

func init() {
	runtime.LockOSThread()
}

func sendAddress(p unsafe.Pointer) {
	var buf [8]byte
	binary.LittleEndian.PutUint64(buf[:], uint64(uintptr(p)))
	os.Stdout.Write(buf[:])
}

func main() {
	sendAddress(unsafe.Pointer(&value))
	runtime.Breakpoint()

	sendAddress(unsafe.Pointer(&toWrite))
	runtime.Breakpoint()

	n := bytes.IndexByte(toWrite[:], 0)
	if n < 0 {
		n = len(toWrite)
	}
	os.Stdout.Write(toWrite[:n])
	runtime.KeepAlive(&value)
}
