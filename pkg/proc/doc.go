// Package proc holds the architecture level types shared by the process
// control code in proc/native: target addresses, the x86-64 register
// table and register values, the stoppoint collection, the parsers for
// value literals typed by the user and the disassembler.
//
// proc/native implements the ptrace backend on top of these types.
package proc
