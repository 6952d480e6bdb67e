// Package native implements the process control layer of sdb on top of
// ptrace(2): launching and attaching to a target, waiting for stops,
// software breakpoint sites, register and memory access.
//
// Every ptrace request for a Process is issued from a single goroutine
// locked to its OS thread, because the kernel only accepts requests from
// the thread that attached to the tracee.
package native
