//go:build !linux

package cpu

import "runtime"

// Cores lists logical CPU ids. Without sched_getaffinity this is the
// plain 0..NumCPU-1 range.
func Cores() []int {
	return fallbackCores()
}

// Pin locks the goroutine to its OS thread. Core placement is left to
// the scheduler on platforms without affinity syscalls.
func Pin(core int) error {
	runtime.LockOSThread()
	return nil
}
