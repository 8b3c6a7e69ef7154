//go:build linux

package cpu

import (
	"fmt"
	"runtime"

	"golang.org/x/sys/unix"
)

// cpuSetSize mirrors the kernel's CPU_SETSIZE (unexported as
// _CPU_SETSIZE in x/sys/unix): the number of bits in a unix.CPUSet.
const cpuSetSize = 1024

// Cores lists the cores in the process affinity mask, in ascending
// order.
func Cores() []int {
	var set unix.CPUSet
	err := unix.SchedGetaffinity(0, &set)
	if err != nil {
		return fallbackCores()
	}
	var cores []int
	for i := 0; i < cpuSetSize; i++ {
		if set.IsSet(i) {
			cores = append(cores, i)
		}
	}
	if len(cores) == 0 {
		return fallbackCores()
	}
	return cores
}

// Pin locks the calling goroutine to its OS thread and restricts that
// thread to a single core. The lock is deliberately never released; a
// pinned worker keeps its thread for the process lifetime.
func Pin(core int) error {
	runtime.LockOSThread()
	var set unix.CPUSet
	set.Zero()
	set.Set(core)
	err := unix.SchedSetaffinity(0, &set)
	if err != nil {
		return fmt.Errorf("failed to pin thread to core %v - err: %w", core, err)
	}
	return nil
}
