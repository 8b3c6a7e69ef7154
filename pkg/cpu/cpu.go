// Package cpu enumerates the execution units available to the process
// and pins worker goroutines to them. Used once at startup when workers
// are launched, never on the forwarding path.
package cpu
