// Package port defines the capability interface between the forwarding
// engine and whatever actually moves frames: a kernel socket, a test
// fixture, or real hardware. The engine only sees burst receive, burst
// transmit and a MAC address; everything driver specific stays behind
// these interfaces.
package port

import (
	"fmt"
	"net"

	"github.com/mazdakn/ufwd/pkg/packet"
)

// RxQueue is one receive queue of one port, owned by a single worker.
// ReceiveBurst fills the given slice with up to len(into) buffers and
// returns how many it produced. It never blocks; zero means no traffic.
// A non-nil error marks the queue as persistently unusable.
type RxQueue interface {
	ReceiveBurst(into []*packet.Buffer) (int, error)
}

// TxQueue is one transmit queue of one port, owned by a single worker.
// TransmitBurst accepts a prefix of the burst and returns its length.
// It never blocks. Buffers beyond the returned count remain owned by
// the caller, who must release them.
type TxQueue interface {
	TransmitBurst(bufs []*packet.Buffer) int
}

// Device is one configured port with its queues started.
type Device interface {
	ID() uint16
	Name() string
	HardwareAddr() net.HardwareAddr
	RxQueue(i int) RxQueue
	TxQueue(i int) TxQueue

	Start() error
	Stop() error
}

// Driver configures ports. InitPort fails with a DeviceError when the
// port does not exist or the queue counts exceed what the driver
// supports.
type Driver interface {
	InitPort(id uint16, rxQueues, txQueues int, pool packet.Pool) (Device, error)
}

// DeviceError reports a port or queue that is unusable, either at
// configuration time or at runtime.
type DeviceError struct {
	Port uint16
	Op   string
	Err  error
}

func (e *DeviceError) Error() string {
	return fmt.Sprintf("port %v: %v - err: %v", e.Port, e.Op, e.Err)
}

func (e *DeviceError) Unwrap() error {
	return e.Err
}
