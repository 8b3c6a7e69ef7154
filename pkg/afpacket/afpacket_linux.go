//go:build linux

// Package afpacket adapts kernel AF_PACKET sockets to the port
// capability interface. One non-blocking raw socket backs each queue
// pair; netlink supplies link attributes and promiscuous mode. It is a
// stand-in for a real poll-mode driver, not a performance claim.
package afpacket

import (
	"fmt"
	"net"

	"github.com/mazdakn/ufwd/pkg/packet"
	"github.com/mazdakn/ufwd/pkg/port"
	"github.com/sirupsen/logrus"
	"github.com/vishvananda/netlink"
	"golang.org/x/sys/unix"
)

// Syscall indirection so queue behavior is testable without a socket.
var (
	recvfrom = unix.Recvfrom
	sendto   = unix.Sendto
)

type Driver struct {
	interfaces []string
}

func NewDriver(interfaces []string) *Driver {
	return &Driver{
		interfaces: interfaces,
	}
}

func (d *Driver) InitPort(id uint16, rxQueues, txQueues int, pool packet.Pool) (port.Device, error) {
	if int(id) >= len(d.interfaces) {
		return nil, &port.DeviceError{Port: id, Op: "init", Err: fmt.Errorf("no interface configured for port %v", id)}
	}
	// AF_PACKET gives one socket per port; there is no queue fanout.
	if rxQueues != 1 || txQueues != 1 {
		return nil, &port.DeviceError{
			Port: id,
			Op:   "init",
			Err:  fmt.Errorf("queue counts rx=%v tx=%v exceed driver limit of 1", rxQueues, txQueues),
		}
	}

	name := d.interfaces[id]
	link, err := netlink.LinkByName(name)
	if err != nil {
		return nil, &port.DeviceError{Port: id, Op: "init", Err: fmt.Errorf("failed to find link %v - err: %w", name, err)}
	}

	proto := htons(unix.ETH_P_ALL)
	fd, err := unix.Socket(unix.AF_PACKET, unix.SOCK_RAW|unix.SOCK_NONBLOCK|unix.SOCK_CLOEXEC, int(proto))
	if err != nil {
		return nil, &port.DeviceError{Port: id, Op: "init", Err: fmt.Errorf("failed to open packet socket - err: %w", err)}
	}

	addr := &unix.SockaddrLinklayer{
		Protocol: proto,
		Ifindex:  link.Attrs().Index,
	}
	err = unix.Bind(fd, addr)
	if err != nil {
		unix.Close(fd)
		return nil, &port.DeviceError{Port: id, Op: "init", Err: fmt.Errorf("failed to bind to %v - err: %w", name, err)}
	}

	dev := &Device{
		id:   id,
		name: name,
		mac:  link.Attrs().HardwareAddr,
		link: link,
		fd:   fd,
		addr: addr,
		pool: pool,
	}
	dev.rx = &rxQueue{dev: dev}
	dev.tx = &txQueue{dev: dev}
	return dev, nil
}

type Device struct {
	id   uint16
	name string
	mac  net.HardwareAddr
	link netlink.Link
	fd   int
	addr *unix.SockaddrLinklayer
	pool packet.Pool
	rx   *rxQueue
	tx   *txQueue
}

func (d *Device) ID() uint16 {
	return d.id
}

func (d *Device) Name() string {
	return fmt.Sprintf("afpacket %v", d.name)
}

func (d *Device) HardwareAddr() net.HardwareAddr {
	return d.mac
}

func (d *Device) RxQueue(i int) port.RxQueue {
	return d.rx
}

func (d *Device) TxQueue(i int) port.TxQueue {
	return d.tx
}

func (d *Device) Start() error {
	logrus.Infof("Setting %v promiscuous", d.name)
	err := netlink.SetPromiscOn(d.link)
	if err != nil {
		return fmt.Errorf("failed to set %v promiscuous - err: %w", d.name, err)
	}
	return nil
}

func (d *Device) Stop() error {
	err := netlink.SetPromiscOff(d.link)
	if err != nil {
		logrus.WithError(err).Warnf("Failed do disable promiscuous mode on %v", d.name)
	}
	err = unix.Close(d.fd)
	if err != nil {
		return fmt.Errorf("failed to close packet socket for %v - err: %w", d.name, err)
	}
	return nil
}

type rxQueue struct {
	dev *Device
}

func (q *rxQueue) ReceiveBurst(into []*packet.Buffer) (int, error) {
	dev := q.dev
	n := 0
	for n < len(into) {
		buf, err := dev.pool.Acquire()
		if err != nil {
			// Pool pressure is transient, not a queue failure.
			return n, nil
		}
		size, _, err := recvfrom(dev.fd, buf.Raw(), unix.MSG_DONTWAIT)
		if err == unix.EAGAIN || err == unix.EWOULDBLOCK || err == unix.EINTR {
			dev.pool.Release(buf)
			return n, nil
		}
		if err != nil {
			dev.pool.Release(buf)
			return n, &port.DeviceError{Port: dev.id, Op: "receive burst", Err: err}
		}
		if setErr := buf.SetLength(size); setErr != nil {
			// Frame longer than the buffer; skip it without advancing
			// the burst, so no slot is left holding a stale pointer.
			dev.pool.Release(buf)
			continue
		}
		buf.Ingress = dev.id
		into[n] = buf
		n++
	}
	return n, nil
}

type txQueue struct {
	dev *Device
}

func (q *txQueue) TransmitBurst(bufs []*packet.Buffer) int {
	dev := q.dev
	for i, buf := range bufs {
		err := sendto(dev.fd, buf.Bytes(), unix.MSG_DONTWAIT, dev.addr)
		if err != nil {
			// Unaccepted buffers stay with the caller, who drops them.
			return i
		}
		// The kernel copied the frame; the buffer goes straight back.
		dev.pool.Release(buf)
	}
	return len(bufs)
}

func htons(v uint16) uint16 {
	return v<<8 | v>>8
}
