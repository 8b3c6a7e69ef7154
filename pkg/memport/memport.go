// Package memport is an in-memory port driver. Queues are buffered
// channels, so bursts are deterministic: tests inject frames on the RX
// side, drain the TX side, and can arm failure or overload modes per
// queue. The memloop driver mode of the daemon uses NewLoopDriver,
// which wires every transmit queue back into its own receive queue and
// seeds synthetic frames at start, so the forwarding loop has live
// traffic circulating through the port pairs.
package memport

import (
	"errors"
	"fmt"
	"net"
	"sync"
	"sync/atomic"

	"github.com/google/gopacket"
	"github.com/google/gopacket/layers"
	"github.com/mazdakn/ufwd/pkg/packet"
	"github.com/mazdakn/ufwd/pkg/port"
)

const (
	maxQueues            = 8
	defaultQueueCapacity = 512
	seedFrames           = 32
)

var errQueueFailed = errors.New("queue failed")

// OwnMAC derives a locally administered MAC address from a port id.
func OwnMAC(id uint16) net.HardwareAddr {
	return net.HardwareAddr{0x02, 0x00, 0x00, 0x00, 0x00, byte(id)}
}

type Driver struct {
	// QueueCapacity bounds every RX and TX queue; zero means the
	// default. A small capacity makes transmit overload reproducible.
	QueueCapacity int

	loop    bool
	mu      sync.Mutex
	devices map[uint16]*Device
}

func NewDriver() *Driver {
	return &Driver{
		devices: make(map[uint16]*Device),
	}
}

// NewLoopDriver creates a Driver whose ports loop transmitted frames
// straight back into their own receive queue and seed a batch of
// synthetic frames when started.
func NewLoopDriver() *Driver {
	driver := NewDriver()
	driver.loop = true
	return driver
}

func (d *Driver) InitPort(id uint16, rxQueues, txQueues int, pool packet.Pool) (port.Device, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if _, exists := d.devices[id]; exists {
		return nil, &port.DeviceError{Port: id, Op: "init", Err: errors.New("port already configured")}
	}
	if rxQueues < 1 || txQueues < 1 || rxQueues > maxQueues || txQueues > maxQueues {
		return nil, &port.DeviceError{
			Port: id,
			Op:   "init",
			Err:  fmt.Errorf("queue counts rx=%v tx=%v outside supported range 1..%v", rxQueues, txQueues, maxQueues),
		}
	}

	capacity := d.QueueCapacity
	if capacity == 0 {
		capacity = defaultQueueCapacity
	}
	dev := &Device{
		id:   id,
		mac:  OwnMAC(id),
		pool: pool,
		loop: d.loop,
	}
	for i := 0; i < rxQueues; i++ {
		dev.rx = append(dev.rx, &rxQueue{
			portID: id,
			queue:  make(chan *packet.Buffer, capacity),
		})
	}
	for i := 0; i < txQueues; i++ {
		dev.tx = append(dev.tx, &txQueue{
			dest: make(chan *packet.Buffer, capacity),
		})
	}
	if d.loop {
		for i := 0; i < txQueues && i < rxQueues; i++ {
			dev.tx[i].dest = dev.rx[i].queue
		}
	}
	d.devices[id] = dev
	return dev, nil
}

// Device returns a configured port for test inspection.
func (d *Driver) Device(id uint16) *Device {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.devices[id]
}

// Connect wires a's transmit queues into b's receive queues and the
// other way around, queue by queue. Connecting a device to itself gives
// a loopback port. Must happen before any worker polls the queues.
func Connect(a, b *Device) {
	for i := range a.tx {
		if i < len(b.rx) {
			a.tx[i].dest = b.rx[i].queue
		}
	}
	for i := range b.tx {
		if i < len(a.rx) {
			b.tx[i].dest = a.rx[i].queue
		}
	}
}

type Device struct {
	id   uint16
	mac  net.HardwareAddr
	pool packet.Pool
	loop bool
	rx   []*rxQueue
	tx   []*txQueue
}

func (d *Device) ID() uint16 {
	return d.id
}

func (d *Device) Name() string {
	return fmt.Sprintf("mem%v", d.id)
}

func (d *Device) HardwareAddr() net.HardwareAddr {
	return d.mac
}

// SetHardwareAddr overrides the derived MAC address. Only meaningful
// before workers start.
func (d *Device) SetHardwareAddr(mac net.HardwareAddr) {
	d.mac = mac
}

func (d *Device) RxQueue(i int) port.RxQueue {
	return d.rx[i]
}

func (d *Device) TxQueue(i int) port.TxQueue {
	return d.tx[i]
}

func (d *Device) Start() error {
	if !d.loop {
		return nil
	}
	// Seed the loop with a batch of frames so the forwarding workers
	// have traffic to circulate from the moment they launch.
	frame := seedFrame(d.mac)
	for queue := range d.rx {
		for i := 0; i < seedFrames; i++ {
			err := d.InjectRx(queue, frame)
			if err != nil {
				return fmt.Errorf("failed to seed port %v - err: %w", d.id, err)
			}
		}
	}
	return nil
}

func seedFrame(src net.HardwareAddr) []byte {
	buf := gopacket.NewSerializeBuffer()
	err := gopacket.SerializeLayers(buf, gopacket.SerializeOptions{},
		&layers.Ethernet{
			SrcMAC:       src,
			DstMAC:       net.HardwareAddr{0xff, 0xff, 0xff, 0xff, 0xff, 0xff},
			EthernetType: layers.EthernetTypeIPv4,
		},
		gopacket.Payload(make([]byte, 46)),
	)
	if err != nil {
		panic(err)
	}
	return buf.Bytes()
}

func (d *Device) Stop() error {
	return nil
}

// InjectRx queues a synthetic frame on a receive queue, taking a buffer
// from the device pool.
func (d *Device) InjectRx(queue int, frame []byte) error {
	buf, err := d.pool.Acquire()
	if err != nil {
		return err
	}
	if err := buf.Fill(frame, d.id); err != nil {
		d.pool.Release(buf)
		return err
	}
	select {
	case d.rx[queue].queue <- buf:
		return nil
	default:
		d.pool.Release(buf)
		return fmt.Errorf("rx queue %v of port %v is full", queue, d.id)
	}
}

// TxDrain removes and returns everything currently sitting in a
// transmit queue. The caller takes ownership of the buffers.
func (d *Device) TxDrain(queue int) []*packet.Buffer {
	var out []*packet.Buffer
	for {
		select {
		case buf := <-d.tx[queue].dest:
			out = append(out, buf)
		default:
			return out
		}
	}
}

// FailRx arms a persistent receive error on a queue.
func (d *Device) FailRx(queue int) {
	d.rx[queue].failed.Store(true)
}

// AcceptNone makes a transmit queue refuse every burst.
func (d *Device) AcceptNone(queue int) {
	d.tx[queue].acceptNone.Store(true)
}

// RxPolls reports how many times a receive queue has been polled.
func (d *Device) RxPolls(queue int) uint64 {
	return d.rx[queue].polls.Load()
}

type rxQueue struct {
	portID uint16
	queue  chan *packet.Buffer
	failed atomic.Bool
	polls  atomic.Uint64
}

func (q *rxQueue) ReceiveBurst(into []*packet.Buffer) (int, error) {
	q.polls.Add(1)
	if q.failed.Load() {
		return 0, &port.DeviceError{Port: q.portID, Op: "receive burst", Err: errQueueFailed}
	}
	n := 0
	for n < len(into) {
		select {
		case buf := <-q.queue:
			into[n] = buf
			n++
		default:
			return n, nil
		}
	}
	return n, nil
}

type txQueue struct {
	dest       chan *packet.Buffer
	acceptNone atomic.Bool
}

func (q *txQueue) TransmitBurst(bufs []*packet.Buffer) int {
	if q.acceptNone.Load() {
		return 0
	}
	for i, buf := range bufs {
		select {
		case q.dest <- buf:
		default:
			return i
		}
	}
	return len(bufs)
}
