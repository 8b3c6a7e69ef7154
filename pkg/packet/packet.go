package packet

import (
	"fmt"
	"net"

	"github.com/google/gopacket"
	"github.com/google/gopacket/layers"
)

// EthernetHeaderLen is the length of the destination+source MAC pair plus
// the EtherType field.
const EthernetHeaderLen = 14

// Buffer holds one Ethernet frame in a fixed-capacity region, together
// with the captured length and the id of the port it was received on.
// A buffer is owned by exactly one of pool, RX queue, in-flight burst or
// TX queue at any time.
type Buffer struct {
	data    []byte
	length  int
	Ingress uint16
}

func NewBuffer(capacity int) *Buffer {
	return &Buffer{
		data: make([]byte, capacity),
	}
}

// Raw exposes the full capacity of the buffer, for drivers filling it
// from the wire.
func (b *Buffer) Raw() []byte {
	return b.data
}

// Bytes returns the captured frame.
func (b *Buffer) Bytes() []byte {
	return b.data[:b.length]
}

func (b *Buffer) Len() int {
	return b.length
}

func (b *Buffer) Capacity() int {
	return len(b.data)
}

func (b *Buffer) SetLength(length int) error {
	if length < 0 || length > len(b.data) {
		return fmt.Errorf("frame length %v exceeds buffer capacity %v", length, len(b.data))
	}
	b.length = length
	return nil
}

// Fill copies a complete frame into the buffer and records its ingress
// port. Used by drivers and test fixtures injecting synthetic traffic.
func (b *Buffer) Fill(frame []byte, ingress uint16) error {
	if err := b.SetLength(len(frame)); err != nil {
		return err
	}
	copy(b.data, frame)
	b.Ingress = ingress
	return nil
}

// Reset clears the metadata so the buffer can go back to the pool. The
// payload bytes are left as is.
func (b *Buffer) Reset() {
	b.length = 0
	b.Ingress = 0
}

func (b *Buffer) DstMAC() net.HardwareAddr {
	if b.length < EthernetHeaderLen {
		return nil
	}
	return net.HardwareAddr(b.data[0:6])
}

func (b *Buffer) SrcMAC() net.HardwareAddr {
	if b.length < EthernetHeaderLen {
		return nil
	}
	return net.HardwareAddr(b.data[6:12])
}

// RewriteEthernet turns the frame around: the destination MAC becomes
// the original source, and the source MAC becomes the transmitting
// port's own address. Mutates the header in place without allocating;
// frames too short to carry an Ethernet header are left untouched.
func (b *Buffer) RewriteEthernet(own net.HardwareAddr) {
	if b.length < EthernetHeaderLen || len(own) != 6 {
		return
	}
	copy(b.data[0:6], b.data[6:12])
	copy(b.data[6:12], own)
}

func (b *Buffer) String() string {
	var eth layers.Ethernet
	err := eth.DecodeFromBytes(b.Bytes(), gopacket.NilDecodeFeedback)
	if err != nil {
		return fmt.Sprintf("frame port: %v len: %v", b.Ingress, b.length)
	}
	return fmt.Sprintf("%v -> %v type: %v port: %v len: %v",
		eth.SrcMAC, eth.DstMAC, eth.EthernetType, b.Ingress, b.length)
}
