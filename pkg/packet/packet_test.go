package packet

import (
	"net"
	"testing"

	"github.com/google/gopacket"
	"github.com/google/gopacket/layers"
	. "github.com/onsi/gomega"
)

func ethernetFrame(src, dst net.HardwareAddr, payload []byte) []byte {
	buf := gopacket.NewSerializeBuffer()
	err := gopacket.SerializeLayers(buf, gopacket.SerializeOptions{},
		&layers.Ethernet{
			SrcMAC:       src,
			DstMAC:       dst,
			EthernetType: layers.EthernetTypeIPv4,
		},
		gopacket.Payload(payload),
	)
	if err != nil {
		panic(err)
	}
	return buf.Bytes()
}

func TestRewriteEthernet(t *testing.T) {
	RegisterTestingT(t)

	src, _ := net.ParseMAC("aa:aa:aa:aa:aa:aa")
	dst, _ := net.ParseMAC("ff:ff:ff:ff:ff:ff")
	own, _ := net.ParseMAC("bb:bb:bb:bb:bb:bb")
	payload := []byte("some payload that must survive the rewrite")

	buf := NewBuffer(256)
	Expect(buf.Fill(ethernetFrame(src, dst, payload), 0)).To(Succeed())

	buf.RewriteEthernet(own)

	Expect(buf.DstMAC()).To(Equal(src))
	Expect(buf.SrcMAC()).To(Equal(own))
	Expect(buf.Bytes()[EthernetHeaderLen:]).To(Equal(payload))
}

func TestRewriteShortFrame(t *testing.T) {
	RegisterTestingT(t)

	own, _ := net.ParseMAC("bb:bb:bb:bb:bb:bb")
	frame := []byte{0x01, 0x02, 0x03}

	buf := NewBuffer(64)
	Expect(buf.Fill(frame, 0)).To(Succeed())

	buf.RewriteEthernet(own)

	Expect(buf.Bytes()).To(Equal(frame))
	Expect(buf.DstMAC()).To(BeNil())
	Expect(buf.SrcMAC()).To(BeNil())
}

func TestBufferBounds(t *testing.T) {
	RegisterTestingT(t)

	buf := NewBuffer(32)
	Expect(buf.Capacity()).To(Equal(32))
	Expect(buf.SetLength(33)).NotTo(Succeed())
	Expect(buf.SetLength(-1)).NotTo(Succeed())
	Expect(buf.Fill(make([]byte, 64), 0)).NotTo(Succeed())

	Expect(buf.Fill([]byte{1, 2, 3}, 7)).To(Succeed())
	Expect(buf.Len()).To(Equal(3))
	Expect(buf.Ingress).To(Equal(uint16(7)))

	buf.Reset()
	Expect(buf.Len()).To(BeZero())
	Expect(buf.Ingress).To(BeZero())
}

func TestFixedPool(t *testing.T) {
	RegisterTestingT(t)

	pool, err := NewFixedPool(2, 64)
	Expect(err).NotTo(HaveOccurred())
	Expect(pool.Capacity()).To(Equal(2))
	Expect(pool.Free()).To(Equal(2))

	first, err := pool.Acquire()
	Expect(err).NotTo(HaveOccurred())
	second, err := pool.Acquire()
	Expect(err).NotTo(HaveOccurred())

	_, err = pool.Acquire()
	Expect(err).To(MatchError(ErrPoolEmpty))

	pool.Release(first)
	pool.Release(second)
	Expect(pool.Free()).To(Equal(2))
}

func TestFixedPoolInvalid(t *testing.T) {
	RegisterTestingT(t)

	_, err := NewFixedPool(0, 64)
	Expect(err).To(HaveOccurred())
	_, err = NewFixedPool(8, 4)
	Expect(err).To(HaveOccurred())
}
