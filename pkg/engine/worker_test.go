package engine

import (
	"context"
	"net"
	"sync"
	"testing"
	"time"

	"github.com/google/gopacket"
	"github.com/google/gopacket/layers"
	"github.com/mazdakn/ufwd/pkg/memport"
	"github.com/mazdakn/ufwd/pkg/packet"
	. "github.com/onsi/gomega"
)

func mustMAC(s string) net.HardwareAddr {
	mac, err := net.ParseMAC(s)
	if err != nil {
		panic(err)
	}
	return mac
}

func testFrame(src, dst net.HardwareAddr, payload []byte) []byte {
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

type testPair struct {
	driver *memport.Driver
	pool   *packet.FixedPool
	dev    [2]*memport.Device
}

func newTestPair(poolSize int) *testPair {
	pool, err := packet.NewFixedPool(poolSize, 256)
	if err != nil {
		panic(err)
	}
	driver := memport.NewDriver()
	for id := uint16(0); id < 2; id++ {
		_, err = driver.InitPort(id, 1, 1, pool)
		if err != nil {
			panic(err)
		}
	}
	return &testPair{
		driver: driver,
		pool:   pool,
		dev:    [2]*memport.Device{driver.Device(0), driver.Device(1)},
	}
}

// newWorkerFor builds the two bindings of the pair, in port order, and
// hands them to a single worker. Must run after any MAC override.
func (p *testPair) newWorkerFor(burstSize, drainPolls int) *worker {
	bindings := []*binding{
		{
			rx:     p.dev[0].RxQueue(0),
			tx:     p.dev[1].TxQueue(0),
			rxPort: 0, txPort: 1,
			ownMAC: p.dev[1].HardwareAddr(),
		},
		{
			rx:     p.dev[1].RxQueue(0),
			tx:     p.dev[0].TxQueue(0),
			rxPort: 1, txPort: 0,
			ownMAC: p.dev[0].HardwareAddr(),
		},
	}
	return newWorker(0, -1, bindings, p.pool, burstSize, drainPolls)
}

// Ten frames with a known source MAC arrive on port 0; they must leave
// port 1 with the source and destination addresses swapped in.
func TestForwardPortPair(t *testing.T) {
	RegisterTestingT(t)

	srcMAC := mustMAC("aa:aa:aa:aa:aa:aa")
	ownMAC := mustMAC("bb:bb:bb:bb:bb:bb")
	payload := []byte("forwarded payload")

	pair := newTestPair(64)
	pair.dev[1].SetHardwareAddr(ownMAC)
	w := pair.newWorkerFor(32, 2)

	frame := testFrame(srcMAC, mustMAC("ff:ff:ff:ff:ff:ff"), payload)
	for i := 0; i < 10; i++ {
		Expect(pair.dev[0].InjectRx(0, frame)).To(Succeed())
	}

	Expect(w.poll()).To(Equal(2))

	out := pair.dev[1].TxDrain(0)
	Expect(out).To(HaveLen(10))
	for _, pkt := range out {
		Expect(pkt.DstMAC()).To(Equal(srcMAC))
		Expect(pkt.SrcMAC()).To(Equal(ownMAC))
		Expect(pkt.Bytes()[packet.EthernetHeaderLen:]).To(Equal(payload))
		pair.pool.Release(pkt)
	}
	Expect(pair.dev[0].TxDrain(0)).To(BeEmpty())

	Expect(w.counters.Received).To(Equal(uint64(10)))
	Expect(w.counters.Transmitted).To(Equal(uint64(10)))
	Expect(w.counters.Dropped).To(BeZero())
}

// A transmit queue that accepts nothing turns every received frame into
// a drop, and the dropped buffers go back to the pool.
func TestTransmitOverload(t *testing.T) {
	RegisterTestingT(t)

	pair := newTestPair(16)
	w := pair.newWorkerFor(32, 2)
	pair.dev[1].AcceptNone(0)

	frame := testFrame(mustMAC("aa:aa:aa:aa:aa:aa"), mustMAC("ff:ff:ff:ff:ff:ff"), nil)
	for i := 0; i < 5; i++ {
		Expect(pair.dev[0].InjectRx(0, frame)).To(Succeed())
	}

	w.poll()

	Expect(w.counters.Received).To(Equal(uint64(5)))
	Expect(w.counters.Transmitted).To(BeZero())
	Expect(w.counters.Dropped).To(Equal(uint64(5)))
	Expect(pair.pool.Free()).To(Equal(16))
}

// Counters must account for every buffer the worker ever received,
// whether it was transmitted or dropped.
func TestCounterConservation(t *testing.T) {
	RegisterTestingT(t)

	pair := newTestPair(64)
	w := pair.newWorkerFor(8, 2)

	frame := testFrame(mustMAC("aa:aa:aa:aa:aa:aa"), mustMAC("ff:ff:ff:ff:ff:ff"), nil)
	for i := 0; i < 20; i++ {
		Expect(pair.dev[0].InjectRx(0, frame)).To(Succeed())
	}
	w.poll()
	w.poll()
	pair.dev[1].AcceptNone(0)
	for i := 0; i < 7; i++ {
		Expect(pair.dev[0].InjectRx(0, frame)).To(Succeed())
	}
	w.poll()
	w.poll()

	Expect(w.counters.Transmitted + w.counters.Dropped).To(Equal(w.counters.Received))
	Expect(w.counters.Received).To(Equal(uint64(27)))
	Expect(w.counters.Transmitted).To(Equal(uint64(16)))
	Expect(w.counters.Dropped).To(Equal(uint64(11)))
}

// A hard receive failure retires only the affected binding; traffic on
// the other direction keeps flowing.
func TestDeadQueueRetired(t *testing.T) {
	RegisterTestingT(t)

	pair := newTestPair(64)
	w := pair.newWorkerFor(32, 2)

	pair.dev[0].FailRx(0)
	Expect(w.poll()).To(Equal(2))
	Expect(w.poll()).To(Equal(1))

	frame := testFrame(mustMAC("aa:aa:aa:aa:aa:aa"), mustMAC("ff:ff:ff:ff:ff:ff"), nil)
	Expect(pair.dev[1].InjectRx(0, frame)).To(Succeed())
	w.poll()
	Expect(pair.dev[0].TxDrain(0)).To(HaveLen(1))

	polls := pair.dev[0].RxPolls(0)
	w.poll()
	Expect(pair.dev[0].RxPolls(0)).To(Equal(polls))

	pair.dev[1].FailRx(0)
	w.poll()
	Expect(w.poll()).To(BeZero())
}

// Frames still in flight when the stop signal fires are flushed by the
// drain pass, and the worker stops polling afterwards.
func TestWorkerShutdownDrain(t *testing.T) {
	RegisterTestingT(t)

	pair := newTestPair(64)
	w := pair.newWorkerFor(32, 2)

	ctx, cancel := context.WithCancel(context.Background())
	var wg sync.WaitGroup
	wg.Add(1)
	go w.run(ctx, &wg)

	frame := testFrame(mustMAC("aa:aa:aa:aa:aa:aa"), mustMAC("ff:ff:ff:ff:ff:ff"), nil)
	for i := 0; i < 10; i++ {
		Expect(pair.dev[0].InjectRx(0, frame)).To(Succeed())
	}
	forwarded := 0
	Eventually(func() int {
		forwarded += len(pair.dev[1].TxDrain(0))
		return forwarded
	}).Should(Equal(10))

	cancel()
	wg.Wait()

	Expect(w.counters.Received).To(Equal(uint64(10)))
	Expect(w.counters.Transmitted).To(Equal(uint64(10)))

	polls := pair.dev[0].RxPolls(0)
	time.Sleep(20 * time.Millisecond)
	Expect(pair.dev[0].RxPolls(0)).To(Equal(polls))
}
