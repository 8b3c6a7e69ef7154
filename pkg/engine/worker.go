package engine

import (
	"context"
	"net"
	"sync"

	"github.com/mazdakn/ufwd/pkg/cpu"
	"github.com/mazdakn/ufwd/pkg/packet"
	"github.com/mazdakn/ufwd/pkg/port"
	"github.com/sirupsen/logrus"
)

// binding ties one receive queue to the transmit queue of its paired
// port. A binding belongs to exactly one worker for the whole process
// lifetime; nothing here is shared across workers.
type binding struct {
	rx     port.RxQueue
	tx     port.TxQueue
	rxPort uint16
	txPort uint16
	// ownMAC is the transmitting port's address, cached at startup so
	// the rewrite never calls into the device layer.
	ownMAC net.HardwareAddr
	dead   bool
}

type worker struct {
	id       int
	core     int
	bindings []*binding
	pool     packet.Pool
	counters Counters
	// burst is reused for every receive call; the loop never allocates.
	burst      []*packet.Buffer
	drainPolls int
}

func newWorker(id, core int, bindings []*binding, pool packet.Pool, burstSize, drainPolls int) *worker {
	return &worker{
		id:         id,
		core:       core,
		bindings:   bindings,
		pool:       pool,
		burst:      make([]*packet.Buffer, burstSize),
		drainPolls: drainPolls,
	}
}

func (w *worker) run(ctx context.Context, wg *sync.WaitGroup) {
	defer wg.Done()

	if w.core >= 0 {
		err := cpu.Pin(w.core)
		if err != nil {
			logrus.WithError(err).Warnf("Worker %v running unpinned", w.id)
		}
	}

	logrus.Infof("Worker %v entering main loop on core %v", w.id, w.core)
	for _, b := range w.bindings {
		logrus.Infof(" -- worker=%v src_port=%v dst_port=%v", w.id, b.rxPort, b.txPort)
	}

	for {
		select {
		case <-ctx.Done():
			w.drain()
			logrus.Infof("Worker %v drained and stopped", w.id)
			return
		default:
		}
		if w.poll() == 0 {
			// Every queue retired; nothing left to poll until shutdown.
			<-ctx.Done()
		}
	}
}

// poll runs one burst cycle over every live binding and returns how
// many bindings are still live. Empty bursts move straight to the next
// binding; the worker never sleeps while armed.
func (w *worker) poll() int {
	live := 0
	for _, b := range w.bindings {
		if b.dead {
			continue
		}
		live++
		w.forward(b)
	}
	return live
}

func (w *worker) forward(b *binding) {
	num, err := b.rx.ReceiveBurst(w.burst)
	if err != nil {
		// A hard receive error retires this binding for the rest of
		// the process lifetime; the other bindings keep forwarding.
		b.dead = true
		logrus.WithError(err).Errorf("Receive failure on port %v, retiring queue", b.rxPort)
		return
	}
	if num == 0 {
		return
	}
	w.counters.Received += uint64(num)

	burst := w.burst[:num]
	for _, pkt := range burst {
		pkt.RewriteEthernet(b.ownMAC)
	}

	sent := b.tx.TransmitBurst(burst)
	w.counters.Transmitted += uint64(sent)
	if sent == num {
		return
	}
	// The queue is overloaded. Dropping here instead of retrying keeps
	// per-burst latency bounded and polling fair across bindings.
	for _, pkt := range burst[sent:] {
		w.pool.Release(pkt)
	}
	w.counters.Dropped += uint64(num - sent)
}

// drain flushes frames already in flight with a bounded number of extra
// polling passes. After the last pass the worker issues no further
// receive calls.
func (w *worker) drain() {
	for i := 0; i < w.drainPolls; i++ {
		w.poll()
	}
}
