package packet

import (
	"errors"
	"fmt"
)

// ErrPoolEmpty is returned by Acquire when no buffer is available. The
// caller decides whether that is fatal; workers treat it as transient.
var ErrPoolEmpty = errors.New("buffer pool exhausted")

// Pool hands out pre-allocated packet buffers. Implementations must be
// safe for concurrent Acquire/Release from multiple workers, and must
// never block. Releasing the same buffer twice is undefined.
type Pool interface {
	Acquire() (*Buffer, error)
	Release(*Buffer)
	Capacity() int
}

// FixedPool is a Pool with every buffer allocated up front. Built on a
// buffered channel, so acquire and release are lock-free from the
// caller's point of view and safe across workers.
type FixedPool struct {
	buffers chan *Buffer
}

func NewFixedPool(capacity, bufferSize int) (*FixedPool, error) {
	if capacity <= 0 {
		return nil, fmt.Errorf("invalid pool capacity %v", capacity)
	}
	if bufferSize < EthernetHeaderLen {
		return nil, fmt.Errorf("buffer size %v below minimum frame header %v", bufferSize, EthernetHeaderLen)
	}
	pool := &FixedPool{
		buffers: make(chan *Buffer, capacity),
	}
	for i := 0; i < capacity; i++ {
		pool.buffers <- NewBuffer(bufferSize)
	}
	return pool, nil
}

func (p *FixedPool) Acquire() (*Buffer, error) {
	select {
	case buf := <-p.buffers:
		return buf, nil
	default:
		return nil, ErrPoolEmpty
	}
}

func (p *FixedPool) Release(buf *Buffer) {
	if buf == nil {
		return
	}
	buf.Reset()
	select {
	case p.buffers <- buf:
	default:
		// Pool already full; a foreign or double-released buffer is
		// dropped rather than blocking the hot path.
	}
}

func (p *FixedPool) Capacity() int {
	return cap(p.buffers)
}

// Free reports how many buffers are currently in the pool. Counters of
// this kind are approximate under concurrent use; tests use it to check
// for leaks after traffic has drained.
func (p *FixedPool) Free() int {
	return len(p.buffers)
}
