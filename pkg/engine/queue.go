package engine

import (
	"errors"
	"sync"
	"sync/atomic"

	"github.com/valyala/bytebufferpool"
)

// ErrQueueFull is returned by EnqueueFrame when the frame queue is at
// capacity. Callers may drop the frame; the cache-miss fallbacks make a
// dropped frame a fidelity loss, not a fault.
var ErrQueueFull = errors.New("frame queue full")

// frameItem carries one raw frame payload through the queue. Payloads are
// copied into pooled buffers; release() must be called exactly once after
// processing.
type frameItem struct {
	buf   *bytebufferpool.ByteBuffer
	trace string
	once  sync.Once
}

// maxPooledBuffer bounds buffers returned to the pool so a one-off giant
// frame does not pin memory.
const maxPooledBuffer = 256 * 1024

func (it *frameItem) payload() []byte {
	if it.buf == nil {
		return nil
	}
	return it.buf.B
}

func (it *frameItem) release() {
	it.once.Do(func() {
		if it.buf != nil {
			if cap(it.buf.B) <= maxPooledBuffer {
				bytebufferpool.Put(it.buf)
			}
			it.buf = nil
		}
	})
}

// frameQueue is a bounded in-memory queue between the intake server and
// the single engine worker. Safe for concurrent producers.
type frameQueue struct {
	ch      chan *frameItem
	dropped uint64
}

func newFrameQueue(capacity int) *frameQueue {
	if capacity <= 0 {
		capacity = 4096
	}
	return &frameQueue{ch: make(chan *frameItem, capacity)}
}

func (q *frameQueue) tryEnqueue(payload []byte, trace string) error {
	bb := bytebufferpool.Get()
	bb.B = append(bb.B[:0], payload...)
	it := &frameItem{buf: bb, trace: trace}
	select {
	case q.ch <- it:
		return nil
	default:
		it.release()
		atomic.AddUint64(&q.dropped, 1)
		return ErrQueueFull
	}
}

func (q *frameQueue) out() <-chan *frameItem { return q.ch }

func (q *frameQueue) Dropped() uint64 { return atomic.LoadUint64(&q.dropped) }
