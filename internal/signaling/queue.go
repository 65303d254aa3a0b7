package signaling

import "sync"

// outboundFrame is one queued write: a text message, or a close frame when
// close is set.
type outboundFrame struct {
	data []byte

	close       bool
	closeCode   int
	closeReason string
}

// sendQueue is a byte-bounded FIFO of outbound frames.
//
// Router handlers enqueue while holding the registry lock, so Enqueue never
// blocks; a frame that does not fit in the byte budget is dropped.
type sendQueue struct {
	mu       sync.Mutex
	notEmpty *sync.Cond
	closed   bool

	maxBytes int
	curBytes int
	frames   []outboundFrame
}

func newSendQueue(maxBytes int) *sendQueue {
	q := &sendQueue{maxBytes: maxBytes}
	q.notEmpty = sync.NewCond(&q.mu)
	return q
}

// Enqueue appends a text frame if it fits within the byte budget.
func (q *sendQueue) Enqueue(data []byte) bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.closed || q.curBytes+len(data) > q.maxBytes {
		return false
	}
	q.frames = append(q.frames, outboundFrame{data: data})
	q.curBytes += len(data)
	q.notEmpty.Signal()
	return true
}

// EnqueueClose appends a close frame behind everything already queued. Close
// frames are not counted against the byte budget and nothing can be enqueued
// after one.
func (q *sendQueue) EnqueueClose(code int, reason string) bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.closed {
		return false
	}
	q.frames = append(q.frames, outboundFrame{close: true, closeCode: code, closeReason: reason})
	q.closed = true
	q.notEmpty.Signal()
	return true
}

// Dequeue blocks until a frame is available. It returns false once the queue
// is closed and drained.
func (q *sendQueue) Dequeue() (outboundFrame, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()
	for len(q.frames) == 0 && !q.closed {
		q.notEmpty.Wait()
	}
	if len(q.frames) == 0 {
		return outboundFrame{}, false
	}
	frame := q.frames[0]
	q.frames[0] = outboundFrame{}
	q.frames = q.frames[1:]
	q.curBytes -= len(frame.data)
	return frame, true
}

// Close stops accepting frames. Frames already queued are still returned by
// Dequeue.
func (q *sendQueue) Close() {
	q.mu.Lock()
	q.closed = true
	q.mu.Unlock()
	q.notEmpty.Broadcast()
}

// Discard closes the queue and drops anything still pending.
func (q *sendQueue) Discard() {
	q.mu.Lock()
	q.closed = true
	q.frames = nil
	q.curBytes = 0
	q.mu.Unlock()
	q.notEmpty.Broadcast()
}
