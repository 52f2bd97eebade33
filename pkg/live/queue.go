package live

import "sync"

// DefaultQueueSize bounds frames buffered while a connection is opening.
const DefaultQueueSize = 256

// OutboundQueue holds encoded frames produced before the connection is
// ready. Frames drain in the order they were pushed.
type OutboundQueue struct {
	mu     sync.Mutex
	limit  int
	frames [][]byte
}

// NewOutboundQueue creates a queue holding at most limit frames. A
// non-positive limit uses DefaultQueueSize.
func NewOutboundQueue(limit int) *OutboundQueue {
	if limit <= 0 {
		limit = DefaultQueueSize
	}
	return &OutboundQueue{limit: limit}
}

// Push appends a frame, or returns ErrQueueFull.
func (q *OutboundQueue) Push(frame []byte) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	if len(q.frames) >= q.limit {
		return ErrQueueFull
	}
	q.frames = append(q.frames, frame)
	return nil
}

// Drain removes and returns every queued frame.
func (q *OutboundQueue) Drain() [][]byte {
	q.mu.Lock()
	defer q.mu.Unlock()
	out := q.frames
	q.frames = nil
	return out
}

// Len returns the number of queued frames.
func (q *OutboundQueue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.frames)
}
