package breakpoint

import "sync"

// FormatQueue is the bounded FIFO of breakpoint results between the
// evaluation side, which runs on application threads, and the external
// transmission layer. Push never blocks: when the queue is full the oldest
// result is dropped so a stalled consumer cannot back-pressure the host
// process.
type FormatQueue struct {
	mu       sync.Mutex
	capacity int
	items    []*Result
	dropped  uint64
}

// NewFormatQueue creates a queue holding at most capacity results.
func NewFormatQueue(capacity int) *FormatQueue {
	if capacity < 1 {
		capacity = 1
	}
	return &FormatQueue{capacity: capacity}
}

// Push appends a result, dropping the oldest entry when full.
func (q *FormatQueue) Push(r *Result) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if len(q.items) >= q.capacity {
		q.items = q.items[1:]
		q.dropped++
	}
	q.items = append(q.items, r)
}

// Drain removes and returns all queued results in arrival order.
func (q *FormatQueue) Drain() []*Result {
	q.mu.Lock()
	defer q.mu.Unlock()
	out := q.items
	q.items = nil
	return out
}

// Len reports the number of queued results.
func (q *FormatQueue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.items)
}

// Dropped reports how many results were discarded to stay within capacity.
func (q *FormatQueue) Dropped() uint64 {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.dropped
}
