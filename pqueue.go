package bytepool

import "container/heap"

// runHeap is a min-heap of free-run Handles ordered by runOffset, used as
// the backing store for one page-index's priority queue. Reusing low-offset runs first keeps high addresses free
// for future large allocations.
type runHeap []Handle

func (h runHeap) Len() int            { return len(h) }
func (h runHeap) Less(i, j int) bool  { return h[i].runOffset() < h[j].runOffset() }
func (h runHeap) Swap(i, j int)       { h[i], h[j] = h[j], h[i] }
func (h *runHeap) Push(x interface{}) { *h = append(*h, x.(Handle)) }
func (h *runHeap) Pop() interface{} {
	old := *h
	n := len(old)
	v := old[n-1]
	*h = old[:n-1]
	return v
}

// pageQueue is one page-index's ordered collection of free runs of that
// page-index length. It wraps container/heap's interface rather than
// reimplementing binary-heap bookkeeping by hand, the idiomatic Go choice
// for a priority queue (no pack example hand-rolls one for this purpose).
type pageQueue struct {
	h runHeap
}

func newPageQueue() *pageQueue {
	return &pageQueue{}
}

func (q *pageQueue) offer(h Handle) {
	heap.Push(&q.h, h)
}

// poll removes and returns the smallest-offset handle, or (0, false) if the
// queue is empty.
func (q *pageQueue) poll() (Handle, bool) {
	if len(q.h) == 0 {
		return 0, false
	}
	return heap.Pop(&q.h).(Handle), true
}

func (q *pageQueue) peek() (Handle, bool) {
	if len(q.h) == 0 {
		return 0, false
	}
	return q.h[0], true
}

func (q *pageQueue) empty() bool {
	return len(q.h) == 0
}

// remove deletes one specific handle (matched by runOffset+runPages) from
// anywhere in the queue, not just the minimum — needed when coalescing picks
// up a neighbor that isn't currently at the head.
func (q *pageQueue) remove(target Handle) bool {
	for i, h := range q.h {
		if h.runOffset() == target.runOffset() && h.runPages() == target.runPages() {
			heap.Remove(&q.h, i)
			return true
		}
	}
	return false
}
