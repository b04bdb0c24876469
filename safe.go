package bytepool

import (
	"sync"
	"sync/atomic"
)

// ThreadCache holds recently freed blocks for one goroutine to amortize
// arena locking. It is a small wrapper object that exists purely to manage
// access to shared state, but unlike a plain mutex-guarded delegate, the
// access pattern inverts: a ThreadCache is single-owner on the fast
// allocate/add path and only takes mu for trim() and drain().
type ThreadCache struct {
	mu sync.Mutex

	arena *Arena

	smallQueues  []ringQueue // indexed by size index, [0, smallMaxSizeIdx]
	normalQueues []ringQueue // indexed by size index, sparse above smallMaxSizeIdx

	maxCachedBufferCapacity int
	trimInterval            int
	sinceTrim               int
}

type cacheEntry struct {
	chunk     *Chunk
	handle    Handle
	maxLength int
}

// ringQueue is a bounded single-producer/single-consumer FIFO of cacheEntry,
// one per size class.
type ringQueue struct {
	buf            []cacheEntry
	head, count    int
	allocSinceTrim int
}

func newRingQueue(capacity int) ringQueue {
	return ringQueue{buf: make([]cacheEntry, capacity)}
}

func (q *ringQueue) capacity() int { return len(q.buf) }

func (q *ringQueue) push(e cacheEntry) bool {
	if q.count == len(q.buf) {
		return false
	}
	tail := (q.head + q.count) % len(q.buf)
	q.buf[tail] = e
	q.count++
	return true
}

func (q *ringQueue) pop() (cacheEntry, bool) {
	if q.count == 0 {
		return cacheEntry{}, false
	}
	e := q.buf[q.head]
	q.head = (q.head + 1) % len(q.buf)
	q.count--
	q.allocSinceTrim++
	return e, true
}

// newThreadCache builds a cache sized per cfg, bound to arena for its whole
// life.
func newThreadCache(arena *Arena, cfg *Config) *ThreadCache {
	tc := &ThreadCache{
		arena:                   arena,
		maxCachedBufferCapacity: cfg.MaxCachedBufferCapacity,
		trimInterval:            cfg.CacheTrimInterval,
	}
	n := arena.sc.SmallMaxSizeIdx() + 1
	tc.smallQueues = make([]ringQueue, n)
	for i := range tc.smallQueues {
		tc.smallQueues[i] = newRingQueue(cfg.SmallCacheSize)
	}
	tc.normalQueues = make([]ringQueue, arena.sc.NSizes())
	for i := n; i < arena.sc.NSizes(); i++ {
		if arena.sc.SizeIdx2Size(i) <= cfg.MaxCachedBufferCapacity {
			tc.normalQueues[i] = newRingQueue(cfg.NormalCacheSize)
		}
	}
	atomic.AddInt32(&arena.numThreadCaches, 1)
	return tc
}

// allocateSmall pops the
// least-recently-enqueued entry for si, or report a miss.
func (tc *ThreadCache) allocateSmall(a *Arena, si, reqCap, maxCap int) (*BufferView, bool) {
	return tc.allocateFrom(&tc.smallQueues[si], a, si, reqCap, maxCap)
}

// allocateNormal is the normal-size-class counterpart of allocateSmall.
func (tc *ThreadCache) allocateNormal(a *Arena, si, reqCap, maxCap int) (*BufferView, bool) {
	if si >= len(tc.normalQueues) {
		return nil, false
	}
	return tc.allocateFrom(&tc.normalQueues[si], a, si, reqCap, maxCap)
}

func (tc *ThreadCache) allocateFrom(q *ringQueue, a *Arena, si, reqCap, maxCap int) (*BufferView, bool) {
	e, ok := q.pop()
	if !ok {
		return nil, false
	}
	tc.sinceTrim++
	if tc.trimInterval > 0 && tc.sinceTrim >= tc.trimInterval {
		tc.trim()
		tc.sinceTrim = 0
	}
	return newBufferView(e.chunk, e.handle, reqCap, maxCap, a, tc, si), true
}

// add only succeeds for the cache's own arena,
// a cacheable size class, and a non-full queue.
func (tc *ThreadCache) add(a *Arena, v *BufferView) bool {
	if tc.arena != a {
		return false
	}
	if v.sizeIdx <= a.sc.SmallMaxSizeIdx() {
		return tc.smallQueues[v.sizeIdx].push(cacheEntry{chunk: v.chunk, handle: v.handle, maxLength: v.maxLength})
	}
	if v.sizeIdx >= len(tc.normalQueues) {
		return false
	}
	q := &tc.normalQueues[v.sizeIdx]
	if q.capacity() == 0 {
		return false
	}
	return q.push(cacheEntry{chunk: v.chunk, handle: v.handle, maxLength: v.maxLength})
}

// trim enforces the cache's decay policy: any queue whose allocation
// count since the last trim is under half its capacity gives back its
// least-recently-enqueued half to the arena.
func (tc *ThreadCache) trim() {
	tc.mu.Lock()
	defer tc.mu.Unlock()

	for i := range tc.smallQueues {
		tc.trimQueue(&tc.smallQueues[i], i)
	}
	for i := range tc.normalQueues {
		if tc.normalQueues[i].capacity() > 0 {
			tc.trimQueue(&tc.normalQueues[i], i)
		}
	}
}

func (tc *ThreadCache) trimQueue(q *ringQueue, sizeIdx int) {
	if q.allocSinceTrim >= q.capacity()/2 {
		q.allocSinceTrim = 0
		return
	}
	toFree := q.count / 2
	for i := 0; i < toFree; i++ {
		e, ok := q.pop()
		if !ok {
			break
		}
		tc.arena.freeLocked(&BufferView{chunk: e.chunk, handle: e.handle, length: e.maxLength, sizeIdx: sizeIdx})
	}
	q.allocSinceTrim = 0
}

// drain frees every cached entry back to the arena and removes the cache
// from the arena's thread-cache count. Nothing in the package calls it when
// a goroutine exits or when the Facade's pool drops a cache; entries of a
// dropped cache are not returned to their arena.
func (tc *ThreadCache) drain() {
	tc.mu.Lock()
	defer tc.mu.Unlock()

	for i := range tc.smallQueues {
		tc.drainQueue(&tc.smallQueues[i], i)
	}
	for i := range tc.normalQueues {
		tc.drainQueue(&tc.normalQueues[i], i)
	}

	atomic.AddInt32(&tc.arena.numThreadCaches, -1)
}

func (tc *ThreadCache) drainQueue(q *ringQueue, sizeIdx int) {
	for {
		e, ok := q.pop()
		if !ok {
			return
		}
		tc.arena.freeLocked(&BufferView{chunk: e.chunk, handle: e.handle, length: e.maxLength, sizeIdx: sizeIdx})
	}
}
