package bytepool

import (
	"fmt"
	"sync"
	"sync/atomic"
)

// Arena owns one shard of pooled memory: the six-list chunk chain, the
// per-size subpage free-list sentinels, and the routing between thread
// cache, subpage, run, and huge allocation. One mutex guards all mutation
// to its chunk lists and subpage table; every allocation either reuses a
// tracked, coalesced run or carves a fresh one out of a chunk.
type Arena struct {
	mu sync.Mutex

	sc     *SizeClasses
	direct bool // heap vs direct variant

	directMemoryCacheAlignment int

	qInit, q000, q025, q050, q075, q100 *ChunkList
	// normalOrder is the fixed list-scan order for Normal allocation: q100
	// is deliberately excluded, a full chunk can never serve a new request.
	normalOrder []*ChunkList

	subpageHeads []*Subpage // sentinel per small size index; self-looped when empty
	subpageLocks []sync.Mutex

	log logger

	numThreadCaches int32 // atomic; read by the façade for least-loaded arena selection

	allocationsSmall   int64 // atomic
	allocationsHuge     int64 // atomic
	deallocationsSmall  int64 // atomic
	deallocationsHuge   int64 // atomic

	allocationsNormal   int64 // guarded by mu
	deallocationsNormal int64 // guarded by mu

	activeBytes int64 // atomic
}

func newArena(sc *SizeClasses, direct bool, directMemoryCacheAlignment int, log logger) *Arena {
	qInit, q000, q025, q050, q075, q100 := newChunkLists(sc.ChunkSize())
	a := &Arena{
		sc:                         sc,
		direct:                     direct,
		directMemoryCacheAlignment: directMemoryCacheAlignment,
		qInit:                      qInit,
		q000:                       q000,
		q025:                       q025,
		q050:                       q050,
		q075:                       q075,
		q100:                       q100,
		log:                        log,
	}
	a.normalOrder = []*ChunkList{q050, q025, q000, qInit, q075}

	n := sc.SmallMaxSizeIdx() + 1
	a.subpageHeads = make([]*Subpage, n)
	a.subpageLocks = make([]sync.Mutex, n)
	for i := range a.subpageHeads {
		sentinel := &Subpage{}
		sentinel.prev = sentinel
		sentinel.next = sentinel
		a.subpageHeads[i] = sentinel
	}
	return a
}

func (a *Arena) kind() string {
	if a.direct {
		return "direct"
	}
	return "heap"
}

func (a *Arena) newRegion(size int) region {
	if a.direct {
		return newDirectRegion(size, a.directMemoryCacheAlignment)
	}
	return newHeapRegion(size)
}

func (a *Arena) newChunk() *Chunk {
	c := newChunk(a.newRegion(a.sc.ChunkSize()), a.sc)
	c.log = a.log
	a.log.chunkCreated(a.sc.ChunkSize())
	return c
}

// allocate is the arena-level entry point used by the façade and by a
// ThreadCache on a cache miss.
func (a *Arena) allocate(tc *ThreadCache, reqCap, maxCap int) (*BufferView, error) {
	if reqCap < 0 {
		return nil, fmt.Errorf("%w: reqCap %d < 0", ErrSizeOutOfRange, reqCap)
	}
	if reqCap > maxCap {
		return nil, fmt.Errorf("%w: reqCap %d > maxCap %d", ErrCapacityExceeded, reqCap, maxCap)
	}

	si := a.sc.Size2SizeIdx(reqCap, 1)
	switch {
	case si <= a.sc.SmallMaxSizeIdx():
		return a.allocateSmall(tc, reqCap, maxCap, si)
	case si < a.sc.NSizes():
		return a.allocateNormal(tc, reqCap, maxCap, si)
	default:
		return a.allocateHuge(reqCap, maxCap)
	}
}

// allocateSmall implements the small-allocation path.
func (a *Arena) allocateSmall(tc *ThreadCache, reqCap, maxCap, si int) (*BufferView, error) {
	if tc != nil {
		if bv, ok := tc.allocateSmall(a, si, reqCap, maxCap); ok {
			return bv, nil
		}
	}

	elemSize := a.sc.SizeIdx2Size(si)
	head := a.subpageHeads[si]
	lock := &a.subpageLocks[si]

	lock.Lock()
	defer lock.Unlock()

	if head.next != head {
		sp := head.next
		h, ok := sp.allocate()
		if ok {
			atomic.AddInt64(&a.allocationsSmall, 1)
			atomic.AddInt64(&a.activeBytes, int64(reqCap))
			return newBufferView(sp.chunk, h, reqCap, maxCap, a, tc, si), nil
		}
	}

	// No subpage can serve this size right now: create one under the arena
	// lock, held together with the sentinel lock.
	a.mu.Lock()
	c, h, err := a.allocateNewSubpageLocked(elemSize, head)
	a.mu.Unlock()
	if err != nil {
		return nil, err
	}
	atomic.AddInt64(&a.allocationsSmall, 1)
	atomic.AddInt64(&a.activeBytes, int64(reqCap))
	return newBufferView(c, h, reqCap, maxCap, a, tc, si), nil
}

// allocateNewSubpageLocked finds or creates a chunk able to host a fresh
// subpage for elemSize and installs it on head. Must be called with a.mu held.
func (a *Arena) allocateNewSubpageLocked(elemSize int, head *Subpage) (*Chunk, Handle, error) {
	runSize := lcm(a.sc.PageSize(), elemSize)

	for _, l := range a.normalOrder {
		c, h, ok := l.allocate(runSize, func(c *Chunk) (Handle, bool) {
			return c.allocateSubpage(elemSize, head)
		})
		if ok {
			a.log.subpageCreated(elemSize)
			return c, h, nil
		}
	}

	c := a.newChunk()
	a.qInit.add(c)
	h, ok := c.allocateSubpage(elemSize, head)
	if !ok {
		a.qInit.remove(c)
		err := fmt.Errorf("%w: could not create subpage for elemSize %d", ErrOutOfMemory, elemSize)
		a.log.outOfMemory(elemSize, err)
		return nil, noHandle, err
	}
	if c.freeBytes <= a.qInit.freeMinThreshold {
		a.qInit.remove(c)
		a.qInit.nextList.add(c)
	}
	a.log.subpageCreated(elemSize)
	return c, h, nil
}

// allocateNormal implements the normal (run-granularity) allocation path.
func (a *Arena) allocateNormal(tc *ThreadCache, reqCap, maxCap, si int) (*BufferView, error) {
	if tc != nil {
		if bv, ok := tc.allocateNormal(a, si, reqCap, maxCap); ok {
			return bv, nil
		}
	}

	normSize := a.sc.SizeIdx2Size(si)

	a.mu.Lock()
	c, h, err := a.allocateNormalLocked(normSize, si)
	if err == nil {
		a.allocationsNormal++
	}
	a.mu.Unlock()
	if err != nil {
		return nil, err
	}

	atomic.AddInt64(&a.activeBytes, int64(reqCap))
	return newBufferView(c, h, reqCap, maxCap, a, tc, si), nil
}

// allocateNormalLocked runs the arena's fixed chunk-list scan order,
// creating a fresh chunk in qInit if no existing list can serve. Must be
// called with a.mu held.
func (a *Arena) allocateNormalLocked(normSize, si int) (*Chunk, Handle, error) {
	pages := ceilDiv(normSize, a.sc.PageSize())

	for _, l := range a.normalOrder {
		c, h, ok := l.allocate(normSize, func(c *Chunk) (Handle, bool) {
			return c.allocateRun(pages)
		})
		if ok {
			return c, h, nil
		}
	}

	c := a.newChunk()
	a.qInit.add(c)
	h, ok := c.allocateRun(pages)
	if !ok {
		a.qInit.remove(c)
		err := fmt.Errorf("%w: could not allocate run of %d pages in a fresh chunk", ErrOutOfMemory, pages)
		a.log.outOfMemory(normSize, err)
		return nil, noHandle, err
	}
	if c.freeBytes <= a.qInit.freeMinThreshold {
		a.qInit.remove(c)
		a.qInit.nextList.add(c)
	}
	return c, h, nil
}

// allocateHuge handles requests too large for any chunk: a fresh unpooled
// chunk sized to the request, no indices maintained.
func (a *Arena) allocateHuge(reqCap, maxCap int) (*BufferView, error) {
	size := reqCap
	if a.direct && a.directMemoryCacheAlignment > 0 {
		mask := a.directMemoryCacheAlignment - 1
		size = (size + mask) &^ mask
	}
	c := newUnpooledChunk(a.newRegion(size), size)
	c.log = a.log
	atomic.AddInt64(&a.allocationsHuge, 1)
	atomic.AddInt64(&a.activeBytes, int64(reqCap))
	h := packHandle(0, 0, true, false, 0)
	return newBufferView(c, h, reqCap, maxCap, a, nil, a.sc.NSizes()), nil
}

// free releases a handle back to its owning chunk, called by BufferView.Release
// when its refcount reaches zero.
func (a *Arena) free(v *BufferView) error {
	if v.chunk.unpooled {
		v.chunk.region.destroy()
		atomic.AddInt64(&a.deallocationsHuge, 1)
		atomic.AddInt64(&a.activeBytes, -int64(v.length))
		return nil
	}

	if v.threadCache != nil {
		if v.threadCache.add(a, v) {
			return nil
		}
	}

	if v.sizeIdx <= a.sc.SmallMaxSizeIdx() {
		atomic.AddInt64(&a.deallocationsSmall, 1)
	}

	a.freeLocked(v)
	atomic.AddInt64(&a.activeBytes, -int64(v.length))
	return nil
}

// freeLocked is the arena-locked free path shared by the direct free and
// the thread-cache trim path. Lock order is sentinel-then-arena, mirroring
// allocateSmall: taking a.mu first here would let one goroutine in
// allocateSmall (holding the sentinel, waiting on a.mu) deadlock against
// one here (holding a.mu, waiting on the sentinel) for the same size class.
func (a *Arena) freeLocked(v *BufferView) {
	var lockForSubpage *sync.Mutex
	if v.handle.isSubpage() {
		lockForSubpage = &a.subpageLocks[v.sizeIdx]
		lockForSubpage.Lock()
		defer lockForSubpage.Unlock()
	}

	a.mu.Lock()
	defer a.mu.Unlock()

	if !a.sc.IsSubpage(v.sizeIdx) {
		a.deallocationsNormal++
	}

	onlyOfSize := func() bool {
		head := a.subpageHeads[v.sizeIdx]
		return head.next == head.prev
	}

	var head *Subpage
	if v.handle.isSubpage() {
		head = a.subpageHeads[v.sizeIdx]
	}
	v.chunk.free(v.handle, head, onlyOfSize)

	if destroy := chunkListFreeMigrate(v.chunk); destroy {
		v.chunk.region.destroy()
		a.log.chunkDestroyed()
	}
}

// reallocate grows or shrinks an existing allocation, copying live bytes.
func (a *Arena) reallocate(v *BufferView, newCap int, freeOld bool) (*BufferView, error) {
	nv, err := a.allocate(v.threadCache, newCap, v.maxLength)
	if err != nil {
		return nil, err
	}

	n := v.length
	if newCap < n {
		n = newCap
	}
	nv.chunk.region.copyFrom(byteOffset(nv.chunk, nv.handle), v.chunk.region, byteOffset(v.chunk, v.handle), n)

	if freeOld {
		if err := v.Release(); err != nil {
			return nil, err
		}
	}
	return nv, nil
}

func byteOffset(c *Chunk, h Handle) int {
	offset := h.runOffset() * c.pageSize
	if h.isSubpage() {
		if sp := c.subpageAt(h.runOffset()); sp != nil {
			offset += int(h.bitmapIdx()) * sp.elemSize
		}
	}
	return offset
}
