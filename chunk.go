package bytepool

import "fmt"

// region is the one capability trait where heap and direct arenas differ:
// everything about indexing and algorithms is identical, only how the
// backing bytes are obtained/released/copied changes. Modeled as an
// interface with two concrete implementations rather than inheritance.
type region interface {
	// bytes returns the live [offset, offset+length) window into the
	// region's backing storage.
	bytes(offset, length int) []byte
	// destroy releases the region. The heap variant only drops its slice
	// reference (the Go GC reclaims the slice); for the direct variant this
	// is where an off-heap allocation would be returned to the host allocator.
	destroy()
	// copyFrom copies n bytes from src at srcOff to this region at dstOff,
	// using the concrete memory-copy primitive for this variant.
	copyFrom(dstOff int, src region, srcOff, n int)
}

// Chunk is a fixed-size memory region subdivided into variable-length runs
// of pages, plus the indices needed to allocate/free/coalesce them. It
// generalizes a plain bump-allocator chunk (one buf []byte plus a
// monotonic offset) from "never reused until Reset" to "tracked,
// coalesced, and reused run by run".
type Chunk struct {
	region region
	log    logger

	pageSize   int
	pageShifts int
	numPages   int
	chunkSize  int

	sc *SizeClasses

	freeBytes int

	offsets *offsetMap   // C3: page-offset -> handle, for both run endpoints
	queues  []*pageQueue // C4: one per page-index, queues[pi] holds free runs

	subpages []*Subpage // per page-offset; nil where no subpage occupies that page

	views [][]byte // bounded deque of reusable view slices, LIFO

	// Chunk-list membership: doubly-linked list
	// pointers managed exclusively by the owning *ChunkList.
	listPrev, listNext *Chunk
	list               *ChunkList

	unpooled bool // true for huge (direct/unpooled) allocations: no indices maintained
}

const maxViewCacheDepth = 16

// newChunk builds a fresh, fully-free Chunk over a region sized chunkSize,
// with one free run spanning the whole chunk registered in C3/C4.
func newChunk(r region, sc *SizeClasses) *Chunk {
	numPages := sc.ChunkSize() / sc.PageSize()
	c := &Chunk{
		region:     r,
		log:        newNopLogger(),
		pageSize:   sc.PageSize(),
		pageShifts: sc.PageShifts(),
		numPages:   numPages,
		chunkSize:  sc.ChunkSize(),
		sc:         sc,
		freeBytes:  sc.ChunkSize(),
		offsets:    newOffsetMap(),
		queues:     make([]*pageQueue, sc.NPSizes()),
		subpages:   make([]*Subpage, numPages),
	}
	for i := range c.queues {
		c.queues[i] = newPageQueue()
	}
	whole := packHandle(0, numPages, false, false, 0)
	c.insertFreeRun(whole)
	return c
}

// newUnpooledChunk builds a Chunk for a single huge allocation: no run
// indices are maintained, freeBytes is always 0 once the caller marks it
// in-use.
func newUnpooledChunk(r region, size int) *Chunk {
	return &Chunk{
		region:    r,
		log:       newNopLogger(),
		chunkSize: size,
		unpooled:  true,
	}
}

func (c *Chunk) insertFreeRun(h Handle) {
	pi := c.sc.Pages2PageIdxFloor(h.runPages())
	c.queues[pi].offer(h)
	c.offsets.put(uint32(h.runOffset()), uint64(h))
	if h.runPages() > 1 {
		c.offsets.put(uint32(h.runOffset()+h.runPages()-1), uint64(h))
	}
}

func (c *Chunk) removeFreeRun(h Handle) {
	pi := c.sc.Pages2PageIdxFloor(h.runPages())
	c.queues[pi].remove(h)
	c.offsets.remove(uint32(h.runOffset()))
	if h.runPages() > 1 {
		c.offsets.remove(uint32(h.runOffset() + h.runPages() - 1))
	}
}

// allocateRun finds the smallest free run at least
// `pages` pages long, splitting off any remainder. Returns (noHandle, false)
// if no run is big enough.
func (c *Chunk) allocateRun(pages int) (Handle, bool) {
	start := c.sc.Pages2PageIdx(pages)
	if c.freeBytes == c.chunkSize {
		start = c.sc.NPSizes() - 1
	}

	pi := -1
	for i := start; i < c.sc.NPSizes(); i++ {
		if !c.queues[i].empty() {
			pi = i
			break
		}
	}
	if pi < 0 {
		return noHandle, false
	}

	h, ok := c.queues[pi].poll()
	if !ok {
		return noHandle, false
	}
	c.offsets.remove(uint32(h.runOffset()))
	if h.runPages() > 1 {
		c.offsets.remove(uint32(h.runOffset() + h.runPages() - 1))
	}

	if h.runPages() > pages {
		tail := packHandle(h.runOffset()+pages, h.runPages()-pages, false, false, 0)
		c.insertFreeRun(tail)
		h = h.withRun(h.runOffset(), pages)
	}

	h = h.withInUse(true)
	c.freeBytes -= pages * c.pageSize
	return h, true
}

// allocateSubpage allocates (or reuses) a run sized
// to host elemSize-byte slots and hand one slot out of it.
func (c *Chunk) allocateSubpage(elemSize int, head *Subpage) (Handle, bool) {
	runSize := lcm(c.pageSize, elemSize)
	pages := runSize / c.pageSize

	h, ok := c.allocateRun(pages)
	if !ok {
		return noHandle, false
	}

	sp := newSubpage(c, head, h.runOffset(), h.runPages(), c.pageSize, elemSize)
	c.subpages[h.runOffset()] = sp

	slotHandle, ok := sp.allocate()
	if !ok {
		invariantViolation(c.log, "allocateSubpage", "freshly created subpage could not serve its own allocation")
	}
	return slotHandle, true
}

// subpageAt returns the subpage occupying the run that starts at runOffset,
// or nil.
func (c *Chunk) subpageAt(runOffset int) *Subpage {
	if runOffset < 0 || runOffset >= len(c.subpages) {
		return nil
	}
	return c.subpages[runOffset]
}

// free returns a handle to the chunk, releasing and
// coalescing the underlying run when appropriate. onlyOfSize reports
// whether the freed subpage (if any) is the sole survivor of its size in
// the arena's free list.
func (c *Chunk) free(h Handle, head *Subpage, onlyOfSize func() bool) {
	if !h.inUse() {
		invariantViolation(c.log, "Chunk.free", fmt.Sprintf("double free of handle %#x", uint64(h)))
	}

	runOffset := h.runOffset()
	runPages := h.runPages()

	if h.isSubpage() {
		sp := c.subpageAt(runOffset)
		if sp == nil {
			invariantViolation(c.log, "Chunk.free", fmt.Sprintf("no subpage registered at run offset %d", runOffset))
		}
		alive := sp.free(head, int(h.bitmapIdx()), onlyOfSize)
		if alive {
			return
		}
		c.subpages[runOffset] = nil
		c.log.subpageDestroyed(sp.elemSize)
	}

	c.freeBytes += runPages * c.pageSize
	runOffset, runPages = c.coalesce(runOffset, runPages)

	free := packHandle(runOffset, runPages, false, false, 0)
	c.insertFreeRun(free)
}

// coalesce merges the freed [runOffset, runOffset+runPages) span with any
// adjacent free runs on either side, returning the
// merged span's (offset, pages). It removes the merged neighbors' entries
// from C3/C4 as it goes.
func (c *Chunk) coalesce(runOffset, runPages int) (int, int) {
	const noNeighbor = -1

	if runOffset > 0 {
		if raw := c.offsets.get(uint32(runOffset-1), uint64(noHandle)); Handle(raw) != noHandle {
			prevH := Handle(raw)
			if !prevH.inUse() && prevH.runOffset()+prevH.runPages() == runOffset {
				c.removeFreeRun(prevH)
				runOffset = prevH.runOffset()
				runPages += prevH.runPages()
			}
		}
	}

	if tailIdx := runOffset + runPages; tailIdx < c.numPages {
		if raw := c.offsets.get(uint32(tailIdx), uint64(noHandle)); Handle(raw) != noHandle {
			nextH := Handle(raw)
			if !nextH.inUse() && nextH.runOffset() == tailIdx {
				c.removeFreeRun(nextH)
				runPages += nextH.runPages()
			}
		}
	}

	return runOffset, runPages
}

// usagePercent computes 100 - floor(freeBytes*100/chunkSize),
// except a chunk that still has free bytes is never reported as 100% used —
// that value is reserved for freeBytes == 0. A chunk with, say, 1 free byte
// out of 16 MiB would otherwise floor to 100 and be indistinguishable from
// completely full.
func (c *Chunk) usagePercent() int {
	if c.freeBytes == 0 {
		return 100
	}
	u := 100 - (c.freeBytes*100)/c.chunkSize
	if u == 100 {
		return 99
	}
	return u
}

// bytes returns the live window for a handle, used by BufferView.
func (c *Chunk) bytes(h Handle, length int) []byte {
	offset := h.runOffset() * c.pageSize
	if h.isSubpage() {
		sp := c.subpageAt(h.runOffset())
		if sp != nil {
			offset += int(h.bitmapIdx()) * sp.elemSize
		}
	}
	return c.region.bytes(offset, length)
}

// acquireView returns a cached view slice from the bounded deque, or nil.
func (c *Chunk) acquireView() []byte {
	n := len(c.views)
	if n == 0 {
		return nil
	}
	v := c.views[n-1]
	c.views = c.views[:n-1]
	return v
}

// releaseView caches a view slice for reuse, bounded by maxViewCacheDepth.
func (c *Chunk) releaseView(v []byte) {
	if v == nil || len(c.views) >= maxViewCacheDepth {
		return
	}
	c.views = append(c.views, v)
}

func lcm(a, b int) int {
	return a / gcd(a, b) * b
}

func gcd(a, b int) int {
	for b != 0 {
		a, b = b, a%b
	}
	return a
}
