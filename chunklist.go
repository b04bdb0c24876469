package bytepool

// ChunkList is a doubly-linked list of chunks whose usage lies in
// [minUsage, maxUsage). Six lists per arena,
// chained in a fixed order by usage band, form the arena's chunk chain:
// qInit, q000, q025, q050, q075, q100. nextList points toward higher usage,
// prevList toward lower; q000.prevList is nil and qInit.prevList is qInit
// itself, so newly created chunks can never migrate below qInit by freeing
// alone.
type ChunkList struct {
	name string

	head *Chunk // doubly-linked, nil when empty

	minUsage, maxUsage int
	freeMinThreshold   int
	freeMaxThreshold   int
	maxCapacity        int

	prevList, nextList *ChunkList
}

// usageThresholds computes freeMinThreshold/freeMaxThreshold/maxCapacity
// from a usage band, with a rounding correction so a
// chunk can't oscillate at a boundary due to integer truncation.
func usageThresholds(chunkSize, minUsage, maxUsage int) (freeMin, freeMax, maxCap int) {
	freeMin = usageToFreeBytes(chunkSize, maxUsage)
	freeMax = usageToFreeBytes(chunkSize, minUsage)
	maxCap = chunkSize * (100 - minUsage) / 100
	return
}

// usageToFreeBytes converts a usage percentage into the free-byte count a
// chunk would have at exactly that usage, rounding toward the boundary that
// keeps the chunk inside its own band (ceiling), matching the chunk's own
// usagePercent rounding rule (100 - floor(freeBytes*100/chunkSize), with the
// freeBytes>0-but-rounds-to-0 special case returning 99).
func usageToFreeBytes(chunkSize, usage int) int {
	if usage <= 0 {
		return chunkSize
	}
	if usage >= 100 {
		return 0
	}
	return chunkSize - (chunkSize*usage)/100
}

// newChunkLists builds the six fixed chunk lists in order and wires their
// prevList/nextList chain, including the qInit self-loop.
func newChunkLists(chunkSize int) (qInit, q000, q025, q050, q075, q100 *ChunkList) {
	qInit = &ChunkList{name: "qInit", minUsage: 0, maxUsage: 25}
	q000 = &ChunkList{name: "q000", minUsage: 1, maxUsage: 50}
	q025 = &ChunkList{name: "q025", minUsage: 25, maxUsage: 75}
	q050 = &ChunkList{name: "q050", minUsage: 50, maxUsage: 100}
	q075 = &ChunkList{name: "q075", minUsage: 75, maxUsage: 100}
	q100 = &ChunkList{name: "q100", minUsage: 100, maxUsage: 100}

	for _, l := range []*ChunkList{qInit, q000, q025, q050, q075, q100} {
		l.freeMinThreshold, l.freeMaxThreshold, l.maxCapacity = usageThresholds(chunkSize, l.minUsage, l.maxUsage)
	}

	qInit.prevList = qInit // self-loop: qInit cannot be migrated below by freeing
	qInit.nextList = q000
	q000.prevList = nil
	q000.nextList = q025
	q025.prevList = q000
	q025.nextList = q050
	q050.prevList = q025
	q050.nextList = q075
	q075.prevList = q050
	q075.nextList = q100
	q100.prevList = q075
	q100.nextList = nil

	return
}

func (l *ChunkList) add(c *Chunk) {
	c.list = l
	c.listPrev = nil
	c.listNext = l.head
	if l.head != nil {
		l.head.listPrev = c
	}
	l.head = c
}

func (l *ChunkList) remove(c *Chunk) {
	if c.listPrev != nil {
		c.listPrev.listNext = c.listNext
	} else if l.head == c {
		l.head = c.listNext
	}
	if c.listNext != nil {
		c.listNext.listPrev = c.listPrev
	}
	c.listPrev = nil
	c.listNext = nil
	c.list = nil
}

// canServe is the cheap reject check: a list can never serve a
// request bigger than any chunk in it could possibly provide.
func (l *ChunkList) canServe(normSize int) bool {
	return normSize <= l.maxCapacity
}

// allocate walks the list head-to-tail and returns the handle and chunk
// from the first chunk whose tryChunk succeeds, migrating it forward if it
// crossed into the next list's band. tryChunk
// is either a run allocation (Normal path) or a subpage-slot allocation
// (Small path) — the list itself doesn't care which, it only tracks
// occupancy bands, so the caller supplies the concrete attempt.
func (l *ChunkList) allocate(normSize int, tryChunk func(c *Chunk) (Handle, bool)) (*Chunk, Handle, bool) {
	if !l.canServe(normSize) {
		return nil, noHandle, false
	}
	for c := l.head; c != nil; c = c.listNext {
		h, ok := tryChunk(c)
		if !ok {
			continue
		}
		if c.freeBytes <= l.freeMinThreshold {
			l.remove(c)
			if l.nextList != nil {
				l.nextList.add(c)
			} else {
				// q100 has no nextList; a chunk that fills up while
				// already in q100 simply stays there.
				l.add(c)
			}
		}
		return c, h, true
	}
	return nil, noHandle, false
}

// chunkListFreeMigrate migrates c toward lower-usage lists after a free inside it made it
// cross freeMaxThreshold. A chunk whose freeBytes returns to the full chunk
// size (usage 0) is always destroyed rather than reassigned to q000:
// usage==0 is treated as eligible for destruction, not for a resting place
// in q000. It returns true if c should be destroyed.
func chunkListFreeMigrate(c *Chunk) (destroy bool) {
	l := c.list
	if l == nil {
		return false
	}
	if c.freeBytes == c.chunkSize {
		l.remove(c)
		return true
	}
	if c.freeBytes <= l.freeMaxThreshold {
		return false
	}
	l.remove(c)
	return moveDown(l, c)
}

// moveDown walks the prevList chain starting after from looking for a list
// whose band still fits c's (non-zero) freeBytes, adding c there. Reaching
// the qInit self-loop (cur.prevList == cur) always absorbs the chunk; so
// does running off the bottom of the chain (cur == nil, only possible when
// from was q000, whose prevList is nil) — q000 is the floor for any chunk
// that still has nonzero usage, re-settling the chunk back into from.
func moveDown(from *ChunkList, c *Chunk) (destroy bool) {
	for {
		cur := from.prevList
		if cur == nil {
			from.add(c)
			return false
		}
		if cur == cur.prevList {
			cur.add(c)
			return false
		}
		if c.freeBytes <= cur.freeMaxThreshold {
			cur.add(c)
			return false
		}
		from = cur
	}
}
