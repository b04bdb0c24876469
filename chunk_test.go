package bytepool

import "testing"

func newTestChunk(t *testing.T, pageSize, chunkSize int) *Chunk {
	t.Helper()
	sc, err := NewSizeClasses(pageSize, chunkSize, defaultLookupMax)
	if err != nil {
		t.Fatalf("NewSizeClasses: %v", err)
	}
	return newChunk(newHeapRegion(sc.ChunkSize()), sc)
}

func TestChunkAllocateRunSplitsRemainder(t *testing.T) {
	c := newTestChunk(t, 8192, 8192<<4)
	totalPages := c.numPages

	h, ok := c.allocateRun(2)
	if !ok {
		t.Fatal("allocateRun(2) should succeed on a fresh chunk")
	}
	if h.runPages() != 2 {
		t.Fatalf("runPages() = %d, want 2", h.runPages())
	}
	if c.freeBytes != (totalPages-2)*c.pageSize {
		t.Fatalf("freeBytes = %d, want %d", c.freeBytes, (totalPages-2)*c.pageSize)
	}
}

func TestChunkFreeCoalescesAdjacentRuns(t *testing.T) {
	c := newTestChunk(t, 8192, 8192<<4)

	h1, ok := c.allocateRun(2)
	if !ok {
		t.Fatal("allocateRun(2) failed")
	}
	h2, ok := c.allocateRun(2)
	if !ok {
		t.Fatal("allocateRun(2) failed")
	}

	c.free(h1, nil, nil)
	c.free(h2, nil, nil)

	if c.freeBytes != c.chunkSize {
		t.Fatalf("freeBytes = %d after freeing everything, want %d", c.freeBytes, c.chunkSize)
	}

	// The coalesced run should be allocatable as a single span covering
	// both halves.
	h3, ok := c.allocateRun(4)
	if !ok {
		t.Fatal("allocateRun(4) should succeed after coalescing two 2-page runs")
	}
	if h3.runPages() != 4 {
		t.Fatalf("runPages() = %d, want 4", h3.runPages())
	}
}

func TestChunkUsagePercent(t *testing.T) {
	c := newTestChunk(t, 8192, 8192<<4)
	if got := c.usagePercent(); got != 0 {
		t.Fatalf("usagePercent() on a fresh chunk = %d, want 0", got)
	}

	if _, ok := c.allocateRun(c.numPages - 1); !ok {
		t.Fatal("allocateRun(numPages-1) failed")
	}
	if got := c.usagePercent(); got <= 0 || got >= 100 {
		t.Fatalf("usagePercent() with 1 page free out of %d = %d, want strictly between 0 and 100", c.numPages, got)
	}

	if _, ok := c.allocateRun(1); !ok {
		t.Fatal("allocateRun(1) for the last page failed")
	}
	if got := c.usagePercent(); got != 100 {
		t.Fatalf("usagePercent() on a fully allocated chunk = %d, want 100", got)
	}
}

// TestChunkUsagePercentNearlyFullRoundsDownNotUp exercises the rounding
// correction: with enough pages per chunk, one free page's share of the
// chunk floors to 0% free (100% used), which usagePercent must still report
// as 99, not 100 (reserved for freeBytes == 0).
func TestChunkUsagePercentNearlyFullRoundsDownNotUp(t *testing.T) {
	c := newTestChunk(t, 8192, 8192*128)

	if _, ok := c.allocateRun(c.numPages - 1); !ok {
		t.Fatal("allocateRun(numPages-1) failed")
	}
	if got := c.usagePercent(); got != 99 {
		t.Fatalf("usagePercent() with 1 of %d pages free = %d, want 99", c.numPages, got)
	}
}

func TestChunkAllocateSubpageAndBytes(t *testing.T) {
	c := newTestChunk(t, 8192, 8192<<4)
	head := newSentinel()

	h, ok := c.allocateSubpage(64, head)
	if !ok {
		t.Fatal("allocateSubpage(64) failed")
	}
	if !h.isSubpage() {
		t.Fatal("handle from allocateSubpage should report isSubpage")
	}
	b := c.bytes(h, 64)
	if len(b) != 64 {
		t.Fatalf("bytes() len = %d, want 64", len(b))
	}
	copy(b, []byte("subpage test"))
	if string(c.bytes(h, 64)[:12]) != "subpage test" {
		t.Fatal("written bytes did not persist across bytes() calls")
	}
}
