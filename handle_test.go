package bytepool

import "testing"

func TestPackHandleRoundTrip(t *testing.T) {
	h := packHandle(123, 45, true, false, 0)
	if h.runOffset() != 123 {
		t.Fatalf("runOffset() = %d, want 123", h.runOffset())
	}
	if h.runPages() != 45 {
		t.Fatalf("runPages() = %d, want 45", h.runPages())
	}
	if !h.inUse() {
		t.Fatal("inUse() = false, want true")
	}
	if h.isSubpage() {
		t.Fatal("isSubpage() = true, want false")
	}
	if !h.isRun() {
		t.Fatal("isRun() = false, want true")
	}
}

func TestPackHandleSubpage(t *testing.T) {
	h := packHandle(7, 1, true, true, 42)
	if !h.isSubpage() {
		t.Fatal("isSubpage() = false, want true")
	}
	if h.isRun() {
		t.Fatal("isRun() = true for a subpage handle, want false")
	}
	if h.bitmapIdx() != 42 {
		t.Fatalf("bitmapIdx() = %d, want 42", h.bitmapIdx())
	}
}

func TestNoHandleSentinel(t *testing.T) {
	if !noHandle.inUse() {
		t.Fatal("noHandle has every bit set, so it should report inUse")
	}
	if noHandle != ^Handle(0) {
		t.Fatal("noHandle must be all bits set")
	}
}

func TestWithInUseTogglesOnlyThatBit(t *testing.T) {
	h := packHandle(1, 2, true, true, 5)
	cleared := h.withInUse(false)
	if cleared.inUse() {
		t.Fatal("withInUse(false) left inUse set")
	}
	if cleared.runOffset() != 1 || cleared.runPages() != 2 || !cleared.isSubpage() || cleared.bitmapIdx() != 5 {
		t.Fatal("withInUse(false) altered fields other than inUse")
	}

	restored := cleared.withInUse(true)
	if restored != h {
		t.Fatalf("withInUse(true) did not restore original handle: got %x want %x", restored, h)
	}
}

func TestWithRunReplacesOffsetAndPages(t *testing.T) {
	h := packHandle(1, 1, true, false, 0)
	h2 := h.withRun(10, 20)
	if h2.runOffset() != 10 || h2.runPages() != 20 {
		t.Fatalf("withRun did not update offset/pages: offset=%d pages=%d", h2.runOffset(), h2.runPages())
	}
	if !h2.inUse() {
		t.Fatal("withRun must not disturb inUse")
	}
}
