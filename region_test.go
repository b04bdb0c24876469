package bytepool

import "testing"

func TestHeapRegionBytesReflectsWrites(t *testing.T) {
	r := newHeapRegion(64)
	b := r.bytes(0, 64)
	copy(b, []byte("hello"))
	if string(r.bytes(0, 5)) != "hello" {
		t.Fatalf("bytes() = %q, want hello", r.bytes(0, 5))
	}
}

func TestHeapRegionCopyFrom(t *testing.T) {
	src := newHeapRegion(16)
	copy(src.bytes(0, 16), []byte("0123456789ABCDEF"))

	dst := newHeapRegion(16)
	dst.copyFrom(0, src, 4, 8)
	if string(dst.bytes(0, 8)) != "456789AB" {
		t.Fatalf("copyFrom produced %q, want 456789AB", dst.bytes(0, 8))
	}
}

func TestDirectRegionBytesReflectsWrites(t *testing.T) {
	r := newDirectRegion(64, 0)
	b := r.bytes(0, 64)
	copy(b, []byte("direct"))
	if string(r.bytes(0, 6)) != "direct" {
		t.Fatalf("bytes() = %q, want direct", r.bytes(0, 6))
	}
}

func TestDirectRegionAlignment(t *testing.T) {
	const alignment = 4096
	r := newDirectRegion(8192, alignment)
	addr := uintptr(r.base)
	if addr%alignment != 0 {
		t.Fatalf("direct region base not aligned to %d: %d", alignment, addr)
	}
}

func TestDirectRegionCopyFrom(t *testing.T) {
	src := newDirectRegion(16, 0)
	copy(src.bytes(0, 16), []byte("0123456789ABCDEF"))

	dst := newDirectRegion(16, 0)
	dst.copyFrom(0, src, 4, 8)
	if string(dst.bytes(0, 8)) != "456789AB" {
		t.Fatalf("copyFrom produced %q, want 456789AB", dst.bytes(0, 8))
	}
}

func TestDirectRegionCopyFromHeap(t *testing.T) {
	src := newHeapRegion(16)
	copy(src.bytes(0, 16), []byte("0123456789ABCDEF"))

	dst := newDirectRegion(16, 0)
	dst.copyFrom(0, src, 0, 16)
	if string(dst.bytes(0, 16)) != "0123456789ABCDEF" {
		t.Fatalf("cross-region copyFrom produced %q", dst.bytes(0, 16))
	}
}
