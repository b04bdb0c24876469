package bytepool

import "unsafe"

// heapRegion backs a Chunk with a plain Go byte slice. destroy only drops
// the region's reference to the slice; the garbage collector reclaims it.
type heapRegion struct {
	buf []byte
}

func newHeapRegion(size int) *heapRegion {
	return &heapRegion{buf: make([]byte, size)}
}

func (r *heapRegion) bytes(offset, length int) []byte {
	return r.buf[offset : offset+length]
}

func (r *heapRegion) destroy() {
	r.buf = nil
}

func (r *heapRegion) copyFrom(dstOff int, src region, srcOff, n int) {
	copy(r.buf[dstOff:dstOff+n], src.bytes(srcOff, n))
}

// directRegion backs a Chunk with a simulated off-heap allocation: a pinned
// byte slice addressed through unsafe.Pointer arithmetic rather than the heap
// slice's normal bounds-checked indexing. It models the direct-memory variant's
// copy primitive and destroy semantics without a true outside-the-GC-heap
// allocation, since Go offers no portable manual-free primitive without cgo.
type directRegion struct {
	base    unsafe.Pointer
	size    int
	backing []byte // keeps the allocation alive; base points inside it
}

func newDirectRegion(size, alignment int) *directRegion {
	if alignment <= 0 {
		backing := make([]byte, size)
		return &directRegion{base: unsafe.Pointer(&backing[0]), size: size, backing: backing}
	}
	backing := make([]byte, size+alignment)
	addr := uintptr(unsafe.Pointer(&backing[0]))
	aligned := (addr + uintptr(alignment-1)) &^ uintptr(alignment-1)
	return &directRegion{
		base:    unsafe.Pointer(aligned),
		size:    size,
		backing: backing,
	}
}

func (r *directRegion) bytes(offset, length int) []byte {
	ptr := unsafe.Add(r.base, offset)
	return unsafe.Slice((*byte)(ptr), length)
}

func (r *directRegion) destroy() {
	r.backing = nil
	r.base = nil
}

func (r *directRegion) copyFrom(dstOff int, src region, srcOff, n int) {
	dst := unsafe.Add(r.base, dstOff)
	copy(unsafe.Slice((*byte)(dst), n), src.bytes(srcOff, n))
}
