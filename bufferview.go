package bytepool

import "sync/atomic"

// BufferView is the reference-counted, user-facing handle over one
// allocation. Read/write cursor semantics on
// top of Bytes() belong to the user layer and are out of scope (§1).
type BufferView struct {
	chunk       *Chunk
	handle      Handle
	offset      int
	length      int
	maxLength   int
	arena       *Arena
	threadCache *ThreadCache
	sizeIdx     int

	refcount int32
}

func newBufferView(chunk *Chunk, handle Handle, length, maxLength int, arena *Arena, tc *ThreadCache, sizeIdx int) *BufferView {
	return &BufferView{
		chunk:       chunk,
		handle:      handle,
		length:      length,
		maxLength:   maxLength,
		arena:       arena,
		threadCache: tc,
		sizeIdx:     sizeIdx,
		refcount:    1,
	}
}

// Bytes returns the live window into the owning chunk's backing region.
func (v *BufferView) Bytes() []byte {
	return v.chunk.bytes(v.handle, v.length)
}

// Len reports the view's current length, distinct from its maximum capacity.
func (v *BufferView) Len() int {
	return v.length
}

// Cap reports the view's maximum capacity (the cap it was allocated or
// reallocated with).
func (v *BufferView) Cap() int {
	return v.maxLength
}

// Retain increments the reference count and returns v, for callers that hand
// the same view to more than one owner.
func (v *BufferView) Retain() *BufferView {
	for {
		cur := atomic.LoadInt32(&v.refcount)
		if cur <= 0 {
			invariantViolation(v.arena.log, "BufferView.Retain", "retain on a view with a non-positive refcount")
		}
		if atomic.CompareAndSwapInt32(&v.refcount, cur, cur+1) {
			return v
		}
	}
}

// Release decrements the reference count and frees the underlying
// allocation exactly once, when the count reaches zero. Releasing more times
// than the view was retained panics (over-release is an invariant
// violation, not a recoverable error).
func (v *BufferView) Release() error {
	for {
		cur := atomic.LoadInt32(&v.refcount)
		if cur <= 0 {
			invariantViolation(v.arena.log, "BufferView.Release", "release on a view with a non-positive refcount")
		}
		if !atomic.CompareAndSwapInt32(&v.refcount, cur, cur-1) {
			continue
		}
		if cur != 1 {
			return nil
		}
		return v.arena.free(v)
	}
}
