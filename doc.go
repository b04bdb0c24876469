// Package bytepool implements a pooled, reference-counted byte-buffer
// allocator in the style of Netty's PooledByteBufAllocator.
//
// # Overview
//
// Rather than handing back raw []byte and relying on the garbage collector
// to reclaim them, bytepool hands back a *BufferView backed by memory
// carved out of fixed-size chunks. Chunks are split into runs of whole
// pages for "Normal" sized requests and into equal-sized slots ("subpages")
// for small requests, coalescing and splitting as buffers come and go so a
// long-running server doesn't fragment its heap the way repeated
// make([]byte, n) would.
//
// # Basic usage
//
//	f, err := bytepool.NewFacade(bytepool.DefaultConfig())
//	if err != nil {
//		log.Fatal(err)
//	}
//	buf, err := f.Allocate(1024, 4096, false)
//	if err != nil {
//		log.Fatal(err)
//	}
//	defer buf.Release()
//
//	n := copy(buf.Bytes(), payload)
//
// # Arenas and thread caches
//
// A Facade owns a fixed array of heap arenas and a fixed array of direct
// (simulated off-heap) arenas. Each arena is an independent shard with its
// own lock and its own six-list chunk chain (qInit, q000, q025, q050,
// q075, q100); sharding multiple arenas lets concurrent goroutines avoid
// contending on a single mutex. A ThreadCache, acquired from a sync.Pool
// keyed by goroutine scheduling affinity, absorbs most allocate/free pairs
// without ever touching an arena's lock.
//
// # Reference counting
//
// A *BufferView starts with a reference count of 1. Retain increments it;
// Release decrements it and returns the underlying memory to its arena (or
// thread cache) when the count reaches zero. Using a view after its count
// reaches zero is a use-after-free, exactly as in manual memory management
// — bytepool does not protect against it.
//
// # Variants
//
// Heap arenas back views with ordinary Go slices, reclaimed by the garbage
// collector once a chunk is destroyed. Direct arenas back views with a
// pinned, unsafe.Pointer-addressed region simulating off-heap memory: Go
// has no portable manual-free primitive outside cgo, so "direct" here
// means "not organized as a GC-visible slice", not "outside the Go heap"
// in the literal sense.
package bytepool
