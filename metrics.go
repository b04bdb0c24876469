package bytepool

import "sync/atomic"

// ChunkListSnapshot reports one chunk list's population at the moment the
// snapshot was taken.
type ChunkListSnapshot struct {
	Name      string
	NumChunks int
}

// SubpageListSnapshot reports one size index's subpage free-list length.
type SubpageListSnapshot struct {
	SizeIdx     int
	ElemSize    int
	NumSubpages int
}

// ArenaSnapshot is one arena's contribution to a Metrics snapshot.
type ArenaSnapshot struct {
	Kind string // "heap" or "direct"

	ChunkLists   []ChunkListSnapshot
	SubpageLists []SubpageListSnapshot

	AllocationsSmall    int64
	AllocationsNormal   int64
	AllocationsHuge     int64
	DeallocationsSmall  int64
	DeallocationsNormal int64
	DeallocationsHuge   int64

	ActiveBytes     int64
	NumThreadCaches int32
}

// Metrics is the façade's read-only snapshot, extending a single-arena
// ArenaMetrics/Metrics() pair from one struct describing one arena to a struct describing
// the whole fixed array of arenas the façade owns.
type Metrics struct {
	NumHeapArenas   int
	NumDirectArenas int
	Arenas          []ArenaSnapshot
}

// snapshot assembles one arena's ArenaSnapshot. It never holds a.mu and a
// subpageLocks[si] at the same time: allocateSmall nests sentinel-then-arena
// (sentinel held, then a.mu taken on a cache miss), so a snapshot holding
// a.mu while then taking a sentinel lock would deadlock against it. Instead,
// a.mu and each sentinel lock are taken and released independently, one at
// a time, while the rest of the fields are read atomically.
func (a *Arena) snapshot() ArenaSnapshot {
	a.mu.Lock()
	lists := []*ChunkList{a.qInit, a.q000, a.q025, a.q050, a.q075, a.q100}
	chunkLists := make([]ChunkListSnapshot, len(lists))
	for i, l := range lists {
		n := 0
		for c := l.head; c != nil; c = c.listNext {
			n++
		}
		chunkLists[i] = ChunkListSnapshot{Name: l.name, NumChunks: n}
	}
	allocationsNormal := a.allocationsNormal
	deallocationsNormal := a.deallocationsNormal
	a.mu.Unlock()

	var subpageLists []SubpageListSnapshot
	for si, head := range a.subpageHeads {
		// The sentinel's next/prev links are mutated under
		// a.subpageLocks[si] alone (see allocateSmall/Subpage.free), not
		// under a.mu, so walking the list here needs that same lock too.
		lock := &a.subpageLocks[si]
		lock.Lock()
		n := 0
		for sp := head.next; sp != head; sp = sp.next {
			n++
		}
		lock.Unlock()
		if n > 0 {
			subpageLists = append(subpageLists, SubpageListSnapshot{
				SizeIdx:     si,
				ElemSize:    a.sc.SizeIdx2Size(si),
				NumSubpages: n,
			})
		}
	}

	return ArenaSnapshot{
		Kind:                a.kind(),
		ChunkLists:          chunkLists,
		SubpageLists:        subpageLists,
		AllocationsSmall:    atomic.LoadInt64(&a.allocationsSmall),
		AllocationsNormal:   allocationsNormal,
		AllocationsHuge:     atomic.LoadInt64(&a.allocationsHuge),
		DeallocationsSmall:  atomic.LoadInt64(&a.deallocationsSmall),
		DeallocationsNormal: deallocationsNormal,
		DeallocationsHuge:   atomic.LoadInt64(&a.deallocationsHuge),
		ActiveBytes:         atomic.LoadInt64(&a.activeBytes),
		NumThreadCaches:     atomic.LoadInt32(&a.numThreadCaches),
	}
}
