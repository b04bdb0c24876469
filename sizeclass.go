package bytepool

import (
	"fmt"
	"math/bits"
)

// Size classing: a deterministic, bidirectional map between request sizes,
// size indices and page indices.
//
// Sizes are generated in groups of 1<<log2SizeClassGroup (4) size classes
// sharing a common (log2Group, log2Delta) pair, exactly like the Netty
// allocator this module's behavior is modeled on: the first group starts at
// the quantum (16 B) and every subsequent group increments both log2Group
// and log2Delta by one (log2Delta staying two bits below log2Group, so each
// group's base size and step double), which is what keeps relative granularity
// bounded as sizes grow. The same arithmetic is used twice — once to fill the
// tables at construction time (the "lookup" path) and once as a pure
// per-call formula (SizeIdx2SizeCompute) — so that the two can be asserted
// equal without one codepath silently depending on the other's output.
const (
	log2Quantum        = 4 // 1<<log2Quantum == 16 B, the smallest size class.
	log2SizeClassGroup = 2 // 1<<log2SizeClassGroup == 4 size classes per group.
	groupSize          = 1 << log2SizeClassGroup
)

// SizeClasses is the immutable, precomputed size-class table for one
// (pageSize, chunkSize) pair. It is safe for concurrent read-only use and is
// shared by every arena created from the same Config.
type SizeClasses struct {
	log logger

	pageSize   int
	pageShifts int
	chunkSize  int
	lookupMax  int

	sizeIdx2sizeTab []int32 // index -> normalized size in bytes
	isMultiPageTab  []bool  // index -> size is a multiple of pageSize
	isSubpageTab    []bool  // index -> size < pageSize

	pageIdx2sizeTab []int32 // page-index -> size in bytes (subsequence over isMultiPageTab)

	size2idxTab []int32 // fast lookup: (size-1)>>log2Quantum -> size index, for size<=lookupMax

	nSizes          int
	nPSizes         int
	smallMaxSizeIdx int
}

// NewSizeClasses builds the size-class tables for a page/chunk size pair.
// pageSize must be a power of two >= 4096; chunkSize must be a power-of-two
// multiple of pageSize. lookupMax bounds how many small sizes get an O(1)
// array-lookup fast path (§4.1); sizes above it still resolve in O(1) via
// SizeIdx2SizeCompute-style arithmetic, just without the precomputed array.
func NewSizeClasses(pageSize, chunkSize, lookupMax int) (*SizeClasses, error) {
	if pageSize < 4096 || !isPowerOfTwo(pageSize) {
		return nil, fmt.Errorf("%w: pageSize %d must be a power of two >= 4096", ErrConfigInvalid, pageSize)
	}
	if chunkSize < pageSize || !isPowerOfTwo(chunkSize) || chunkSize%pageSize != 0 {
		return nil, fmt.Errorf("%w: chunkSize %d must be a power-of-two multiple of pageSize %d", ErrConfigInvalid, chunkSize, pageSize)
	}
	if lookupMax <= 0 {
		lookupMax = 4096
	}

	sc := &SizeClasses{
		log:        newNopLogger(),
		pageSize:   pageSize,
		pageShifts: bits.TrailingZeros(uint(pageSize)),
		chunkSize:  chunkSize,
		lookupMax:  lookupMax,
	}

	// Pass 1: generate every (log2Group, log2Delta, nDelta) row until size
	// reaches chunkSize, exactly mirroring groupSizeFormula.
	var sizes []int32
	size := 0
	log2Group := log2Quantum

	nDelta := 0
	for nDelta < groupSize {
		size = groupSizeFormula(log2Group, log2Quantum, nDelta)
		sizes = append(sizes, int32(size))
		nDelta++
	}
	log2Group += log2SizeClassGroup
	log2Delta := log2Quantum

	for size < chunkSize {
		nDelta = 1
		for nDelta <= groupSize && size < chunkSize {
			size = groupSizeFormula(log2Group, log2Delta, nDelta)
			sizes = append(sizes, int32(size))
			nDelta++
		}
		log2Group++
		log2Delta++
	}

	if size != chunkSize {
		return nil, fmt.Errorf("%w: size class generation did not land on chunkSize exactly (got %d want %d)", ErrConfigInvalid, size, chunkSize)
	}

	sc.nSizes = len(sizes)
	sc.sizeIdx2sizeTab = sizes
	sc.isMultiPageTab = make([]bool, sc.nSizes)
	sc.isSubpageTab = make([]bool, sc.nSizes)

	var pageSizes []int32
	smallMax := -1
	for i, s := range sizes {
		isMulti := int(s)%pageSize == 0
		isSub := int(s) < pageSize
		sc.isMultiPageTab[i] = isMulti
		sc.isSubpageTab[i] = isSub
		if isSub {
			smallMax = i
		}
		if isMulti {
			pageSizes = append(pageSizes, s)
		}
	}
	sc.smallMaxSizeIdx = smallMax
	sc.pageIdx2sizeTab = pageSizes
	sc.nPSizes = len(pageSizes)

	// Pass 2: fast lookup array for sizes <= lookupMax, one slot per
	// 16-byte quantum bucket. Built by scanning forward through the table
	// already generated above, never by re-deriving the group arithmetic,
	// so a bug in the closed form would show up as a lookup/compute
	// mismatch rather than being hidden.
	buckets := lookupMax >> log2Quantum
	sc.size2idxTab = make([]int32, buckets)
	idx := 0
	for b := 0; b < buckets; b++ {
		want := int32((b + 1) << log2Quantum)
		for idx < sc.nSizes && sc.sizeIdx2sizeTab[idx] < want {
			idx++
		}
		if idx >= sc.nSizes {
			idx = sc.nSizes - 1
		}
		sc.size2idxTab[b] = int32(idx)
	}

	return sc, nil
}

// withLogger replaces sc's logger, called once by NewFacade after applying
// the caller's Options so invariant panics from the shared size-class table
// route through the same logger as everything else the façade owns.
func (sc *SizeClasses) withLogger(log logger) {
	sc.log = log
}

// groupSizeFormula is the core size-class invariant: size at a row equals
// (1<<log2Group) + nDelta*(1<<log2Delta).
func groupSizeFormula(log2Group, log2Delta, nDelta int) int {
	return (1 << uint(log2Group)) + nDelta*(1<<uint(log2Delta))
}

func isPowerOfTwo(n int) bool {
	return n > 0 && n&(n-1) == 0
}

// NSizes is the number of size classes (table length).
func (sc *SizeClasses) NSizes() int { return sc.nSizes }

// NPSizes is the number of multi-page (isMultiPageSize) size classes.
func (sc *SizeClasses) NPSizes() int { return sc.nPSizes }

// SmallMaxSizeIdx is the last size index with isSubpage=true.
func (sc *SizeClasses) SmallMaxSizeIdx() int { return sc.smallMaxSizeIdx }

// ChunkSize is the chunk size these tables were built for.
func (sc *SizeClasses) ChunkSize() int { return sc.chunkSize }

// PageSize is the page size these tables were built for.
func (sc *SizeClasses) PageSize() int { return sc.pageSize }

// PageShifts is log2(PageSize()).
func (sc *SizeClasses) PageShifts() int { return sc.pageShifts }

// IsSubpage reports whether size index i falls in the sub-page range.
func (sc *SizeClasses) IsSubpage(i int) bool { return sc.isSubpageTab[i] }

// IsMultiPageSize reports whether size index i is a multiple of PageSize().
func (sc *SizeClasses) IsMultiPageSize(i int) bool { return sc.isMultiPageTab[i] }

// SizeIdx2Size is the O(1) table lookup from index to normalized byte size.
func (sc *SizeClasses) SizeIdx2Size(i int) int {
	if i < 0 || i >= sc.nSizes {
		invariantViolation(sc.log, "SizeIdx2Size", fmt.Sprintf("index %d out of range [0,%d)", i, sc.nSizes))
	}
	return int(sc.sizeIdx2sizeTab[i])
}

// SizeIdx2SizeCompute derives the same value as SizeIdx2Size purely by
// arithmetic on i (no array indexing), so the two can be compared for
// agreement.
func (sc *SizeClasses) SizeIdx2SizeCompute(i int) int {
	if i < 0 || i >= sc.nSizes {
		invariantViolation(sc.log, "SizeIdx2SizeCompute", fmt.Sprintf("index %d out of range [0,%d)", i, sc.nSizes))
	}
	if i < groupSize {
		return groupSizeFormula(log2Quantum, log2Quantum, i)
	}
	j := i - groupSize
	g := j/groupSize + 1
	nDelta := j%groupSize + 1
	log2Group := log2Quantum + log2SizeClassGroup + g - 1
	log2Delta := log2Quantum + g - 1
	return groupSizeFormula(log2Group, log2Delta, nDelta)
}

// Size2SizeIdx returns the size index of the smallest size class whose byte
// size is >= n, or NSizes() if n exceeds ChunkSize(). alignment, if nonzero,
// rounds n up to a multiple of alignment before the lookup (§4.1).
func (sc *SizeClasses) Size2SizeIdx(n, alignment int) int {
	if n < 1 {
		n = 1
	}
	if alignment > 0 {
		n = alignUp(n, alignment)
	}
	if n > sc.chunkSize {
		return sc.nSizes
	}
	if n <= sc.lookupMax {
		b := (n - 1) >> log2Quantum
		if b < 0 {
			b = 0
		}
		return int(sc.size2idxTab[b])
	}
	return sc.computeSizeIdx(n)
}

// computeSizeIdx is the closed-form inverse of SizeIdx2SizeCompute: given a
// byte size, find the smallest size index whose size is >= n, without
// touching any table.
func (sc *SizeClasses) computeSizeIdx(n int) int {
	const firstGroupMax = 1 << (log2Quantum + log2SizeClassGroup) // 64
	if n <= firstGroupMax {
		nDelta := ceilDiv(n, 1<<log2Quantum)
		if nDelta < 1 {
			nDelta = 1
		}
		return nDelta - 1
	}

	x := log2Ceil(n)
	g := x - (log2Quantum + log2SizeClassGroup)
	if g < 1 {
		g = 1
	}
	log2Group := log2Quantum + log2SizeClassGroup + g - 1
	log2Delta := log2Quantum + g - 1
	base := 1 << uint(log2Group)
	delta := 1 << uint(log2Delta)

	nDelta := ceilDiv(n-base, delta)
	if nDelta < 1 {
		nDelta = 1
	}
	if nDelta > groupSize {
		nDelta = groupSize
	}
	idx := groupSize + (g-1)*groupSize + (nDelta - 1)
	if idx >= sc.nSizes {
		idx = sc.nSizes - 1
	}
	return idx
}

// log2Ceil returns the smallest x such that 1<<x >= n, for n >= 1.
func log2Ceil(n int) int {
	if n <= 1 {
		return 0
	}
	return bits.Len(uint(n - 1))
}

func ceilDiv(a, b int) int {
	if a <= 0 {
		return 0
	}
	return (a + b - 1) / b
}

func alignUp(n, alignment int) int {
	return (n + alignment - 1) &^ (alignment - 1)
}

// NormalizeSize rounds n up to the byte size of its size class (§4.1).
func (sc *SizeClasses) NormalizeSize(n int) int {
	if n < 1 {
		n = 1
	}
	idx := sc.Size2SizeIdx(n, 0)
	if idx >= sc.nSizes {
		return n // huge allocation: not pooled, size is whatever was requested.
	}
	return sc.SizeIdx2Size(idx)
}

// PageIdx2Size is the O(1) table lookup from page index to byte size.
func (sc *SizeClasses) PageIdx2Size(i int) int {
	if i < 0 || i >= sc.nPSizes {
		invariantViolation(sc.log, "PageIdx2Size", fmt.Sprintf("page index %d out of range [0,%d)", i, sc.nPSizes))
	}
	return int(sc.pageIdx2sizeTab[i])
}

// Pages2PageIdx returns the smallest page index whose size is >= pages*PageSize().
func (sc *SizeClasses) Pages2PageIdx(pages int) int {
	return sc.pages2PageIdx(pages, true)
}

// Pages2PageIdxFloor returns the largest page index whose size is <= pages*PageSize().
func (sc *SizeClasses) Pages2PageIdxFloor(pages int) int {
	return sc.pages2PageIdx(pages, false)
}

func (sc *SizeClasses) pages2PageIdx(pages int, ceil bool) int {
	want := int32(pages * sc.pageSize)
	lo, hi := 0, sc.nPSizes-1
	// Binary search over the strictly increasing pageIdx2size table.
	for lo < hi {
		mid := (lo + hi) / 2
		if sc.pageIdx2sizeTab[mid] < want {
			lo = mid + 1
		} else {
			hi = mid
		}
	}
	if ceil {
		if sc.pageIdx2sizeTab[lo] < want && lo < sc.nPSizes-1 {
			lo++
		}
		return lo
	}
	if sc.pageIdx2sizeTab[lo] > want && lo > 0 {
		lo--
	}
	return lo
}
