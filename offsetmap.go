package bytepool

import "math/bits"

// offsetMap is the specialized open-addressed hash map from a run's starting
// page offset (uint32) to its packed Handle.
//
// Key 0 is stored in a dedicated slot because 0 also marks an empty cell in
// the probe array; every other key probes linearly in steps of one
// key/value pair, rehashing into a doubled table whenever a probe would run
// longer than log2(capacity).
type offsetMap struct {
	keys     []uint32
	vals     []uint64
	zeroSet  bool
	zeroVal  uint64
	size     int
	capacity int // power of two, == len(keys) == len(vals)
}

const offsetMapMinCapacity = 16

func newOffsetMap() *offsetMap {
	m := &offsetMap{capacity: offsetMapMinCapacity}
	m.keys = make([]uint32, m.capacity)
	m.vals = make([]uint64, m.capacity)
	return m
}

// murmur3Mix is the 64-bit finalizer mix from MurmurHash3, used here purely
// to spread uint32 keys across the probe array.
func murmur3Mix(k uint64) uint64 {
	k ^= k >> 33
	k *= 0xff51afd7ed558ccd
	k ^= k >> 33
	k *= 0xc4ceb9fe1a85ec53
	k ^= k >> 33
	return k
}

func (m *offsetMap) slot(key uint32) int {
	h := murmur3Mix(uint64(key))
	return int(h) & (m.capacity - 1)
}

func (m *offsetMap) maxProbe() int {
	p := bits.Len(uint(m.capacity))
	if p < 1 {
		p = 1
	}
	return p
}

// put inserts or overwrites key -> val. It grows and rehashes if the probe
// distance would exceed maxProbe, then scrubs any duplicate produced by the
// rehash's own insertions.
func (m *offsetMap) put(key uint32, val uint64) {
	if key == 0 {
		if !m.zeroSet {
			m.size++
		}
		m.zeroSet = true
		m.zeroVal = val
		return
	}

	for {
		idx := m.slot(key)
		probe := m.maxProbe()
		inserted := false
		for i := 0; i < probe; i++ {
			at := (idx + i) & (m.capacity - 1)
			if m.keys[at] == key {
				m.vals[at] = val
				return
			}
			if m.keys[at] == 0 {
				m.keys[at] = key
				m.vals[at] = val
				m.size++
				inserted = true
				break
			}
		}
		if inserted {
			m.scrubDuplicates(key)
			return
		}
		m.grow()
	}
}

// scrubDuplicates removes any stale duplicate entries for key left behind
// by a previous rehash that reinserted key into a different slot.
func (m *offsetMap) scrubDuplicates(key uint32) {
	canonical := m.slot(key)
	found := false
	probe := m.maxProbe()
	for i := 0; i < probe; i++ {
		at := (canonical + i) & (m.capacity - 1)
		if m.keys[at] == key {
			if found {
				m.keys[at] = 0
				m.vals[at] = 0
				m.size--
			}
			found = true
		}
	}
}

// get returns the value for key, or sentinel if absent.
func (m *offsetMap) get(key uint32, sentinel uint64) uint64 {
	if key == 0 {
		if m.zeroSet {
			return m.zeroVal
		}
		return sentinel
	}
	idx := m.slot(key)
	probe := m.maxProbe()
	for i := 0; i < probe; i++ {
		at := (idx + i) & (m.capacity - 1)
		if m.keys[at] == key {
			return m.vals[at]
		}
		if m.keys[at] == 0 {
			break
		}
	}
	return sentinel
}

// remove deletes key, if present.
func (m *offsetMap) remove(key uint32) {
	if key == 0 {
		m.zeroSet = false
		m.zeroVal = 0
		return
	}
	idx := m.slot(key)
	probe := m.maxProbe()
	for i := 0; i < probe; i++ {
		at := (idx + i) & (m.capacity - 1)
		if m.keys[at] == key {
			m.keys[at] = 0
			m.vals[at] = 0
			m.size--
			return
		}
		if m.keys[at] == 0 {
			return
		}
	}
}

func (m *offsetMap) grow() {
	oldKeys, oldVals := m.keys, m.vals
	m.capacity *= 2
	m.keys = make([]uint32, m.capacity)
	m.vals = make([]uint64, m.capacity)
	m.size = boolToInt(m.zeroSet)
	for i, k := range oldKeys {
		if k != 0 {
			m.putRehash(k, oldVals[i])
		}
	}
}

// putRehash inserts during grow(), where the caller guarantees no duplicate
// keys exist yet (so it skips the scrub pass put() needs for the
// steady-state case).
func (m *offsetMap) putRehash(key uint32, val uint64) {
	idx := m.slot(key)
	probe := m.maxProbe()
	for i := 0; i < probe; i++ {
		at := (idx + i) & (m.capacity - 1)
		if m.keys[at] == 0 {
			m.keys[at] = key
			m.vals[at] = val
			m.size++
			return
		}
	}
	// Extremely unlikely with a freshly-doubled table; grow once more.
	m.capacity *= 2
	newKeys := make([]uint32, m.capacity)
	newVals := make([]uint64, m.capacity)
	oldKeys, oldVals := m.keys, m.vals
	m.keys, m.vals = newKeys, newVals
	for i, k := range oldKeys {
		if k != 0 {
			m.putRehash(k, oldVals[i])
		}
	}
	m.putRehash(key, val)
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
