package bytepool

import (
	"fmt"
	"sync"
	"sync/atomic"

	"go.uber.org/automaxprocs/maxprocs"
)

const (
	defaultLookupMax = 4096
	fourMiB          = 4 * 1024 * 1024
	startCapacity    = 64
)

var maxprocsOnce sync.Once

// ensureGOMAXPROCS sets GOMAXPROCS from the host's cgroup CPU quota the
// first time NewFacade or DefaultConfig runs, so DefaultConfig's per-CPU arena count
// reflects a container's actual quota rather than the whole machine's
// core count. Safe to call repeatedly; only the first call has an effect.
func ensureGOMAXPROCS() {
	maxprocsOnce.Do(func() {
		_, _ = maxprocs.Set(maxprocs.Logger(func(string, ...interface{}) {}))
	})
}

// Allocator is the public allocator API.
type Allocator interface {
	Allocate(reqCap, maxCap int, preferDirect bool) (*BufferView, error)
	Free(*BufferView) error
	Reallocate(view *BufferView, newCap int, freeOld bool) (*BufferView, error)
	CalculateNewCapacity(minNewCap, maxCap int) int
	Metric() Metrics
}

var _ Allocator = (*Facade)(nil)

// Facade is the Allocator implementation: a
// fixed array of heap arenas and a fixed array of direct arenas, plus the
// per-goroutine thread-cache registry. Construction picks defaults from
// host CPU/memory via Config when the caller doesn't override them, then
// owns many arenas rather than one.
//
// Go exposes no portable goroutine-local storage, so "a thread's first
// allocation establishes its cache" is modeled with
// sync.Pool: Pool.Get/Put is scheduled per-P by the runtime, which is the
// same affinity sync.Pool itself relies on to make its own per-P caches
// effective, and is the closest idiomatic Go analogue to Netty's real
// thread-local cache. A ThreadCache that the pool evicts under memory
// pressure is simply garbage collected along with its entries rather than
// drained through a thread-exit hook, since Go has no such hook to attach
// to either.
type Facade struct {
	cfg *Config
	log logger

	heapArenas   []*Arena
	directArenas []*Arena

	heapPool   sync.Pool
	directPool sync.Pool
}

// NewFacade builds a Facade from cfg (DefaultConfig() if nil), applying any
// Options, and constructs every configured arena up front.
func NewFacade(cfg *Config, opts ...Option) (*Facade, error) {
	ensureGOMAXPROCS()
	if cfg == nil {
		cfg = DefaultConfig()
	}

	f := &Facade{cfg: cfg, log: newNopLogger()}
	for _, opt := range opts {
		opt(f)
	}

	if err := cfg.Validate(); err != nil {
		f.log.configInvalid(err)
		return nil, err
	}

	sc, err := NewSizeClasses(cfg.PageSize, cfg.ChunkSize(), defaultLookupMax)
	if err != nil {
		err = fmt.Errorf("%w: %v", ErrConfigInvalid, err)
		f.log.configInvalid(err)
		return nil, err
	}
	sc.withLogger(f.log)

	for i := 0; i < cfg.NumHeapArenas; i++ {
		a := newArena(sc, false, 0, f.log)
		f.heapArenas = append(f.heapArenas, a)
		f.log.arenaCreated("heap", i)
	}
	for i := 0; i < cfg.NumDirectArenas; i++ {
		a := newArena(sc, true, cfg.DirectMemoryCacheAlignment, f.log)
		f.directArenas = append(f.directArenas, a)
		f.log.arenaCreated("direct", i)
	}

	f.heapPool.New = func() interface{} {
		if len(f.heapArenas) == 0 {
			return nil
		}
		return newThreadCache(leastLoadedArena(f.heapArenas), f.cfg)
	}
	f.directPool.New = func() interface{} {
		if len(f.directArenas) == 0 {
			return nil
		}
		return newThreadCache(leastLoadedArena(f.directArenas), f.cfg)
	}

	return f, nil
}

func leastLoadedArena(arenas []*Arena) *Arena {
	best := arenas[0]
	bestLoad := atomic.LoadInt32(&best.numThreadCaches)
	for _, a := range arenas[1:] {
		load := atomic.LoadInt32(&a.numThreadCaches)
		if load < bestLoad {
			best, bestLoad = a, load
		}
	}
	return best
}

// Allocate implements the Allocator interface.
func (f *Facade) Allocate(reqCap, maxCap int, preferDirect bool) (*BufferView, error) {
	arenas, pool := f.heapArenas, &f.heapPool
	if preferDirect {
		arenas, pool = f.directArenas, &f.directPool
	}
	if len(arenas) == 0 {
		kind := "heap"
		if preferDirect {
			kind = "direct"
		}
		return nil, fmt.Errorf("%w: no %s arenas configured", ErrConfigInvalid, kind)
	}

	if !f.cfg.UseCacheForAllThreads {
		return leastLoadedArena(arenas).allocate(nil, reqCap, maxCap)
	}

	v := pool.Get()
	tc, _ := v.(*ThreadCache)
	if tc == nil {
		return leastLoadedArena(arenas).allocate(nil, reqCap, maxCap)
	}
	bv, err := tc.arena.allocate(tc, reqCap, maxCap)
	pool.Put(tc)
	return bv, err
}

// Free implements the Allocator interface: releases the caller's reference,
// freeing the underlying allocation when it reaches zero.
func (f *Facade) Free(v *BufferView) error {
	return v.Release()
}

// Reallocate implements the Allocator interface.
func (f *Facade) Reallocate(view *BufferView, newCap int, freeOld bool) (*BufferView, error) {
	return view.arena.reallocate(view, newCap, freeOld)
}

// CalculateNewCapacity implements the buffer-growth policy.
func (f *Facade) CalculateNewCapacity(minNewCap, maxCap int) int {
	if minNewCap == fourMiB {
		return fourMiB
	}
	if minNewCap > fourMiB {
		newCap := ceilDiv(minNewCap, fourMiB)*fourMiB + fourMiB
		if newCap > maxCap {
			newCap = maxCap
		}
		return newCap
	}
	newCap := startCapacity
	for newCap < minNewCap {
		newCap *= 2
	}
	if newCap > maxCap {
		newCap = maxCap
	}
	return newCap
}

// Metric implements the Allocator interface.
func (f *Facade) Metric() Metrics {
	m := Metrics{
		NumHeapArenas:   len(f.heapArenas),
		NumDirectArenas: len(f.directArenas),
	}
	for _, a := range f.heapArenas {
		m.Arenas = append(m.Arenas, a.snapshot())
	}
	for _, a := range f.directArenas {
		m.Arenas = append(m.Arenas, a.snapshot())
	}
	return m
}
