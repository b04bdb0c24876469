package bytepool

import (
	"errors"
	"testing"
)

func TestNewFacadeDefaultConfig(t *testing.T) {
	f, err := NewFacade(nil)
	if err != nil {
		t.Fatalf("NewFacade(nil): %v", err)
	}
	if len(f.heapArenas) == 0 {
		t.Fatal("expected at least one heap arena")
	}
}

func TestNewFacadeRejectsInvalidConfig(t *testing.T) {
	cfg := DefaultConfig()
	cfg.PageSize = 100
	if _, err := NewFacade(cfg); !errors.Is(err, ErrConfigInvalid) {
		t.Fatalf("NewFacade with an invalid config = %v, want ErrConfigInvalid", err)
	}
}

func TestFacadeAllocateRoutesHeapVsDirect(t *testing.T) {
	cfg := DefaultConfig()
	cfg.NumHeapArenas = 1
	cfg.NumDirectArenas = 1
	f, err := NewFacade(cfg)
	if err != nil {
		t.Fatalf("NewFacade: %v", err)
	}

	hv, err := f.Allocate(64, 64, false)
	if err != nil {
		t.Fatalf("Allocate(heap): %v", err)
	}
	if hv.arena.direct {
		t.Fatal("preferDirect=false should allocate from a heap arena")
	}
	if err := f.Free(hv); err != nil {
		t.Fatalf("Free: %v", err)
	}

	dv, err := f.Allocate(64, 64, true)
	if err != nil {
		t.Fatalf("Allocate(direct): %v", err)
	}
	if !dv.arena.direct {
		t.Fatal("preferDirect=true should allocate from a direct arena")
	}
	if err := f.Free(dv); err != nil {
		t.Fatalf("Free: %v", err)
	}
}

func TestFacadeAllocateWithoutThreadCache(t *testing.T) {
	cfg := DefaultConfig()
	cfg.NumHeapArenas = 1
	cfg.UseCacheForAllThreads = false
	f, err := NewFacade(cfg)
	if err != nil {
		t.Fatalf("NewFacade: %v", err)
	}

	v, err := f.Allocate(32, 32, false)
	if err != nil {
		t.Fatalf("Allocate: %v", err)
	}
	if v.threadCache != nil {
		t.Fatal("a view allocated with UseCacheForAllThreads=false should have no thread cache")
	}
	if err := f.Free(v); err != nil {
		t.Fatalf("Free: %v", err)
	}
}

func TestLeastLoadedArenaPicksLowerCount(t *testing.T) {
	a1 := &Arena{}
	a2 := &Arena{}
	a2.numThreadCaches = 5
	if got := leastLoadedArena([]*Arena{a2, a1}); got != a1 {
		t.Fatal("leastLoadedArena should pick the arena with the smaller count")
	}
}

func TestFacadeCalculateNewCapacityFourMiBExact(t *testing.T) {
	f, err := NewFacade(DefaultConfig())
	if err != nil {
		t.Fatalf("NewFacade: %v", err)
	}
	const fourMiB = 4 * 1024 * 1024
	if got := f.CalculateNewCapacity(fourMiB, fourMiB); got != fourMiB {
		t.Fatalf("CalculateNewCapacity(4MiB, 4MiB) = %d, want %d", got, fourMiB)
	}
}
