package bytepool_test

import (
	"testing"

	"github.com/gopool/bytepool"
)

// BenchmarkConcurrencyPatterns compares sequential vs parallel use of a
// single shared Facade, with and without the per-goroutine thread cache.
func BenchmarkConcurrencyPatterns(b *testing.B) {
	b.Run("Sequential/ThreadCache", func(b *testing.B) {
		f := newBenchFacade(b)
		b.ResetTimer()
		for i := 0; i < b.N; i++ {
			v, err := f.Allocate(64, 64, false)
			if err != nil {
				b.Fatalf("Allocate: %v", err)
			}
			_ = f.Free(v)
		}
	})

	b.Run("Parallel/ThreadCache", func(b *testing.B) {
		f := newBenchFacade(b)
		b.ResetTimer()
		b.RunParallel(func(pb *testing.PB) {
			for pb.Next() {
				v, err := f.Allocate(64, 64, false)
				if err != nil {
					b.Fatalf("Allocate: %v", err)
				}
				_ = f.Free(v)
			}
		})
	})

	b.Run("Parallel/NoThreadCache", func(b *testing.B) {
		cfg := bytepool.DefaultConfig()
		cfg.UseCacheForAllThreads = false
		f, err := bytepool.NewFacade(cfg)
		if err != nil {
			b.Fatalf("NewFacade: %v", err)
		}
		b.ResetTimer()
		b.RunParallel(func(pb *testing.PB) {
			for pb.Next() {
				v, err := f.Allocate(64, 64, false)
				if err != nil {
					b.Fatalf("Allocate: %v", err)
				}
				_ = f.Free(v)
			}
		})
	})

	// Single arena vs the default multi-arena sharding, holding goroutine
	// count fixed: isolates how much of the win is sharding vs caching.
	b.Run("Parallel/SingleArena", func(b *testing.B) {
		cfg := bytepool.DefaultConfig()
		cfg.NumHeapArenas = 1
		f, err := bytepool.NewFacade(cfg)
		if err != nil {
			b.Fatalf("NewFacade: %v", err)
		}
		b.ResetTimer()
		b.RunParallel(func(pb *testing.PB) {
			for pb.Next() {
				v, err := f.Allocate(64, 64, false)
				if err != nil {
					b.Fatalf("Allocate: %v", err)
				}
				_ = f.Free(v)
			}
		})
	})
}

// BenchmarkRetainRelease measures Retain/Release CAS contention when many
// goroutines share references to the same views.
func BenchmarkRetainRelease(b *testing.B) {
	f := newBenchFacade(b)
	v, err := f.Allocate(64, 64, false)
	if err != nil {
		b.Fatalf("Allocate: %v", err)
	}
	b.ResetTimer()
	b.RunParallel(func(pb *testing.PB) {
		for pb.Next() {
			v.Retain()
			_ = v.Release()
		}
	})
	b.StopTimer()
	_ = f.Free(v)
}
