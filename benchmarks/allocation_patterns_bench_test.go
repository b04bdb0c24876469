package bytepool_test

import (
	"fmt"
	"testing"

	"github.com/gopool/bytepool"
)

func newBenchFacade(b *testing.B) *bytepool.Facade {
	b.Helper()
	f, err := bytepool.NewFacade(bytepool.DefaultConfig())
	if err != nil {
		b.Fatalf("NewFacade: %v", err)
	}
	return f
}

// BenchmarkSmallAllocations covers subpage-sized requests (8-64 bytes),
// common for headers, small protocol frames, and struct-like payloads.
func BenchmarkSmallAllocations(b *testing.B) {
	sizes := []int{8, 16, 32, 64}

	for _, size := range sizes {
		b.Run(fmt.Sprintf("Pooled_%dB", size), func(b *testing.B) {
			f := newBenchFacade(b)
			b.ResetTimer()
			for i := 0; i < b.N; i++ {
				v, err := f.Allocate(size, size, false)
				if err != nil {
					b.Fatalf("Allocate: %v", err)
				}
				_ = f.Free(v)
			}
		})

		b.Run(fmt.Sprintf("Builtin_%dB", size), func(b *testing.B) {
			b.ResetTimer()
			for i := 0; i < b.N; i++ {
				_ = make([]byte, size)
			}
		})
	}
}

// BenchmarkMediumAllocations covers mid-sized Small requests (128 B-1 KiB):
// still below the page size, so they are served by the subpage allocator.
func BenchmarkMediumAllocations(b *testing.B) {
	sizes := []int{128, 256, 512, 1024}

	for _, size := range sizes {
		b.Run(fmt.Sprintf("Pooled_%dB", size), func(b *testing.B) {
			f := newBenchFacade(b)
			b.ResetTimer()
			for i := 0; i < b.N; i++ {
				v, err := f.Allocate(size, size, false)
				if err != nil {
					b.Fatalf("Allocate: %v", err)
				}
				_ = f.Free(v)
			}
		})

		b.Run(fmt.Sprintf("Builtin_%dB", size), func(b *testing.B) {
			b.ResetTimer()
			for i := 0; i < b.N; i++ {
				_ = make([]byte, size)
			}
		})
	}
}

// BenchmarkLargeAllocations covers multi-page Normal requests, where the
// run allocator must walk more than one candidate chunk list.
func BenchmarkLargeAllocations(b *testing.B) {
	sizes := []int{64 * 1024, 256 * 1024, 1024 * 1024}

	for _, size := range sizes {
		b.Run(fmt.Sprintf("Pooled_%dB", size), func(b *testing.B) {
			f := newBenchFacade(b)
			b.ResetTimer()
			for i := 0; i < b.N; i++ {
				v, err := f.Allocate(size, size, false)
				if err != nil {
					b.Fatalf("Allocate: %v", err)
				}
				_ = f.Free(v)
			}
		})

		b.Run(fmt.Sprintf("Builtin_%dB", size), func(b *testing.B) {
			b.ResetTimer()
			for i := 0; i < b.N; i++ {
				_ = make([]byte, size)
			}
		})
	}
}

// BenchmarkHugeAllocations covers requests above the largest Normal size
// class, which bypass chunks entirely via the unpooled path.
func BenchmarkHugeAllocations(b *testing.B) {
	const size = 32 * 1024 * 1024

	b.Run("Pooled", func(b *testing.B) {
		f := newBenchFacade(b)
		b.ResetTimer()
		for i := 0; i < b.N; i++ {
			v, err := f.Allocate(size, size, false)
			if err != nil {
				b.Fatalf("Allocate: %v", err)
			}
			_ = f.Free(v)
		}
	})

	b.Run("Builtin", func(b *testing.B) {
		b.ResetTimer()
		for i := 0; i < b.N; i++ {
			_ = make([]byte, size)
		}
	})
}

// BenchmarkGrowingBuffer models repeated CalculateNewCapacity/Reallocate
// calls, the pattern a buffered writer uses as it outgrows its capacity.
func BenchmarkGrowingBuffer(b *testing.B) {
	f := newBenchFacade(b)
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		v, err := f.Allocate(16, 16, false)
		if err != nil {
			b.Fatalf("Allocate: %v", err)
		}
		capacity := 16
		for capacity < 4096 {
			next := f.CalculateNewCapacity(capacity*2, 4096)
			v, err = f.Reallocate(v, next, true)
			if err != nil {
				b.Fatalf("Reallocate: %v", err)
			}
			capacity = next
		}
		_ = f.Free(v)
	}
}
