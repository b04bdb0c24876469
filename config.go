package bytepool

import (
	"fmt"
	"runtime"

	"github.com/BurntSushi/toml"
	"github.com/pbnjay/memory"
)

// Config holds the façade's startup options.
// Zero-value fields are not valid configuration; build one with
// DefaultConfig and override individual fields, or load one with LoadTOML.
type Config struct {
	NumHeapArenas   int
	NumDirectArenas int

	PageSize int
	MaxOrder int // chunkSize = pageSize << maxOrder

	SmallCacheSize int
	NormalCacheSize int

	MaxCachedBufferCapacity int

	UseCacheForAllThreads bool

	DirectMemoryCacheAlignment int

	CacheTrimInterval       int // trim every N allocations
	CacheTrimIntervalMillis int // not read by the allocator: there is no timer-driven trim
}

const (
	defaultPageSize                = 8 * 1024
	defaultMaxOrder                = 11 // chunkSize = 8KiB << 11 = 16MiB
	defaultSmallCacheSize          = 256
	defaultNormalCacheSize         = 64
	defaultMaxCachedBufferCapacity = 32 * 1024
	defaultCacheTrimInterval       = 8192
	// chunkSizeDivisorForArenaCount mirrors the "maxHeap/chunkSize/6" default
	// formula: reserve roughly a sixth of detected memory for
	// pooling headroom rather than trying to claim all of it up front.
	chunkSizeDivisorForArenaCount = 6
)

// DefaultConfig fills every option using host CPU count and total memory,
// per the defaulting formulas below.
func DefaultConfig() *Config {
	ensureGOMAXPROCS()
	cpus := runtime.GOMAXPROCS(0)
	total := int(memory.TotalMemory())

	chunkSize := defaultPageSize << defaultMaxOrder
	maxArenasByMemory := total / chunkSize / chunkSizeDivisorForArenaCount
	numArenas := 2 * cpus
	if maxArenasByMemory < numArenas {
		numArenas = maxArenasByMemory
	}
	if numArenas < 1 {
		numArenas = 1
	}

	return &Config{
		NumHeapArenas:               numArenas,
		NumDirectArenas:             numArenas,
		PageSize:                    defaultPageSize,
		MaxOrder:                    defaultMaxOrder,
		SmallCacheSize:              defaultSmallCacheSize,
		NormalCacheSize:             defaultNormalCacheSize,
		MaxCachedBufferCapacity:     defaultMaxCachedBufferCapacity,
		UseCacheForAllThreads:       true,
		DirectMemoryCacheAlignment:  0,
		CacheTrimInterval:           defaultCacheTrimInterval,
		CacheTrimIntervalMillis:     0,
	}
}

// Validate enforces the invariants every field must satisfy before use.
func (c *Config) Validate() error {
	if !isPowerOfTwo(c.PageSize) || c.PageSize < 4096 {
		return fmt.Errorf("%w: pageSize %d must be a power of two >= 4096", ErrConfigInvalid, c.PageSize)
	}
	if c.MaxOrder < 0 || c.MaxOrder > 14 {
		return fmt.Errorf("%w: maxOrder %d must be in [0, 14]", ErrConfigInvalid, c.MaxOrder)
	}
	if c.DirectMemoryCacheAlignment != 0 {
		if !isPowerOfTwo(c.DirectMemoryCacheAlignment) || c.DirectMemoryCacheAlignment > c.PageSize {
			return fmt.Errorf("%w: directMemoryCacheAlignment %d must be 0 or a power of two <= pageSize", ErrConfigInvalid, c.DirectMemoryCacheAlignment)
		}
	}
	if c.NumHeapArenas < 0 || c.NumDirectArenas < 0 {
		return fmt.Errorf("%w: arena counts must be >= 0", ErrConfigInvalid)
	}
	if c.SmallCacheSize < 0 || c.NormalCacheSize < 0 {
		return fmt.Errorf("%w: cache sizes must be >= 0", ErrConfigInvalid)
	}
	return nil
}

// ChunkSize derives chunkSize = pageSize << maxOrder.
func (c *Config) ChunkSize() int {
	return c.PageSize << uint(c.MaxOrder)
}

// LoadTOML decodes a TOML file over DefaultConfig's values (a partial
// override: fields absent from the file keep their default) and validates
// the result.
func LoadTOML(path string) (*Config, error) {
	cfg := DefaultConfig()
	if _, err := toml.DecodeFile(path, cfg); err != nil {
		return nil, fmt.Errorf("bytepool: decoding config %s: %w", path, err)
	}
	if err := cfg.Validate(); err != nil {
		// No Facade exists yet to own a caller-supplied logger at this
		// point, so this path logs through a no-op; NewFacade logs again,
		// for real, if this cfg is then handed to it.
		newNopLogger().configInvalid(err)
		return nil, err
	}
	return cfg, nil
}
