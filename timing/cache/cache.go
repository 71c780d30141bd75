// Package cache models the NVM controller read cache using Akita cache
// components.
//
// Flash on the ATSAMD21 needs a wait state at 48 MHz. The NVM controller
// hides it behind a small read cache; this package counts the hits and the
// stall cycles the misses would cost. It observes the emulator's flash
// traffic and never changes what the emulator reads.
package cache

import (
	akitacache "github.com/sarchlab/akita/v4/mem/cache"

	"github.com/sarchlab/m0sim/emu"
)

// Config holds cache configuration parameters.
type Config struct {
	// Size in bytes
	Size int
	// Associativity (number of ways)
	Associativity int
	// BlockSize in bytes (cache line size)
	BlockSize int
	// HitLatency in wait states
	HitLatency uint64
	// MissLatency in wait states (flash read wait states)
	MissLatency uint64
}

// DefaultNVMConfig returns the NVM read cache configuration:
// - 8 lines of 64 bits, direct mapped
// - one flash wait state at 48 MHz
func DefaultNVMConfig() Config {
	return Config{
		Size:          64,
		Associativity: 1,
		BlockSize:     8,
		HitLatency:    0,
		MissLatency:   1,
	}
}

// AccessResult contains the result of a cache access.
type AccessResult struct {
	// Hit indicates whether the access was a cache hit.
	Hit bool
	// Latency is the number of wait states this access takes.
	Latency uint64
	// Data is the data read.
	Data uint32
	// Evicted is true if a valid line was replaced.
	Evicted bool
	// EvictedAddr is the address of the replaced line (if Evicted is true).
	EvictedAddr uint32
}

// Cache represents the flash read cache using Akita cache components.
type Cache struct {
	config Config

	// Akita cache directory for tag/state management
	directory *akitacache.DirectoryImpl

	// Data storage - indexed by (setID * associativity + wayID)
	dataStore [][]byte

	stats Statistics

	backing BackingStore
}

// Statistics holds cache performance statistics.
type Statistics struct {
	Fetches   uint64
	Reads     uint64
	Hits      uint64
	Misses    uint64
	Evictions uint64
	// Stalls is the total wait states charged to flash accesses.
	Stalls uint64
}

// HitRate returns hits over accesses, or 0 before the first access.
func (s Statistics) HitRate() float64 {
	total := s.Hits + s.Misses
	if total == 0 {
		return 0
	}
	return float64(s.Hits) / float64(total)
}

// BackingStore is the flash array behind the cache.
type BackingStore interface {
	// Read fetches size bytes starting at addr.
	Read(addr uint32, size int) []byte
}

// New creates a new cache with the given configuration.
func New(config Config, backing BackingStore) *Cache {
	numSets := config.Size / (config.Associativity * config.BlockSize)
	totalBlocks := numSets * config.Associativity

	dataStore := make([][]byte, totalBlocks)
	for i := range dataStore {
		dataStore[i] = make([]byte, config.BlockSize)
	}

	return &Cache{
		config: config,
		directory: akitacache.NewDirectory(
			numSets,
			config.Associativity,
			config.BlockSize,
			akitacache.NewLRUVictimFinder(),
		),
		dataStore: dataStore,
		backing:   backing,
	}
}

// Config returns the cache configuration.
func (c *Cache) Config() Config {
	return c.config
}

// Stats returns cache statistics.
func (c *Cache) Stats() Statistics {
	return c.stats
}

// ResetStats clears cache statistics.
func (c *Cache) ResetStats() {
	c.stats = Statistics{}
}

// ObserveAccess implements emu.AccessObserver. Flash fetches and reads go
// through the cache; SRAM traffic and writes are ignored.
func (c *Cache) ObserveAccess(kind emu.AccessKind, addr uint32, size uint8) {
	if addr >= emu.SRAMBase || kind == emu.AccessWrite {
		return
	}

	if kind == emu.AccessFetch {
		c.stats.Fetches++
	} else {
		c.stats.Reads++
	}

	c.Read(addr, int(size))
}

func (c *Cache) blockIndex(block *akitacache.Block) int {
	return block.SetID*c.config.Associativity + block.WayID
}

func (c *Cache) blockAddr(addr uint32) uint64 {
	bs := uint64(c.config.BlockSize)
	return uint64(addr) / bs * bs
}

// Read performs a cache read. An access that straddles a line boundary is
// charged to the first line only.
func (c *Cache) Read(addr uint32, size int) AccessResult {
	blockAddr := c.blockAddr(addr)

	block := c.directory.Lookup(0, blockAddr)
	if block != nil && block.IsValid {
		c.stats.Hits++
		c.stats.Stalls += c.config.HitLatency
		c.directory.Visit(block)

		offset := uint64(addr) - blockAddr
		return AccessResult{
			Hit:     true,
			Latency: c.config.HitLatency,
			Data:    extractData(c.dataStore[c.blockIndex(block)], offset, size),
		}
	}

	c.stats.Misses++
	c.stats.Stalls += c.config.MissLatency
	return c.handleMiss(addr, size)
}

func (c *Cache) handleMiss(addr uint32, size int) AccessResult {
	result := AccessResult{
		Hit:     false,
		Latency: c.config.MissLatency,
	}

	blockAddr := c.blockAddr(addr)

	victim := c.directory.FindVictim(blockAddr)
	if victim == nil {
		return result
	}

	victimData := c.dataStore[c.blockIndex(victim)]

	if victim.IsValid {
		c.stats.Evictions++
		result.Evicted = true
		result.EvictedAddr = uint32(victim.Tag)
	}

	if c.backing != nil {
		copy(victimData, c.backing.Read(uint32(blockAddr), c.config.BlockSize))
	} else {
		for i := range victimData {
			victimData[i] = 0
		}
	}

	victim.Tag = blockAddr
	victim.IsValid = true
	victim.IsDirty = false

	result.Data = extractData(victimData, uint64(addr)-blockAddr, size)

	c.directory.Visit(victim)

	return result
}

// Invalidate marks the line holding addr as invalid.
func (c *Cache) Invalidate(addr uint32) {
	block := c.directory.Lookup(0, c.blockAddr(addr))
	if block != nil && block.IsValid {
		block.IsValid = false
	}
}

// InvalidateAll drops every line, as after flash is reprogrammed.
func (c *Cache) InvalidateAll() {
	for _, set := range c.directory.GetSets() {
		for _, block := range set.Blocks {
			block.IsValid = false
			block.IsDirty = false
		}
	}
}

// Reset invalidates all lines and clears statistics.
func (c *Cache) Reset() {
	c.directory.Reset()
	c.stats = Statistics{}
}

// extractData extracts a little-endian value from a line. Bytes past the
// end of the line read as 0.
func extractData(data []byte, offset uint64, size int) uint32 {
	var result uint32
	for i := 0; i < size && int(offset)+i < len(data); i++ {
		result |= uint32(data[int(offset)+i]) << (i * 8)
	}
	return result
}
