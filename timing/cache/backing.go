package cache

import (
	"github.com/sarchlab/m0sim/emu"
)

// FlashBacking wraps the flash array of emu.Memory as a BackingStore.
// Line fills bypass the access observer so the cache does not see its own
// refills.
type FlashBacking struct {
	memory *emu.Memory
}

// NewFlashBacking creates a new FlashBacking adapter.
func NewFlashBacking(memory *emu.Memory) *FlashBacking {
	return &FlashBacking{memory: memory}
}

// Read fetches a line from flash.
func (f *FlashBacking) Read(addr uint32, size int) []byte {
	return f.memory.ReadFlash(addr-emu.FlashBase, size)
}
