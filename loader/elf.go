package loader

import (
	"debug/elf"
	"fmt"
	"io"
)

// loadELF collects the PT_LOAD segments of a 32-bit ARM ELF file into one
// image. Segments are placed by physical address so that initialised data
// lands at its flash load address rather than its SRAM run address.
func loadELF(path string) (*Image, error) {
	f, err := elf.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open ELF file: %w", err)
	}
	defer func() { _ = f.Close() }()

	if f.Class != elf.ELFCLASS32 {
		return nil, fmt.Errorf("not a 32-bit ELF file")
	}

	if f.Machine != elf.EM_ARM {
		return nil, fmt.Errorf("not an ARM ELF file (machine type: %v)", f.Machine)
	}

	var s span
	for _, phdr := range f.Progs {
		if phdr.Type != elf.PT_LOAD || phdr.Filesz == 0 {
			continue
		}

		data := make([]byte, phdr.Filesz)
		n, err := phdr.ReadAt(data, 0)
		if err != nil && err != io.EOF {
			return nil, fmt.Errorf("failed to read segment at 0x%x: %w", phdr.Paddr, err)
		}
		if uint64(n) != phdr.Filesz {
			return nil, fmt.Errorf("short read for segment at 0x%x: got %d bytes, expected %d",
				phdr.Paddr, n, phdr.Filesz)
		}

		s.write(uint32(phdr.Paddr), data)
	}

	if !s.set {
		return nil, fmt.Errorf("ELF file has no loadable data")
	}

	return s.image(FormatELF), nil
}
