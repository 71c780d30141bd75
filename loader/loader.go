// Package loader provides firmware image loading for Thumb microcontrollers.
package loader

import (
	"bytes"
	"fmt"
	"os"
)

// Format is the on-disk encoding of a firmware image.
type Format uint8

// Supported image formats.
const (
	FormatBinary Format = iota
	FormatHex
	FormatELF
)

func (f Format) String() string {
	switch f {
	case FormatHex:
		return "ihex"
	case FormatELF:
		return "elf"
	}
	return "binary"
}

// Image is a contiguous block of firmware bytes.
type Image struct {
	// Data holds the image contents. Gaps between records or segments are
	// filled with the erased flash value 0xFF.
	Data []byte
	// Base is the address of Data[0]. Raw binaries carry no address and
	// report 0; the caller picks the load offset.
	Base uint32
	// Format is the encoding the image was decoded from.
	Format Format
}

// End returns the address one past the last byte of the image.
func (img *Image) End() uint32 {
	return img.Base + uint32(len(img.Data))
}

var elfMagic = []byte{0x7f, 'E', 'L', 'F'}

// Load reads the firmware image at path. ELF and Intel HEX files are
// recognised by content; anything else is treated as a raw binary.
func Load(path string) (*Image, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open image: %w", err)
	}

	if len(data) == 0 {
		return nil, fmt.Errorf("empty image %s", path)
	}

	switch {
	case bytes.HasPrefix(data, elfMagic):
		img, err := loadELF(path)
		if err != nil {
			return nil, err
		}
		return img, nil
	case bytes.HasPrefix(bytes.TrimLeft(data, " \t\r\n"), []byte{':'}):
		img, err := DecodeHex(bytes.NewReader(data))
		if err != nil {
			return nil, fmt.Errorf("decoding %s: %w", path, err)
		}
		return img, nil
	}

	return &Image{Data: data, Format: FormatBinary}, nil
}

// span grows an image buffer so that [addr, addr+n) is covered, filling new
// space with 0xFF.
type span struct {
	base uint32
	data []byte
	set  bool
}

func (s *span) write(addr uint32, b []byte) {
	if len(b) == 0 {
		return
	}

	if !s.set {
		s.base = addr
		s.set = true
	}

	if addr < s.base {
		grow := bytes.Repeat([]byte{0xFF}, int(s.base-addr))
		s.data = append(grow, s.data...)
		s.base = addr
	}

	end := int(addr-s.base) + len(b)
	for len(s.data) < end {
		s.data = append(s.data, 0xFF)
	}

	copy(s.data[addr-s.base:], b)
}

func (s *span) image(f Format) *Image {
	return &Image{Data: s.data, Base: s.base, Format: f}
}
