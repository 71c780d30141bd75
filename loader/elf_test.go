package loader_test

import (
	"encoding/binary"
	"os"
	"path/filepath"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/sarchlab/m0sim/loader"
)

type elfSegment struct {
	vaddr, paddr uint32
	data         []byte
}

var _ = Describe("Load", func() {
	var tempDir string

	BeforeEach(func() {
		var err error
		tempDir, err = os.MkdirTemp("", "loader-test")
		Expect(err).NotTo(HaveOccurred())
	})

	AfterEach(func() {
		_ = os.RemoveAll(tempDir)
	})

	write := func(name string, data []byte) string {
		path := filepath.Join(tempDir, name)
		Expect(os.WriteFile(path, data, 0644)).To(Succeed())
		return path
	}

	Context("with an ARM ELF file", func() {
		It("should load a single segment at its physical address", func() {
			code := []byte{0x80, 0x20, 0xFE, 0xE7}
			path := write("fw.elf", buildARMELF(40, 0x2000, []elfSegment{
				{vaddr: 0x2000, paddr: 0x2000, data: code},
			}))

			img, err := loader.Load(path)
			Expect(err).NotTo(HaveOccurred())
			Expect(img.Format).To(Equal(loader.FormatELF))
			Expect(img.Base).To(Equal(uint32(0x2000)))
			Expect(img.Data).To(Equal(code))
		})

		It("should place initialised data by load address", func() {
			code := []byte{0x01, 0x02, 0x03, 0x04}
			data := []byte{0xAA, 0xBB}
			path := write("fw.elf", buildARMELF(40, 0x2000, []elfSegment{
				{vaddr: 0x2000, paddr: 0x2000, data: code},
				{vaddr: 0x20000000, paddr: 0x2008, data: data},
			}))

			img, err := loader.Load(path)
			Expect(err).NotTo(HaveOccurred())
			Expect(img.Base).To(Equal(uint32(0x2000)))
			Expect(img.Data).To(Equal([]byte{
				0x01, 0x02, 0x03, 0x04, 0xFF, 0xFF, 0xFF, 0xFF, 0xAA, 0xBB,
			}))
		})

		It("should reject a non-ARM machine", func() {
			path := write("x86.elf", buildARMELF(3, 0, []elfSegment{
				{vaddr: 0, paddr: 0, data: []byte{0x90}},
			}))

			_, err := loader.Load(path)
			Expect(err).To(HaveOccurred())
			Expect(err.Error()).To(ContainSubstring("not an ARM"))
		})

		It("should reject a file without loadable data", func() {
			path := write("empty.elf", buildARMELF(40, 0, nil))

			_, err := loader.Load(path)
			Expect(err).To(HaveOccurred())
			Expect(err.Error()).To(ContainSubstring("no loadable data"))
		})
	})

	Context("with an Intel HEX file", func() {
		It("should decode the records", func() {
			path := write("fw.hex", []byte(":020000000102FB\n:00000001FF\n"))

			img, err := loader.Load(path)
			Expect(err).NotTo(HaveOccurred())
			Expect(img.Format).To(Equal(loader.FormatHex))
			Expect(img.Data).To(Equal([]byte{0x01, 0x02}))
		})

		It("should name the file on decode errors", func() {
			path := write("bad.hex", []byte(":020000000102FC\n"))

			_, err := loader.Load(path)
			Expect(err).To(HaveOccurred())
			Expect(err.Error()).To(ContainSubstring("bad.hex"))
		})
	})

	Context("with a raw binary", func() {
		It("should return the bytes unplaced", func() {
			raw := []byte{0x00, 0x10, 0x00, 0x20, 0x41, 0x20, 0x00, 0x00}
			path := write("fw.bin", raw)

			img, err := loader.Load(path)
			Expect(err).NotTo(HaveOccurred())
			Expect(img.Format).To(Equal(loader.FormatBinary))
			Expect(img.Base).To(BeZero())
			Expect(img.Data).To(Equal(raw))
		})
	})

	Context("with an invalid path", func() {
		It("should return error for non-existent file", func() {
			_, err := loader.Load("/nonexistent/path/to/fw.bin")
			Expect(err).To(HaveOccurred())
			Expect(err.Error()).To(ContainSubstring("failed to open"))
		})

		It("should return error for empty file", func() {
			path := write("empty.bin", nil)

			_, err := loader.Load(path)
			Expect(err).To(HaveOccurred())
		})
	})
})

// buildARMELF assembles a little-endian ELF32 executable with one PT_LOAD
// program header per segment.
func buildARMELF(machine uint16, entry uint32, segs []elfSegment) []byte {
	const (
		ehsize    = 52
		phentsize = 32
	)

	header := make([]byte, ehsize)
	copy(header[0:4], []byte{0x7f, 'E', 'L', 'F'})
	header[4] = 1 // ELFCLASS32
	header[5] = 1 // little endian
	header[6] = 1 // version
	binary.LittleEndian.PutUint16(header[16:18], 2) // executable
	binary.LittleEndian.PutUint16(header[18:20], machine)
	binary.LittleEndian.PutUint32(header[20:24], 1)
	binary.LittleEndian.PutUint32(header[24:28], entry)
	binary.LittleEndian.PutUint32(header[28:32], ehsize)
	binary.LittleEndian.PutUint16(header[40:42], ehsize)
	binary.LittleEndian.PutUint16(header[42:44], phentsize)
	binary.LittleEndian.PutUint16(header[44:46], uint16(len(segs)))
	binary.LittleEndian.PutUint16(header[46:48], 40)

	offset := uint32(ehsize + phentsize*len(segs))
	out := header
	var payload []byte
	for _, s := range segs {
		ph := make([]byte, phentsize)
		binary.LittleEndian.PutUint32(ph[0:4], 1) // PT_LOAD
		binary.LittleEndian.PutUint32(ph[4:8], offset)
		binary.LittleEndian.PutUint32(ph[8:12], s.vaddr)
		binary.LittleEndian.PutUint32(ph[12:16], s.paddr)
		binary.LittleEndian.PutUint32(ph[16:20], uint32(len(s.data)))
		binary.LittleEndian.PutUint32(ph[20:24], uint32(len(s.data)))
		binary.LittleEndian.PutUint32(ph[24:28], 0x5) // PF_R | PF_X
		binary.LittleEndian.PutUint32(ph[28:32], 4)
		out = append(out, ph...)
		payload = append(payload, s.data...)
		offset += uint32(len(s.data))
	}

	return append(out, payload...)
}
