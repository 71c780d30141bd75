package periph_test

import (
	"os"
	"path/filepath"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/sarchlab/m0sim/emu"
	"github.com/sarchlab/m0sim/periph"
)

var _ = Describe("Script", func() {
	var (
		memory *emu.Memory
		script *periph.Script
	)

	BeforeEach(func() {
		var bus *emu.PeripheralBus
		memory, bus = newMemory()
		script = periph.NewScript(bus, quietLogger())
	})

	AfterEach(func() {
		script.Close()
	})

	It("should serve reads from a Lua function", func() {
		Expect(script.LoadString(`
			mmio_read(0x40002000, function(addr) return 0x1234 end)
		`)).To(Succeed())

		Expect(memory.Read32(0x40002000)).To(Equal(uint32(0x1234)))
		Expect(script.Handlers()).To(Equal(1))
	})

	It("should pass writes to Lua", func() {
		Expect(script.LoadString(`
			local last = 0
			mmio_write(0x40002004, function(addr, value) last = value end)
			mmio_read(0x40002004, function(addr) return last + 1 end)
			log("ready")
		`)).To(Succeed())

		memory.Write32(0x40002004, 41)

		Expect(memory.Read32(0x40002004)).To(Equal(uint32(42)))
	})

	It("should read 0 when a handler fails", func() {
		Expect(script.LoadString(`
			mmio_read(0x40002008, function(addr) error("boom") end)
			mmio_read(0x4000200C, function(addr) return "text" end)
			mmio_write(0x40002010, function(addr, value) error("boom") end)
		`)).To(Succeed())

		Expect(memory.Read32(0x40002008)).To(BeZero())
		Expect(memory.Read32(0x4000200C)).To(BeZero())
		memory.Write32(0x40002010, 1)
	})

	It("should report script errors", func() {
		Expect(script.LoadString(`mmio_read(`)).NotTo(Succeed())
		Expect(script.LoadString(`mmio_read("x", 1)`)).NotTo(Succeed())
	})

	It("should load scripts from files", func() {
		dir, err := os.MkdirTemp("", "script-test")
		Expect(err).NotTo(HaveOccurred())
		defer func() { _ = os.RemoveAll(dir) }()

		path := filepath.Join(dir, "led.lua")
		Expect(os.WriteFile(path, []byte(`mmio_read(0x40002020, function(a) return a end)`), 0644)).To(Succeed())

		Expect(script.LoadFile(path)).To(Succeed())
		Expect(memory.Read32(0x40002020)).To(Equal(uint32(0x40002020)))
		Expect(script.LoadFile(filepath.Join(dir, "missing.lua"))).NotTo(Succeed())
	})
})
