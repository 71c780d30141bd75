package config_test

import (
	"os"
	"path/filepath"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"github.com/sirupsen/logrus"

	"github.com/sarchlab/m0sim/config"
	"github.com/sarchlab/m0sim/emu"
)

var _ = Describe("MachineConfig", func() {
	It("should default to an ATSAMD21 board", func() {
		c := config.DefaultMachineConfig()

		Expect(c.FlashSize).To(Equal(emu.DefaultFlashSize))
		Expect(c.SRAMSize).To(Equal(emu.DefaultSRAMSize))
		Expect(c.LoadOffset).To(Equal(uint32(0x2000)))
		Expect(c.TickThreshold).To(Equal(uint32(emu.DefaultTickThreshold)))
		Expect(c.Timing).NotTo(BeNil())
		Expect(c.Validate()).To(Succeed())
	})

	DescribeTable("Validation",
		func(mutate func(*config.MachineConfig), msg string) {
			c := config.DefaultMachineConfig()
			mutate(c)
			err := c.Validate()
			Expect(err).To(HaveOccurred())
			Expect(err.Error()).To(ContainSubstring(msg))
		},
		Entry("odd flash size", func(c *config.MachineConfig) { c.FlashSize = 3 }, "flash_size"),
		Entry("oversize flash", func(c *config.MachineConfig) { c.FlashSize = 0x40000000 }, "flash region"),
		Entry("zero SRAM", func(c *config.MachineConfig) { c.SRAMSize = 0 }, "sram_size"),
		Entry("unaligned offset", func(c *config.MachineConfig) { c.LoadOffset = 0x2002 }, "word aligned"),
		Entry("offset past flash", func(c *config.MachineConfig) { c.LoadOffset = 0x40000 }, "inside flash"),
		Entry("zero steps", func(c *config.MachineConfig) { c.StepsPerFrame = 0 }, "steps_per_frame"),
		Entry("zero scale", func(c *config.MachineConfig) { c.Scale = 0 }, "scale"),
		Entry("bad SPI SERCOM", func(c *config.MachineConfig) { c.SPISercom = 6 }, "spi_sercom"),
		Entry("bad console SERCOM", func(c *config.MachineConfig) { c.ConsoleSercom = -2 }, "console_sercom"),
		Entry("bad log level", func(c *config.MachineConfig) { c.LogLevel = "loud" }, "log_level"),
		Entry("bad timing", func(c *config.MachineConfig) { c.Timing.ALULatency = 0 }, "timing"),
	)

	It("should accept a disabled console and no timing", func() {
		c := config.DefaultMachineConfig()
		c.ConsoleSercom = -1
		c.Timing = nil
		Expect(c.Validate()).To(Succeed())
	})

	It("should clone deeply", func() {
		c := config.DefaultMachineConfig()
		c.Scripts = []string{"a.lua"}

		clone := c.Clone()
		clone.Scripts[0] = "b.lua"
		clone.Timing.LoadLatency = 7

		Expect(c.Scripts[0]).To(Equal("a.lua"))
		Expect(c.Timing.LoadLatency).To(Equal(uint64(2)))
	})

	It("should build a logger at the configured level", func() {
		c := config.DefaultMachineConfig()
		c.LogLevel = "debug"
		Expect(c.Logger().GetLevel()).To(Equal(logrus.DebugLevel))
	})

	It("should configure an emulator", func() {
		c := config.DefaultMachineConfig()
		c.FlashSize = 0x4000
		c.TickThreshold = 0

		e := emu.NewEmulator(c.EmulatorOptions(c.Logger())...)
		Expect(e.Memory().FlashSize()).To(Equal(0x4000))
		Expect(e.Interrupts().TickThreshold()).To(BeZero())
	})

	Describe("File Operations", func() {
		var tempDir string

		BeforeEach(func() {
			var err error
			tempDir, err = os.MkdirTemp("", "config-test")
			Expect(err).NotTo(HaveOccurred())
		})

		AfterEach(func() {
			_ = os.RemoveAll(tempDir)
		})

		It("should save and load config", func() {
			path := filepath.Join(tempDir, "machine.json")
			c := config.DefaultMachineConfig()
			c.Scripts = []string{"leds.lua"}
			c.TickThreshold = 1000

			Expect(c.SaveConfig(path)).To(Succeed())

			loaded, err := config.LoadConfig(path)
			Expect(err).NotTo(HaveOccurred())
			Expect(loaded).To(Equal(c))
		})

		It("should keep defaults for missing fields", func() {
			path := filepath.Join(tempDir, "partial.json")
			Expect(os.WriteFile(path, []byte(`{"load_offset": 0}`), 0644)).To(Succeed())

			loaded, err := config.LoadConfig(path)
			Expect(err).NotTo(HaveOccurred())
			Expect(loaded.LoadOffset).To(BeZero())
			Expect(loaded.FlashSize).To(Equal(emu.DefaultFlashSize))
		})

		It("should return error for invalid JSON", func() {
			path := filepath.Join(tempDir, "bad.json")
			Expect(os.WriteFile(path, []byte("[]"), 0644)).To(Succeed())

			_, err := config.LoadConfig(path)
			Expect(err).To(HaveOccurred())
		})
	})
})
