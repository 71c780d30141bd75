package main

import (
	"errors"
	"fmt"
	"image"
	"io"

	"github.com/sirupsen/logrus"

	"github.com/sarchlab/m0sim/config"
	"github.com/sarchlab/m0sim/emu"
	"github.com/sarchlab/m0sim/loader"
	"github.com/sarchlab/m0sim/periph"
	"github.com/sarchlab/m0sim/timing/cache"
)

// errInterrupted stops a run when the user presses Ctrl-C on the console.
var errInterrupted = errors.New("interrupted")

// machine is the emulated board: the CPU, its peripherals, any Lua
// scripted registers and the NVM read cache model.
type machine struct {
	config *config.MachineConfig
	log    *logrus.Logger

	emulator *emu.Emulator
	board    *periph.Board
	scripts  []*periph.Script
	nvm      *cache.Cache
	console  *console
}

// newMachine builds a board from config. Console output goes to out.
func newMachine(cfg *config.MachineConfig, logger *logrus.Logger, out io.Writer) (*machine, error) {
	m := &machine{config: cfg, log: logger}

	m.emulator = emu.NewEmulator(cfg.EmulatorOptions(logger)...)

	board, err := periph.NewBoard(m.emulator.Bus(), cfg.SPISercom, logger)
	if err != nil {
		return nil, fmt.Errorf("creating board: %w", err)
	}
	m.board = board

	if cfg.ConsoleSercom >= 0 {
		m.console = newConsole(board.Sercoms[cfg.ConsoleSercom], out)
	}

	for _, path := range cfg.Scripts {
		s := periph.NewScript(m.emulator.Bus(), logger)
		if err := s.LoadFile(path); err != nil {
			s.Close()
			m.Close()
			return nil, err
		}
		logger.WithFields(logrus.Fields{
			"script":   path,
			"handlers": s.Handlers(),
		}).Info("peripheral script loaded")
		m.scripts = append(m.scripts, s)
	}

	m.nvm = cache.New(cache.DefaultNVMConfig(), cache.NewFlashBacking(m.emulator.Memory()))
	m.emulator.SetAccessObserver(m.nvm)

	return m, nil
}

// Load programs img into flash and resets from the vector table at the
// configured load offset. Raw binaries carry no address and are placed at
// that offset.
func (m *machine) Load(img *loader.Image) error {
	base := img.Base
	if img.Format == loader.FormatBinary {
		base = m.config.LoadOffset
	}

	if err := m.emulator.Memory().ProgramFlash(base, img.Data); err != nil {
		return fmt.Errorf("loading %s image: %w", img.Format, err)
	}
	if err := m.emulator.LoadFlash(nil, m.config.LoadOffset); err != nil {
		return err
	}

	m.nvm.Reset()
	m.board.Display.Clear()
	return nil
}

// Run executes up to n steps. It returns emu.ErrMaxInstructions once the
// configured limit is reached.
func (m *machine) Run(n uint64) error {
	return m.emulator.Run(n).Err
}

// RunFrame implements frontend.Machine.
func (m *machine) RunFrame() error {
	if m.console != nil {
		if m.console.Interrupted() {
			return errInterrupted
		}
		m.console.Poll()
	}
	return m.Run(uint64(m.config.StepsPerFrame))
}

// Frame implements frontend.Machine.
func (m *machine) Frame() *image.RGBA {
	return m.board.Display.Frame()
}

// SetButton implements frontend.Machine.
func (m *machine) SetButton(b periph.Button, pressed bool) {
	m.board.Buttons.Set(b, pressed)
}

// Close releases the Lua states and restores the terminal.
func (m *machine) Close() {
	for _, s := range m.scripts {
		s.Close()
	}
	m.scripts = nil
	if m.console != nil {
		m.console.Stop()
	}
}

// runStats summarises a run.
type runStats struct {
	Instructions    uint64
	Undecoded       uint64
	Cycles          uint64
	DMATransfers    uint64
	DMABytes        uint64
	Pixels          uint64
	ConsoleBytes    uint64
	NVMCache        cache.Statistics
	ActiveException emu.ExceptionSource
}

// Stats collects the counters of every component.
func (m *machine) Stats() runStats {
	e := m.emulator

	s := runStats{
		Instructions: e.InstructionCount(),
		Undecoded:    e.UndecodedCount(),
		Cycles:       e.CycleCount(),
		DMATransfers: e.DMA().Transfers(),
		DMABytes:     e.DMA().BytesTransferred(),
		Pixels:       m.board.Display.Pixels(),
		NVMCache:     m.nvm.Stats(),

		ActiveException: e.Interrupts().Active(),
	}
	if m.console != nil {
		s.ConsoleBytes = m.console.Written()
	}
	return s
}

// Print writes the statistics in the format of the run summary.
func (s runStats) Print(w io.Writer) {
	fmt.Fprintf(w, "Instructions executed: %d\n", s.Instructions)
	if s.Undecoded > 0 {
		fmt.Fprintf(w, "Undecoded instructions skipped: %d\n", s.Undecoded)
	}
	if s.Cycles > 0 {
		total := s.Cycles + s.NVMCache.Stalls
		fmt.Fprintf(w, "Estimated cycles: %d (%d + %d flash wait states)\n",
			total, s.Cycles, s.NVMCache.Stalls)
		if s.Instructions > 0 {
			fmt.Fprintf(w, "CPI: %.3f\n", float64(total)/float64(s.Instructions))
		}
	}
	fmt.Fprintf(w, "NVM cache: %d hits, %d misses (%.1f%% hit rate)\n",
		s.NVMCache.Hits, s.NVMCache.Misses, s.NVMCache.HitRate()*100)
	fmt.Fprintf(w, "DMA: %d transfers, %d bytes\n", s.DMATransfers, s.DMABytes)
	fmt.Fprintf(w, "Display: %d pixels written\n", s.Pixels)
	if s.ConsoleBytes > 0 {
		fmt.Fprintf(w, "Console: %d bytes\n", s.ConsoleBytes)
	}
	if s.ActiveException != emu.SourceNone {
		fmt.Fprintf(w, "Stopped inside %s handler\n", s.ActiveException)
	}
}
