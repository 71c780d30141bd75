package periph

import (
	"fmt"

	"github.com/sirupsen/logrus"
	lua "github.com/yuin/gopher-lua"

	"github.com/sarchlab/m0sim/emu"
)

// Script hosts Lua-defined peripheral registers. A script binds handlers
// with the globals
//
//	mmio_read(addr, function(addr) return value end)
//	mmio_write(addr, function(addr, value) end)
//	log(message)
//
// Handlers run on the emulator's goroutine in the middle of a load or
// store. A handler error is logged and the access reads as 0.
type Script struct {
	state *lua.LState
	bus   *emu.PeripheralBus
	log   *logrus.Logger

	handlers int
}

// NewScript creates a Lua state that installs handlers on bus.
func NewScript(bus *emu.PeripheralBus, logger *logrus.Logger) *Script {
	if logger == nil {
		logger = logrus.StandardLogger()
	}

	s := &Script{
		state: lua.NewState(),
		bus:   bus,
		log:   logger,
	}

	s.state.SetGlobal("mmio_read", s.state.NewFunction(s.luaRead))
	s.state.SetGlobal("mmio_write", s.state.NewFunction(s.luaWrite))
	s.state.SetGlobal("log", s.state.NewFunction(s.luaLog))

	return s
}

// LoadFile runs the script at path.
func (s *Script) LoadFile(path string) error {
	if err := s.state.DoFile(path); err != nil {
		return fmt.Errorf("running script %s: %w", path, err)
	}
	return nil
}

// LoadString runs src.
func (s *Script) LoadString(src string) error {
	if err := s.state.DoString(src); err != nil {
		return fmt.Errorf("running script: %w", err)
	}
	return nil
}

// Handlers returns the number of handlers the scripts installed.
func (s *Script) Handlers() int {
	return s.handlers
}

// Close releases the Lua state.
func (s *Script) Close() {
	s.state.Close()
}

func (s *Script) luaRead(L *lua.LState) int {
	addr := uint32(L.CheckInt64(1))
	fn := L.CheckFunction(2)

	s.bus.RegisterReadHandler(addr, func(a uint32) uint32 {
		if err := L.CallByParam(lua.P{Fn: fn, NRet: 1, Protect: true}, lua.LNumber(a)); err != nil {
			s.handlerError("read", a, err)
			return 0
		}
		ret := L.Get(-1)
		L.Pop(1)

		n, ok := ret.(lua.LNumber)
		if !ok {
			s.handlerError("read", a, fmt.Errorf("handler returned %s", ret.Type()))
			return 0
		}
		return uint32(int64(n))
	})
	s.handlers++

	return 0
}

func (s *Script) luaWrite(L *lua.LState) int {
	addr := uint32(L.CheckInt64(1))
	fn := L.CheckFunction(2)

	s.bus.RegisterWriteHandler(addr, func(a uint32, v uint32) {
		if err := L.CallByParam(lua.P{Fn: fn, NRet: 0, Protect: true},
			lua.LNumber(a), lua.LNumber(v)); err != nil {
			s.handlerError("write", a, err)
		}
	})
	s.handlers++

	return 0
}

func (s *Script) luaLog(L *lua.LState) int {
	s.log.WithField("source", "lua").Info(L.CheckString(1))
	return 0
}

func (s *Script) handlerError(kind string, addr uint32, err error) {
	s.log.WithFields(logrus.Fields{
		"addr":   fmt.Sprintf("0x%08X", addr),
		"access": kind,
	}).WithError(err).Warn("script handler failed")
}
