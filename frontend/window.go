//go:build !headless

package frontend

import (
	"errors"
	"fmt"

	"github.com/hajimehoshi/ebiten/v2"

	"github.com/sarchlab/m0sim/periph"
)

// keyMap binds keyboard keys to board buttons. Each button has a letter
// key and, where one fits, an arrow or editing key.
var keyMap = map[ebiten.Key]periph.Button{
	ebiten.KeyD:          periph.ButtonDown,
	ebiten.KeyS:          periph.ButtonLeft,
	ebiten.KeyF:          periph.ButtonRight,
	ebiten.KeyE:          periph.ButtonUp,
	ebiten.KeyK:          periph.ButtonA,
	ebiten.KeyL:          periph.ButtonB,
	ebiten.KeyR:          periph.ButtonMenu,
	ebiten.KeyArrowDown:  periph.ButtonDown,
	ebiten.KeyArrowLeft:  periph.ButtonLeft,
	ebiten.KeyArrowRight: periph.ButtonRight,
	ebiten.KeyArrowUp:    periph.ButtonUp,
	ebiten.KeyEnter:      periph.ButtonMenu,
}

// Window runs a Machine inside an ebiten game loop. Emulation and drawing
// both happen on ebiten's update goroutine.
type Window struct {
	machine Machine
	scale   int
	title   string

	screen *ebiten.Image
	err    error
}

// NewWindow creates a window showing m magnified by scale.
func NewWindow(m Machine, scale int, title string) *Window {
	return &Window{machine: m, scale: scale, title: title}
}

// Run opens the window and blocks until it is closed or the machine
// fails. A user close returns ErrClosed.
func (w *Window) Run() error {
	b := w.machine.Frame().Bounds()
	ebiten.SetWindowSize(b.Dx()*w.scale, b.Dy()*w.scale)
	ebiten.SetWindowTitle(w.title)
	ebiten.SetRunnableOnUnfocused(true)

	if err := ebiten.RunGame(w); err != nil && !errors.Is(err, ebiten.Termination) {
		return fmt.Errorf("window: %w", err)
	}
	if w.err != nil {
		return w.err
	}
	return ErrClosed
}

// Update implements ebiten.Game.
func (w *Window) Update() error {
	if ebiten.IsWindowBeingClosed() {
		return ebiten.Termination
	}

	pressed := map[periph.Button]bool{}
	for key, btn := range keyMap {
		if ebiten.IsKeyPressed(key) {
			pressed[btn] = true
		}
	}
	for btn := periph.ButtonDown; btn <= periph.ButtonMenu; btn++ {
		w.machine.SetButton(btn, pressed[btn])
	}

	if err := w.machine.RunFrame(); err != nil {
		w.err = err
		return ebiten.Termination
	}
	return nil
}

// Draw implements ebiten.Game.
func (w *Window) Draw(screen *ebiten.Image) {
	frame := w.machine.Frame()
	if w.screen == nil {
		b := frame.Bounds()
		w.screen = ebiten.NewImage(b.Dx(), b.Dy())
	}
	w.screen.WritePixels(frame.Pix)
	screen.DrawImage(w.screen, nil)
}

// Layout implements ebiten.Game. The logical screen is the display size;
// ebiten scales it to the window.
func (w *Window) Layout(_, _ int) (int, int) {
	b := w.machine.Frame().Bounds()
	return b.Dx(), b.Dy()
}
