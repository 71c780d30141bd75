// Package frontend presents the emulated display in a window and saves
// screenshots.
package frontend

import (
	"errors"
	"fmt"
	"image"
	"io"
	"os"

	"golang.org/x/image/bmp"
	"golang.org/x/image/draw"

	"github.com/sarchlab/m0sim/periph"
)

// ErrClosed is returned by Run when the user closes the window.
var ErrClosed = errors.New("window closed")

// Machine is the emulated board as seen by the window.
type Machine interface {
	// RunFrame advances emulation by one display frame.
	RunFrame() error
	// Frame returns the current display contents.
	Frame() *image.RGBA
	// SetButton presses or releases a board button.
	SetButton(b periph.Button, pressed bool)
}

// Scale returns frame magnified by an integer factor with nearest-neighbour
// sampling.
func Scale(frame image.Image, factor int) *image.RGBA {
	if factor < 1 {
		factor = 1
	}

	b := frame.Bounds()
	dst := image.NewRGBA(image.Rect(0, 0, b.Dx()*factor, b.Dy()*factor))
	draw.NearestNeighbor.Scale(dst, dst.Bounds(), frame, b, draw.Src, nil)
	return dst
}

// WriteScreenshot encodes frame, magnified by factor, as a BMP.
func WriteScreenshot(w io.Writer, frame image.Image, factor int) error {
	if err := bmp.Encode(w, Scale(frame, factor)); err != nil {
		return fmt.Errorf("encoding screenshot: %w", err)
	}
	return nil
}

// SaveScreenshot writes frame to path as a BMP.
func SaveScreenshot(path string, frame image.Image, factor int) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("creating screenshot: %w", err)
	}

	if err := WriteScreenshot(f, frame, factor); err != nil {
		_ = f.Close()
		return err
	}

	return f.Close()
}
