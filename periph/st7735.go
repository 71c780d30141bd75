package periph

import (
	"image"
	"image/color"
)

// ST7735 commands.
const (
	st7735CASET = 0x2A
	st7735RASET = 0x2B
	st7735RAMWR = 0x2C
)

// Display geometry.
const (
	DisplayWidth  = 160
	DisplayHeight = 128
)

// Control lines on PORTB.
const (
	pinDisplayCS = 22
	pinDisplayDC = 23
)

// ST7735 decodes the SPI byte stream sent to an ST7735 TFT controller into
// an RGBA frame. Only the window and memory write commands are modelled.
type ST7735 struct {
	control *Port
	frame   *image.RGBA

	command uint8
	arg     int
	hi      uint8

	xStart, xEnd int
	yStart, yEnd int
	x, y         int

	pixels uint64
}

// NewST7735 attaches a display to the SPI SERCOM. control is the PORT
// group carrying chip select and data/command.
func NewST7735(spi *Sercom, control *Port) *ST7735 {
	d := &ST7735{
		control: control,
		frame:   image.NewRGBA(image.Rect(0, 0, DisplayWidth, DisplayHeight)),
		xEnd:    DisplayWidth - 1,
		yEnd:    DisplayHeight - 1,
	}
	d.Clear()
	spi.AddDataListener(d.ByteReceived)
	return d
}

// Frame returns the frame buffer. It is updated in place.
func (d *ST7735) Frame() *image.RGBA {
	return d.frame
}

// Pixels returns the number of pixels written since creation.
func (d *ST7735) Pixels() uint64 {
	return d.pixels
}

// Clear paints the frame black.
func (d *ST7735) Clear() {
	for i := 0; i < len(d.frame.Pix); i += 4 {
		d.frame.Pix[i+0] = 0
		d.frame.Pix[i+1] = 0
		d.frame.Pix[i+2] = 0
		d.frame.Pix[i+3] = 0xFF
	}
}

// ByteReceived consumes one SPI byte. Bytes are ignored while chip select
// is high.
func (d *ST7735) ByteReceived(b uint8) {
	out := d.control.Out()
	if out&(1<<pinDisplayCS) != 0 {
		return
	}

	if out&(1<<pinDisplayDC) == 0 {
		d.command = b
		d.arg = 0
		return
	}

	switch d.command {
	case st7735RAMWR:
		if d.arg%2 == 0 {
			d.hi = b
		} else {
			d.writePixel(uint16(d.hi)<<8 | uint16(b))
		}
	case st7735CASET:
		switch d.arg {
		case 1:
			d.xStart, d.x = int(b), int(b)
		case 3:
			d.xEnd = int(b)
		}
	case st7735RASET:
		switch d.arg {
		case 1:
			d.yStart, d.y = int(b), int(b)
		case 3:
			d.yEnd = int(b)
		}
	}

	d.arg++
}

func (d *ST7735) writePixel(rgb565 uint16) {
	if d.x < DisplayWidth && d.y < DisplayHeight {
		d.frame.SetRGBA(d.x, d.y, RGB565(rgb565))
	}
	d.pixels++

	d.x++
	if d.x > d.xEnd {
		d.x = d.xStart
		d.y++
		if d.y > d.yEnd {
			d.y = d.yStart
		}
	}
}

// RGB565 expands a 16-bit 5:6:5 pixel to RGBA.
func RGB565(p uint16) color.RGBA {
	return color.RGBA{
		R: uint8((p & 0xF800) >> 8),
		G: uint8((p & 0x07E0) >> 3),
		B: uint8((p & 0x001F) << 3),
		A: 0xFF,
	}
}
