package periph

// Button identifies one of the board's buttons by its bit in the button
// shift register.
type Button uint8

// Buttons, in shift register order.
const (
	ButtonDown Button = iota
	ButtonLeft
	ButtonRight
	ButtonUp
	ButtonA
	ButtonB
	ButtonMenu
)

var buttonNames = [...]string{"down", "left", "right", "up", "a", "b", "menu"}

func (b Button) String() string {
	if int(b) < len(buttonNames) {
		return buttonNames[b]
	}
	return "unknown"
}

// pinButtonsCS is the button shift register chip select on PORTB.
const pinButtonsCS = 3

// Buttons models the seven active-low buttons read over SPI. Each byte the
// firmware clocks out while the chip select is low loads the button state
// into the SERCOM receive register.
type Buttons struct {
	spi     *Sercom
	control *Port
	state   uint8
}

// NewButtons attaches the button shift register to the SPI SERCOM.
func NewButtons(spi *Sercom, control *Port) *Buttons {
	b := &Buttons{spi: spi, control: control, state: 0xFF}
	spi.AddDataListener(b.byteReceived)
	return b
}

// Press holds btn down.
func (b *Buttons) Press(btn Button) {
	b.state &^= 1 << btn
}

// Release lets btn up.
func (b *Buttons) Release(btn Button) {
	b.state |= 1 << btn
}

// Set presses or releases btn.
func (b *Buttons) Set(btn Button, pressed bool) {
	if pressed {
		b.Press(btn)
	} else {
		b.Release(btn)
	}
}

// State returns the raw active-low button byte.
func (b *Buttons) State() uint8 {
	return b.state
}

func (b *Buttons) byteReceived(uint8) {
	if b.control.Out()&(1<<pinButtonsCS) != 0 {
		return
	}
	b.spi.SetData(b.state)
}
