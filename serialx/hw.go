// serialx/hw.go

package serialx

import (
	"errors"
	"sync/atomic"
)

// Channel identifies one physical serial channel on the board. The
// driver supports a small fixed table of channels; a board layer maps
// its hardware instances onto these identities.
type Channel uint8

const (
	Channel0 Channel = iota
	Channel1
	Channel2
	Channel3

	// NumChannels is the size of the registration table.
	NumChannels = 4
)

// Registers is the control/status register surface of one hardware
// serial channel, supplied by a board-support backend (simhw, hostuart,
// or a real board layer). Program, Enable and Disable run in main-line
// context; ReadData, WriteData and the TX-empty interrupt toggles are
// called from both contexts and must not block.
type Registers interface {
	// Program loads the baud divisor and frame format registers.
	Program(s BaudSetting, f Format)
	// Enable turns on the receiver, the transmitter and the
	// receive-complete interrupt.
	Enable()
	// Disable turns off the receiver, the transmitter and both
	// interrupt sources.
	Disable()
	// EnableTxEmptyIRQ unmasks the transmit-buffer-empty interrupt. The
	// interrupt is level-sensitive: if the data register is already
	// empty, the backend must raise it.
	EnableTxEmptyIRQ()
	// DisableTxEmptyIRQ masks the transmit-buffer-empty interrupt.
	DisableTxEmptyIRQ()
	// ReadData returns the most recently received byte from the data
	// register.
	ReadData() byte
	// WriteData loads the next byte to transmit into the data register.
	// Only valid while a TX-empty interrupt is being serviced.
	WriteData(byte)
	// TxIdle reports whether the transmitter has fully drained to the
	// wire (data register and shifter empty).
	TxIdle() bool
}

// ErrChannelBusy is returned by Begin when another port is already bound
// to the channel's interrupt vectors.
var ErrChannelBusy = errors.New("serialx: channel already bound")

// ports is the per-channel registered-instance table consulted by the
// interrupt entry points. A nil slot means "no port bound" and dispatch
// on it is a no-op, never undefined behaviour.
var ports [NumChannels]atomic.Pointer[UART]

// Bind registers u as the live port for ch. At most one port may be
// bound to a channel at a time.
func Bind(ch Channel, u *UART) error {
	if int(ch) >= NumChannels {
		return ErrChannelBusy
	}
	if !ports[ch].CompareAndSwap(nil, u) {
		if ports[ch].Load() == u {
			return nil // re-begin on the same port
		}
		return ErrChannelBusy
	}
	return nil
}

// Unbind removes any port registration for ch.
func Unbind(ch Channel) {
	if int(ch) < NumChannels {
		ports[ch].Store(nil)
	}
}

// Bound returns the port currently bound to ch, or nil.
func Bound(ch Channel) *UART {
	if int(ch) >= NumChannels {
		return nil
	}
	return ports[ch].Load()
}

// ServiceRx is the receive-complete interrupt entry point. Backends call
// it from interrupt context when a byte is waiting in the data register.
func ServiceRx(ch Channel) {
	if u := Bound(ch); u != nil {
		u.rxISR()
	}
}

// ServiceTxEmpty is the transmit-buffer-empty interrupt entry point.
// Backends call it from interrupt context when the data register can
// accept the next byte.
func ServiceTxEmpty(ch Channel) {
	if u := Bound(ch); u != nil {
		u.txISR()
	}
}
