// hostuart/mode.go

package hostuart

import (
	"go.bug.st/serial"

	"github.com/jangala-dev/go-serialx/serialx"
)

// standardBauds are the rates every OS serial stack accepts natively.
var standardBauds = []int{
	300, 600, 1200, 2400, 4800, 9600, 19200, 38400,
	57600, 115200, 230400, 460800, 921600,
}

// EffectiveBaud recovers the bit rate a hardware UART would actually run
// at for the programmed divisor: clock/(8*(D+1)) in double-speed mode,
// clock/(16*(D+1)) otherwise.
func EffectiveBaud(clockHz uint32, s serialx.BaudSetting) int {
	div := uint32(s.Divisor) + 1
	if s.DoubleSpeed {
		return int(clockHz / (8 * div))
	}
	return int(clockHz / (16 * div))
}

// snapBaud maps an effective rate onto the nearest standard rate when it
// is within 3% (divisor truncation puts e.g. 9615 on the wire for a
// requested 9600); otherwise the effective rate is used as-is.
func snapBaud(baud int) int {
	best, bestDiff := baud, baud
	for _, std := range standardBauds {
		diff := baud - std
		if diff < 0 {
			diff = -diff
		}
		if diff < bestDiff {
			best, bestDiff = std, diff
		}
	}
	if bestDiff*100 <= best*3 {
		return best
	}
	return baud
}

// ModeFor translates programmed register settings into an OS serial
// mode.
func ModeFor(clockHz uint32, s serialx.BaudSetting, f serialx.Format) *serial.Mode {
	mode := &serial.Mode{
		BaudRate: snapBaud(EffectiveBaud(clockHz, s)),
		DataBits: f.DataBits(),
	}
	switch f.Parity() {
	case serialx.ParityEven:
		mode.Parity = serial.EvenParity
	case serialx.ParityOdd:
		mode.Parity = serial.OddParity
	default:
		mode.Parity = serial.NoParity
	}
	if f.StopBits() == 2 {
		mode.StopBits = serial.TwoStopBits
	} else {
		mode.StopBits = serial.OneStopBit
	}
	return mode
}
