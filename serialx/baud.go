// serialx/baud.go

package serialx

import "errors"

// ErrBadBaud is returned by Begin when the requested bit rate cannot be
// represented by the divisor register in either sampling mode.
var ErrBadBaud = errors.New("serialx: baud rate not representable")

// maxDivisor is the largest value the 12-bit baud divisor field holds.
const maxDivisor = 4095

// DefaultClockHz is the system clock assumed when a Config leaves
// ClockHz at zero.
const DefaultClockHz = 16_000_000

// BaudSetting is the hardware programming derived from a requested bit
// rate: the divisor register value and whether double-speed (8x)
// sampling is selected.
type BaudSetting struct {
	Divisor     uint16
	DoubleSpeed bool
}

// CalcBaud maps a clock frequency and target baud rate to divisor
// register settings. Double-speed sampling is preferred whenever its
// divisor fits the register, because it gives finer baud granularity at
// high rates; otherwise the calculation falls back to 16x sampling with
// the double-speed flag cleared. Rates that fit neither mode are an
// error rather than a silent misconfiguration.
func CalcBaud(clockHz, baud uint32) (BaudSetting, error) {
	if baud == 0 {
		return BaudSetting{}, ErrBadBaud
	}
	// 64-bit arithmetic: an absurd requested rate must come back as
	// ErrBadBaud, not wrap the sample-clock product.
	q := uint64(clockHz) / (uint64(baud) * 8)
	if q == 0 {
		// Even the fast sampling clock cannot reach this rate.
		return BaudSetting{}, ErrBadBaud
	}
	d := q - 1
	if d <= maxDivisor {
		return BaudSetting{Divisor: uint16(d), DoubleSpeed: true}, nil
	}
	d = uint64(clockHz)/(uint64(baud)*16) - 1
	if d > maxDivisor {
		return BaudSetting{}, ErrBadBaud
	}
	return BaudSetting{Divisor: uint16(d), DoubleSpeed: false}, nil
}
