// serialx/softuart.go

package serialx

import "time"

// Pin is the digital-pin primitive consumed by the software port: the
// capability to drive a single output line high or low.
type Pin interface {
	Set(high bool)
}

// SoftConfig carries the timing collaborators for a SoftUART. The zero
// value busy-waits with time.Sleep and runs frames without masking
// anything, which is fine for simulation; a real board supplies a
// calibrated microsecond delay and an interrupts-off critical section.
type SoftConfig struct {
	// Delay busy-waits for the given duration with microsecond
	// precision.
	Delay func(time.Duration)
	// Critical runs fn with interrupts masked. Any interruption of the
	// timed bit loop corrupts the pattern seen by the receiver.
	Critical func(fn func())
}

// SoftUART is an output-only serial port emulated by toggling one
// digital pin with timed delays per bit, for devices without a hardware
// UART. It has no buffering and no receive capability; every write
// blocks the caller for the whole frame duration.
type SoftUART struct {
	pin      Pin
	delay    func(time.Duration)
	critical func(func())

	period time.Duration // one bit time
	bits   int           // data bits per frame
	open   bool
}

// NewSoft constructs a closed software port driving pin.
func NewSoft(pin Pin, cfg SoftConfig) *SoftUART {
	s := &SoftUART{
		pin:      pin,
		delay:    cfg.Delay,
		critical: cfg.Critical,
	}
	if s.delay == nil {
		s.delay = time.Sleep
	}
	if s.critical == nil {
		s.critical = func(fn func()) { fn() }
	}
	return s
}

// Begin stores the per-bit period and the data-bit count for the frame
// format, and parks the line in its idle (high) state.
func (s *SoftUART) Begin(baud uint32, format Format) error {
	if baud == 0 {
		return ErrBadBaud
	}
	s.period = time.Duration(1_000_000/baud) * time.Microsecond
	s.bits = format.DataBits()
	s.pin.Set(true)
	s.open = true
	return nil
}

// End closes the port, leaving the line idle high.
func (s *SoftUART) End() error {
	s.open = false
	s.pin.Set(true)
	return nil
}

// WriteByte serializes one byte: start bit low for one period, data bits
// least-significant first for one period each, then the stop bit high.
// The frame runs inside the critical section; afterwards the line is
// held high for 32 further bit periods as an inter-frame guard before
// the call returns.
func (s *SoftUART) WriteByte(c byte) error {
	if !s.open {
		return ErrClosed
	}
	s.critical(func() {
		s.pin.Set(false)
		s.delay(s.period)
		for i := 0; i < s.bits; i++ {
			s.pin.Set(c&1 != 0)
			s.delay(s.period)
			c >>= 1
		}
		s.pin.Set(true)
		s.delay(s.period)
	})
	s.delay(32 * s.period)
	return nil
}

// Write serializes each byte of p in turn, blocking for the full frame
// duration per byte.
func (s *SoftUART) Write(p []byte) (int, error) {
	for i, b := range p {
		if err := s.WriteByte(b); err != nil {
			return i, err
		}
	}
	return len(p), nil
}

// BitPeriod returns the configured duration of one bit on the line.
func (s *SoftUART) BitPeriod() time.Duration { return s.period }
