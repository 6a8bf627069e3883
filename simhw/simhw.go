// simhw/simhw.go

// Package simhw provides a simulated serial hardware backend for the
// serialx driver: an in-memory register file whose transmit shifter,
// receive events and interrupt lines are modelled with goroutines and
// timers. It lets the full interrupt-driven driver run on a host with no
// board attached, wired either as a loopback or as a pair of
// cross-connected channels.
package simhw

import (
	"sync"
	"time"

	"github.com/jangala-dev/go-serialx/serialx"
)

// UART is one simulated hardware channel implementing serialx.Registers.
// Bytes written to the data register occupy the shifter for ByteTime
// before being delivered to the connected sink; the TX-empty interrupt
// is level-sensitive, matching real silicon. Received bytes are offered
// with Inject, normally by the wire, and raise the receive-complete
// interrupt.
type UART struct {
	ch       serialx.Channel
	byteTime time.Duration

	mu        sync.Mutex
	enabled   bool
	txIRQ     bool
	busy      bool // byte in the shifter
	shift     byte
	rxReg     byte
	servicing bool
	setting   serialx.BaudSetting
	format    serialx.Format
	sink      func(byte)
}

// New returns a simulated channel whose transmit shifter holds each byte
// for byteTime. A zero byteTime delivers as fast as the scheduler
// allows.
func New(ch serialx.Channel, byteTime time.Duration) *UART {
	return &UART{ch: ch, byteTime: byteTime}
}

// Loopback connects the channel's transmitter to its own receiver.
func (u *UART) Loopback() { u.setSink(u.Inject) }

// Wire cross-connects two channels: everything a transmits is received
// by b and vice versa.
func Wire(a, b *UART) {
	a.setSink(b.Inject)
	b.setSink(a.Inject)
}

// Sink routes transmitted bytes to fn (a logic analyzer, a pipe, ...).
func (u *UART) Sink(fn func(byte)) { u.setSink(fn) }

func (u *UART) setSink(fn func(byte)) {
	u.mu.Lock()
	u.sink = fn
	u.mu.Unlock()
}

// Inject simulates a byte arriving on the line: it loads the receive
// data register and raises the receive-complete interrupt. Bytes
// arriving while the channel is disabled are lost, as on real hardware.
// Callers must not inject concurrently with each other.
func (u *UART) Inject(b byte) {
	u.mu.Lock()
	if !u.enabled {
		u.mu.Unlock()
		return
	}
	u.rxReg = b
	u.mu.Unlock()
	serialx.ServiceRx(u.ch)
}

// Setting returns the last programmed baud setting.
func (u *UART) Setting() serialx.BaudSetting {
	u.mu.Lock()
	defer u.mu.Unlock()
	return u.setting
}

// Format returns the last programmed frame format.
func (u *UART) Format() serialx.Format {
	u.mu.Lock()
	defer u.mu.Unlock()
	return u.format
}

// ---------------- serialx.Registers ----------------

func (u *UART) Program(s serialx.BaudSetting, f serialx.Format) {
	u.mu.Lock()
	u.setting, u.format = s, f
	u.mu.Unlock()
}

func (u *UART) Enable() {
	u.mu.Lock()
	u.enabled = true
	u.mu.Unlock()
}

func (u *UART) Disable() {
	u.mu.Lock()
	u.enabled = false
	u.txIRQ = false
	u.mu.Unlock()
}

func (u *UART) EnableTxEmptyIRQ() {
	u.mu.Lock()
	u.txIRQ = true
	u.mu.Unlock()
	u.maybeService()
}

func (u *UART) DisableTxEmptyIRQ() {
	u.mu.Lock()
	u.txIRQ = false
	u.mu.Unlock()
}

func (u *UART) ReadData() byte {
	u.mu.Lock()
	defer u.mu.Unlock()
	return u.rxReg
}

func (u *UART) WriteData(b byte) {
	u.mu.Lock()
	u.busy = true
	u.shift = b
	u.mu.Unlock()
	time.AfterFunc(u.byteTime, u.txDone)
}

func (u *UART) TxIdle() bool {
	u.mu.Lock()
	defer u.mu.Unlock()
	return !u.busy
}

// ---------------- interrupt machinery ----------------

// txDone fires when the shifter empties: the byte reaches the wire and,
// if the TX-empty interrupt is unmasked, servicing resumes.
func (u *UART) txDone() {
	u.mu.Lock()
	b := u.shift
	u.busy = false
	sink := u.sink
	u.mu.Unlock()
	if sink != nil {
		sink(b)
	}
	u.maybeService()
}

// maybeService starts the interrupt context when the level condition
// holds (enabled, TX-empty unmasked, shifter empty). The servicing flag
// keeps at most one context alive, preserving the driver's
// single-consumer discipline on its TX ring.
func (u *UART) maybeService() {
	u.mu.Lock()
	if !u.enabled || !u.txIRQ || u.busy || u.servicing {
		u.mu.Unlock()
		return
	}
	u.servicing = true
	u.mu.Unlock()
	go u.serviceLoop()
}

func (u *UART) serviceLoop() {
	for {
		if serialx.Bound(u.ch) == nil {
			// No port bound: nobody can feed the data register or mask
			// the interrupt, so stop instead of spinning.
			u.mu.Lock()
			u.servicing = false
			u.mu.Unlock()
			return
		}
		// Either loads the data register (busy goes true) or masks the
		// interrupt (txIRQ goes false); both end the loop.
		serialx.ServiceTxEmpty(u.ch)
		u.mu.Lock()
		if !u.enabled || !u.txIRQ || u.busy {
			u.servicing = false
			u.mu.Unlock()
			return
		}
		u.mu.Unlock()
	}
}
