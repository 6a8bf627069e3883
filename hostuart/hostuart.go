// hostuart/hostuart.go

// Package hostuart binds a serialx channel to a real operating-system
// serial port (USB adapter, virtual tty, ...) through go.bug.st/serial.
// The OS port plays the part of the hardware UART: a read pump raises
// the receive-complete interrupt per byte, and a write pump raises the
// transmit-empty interrupt as each byte is handed to the kernel.
package hostuart

import (
	"sync/atomic"

	"github.com/golang/glog"
	"go.bug.st/serial"

	"github.com/jangala-dev/go-serialx/serialx"
)

// Port implements serialx.Registers over an OS serial port.
type Port struct {
	ch    serialx.Channel
	clock uint32
	path  string
	port  serial.Port

	enabled atomic.Bool
	txIRQ   atomic.Bool
	pending atomic.Bool // byte handed to WriteData, not yet at the kernel
	rxReg   atomic.Uint32

	txCh chan byte
	kick chan struct{}
	done chan struct{}
}

// Open opens the OS serial port at path and returns a Port for ch.
// clockHz is the virtual system clock the driver's divisor arithmetic is
// based on; it is used to recover the bit rate from the programmed
// divisor.
func Open(ch serialx.Channel, path string, clockHz uint32) (*Port, error) {
	if clockHz == 0 {
		clockHz = serialx.DefaultClockHz
	}
	osPort, err := serial.Open(path, &serial.Mode{BaudRate: 9600})
	if err != nil {
		return nil, err
	}
	p := &Port{
		ch:    ch,
		clock: clockHz,
		path:  path,
		port:  osPort,
		txCh:  make(chan byte, 1),
		kick:  make(chan struct{}, 1),
		done:  make(chan struct{}),
	}
	go p.readPump()
	go p.writePump()
	return p, nil
}

// Close stops the pumps and closes the OS port. The bound serialx port
// should be Ended first.
func (p *Port) Close() error {
	select {
	case <-p.done:
		return nil
	default:
	}
	close(p.done)
	return p.port.Close()
}

// ---------------- serialx.Registers ----------------

func (p *Port) Program(s serialx.BaudSetting, f serialx.Format) {
	mode := ModeFor(p.clock, s, f)
	if err := p.port.SetMode(mode); err != nil {
		glog.Errorf("hostuart %s: SetMode(%+v): %v", p.path, mode, err)
	}
}

func (p *Port) Enable() { p.enabled.Store(true) }

func (p *Port) Disable() {
	p.enabled.Store(false)
	p.txIRQ.Store(false)
}

func (p *Port) EnableTxEmptyIRQ() {
	p.txIRQ.Store(true)
	select {
	case p.kick <- struct{}{}:
	default:
	}
}

func (p *Port) DisableTxEmptyIRQ() { p.txIRQ.Store(false) }

func (p *Port) ReadData() byte { return byte(p.rxReg.Load()) }

// WriteData is called from the transmit-empty service path, which only
// runs while the data register is empty, so the 1-slot channel never
// blocks.
func (p *Port) WriteData(b byte) {
	p.pending.Store(true)
	p.txCh <- b
}

func (p *Port) TxIdle() bool {
	return !p.pending.Load() && len(p.txCh) == 0
}

// ---------------- pumps (interrupt context stand-ins) ----------------

func (p *Port) readPump() {
	buf := make([]byte, 1)
	for {
		n, err := p.port.Read(buf)
		if err != nil {
			select {
			case <-p.done:
			default:
				glog.Errorf("hostuart %s: read: %v", p.path, err)
			}
			return
		}
		if n == 0 || !p.enabled.Load() {
			continue
		}
		p.rxReg.Store(uint32(buf[0]))
		serialx.ServiceRx(p.ch)
	}
}

func (p *Port) writePump() {
	for {
		select {
		case <-p.done:
			return
		case b := <-p.txCh:
			if _, err := p.port.Write([]byte{b}); err != nil {
				glog.Errorf("hostuart %s: write: %v", p.path, err)
			}
			p.pending.Store(false)
			if p.txIRQ.Load() {
				serialx.ServiceTxEmpty(p.ch)
			}
		case <-p.kick:
			if p.txIRQ.Load() && !p.pending.Load() {
				serialx.ServiceTxEmpty(p.ch)
			}
		}
	}
}
