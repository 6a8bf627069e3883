// serialx/uart.go

// Package serialx provides an interrupt-driven, buffered asynchronous
// serial port driver. A UART owns one RX and one TX ring; received bytes
// arrive via the receive-complete interrupt and are drained with
// non-blocking reads, while WriteByte blocks (parking the caller through
// a low-power Idler) whenever the TX ring is full and the hardware has
// not yet drained it. Hardware access goes through the Registers
// interface so the same driver runs against simulated, host-serial or
// real board backends.
package serialx

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"time"
)

var (
	// ErrBufferEmpty is returned by ReadByte when no received byte is
	// pending. Absence of data is "nothing yet", not a failure.
	ErrBufferEmpty = errors.New("serialx: RX buffer empty")
	// ErrClosed is returned by transport calls on a port that is not
	// open.
	ErrClosed = errors.New("serialx: port closed")
)

// Idler is the low-power wait primitive consumed by the blocking write
// path. Idle parks the calling context until interrupt-side progress may
// have occurred; callers always re-check state after waking. On silicon
// this maps to sleep-until-interrupt; the default host implementation
// parks on the port's TX notify channel.
type Idler interface {
	Idle()
}

// Config carries construction-time settings for a UART. The zero value
// selects a 16 MHz clock, 64-byte rings and the channel-based idler.
type Config struct {
	ClockHz      uint32
	RxBufferSize int
	TxBufferSize int
	Idler        Idler
}

// UART is a hardware-buffered serial port bound to one channel. It is
// safe for one main-line reader and one main-line writer concurrently
// with the channel's interrupt context; the rings are strictly
// single-producer/single-consumer per direction.
type UART struct {
	ch    Channel
	hw    Registers
	clock uint32

	rx *Ring // produced by rxISR, consumed by Read*
	tx *Ring // produced by Write*, consumed by txISR

	notify   chan struct{} // coalesced RX readiness wake-up
	txNotify chan struct{} // coalesced TX progress wake-up

	idler Idler

	mu   sync.Mutex // serializes Begin/End
	open atomic.Bool
	baud uint32

	stats stats
}

// New constructs a closed port for channel ch over the given register
// backend.
func New(ch Channel, hw Registers, cfg Config) *UART {
	u := &UART{
		ch:       ch,
		hw:       hw,
		clock:    cfg.ClockHz,
		rx:       NewRing(cfg.RxBufferSize),
		tx:       NewRing(cfg.TxBufferSize),
		notify:   make(chan struct{}, 1),
		txNotify: make(chan struct{}, 1),
		idler:    cfg.Idler,
	}
	if u.clock == 0 {
		u.clock = DefaultClockHz
	}
	if u.idler == nil {
		u.idler = &waitIdler{wake: u.txNotify}
	}
	return u
}

// waitIdler parks on the port's coalesced TX notify channel. The 1-slot
// channel keeps a pending token from a drain that happened between the
// caller's full-check and the park, so a wakeup is never missed.
type waitIdler struct {
	wake <-chan struct{}
}

func (w *waitIdler) Idle() { <-w.wake }

// Begin computes the bit-rate settings, programs the hardware, enables
// the receiver, transmitter and receive interrupt, and binds the port to
// its channel's interrupt vectors. It fails if the baud rate is not
// representable in either sampling mode or if another port already owns
// the channel.
func (u *UART) Begin(baud uint32, format Format) error {
	u.mu.Lock()
	defer u.mu.Unlock()
	set, err := CalcBaud(u.clock, baud)
	if err != nil {
		return err
	}
	if err := Bind(u.ch, u); err != nil {
		return err
	}
	u.hw.Program(set, format)
	u.hw.Enable()
	u.baud = baud
	u.open.Store(true)
	return nil
}

// End disables the receiver, transmitter and both interrupts, unbinds
// the channel and discards both rings. Calling End on a closed port is a
// no-op.
func (u *UART) End() error {
	u.mu.Lock()
	defer u.mu.Unlock()
	if !u.open.Load() {
		return nil
	}
	u.open.Store(false)
	u.hw.Disable()
	Unbind(u.ch)
	u.tx.Flush()
	u.rx.Flush()
	// Wake parked callers so they observe the closed state.
	tryNotify(u.notify)
	tryNotify(u.txNotify)
	return nil
}

// Baud returns the bit rate configured by the last successful Begin.
func (u *UART) Baud() uint32 { return u.baud }

func tryNotify(ch chan struct{}) {
	select {
	case ch <- struct{}{}:
	default:
	}
}

// ---------------- transmit path (main-line producer) ----------------

// WriteByte enqueues one byte for transmission. If the TX ring is full
// it parks via the Idler and retries after each wake until the byte is
// accepted, then (re-)enables the transmit-empty interrupt so hardware
// begins or continues draining. It blocks indefinitely if the hardware
// never drains; callers needing bounded latency should use WriteContext.
func (u *UART) WriteByte(c byte) error {
	if !u.open.Load() {
		return ErrClosed
	}
	for !u.tx.Put(c) {
		if !u.open.Load() {
			return ErrClosed
		}
		u.stats.txWaits.Add(1)
		u.idler.Idle()
	}
	u.hw.EnableTxEmptyIRQ()
	return nil
}

// Write implements io.Writer with WriteByte's blocking behaviour per
// byte. It returns the number of bytes accepted by the driver; it does
// not wait for the line to drain (use Flush for that).
func (u *UART) Write(p []byte) (int, error) {
	for i, b := range p {
		if err := u.WriteByte(b); err != nil {
			return i, err
		}
	}
	return len(p), nil
}

// TryWrite enqueues as many bytes of p as currently fit and returns the
// count. It never blocks; 0 means "no space now".
func (u *UART) TryWrite(p []byte) int {
	if !u.open.Load() {
		return 0
	}
	n := 0
	for n < len(p) && u.tx.Put(p[n]) {
		n++
	}
	if n > 0 {
		u.hw.EnableTxEmptyIRQ()
	}
	return n
}

// WriteContext behaves like Write but gives up when ctx is done,
// returning the number of bytes accepted so far. This is the bounded-
// latency layer over the otherwise unbounded blocking write.
func (u *UART) WriteContext(ctx context.Context, p []byte) (int, error) {
	sent := 0
	for sent < len(p) {
		if n := u.TryWrite(p[sent:]); n > 0 {
			sent += n
			continue
		}
		if !u.open.Load() {
			return sent, ErrClosed
		}
		select {
		case <-u.txNotify: // progress likely occurred; re-check
		case <-ctx.Done():
			return sent, ctx.Err()
		}
	}
	return sent, nil
}

// Flush blocks until the TX ring is empty and the hardware transmitter
// reports idle, i.e. everything written is on the wire.
func (u *UART) Flush() error {
	for {
		if !u.open.Load() {
			return ErrClosed
		}
		if u.tx.Len() == 0 && u.hw.TxIdle() {
			return nil
		}
		// The TX notify fires as the ring drains, but nothing signals the
		// shifter going idle, so pair the wake with a timed re-check.
		select {
		case <-u.txNotify:
		case <-time.After(u.drainTick()):
		}
	}
}

// drainTick is Flush's polling interval: two 10-bit frame times at the
// configured rate, floored so a fast port still yields the scheduler.
func (u *UART) drainTick() time.Duration {
	if u.baud == 0 {
		return 50 * time.Microsecond
	}
	bit := time.Second / time.Duration(u.baud)
	t := 20 * bit
	if t < 20*time.Microsecond {
		t = 20 * time.Microsecond
	}
	return t
}

// TxFree returns the remaining space in the TX ring in bytes.
func (u *UART) TxFree() int { return u.tx.Free() }

// Writable returns a coalesced notification for TX progress. The driver
// sends on it whenever the interrupt handler moves a byte to hardware;
// callers must re-check state after waking.
func (u *UART) Writable() <-chan struct{} { return u.txNotify }

// ---------------- receive path (main-line consumer) ----------------

// ReadByte removes and returns the oldest received byte. It never
// blocks; ErrBufferEmpty means nothing has arrived yet.
func (u *UART) ReadByte() (byte, error) {
	if b, ok := u.rx.Get(); ok {
		return b, nil
	}
	return 0, ErrBufferEmpty
}

// Read copies up to len(p) already-received bytes into p. It never
// blocks and never fails; n == 0 means "no data now".
func (u *UART) Read(p []byte) (int, error) {
	n := 0
	for n < len(p) {
		b, ok := u.rx.Get()
		if !ok {
			break
		}
		p[n] = b
		n++
	}
	return n, nil
}

// Buffered returns the number of received bytes waiting in the RX ring.
func (u *UART) Buffered() int { return u.rx.Len() }

// Readable returns a coalesced notification for RX readiness. A receive
// interrupt that enqueues a byte sends on this channel; callers must
// re-check state after waking.
func (u *UART) Readable() <-chan struct{} { return u.notify }

// WaitReadable blocks until at least one byte is buffered, the port is
// closed, or ctx is done.
func (u *UART) WaitReadable(ctx context.Context) error {
	for {
		if u.Buffered() > 0 {
			return nil
		}
		if !u.open.Load() {
			return ErrClosed
		}
		select {
		case <-u.notify:
			// Re-check; a coalesced notify can be spurious.
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

// ReadBlocking blocks until at least one byte is available, then reads
// up to len(p) bytes.
func (u *UART) ReadBlocking(ctx context.Context, p []byte) (int, error) {
	for {
		if n, _ := u.Read(p); n > 0 {
			return n, nil
		}
		if err := u.WaitReadable(ctx); err != nil {
			return 0, err
		}
	}
}

// ReadByteBlocking blocks for a single byte or until ctx is done.
func (u *UART) ReadByteBlocking(ctx context.Context) (byte, error) {
	for {
		if b, err := u.ReadByte(); err == nil {
			return b, nil
		}
		if err := u.WaitReadable(ctx); err != nil {
			return 0, err
		}
	}
}

// ReadWithTimeout reads like ReadBlocking with a deadline of d.
func (u *UART) ReadWithTimeout(p []byte, d time.Duration) (int, error) {
	ctx, cancel := context.WithTimeout(context.Background(), d)
	defer cancel()
	return u.ReadBlocking(ctx, p)
}

// ---------------- interrupt context ----------------

// rxISR services a receive-complete interrupt: it moves the byte from
// the data register into the RX ring. A full ring drops the byte
// (drop-newest) and counts it; reception is best-effort by contract.
func (u *UART) rxISR() {
	u.stats.rxISRs.Add(1)
	b := u.hw.ReadData()
	if u.rx.Put(b) {
		u.stats.rxBytes.Add(1)
		u.stats.noteRxHighWater(uint32(u.rx.Len()))
	} else {
		u.stats.rxDropped.Add(1)
	}
	tryNotify(u.notify)
}

// txISR services a transmit-empty interrupt: it moves one byte from the
// TX ring to the data register, or masks the interrupt when the ring is
// empty so it stays quiet until the next write re-enables it. Each drain
// coalesces a TX notify, which is what wakes a writer parked on a full
// ring.
func (u *UART) txISR() {
	u.stats.txISRs.Add(1)
	if b, ok := u.tx.Get(); ok {
		u.hw.WriteData(b)
		u.stats.txBytes.Add(1)
		tryNotify(u.txNotify)
		return
	}
	u.hw.DisableTxEmptyIRQ()
	// A writer may have enqueued and re-enabled the interrupt between the
	// empty Get above and the mask: that enable would be swallowed and the
	// byte stranded until the next write. Re-check and unmask so the
	// service picks it up.
	if u.tx.Len() > 0 {
		u.hw.EnableTxEmptyIRQ()
	}
}
