// serialx/format.go

package serialx

// Parity defines the parity setting used for serial communication.
type Parity uint8

const (
	// ParityNone disables parity generation and checking (the most common setting).
	ParityNone Parity = iota
	// ParityEven sets even parity (total number of 1 bits is even).
	ParityEven
	// ParityOdd sets odd parity (total number of 1 bits is odd).
	ParityOdd
)

// Format encodes a serial frame format (data bits, parity, stop bits) as
// a small flag byte. The concrete line-control register layout is the
// hardware backend's concern; backends translate a Format when the port
// is programmed.
type Format uint8

const (
	Data5 Format = 0x00
	Data6 Format = 0x01
	Data7 Format = 0x02
	Data8 Format = 0x03

	Stop1 Format = 0x00
	Stop2 Format = 0x08

	NoParity   Format = 0x00
	EvenParity Format = 0x20
	OddParity  Format = 0x30

	dataMask   Format = 0x03
	stopMask   Format = 0x08
	parityMask Format = 0x30
)

// Common frame formats.
const (
	Format8N1 = Data8 | NoParity | Stop1
	Format8N2 = Data8 | NoParity | Stop2
	Format8E1 = Data8 | EvenParity | Stop1
	Format8O1 = Data8 | OddParity | Stop1
	Format7E1 = Data7 | EvenParity | Stop1
)

// DataBits returns the number of data bits per frame (5..8).
func (f Format) DataBits() int { return int(f&dataMask) + 5 }

// StopBits returns the number of stop bits per frame (1 or 2).
func (f Format) StopBits() int {
	if f&stopMask != 0 {
		return 2
	}
	return 1
}

// Parity returns the parity scheme of the frame.
func (f Format) Parity() Parity {
	switch f & parityMask {
	case EvenParity:
		return ParityEven
	case OddParity:
		return ParityOdd
	}
	return ParityNone
}
