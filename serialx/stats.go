// serialx/stats.go

package serialx

import "sync/atomic"

// Stats holds port counters since Begin (or the last StatsReset).
type Stats struct {
	// ISR-level
	RxISRs uint32 // receive-complete interrupts serviced
	TxISRs uint32 // transmit-empty interrupts serviced

	// Byte flow
	RxBytes   uint32 // bytes accepted into the RX ring
	RxDropped uint32 // bytes discarded because the RX ring was full
	TxBytes   uint32 // bytes handed to the hardware data register

	// Blocking API behaviour
	TxWaits     uint32 // times WriteByte had to park for space
	RxHighWater uint32 // high-water mark of RX ring occupancy
}

type stats struct {
	rxISRs      atomic.Uint32
	txISRs      atomic.Uint32
	rxBytes     atomic.Uint32
	rxDropped   atomic.Uint32
	txBytes     atomic.Uint32
	txWaits     atomic.Uint32
	rxHighWater atomic.Uint32
}

func (s *stats) noteRxHighWater(used uint32) {
	for {
		max := s.rxHighWater.Load()
		if used <= max {
			return
		}
		if s.rxHighWater.CompareAndSwap(max, used) {
			return
		}
	}
}

// Stats returns a snapshot of the port counters.
func (u *UART) Stats() Stats {
	return Stats{
		RxISRs:      u.stats.rxISRs.Load(),
		TxISRs:      u.stats.txISRs.Load(),
		RxBytes:     u.stats.rxBytes.Load(),
		RxDropped:   u.stats.rxDropped.Load(),
		TxBytes:     u.stats.txBytes.Load(),
		TxWaits:     u.stats.txWaits.Load(),
		RxHighWater: u.stats.rxHighWater.Load(),
	}
}

// StatsReset zeroes the port counters.
func (u *UART) StatsReset() {
	u.stats.rxISRs.Store(0)
	u.stats.txISRs.Store(0)
	u.stats.rxBytes.Store(0)
	u.stats.rxDropped.Store(0)
	u.stats.txBytes.Store(0)
	u.stats.txWaits.Store(0)
	u.stats.rxHighWater.Store(0)
}
