// uartmetrics/collector.go

// Package uartmetrics exposes serialx port counters as Prometheus
// metrics.
package uartmetrics

import (
	"github.com/prometheus/client_golang/prometheus"

	"github.com/jangala-dev/go-serialx/serialx"
)

// Collector reads a port's Stats snapshot on every scrape.
type Collector struct {
	uart *serialx.UART

	rxBytes     *prometheus.Desc
	rxDropped   *prometheus.Desc
	txBytes     *prometheus.Desc
	txWaits     *prometheus.Desc
	rxISRs      *prometheus.Desc
	txISRs      *prometheus.Desc
	rxBuffered  *prometheus.Desc
	rxHighWater *prometheus.Desc
}

// NewCollector returns a collector for u. The port label distinguishes
// multiple registered ports.
func NewCollector(port string, u *serialx.UART) *Collector {
	labels := prometheus.Labels{"port": port}
	return &Collector{
		uart: u,
		rxBytes: prometheus.NewDesc("serialx_rx_bytes_total",
			"Bytes accepted into the receive buffer.", nil, labels),
		rxDropped: prometheus.NewDesc("serialx_rx_dropped_total",
			"Received bytes discarded because the receive buffer was full.", nil, labels),
		txBytes: prometheus.NewDesc("serialx_tx_bytes_total",
			"Bytes handed to the hardware transmitter.", nil, labels),
		txWaits: prometheus.NewDesc("serialx_tx_waits_total",
			"Writes that had to park waiting for transmit buffer space.", nil, labels),
		rxISRs: prometheus.NewDesc("serialx_rx_interrupts_total",
			"Receive-complete interrupts serviced.", nil, labels),
		txISRs: prometheus.NewDesc("serialx_tx_interrupts_total",
			"Transmit-empty interrupts serviced.", nil, labels),
		rxBuffered: prometheus.NewDesc("serialx_rx_buffered_bytes",
			"Received bytes currently waiting to be read.", nil, labels),
		rxHighWater: prometheus.NewDesc("serialx_rx_high_water_bytes",
			"High-water mark of receive buffer occupancy.", nil, labels),
	}
}

// Describe implements prometheus.Collector.
func (c *Collector) Describe(ch chan<- *prometheus.Desc) {
	ch <- c.rxBytes
	ch <- c.rxDropped
	ch <- c.txBytes
	ch <- c.txWaits
	ch <- c.rxISRs
	ch <- c.txISRs
	ch <- c.rxBuffered
	ch <- c.rxHighWater
}

// Collect implements prometheus.Collector.
func (c *Collector) Collect(ch chan<- prometheus.Metric) {
	s := c.uart.Stats()
	counter := func(d *prometheus.Desc, v uint32) {
		ch <- prometheus.MustNewConstMetric(d, prometheus.CounterValue, float64(v))
	}
	counter(c.rxBytes, s.RxBytes)
	counter(c.rxDropped, s.RxDropped)
	counter(c.txBytes, s.TxBytes)
	counter(c.txWaits, s.TxWaits)
	counter(c.rxISRs, s.RxISRs)
	counter(c.txISRs, s.TxISRs)
	ch <- prometheus.MustNewConstMetric(c.rxBuffered, prometheus.GaugeValue, float64(c.uart.Buffered()))
	ch <- prometheus.MustNewConstMetric(c.rxHighWater, prometheus.GaugeValue, float64(s.RxHighWater))
}
