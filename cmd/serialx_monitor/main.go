// serialx_monitor runs continuous loopback traffic through the driver on
// simulated hardware and serves the port counters as Prometheus metrics.
// Useful for watching buffer behaviour (drops, parked writes, high-water
// marks) under a chosen load.
package main

import (
	"context"
	"flag"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/golang/glog"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/jangala-dev/go-serialx/serialx"
	"github.com/jangala-dev/go-serialx/simhw"
	"github.com/jangala-dev/go-serialx/uartmetrics"
)

var (
	addr     = flag.String("listen", ":8080", "metrics listen address")
	baud     = flag.Uint("baud", 115200, "configured bit rate")
	byteTime = flag.Duration("byte-time", 50*time.Microsecond, "simulated time per byte on the wire")
	burst    = flag.Int("burst", 256, "bytes written per burst")
	interval = flag.Duration("interval", 10*time.Millisecond, "pause between bursts")
)

func main() {
	flag.Parse()
	defer glog.Flush()

	hw := simhw.New(serialx.Channel0, *byteTime)
	hw.Loopback()
	u := serialx.New(serialx.Channel0, hw, serialx.Config{})
	if err := u.Begin(uint32(*baud), serialx.Format8N1); err != nil {
		glog.Exitf("Begin: %v", err)
	}
	defer u.End()

	reg := prometheus.NewRegistry()
	reg.MustRegister(uartmetrics.NewCollector("sim0", u))

	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))
	server := &http.Server{Addr: *addr, Handler: mux}

	go func() {
		glog.Infof("serving metrics on %s/metrics", *addr)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			glog.Exitf("http: %v", err)
		}
	}()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Writer: bursts of sequential bytes.
	go func() {
		payload := make([]byte, *burst)
		for i := range payload {
			payload[i] = byte(i)
		}
		for ctx.Err() == nil {
			if _, err := u.Write(payload); err != nil {
				glog.Errorf("write: %v", err)
				return
			}
			time.Sleep(*interval)
		}
	}()

	// Reader: drains whatever the loop delivers.
	go func() {
		buf := make([]byte, 512)
		for {
			if _, err := u.ReadBlocking(ctx, buf); err != nil {
				if ctx.Err() == nil {
					glog.Errorf("read: %v", err)
				}
				return
			}
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	glog.Info("shutting down")
	cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		glog.Errorf("shutdown: %v", err)
	}
}
