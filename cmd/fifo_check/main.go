// Ring buffer invariant check: drives a serialx.Ring with a producer and
// a consumer goroutine and verifies FIFO order, occupancy bounds and the
// exact full/empty edges.
package main

import (
	"flag"
	"fmt"
	"log"
	"sync/atomic"
	"time"

	"github.com/jangala-dev/go-serialx/serialx"
)

var (
	size     = flag.Int("size", 64, "ring capacity to exercise")
	duration = flag.Duration("duration", 2*time.Second, "how long to run the concurrent phase")
)

func main() {
	flag.Parse()
	log.SetFlags(log.Lmicroseconds)

	r := serialx.NewRing(*size)
	n := r.Cap()
	log.Printf("ring capacity %d", n)

	// Edge phase: exactly N puts fit, the N+1th fails; then exactly N
	// gets succeed, the N+1th fails.
	for i := 0; i < n; i++ {
		if !r.Put(byte(i)) {
			log.Fatalf("put %d/%d rejected on a non-full ring", i+1, n)
		}
	}
	if r.Put(0xAA) {
		log.Fatalf("put %d accepted on a full ring", n+1)
	}
	for i := 0; i < n; i++ {
		b, ok := r.Get()
		if !ok || b != byte(i) {
			log.Fatalf("get %d/%d: ok=%v b=%#x", i+1, n, ok, b)
		}
	}
	if _, ok := r.Get(); ok {
		log.Fatalf("get %d succeeded on an empty ring", n+1)
	}
	log.Print("edge phase ok")

	// Concurrent phase: one producer, one consumer, byte sequence must
	// come out in order with occupancy always within [0, N].
	var produced, consumed atomic.Uint64
	stop := make(chan struct{})
	errs := make(chan error, 2)

	go func() {
		var next byte
		for {
			select {
			case <-stop:
				errs <- nil
				return
			default:
			}
			if r.Put(next) {
				next++
				produced.Add(1)
			}
		}
	}()
	go func() {
		var want byte
		for {
			if l := r.Len(); l < 0 || l > n {
				errs <- fmt.Errorf("occupancy %d outside [0,%d]", l, n)
				return
			}
			b, ok := r.Get()
			if !ok {
				select {
				case <-stop:
					errs <- nil
					return
				default:
					continue
				}
			}
			if b != want {
				errs <- fmt.Errorf("order violated: got %#x want %#x", b, want)
				return
			}
			want++
			consumed.Add(1)
		}
	}()

	<-time.After(*duration)
	close(stop)
	for i := 0; i < 2; i++ {
		if err := <-errs; err != nil {
			log.Fatal(err)
		}
	}

	log.Printf("concurrent phase ok: produced=%d consumed=%d", produced.Load(), consumed.Load())
}
