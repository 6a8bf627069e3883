// Self-test for the serialx driver over the simulated hardware backend.
// Runs a loopback scenario end-to-end: configuration, blocking writes,
// interrupt-driven receive, backpressure and teardown.
package main

import (
	"bytes"
	"context"
	"crypto/sha1"
	"fmt"
	"math/rand"
	"os"
	"time"

	"github.com/jangala-dev/go-serialx/serialx"
	"github.com/jangala-dev/go-serialx/simhw"
)

var (
	baud     = uint32(115200)
	byteTime = 5 * time.Microsecond
)

func recvExact(ctx context.Context, u *serialx.UART, n int) ([]byte, error) {
	out := make([]byte, 0, n)
	buf := make([]byte, 128)
	for len(out) < n {
		k, err := u.ReadBlocking(ctx, buf)
		if err != nil {
			return out, err
		}
		out = append(out, buf[:k]...)
	}
	return out, nil
}

func main() {
	hw := simhw.New(serialx.Channel0, byteTime)
	hw.Loopback()
	u := serialx.New(serialx.Channel0, hw, serialx.Config{})

	fmt.Println("serialx self-test starting")

	if err := u.Begin(baud, serialx.Format8N1); err != nil {
		fmt.Println("Begin failed:", err)
		os.Exit(1)
	}
	defer u.End()

	pass, fail := 0, 0
	run := func(name string, f func() string) {
		fmt.Println()
		fmt.Println("[Test]", name)
		if msg := f(); msg == "" {
			fmt.Println("  PASS")
			pass++
		} else {
			fmt.Println("  FAIL:", msg)
			fail++
		}
	}

	run("sanity: short loopback (Write + blocking Read)", func() string {
		msg := []byte("hello, serialx\r\n")
		if _, err := u.Write(msg); err != nil {
			return "write failed: " + err.Error()
		}
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		got, err := recvExact(ctx, u, len(msg))
		if err != nil {
			return "read failed: " + err.Error()
		}
		if !bytes.Equal(got, msg) {
			return fmt.Sprintf("echo mismatch: %q", got)
		}
		return ""
	})

	run("bulk: 4KiB random payload survives the loop intact", func() string {
		payload := make([]byte, 4096)
		rand.Read(payload)
		want := sha1.Sum(payload)

		done := make(chan error, 1)
		go func() {
			_, err := u.Write(payload)
			done <- err
		}()

		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		got, err := recvExact(ctx, u, len(payload))
		if err != nil {
			return "read failed: " + err.Error()
		}
		if err := <-done; err != nil {
			return "write failed: " + err.Error()
		}
		if sha1.Sum(got) != want {
			return "payload digest mismatch"
		}
		return ""
	})

	run("backpressure: writer parks and resumes without loss", func() string {
		before := u.Stats().TxWaits
		payload := make([]byte, 1024)
		for i := range payload {
			payload[i] = byte(i)
		}
		done := make(chan error, 1)
		go func() {
			_, err := u.Write(payload)
			done <- err
		}()
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		got, err := recvExact(ctx, u, len(payload))
		if err != nil {
			return "read failed: " + err.Error()
		}
		if err := <-done; err != nil {
			return "write failed: " + err.Error()
		}
		if !bytes.Equal(got, payload) {
			return "payload mismatch"
		}
		if u.Stats().TxWaits == before {
			return "expected at least one parked write (1KiB through a 64B ring)"
		}
		return ""
	})

	run("flush: everything on the wire when Flush returns", func() string {
		if _, err := u.Write([]byte("drain me")); err != nil {
			return "write failed: " + err.Error()
		}
		if err := u.Flush(); err != nil {
			return "flush failed: " + err.Error()
		}
		return ""
	})

	run("teardown: End flushes and is idempotent", func() string {
		if err := u.End(); err != nil {
			return "end failed: " + err.Error()
		}
		if err := u.End(); err != nil {
			return "second end failed: " + err.Error()
		}
		if err := u.WriteByte('x'); err != serialx.ErrClosed {
			return "write after End should report a closed port"
		}
		if err := u.Begin(baud, serialx.Format8N1); err != nil {
			return "re-begin failed: " + err.Error()
		}
		return ""
	})

	fmt.Println()
	fmt.Println("Summary")
	fmt.Println("  passed =", pass)
	fmt.Println("  failed =", fail)
	if fail > 0 {
		os.Exit(1)
	}
}
