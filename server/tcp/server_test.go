package tcp

import (
	"bufio"
	"context"
	"net"
	"testing"
	"time"

	"github.com/latchkv/latchkv"
)

func startTestServer(t *testing.T) (addr string, stop func()) {
	t.Helper()
	cache := latchkv.NewCache(latchkv.Config{MaxSize: 1 << 16})
	srv := New(cache, nil, 0)

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("Listen: %v", err)
	}
	ln.Close()
	addr = ln.Addr().String()

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		_ = srv.ListenAndServe(ctx, addr)
		close(done)
	}()

	// Give the listener a moment to bind.
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if conn, err := net.Dial("tcp", addr); err == nil {
			conn.Close()
			break
		}
		time.Sleep(10 * time.Millisecond)
	}

	return addr, func() {
		cancel()
		_ = srv.Stop()
		<-done
		cache.Close()
	}
}

func TestServerSetGet(t *testing.T) {
	addr, stop := startTestServer(t)
	defer stop()

	conn, err := net.Dial("tcp", addr)
	if err != nil {
		t.Fatalf("Dial: %v", err)
	}
	defer conn.Close()

	rw := bufio.NewReadWriter(bufio.NewReader(conn), bufio.NewWriter(conn))

	if _, err := rw.WriteString("set foo 0 0 3\r\nbar\r\n"); err != nil {
		t.Fatalf("write set: %v", err)
	}
	rw.Flush()
	line, err := rw.ReadString('\n')
	if err != nil {
		t.Fatalf("read reply: %v", err)
	}
	if line != "STORED\r\n" {
		t.Fatalf("got %q, want STORED", line)
	}

	if _, err := rw.WriteString("get foo\r\n"); err != nil {
		t.Fatalf("write get: %v", err)
	}
	rw.Flush()
	for _, want := range []string{"VALUE foo 0 3\r\n", "bar\r\n", "END\r\n"} {
		line, err := rw.ReadString('\n')
		if err != nil {
			t.Fatalf("read reply: %v", err)
		}
		if line != want {
			t.Fatalf("got %q, want %q", line, want)
		}
	}
}

func TestServerNoReplySuppressesLine(t *testing.T) {
	addr, stop := startTestServer(t)
	defer stop()

	conn, err := net.Dial("tcp", addr)
	if err != nil {
		t.Fatalf("Dial: %v", err)
	}
	defer conn.Close()

	rw := bufio.NewReadWriter(bufio.NewReader(conn), bufio.NewWriter(conn))
	rw.WriteString("set foo 0 0 1 noreply\r\nv\r\n")
	rw.WriteString("get foo\r\n")
	rw.Flush()

	line, err := rw.ReadString('\n')
	if err != nil {
		t.Fatalf("read reply: %v", err)
	}
	if line != "VALUE foo 0 1\r\n" {
		t.Fatalf("got %q, want VALUE line immediately (noreply set produced no output)", line)
	}
}
