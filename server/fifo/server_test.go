package fifo

import (
	"bufio"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/latchkv/latchkv"
)

func TestFIFOServerSetGet(t *testing.T) {
	dir := t.TempDir()
	readPath := filepath.Join(dir, "in")
	writePath := filepath.Join(dir, "out")

	cache := latchkv.NewCache(latchkv.Config{MaxSize: 1 << 16})
	defer cache.Close()
	srv := New(cache, nil)

	serveErr := make(chan error, 1)
	go func() {
		serveErr <- srv.Serve(readPath, writePath)
	}()

	// Serve blocks opening readPath for O_RDONLY until a writer opens the
	// other end; open both ends from the test side the same way a real
	// client would.
	var in, out *os.File
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		f, err := os.OpenFile(readPath, os.O_WRONLY, os.ModeNamedPipe)
		if err == nil {
			in = f
			break
		}
		time.Sleep(10 * time.Millisecond)
	}
	if in == nil {
		t.Fatal("timed out opening read FIFO for writing")
	}
	defer in.Close()

	out, err := os.OpenFile(writePath, os.O_RDONLY, os.ModeNamedPipe)
	if err != nil {
		t.Fatalf("open write FIFO: %v", err)
	}
	defer out.Close()

	r := bufio.NewReader(out)

	if _, err := in.WriteString("set foo 0 0 3\r\nbar\r\n"); err != nil {
		t.Fatalf("write set: %v", err)
	}
	line, err := r.ReadString('\n')
	if err != nil {
		t.Fatalf("read reply: %v", err)
	}
	if line != "STORED\r\n" {
		t.Fatalf("got %q, want STORED", line)
	}

	if _, err := in.WriteString("get foo\r\n"); err != nil {
		t.Fatalf("write get: %v", err)
	}
	for _, want := range []string{"VALUE foo 0 3\r\n", "bar\r\n", "END\r\n"} {
		line, err := r.ReadString('\n')
		if err != nil {
			t.Fatalf("read reply: %v", err)
		}
		if line != want {
			t.Fatalf("got %q, want %q", line, want)
		}
	}

	srv.Stop()
	select {
	case <-serveErr:
	case <-time.After(2 * time.Second):
		t.Fatal("Serve did not return after Stop")
	}
}
