package protocol

import (
	"testing"

	"github.com/latchkv/latchkv"
)

func TestParseHeaderGet(t *testing.T) {
	h, err := ParseHeader("get foo")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if h.Verb != VerbGet || h.Key != "foo" || h.NoReply {
		t.Fatalf("unexpected header: %+v", h)
	}
	if h.NeedsData() {
		t.Fatalf("get should not need a data block")
	}
}

func TestParseHeaderSet(t *testing.T) {
	h, err := ParseHeader("set foo 0 0 5")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if h.Verb != VerbSet || h.Key != "foo" || h.Bytes != 5 {
		t.Fatalf("unexpected header: %+v", h)
	}
	if !h.NeedsData() {
		t.Fatalf("set should need a data block")
	}
}

func TestParseHeaderNoReply(t *testing.T) {
	h, err := ParseHeader("delete foo noreply")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !h.NoReply || h.Key != "foo" {
		t.Fatalf("unexpected header: %+v", h)
	}
}

func TestParseHeaderUnknown(t *testing.T) {
	if _, err := ParseHeader("frobnicate foo"); err != ErrUnknownCommand {
		t.Fatalf("expected ErrUnknownCommand, got %v", err)
	}
}

func TestParseHeaderMalformed(t *testing.T) {
	if _, err := ParseHeader("set foo 0 0"); err != ErrMalformed {
		t.Fatalf("expected ErrMalformed, got %v", err)
	}
	if _, err := ParseHeader("get"); err != ErrMalformed {
		t.Fatalf("expected ErrMalformed, got %v", err)
	}
}

func TestDispatchSetGet(t *testing.T) {
	cache := latchkv.NewCache(latchkv.Config{MaxSize: 1024})
	defer cache.Close()

	h, _ := ParseHeader("set foo 0 0 3")
	r := Dispatch(cache, h, []byte("bar"))
	if string(r.Bytes()) != "STORED\r\n" {
		t.Fatalf("unexpected reply: %q", r.Bytes())
	}

	h, _ = ParseHeader("get foo")
	r = Dispatch(cache, h, nil)
	want := "VALUE foo 0 3\r\nbar\r\nEND\r\n"
	if string(r.Bytes()) != want {
		t.Fatalf("got %q, want %q", r.Bytes(), want)
	}
}

func TestDispatchGetMiss(t *testing.T) {
	cache := latchkv.NewCache(latchkv.Config{MaxSize: 1024})
	defer cache.Close()

	h, _ := ParseHeader("get missing")
	r := Dispatch(cache, h, nil)
	if string(r.Bytes()) != "END\r\n" {
		t.Fatalf("unexpected reply: %q", r.Bytes())
	}
}

func TestDispatchAddReplace(t *testing.T) {
	cache := latchkv.NewCache(latchkv.Config{MaxSize: 1024})
	defer cache.Close()

	h, _ := ParseHeader("replace foo 0 0 3")
	if r := Dispatch(cache, h, []byte("bar")); string(r.Bytes()) != "NOT_STORED\r\n" {
		t.Fatalf("replace on missing key: got %q", r.Bytes())
	}

	h, _ = ParseHeader("add foo 0 0 3")
	if r := Dispatch(cache, h, []byte("bar")); string(r.Bytes()) != "STORED\r\n" {
		t.Fatalf("add on missing key: got %q", r.Bytes())
	}

	h, _ = ParseHeader("add foo 0 0 3")
	if r := Dispatch(cache, h, []byte("baz")); string(r.Bytes()) != "NOT_STORED\r\n" {
		t.Fatalf("add on existing key: got %q", r.Bytes())
	}
}

func TestDispatchAppendPrepend(t *testing.T) {
	cache := latchkv.NewCache(latchkv.Config{MaxSize: 1024})
	defer cache.Close()

	h, _ := ParseHeader("set k 0 0 2")
	Dispatch(cache, h, []byte("bb"))

	h, _ = ParseHeader("append k 0 0 1")
	if r := Dispatch(cache, h, []byte("c")); string(r.Bytes()) != "STORED\r\n" {
		t.Fatalf("append: got %q", r.Bytes())
	}
	h, _ = ParseHeader("get k")
	if r := Dispatch(cache, h, nil); string(r.Bytes()) != "VALUE k 0 3\r\nbbc\r\nEND\r\n" {
		t.Fatalf("append result: got %q", r.Bytes())
	}

	h, _ = ParseHeader("prepend k 0 0 1")
	if r := Dispatch(cache, h, []byte("a")); string(r.Bytes()) != "STORED\r\n" {
		t.Fatalf("prepend: got %q", r.Bytes())
	}
	h, _ = ParseHeader("get k")
	if r := Dispatch(cache, h, nil); string(r.Bytes()) != "VALUE k 0 4\r\nabbc\r\nEND\r\n" {
		t.Fatalf("prepend result: got %q", r.Bytes())
	}
}

func TestDispatchDelete(t *testing.T) {
	cache := latchkv.NewCache(latchkv.Config{MaxSize: 1024})
	defer cache.Close()

	h, _ := ParseHeader("delete missing")
	if r := Dispatch(cache, h, nil); string(r.Bytes()) != "NOT_FOUND\r\n" {
		t.Fatalf("delete missing: got %q", r.Bytes())
	}

	h, _ = ParseHeader("set k 0 0 1")
	Dispatch(cache, h, []byte("v"))
	h, _ = ParseHeader("delete k")
	if r := Dispatch(cache, h, nil); string(r.Bytes()) != "DELETED\r\n" {
		t.Fatalf("delete present: got %q", r.Bytes())
	}
}

func TestDispatchNoReplySuppressesOutput(t *testing.T) {
	cache := latchkv.NewCache(latchkv.Config{MaxSize: 1024})
	defer cache.Close()

	h, _ := ParseHeader("set k 0 0 1 noreply")
	r := Dispatch(cache, h, []byte("v"))
	if !r.Suppressed() || r.Bytes() != nil {
		t.Fatalf("expected suppressed reply, got %+v", r)
	}
}

func TestErrorReply(t *testing.T) {
	if string(ErrorReply().Bytes()) != "ERROR\r\n" {
		t.Fatalf("unexpected ErrorReply: %q", ErrorReply().Bytes())
	}
}
