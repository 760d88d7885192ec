package combiner

import (
	"sync"
	"sync/atomic"
	"testing"
)

type addOp struct {
	delta  int
	result int
}

func sumCombiner(counter *int64) CombineFunc[addOp] {
	return func(batch []*addOp) []error {
		for _, op := range batch {
			*counter += int64(op.delta)
			op.result = int(*counter)
		}
		return nil
	}
}

func TestSingleHandleSubmit(t *testing.T) {
	var counter int64
	c := New(sumCombiner(&counter))
	h := c.NewHandle()
	defer h.Close()

	for i := 1; i <= 5; i++ {
		op, err := h.Submit(addOp{delta: 1})
		if err != nil {
			t.Fatalf("Submit returned error: %v", err)
		}
		if op.result != i {
			t.Fatalf("after %d submits, result = %d, want %d", i, op.result, i)
		}
	}
}

func TestConcurrentHandlesAllExecuted(t *testing.T) {
	var counter int64
	c := New(sumCombiner(&counter))
	const n = 200
	var wg sync.WaitGroup
	var executed int64
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			h := c.NewHandle()
			defer h.Close()
			if _, err := h.Submit(addOp{delta: 1}); err == nil {
				atomic.AddInt64(&executed, 1)
			}
		}()
	}
	wg.Wait()
	if executed != n {
		t.Fatalf("executed = %d, want %d", executed, n)
	}
	if counter != n {
		t.Fatalf("counter = %d, want %d", counter, n)
	}
}

func TestShutdownFailsOutstandingSlot(t *testing.T) {
	var counter int64
	c := New(sumCombiner(&counter))
	c.Shutdown()

	h := c.NewHandle()
	_, err := h.Submit(addOp{delta: 1})
	if err == nil {
		t.Fatal("Submit after Shutdown should return an error")
	}
	if _, ok := err.(ErrCombinerClosed); !ok {
		t.Fatalf("err = %v, want ErrCombinerClosed", err)
	}
}

func TestHandleCloseAllowsReclaim(t *testing.T) {
	var counter int64
	c := New(sumCombiner(&counter))
	h1 := c.NewHandle()
	if _, err := h1.Submit(addOp{delta: 1}); err != nil {
		t.Fatalf("Submit failed: %v", err)
	}
	h1.Close()

	h2 := c.NewHandle()
	defer h2.Close()
	if _, err := h2.Submit(addOp{delta: 1}); err != nil {
		t.Fatalf("Submit on fresh handle failed: %v", err)
	}
	if counter != 2 {
		t.Fatalf("counter = %d, want 2", counter)
	}
}

func TestBatchSizeOption(t *testing.T) {
	var counter int64
	var maxBatch int
	fn := func(batch []*addOp) []error {
		if len(batch) > maxBatch {
			maxBatch = len(batch)
		}
		for _, op := range batch {
			counter++
			op.result = int(counter)
		}
		return nil
	}
	c := New[addOp](fn, WithBatchSize[addOp](2))
	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			h := c.NewHandle()
			defer h.Close()
			h.Submit(addOp{delta: 1})
		}()
	}
	wg.Wait()
	if maxBatch > 2 {
		t.Fatalf("batch exceeded configured size: %d", maxBatch)
	}
}
