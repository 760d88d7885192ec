package coroutine

import "testing"

func TestStartRunsSingleTaskToCompletion(t *testing.T) {
	ran := false
	e := New()
	e.Start(func(e *Engine) {
		ran = true
	})
	if !ran {
		t.Fatal("main task body never ran")
	}
}

func TestYieldInterleavesTwoTasks(t *testing.T) {
	var order []string
	e := New()
	e.Start(func(e *Engine) {
		order = append(order, "a1")
		e.Go(func(e *Engine) {
			order = append(order, "b1")
			e.Yield()
			order = append(order, "b2")
		})
		e.Yield()
		order = append(order, "a2")
		e.Yield()
		order = append(order, "a3")
	})
	want := []string{"a1", "b1", "a2", "b2", "a3"}
	if len(order) != len(want) {
		t.Fatalf("order = %v, want %v", order, want)
	}
	for i := range want {
		if order[i] != want[i] {
			t.Fatalf("order = %v, want %v", order, want)
		}
	}
}

func TestSchedTargetsSpecificTask(t *testing.T) {
	var order []string
	e := New()
	var taskB *Task
	e.Start(func(e *Engine) {
		order = append(order, "a1")
		taskB = e.Go(func(e *Engine) {
			order = append(order, "b1")
		})
		e.Sched(taskB)
		order = append(order, "a2")
	})
	want := []string{"a1", "b1", "a2"}
	for i := range want {
		if order[i] != want[i] {
			t.Fatalf("order = %v, want %v", order, want)
		}
	}
}

func TestYieldWithNoOtherRunnableIsNoOp(t *testing.T) {
	count := 0
	e := New()
	e.Start(func(e *Engine) {
		for i := 0; i < 3; i++ {
			e.Yield()
			count++
		}
	})
	if count != 3 {
		t.Fatalf("count = %d, want 3", count)
	}
}

func TestDynamicallySpawnedTaskRuns(t *testing.T) {
	spawnedRan := false
	e := New()
	e.Start(func(e *Engine) {
		child := e.Go(func(e *Engine) {
			spawnedRan = true
		})
		e.Sched(child)
	})
	if !spawnedRan {
		t.Fatal("dynamically spawned task never ran")
	}
}

// Sched(nil) must behave like Yield rather than panic on a nil channel
// send, per spec.md §4.3 ("if handle is null, behaves like yield").
func TestSchedNilBehavesLikeYield(t *testing.T) {
	var order []string
	e := New()
	e.Start(func(e *Engine) {
		order = append(order, "a1")
		e.Go(func(e *Engine) {
			order = append(order, "b1")
			e.Sched(nil)
			order = append(order, "b2")
		})
		e.Sched(nil)
		order = append(order, "a2")
		e.Sched(nil)
		order = append(order, "a3")
	})
	want := []string{"a1", "b1", "a2", "b2", "a3"}
	if len(order) != len(want) {
		t.Fatalf("order = %v, want %v", order, want)
	}
	for i := range want {
		if order[i] != want[i] {
			t.Fatalf("order = %v, want %v", order, want)
		}
	}
}

// spec.md §8 seed scenario 5: two tasks each increment a shared counter and
// yield 100 times; on Start's return, the counter is 200 and no task
// remains runnable.
func TestTwoTasksIncrementCounterAcrossHundredYields(t *testing.T) {
	const iterations = 100
	counter := 0
	e := New()
	e.Start(func(e *Engine) {
		e.Go(func(e *Engine) {
			for i := 0; i < iterations; i++ {
				counter++
				e.Yield()
			}
		})
		for i := 0; i < iterations; i++ {
			counter++
			e.Yield()
		}
	})
	if counter != 2*iterations {
		t.Fatalf("counter = %d, want %d", counter, 2*iterations)
	}
	if e.Current() != nil {
		t.Fatalf("Current() = %v, want nil after every task finished", e.Current())
	}
}
