// Package coroutine implements a single-threaded cooperative scheduler in
// the spirit of Afina's Engine: at any instant exactly one task is
// "current," and tasks voluntarily hand control to one another instead of
// being preempted.
//
// The original engine keeps every task alive on one OS thread by copying
// each task's live stack bytes into a heap buffer on Store and memcpy-ing
// them back on Restore, using setjmp/longjmp to resume exactly where a task
// left off. Go gives every goroutine its own (growable, runtime-managed)
// stack and forbids reaching into another goroutine's stack or registers,
// which makes a literal port impossible and unsafe even if it compiled. The
// idiomatic substitute kept here is one goroutine per Task, parked on an
// unbuffered channel receive whenever it is not current; control passes
// from one task to the next by a single channel send, so only one task's
// goroutine is ever runnable at a time — the same single-current-task
// invariant the original's Store/Restore pair enforced by construction.
package coroutine

import "container/list"

type token struct{}

// Task is an opaque handle to one scheduled coroutine.
type Task struct {
	resume chan token
	elem   *list.Element
	engine *Engine
}

// Engine is a cooperative scheduler. The zero value is not usable; build
// one with New.
type Engine struct {
	runnable *list.List // of *Task, in scheduling order
	current  *Task      // the task currently holding the baton, nil if none
	idle     *Task       // pseudo-task representing the goroutine that called Start
}

// New creates an unstarted Engine.
func New() *Engine {
	e := &Engine{runnable: list.New()}
	e.idle = &Task{resume: make(chan token)}
	return e
}

// Go schedules fn to run as a new task. fn receives the Engine so it can
// call Yield/Sched on itself; the task does not begin running until the
// engine hands it control (mirrors Engine::run, which allocates a context
// without starting it).
func (e *Engine) Go(fn func(*Engine)) *Task {
	t := &Task{resume: make(chan token), engine: e}
	go func() {
		<-t.resume
		fn(e)
		e.finish(t)
	}()
	t.elem = e.runnable.PushBack(t)
	return t
}

// Start spawns main as the first task and runs the scheduler until no
// task remains runnable, mirroring Engine::start. It must be called from
// the goroutine that owns this Engine and does not return until every
// task spawned, directly or transitively, has finished.
func (e *Engine) Start(main func(*Engine)) {
	first := e.Go(main)
	e.current = first
	first.resume <- token{}
	<-e.idle.resume
}

// Yield gives up control to the next runnable task, round-robin after the
// calling task, falling back to itself if no other task is runnable
// (mirroring Engine::yield's "alive == cur_routine" self-reschedule case).
// Yield must be called from within a task spawned by this Engine.
func (e *Engine) Yield() {
	from := e.current
	next := e.nextAfter(from)
	if next == nil || next == from {
		return
	}
	e.handoff(from, next)
}

// Sched transfers control directly to t, suspending the calling task until
// it is scheduled again. Sched must be called from within a task spawned
// by this Engine, or is a no-op if t is already current. A nil t behaves
// like Yield, per spec.md §4.3.
func (e *Engine) Sched(t *Task) {
	if t == nil {
		e.Yield()
		return
	}
	from := e.current
	if from == t {
		return
	}
	e.handoff(from, t)
}

// Current returns the task presently holding the baton, or nil if called
// outside of any task (e.g. before Start or after the last task finished).
func (e *Engine) Current() *Task { return e.current }

func (e *Engine) nextAfter(from *Task) *Task {
	if e.runnable.Len() == 0 {
		return nil
	}
	if from == nil || from.elem == nil {
		return e.runnable.Front().Value.(*Task)
	}
	next := from.elem.Next()
	if next == nil {
		next = e.runnable.Front()
	}
	return next.Value.(*Task)
}

// handoff passes the baton from the calling context to to, then blocks
// until the baton is passed back to from.
func (e *Engine) handoff(from, to *Task) {
	e.current = to
	to.resume <- token{}
	if from == nil {
		<-e.idle.resume
	} else {
		<-from.resume
	}
	e.current = from
}

// finish retires t: it is removed from the runnable list and control
// passes to whatever should run next. Unlike handoff, finish never blocks
// afterward — the finishing task's goroutine is about to return.
func (e *Engine) finish(t *Task) {
	if t.elem != nil {
		e.runnable.Remove(t.elem)
		t.elem = nil
	}
	next := e.nextAfter(nil)
	if next == nil {
		e.current = nil
		e.idle.resume <- token{}
		return
	}
	e.current = next
	next.resume <- token{}
}
