// Package combiner implements flat combining: a lock-free mutual-exclusion
// primitive where, instead of every caller fighting over one lock, callers
// deposit their operation into a per-handle slot and whichever caller
// currently wins a cheap CAS becomes the "combiner" for one pass, draining
// the whole slot queue in batches of up to BatchSize. It is grounded in Afina's
// FlatCombiner<T, Q>.
//
// The original C++ primitive steals a bit from each slot's next-pointer to
// track whether the owning thread has detached from (or outlived) its slot,
// because C++ has no garbage collector to decide when a slot's memory can be
// freed. Go's GC already answers that question, so this port replaces the
// stolen bit with a plain atomic "alive" flag next to an ordinary
// atomic.Pointer next-link; the combiner still has to know whether a slot is
// still owned (to evict or reclaim it), it just never has to know when it is
// safe to actually free the memory.
package combiner

import (
	"runtime"
	"sort"
	"sync/atomic"
)

const (
	busyBit   uint64 = 1 << 63
	epochMask uint64 = busyBit - 1
)

// DefaultBatchSize is Afina's Q: the number of operations combined per pass
// before the combiner thread flushes and starts a fresh batch.
const DefaultBatchSize = 64

// DefaultSavingTime is the number of epochs (combiner passes) an idle,
// still-linked slot is allowed to sit in the queue before the combiner
// reclaims it, mirroring FlatCombiner's saving_time.
const DefaultSavingTime = 100000

type slotState int32

const (
	stateComplete slotState = iota
	stateReady
	stateExecuting
)

// slot is one handle's mailbox: the operation it wants executed, the result
// slot fills in, and its place in the combiner's singly-linked queue.
type slot[T any] struct {
	next       atomic.Pointer[slot[T]]
	linked     atomic.Bool
	alive      atomic.Bool
	state      atomic.Int32
	lastActive atomic.Uint64
	data       T
	err        error
}

func (s *slot[T]) isExecutable() bool { return slotState(s.state.Load()) == stateReady }
func (s *slot[T]) isComplete() bool   { return slotState(s.state.Load()) == stateComplete }

func (s *slot[T]) setOperation(data T) {
	s.data = data
	s.err = nil
	s.state.Store(int32(stateReady))
}

func (s *slot[T]) onExecutionStart() { s.state.Store(int32(stateExecuting)) }
func (s *slot[T]) onExecutionComplete(err error) {
	s.err = err
	s.state.Store(int32(stateComplete))
}

// CombineFunc runs once per batch. It receives pointers into each queued
// slot's live data and may mutate it in place; any error it wants attached
// to a particular operation should be returned via errs, indexed the same
// way as batch (a nil entry means success).
type CombineFunc[T any] func(batch []*T) (errs []error)

// Combiner is a generic flat-combining primitive over operations of type T.
// The zero value is not usable; construct with New.
type Combiner[T any] struct {
	lock       atomic.Uint64
	queue      atomic.Pointer[slot[T]]
	tech       *slot[T] // sentinel tail, never itself executed
	closed     atomic.Bool
	batchSize  atomic.Int64  // live-reloadable, see SetBatchSize
	savingTime atomic.Uint64 // live-reloadable, see SetSavingTime
	combine    CombineFunc[T]
	less       func(a, b *T) bool // optional, for key-adjacency coalescing
}

// SetBatchSize changes the batch size used by future combiner passes. Safe
// to call concurrently with Submit.
func (c *Combiner[T]) SetBatchSize(n int) { c.batchSize.Store(int64(n)) }

// SetSavingTime changes the idle-slot eviction threshold used by future
// combiner passes. Safe to call concurrently with Submit.
func (c *Combiner[T]) SetSavingTime(epochs uint64) { c.savingTime.Store(epochs) }

// Option configures a Combiner at construction time.
type Option[T any] func(*Combiner[T])

// WithBatchSize overrides DefaultBatchSize.
func WithBatchSize[T any](n int) Option[T] {
	return func(c *Combiner[T]) { c.batchSize.Store(int64(n)) }
}

// WithSavingTime overrides DefaultSavingTime.
func WithSavingTime[T any](epochs uint64) Option[T] {
	return func(c *Combiner[T]) { c.savingTime.Store(epochs) }
}

// WithSort installs a comparator used to sort each batch before combine
// runs, for combiners whose workload benefits from key-adjacency
// coalescing. Equal elements (less(a,b) and less(b,a) both false) keep
// their relative insertion order: sort.SliceStable, not sort.Slice.
func WithSort[T any](less func(a, b *T) bool) Option[T] {
	return func(c *Combiner[T]) { c.less = less }
}

// New builds a Combiner that calls fn once per drained batch.
func New[T any](fn CombineFunc[T], opts ...Option[T]) *Combiner[T] {
	c := &Combiner[T]{
		tech:    &slot[T]{},
		combine: fn,
	}
	c.batchSize.Store(DefaultBatchSize)
	c.savingTime.Store(DefaultSavingTime)
	c.tech.alive.Store(true)
	c.queue.Store(c.tech)
	return c
}

// Handle is one caller's persistent slot. A Handle must not be used from
// more than one goroutine concurrently, the same restriction the original
// placed on its thread-local slot.
type Handle[T any] struct {
	c    *Combiner[T]
	slot *slot[T]
}

// NewHandle allocates a slot bound to this Combiner. Call Close when the
// caller is done submitting operations.
func (c *Combiner[T]) NewHandle() *Handle[T] {
	s := &slot[T]{}
	s.alive.Store(true)
	return &Handle[T]{c: c, slot: s}
}

// ErrCombinerClosed is returned by Submit once the Combiner has been
// closed, for any operation already queued or newly submitted.
type ErrCombinerClosed struct{}

func (ErrCombinerClosed) Error() string { return "combiner: closed" }

// Submit deposits op into the handle's slot and participates in the
// submit protocol until op has been executed (by this caller, acting as
// combiner, or by some other caller that won the race): either this call
// drains the whole queue itself, or it waits for whoever currently holds
// the combiner role to reach this slot.
func (h *Handle[T]) Submit(op T) (T, error) {
	h.slot.setOperation(op)
	for {
		if h.c.closed.Load() && h.slot.isComplete() {
			break
		}
		if epoch, ok := h.c.tryLock(); ok {
			if h.c.closed.Load() {
				// No combiner pass runs once the combiner is closed: fail
				// this slot ourselves while holding the lock.
				if !h.slot.isComplete() {
					h.slot.onExecutionComplete(ErrCombinerClosed{})
				}
				h.c.unlock()
				break
			}
			if !h.slot.linked.Load() {
				h.c.insertSlot(h.slot)
			}
			h.c.executorPass(epoch)
			h.c.unlock()
			if h.slot.isComplete() {
				break
			}
			continue
		}
		if h.slot.isComplete() {
			break
		}
		if !h.slot.linked.Load() {
			h.c.insertSlot(h.slot)
		} else {
			runtime.Gosched()
		}
	}
	return h.slot.data, h.slot.err
}

// Close detaches this handle from the combiner. If the slot is currently
// linked into the queue, the combiner will unlink and discard it on some
// future pass instead of immediately, mirroring DetachThread/_OrphanSlot.
func (h *Handle[T]) Close() {
	h.slot.alive.Store(false)
}

// Shutdown stops the combiner: any slot still queued and READY is failed
// with ErrCombinerClosed, and all future Submit calls fail immediately once
// their slot observes the closed flag. Shutdown blocks until it has
// acquired the combiner role, mirroring DestroyCombiner's spin on
// _TryLock.
func (c *Combiner[T]) Shutdown() {
	if !c.closed.CompareAndSwap(false, true) {
		return
	}
	for {
		if _, ok := c.tryLock(); ok {
			break
		}
		runtime.Gosched()
	}
	defer c.unlock()

	head := c.queue.Swap(c.tech)
	for curr := head; curr != c.tech; {
		next := curr.next.Load()
		if curr.isExecutable() {
			curr.onExecutionComplete(ErrCombinerClosed{})
		}
		curr.linked.Store(false)
		curr = next
	}
}

func (c *Combiner[T]) tryLock() (epoch uint64, ok bool) {
	v := c.lock.Load()
	if v&busyBit != 0 {
		return 0, false
	}
	if c.lock.CompareAndSwap(v, v|busyBit) {
		return v & epochMask, true
	}
	return 0, false
}

func (c *Combiner[T]) unlock() {
	v := c.lock.Load()
	next := (v&epochMask + 1) & epochMask
	c.lock.Store(next)
}

func (c *Combiner[T]) insertSlot(s *slot[T]) {
	s.lastActive.Store(0)
	for {
		head := c.queue.Load()
		s.next.Store(head)
		if c.queue.CompareAndSwap(head, s) {
			s.linked.Store(true)
			return
		}
	}
}

// dequeueSlot unlinks curr, whose predecessor in the walk was parent (nil
// if curr was the head). Only called while holding the combiner role.
//
// insertSlot only ever races c.queue itself (a new slot's next is set once,
// at insertion, and never touched again): removing a non-head slot is
// therefore safe via a plain Store on its parent's next pointer, but
// removing the head must CAS c.queue, since a concurrent Submit may have
// just pushed its own slot onto the head. If that CAS loses the race, curr
// is no longer the head; re-walk from the fresh head to find curr's actual
// predecessor and unlink through it instead, mirroring FlatCombiner's own
// _DequeueSlot retry.
func (c *Combiner[T]) dequeueSlot(parent, curr *slot[T]) {
	next := curr.next.Load()
	if parent != nil {
		parent.next.Store(next)
		curr.linked.Store(false)
		return
	}
	if c.queue.CompareAndSwap(curr, next) {
		curr.linked.Store(false)
		return
	}
	p := c.queue.Load()
	for p != c.tech && p.next.Load() != curr {
		p = p.next.Load()
	}
	if p != c.tech {
		p.next.Store(next)
	}
	curr.linked.Store(false)
}

// BatchSize returns the batch size currently in effect.
func (c *Combiner[T]) BatchSize() int { return int(c.batchSize.Load()) }

// SavingTime returns the idle-slot eviction threshold currently in effect.
func (c *Combiner[T]) SavingTime() uint64 { return c.savingTime.Load() }

func (c *Combiner[T]) executorPass(epoch uint64) {
	batchSize := c.batchSize.Load()
	savingTime := c.savingTime.Load()
	batch := make([]*slot[T], 0, batchSize)
	flush := func() {
		if len(batch) == 0 {
			return
		}
		if c.less != nil {
			sort.SliceStable(batch, func(i, j int) bool {
				return c.less(&batch[i].data, &batch[j].data)
			})
		}
		ptrs := make([]*T, len(batch))
		for i, s := range batch {
			ptrs[i] = &s.data
		}
		errs := c.combine(ptrs)
		for i, s := range batch {
			var err error
			if errs != nil {
				err = errs[i]
			}
			s.onExecutionComplete(err)
		}
		batch = batch[:0]
	}

	var parent *slot[T]
	curr := c.queue.Load()
	for curr != c.tech {
		next := curr.next.Load()
		dead := !curr.alive.Load()
		stale := !dead && epoch > curr.lastActive.Load() && epoch-curr.lastActive.Load() > savingTime && !curr.isExecutable()
		if dead || stale {
			c.dequeueSlot(parent, curr)
			curr = next
			continue
		}
		if curr.isExecutable() {
			curr.onExecutionStart()
			curr.lastActive.Store(epoch)
			batch = append(batch, curr)
			if int64(len(batch)) == batchSize {
				flush()
			}
		}
		parent = curr
		curr = next
	}
	flush()
}
