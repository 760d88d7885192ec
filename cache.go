// cache.go: the Cache implementation wiring the lru store to the combiner
//
// Copyright (c) 2025 AGILira - A. Giordano
// Series: an AGILira library
// SPDX-License-Identifier: MPL-2.0

package latchkv

import (
	"sync/atomic"
	"time"

	"github.com/latchkv/latchkv/combiner"
	"github.com/latchkv/latchkv/lru"
)

type opKind int

const (
	opGet opKind = iota
	opSet
	opAdd
	opReplace
	opAppend
	opPrepend
	opDelete
	opLen
	opCapacity
	opPrint
	opSize
)

// op is the unit of work the combiner batches: one storage-contract call
// plus the slot the caller reads its result back out of. opLen/opPrint/
// opSize route the diagnostics-only Len/Print methods and Stats' Size through
// the same combiner as every mutation, since c.store is otherwise only ever
// safe to touch from the goroutine currently holding the combiner role.
// Capacity does not use opCapacity; it reads MaxSize directly (see below).
type op struct {
	kind    opKind
	key     string
	value   []byte
	result  []byte
	ok      bool
	intVal  int
	textVal string
}

type cacheImpl struct {
	store  *lru.Store
	comb   *combiner.Combiner[op]
	cfg    Config
	hits   atomic.Uint64
	misses atomic.Uint64
	sets   atomic.Uint64
	dels   atomic.Uint64
	evicts atomic.Uint64
	closed atomic.Bool
	loader loader
	hotkeys *HotKeyTracker
}

// NewCache builds a Cache from cfg, applying Config.Validate defaults for
// anything left zero.
func NewCache(cfg Config) Cache {
	_ = cfg.Validate()
	c := &cacheImpl{cfg: cfg}
	c.store = lru.New(cfg.MaxSize, lru.WithEvictCallback(c.onEvict))
	c.comb = combiner.New(c.execute,
		combiner.WithBatchSize[op](cfg.BatchSize),
		combiner.WithSavingTime[op](cfg.SavingTime),
	)
	if cfg.TrackHotKeys {
		c.hotkeys = NewHotKeyTracker(cfg.MaxSize)
	}
	return c
}

// HotKeyEstimate returns the approximate access count for key, or 0 if
// TrackHotKeys was not enabled in Config.
func (c *cacheImpl) HotKeyEstimate(key string) uint64 {
	if c.hotkeys == nil {
		return 0
	}
	return c.hotkeys.Estimate(key)
}

func (c *cacheImpl) onEvict(key string, value []byte) {
	c.evicts.Add(1)
	c.cfg.MetricsCollector.ObserveEviction()
	c.cfg.Logger.Debug("latchkv: evicted", "key", key, "size", len(value))
	if c.cfg.OnEvict != nil {
		c.cfg.OnEvict(key, value)
	}
}

func (c *cacheImpl) do(kind opKind, key string, value []byte) op {
	start := time.Now()
	h := c.comb.NewHandle()
	result, err := h.Submit(op{kind: kind, key: key, value: value})
	h.Close()
	c.cfg.MetricsCollector.ObserveOperation(opName(kind), time.Since(start).Nanoseconds())
	if err != nil {
		// Combiner was closed underneath us: report failure the same way
		// the storage contract reports any other failed mutation.
		return op{}
	}
	return result
}

func opName(k opKind) string {
	switch k {
	case opGet:
		return "get"
	case opSet:
		return "set"
	case opAdd:
		return "add"
	case opReplace:
		return "replace"
	case opAppend:
		return "append"
	case opPrepend:
		return "prepend"
	case opDelete:
		return "delete"
	case opLen:
		return "len"
	case opCapacity:
		return "capacity"
	case opPrint:
		return "print"
	case opSize:
		return "size"
	default:
		return "unknown"
	}
}

// execute is the combiner's batch function: it runs on whichever caller's
// goroutine currently holds the combiner role, and is the only code path
// that ever touches c.store.
func (c *cacheImpl) execute(batch []*op) []error {
	for _, o := range batch {
		switch o.kind {
		case opGet:
			v, ok := c.store.Get(o.key)
			o.result, o.ok = v, ok
			if ok {
				c.hits.Add(1)
				c.cfg.MetricsCollector.ObserveHit()
				if c.hotkeys != nil {
					c.hotkeys.Observe(o.key)
				}
			} else {
				c.misses.Add(1)
				c.cfg.MetricsCollector.ObserveMiss()
			}
		case opSet:
			o.ok = c.store.Put(o.key, o.value)
			if o.ok {
				c.sets.Add(1)
			}
		case opAdd:
			o.ok = c.store.PutIfAbsent(o.key, o.value)
			if o.ok {
				c.sets.Add(1)
			}
		case opReplace:
			o.ok = c.store.Set(o.key, o.value)
			if o.ok {
				c.sets.Add(1)
			}
		case opAppend, opPrepend:
			existing, found := c.store.Get(o.key)
			if !found {
				o.ok = false
				continue
			}
			var combined []byte
			if o.kind == opAppend {
				combined = append(append([]byte(nil), existing...), o.value...)
			} else {
				combined = append(append([]byte(nil), o.value...), existing...)
			}
			o.ok = c.store.Set(o.key, combined)
			if o.ok {
				c.sets.Add(1)
			}
		case opDelete:
			o.ok = c.store.Delete(o.key)
			if o.ok {
				c.dels.Add(1)
			}
		case opLen:
			o.intVal = c.store.Len()
		case opCapacity:
			o.intVal = c.store.MaxSize()
		case opPrint:
			o.textVal = c.store.Print()
		case opSize:
			o.intVal = c.store.Size()
		}
	}
	return nil
}

func (c *cacheImpl) Get(key string) ([]byte, bool) {
	r := c.do(opGet, key, nil)
	return r.result, r.ok
}

func (c *cacheImpl) Set(key string, value []byte) bool {
	return c.do(opSet, key, value).ok
}

func (c *cacheImpl) Add(key string, value []byte) bool {
	return c.do(opAdd, key, value).ok
}

func (c *cacheImpl) Replace(key string, value []byte) bool {
	return c.do(opReplace, key, value).ok
}

func (c *cacheImpl) Append(key string, value []byte) bool {
	return c.do(opAppend, key, value).ok
}

func (c *cacheImpl) Prepend(key string, value []byte) bool {
	return c.do(opPrepend, key, value).ok
}

func (c *cacheImpl) Delete(key string) bool {
	return c.do(opDelete, key, nil).ok
}

// Len, Capacity, Print and Stats are diagnostics-only, but c.store is still
// only ever safe to read from whichever goroutine currently holds the
// combiner role — a direct c.store.Len()/Print() call here would race the
// combiner goroutine's concurrent Put/Delete/eviction. Capacity is the one
// exception: MaxSize is fixed at construction and never mutates, so it can
// be read directly without going through the combiner.
func (c *cacheImpl) Len() int { return c.do(opLen, "", nil).intVal }

func (c *cacheImpl) Capacity() int { return c.store.MaxSize() }

func (c *cacheImpl) Print() string { return c.do(opPrint, "", nil).textVal }

func (c *cacheImpl) Stats() CacheStats {
	return CacheStats{
		Hits:      c.hits.Load(),
		Misses:    c.misses.Load(),
		Sets:      c.sets.Load(),
		Deletes:   c.dels.Load(),
		Evictions: c.evicts.Load(),
		Size:      c.do(opSize, "", nil).intVal,
		Capacity:  c.store.MaxSize(),
	}
}

// ApplyLiveConfig updates the subset of Config that is safe to change while
// the cache is running: BatchSize and SavingTime. MaxSize cannot be resized
// in place, since the LRU store's arena is allocated once at construction.
func (c *cacheImpl) ApplyLiveConfig(batchSize int, savingTime uint64) {
	if batchSize > 0 {
		c.comb.SetBatchSize(batchSize)
	}
	if savingTime > 0 {
		c.comb.SetSavingTime(savingTime)
	}
}

func (c *cacheImpl) Close() error {
	if !c.closed.CompareAndSwap(false, true) {
		return nil
	}
	c.comb.Shutdown()
	c.cfg.Logger.Info("latchkv: cache closed", "len", c.store.Len())
	return nil
}
