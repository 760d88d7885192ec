// Package latchkv provides a thread-safe, in-memory key-value cache server
// library built around three cooperating subsystems: a bounded LRU store, a
// flat-combining mutual-exclusion primitive that serializes access to it,
// and a cooperative coroutine engine for running many logical tasks on a
// single OS thread.
//
// # Overview
//
// latchkv is a Go-native reimagining of a classic single-threaded
// memcached-style cache server. Where the original relies on raw stack
// switching and a thread-local flat combiner written for a language without
// a garbage collector, latchkv keeps the same structural idea, a single
// goroutine ever touches the cache's storage, while callers queue work
// through cheap per-call handles, and expresses it with goroutines,
// channels and atomics instead of setjmp/longjmp and stolen pointer bits.
//
// # Quick Start
//
//	import "github.com/latchkv/latchkv"
//
//	cache := latchkv.NewCache(latchkv.Config{MaxSize: 1 << 20})
//	defer cache.Close()
//
//	cache.Set("user:123", []byte("alice"))
//	if v, ok := cache.Get("user:123"); ok {
//	    fmt.Printf("got %s\n", v)
//	}
//
// # Storage Contract
//
// Cache exposes the memcached-style command set: Get, Set, Add, Replace,
// Append, Prepend and Delete. All seven share one property: they never
// block on I/O and never allocate unboundedly, since every call resolves to
// a single pass over the underlying lru.Store.
//
//   - Set stores unconditionally, moving the key to the front of the
//     recency list. It only fails if key+value alone exceed MaxSize.
//   - Add stores only if the key is absent.
//   - Replace stores only if the key is already present; a value that
//     cannot fit leaves the existing entry untouched.
//   - Append and Prepend concatenate onto an existing value in place.
//   - Delete removes a key if present.
//
// # Concurrency Model
//
// Every mutating and reading call to Cache is funneled through a single
// combiner.Combiner[op]: instead of a shared lock, each caller deposits its
// operation into a short-lived combiner.Handle and either drains the whole
// queue itself (becoming the combiner for one pass) or waits for whichever
// caller currently holds that role to reach its slot. The underlying
// lru.Store is therefore only ever touched by one goroutine at a time,
// without a conventional mutex guarding it.
//
// # Cache Stampede Prevention
//
// GetOrLoad wraps a loader function with golang.org/x/sync/singleflight so
// that concurrent misses for the same key run the loader exactly once:
//
//	user, err := cache.(interface {
//	    GetOrLoad(string, func() ([]byte, error)) ([]byte, error)
//	}).GetOrLoad("user:123", func() ([]byte, error) {
//	    return fetchUserFromDB(123)
//	})
//
// GetOrLoadWithContext accepts a context.Context for cancellation and
// deadline propagation into the loader.
//
// # Hot Configuration Reload
//
// HotConfig watches a configuration file (via github.com/agilira/argus) and
// applies BatchSize and SavingTime changes to a running Cache without a
// restart. MaxSize cannot be changed this way: the LRU store's arena is
// sized once, at construction.
//
// # Observability
//
// Stats returns cumulative hit/miss/eviction counters. Passing
// Config.TrackHotKeys enables an approximate per-key access counter
// (HotKeyTracker, a lock-free Count-Min sketch) purely for observability;
// it never influences eviction, which is always strict recency. A
// MetricsCollector (see the metrics/prometheus package for a Prometheus-backed
// implementation) receives the same events for external scraping.
//
// # Error Handling
//
// latchkv uses github.com/agilira/go-errors for structured, wrapped errors
// with stable codes (see errors.go), returned by GetOrLoad; the storage
// contract itself reports failure as a boolean, including failure after
// Close, matching the underlying command set's own semantics.
//
// # Servers and Protocol
//
// The protocol package implements the line-oriented text command protocol
// (set/add/replace/append/prepend/get/delete) that wraps this package's
// Cache. The server/tcp and server/epoll packages provide blocking
// (goroutine-per-connection) and non-blocking (epoll-driven,
// coroutine-scheduled) TCP servers, and server/fifo a named-pipe (FIFO)
// server, all sharing one Cache instance.
//
// # Packages
//
//   - github.com/latchkv/latchkv: core cache implementation
//   - github.com/latchkv/latchkv/lru: bounded, byte-budgeted LRU store
//   - github.com/latchkv/latchkv/combiner: generic flat-combining primitive
//   - github.com/latchkv/latchkv/coroutine: cooperative task scheduler
//   - github.com/latchkv/latchkv/protocol: text command parser and dispatcher
//   - github.com/latchkv/latchkv/server/tcp: blocking TCP server
//   - github.com/latchkv/latchkv/server/epoll: non-blocking epoll server
//   - github.com/latchkv/latchkv/server/fifo: named-pipe server
//   - github.com/latchkv/latchkv/metrics/prometheus: Prometheus MetricsCollector
//
// # License
//
// See LICENSE file in the repository.
package latchkv
