// Package latchkv provides a bounded, byte-budgeted, LRU-evicting
// in-memory key/value cache, built out of two independently useful
// primitives: a flat-combining synchronizer (package combiner) that
// serializes mutation of a plain LRU store (package lru), and a
// cooperative coroutine engine (package coroutine) that the non-blocking
// server uses to multiplex many connections on one thread.
//
// Example usage:
//
//	cache := latchkv.NewCache(latchkv.Config{MaxSize: 1 << 20})
//	defer cache.Close()
//
//	cache.Set("key", []byte("value"))
//	value, found := cache.Get("key")
//
// Copyright (c) 2025 AGILira - A. Giordano
// Series: an AGILira fragment
// SPDX-License-Identifier: MPL-2.0

package latchkv

import "github.com/latchkv/latchkv/combiner"

const (
	// Version of the latchkv cache library.
	Version = "v0.1.0-dev"

	// DefaultMaxSize is the default LRU store capacity in bytes.
	DefaultMaxSize = 1 << 20 // 1 MiB

	// DefaultBatchSize is the combiner's default batch size Q.
	DefaultBatchSize = combiner.DefaultBatchSize

	// DefaultSavingTime is the combiner's default idle-slot eviction
	// threshold, in epochs.
	DefaultSavingTime = combiner.DefaultSavingTime
)
