// config.go: configuration for latchkv
//
// Copyright (c) 2025 AGILira - A. Giordano
// Series: an AGILira library
// SPDX-License-Identifier: MPL-2.0

package latchkv

// Config holds configuration parameters for a Cache.
type Config struct {
	// MaxSize is the maximum total number of bytes (sum of len(key)+len(value)
	// over all live entries) the underlying LRU store may hold. Must be > 0.
	// Default: DefaultMaxSize.
	MaxSize int

	// BatchSize is the combiner's Q: how many queued operations are
	// executed per combiner pass before results are flushed and a new
	// batch starts. Default: DefaultBatchSize.
	BatchSize int

	// SavingTime is the number of combiner passes (epochs) an idle,
	// still-linked caller slot is allowed to sit in the queue before it is
	// reclaimed. Default: DefaultSavingTime.
	SavingTime uint64

	// Logger is used for debugging and monitoring. Default: NoOpLogger.
	Logger Logger

	// MetricsCollector receives hit/miss/eviction/latency events.
	// Default: NoOpMetrics.
	MetricsCollector MetricsCollector

	// OnEvict is called synchronously, from the combiner goroutine,
	// whenever an entry is evicted to make room for another. It must be
	// fast and must not call back into the Cache.
	OnEvict func(key string, value []byte)

	// TrackHotKeys enables an approximate per-key access counter
	// (HotKeyTracker) purely for observability; it never influences
	// eviction, which is always strict recency.
	TrackHotKeys bool
}

// Validate normalizes a Config in place, filling in defaults for anything
// left unset. It never returns a non-nil error today; the signature is
// kept error-returning so future validation can be added without breaking
// callers, mirroring the teacher's own normalize-only Validate.
func (c *Config) Validate() error {
	if c.MaxSize <= 0 {
		c.MaxSize = DefaultMaxSize
	}
	if c.BatchSize <= 0 {
		c.BatchSize = DefaultBatchSize
	}
	if c.SavingTime == 0 {
		c.SavingTime = DefaultSavingTime
	}
	if c.Logger == nil {
		c.Logger = NoOpLogger{}
	}
	if c.MetricsCollector == nil {
		c.MetricsCollector = NoOpMetrics{}
	}
	return nil
}

// DefaultConfig returns a Config with sensible defaults already applied.
func DefaultConfig() Config {
	c := Config{}
	_ = c.Validate()
	return c
}
