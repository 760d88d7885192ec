// hot-reload.go: dynamic configuration with Argus integration
//
// Copyright (c) 2025 AGILira - A. Giordano
// Series: an AGILira library
// SPDX-License-Identifier: MPL-2.0

package latchkv

import (
	"fmt"
	"sync"
	"time"

	"github.com/agilira/argus"
)

// HotConfig provides dynamic configuration reload capabilities using Argus.
// It watches a configuration file and applies the subset of knobs that are
// safe to change on a running cache: BatchSize and SavingTime. MaxSize
// cannot be changed this way, since the LRU store's arena is sized once at
// construction; a MaxSize change in the watched file is logged and ignored.
type HotConfig struct {
	cache   Cache
	watcher *argus.Watcher
	mu      sync.RWMutex
	config  Config
	logger  Logger

	// OnReload is called after configuration is successfully reloaded.
	// This callback is optional and must be fast and non-blocking.
	OnReload func(oldConfig, newConfig Config)
}

// HotConfigOptions configures hot reload behavior.
type HotConfigOptions struct {
	// ConfigPath is the path to the configuration file to watch.
	// Supports JSON, YAML, TOML, HCL, INI, Properties formats.
	ConfigPath string

	// PollInterval is how often to check for configuration changes.
	// Default: 1 second. Minimum: 100ms.
	PollInterval time.Duration

	// OnReload is called after configuration is successfully reloaded.
	OnReload func(oldConfig, newConfig Config)

	// Logger for hot reload operations. Default: NoOpLogger.
	Logger Logger
}

// NewHotConfig creates a new hot-reloadable configuration for a cache.
// It starts watching the configuration file immediately.
//
// Example configuration file (YAML):
//
//	cache:
//	  max_size: 1048576
//	  batch_size: 64
//	  saving_time: 100000
//
// Supported configuration keys:
//   - cache.max_size (int): logged as requiring a restart, never applied live
//   - cache.batch_size (int): combiner operations executed per pass
//   - cache.saving_time (int): idle-slot eviction threshold, in combiner epochs
func NewHotConfig(cache Cache, opts HotConfigOptions) (*HotConfig, error) {
	if opts.ConfigPath == "" {
		return nil, fmt.Errorf("config_path is required")
	}

	if opts.PollInterval == 0 {
		opts.PollInterval = 1 * time.Second
	} else if opts.PollInterval < 100*time.Millisecond {
		opts.PollInterval = 100 * time.Millisecond
	}

	if opts.Logger == nil {
		opts.Logger = NoOpLogger{}
	}

	hc := &HotConfig{
		cache:    cache,
		OnReload: opts.OnReload,
		config:   DefaultConfig(),
		logger:   opts.Logger,
	}

	argusConfig := argus.Config{
		PollInterval: opts.PollInterval,
	}

	watcher, err := argus.UniversalConfigWatcherWithConfig(opts.ConfigPath, hc.handleConfigChange, argusConfig)
	if err != nil {
		return nil, err
	}
	hc.watcher = watcher

	return hc, nil
}

// Start begins watching the configuration file for changes.
func (hc *HotConfig) Start() error {
	if hc.watcher.IsRunning() {
		return nil
	}
	return hc.watcher.Start()
}

// Stop stops watching the configuration file.
func (hc *HotConfig) Stop() error {
	return hc.watcher.Stop()
}

// GetConfig returns the current configuration (thread-safe).
func (hc *HotConfig) GetConfig() Config {
	hc.mu.RLock()
	defer hc.mu.RUnlock()
	return hc.config
}

// handleConfigChange is called by Argus when configuration changes.
func (hc *HotConfig) handleConfigChange(configData map[string]interface{}) {
	hc.mu.Lock()
	oldConfig := hc.config
	newConfig := hc.parseConfig(configData)
	hc.config = newConfig
	hc.mu.Unlock()

	hc.applyChanges(oldConfig, newConfig)

	if hc.OnReload != nil {
		hc.OnReload(oldConfig, newConfig)
	}
}

// parsePositiveInt extracts a positive integer from interface{} value.
// Supports both int and float64 types (YAML/JSON may vary).
func parsePositiveInt(value interface{}) (int, bool) {
	switch v := value.(type) {
	case int:
		if v > 0 {
			return v, true
		}
	case float64:
		if v > 0 {
			return int(v), true
		}
	}
	return 0, false
}

// parsePositiveUint64 extracts a positive integer from interface{} value as
// a uint64, the type SavingTime is expressed in.
func parsePositiveUint64(value interface{}) (uint64, bool) {
	switch v := value.(type) {
	case int:
		if v > 0 {
			return uint64(v), true
		}
	case float64:
		if v > 0 {
			return uint64(v), true
		}
	}
	return 0, false
}

// parseConfig extracts cache configuration from Argus config data.
func (hc *HotConfig) parseConfig(data map[string]interface{}) Config {
	config := hc.GetConfig()

	cacheSection, ok := data["cache"].(map[string]interface{})
	if !ok {
		if _, hasMaxSize := data["max_size"]; hasMaxSize {
			cacheSection = data
		} else {
			return config
		}
	}

	if maxSize, ok := parsePositiveInt(cacheSection["max_size"]); ok {
		config.MaxSize = maxSize
	}

	if batchSize, ok := parsePositiveInt(cacheSection["batch_size"]); ok {
		config.BatchSize = batchSize
	}

	if savingTime, ok := parsePositiveUint64(cacheSection["saving_time"]); ok {
		config.SavingTime = savingTime
	}

	return config
}

// applyChanges applies configuration changes to the running cache.
// MaxSize cannot be applied dynamically: the LRU store's arena is allocated
// once, at construction, sized to the original MaxSize. Making MaxSize
// live-reloadable would mean rebuilding the store (and re-inserting every
// live entry) under the combiner's lock, which is future work, not
// something this pass attempts.
func (hc *HotConfig) applyChanges(old, new Config) {
	if new.MaxSize != old.MaxSize {
		hc.logger.Warn("latchkv: max_size change requires a restart, ignoring",
			"old_max_size", old.MaxSize, "new_max_size", new.MaxSize)
	}
	if new.BatchSize != old.BatchSize || new.SavingTime != old.SavingTime {
		hc.cache.ApplyLiveConfig(new.BatchSize, new.SavingTime)
		hc.logger.Info("latchkv: applied live config",
			"batch_size", new.BatchSize, "saving_time", new.SavingTime)
	}
}
