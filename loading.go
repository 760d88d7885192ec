// loading.go: GetOrLoad cache-aside helper
//
// The teacher's own loading.go hand-rolled a singleflight mechanism out of
// a sync.WaitGroup and a pair of atomic.Value fields wrapped to tolerate
// storing nil. golang.org/x/sync/singleflight is the real library the
// ecosystem reaches for here (see other_examples/manifests for several
// cache implementations that depend on golang.org/x/sync), so this port
// uses it directly instead of re-deriving the same mechanism by hand.
//
// Copyright (c) 2025 AGILira - A. Giordano
// Series: an AGILira library
// SPDX-License-Identifier: MPL-2.0
package latchkv

import (
	"context"

	"golang.org/x/sync/singleflight"
)

type loader struct {
	group singleflight.Group
}

// GetOrLoad returns the cached value for key, or calls fn to produce it if
// key is absent, storing the result on success. Concurrent GetOrLoad calls
// for the same missing key share a single fn execution.
func (c *cacheImpl) GetOrLoad(key string, fn func() ([]byte, error)) ([]byte, error) {
	if key == "" {
		return nil, NewErrEmptyKey("GetOrLoad")
	}
	if value, found := c.Get(key); found {
		return value, nil
	}
	if fn == nil {
		return nil, NewErrInvalidLoader(key)
	}

	v, err, _ := c.loader.group.Do(key, func() (result interface{}, err error) {
		defer func() {
			if r := recover(); r != nil {
				err = NewErrPanicRecovered("GetOrLoad:"+key, r)
			}
		}()
		value, loadErr := fn()
		if loadErr != nil {
			return nil, NewErrLoaderFailed(key, loadErr)
		}
		c.Set(key, value)
		return value, nil
	})
	if err != nil {
		return nil, err
	}
	return v.([]byte), nil
}

// GetOrLoadWithContext is like GetOrLoad but passes ctx to fn and returns
// early if ctx is cancelled before fn completes (it does not cancel fn
// itself, matching singleflight's own semantics: the call is shared and
// keeps running for any other waiter).
func (c *cacheImpl) GetOrLoadWithContext(ctx context.Context, key string, fn func(context.Context) ([]byte, error)) ([]byte, error) {
	if key == "" {
		return nil, NewErrEmptyKey("GetOrLoadWithContext")
	}
	if value, found := c.Get(key); found {
		return value, nil
	}
	if fn == nil {
		return nil, NewErrInvalidLoader(key)
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	resultCh := c.loader.group.DoChan(key, func() (result interface{}, err error) {
		defer func() {
			if r := recover(); r != nil {
				err = NewErrPanicRecovered("GetOrLoadWithContext:"+key, r)
			}
		}()
		value, loadErr := fn(ctx)
		if loadErr != nil {
			return nil, NewErrLoaderFailed(key, loadErr)
		}
		c.Set(key, value)
		return value, nil
	})

	select {
	case res := <-resultCh:
		if res.Err != nil {
			return nil, res.Err
		}
		return res.Val.([]byte), nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}
